package croc

// opHandler executes one instruction on th's topmost frame and reports
// how control should continue: pcJump == -1 advances the frame's pc by
// one, pcJump >= 0 sets pc directly (branches), done means the handler
// already changed frames (return, tail call, yield), and a non-nil exc
// is a throw that the caller (Run) must unwind.
//
// This is the same "array of opcode handlers, select by tag, dispatch"
// shape as the teacher's vm_jumptable.go, generalized from AML's
// operator set to croc's instruction set; vm_op_alu.go/vm_op_store.go/
// vm_op_flow.go map to interp_arith.go/interp_index.go/interp_call.go
// below by the same division of concerns.
type opResult struct {
	pcJump int // -1 means "no override, just advance by 1"
	done   bool
	exc    *Exception
}

var contResult = opResult{pcJump: -1}

type opHandler func(th *Thread, fr *activationRecord, ins Instruction) opResult

var jumpTable [numOpcodes]opHandler

func init() {
	jumpTable[OpNop] = func(th *Thread, fr *activationRecord, ins Instruction) opResult { return contResult }
	jumpTable[OpLoadConst] = opLoadConst
	jumpTable[OpLoadNull] = opLoadNull
	jumpTable[OpLoadBool] = opLoadBool
	jumpTable[OpMove] = opMove
	jumpTable[OpGetUpval] = opGetUpval
	jumpTable[OpSetUpval] = opSetUpval
	jumpTable[OpNewTable] = opNewTable
	jumpTable[OpNewArray] = opNewArray
	jumpTable[OpNewClass] = opNewClass

	jumpTable[OpGetIndex] = opGetIndex
	jumpTable[OpSetIndex] = opSetIndex
	jumpTable[OpGetField] = opGetField
	jumpTable[OpSetField] = opSetField
	jumpTable[OpGetGlobal] = opGetGlobal
	jumpTable[OpSetGlobal] = opSetGlobal

	jumpTable[OpAdd] = arithHandler(opAdd)
	jumpTable[OpSub] = arithHandler(opSub)
	jumpTable[OpMul] = arithHandler(opMul)
	jumpTable[OpDiv] = arithHandler(opDiv)
	jumpTable[OpMod] = arithHandler(opMod)
	jumpTable[OpNeg] = opNeg
	jumpTable[OpNot] = opNot
	jumpTable[OpLen] = opLen
	jumpTable[OpConcat] = opConcat

	jumpTable[OpCmp3] = opCmp3
	jumpTable[OpCmpEq] = opCmpEq
	jumpTable[OpCmpLT] = opCmpLT
	jumpTable[OpCmpLE] = opCmpLE
	jumpTable[OpIs] = opIs
	jumpTable[OpIn] = opIn

	jumpTable[OpJump] = opJump
	jumpTable[OpJumpTrue] = opJumpTrue
	jumpTable[OpJumpFalse] = opJumpFalse

	jumpTable[OpCall] = opCall
	jumpTable[OpTailCall] = opTailCall
	jumpTable[OpReturn] = opReturn
	jumpTable[OpYield] = opYield

	jumpTable[OpClosure] = opClosure
	jumpTable[OpForeachStart] = opForeachStart
	jumpTable[OpForeachNext] = opForeachNext

	jumpTable[OpTryBegin] = opTryBegin
	jumpTable[OpTryEnd] = opTryEnd
	jumpTable[OpThrow] = opThrow
	jumpTable[OpFinallyEnd] = opFinallyEnd
}

func reg(th *Thread, fr *activationRecord, slot int32) *Value {
	return &th.stack[fr.baseReg+int(slot)]
}

// Run executes th until the frame it started on returns, th yields, or an
// unhandled exception escapes, resuming from th's current topmost frame
// and pc.
func (vm *VM) Run(th *Thread) ([]Value, *Exception) {
	th.state = ThreadRunning
	// A return that drops below entryDepth while caller frames remain hands
	// control back to the Go caller (CallFunction) instead of running them.
	entryDepth := len(th.frames)
	for {
		if vm.gc.fatal != nil {
			// The heap is in an unrecoverable state (§4.2's finalizable-
			// cycle fatal condition); refuse to execute any further
			// script code on this or any other thread of the same VM.
			th.state = ThreadDead
			return th.results, nil
		}
		fr := th.currentFrame()
		if fr == nil {
			th.state = ThreadDead
			return th.results, nil
		}
		if fr.fn.isNative {
			res, exc := fr.fn.native(th, th.stack[fr.baseReg:])
			th.popFrame()
			if exc != nil {
				if pc, ok := throw(th, exc); ok {
					if nfr := th.currentFrame(); nfr != nil {
						nfr.pc = pc
					}
					continue
				}
				th.state = ThreadDead
				return nil, exc
			}
			th.results = res
			if len(th.frames) < entryDepth && len(th.frames) > 0 {
				return res, nil
			}
			continue
		}

		code := fr.fn.def.code
		if fr.pc < 0 || fr.pc >= len(code) {
			th.popFrame()
			continue
		}
		ins := code[fr.pc]
		handler := jumpTable[ins.Op]
		if handler == nil {
			exc := vm.NewException(vm.errClasses.NotImplementedError, "unimplemented opcode")
			if pc, ok := throw(th, exc); ok {
				th.currentFrame().pc = pc
				continue
			}
			th.state = ThreadDead
			return nil, exc
		}

		if vm.hooksEnabled(th) {
			vm.fireLineHook(th, fr, ins)
		}

		res := handler(th, fr, ins)
		if res.exc != nil {
			if pc, ok := throw(th, res.exc); ok {
				if nfr := th.currentFrame(); nfr != nil {
					nfr.pc = pc
				}
				continue
			}
			th.state = ThreadDead
			return nil, res.exc
		}
		if res.done {
			if th.state == ThreadSuspended {
				return th.results, nil
			}
			if len(th.frames) < entryDepth && len(th.frames) > 0 {
				return th.results, nil
			}
			continue
		}
		// A nested call may have grown th.frames and moved its backing array.
		if fr = th.currentFrame(); fr == nil {
			continue
		}
		if res.pcJump >= 0 {
			fr.pc = res.pcJump
		} else {
			fr.pc++
		}
	}
}

func (vm *VM) hooksEnabled(th *Thread) bool {
	return th.hooksEnabled && !th.inHook && th.lineHook.Type != TypeNull
}

func (vm *VM) fireLineHook(th *Thread, fr *activationRecord, ins Instruction) {
	th.inHook = true
	defer func() { th.inHook = false }()
	_, _ = vm.CallFunction(th, th.lineHook, []Value{Int(int64(ins.Line))}, 0)
}
