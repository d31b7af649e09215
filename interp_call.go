package croc

import "strconv"

// Call, return, closure-creation, iteration and exception opcode
// handlers (§4.6 call contract, §4.7 closures, §4.8 try/catch),
// grounded on the teacher's vm_op_flow.go control-transfer handling.

func opCall(th *Thread, fr *activationRecord, ins Instruction) opResult {
	callee := *reg(th, fr, ins.A)
	argStart := fr.baseReg + int(ins.A) + 1
	numArgs := int(ins.Imm)
	args := append([]Value(nil), th.stack[argStart:argStart+numArgs]...)
	results, exc := th.vm.CallFunction(th, callee, args, int(ins.B))
	if exc != nil {
		return opResult{exc: exc}
	}
	dest := fr.baseReg + int(ins.A)
	for i, v := range results {
		if dest+i < len(th.stack) {
			th.stack[dest+i] = v
		}
	}
	return contResult
}

func opTailCall(th *Thread, fr *activationRecord, ins Instruction) opResult {
	// The portable interpreter does not collapse the Go call stack on
	// tail calls (§4.8's Open Question on stackless tail calls is left
	// unenforced); this still frees the current croc frame before
	// dispatching so deep tail-recursive loops don't grow th.frames.
	callee := *reg(th, fr, ins.A)
	argStart := fr.baseReg + int(ins.A) + 1
	numArgs := int(ins.Imm)
	args := append([]Value(nil), th.stack[argStart:argStart+numArgs]...)
	retBase := fr.retBase
	numRets := fr.numRets
	th.popFrame()
	results, exc := th.vm.CallFunction(th, callee, args, numRets)
	if exc != nil {
		return opResult{exc: exc, done: true}
	}
	for i, v := range results {
		if retBase+i < len(th.stack) {
			th.stack[retBase+i] = v
		}
	}
	th.results = results
	return opResult{done: true}
}

func opReturn(th *Thread, fr *activationRecord, ins Instruction) opResult {
	start := fr.baseReg + int(ins.A)
	n := int(ins.Imm)
	results := append([]Value(nil), th.stack[start:start+n]...)
	retBase := fr.retBase
	th.popFrame()
	for i, v := range results {
		if retBase+i < len(th.stack) {
			th.stack[retBase+i] = v
		}
	}
	th.results = results
	return opResult{done: true}
}

func opYield(th *Thread, fr *activationRecord, ins Instruction) opResult {
	start := fr.baseReg + int(ins.A)
	n := int(ins.Imm)
	th.results = append([]Value(nil), th.stack[start:start+n]...)
	th.state = ThreadSuspended
	fr.pc++ // resume just past the yield
	return opResult{done: true}
}

func opClosure(th *Thread, fr *activationRecord, ins Instruction) opResult {
	def := fr.fn.def.innerFuncs[ins.Imm]
	descs := def.upvals
	upvals := make([]*Upvalue, len(descs))
	for i, desc := range descs {
		if desc.FromUpval {
			// This upvalue isn't a local of the enclosing frame at all --
			// it reuses an upvalue the enclosing closure itself already
			// captured, the case a closure nested more than one level
			// deep needs (§3.2).
			upvals[i] = fr.fn.upvals[desc.Index]
		} else {
			upvals[i] = findOrCreateUpvalue(th.vm, th, fr.baseReg+desc.Index)
		}
	}
	fn := th.vm.NewScriptFunction(def, upvals, nil)
	*reg(th, fr, ins.A) = Value{Type: TypeFunction, ref: fn}
	return contResult
}

func opForeachStart(th *Thread, fr *activationRecord, ins Instruction) opResult {
	// opApply protocol (§4.6): resolve the iterator triple (function,
	// invariant state, initial control variable) for the container.
	container := *reg(th, fr, ins.B)
	fn, state, ctrl, exc := th.vm.apply(container)
	if exc != nil {
		return opResult{exc: exc}
	}
	*reg(th, fr, ins.A) = fn
	*reg(th, fr, ins.A+1) = state
	*reg(th, fr, ins.A+2) = ctrl
	return contResult
}

func opForeachNext(th *Thread, fr *activationRecord, ins Instruction) opResult {
	fn := *reg(th, fr, ins.A)
	state := *reg(th, fr, ins.A+1)
	ctrl := *reg(th, fr, ins.A+2)
	results, exc := th.vm.CallFunction(th, fn, []Value{state, ctrl}, -1)
	if exc != nil {
		return opResult{exc: exc}
	}
	if len(results) == 0 || results[0].Type == TypeNull {
		return opResult{pcJump: int(ins.Imm)} // loop exit target
	}
	*reg(th, fr, ins.A+2) = results[0]
	for i, v := range results {
		if int(ins.B)+i < len(th.stack)-fr.baseReg {
			*reg(th, fr, ins.B+int32(i)) = v
		}
	}
	return contResult
}

func opTryBegin(th *Thread, fr *activationRecord, ins Instruction) opResult {
	finallyPC := int(ins.A)
	th.pushTry(tryRecord{
		catchPC:    int(ins.Imm),
		catchReg:   int(ins.B),
		frameDepth: len(th.frames),
		stackTop:   len(th.stack),
		hasFinally: finallyPC >= 0,
		finallyPC:  finallyPC,
	})
	return contResult
}

func opTryEnd(th *Thread, fr *activationRecord, ins Instruction) opResult {
	th.popTry()
	return contResult
}

// opFinallyEnd sits at the end of a finally block: if an exception is
// still in flight (it was live on entry to the finally and nothing
// cleared it), unwinding continues to whatever try scope encloses this
// one; otherwise the finally block was reached by normal fall-through
// and execution just continues past it.
func opFinallyEnd(th *Thread, fr *activationRecord, ins Instruction) opResult {
	if th.exception != nil {
		return opResult{exc: th.exception}
	}
	return contResult
}

func opThrow(th *Thread, fr *activationRecord, ins Instruction) opResult {
	v := *reg(th, fr, ins.A)
	if v.Type != TypeInstance {
		return opResult{exc: th.vm.newError(th.vm.errClasses.TypeError, "can only throw instances of Throwable")}
	}
	exc, ok := th.vm.instanceToException(v.refObject().(*Instance))
	if !ok {
		return opResult{exc: th.vm.newError(th.vm.errClasses.TypeError, "thrown value is not a Throwable")}
	}
	return opResult{exc: exc}
}

// CallFunction invokes callee with args on th, expecting numRets results
// (-1 for "all results", the convention opForeachNext/OpCall use). It is
// the embedding-facing counterpart of the opCall handler and is also how
// metamethod dispatch, hooks, and finalizers re-enter script code.
func (vm *VM) CallFunction(th *Thread, callee Value, args []Value, numRets int) ([]Value, *Exception) {
	if callee.Type != TypeFunction {
		if mm, ok := vm.lookupMetamethod(callee, "opCall"); ok {
			return vm.CallFunction(th, mm, append([]Value{callee}, args...), numRets)
		}
		return nil, vm.newError(vm.errClasses.TypeError, "cannot call a "+callee.Type.String())
	}
	fn := callee.refObject().(*Function)

	if fn.isNative {
		th.nativeCallDepth++
		res, exc := fn.native(th, args)
		th.nativeCallDepth--
		return res, exc
	}

	if exc := vm.checkParamTypes(fn.def, args); exc != nil {
		return nil, exc
	}

	base := len(th.stack)
	th.ensureStack(base + fn.def.numRegs)
	copy(th.stack[base:], args)
	th.pushFrame(fn, base, numRets, base)

	res, exc := vm.Run(th)
	return res, exc
}

// checkParamTypes enforces §4.6's call contract: each parameter may carry
// a bitset of the ValueTypes it accepts (built with TypeMask), and a call
// supplying an argument outside that set is rejected before a frame is
// ever pushed, rather than failing later deep inside the callee.
func (vm *VM) checkParamTypes(def *FuncDef, args []Value) *Exception {
	for i, mask := range def.paramTypeMasks {
		if mask == 0 || i >= len(args) {
			continue
		}
		if mask&(1<<uint(args[i].Type)) == 0 {
			name := "<anonymous>"
			if def.name != nil {
				name = def.name.GoString()
			}
			return vm.newError(vm.errClasses.TypeError,
				"argument "+strconv.Itoa(i+1)+" to "+name+" has type "+args[i].Type.String()+
					", which the parameter's type mask rejects")
		}
	}
	return nil
}

// callFinalizer invokes an Instance's finalizer method on th, the thread
// it is given (the GC passes the VM's main thread).
func callFinalizer(th *Thread, fn Value, self *Instance) *Exception {
	_, exc := th.vm.CallFunction(th, fn, []Value{{Type: TypeInstance, ref: self}}, 0)
	return exc
}
