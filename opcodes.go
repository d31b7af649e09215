package croc

// Opcode is a fixed-width bytecode instruction tag (§4.7, [SUPPLEMENTED]
// design choice recorded in SPEC_FULL.md). Each Instruction carries one
// opcode plus up to three operand slots and an optional 32-bit immediate,
// the same fixed-width, jump-table-dispatched shape as the teacher's
// opcode_table.go/vm_jumptable.go, generalized from AML's operator set to
// croc's register-based instruction set.
type Opcode uint8

const (
	OpNop Opcode = iota

	OpLoadConst // Rd = K(imm)
	OpLoadNull  // Rd = null
	OpLoadBool  // Rd = bool(imm)
	OpMove      // Rd = Rs1

	OpGetUpval // Rd = upval[imm]
	OpSetUpval // upval[imm] = Rs1

	OpNewTable
	OpNewArray // Rd = new Array(size=imm)
	OpNewClass

	OpGetIndex  // Rd = Rs1[Rs2]
	OpSetIndex  // Rd[Rs1] = Rs2
	OpGetField  // Rd = Rs1.K(imm)
	OpSetField  // Rd.K(imm) = Rs1
	OpGetGlobal // Rd = globals[K(imm)]
	OpSetGlobal // globals[K(imm)] = Rs1

	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpNeg
	OpNot
	OpCmp3 // Rd = -1/0/1 three-way compare(Rs1, Rs2)
	OpCmpEq
	OpCmpLT
	OpCmpLE
	OpIs // identity compare
	OpIn // Rd = Rs1 in Rs2

	OpJump
	OpJumpTrue
	OpJumpFalse

	OpCall    // call Rd with imm args starting at Rd+1, Rs1 = expected results; results written back from Rd
	OpTailCall
	OpReturn
	OpYield

	OpClosure // Rd = make closure over FuncDef(imm), capturing upvals

	OpForeachStart // Rd = opApply iterator triple over Rs1
	OpForeachNext

	// OpTryBegin pushes a try-record: Imm is the catch target PC (-1 if
	// this record is a finally scope instead), A is the finally target PC
	// (-1 if this record is a catch scope instead -- a record is never
	// both at once, see tryRecord), and B is the register a catch scope
	// binds the caught value into (-1 for no binding).
	OpTryBegin
	OpTryEnd
	OpThrow
	// OpFinallyEnd closes a finally block: if an exception is still live
	// on the thread it continues unwinding to the next enclosing try,
	// otherwise it falls through to normal execution.
	OpFinallyEnd

	OpLen // Rd = #Rs1
	OpConcat

	numOpcodes
)

var opcodeNames = [numOpcodes]string{
	OpNop: "nop", OpLoadConst: "loadconst", OpLoadNull: "loadnull", OpLoadBool: "loadbool",
	OpMove: "move", OpGetUpval: "getupval", OpSetUpval: "setupval",
	OpNewTable: "newtable", OpNewArray: "newarray", OpNewClass: "newclass",
	OpGetIndex: "getindex", OpSetIndex: "setindex", OpGetField: "getfield", OpSetField: "setfield",
	OpGetGlobal: "getglobal", OpSetGlobal: "setglobal",
	OpAdd: "add", OpSub: "sub", OpMul: "mul", OpDiv: "div", OpMod: "mod", OpNeg: "neg", OpNot: "not",
	OpCmp3: "cmp3", OpCmpEq: "cmpeq", OpCmpLT: "cmplt", OpCmpLE: "cmple", OpIs: "is", OpIn: "in",
	OpJump: "jump", OpJumpTrue: "jumptrue", OpJumpFalse: "jumpfalse",
	OpCall: "call", OpTailCall: "tailcall", OpReturn: "return", OpYield: "yield",
	OpClosure: "closure", OpForeachStart: "foreachstart", OpForeachNext: "foreachnext",
	OpTryBegin: "trybegin", OpTryEnd: "tryend", OpThrow: "throw", OpFinallyEnd: "finallyend",
	OpLen: "len", OpConcat: "concat",
}

func (op Opcode) String() string {
	if int(op) < len(opcodeNames) && opcodeNames[op] != "" {
		return opcodeNames[op]
	}
	return "unknown"
}

// Instruction is one fixed-width bytecode word: an opcode plus three
// register/operand slots and an immediate, wide enough to carry a
// constant-pool index or jump displacement without a second instruction
// word (the same "one opcode, inline operands" layout the teacher's AML
// VM entity stream uses for its opcode + operand bytes).
type Instruction struct {
	Op       Opcode
	A, B, C  int32
	Imm      int32
	Line     int32 // source line, for hook Line events and tracebacks
}
