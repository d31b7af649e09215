package croc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildFib hand-assembles the recursive fib(n) used by scenario S1:
//
//	func fib(n) { if n < 2 { return n } return fib(n-1) + fib(n-2) }
//
// It calls itself through a global lookup rather than a self-upvalue,
// since emitting bytecode is the compiler's job (out of scope) and a
// global is the simplest standin a hand-built test can reach for.
func buildFib(vm *VM) *Function {
	fd := vm.NewFuncDef(vm.intern([]byte("fib")))
	fd.numParams = 1
	fd.numRegs = 6
	fd.constants = []Value{Int(2), Int(1), vm.InternString("fib")}
	fd.code = []Instruction{
		{Op: OpLoadConst, A: 1, Imm: 0},         // r1 = 2
		{Op: OpCmpLT, A: 2, B: 0, C: 1},          // r2 = n < 2
		{Op: OpJumpFalse, A: 2, Imm: 4},          // if !r2 goto 4
		{Op: OpReturn, A: 0, Imm: 1},             // return n
		{Op: OpGetGlobal, A: 3, Imm: 2},          // r3 = fib
		{Op: OpLoadConst, A: 1, Imm: 1},          // r1 = 1
		{Op: OpSub, A: 4, B: 0, C: 1},            // r4 = n - 1
		{Op: OpCall, A: 3, B: 1, Imm: 1},         // r3 = fib(r4)
		{Op: OpMove, A: 5, B: 3},                 // r5 = r3
		{Op: OpGetGlobal, A: 3, Imm: 2},          // r3 = fib
		{Op: OpLoadConst, A: 1, Imm: 0},          // r1 = 2
		{Op: OpSub, A: 4, B: 0, C: 1},            // r4 = n - 2
		{Op: OpCall, A: 3, B: 1, Imm: 1},         // r3 = fib(r4)
		{Op: OpAdd, A: 5, B: 5, C: 3},            // r5 = r5 + r3
		{Op: OpReturn, A: 5, Imm: 1},             // return r5
	}
	return vm.NewScriptFunction(fd, nil, nil)
}

// TestFibTwenty is scenario S1: a recursive fib(20) returns 6765.
func TestFibTwenty(t *testing.T) {
	vm := NewVM(Options{})
	fn := buildFib(vm)
	vm.globals.SetLocal("fib", FunctionValue(fn))

	res, exc := vm.CallFunction(vm.mainThread, FunctionValue(fn), []Value{Int(20)}, 1)
	require.Nil(t, exc)
	require.Len(t, res, 1)
	assert.Equal(t, Int(6765), res[0])
}
