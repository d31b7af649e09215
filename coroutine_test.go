package croc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildProducer hand-assembles a coroutine body that yields 1, 2, 3 and
// then returns, scenario S3's producer.
func buildProducer(vm *VM) *Function {
	fd := vm.NewFuncDef(vm.intern([]byte("producer")))
	fd.numRegs = 1
	fd.constants = []Value{Int(1), Int(2), Int(3)}
	fd.code = []Instruction{
		{Op: OpLoadConst, A: 0, Imm: 0},
		{Op: OpYield, A: 0, Imm: 1},
		{Op: OpLoadConst, A: 0, Imm: 1},
		{Op: OpYield, A: 0, Imm: 1},
		{Op: OpLoadConst, A: 0, Imm: 2},
		{Op: OpYield, A: 0, Imm: 1},
		{Op: OpReturn, A: 0, Imm: 0},
	}
	return vm.NewScriptFunction(fd, nil, nil)
}

// TestCoroutineProducerYieldsThenDies is scenario S3: resuming the
// producer four times yields 1, 2, 3 and then transitions it to Dead.
func TestCoroutineProducerYieldsThenDies(t *testing.T) {
	vm := NewVM(Options{})
	fn := buildProducer(vm)
	co := vm.NewCoroutine("producer", fn)

	for i, want := range []int64{1, 2, 3} {
		res, exc := vm.Resume(vm.mainThread, co, nil)
		require.Nil(t, exc, "resume %d", i+1)
		require.Len(t, res, 1)
		assert.Equal(t, Int(want), res[0])
		assert.Equal(t, ThreadSuspended, co.State())
	}

	res, exc := vm.Resume(vm.mainThread, co, nil)
	require.Nil(t, exc)
	assert.Len(t, res, 0)
	assert.Equal(t, ThreadDead, co.State())
}

// TestCoroutineLIFONesting is Testable Property 7: if A resumes B
// resumes C, a yield in C returns control to B, not to A.
func TestCoroutineLIFONesting(t *testing.T) {
	vm := NewVM(Options{})

	// C just yields once.
	cFd := vm.NewFuncDef(vm.intern([]byte("c")))
	cFd.numRegs = 1
	cFd.constants = []Value{Int(100)}
	cFd.code = []Instruction{
		{Op: OpLoadConst, A: 0, Imm: 0},
		{Op: OpYield, A: 0, Imm: 1},
		{Op: OpReturn, A: 0, Imm: 0},
	}
	cFn := vm.NewScriptFunction(cFd, nil, nil)
	cThread := vm.NewCoroutine("c", cFn)

	// B resumes C via a native function (standing in for the compiler-
	// generated "resume" builtin) and returns whatever C yielded.
	bFn := vm.NewNativeFunction("b", func(th *Thread, args []Value) ([]Value, *Exception) {
		res, exc := th.vm.Resume(th, cThread, nil)
		return res, exc
	})
	bThread := vm.NewCoroutine("b", bFn)

	res, exc := vm.Resume(vm.mainThread, bThread, nil)
	require.Nil(t, exc)
	require.Len(t, res, 1)
	assert.Equal(t, Int(100), res[0])

	// C yielded to its resumer B, and B (a native frame) returned
	// normally once the nested Resume call returned -- so B is Dead,
	// while C itself is still Suspended, waiting on whoever resumes it
	// next.
	assert.Equal(t, ThreadDead, bThread.State())
	assert.Equal(t, ThreadSuspended, cThread.State())
}
