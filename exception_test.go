package croc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExceptionErrorMessageIncludesClassName(t *testing.T) {
	vm := NewVM(Options{})
	exc := vm.NewException(vm.errClasses.TypeError, "bad type")
	assert.Equal(t, "TypeError: bad type", exc.Error())
}

func TestExceptionWithCauseChain(t *testing.T) {
	vm := NewVM(Options{})
	cause := vm.NewException(vm.errClasses.IOError, "disk full")
	wrapped := vm.NewException(vm.errClasses.ValueError, "could not parse config").WithCause(cause)

	assert.Same(t, cause, wrapped.Cause)
	assert.Equal(t, "disk full", wrapped.Cause.Message)
}

func TestThrowUnwindsToMatchingTry(t *testing.T) {
	vm := NewVM(Options{})
	th := vm.mainThread

	th.pushTry(tryRecord{catchPC: 42, frameDepth: 0, stackTop: 0})
	exc := vm.NewException(vm.errClasses.ValueError, "boom")

	pc, ok := throw(th, exc)
	assert.True(t, ok)
	assert.Equal(t, 42, pc)
	assert.Nil(t, th.exception)
}

func TestThrowEscapesWithNoTry(t *testing.T) {
	vm := NewVM(Options{})
	th := vm.NewThread("isolated")
	exc := vm.NewException(vm.errClasses.ValueError, "uncaught")

	_, ok := throw(th, exc)
	assert.False(t, ok)
}

func TestErrToGoRoundTrips(t *testing.T) {
	vm := NewVM(Options{})
	exc := vm.NewException(vm.errClasses.RangeError, "out of range")
	err := errToGo(exc)
	assert.Error(t, err)
	assert.ErrorIs(t, err, exc)
	assert.Nil(t, errToGo(nil))
}

func TestTryCatchBindsCaughtValue(t *testing.T) {
	vm := NewVM(Options{})
	th := vm.mainThread
	th.stack = make([]Value, 8)
	th.pushFrame(nil, 0, -1, 0)

	th.pushTry(tryRecord{catchPC: 99, catchReg: 2, finallyPC: -1, frameDepth: len(th.frames), stackTop: len(th.stack)})
	exc := vm.NewException(vm.errClasses.ValueError, "bad value")

	pc, ok := throw(th, exc)
	assert.True(t, ok)
	assert.Equal(t, 99, pc)
	assert.Nil(t, th.exception)

	bound := th.stack[2]
	assert.Equal(t, TypeInstance, bound.Type)
	inst := bound.refObject().(*Instance)
	recovered, ok := vm.instanceToException(inst)
	assert.True(t, ok)
	assert.Same(t, exc, recovered)
}

func TestFinallyRethrowChainsCause(t *testing.T) {
	vm := NewVM(Options{})
	th := vm.NewThread("isolated")

	th.pushTry(tryRecord{catchPC: -1, catchReg: -1, hasFinally: true, finallyPC: 50, frameDepth: 0, stackTop: 0})
	a := vm.NewException(vm.errClasses.IOError, "a")

	pc, ok := throw(th, a)
	assert.True(t, ok)
	assert.Equal(t, 50, pc)
	assert.Same(t, a, th.exception)

	b := vm.NewException(vm.errClasses.ValueError, "b")
	_, ok = throw(th, b)
	assert.False(t, ok)
	assert.Same(t, a, b.Cause)
}
