package croc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildAddOne compiles (by hand, standing in for a compiler front end
// the interpreter does not need) a one-instruction function: return
// arg0 + 1.
func buildAddOne(vm *VM) *Function {
	fd := vm.NewFuncDef(vm.intern([]byte("addOne")))
	fd.numParams = 1
	fd.numRegs = 2
	fd.constants = []Value{Int(1)}
	fd.code = []Instruction{
		{Op: OpLoadConst, A: 1, Imm: 0},
		{Op: OpAdd, A: 0, B: 0, C: 1},
		{Op: OpReturn, A: 0, Imm: 1},
	}
	return vm.NewScriptFunction(fd, nil, nil)
}

func TestInterpRunsSimpleArithmeticFunction(t *testing.T) {
	vm := NewVM(Options{})
	fn := buildAddOne(vm)
	th := vm.mainThread

	res, exc := vm.CallFunction(th, FunctionValue(fn), []Value{Int(41)}, 1)
	require.Nil(t, exc)
	require.Len(t, res, 1)
	assert.Equal(t, Int(42), res[0])
}

func TestInterpDivisionByZeroRaisesValueError(t *testing.T) {
	vm := NewVM(Options{})
	fd := vm.NewFuncDef(vm.intern([]byte("divZero")))
	fd.numParams = 0
	fd.numRegs = 3
	fd.constants = []Value{Int(10), Int(0)}
	fd.code = []Instruction{
		{Op: OpLoadConst, A: 0, Imm: 0},
		{Op: OpLoadConst, A: 1, Imm: 1},
		{Op: OpDiv, A: 2, B: 0, C: 1},
		{Op: OpReturn, A: 2, Imm: 1},
	}
	fn := vm.NewScriptFunction(fd, nil, nil)

	_, exc := vm.CallFunction(vm.mainThread, FunctionValue(fn), nil, 1)
	require.NotNil(t, exc)
	assert.Same(t, vm.errClasses.ValueError, exc.Class())
}

func TestInterpIndexUndefinedGlobalIsFieldError(t *testing.T) {
	vm := NewVM(Options{})
	fd := vm.NewFuncDef(vm.intern([]byte("useGlobal")))
	fd.numRegs = 1
	fd.constants = []Value{vm.InternString("doesNotExist")}
	fd.code = []Instruction{
		{Op: OpGetGlobal, A: 0, Imm: 0},
		{Op: OpReturn, A: 0, Imm: 1},
	}
	fn := vm.NewScriptFunction(fd, nil, nil)

	_, exc := vm.CallFunction(vm.mainThread, FunctionValue(fn), nil, 1)
	require.NotNil(t, exc)
	assert.Same(t, vm.errClasses.FieldError, exc.Class())
}

// TestCallRejectsArgumentOutsideParamTypeMask covers §4.6's "parameter
// type masks gate calls": a function whose only parameter is restricted
// to Int must reject a String argument before a frame is ever pushed.
func TestCallRejectsArgumentOutsideParamTypeMask(t *testing.T) {
	vm := NewVM(Options{})
	fd := vm.NewFuncDef(vm.intern([]byte("wantsInt")))
	fd.numParams = 1
	fd.numRegs = 1
	fd.SetParamTypeMask(0, TypeMask(TypeInt))
	fd.code = []Instruction{
		{Op: OpReturn, A: 0, Imm: 1},
	}
	fn := vm.NewScriptFunction(fd, nil, nil)

	_, exc := vm.CallFunction(vm.mainThread, FunctionValue(fn), []Value{vm.InternString("nope")}, 1)
	require.NotNil(t, exc)
	assert.Same(t, vm.errClasses.TypeError, exc.Class())

	res, exc := vm.CallFunction(vm.mainThread, FunctionValue(fn), []Value{Int(7)}, 1)
	require.Nil(t, exc)
	require.Len(t, res, 1)
	assert.Equal(t, Int(7), res[0])
}

func TestInterpTableIndexMissingKeyIsNull(t *testing.T) {
	vm := NewVM(Options{})
	tbl := vm.NewTable()
	v, exc := getIndexed(vm.mainThread, Value{Type: TypeTable, ref: tbl}, Int(1))
	require.Nil(t, exc)
	assert.Equal(t, Null, v)
}
