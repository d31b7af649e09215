package croc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestUpvalueSharedCellAcrossTwoClosures is scenario S2 / Testable
// Property 4 at the Upvalue level: two closures capturing the same
// outer local variable share one cell, and that cell survives (by
// being closed, not freed) once the defining frame is torn down.
func TestUpvalueSharedCellAcrossTwoClosures(t *testing.T) {
	vm := NewVM(Options{})
	th := vm.mainThread

	base := len(th.stack)
	th.ensureStack(base + 1)
	th.stack[base] = Int(0) // the captured counter local
	th.pushFrame(nil, base, 0, base)

	// inc and get both capture the same stack slot, the way OpClosure's
	// two closures over the same enclosing local do.
	incCell := findOrCreateUpvalue(vm, th, base)
	getCell := findOrCreateUpvalue(vm, th, base)
	require.Same(t, incCell, getCell, "capturing the same slot twice must return the same Upvalue")

	for i := 0; i < 5; i++ {
		incCell.Set(vm, Int(incCell.Get().AsInt()+1))
	}
	assert.Equal(t, int64(5), getCell.Get().AsInt())

	// Tear down the defining frame: the upvalue must close rather than
	// go stale, and both "closures" must keep observing the same value.
	th.popFrame()
	assert.True(t, incCell.closed)

	assert.Equal(t, int64(5), getCell.Get().AsInt())
	incCell.Set(vm, Int(6))
	assert.Equal(t, int64(6), getCell.Get().AsInt())
}

// TestClosureCapturesGrandparentLocalThroughParentUpvalue exercises
// §3.2's UpvalDesc.FromUpval distinction three frames deep:
//
//	func outer() { x = 10; return middle() }
//	func middle() { return inner() }        // captures x only to pass it on
//	func inner() { return x }                // reaches x through middle's upvalue
//
// inner's descriptor has FromUpval=true, pointing at middle's own upvalue
// slot 0 -- not a local of middle's own frame, since middle never
// references x directly.
func TestClosureCapturesGrandparentLocalThroughParentUpvalue(t *testing.T) {
	vm := NewVM(Options{})

	innerDef := vm.NewFuncDef(vm.intern([]byte("inner")))
	innerDef.numRegs = 1
	innerDef.upvals = []UpvalDesc{{Name: vm.intern([]byte("x")), FromUpval: true, Index: 0}}
	innerDef.code = []Instruction{
		{Op: OpGetUpval, A: 0, Imm: 0}, // r0 = upval[0] (x, via middle)
		{Op: OpReturn, A: 0, Imm: 1},
	}

	middleDef := vm.NewFuncDef(vm.intern([]byte("middle")))
	middleDef.numRegs = 1
	middleDef.upvals = []UpvalDesc{{Name: vm.intern([]byte("x")), FromUpval: false, Index: 0}}
	middleDef.innerFuncs = []*FuncDef{innerDef}
	middleDef.code = []Instruction{
		{Op: OpClosure, A: 0, Imm: 0}, // r0 = closure(inner)
		{Op: OpCall, A: 0, B: 1, Imm: 0},
		{Op: OpReturn, A: 0, Imm: 1},
	}

	outerDef := vm.NewFuncDef(vm.intern([]byte("outer")))
	outerDef.numRegs = 2
	outerDef.constants = []Value{Int(10)}
	outerDef.innerFuncs = []*FuncDef{middleDef}
	outerDef.code = []Instruction{
		{Op: OpLoadConst, A: 0, Imm: 0}, // r0 = x = 10
		{Op: OpClosure, A: 1, Imm: 0},   // r1 = closure(middle), capturing r0
		{Op: OpCall, A: 1, B: 1, Imm: 0},
		{Op: OpReturn, A: 1, Imm: 1},
	}

	outer := vm.NewScriptFunction(outerDef, nil, nil)
	res, exc := vm.CallFunction(vm.mainThread, FunctionValue(outer), nil, 1)
	require.Nil(t, exc)
	require.Len(t, res, 1)
	assert.Equal(t, int64(10), res[0].AsInt())
}

// TestUpvalueCloseIsIdempotent guards against a double-close
// overwriting an already-closed cell with a stale stack read.
func TestUpvalueCloseIsIdempotent(t *testing.T) {
	vm := NewVM(Options{})
	th := vm.mainThread

	base := len(th.stack)
	th.ensureStack(base + 1)
	th.stack[base] = Int(42)

	uv := findOrCreateUpvalue(vm, th, base)
	uv.close()
	th.stack[base] = Int(99) // would be visible only if still open
	uv.close()

	assert.Equal(t, int64(42), uv.Get().AsInt())
}
