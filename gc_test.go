package croc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestGCReclaimsUnreachableTable covers Testable Property 5: an object
// reachable from no root is eventually reclaimed by a full collection.
func TestGCReclaimsUnreachableTable(t *testing.T) {
	vm := NewVM(Options{})

	tbl := vm.NewTable()
	vm.globals.SetLocal("t", Value{Type: TypeTable, ref: tbl})
	vm.Collect()
	before := vm.HeapStats().FreeCount

	vm.globals.Remove("t")
	vm.Collect()

	after := vm.HeapStats()
	assert.Greater(t, after.FreeCount, before)
}

// TestGCSurvivesCycle covers scenario/Testable Property for cyclic
// graphs: two tables referencing each other are still collectible by a
// tracing GC, unlike a naive refcount scheme.
func TestGCSurvivesCycle(t *testing.T) {
	vm := NewVM(Options{})

	a := vm.NewTable()
	b := vm.NewTable()
	require.NoError(t, a.Set(vm.InternString("b"), Value{Type: TypeTable, ref: b}))
	require.NoError(t, b.Set(vm.InternString("a"), Value{Type: TypeTable, ref: a}))

	vm.globals.SetLocal("a", Value{Type: TypeTable, ref: a})
	vm.Collect()

	vm.globals.Remove("a")
	statsBefore := vm.HeapStats()
	vm.Collect()
	statsAfter := vm.HeapStats()

	assert.Greater(t, statsAfter.FreeCount, statsBefore.FreeCount)
}

func TestWeakRefClearedAfterCollection(t *testing.T) {
	vm := NewVM(Options{})
	tbl := vm.NewTable()
	ref := vm.WeakRefFor(tbl)

	assert.NotEqual(t, Null, ref.Deref())

	vm.Collect()
	assert.Equal(t, Null, ref.Deref())
}

// TestGCFinalizerRunsExactlyOnce covers Testable Property 5b: an
// unreachable finalizable instance has its finalizer invoked exactly
// once, across however many collection cycles it takes to fully reclaim
// it (the GC may need a second sweep pass after the finalizer runs
// before the instance is actually unlinked).
func TestGCFinalizerRunsExactlyOnce(t *testing.T) {
	vm := NewVM(Options{})

	var finalizeCount int
	class := vm.NewClass("Resource", nil)
	require.NoError(t, class.SetFinalizer(FunctionValue(vm.NewNativeFunction("finalize", func(th *Thread, args []Value) ([]Value, *Exception) {
		finalizeCount++
		return nil, nil
	}))))
	class.Freeze()

	inst := vm.NewInstance(class)
	vm.globals.SetLocal("r", Value{Type: TypeInstance, ref: inst})
	vm.Collect()
	assert.Equal(t, 0, finalizeCount, "still reachable, must not finalize")

	vm.globals.Remove("r")
	vm.Collect()
	assert.Equal(t, 1, finalizeCount, "unreachable, finalizer must run once")

	vm.Collect()
	vm.Collect()
	assert.Equal(t, 1, finalizeCount, "further collections must not re-run the finalizer")
}

// TestGCFatalCycleSurfacesToCaller covers §4.2's fatal condition: two
// finalizable instances caught in a reference cycle, with no well-defined
// finalization order, must not be silently swept -- the host must learn
// about it through Collect's error return.
func TestGCFatalCycleSurfacesToCaller(t *testing.T) {
	vm := NewVM(Options{})

	class := vm.NewClass("Resource", nil)
	require.NoError(t, class.SetFinalizer(FunctionValue(vm.NewNativeFunction("finalize", func(th *Thread, args []Value) ([]Value, *Exception) {
		return nil, nil
	}))))
	class.Freeze()

	a := vm.NewInstance(class)
	b := vm.NewInstance(class)
	a.SetField("other", Value{Type: TypeInstance, ref: b})
	b.SetField("other", Value{Type: TypeInstance, ref: a})

	vm.globals.SetLocal("a", Value{Type: TypeInstance, ref: a})
	vm.Collect()
	vm.globals.Remove("a")

	err := vm.Collect()
	require.Error(t, err)
	var fatal *CrocFatalException
	require.ErrorAs(t, err, &fatal)

	assert.NotNil(t, vm.FatalError())
}

func TestGCBarrierShadesDuringMark(t *testing.T) {
	vm := NewVM(Options{})
	vm.gc.startCycle()

	child := vm.NewTable()
	vm.gc.shade(child)
	assert.Equal(t, gcGray, child.gcColor())
}
