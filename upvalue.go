package croc

// Upvalue is a captured-variable cell (§4.7). While open, it aliases a
// slot on some Thread's value stack (so writes by either the enclosing
// frame or the closure are mutually visible); Close copies the current
// value into the Upvalue itself and detaches it from the stack, the
// point at which the enclosing frame returns.
//
// Open upvalues are kept on their owning Thread in a singly-linked list
// sorted by descending stack index, the layout that lets closing "every
// upvalue at or above index i" stop at the first already-closed or
// below-i node instead of scanning the whole list.
type Upvalue struct {
	gcHeader

	thread *Thread
	index  int // stack slot, while open
	closed bool
	value  Value

	next *Upvalue // next-lower-index open upvalue on the same thread
}

func newUpvalue(vm *VM, th *Thread, index int) *Upvalue {
	uv := &Upvalue{thread: th, index: index}
	vm.heap.track(uv, uv.approxSize())
	return uv
}

func (u *Upvalue) traceRefs(visit func(GCObject)) {
	if u.closed {
		if obj := u.value.refObject(); obj != nil {
			visit(obj)
		}
		return
	}
	if u.thread != nil {
		visit(u.thread)
	}
}
func (u *Upvalue) acyclic() bool       { return false }
func (u *Upvalue) approxSize() uintptr { return 48 }

// Get reads the current value, from the stack slot if open or from the
// closed-over cell if closed.
func (u *Upvalue) Get() Value {
	if u.closed {
		return u.value
	}
	return u.thread.stack[u.index]
}

// Set writes value to the stack slot (if open) or the closed cell.
func (u *Upvalue) Set(vm *VM, value Value) {
	if u.closed {
		u.value = value
	} else {
		u.thread.stack[u.index] = value
	}
	if vm != nil && vm.gc != nil {
		vm.gc.barrier(value)
	}
}

// close detaches the Upvalue from the stack, copying its current value
// in. Called when the owning frame returns or a block exits.
func (u *Upvalue) close() {
	if u.closed {
		return
	}
	u.value = u.thread.stack[u.index]
	u.closed = true
	u.thread = nil
}

// findOrCreateUpvalue returns the existing open Upvalue for stack index
// idx on th, or creates and links in a new one, preserving the
// descending-index sort order of th.openUpvals.
func findOrCreateUpvalue(vm *VM, th *Thread, idx int) *Upvalue {
	var prev *Upvalue
	cur := th.openUpvals
	for cur != nil && cur.index > idx {
		prev = cur
		cur = cur.next
	}
	if cur != nil && cur.index == idx {
		return cur
	}
	uv := newUpvalue(vm, th, idx)
	uv.next = cur
	if prev == nil {
		th.openUpvals = uv
	} else {
		prev.next = uv
	}
	return uv
}

// closeUpvaluesFrom closes every open upvalue on th with index >= from,
// called when a frame returns or a scope exits (§4.7).
func closeUpvaluesFrom(th *Thread, from int) {
	var prev *Upvalue
	cur := th.openUpvals
	for cur != nil && cur.index >= from {
		next := cur.next
		cur.close()
		cur = next
	}
	if prev == nil {
		th.openUpvals = cur
	} else {
		prev.next = cur
	}
}
