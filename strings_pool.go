package croc

import "sync"

// String is croc's immutable, interned byte-string object (§3.2). At most
// one live String exists for any given byte content within a VM -- the
// intern table below enforces that invariant, giving Testable Property 3
// (pointer-equal Strings for equal content) for free.
type String struct {
	gcHeader

	data []byte
	hash uint64
	// runeLen is the precomputed UTF-8 code-point length; -1 if the
	// content has not been validated/measured yet (lazily computed).
	runeLen int
}

func (s *String) traceRefs(func(GCObject)) {} // strings hold no references
func (s *String) acyclic() bool              { return true }
func (s *String) approxSize() uintptr        { return uintptr(32 + len(s.data)) }

// Bytes returns the raw byte content of the string.
func (s *String) Bytes() []byte { return s.data }

// GoString returns a copy of the string content as a Go string.
func (s *String) GoString() string { return string(s.data) }

// Len returns the code-point length of the string, computing and caching
// it on first use.
func (s *String) Len() int {
	if s.runeLen < 0 {
		n := 0
		for range string(s.data) {
			n++
		}
		s.runeLen = n
	}
	return s.runeLen
}

// stringPool is the VM-local intern table described in §4.3: it maps byte
// content to the unique String instance, and holds only weak ownership --
// the GC's sweep phase removes dead entries (see gc.go's sweep loop,
// which calls stringPool.forget for each garbage String it frees).
type stringPool struct {
	mu      sync.Mutex
	byBytes map[string]*String
}

func newStringPool() *stringPool {
	return &stringPool{byBytes: make(map[string]*String)}
}

// intern returns the canonical String for data, allocating a new one via
// heap if none exists yet.
func (vm *VM) intern(data []byte) *String {
	key := string(data)

	vm.strings.mu.Lock()
	if s, ok := vm.strings.byBytes[key]; ok {
		vm.strings.mu.Unlock()
		return s
	}
	vm.strings.mu.Unlock()

	s := &String{data: []byte(key), hash: fnv1a(data), runeLen: -1}
	vm.heap.track(s, s.approxSize())

	vm.strings.mu.Lock()
	// Re-check: another goroutine-free VM is single-writer, so this is
	// only a defensive re-check against reentrancy from a native call.
	if existing, ok := vm.strings.byBytes[key]; ok {
		vm.strings.mu.Unlock()
		return existing
	}
	vm.strings.byBytes[key] = s
	vm.strings.mu.Unlock()
	return s
}

// InternString returns (creating if necessary) the canonical String value
// for s.
func (vm *VM) InternString(s string) Value {
	str := vm.intern([]byte(s))
	return Value{Type: TypeString, ref: str}
}

// forget removes the pool entry of a String that did not survive the
// most recent collection; called by GC.sweepStep once the interned String
// itself has been unlinked.
func (p *stringPool) forget(s *String) {
	p.mu.Lock()
	delete(p.byBytes, string(s.data))
	p.mu.Unlock()
}

// fnv1a is the "obvious" byte-hash used to precompute String.hash.
func fnv1a(data []byte) uint64 {
	const (
		offset = 14695981039346656037
		prime  = 1099511628211
	)
	h := uint64(offset)
	for _, b := range data {
		h ^= uint64(b)
		h *= prime
	}
	return h
}

// WeakRef is the only way one reference object may weakly point to
// another (§3.2). It is uniqued per referent by the VM's weakRefTable: a
// second WeakRefFor call for the same referent returns the existing
// WeakRef rather than allocating a new one.
type WeakRef struct {
	gcHeader

	referent GCObject
}

func (w *WeakRef) traceRefs(func(GCObject)) {} // weak: deliberately not traced
func (w *WeakRef) acyclic() bool              { return true }
func (w *WeakRef) approxSize() uintptr        { return 24 }

// Deref returns the referent as a Value, or Null if the referent has been
// collected (Testable Property 5d / scenario S5).
func (w *WeakRef) Deref() Value {
	if w.referent == nil {
		return Null
	}
	return refValue(w.referent)
}

// weakRefTable maps each WeakRef to its referent (§4.3); WeakRefFor finds
// an existing WeakRef by scanning for the referent.
type weakRefTable struct {
	mu         sync.Mutex
	byReferent map[*WeakRef]GCObject
}

func newWeakRefTable() *weakRefTable {
	return &weakRefTable{byReferent: make(map[*WeakRef]GCObject)}
}

// WeakRefFor returns the (possibly newly created) WeakRef for referent.
func (vm *VM) WeakRefFor(referent GCObject) *WeakRef {
	vm.weakRefTable.mu.Lock()
	for ref, target := range vm.weakRefTable.byReferent {
		if target == referent {
			vm.weakRefTable.mu.Unlock()
			return ref
		}
	}
	vm.weakRefTable.mu.Unlock()

	ref := &WeakRef{referent: referent}
	vm.heap.track(ref, ref.approxSize())

	vm.weakRefTable.mu.Lock()
	vm.weakRefTable.byReferent[ref] = referent
	vm.weakRefTable.mu.Unlock()
	return ref
}

// refValue wraps any GCObject back into a Value carrying the right Type
// tag, used by Deref and by the interpreter wherever a raw GCObject needs
// to re-enter script-visible value space.
func refValue(obj GCObject) Value {
	switch o := obj.(type) {
	case *String:
		return Value{Type: TypeString, ref: o}
	case *WeakRef:
		return Value{Type: TypeWeakRef, ref: o}
	case *Table:
		return Value{Type: TypeTable, ref: o}
	case *Namespace:
		return Value{Type: TypeNamespace, ref: o}
	case *Array:
		return Value{Type: TypeArray, ref: o}
	case *Memblock:
		return Value{Type: TypeMemblock, ref: o}
	case *Function:
		return Value{Type: TypeFunction, ref: o}
	case *FuncDef:
		return Value{Type: TypeFuncDef, ref: o}
	case *Class:
		return Value{Type: TypeClass, ref: o}
	case *Instance:
		return Value{Type: TypeInstance, ref: o}
	case *Thread:
		return Value{Type: TypeThread, ref: o}
	default:
		return Value{Type: TypeNativeObj, ref: o}
	}
}
