package croc

// Memblock is a raw, untyped byte buffer (§3.2). It comes in two flavors:
// owned (allocated and freed by the VM's heap, fully serializable) and
// borrowed (wrapping host memory the VM does not own). A borrowed block
// is a forbidden value in the serializer (§4.9) since there is nothing
// meaningful to write -- the bytes belong to, and will outlive or
// outdie, something outside croc's heap entirely.
type Memblock struct {
	gcHeader

	vm     *VM
	data   []byte
	owned  bool
	itemSz int
}

func newMemblock(vm *VM, size int) *Memblock {
	m := &Memblock{vm: vm, data: make([]byte, size), owned: true, itemSz: 1}
	vm.heap.track(m, m.approxSize())
	return m
}

// NewMemblock allocates a new owned Memblock of size bytes, zero-filled.
func (vm *VM) NewMemblock(size int) *Memblock { return newMemblock(vm, size) }

// NewBorrowedMemblock wraps host-owned data without copying it. The VM
// never frees data and never reports it in heap accounting beyond the
// small header, since ownership -- and thus lifetime -- belongs to the
// host.
func (vm *VM) NewBorrowedMemblock(data []byte) *Memblock {
	m := &Memblock{vm: vm, data: data, owned: false, itemSz: 1}
	vm.heap.track(m, 32)
	return m
}

func (m *Memblock) traceRefs(func(GCObject)) {} // raw bytes, no references
func (m *Memblock) acyclic() bool              { return true }
func (m *Memblock) approxSize() uintptr {
	if !m.owned {
		return 32
	}
	return uintptr(32 + len(m.data))
}

// Owned reports whether this Memblock owns (and may resize/free) its
// backing storage.
func (m *Memblock) Owned() bool { return m.owned }

// Len returns the number of bytes in the block.
func (m *Memblock) Len() int { return len(m.data) }

// Bytes returns the raw backing storage. Callers must not retain it past
// a resize of an owned block.
func (m *Memblock) Bytes() []byte { return m.data }

// ErrMemblockBounds is returned for an out-of-range byte offset.
var ErrMemblockBounds = tableKeyError("memblock: index out of bounds")

// ErrMemblockBorrowed is returned by mutating-length operations on a
// borrowed block, which the VM has no right to resize.
var ErrMemblockBorrowed = tableKeyError("memblock: cannot resize a borrowed block")

func (m *Memblock) normalizeIndex(i int64) (int, bool) {
	n := int64(len(m.data))
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return 0, false
	}
	return int(i), true
}

// GetByte returns the byte at index i (negative counts from the end).
func (m *Memblock) GetByte(i int64) (byte, error) {
	idx, ok := m.normalizeIndex(i)
	if !ok {
		return 0, ErrMemblockBounds
	}
	return m.data[idx], nil
}

// SetByte stores v at index i.
func (m *Memblock) SetByte(i int64, v byte) error {
	idx, ok := m.normalizeIndex(i)
	if !ok {
		return ErrMemblockBounds
	}
	m.data[idx] = v
	return nil
}

// Resize changes the length of an owned block to newLen, zero-extending
// on growth. Borrowed blocks cannot be resized.
func (m *Memblock) Resize(newLen int) error {
	if !m.owned {
		return ErrMemblockBorrowed
	}
	old := len(m.data)
	if newLen <= old {
		m.data = m.data[:newLen]
		return nil
	}
	grown := make([]byte, newLen)
	copy(grown, m.data)
	m.data = grown
	return nil
}

// Slice returns a new owned Memblock containing a copy of [from, to).
func (m *Memblock) Slice(from, to int64) (*Memblock, error) {
	fi, ok := m.normalizeIndex(from)
	if !ok && from != int64(len(m.data)) {
		return nil, ErrMemblockBounds
	}
	if from == int64(len(m.data)) {
		fi = len(m.data)
	}
	ti, ok := m.normalizeIndex(to)
	if !ok {
		if to == int64(len(m.data)) {
			ti = len(m.data)
		} else {
			return nil, ErrMemblockBounds
		}
	}
	if ti < fi {
		return nil, ErrMemblockBounds
	}
	out := newMemblock(m.vm, ti-fi)
	copy(out.data, m.data[fi:ti])
	return out, nil
}
