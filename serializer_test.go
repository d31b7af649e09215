package croc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeRoundTripPrimitives(t *testing.T) {
	vm := NewVM(Options{})

	for _, v := range []Value{Null, True, False, Int(42), Int(-7), Float(3.5), vm.InternString("hello")} {
		s := vm.NewSerializer()
		data, err := s.Serialize(v)
		require.NoError(t, err)

		d, err := vm.NewDeserializer(data)
		require.NoError(t, err)
		out, err := d.Deserialize()
		require.NoError(t, err)
		assert.True(t, v.Equals(out), "expected %v, got %v", v, out)
	}
}

func TestSerializeRoundTripTable(t *testing.T) {
	vm := NewVM(Options{})
	tbl := vm.NewTable()
	require.NoError(t, tbl.Set(vm.InternString("x"), Int(1)))
	require.NoError(t, tbl.Set(vm.InternString("y"), Int(2)))

	s := vm.NewSerializer()
	data, err := s.Serialize(Value{Type: TypeTable, ref: tbl})
	require.NoError(t, err)

	d, err := vm.NewDeserializer(data)
	require.NoError(t, err)
	out, err := d.Deserialize()
	require.NoError(t, err)

	outTbl := out.refObject().(*Table)
	assert.Equal(t, 2, outTbl.Len())
	assert.Equal(t, Int(1), outTbl.Get(vm.InternString("x")))
}

func TestSerializeRejectsForbiddenValue(t *testing.T) {
	vm := NewVM(Options{})
	fn := vm.NewNativeFunction("noop", func(th *Thread, args []Value) ([]Value, *Exception) { return nil, nil })

	s := vm.NewSerializer()
	_, err := s.Serialize(Value{Type: TypeFunction, ref: fn})
	assert.ErrorIs(t, err, ErrForbiddenValue)
}

func TestDeserializeRejectsBadSignature(t *testing.T) {
	vm := NewVM(Options{})
	_, err := vm.NewDeserializer([]byte("not a croc stream"))
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestSerializeArrayBackreferenceSelfCycle(t *testing.T) {
	vm := NewVM(Options{})
	arr := vm.NewArray(1)
	require.NoError(t, arr.Set(0, Value{Type: TypeArray, ref: arr}))

	s := vm.NewSerializer()
	data, err := s.Serialize(Value{Type: TypeArray, ref: arr})
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

// TestSerializeNegativeIntIsCompact guards against the stdlib-varint
// regression: a negative Int must encode as a handful of SLEB128 bytes,
// not as the near-maximum uint64 a raw two's-complement PutUvarint would
// produce.
func TestSerializeNegativeIntIsCompact(t *testing.T) {
	vm := NewVM(Options{})

	for _, v := range []Value{Int(-1), Int(-7), Int(-1234)} {
		s := vm.NewSerializer()
		data, err := s.Serialize(v)
		require.NoError(t, err)
		assert.LessOrEqualf(t, len(data), len(serialSignature)+4, "negative Int %v serialized to %d bytes, want a compact SLEB128 encoding", v, len(data))

		d, err := vm.NewDeserializer(data)
		require.NoError(t, err)
		out, err := d.Deserialize()
		require.NoError(t, err)
		assert.Equal(t, v, out)
	}
}

func TestSerializeMemblockOwnedRoundTripsBorrowedRejected(t *testing.T) {
	vm := NewVM(Options{})

	owned := vm.NewMemblock(3)
	require.NoError(t, owned.SetByte(0, 1))
	require.NoError(t, owned.SetByte(1, 2))
	require.NoError(t, owned.SetByte(2, 3))

	s := vm.NewSerializer()
	data, err := s.Serialize(Value{Type: TypeMemblock, ref: owned})
	require.NoError(t, err)

	d, err := vm.NewDeserializer(data)
	require.NoError(t, err)
	out, err := d.Deserialize()
	require.NoError(t, err)

	outM := out.refObject().(*Memblock)
	assert.Equal(t, owned.Bytes(), outM.Bytes())
	assert.True(t, outM.Owned())

	borrowed := vm.NewBorrowedMemblock([]byte{9, 9, 9})
	_, err = vm.NewSerializer().Serialize(Value{Type: TypeMemblock, ref: borrowed})
	assert.ErrorIs(t, err, ErrForbiddenValue)
}

// TestSerializeCustomInstanceRoundTrips covers §4.9's opSerialize/
// opDeserialize custom hooks: a class takes over its own instances' wire
// format instead of the generic field dump. The class itself is
// registered as a transient on both ends so the deserialized instance's
// opDeserialize can actually be found (a plain re-serialized Class
// carries only fields, never methods).
func TestSerializeCustomInstanceRoundTrips(t *testing.T) {
	vm := NewVM(Options{})

	point := vm.NewClass("Point", nil)
	require.NoError(t, point.AddMethod("opSerialize", FunctionValue(vm.NewNativeFunction("opSerialize", func(th *Thread, args []Value) ([]Value, *Exception) {
		self := args[0].refObject().(*Instance)
		emit := args[1]
		x, _ := self.GetField("x")
		y, _ := self.GetField("y")
		if _, exc := th.vm.CallFunction(th, emit, []Value{x}, 0); exc != nil {
			return nil, exc
		}
		if _, exc := th.vm.CallFunction(th, emit, []Value{y}, 0); exc != nil {
			return nil, exc
		}
		return nil, nil
	}))))
	require.NoError(t, point.AddMethod("opDeserialize", FunctionValue(vm.NewNativeFunction("opDeserialize", func(th *Thread, args []Value) ([]Value, *Exception) {
		self := args[0].refObject().(*Instance)
		pull := args[1]
		xs, exc := th.vm.CallFunction(th, pull, nil, 1)
		if exc != nil {
			return nil, exc
		}
		ys, exc := th.vm.CallFunction(th, pull, nil, 1)
		if exc != nil {
			return nil, exc
		}
		self.SetField("x", xs[0])
		self.SetField("y", ys[0])
		return nil, nil
	}))))
	point.Freeze()

	inst := vm.NewInstance(point)
	inst.SetField("x", Int(3))
	inst.SetField("y", Int(4))

	s := vm.NewSerializer()
	s.RegisterTransient(point, "Point")
	data, err := s.Serialize(Value{Type: TypeInstance, ref: inst})
	require.NoError(t, err)

	d, err := vm.NewDeserializer(data)
	require.NoError(t, err)
	d.RegisterTransient("Point", Value{Type: TypeClass, ref: point})
	out, err := d.Deserialize()
	require.NoError(t, err)

	outInst := out.refObject().(*Instance)
	x, _ := outInst.GetField("x")
	y, _ := outInst.GetField("y")
	assert.Equal(t, Int(3), x)
	assert.Equal(t, Int(4), y)
}

// TestSerializeTableSelfReferenceRoundTrips is scenario S6: T["self"] = T
// round-trips into a deserialized table whose "self" key points back to
// itself, not to a distinct copy.
func TestSerializeTableSelfReferenceRoundTrips(t *testing.T) {
	vm := NewVM(Options{})
	tbl := vm.NewTable()
	selfKey := vm.InternString("self")
	require.NoError(t, tbl.Set(selfKey, Value{Type: TypeTable, ref: tbl}))

	s := vm.NewSerializer()
	data, err := s.Serialize(Value{Type: TypeTable, ref: tbl})
	require.NoError(t, err)

	d, err := vm.NewDeserializer(data)
	require.NoError(t, err)
	out, err := d.Deserialize()
	require.NoError(t, err)

	outTbl := out.refObject().(*Table)
	self := outTbl.Get(selfKey)
	require.Equal(t, TypeTable, self.Type)
	assert.Same(t, outTbl, self.refObject().(*Table), "self-reference must resolve back to the same deserialized table, not a copy")
}
