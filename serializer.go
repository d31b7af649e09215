package croc

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
)

// serialSignature is the 5-byte header every croc serialization stream
// begins with, letting a reader reject garbage input before attempting
// to decode anything (§4.9). Grounded on the teacher's stream_reader.go,
// which reads a similar small fixed preamble off an io.Reader before
// trusting the rest of the stream.
var serialSignature = [5]byte{'c', 'r', 'o', 'c', 1}

// serialTag distinguishes the wire encoding of each Value, one byte per
// value. Reference types additionally use tagBackref to point at an
// already-written object instead of re-encoding it.
type serialTag byte

const (
	tagNull serialTag = iota
	tagFalse
	tagTrue
	tagInt
	tagFloat
	tagString
	tagTable
	tagNamespace
	tagArray
	tagClass
	tagInstance
	tagBackref
	tagTransient
	tagMemblock
	tagCustomInstance
)

// ErrForbiddenValue is returned when the serializer encounters a value
// §4.9 explicitly forbids: a Function, FuncDef, Thread, WeakRef, borrowed
// Memblock, or NativeObj with no registered transient substitute.
var ErrForbiddenValue = tableKeyError("serializer: value cannot be serialized")

// Serializer writes a Value graph to a byte stream, assigning
// back-reference IDs to reference objects as it writes them (not after
// the fact), so a self-referential or otherwise cyclic graph streams in
// one pass without a second fix-up pass over the output.
type Serializer struct {
	vm   *VM
	buf  bytes.Buffer
	ids  map[GCObject]uint32
	next uint32

	// transients substitutes values (typically native resources) with a
	// named placeholder at write time, resolved back through the
	// matching name in a Deserializer's own transients map (§4.9).
	transients map[GCObject]string
}

// NewSerializer creates a Serializer for vm, with name->value transient
// substitutions pre-registered by the caller via RegisterTransient.
func (vm *VM) NewSerializer() *Serializer {
	return &Serializer{vm: vm, ids: make(map[GCObject]uint32), transients: make(map[GCObject]string)}
}

// RegisterTransient marks obj to be written as a named placeholder
// instead of its real content.
func (s *Serializer) RegisterTransient(obj GCObject, name string) {
	s.transients[obj] = name
}

func (s *Serializer) writeByte(b byte) { s.buf.WriteByte(b) }

func (s *Serializer) writeUvarint(v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	s.buf.Write(tmp[:n])
}

func (s *Serializer) writeBytes(b []byte) {
	s.writeUvarint(uint64(len(b)))
	s.buf.Write(b)
}

// writeSleb128 writes v in the signed, sign-extension-terminated varint
// format §4.9 describes: 7 data bits per byte, the high bit (0x80) a
// continuation flag, and the final byte's 0x40 bit deciding whether the
// decoded value gets sign-extended. This is distinct from the
// zig-zag-over-unsigned-varint scheme stdlib's encoding/binary offers --
// no general-purpose varint library produces this exact bit layout, so
// it's hand-rolled here; writeUvarint (stdlib-backed) remains the framing
// format for lengths and back-reference IDs, which carry no sign.
func (s *Serializer) writeSleb128(v int64) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		signBitSet := b&0x40 != 0
		if (v == 0 && !signBitSet) || (v == -1 && signBitSet) {
			s.writeByte(b)
			return
		}
		s.writeByte(b | 0x80)
	}
}

// Serialize writes v (and, transitively, everything it references) to
// the stream, preceded by the signature header.
func (s *Serializer) Serialize(v Value) ([]byte, error) {
	s.buf.Reset()
	s.buf.Write(serialSignature[:])
	if err := s.writeValue(v); err != nil {
		return nil, err
	}
	return append([]byte(nil), s.buf.Bytes()...), nil
}

func (s *Serializer) writeValue(v Value) error {
	if obj := v.refObject(); obj != nil {
		if name, ok := s.transients[obj]; ok {
			s.writeByte(byte(tagTransient))
			s.writeBytes([]byte(name))
			return nil
		}
	}
	switch v.Type {
	case TypeNull:
		s.writeByte(byte(tagNull))
	case TypeBool:
		if v.AsBool() {
			s.writeByte(byte(tagTrue))
		} else {
			s.writeByte(byte(tagFalse))
		}
	case TypeInt:
		s.writeByte(byte(tagInt))
		s.writeSleb128(v.AsInt())
	case TypeFloat:
		s.writeByte(byte(tagFloat))
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(v.AsFloat()))
		s.buf.Write(tmp[:])
	case TypeString:
		return s.writeRef(v.refObject(), tagString, func() error {
			s.writeBytes(v.refObject().(*String).data)
			return nil
		})
	case TypeTable:
		return s.writeRef(v.refObject(), tagTable, func() error { return s.writeTable(v.refObject().(*Table)) })
	case TypeNamespace:
		return s.writeRef(v.refObject(), tagNamespace, func() error { return s.writeNamespace(v.refObject().(*Namespace)) })
	case TypeArray:
		return s.writeRef(v.refObject(), tagArray, func() error { return s.writeArray(v.refObject().(*Array)) })
	case TypeClass:
		return s.writeRef(v.refObject(), tagClass, func() error { return s.writeClass(v.refObject().(*Class)) })
	case TypeInstance:
		inst := v.refObject().(*Instance)
		if _, ok := inst.class.findMethod("opSerialize"); ok {
			return s.writeCustomInstance(inst)
		}
		return s.writeRef(inst, tagInstance, func() error { return s.writeInstance(inst) })
	case TypeMemblock:
		return s.writeMemblock(v.refObject().(*Memblock))
	default:
		return ErrForbiddenValue
	}
	return nil
}

// writeMemblock serializes an owned Memblock's raw bytes (§4.9: "Owned
// memblocks are freely serializable"); a borrowed block wraps host memory
// the VM doesn't own and has nothing meaningful to write, so it stays a
// forbidden value.
func (s *Serializer) writeMemblock(m *Memblock) error {
	if !m.owned {
		return ErrForbiddenValue
	}
	return s.writeRef(m, tagMemblock, func() error {
		s.writeUvarint(uint64(m.itemSz))
		s.writeBytes(m.data)
		return nil
	})
}

// writeCustomInstance dispatches to an instance's opSerialize hook
// (§4.9 "Custom hooks") instead of dumping its fields directly. self is
// passed explicitly as the first positional argument, the same calling
// convention opEquals/opApply metamethod dispatch already uses since
// there's no bound-method object model; the hook emits values through a
// native callback, which are buffered and then written length-prefixed
// so the deserializer can read them back before calling opDeserialize.
func (s *Serializer) writeCustomInstance(inst *Instance) error {
	return s.writeRef(inst, tagCustomInstance, func() error {
		if err := s.writeValue(Value{Type: TypeClass, ref: inst.class}); err != nil {
			return err
		}
		var emitted []Value
		emit := s.vm.NewNativeFunction("emit", func(th *Thread, args []Value) ([]Value, *Exception) {
			if len(args) > 0 {
				emitted = append(emitted, args[0])
			}
			return nil, nil
		})
		mm, _ := inst.class.findMethod("opSerialize")
		self := Value{Type: TypeInstance, ref: inst}
		if _, exc := s.vm.CallFunction(s.vm.mainThread, mm, []Value{self, {Type: TypeFunction, ref: emit}}, 0); exc != nil {
			return exc
		}
		s.writeUvarint(uint64(len(emitted)))
		for _, ev := range emitted {
			if err := s.writeValue(ev); err != nil {
				return err
			}
		}
		return nil
	})
}

// writeRef assigns obj a back-reference ID the first time it's seen
// (before body is written, so a cycle through obj re-emits tagBackref
// immediately rather than recursing forever), or substitutes a
// registered transient placeholder.
func (s *Serializer) writeRef(obj GCObject, tag serialTag, body func() error) error {
	if name, ok := s.transients[obj]; ok {
		s.writeByte(byte(tagTransient))
		s.writeBytes([]byte(name))
		return nil
	}
	if id, ok := s.ids[obj]; ok {
		s.writeByte(byte(tagBackref))
		s.writeUvarint(uint64(id))
		return nil
	}
	id := s.next
	s.next++
	s.ids[obj] = id
	s.writeByte(byte(tag))
	s.writeUvarint(uint64(id))
	return body()
}

func (s *Serializer) writeTable(t *Table) error {
	s.writeUvarint(uint64(len(t.data)))
	for k, v := range t.data {
		if err := s.writeValue(k); err != nil {
			return err
		}
		if err := s.writeValue(v); err != nil {
			return err
		}
	}
	return nil
}

func (s *Serializer) writeNamespace(n *Namespace) error {
	s.writeBytes([]byte(n.name))
	s.writeUvarint(uint64(len(n.data)))
	for k, v := range n.data {
		s.writeBytes([]byte(k))
		if err := s.writeValue(v); err != nil {
			return err
		}
	}
	return nil
}

func (s *Serializer) writeArray(a *Array) error {
	s.writeUvarint(uint64(len(a.data)))
	for _, v := range a.data {
		if err := s.writeValue(v); err != nil {
			return err
		}
	}
	return nil
}

func (s *Serializer) writeClass(c *Class) error {
	s.writeBytes(c.name.data)
	s.writeUvarint(uint64(len(c.fields)))
	for k, v := range c.fields {
		s.writeBytes([]byte(k))
		if err := s.writeValue(v); err != nil {
			return err
		}
	}
	return nil
}

func (s *Serializer) writeInstance(o *Instance) error {
	if err := s.writeValue(Value{Type: TypeClass, ref: o.class}); err != nil {
		return err
	}
	s.writeUvarint(uint64(len(o.fields)))
	for k, v := range o.fields {
		s.writeBytes([]byte(k))
		if err := s.writeValue(v); err != nil {
			return err
		}
	}
	return nil
}

// Deserializer reads back a stream written by Serializer, resolving
// back-references against objects it has already materialized.
type Deserializer struct {
	vm  *VM
	r   *bytes.Reader
	byID map[uint32]Value
	transients map[string]Value
}

func (vm *VM) NewDeserializer(data []byte) (*Deserializer, error) {
	if len(data) < len(serialSignature) || !bytes.Equal(data[:len(serialSignature)], serialSignature[:]) {
		return nil, ErrBadSignature
	}
	return &Deserializer{
		vm:         vm,
		r:          bytes.NewReader(data[len(serialSignature):]),
		byID:       make(map[uint32]Value),
		transients: make(map[string]Value),
	}, nil
}

// ErrBadSignature is returned for input missing croc's 5-byte stream
// header.
var ErrBadSignature = tableKeyError("serializer: bad or missing signature")

// RegisterTransient supplies the value to substitute for a placeholder
// named name, the deserializing side of Serializer.RegisterTransient.
func (d *Deserializer) RegisterTransient(name string, v Value) { d.transients[name] = v }

func (d *Deserializer) readByte() (byte, error) { return d.r.ReadByte() }

func (d *Deserializer) readUvarint() (uint64, error) { return binary.ReadUvarint(d.r) }

// readSleb128 reverses writeSleb128.
func (d *Deserializer) readSleb128() (int64, error) {
	var result int64
	var shift uint
	var b byte
	for {
		var err error
		b, err = d.r.ReadByte()
		if err != nil {
			return 0, err
		}
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
	}
	if shift < 64 && b&0x40 != 0 {
		result |= -1 << shift
	}
	return result, nil
}

func (d *Deserializer) readBytes() ([]byte, error) {
	n, err := d.readUvarint()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Deserialize reads one Value (and its transitive graph) from the
// stream.
func (d *Deserializer) Deserialize() (Value, error) {
	tagB, err := d.readByte()
	if err != nil {
		return Null, err
	}
	return d.readValue(serialTag(tagB))
}

func (d *Deserializer) readValue(tag serialTag) (Value, error) {
	switch tag {
	case tagNull:
		return Null, nil
	case tagFalse:
		return False, nil
	case tagTrue:
		return True, nil
	case tagInt:
		n, err := d.readSleb128()
		if err != nil {
			return Null, err
		}
		return Int(n), nil
	case tagFloat:
		var tmp [8]byte
		if _, err := io.ReadFull(d.r, tmp[:]); err != nil {
			return Null, err
		}
		return Float(math.Float64frombits(binary.LittleEndian.Uint64(tmp[:]))), nil
	case tagBackref:
		id, err := d.readUvarint()
		if err != nil {
			return Null, err
		}
		v, ok := d.byID[uint32(id)]
		if !ok {
			return Null, ErrBadBackref
		}
		return v, nil
	case tagTransient:
		name, err := d.readBytes()
		if err != nil {
			return Null, err
		}
		v, ok := d.transients[string(name)]
		if !ok {
			return Null, ErrUnresolvedTransient
		}
		return v, nil
	case tagString:
		id, err := d.readUvarint()
		if err != nil {
			return Null, err
		}
		data, err := d.readBytes()
		if err != nil {
			return Null, err
		}
		v := d.vm.InternString(string(data))
		d.byID[uint32(id)] = v
		return v, nil
	case tagTable:
		return d.readTable()
	case tagNamespace:
		return d.readNamespace()
	case tagArray:
		return d.readArray()
	case tagClass:
		return d.readClass()
	case tagInstance:
		return d.readInstance()
	case tagMemblock:
		return d.readMemblock()
	case tagCustomInstance:
		return d.readCustomInstance()
	default:
		return Null, ErrUnknownTag
	}
}

// ErrBadBackref/ErrUnresolvedTransient/ErrUnknownTag are the
// deserializer's stream-corruption error sentinels.
var (
	ErrBadBackref          = tableKeyError("serializer: back-reference to unknown object")
	ErrUnresolvedTransient = tableKeyError("serializer: unresolved transient")
	ErrUnknownTag          = tableKeyError("serializer: unknown tag in stream")
)

func (d *Deserializer) readID() (uint32, error) {
	id, err := d.readUvarint()
	return uint32(id), err
}

func (d *Deserializer) readTable() (Value, error) {
	id, err := d.readID()
	if err != nil {
		return Null, err
	}
	t := d.vm.NewTable()
	v := Value{Type: TypeTable, ref: t}
	d.byID[id] = v
	n, err := d.readUvarint()
	if err != nil {
		return Null, err
	}
	for i := uint64(0); i < n; i++ {
		k, err := d.Deserialize()
		if err != nil {
			return Null, err
		}
		val, err := d.Deserialize()
		if err != nil {
			return Null, err
		}
		t.Set(k, val)
	}
	return v, nil
}

func (d *Deserializer) readNamespace() (Value, error) {
	id, err := d.readID()
	if err != nil {
		return Null, err
	}
	name, err := d.readBytes()
	if err != nil {
		return Null, err
	}
	ns := d.vm.NewNamespace(string(name), nil)
	v := Value{Type: TypeNamespace, ref: ns}
	d.byID[id] = v
	n, err := d.readUvarint()
	if err != nil {
		return Null, err
	}
	for i := uint64(0); i < n; i++ {
		k, err := d.readBytes()
		if err != nil {
			return Null, err
		}
		val, err := d.Deserialize()
		if err != nil {
			return Null, err
		}
		ns.SetLocal(string(k), val)
	}
	return v, nil
}

func (d *Deserializer) readArray() (Value, error) {
	id, err := d.readID()
	if err != nil {
		return Null, err
	}
	n, err := d.readUvarint()
	if err != nil {
		return Null, err
	}
	a := d.vm.NewArray(int(n))
	v := Value{Type: TypeArray, ref: a}
	d.byID[id] = v
	for i := uint64(0); i < n; i++ {
		val, err := d.Deserialize()
		if err != nil {
			return Null, err
		}
		a.Set(int64(i), val)
	}
	return v, nil
}

func (d *Deserializer) readClass() (Value, error) {
	id, err := d.readID()
	if err != nil {
		return Null, err
	}
	name, err := d.readBytes()
	if err != nil {
		return Null, err
	}
	c := d.vm.NewClass(string(name), nil)
	v := Value{Type: TypeClass, ref: c}
	d.byID[id] = v
	n, err := d.readUvarint()
	if err != nil {
		return Null, err
	}
	for i := uint64(0); i < n; i++ {
		k, err := d.readBytes()
		if err != nil {
			return Null, err
		}
		val, err := d.Deserialize()
		if err != nil {
			return Null, err
		}
		c.fields[string(k)] = val
	}
	return v, nil
}

func (d *Deserializer) readInstance() (Value, error) {
	id, err := d.readID()
	if err != nil {
		return Null, err
	}
	classTag, err := d.readByte()
	if err != nil {
		return Null, err
	}
	classVal, err := d.readValue(serialTag(classTag))
	if err != nil {
		return Null, err
	}
	inst := d.vm.NewInstance(classVal.refObject().(*Class))
	v := Value{Type: TypeInstance, ref: inst}
	d.byID[id] = v
	n, err := d.readUvarint()
	if err != nil {
		return Null, err
	}
	for i := uint64(0); i < n; i++ {
		k, err := d.readBytes()
		if err != nil {
			return Null, err
		}
		val, err := d.Deserialize()
		if err != nil {
			return Null, err
		}
		inst.SetField(string(k), val)
	}
	return v, nil
}

func (d *Deserializer) readMemblock() (Value, error) {
	id, err := d.readID()
	if err != nil {
		return Null, err
	}
	itemSz, err := d.readUvarint()
	if err != nil {
		return Null, err
	}
	data, err := d.readBytes()
	if err != nil {
		return Null, err
	}
	m := d.vm.NewMemblock(len(data))
	copy(m.data, data)
	m.itemSz = int(itemSz)
	v := Value{Type: TypeMemblock, ref: m}
	d.byID[id] = v
	return v, nil
}

// readCustomInstance reverses writeCustomInstance: every value the
// opSerialize hook emitted is read up front into values, then handed
// back one at a time to opDeserialize through a native "pull" callback
// (Null once exhausted), the calling convention mirroring
// writeCustomInstance's "emit".
func (d *Deserializer) readCustomInstance() (Value, error) {
	id, err := d.readID()
	if err != nil {
		return Null, err
	}
	classTag, err := d.readByte()
	if err != nil {
		return Null, err
	}
	classVal, err := d.readValue(serialTag(classTag))
	if err != nil {
		return Null, err
	}
	class := classVal.refObject().(*Class)
	inst := d.vm.NewInstance(class)
	v := Value{Type: TypeInstance, ref: inst}
	d.byID[id] = v

	n, err := d.readUvarint()
	if err != nil {
		return Null, err
	}
	values := make([]Value, 0, n)
	for i := uint64(0); i < n; i++ {
		val, err := d.Deserialize()
		if err != nil {
			return Null, err
		}
		values = append(values, val)
	}

	if mm, ok := class.findMethod("opDeserialize"); ok {
		idx := 0
		pull := d.vm.NewNativeFunction("pull", func(th *Thread, args []Value) ([]Value, *Exception) {
			if idx >= len(values) {
				return []Value{Null}, nil
			}
			val := values[idx]
			idx++
			return []Value{val}, nil
		})
		self := Value{Type: TypeInstance, ref: inst}
		if _, exc := d.vm.CallFunction(d.vm.mainThread, mm, []Value{self, {Type: TypeFunction, ref: pull}}, 0); exc != nil {
			return Null, exc
		}
	}
	return v, nil
}
