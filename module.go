package croc

import "bytes"

// moduleMagic is the distinct 4-byte tag a compiled module file begins
// with, ahead of the generic stream signature -- letting the loader
// reject, say, a bare serialized Table handed to LoadModule by mistake
// before it even gets to Deserializer.
var moduleMagic = [4]byte{'C', 'r', 'o', 'c'}

// Module pairs a module's dotted name with its top-level FuncDef, the
// unit §4.9 describes as being cached across loads when the FuncDef is
// Cacheable.
type Module struct {
	Name string
	Top  *FuncDef
}

// ErrBadModuleMagic is returned by LoadModule for input missing the
// module-file magic bytes.
var ErrBadModuleMagic = tableKeyError("module: bad or missing magic bytes")

// SaveModule serializes mod to a self-contained byte stream: module
// magic, the generic stream signature, the module name as a length-
// prefixed string, and then the top-level FuncDef's own bytecode
// encoding (FuncDefs are a forbidden value in the generic graph
// serializer, so they never go through Serializer.writeValue).
func (vm *VM) SaveModule(mod *Module) ([]byte, error) {
	s := vm.NewSerializer()
	s.buf.Reset()
	s.buf.Write(serialSignature[:])
	s.writeBytes([]byte(mod.Name))
	encodeFuncDef(s, mod.Top)
	body := append([]byte(nil), s.buf.Bytes()...)

	out := make([]byte, 0, len(moduleMagic)+len(body))
	out = append(out, moduleMagic[:]...)
	out = append(out, body...)
	return out, nil
}

// LoadModule reverses SaveModule. Because FuncDefs are forbidden values
// in the generic serializer (§4.9 excludes closures/code objects from
// the graph format, a Function closes over live Upvalues the stream
// format has no slot for), the top-level FuncDef here is carried out of
// band via a dedicated bytecode encoding rather than through
// Deserializer.readValue; see encodeFuncDef/decodeFuncDef below.
func (vm *VM) LoadModule(data []byte) (*Module, error) {
	if len(data) < len(moduleMagic) || !bytes.Equal(data[:len(moduleMagic)], moduleMagic[:]) {
		return nil, ErrBadModuleMagic
	}
	rest := data[len(moduleMagic):]
	if len(rest) < len(serialSignature) || !bytes.Equal(rest[:len(serialSignature)], serialSignature[:]) {
		return nil, ErrBadSignature
	}
	d, err := vm.NewDeserializer(rest)
	if err != nil {
		return nil, err
	}
	name, err := d.readBytes()
	if err != nil {
		return nil, err
	}
	fd, err := decodeFuncDef(vm, d)
	if err != nil {
		return nil, err
	}
	return &Module{Name: string(name), Top: fd}, nil
}

// encodeFuncDef/decodeFuncDef write out a FuncDef's code, constants and
// nested function table directly (not through the generic tagged-Value
// wire format, since Instructions aren't Values), the bytecode-specific
// half of the module format §4.9 calls for.
func encodeFuncDef(s *Serializer, fd *FuncDef) {
	s.writeBytes([]byte(fd.name.GoString()))
	s.writeUvarint(uint64(fd.numParams))
	if fd.isVararg {
		s.writeByte(1)
	} else {
		s.writeByte(0)
	}
	s.writeUvarint(uint64(fd.numRegs))
	s.writeUvarint(uint64(len(fd.upvals)))
	for _, u := range fd.upvals {
		name := []byte(nil)
		if u.Name != nil {
			name = u.Name.data
		}
		s.writeBytes(name)
		if u.FromUpval {
			s.writeByte(1)
		} else {
			s.writeByte(0)
		}
		s.writeUvarint(uint64(u.Index))
	}
	s.writeUvarint(uint64(len(fd.paramTypeMasks)))
	for _, mask := range fd.paramTypeMasks {
		s.writeUvarint(uint64(mask))
	}
	s.writeUvarint(uint64(len(fd.code)))
	for _, ins := range fd.code {
		s.writeUvarint(uint64(ins.Op))
		s.writeUvarint(uint64(uint32(ins.A)))
		s.writeUvarint(uint64(uint32(ins.B)))
		s.writeUvarint(uint64(uint32(ins.C)))
		s.writeUvarint(uint64(uint32(ins.Imm)))
		s.writeUvarint(uint64(uint32(ins.Line)))
	}
	s.writeUvarint(uint64(len(fd.constants)))
	for _, c := range fd.constants {
		_ = s.writeValue(c)
	}
	s.writeUvarint(uint64(len(fd.innerFuncs)))
	for _, inner := range fd.innerFuncs {
		encodeFuncDef(s, inner)
	}
}

// decodeFuncDef reads with the one Deserializer shared by the whole module,
// since SaveModule numbers back-references across all nested FuncDefs.
func decodeFuncDef(vm *VM, d *Deserializer) (*FuncDef, error) {
	name, err := d.readBytes()
	if err != nil {
		return nil, err
	}
	fd := vm.NewFuncDef(vm.intern(name))
	np, err := d.readUvarint()
	if err != nil {
		return nil, err
	}
	fd.numParams = int(np)
	vararg, err := d.readByte()
	if err != nil {
		return nil, err
	}
	fd.isVararg = vararg != 0
	nr, err := d.readUvarint()
	if err != nil {
		return nil, err
	}
	fd.numRegs = int(nr)
	nu, err := d.readUvarint()
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < nu; i++ {
		b, err := d.readBytes()
		if err != nil {
			return nil, err
		}
		fromUpval, err := d.readByte()
		if err != nil {
			return nil, err
		}
		idx, err := d.readUvarint()
		if err != nil {
			return nil, err
		}
		fd.upvals = append(fd.upvals, UpvalDesc{Name: vm.intern(b), FromUpval: fromUpval != 0, Index: int(idx)})
	}
	npm, err := d.readUvarint()
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < npm; i++ {
		mask, err := d.readUvarint()
		if err != nil {
			return nil, err
		}
		fd.paramTypeMasks = append(fd.paramTypeMasks, uint32(mask))
	}
	nc, err := d.readUvarint()
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < nc; i++ {
		op, err := d.readUvarint()
		if err != nil {
			return nil, err
		}
		a, err := d.readUvarint()
		if err != nil {
			return nil, err
		}
		b, err := d.readUvarint()
		if err != nil {
			return nil, err
		}
		c, err := d.readUvarint()
		if err != nil {
			return nil, err
		}
		imm, err := d.readUvarint()
		if err != nil {
			return nil, err
		}
		line, err := d.readUvarint()
		if err != nil {
			return nil, err
		}
		fd.code = append(fd.code, Instruction{
			Op: Opcode(op), A: int32(a), B: int32(b), C: int32(c), Imm: int32(imm), Line: int32(line),
		})
	}
	nk, err := d.readUvarint()
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < nk; i++ {
		v, err := d.Deserialize()
		if err != nil {
			return nil, err
		}
		fd.constants = append(fd.constants, v)
	}
	ni, err := d.readUvarint()
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < ni; i++ {
		inner, err := decodeFuncDef(vm, d)
		if err != nil {
			return nil, err
		}
		fd.innerFuncs = append(fd.innerFuncs, inner)
	}
	return fd, nil
}
