package croc

// FuncDef is the immutable, cacheable compiled form of a script function
// (§3.2, §4.7): its bytecode, constant pool, and upvalue-name table. A
// single FuncDef may be shared by many closures (Functions) created over
// its lifetime, and by many modules if explicitly cached -- mirroring how
// the teacher's opcode table (opcode_table.go/parser_opcode_table.go) is
// built once and then indexed repeatedly by every executed instruction.
type FuncDef struct {
	gcHeader

	vm   *VM
	name *String

	code      []Instruction
	constants []Value

	numParams int
	isVararg  bool
	numRegs   int
	upvals    []UpvalDesc

	// paramTypeMasks holds, per parameter (by positional index), a bitset
	// of the ValueTypes the call contract accepts -- 0 (or no entry)
	// means "no restriction" (§4.6 "Parameter type masks gate calls").
	paramTypeMasks []uint32

	// innerFuncs holds nested function literals defined textually inside
	// this one, instantiated into closures at OpClosure time.
	innerFuncs []*FuncDef

	// locationFile/Line are debug/traceback info only.
	locationFile string
	locationLine int

	cacheable bool
}

func newFuncDef(vm *VM, name *String) *FuncDef {
	fd := &FuncDef{vm: vm, name: name}
	vm.heap.track(fd, fd.approxSize())
	return fd
}

// NewFuncDef begins building a FuncDef named name (use Null-name for
// anonymous functions); the caller fills in Code/Constants/etc. before
// the FuncDef is reachable from any live Function.
func (vm *VM) NewFuncDef(name *String) *FuncDef { return newFuncDef(vm, name) }

func (fd *FuncDef) traceRefs(visit func(GCObject)) {
	if fd.name != nil {
		visit(fd.name)
	}
	for _, c := range fd.constants {
		if obj := c.refObject(); obj != nil {
			visit(obj)
		}
	}
	for _, u := range fd.upvals {
		if u.Name != nil {
			visit(u.Name)
		}
	}
	for _, inner := range fd.innerFuncs {
		visit(inner)
	}
}
func (fd *FuncDef) acyclic() bool { return false }
func (fd *FuncDef) approxSize() uintptr {
	return uintptr(96 + 16*len(fd.code) + 16*len(fd.constants) + 8*len(fd.upvals))
}

// Name returns the function's declared name, or nil if anonymous.
func (fd *FuncDef) Name() *String { return fd.name }

// NumParams/IsVararg/NumRegs describe the calling convention §4.7
// specifies for activation record setup.
func (fd *FuncDef) NumParams() int { return fd.numParams }
func (fd *FuncDef) IsVararg() bool { return fd.isVararg }
func (fd *FuncDef) NumRegs() int   { return fd.numRegs }

// NumUpvals returns the number of upvalues this FuncDef's closures must
// capture at creation time.
func (fd *FuncDef) NumUpvals() int { return len(fd.upvals) }

// Upvals returns the capture descriptors OpClosure consults to build each
// closure's upvalue slice, in order.
func (fd *FuncDef) Upvals() []UpvalDesc { return fd.upvals }

// Location reports the source file/line the def was compiled from, for
// tracebacks and hook Line events.
func (fd *FuncDef) Location() (file string, line int) { return fd.locationFile, fd.locationLine }

// Cacheable reports the def's cacheable flag. Nothing in this package sets
// the flag, and closing the def never reuses an earlier Function.
func (fd *FuncDef) Cacheable() bool { return fd.cacheable }

// UpvalDesc describes how a closure created from this FuncDef captures
// one of its upvalues (§3.2): FromUpval selects the enclosing closure's
// own upvalue at Index instead of a local register of the enclosing
// frame -- the distinction a closure nested more than one level deep
// needs so it can reach past its immediate parent to a grandparent's
// local.
type UpvalDesc struct {
	Name      *String
	FromUpval bool
	Index     int
}

// ParamTypeMask returns the accepted-type bitset for parameter i (see
// TypeMask), or 0 ("no restriction") if none was set.
func (fd *FuncDef) ParamTypeMask(i int) uint32 {
	if i < 0 || i >= len(fd.paramTypeMasks) {
		return 0
	}
	return fd.paramTypeMasks[i]
}

// SetParamTypeMask restricts parameter i to the types set in mask. Called
// while building a FuncDef, before it is reachable from any live
// Function.
func (fd *FuncDef) SetParamTypeMask(i int, mask uint32) {
	for len(fd.paramTypeMasks) <= i {
		fd.paramTypeMasks = append(fd.paramTypeMasks, 0)
	}
	fd.paramTypeMasks[i] = mask
}

// TypeMask ORs together the bit for each listed ValueType, the bitset
// format SetParamTypeMask/ParamTypeMask and the call contract's
// per-parameter gate use.
func TypeMask(types ...ValueType) uint32 {
	var m uint32
	for _, t := range types {
		m |= 1 << uint(t)
	}
	return m
}
