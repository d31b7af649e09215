package croc

// Load/store and indexing opcode handlers (§4.6's index contract),
// grounded on the teacher's vm_load_store.go / vm_convert.go register
// and constant-pool access patterns.

func opLoadConst(th *Thread, fr *activationRecord, ins Instruction) opResult {
	*reg(th, fr, ins.A) = fr.fn.def.constants[ins.Imm]
	return contResult
}

func opLoadNull(th *Thread, fr *activationRecord, ins Instruction) opResult {
	*reg(th, fr, ins.A) = Null
	return contResult
}

func opLoadBool(th *Thread, fr *activationRecord, ins Instruction) opResult {
	*reg(th, fr, ins.A) = Bool(ins.Imm != 0)
	return contResult
}

func opMove(th *Thread, fr *activationRecord, ins Instruction) opResult {
	*reg(th, fr, ins.A) = *reg(th, fr, ins.B)
	return contResult
}

func opGetUpval(th *Thread, fr *activationRecord, ins Instruction) opResult {
	*reg(th, fr, ins.A) = fr.fn.upvals[ins.Imm].Get()
	return contResult
}

func opSetUpval(th *Thread, fr *activationRecord, ins Instruction) opResult {
	fr.fn.upvals[ins.Imm].Set(th.vm, *reg(th, fr, ins.B))
	return contResult
}

func opNewTable(th *Thread, fr *activationRecord, ins Instruction) opResult {
	*reg(th, fr, ins.A) = Value{Type: TypeTable, ref: th.vm.NewTable()}
	return contResult
}

func opNewArray(th *Thread, fr *activationRecord, ins Instruction) opResult {
	*reg(th, fr, ins.A) = Value{Type: TypeArray, ref: th.vm.NewArray(int(ins.Imm))}
	return contResult
}

func opNewClass(th *Thread, fr *activationRecord, ins Instruction) opResult {
	name := fr.fn.def.constants[ins.Imm].refObject().(*String)
	var parent *Class
	if ins.C >= 0 {
		parent = reg(th, fr, ins.C).refObject().(*Class)
	}
	*reg(th, fr, ins.A) = Value{Type: TypeClass, ref: th.vm.NewClass(name.GoString(), parent)}
	return contResult
}

// getIndexed implements the unified index contract: Array/Memblock
// index by integer with bounds errors, Table indexes with silent-null
// misses, Namespace indexes by string with field errors, and everything
// else falls back to an opIndex metamethod.
func getIndexed(th *Thread, container, key Value) (Value, *Exception) {
	switch container.Type {
	case TypeTable:
		return container.refObject().(*Table).Get(key), nil
	case TypeNamespace:
		if key.Type != TypeString {
			return Null, th.vm.newError(th.vm.errClasses.TypeError, "namespace index must be a string")
		}
		ns := container.refObject().(*Namespace)
		v, ok := ns.Lookup(key.refObject().(*String).GoString())
		if !ok {
			return Null, th.vm.newError(th.vm.errClasses.FieldError, "no such field: "+key.refObject().(*String).GoString())
		}
		return v, nil
	case TypeArray:
		if key.Type != TypeInt {
			return Null, th.vm.newError(th.vm.errClasses.TypeError, "array index must be an int")
		}
		v, err := container.refObject().(*Array).Get(key.AsInt())
		if err != nil {
			return Null, th.vm.newError(th.vm.errClasses.BoundsError, err.Error())
		}
		return v, nil
	case TypeMemblock:
		if key.Type != TypeInt {
			return Null, th.vm.newError(th.vm.errClasses.TypeError, "memblock index must be an int")
		}
		b, err := container.refObject().(*Memblock).GetByte(key.AsInt())
		if err != nil {
			return Null, th.vm.newError(th.vm.errClasses.BoundsError, err.Error())
		}
		return Int(int64(b)), nil
	case TypeInstance:
		if key.Type != TypeString {
			return Null, th.vm.newError(th.vm.errClasses.TypeError, "instance field name must be a string")
		}
		inst := container.refObject().(*Instance)
		v, ok := inst.GetField(key.refObject().(*String).GoString())
		if !ok {
			return Null, th.vm.newError(th.vm.errClasses.FieldError, "no such field: "+key.refObject().(*String).GoString())
		}
		return v, nil
	case TypeString:
		if key.Type != TypeInt {
			return Null, th.vm.newError(th.vm.errClasses.TypeError, "string index must be an int")
		}
		s := container.refObject().(*String)
		idx := key.AsInt()
		if idx < 0 {
			idx += int64(len(s.data))
		}
		if idx < 0 || idx >= int64(len(s.data)) {
			return Null, th.vm.newError(th.vm.errClasses.BoundsError, "string: index out of bounds")
		}
		return th.vm.InternString(string(s.data[idx : idx+1])), nil
	default:
		if mm, ok := th.vm.lookupMetamethod(container, "opIndex"); ok {
			res, exc := th.vm.CallFunction(th, mm, []Value{container, key}, 1)
			if exc != nil {
				return Null, exc
			}
			if len(res) > 0 {
				return res[0], nil
			}
			return Null, nil
		}
		return Null, th.vm.newError(th.vm.errClasses.TypeError, "cannot index a "+container.Type.String())
	}
}

func setIndexed(th *Thread, container, key, value Value) *Exception {
	switch container.Type {
	case TypeTable:
		if err := container.refObject().(*Table).Set(key, value); err != nil {
			return th.vm.newError(th.vm.errClasses.ValueError, err.Error())
		}
		return nil
	case TypeNamespace:
		if key.Type != TypeString {
			return th.vm.newError(th.vm.errClasses.TypeError, "namespace index must be a string")
		}
		container.refObject().(*Namespace).SetLocal(key.refObject().(*String).GoString(), value)
		return nil
	case TypeArray:
		if key.Type != TypeInt {
			return th.vm.newError(th.vm.errClasses.TypeError, "array index must be an int")
		}
		if err := container.refObject().(*Array).Set(key.AsInt(), value); err != nil {
			return th.vm.newError(th.vm.errClasses.BoundsError, err.Error())
		}
		return nil
	case TypeMemblock:
		if key.Type != TypeInt || value.Type != TypeInt {
			return th.vm.newError(th.vm.errClasses.TypeError, "memblock index/value must be ints")
		}
		if err := container.refObject().(*Memblock).SetByte(key.AsInt(), byte(value.AsInt())); err != nil {
			return th.vm.newError(th.vm.errClasses.BoundsError, err.Error())
		}
		return nil
	case TypeInstance:
		if key.Type != TypeString {
			return th.vm.newError(th.vm.errClasses.TypeError, "instance field name must be a string")
		}
		container.refObject().(*Instance).SetField(key.refObject().(*String).GoString(), value)
		return nil
	default:
		if mm, ok := th.vm.lookupMetamethod(container, "opIndexAssign"); ok {
			_, exc := th.vm.CallFunction(th, mm, []Value{container, key, value}, 0)
			return exc
		}
		return th.vm.newError(th.vm.errClasses.TypeError, "cannot index-assign a "+container.Type.String())
	}
}

func opGetIndex(th *Thread, fr *activationRecord, ins Instruction) opResult {
	v, exc := getIndexed(th, *reg(th, fr, ins.B), *reg(th, fr, ins.C))
	if exc != nil {
		return opResult{exc: exc}
	}
	*reg(th, fr, ins.A) = v
	return contResult
}

func opSetIndex(th *Thread, fr *activationRecord, ins Instruction) opResult {
	exc := setIndexed(th, *reg(th, fr, ins.A), *reg(th, fr, ins.B), *reg(th, fr, ins.C))
	if exc != nil {
		return opResult{exc: exc}
	}
	th.vm.gc.barrier(*reg(th, fr, ins.C))
	return contResult
}

func opGetField(th *Thread, fr *activationRecord, ins Instruction) opResult {
	key := fr.fn.def.constants[ins.Imm]
	v, exc := getIndexed(th, *reg(th, fr, ins.B), key)
	if exc != nil {
		return opResult{exc: exc}
	}
	*reg(th, fr, ins.A) = v
	return contResult
}

func opSetField(th *Thread, fr *activationRecord, ins Instruction) opResult {
	key := fr.fn.def.constants[ins.Imm]
	exc := setIndexed(th, *reg(th, fr, ins.A), key, *reg(th, fr, ins.B))
	if exc != nil {
		return opResult{exc: exc}
	}
	return contResult
}

func opGetGlobal(th *Thread, fr *activationRecord, ins Instruction) opResult {
	key := fr.fn.def.constants[ins.Imm].refObject().(*String)
	v, ok := th.vm.globals.Lookup(key.GoString())
	if !ok {
		return opResult{exc: th.vm.newError(th.vm.errClasses.FieldError, "no such global: "+key.GoString())}
	}
	*reg(th, fr, ins.A) = v
	return contResult
}

func opSetGlobal(th *Thread, fr *activationRecord, ins Instruction) opResult {
	key := fr.fn.def.constants[ins.Imm].refObject().(*String)
	th.vm.globals.SetLocal(key.GoString(), *reg(th, fr, ins.B))
	return contResult
}

func opJump(th *Thread, fr *activationRecord, ins Instruction) opResult {
	return opResult{pcJump: int(ins.Imm)}
}

func opJumpTrue(th *Thread, fr *activationRecord, ins Instruction) opResult {
	if reg(th, fr, ins.A).IsTruthy() {
		return opResult{pcJump: int(ins.Imm)}
	}
	return contResult
}

func opJumpFalse(th *Thread, fr *activationRecord, ins Instruction) opResult {
	if reg(th, fr, ins.A).IsFalsy() {
		return opResult{pcJump: int(ins.Imm)}
	}
	return contResult
}
