package croc

// Arithmetic opcode handlers (§4.6), grounded on the teacher's
// vm_op_alu.go dispatch-by-opcode-then-by-operand-type shape: each
// handler first tries the fast int/float path, then falls back to the
// left operand's metamethod (opAdd/opSub/etc.) and, failing that, the
// right operand's reversed one (opAdd_r/opSub_r/etc.) (§4.6).

type arithOp int

const (
	opAdd arithOp = iota
	opSub
	opMul
	opDiv
	opMod
)

func (op arithOp) metamethodName() string {
	switch op {
	case opAdd:
		return "opAdd"
	case opSub:
		return "opSub"
	case opMul:
		return "opMul"
	case opDiv:
		return "opDiv"
	case opMod:
		return "opMod"
	}
	return ""
}

func arithHandler(op arithOp) opHandler {
	return func(th *Thread, fr *activationRecord, ins Instruction) opResult {
		a := *reg(th, fr, ins.B)
		b := *reg(th, fr, ins.C)
		v, exc := doArith(th, op, a, b)
		if exc != nil {
			return opResult{exc: exc}
		}
		*reg(th, fr, ins.A) = v
		th.vm.gc.barrier(v)
		return contResult
	}
}

func doArith(th *Thread, op arithOp, a, b Value) (Value, *Exception) {
	if a.Type == TypeInt && b.Type == TypeInt {
		x, y := a.AsInt(), b.AsInt()
		switch op {
		case opAdd:
			return Int(x + y), nil
		case opSub:
			return Int(x - y), nil
		case opMul:
			return Int(x * y), nil
		case opDiv:
			if y == 0 {
				return Null, th.vm.newError(th.vm.errClasses.ValueError, "integer division by zero")
			}
			return Int(x / y), nil
		case opMod:
			if y == 0 {
				return Null, th.vm.newError(th.vm.errClasses.ValueError, "integer modulo by zero")
			}
			return Int(x % y), nil
		}
	}
	if isNumeric(a) && isNumeric(b) {
		x, y := toFloat(a), toFloat(b)
		switch op {
		case opAdd:
			return Float(x + y), nil
		case opSub:
			return Float(x - y), nil
		case opMul:
			return Float(x * y), nil
		case opDiv:
			return Float(x / y), nil
		case opMod:
			return Float(floatMod(x, y)), nil
		}
	}
	if mm, ok := th.vm.lookupMetamethod(a, op.metamethodName()); ok {
		res, exc := th.vm.CallFunction(th, mm, []Value{a, b}, 1)
		if exc != nil {
			return Null, exc
		}
		if len(res) > 0 {
			return res[0], nil
		}
		return Null, nil
	}
	if mm, ok := th.vm.lookupMetamethod(b, op.metamethodName()+"_r"); ok {
		res, exc := th.vm.CallFunction(th, mm, []Value{b, a}, 1)
		if exc != nil {
			return Null, exc
		}
		if len(res) > 0 {
			return res[0], nil
		}
		return Null, nil
	}
	return Null, th.vm.newError(th.vm.errClasses.TypeError, "cannot perform arithmetic on "+a.Type.String()+" and "+b.Type.String())
}

func isNumeric(v Value) bool { return v.Type == TypeInt || v.Type == TypeFloat }

func toFloat(v Value) float64 {
	if v.Type == TypeInt {
		return float64(v.AsInt())
	}
	return v.AsFloat()
}

func floatMod(x, y float64) float64 {
	m := x - y*float64(int64(x/y))
	return m
}

func opNeg(th *Thread, fr *activationRecord, ins Instruction) opResult {
	v := *reg(th, fr, ins.B)
	switch v.Type {
	case TypeInt:
		*reg(th, fr, ins.A) = Int(-v.AsInt())
	case TypeFloat:
		*reg(th, fr, ins.A) = Float(-v.AsFloat())
	default:
		if mm, ok := th.vm.lookupMetamethod(v, "opNeg"); ok {
			res, exc := th.vm.CallFunction(th, mm, []Value{v}, 1)
			if exc != nil {
				return opResult{exc: exc}
			}
			if len(res) > 0 {
				*reg(th, fr, ins.A) = res[0]
			}
			return contResult
		}
		return opResult{exc: th.vm.newError(th.vm.errClasses.TypeError, "cannot negate "+v.Type.String())}
	}
	return contResult
}

func opNot(th *Thread, fr *activationRecord, ins Instruction) opResult {
	v := *reg(th, fr, ins.B)
	*reg(th, fr, ins.A) = Bool(v.IsFalsy())
	return contResult
}

func opLen(th *Thread, fr *activationRecord, ins Instruction) opResult {
	v := *reg(th, fr, ins.B)
	switch v.Type {
	case TypeString:
		*reg(th, fr, ins.A) = Int(int64(v.refObject().(*String).Len()))
	case TypeArray:
		*reg(th, fr, ins.A) = Int(int64(v.refObject().(*Array).Len()))
	case TypeTable:
		*reg(th, fr, ins.A) = Int(int64(v.refObject().(*Table).Len()))
	case TypeMemblock:
		*reg(th, fr, ins.A) = Int(int64(v.refObject().(*Memblock).Len()))
	default:
		if mm, ok := th.vm.lookupMetamethod(v, "opLength"); ok {
			res, exc := th.vm.CallFunction(th, mm, []Value{v}, 1)
			if exc != nil {
				return opResult{exc: exc}
			}
			if len(res) > 0 {
				*reg(th, fr, ins.A) = res[0]
			}
			return contResult
		}
		return opResult{exc: th.vm.newError(th.vm.errClasses.TypeError, "cannot take length of "+v.Type.String())}
	}
	return contResult
}

func opConcat(th *Thread, fr *activationRecord, ins Instruction) opResult {
	a := *reg(th, fr, ins.B)
	b := *reg(th, fr, ins.C)
	if a.Type == TypeString && b.Type == TypeString {
		sa := a.refObject().(*String)
		sb := b.refObject().(*String)
		buf := make([]byte, 0, len(sa.data)+len(sb.data))
		buf = append(buf, sa.data...)
		buf = append(buf, sb.data...)
		*reg(th, fr, ins.A) = th.vm.InternString(string(buf))
		return contResult
	}
	if mm, ok := th.vm.lookupMetamethod(a, "opCat"); ok {
		res, exc := th.vm.CallFunction(th, mm, []Value{a, b}, 1)
		if exc != nil {
			return opResult{exc: exc}
		}
		if len(res) > 0 {
			*reg(th, fr, ins.A) = res[0]
		}
		return contResult
	}
	return opResult{exc: th.vm.newError(th.vm.errClasses.TypeError, "cannot concatenate "+a.Type.String()+" and "+b.Type.String())}
}
