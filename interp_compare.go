package croc

// Comparison opcode handlers (§4.6): identity (opIs), equality (opCmpEq,
// which falls back to opEquals metamethods), three-way ordering (opCmp3,
// backing opCmpLT/opCmpLE), and membership (opIn). Grounded on the same
// opcode-dispatch-then-type-switch shape as vm_op_alu.go.

func opIs(th *Thread, fr *activationRecord, ins Instruction) opResult {
	a := *reg(th, fr, ins.B)
	b := *reg(th, fr, ins.C)
	*reg(th, fr, ins.A) = Bool(a.Type == b.Type && a.num == b.num && sameRef(a, b))
	return contResult
}

func sameRef(a, b Value) bool {
	if a.refObject() == nil && b.refObject() == nil {
		return true
	}
	return a.refObject() == b.refObject()
}

func opCmpEq(th *Thread, fr *activationRecord, ins Instruction) opResult {
	a := *reg(th, fr, ins.B)
	b := *reg(th, fr, ins.C)
	if a.Type != b.Type {
		*reg(th, fr, ins.A) = False
		return contResult
	}
	if a.Equals(b) {
		*reg(th, fr, ins.A) = True
		return contResult
	}
	if mm, ok := th.vm.lookupMetamethod(a, "opEquals"); ok {
		res, exc := th.vm.CallFunction(th, mm, []Value{a, b}, 1)
		if exc != nil {
			return opResult{exc: exc}
		}
		if len(res) > 0 {
			*reg(th, fr, ins.A) = Bool(res[0].IsTruthy())
			return contResult
		}
	}
	*reg(th, fr, ins.A) = False
	return contResult
}

// compare3 returns -1/0/1 or an Exception if a and b are not orderable.
func compare3(th *Thread, a, b Value) (int, *Exception) {
	if isNumeric(a) && isNumeric(b) {
		x, y := toFloat(a), toFloat(b)
		switch {
		case x < y:
			return -1, nil
		case x > y:
			return 1, nil
		default:
			return 0, nil
		}
	}
	if a.Type == TypeString && b.Type == TypeString {
		sa := a.refObject().(*String).data
		sb := b.refObject().(*String).data
		n := len(sa)
		if len(sb) < n {
			n = len(sb)
		}
		for i := 0; i < n; i++ {
			if sa[i] != sb[i] {
				if sa[i] < sb[i] {
					return -1, nil
				}
				return 1, nil
			}
		}
		switch {
		case len(sa) < len(sb):
			return -1, nil
		case len(sa) > len(sb):
			return 1, nil
		default:
			return 0, nil
		}
	}
	if mm, ok := th.vm.lookupMetamethod(a, "opCmp"); ok {
		res, exc := th.vm.CallFunction(th, mm, []Value{a, b}, 1)
		if exc != nil {
			return 0, exc
		}
		if len(res) > 0 && res[0].Type == TypeInt {
			v := res[0].AsInt()
			switch {
			case v < 0:
				return -1, nil
			case v > 0:
				return 1, nil
			default:
				return 0, nil
			}
		}
	}
	return 0, th.vm.newError(th.vm.errClasses.TypeError, "cannot compare "+a.Type.String()+" and "+b.Type.String())
}

func opCmp3(th *Thread, fr *activationRecord, ins Instruction) opResult {
	c, exc := compare3(th, *reg(th, fr, ins.B), *reg(th, fr, ins.C))
	if exc != nil {
		return opResult{exc: exc}
	}
	*reg(th, fr, ins.A) = Int(int64(c))
	return contResult
}

func opCmpLT(th *Thread, fr *activationRecord, ins Instruction) opResult {
	c, exc := compare3(th, *reg(th, fr, ins.B), *reg(th, fr, ins.C))
	if exc != nil {
		return opResult{exc: exc}
	}
	*reg(th, fr, ins.A) = Bool(c < 0)
	return contResult
}

func opCmpLE(th *Thread, fr *activationRecord, ins Instruction) opResult {
	c, exc := compare3(th, *reg(th, fr, ins.B), *reg(th, fr, ins.C))
	if exc != nil {
		return opResult{exc: exc}
	}
	*reg(th, fr, ins.A) = Bool(c <= 0)
	return contResult
}

func opIn(th *Thread, fr *activationRecord, ins Instruction) opResult {
	needle := *reg(th, fr, ins.B)
	haystack := *reg(th, fr, ins.C)
	switch haystack.Type {
	case TypeTable:
		t := haystack.refObject().(*Table)
		_, found := t.data[needle]
		*reg(th, fr, ins.A) = Bool(found)
	case TypeNamespace:
		if needle.Type != TypeString {
			return opResult{exc: th.vm.newError(th.vm.errClasses.TypeError, "namespace membership requires a string key")}
		}
		ns := haystack.refObject().(*Namespace)
		_, found := ns.GetLocal(needle.refObject().(*String).GoString())
		*reg(th, fr, ins.A) = Bool(found)
	case TypeArray:
		arr := haystack.refObject().(*Array)
		found := false
		for _, v := range arr.data {
			if v.Equals(needle) {
				found = true
				break
			}
		}
		*reg(th, fr, ins.A) = Bool(found)
	case TypeString:
		if needle.Type != TypeString {
			return opResult{exc: th.vm.newError(th.vm.errClasses.TypeError, "string membership requires a string")}
		}
		hay := haystack.refObject().(*String).GoString()
		sub := needle.refObject().(*String).GoString()
		*reg(th, fr, ins.A) = Bool(containsSubstring(hay, sub))
	default:
		return opResult{exc: th.vm.newError(th.vm.errClasses.TypeError, "cannot test membership in "+haystack.Type.String())}
	}
	return contResult
}

func containsSubstring(hay, sub string) bool {
	if len(sub) == 0 {
		return true
	}
	if len(sub) > len(hay) {
		return false
	}
	for i := 0; i+len(sub) <= len(hay); i++ {
		if hay[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
