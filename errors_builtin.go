package croc

// errorClasses holds the VM's built-in exception class hierarchy
// (§4.6): Throwable at the root, Exception and Error as its two
// branches (catchable-by-default vs. meant-to-be-fatal), and a set of
// named leaves under Exception used throughout the standard library
// surface. Every leaf shares Exception's field shape; what varies is
// only which class a given failure is tagged with; see exception.go.
type errorClasses struct {
	Throwable *Class
	Exception *Class
	Error     *Class

	TypeError          *Class
	ValueError         *Class
	RangeError         *Class
	FieldError         *Class
	BoundsError        *Class
	ImportError        *Class
	IOError            *Class
	EOFError           *Class
	StateError         *Class
	SyntaxError        *Class
	LookupError        *Class
	NotImplementedError *Class

	// AssertError/ApiError are the fatal Error-branch leaves: AssertError
	// for failed sanity checks, ApiError for host embedding misuse.
	AssertError *Class
	ApiError    *Class
}

func buildErrorClasses(vm *VM) *errorClasses {
	mk := func(name string, parent *Class) *Class {
		c := vm.NewClass(name, parent)
		c.Freeze()
		return c
	}

	ec := &errorClasses{}
	ec.Throwable = mk("Throwable", nil)
	ec.Exception = mk("Exception", ec.Throwable)
	ec.Error = mk("Error", ec.Throwable)

	ec.TypeError = mk("TypeError", ec.Exception)
	ec.ValueError = mk("ValueError", ec.Exception)
	ec.RangeError = mk("RangeError", ec.Exception)
	ec.FieldError = mk("FieldError", ec.Exception)
	ec.BoundsError = mk("BoundsError", ec.Exception)
	ec.ImportError = mk("ImportError", ec.Exception)
	ec.IOError = mk("IOError", ec.Exception)
	ec.EOFError = mk("EOFError", ec.IOError)
	ec.StateError = mk("StateError", ec.Exception)
	ec.SyntaxError = mk("SyntaxError", ec.Exception)
	ec.LookupError = mk("LookupError", ec.Exception)
	ec.NotImplementedError = mk("NotImplementedError", ec.Exception)

	ec.AssertError = mk("AssertError", ec.Error)
	ec.ApiError = mk("ApiError", ec.Error)

	return ec
}

// Throw allocates and immediately throws an Exception of the named
// builtin class on th, returning the (resumePC, ok) result of the same
// throw() unwinder exception.go defines.
func (vm *VM) Throw(th *Thread, class *Class, message string) (int, bool) {
	exc := vm.NewException(class, message)
	exc.File, exc.Line = th.currentLocation()
	return throw(th, exc)
}

// currentLocation reports the source file/line of the thread's topmost
// script frame, used to stamp newly thrown exceptions (§4.6).
func (t *Thread) currentLocation() (string, int) {
	fr := t.currentFrame()
	if fr == nil || fr.fn == nil || fr.fn.isNative || fr.fn.def == nil {
		return "", 0
	}
	if fr.pc >= 0 && fr.pc < len(fr.fn.def.code) {
		return fr.fn.def.locationFile, int(fr.fn.def.code[fr.pc].Line)
	}
	return fr.fn.def.locationFile, 0
}
