package croc

import pkgerrors "github.com/pkg/errors"

// Exception is croc's in-language throwable object (§4.6), rooted at a
// Throwable/Exception/Error hierarchy described in errors_builtin.go.
// Every leaf shares this same field shape: a message, an optional cause
// (for scenario S4's wrap-and-rethrow chains), and a source location
// captured at throw time. This mirrors the uniform error-record shape
// the teacher's kernel code returns from its AML evaluator -- a single
// concrete error carrier rather than one Go type per failure kind.
type Exception struct {
	gcHeader

	vm    *VM
	class *Class // the croc-level exception class (TypeError, ValueError, ...)

	Message  string
	Cause    *Exception
	File     string
	Line     int

	// traceback holds one entry ("file:line in name") per frame, innermost
	// first, added only through appendFrame; throw does not call it, so
	// exceptions raised by the interpreter carry an empty traceback.
	traceback []string
}

func newException(vm *VM, class *Class, message string) *Exception {
	e := &Exception{vm: vm, class: class, Message: message}
	vm.heap.track(e, e.approxSize())
	return e
}

// NewException creates a new Exception of the given class with message.
func (vm *VM) NewException(class *Class, message string) *Exception {
	return newException(vm, class, message)
}

func (e *Exception) traceRefs(visit func(GCObject)) {
	if e.class != nil {
		visit(e.class)
	}
	if e.Cause != nil {
		visit(e.Cause)
	}
}
func (e *Exception) acyclic() bool       { return false }
func (e *Exception) approxSize() uintptr { return uintptr(64 + len(e.Message) + 24*len(e.traceback)) }

// Class returns the exception's croc-level class.
func (e *Exception) Class() *Class { return e.class }

// Error satisfies the Go error interface so Exceptions can cross host
// boundaries via errToGo/goToErr.
func (e *Exception) Error() string {
	if e.class != nil {
		return e.class.Name().GoString() + ": " + e.Message
	}
	return e.Message
}

// WithCause records cause as the exception's originating error,
// implementing scenario S4's wrap-and-rethrow chain; returns e for
// chaining.
func (e *Exception) WithCause(cause *Exception) *Exception {
	e.Cause = cause
	if e.vm != nil && e.vm.gc != nil && cause != nil {
		e.vm.gc.shade(cause)
	}
	return e
}

// Traceback returns the captured frame trace, innermost first.
func (e *Exception) Traceback() []string { return e.traceback }

func (e *Exception) appendFrame(entry string) {
	e.traceback = append(e.traceback, entry)
}

// throw begins unwinding th looking for a matching tryRecord. It pops
// frames and runs finally blocks along the way, and returns the program
// counter to resume at in the (new) topmost frame if a handler was found,
// or ok=false if the exception escapes the thread entirely.
//
// If th is already unwinding with an exception in flight (exc is thrown
// from inside a finally block reached while handling an earlier one),
// the earlier exception becomes exc's Cause (scenario S4, Testable
// Property 8) rather than being silently overwritten.
func throw(th *Thread, exc *Exception) (resumePC int, ok bool) {
	if th.exception != nil && th.exception != exc && exc.Cause == nil {
		exc.WithCause(th.exception)
	}
	th.exception = exc
	for {
		rec, hasTry := th.popTry()
		if !hasTry {
			return 0, false
		}
		if len(th.frames) > rec.frameDepth {
			th.frames = th.frames[:rec.frameDepth]
		}
		if len(th.stack) > rec.stackTop {
			th.stack = th.stack[:rec.stackTop]
		}
		if rec.hasFinally {
			// The finally block runs first; the interpreter loop re-enters
			// at finallyPC with the exception still live on th.exception so
			// a bare rethrow (OpFinallyEnd) at the end of finally re-raises
			// it.
			return rec.finallyPC, true
		}
		if rec.catchReg >= 0 {
			if fr := th.currentFrame(); fr != nil {
				th.stack[fr.baseReg+rec.catchReg] = Value{Type: TypeInstance, ref: th.vm.exceptionToInstance(exc)}
			}
		}
		th.exception = nil
		return rec.catchPC, true
	}
}

// errToGo adapts an *Exception (or nil) into a Go error for contexts
// (logging, host-facing APIs) that need the standard error interface,
// wrapping with pkg/errors so callers retain %+v stack traces at the
// host boundary the way the rest of the ambient error-handling stack
// does.
func errToGo(e *Exception) error {
	if e == nil {
		return nil
	}
	return pkgerrors.WithStack(e)
}

// goToErr wraps an arbitrary host-side Go error as a croc Exception of
// the given class, carrying the error's message (§4.6).
func (vm *VM) goToErr(class *Class, err error) *Exception {
	if err == nil {
		return nil
	}
	return newException(vm, class, err.Error())
}
