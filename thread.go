package croc

// ThreadState is croc's coroutine state machine (§4.8).
type ThreadState int

const (
	ThreadInitial ThreadState = iota
	ThreadWaiting
	ThreadRunning
	ThreadSuspended
	ThreadDead
)

func (s ThreadState) String() string {
	switch s {
	case ThreadInitial:
		return "initial"
	case ThreadWaiting:
		return "waiting"
	case ThreadRunning:
		return "running"
	case ThreadSuspended:
		return "suspended"
	case ThreadDead:
		return "dead"
	default:
		return "unknown"
	}
}

// activationRecord is one call frame on a Thread's call stack (§4.7).
type activationRecord struct {
	fn        *Function
	pc        int
	baseReg   int // index into Thread.stack where this frame's registers begin
	numRets   int // expected result count requested by the caller, -1 for "all"
	retBase   int // where to place results in the caller's frame
	isTailCall bool
}

// tryRecord is a pending exception handler scope, pushed by OpTryBegin
// and popped on normal exit or when a throw unwinds past it (§4.6's
// exception-hierarchy dispatch, §4.8). A record is either a finally
// scope (hasFinally, resuming at finallyPC with the exception still
// live) or a catch scope (resuming at catchPC, with the caught value
// optionally bound into catchReg); a combined try/catch/finally compiles
// to two nested records, an inner catch-only one wrapped by an outer
// finally-only one.
type tryRecord struct {
	catchPC    int
	catchReg   int // stack-relative register catch(e) binds e into, -1 for none
	frameDepth int
	stackTop   int
	hasFinally bool
	finallyPC  int
}

// Thread is croc's coroutine/fiber object (§3.2, §4.8). It owns a value
// stack, a call stack of activation records, a try-record stack for
// exception unwinding, and the open-upvalue list described in
// upvalue.go. mainThread is the special Thread created with the VM that
// can never be resumed into (it is always the resumer).
type Thread struct {
	gcHeader

	vm    *VM
	name  *String
	state ThreadState

	stack    []Value
	frames   []activationRecord
	tries    []tryRecord
	results  []Value

	openUpvals *Upvalue

	nativeCallDepth int

	// exception is the in-flight exception being propagated, if any.
	exception *Exception

	hooksEnabled bool
	inHook       bool
	callHook     Value
	retHook      Value
	lineHook     Value
	hookDelay    int

	// coro is set for Threads backed by the extended (goroutine+channel)
	// coroutine implementation; nil means the portable (re-entrant
	// interpreter) implementation is used (§4.8).
	coro *extendedCoro

	// coroFunc is the function a coroutine Thread runs on its first
	// Resume, set at creation by NewCoroutine/NewExtendedCoroutine. The
	// main thread and Threads created via the bare NewThread (used as a
	// scratch exception-unwinding context in tests) leave this nil and
	// are never Resumed.
	coroFunc *Function
}

func newThread(vm *VM, name *String) *Thread {
	th := &Thread{
		vm:    vm,
		name:  name,
		state: ThreadInitial,
		stack: make([]Value, 0, 64),
	}
	vm.heap.track(th, th.approxSize())
	return th
}

// NewThread creates a new coroutine Thread in the Initial state, not yet
// bound to any function.
func (vm *VM) NewThread(name string) *Thread {
	th := newThread(vm, vm.intern([]byte(name)))
	vm.liveThreads = append(vm.liveThreads, th)
	return th
}

func (t *Thread) traceRefs(visit func(GCObject)) {
	if t.name != nil {
		visit(t.name)
	}
	for _, v := range t.stack {
		if obj := v.refObject(); obj != nil {
			visit(obj)
		}
	}
	for _, fr := range t.frames {
		if fr.fn != nil {
			visit(fr.fn)
		}
	}
	if t.coroFunc != nil {
		visit(t.coroFunc)
	}
	for uv := t.openUpvals; uv != nil; uv = uv.next {
		visit(uv)
	}
	for _, v := range [...]Value{t.callHook, t.retHook, t.lineHook} {
		if obj := v.refObject(); obj != nil {
			visit(obj)
		}
	}
}
func (t *Thread) acyclic() bool { return false }
func (t *Thread) approxSize() uintptr {
	return uintptr(128 + 16*len(t.stack) + 32*len(t.frames))
}

// State returns the coroutine's current state.
func (t *Thread) State() ThreadState { return t.state }

// Name returns the thread's diagnostic name.
func (t *Thread) Name() *String { return t.name }

// Exception returns the in-flight exception being propagated, if any.
func (t *Thread) Exception() *Exception { return t.exception }

// gcHeader embeds a plain non-finalizable object by default; Threads are
// never finalizable (only Instances with a class finalizer are), so no
// hasFinalizer/runFinalizer override is needed here.

func (t *Thread) pushFrame(fn *Function, baseReg, numRets, retBase int) {
	t.frames = append(t.frames, activationRecord{fn: fn, baseReg: baseReg, numRets: numRets, retBase: retBase})
}

func (t *Thread) popFrame() activationRecord {
	fr := t.frames[len(t.frames)-1]
	t.frames = t.frames[:len(t.frames)-1]
	closeUpvaluesFrom(t, fr.baseReg)
	return fr
}

func (t *Thread) currentFrame() *activationRecord {
	if len(t.frames) == 0 {
		return nil
	}
	return &t.frames[len(t.frames)-1]
}

func (t *Thread) pushTry(rec tryRecord) { t.tries = append(t.tries, rec) }

func (t *Thread) popTry() (tryRecord, bool) {
	if len(t.tries) == 0 {
		return tryRecord{}, false
	}
	rec := t.tries[len(t.tries)-1]
	t.tries = t.tries[:len(t.tries)-1]
	return rec, true
}

func (t *Thread) ensureStack(n int) {
	for len(t.stack) < n {
		t.stack = append(t.stack, Null)
	}
}
