package croc

import "sync"

// Coroutines (§4.8) have two backing implementations, selected per
// Thread at creation time:
//
//   - portable: vm.Run (interp.go) simply re-enters th's activation
//     stack; resuming is just calling vm.Run(th) again. This works for
//     any Thread whose call stack is entirely script frames, and is
//     what newThread/NewThread produce by default.
//   - extended: a Thread that must yield out of a native call frame
//     (e.g. a host callback blocked mid-iteration) cannot be resumed by
//     simply re-entering the interpreter loop, since the Go call stack
//     itself is parked inside that native function. For that case the
//     Thread is backed by its own goroutine and a pair of unbuffered
//     channels standing in for the "host fiber" the embedding spec's
//     extended coroutine API describes -- resume sends on one channel
//     and blocks on the other, yield is the mirror image.
//
// Both share the same resume/yield semantics and the same LIFO
// resumer-chain discipline (scenario S3 / Testable Property 7): Resume
// blocks until the resumed Thread yields or finishes, so yielding always
// returns control to whichever Thread resumed it, not to whoever
// originally created the Thread. Resume does not restrict which Thread
// may resume another; it only records the resumer.
type extendedCoro struct {
	resumeCh chan []Value
	yieldCh  chan coroResult
	started  bool
}

type coroResult struct {
	values []Value
	exc    *Exception
	done   bool
}

// coroPool recycles the channel pair backing extended coroutines. Only the
// channels are reused: every extended coroutine still runs on a goroutine
// of its own, started by NewExtendedCoroutine, which exits when the
// coroutine's function returns.
type coroPool struct {
	mu   sync.Mutex
	idle []*extendedCoro
}

func newCoroPool() *coroPool { return &coroPool{} }

func (p *coroPool) get() *extendedCoro {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.idle); n > 0 {
		c := p.idle[n-1]
		p.idle = p.idle[:n-1]
		return c
	}
	return &extendedCoro{resumeCh: make(chan []Value), yieldCh: make(chan coroResult)}
}

func (p *coroPool) put(c *extendedCoro) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idle = append(p.idle, c)
}

// resumerStack records, per Thread, only the Thread that last resumed it
// (set by Resume, read by resumerOf). Yield does not consult it: control
// returns to the resumer because Resume blocks until the yield.
type resumerStack struct {
	mu    sync.Mutex
	stack map[*Thread]*Thread // thread -> who last resumed it
}

func newResumerStack() *resumerStack {
	return &resumerStack{stack: make(map[*Thread]*Thread)}
}

func (r *resumerStack) setResumer(th, resumer *Thread) {
	r.mu.Lock()
	r.stack[th] = resumer
	r.mu.Unlock()
}

func (r *resumerStack) resumerOf(th *Thread) *Thread {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stack[th]
}

// NewCoroutine creates a portable coroutine Thread (§4.8): fn's frame is
// not pushed until the first Resume, and the coroutine is limited to
// script frames for the duration of any yield (no native frame on its
// Go call stack may be parked across a yield, since resuming it just
// re-enters vm.Run on th's own saved activation-record stack).
func (vm *VM) NewCoroutine(name string, fn *Function) *Thread {
	th := vm.NewThread(name)
	th.coroFunc = fn
	return th
}

// NewExtendedCoroutine creates a coroutine Thread backed by a goroutine
// standing in for a host fiber (§4.8's extended variant): fn runs on its
// own goroutine from the first Resume, so a yield may occur underneath
// an arbitrary number of native call frames without unwinding them. The
// backing goroutine+channel pair is drawn from vm.coroPool and returned
// to it once fn returns.
func (vm *VM) NewExtendedCoroutine(name string, fn *Function) *Thread {
	th := vm.NewThread(name)
	th.coroFunc = fn
	c := vm.coroPool.get()
	th.coro = c
	go func() {
		args := <-c.resumeCh
		res, exc := vm.CallFunction(th, FunctionValue(fn), args, -1)
		c.yieldCh <- coroResult{values: res, exc: exc, done: true}
	}()
	return th
}

// Resume runs th (which must be Initial or Suspended) until it yields,
// returns, or throws, recording resumer as the Thread to return control
// to on the next Yield (§4.8).
func (vm *VM) Resume(resumer, th *Thread, args []Value) ([]Value, *Exception) {
	if th.state != ThreadInitial && th.state != ThreadSuspended {
		return nil, vm.newError(vm.errClasses.StateError, "cannot resume a thread in state "+th.state.String())
	}
	vm.resumers.setResumer(th, resumer)

	if th.coro != nil {
		th.coro.resumeCh <- args
		res := <-th.coro.yieldCh
		if res.done {
			th.state = ThreadDead
			vm.coroPool.put(th.coro)
		} else {
			th.state = ThreadSuspended
		}
		return res.values, res.exc
	}

	if th.state == ThreadInitial {
		if th.coroFunc == nil {
			return nil, vm.newError(vm.errClasses.StateError, "thread has no bound function to resume")
		}
		regsNeeded := len(args)
		if !th.coroFunc.isNative {
			regsNeeded = th.coroFunc.def.numRegs
		}
		base := len(th.stack)
		th.ensureStack(base + regsNeeded)
		copy(th.stack[base:], args)
		th.pushFrame(th.coroFunc, base, -1, base)
	} else {
		// Suspended portable thread: push args as the yield expression's
		// result on top of the current frame.
		if fr := th.currentFrame(); fr != nil {
			copy(th.stack[fr.baseReg:], args)
		}
	}
	res, exc := vm.Run(th)
	return res, exc
}

// Yield suspends th, handing values back to whichever Thread last
// resumed it, and blocks (for extended coroutines) until resumed again.
func (vm *VM) Yield(th *Thread, values []Value) ([]Value, *Exception) {
	if th.coro != nil {
		th.coro.yieldCh <- coroResult{values: values}
		return <-th.coro.resumeCh, nil
	}
	// Portable threads yield by unwinding back to Run's caller; the
	// OpYield handler already stashed results on th.results and flagged
	// ThreadSuspended, so this path exists for native-code-initiated
	// yields (a native function calling Yield directly).
	th.results = values
	th.state = ThreadSuspended
	return nil, nil
}
