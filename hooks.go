package croc

// Hooks hold §4.8's debug-hook functions. The interpreter invokes only the
// line hook, once before every instruction it executes, with no delay
// throttling; fireCallHook and fireReturnHook exist but nothing calls
// them, so call and return hooks are stored without firing. Hooks are
// disabled for the duration of a hook function's own execution
// (th.inHook) so a hook cannot recursively re-trigger itself.

// SetLineHook installs fn as th's line hook, called with the source line
// before every instruction; Null disables it.
func (vm *VM) SetLineHook(th *Thread, fn Value) {
	th.lineHook = fn
	th.hooksEnabled = th.hooksEnabled || fn.Type != TypeNull
	vm.gc.barrier(fn)
}

// SetCallHook stores fn as th's call-entry hook. The interpreter does not
// call fireCallHook, so the hook does not fire.
func (vm *VM) SetCallHook(th *Thread, fn Value) {
	th.callHook = fn
	th.hooksEnabled = th.hooksEnabled || fn.Type != TypeNull
	vm.gc.barrier(fn)
}

// SetReturnHook stores fn as th's frame-return hook. fireReturnHook would
// pass it a flag telling tail-call returns from ordinary ones, but the
// interpreter does not call fireReturnHook, so the hook does not fire.
func (vm *VM) SetReturnHook(th *Thread, fn Value) {
	th.retHook = fn
	th.hooksEnabled = th.hooksEnabled || fn.Type != TypeNull
	vm.gc.barrier(fn)
}

// SetHookDelay stores delay on th. Nothing reads it: the line hook fires
// before every instruction whatever the delay.
func (vm *VM) SetHookDelay(th *Thread, delay int) { th.hookDelay = delay }

func (vm *VM) fireCallHook(th *Thread, fn *Function) {
	if !th.hooksEnabled || th.inHook || th.callHook.Type == TypeNull {
		return
	}
	th.inHook = true
	defer func() { th.inHook = false }()
	name := ""
	if fn.name != nil {
		name = fn.name.GoString()
	}
	_, _ = vm.CallFunction(th, th.callHook, []Value{vm.InternString(name)}, 0)
}

func (vm *VM) fireReturnHook(th *Thread, isTail bool) {
	if !th.hooksEnabled || th.inHook || th.retHook.Type == TypeNull {
		return
	}
	th.inHook = true
	defer func() { th.inHook = false }()
	_, _ = vm.CallFunction(th, th.retHook, []Value{Bool(isTail)}, 0)
}
