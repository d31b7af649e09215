package croc

// Instance is a live object stamped from a Class (§3.2). Its own fields
// and hiddenFields maps start as copies of the class's (and its
// ancestors') field initializers, then diverge independently per
// instance -- exactly the prototype-to-instance copy step the teacher's
// AML interpreter performs when an Object's child scope is instantiated
// from a named Method/Field template in obj_tree.go.
type Instance struct {
	gcHeader

	vm           *VM
	class        *Class
	fields       map[string]Value
	hiddenFields map[string]Value
	finalized    bool
}

func newInstance(vm *VM, class *Class) *Instance {
	inst := &Instance{
		vm:           vm,
		class:        class,
		fields:       make(map[string]Value),
		hiddenFields: make(map[string]Value),
	}
	for cls := class; cls != nil; cls = cls.parent {
		for k, v := range cls.fields {
			if _, exists := inst.fields[k]; !exists {
				inst.fields[k] = v
			}
		}
		for k, v := range cls.hiddenFields {
			if _, exists := inst.hiddenFields[k]; !exists {
				inst.hiddenFields[k] = v
			}
		}
	}
	vm.heap.track(inst, inst.approxSize())
	return inst
}

// NewInstance stamps a new Instance of class. The VM-level constructor
// protocol (invoking class's constructor Function, if any) is the
// interpreter's responsibility, not this allocator's; this only performs
// the field-copy step.
func (vm *VM) NewInstance(class *Class) *Instance { return newInstance(vm, class) }

func (o *Instance) traceRefs(visit func(GCObject)) {
	visit(o.class)
	for _, v := range o.fields {
		if obj := v.refObject(); obj != nil {
			visit(obj)
		}
	}
	for _, v := range o.hiddenFields {
		if obj := v.refObject(); obj != nil {
			visit(obj)
		}
	}
}
func (o *Instance) acyclic() bool { return false }
func (o *Instance) approxSize() uintptr {
	return uintptr(64 + 48*(len(o.fields)+len(o.hiddenFields)))
}

// Class returns the Instance's class.
func (o *Instance) Class() *Class { return o.class }

func (o *Instance) barrier(v Value) {
	if o.vm != nil && o.vm.gc != nil {
		o.vm.gc.barrier(v)
	}
}

// GetField looks up name on the instance, falling back to the class's
// method chain (unbound; the interpreter binds self at the call site).
func (o *Instance) GetField(name string) (Value, bool) {
	if v, ok := o.fields[name]; ok {
		return v, true
	}
	if v, ok := o.hiddenFields[name]; ok {
		return v, true
	}
	return o.class.findMethod(name)
}

// SetField stores value under name directly on the instance (never on
// the class), shading it through the write barrier.
func (o *Instance) SetField(name string, value Value) {
	o.fields[name] = value
	o.barrier(value)
}

func (o *Instance) SetHiddenField(name string, value Value) {
	o.hiddenFields[name] = value
	o.barrier(value)
}

// EachField calls fn for every script-visible (non-hidden) field.
func (o *Instance) EachField(fn func(name string, value Value) bool) {
	for k, v := range o.fields {
		if !fn(k, v) {
			return
		}
	}
}

// hasFinalizer/runFinalizer implement the finalizable interface the GC's
// sweep phase checks for (§4.8).
func (o *Instance) hasFinalizer() bool {
	return !o.finalized && o.class.HasFinalizer()
}

func (o *Instance) runFinalizer(th *Thread) *Exception {
	o.finalized = true
	for cls := o.class; cls != nil; cls = cls.parent {
		if cls.finalizer.Type != TypeNull {
			return callFinalizer(th, cls.finalizer, o)
		}
	}
	return nil
}
