package croc

// Class is croc's prototype object (§3.2): a named bag of methods and
// field initializers from which Instances are stamped out. hiddenFields
// mirror fields but are invisible to script-level iteration/reflection,
// the same public/hidden split the teacher's Object (obj_tree.go) draws
// between its exposed fields and its internal bookkeeping fields.
type Class struct {
	gcHeader

	vm           *VM
	name         *String
	parent       *Class
	fields       map[string]Value
	hiddenFields map[string]Value
	methods      map[string]Value
	constructor  Value // Function or Null
	finalizer    Value // Function or Null
	frozen       bool
}

func newClass(vm *VM, name *String, parent *Class) *Class {
	c := &Class{
		vm:           vm,
		name:         name,
		parent:       parent,
		fields:       make(map[string]Value),
		hiddenFields: make(map[string]Value),
		methods:      make(map[string]Value),
		constructor:  Null,
		finalizer:    Null,
	}
	vm.heap.track(c, c.approxSize())
	return c
}

// NewClass creates a new, unfrozen Class named name, optionally deriving
// from parent (nil for no base class).
func (vm *VM) NewClass(name string, parent *Class) *Class {
	return newClass(vm, vm.intern([]byte(name)), parent)
}

func (c *Class) traceRefs(visit func(GCObject)) {
	if c.parent != nil {
		visit(c.parent)
	}
	visit(c.name)
	for _, v := range c.fields {
		if obj := v.refObject(); obj != nil {
			visit(obj)
		}
	}
	for _, v := range c.hiddenFields {
		if obj := v.refObject(); obj != nil {
			visit(obj)
		}
	}
	for _, v := range c.methods {
		if obj := v.refObject(); obj != nil {
			visit(obj)
		}
	}
	if obj := c.constructor.refObject(); obj != nil {
		visit(obj)
	}
	if obj := c.finalizer.refObject(); obj != nil {
		visit(obj)
	}
}
func (c *Class) acyclic() bool { return false }
func (c *Class) approxSize() uintptr {
	return uintptr(96 + 48*(len(c.fields)+len(c.hiddenFields)+len(c.methods)))
}

// Name returns the class's name.
func (c *Class) Name() *String { return c.name }

// Parent returns the base class, or nil.
func (c *Class) Parent() *Class { return c.parent }

// Frozen reports whether the class has been frozen against further
// structural edits (adding/removing methods or field initializers).
func (c *Class) Frozen() bool { return c.frozen }

// ErrClassFrozen is returned by any mutating Class method once the class
// has been frozen.
var ErrClassFrozen = tableKeyError("class: frozen, cannot be modified")

// Freeze prevents any further structural changes to the class.
func (c *Class) Freeze() { c.frozen = true }

func (c *Class) barrier(v Value) {
	if c.vm != nil && c.vm.gc != nil {
		c.vm.gc.barrier(v)
	}
}

// AddField declares a field initializer, inherited by new Instances.
func (c *Class) AddField(name string, initial Value) error {
	if c.frozen {
		return ErrClassFrozen
	}
	c.fields[name] = initial
	c.barrier(initial)
	return nil
}

// AddHiddenField declares a hidden field initializer (not visible to
// script-level enumeration).
func (c *Class) AddHiddenField(name string, initial Value) error {
	if c.frozen {
		return ErrClassFrozen
	}
	c.hiddenFields[name] = initial
	c.barrier(initial)
	return nil
}

// AddMethod binds name to fn (expected to hold a Function value).
func (c *Class) AddMethod(name string, fn Value) error {
	if c.frozen {
		return ErrClassFrozen
	}
	c.methods[name] = fn
	c.barrier(fn)
	return nil
}

// SetConstructor/SetFinalizer set the class's constructor and finalizer
// functions (§4.8 for finalization semantics).
func (c *Class) SetConstructor(fn Value) error {
	if c.frozen {
		return ErrClassFrozen
	}
	c.constructor = fn
	c.barrier(fn)
	return nil
}

func (c *Class) SetFinalizer(fn Value) error {
	if c.frozen {
		return ErrClassFrozen
	}
	c.finalizer = fn
	c.barrier(fn)
	return nil
}

// findMethod resolves a method by walking the parent chain, mirroring
// the Namespace.Lookup chain walk.
func (c *Class) findMethod(name string) (Value, bool) {
	for cls := c; cls != nil; cls = cls.parent {
		if v, ok := cls.methods[name]; ok {
			return v, true
		}
	}
	return Null, false
}

// HasFinalizer reports whether this class or an ancestor declared one.
func (c *Class) HasFinalizer() bool {
	for cls := c; cls != nil; cls = cls.parent {
		if cls.finalizer.Type != TypeNull {
			return true
		}
	}
	return false
}
