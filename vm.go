package croc

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// VM is the root of a croc execution core (§4.1, §6). One VM owns one
// Heap/GC pair, one string/weak-ref pool, the globals namespace, the
// metatable-per-type registry used for metamethod dispatch, and the set
// of live Threads. This is the same "one root object owns the whole
// managed world" shape as the teacher's Kernel value owning its PMM/VMM
// and device tree, generalized to a script VM's heap and call stacks.
type VM struct {
	log *zap.Logger
	id  string

	heap *Heap
	gc   *GC

	strings      *stringPool
	weakRefTable *weakRefTable

	globals    *Namespace
	registry   *Namespace // host-registered native values, not script-visible by name
	metatables map[ValueType]*Class
	metamethodNames map[string]*String

	errClasses *errorClasses

	liveThreads []*Thread
	mainThread  *Thread
	resumers    *resumerStack
	coroPool    *coroPool

	refTable *refTable

	mu sync.Mutex
}

// Options configures a new VM (§6's embedding API).
type Options struct {
	AllocFunc AllocFunc
	AllocCtx  interface{}
	Logger    *zap.Logger
}

// NewVM constructs a VM ready to load and run script modules. A nil
// AllocFunc uses the Go-native default (the runtime's own allocator
// stands in for a caller-supplied memory function, since Go does not
// expose raw malloc/free the way the embedding contract in §4.1
// describes).
func NewVM(opts Options) *VM {
	log := opts.Logger
	if log == nil {
		log, _ = zap.NewProduction()
	}
	allocFn := opts.AllocFunc
	if allocFn == nil {
		allocFn = defaultAllocFunc
	}

	vm := &VM{
		log:             log,
		id:              uuid.NewString(),
		strings:         newStringPool(),
		weakRefTable:    newWeakRefTable(),
		metatables:      make(map[ValueType]*Class),
		metamethodNames: make(map[string]*String),
		refTable:        newRefTable(),
		resumers:        newResumerStack(),
		coroPool:        newCoroPool(),
	}
	vm.heap = newHeap(vm, allocFn, opts.AllocCtx)
	vm.gc = newGC(vm, log)

	vm.globals = newNamespace(vm, "globals", nil)
	vm.registry = newNamespace(vm, "registry", nil)
	vm.errClasses = buildErrorClasses(vm)

	vm.mainThread = newThread(vm, vm.intern([]byte("main")))
	vm.mainThread.state = ThreadRunning
	vm.liveThreads = append(vm.liveThreads, vm.mainThread)

	log.Debug("vm created", zap.String("vm_id", vm.id))
	return vm
}

// ID returns the VM's diagnostic identifier (used only in logs, never
// in script-visible semantics).
func (vm *VM) ID() string { return vm.id }

// MainThread returns the VM's always-present main Thread.
func (vm *VM) MainThread() *Thread { return vm.mainThread }

// Globals returns the root globals namespace.
func (vm *VM) Globals() *Namespace { return vm.globals }

// Collect forces a full, synchronous garbage collection cycle. It
// returns the VM's fatal error (§4.2's unresolved finalizable-cycle
// condition) if the cycle raised one, so a host driving collection
// explicitly learns about it instead of it being silently swallowed.
func (vm *VM) Collect() error {
	vm.gc.FullCollect()
	return vm.FatalError()
}

// FatalError reports the unrecoverable condition (if any) the GC has
// raised over this VM's lifetime. Once non-nil, the VM must be
// discarded: Run refuses to execute further script code (§4.2, §7).
func (vm *VM) FatalError() error {
	if vm.gc.fatal == nil {
		return nil
	}
	return vm.gc.fatal
}

// HeapStats reports the VM's current allocation accounting.
func (vm *VM) HeapStats() Stats { return vm.heap.Stats() }

// newError is a convenience constructor bundling NewException with the
// main thread's current source location, whichever thread raised the
// error; used throughout interp_*.go.
func (vm *VM) newError(class *Class, message string) *Exception {
	exc := vm.NewException(class, message)
	if th := vm.mainThread; th != nil {
		exc.File, exc.Line = th.currentLocation()
	}
	return exc
}

// SetMetatable installs class as the metatable for every Value of type
// t, the source metamethod dispatch looks up (§4.6).
func (vm *VM) SetMetatable(t ValueType, class *Class) {
	vm.metatables[t] = class
	if class != nil {
		vm.gc.shade(class)
	}
}

// lookupMetamethod finds a metamethod named name applicable to v's
// runtime type: Instance values consult their own Class chain first,
// everything else consults the VM-wide per-type metatable registry.
func (vm *VM) lookupMetamethod(v Value, name string) (Value, bool) {
	if v.Type == TypeInstance {
		inst := v.refObject().(*Instance)
		if m, ok := inst.class.findMethod(name); ok {
			return m, true
		}
	}
	class, ok := vm.metatables[v.Type]
	if !ok {
		return Null, false
	}
	return class.findMethod(name)
}

// apply resolves the opApply iterator-triple protocol for container
// (§4.6's foreach support): Tables and Arrays get a built-in iterator,
// everything else (Namespaces included) requires an opApply metamethod.
func (vm *VM) apply(container Value) (fn, state, ctrl Value, exc *Exception) {
	switch container.Type {
	case TypeArray:
		return vm.arrayIterFunc(), container, Int(-1), nil
	case TypeTable:
		return vm.tableIterFunc(), container, Null, nil
	default:
		if mm, ok := vm.lookupMetamethod(container, "opApply"); ok {
			res, e := vm.CallFunction(vm.mainThread, mm, []Value{container}, 3)
			if e != nil {
				return Null, Null, Null, e
			}
			for len(res) < 3 {
				res = append(res, Null)
			}
			return res[0], res[1], res[2], nil
		}
		return Null, Null, Null, vm.newError(vm.errClasses.TypeError, "cannot iterate a "+container.Type.String())
	}
}

var arrayIterSingleton, tableIterSingleton *Function

func (vm *VM) arrayIterFunc() Value {
	if arrayIterSingleton == nil {
		arrayIterSingleton = vm.NewNativeFunction("arrayIterator", func(th *Thread, args []Value) ([]Value, *Exception) {
			arr := args[0].refObject().(*Array)
			idx := args[1].AsInt() + 1
			if idx >= int64(len(arr.data)) {
				return []Value{Null}, nil
			}
			return []Value{Int(idx), arr.data[idx]}, nil
		})
	}
	return Value{Type: TypeFunction, ref: arrayIterSingleton}
}

func (vm *VM) tableIterFunc() Value {
	if tableIterSingleton == nil {
		tableIterSingleton = vm.NewNativeFunction("tableIterator", func(th *Thread, args []Value) ([]Value, *Exception) {
			t := args[0].refObject().(*Table)
			var keys []Value
			t.Each(func(k, v Value) bool { keys = append(keys, k); return true })
			var after Value
			if len(args) > 1 {
				after = args[1]
			}
			foundAfter := after.Type == TypeNull
			for _, k := range keys {
				if foundAfter {
					return []Value{k, t.Get(k)}, nil
				}
				if k.Equals(after) {
					foundAfter = true
				}
			}
			return []Value{Null}, nil
		})
	}
	return Value{Type: TypeFunction, ref: tableIterSingleton}
}

// instanceToException recovers the *Exception a script-level Throwable
// Instance carries, for the opThrow handler. Instances made by
// exceptionToInstance carry their backing *Exception in the hidden __exc
// field; any other instance yields a fresh Exception of its class built
// from its message field.
func (vm *VM) instanceToException(inst *Instance) (*Exception, bool) {
	v, ok := inst.hiddenFields["__exc"]
	if !ok {
		msg, _ := inst.GetField("message")
		m := ""
		if msg.Type == TypeString {
			m = msg.refObject().(*String).GoString()
		}
		return vm.NewException(inst.class, m), true
	}
	if v.Type != TypeNativeObj {
		return nil, false
	}
	exc, ok := v.refObject().(*Exception)
	return exc, ok
}

// exceptionToInstance is instanceToException's reverse: it stamps a
// script-visible Throwable Instance for exc, stashing the backing
// *Exception in the same hidden field convention so a later throw of
// that instance round-trips back to the original *Exception. Used to
// bind a caught exception into a catch(e) register (§4.6).
func (vm *VM) exceptionToInstance(exc *Exception) *Instance {
	class := exc.class
	if class == nil {
		class = vm.errClasses.Exception
	}
	inst := vm.NewInstance(class)
	inst.SetField("message", vm.InternString(exc.Message))
	inst.SetHiddenField("__exc", Value{Type: TypeNativeObj, ref: exc})
	return inst
}

// refTable is the embedding-facing GC-root registry (§6): host code
// that holds a Value outside any Thread stack must register it here so
// the collector treats it as a root, mirroring the teacher's pattern of
// pinning kernel-owned objects that outlive any single call frame.
type refTable struct {
	mu      sync.Mutex
	entries map[int]Value
	nextID  int
}

func newRefTable() *refTable { return &refTable{entries: make(map[int]Value)} }

// Ref registers v as a GC root and returns a handle to release later.
func (vm *VM) Ref(v Value) int {
	vm.refTable.mu.Lock()
	defer vm.refTable.mu.Unlock()
	id := vm.refTable.nextID
	vm.refTable.nextID++
	vm.refTable.entries[id] = v
	return id
}

// Unref releases a handle previously returned by Ref.
func (vm *VM) Unref(id int) {
	vm.refTable.mu.Lock()
	defer vm.refTable.mu.Unlock()
	delete(vm.refTable.entries, id)
}

// Deref returns the Value registered under id.
func (vm *VM) Deref(id int) (Value, bool) {
	vm.refTable.mu.Lock()
	defer vm.refTable.mu.Unlock()
	v, ok := vm.refTable.entries[id]
	return v, ok
}
