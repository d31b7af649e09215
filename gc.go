package croc

import "go.uber.org/zap"

// gcColor is the tri-color mark used by the incremental collector: White
// objects are provisionally garbage, Gray objects are reachable but not
// yet fully scanned, Black objects are reachable and fully scanned.
// Two white shades exist so that "current white" can flip every
// collection cycle -- see currentWhite below.
type gcColor uint8

const (
	gcWhite0 gcColor = iota
	gcWhite1
	gcGray
	gcBlack
)

// gcPhase tracks where an incremental collection cycle currently stands.
type gcPhase uint8

const (
	gcPhasePause gcPhase = iota
	gcPhaseMark
	gcPhaseSweep
)

// sweepQuantum bounds how many objects a single sweep step reclaims, so
// that a GC step run from Heap.track never stalls the interpreter for an
// unbounded amount of time -- grounded on §4.2's "reclaims white objects
// in fixed-size quanta to bound pause time".
const sweepQuantum = 64

// markQuantum bounds how many gray objects a single mark step scans.
const markQuantum = 64

// finalizable is implemented by reference types that may carry a
// finalizer (only *Instance, via its Class). The GC consults this to
// decide whether a garbage object must be routed through the finalizer
// queue instead of being reclaimed immediately.
type finalizable interface {
	hasFinalizer() bool
	runFinalizer(*Thread) *Exception
}

// GC implements §4.2: incremental tri-color mark-sweep over the object
// graph rooted at the VM's globals, registry, metatables, pinned ref
// table, and every live Thread's stack.
//
// Unlike the original implementation this spec distills from, this GC
// does not additionally maintain a reference-counted cycle detector: a
// tracing mark-sweep collector is already cycle-safe by construction (see
// §9 "Cyclic graphs"), so the refcount+cycle-detector hybrid described in
// some Croc-family implementations is a performance optimization this
// from-scratch Go port does not need for correctness. This simplification
// is recorded as an explicit design decision, not an oversight.
type GC struct {
	vm  *VM
	log *zap.Logger

	currentWhite gcColor
	phase        gcPhase

	// all is every live object this GC knows about, threaded through
	// gcHeader.next -- an intrusive singly linked list, the same
	// low-overhead membership trick the teacher's ObjectTree free list
	// uses (obj_tree.go's freeListHeadIndex chain).
	all GCObject

	// gray is the incremental mark worklist.
	gray []GCObject

	// sweepCursor / sweepPrevObj track where the sweep phase left off
	// between steps, and the in-progress flag that disambiguates "sweep
	// has not started" from "sweep has reached the start of the list".
	sweepCursor   GCObject
	sweepPrevObj  GCObject
	sweepStarted  bool

	toFinalize []finalizable
	finalized  map[finalizable]bool

	cycles int

	// fatal holds the unrecoverable error raised when a finalizable
	// object is caught inside an unresolved reference cycle (§4.2).
	// Once set, the VM is no longer usable.
	fatal *CrocFatalException
}

func newGC(vm *VM, log *zap.Logger) *GC {
	return &GC{
		vm:           vm,
		log:          log,
		currentWhite: gcWhite0,
		finalized:    make(map[finalizable]bool),
	}
}

func (gc *GC) otherWhite() gcColor {
	if gc.currentWhite == gcWhite0 {
		return gcWhite1
	}
	return gcWhite0
}

// registerNew links obj into the live-object list and paints it the
// current white, so it survives any in-progress collection cycle without
// needing to be marked -- the "generational-like trick" §4.2 describes.
func (gc *GC) registerNew(obj GCObject) {
	obj.setGCColor(gc.currentWhite)
	obj.setGCNext(gc.all)
	gc.all = obj
}

// shade is the write barrier entry point: containers call this after
// mutating a reference field so that a black object never ends up
// pointing at a white one at the end of a mark cycle (the invariant
// Testable Property 5 depends on). It morally performs "shade the
// referenced child gray" as described in §4.2.
func (gc *GC) shade(child GCObject) {
	if child == nil || gc.phase != gcPhaseMark {
		return
	}
	if child.gcColor() == gc.currentWhite {
		child.setGCColor(gcGray)
		gc.gray = append(gc.gray, child)
	}
}

// barrier is the convenience form taking a Value instead of a raw
// GCObject; most container mutation sites hold a Value, not a GCObject.
func (gc *GC) barrier(v Value) {
	if obj := v.refObject(); obj != nil {
		gc.shade(obj)
	}
}

// step performs one bounded unit of incremental GC work: either advances
// the mark phase by draining up to markQuantum gray objects, starts a new
// cycle from pause, or advances the sweep phase by up to sweepQuantum
// objects. Called opportunistically by Heap.track once the byte threshold
// is crossed.
func (gc *GC) step() {
	if gc.fatal != nil {
		return
	}
	switch gc.phase {
	case gcPhasePause:
		gc.startCycle()
	case gcPhaseMark:
		gc.markStep(markQuantum)
	case gcPhaseSweep:
		gc.sweepStep(sweepQuantum)
	}
}

// FullCollect runs an entire collection cycle to completion, regardless
// of the current phase, then starts and finishes a fresh one. This is
// what the embedding API's VM.Collect and the GC's own invariant tests
// use to get a deterministic end state.
func (gc *GC) FullCollect() {
	if gc.fatal != nil {
		return
	}
	// Finish whatever cycle is in flight first.
	for gc.phase != gcPhasePause {
		gc.step()
		if gc.fatal != nil {
			return
		}
	}
	gc.startCycle()
	for gc.phase != gcPhasePause {
		gc.step()
		if gc.fatal != nil {
			return
		}
	}
	gc.cycles++
}

func (gc *GC) startCycle() {
	gc.gray = gc.gray[:0]
	gc.markRoots()
	gc.phase = gcPhaseMark
	if gc.log != nil {
		gc.log.Debug("gc cycle start", zap.Int("cycle", gc.cycles))
	}
}

// markRoots shades every GC root gray, per §4.2's root list: globals,
// registry, metatables, metamethod-name strings, the thrown-exception
// slot of every thread, the host ref table, and every live thread (which
// in turn pins its own stack/activation records/upvalues/hook function).
func (gc *GC) markRoots() {
	vm := gc.vm
	gc.shadeRoot(vm.globals)
	gc.shadeRoot(vm.registry)
	for _, mt := range vm.metatables {
		gc.shadeRoot(mt)
	}
	for _, s := range vm.metamethodNames {
		gc.shadeRoot(s)
	}
	for _, t := range vm.liveThreads {
		gc.shadeRoot(t)
		if t.exception != nil {
			gc.shade(t.exception)
		}
	}
	vm.refTable.mu.Lock()
	for _, v := range vm.refTable.entries {
		gc.barrier(v)
	}
	vm.refTable.mu.Unlock()
}

func (gc *GC) shadeRoot(obj GCObject) {
	if obj == nil {
		return
	}
	gc.shade(obj)
	// Roots always start the cycle black-and-fully-scanned from the
	// collector's point of view once pushed to gray; push them straight
	// onto the worklist even if registerNew already painted them
	// non-white (e.g. objects created mid previous cycle).
	if obj.gcColor() != gcGray {
		obj.setGCColor(gcGray)
		gc.gray = append(gc.gray, obj)
	}
}

// markStep drains up to n objects from the gray worklist, blackening each
// after tracing its children (shading any white child gray in turn). When
// the worklist empties, the mark phase is complete and sweep begins.
func (gc *GC) markStep(n int) {
	for i := 0; i < n; i++ {
		if len(gc.gray) == 0 {
			gc.finishMark()
			return
		}
		obj := gc.gray[len(gc.gray)-1]
		gc.gray = gc.gray[:len(gc.gray)-1]

		obj.traceRefs(func(child GCObject) {
			if child == nil {
				return
			}
			if child.gcColor() == gc.currentWhite || child.gcColor() == gc.otherWhite() {
				child.setGCColor(gcGray)
				gc.gray = append(gc.gray, child)
			}
		})
		obj.setGCColor(gcBlack)
	}
}

func (gc *GC) finishMark() {
	gc.clearDeadWeakRefs()
	gc.phase = gcPhaseSweep
	gc.sweepCursor = gc.all
	gc.sweepPrevObj = nil
	gc.sweepStarted = false
}

// clearDeadWeakRefs implements §4.2/§4.3's "after marking but before
// sweeping, weak-ref objects whose referents are white are nulled out".
func (gc *GC) clearDeadWeakRefs() {
	dead := gc.otherWhite()
	_ = dead
	for ref := range gc.vm.weakRefTable.byReferent {
		if ref.referent != nil && ref.referent.gcColor() != gcBlack && ref.referent.gcColor() != gcGray {
			ref.referent = nil
		}
	}
	// Sweep the table itself for entries whose referent did not survive
	// marking.
	for k, v := range gc.vm.weakRefTable.byReferent {
		if v.gcColor() != gcBlack && v.gcColor() != gcGray {
			delete(gc.vm.weakRefTable.byReferent, k)
		}
	}
}

// sweepStep reclaims up to n non-black objects from the live list,
// routing finalizable garbage through the finalizer queue instead of
// freeing it immediately, and detects the fatal finalizable-cycle
// condition described in §4.2.
func (gc *GC) sweepStep(n int) {
	swept := 0

	cur := gc.all
	var prev GCObject
	if gc.sweepStarted {
		cur = gc.sweepCursor
		prev = gc.sweepPrevObj
	}
	gc.sweepStarted = true

	unlink := func(next GCObject) {
		if prev == nil {
			gc.all = next
		} else {
			prev.setGCNext(next)
		}
	}

	for cur != nil && swept < n {
		next := cur.gcNext()

		if cur.gcColor() == gcBlack {
			// Live: reset to white for the next cycle and move on.
			cur.setGCColor(gc.otherWhite())
			prev = cur
			cur = next
			continue
		}

		// cur is garbage (neither black nor gray survives sweep).
		swept++

		if f, ok := cur.(finalizable); ok && f.hasFinalizer() && !gc.finalized[f] {
			if gc.objectInUnresolvedCycle(cur) {
				gc.raiseFatalCycle(cur)
				return
			}
			gc.toFinalize = append(gc.toFinalize, f)
			gc.finalized[f] = true
			// Keep it linked (still "alive" until finalized) but do not
			// advance its own color; it will be revisited next cycle.
			prev = cur
			cur = next
			continue
		}

		// Unlink cur from the live list.
		unlink(next)
		if gc.vm != nil && gc.vm.heap != nil {
			gc.vm.heap.untrack(cur.approxSize())
		}
		if s, ok := cur.(*String); ok && gc.vm != nil {
			gc.vm.strings.forget(s)
		}
		cur = next
	}

	gc.sweepCursor = cur
	gc.sweepPrevObj = prev

	if cur == nil {
		gc.phase = gcPhasePause
		gc.currentWhite = gc.otherWhite()
		if gc.vm != nil && gc.vm.heap != nil {
			gc.vm.heap.bytesAllocated = 0
			gc.vm.heap.gcThreshold *= 2
		}
		gc.runFinalizers()
		if gc.log != nil {
			gc.log.Info("gc cycle end", zap.Int("cycle", gc.cycles))
		}
		gc.cycles++
	}
}

// runFinalizers drains the to-finalize queue. Finalizers never run
// concurrently with a mark/sweep phase (§4.2's "never runs while a
// finalizer is running"), which is trivially true here since the whole VM
// is single-writer.
func (gc *GC) runFinalizers() {
	if len(gc.toFinalize) == 0 {
		return
	}
	queue := gc.toFinalize
	gc.toFinalize = nil
	for _, f := range queue {
		if err := f.runFinalizer(gc.vm.mainThread); err != nil && gc.log != nil {
			gc.log.Warn("finalizer raised", zap.Error(errToGo(err)))
		}
	}
}

// objectInUnresolvedCycle walks obj's outgoing references restricted to
// the garbage (non-black) subgraph; if that walk reaches back to obj, obj
// sits on a reference cycle and, since it carries a finalizer, the order
// in which cycle members would need to be finalized is undefined -- the
// fatal condition §4.2 calls for.
func (gc *GC) objectInUnresolvedCycle(obj GCObject) bool {
	visited := map[GCObject]bool{}
	var walk func(GCObject) bool
	walk = func(cur GCObject) bool {
		if visited[cur] {
			return false
		}
		visited[cur] = true
		found := false
		cur.traceRefs(func(child GCObject) {
			if found || child == nil {
				return
			}
			if child == obj {
				found = true
				return
			}
			if child.gcColor() != gcBlack && !visited[child] {
				if walk(child) {
					found = true
				}
			}
		})
		return found
	}
	return walk(obj)
}

func (gc *GC) raiseFatalCycle(obj GCObject) {
	gc.fatal = &CrocFatalException{Message: "finalizable object caught inside an unresolved reference cycle"}
	if gc.log != nil {
		gc.log.Error("fatal gc condition", zap.String("reason", gc.fatal.Message))
	}
	gc.phase = gcPhasePause
}

// CrocFatalException is raised only to the embedding host, never
// catchable by script code, and means the VM that produced it must be
// discarded (§7, §4.2).
type CrocFatalException struct {
	Message string
}

func (e *CrocFatalException) Error() string { return "croc: fatal: " + e.Message }
