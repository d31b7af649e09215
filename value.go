// Package croc implements the execution core of the croc scripting
// language: value representation, the managed heap and its incremental
// garbage collector, the bytecode interpreter, exception propagation,
// coroutines, and graph serialization.
package croc

import "math"

// ValueType enumerates the tag of a Value. The order matches the fixed
// order given by the language spec: value types first, then the
// GC-managed-but-value-like types, then reference types, then the
// internal Upvalue tag.
type ValueType uint8

// The complete set of value tags. Null is the zero value so a zeroed
// Value is always a valid null.
const (
	TypeNull ValueType = iota
	TypeBool
	TypeInt
	TypeFloat

	TypeNativeObj
	TypeString
	TypeWeakRef

	TypeTable
	TypeNamespace
	TypeArray
	TypeMemblock
	TypeFunction
	TypeFuncDef
	TypeClass
	TypeInstance
	TypeThread

	typeUpvalue // internal only, never observed by script code
)

// String returns the human-readable name of a ValueType, as surfaced by
// the "type" standard library function and in error messages.
func (t ValueType) String() string {
	switch t {
	case TypeNull:
		return "null"
	case TypeBool:
		return "bool"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeNativeObj:
		return "nativeobj"
	case TypeString:
		return "string"
	case TypeWeakRef:
		return "weakref"
	case TypeTable:
		return "table"
	case TypeNamespace:
		return "namespace"
	case TypeArray:
		return "array"
	case TypeMemblock:
		return "memblock"
	case TypeFunction:
		return "function"
	case TypeFuncDef:
		return "funcdef"
	case TypeClass:
		return "class"
	case TypeInstance:
		return "instance"
	case TypeThread:
		return "thread"
	case typeUpvalue:
		return "upvalue"
	default:
		return "<unknown type>"
	}
}

// GCObject is implemented by every reference-typed, heap-allocated object.
// It is the common trait the allocator, the GC, and the serializer all
// discriminate on, in the manner of the teacher's aml.Entity interface.
type GCObject interface {
	gcColor() gcColor
	setGCColor(gcColor)
	gcNext() GCObject
	setGCNext(GCObject)
	// acyclic reports whether this object's kind is excluded from cycle
	// collection (NativeObj, String, WeakRef, Memblock per §4.2).
	acyclic() bool
	// traceRefs invokes visit once for every GCObject this object holds a
	// strong reference to. The GC's mark phase and the fatal-cycle check
	// both walk the graph through this method; it is the Go analogue of
	// the teacher's scopeVisit/Children() traversal over entity trees.
	traceRefs(visit func(GCObject))
	// approxSize estimates the object's heap footprint for Heap
	// accounting; it need not be exact.
	approxSize() uintptr
}

// gcHeader is embedded by every heap object to carry the GC's
// tri-color bookkeeping and intrusive linked-list membership. Embedding a
// shared header (rather than a side table keyed by pointer) is the same
// trick the teacher uses for tableHandle/parent bookkeeping in
// unnamedEntity/namedEntity/scopeEntity.
type gcHeader struct {
	color gcColor
	next  GCObject
}

func (h *gcHeader) gcColor() gcColor        { return h.color }
func (h *gcHeader) setGCColor(c gcColor)    { h.color = c }
func (h *gcHeader) gcNext() GCObject        { return h.next }
func (h *gcHeader) setGCNext(n GCObject)    { h.next = n }
func (h *gcHeader) acyclic() bool           { return false }

// Value is a tagged union over every croc value. Only one of the payload
// fields is meaningful for a given Type; which one is determined entirely
// by Type, never by inspecting the payload.
type Value struct {
	Type ValueType

	// num holds the raw bits for Bool, Int and Float: Bool as 0/1,
	// Int as its two's-complement pattern, Float via math.Float64bits.
	num uint64

	// ref holds the pointer for every GC-managed type (NativeObj is the
	// one exception: its payload lives directly in ref as an opaque
	// Go value via an interface, since native objects are host-owned).
	ref interface{}
}

// Null is the canonical null value.
var Null = Value{Type: TypeNull}

// True and False are the canonical bool values.
var (
	True  = Value{Type: TypeBool, num: 1}
	False = Value{Type: TypeBool, num: 0}
)

// Bool constructs a Value of type Bool.
func Bool(b bool) Value {
	if b {
		return True
	}
	return False
}

// Int constructs a Value of type Int.
func Int(i int64) Value {
	return Value{Type: TypeInt, num: uint64(i)}
}

// Float constructs a Value of type Float.
func Float(f float64) Value {
	return Value{Type: TypeFloat, num: math.Float64bits(f)}
}

// AsBool returns the bool payload of a Bool value. Callers must check Type
// first; this does not panic on a type mismatch, it just returns garbage,
// matching the teacher's convention of unchecked payload accessors guarded
// by a prior opcode-level type check.
func (v Value) AsBool() bool { return v.num != 0 }

// AsInt returns the int payload of an Int value.
func (v Value) AsInt() int64 { return int64(v.num) }

// AsFloat returns the float payload of a Float value.
func (v Value) AsFloat() float64 { return math.Float64frombits(v.num) }

// refObject returns the GCObject payload for a reference-typed Value, or
// nil for value types.
func (v Value) refObject() GCObject {
	obj, _ := v.ref.(GCObject)
	return obj
}

// IsFalsy implements the truthiness rule from §3.1: null, false, 0, -0.0
// and 0.0 are falsy; everything else is truthy.
func (v Value) IsFalsy() bool {
	switch v.Type {
	case TypeNull:
		return true
	case TypeBool:
		return v.num == 0
	case TypeInt:
		return v.num == 0
	case TypeFloat:
		return v.AsFloat() == 0 // covers both +0.0 and -0.0
	default:
		return false
	}
}

// IsTruthy is the negation of IsFalsy, provided for readability at call
// sites that test for truthiness rather than falsiness.
func (v Value) IsTruthy() bool { return !v.IsFalsy() }

// Equals implements value equality per §3.1 and Testable Property 1: value
// types compare bit patterns, reference types compare identity, and values
// of differing Type are never equal — without ever consulting a
// metamethod. Metamethod-based equality (opEquals) is the interpreter's
// concern, layered on top of this, not this function's.
func (v Value) Equals(other Value) bool {
	if v.Type != other.Type {
		return false
	}
	switch v.Type {
	case TypeNull:
		return true
	case TypeBool, TypeInt:
		return v.num == other.num
	case TypeFloat:
		return v.AsFloat() == other.AsFloat()
	case TypeString:
		// Strings are interned (§4.3): equal content implies equal
		// identity, so pointer comparison is sufficient and is what
		// Testable Property 3 requires.
		return v.ref.(*String) == other.ref.(*String)
	case TypeWeakRef:
		return v.ref.(*WeakRef) == other.ref.(*WeakRef)
	default:
		// All remaining reference types: identity equality.
		return v.ref == other.ref
	}
}

// Hash returns the hash of a value, used by Table. Value types hash their
// bit pattern; String carries a precomputed hash; every other reference
// type hashes by identity (its pointer address, widened).
func (v Value) Hash() uint64 {
	switch v.Type {
	case TypeNull:
		return 0
	case TypeBool, TypeInt:
		return hashUint64(v.num)
	case TypeFloat:
		return hashUint64(v.num)
	case TypeString:
		return v.ref.(*String).hash
	default:
		return identityHash(v.ref)
	}
}

// hashUint64 is the "obvious bit-based hash" §3.1 calls for: a cheap
// avalanche mix, not a cryptographic hash.
func hashUint64(x uint64) uint64 {
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	x *= 0xc4ceb9fe1a85ec53
	x ^= x >> 33
	return x
}
