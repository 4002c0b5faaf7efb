// Package cell implements the VM's universal stack/local/field slot.
package cell

import "math"

// Kind discriminates what a Cell currently holds. The VM doesn't carry a
// runtime tag per §3 ("tagged-free union") — bytecode and field descriptors
// already know the shape of every slot they touch — but a Kind is useful
// for the GC tracer and for debug rendering, so we keep one alongside.
type Kind uint8

const (
	KindInt Kind = iota
	KindFloat
	KindRef
	KindReturnAddr
	KindCallback
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindRef:
		return "ref"
	case KindReturnAddr:
		return "retaddr"
	case KindCallback:
		return "callback"
	default:
		return "unknown"
	}
}

// Ref is the interface every heap-allocated, GC-traceable value implements.
// Concrete types live in internal/object; cell only needs the marker so it
// can hold a reference without importing object (which itself depends on
// clazz, which depends on cell transitively through Field/Method args).
type Ref interface {
	// IsRefValue is a marker method; it carries no behavior.
	IsRefValue()
}

// Cell is one machine word of VM state: an operand stack slot, a local
// variable slot, or an instance/static field slot. A long or double is held
// whole, all 64 bits, in a single Cell: on the operand stack it is one
// entry, while local-variable indices and instance field offsets still
// reserve two slots for it and leave the second one unused.
type Cell struct {
	kind Kind
	bits uint64 // raw bit pattern for int/float payloads
	ref  Ref    // populated iff kind == KindRef
}

// Zero is the zero-valued cell: integer 0. Object field cells are zeroed to
// this value on allocation (§4.D).
var Zero = Cell{kind: KindInt}

func Int(v int32) Cell        { return Cell{kind: KindInt, bits: uint64(uint32(v))} }
func Long(v int64) Cell       { return Cell{kind: KindInt, bits: uint64(v)} }
func Float(v float32) Cell    { return Cell{kind: KindFloat, bits: uint64(math.Float32bits(v))} }
func Double(v float64) Cell   { return Cell{kind: KindFloat, bits: math.Float64bits(v)} }
func Bool(v bool) Cell {
	if v {
		return Int(1)
	}
	return Int(0)
}
func RefOf(r Ref) Cell { return Cell{kind: KindRef, ref: r} }
func Null() Cell       { return Cell{kind: KindRef, ref: nil} }
func ReturnAddr(pc int) Cell {
	return Cell{kind: KindReturnAddr, bits: uint64(uint32(pc))}
}

func (c Cell) Kind() Kind { return c.kind }
func (c Cell) IsRef() bool { return c.kind == KindRef }
func (c Cell) IsNull() bool { return c.kind == KindRef && c.ref == nil }

func (c Cell) Int() int32     { return int32(uint32(c.bits)) }
func (c Cell) Long() int64    { return int64(c.bits) }
func (c Cell) Float() float32 { return math.Float32frombits(uint32(c.bits)) }
func (c Cell) Double() float64 { return math.Float64frombits(c.bits) }
func (c Cell) Ref() Ref        { return c.ref }
func (c Cell) ReturnPC() int   { return int(int32(uint32(c.bits))) }

// Bool reports whether an int-kind cell is non-zero, the JVM's usual
// encoding for boolean values.
func (c Cell) Bool() bool { return c.Int() != 0 }

// PairLow/PairHigh split a 64-bit cell payload into the two 32-bit halves
// used by the historical land/lor/lxor encoding discussed in spec.md §9.
// This implementation performs long bitwise ops as single 64-bit operations
// (the steered resolution of that open question) but keeps these helpers
// for code that must interoperate with a half-at-a-time encoding, such as
// debug dumps.
func (c Cell) PairHigh() int32 { return int32(c.bits >> 32) }
func (c Cell) PairLow() int32  { return int32(c.bits) }
