// Package clazz is the VM's internal representation of a Java class:
// the common Clazz header and its three variants (instance, array,
// primitive), plus Field, Method, and the constant pool (spec.md §3).
package clazz

import (
	"sync"

	"github.com/babevm/babevm-sub001/internal/cell"
	"github.com/babevm/babevm-sub001/internal/strpool"
)

// State is a clazz's lifecycle state (spec.md §3).
type State int

const (
	Loading State = iota
	Loaded
	Initializing
	Initialized
	Error
)

func (s State) String() string {
	switch s {
	case Loading:
		return "LOADING"
	case Loaded:
		return "LOADED"
	case Initializing:
		return "INITIALIZING"
	case Initialized:
		return "INITIALIZED"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Variant discriminates the three Clazz shapes. Kept as an explicit
// discriminant in the header rather than Go's type system alone so the GC
// tracer (internal/gc) and the class pool can branch on it uniformly
// without a type switch at every call site (spec.md §9 design notes).
type Variant uint8

const (
	VariantInstance Variant = iota
	VariantArray
	VariantPrimitive
)

// Access flags, a subset of JVMS table 4.1-A plus the VM's own synthetic
// bits distinguishing the Variant.
const (
	AccPublic     = 0x0001
	AccPrivate    = 0x0002
	AccProtected  = 0x0004
	AccStatic     = 0x0008
	AccFinal      = 0x0010
	AccSuper      = 0x0020
	AccSynchronized = 0x0020
	AccVolatile   = 0x0040
	AccBridge     = 0x0040
	AccTransient  = 0x0080
	AccVarargs    = 0x0080
	AccNative     = 0x0100
	AccInterface  = 0x0200
	AccAbstract   = 0x0400
	AccStrict     = 0x0800
	AccSynthetic  = 0x1000
	AccAnnotation = 0x2000
	AccEnum       = 0x4000

	// Synthetic field bits not part of JVMS access flags, packed into the
	// unused high bits of Field.AccessFlags (spec.md §3 Field).
	FieldAccLong  = 0x10000 // occupies two cells, static-long side array
	FieldAccConst = 0x20000 // has a ConstantValue attribute, pre-set at load

	// Synthetic method bit: native resolution deferred (spec.md §4.C.g).
	MethodAccUnresolvedNative = 0x10000
)

// Mirror is the minimal shape clazz needs of a java.lang.Class instance,
// satisfied by internal/object's concrete Object type. Kept as an interface
// here to avoid a clazz -> object import cycle (object depends on clazz for
// layout).
type Mirror interface {
	cell.Ref
}

// ClassLoader is the minimal shape clazz needs of a class loader object.
// internal/loader's concrete type satisfies it. Parent returns nil for the
// bootstrap loader; every other loader's Parent chain terminates there
// (spec.md §4.A "parent-first delegation").
type ClassLoader interface {
	cell.Ref
	IsBootstrap() bool
	Parent() ClassLoader
}

// Clazz is the common header shared by all three variants.
type Clazz struct {
	Variant Variant
	State   State
	mu      sync.Mutex // guards State during <clinit> (spec.md §4.C re-entrance)

	AccessFlags int

	Name    *strpool.Utf // interned, e.g. "java/lang/Object" or "[I"
	Package *strpool.Utf // interned package portion of Name, may be empty

	ClassMirror Mirror
	Loader      ClassLoader

	Next *Clazz // intrusive link for the owning class-pool bucket

	// self holds the concrete outer value (*InstanceClazz, *ArrayClazz, or
	// *PrimitiveClazz) that embeds this header, set once by the matching
	// New*Clazz constructor below. Go embedding gives no way to recover a
	// concrete outer type from a pointer to an embedded field without
	// unsafe.Pointer; storing the outer pointer itself sidesteps that, the
	// same self-reference idiom other code here uses (see InstanceClazz.Super
	// for why the GC tracer and class pool both need this).
	self any
}

// AsInstanceClazz returns the concrete InstanceClazz this header belongs
// to, or nil if c.Variant != VariantInstance.
func (c *Clazz) AsInstanceClazz() *InstanceClazz {
	ic, _ := c.self.(*InstanceClazz)
	return ic
}

// AsArrayClazz returns the concrete ArrayClazz this header belongs to, or
// nil if c.Variant != VariantArray.
func (c *Clazz) AsArrayClazz() *ArrayClazz {
	ac, _ := c.self.(*ArrayClazz)
	return ac
}

// AsPrimitiveClazz returns the concrete PrimitiveClazz this header belongs
// to, or nil if c.Variant != VariantPrimitive.
func (c *Clazz) AsPrimitiveClazz() *PrimitiveClazz {
	pc, _ := c.self.(*PrimitiveClazz)
	return pc
}

func (c *Clazz) IsInterface() bool { return c.AccessFlags&AccInterface != 0 }
func (c *Clazz) IsAbstract() bool  { return c.AccessFlags&AccAbstract != 0 }
func (c *Clazz) IsFinal() bool     { return c.AccessFlags&AccFinal != 0 }
func (c *Clazz) IsPublic() bool    { return c.AccessFlags&AccPublic != 0 }

// Lock/Unlock serialize lifecycle transitions; the VM is cooperative
// single-threaded (spec.md §4.F) so this only ever guards re-entrant
// <clinit> driven from within the same call stack, never cross-thread races.
func (c *Clazz) Lock()   { c.mu.Lock() }
func (c *Clazz) Unlock() { c.mu.Unlock() }

// InstanceClazz extends Clazz with constant pool, interfaces, fields,
// methods, and the static-long side array (spec.md §3). Super is kept here
// rather than on the common Clazz header -- arrays and primitives never
// have one, and keeping it typed as *InstanceClazz (rather than *Clazz)
// lets every consumer walk the superclass chain's Fields/Methods without
// an unsafe downcast.
type InstanceClazz struct {
	Clazz

	Super *InstanceClazz // nil iff this clazz is java/lang/Object

	ConstantPool *ConstantPool
	Interfaces   []*Clazz

	Fields             []*Field // statics first, then instance, class-file order within each group
	InstanceFieldCount int      // cumulative, including supers; longs/doubles count 2
	VirtualFieldOffset int      // first instance-field slot index contributed by this clazz

	StaticLongs []int64 // side array backing static long/double fields

	Methods []*Method
}

// NewInstanceClazz allocates an InstanceClazz with its variant/self
// bookkeeping already wired; callers (internal/loader) fill in the rest of
// the fields afterward.
func NewInstanceClazz() *InstanceClazz {
	ic := &InstanceClazz{}
	ic.Variant = VariantInstance
	ic.self = ic
	return ic
}

// ArrayClazz extends Clazz with its component type.
type ArrayClazz struct {
	Clazz

	ComponentType  JType  // primitive type tag of the component, or TypeRef
	ComponentClazz *Clazz // nil for primitive components
}

// NewArrayClazz allocates an ArrayClazz with its variant/self bookkeeping
// already wired.
func NewArrayClazz() *ArrayClazz {
	ac := &ArrayClazz{}
	ac.Variant = VariantArray
	ac.self = ac
	return ac
}

// PrimitiveClazz extends Clazz with nothing further.
type PrimitiveClazz struct {
	Clazz
}

// NewPrimitiveClazz allocates a PrimitiveClazz with its variant/self
// bookkeeping already wired.
func NewPrimitiveClazz() *PrimitiveClazz {
	pc := &PrimitiveClazz{}
	pc.Variant = VariantPrimitive
	pc.self = pc
	return pc
}

// JType is the JVM's primitive/reference type tag, used for array element
// typing and descriptor decoding.
type JType byte

const (
	TypeByte    JType = 'B'
	TypeChar    JType = 'C'
	TypeDouble  JType = 'D'
	TypeFloat   JType = 'F'
	TypeInt     JType = 'I'
	TypeLong    JType = 'J'
	TypeShort   JType = 'S'
	TypeBoolean JType = 'Z'
	TypeRef     JType = 'L'
	TypeArray   JType = '['
	TypeVoid    JType = 'V'
)

// CellSize returns how many Cells a value of this type occupies (1, or 2
// for long/double).
func (t JType) CellSize() int {
	if t == TypeLong || t == TypeDouble {
		return 2
	}
	return 1
}

// ElementSize returns the in-heap byte size of one array element of this
// primitive type. Not valid for TypeRef/TypeArray (reference arrays store
// heap pointers, sized by vmheap.Ptr).
func (t JType) ElementSize() int {
	switch t {
	case TypeByte, TypeBoolean:
		return 1
	case TypeChar, TypeShort:
		return 2
	case TypeInt, TypeFloat:
		return 4
	case TypeLong, TypeDouble:
		return 8
	default:
		return 0
	}
}

// Field is one declared field: owning clazz, flags, name/signature, and
// either an instance offset or a static cell (spec.md §3).
type Field struct {
	Owner       *InstanceClazz
	AccessFlags int
	Name        *strpool.Utf
	Signature   *strpool.Utf
	Type        JType

	IsStatic bool
	// Offset is the instance-field cell index when !IsStatic.
	Offset int
	// StaticValue holds the field's value when IsStatic. For a
	// FieldAccLong field, StaticValue holds an index into Owner.StaticLongs
	// rather than the value itself (spec.md §3: "a static-long field's cell
	// holds a pointer into that array" — modeled here as an index since the
	// side array is a Go slice, not raw memory).
	StaticValue cell.Cell
}

func (f *Field) IsLong() bool  { return f.AccessFlags&FieldAccLong != 0 }
func (f *Field) IsConst() bool { return f.AccessFlags&FieldAccConst != 0 }

// LineEntry maps a bytecode offset to a source line (optional LineNumberTable).
type LineEntry struct {
	StartPC int
	Line    int
}

// LocalVarEntry is one row of an optional LocalVariableTable, used only for
// debug-quality diagnostics, never for execution semantics.
type LocalVarEntry struct {
	StartPC, Length int
	Name, Signature *strpool.Utf
	Index           int
}

// ExceptionTableEntry is one row of a Code attribute's exception table.
// CatchType is stored as a name and resolved lazily on first throw
// (spec.md §4.C.g).
type ExceptionTableEntry struct {
	StartPC, EndPC, HandlerPC int
	CatchTypeName             *strpool.Utf // nil means catch-all (finally)
	catchType                 *Clazz       // resolved lazily
}

func (e *ExceptionTableEntry) ResolvedCatchType() *Clazz { return e.catchType }
func (e *ExceptionTableEntry) SetResolvedCatchType(c *Clazz) { e.catchType = c }

// NativeFunc is the shape of a bound native method body (internal/nativereg
// registers these; internal/interp invokes them).
type NativeFunc func(args []cell.Cell) (cell.Cell, error)

// Method is one declared method: owning clazz, flags, name/signature,
// argument/return cell counts, bytecode or native binding (spec.md §3).
type Method struct {
	Owner       *InstanceClazz
	AccessFlags int
	Name        *strpool.Utf
	Signature   *strpool.Utf

	ArgCells    int // including `this` for instance methods; long/double count 2
	ReturnCells int // 0, 1, or 2

	Code           []byte
	MaxStack       int
	MaxLocals      int
	ExceptionTable []*ExceptionTableEntry
	Lines          []LineEntry
	LocalVars      []LocalVarEntry

	Native           NativeFunc
	UnresolvedNative bool // true until internal/nativereg resolves it, per §4.C.g
}

func (m *Method) IsStatic() bool       { return m.AccessFlags&AccStatic != 0 }
func (m *Method) IsNative() bool       { return m.AccessFlags&AccNative != 0 }
func (m *Method) IsAbstract() bool     { return m.AccessFlags&AccAbstract != 0 }
func (m *Method) IsSynchronized() bool { return m.AccessFlags&AccSynchronized != 0 }
func (m *Method) IsPrivate() bool      { return m.AccessFlags&AccPrivate != 0 }
func (m *Method) IsPublic() bool       { return m.AccessFlags&AccPublic != 0 }
func (m *Method) IsProtected() bool    { return m.AccessFlags&AccProtected != 0 }

// IsObjectRoot reports whether this instance clazz is java/lang/Object
// itself, the only instance clazz with no superclass (spec.md §3
// invariants).
func (ic *InstanceClazz) IsObjectRoot() bool { return ic.Super == nil }

// IsInit reports whether this is an instance initializer, <init>.
func (m *Method) IsInit() bool { return m.Name != nil && m.Name.String() == "<init>" }

// IsClinit reports whether this is a class initializer, <clinit>.
func (m *Method) IsClinit() bool { return m.Name != nil && m.Name.String() == "<clinit>" }

// StaticLongPtr is a typed alias documenting where static long/double
// storage lives; kept distinct from a raw arena offset since it indexes a
// Go slice, not heap memory.
type StaticLongPtr = int
