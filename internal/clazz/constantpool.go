package clazz

import "github.com/babevm/babevm-sub001/internal/strpool"

// Tag is a constant pool entry's kind, per JVMS table 4.4-A.
type Tag byte

const (
	TagUtf8              Tag = 1
	TagInteger           Tag = 3
	TagFloat             Tag = 4
	TagLong              Tag = 5
	TagDouble            Tag = 6
	TagClass             Tag = 7
	TagString            Tag = 8
	TagFieldref          Tag = 9
	TagMethodref          Tag = 10
	TagInterfaceMethodref Tag = 11
	TagNameAndType        Tag = 12
)

// optFlag is OR'd into a tag byte to mark that ResolvedPtr is live
// (spec.md §3 "OPT flag"). Tag values are small (1-12) so the high bit is
// free to steal.
const optFlag byte = 0x80

// Entry is one constant pool slot. Before resolution it carries either a
// scalar (Utf8/Integer/Float/Long/Double), the decoded UTF-16 content of a
// String (set during classfile's second pass), or two 16-bit ref
// indices (Class/Fieldref/Methodref/InterfaceMethodref/NameAndType). After
// resolution of a ref-bearing entry, ResolvedPtr is set and OPT() is true.
type Entry struct {
	tag byte // low 7 bits = Tag, high bit = OPT flag

	// Scalars
	Int    int32
	Float  float32
	Long   int64
	Double float64
	Utf    *strpool.Utf

	// Raw index pairs, valid before resolution for ref-bearing tags.
	Ref1, Ref2 uint16

	// Populated by classfile's pass 2 for String entries (a []uint16, which
	// internal/loader replaces with the interned Java string object at link
	// time, or ldc does on first use) and by loader's resolve_* functions for
	// Class/Fieldref/Methodref/InterfaceMethodref entries (live pointer to
	// clazz/Field/Method). Concrete type depends on the tag.
	ResolvedPtr any
}

func (e *Entry) Tag() Tag    { return Tag(e.tag &^ optFlag) }
func (e *Entry) OPT() bool   { return e.tag&optFlag != 0 }
func (e *Entry) SetTag(t Tag) { e.tag = byte(t) }
func (e *Entry) SetResolved(ptr any) {
	e.ResolvedPtr = ptr
	e.tag |= optFlag
}

// ConstantPool is the dense, 1-indexed constant pool array (spec.md §3).
// Index 0 is unused by JVMS convention; Entries[0] is left zero.
type ConstantPool struct {
	Entries []*Entry
}

// NewConstantPool allocates a pool sized for `count` entries (the
// constant_pool_count from the class file, which is one more than the
// number of usable slots; slot 0 is unused).
func NewConstantPool(count int) *ConstantPool {
	cp := &ConstantPool{Entries: make([]*Entry, count)}
	for i := range cp.Entries {
		cp.Entries[i] = &Entry{}
	}
	return cp
}

func (cp *ConstantPool) At(i int) *Entry {
	if i <= 0 || i >= len(cp.Entries) {
		return nil
	}
	return cp.Entries[i]
}

// Count returns constant_pool_count (len(Entries)); valid indices are
// [1, Count()-1].
func (cp *ConstantPool) Count() int { return len(cp.Entries) }

// NameAndType is the decoded shape of a NameAndType entry, cached on the
// entry's ResolvedPtr once both Ref1 (name) and Ref2 (descriptor) are
// dereferenced during pass 2.
type NameAndType struct {
	Name, Descriptor *strpool.Utf
}

// ClassRef is the decoded Ref1 target of a Class constant before full
// resolution to a *Clazz: just its interned name, per pass 2's rewrite
// ("Class constants ... point to their name UTF").
type ClassRef struct {
	Name *strpool.Utf
}

// MemberRef is the decoded shape of a Fieldref/Methodref/InterfaceMethodref
// entry before resolution: the owning class's name and the member's
// NameAndType, both already dereferenced in pass 2.
type MemberRef struct {
	ClassName        *strpool.Utf
	Name, Descriptor *strpool.Utf
}
