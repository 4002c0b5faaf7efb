package classfile

import (
	"fmt"

	"github.com/babevm/babevm-sub001/internal/clazz"
	"github.com/babevm/babevm-sub001/internal/strpool"
)

// Magic is the required first four bytes of every class file (spec.md §6).
const Magic = 0xCAFEBABE

// ClassFormatError is raised for any structural violation of the class
// file format (spec.md §4.C.5.a, §7).
type ClassFormatError struct {
	msg string
}

func (e *ClassFormatError) Error() string { return "ClassFormatError: " + e.msg }

func formatErrorf(format string, args ...any) error {
	return &ClassFormatError{msg: fmt.Sprintf(format, args...)}
}

// FieldInfo is a field as seen straight off the wire, before the loader
// partitions/sorts it into clazz.Field with a cell offset (spec.md §4.C.f).
type FieldInfo struct {
	AccessFlags int
	Name        *strpool.Utf
	Descriptor  *strpool.Utf
	Type        clazz.JType

	HasConstantValue bool
	ConstantValue    *clazz.Entry // resolved scalar entry (Integer/Float/Long/Double/String)
}

// CodeAttr is a parsed Code attribute (JVMS 4.7.3).
type CodeAttr struct {
	MaxStack, MaxLocals int
	Code                []byte
	ExceptionTable      []*clazz.ExceptionTableEntry
	Lines               []clazz.LineEntry
	LocalVars           []clazz.LocalVarEntry
}

// MethodInfo is a method as seen straight off the wire.
type MethodInfo struct {
	AccessFlags int
	Name        *strpool.Utf
	Descriptor  *strpool.Utf

	Code             *CodeAttr // nil for abstract/native methods
	CheckedExceptions []*strpool.Utf
}

// ClassFile is the fully parsed wire format, ready for the loader to link
// into a clazz.InstanceClazz. Constant-pool Class/Fieldref/Methodref/
// NameAndType entries have already been rewritten to name-bearing shapes by
// pass 2 (spec.md §4.C.5.b); only Clazz/Field/Method *resolution* (turning
// a name into a live pointer) remains the loader's job.
type ClassFile struct {
	MinorVersion, MajorVersion uint16
	ConstantPool               *clazz.ConstantPool

	AccessFlags int
	ThisClass   *strpool.Utf
	SuperClass  *strpool.Utf // empty for java/lang/Object
	Interfaces  []*strpool.Utf

	Fields  []*FieldInfo
	Methods []*MethodInfo

	SourceFile *strpool.Utf // optional, set whenever a SourceFile attribute is present
}

// Parse reads a full class file from r, canonicalizing every UTF8 constant
// through utf. String constants are left holding their decoded UTF-16
// content; internal/loader interns them when it links the class, so interns
// is not read here.
func Parse(r *Reader, utf *strpool.UTFPool, interns *strpool.InternPool) (*ClassFile, error) {
	magic, err := r.ReadU4()
	if err != nil {
		return nil, formatErrorf("truncated magic: %v", err)
	}
	if magic != Magic {
		return nil, formatErrorf("bad magic 0x%08X", magic)
	}

	minor, err := r.ReadU2()
	if err != nil {
		return nil, formatErrorf("truncated minor version")
	}
	major, err := r.ReadU2()
	if err != nil {
		return nil, formatErrorf("truncated major version")
	}

	cp, err := parseConstantPool(r, utf, interns)
	if err != nil {
		return nil, err
	}

	accessFlags, err := r.ReadU2()
	if err != nil {
		return nil, formatErrorf("truncated access flags")
	}

	thisClassIdx, err := r.ReadU2()
	if err != nil {
		return nil, formatErrorf("truncated this_class")
	}
	thisClass, err := classNameAt(cp, thisClassIdx)
	if err != nil {
		return nil, err
	}

	superClassIdx, err := r.ReadU2()
	if err != nil {
		return nil, formatErrorf("truncated super_class")
	}
	var superClass *strpool.Utf
	if superClassIdx != 0 {
		superClass, err = classNameAt(cp, superClassIdx)
		if err != nil {
			return nil, err
		}
	}

	ifaceCount, err := r.ReadU2()
	if err != nil {
		return nil, formatErrorf("truncated interfaces_count")
	}
	interfaces := make([]*strpool.Utf, 0, ifaceCount)
	for i := 0; i < int(ifaceCount); i++ {
		idx, err := r.ReadU2()
		if err != nil {
			return nil, formatErrorf("truncated interface index %d", i)
		}
		name, err := classNameAt(cp, idx)
		if err != nil {
			return nil, err
		}
		interfaces = append(interfaces, name)
	}

	fields, err := parseFields(r, cp)
	if err != nil {
		return nil, err
	}

	methods, err := parseMethods(r, cp)
	if err != nil {
		return nil, err
	}

	cf := &ClassFile{
		MinorVersion: minor,
		MajorVersion: major,
		ConstantPool: cp,
		AccessFlags:  int(accessFlags),
		ThisClass:    thisClass,
		SuperClass:   superClass,
		Interfaces:   interfaces,
		Fields:       fields,
		Methods:      methods,
	}

	if err := parseClassAttributes(r, cp, cf); err != nil {
		return nil, err
	}

	return cf, nil
}

// classNameAt dereferences a Class constant's already-pass-2-rewritten
// name pointer (spec.md §4.C.5.b).
func classNameAt(cp *clazz.ConstantPool, idx uint16) (*strpool.Utf, error) {
	e := cp.At(int(idx))
	if e == nil || e.Tag() != clazz.TagClass {
		return nil, formatErrorf("constant pool index %d is not a Class entry", idx)
	}
	ref, _ := e.ResolvedPtr.(*clazz.ClassRef)
	if ref == nil {
		return nil, formatErrorf("Class entry %d missing resolved name", idx)
	}
	return ref.Name, nil
}
