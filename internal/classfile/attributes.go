package classfile

import "github.com/babevm/babevm-sub001/internal/clazz"

// readAttrHeader reads an attribute_name_index + attribute_length pair and
// resolves the name, leaving the reader positioned at the attribute body.
// Callers that don't recognize the name must Skip(length) themselves
// (spec.md §6: "all others are skipped by length").
func readAttrHeader(r *Reader, cp *clazz.ConstantPool) (name string, length uint32, err error) {
	nameIdx, err := r.ReadU2()
	if err != nil {
		return "", 0, formatErrorf("truncated attribute name_index")
	}
	length, err = r.ReadU4()
	if err != nil {
		return "", 0, formatErrorf("truncated attribute_length")
	}
	entry := cp.At(int(nameIdx))
	if entry == nil || entry.Tag() != clazz.TagUtf8 {
		return "", 0, formatErrorf("attribute name index %d invalid", nameIdx)
	}
	return entry.Utf.String(), length, nil
}

// parseClassAttributes reads the class file's top-level attributes,
// interpreting only SourceFile (spec.md §6); everything else (InnerClasses,
// Deprecated, BootstrapMethods, ...) is skipped by length.
func parseClassAttributes(r *Reader, cp *clazz.ConstantPool, cf *ClassFile) error {
	count, err := r.ReadU2()
	if err != nil {
		return formatErrorf("truncated class attributes_count")
	}
	for i := 0; i < int(count); i++ {
		name, length, err := readAttrHeader(r, cp)
		if err != nil {
			return err
		}
		switch name {
		case "SourceFile":
			idx, err := r.ReadU2()
			if err != nil {
				return formatErrorf("truncated SourceFile index")
			}
			entry := cp.At(int(idx))
			if entry != nil && entry.Tag() == clazz.TagUtf8 {
				cf.SourceFile = entry.Utf
			}
		default:
			if err := r.Skip(int(length)); err != nil {
				return err
			}
		}
	}
	return nil
}
