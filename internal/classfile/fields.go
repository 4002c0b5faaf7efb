package classfile

import (
	"github.com/babevm/babevm-sub001/internal/clazz"
)

// descriptorType decodes the first type tag of a field descriptor, e.g.
// "I", "[I", "Ljava/lang/String;".
func descriptorType(desc string) clazz.JType {
	if len(desc) == 0 {
		return 0
	}
	return clazz.JType(desc[0])
}

func parseFields(r *Reader, cp *clazz.ConstantPool) ([]*FieldInfo, error) {
	count, err := r.ReadU2()
	if err != nil {
		return nil, formatErrorf("truncated fields_count")
	}

	fields := make([]*FieldInfo, 0, count)
	for i := 0; i < int(count); i++ {
		accessFlags, err := r.ReadU2()
		if err != nil {
			return nil, formatErrorf("truncated field access_flags at %d", i)
		}
		nameIdx, err := r.ReadU2()
		if err != nil {
			return nil, formatErrorf("truncated field name_index at %d", i)
		}
		descIdx, err := r.ReadU2()
		if err != nil {
			return nil, formatErrorf("truncated field descriptor_index at %d", i)
		}
		nameEntry := cp.At(int(nameIdx))
		descEntry := cp.At(int(descIdx))
		if nameEntry == nil || nameEntry.Tag() != clazz.TagUtf8 || descEntry == nil || descEntry.Tag() != clazz.TagUtf8 {
			return nil, formatErrorf("field %d has invalid name/descriptor ref", i)
		}

		fi := &FieldInfo{
			AccessFlags: int(accessFlags),
			Name:        nameEntry.Utf,
			Descriptor:  descEntry.Utf,
			Type:        descriptorType(descEntry.Utf.String()),
		}

		attrCount, err := r.ReadU2()
		if err != nil {
			return nil, formatErrorf("truncated field attributes_count at %d", i)
		}
		for a := 0; a < int(attrCount); a++ {
			name, length, err := readAttrHeader(r, cp)
			if err != nil {
				return nil, err
			}
			if name == "ConstantValue" {
				idx, err := r.ReadU2()
				if err != nil {
					return nil, formatErrorf("truncated ConstantValue index")
				}
				entry := cp.At(int(idx))
				if entry == nil {
					return nil, formatErrorf("ConstantValue refers to invalid index %d", idx)
				}
				fi.HasConstantValue = true
				fi.ConstantValue = entry
			} else {
				if err := r.Skip(int(length)); err != nil {
					return nil, err
				}
			}
		}

		fields = append(fields, fi)
	}
	return fields, nil
}
