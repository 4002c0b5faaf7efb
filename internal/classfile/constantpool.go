package classfile

import (
	"math"

	"github.com/babevm/babevm-sub001/internal/clazz"
	"github.com/babevm/babevm-sub001/internal/strpool"
)

// parseConstantPool reads the constant pool in two passes, per spec.md
// §4.C.5.b:
//
//	pass 1: materialize scalars, intern every UTF8 constant, and record
//	        index-only info for Class/String/ref entries.
//	pass 2: rewrite Class constants to point to their name UTF, and String
//	        constants to hold their decoded UTF-16 content (interned later
//	        by internal/loader).
//
// Long and Double constants consume two consecutive slots (spec.md §3);
// the slot immediately after one is left as an unusable placeholder, per
// JVMS 4.4.5.
func parseConstantPool(r *Reader, utf *strpool.UTFPool, interns *strpool.InternPool) (*clazz.ConstantPool, error) {
	count, err := r.ReadU2()
	if err != nil {
		return nil, formatErrorf("truncated constant_pool_count")
	}

	cp := clazz.NewConstantPool(int(count))

	type pending struct {
		idx int
		tag clazz.Tag
	}
	var classEntries []pending
	var stringEntries []pending
	var memberEntries []pending
	var natEntries []pending

	for i := 1; i < int(count); i++ {
		tagByte, err := r.ReadU1()
		if err != nil {
			return nil, formatErrorf("truncated constant pool tag at index %d", i)
		}
		tag := clazz.Tag(tagByte)
		e := cp.Entries[i]
		e.SetTag(tag)

		switch tag {
		case clazz.TagUtf8:
			length, err := r.ReadU2()
			if err != nil {
				return nil, formatErrorf("truncated Utf8 length at %d", i)
			}
			raw, err := r.ReadNBytes(int(length))
			if err != nil {
				return nil, formatErrorf("truncated Utf8 bytes at %d", i)
			}
			e.Utf = utf.Get(raw, true)

		case clazz.TagInteger:
			v, err := r.ReadI4()
			if err != nil {
				return nil, formatErrorf("truncated Integer at %d", i)
			}
			e.Int = v

		case clazz.TagFloat:
			v, err := r.ReadU4()
			if err != nil {
				return nil, formatErrorf("truncated Float at %d", i)
			}
			e.Float = math.Float32frombits(v)

		case clazz.TagLong:
			v, err := r.ReadU8()
			if err != nil {
				return nil, formatErrorf("truncated Long at %d", i)
			}
			e.Long = int64(v)
			if i+1 < len(cp.Entries) {
				cp.Entries[i+1] = &clazz.Entry{} // unusable placeholder slot
			}
			i++

		case clazz.TagDouble:
			v, err := r.ReadU8()
			if err != nil {
				return nil, formatErrorf("truncated Double at %d", i)
			}
			e.Double = math.Float64frombits(v)
			if i+1 < len(cp.Entries) {
				cp.Entries[i+1] = &clazz.Entry{}
			}
			i++

		case clazz.TagClass:
			idx, err := r.ReadU2()
			if err != nil {
				return nil, formatErrorf("truncated Class ref at %d", i)
			}
			e.Ref1 = idx
			classEntries = append(classEntries, pending{i, tag})

		case clazz.TagString:
			idx, err := r.ReadU2()
			if err != nil {
				return nil, formatErrorf("truncated String ref at %d", i)
			}
			e.Ref1 = idx
			stringEntries = append(stringEntries, pending{i, tag})

		case clazz.TagFieldref, clazz.TagMethodref, clazz.TagInterfaceMethodref:
			classIdx, err := r.ReadU2()
			if err != nil {
				return nil, formatErrorf("truncated ref class index at %d", i)
			}
			natIdx, err := r.ReadU2()
			if err != nil {
				return nil, formatErrorf("truncated ref name-and-type index at %d", i)
			}
			e.Ref1, e.Ref2 = classIdx, natIdx
			memberEntries = append(memberEntries, pending{i, tag})

		case clazz.TagNameAndType:
			nameIdx, err := r.ReadU2()
			if err != nil {
				return nil, formatErrorf("truncated NameAndType name at %d", i)
			}
			descIdx, err := r.ReadU2()
			if err != nil {
				return nil, formatErrorf("truncated NameAndType descriptor at %d", i)
			}
			e.Ref1, e.Ref2 = nameIdx, descIdx
			natEntries = append(natEntries, pending{i, tag})

		default:
			return nil, formatErrorf("unknown constant pool tag %d at index %d", tagByte, i)
		}
	}

	// Pass 2a: NameAndType entries first, since Fieldref/Methodref depend on them.
	for _, p := range natEntries {
		e := cp.Entries[p.idx]
		name := cp.At(int(e.Ref1))
		desc := cp.At(int(e.Ref2))
		if name == nil || name.Tag() != clazz.TagUtf8 || desc == nil || desc.Tag() != clazz.TagUtf8 {
			return nil, formatErrorf("NameAndType entry %d has invalid refs", p.idx)
		}
		e.SetResolved(&clazz.NameAndType{Name: name.Utf, Descriptor: desc.Utf})
	}

	// Pass 2b: Class entries -> name UTF.
	for _, p := range classEntries {
		e := cp.Entries[p.idx]
		nameEntry := cp.At(int(e.Ref1))
		if nameEntry == nil || nameEntry.Tag() != clazz.TagUtf8 {
			return nil, formatErrorf("Class entry %d has invalid name ref", p.idx)
		}
		e.SetResolved(&clazz.ClassRef{Name: nameEntry.Utf})
	}

	// Pass 2c: String entries -> decoded UTF-16 content.
	for _, p := range stringEntries {
		e := cp.Entries[p.idx]
		utfEntry := cp.At(int(e.Ref1))
		if utfEntry == nil || utfEntry.Tag() != clazz.TagUtf8 {
			return nil, formatErrorf("String entry %d has invalid utf ref", p.idx)
		}
		// The actual interned java.lang.String object is constructed by
		// internal/object, which depends on clazz; classfile cannot import
		// it without a cycle. We record the decoded UTF-16 content here
		// and leave final interning to the loader, which does have access
		// to both object and strpool.InternPool.
		e.SetResolved(strpool.DecodeModifiedUTF8(utfEntry.Utf.Bytes()))
	}

	// Pass 2d: Fieldref/Methodref/InterfaceMethodref -> MemberRef(className, name, descriptor).
	for _, p := range memberEntries {
		e := cp.Entries[p.idx]
		classEntry := cp.At(int(e.Ref1))
		natEntry := cp.At(int(e.Ref2))
		if classEntry == nil || classEntry.Tag() != clazz.TagClass || natEntry == nil || natEntry.Tag() != clazz.TagNameAndType {
			return nil, formatErrorf("member ref entry %d has invalid refs", p.idx)
		}
		classRef, _ := classEntry.ResolvedPtr.(*clazz.ClassRef)
		nat, _ := natEntry.ResolvedPtr.(*clazz.NameAndType)
		e.SetResolved(&clazz.MemberRef{ClassName: classRef.Name, Name: nat.Name, Descriptor: nat.Descriptor})
	}

	return cp, nil
}
