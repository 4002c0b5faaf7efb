package interp

import (
	"encoding/binary"
	"math"

	"github.com/babevm/babevm-sub001/internal/cell"
	"github.com/babevm/babevm-sub001/internal/clazz"
	"github.com/babevm/babevm-sub001/internal/object"
)

// loadElem/storeElem translate between a Cell (the operand stack's
// one-cell-per-value convention, spec.md §3) and an ArrayObject's backing
// storage: Elems directly for reference components, or a big-endian byte
// encoding of Primitive for the eight primitive component types -- the
// array's own per-element addressing, distinct from the stack/locals
// convention above it.
func loadElem(a *object.ArrayObject, i int) cell.Cell {
	switch a.Clazz.ComponentType {
	case clazz.TypeRef, clazz.TypeArray:
		return a.Elems[i]
	case clazz.TypeByte, clazz.TypeBoolean:
		return cell.Int(int32(int8(a.Primitive[i])))
	case clazz.TypeChar:
		return cell.Int(int32(binary.BigEndian.Uint16(a.Primitive[i*2:])))
	case clazz.TypeShort:
		return cell.Int(int32(int16(binary.BigEndian.Uint16(a.Primitive[i*2:]))))
	case clazz.TypeInt:
		return cell.Int(int32(binary.BigEndian.Uint32(a.Primitive[i*4:])))
	case clazz.TypeFloat:
		return cell.Float(math.Float32frombits(binary.BigEndian.Uint32(a.Primitive[i*4:])))
	case clazz.TypeLong:
		return cell.Long(int64(binary.BigEndian.Uint64(a.Primitive[i*8:])))
	case clazz.TypeDouble:
		return cell.Double(math.Float64frombits(binary.BigEndian.Uint64(a.Primitive[i*8:])))
	default:
		return cell.Zero
	}
}

func storeElem(a *object.ArrayObject, i int, v cell.Cell) {
	switch a.Clazz.ComponentType {
	case clazz.TypeRef, clazz.TypeArray:
		a.Elems[i] = v
	case clazz.TypeByte, clazz.TypeBoolean:
		a.Primitive[i] = byte(v.Int())
	case clazz.TypeChar, clazz.TypeShort:
		binary.BigEndian.PutUint16(a.Primitive[i*2:], uint16(v.Int()))
	case clazz.TypeInt:
		binary.BigEndian.PutUint32(a.Primitive[i*4:], uint32(v.Int()))
	case clazz.TypeFloat:
		binary.BigEndian.PutUint32(a.Primitive[i*4:], math.Float32bits(v.Float()))
	case clazz.TypeLong:
		binary.BigEndian.PutUint64(a.Primitive[i*8:], uint64(v.Long()))
	case clazz.TypeDouble:
		binary.BigEndian.PutUint64(a.Primitive[i*8:], math.Float64bits(v.Double()))
	}
}

// instancePartOf recovers the embedded Instance from any heap object kind
// that carries one by value (StringObj, ClassObj, Throwable all embed
// Instance directly rather than by pointer, so a plain type assertion to
// *object.Instance only matches ordinary instances).
func instancePartOf(ref cell.Ref) *object.Instance {
	switch v := ref.(type) {
	case *object.Instance:
		return v
	case *object.StringObj:
		return &v.Instance
	case *object.ClassObj:
		return &v.Instance
	case *object.Throwable:
		return &v.Instance
	default:
		return nil
	}
}

// runtimeClazzOf returns any heap object's runtime Clazz, instance or array
// alike, for checkcast/instanceof/array-store assignability checks.
func runtimeClazzOf(ref cell.Ref) *clazz.Clazz {
	if ic := object.ClazzOf(ref); ic != nil {
		return &ic.Clazz
	}
	if ao, ok := ref.(*object.ArrayObject); ok {
		return &ao.Clazz.Clazz
	}
	return nil
}

func nameOf(c *clazz.Clazz) string {
	if c == nil || c.Name == nil {
		return "?"
	}
	return c.Name.String()
}

// arrayClazzNameFor builds the internal array-class name one dimension
// above component (spec.md §4.D array naming: "[" + component descriptor).
func arrayClazzNameFor(component *clazz.Clazz) string {
	switch component.Variant {
	case clazz.VariantArray:
		return "[" + component.Name.String()
	case clazz.VariantPrimitive:
		return "[" + primitiveTag(component.Name.String())
	default:
		return "[L" + component.Name.String() + ";"
	}
}

func primitiveTag(name string) string {
	switch name {
	case "boolean":
		return "Z"
	case "byte":
		return "B"
	case "char":
		return "C"
	case "short":
		return "S"
	case "int":
		return "I"
	case "long":
		return "J"
	case "float":
		return "F"
	case "double":
		return "D"
	default:
		return "?"
	}
}

// newarrayTag maps the newarray instruction's operand byte (JVMS 6.5 Table
// 6.5-A) to its primitive type descriptor character.
func newarrayTag(atype int) byte {
	switch atype {
	case ATBoolean:
		return 'Z'
	case ATChar:
		return 'C'
	case ATFloat:
		return 'F'
	case ATDouble:
		return 'D'
	case ATByte:
		return 'B'
	case ATShort:
		return 'S'
	case ATInt:
		return 'I'
	case ATLong:
		return 'J'
	default:
		return 'I'
	}
}
