package classfile

import (
	"strings"

	"github.com/babevm/babevm-sub001/internal/clazz"
	"github.com/babevm/babevm-sub001/internal/strpool"
)

// ArgCells walks a method descriptor "(ArgTypes)ReturnType" and counts
// argument cells, treating long/double as 2 cells each (spec.md §3 Method).
// staticMethod controls whether an implicit leading `this` cell is added.
func ArgCells(descriptor string, staticMethod bool) int {
	cells := 0
	if !staticMethod {
		cells = 1 // this
	}
	i := 1 // skip leading '('
	for i < len(descriptor) && descriptor[i] != ')' {
		t, next := scanType(descriptor, i)
		cells += t.CellSize()
		i = next
	}
	return cells
}

// ParamTypes decodes a method descriptor's argument types in order, one
// JType per argument (TypeRef standing in for both object and array types),
// for callers that need to pop/place individual arguments rather than just
// count cells (internal/interp's invoke-opcode handling).
func ParamTypes(descriptor string) []clazz.JType {
	var types []clazz.JType
	i := 1 // skip leading '('
	for i < len(descriptor) && descriptor[i] != ')' {
		t, next := scanType(descriptor, i)
		types = append(types, t)
		i = next
	}
	return types
}

// ReturnCells decodes the return-cell count (0, 1, or 2) from a descriptor's
// return type.
func ReturnCells(descriptor string) int {
	idx := strings.IndexByte(descriptor, ')')
	if idx < 0 || idx+1 >= len(descriptor) {
		return 0
	}
	ret := descriptor[idx+1]
	if ret == byte(clazz.TypeVoid) {
		return 0
	}
	t, _ := scanType(descriptor, idx+1)
	return t.CellSize()
}

// ReturnType decodes a method descriptor's return type tag (TypeVoid for a
// void method, TypeRef for both object and array returns).
func ReturnType(descriptor string) clazz.JType {
	idx := strings.IndexByte(descriptor, ')')
	if idx < 0 || idx+1 >= len(descriptor) {
		return clazz.TypeVoid
	}
	if descriptor[idx+1] == byte(clazz.TypeVoid) {
		return clazz.TypeVoid
	}
	t, _ := scanType(descriptor, idx+1)
	return t
}

// scanType reads one field-descriptor type starting at i, returning its
// base tag (TypeRef for both object and array types, since both are
// single-cell references) and the index just past it.
func scanType(descriptor string, i int) (clazz.JType, int) {
	isArray := i < len(descriptor) && descriptor[i] == '['
	for i < len(descriptor) && descriptor[i] == '[' {
		i++
	}
	if i >= len(descriptor) {
		return clazz.TypeInt, i
	}
	switch descriptor[i] {
	case 'L':
		j := strings.IndexByte(descriptor[i:], ';')
		if j < 0 {
			return clazz.TypeRef, len(descriptor)
		}
		i += j + 1
		return clazz.TypeRef, i
	default:
		base := clazz.JType(descriptor[i])
		i++
		if isArray {
			return clazz.TypeRef, i
		}
		return base, i
	}
}

func parseMethods(r *Reader, cp *clazz.ConstantPool) ([]*MethodInfo, error) {
	count, err := r.ReadU2()
	if err != nil {
		return nil, formatErrorf("truncated methods_count")
	}

	methods := make([]*MethodInfo, 0, count)
	for i := 0; i < int(count); i++ {
		accessFlags, err := r.ReadU2()
		if err != nil {
			return nil, formatErrorf("truncated method access_flags at %d", i)
		}
		nameIdx, err := r.ReadU2()
		if err != nil {
			return nil, formatErrorf("truncated method name_index at %d", i)
		}
		descIdx, err := r.ReadU2()
		if err != nil {
			return nil, formatErrorf("truncated method descriptor_index at %d", i)
		}
		nameEntry := cp.At(int(nameIdx))
		descEntry := cp.At(int(descIdx))
		if nameEntry == nil || nameEntry.Tag() != clazz.TagUtf8 || descEntry == nil || descEntry.Tag() != clazz.TagUtf8 {
			return nil, formatErrorf("method %d has invalid name/descriptor ref", i)
		}

		mi := &MethodInfo{
			AccessFlags: int(accessFlags),
			Name:        nameEntry.Utf,
			Descriptor:  descEntry.Utf,
		}

		attrCount, err := r.ReadU2()
		if err != nil {
			return nil, formatErrorf("truncated method attributes_count at %d", i)
		}
		for a := 0; a < int(attrCount); a++ {
			name, length, err := readAttrHeader(r, cp)
			if err != nil {
				return nil, err
			}
			switch name {
			case "Code":
				code, err := parseCodeAttr(r, cp)
				if err != nil {
					return nil, err
				}
				mi.Code = code
			case "Exceptions":
				names, err := parseExceptionsAttr(r, cp)
				if err != nil {
					return nil, err
				}
				mi.CheckedExceptions = names
			default:
				if err := r.Skip(int(length)); err != nil {
					return nil, err
				}
			}
		}

		methods = append(methods, mi)
	}
	return methods, nil
}

func parseExceptionsAttr(r *Reader, cp *clazz.ConstantPool) ([]*strpool.Utf, error) {
	count, err := r.ReadU2()
	if err != nil {
		return nil, formatErrorf("truncated exception_table_length")
	}
	out := make([]*strpool.Utf, 0, count)
	for i := 0; i < int(count); i++ {
		idx, err := r.ReadU2()
		if err != nil {
			return nil, formatErrorf("truncated checked exception index")
		}
		name, err := classNameAt(cp, idx)
		if err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, nil
}

func parseCodeAttr(r *Reader, cp *clazz.ConstantPool) (*CodeAttr, error) {
	maxStack, err := r.ReadU2()
	if err != nil {
		return nil, formatErrorf("truncated max_stack")
	}
	maxLocals, err := r.ReadU2()
	if err != nil {
		return nil, formatErrorf("truncated max_locals")
	}
	codeLen, err := r.ReadU4()
	if err != nil {
		return nil, formatErrorf("truncated code_length")
	}
	code, err := r.ReadNBytes(int(codeLen))
	if err != nil {
		return nil, formatErrorf("truncated code array")
	}

	excCount, err := r.ReadU2()
	if err != nil {
		return nil, formatErrorf("truncated exception_table_length")
	}
	excTable := make([]*clazz.ExceptionTableEntry, 0, excCount)
	for i := 0; i < int(excCount); i++ {
		startPC, err := r.ReadU2()
		if err != nil {
			return nil, formatErrorf("truncated exception table start_pc")
		}
		endPC, err := r.ReadU2()
		if err != nil {
			return nil, formatErrorf("truncated exception table end_pc")
		}
		handlerPC, err := r.ReadU2()
		if err != nil {
			return nil, formatErrorf("truncated exception table handler_pc")
		}
		catchIdx, err := r.ReadU2()
		if err != nil {
			return nil, formatErrorf("truncated exception table catch_type")
		}
		entry := &clazz.ExceptionTableEntry{
			StartPC:   int(startPC),
			EndPC:     int(endPC),
			HandlerPC: int(handlerPC),
		}
		if catchIdx != 0 {
			ce := cp.At(int(catchIdx))
			if ce == nil || ce.Tag() != clazz.TagClass {
				return nil, formatErrorf("exception table catch_type %d invalid", catchIdx)
			}
			ref, _ := ce.ResolvedPtr.(*clazz.ClassRef)
			entry.CatchTypeName = ref.Name
		}
		excTable = append(excTable, entry)
	}

	ca := &CodeAttr{
		MaxStack:       int(maxStack),
		MaxLocals:      int(maxLocals),
		Code:           code,
		ExceptionTable: excTable,
	}

	attrCount, err := r.ReadU2()
	if err != nil {
		return nil, formatErrorf("truncated code attributes_count")
	}
	for i := 0; i < int(attrCount); i++ {
		name, length, err := readAttrHeader(r, cp)
		if err != nil {
			return nil, err
		}
		switch name {
		case "LineNumberTable":
			lines, err := parseLineNumberTable(r)
			if err != nil {
				return nil, err
			}
			ca.Lines = append(ca.Lines, lines...)
		case "LocalVariableTable":
			vars, err := parseLocalVariableTable(r, cp)
			if err != nil {
				return nil, err
			}
			ca.LocalVars = append(ca.LocalVars, vars...)
		default:
			if err := r.Skip(int(length)); err != nil {
				return nil, err
			}
		}
	}

	return ca, nil
}

func parseLineNumberTable(r *Reader) ([]clazz.LineEntry, error) {
	count, err := r.ReadU2()
	if err != nil {
		return nil, formatErrorf("truncated line_number_table_length")
	}
	out := make([]clazz.LineEntry, 0, count)
	for i := 0; i < int(count); i++ {
		startPC, err := r.ReadU2()
		if err != nil {
			return nil, formatErrorf("truncated line table start_pc")
		}
		line, err := r.ReadU2()
		if err != nil {
			return nil, formatErrorf("truncated line table line_number")
		}
		out = append(out, clazz.LineEntry{StartPC: int(startPC), Line: int(line)})
	}
	return out, nil
}

func parseLocalVariableTable(r *Reader, cp *clazz.ConstantPool) ([]clazz.LocalVarEntry, error) {
	count, err := r.ReadU2()
	if err != nil {
		return nil, formatErrorf("truncated local_variable_table_length")
	}
	out := make([]clazz.LocalVarEntry, 0, count)
	for i := 0; i < int(count); i++ {
		startPC, err := r.ReadU2()
		if err != nil {
			return nil, formatErrorf("truncated local var start_pc")
		}
		length, err := r.ReadU2()
		if err != nil {
			return nil, formatErrorf("truncated local var length")
		}
		nameIdx, err := r.ReadU2()
		if err != nil {
			return nil, formatErrorf("truncated local var name_index")
		}
		descIdx, err := r.ReadU2()
		if err != nil {
			return nil, formatErrorf("truncated local var descriptor_index")
		}
		index, err := r.ReadU2()
		if err != nil {
			return nil, formatErrorf("truncated local var index")
		}
		nameEntry := cp.At(int(nameIdx))
		descEntry := cp.At(int(descIdx))
		entry := clazz.LocalVarEntry{StartPC: int(startPC), Length: int(length), Index: int(index)}
		if nameEntry != nil && nameEntry.Tag() == clazz.TagUtf8 {
			entry.Name = nameEntry.Utf
		}
		if descEntry != nil && descEntry.Tag() == clazz.TagUtf8 {
			entry.Signature = descEntry.Utf
		}
		out = append(out, entry)
	}
	return out, nil
}
