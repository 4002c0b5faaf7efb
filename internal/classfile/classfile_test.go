package classfile

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/babevm/babevm-sub001/internal/clazz"
	"github.com/babevm/babevm-sub001/internal/strpool"
)

// buildMinimalClass hand-assembles the bytes of a trivial class file:
//
//	public class Foo extends java.lang.Object { }
func buildMinimalClass(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := func(v any) {
		if err := binary.Write(&buf, binary.BigEndian, v); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	w(uint32(Magic))
	w(uint16(0))  // minor
	w(uint16(52)) // major

	w(uint16(5)) // constant_pool_count (4 usable entries)

	// #1 Utf8 "Foo"
	w(uint8(clazz.TagUtf8))
	w(uint16(len("Foo")))
	buf.WriteString("Foo")

	// #2 Class -> #1
	w(uint8(clazz.TagClass))
	w(uint16(1))

	// #3 Utf8 "java/lang/Object"
	w(uint8(clazz.TagUtf8))
	w(uint16(len("java/lang/Object")))
	buf.WriteString("java/lang/Object")

	// #4 Class -> #3
	w(uint8(clazz.TagClass))
	w(uint16(3))

	w(uint16(clazz.AccPublic | clazz.AccSuper)) // access_flags
	w(uint16(2))                                // this_class
	w(uint16(4))                                // super_class
	w(uint16(0))                                // interfaces_count
	w(uint16(0))                                // fields_count
	w(uint16(0))                                // methods_count
	w(uint16(0))                                // attributes_count

	return buf.Bytes()
}

func TestParseMinimalClass(t *testing.T) {
	data := buildMinimalClass(t)
	utf := strpool.NewUTFPool()
	interns := strpool.NewInternPool()

	cf, err := Parse(NewReader(bytes.NewReader(data)), utf, interns)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cf.ThisClass.String() != "Foo" {
		t.Fatalf("ThisClass = %q, want Foo", cf.ThisClass.String())
	}
	if cf.SuperClass.String() != "java/lang/Object" {
		t.Fatalf("SuperClass = %q, want java/lang/Object", cf.SuperClass.String())
	}
	if cf.AccessFlags&clazz.AccPublic == 0 {
		t.Fatalf("expected ACC_PUBLIC to be set")
	}

	// Round-trip: every Class entry in the pool must have OPT set and a
	// resolved name (spec.md §8 property 11, restricted to what the parser
	// itself resolves; symbolic clazz/field/method resolution against a
	// live class pool is internal/loader's job).
	for i := 1; i < cf.ConstantPool.Count(); i++ {
		e := cf.ConstantPool.At(i)
		if e == nil || e.Tag() != clazz.TagClass {
			continue
		}
		if !e.OPT() {
			t.Fatalf("Class entry %d missing OPT flag after parse", i)
		}
	}
}

func TestUTFPoolCanonicalizesByContent(t *testing.T) {
	data := buildMinimalClass(t)
	utf := strpool.NewUTFPool()
	interns := strpool.NewInternPool()

	cf, err := Parse(NewReader(bytes.NewReader(data)), utf, interns)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	direct := utf.GetString("Foo", false)
	if direct != cf.ThisClass {
		t.Fatalf("UTF pool did not canonicalize \"Foo\" to the same pointer")
	}
}

func TestBadMagicRejected(t *testing.T) {
	data := buildMinimalClass(t)
	data[0] = 0x00 // corrupt magic
	utf := strpool.NewUTFPool()
	interns := strpool.NewInternPool()

	_, err := Parse(NewReader(bytes.NewReader(data)), utf, interns)
	if err == nil {
		t.Fatalf("expected ClassFormatError for bad magic")
	}
	if _, ok := err.(*ClassFormatError); !ok {
		t.Fatalf("err = %T, want *ClassFormatError", err)
	}
}

func TestArgCellsCountsLongsAsTwo(t *testing.T) {
	// (IJLjava/lang/String;)V -- int, long, String -> this(1) + 1 + 2 + 1 = 5
	got := ArgCells("(IJLjava/lang/String;)V", false)
	if got != 5 {
		t.Fatalf("ArgCells = %d, want 5", got)
	}
	if ReturnCells("(IJLjava/lang/String;)V") != 0 {
		t.Fatalf("ReturnCells should be 0 for void")
	}
	if ReturnCells("()J") != 2 {
		t.Fatalf("ReturnCells should be 2 for long")
	}
}
