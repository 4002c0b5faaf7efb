package strpool

import (
	"reflect"
	"testing"
)

func TestUTFPoolGetReturnsSameEntryForEqualBytes(t *testing.T) {
	p := NewUTFPool()
	a := p.Get([]byte("hello"), true)
	b := p.Get([]byte("hello"), true)

	if a != b {
		t.Fatalf("Get returned distinct *Utf for identical content")
	}
	if a.String() != "hello" {
		t.Fatalf("String() = %q, want %q", a.String(), "hello")
	}
}

func TestUTFPoolGetWithoutAddReturnsNilForMissingEntry(t *testing.T) {
	p := NewUTFPool()
	if got := p.Get([]byte("nope"), false); got != nil {
		t.Fatalf("Get(add=false) = %v, want nil for an uninterned entry", got)
	}
}

func TestUTFPoolLenCountsDistinctEntriesOnly(t *testing.T) {
	p := NewUTFPool()
	p.GetString("a", true)
	p.GetString("b", true)
	p.GetString("a", true)

	if p.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", p.Len())
	}
}

type fakeJavaString struct {
	chars []uint16
}

func (f *fakeJavaString) Chars() []uint16 { return f.chars }

func TestInternPoolInternReturnsExistingCanonicalInstance(t *testing.T) {
	p := NewInternPool()
	first := &fakeJavaString{chars: []uint16{'h', 'i'}}
	second := &fakeJavaString{chars: []uint16{'h', 'i'}}

	got := p.Intern(first)
	if got != JavaString(first) {
		t.Fatalf("first Intern() did not return the registered instance")
	}

	got = p.Intern(second)
	if got != JavaString(first) {
		t.Fatalf("Intern() of equal content returned %v, want the first-interned instance", got)
	}
}

func TestInternPoolLookupReturnsNilWhenAbsent(t *testing.T) {
	p := NewInternPool()
	if got := p.Lookup([]uint16{'x'}); got != nil {
		t.Fatalf("Lookup() = %v, want nil before anything is interned", got)
	}
}

func TestInternPoolWalkVisitsEveryEntry(t *testing.T) {
	p := NewInternPool()
	p.Intern(&fakeJavaString{chars: []uint16{'a'}})
	p.Intern(&fakeJavaString{chars: []uint16{'b'}})

	seen := 0
	p.Walk(func(JavaString) { seen++ })

	if seen != 2 {
		t.Fatalf("Walk visited %d entries, want 2", seen)
	}
}

func TestDecodeModifiedUTF8RoundTripsThroughEncode(t *testing.T) {
	original := []byte("hello, world")
	chars := DecodeModifiedUTF8(original)
	back := EncodeModifiedUTF8(chars)

	if !reflect.DeepEqual(back, original) {
		t.Fatalf("EncodeModifiedUTF8(DecodeModifiedUTF8(%q)) = %q, want round trip", original, back)
	}
}

func TestDecodeModifiedUTF8PreservesSurrogatePairs(t *testing.T) {
	// U+1F600 (outside the BMP) is a good smoke test that the UTF-16
	// surrogate pair survives the UTF-8 round trip intact.
	original := []byte("\U0001F600")
	chars := DecodeModifiedUTF8(original)

	if len(chars) != 2 {
		t.Fatalf("len(chars) = %d, want 2 UTF-16 code units for a surrogate pair", len(chars))
	}
	back := EncodeModifiedUTF8(chars)
	if !reflect.DeepEqual(back, original) {
		t.Fatalf("EncodeModifiedUTF8(DecodeModifiedUTF8(%q)) = %q, want round trip", original, back)
	}
}
