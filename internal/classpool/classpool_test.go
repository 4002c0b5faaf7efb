package classpool

import (
	"testing"

	"github.com/babevm/babevm-sub001/internal/clazz"
	"github.com/babevm/babevm-sub001/internal/strpool"
)

// fakeLoader is a minimal clazz.ClassLoader for testing parent-chain walks.
type fakeLoader struct {
	bootstrap bool
	parent    clazz.ClassLoader
}

func (f *fakeLoader) IsRefValue()               {}
func (f *fakeLoader) IsBootstrap() bool         { return f.bootstrap }
func (f *fakeLoader) Parent() clazz.ClassLoader { return f.parent }

func TestInsertAndLookupByExactLoader(t *testing.T) {
	p := New()
	utf := strpool.NewUTFPool()
	boot := &fakeLoader{bootstrap: true}

	name := utf.GetString("java/lang/Object", true)
	c := &clazz.Clazz{Name: name, Loader: boot}
	p.Insert(c)

	got := p.Lookup(boot, name)
	if got != c {
		t.Fatalf("Lookup did not find inserted clazz")
	}
}

func TestLookupWalksAncestorChain(t *testing.T) {
	p := New()
	utf := strpool.NewUTFPool()
	boot := &fakeLoader{bootstrap: true}
	user := &fakeLoader{parent: boot}

	name := utf.GetString("java/lang/String", true)
	c := &clazz.Clazz{Name: name, Loader: boot}
	p.Insert(c)

	// A class loaded by the bootstrap loader must be visible to a child
	// loader's lookup (spec.md §4.B: "loader is either the requested loader
	// or any ancestor").
	got := p.Lookup(user, name)
	if got != c {
		t.Fatalf("Lookup did not walk to ancestor bootstrap loader")
	}
}

func TestLookupRejectsUnrelatedLoader(t *testing.T) {
	p := New()
	utf := strpool.NewUTFPool()
	loaderA := &fakeLoader{}
	loaderB := &fakeLoader{}

	name := utf.GetString("com/example/Foo", true)
	c := &clazz.Clazz{Name: name, Loader: loaderA}
	p.Insert(c)

	if got := p.Lookup(loaderB, name); got != nil {
		t.Fatalf("Lookup found clazz via an unrelated loader: %v", got)
	}
}

func TestRemoveUnlinksFromBucket(t *testing.T) {
	p := New()
	utf := strpool.NewUTFPool()
	boot := &fakeLoader{bootstrap: true}

	name := utf.GetString("java/util/List", true)
	c := &clazz.Clazz{Name: name, Loader: boot}
	p.Insert(c)
	if p.Count() != 1 {
		t.Fatalf("Count = %d, want 1", p.Count())
	}

	p.Remove(c)
	if p.Count() != 0 {
		t.Fatalf("Count after Remove = %d, want 0", p.Count())
	}
	if got := p.Lookup(boot, name); got != nil {
		t.Fatalf("Lookup found removed clazz")
	}
}

func TestGrowPreservesAllEntries(t *testing.T) {
	p := New()
	utf := strpool.NewUTFPool()
	boot := &fakeLoader{bootstrap: true}

	const n = initialBuckets * growLoadFactor // force at least one grow
	names := make([]*strpool.Utf, 0, n)
	for i := 0; i < n; i++ {
		name := utf.GetString(string(rune('a'+(i%26)))+string(rune(i)), true)
		names = append(names, name)
		p.Insert(&clazz.Clazz{Name: name, Loader: boot})
	}

	for _, name := range names {
		if got := p.Lookup(boot, name); got == nil {
			t.Fatalf("entry %q lost after grow", name.String())
		}
	}
}

func TestWalkVisitsEveryEntry(t *testing.T) {
	p := New()
	utf := strpool.NewUTFPool()
	boot := &fakeLoader{bootstrap: true}

	want := 5
	for i := 0; i < want; i++ {
		name := utf.GetString(string(rune('A'+i)), true)
		p.Insert(&clazz.Clazz{Name: name, Loader: boot})
	}

	got := 0
	p.Walk(func(c *clazz.Clazz) bool {
		got++
		return true
	})
	if got != want {
		t.Fatalf("Walk visited %d entries, want %d", got, want)
	}
}
