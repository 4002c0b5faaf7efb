// Package gc implements the VM's tri-color mark/sweep collector (spec.md
// §4.G). Because scheduling is cooperative, a collection is trivially
// stop-the-world: it only ever runs from inside vmheap.Arena.Alloc on
// exhaustion, between bytecodes, never mid-instruction.
//
// The mark phase's type-directed tracing switch is grounded on spec.md
// §4.G's per-kind rules directly; its worklist/color-flip shape mirrors
// the teacher's heap-dump reachability walk (a BFS over an object graph
// coloring visited nodes as it goes), repurposed from "find what a heap
// dump's dominator tree reaches" to "find what this live VM still reaches".
package gc

import (
	"time"

	"github.com/babevm/babevm-sub001/internal/cell"
	"github.com/babevm/babevm-sub001/internal/classpool"
	"github.com/babevm/babevm-sub001/internal/clazz"
	"github.com/babevm/babevm-sub001/internal/frame"
	"github.com/babevm/babevm-sub001/internal/object"
	"github.com/babevm/babevm-sub001/internal/strpool"
	"github.com/babevm/babevm-sub001/internal/thread"
	"github.com/babevm/babevm-sub001/internal/vmheap"
)

// Roots is everything the collector starts tracing from (spec.md §4.G).
type Roots struct {
	Threads []*thread.Thread
	Classes *classpool.Pool
	Interns *strpool.InternPool

	// Permanent never needs re-supplying: bootstrap Class mirrors, the
	// pre-cooked OutOfMemoryError, interned sentinels.
	Permanent []cell.Ref
	// Transient holds pointers a caller is mid-way through a multi-step
	// allocation sequence with, protecting them from a GC that fires
	// between the steps (spec.md §4.G "transient-root list").
	Transient []cell.Ref
}

// Collector runs mark/sweep over one arena/heap pair.
type Collector struct {
	Arena *vmheap.Arena
	Heap  *object.Heap
	Roots *Roots

	// OnCollect, if set, is called after every Collect with the arena's
	// free-byte total immediately before and after the cycle and the
	// wall-clock pause duration. internal/vm wires this to internal/gcstats
	// so collector behavior can be recorded without this package needing to
	// know gcstats exists.
	OnCollect func(before, after uint32, pause time.Duration)

	gray []cell.Ref
}

func New(arena *vmheap.Arena, heap *object.Heap, roots *Roots) *Collector {
	return &Collector{Arena: arena, Heap: heap, Roots: roots}
}

// Collect runs one full mark/sweep cycle and reports whether it freed
// anything, the signal vmheap.Arena.Alloc uses to decide whether a second
// allocation attempt is worth making.
func (c *Collector) Collect() bool {
	start := time.Now()
	before := c.Arena.FreeTotal()

	c.mark()
	c.clearWeakRefs()
	freed := c.sweep()

	if c.OnCollect != nil {
		c.OnCollect(before, c.Arena.FreeTotal(), time.Since(start))
	}
	return freed > 0
}

// ptrOf extracts the backing arena pointer of a heap-traceable value. Every
// concrete type in internal/object embeds or declares a Ptr field; this
// switch is the one place that knowledge is centralized.
func ptrOf(ref cell.Ref) vmheap.Ptr {
	switch v := ref.(type) {
	case *object.Instance:
		return v.Ptr
	case *object.ArrayObject:
		return v.Ptr
	case *object.StringObj:
		return v.Ptr
	case *object.ClassObj:
		return v.Ptr
	case *object.Throwable:
		return v.Ptr
	case *object.WeakReference:
		return v.Ptr
	default:
		return 0
	}
}

func (c *Collector) markRef(ref cell.Ref) {
	if ref == nil {
		return
	}
	p := ptrOf(ref)
	if p == 0 {
		return
	}
	if c.Arena.Color(p) != vmheap.White {
		return
	}
	c.Arena.SetColor(p, vmheap.Gray)
	c.gray = append(c.gray, ref)
}

func (c *Collector) markCell(cl cell.Cell) {
	if cl.IsRef() && !cl.IsNull() {
		c.markRef(cl.Ref())
	}
}

func (c *Collector) markJavaString(js strpool.JavaString) {
	if js == nil {
		return
	}
	if r, ok := js.(cell.Ref); ok {
		c.markRef(r)
	}
}

func (c *Collector) mark() {
	c.gray = c.gray[:0]

	for _, t := range c.Roots.Threads {
		if t.Stack == nil {
			continue
		}
		t.Stack.Walk(func(f *frame.Frame) {
			for _, cl := range f.LiveCells() {
				c.markCell(cl)
			}
		})
		c.markRef(t.PendingException)
	}

	if c.Roots.Classes != nil {
		c.Roots.Classes.Walk(func(cz *clazz.Clazz) bool {
			c.markClazzMirror(cz)
			c.markStaticFields(cz)
			return true
		})
	}

	if c.Roots.Interns != nil {
		c.Roots.Interns.Walk(c.markJavaString)
	}

	for _, r := range c.Roots.Permanent {
		c.markRef(r)
	}
	for _, r := range c.Roots.Transient {
		c.markRef(r)
	}

	for len(c.gray) > 0 {
		ref := c.gray[len(c.gray)-1]
		c.gray = c.gray[:len(c.gray)-1]
		c.trace(ref)
		c.Arena.SetColor(ptrOf(ref), vmheap.Black)
	}
}

// markClazzMirror marks a clazz's Class mirror object, the heap-resident
// value that actually sits in the Go object registry; the Clazz metadata
// itself is owned by the class pool, not the arena's color bits.
func (c *Collector) markClazzMirror(cz *clazz.Clazz) {
	if cz.ClassMirror != nil {
		c.markRef(cz.ClassMirror)
	}
}

// markStaticFields marks every reference-typed static field cell declared
// directly by an instance clazz (spec.md §4.G "static fields of every
// loaded class"). Array and primitive clazzes declare no fields of their
// own. The static-long side array holds no references by construction
// (spec.md §3 "skip the static-long side array"), so only FieldAccLong == 0
// entries are ever inspected here.
func (c *Collector) markStaticFields(cz *clazz.Clazz) {
	ic := cz.AsInstanceClazz()
	if ic == nil {
		return
	}
	for _, f := range ic.Fields {
		if !f.IsStatic || f.IsLong() {
			continue
		}
		if f.Type != clazz.TypeRef && f.Type != clazz.TypeArray {
			continue
		}
		c.markCell(f.StaticValue)
	}
}

// trace dispatches on concrete object type, the Go-level stand-in for
// spec.md §4.G's allocation-kind switch (INSTANCE/ARRAY_OF_OBJECT/
// ARRAY_OF_PRIMITIVE/STRING/DATA).
func (c *Collector) trace(ref cell.Ref) {
	switch v := ref.(type) {
	case *object.Instance:
		c.traceInstanceFields(v.Clazz, v.Fields)
	case *object.Throwable:
		c.traceInstanceFields(v.Clazz, v.Fields)
		if v.Message != nil {
			c.markRef(v.Message)
		}
	case *object.ClassObj:
		c.traceInstanceFields(v.Clazz, v.Fields)
	case *object.StringObj:
		c.traceInstanceFields(v.Clazz, v.Fields)
		// The backing char array is a plain Go []uint16 living inline in
		// the StringObj, not a separately heap-tracked allocation, so
		// there's nothing beyond the String instance's own fields to
		// trace (spec.md §4.G STRING).
	case *object.ArrayObject:
		for _, e := range v.Elems {
			c.markCell(e)
		}
		// Primitive component arrays hold no pointers (spec.md §4.G
		// ARRAY_OF_PRIMITIVE).
	case *object.WeakReference:
		// Deliberately not traced (spec.md §4.G "weak references are not
		// traced during mark"); see clearWeakRefs.
	}
}

// clearWeakRefs runs between mark and sweep. A WeakReference is itself an
// ordinary strongly-reached object (it got here because mark dequeued it
// off c.gray), but its Referent was skipped by trace, so the referent's
// color still reflects whether anything *else* reaches it. Any referent
// left WHITE has no strong path to it and is cleared (spec.md §4.G "after
// mark, their referents are checked and cleared if WHITE"; §8 S6).
func (c *Collector) clearWeakRefs() {
	c.Heap.Walk(func(_ vmheap.Ptr, ref cell.Ref) {
		w, ok := ref.(*object.WeakReference)
		if !ok || !w.Referent.IsRef() || w.Referent.IsNull() {
			return
		}
		rp := ptrOf(w.Referent.Ref())
		if rp != 0 && c.Arena.Color(rp) == vmheap.White {
			w.Referent = cell.Null()
		}
	})
}

// traceInstanceFields walks cz and every superclass's own field list,
// marking any instance (non-static) reference-typed field's cell.
func (c *Collector) traceInstanceFields(cz *clazz.InstanceClazz, fields []cell.Cell) {
	for cur := cz; cur != nil; cur = cur.Super {
		for _, f := range cur.Fields {
			if f.IsStatic {
				continue
			}
			if f.Type != clazz.TypeRef && f.Type != clazz.TypeArray {
				continue
			}
			if f.Offset < len(fields) {
				c.markCell(fields[f.Offset])
			}
		}
	}
}

// sweep walks every arena chunk, releasing the ones left White (unreached)
// and resetting every survivor back to White for the next cycle (spec.md
// §4.G linear sweep).
func (c *Collector) sweep() int {
	var dead []vmheap.Ptr
	c.Arena.Walk(func(p vmheap.Ptr, kind vmheap.Kind, color vmheap.Color, inUse bool) {
		if !inUse || kind == vmheap.KindFree {
			return
		}
		if color == vmheap.White {
			dead = append(dead, p)
		} else {
			c.Arena.SetColor(p, vmheap.White)
		}
	})
	for _, p := range dead {
		c.Heap.Release(p)
	}
	return len(dead)
}
