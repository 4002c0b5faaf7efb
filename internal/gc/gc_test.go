package gc

import (
	"testing"

	"github.com/babevm/babevm-sub001/internal/cell"
	"github.com/babevm/babevm-sub001/internal/classpool"
	"github.com/babevm/babevm-sub001/internal/clazz"
	"github.com/babevm/babevm-sub001/internal/frame"
	"github.com/babevm/babevm-sub001/internal/object"
	"github.com/babevm/babevm-sub001/internal/strpool"
	"github.com/babevm/babevm-sub001/internal/thread"
	"github.com/babevm/babevm-sub001/internal/vmheap"
)

func newTestSystem(t *testing.T) (*vmheap.Arena, *object.Heap) {
	t.Helper()
	arena, err := vmheap.New(64 * 1024)
	if err != nil {
		t.Fatalf("vmheap.New: %v", err)
	}
	return arena, object.NewHeap(arena)
}

func TestCollectFreesUnreachableInstance(t *testing.T) {
	arena, h := newTestSystem(t)
	ic := clazz.NewInstanceClazz()
	ic.InstanceFieldCount = 0

	inst, err := h.NewInstance(ic)
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}

	c := New(arena, h, &Roots{})
	c.Collect()

	if h.Lookup(inst.Ptr) != nil {
		t.Fatalf("unreachable instance survived a collection")
	}
}

func TestCollectKeepsInstanceReachableFromThreadStack(t *testing.T) {
	arena, h := newTestSystem(t)
	ic := clazz.NewInstanceClazz()
	ic.InstanceFieldCount = 0

	inst, err := h.NewInstance(ic)
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}

	stack := frame.NewStack(8)
	m := &clazz.Method{ArgCells: 1, MaxLocals: 1, MaxStack: 0}
	fr, err := stack.Push(m, ic, []cell.Cell{cell.RefOf(inst)})
	if err != nil {
		t.Fatalf("stack.Push: %v", err)
	}
	_ = fr

	th := &thread.Thread{Stack: stack}
	c := New(arena, h, &Roots{Threads: []*thread.Thread{th}})
	c.Collect()

	if h.Lookup(inst.Ptr) != inst {
		t.Fatalf("instance reachable from a live thread's locals was collected")
	}
}

func TestCollectTracesThroughInstanceFieldChain(t *testing.T) {
	arena, h := newTestSystem(t)
	ic := clazz.NewInstanceClazz()
	ic.InstanceFieldCount = 1
	ic.Fields = []*clazz.Field{
		{Owner: ic, Type: clazz.TypeRef, Offset: 0},
	}

	head, err := h.NewInstance(ic)
	if err != nil {
		t.Fatalf("NewInstance head: %v", err)
	}
	tail, err := h.NewInstance(ic)
	if err != nil {
		t.Fatalf("NewInstance tail: %v", err)
	}
	head.Fields[0] = cell.RefOf(tail)

	c := New(arena, h, &Roots{Permanent: []cell.Ref{head}})
	c.Collect()

	if h.Lookup(tail.Ptr) != tail {
		t.Fatalf("instance reachable only through a field chain was collected")
	}
}

func TestCollectTracesArrayElements(t *testing.T) {
	arena, h := newTestSystem(t)
	ac := clazz.NewArrayClazz()
	ac.ComponentType = clazz.TypeRef

	ic := clazz.NewInstanceClazz()
	elem, err := h.NewInstance(ic)
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}
	arr, err := h.NewArray(ac, 1)
	if err != nil {
		t.Fatalf("NewArray: %v", err)
	}
	arr.Elems[0] = cell.RefOf(elem)

	c := New(arena, h, &Roots{Permanent: []cell.Ref{arr}})
	c.Collect()

	if h.Lookup(elem.Ptr) != elem {
		t.Fatalf("array element was collected despite a reachable array")
	}
}

func TestCollectKeepsStaticFieldsOfPooledClass(t *testing.T) {
	arena, h := newTestSystem(t)
	ic := clazz.NewInstanceClazz()

	referenced := clazz.NewInstanceClazz()
	mirror, err := h.NewInstance(referenced)
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}
	ic.Fields = []*clazz.Field{
		{Owner: ic, IsStatic: true, Type: clazz.TypeRef, StaticValue: cell.RefOf(mirror)},
	}

	pool := classpool.New()
	pool.Insert(&ic.Clazz)

	c := New(arena, h, &Roots{Classes: pool})
	c.Collect()

	if h.Lookup(mirror.Ptr) != mirror {
		t.Fatalf("object referenced only by a static field was collected")
	}
}

func TestCollectKeepsInternedString(t *testing.T) {
	arena, h := newTestSystem(t)
	ic := clazz.NewInstanceClazz()
	s, err := h.NewString(ic, []uint16{'h', 'i'})
	if err != nil {
		t.Fatalf("NewString: %v", err)
	}

	interns := strpool.NewInternPool()
	interns.Intern(s)

	c := New(arena, h, &Roots{Interns: interns})
	c.Collect()

	if h.Lookup(s.Ptr) != s {
		t.Fatalf("interned string was collected")
	}
}

func TestCollectReleasesClassMirrorWhenClazzUnreachable(t *testing.T) {
	arena, h := newTestSystem(t)
	ic := clazz.NewInstanceClazz()
	mirror, err := h.NewClassMirror(ic, &ic.Clazz)
	if err != nil {
		t.Fatalf("NewClassMirror: %v", err)
	}
	ic.ClassMirror = mirror

	pool := classpool.New()
	pool.Insert(&ic.Clazz)

	// Nothing roots the class pool itself in this scenario.
	c := New(arena, h, &Roots{})
	c.Collect()

	if h.Lookup(mirror.Ptr) != nil {
		t.Fatalf("class mirror survived with no root keeping its clazz reachable")
	}
}

func TestCollectClearsWeakReferenceWhenReferentUnreachable(t *testing.T) {
	arena, h := newTestSystem(t)
	ic := clazz.NewInstanceClazz()

	referent, err := h.NewInstance(ic)
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}
	wr, err := h.NewWeakReference(ic, cell.RefOf(referent))
	if err != nil {
		t.Fatalf("NewWeakReference: %v", err)
	}

	// The weak reference itself is permanently rooted; its referent is not
	// rooted by anything else, so it must be cleared, not kept alive.
	c := New(arena, h, &Roots{Permanent: []cell.Ref{wr}})
	c.Collect()

	if !wr.Referent.IsNull() {
		t.Fatalf("Referent = %v, want cleared after the referent's last strong reference dropped", wr.Referent)
	}
	if h.Lookup(referent.Ptr) != nil {
		t.Fatalf("weakly-referenced-only instance survived a collection")
	}
}

func TestCollectKeepsWeakReferenceReferentReachableFromStrongRoot(t *testing.T) {
	arena, h := newTestSystem(t)
	ic := clazz.NewInstanceClazz()

	referent, err := h.NewInstance(ic)
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}
	wr, err := h.NewWeakReference(ic, cell.RefOf(referent))
	if err != nil {
		t.Fatalf("NewWeakReference: %v", err)
	}

	// referent also has a strong root independent of the weak reference.
	c := New(arena, h, &Roots{Permanent: []cell.Ref{wr, referent}})
	c.Collect()

	if wr.Referent.IsNull() {
		t.Fatalf("Referent cleared despite a surviving strong reference")
	}
	if h.Lookup(referent.Ptr) != referent {
		t.Fatalf("strongly reachable referent was collected")
	}
}

func TestCollectReportsWhetherAnythingWasFreed(t *testing.T) {
	arena, h := newTestSystem(t)
	ic := clazz.NewInstanceClazz()
	inst, err := h.NewInstance(ic)
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}

	c := New(arena, h, &Roots{Permanent: []cell.Ref{inst}})
	if c.Collect() {
		t.Fatalf("Collect() = true, want false when everything stays reachable")
	}
}
