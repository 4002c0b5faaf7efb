package object

import (
	"github.com/babevm/babevm-sub001/internal/cell"
	"github.com/babevm/babevm-sub001/internal/clazz"
	"github.com/babevm/babevm-sub001/internal/strpool"
	"github.com/babevm/babevm-sub001/internal/vmheap"
)

// StringObj is the concrete java.lang.String instance backing a char array,
// satisfying strpool.JavaString so the intern pool never needs to import
// this package.
type StringObj struct {
	Instance
	chars []uint16
}

func (s *StringObj) Chars() []uint16 { return s.chars }

// NewString allocates a String instance over the given clazz (already
// loaded and linked by internal/loader) with the given UTF-16 content.
func (h *Heap) NewString(stringClazz *clazz.InstanceClazz, chars []uint16) (*StringObj, error) {
	inst, err := h.NewInstance(stringClazz)
	if err != nil {
		return nil, err
	}
	s := &StringObj{Instance: *inst, chars: chars}
	h.objects[inst.Ptr] = s
	return s, nil
}

var _ strpool.JavaString = (*StringObj)(nil)

// ClassObj is the concrete java.lang.Class mirror instance, satisfying
// clazz.Mirror. Every Clazz gets exactly one, created and pinned when it is
// loaded (spec.md §4.C step 6).
type ClassObj struct {
	Instance
	Represents *clazz.Clazz
}

var _ clazz.Mirror = (*ClassObj)(nil)

// NewClassMirror allocates the Class instance for a newly loaded clazz.
func (h *Heap) NewClassMirror(classClazz *clazz.InstanceClazz, represents *clazz.Clazz) (*ClassObj, error) {
	inst, err := h.NewInstance(classClazz)
	if err != nil {
		return nil, err
	}
	co := &ClassObj{Instance: *inst, Represents: represents}
	h.objects[inst.Ptr] = co
	return co, nil
}

// Throwable is the concrete java.lang.Throwable instance, carrying the
// captured stack trace used by fillInStackTrace and printStackTrace
// (spec.md §4.F "locate/pop" exception model).
type Throwable struct {
	Instance
	Message    *StringObj
	StackTrace []StackFrame
}

// StackFrame is one captured call-stack entry: the method and the bytecode
// offset executing within it at the moment of capture.
type StackFrame struct {
	ClassName, MethodName *strpool.Utf
	PC                    int
	Line                  int
}

func (h *Heap) NewThrowable(throwableClazz *clazz.InstanceClazz, message *StringObj, trace []StackFrame) (*Throwable, error) {
	inst, err := h.NewInstance(throwableClazz)
	if err != nil {
		return nil, err
	}
	t := &Throwable{Instance: *inst, Message: message, StackTrace: trace}
	h.objects[inst.Ptr] = t
	return t, nil
}

// WeakReference is the concrete java.lang.ref.WeakReference instance. Its
// Referent is the one field the collector deliberately does not trace
// during mark (spec.md §4.G "weak references are not traced during mark");
// instead internal/gc's clearWeakRefs pass checks it after mark and nils it
// out if the referent came out WHITE (spec.md §8 S6). It is allocated under
// its own arena kind, not vmheap.KindInstance, so the tracer never has to
// special-case "an instance, except skip one field": the kind itself keeps
// it out of the ordinary INSTANCE tracing path.
type WeakReference struct {
	Clazz    *clazz.InstanceClazz
	Referent cell.Cell
	Ptr      vmheap.Ptr
}

func (w *WeakReference) IsRefValue() {}

// NewWeakReference allocates a weak reference to referent under refClazz
// (java.lang.ref.WeakReference or a bootstrap stand-in for it).
func (h *Heap) NewWeakReference(refClazz *clazz.InstanceClazz, referent cell.Cell) (*WeakReference, error) {
	p, err := h.Arena.Calloc(refWordSize, vmheap.KindWeakRef)
	if err != nil {
		return nil, err
	}
	w := &WeakReference{Clazz: refClazz, Referent: referent, Ptr: p}
	h.objects[p] = w
	return w, nil
}
