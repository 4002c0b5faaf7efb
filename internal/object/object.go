// Package object implements instance and array allocation/layout on top of
// the arena (spec.md §4.D). Rather than read and write every field through
// raw arena bytes, each live object is a small Go struct holding its field
// cells directly; the arena allocation backing it exists purely for
// byte-accounting, OOM triggering, and GC chunk-walking (the same
// registry-of-what's-live split documented in internal/vmheap's header
// comment, itself grounded on internal/heap/registry/instances.go from the
// teacher). internal/gc's sweep walks the arena for freed chunks and looks
// up the owning Go object in the Heap's registry to release it.
package object

import (
	"errors"
	"fmt"

	"github.com/babevm/babevm-sub001/internal/cell"
	"github.com/babevm/babevm-sub001/internal/clazz"
	"github.com/babevm/babevm-sub001/internal/vmheap"
)

// MaxArrayLength is the bounded-length guard rejecting array allocations
// that would overflow a chunk size computation (spec.md §4.D).
const MaxArrayLength = 0x7FFFFFF // keeps length*8 within uint32; larger than the arena's 24-bit chunk size field

var ErrNegativeLength = errors.New("object: negative array length")
var ErrArrayTooLong = errors.New("object: array length exceeds maximum")

// refWordSize is the accounted byte cost of one reference-typed field or
// array element, used only to size the arena chunk for GC bookkeeping; the
// actual pointer lives in the Go-level Fields/Elems slice, not these bytes.
const refWordSize = 8

// Instance is a heap-allocated instance of some InstanceClazz.
type Instance struct {
	Clazz  *clazz.InstanceClazz
	Fields []cell.Cell
	Ptr    vmheap.Ptr
}

func (o *Instance) IsRefValue() {}

// ArrayObject is a heap-allocated array, either of references or of one
// primitive type (spec.md §3 "arrays of primitives and references share a
// common header... followed by a data region").
type ArrayObject struct {
	Clazz     *clazz.ArrayClazz
	Length    int
	Elems     []cell.Cell // populated iff Clazz.ComponentType == clazz.TypeRef
	Primitive []byte      // populated otherwise, Length*ComponentType.ElementSize() bytes
	Ptr       vmheap.Ptr
}

func (a *ArrayObject) IsRefValue() {}

// Heap couples the byte-accounting arena to the registry of live Go objects
// it backs. One Heap is owned by the VM and shared by every thread (spec.md
// §8 "shared resources... process-wide").
type Heap struct {
	Arena   *vmheap.Arena
	objects map[vmheap.Ptr]cell.Ref
}

func NewHeap(arena *vmheap.Arena) *Heap {
	return &Heap{Arena: arena, objects: make(map[vmheap.Ptr]cell.Ref)}
}

// Lookup returns the live object backing a heap pointer, or nil if it has
// been freed (or p is the null pointer).
func (h *Heap) Lookup(p vmheap.Ptr) cell.Ref {
	if p == 0 {
		return nil
	}
	return h.objects[p]
}

// Release drops an object from the registry and frees its accounting chunk;
// called by the collector's sweep phase for unreached pointers.
func (h *Heap) Release(p vmheap.Ptr) {
	delete(h.objects, p)
	h.Arena.Free(p)
}

// NewInstance allocates and zero-initializes a new instance of c. Field
// cells start at cell.Zero (spec.md §4.D "zeroes all field cells"); the
// layout (which index holds which field) is whatever c.Fields' Offset
// values, computed by the loader, say.
func (h *Heap) NewInstance(c *clazz.InstanceClazz) (*Instance, error) {
	size := uint32(c.InstanceFieldCount) * refWordSize
	if size == 0 {
		size = refWordSize // never hand out a zero-byte accounting chunk
	}
	p, err := h.Arena.Calloc(size, vmheap.KindInstance)
	if err != nil {
		return nil, err
	}
	inst := &Instance{
		Clazz:  c,
		Fields: make([]cell.Cell, c.InstanceFieldCount),
		Ptr:    p,
	}
	h.objects[p] = inst
	return inst, nil
}

// NewArray allocates an array of arrClazz with the given length; the element
// storage follows arrClazz.ComponentType.
func (h *Heap) NewArray(arrClazz *clazz.ArrayClazz, length int) (*ArrayObject, error) {
	if length < 0 {
		return nil, ErrNegativeLength
	}
	if length > MaxArrayLength {
		return nil, ErrArrayTooLong
	}

	ao := &ArrayObject{Clazz: arrClazz, Length: length}

	var byteSize uint32
	var kind vmheap.Kind
	if arrClazz.ComponentType == clazz.TypeRef || arrClazz.ComponentType == clazz.TypeArray {
		ao.Elems = make([]cell.Cell, length)
		byteSize = uint32(length) * refWordSize
		kind = vmheap.KindArrayObject
	} else {
		elemSize := arrClazz.ComponentType.ElementSize()
		ao.Primitive = make([]byte, length*elemSize)
		byteSize = uint32(length * elemSize)
		kind = vmheap.KindArrayPrimitive
	}
	if byteSize == 0 {
		byteSize = refWordSize
	}

	p, err := h.Arena.Calloc(byteSize, kind)
	if err != nil {
		return nil, err
	}
	ao.Ptr = p
	h.objects[p] = ao
	return ao, nil
}

// NewMultiArray recursively constructs a multi-dimensional array. dims gives
// the length of each of the first len(dims) dimensions; componentOf must
// return the ArrayClazz one dimension down from its argument (synthesized
// by the loader). Per spec.md §4.D, the JVMS "dimensions" parameter is
// authoritative and may be less than the array type's name depth -- any
// trailing dimensions beyond len(dims) are left as null element arrays.
func (h *Heap) NewMultiArray(arrClazz *clazz.ArrayClazz, dims []int, componentOf func(*clazz.ArrayClazz) *clazz.ArrayClazz) (*ArrayObject, error) {
	if len(dims) == 0 {
		return nil, fmt.Errorf("object: NewMultiArray requires at least one dimension")
	}
	outer, err := h.NewArray(arrClazz, dims[0])
	if err != nil {
		return nil, err
	}
	if len(dims) == 1 || dims[0] == 0 {
		return outer, nil
	}

	sub := componentOf(arrClazz)
	for i := range outer.Elems {
		elem, err := h.NewMultiArray(sub, dims[1:], componentOf)
		if err != nil {
			return nil, err
		}
		outer.Elems[i] = cell.RefOf(elem)
	}
	return outer, nil
}

// CloneArray performs the direct heap clone backing Object.clone() called
// on an array receiver: same size and kind, fresh element storage copied
// from the source (spec.md §4.D, "served by a direct heap clone").
func (h *Heap) CloneArray(src *ArrayObject) (*ArrayObject, error) {
	np, err := h.Arena.Clone(src.Ptr)
	if err != nil {
		return nil, err
	}
	clone := &ArrayObject{Clazz: src.Clazz, Length: src.Length, Ptr: np}
	if src.Elems != nil {
		clone.Elems = append([]cell.Cell(nil), src.Elems...)
	}
	if src.Primitive != nil {
		clone.Primitive = append([]byte(nil), src.Primitive...)
	}
	h.objects[np] = clone
	return clone, nil
}

// CloneInstance performs the direct heap clone backing Object.clone()
// called on an ordinary object receiver: a fresh instance of the same
// clazz with every field cell copied verbatim (spec.md §4.D, "served by a
// direct heap clone").
func (h *Heap) CloneInstance(src *Instance) (*Instance, error) {
	np, err := h.Arena.Clone(src.Ptr)
	if err != nil {
		return nil, err
	}
	clone := &Instance{
		Clazz:  src.Clazz,
		Fields: append([]cell.Cell(nil), src.Fields...),
		Ptr:    np,
	}
	h.objects[np] = clone
	return clone, nil
}

// ClazzOf returns the InstanceClazz of any instance-kind heap object (every
// concrete type in this package except ArrayObject), used by natives like
// Object.getClass that need a receiver's runtime type without a type
// switch at every call site.
func ClazzOf(ref cell.Ref) *clazz.InstanceClazz {
	switch v := ref.(type) {
	case *Instance:
		return v.Clazz
	case *StringObj:
		return v.Clazz
	case *ClassObj:
		return v.Clazz
	case *Throwable:
		return v.Clazz
	default:
		return nil
	}
}

// Walk invokes fn for every live object currently registered, used by the
// collector's weak-reference clearing pass between mark and sweep.
func (h *Heap) Walk(fn func(p vmheap.Ptr, ref cell.Ref)) {
	for p, ref := range h.objects {
		fn(p, ref)
	}
}
