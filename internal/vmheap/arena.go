// Package vmheap implements the VM's managed heap: a single contiguous
// arena partitioned into size-tagged chunks, with alloc/free/clone on top
// of a sorted doubly-linked free list (spec.md §4.A).
//
// The arena is grounded on spec.md's algorithmic description directly; its
// registry-of-what's-live shape echoes internal/heap/registry/instances.go
// from the teacher, inverted from "remember what a dump claims is live" to
// "remember what bytes are actually owned and by whom".
package vmheap

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Kind tags a chunk's allocation kind in its header (4 bits, 16 values).
// The GC tracer (internal/gc) switches on this to know how to walk a
// chunk's contents (spec.md §4.G).
type Kind uint8

const (
	KindFree Kind = iota
	KindInstance
	KindArrayObject
	KindArrayPrimitive
	KindInstanceClazz
	KindArrayClazz
	KindPrimitiveClazz
	KindString
	KindData // opaque bytes: constant pool, bytecode, static-long side array, monitor records
	KindWeakRef // java.lang.ref.WeakReference's accounting chunk; not traced during mark (spec.md §4.G)
	kindMax
)

func (k Kind) String() string {
	names := [...]string{"free", "instance", "array-object", "array-primitive",
		"instance-clazz", "array-clazz", "primitive-clazz", "string", "data", "weak-ref"}
	if int(k) < len(names) {
		return names[k]
	}
	return "invalid"
}

// Color is the tri-color mark state (spec.md §4.G); it lives in the chunk
// header because the allocator, not the collector, owns chunk headers.
type Color uint8

const (
	White Color = iota
	Gray
	Black
)

const (
	alignment  = 8 // power of two per spec.md §4.A
	headerSize = 8 // packed header word, alignment-sized

	// A free chunk stores prev/next pointers just past its header and a
	// self-pointer in its last word (spec.md §4.A).
	freeLinkSize = 8 + 8 + 8 // prev, next, self
	// MinChunkSize is the smallest chunk the allocator ever hands out:
	// header + three pointer slots, rounded to alignment (already is).
	MinChunkSize = headerSize + freeLinkSize
)

var (
	// ErrExhausted is returned by Alloc when the arena cannot satisfy a
	// request even after one collection pass. Callers before VM init treat
	// this as fatal; callers after init raise the pre-cooked OutOfMemoryError.
	ErrExhausted = errors.New("vmheap: arena exhausted")
	// ErrInvalidChunk signals header corruption: fatal per spec.md §7 ("the
	// heap is trusted once allocated").
	ErrInvalidChunk = errors.New("vmheap: invalid chunk header")
)

// Ptr is an offset into the arena, pointing at a chunk's user data (just
// past its header). Zero is never a valid Ptr (offset 0 belongs to the
// head sentinel's header), so it doubles as a nil value.
type Ptr uint32

// Arena is the VM's single contiguous allocation region.
type Arena struct {
	buf       []byte
	size      uint32
	freeTotal uint32
	freeHead  uint32 // offset of the head sentinel (smaller than any real chunk)
	freeTail  uint32 // offset of the tail sentinel (sized as the full arena)

	// Collect is invoked by Alloc on exhaustion, once, before giving up. It
	// is wired by the owning VM to internal/gc.Collector.Collect and
	// reports whether it reclaimed anything. Left nil, Alloc fails straight
	// to ErrExhausted (used by tests that don't need a collector).
	Collect func() bool
}

func alignUp(n uint32) uint32 {
	return (n + alignment - 1) &^ (alignment - 1)
}

// New allocates a size-byte arena (rounded up to alignment) bounded by two
// sentinel chunks, and seeds the free list with one chunk spanning the rest.
func New(size uint32) (*Arena, error) {
	size = alignUp(size)
	// Layout: [head sentinel][one big free chunk][tail sentinel]
	const sentinelSize = MinChunkSize
	if size < sentinelSize*2+MinChunkSize {
		return nil, fmt.Errorf("vmheap: arena too small: %d bytes", size)
	}

	a := &Arena{
		buf:  make([]byte, size),
		size: size,
	}

	a.freeHead = 0
	a.writeHeader(a.freeHead, sentinelSize, KindFree, White, false, true)
	bodyOff := a.freeHead + sentinelSize
	bodySize := size - sentinelSize - sentinelSize
	a.freeTail = bodyOff + bodySize
	a.writeHeader(a.freeTail, sentinelSize, KindFree, White, false, true)

	// The one real free chunk, linked head <-> body <-> tail.
	a.writeHeader(bodyOff, bodySize, KindFree, White, false, false)
	a.setPrev(bodyOff, a.freeHead)
	a.setNext(bodyOff, a.freeTail)
	a.setSelf(bodyOff, bodyOff)
	a.setPrev(a.freeTail, bodyOff)
	a.setNext(a.freeHead, bodyOff)
	a.freeTotal = bodySize

	return a, nil
}

// Size returns the total arena size in bytes, sentinels included.
func (a *Arena) Size() uint32 { return a.size }

// FreeTotal returns the sum of sizes of chunks currently on the free list
// (spec.md §8 property 1).
func (a *Arena) FreeTotal() uint32 { return a.freeTotal }

// --- header packing: size(24) | kind(4) | color(2) | prevFree(1) | inUse(1) ---

func packHeader(size uint32, kind Kind, color Color, prevFree, inUse bool) uint32 {
	h := size & 0x00FFFFFF
	h |= (uint32(kind) & 0xF) << 24
	h |= (uint32(color) & 0x3) << 28
	if prevFree {
		h |= 1 << 30
	}
	if inUse {
		h |= 1 << 31
	}
	return h
}

func (a *Arena) writeHeader(off uint32, size uint32, kind Kind, color Color, prevFree, inUse bool) {
	binary.LittleEndian.PutUint32(a.buf[off:], packHeader(size, kind, color, prevFree, inUse))
}

func (a *Arena) header(off uint32) (size uint32, kind Kind, color Color, prevFree, inUse bool) {
	h := binary.LittleEndian.Uint32(a.buf[off:])
	size = h & 0x00FFFFFF
	kind = Kind((h >> 24) & 0xF)
	color = Color((h >> 28) & 0x3)
	prevFree = h&(1<<30) != 0
	inUse = h&(1<<31) != 0
	return
}

func (a *Arena) setSize(off, size uint32) {
	_, kind, color, prevFree, inUse := a.header(off)
	a.writeHeader(off, size, kind, color, prevFree, inUse)
}

func (a *Arena) setInUse(off uint32, inUse bool) {
	size, kind, color, prevFree, _ := a.header(off)
	a.writeHeader(off, size, kind, color, prevFree, inUse)
}

func (a *Arena) setPrevFreeFlag(off uint32, prevFree bool) {
	size, kind, color, _, inUse := a.header(off)
	a.writeHeader(off, size, kind, color, prevFree, inUse)
}

// SetColor is used by the collector to advance a chunk's tri-color state.
func (a *Arena) SetColor(p Ptr, c Color) {
	off := a.chunkOff(p)
	size, kind, _, prevFree, inUse := a.header(off)
	a.writeHeader(off, size, kind, c, prevFree, inUse)
}

func (a *Arena) Color(p Ptr) Color {
	_, _, c, _, _ := a.header(a.chunkOff(p))
	return c
}

func (a *Arena) KindOf(p Ptr) Kind {
	_, k, _, _, _ := a.header(a.chunkOff(p))
	return k
}

// SetKind mutates the kind nibble in place, e.g. when parking an unloaded
// class's surviving allocations (spec.md §4.A `set_kind`).
func (a *Arena) SetKind(p Ptr, kind Kind) {
	off := a.chunkOff(p)
	size, _, color, prevFree, inUse := a.header(off)
	a.writeHeader(off, size, kind, color, prevFree, inUse)
}

func (a *Arena) chunkOff(p Ptr) uint32 { return uint32(p) - headerSize }

// --- free-list linkage: prev/next just past the header, self-pointer in the last word ---

func (a *Arena) setPrev(off, v uint32) { binary.LittleEndian.PutUint32(a.buf[off+headerSize:], v) }
func (a *Arena) prev(off uint32) uint32 {
	return binary.LittleEndian.Uint32(a.buf[off+headerSize:])
}
func (a *Arena) setNext(off, v uint32) {
	binary.LittleEndian.PutUint32(a.buf[off+headerSize+8:], v)
}
func (a *Arena) next(off uint32) uint32 {
	return binary.LittleEndian.Uint32(a.buf[off+headerSize+8:])
}
func (a *Arena) setSelf(off, v uint32) {
	size, _, _, _, _ := a.header(off)
	binary.LittleEndian.PutUint32(a.buf[off+size-4:], v)
}
func (a *Arena) self(off uint32) uint32 {
	size, _, _, _, _ := a.header(off)
	return binary.LittleEndian.Uint32(a.buf[off+size-4:])
}

// unlink removes a free chunk from the sorted free list.
func (a *Arena) unlink(off uint32) {
	p, n := a.prev(off), a.next(off)
	a.setNext(p, n)
	a.setPrev(n, p)
	a.freeTotal -= a.chunkSize(off)
}

func (a *Arena) chunkSize(off uint32) uint32 {
	size, _, _, _, _ := a.header(off)
	return size
}

// insertSorted inserts a free chunk at `off` into the free list in
// ascending-size order, starting the scan from the head sentinel.
func (a *Arena) insertSorted(off uint32) {
	size := a.chunkSize(off)
	cur := a.next(a.freeHead)
	for cur != a.freeTail && a.chunkSize(cur) < size {
		cur = a.next(cur)
	}
	p := a.prev(cur)
	a.setNext(p, off)
	a.setPrev(off, p)
	a.setNext(off, cur)
	a.setPrev(cur, off)
	a.setSelf(off, off)
	a.freeTotal += size
}

// Alloc finds the first free chunk large enough for `size` bytes of kind
// `kind`, splits off any excess ≥ MinChunkSize back into the free list, and
// returns a pointer past the header. On exhaustion it invokes Collect once
// and retries; a second failure returns ErrExhausted.
func (a *Arena) Alloc(size uint32, kind Kind) (Ptr, error) {
	p, err := a.tryAlloc(size, kind)
	if err == nil {
		return p, nil
	}
	if a.Collect != nil && a.Collect() {
		p, err = a.tryAlloc(size, kind)
		if err == nil {
			return p, nil
		}
	}
	return 0, ErrExhausted
}

func (a *Arena) tryAlloc(size uint32, kind Kind) (Ptr, error) {
	need := alignUp(headerSize + size)
	if need < MinChunkSize {
		need = MinChunkSize
	}

	cur := a.next(a.freeHead)
	for cur != a.freeTail {
		cs := a.chunkSize(cur)
		if cs >= need {
			a.unlink(cur)
			if cs-need >= MinChunkSize {
				tailOff := cur + need
				a.writeHeader(tailOff, cs-need, KindFree, White, false, false)
				a.setSelf(tailOff, tailOff)
				a.insertSorted(tailOff)
				a.setSize(cur, need)
				a.updateNextChunkPrevFree(tailOff, true)
			} else {
				a.updateNextChunkPrevFree(cur, false)
			}
			a.writeHeader(cur, a.chunkSize(cur), kind, White, false, true)
			return Ptr(cur + headerSize), nil
		}
		cur = a.next(cur)
	}
	return 0, ErrExhausted
}

// updateNextChunkPrevFree flips the prev-free bit of the chunk physically
// following the chunk at `off`, if that next chunk lies within the arena.
func (a *Arena) updateNextChunkPrevFree(off uint32, prevFree bool) {
	next := off + a.chunkSize(off)
	if next < a.size {
		a.setPrevFreeFlag(next, prevFree)
	}
}

// Calloc allocates and zeroes the user-data region.
func (a *Arena) Calloc(size uint32, kind Kind) (Ptr, error) {
	p, err := a.Alloc(size, kind)
	if err != nil {
		return 0, err
	}
	off := a.chunkOff(p)
	sz := a.chunkSize(off)
	for i := off + headerSize; i < off+sz; i++ {
		a.buf[i] = 0
	}
	return p, nil
}

// Free releases a chunk, coalescing with its free neighbors and inserting
// the result into the sorted free list.
func (a *Arena) Free(p Ptr) {
	off := a.chunkOff(p)
	size, _, _, prevFree, inUse := a.header(off)
	if !inUse {
		return
	}

	start, total := off, size

	if prevFree {
		// The self-pointer in the prior chunk's last word locates it.
		predSelf := off - 4
		predOff := binary.LittleEndian.Uint32(a.buf[predSelf:])
		a.unlink(predOff)
		start = predOff
		total += a.chunkSize(predOff)
	}

	nextOff := off + size
	if nextOff < a.size {
		_, _, _, _, nextInUse := a.header(nextOff)
		if !nextInUse {
			a.unlink(nextOff)
			total += a.chunkSize(nextOff)
		}
	}

	a.writeHeader(start, total, KindFree, White, false, false)
	a.setSelf(start, start)
	a.insertSorted(start)
	a.updateNextChunkPrevFree(start, true)
}

// Clone allocates a new chunk of the same size and kind as `p` and copies
// its user data.
func (a *Arena) Clone(p Ptr) (Ptr, error) {
	off := a.chunkOff(p)
	size, kind, _, _, _ := a.header(off)
	userLen := size - headerSize
	np, err := a.Alloc(userLen, kind)
	if err != nil {
		return 0, err
	}
	copy(a.Bytes(np), a.Bytes(p)[:userLen])
	return np, nil
}

// Bytes returns the user-data region for a live chunk, sized to its
// allocation (header size subtracted).
func (a *Arena) Bytes(p Ptr) []byte {
	off := a.chunkOff(p)
	size := a.chunkSize(off)
	return a.buf[off+headerSize : off+size]
}

// Validate checks header sanity for a chunk; per spec.md §7 a failure here
// is fatal, not a recoverable Go error, so callers in the hot path should
// only call this under debug/assert builds.
func (a *Arena) Validate(p Ptr) error {
	off := a.chunkOff(p)
	if off+headerSize > a.size {
		return ErrInvalidChunk
	}
	size, kind, color, _, _ := a.header(off)
	if size < MinChunkSize || off+size > a.size || size%alignment != 0 {
		return ErrInvalidChunk
	}
	if kind >= kindMax || color > Black {
		return ErrInvalidChunk
	}
	return nil
}

// Walk iterates every chunk in address order, the two sentinels included
// (in use, kind KindFree), calling fn with its pointer, kind, color, and
// in-use bit. Used by the collector's sweep phase.
func (a *Arena) Walk(fn func(p Ptr, kind Kind, color Color, inUse bool)) {
	off := a.freeHead
	for off < a.size {
		size, kind, color, _, inUse := a.header(off)
		fn(Ptr(off+headerSize), kind, color, inUse)
		off += size
	}
}
