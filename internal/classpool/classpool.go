// Package classpool implements the VM's (loader, name) -> clazz class pool:
// a hand-rolled chained-hash table keyed by interned class name, where
// lookups additionally walk the requesting loader's parent chain within a
// matching bucket (spec.md §4.B).
//
// Grounded on the teacher's internal/heap/registry/classes.go, which pools
// loaded-class records by name/serial/object-id in parallel maps; this pool
// collapses that to a single chained table threaded through clazz.Clazz.Next,
// since spec.md §3 calls for "linked list next-pointer for the class pool"
// directly on the header rather than a side map.
package classpool

import (
	"sync"

	"github.com/babevm/babevm-sub001/internal/clazz"
	"github.com/babevm/babevm-sub001/internal/strpool"
)

const (
	initialBuckets  = 64
	growLoadFactor  = 3 // grow when count > buckets * growLoadFactor / growLoadFactorD
	growLoadFactorD = 2
)

// Pool is the process-wide class pool. One instance is owned by the VM and
// shared by every loader (spec.md §8: "shared resources... process-wide").
type Pool struct {
	mu      sync.Mutex
	buckets []*clazz.Clazz
	count   int
}

func New() *Pool {
	return &Pool{buckets: make([]*clazz.Clazz, initialBuckets)}
}

// fnv1a32 hashes a canonicalized name's bytes. Two Utf pointers from the same
// strpool.UTFPool are identical iff their content is equal, so hashing by
// content (rather than pointer identity) still gives every synonymous name
// the same bucket even across pools -- not required here since one VM has
// one UTFPool, but cheap and avoids depending on pointer stability.
func fnv1a32(b []byte) uint32 {
	const (
		offset = 2166136261
		prime  = 16777619
	)
	h := uint32(offset)
	for _, c := range b {
		h ^= uint32(c)
		h *= prime
	}
	return h
}

func (p *Pool) bucketFor(name *strpool.Utf, nBuckets int) int {
	return int(fnv1a32(name.Bytes()) % uint32(nBuckets))
}

// Lookup finds the clazz named `name` visible to `loader`: a bucket entry
// matches if its name matches and its loader is `loader` or any ancestor of
// it (spec.md §4.B). Callers must hold no lock; Lookup is self-synchronized.
func (p *Pool) Lookup(loader clazz.ClassLoader, name *strpool.Utf) *clazz.Clazz {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lookupLocked(loader, name)
}

func (p *Pool) lookupLocked(loader clazz.ClassLoader, name *strpool.Utf) *clazz.Clazz {
	idx := p.bucketFor(name, len(p.buckets))
	for c := p.buckets[idx]; c != nil; c = c.Next {
		if c.Name != name {
			continue
		}
		for l := loader; l != nil; l = l.Parent() {
			if l == c.Loader {
				return c
			}
		}
	}
	return nil
}

// Insert links a newly loaded clazz into its bucket. Callers must have
// already confirmed via Lookup that no entry for (c.Loader, c.Name) exists;
// Insert does not itself de-duplicate (spec.md §4.A step 1 vs step 6 are
// separate, with class-loading work done in between).
func (p *Pool) Insert(c *clazz.Clazz) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := p.bucketFor(c.Name, len(p.buckets))
	c.Next = p.buckets[idx]
	p.buckets[idx] = c
	p.count++

	if p.count > len(p.buckets)*growLoadFactor/growLoadFactorD {
		p.grow()
	}
}

// Remove unlinks c from its bucket. internal/loader uses it to back out a
// clazz that was inserted early and then failed to link; the GC does not
// call it.
func (p *Pool) Remove(c *clazz.Clazz) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := p.bucketFor(c.Name, len(p.buckets))
	var prev *clazz.Clazz
	for cur := p.buckets[idx]; cur != nil; cur = cur.Next {
		if cur == c {
			if prev == nil {
				p.buckets[idx] = cur.Next
			} else {
				prev.Next = cur.Next
			}
			cur.Next = nil
			p.count--
			return
		}
		prev = cur
	}
}

func (p *Pool) grow() {
	next := make([]*clazz.Clazz, len(p.buckets)*2)
	for _, head := range p.buckets {
		for c := head; c != nil; {
			nextC := c.Next
			idx := p.bucketFor(c.Name, len(next))
			c.Next = next[idx]
			next[idx] = c
			c = nextC
		}
	}
	p.buckets = next
}

// Walk visits every live clazz in the pool, in unspecified order, stopping
// early if fn returns false. Used by the GC to enumerate class-pool roots.
func (p *Pool) Walk(fn func(*clazz.Clazz) bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, head := range p.buckets {
		for c := head; c != nil; c = c.Next {
			if !fn(c) {
				return
			}
		}
	}
}

// Count reports how many clazzes are currently pooled.
func (p *Pool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}
