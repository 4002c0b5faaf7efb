// Package strpool implements the VM's two content-keyed pools: canonical
// modified-UTF-8 byte strings and interned java.lang.String objects
// (spec.md §4.B). Equality of names/signatures throughout the VM reduces to
// pointer equality after canonicalization through the UTF pool.
//
// Grounded on internal/heap/registry/strings.go from the teacher, which
// pools string records by content the same way.
package strpool

import (
	"sync"
	"unicode/utf16"

	"golang.org/x/text/encoding/unicode"
)

// Utf is a canonicalized modified-UTF-8 identifier, signature, or string
// literal. Two Utf values from the same pool are identical (pointer-equal)
// iff their byte content is equal (spec.md §8 property 3).
type Utf struct {
	bytes []byte
}

func (u *Utf) String() string { return string(u.bytes) }
func (u *Utf) Bytes() []byte  { return u.bytes }
func (u *Utf) Len() int       { return len(u.bytes) }

// UTFPool interns modified-UTF-8 byte sequences.
type UTFPool struct {
	mu      sync.Mutex
	entries map[string]*Utf
}

func NewUTFPool() *UTFPool {
	return &UTFPool{entries: make(map[string]*Utf)}
}

// Get returns the canonical *Utf for the given bytes. If add is false and
// no canonical entry exists yet, it returns nil.
func (p *UTFPool) Get(b []byte, add bool) *Utf {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := string(b) // string(b) copies; safe to use as a map key directly
	if u, ok := p.entries[key]; ok {
		return u
	}
	if !add {
		return nil
	}
	u := &Utf{bytes: []byte(key)}
	p.entries[key] = u
	return u
}

// GetString is a convenience wrapper over Get for Go string inputs.
func (p *UTFPool) GetString(s string, add bool) *Utf {
	return p.Get([]byte(s), add)
}

// Len reports how many distinct entries are interned, for diagnostics.
func (p *UTFPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// JavaString is the minimal shape strpool needs from the object model: a
// java.lang.String instance backed by a UTF-16 char array. internal/object
// defines the concrete heap-backed type and satisfies this interface so
// that strpool doesn't need to import object (which imports clazz, which
// would create a cycle back through strpool's Utf canonicalization).
type JavaString interface {
	Chars() []uint16
}

// InternPool maps decoded character content to a single pooled JavaString,
// mirroring java.lang.String.intern() semantics.
type InternPool struct {
	mu      sync.Mutex
	entries map[string]JavaString
}

func NewInternPool() *InternPool {
	return &InternPool{entries: make(map[string]JavaString)}
}

// key renders UTF-16 content as a Go string key; the actual char content
// (not its re-encoding) is what equality is keyed on.
func key(chars []uint16) string {
	return string(utf16.Decode(chars))
}

// Lookup returns the pooled instance for the given UTF-16 content, or nil.
func (p *InternPool) Lookup(chars []uint16) JavaString {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.entries[key(chars)]
}

// Intern registers `s` as the canonical instance for its content if none
// exists yet, and returns whichever instance is now canonical.
func (p *InternPool) Intern(s JavaString) JavaString {
	p.mu.Lock()
	defer p.mu.Unlock()
	k := key(s.Chars())
	if existing, ok := p.entries[k]; ok {
		return existing
	}
	p.entries[k] = s
	return s
}

// Walk invokes fn for every currently interned instance. The collector
// uses this to root interned strings independently of whatever other
// references to them happen to still exist (spec.md §4.G roots).
func (p *InternPool) Walk(fn func(JavaString)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, v := range p.entries {
		fn(v)
	}
}

// DecodeModifiedUTF8 converts the class file's modified-UTF-8 encoding
// (JVMS 4.4.7: embedded NUL as 0xC0 0x80, supplementary characters as
// surrogate pairs already) into UTF-16 code units suitable for a
// java.lang.String's backing char array. The x/text UTF-16 decoder handles
// the bulk of the work; modified UTF-8's only deviation from standard CESU-8
// is the embedded-NUL encoding, which decodes identically under a
// byte-oriented UTF-8 decoder since 0xC0 0x80 already decodes to U+0000.
func DecodeModifiedUTF8(b []byte) []uint16 {
	dec := unicode.UTF8.NewDecoder()
	utf8Bytes, err := dec.Bytes(b)
	if err != nil {
		// Modified UTF-8 is not always strictly valid UTF-8 (the embedded
		// NUL pair), but the decoder above round-trips it either way since
		// it operates byte-wise; fall back to treating input as already
		// being valid UTF-8 bytes on any unexpected decoder error.
		utf8Bytes = b
	}
	runes := []rune(string(utf8Bytes))
	return utf16.Encode(runes)
}

// EncodeModifiedUTF8 is the inverse of DecodeModifiedUTF8, used when a
// resolved String constant must be re-rendered as canonical UTF bytes (e.g.
// for debug output).
func EncodeModifiedUTF8(chars []uint16) []byte {
	return []byte(string(utf16.Decode(chars)))
}
