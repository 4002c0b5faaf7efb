// Package classpath implements the VM's classpath entries: filesystem
// directories and `.jar` archives searched in order for a class's bytes
// (spec.md §7 "Classpath").
//
// Grounded on spec.md's textual description directly -- nothing in the
// retrieval pack runs its own class-loading classpath -- using the
// stdlib's archive/zip the way any Go program reading jar-shaped zip
// archives would, since a jar's own format is an excluded external
// collaborator (spec.md §1) this repo only ever consumes as a byte source.
package classpath

import (
	"archive/zip"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned by Classpath.Find when no entry has the class.
var ErrNotFound = errors.New("classpath: class not found")

// Entry is one classpath segment: a directory or a jar archive.
type Entry interface {
	// Load returns the raw bytes of binaryName (slash-separated, no
	// ".class" suffix) if this entry contains it.
	Load(binaryName string) (data []byte, found bool, err error)
	// Close releases any open file handle (jar entries hold one).
	Close() error
}

// dirEntry is a classpath segment rooted at a filesystem directory.
type dirEntry struct {
	root string
}

func (d *dirEntry) Load(binaryName string) ([]byte, bool, error) {
	path := filepath.Join(d.root, filepath.FromSlash(binaryName)+".class")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func (d *dirEntry) Close() error { return nil }

// jarEntry is a classpath segment backed by one .jar (zip) archive, kept
// open for the classpath entry's lifetime and indexed once at open time.
type jarEntry struct {
	zr     *zip.ReadCloser
	byName map[string]*zip.File
}

func openJarEntry(path string) (*jarEntry, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	je := &jarEntry{zr: zr, byName: make(map[string]*zip.File, len(zr.File))}
	for _, f := range zr.File {
		name := strings.TrimSuffix(f.Name, ".class")
		if name == f.Name {
			continue // not a .class entry
		}
		je.byName[name] = f
	}
	return je, nil
}

func (j *jarEntry) Load(binaryName string) ([]byte, bool, error) {
	f, ok := j.byName[binaryName]
	if !ok {
		return nil, false, nil
	}
	rc, err := f.Open()
	if err != nil {
		return nil, false, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (j *jarEntry) Close() error { return j.zr.Close() }

// openEntry builds the right Entry kind for one classpath path segment
// (spec.md §7 "either a filesystem directory or a file whose name ends
// with .jar").
func openEntry(path string) (Entry, error) {
	if strings.HasSuffix(path, ".jar") {
		return openJarEntry(path)
	}
	return &dirEntry{root: path}, nil
}

// Classpath is an ordered list of entries searched front-to-back for a
// class's bytes.
type Classpath struct {
	entries []Entry
}

// NewBootstrap builds a bootstrap classpath from path segments. Bootstrap
// segments terminate at the first empty-string entry (spec.md §7 "Segments
// in the bootstrap classpath list terminate at a null entry"); a Go slice
// already has a definite length, so in practice this just means an empty
// path ends the list early rather than being opened as "."
func NewBootstrap(paths []string) (*Classpath, error) {
	cp := &Classpath{}
	for _, p := range paths {
		if p == "" {
			break
		}
		e, err := openEntry(p)
		if err != nil {
			cp.Close()
			return nil, err
		}
		cp.entries = append(cp.entries, e)
	}
	return cp, nil
}

// NewUser builds a user classpath from path segments. Unlike the bootstrap
// list, an empty segment here is an interior null that Find must skip
// without ending the scan (spec.md §7 "user classpath arrays may contain
// nulls interior"), so every following segment is still opened.
func NewUser(paths []string) (*Classpath, error) {
	cp := &Classpath{}
	for _, p := range paths {
		if p == "" {
			cp.entries = append(cp.entries, nil)
			continue
		}
		e, err := openEntry(p)
		if err != nil {
			cp.Close()
			return nil, err
		}
		cp.entries = append(cp.entries, e)
	}
	return cp, nil
}

// Find searches every entry in order, skipping nil (interior-null) ones,
// and returns the first match.
func (cp *Classpath) Find(binaryName string) ([]byte, error) {
	for _, e := range cp.entries {
		if e == nil {
			continue
		}
		data, ok, err := e.Load(binaryName)
		if err != nil {
			return nil, err
		}
		if ok {
			return data, nil
		}
	}
	return nil, ErrNotFound
}

// Close releases every open entry (jar file handles); directory entries
// are no-ops.
func (cp *Classpath) Close() error {
	var first error
	for _, e := range cp.entries {
		if e == nil {
			continue
		}
		if err := e.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
