// Package loader implements the class loader/linker: parsing class bytes
// via internal/classfile into linked clazz.InstanceClazz values, resolving
// constant-pool symbolic references, and driving <clinit> (spec.md §4.C).
//
// Grounded on spec.md §4.C's ordered load/link algorithm directly -- no
// example repo in the retrieval pack implements JVM class loading -- using
// the teacher's general shape of a context struct threading shared pools
// through every operation (internal/heap/registry's constructor pattern),
// and other_examples' daimatz-gojvm classloader.go for the parent-first
// delegation loop and the (loader,name) cache-before-parse ordering.
package loader

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	"github.com/babevm/babevm-sub001/internal/cell"
	"github.com/babevm/babevm-sub001/internal/classfile"
	"github.com/babevm/babevm-sub001/internal/classpath"
	"github.com/babevm/babevm-sub001/internal/classpool"
	"github.com/babevm/babevm-sub001/internal/clazz"
	"github.com/babevm/babevm-sub001/internal/nativereg"
	"github.com/babevm/babevm-sub001/internal/object"
	"github.com/babevm/babevm-sub001/internal/strpool"
	"github.com/babevm/babevm-sub001/internal/thread"
)

// Loader is one class loader: either the bootstrap loader (Parent() == nil)
// or a user-defined loader delegating to a parent (spec.md §4.C "parent-first
// delegation"). internal/clazz only sees this through the ClassLoader
// interface to avoid an import cycle.
type Loader struct {
	bootstrap bool
	parent    clazz.ClassLoader
	peer      cell.Ref // the java.lang.ClassLoader instance, nil for bootstrap
	path      *classpath.Classpath

	// classes is the loader's class-array, recording every class it defined.
	// internal/gc does not read it; loaded clazzes are rooted through the
	// class pool's Walk instead (spec.md §4.C step 6 "the loader's class-array, which
	// auto-grows by doubling" -- a Go append already amortizes to the same
	// doubling growth, so no manual capacity management is needed here).
	classes []*clazz.Clazz
}

func (l *Loader) IsRefValue()          {}
func (l *Loader) IsBootstrap() bool    { return l.bootstrap }
func (l *Loader) Parent() clazz.ClassLoader { return l.parent }
func (l *Loader) Peer() cell.Ref       { return l.peer }

// Classes returns the loader's class-array. The collector does not walk it;
// every pooled clazz is already rooted through the class pool.
func (l *Loader) Classes() []*clazz.Clazz { return l.classes }

func (l *Loader) addClass(c *clazz.Clazz) { l.classes = append(l.classes, c) }

// NewBootstrapLoader constructs the VM's single bootstrap loader instance.
func NewBootstrapLoader(path *classpath.Classpath) *Loader {
	return &Loader{bootstrap: true, path: path}
}

// NewUserLoader constructs a user-defined loader delegating to parent.
func NewUserLoader(parent clazz.ClassLoader, peer cell.Ref, path *classpath.Classpath) *Loader {
	return &Loader{parent: parent, peer: peer, path: path}
}

var _ clazz.ClassLoader = (*Loader)(nil)

// findBytes walks parent-first (spec.md §4.C step 4): this loader's own
// classpath is only consulted once every ancestor has failed to find name.
func findBytes(l *Loader, binaryName string) ([]byte, error) {
	if l.parent != nil {
		if pl, ok := l.parent.(*Loader); ok {
			if data, err := findBytes(pl, binaryName); err == nil {
				return data, nil
			}
		}
	}
	if l.path == nil {
		return nil, classpath.ErrNotFound
	}
	return l.path.Find(binaryName)
}

// Invoker runs a loaded method to completion; internal/vm supplies the
// concrete implementation once internal/interp exists, so class
// initialization can "push a frame that runs a helper" (spec.md §4.C)
// without this package importing the interpreter.
type Invoker interface {
	Invoke(th *thread.Thread, m *clazz.Method, ic *clazz.InstanceClazz, args []cell.Cell) ([]cell.Cell, error)
}

// Context bundles every shared resource loading and linking touches. One
// Context is owned by the VM and passed explicitly to every call (spec.md
// §9 "pass the instance explicitly to helpers rather than hiding behind
// implicit globals").
type Context struct {
	Pool    *classpool.Pool
	UTF     *strpool.UTFPool
	Interns *strpool.InternPool
	Heap    *object.Heap
	Natives *nativereg.Registry

	// ClassClazz is the already-loaded java/lang/Class InstanceClazz used
	// to allocate every clazz's mirror object; the bootstrap sequence must
	// load it before loading anything else that needs a mirror.
	ClassClazz *clazz.InstanceClazz

	// StringClazz is the already-loaded java/lang/String InstanceClazz used
	// to intern a newly parsed class's String constants; nil is tolerated
	// for loads that precede it in the bootstrap sequence (expected to carry
	// no String constants of their own).
	StringClazz *clazz.InstanceClazz

	// Permanent is the VM's permanent GC root list; bootstrap class mirrors
	// are pinned here (spec.md §4.C step 6, §4.G roots).
	Permanent *[]cell.Ref

	// Bootstrap is the VM's single bootstrap loader, used to force
	// java/*, babe/* name resolution there regardless of requester.
	Bootstrap *Loader

	// Run drives <clinit>; nil is tolerated (classes load but never run
	// static initializers), useful for tests that don't need it.
	Run Invoker
}

var primitiveNames = map[string]bool{
	"boolean": true, "byte": true, "char": true, "short": true,
	"int": true, "long": true, "float": true, "double": true,
}

// LoadClass implements spec.md §4.C's top-level ordering: pool lookup,
// array/primitive synthesis, or parent-first delegation followed by parse
// and link. reflective distinguishes ClassNotFoundException (Class.forName)
// from NoClassDefFoundError (direct reference) per spec.md §7.
func LoadClass(ctx *Context, requester clazz.ClassLoader, name *strpool.Utf, reflective bool) (*clazz.Clazz, error) {
	nameStr := name.String()

	effective := requester
	if strings.HasPrefix(nameStr, "java/") || strings.HasPrefix(nameStr, "babe/") {
		effective = ctx.Bootstrap
	}

	if c := ctx.Pool.Lookup(effective, name); c != nil {
		return c, nil
	}

	if strings.HasPrefix(nameStr, "[") {
		return loadArrayClazz(ctx, effective, name, reflective)
	}
	if primitiveNames[nameStr] {
		return loadPrimitiveClazz(ctx, name)
	}

	l, ok := effective.(*Loader)
	if !ok {
		return nil, &ClassNotFoundError{Name: nameStr, Reflective: reflective}
	}

	data, err := findBytes(l, nameStr)
	if err != nil {
		return nil, &ClassNotFoundError{Name: nameStr, Reflective: reflective}
	}

	ic, err := linkClass(ctx, l, data)
	if err != nil {
		return nil, err
	}
	return &ic.Clazz, nil
}

// loadArrayClazz implements spec.md §4.C step 2: strip one leading '[',
// resolve the component (recursively for a further array, by name for a
// reference type, or as a bare type tag for a primitive), and construct an
// already-INITIALIZED ArrayClazz owned by the component's loader.
func loadArrayClazz(ctx *Context, requester clazz.ClassLoader, name *strpool.Utf, reflective bool) (*clazz.Clazz, error) {
	s := name.String()
	rest := s[1:]
	if rest == "" {
		return nil, &ClassFormatError{Err: fmt.Errorf("malformed array class name %q", s)}
	}

	var componentType clazz.JType
	var componentClazz *clazz.Clazz
	var componentLoader clazz.ClassLoader

	switch rest[0] {
	case '[':
		comp, err := LoadClass(ctx, requester, ctx.UTF.GetString(rest, true), reflective)
		if err != nil {
			return nil, err
		}
		componentType, componentClazz, componentLoader = clazz.TypeArray, comp, comp.Loader
	case 'L':
		end := strings.IndexByte(rest, ';')
		if end < 0 {
			return nil, &ClassFormatError{Err: fmt.Errorf("malformed array class name %q", s)}
		}
		comp, err := LoadClass(ctx, requester, ctx.UTF.GetString(rest[1:end], true), reflective)
		if err != nil {
			return nil, err
		}
		componentType, componentClazz, componentLoader = clazz.TypeRef, comp, comp.Loader
	default:
		componentType, componentLoader = clazz.JType(rest[0]), ctx.Bootstrap
	}

	ac := clazz.NewArrayClazz()
	ac.Name = name
	ac.AccessFlags = clazz.AccPublic | clazz.AccFinal
	ac.Loader = componentLoader
	ac.State = clazz.Initialized
	ac.ComponentType = componentType
	ac.ComponentClazz = componentClazz

	ctx.Pool.Insert(&ac.Clazz)
	if err := pinMirror(ctx, &ac.Clazz); err != nil {
		return nil, err
	}
	return &ac.Clazz, nil
}

// loadPrimitiveClazz implements spec.md §4.C step 3.
func loadPrimitiveClazz(ctx *Context, name *strpool.Utf) (*clazz.Clazz, error) {
	pc := clazz.NewPrimitiveClazz()
	pc.Name = name
	pc.AccessFlags = clazz.AccPublic | clazz.AccFinal
	pc.Loader = ctx.Bootstrap
	pc.State = clazz.Initialized

	ctx.Pool.Insert(&pc.Clazz)
	if err := pinMirror(ctx, &pc.Clazz); err != nil {
		return nil, err
	}
	return &pc.Clazz, nil
}

// pinMirror creates a clazz's Class mirror and pins it: permanently for a
// bootstrap-owned clazz, or via the owning loader's class-array otherwise
// (spec.md §4.C step 6).
//
// ctx.ClassClazz is itself only available once java/lang/Class has loaded,
// and java/lang/Class's own load (like every class's) runs through this same
// function for its superclass chain -- the bootstrap circularity every JVM
// hits. Rather than hand-construct java/lang/Class's mirror out of band, a
// clazz loaded before ctx.ClassClazz exists is simply left with a nil
// ClassMirror; internal/vm's bootstrap sequence calls EnsureMirrors once
// ClassClazz is set, backfilling every clazz pinMirror had to skip.
func pinMirror(ctx *Context, c *clazz.Clazz) error {
	if ctx.ClassClazz == nil {
		return nil
	}
	mirror, err := ctx.Heap.NewClassMirror(ctx.ClassClazz, c)
	if err != nil {
		return err
	}
	c.ClassMirror = mirror
	if c.Loader.IsBootstrap() {
		*ctx.Permanent = append(*ctx.Permanent, cell.RefOf(mirror))
	} else if l, ok := c.Loader.(*Loader); ok {
		l.addClass(c)
	}
	return nil
}

// EnsureMirrors backfills ClassMirror for every pooled clazz pinMirror had to
// skip before ctx.ClassClazz was available (spec.md §4.C step 6), called
// once by internal/vm's bootstrap sequence right after java/lang/Class
// itself finishes loading.
func EnsureMirrors(ctx *Context) error {
	var first error
	ctx.Pool.Walk(func(c *clazz.Clazz) bool {
		if c.ClassMirror != nil {
			return true
		}
		if err := pinMirror(ctx, c); err != nil {
			first = err
			return false
		}
		return true
	})
	return first
}

// linkClass implements spec.md §4.C step 5: parse the class file, load its
// superclass and interfaces, partition fields, and load methods. The clazz
// is inserted into the pool in state LOADING before its superclass is
// resolved (rather than only after full linking, as step 6's literal
// ordering reads) so that a cyclic extends chain makes the ancestor visible
// to Pool.Lookup mid-load -- the only way step 5d's "circularity is
// detected by observing a superclazz still in state LOADING" can ever
// trigger. On any failure the tentative entry is removed again.
func linkClass(ctx *Context, l *Loader, data []byte) (*clazz.InstanceClazz, error) {
	r := classfile.NewReader(bytes.NewReader(data))
	cf, err := classfile.Parse(r, ctx.UTF, ctx.Interns)
	if err != nil {
		return nil, &ClassFormatError{Err: err}
	}
	if err := internClassStrings(ctx, cf.ConstantPool); err != nil {
		return nil, err
	}

	ic := clazz.NewInstanceClazz()
	ic.AccessFlags = cf.AccessFlags
	ic.Name = cf.ThisClass
	ic.Package = packageOf(ctx.UTF, cf.ThisClass)
	ic.Loader = l
	ic.ConstantPool = cf.ConstantPool
	ic.State = clazz.Loading

	ctx.Pool.Insert(&ic.Clazz)

	if cf.SuperClass != nil {
		superC, err := LoadClass(ctx, l, cf.SuperClass, false)
		if err != nil {
			ctx.Pool.Remove(&ic.Clazz)
			return nil, err
		}
		if superC.State == clazz.Loading {
			ctx.Pool.Remove(&ic.Clazz)
			return nil, &ClassCircularityError{Name: ic.Name.String()}
		}
		superIC := superC.AsInstanceClazz()
		if superIC == nil || superIC.IsInterface() {
			ctx.Pool.Remove(&ic.Clazz)
			return nil, &IncompatibleClassChangeError{Msg: "superclass " + cf.SuperClass.String() + " is not a class"}
		}
		if superIC.IsFinal() {
			ctx.Pool.Remove(&ic.Clazz)
			return nil, &VerifyError{Msg: "cannot extend final class " + cf.SuperClass.String()}
		}
		ic.Super = superIC
	} else if ic.Name.String() != "java/lang/Object" {
		ctx.Pool.Remove(&ic.Clazz)
		return nil, &ClassFormatError{Err: fmt.Errorf("%s: missing superclass", ic.Name.String())}
	}

	ic.Interfaces = make([]*clazz.Clazz, 0, len(cf.Interfaces))
	for _, ifName := range cf.Interfaces {
		ifc, err := LoadClass(ctx, l, ifName, false)
		if err != nil {
			ctx.Pool.Remove(&ic.Clazz)
			return nil, err
		}
		ifIC := ifc.AsInstanceClazz()
		if ifIC == nil || !ifIC.IsInterface() {
			ctx.Pool.Remove(&ic.Clazz)
			return nil, &IncompatibleClassChangeError{Msg: ifName.String() + " is not an interface"}
		}
		if ifc.State == clazz.Error {
			ctx.Pool.Remove(&ic.Clazz)
			return nil, &NoClassDefFoundError{Name: ifName.String()}
		}
		ic.Interfaces = append(ic.Interfaces, ifc)
	}

	linkFields(ic, cf.Fields)
	linkMethods(ctx, ic, cf.Methods)

	ic.State = clazz.Loaded

	if err := pinMirror(ctx, &ic.Clazz); err != nil {
		ctx.Pool.Remove(&ic.Clazz)
		return nil, err
	}
	return ic, nil
}

// packageOf derives the package portion of a binary class name (everything
// before the last '/'), interned the same way identifiers are.
func packageOf(utf *strpool.UTFPool, name *strpool.Utf) *strpool.Utf {
	s := name.String()
	idx := strings.LastIndexByte(s, '/')
	if idx < 0 {
		return utf.GetString("", true)
	}
	return utf.GetString(s[:idx], true)
}

// internClassStrings replaces every String constant's decoded UTF-16
// payload (left as a raw []uint16 by classfile's pass 2c, which cannot
// allocate a heap object without importing internal/object and creating a
// cycle) with a live, interned java.lang.String so that ldc and
// ConstantValue both see a real cell.Ref (spec.md §4.D "intern... a single
// pooled instance", §8 property 3).
func internClassStrings(ctx *Context, cp *clazz.ConstantPool) error {
	for i := 1; i < cp.Count(); i++ {
		e := cp.At(i)
		if e == nil || e.Tag() != clazz.TagString {
			continue
		}
		chars, ok := e.ResolvedPtr.([]uint16)
		if !ok {
			continue // a shared constant pool already interned this entry
		}
		if ctx.StringClazz == nil {
			continue // bootstrap hasn't loaded java/lang/String yet
		}
		if existing := ctx.Interns.Lookup(chars); existing != nil {
			if ref, ok := existing.(cell.Ref); ok {
				e.SetResolved(ref)
			}
			continue
		}
		s, err := ctx.Heap.NewString(ctx.StringClazz, chars)
		if err != nil {
			return err
		}
		interned := ctx.Interns.Intern(s)
		if ref, ok := interned.(cell.Ref); ok {
			e.SetResolved(ref)
		}
	}
	return nil
}

// linkFields implements spec.md §4.C step 5f: static-first, instance-second
// partitioning with class-file order preserved within each group; instance
// offsets continue from the superclass's cumulative count.
func linkFields(ic *clazz.InstanceClazz, fis []*classfile.FieldInfo) {
	var statics, instances []*classfile.FieldInfo
	for _, fi := range fis {
		if fi.AccessFlags&clazz.AccStatic != 0 {
			statics = append(statics, fi)
		} else {
			instances = append(instances, fi)
		}
	}

	ic.Fields = make([]*clazz.Field, 0, len(fis))

	for _, fi := range statics {
		isLong := fi.Type == clazz.TypeLong || fi.Type == clazz.TypeDouble
		f := &clazz.Field{
			Owner:       ic,
			AccessFlags: fi.AccessFlags,
			Name:        fi.Name,
			Signature:   fi.Descriptor,
			Type:        fi.Type,
			IsStatic:    true,
		}
		if isLong {
			f.AccessFlags |= clazz.FieldAccLong
		}
		switch {
		case fi.HasConstantValue:
			f.AccessFlags |= clazz.FieldAccConst
			f.StaticValue = constantValueCell(ic, fi)
		case isLong:
			idx := len(ic.StaticLongs)
			ic.StaticLongs = append(ic.StaticLongs, 0)
			f.StaticValue = cell.Int(int32(idx))
		}
		ic.Fields = append(ic.Fields, f)
	}

	offset := 0
	if ic.Super != nil {
		offset = ic.Super.InstanceFieldCount
	}
	ic.VirtualFieldOffset = offset
	for _, fi := range instances {
		f := &clazz.Field{
			Owner:       ic,
			AccessFlags: fi.AccessFlags,
			Name:        fi.Name,
			Signature:   fi.Descriptor,
			Type:        fi.Type,
			Offset:      offset,
		}
		ic.Fields = append(ic.Fields, f)
		if fi.Type == clazz.TypeLong || fi.Type == clazz.TypeDouble {
			offset += 2
		} else {
			offset++
		}
	}
	ic.InstanceFieldCount = offset
}

// constantValueCell renders a field's ConstantValue attribute into the cell
// its static slot starts with (spec.md §4.C step 5f). Long/double constants
// allocate into the static-long side array and the cell holds the index.
func constantValueCell(ic *clazz.InstanceClazz, fi *classfile.FieldInfo) cell.Cell {
	e := fi.ConstantValue
	switch e.Tag() {
	case clazz.TagInteger:
		return cell.Int(e.Int)
	case clazz.TagFloat:
		return cell.Float(e.Float)
	case clazz.TagLong:
		idx := len(ic.StaticLongs)
		ic.StaticLongs = append(ic.StaticLongs, e.Long)
		return cell.Int(int32(idx))
	case clazz.TagDouble:
		idx := len(ic.StaticLongs)
		ic.StaticLongs = append(ic.StaticLongs, int64(math.Float64bits(e.Double)))
		return cell.Int(int32(idx))
	case clazz.TagString:
		if ref, ok := e.ResolvedPtr.(cell.Ref); ok {
			return cell.RefOf(ref)
		}
		return cell.Null()
	default:
		return cell.Zero
	}
}

// linkMethods implements spec.md §4.C step 5g.
func linkMethods(ctx *Context, ic *clazz.InstanceClazz, mis []*classfile.MethodInfo) {
	ic.Methods = make([]*clazz.Method, 0, len(mis))
	for _, mi := range mis {
		isStatic := mi.AccessFlags&clazz.AccStatic != 0
		m := &clazz.Method{
			Owner:       ic,
			AccessFlags: mi.AccessFlags,
			Name:        mi.Name,
			Signature:   mi.Descriptor,
			ArgCells:    classfile.ArgCells(mi.Descriptor.String(), isStatic),
			ReturnCells: classfile.ReturnCells(mi.Descriptor.String()),
		}
		if mi.Code != nil {
			m.Code = mi.Code.Code
			m.MaxStack = mi.Code.MaxStack
			m.MaxLocals = mi.Code.MaxLocals
			m.ExceptionTable = mi.Code.ExceptionTable
			m.Lines = mi.Code.Lines
			m.LocalVars = mi.Code.LocalVars
		}
		if m.IsNative() {
			if fn := ctx.Natives.Lookup(ic.Name.String(), m.Name.String(), m.Signature.String()); fn != nil {
				m.Native = fn
			} else {
				m.UnresolvedNative = true
			}
		}
		ic.Methods = append(ic.Methods, m)
	}
}
