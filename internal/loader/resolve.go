package loader

import (
	"github.com/babevm/babevm-sub001/internal/clazz"
	"github.com/babevm/babevm-sub001/internal/strpool"
	"github.com/babevm/babevm-sub001/internal/thread"
)

// ResolveClazz implements resolve_clazz(i) (spec.md §4.C "Constant
// resolution"): looks up the Class constant at idx in referrer's pool,
// loading it under referrer's loader on first use, checks accessibility,
// and rewrites ResolvedPtr to the live *clazz.Clazz so later resolutions are
// O(1). classfile's own pass 2 already sets the entry's OPT bit when it
// rewrites a Class constant's raw index to a *ClassRef (its "already
// structured, not a raw index" meaning), so a resolved-or-not test here
// must type-switch on ResolvedPtr's concrete type rather than read OPT.
func ResolveClazz(ctx *Context, referrer *clazz.InstanceClazz, idx int) (*clazz.Clazz, error) {
	e := referrer.ConstantPool.At(idx)
	if e == nil || e.Tag() != clazz.TagClass {
		return nil, &IncompatibleClassChangeError{Msg: "constant is not a Class entry"}
	}
	if target, ok := e.ResolvedPtr.(*clazz.Clazz); ok {
		return target, nil
	}

	ref, ok := e.ResolvedPtr.(*clazz.ClassRef)
	if !ok {
		return nil, &IncompatibleClassChangeError{Msg: "Class entry missing resolved name"}
	}

	target, err := LoadClass(ctx, referrer.Loader, ref.Name, false)
	if err != nil {
		return nil, err
	}
	if !isClassAccessible(referrer, target) {
		return nil, &IllegalAccessError{Msg: "class " + ref.Name.String() + " not accessible from " + referrer.Name.String()}
	}

	e.SetResolved(target)
	return target, nil
}

// isClassAccessible implements the class half of JVMS 5.4.4: public classes
// are always accessible; anything else requires referrer and target to
// share both loader and runtime package.
func isClassAccessible(referrer *clazz.InstanceClazz, target *clazz.Clazz) bool {
	if target.AccessFlags&clazz.AccPublic != 0 {
		return true
	}
	return target.Loader == referrer.Loader && target.Package == referrer.Package
}

// isMemberAccessible implements the member half of JVMS 5.4.4: public is
// always visible; private requires the same defining clazz; protected adds
// subclass access across packages; default (package-private) requires a
// shared loader and package.
func isMemberAccessible(referrer, owner *clazz.InstanceClazz, accessFlags int) bool {
	switch {
	case accessFlags&clazz.AccPublic != 0:
		return true
	case accessFlags&clazz.AccPrivate != 0:
		return referrer == owner
	case accessFlags&clazz.AccProtected != 0:
		if referrer.Loader == owner.Loader && referrer.Package == owner.Package {
			return true
		}
		return isSubclassOf(referrer, owner)
	default:
		return referrer.Loader == owner.Loader && referrer.Package == owner.Package
	}
}

func isSubclassOf(ic, of *clazz.InstanceClazz) bool {
	for s := ic.Super; s != nil; s = s.Super {
		if s == of {
			return true
		}
	}
	return false
}

func findField(ic *clazz.InstanceClazz, name, desc *strpool.Utf) *clazz.Field {
	for s := ic; s != nil; s = s.Super {
		for _, f := range s.Fields {
			if f.Name == name && f.Signature == desc {
				return f
			}
		}
	}
	return nil
}

// FindMethod exposes findMethod's supertype/interface walk for
// internal/interp's dynamic dispatch: invokevirtual/invokeinterface
// re-resolve against the receiver's actual runtime clazz rather than the
// statically resolved target (spec.md §4.E "dynamic dispatch").
func FindMethod(ic *clazz.InstanceClazz, name, desc *strpool.Utf) *clazz.Method {
	return findMethod(ic, name, desc)
}

func findMethod(ic *clazz.InstanceClazz, name, desc *strpool.Utf) *clazz.Method {
	for s := ic; s != nil; s = s.Super {
		for _, m := range s.Methods {
			if m.Name == name && m.Signature == desc {
				return m
			}
		}
		for _, iface := range s.Interfaces {
			if ii := iface.AsInstanceClazz(); ii != nil {
				if m := findMethod(ii, name, desc); m != nil {
					return m
				}
			}
		}
	}
	return nil
}

// ResolveField implements resolve_field(i, expect_static) (spec.md §4.C
// "Constant resolution").
func ResolveField(ctx *Context, referrer *clazz.InstanceClazz, idx int, expectStatic bool) (*clazz.Field, error) {
	e := referrer.ConstantPool.At(idx)
	if e == nil || e.Tag() != clazz.TagFieldref {
		return nil, &IncompatibleClassChangeError{Msg: "constant is not a Fieldref entry"}
	}
	if f, ok := e.ResolvedPtr.(*clazz.Field); ok {
		if f.IsStatic != expectStatic {
			return nil, &IncompatibleClassChangeError{Msg: "static/instance mismatch resolving field " + f.Name.String()}
		}
		return f, nil
	}

	mr, ok := e.ResolvedPtr.(*clazz.MemberRef)
	if !ok {
		return nil, &IncompatibleClassChangeError{Msg: "Fieldref entry missing member info"}
	}
	owner, err := LoadClass(ctx, referrer.Loader, mr.ClassName, false)
	if err != nil {
		return nil, err
	}
	oic := owner.AsInstanceClazz()
	if oic == nil {
		return nil, &NoSuchFieldError{Name: mr.Name.String()}
	}
	f := findField(oic, mr.Name, mr.Descriptor)
	if f == nil {
		return nil, &NoSuchFieldError{Name: mr.Name.String()}
	}
	if !isMemberAccessible(referrer, f.Owner, f.AccessFlags) {
		return nil, &IllegalAccessError{Msg: "field " + mr.Name.String() + " not accessible from " + referrer.Name.String()}
	}
	if f.IsStatic != expectStatic {
		return nil, &IncompatibleClassChangeError{Msg: "static/instance mismatch resolving field " + mr.Name.String()}
	}

	e.SetResolved(f)
	return f, nil
}

// ResolveMethod implements resolve_method(i) (spec.md §4.C "Constant
// resolution"), covering both Methodref and InterfaceMethodref entries.
func ResolveMethod(ctx *Context, referrer *clazz.InstanceClazz, idx int) (*clazz.Method, error) {
	e := referrer.ConstantPool.At(idx)
	if e == nil || (e.Tag() != clazz.TagMethodref && e.Tag() != clazz.TagInterfaceMethodref) {
		return nil, &IncompatibleClassChangeError{Msg: "constant is not a Methodref entry"}
	}
	if m, ok := e.ResolvedPtr.(*clazz.Method); ok {
		return m, nil
	}

	mr, ok := e.ResolvedPtr.(*clazz.MemberRef)
	if !ok {
		return nil, &IncompatibleClassChangeError{Msg: "Methodref entry missing member info"}
	}
	owner, err := LoadClass(ctx, referrer.Loader, mr.ClassName, false)
	if err != nil {
		return nil, err
	}
	oic := owner.AsInstanceClazz()
	if oic == nil {
		return nil, &NoSuchMethodError{Name: mr.Name.String()}
	}
	m := findMethod(oic, mr.Name, mr.Descriptor)
	if m == nil {
		return nil, &NoSuchMethodError{Name: mr.Name.String()}
	}
	if !isMemberAccessible(referrer, m.Owner, m.AccessFlags) {
		return nil, &IllegalAccessError{Msg: "method " + mr.Name.String() + " not accessible from " + referrer.Name.String()}
	}

	e.SetResolved(m)
	return m, nil
}

// IsAssignableFrom implements is_assignable_from(from, to) (spec.md §4.C):
// identity, Object target, primitive/reference array component rules,
// interface targets (arrays accept only Cloneable/Serializable), and the
// instance supertype walk.
func IsAssignableFrom(from, to *clazz.Clazz) bool {
	if from == nil || to == nil {
		return false
	}
	if from == to {
		return true
	}
	if ti := to.AsInstanceClazz(); ti != nil && ti.IsObjectRoot() {
		return true
	}

	switch from.Variant {
	case clazz.VariantArray:
		fa := from.AsArrayClazz()
		switch to.Variant {
		case clazz.VariantArray:
			ta := to.AsArrayClazz()
			if fa.ComponentType != ta.ComponentType {
				return false
			}
			if fa.ComponentType == clazz.TypeRef {
				return IsAssignableFrom(fa.ComponentClazz, ta.ComponentClazz)
			}
			return true
		case clazz.VariantInstance:
			ti := to.AsInstanceClazz()
			if !ti.IsInterface() {
				return false
			}
			name := ti.Name.String()
			return name == "java/lang/Cloneable" || name == "java/io/Serializable"
		default:
			return false
		}
	case clazz.VariantInstance:
		if to.Variant != clazz.VariantInstance {
			return false
		}
		fi := from.AsInstanceClazz()
		ti := to.AsInstanceClazz()
		if ti.IsInterface() {
			return implementsInterface(fi, ti)
		}
		for s := fi; s != nil; s = s.Super {
			if &s.Clazz == to {
				return true
			}
		}
		return false
	default: // primitive
		return false
	}
}

func implementsInterface(ic, iface *clazz.InstanceClazz) bool {
	for s := ic; s != nil; s = s.Super {
		for _, i := range s.Interfaces {
			if i == &iface.Clazz {
				return true
			}
			if ii := i.AsInstanceClazz(); ii != nil && implementsInterface(ii, iface) {
				return true
			}
		}
	}
	return false
}

// EnsureInitialized drives a clazz's LOADED -> INITIALIZING -> INITIALIZED
// transition (spec.md §4.C "Initialization"). Array and primitive clazzes
// are always already INITIALIZED and return immediately.
func EnsureInitialized(ctx *Context, th *thread.Thread, c *clazz.Clazz) error {
	ic := c.AsInstanceClazz()
	if ic == nil {
		return nil
	}
	return initInstance(ctx, th, ic)
}

func initInstance(ctx *Context, th *thread.Thread, ic *clazz.InstanceClazz) error {
	ic.Lock()
	switch ic.State {
	case clazz.Initialized:
		ic.Unlock()
		return nil
	case clazz.Error:
		ic.Unlock()
		return &NoClassDefFoundError{Name: ic.Name.String()}
	case clazz.Initializing:
		// JVMS 2.17.5 re-entrance: a thread already driving this class's
		// own <clinit> (directly, or via a class it references from within
		// <clinit>) sees it as usable rather than recursing forever.
		ic.Unlock()
		return nil
	}
	ic.State = clazz.Initializing
	ic.Unlock()

	if !ic.IsInterface() && ic.Super != nil {
		if err := initInstance(ctx, th, ic.Super); err != nil {
			ic.Lock()
			ic.State = clazz.Error
			ic.Unlock()
			return err
		}
	}

	var clinit *clazz.Method
	for _, m := range ic.Methods {
		if m.IsClinit() {
			clinit = m
			break
		}
	}
	if clinit != nil && ctx.Run != nil {
		if _, err := ctx.Run.Invoke(th, clinit, ic, nil); err != nil {
			ic.Lock()
			ic.State = clazz.Error
			ic.Unlock()
			return err
		}
	}

	ic.Lock()
	ic.State = clazz.Initialized
	ic.Unlock()
	return nil
}
