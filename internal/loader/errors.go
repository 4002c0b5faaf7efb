package loader

import (
	"fmt"

	"github.com/babevm/babevm-sub001/internal/vmerr"
)

// VMError is implemented by every error this package returns that has a
// corresponding JVM-visible Throwable class (spec.md §7). Constructing the
// actual Throwable instance is left to internal/interp, which allocates it
// through object.Heap.NewThrowable without running the error class's <init>
// -- this package only classifies the failure.
type VMError interface {
	error
	JVMClass() vmerr.ClassName
}

// ClassFormatError wraps a structural violation surfaced while parsing a
// class file (spec.md §4.C step 5a, §7).
type ClassFormatError struct{ Err error }

func (e *ClassFormatError) Error() string        { return fmt.Sprintf("ClassFormatError: %v", e.Err) }
func (e *ClassFormatError) Unwrap() error        { return e.Err }
func (e *ClassFormatError) JVMClass() vmerr.ClassName { return vmerr.ClassFormatError }

// ClassNotFoundError covers both failed-delegation outcomes distinguished
// by the reflective flag (spec.md §7).
type ClassNotFoundError struct {
	Name       string
	Reflective bool
}

func (e *ClassNotFoundError) Error() string {
	return fmt.Sprintf("%s: %s", e.JVMClass(), e.Name)
}
func (e *ClassNotFoundError) JVMClass() vmerr.ClassName { return vmerr.ClassNotFound(e.Reflective) }

// ClassCircularityError fires when a superclass/interface chain resolves
// back to a clazz still in state LOADING (spec.md §4.C step 5d).
type ClassCircularityError struct{ Name string }

func (e *ClassCircularityError) Error() string        { return "ClassCircularityError: " + e.Name }
func (e *ClassCircularityError) JVMClass() vmerr.ClassName { return vmerr.ClassCircularityError }

// IncompatibleClassChangeError covers the linkage-shape mismatches spec.md
// §4.C calls out: extending a non-class, implementing a non-interface, and
// static/instance constant-pool resolution mismatches.
type IncompatibleClassChangeError struct{ Msg string }

func (e *IncompatibleClassChangeError) Error() string { return "IncompatibleClassChangeError: " + e.Msg }
func (e *IncompatibleClassChangeError) JVMClass() vmerr.ClassName {
	return vmerr.IncompatibleClassChangeError
}

// VerifyError covers the structural rule violations spec.md §4.C step 5d
// calls out (e.g. extending a final class).
type VerifyError struct{ Msg string }

func (e *VerifyError) Error() string        { return "VerifyError: " + e.Msg }
func (e *VerifyError) JVMClass() vmerr.ClassName { return vmerr.VerifyError }

// NoClassDefFoundError fires when a previously ERROR-state class (or one of
// its interfaces) is referenced again (spec.md §4.C "<clinit>" and step 5e).
type NoClassDefFoundError struct{ Name string }

func (e *NoClassDefFoundError) Error() string        { return "NoClassDefFoundError: " + e.Name }
func (e *NoClassDefFoundError) JVMClass() vmerr.ClassName { return vmerr.NoClassDefFoundError }

// IllegalAccessError fires when resolution finds a member or class that
// exists but isn't accessible to the referrer (spec.md §4.C "Constant
// resolution", JVMS 5.4.4).
type IllegalAccessError struct{ Msg string }

func (e *IllegalAccessError) Error() string        { return "IllegalAccessError: " + e.Msg }
func (e *IllegalAccessError) JVMClass() vmerr.ClassName { return vmerr.IllegalAccessError }

// NoSuchFieldError fires when resolve_field can't find the named field
// anywhere in the owning clazz's supertype chain.
type NoSuchFieldError struct{ Name string }

func (e *NoSuchFieldError) Error() string        { return "NoSuchFieldError: " + e.Name }
func (e *NoSuchFieldError) JVMClass() vmerr.ClassName { return vmerr.NoSuchFieldError }

// NoSuchMethodError fires when resolve_method can't find the named method
// anywhere in the owning clazz's supertype/interface chain.
type NoSuchMethodError struct{ Name string }

func (e *NoSuchMethodError) Error() string        { return "NoSuchMethodError: " + e.Name }
func (e *NoSuchMethodError) JVMClass() vmerr.ClassName { return vmerr.NoSuchMethodError }
