// Package vmerr implements the VM's error taxonomy and its try/catch
// bridge: the non-local transfer VM helpers use to hand a raised Java
// throwable back up to the interpreter's dispatch loop (spec.md §4.I/§7).
//
// Grounded on other_examples' daimatz-gojvm vm.go, whose execute loop
// discriminates `err.(*JavaException)` from any other Go error returned up
// the call stack. This package keeps that same "ours vs. not ours"
// discrimination but carries it through a panic/recover pair rather than a
// returned error: spec.md's bridge must resume bytecode execution at a
// handler pc mid-call-stack, which a plain returned error can't express as
// directly as an unwind-and-catch.
package vmerr

import (
	"fmt"

	"github.com/babevm/babevm-sub001/internal/cell"
)

// ClassName is a symbolic reference to one of the taxonomy's classes, by
// binary name, used before (or instead of) an actual clazz/Throwable has
// been resolved.
type ClassName string

// JVM-visible errors and exceptions (spec.md §7): raised as real Throwable
// instances, subject to ordinary Java catch/finally.
const (
	OutOfMemoryError               ClassName = "java/lang/OutOfMemoryError"
	StackOverflowError             ClassName = "java/lang/StackOverflowError"
	NoClassDefFoundError           ClassName = "java/lang/NoClassDefFoundError"
	ClassNotFoundException         ClassName = "java/lang/ClassNotFoundException"
	ClassFormatError               ClassName = "java/lang/ClassFormatError"
	IncompatibleClassChangeError   ClassName = "java/lang/IncompatibleClassChangeError"
	IllegalAccessError             ClassName = "java/lang/IllegalAccessError"
	VerifyError                    ClassName = "java/lang/VerifyError"
	NoSuchMethodError              ClassName = "java/lang/NoSuchMethodError"
	NoSuchFieldError               ClassName = "java/lang/NoSuchFieldError"
	AbstractMethodError            ClassName = "java/lang/AbstractMethodError"
	UnsatisfiedLinkError           ClassName = "java/lang/UnsatisfiedLinkError"
	NullPointerException           ClassName = "java/lang/NullPointerException"
	ArrayIndexOutOfBoundsException ClassName = "java/lang/ArrayIndexOutOfBoundsException"
	ArrayStoreException            ClassName = "java/lang/ArrayStoreException"
	ClassCastException             ClassName = "java/lang/ClassCastException"
	NegativeArraySizeException     ClassName = "java/lang/NegativeArraySizeException"
	ArithmeticException            ClassName = "java/lang/ArithmeticException"
	IllegalMonitorStateException   ClassName = "java/lang/IllegalMonitorStateException"
	ClassCircularityError          ClassName = "java/lang/ClassCircularityError"
	InstantiationError             ClassName = "java/lang/InstantiationError"
	InternalError                  ClassName = "java/lang/InternalError"

	// InterruptedException is delivered asynchronously at the interrupted
	// thread's next blocking call (spec.md §4.F "Cancellation"), not via
	// the synchronous Raise/Recover bridge below -- Thread.Interrupt sets
	// it directly as the thread's PendingException instead.
	InterruptedException ClassName = "java/lang/InterruptedException"
)

// ClassNotFound picks between ClassNotFoundException and
// NoClassDefFoundError for a failed class resolution, depending on whether
// the caller was reflective (spec.md §7 "a 'reflective' flag... preserve
// both behaviors but do not widen the distinction").
func ClassNotFound(reflective bool) ClassName {
	if reflective {
		return ClassNotFoundException
	}
	return NoClassDefFoundError
}

// Thrown is the panic payload carrying a live throwable object up to the
// nearest Recover, the mechanism behind the try/catch bridge (spec.md §4.I
// "VM helpers either complete successfully, or raise via the try/catch
// bridge").
type Thrown struct {
	Throwable cell.Ref
}

// Raise performs the non-local transfer: panic with the throwable so the
// interpreter's per-frame Recover catches it and runs the locate/pop
// exception-handling phases instead of unwinding past Go's own stack.
func Raise(throwable cell.Ref) {
	panic(Thrown{Throwable: throwable})
}

// Recover must be invoked directly inside a deferred function. It reports
// the thrown object and true when the current panic originated from Raise;
// any other panic value is re-raised immediately, since it represents a
// genuine VM implementation bug rather than a Java-level exception.
func Recover() (cell.Ref, bool) {
	r := recover()
	if r == nil {
		return nil, false
	}
	thrown, ok := r.(Thrown)
	if !ok {
		panic(r)
	}
	return thrown.Throwable, true
}

// Fatal marks a failure with no JVM-visible representative: one that
// occurs before the VM has bootstrapped far enough to allocate a Throwable
// at all (spec.md §4.A "before initialization, it exits fatally"), or a
// heap-corruption/internal invariant violation no catch clause should ever
// observe. Callers report it and terminate the process.
type Fatal struct {
	Reason string
	Err    error
}

func (f *Fatal) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("vmerr: fatal: %s: %v", f.Reason, f.Err)
	}
	return fmt.Sprintf("vmerr: fatal: %s", f.Reason)
}

func (f *Fatal) Unwrap() error { return f.Err }

// NewFatal constructs a Fatal wrapping the underlying cause, if any.
func NewFatal(reason string, err error) *Fatal {
	return &Fatal{Reason: reason, Err: err}
}
