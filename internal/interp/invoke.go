package interp

import (
	"fmt"

	"github.com/babevm/babevm-sub001/internal/cell"
	"github.com/babevm/babevm-sub001/internal/classfile"
	"github.com/babevm/babevm-sub001/internal/clazz"
	"github.com/babevm/babevm-sub001/internal/frame"
	"github.com/babevm/babevm-sub001/internal/loader"
	"github.com/babevm/babevm-sub001/internal/object"
	"github.com/babevm/babevm-sub001/internal/thread"
	"github.com/babevm/babevm-sub001/internal/vmerr"
)

// popArgs pops a call's receiver (if !isStatic) and arguments off f's
// operand stack into a slot-aligned slice sized classfile.ArgCells(desc,
// isStatic): the shape frame.Stack.Push needs since it copies args[i]
// straight into local slot i. The operand stack itself holds exactly one
// Cell per value regardless of category (spec.md §3's two-slots-per-wide
// rule is bookkeeping only here, see internal/cell's Cell doc), so each
// argument is popped once and placed at its slot-aligned index, leaving the
// padding slot after a wide argument at its default cell.Zero.
func (in *Interp) popArgs(f *frame.Frame, desc string, isStatic bool) []cell.Cell {
	types := classfile.ParamTypes(desc)
	slots := make([]cell.Cell, classfile.ArgCells(desc, isStatic))

	idx := len(slots)
	for i := len(types) - 1; i >= 0; i-- {
		idx -= types[i].CellSize()
		slots[idx] = f.Pop()
	}
	if !isStatic {
		slots[0] = f.Pop()
	}
	return slots
}

// densifyArgs converts a slot-aligned argument slice (with zero padding
// after wide arguments) into the dense one-cell-per-argument slice
// internal/nativereg's NativeFunc signature expects.
func densifyArgs(m *clazz.Method, slotArgs []cell.Cell) []cell.Cell {
	types := classfile.ParamTypes(m.Signature.String())
	dense := make([]cell.Cell, 0, len(types)+1)
	idx := 0
	if !m.IsStatic() {
		dense = append(dense, slotArgs[0])
		idx = 1
	}
	for _, t := range types {
		dense = append(dense, slotArgs[idx])
		idx += t.CellSize()
	}
	return dense
}

// unsatisfiedLinkError marks a native method with no bound implementation
// (spec.md §6 "missing entries yield UnsatisfiedLinkError at invocation
// time"), distinguished from any other native-call Go error (which
// indicates a genuine VM-internal failure, e.g. heap exhaustion).
type unsatisfiedLinkError struct{ m *clazz.Method }

func (e *unsatisfiedLinkError) Error() string {
	return "no native binding for " + e.m.Owner.Name.String() + "." + e.m.Name.String() + e.m.Signature.String()
}

// callNative invokes m's bound Go function directly: no frame is pushed,
// since a native method has no bytecode/locals/operand-stack region of its
// own (spec.md §4.E "native methods bypass the bytecode frame entirely").
func (in *Interp) callNative(th *thread.Thread, m *clazz.Method, slotArgs []cell.Cell) ([]cell.Cell, error) {
	if m.Native == nil {
		return nil, &unsatisfiedLinkError{m: m}
	}
	result, err := m.Native(densifyArgs(m, slotArgs))
	if err != nil {
		return nil, err
	}
	if m.ReturnCells == 0 {
		return nil, nil
	}
	return []cell.Cell{result}, nil
}

// raiseLinkage converts a loader-level VMError (failed resolution,
// accessibility, initialization) into the matching Java-visible throw
// (spec.md §7).
func (in *Interp) raiseLinkage(th *thread.Thread, err error) {
	if ve, ok := err.(loader.VMError); ok {
		in.throw(th, ve.JVMClass(), ve.Error())
		return
	}
	panic(vmerr.NewFatal("linkage", err))
}

// invokeResolved pushes (or, for a native target, directly executes) the
// method ultimately being called, after all resolution/dispatch/null-check
// logic has picked it. f.PC must already point past the invoke instruction
// (spec.md §4.E: the flat dispatch loop resumes the caller exactly there
// once the callee, and everything it transitively calls, has returned).
func (in *Interp) invokeResolved(th *thread.Thread, f *frame.Frame, m *clazz.Method, owner *clazz.InstanceClazz, args []cell.Cell) {
	if m.IsAbstract() {
		in.throwf(th, vmerr.AbstractMethodError, "%s.%s", owner.Name, m.Name)
		return
	}
	if m.IsNative() {
		result, err := in.callNative(th, m, args)
		if err != nil {
			if ule, ok := err.(*unsatisfiedLinkError); ok {
				in.throw(th, vmerr.UnsatisfiedLinkError, ule.Error())
				return
			}
			panic(vmerr.NewFatal(fmt.Sprintf("native call %s.%s", owner.Name, m.Name), err))
		}
		if len(result) > 0 {
			f.Push(result[0])
		}
		return
	}
	if _, err := th.Stack.Push(m, owner, args); err != nil {
		in.throw(th, vmerr.StackOverflowError, "")
		return
	}
	if m.IsSynchronized() {
		in.acquireMethodMonitor(th, m, args)
	}
}

func (in *Interp) execInvokestatic(th *thread.Thread, f *frame.Frame) {
	idx := u16At(f.Method.Code, f.PC+1)
	m, err := loader.ResolveMethod(in.ctx, f.Clazz, idx)
	if err != nil {
		in.raiseLinkage(th, err)
		return
	}
	if err := loader.EnsureInitialized(in.ctx, th, &m.Owner.Clazz); err != nil {
		in.raiseLinkage(th, err)
		return
	}
	args := in.popArgs(f, m.Signature.String(), true)
	f.PC += 3
	in.invokeResolved(th, f, m, m.Owner, args)
}

func (in *Interp) execInvokespecial(th *thread.Thread, f *frame.Frame) {
	idx := u16At(f.Method.Code, f.PC+1)
	// Statically resolved target is invoked directly, not re-looked-up
	// from the receiver's runtime clazz: a deliberate simplification of
	// JVMS 6.5 invokespecial's ACC_SUPER "search starts one level above the
	// referrer's superclass" rule, documented in DESIGN.md.
	m, err := loader.ResolveMethod(in.ctx, f.Clazz, idx)
	if err != nil {
		in.raiseLinkage(th, err)
		return
	}
	args := in.popArgs(f, m.Signature.String(), false)
	f.PC += 3
	if args[0].IsNull() {
		in.throw(th, vmerr.NullPointerException, "")
		return
	}
	in.invokeResolved(th, f, m, m.Owner, args)
}

func (in *Interp) execInvokevirtual(th *thread.Thread, f *frame.Frame) {
	idx := u16At(f.Method.Code, f.PC+1)
	m, err := loader.ResolveMethod(in.ctx, f.Clazz, idx)
	if err != nil {
		in.raiseLinkage(th, err)
		return
	}
	args := in.popArgs(f, m.Signature.String(), false)
	f.PC += 3
	if args[0].IsNull() {
		in.throw(th, vmerr.NullPointerException, "")
		return
	}
	rc := object.ClazzOf(args[0].Ref())
	target := loader.FindMethod(rc, m.Name, m.Signature)
	owner := rc
	if target == nil {
		target, owner = m, m.Owner
	}
	in.invokeResolved(th, f, target, owner, args)
}

func (in *Interp) execInvokeinterface(th *thread.Thread, f *frame.Frame) {
	idx := u16At(f.Method.Code, f.PC+1)
	m, err := loader.ResolveMethod(in.ctx, f.Clazz, idx)
	if err != nil {
		in.raiseLinkage(th, err)
		return
	}
	args := in.popArgs(f, m.Signature.String(), false)
	f.PC += 5 // 2-byte index + count byte + reserved zero byte
	if args[0].IsNull() {
		in.throw(th, vmerr.NullPointerException, "")
		return
	}
	rc := object.ClazzOf(args[0].Ref())
	target := loader.FindMethod(rc, m.Name, m.Signature)
	if target == nil {
		in.throwf(th, vmerr.IncompatibleClassChangeError, "%s does not implement %s%s", rc.Name, m.Name, m.Signature)
		return
	}
	in.invokeResolved(th, f, target, rc, args)
}
