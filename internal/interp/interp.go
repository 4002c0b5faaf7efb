package interp

import (
	"fmt"
	"unicode/utf16"

	"github.com/babevm/babevm-sub001/internal/cell"
	"github.com/babevm/babevm-sub001/internal/clazz"
	"github.com/babevm/babevm-sub001/internal/frame"
	"github.com/babevm/babevm-sub001/internal/loader"
	"github.com/babevm/babevm-sub001/internal/object"
	"github.com/babevm/babevm-sub001/internal/thread"
	"github.com/babevm/babevm-sub001/internal/vmerr"
)

// Config tunes one Interp instance.
type Config struct {
	// Debugger is stored but not read by any code in this build. Resolution
	// caching through the constant pool's own OPT bit (internal/loader's
	// Resolve*/e.SetResolved) already gives every repeated constant
	// reference O(1) re-dispatch, so this build does not additionally
	// rewrite opcode bytes in place the way some JVMs do, and there is no
	// such optimization for Debugger to disable. internal/dashboard has no
	// stepping mode.
	Debugger bool
}

// Interp is the bytecode interpreter: one instance drives every green
// thread registered with sched, sharing ctx's loaded classes and heap
// (spec.md §4.E, §4.F).
type Interp struct {
	ctx   *loader.Context
	sched *thread.Scheduler
	cfg   Config

	// monitors lazily associates a Monitor with an object on first
	// synchronize (spec.md §3 Monitor "lazily associated... on first
	// synchronize").
	monitors map[cell.Ref]*thread.Monitor
}

// New constructs an Interp wired to ctx's loaded-class/heap state and sched's
// thread rotation.
func New(ctx *loader.Context, sched *thread.Scheduler, cfg Config) *Interp {
	return &Interp{
		ctx:      ctx,
		sched:    sched,
		cfg:      cfg,
		monitors: make(map[cell.Ref]*thread.Monitor),
	}
}

func (in *Interp) monitorFor(ref cell.Ref) *thread.Monitor {
	m, ok := in.monitors[ref]
	if !ok {
		m = &thread.Monitor{}
		in.monitors[ref] = m
	}
	return m
}

// ThrownError wraps an uncaught Java throwable that unwound all the way to
// an Invoke call's floor, surfacing it as a Go error to that call's caller
// (spec.md §4.F, §4.I "raise via the try/catch bridge").
type ThrownError struct {
	Throwable cell.Ref
}

func (e *ThrownError) Error() string {
	if ic := object.ClazzOf(e.Throwable); ic != nil && ic.Name != nil {
		return "uncaught " + ic.Name.String()
	}
	return "uncaught exception"
}

var _ loader.Invoker = (*Interp)(nil)

// RunQuantum drives th for at most maxSteps dispatch steps (or until th's
// stack empties entirely, or th stops being Runnable), the entry point
// internal/vm's scheduler loop calls once per thread per timeslice (spec.md
// §4.F "preemption only at opcode dispatch boundaries"). Unlike Invoke, there
// is no floor frame to return to: th's own stack determines when it has
// finished, which is how the VM tells a terminated thread apart from one
// merely out of quantum.
func (in *Interp) RunQuantum(th *thread.Thread, maxSteps int) error {
	_, err := in.run(th, nil, maxSteps)
	return err
}

// Invoke implements loader.Invoker: runs m to completion on th, synchronously
// from the Go caller's point of view (spec.md §4.C "push a frame that runs a
// helper"). Used directly by internal/loader to drive <clinit>, and
// available to internal/vm for any other Go-level call into bytecode (e.g.
// invoking main).
func (in *Interp) Invoke(th *thread.Thread, m *clazz.Method, ic *clazz.InstanceClazz, args []cell.Cell) ([]cell.Cell, error) {
	floor := th.Stack.Top()

	if m.IsNative() {
		results, err := in.callNative(th, m, args)
		if err != nil {
			return nil, err
		}
		return results, nil
	}

	if _, err := th.Stack.Push(m, ic, args); err != nil {
		return nil, in.stackOverflow(th)
	}
	if m.IsSynchronized() {
		in.acquireMethodMonitor(th, m, args)
	}

	result, err := in.run(th, floor, 0)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// acquireMethodMonitor acquires the monitor backing a synchronized method's
// implicit lock: the receiver for an instance method, the clazz mirror for a
// static one (spec.md §4.F "synchronized methods acquire... on entry").
// Invoke's own frame.Push has already installed the frame by the time this
// runs, so contention here simply spins the owning thread's quantum away via
// run's Blocked-status check rather than truly block the host thread.
func (in *Interp) acquireMethodMonitor(th *thread.Thread, m *clazz.Method, args []cell.Cell) {
	var lockOn cell.Ref
	if m.IsStatic() {
		lockOn = m.Owner.ClassMirror
	} else if len(args) > 0 {
		lockOn = args[0].Ref()
	}
	if lockOn == nil {
		return
	}
	mon := in.monitorFor(lockOn)
	if mon.Acquire(th) {
		th.Stack.Top().SyncObject = lockOn
	}
}

// run drives th's dispatch loop until the thread's operand-stack top returns
// to floor (a completed Invoke call, or -- when floor is nil -- the thread
// finishing entirely), the thread stops being Runnable, or maxSteps dispatch
// steps have executed (a scheduler quantum). maxSteps == 0 means unbounded,
// used only by the synchronous Invoke path (spec.md §4.F "preemption only at
// opcode dispatch boundaries").
func (in *Interp) run(th *thread.Thread, floor *frame.Frame, maxSteps int) ([]cell.Cell, error) {
	steps := 0
	for {
		f := th.Stack.Top()
		if f == floor {
			return nil, nil
		}
		if th.Status != thread.Runnable {
			return nil, nil // yielded; scheduler will resume this thread later
		}
		if maxSteps > 0 {
			if steps >= maxSteps {
				return nil, nil
			}
			steps++
		}

		if th.PendingException != nil {
			thrown := th.PendingException
			th.PendingException = nil
			if !in.unwind(th, floor, thrown) {
				return nil, &ThrownError{Throwable: thrown}
			}
			continue
		}

		result, thrown := in.dispatch(th, f, floor)
		if thrown != nil {
			if !in.unwind(th, floor, thrown) {
				return nil, &ThrownError{Throwable: thrown}
			}
			continue
		}
		if th.Stack.Top() == floor {
			return result, nil
		}
	}
}

// dispatch executes exactly one opcode on f, converting any Java-level
// exception raised through vmerr.Raise into a returned throwable rather than
// letting it unwind past this call (spec.md §4.I "VM helpers either complete
// successfully, or raise via the try/catch bridge").
func (in *Interp) dispatch(th *thread.Thread, f *frame.Frame, floor *frame.Frame) (result []cell.Cell, thrown cell.Ref) {
	defer func() {
		if t, ok := vmerr.Recover(); ok {
			thrown = t
		}
	}()
	result = in.execOne(th, f, floor)
	return
}

// doReturn pops the returning frame, releases its monitor if any, and either
// hands retCells back to run (when the new top is floor -- an Invoke call or
// the whole thread finishing) or pushes them onto the caller's operand stack
// for an ordinary bytecode call (spec.md §4.E "Frame pop").
func (in *Interp) doReturn(th *thread.Thread, floor *frame.Frame, retCells []cell.Cell) []cell.Cell {
	popped, _ := th.Stack.Pop()
	if popped != nil && popped.SyncObject != nil {
		in.monitorFor(popped.SyncObject).Release()
	}
	newTop := th.Stack.Top()
	if newTop == floor {
		return retCells
	}
	if newTop != nil {
		for _, c := range retCells {
			newTop.Push(c)
		}
	}
	return nil
}

// unwind implements spec.md §4.F's locate/pop exception model: walk down
// from the top frame looking for a matching handler, clearing the operand
// stack and resuming there if found, otherwise popping (and releasing any
// monitor) and continuing downward. Returns false if thrown reaches floor
// uncaught.
func (in *Interp) unwind(th *thread.Thread, floor *frame.Frame, thrown cell.Ref) bool {
	for {
		f := th.Stack.Top()
		if f == floor || f == nil {
			return false
		}
		if f.SyncObject != nil && in.monitorFor(f.SyncObject).Owner != th {
			// spec.md §4.H Locate phase: the current frame's method is
			// synchronized but this thread no longer owns its sync object's
			// monitor (e.g. released out from under it by a wait() that was
			// interrupted before re-acquiring) -- report
			// IllegalMonitorStateException instead of propagating thrown.
			if replacement, err := in.newThrowable(th, vmerr.IllegalMonitorStateException, ""); err == nil {
				thrown = replacement
			}
		}
		if !f.IsWedge() {
			if h := in.findHandler(f, thrown); h != nil {
				f.SetSP(0)
				f.Push(cell.RefOf(thrown))
				f.PC = h.HandlerPC
				return true
			}
		}
		popped, _ := th.Stack.Pop()
		if popped != nil && popped.SyncObject != nil && in.monitorFor(popped.SyncObject).Owner == th {
			in.monitorFor(popped.SyncObject).Release()
		}
	}
}

// findHandler scans f.Method's exception table for an entry covering f.PC
// whose catch type (if any) is assignable from thrown's runtime clazz,
// resolving CatchTypeName lazily on first use (spec.md §4.C.g).
func (in *Interp) findHandler(f *frame.Frame, thrown cell.Ref) *clazz.ExceptionTableEntry {
	for _, et := range f.Method.ExceptionTable {
		if f.PC < et.StartPC || f.PC >= et.EndPC {
			continue
		}
		if et.CatchTypeName == nil {
			return et
		}
		ct := et.ResolvedCatchType()
		if ct == nil {
			resolved, err := loader.LoadClass(in.ctx, f.Clazz.Loader, et.CatchTypeName, false)
			if err != nil {
				continue
			}
			ct = resolved
			et.SetResolvedCatchType(ct)
		}
		thrownClazz := object.ClazzOf(thrown)
		if thrownClazz == nil {
			continue
		}
		if loader.IsAssignableFrom(&thrownClazz.Clazz, ct) {
			return et
		}
	}
	return nil
}

// stackOverflow raises a StackOverflowError the same way any other built-in
// exception is raised, so callers that catch Throwable see a real object
// (spec.md §4.F StackOverflowError, one of the few exceptions the VM itself
// can raise with no Java frame yet active to blame).
func (in *Interp) stackOverflow(th *thread.Thread) error {
	ref, err := in.newThrowable(th, vmerr.StackOverflowError, "")
	if err != nil {
		return err
	}
	return &ThrownError{Throwable: ref}
}

// throw constructs a built-in exception/error instance and raises it via the
// panic/recover bridge (spec.md §4.I). Called from opcode handlers; never
// returns.
func (in *Interp) throw(th *thread.Thread, class vmerr.ClassName, message string) {
	ref, err := in.newThrowable(th, class, message)
	if err != nil {
		panic(vmerr.NewFatal("constructing "+string(class), err))
	}
	vmerr.Raise(ref)
}

func (in *Interp) throwf(th *thread.Thread, class vmerr.ClassName, format string, args ...any) {
	in.throw(th, class, fmt.Sprintf(format, args...))
}

// newThrowable loads (if needed) and instantiates class, with an optional
// message and a captured stack trace. Construction goes straight through
// object.Heap.NewThrowable rather than invoking the class's own <init>: the
// bootstrap exception set registered in internal/nativereg has no
// constructor logic beyond recording the message, which NewThrowable already
// does directly (spec.md §6 "the minimal native set").
func (in *Interp) newThrowable(th *thread.Thread, class vmerr.ClassName, message string) (cell.Ref, error) {
	name := in.ctx.UTF.GetString(string(class), true)
	c, err := loader.LoadClass(in.ctx, in.ctx.Bootstrap, name, false)
	if err != nil {
		return nil, err
	}
	ic := c.AsInstanceClazz()
	if ic == nil {
		return nil, fmt.Errorf("interp: %s did not load as an instance clazz", class)
	}
	if err := loader.EnsureInitialized(in.ctx, th, c); err != nil {
		return nil, err
	}

	var msgObj *object.StringObj
	if message != "" && in.ctx.StringClazz != nil {
		msgObj, err = in.ctx.Heap.NewString(in.ctx.StringClazz, asciiToUTF16(message))
		if err != nil {
			return nil, err
		}
	}

	trace := captureStackTrace(th.Stack)
	t, err := in.ctx.Heap.NewThrowable(ic, msgObj, trace)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func asciiToUTF16(s string) []uint16 {
	return utf16.Encode([]rune(s))
}

// captureStackTrace mirrors internal/nativereg's unexported helper of the
// same shape (Throwable.fillInStackTrace): every live, non-wedge frame from
// the top down (spec.md §4.F "locate/pop" model).
func captureStackTrace(stack *frame.Stack) []object.StackFrame {
	var trace []object.StackFrame
	stack.Walk(func(f *frame.Frame) {
		if f.IsWedge() {
			return
		}
		sf := object.StackFrame{MethodName: f.Method.Name, PC: f.PC}
		if f.Clazz != nil {
			sf.ClassName = f.Clazz.Name
		}
		sf.Line = lineFor(f.Method, f.PC)
		trace = append(trace, sf)
	})
	return trace
}

func lineFor(m *clazz.Method, pc int) int {
	line := -1
	for _, e := range m.Lines {
		if e.StartPC <= pc {
			line = e.Line
		} else {
			break
		}
	}
	return line
}
