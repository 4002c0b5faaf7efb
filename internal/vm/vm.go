// Package vm wires components A-J into one running VM instance: the heap,
// pools, class loader, thread scheduler, collector, and interpreter, plus
// the bootstrap sequence that gets a bare arena to a state where a user
// main class can run (spec.md §2).
//
// Grounded on spec.md §2's control-flow description directly (no example
// repo in the retrieval pack boots a JVM-shaped runtime of its own); the
// Config/New/Run split and flag-to-struct translation follow jdiag's
// cmd/*.go -> internal/... calling convention, turning cobra flags into a
// plain struct before any subsystem is touched.
package vm

import (
	"fmt"
	"time"

	"github.com/babevm/babevm-sub001/internal/cell"
	"github.com/babevm/babevm-sub001/internal/classpath"
	"github.com/babevm/babevm-sub001/internal/classpool"
	"github.com/babevm/babevm-sub001/internal/clazz"
	"github.com/babevm/babevm-sub001/internal/frame"
	"github.com/babevm/babevm-sub001/internal/gc"
	"github.com/babevm/babevm-sub001/internal/gcstats"
	"github.com/babevm/babevm-sub001/internal/interp"
	"github.com/babevm/babevm-sub001/internal/loader"
	"github.com/babevm/babevm-sub001/internal/nativereg"
	"github.com/babevm/babevm-sub001/internal/object"
	"github.com/babevm/babevm-sub001/internal/strpool"
	"github.com/babevm/babevm-sub001/internal/thread"
	"github.com/babevm/babevm-sub001/internal/vmerr"
	"github.com/babevm/babevm-sub001/internal/vmheap"
	"github.com/babevm/babevm-sub001/internal/vmlog"
	"github.com/babevm/babevm-sub001/utils"
)

// Config tunes one VM instance (§6 CLI contract).
type Config struct {
	HeapSize           uint32 // bytes
	BootstrapClasspath []string
	UserClasspath      []string
	Quantum            int // bytecode-dispatch steps per thread timeslice
	Debugger           bool
	GCLogCapacity      int // events retained by internal/gcstats, 0 means default
	Quiet              bool
}

// VM is one embedded instance: an arena-backed heap, class pool, scheduler,
// interpreter, and the collector/stats pipeline watching them (spec.md §2,
// §8 "one VM instance per process or per embedding context").
type VM struct {
	cfg Config
	log *vmlog.Logger

	Arena      *vmheap.Arena
	Heap       *object.Heap
	Pool       *classpool.Pool
	UTF        *strpool.UTFPool
	Interns    *strpool.InternPool
	Natives    *nativereg.Registry
	Bootstrap  *loader.Loader
	UserLoader *loader.Loader
	Ctx        *loader.Context
	Sched      *thread.Scheduler
	Collector  *gc.Collector
	GCLog      *gcstats.Log
	Interp     *interp.Interp

	roots     *gc.Roots
	permanent []cell.Ref

	// current is the thread presently executing a dispatch quantum, set by
	// Run immediately before each RunQuantum call. The scheduler is
	// cooperative (spec.md §4.F: only one thread ever executes Go code at a
	// time), so a single field is enough for nativereg.Env.CurrentThread to
	// answer Thread.currentThread() correctly from inside a native call.
	current *thread.Thread

	// threadClazz is java/lang/Thread, used to mint each green thread's Peer
	// instance so Thread.currentThread() has something to return.
	threadClazz *clazz.InstanceClazz
}

// New performs the bootstrap sequence of spec.md §2: allocate the heap (A),
// construct the UTF/intern pools (B) and class pool (C), construct the
// bootstrap ClassLoader, synthesize the core clazzes the interpreter needs
// before any real class file can be parsed, construct the scheduler (G),
// and wire the collector (I) back into the arena's exhaustion path.
func New(cfg Config) (*VM, error) {
	if cfg.Quantum <= 0 {
		cfg.Quantum = 10000
	}
	if cfg.GCLogCapacity <= 0 {
		cfg.GCLogCapacity = 256
	}

	arena, err := vmheap.New(cfg.HeapSize)
	if err != nil {
		return nil, vmerr.NewFatal("allocating heap arena", err)
	}

	v := &VM{
		cfg:     cfg,
		log:     vmlog.New(cfg.Quiet),
		Arena:   arena,
		Heap:    object.NewHeap(arena),
		Pool:    classpool.New(),
		UTF:     strpool.NewUTFPool(),
		Interns: strpool.NewInternPool(),
		Natives: nativereg.New(),
		Sched:   thread.NewScheduler(cfg.Quantum),
		GCLog:   gcstats.NewLog(cfg.GCLogCapacity),
	}

	bootPath, err := classpath.NewBootstrap(cfg.BootstrapClasspath)
	if err != nil {
		return nil, vmerr.NewFatal("opening bootstrap classpath", err)
	}
	v.Bootstrap = loader.NewBootstrapLoader(bootPath)

	userPath, err := classpath.NewUser(cfg.UserClasspath)
	if err != nil {
		return nil, vmerr.NewFatal("opening user classpath", err)
	}
	v.UserLoader = loader.NewUserLoader(v.Bootstrap, nil, userPath)

	v.Ctx = &loader.Context{
		Pool:      v.Pool,
		UTF:       v.UTF,
		Interns:   v.Interns,
		Heap:      v.Heap,
		Natives:   v.Natives,
		Permanent: &v.permanent,
		Bootstrap: v.Bootstrap,
	}

	if err := v.bootCoreClazzes(); err != nil {
		return nil, err
	}

	env := &nativereg.Env{
		Heap:          v.Heap,
		CurrentThread: func() *thread.Thread { return v.current },
		NewJavaString: func(chars []uint16) (cell.Ref, error) {
			s, err := v.Heap.NewString(v.Ctx.StringClazz, chars)
			if err != nil {
				return nil, err
			}
			return s, nil
		},
	}
	nativereg.RegisterBootstrap(v.Natives, env)

	v.roots = &gc.Roots{Classes: v.Pool, Interns: v.Interns}
	v.Collector = gc.New(v.Arena, v.Heap, v.roots)
	v.Collector.OnCollect = v.recordCollection
	v.Arena.Collect = v.collect

	v.Interp = interp.New(v.Ctx, v.Sched, interp.Config{Debugger: cfg.Debugger})
	v.Ctx.Run = v.Interp

	return v, nil
}

// collect refreshes the root set from live VM state immediately before
// delegating to the collector: thread roots are Walk'd fresh every cycle
// (terminated threads filtered out here, per thread.Scheduler.Walk's own
// doc comment that the caller must do this filtering) since Roots holds a
// plain snapshot slice rather than a live view, and the permanent list is
// re-read from v.permanent for the same reason -- both can grow between
// collections as more classes load and more bootstrap state gets pinned.
func (v *VM) collect() bool {
	v.roots.Threads = v.roots.Threads[:0]
	v.Sched.Walk(func(t *thread.Thread) {
		if t.Status != thread.Terminated {
			v.roots.Threads = append(v.roots.Threads, t)
		}
	})
	v.roots.Permanent = v.permanent
	return v.Collector.Collect()
}

func (v *VM) recordCollection(before, after uint32, pause time.Duration) {
	v.GCLog.Append(gcstats.Event{
		At:           time.Now(),
		Before:       utils.MemorySize(before),
		After:        utils.MemorySize(after),
		Pause:        pause,
		HeapCapacity: utils.MemorySize(v.Arena.Size()),
	})
}

// bootCoreClazzes hand-builds the handful of java/lang/* clazzes the
// interpreter cannot function without, since no rt.jar ships with this
// repo (spec.md §2 assumed an external JDK classpath the distillation
// could not specify for a standalone build). Every one of these is
// inserted into the pool with no bytecode, State already Initialized, and
// its mirror backfilled in one pass by loader.EnsureMirrors once
// ctx.ClassClazz exists.
func (v *VM) bootCoreClazzes() error {
	object_ := v.newCoreClazz("java/lang/Object", nil)
	throwable := v.newCoreClazz("java/lang/Throwable", object_)
	exception := v.newCoreClazz("java/lang/Exception", throwable)
	runtimeExc := v.newCoreClazz("java/lang/RuntimeException", exception)
	errorClazz := v.newCoreClazz("java/lang/Error", throwable)

	classClazz := v.newCoreClazz("java/lang/Class", object_)
	stringClazz := v.newCoreClazz("java/lang/String", object_)
	v.newCoreClazz("java/lang/ClassLoader", object_)
	v.threadClazz = v.newCoreClazz("java/lang/Thread", object_)

	for _, name := range []vmerr.ClassName{
		vmerr.OutOfMemoryError, vmerr.StackOverflowError, vmerr.NoClassDefFoundError,
		vmerr.ClassFormatError, vmerr.IncompatibleClassChangeError, vmerr.IllegalAccessError,
		vmerr.VerifyError, vmerr.NoSuchMethodError, vmerr.NoSuchFieldError,
		vmerr.AbstractMethodError, vmerr.UnsatisfiedLinkError, vmerr.ClassCircularityError,
		vmerr.InstantiationError, vmerr.InternalError,
	} {
		v.newCoreClazz(string(name), errorClazz)
	}

	for _, name := range []vmerr.ClassName{
		vmerr.NullPointerException, vmerr.ArrayIndexOutOfBoundsException, vmerr.ArrayStoreException,
		vmerr.ClassCastException, vmerr.NegativeArraySizeException, vmerr.ArithmeticException,
		vmerr.IllegalMonitorStateException,
	} {
		v.newCoreClazz(string(name), runtimeExc)
	}

	v.newCoreClazz(string(vmerr.ClassNotFoundException), exception)
	v.newCoreClazz(string(vmerr.InterruptedException), exception)

	// java/lang/Class's own mirror needs java/lang/Class itself loaded
	// first -- the same bootstrapping knot a real JVM resolves by treating
	// Class specially; EnsureMirrors backfills every entry queued above in
	// one pass, Class included, now that ctx.ClassClazz is assignable.
	v.Ctx.ClassClazz = classClazz
	if err := loader.EnsureMirrors(v.Ctx); err != nil {
		return vmerr.NewFatal("pinning bootstrap class mirrors", err)
	}
	v.Ctx.StringClazz = stringClazz
	return nil
}

func (v *VM) newCoreClazz(name string, super *clazz.InstanceClazz) *clazz.InstanceClazz {
	ic := clazz.NewInstanceClazz()
	ic.Name = v.UTF.GetString(name, true)
	ic.AccessFlags = clazz.AccPublic | clazz.AccSuper
	ic.Super = super
	ic.Loader = v.Bootstrap
	ic.State = clazz.Initialized
	if super != nil {
		ic.InstanceFieldCount = super.InstanceFieldCount
	}
	v.Pool.Insert(&ic.Clazz)
	return ic
}

// Run loads mainClass from the user classpath, resolves its
// `public static void main(String[])` method, and drives it to completion
// through the scheduler's cooperative round-robin (spec.md §4.F). args
// becomes the String[] parameter; program exit is "every non-daemon
// thread has terminated" (spec.md §4.F Scheduler.Next).
func (v *VM) Run(mainClass string, args []string) error {
	mainUtf := v.UTF.GetString(mainClass, true)
	c, err := loader.LoadClass(v.Ctx, v.UserLoader, mainUtf, false)
	if err != nil {
		return fmt.Errorf("loading main class %s: %w", mainClass, err)
	}
	ic := c.AsInstanceClazz()
	if ic == nil {
		return fmt.Errorf("%s is not a class", mainClass)
	}

	mainMethod := loader.FindMethod(ic, v.UTF.GetString("main", true), v.UTF.GetString("([Ljava/lang/String;)V", true))
	if mainMethod == nil || !mainMethod.IsStatic() {
		return fmt.Errorf("%s has no public static void main(String[])", mainClass)
	}

	argsArray, err := v.buildArgsArray(args)
	if err != nil {
		return fmt.Errorf("building args array: %w", err)
	}

	th := &thread.Thread{ID: 1, Name: "main"}
	th.Stack = frame.NewStack(4096)
	if peer, err := v.Heap.NewInstance(v.threadClazz); err == nil {
		th.Peer = peer
	}
	v.Sched.Spawn(th)

	if err := loader.EnsureInitialized(v.Ctx, th, c); err != nil {
		return fmt.Errorf("initializing %s: %w", mainClass, err)
	}

	if _, err := th.Stack.Push(mainMethod, ic, []cell.Cell{cell.RefOf(argsArray)}); err != nil {
		return fmt.Errorf("pushing main frame: %w", err)
	}

	for {
		rt := v.Sched.Next()
		if rt == nil {
			break
		}
		v.current = rt
		err := v.Interp.RunQuantum(rt, v.cfg.Quantum)
		v.current = nil
		if err != nil {
			return fmt.Errorf("uncaught exception: %w", err)
		}
		if rt.Stack.Top() == nil {
			v.Sched.Terminate(rt)
		}
	}
	return nil
}

func (v *VM) buildArgsArray(args []string) (*object.ArrayObject, error) {
	stringArrClazz, err := loader.LoadClass(v.Ctx, v.UserLoader, v.UTF.GetString("[Ljava/lang/String;", true), false)
	if err != nil {
		return nil, err
	}
	ac := stringArrClazz.AsArrayClazz()
	arr, err := v.Heap.NewArray(ac, len(args))
	if err != nil {
		return nil, err
	}
	for i, a := range args {
		s, err := v.Heap.NewString(v.Ctx.StringClazz, utf16Of(a))
		if err != nil {
			return nil, err
		}
		arr.Elems[i] = cell.RefOf(s)
	}
	return arr, nil
}

func utf16Of(s string) []uint16 {
	chars := make([]uint16, 0, len(s))
	for _, r := range s {
		if r <= 0xFFFF {
			chars = append(chars, uint16(r))
			continue
		}
		r -= 0x10000
		chars = append(chars, uint16(0xD800+(r>>10)), uint16(0xDC00+(r&0x3FF)))
	}
	return chars
}
