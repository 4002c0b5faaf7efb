package interp

import (
	"testing"

	"github.com/babevm/babevm-sub001/internal/cell"
	"github.com/babevm/babevm-sub001/internal/classpool"
	"github.com/babevm/babevm-sub001/internal/clazz"
	"github.com/babevm/babevm-sub001/internal/frame"
	"github.com/babevm/babevm-sub001/internal/loader"
	"github.com/babevm/babevm-sub001/internal/object"
	"github.com/babevm/babevm-sub001/internal/strpool"
	"github.com/babevm/babevm-sub001/internal/thread"
	"github.com/babevm/babevm-sub001/internal/vmerr"
	"github.com/babevm/babevm-sub001/internal/vmheap"
)

// harness bundles everything a test needs to build clazzes/methods by hand
// and drive them through an Interp, skipping internal/classfile parsing and
// internal/loader's class-path lookup entirely (every clazz referenced is
// pre-inserted into the pool already LOADED/INITIALIZED).
type harness struct {
	t       *testing.T
	ctx     *loader.Context
	in      *Interp
	sched   *thread.Scheduler
	utf     *strpool.UTFPool
	bootstr *loader.Loader
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	arena, err := vmheap.New(1 << 20)
	if err != nil {
		t.Fatalf("vmheap.New: %v", err)
	}
	heap := object.NewHeap(arena)
	utf := strpool.NewUTFPool()
	interns := strpool.NewInternPool()
	pool := classpool.New()
	bootstr := loader.NewBootstrapLoader(nil)
	var perm []cell.Ref

	ctx := &loader.Context{
		Pool:      pool,
		UTF:       utf,
		Interns:   interns,
		Heap:      heap,
		Permanent: &perm,
		Bootstrap: bootstr,
	}
	sched := thread.NewScheduler(1000)
	in := New(ctx, sched, Config{})
	ctx.Run = in

	h := &harness{t: t, ctx: ctx, in: in, sched: sched, utf: utf, bootstr: bootstr}
	for _, name := range []string{
		string(vmerr.NullPointerException),
		string(vmerr.ArithmeticException),
		string(vmerr.IncompatibleClassChangeError),
		string(vmerr.IllegalMonitorStateException),
		string(vmerr.ArrayIndexOutOfBoundsException),
		"java/lang/RuntimeException",
		"java/lang/Exception",
		"java/lang/Throwable",
		"java/lang/Object",
	} {
		h.registerBareClazz(name, h.superOf(name))
	}
	return h
}

// superOf gives the exception taxonomy's handful of test classes a usable
// single-chain hierarchy (real java.lang.* inheritance, just flattened to
// what the S4 scenario needs to walk via IsAssignableFrom).
func (h *harness) superOf(name string) string {
	switch name {
	case "java/lang/Object":
		return ""
	case "java/lang/Throwable":
		return "java/lang/Object"
	case "java/lang/Exception":
		return "java/lang/Throwable"
	case "java/lang/RuntimeException":
		return "java/lang/Exception"
	default:
		return "java/lang/RuntimeException"
	}
}

// registerBareClazz inserts an already-INITIALIZED, fieldless InstanceClazz
// under the bootstrap loader so loader.LoadClass/ResolveClazz's pool lookup
// satisfies it without ever touching a real class file.
func (h *harness) registerBareClazz(name, superName string) *clazz.InstanceClazz {
	ic := clazz.NewInstanceClazz()
	ic.Name = h.utf.GetString(name, true)
	ic.Loader = h.bootstr
	ic.State = clazz.Initialized
	ic.AccessFlags = clazz.AccPublic
	ic.ConstantPool = clazz.NewConstantPool(1)
	if superName != "" {
		ic.Super = h.findClazz(superName)
	}
	h.ctx.Pool.Insert(&ic.Clazz)
	return ic
}

func (h *harness) findClazz(name string) *clazz.InstanceClazz {
	c := h.ctx.Pool.Lookup(h.bootstr, h.utf.GetString(name, true))
	if c == nil {
		h.t.Fatalf("test clazz %q not registered", name)
	}
	return c.AsInstanceClazz()
}

func (h *harness) newThread() *thread.Thread {
	return &thread.Thread{ID: 1, Name: "main", Stack: frame.NewStack(4096), Status: thread.Runnable}
}

// methodRefEntry sets cp slot idx to an already-resolved Methodref pointing
// directly at m, bypassing internal/loader's MemberRef lookup path (which
// needs a real class-file-derived NameAndType/owner-name pair this harness
// never constructs).
func methodRefEntry(cp *clazz.ConstantPool, idx int, m *clazz.Method) {
	e := cp.Entries[idx]
	e.SetTag(clazz.TagMethodref)
	e.ResolvedPtr = m
}

func interfaceMethodRefEntry(cp *clazz.ConstantPool, idx int, m *clazz.Method) {
	e := cp.Entries[idx]
	e.SetTag(clazz.TagInterfaceMethodref)
	e.ResolvedPtr = m
}

// --- S1: arithmetic + conditional branch -----------------------------

func TestArithmeticAndBranch(t *testing.T) {
	h := newHarness(t)
	owner := h.registerBareClazz("test/Math", "java/lang/Object")

	// static int max(int a, int b) {
	//   if (a > b) return a;
	//   return b;
	// }
	code := []byte{
		byte(Iload0), byte(Iload1),
		byte(IfIcmpgt), 0x00, 0x05, // -> PC 7 (iload_0; ireturn)
		byte(Iload1), byte(Ireturn),
		byte(Iload0), byte(Ireturn),
	}
	m := &clazz.Method{
		Owner: owner, AccessFlags: clazz.AccStatic | clazz.AccPublic,
		Name: h.utf.GetString("max", true), Signature: h.utf.GetString("(II)I", true),
		ArgCells: 2, ReturnCells: 1, Code: code, MaxStack: 2, MaxLocals: 2,
	}
	owner.Methods = append(owner.Methods, m)

	th := h.newThread()
	result, err := h.in.Invoke(th, m, owner, []cell.Cell{cell.Int(3), cell.Int(7)})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if len(result) != 1 || result[0].Int() != 7 {
		t.Fatalf("max(3,7) = %v, want 7", result)
	}

	result, err = h.in.Invoke(th, m, owner, []cell.Cell{cell.Int(9), cell.Int(2)})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if len(result) != 1 || result[0].Int() != 9 {
		t.Fatalf("max(9,2) = %v, want 9", result)
	}
}

func TestIdivByZeroRaisesArithmeticException(t *testing.T) {
	h := newHarness(t)
	owner := h.registerBareClazz("test/Div", "java/lang/Object")

	// static int divz(int a, int b) { return a / b; }
	code := []byte{byte(Iload0), byte(Iload1), byte(Idiv), byte(Ireturn)}
	m := &clazz.Method{
		Owner: owner, AccessFlags: clazz.AccStatic | clazz.AccPublic,
		Name: h.utf.GetString("divz", true), Signature: h.utf.GetString("(II)I", true),
		ArgCells: 2, ReturnCells: 1, Code: code, MaxStack: 2, MaxLocals: 2,
	}
	owner.Methods = append(owner.Methods, m)

	th := h.newThread()
	_, err := h.in.Invoke(th, m, owner, []cell.Cell{cell.Int(5), cell.Int(0)})
	te, ok := err.(*ThrownError)
	if !ok {
		t.Fatalf("err = %v (%T), want *ThrownError", err, err)
	}
	ic := object.ClazzOf(te.Throwable)
	if ic == nil || ic.Name.String() != string(vmerr.ArithmeticException) {
		t.Fatalf("thrown class = %v, want ArithmeticException", ic)
	}
}

// --- S2: polymorphic dispatch (invokevirtual re-resolves at runtime) --

func TestInvokevirtualDynamicDispatch(t *testing.T) {
	h := newHarness(t)
	base := h.registerBareClazz("test/Base", "java/lang/Object")
	derived := h.registerBareClazz("test/Derived", "test/Base")

	valueSig := h.utf.GetString("()I", true)
	valueName := h.utf.GetString("value", true)

	baseValue := &clazz.Method{
		Owner: base, AccessFlags: clazz.AccPublic, Name: valueName, Signature: valueSig,
		ArgCells: 1, ReturnCells: 1,
		Code: []byte{byte(Iconst1), byte(Ireturn)}, MaxStack: 1, MaxLocals: 1,
	}
	base.Methods = append(base.Methods, baseValue)

	derivedValue := &clazz.Method{
		Owner: derived, AccessFlags: clazz.AccPublic, Name: valueName, Signature: valueSig,
		ArgCells: 1, ReturnCells: 1,
		Code: []byte{byte(Iconst2), byte(Ireturn)}, MaxStack: 1, MaxLocals: 1,
	}
	derived.Methods = append(derived.Methods, derivedValue)

	// int callValue() { return this.value(); } -- defined on Base, statically
	// resolved to Base.value in the constant pool, but a Derived receiver
	// must dispatch to Derived.value.
	cp := clazz.NewConstantPool(2)
	methodRefEntry(cp, 1, baseValue)
	base.ConstantPool = cp
	caller := &clazz.Method{
		Owner: base, AccessFlags: clazz.AccPublic, Name: h.utf.GetString("callValue", true), Signature: valueSig,
		ArgCells: 1, ReturnCells: 1,
		Code:     []byte{byte(Aload0), byte(Invokevirtual), 0x00, 0x01, byte(Ireturn)},
		MaxStack: 1, MaxLocals: 1,
	}
	base.Methods = append(base.Methods, caller)

	th := h.newThread()
	derivedInst, err := h.ctx.Heap.NewInstance(derived)
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}

	result, err := h.in.Invoke(th, caller, base, []cell.Cell{cell.RefOf(derivedInst)})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if len(result) != 1 || result[0].Int() != 2 {
		t.Fatalf("callValue() on a Derived receiver = %v, want 2 (Derived.value, not Base.value)", result)
	}

	baseInst, err := h.ctx.Heap.NewInstance(base)
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}
	result, err = h.in.Invoke(th, caller, base, []cell.Cell{cell.RefOf(baseInst)})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if len(result) != 1 || result[0].Int() != 1 {
		t.Fatalf("callValue() on a Base receiver = %v, want 1", result)
	}
}

// --- S3: interface dispatch + IncompatibleClassChangeError ------------

func TestInvokeinterfaceMissingImplementationRaisesICCE(t *testing.T) {
	h := newHarness(t)
	iface := h.registerBareClazz("test/Greeter", "java/lang/Object")
	iface.AccessFlags |= clazz.AccInterface | clazz.AccAbstract
	goSig := h.utf.GetString("()V", true)
	goMethod := &clazz.Method{
		Owner: iface, AccessFlags: clazz.AccPublic | clazz.AccAbstract,
		Name: h.utf.GetString("greet", true), Signature: goSig, ArgCells: 1,
	}
	iface.Methods = append(iface.Methods, goMethod)

	// NotAGreeter implements nothing of Greeter's method table (a
	// deliberately broken implements relationship -- real javac/verifier
	// would reject this; here it stands in for an incompatible class
	// change between compile and run time, JVMS 5.4.3.4).
	broken := h.registerBareClazz("test/NotAGreeter", "java/lang/Object")

	owner := h.registerBareClazz("test/Caller", "java/lang/Object")
	cp := clazz.NewConstantPool(2)
	interfaceMethodRefEntry(cp, 1, goMethod)
	owner.ConstantPool = cp
	caller := &clazz.Method{
		Owner: owner, AccessFlags: clazz.AccPublic | clazz.AccStatic,
		Name: h.utf.GetString("callGreet", true), Signature: h.utf.GetString("(Ltest/Greeter;)V", true),
		ArgCells: 1,
		Code:     []byte{byte(Aload0), byte(Invokeinterface), 0x00, 0x01, 0x01, 0x00, byte(Return)},
		MaxStack: 1, MaxLocals: 1,
	}
	owner.Methods = append(owner.Methods, caller)

	th := h.newThread()
	brokenInst, err := h.ctx.Heap.NewInstance(broken)
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}
	_, err = h.in.Invoke(th, caller, owner, []cell.Cell{cell.RefOf(brokenInst)})
	te, ok := err.(*ThrownError)
	if !ok {
		t.Fatalf("err = %v (%T), want *ThrownError", err, err)
	}
	ic := object.ClazzOf(te.Throwable)
	if ic == nil || ic.Name.String() != string(vmerr.IncompatibleClassChangeError) {
		t.Fatalf("thrown class = %v, want IncompatibleClassChangeError", ic)
	}
}

// --- S4: exception catch / finally ------------------------------------

func TestExceptionCaughtByHandler(t *testing.T) {
	h := newHarness(t)
	owner := h.registerBareClazz("test/Catcher", "java/lang/Object")

	// static int run(int a, int b) {
	//   try {
	//     return a / b;       // pc 0..3, may throw ArithmeticException
	//   } catch (RuntimeException e) {
	//     return -1;           // pc 4
	//   }
	// }
	code := []byte{
		byte(Iload0), byte(Iload1), byte(Idiv), byte(Ireturn), // pc 0-3
		byte(Pop), byte(IconstM1), byte(Ireturn), // pc 4: handler, discard thrown ref, return -1
	}
	m := &clazz.Method{
		Owner: owner, AccessFlags: clazz.AccStatic | clazz.AccPublic,
		Name: h.utf.GetString("run", true), Signature: h.utf.GetString("(II)I", true),
		ArgCells: 2, ReturnCells: 1, Code: code, MaxStack: 2, MaxLocals: 2,
		ExceptionTable: []*clazz.ExceptionTableEntry{
			{StartPC: 0, EndPC: 4, HandlerPC: 4, CatchTypeName: h.utf.GetString("java/lang/RuntimeException", true)},
		},
	}
	owner.Methods = append(owner.Methods, m)

	th := h.newThread()
	result, err := h.in.Invoke(th, m, owner, []cell.Cell{cell.Int(5), cell.Int(0)})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if len(result) != 1 || result[0].Int() != -1 {
		t.Fatalf("run(5,0) = %v, want -1 (caught)", result)
	}

	result, err = h.in.Invoke(th, m, owner, []cell.Cell{cell.Int(9), cell.Int(3)})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if len(result) != 1 || result[0].Int() != 3 {
		t.Fatalf("run(9,3) = %v, want 3 (no exception)", result)
	}
}

// --- synchronized-method monitor ownership (spec.md §4.H Locate phase) ---

func TestUnwindReplacesThrownWithIllegalMonitorStateWhenOwnershipLost(t *testing.T) {
	h := newHarness(t)
	owner := h.registerBareClazz("test/Sync", "java/lang/Object")

	m := &clazz.Method{
		Owner: owner, AccessFlags: clazz.AccStatic | clazz.AccPublic | clazz.AccSynchronized,
		Name: h.utf.GetString("run", true), Signature: h.utf.GetString("()V", true),
		Code: []byte{byte(Return)}, MaxStack: 1, MaxLocals: 0,
		ExceptionTable: []*clazz.ExceptionTableEntry{
			{StartPC: 0, EndPC: 1, HandlerPC: 0, CatchTypeName: h.utf.GetString("java/lang/RuntimeException", true)},
		},
	}
	owner.Methods = append(owner.Methods, m)

	th := h.newThread()
	fr, err := th.Stack.Push(m, owner, nil)
	if err != nil {
		t.Fatalf("stack.Push: %v", err)
	}

	lockObj, err := h.ctx.Heap.NewInstance(owner)
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}
	// Simulate a monitor released out from under this frame (e.g. by a
	// wait() interrupted before it could re-acquire): SyncObject is set as
	// if entry acquired the lock, but th is not its current owner.
	fr.SyncObject = lockObj

	original, err := h.in.newThrowable(th, vmerr.ArithmeticException, "")
	if err != nil {
		t.Fatalf("newThrowable: %v", err)
	}

	if !h.in.unwind(th, nil, original) {
		t.Fatalf("unwind() = false, want true (handler present)")
	}

	caught := fr.Pop().Ref()
	caughtClazz := object.ClazzOf(caught)
	if caughtClazz == nil || caughtClazz.Name.String() != string(vmerr.IllegalMonitorStateException) {
		t.Fatalf("caught exception class = %v, want %s", caughtClazz, vmerr.IllegalMonitorStateException)
	}
}

func TestUnwindKeepsOriginalThrownWhenMonitorStillOwned(t *testing.T) {
	h := newHarness(t)
	owner := h.registerBareClazz("test/Sync2", "java/lang/Object")

	m := &clazz.Method{
		Owner: owner, AccessFlags: clazz.AccStatic | clazz.AccPublic | clazz.AccSynchronized,
		Name: h.utf.GetString("run", true), Signature: h.utf.GetString("()V", true),
		Code: []byte{byte(Return)}, MaxStack: 1, MaxLocals: 0,
		ExceptionTable: []*clazz.ExceptionTableEntry{
			{StartPC: 0, EndPC: 1, HandlerPC: 0, CatchTypeName: h.utf.GetString("java/lang/RuntimeException", true)},
		},
	}
	owner.Methods = append(owner.Methods, m)

	th := h.newThread()
	fr, err := th.Stack.Push(m, owner, nil)
	if err != nil {
		t.Fatalf("stack.Push: %v", err)
	}

	lockObj, err := h.ctx.Heap.NewInstance(owner)
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}
	h.in.monitorFor(lockObj).Acquire(th)
	fr.SyncObject = lockObj

	original, err := h.in.newThrowable(th, vmerr.ArithmeticException, "")
	if err != nil {
		t.Fatalf("newThrowable: %v", err)
	}

	if !h.in.unwind(th, nil, original) {
		t.Fatalf("unwind() = false, want true (handler present)")
	}

	caught := fr.Pop().Ref()
	if caught != original {
		t.Fatalf("caught exception = %v, want the original throwable (monitor still owned)", caught)
	}
}

func TestNullFieldAccessRaisesNPE(t *testing.T) {
	h := newHarness(t)
	owner := h.registerBareClazz("test/Nully", "java/lang/Object")
	fld := &clazz.Field{
		Owner: owner, AccessFlags: clazz.AccPublic, Name: h.utf.GetString("x", true),
		Signature: h.utf.GetString("I", true), Type: clazz.TypeInt, Offset: 0,
	}
	owner.Fields = append(owner.Fields, fld)
	owner.InstanceFieldCount = 1

	cp := clazz.NewConstantPool(2)
	e := cp.Entries[1]
	e.SetTag(clazz.TagFieldref)
	e.ResolvedPtr = fld
	owner.ConstantPool = cp

	m := &clazz.Method{
		Owner: owner, AccessFlags: clazz.AccStatic | clazz.AccPublic,
		Name: h.utf.GetString("readX", true), Signature: h.utf.GetString("(Ltest/Nully;)I", true),
		ArgCells: 1, ReturnCells: 1,
		Code:     []byte{byte(Aload0), byte(Getfield), 0x00, 0x01, byte(Ireturn)},
		MaxStack: 1, MaxLocals: 1,
	}
	owner.Methods = append(owner.Methods, m)

	th := h.newThread()
	_, err := h.in.Invoke(th, m, owner, []cell.Cell{cell.Null()})
	te, ok := err.(*ThrownError)
	if !ok {
		t.Fatalf("err = %v (%T), want *ThrownError", err, err)
	}
	ic := object.ClazzOf(te.Throwable)
	if ic == nil || ic.Name.String() != string(vmerr.NullPointerException) {
		t.Fatalf("thrown class = %v, want NullPointerException", ic)
	}
}
