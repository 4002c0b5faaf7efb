package loader

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/babevm/babevm-sub001/internal/cell"
	"github.com/babevm/babevm-sub001/internal/classpath"
	"github.com/babevm/babevm-sub001/internal/classpool"
	"github.com/babevm/babevm-sub001/internal/clazz"
	"github.com/babevm/babevm-sub001/internal/nativereg"
	"github.com/babevm/babevm-sub001/internal/object"
	"github.com/babevm/babevm-sub001/internal/strpool"
	"github.com/babevm/babevm-sub001/internal/thread"
	"github.com/babevm/babevm-sub001/internal/vmheap"
)

// byteWriter mirrors internal/classfile's buildMinimalClass helper: a thin
// big-endian writer over a bytes.Buffer, hardcoding constant pool indices by
// hand the way the teacher's own class-file test fixtures do.
type byteWriter struct {
	t   *testing.T
	buf bytes.Buffer
}

func newWriter(t *testing.T) *byteWriter { return &byteWriter{t: t} }

func (w *byteWriter) w(v any) {
	w.t.Helper()
	if err := binary.Write(&w.buf, binary.BigEndian, v); err != nil {
		w.t.Fatalf("write: %v", err)
	}
}

func (w *byteWriter) utf8(s string) {
	w.w(uint8(clazz.TagUtf8))
	w.w(uint16(len(s)))
	w.buf.WriteString(s)
}

func (w *byteWriter) classRef(nameIdx uint16) {
	w.w(uint8(clazz.TagClass))
	w.w(nameIdx)
}

func (w *byteWriter) integer(v int32) {
	w.w(uint8(clazz.TagInteger))
	w.w(v)
}

func (w *byteWriter) nameAndType(nameIdx, descIdx uint16) {
	w.w(uint8(clazz.TagNameAndType))
	w.w(nameIdx)
	w.w(descIdx)
}

func (w *byteWriter) fieldref(classIdx, natIdx uint16) {
	w.w(uint8(clazz.TagFieldref))
	w.w(classIdx)
	w.w(natIdx)
}

func (w *byteWriter) methodref(classIdx, natIdx uint16) {
	w.w(uint8(clazz.TagMethodref))
	w.w(classIdx)
	w.w(natIdx)
}

// buildObjectClass hand-assembles "public class java.lang.Object {}", the
// one instance clazz with no superclass (spec.md §3 invariants).
func buildObjectClass(t *testing.T) []byte {
	t.Helper()
	w := newWriter(t)

	w.w(uint32(0xCAFEBABE))
	w.w(uint16(0))
	w.w(uint16(52))

	w.w(uint16(3)) // constant_pool_count: 2 usable entries
	w.utf8("java/lang/Object")        // #1
	w.classRef(1)                     // #2 -> #1

	w.w(uint16(clazz.AccPublic | clazz.AccSuper))
	w.w(uint16(2)) // this_class
	w.w(uint16(0)) // super_class (none)
	w.w(uint16(0)) // interfaces_count
	w.w(uint16(0)) // fields_count
	w.w(uint16(0)) // methods_count
	w.w(uint16(0)) // attributes_count

	return w.buf.Bytes()
}

// buildFooClass hand-assembles:
//
//	public class Foo extends java.lang.Object {
//	    static final int COUNT = 42;
//	    static long BIG;
//	    int x;
//	    native int nat();
//	}
//
// plus a self-referencing Fieldref (Foo.COUNT:I) and Methodref (Foo.nat:()I)
// entries, used to exercise ResolveField/ResolveMethod.
func buildFooClass(t *testing.T) []byte {
	t.Helper()
	w := newWriter(t)

	w.w(uint32(0xCAFEBABE))
	w.w(uint16(0))
	w.w(uint16(52))

	w.w(uint16(18)) // constant_pool_count: 17 usable entries
	w.utf8("Foo")                 // #1
	w.classRef(1)                 // #2 this
	w.utf8("java/lang/Object")    // #3
	w.classRef(3)                 // #4 super
	w.utf8("COUNT")                // #5
	w.utf8("I")                    // #6
	w.integer(42)                  // #7
	w.utf8("ConstantValue")        // #8
	w.utf8("BIG")                  // #9
	w.utf8("J")                    // #10
	w.utf8("x")                    // #11
	w.utf8("nat")                  // #12
	w.utf8("()I")                  // #13
	w.nameAndType(5, 6)            // #14 COUNT:I
	w.fieldref(2, 14)              // #15 Foo.COUNT:I
	w.nameAndType(12, 13)          // #16 nat:()I
	w.methodref(2, 16)             // #17 Foo.nat:()I

	w.w(uint16(clazz.AccPublic | clazz.AccSuper))
	w.w(uint16(2)) // this_class
	w.w(uint16(4)) // super_class
	w.w(uint16(0)) // interfaces_count

	w.w(uint16(3)) // fields_count
	// COUNT: static final int, ConstantValue -> #7
	w.w(uint16(clazz.AccStatic | clazz.AccFinal))
	w.w(uint16(5)) // name
	w.w(uint16(6)) // descriptor
	w.w(uint16(1)) // attributes_count
	w.w(uint16(8)) // attribute_name_index -> "ConstantValue"
	w.w(uint32(2)) // attribute_length
	w.w(uint16(7)) // constantvalue_index -> #7

	// BIG: static long, no ConstantValue
	w.w(uint16(clazz.AccStatic))
	w.w(uint16(9))  // name
	w.w(uint16(10)) // descriptor
	w.w(uint16(0))  // attributes_count

	// x: instance int
	w.w(uint16(0))
	w.w(uint16(11)) // name
	w.w(uint16(6))  // descriptor "I"
	w.w(uint16(0))  // attributes_count

	w.w(uint16(1)) // methods_count
	// nat: native int nat()
	w.w(uint16(clazz.AccPublic | clazz.AccNative))
	w.w(uint16(12)) // name
	w.w(uint16(13)) // descriptor
	w.w(uint16(0))  // attributes_count

	w.w(uint16(0)) // class attributes_count

	return w.buf.Bytes()
}

// buildClinitClass hand-assembles a class extending java.lang.Object with a
// trivial <clinit> (a single `return`), to exercise EnsureInitialized.
func buildClinitClass(t *testing.T, name string) []byte {
	t.Helper()
	w := newWriter(t)

	w.w(uint32(0xCAFEBABE))
	w.w(uint16(0))
	w.w(uint16(52))

	w.w(uint16(8)) // constant_pool_count: 7 usable entries
	w.utf8(name)                // #1
	w.classRef(1)               // #2 this
	w.utf8("java/lang/Object")  // #3
	w.classRef(3)               // #4 super
	w.utf8("<clinit>")          // #5
	w.utf8("()V")               // #6
	w.utf8("Code")              // #7

	w.w(uint16(clazz.AccPublic | clazz.AccSuper))
	w.w(uint16(2)) // this_class
	w.w(uint16(4)) // super_class
	w.w(uint16(0)) // interfaces_count
	w.w(uint16(0)) // fields_count

	w.w(uint16(1)) // methods_count
	w.w(uint16(clazz.AccStatic))
	w.w(uint16(5)) // name <clinit>
	w.w(uint16(6)) // descriptor ()V
	w.w(uint16(1)) // attributes_count

	w.w(uint16(7))  // attribute_name_index -> "Code"
	w.w(uint32(13)) // attribute_length: 2+2+4+1+2+2
	w.w(uint16(0))  // max_stack
	w.w(uint16(0))  // max_locals
	w.w(uint32(1))  // code_length
	w.w(uint8(0xb1)) // return
	w.w(uint16(0))  // exception_table_length
	w.w(uint16(0))  // code attributes_count

	w.w(uint16(0)) // class attributes_count

	return w.buf.Bytes()
}

// testEnv bundles everything a LoadClass/linkClass call needs, rebuilt fresh
// per test so classes loaded in one test never leak into another's pool.
type testEnv struct {
	ctx  *Context
	boot *Loader
	dir  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	arena, err := vmheap.New(1 << 20)
	if err != nil {
		t.Fatalf("vmheap.New: %v", err)
	}
	heap := object.NewHeap(arena)

	classClazz := clazz.NewInstanceClazz()
	utf := strpool.NewUTFPool()
	classClazz.Name = utf.GetString("java/lang/Class", true)

	cp, err := classpath.NewBootstrap([]string{dir})
	if err != nil {
		t.Fatalf("NewBootstrap: %v", err)
	}
	boot := NewBootstrapLoader(cp)
	classClazz.Loader = boot

	var permanent []cell.Ref
	ctx := &Context{
		Pool:       classpool.New(),
		UTF:        utf,
		Interns:    strpool.NewInternPool(),
		Heap:       heap,
		Natives:    nativereg.New(),
		ClassClazz: classClazz,
		Permanent:  &permanent,
		Bootstrap:  boot,
	}
	return &testEnv{ctx: ctx, boot: boot, dir: dir}
}

func (e *testEnv) writeClass(t *testing.T, binaryName string, data []byte) {
	t.Helper()
	path := filepath.Join(e.dir, filepath.FromSlash(binaryName)+".class")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestLoadClassLinksSuperclassChain(t *testing.T) {
	env := newTestEnv(t)
	env.writeClass(t, "java/lang/Object", buildObjectClass(t))
	env.writeClass(t, "Foo", buildFooClass(t))

	c, err := LoadClass(env.ctx, env.boot, env.ctx.UTF.GetString("Foo", true), false)
	if err != nil {
		t.Fatalf("LoadClass(Foo): %v", err)
	}
	ic := c.AsInstanceClazz()
	if ic == nil {
		t.Fatalf("Foo did not load as an InstanceClazz")
	}
	if ic.Super == nil || ic.Super.Name.String() != "java/lang/Object" {
		t.Fatalf("Foo.Super = %v, want java/lang/Object", ic.Super)
	}
	if ic.State != clazz.Loaded {
		t.Fatalf("Foo.State = %v, want LOADED", ic.State)
	}
	if !ic.Super.IsObjectRoot() {
		t.Fatalf("java/lang/Object should report IsObjectRoot")
	}
}

func TestLoadClassPartitionsFieldsAndResolvesConstantValue(t *testing.T) {
	env := newTestEnv(t)
	env.writeClass(t, "java/lang/Object", buildObjectClass(t))
	env.writeClass(t, "Foo", buildFooClass(t))

	c, err := LoadClass(env.ctx, env.boot, env.ctx.UTF.GetString("Foo", true), false)
	if err != nil {
		t.Fatalf("LoadClass(Foo): %v", err)
	}
	ic := c.AsInstanceClazz()

	var count, big, x *clazz.Field
	for _, f := range ic.Fields {
		switch f.Name.String() {
		case "COUNT":
			count = f
		case "BIG":
			big = f
		case "x":
			x = f
		}
	}
	if count == nil || big == nil || x == nil {
		t.Fatalf("expected fields COUNT, BIG, x; got %d fields", len(ic.Fields))
	}

	if !count.IsStatic {
		t.Fatalf("COUNT should be static")
	}
	if count.StaticValue.Int() != 42 {
		t.Fatalf("COUNT.StaticValue = %d, want 42", count.StaticValue.Int())
	}

	if !big.IsStatic || !big.IsLong() {
		t.Fatalf("BIG should be a static long field")
	}
	idx := int(big.StaticValue.Int())
	if idx < 0 || idx >= len(ic.StaticLongs) {
		t.Fatalf("BIG.StaticValue = %d is not a valid StaticLongs index (len %d)", idx, len(ic.StaticLongs))
	}

	if x.IsStatic {
		t.Fatalf("x should be an instance field")
	}
	if x.Offset != 0 {
		t.Fatalf("x.Offset = %d, want 0 (first instance field contributed by Foo)", x.Offset)
	}
	if ic.InstanceFieldCount != 1 {
		t.Fatalf("InstanceFieldCount = %d, want 1", ic.InstanceFieldCount)
	}
}

func TestLoadClassResolvesNativeMethod(t *testing.T) {
	env := newTestEnv(t)
	env.writeClass(t, "java/lang/Object", buildObjectClass(t))
	env.writeClass(t, "Foo", buildFooClass(t))
	env.ctx.Natives.Register("Foo", "nat", "()I", func(args []cell.Cell) (cell.Cell, error) {
		return cell.Int(7), nil
	})

	c, err := LoadClass(env.ctx, env.boot, env.ctx.UTF.GetString("Foo", true), false)
	if err != nil {
		t.Fatalf("LoadClass(Foo): %v", err)
	}
	ic := c.AsInstanceClazz()

	var nat *clazz.Method
	for _, m := range ic.Methods {
		if m.Name.String() == "nat" {
			nat = m
		}
	}
	if nat == nil {
		t.Fatalf("expected method nat")
	}
	if nat.UnresolvedNative {
		t.Fatalf("nat should have resolved against the registered native")
	}
	if nat.Native == nil {
		t.Fatalf("nat.Native should be bound")
	}
}

func TestLoadClassLeavesUnregisteredNativeUnresolved(t *testing.T) {
	env := newTestEnv(t)
	env.writeClass(t, "java/lang/Object", buildObjectClass(t))
	env.writeClass(t, "Foo", buildFooClass(t))

	c, err := LoadClass(env.ctx, env.boot, env.ctx.UTF.GetString("Foo", true), false)
	if err != nil {
		t.Fatalf("LoadClass(Foo): %v", err)
	}
	ic := c.AsInstanceClazz()

	var nat *clazz.Method
	for _, m := range ic.Methods {
		if m.Name.String() == "nat" {
			nat = m
		}
	}
	if nat == nil {
		t.Fatalf("expected method nat")
	}
	if !nat.UnresolvedNative {
		t.Fatalf("nat should be UnresolvedNative without a registered binding (deferred, not failed, at load time)")
	}
}

func TestLoadClassArraySynthesis(t *testing.T) {
	env := newTestEnv(t)
	env.writeClass(t, "java/lang/Object", buildObjectClass(t))
	env.writeClass(t, "Foo", buildFooClass(t))

	c, err := LoadClass(env.ctx, env.boot, env.ctx.UTF.GetString("[I", true), false)
	if err != nil {
		t.Fatalf("LoadClass([I): %v", err)
	}
	ac := c.AsArrayClazz()
	if ac == nil {
		t.Fatalf("[I did not load as an ArrayClazz")
	}
	if ac.ComponentType != clazz.TypeInt {
		t.Fatalf("ComponentType = %c, want I", ac.ComponentType)
	}
	if c.State != clazz.Initialized {
		t.Fatalf("array clazz State = %v, want INITIALIZED", c.State)
	}

	c2, err := LoadClass(env.ctx, env.boot, env.ctx.UTF.GetString("[LFoo;", true), false)
	if err != nil {
		t.Fatalf("LoadClass([LFoo;): %v", err)
	}
	ac2 := c2.AsArrayClazz()
	if ac2 == nil || ac2.ComponentType != clazz.TypeRef {
		t.Fatalf("[LFoo; should be a reference array")
	}
	if ac2.ComponentClazz == nil || ac2.ComponentClazz.Name.String() != "Foo" {
		t.Fatalf("[LFoo; component should resolve to Foo")
	}
}

func TestLoadClassPrimitiveSynthesis(t *testing.T) {
	env := newTestEnv(t)

	c, err := LoadClass(env.ctx, env.boot, env.ctx.UTF.GetString("int", true), false)
	if err != nil {
		t.Fatalf("LoadClass(int): %v", err)
	}
	pc := c.AsPrimitiveClazz()
	if pc == nil {
		t.Fatalf("int did not load as a PrimitiveClazz")
	}
	if c.State != clazz.Initialized {
		t.Fatalf("primitive clazz State = %v, want INITIALIZED", c.State)
	}
	if !c.Loader.IsBootstrap() {
		t.Fatalf("primitive clazz should be bootstrap-owned")
	}
}

func TestLoadClassMissingClassReturnsClassNotFoundError(t *testing.T) {
	env := newTestEnv(t)

	_, err := LoadClass(env.ctx, env.boot, env.ctx.UTF.GetString("NoSuchClass", true), true)
	cnf, ok := err.(*ClassNotFoundError)
	if !ok {
		t.Fatalf("err = %T, want *ClassNotFoundError", err)
	}
	if !cnf.Reflective {
		t.Fatalf("expected Reflective=true to be preserved from the caller")
	}

	_, err = LoadClass(env.ctx, env.boot, env.ctx.UTF.GetString("NoSuchClass", true), false)
	cnf, ok = err.(*ClassNotFoundError)
	if !ok {
		t.Fatalf("err = %T, want *ClassNotFoundError", err)
	}
	if cnf.Reflective {
		t.Fatalf("expected Reflective=false to be preserved from the caller")
	}
}

func TestIsAssignableFrom(t *testing.T) {
	env := newTestEnv(t)
	env.writeClass(t, "java/lang/Object", buildObjectClass(t))
	env.writeClass(t, "Foo", buildFooClass(t))

	obj, err := LoadClass(env.ctx, env.boot, env.ctx.UTF.GetString("java/lang/Object", true), false)
	if err != nil {
		t.Fatalf("LoadClass(Object): %v", err)
	}
	foo, err := LoadClass(env.ctx, env.boot, env.ctx.UTF.GetString("Foo", true), false)
	if err != nil {
		t.Fatalf("LoadClass(Foo): %v", err)
	}

	if !IsAssignableFrom(foo, foo) {
		t.Fatalf("Foo should be assignable to itself (identity)")
	}
	if !IsAssignableFrom(foo, obj) {
		t.Fatalf("Foo should be assignable to Object")
	}
	if IsAssignableFrom(obj, foo) {
		t.Fatalf("Object should not be assignable to Foo")
	}

	fooArr, err := LoadClass(env.ctx, env.boot, env.ctx.UTF.GetString("[LFoo;", true), false)
	if err != nil {
		t.Fatalf("LoadClass([LFoo;): %v", err)
	}
	objArr, err := LoadClass(env.ctx, env.boot, env.ctx.UTF.GetString("[Ljava/lang/Object;", true), false)
	if err != nil {
		t.Fatalf("LoadClass([Ljava/lang/Object;): %v", err)
	}
	if !IsAssignableFrom(fooArr, objArr) {
		t.Fatalf("Foo[] should be assignable to Object[] (component covariance)")
	}
}

func TestResolveClazzCachesResolvedPointer(t *testing.T) {
	env := newTestEnv(t)
	env.writeClass(t, "java/lang/Object", buildObjectClass(t))
	env.writeClass(t, "Foo", buildFooClass(t))

	c, err := LoadClass(env.ctx, env.boot, env.ctx.UTF.GetString("Foo", true), false)
	if err != nil {
		t.Fatalf("LoadClass(Foo): %v", err)
	}
	ic := c.AsInstanceClazz()

	// Constant #4 is Foo's super Class entry, resolved by linkClass via
	// cf.SuperClass directly rather than through ResolveClazz, so its
	// ResolvedPtr is still a *clazz.ClassRef (classfile's own symbolic
	// rewrite) rather than a live *clazz.Clazz at this point.
	target, err := ResolveClazz(env.ctx, ic, 4)
	if err != nil {
		t.Fatalf("ResolveClazz: %v", err)
	}
	if target.Name.String() != "java/lang/Object" {
		t.Fatalf("resolved class = %q, want java/lang/Object", target.Name.String())
	}

	e := ic.ConstantPool.At(4)
	if _, ok := e.ResolvedPtr.(*clazz.Clazz); !ok {
		t.Fatalf("constant #4 should be rewritten to a live *clazz.Clazz after resolution")
	}

	target2, err := ResolveClazz(env.ctx, ic, 4)
	if err != nil {
		t.Fatalf("ResolveClazz (cached): %v", err)
	}
	if target2 != target {
		t.Fatalf("cached ResolveClazz should return the identical pointer")
	}
}

func TestResolveFieldAndMethodSelfReference(t *testing.T) {
	env := newTestEnv(t)
	env.writeClass(t, "java/lang/Object", buildObjectClass(t))
	env.writeClass(t, "Foo", buildFooClass(t))
	env.ctx.Natives.Register("Foo", "nat", "()I", func(args []cell.Cell) (cell.Cell, error) {
		return cell.Int(7), nil
	})

	c, err := LoadClass(env.ctx, env.boot, env.ctx.UTF.GetString("Foo", true), false)
	if err != nil {
		t.Fatalf("LoadClass(Foo): %v", err)
	}
	ic := c.AsInstanceClazz()

	f, err := ResolveField(env.ctx, ic, 15, true)
	if err != nil {
		t.Fatalf("ResolveField: %v", err)
	}
	if f.Name.String() != "COUNT" {
		t.Fatalf("resolved field = %q, want COUNT", f.Name.String())
	}

	if _, err := ResolveField(env.ctx, ic, 15, false); err == nil {
		t.Fatalf("expected IncompatibleClassChangeError resolving a static field as instance")
	}

	m, err := ResolveMethod(env.ctx, ic, 17)
	if err != nil {
		t.Fatalf("ResolveMethod: %v", err)
	}
	if m.Name.String() != "nat" {
		t.Fatalf("resolved method = %q, want nat", m.Name.String())
	}
}

// stubInvoker records every <clinit> it is asked to run and returns a
// caller-supplied error (nil for a clean run), letting initInstance's state
// machine be exercised without a real interpreter.
type stubInvoker struct {
	calls []string
	fail  map[string]bool
}

func (s *stubInvoker) Invoke(th *thread.Thread, m *clazz.Method, ic *clazz.InstanceClazz, args []cell.Cell) ([]cell.Cell, error) {
	s.calls = append(s.calls, ic.Name.String())
	if s.fail[ic.Name.String()] {
		return nil, &VerifyError{Msg: "boom"}
	}
	return nil, nil
}

func TestEnsureInitializedRunsClinitOnce(t *testing.T) {
	env := newTestEnv(t)
	env.writeClass(t, "java/lang/Object", buildObjectClass(t))
	env.writeClass(t, "Clin", buildClinitClass(t, "Clin"))

	inv := &stubInvoker{fail: map[string]bool{}}
	env.ctx.Run = inv

	c, err := LoadClass(env.ctx, env.boot, env.ctx.UTF.GetString("Clin", true), false)
	if err != nil {
		t.Fatalf("LoadClass(Clin): %v", err)
	}
	th := &thread.Thread{}

	if err := EnsureInitialized(env.ctx, th, c); err != nil {
		t.Fatalf("EnsureInitialized: %v", err)
	}
	ic := c.AsInstanceClazz()
	if ic.State != clazz.Initialized {
		t.Fatalf("State = %v, want INITIALIZED", ic.State)
	}
	if len(inv.calls) != 1 || inv.calls[0] != "Clin" {
		t.Fatalf("expected exactly one <clinit> call for Clin, got %v", inv.calls)
	}

	// Second call must be a no-op: already INITIALIZED.
	if err := EnsureInitialized(env.ctx, th, c); err != nil {
		t.Fatalf("second EnsureInitialized: %v", err)
	}
	if len(inv.calls) != 1 {
		t.Fatalf("expected no additional <clinit> call, got %v", inv.calls)
	}
}

func TestEnsureInitializedPropagatesClinitFailureAsError(t *testing.T) {
	env := newTestEnv(t)
	env.writeClass(t, "java/lang/Object", buildObjectClass(t))
	env.writeClass(t, "Bad", buildClinitClass(t, "Bad"))

	inv := &stubInvoker{fail: map[string]bool{"Bad": true}}
	env.ctx.Run = inv

	c, err := LoadClass(env.ctx, env.boot, env.ctx.UTF.GetString("Bad", true), false)
	if err != nil {
		t.Fatalf("LoadClass(Bad): %v", err)
	}
	th := &thread.Thread{}

	if err := EnsureInitialized(env.ctx, th, c); err == nil {
		t.Fatalf("expected <clinit> failure to propagate")
	}
	ic := c.AsInstanceClazz()
	if ic.State != clazz.Error {
		t.Fatalf("State = %v, want ERROR", ic.State)
	}

	err = EnsureInitialized(env.ctx, th, c)
	if _, ok := err.(*NoClassDefFoundError); !ok {
		t.Fatalf("subsequent use of an ERROR clazz should raise NoClassDefFoundError, got %T", err)
	}
}

func TestEnsureInitializedReentranceDoesNotDeadlock(t *testing.T) {
	env := newTestEnv(t)
	env.writeClass(t, "java/lang/Object", buildObjectClass(t))
	env.writeClass(t, "Loopy", buildClinitClass(t, "Loopy"))

	c, err := LoadClass(env.ctx, env.boot, env.ctx.UTF.GetString("Loopy", true), false)
	if err != nil {
		t.Fatalf("LoadClass(Loopy): %v", err)
	}
	ic := c.AsInstanceClazz()

	// Simulate a thread already driving this class's own <clinit> (spec.md
	// §4.C "Initialization", JVMS 2.17.5 re-entrance): a thread observing
	// INITIALIZING mid-drive must see the class as usable, not recurse or
	// block.
	ic.State = clazz.Initializing
	th := &thread.Thread{}
	if err := EnsureInitialized(env.ctx, th, c); err != nil {
		t.Fatalf("re-entrant EnsureInitialized should return nil, got %v", err)
	}
	if ic.State != clazz.Initializing {
		t.Fatalf("re-entrant call should not itself change State, got %v", ic.State)
	}
}

func TestLoadClassForcesBootstrapForJavaAndBabeNames(t *testing.T) {
	env := newTestEnv(t)
	env.writeClass(t, "java/lang/Object", buildObjectClass(t))

	// A nil non-bootstrap requester would fail type assertion to *Loader if
	// java/lang/Object weren't forced onto the bootstrap loader regardless
	// of requester (spec.md §7 "java/, babe/ ... resolved there regardless
	// of the initiating loader").
	user := NewUserLoader(env.boot, nil, nil)
	c, err := LoadClass(env.ctx, user, env.ctx.UTF.GetString("java/lang/Object", true), false)
	if err != nil {
		t.Fatalf("LoadClass(java/lang/Object) via user loader: %v", err)
	}
	if !c.Loader.IsBootstrap() {
		t.Fatalf("java/lang/Object should always load under the bootstrap loader")
	}
}
