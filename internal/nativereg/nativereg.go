// Package nativereg implements the VM's native-method registry: an
// external (class, method, signature) -> function map that the
// interpreter dispatches through for any method marked native (spec.md
// §6 "Native method registry").
//
// Grounded on other_examples' daimatz-gojvm vm.go executeNativeMethod,
// which builds a lookup key as "class.method:descriptor" and switches on
// it. A Go switch can't be populated from outside the package, so this
// repo generalizes that key into a struct and the switch into a map the
// loader/VM populate at boot, but keeps the same key shape and the same
// small bootstrap native set daimatz ships (Object.hashCode, Object.
// getClass, Class.* helpers) as a starting point.
package nativereg

import (
	"reflect"
	"time"

	"github.com/babevm/babevm-sub001/internal/cell"
	"github.com/babevm/babevm-sub001/internal/clazz"
	"github.com/babevm/babevm-sub001/internal/frame"
	"github.com/babevm/babevm-sub001/internal/object"
	"github.com/babevm/babevm-sub001/internal/thread"
)

// Key identifies one native method binding.
type Key struct {
	Class     string
	Method    string
	Signature string
}

// Registry maps a (class, method, signature) triple to its bound Go
// function. One Registry is owned by the VM and shared by every loaded
// clazz's UnresolvedNative methods (spec.md §4.C.g).
type Registry struct {
	entries map[Key]clazz.NativeFunc
}

func New() *Registry {
	return &Registry{entries: make(map[Key]clazz.NativeFunc)}
}

// Register binds fn to the given key, overwriting any previous binding.
func (r *Registry) Register(class, method, signature string, fn clazz.NativeFunc) {
	r.entries[Key{class, method, signature}] = fn
}

// Lookup returns the bound function for a key, or nil if none is
// registered -- the caller raises UnsatisfiedLinkError in that case
// (spec.md §6 "missing entries yield UnsatisfiedLinkError at invocation
// time").
func (r *Registry) Lookup(class, method, signature string) clazz.NativeFunc {
	return r.entries[Key{class, method, signature}]
}

// Count reports how many natives are currently bound, for diagnostics.
func (r *Registry) Count() int { return len(r.entries) }

// Env supplies the bootstrap natives with just enough VM access to do
// their work, without handing them the whole *vm.VM (which doesn't exist
// until after this registry is built during bootstrap).
type Env struct {
	Heap *object.Heap

	// CurrentThread returns the thread executing the native call.
	CurrentThread func() *thread.Thread

	// NewJavaString allocates a java.lang.String over the given UTF-16
	// content using whatever clazz the VM has already resolved for
	// java/lang/String; natives never need to know that clazz directly.
	NewJavaString func(chars []uint16) (cell.Ref, error)
}

// RegisterBootstrap binds the minimal native set every loaded VM needs
// before any application class runs (spec.md §6 examples): Object.<init>,
// Object.hashCode, Object.getClass, Object.clone, Class.getName,
// Throwable.fillInStackTrace, System.currentTimeMillis, Thread.
// currentThread.
func RegisterBootstrap(r *Registry, env *Env) {
	r.Register("java/lang/Object", "<init>", "()V", func(args []cell.Cell) (cell.Cell, error) {
		return cell.Zero, nil
	})

	r.Register("java/lang/Object", "hashCode", "()I", func(args []cell.Cell) (cell.Cell, error) {
		return cell.Int(identityHash(args[0].Ref())), nil
	})

	r.Register("java/lang/Object", "getClass", "()Ljava/lang/Class;", func(args []cell.Cell) (cell.Cell, error) {
		ic := object.ClazzOf(args[0].Ref())
		if ic == nil || ic.ClassMirror == nil {
			return cell.Null(), nil
		}
		return cell.RefOf(ic.ClassMirror), nil
	})

	r.Register("java/lang/Object", "clone", "()Ljava/lang/Object;", func(args []cell.Cell) (cell.Cell, error) {
		switch recv := args[0].Ref().(type) {
		case *object.ArrayObject:
			clone, err := env.Heap.CloneArray(recv)
			if err != nil {
				return cell.Cell{}, err
			}
			return cell.RefOf(clone), nil
		case *object.Instance:
			clone, err := env.Heap.CloneInstance(recv)
			if err != nil {
				return cell.Cell{}, err
			}
			return cell.RefOf(clone), nil
		default:
			return cell.Null(), nil
		}
	})

	r.Register("java/lang/Class", "getName", "()Ljava/lang/String;", func(args []cell.Cell) (cell.Cell, error) {
		co, ok := args[0].Ref().(*object.ClassObj)
		if !ok || co.Represents == nil || co.Represents.Name == nil {
			return cell.Null(), nil
		}
		chars := decodeAsciiName(co.Represents.Name.String())
		s, err := env.NewJavaString(chars)
		if err != nil {
			return cell.Cell{}, err
		}
		return cell.RefOf(s), nil
	})

	r.Register("java/lang/Throwable", "fillInStackTrace", "()Ljava/lang/Throwable;", func(args []cell.Cell) (cell.Cell, error) {
		th, ok := args[0].Ref().(*object.Throwable)
		if !ok {
			return args[0], nil
		}
		t := env.CurrentThread()
		if t != nil && t.Stack != nil {
			th.StackTrace = captureStackTrace(t.Stack)
		}
		return args[0], nil
	})

	r.Register("java/lang/System", "currentTimeMillis", "()J", func(args []cell.Cell) (cell.Cell, error) {
		return cell.Long(time.Now().UnixMilli()), nil
	})

	r.Register("java/lang/Thread", "currentThread", "()Ljava/lang/Thread;", func(args []cell.Cell) (cell.Cell, error) {
		t := env.CurrentThread()
		if t == nil || t.Peer == nil {
			return cell.Null(), nil
		}
		return cell.RefOf(t.Peer), nil
	})
}

// identityHash derives a stable per-object hash from the Go pointer
// backing ref, the same reflect.ValueOf(obj).Pointer() trick
// other_examples' daimatz-gojvm uses for Object.hashCode.
func identityHash(ref cell.Ref) int32 {
	if ref == nil {
		return 0
	}
	v := reflect.ValueOf(ref)
	if v.Kind() != reflect.Ptr {
		return 0
	}
	return int32(v.Pointer() & 0x7FFFFFFF)
}

// captureStackTrace walks a thread's live frames, innermost call first,
// into the StackFrame slice a Throwable carries (spec.md §4.F "locate/pop"
// model -- fillInStackTrace is the one place that walk is driven by a
// native rather than the exception-handling bridge itself).
func captureStackTrace(stack *frame.Stack) []object.StackFrame {
	var trace []object.StackFrame
	stack.Walk(func(f *frame.Frame) {
		if f.IsWedge() {
			return
		}
		sf := object.StackFrame{
			MethodName: f.Method.Name,
			PC:         f.PC,
		}
		if f.Clazz != nil {
			sf.ClassName = f.Clazz.Name
		}
		sf.Line = lineFor(f.Method, f.PC)
		trace = append(trace, sf)
	})
	return trace
}

// lineFor resolves a bytecode offset to a source line via the method's
// optional LineNumberTable, returning -1 when none is present (spec.md
// §4.J "optional LineNumberTable").
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

// decodeAsciiName renders a binary class name (already slash-separated
// ASCII in every case this registry handles) as UTF-16 code units for a
// java.lang.String's backing char array.
func decodeAsciiName(name string) []uint16 {
	chars := make([]uint16, len(name))
	for i := 0; i < len(name); i++ {
		chars[i] = uint16(name[i])
	}
	return chars
}
