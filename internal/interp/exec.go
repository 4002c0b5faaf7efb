package interp

import (
	"fmt"
	"math"

	"github.com/babevm/babevm-sub001/internal/cell"
	"github.com/babevm/babevm-sub001/internal/clazz"
	"github.com/babevm/babevm-sub001/internal/frame"
	"github.com/babevm/babevm-sub001/internal/loader"
	"github.com/babevm/babevm-sub001/internal/object"
	"github.com/babevm/babevm-sub001/internal/thread"
	"github.com/babevm/babevm-sub001/internal/vmerr"
)

// execOne decodes and executes the single opcode at f.PC, advancing f.PC
// past it (branches set f.PC directly instead). A non-nil return value
// means f's method returned to its caller (spec.md §4.E); dispatch's
// recover wraps any vmerr.Raise triggered along the way.
func (in *Interp) execOne(th *thread.Thread, f *frame.Frame, floor *frame.Frame) []cell.Cell {
	code := f.Method.Code
	op := Op(code[f.PC])

	switch op {
	case Nop:
		f.PC++

	case AconstNull:
		f.Push(cell.Null())
		f.PC++
	case IconstM1, Iconst0, Iconst1, Iconst2, Iconst3, Iconst4, Iconst5:
		f.Push(cell.Int(int32(op) - int32(Iconst0)))
		f.PC++
	case Lconst0, Lconst1:
		f.Push(cell.Long(int64(op) - int64(Lconst0)))
		f.PC++
	case Fconst0, Fconst1, Fconst2:
		f.Push(cell.Float(float32(int32(op) - int32(Fconst0))))
		f.PC++
	case Dconst0, Dconst1:
		f.Push(cell.Double(float64(int32(op) - int32(Dconst0))))
		f.PC++
	case Bipush:
		f.Push(cell.Int(int32(i8At(code, f.PC+1))))
		f.PC += 2
	case Sipush:
		f.Push(cell.Int(int32(i16At(code, f.PC+1))))
		f.PC += 3
	case Ldc:
		in.execLdc(th, f, false)
	case LdcW:
		in.execLdc(th, f, true)
	case Ldc2W:
		in.execLdc2w(f)

	case Iload, Fload, Aload:
		f.Push(f.Local(u8At(code, f.PC+1)))
		f.PC += 2
	case Lload, Dload:
		f.Push(f.Local(u8At(code, f.PC+1)))
		f.PC += 2
	case Iload0, Fload0, Aload0:
		f.Push(f.Local(0))
		f.PC++
	case Iload1, Fload1, Aload1:
		f.Push(f.Local(1))
		f.PC++
	case Iload2, Fload2, Aload2:
		f.Push(f.Local(2))
		f.PC++
	case Iload3, Fload3, Aload3:
		f.Push(f.Local(3))
		f.PC++
	case Lload0, Dload0:
		f.Push(f.Local(0))
		f.PC++
	case Lload1, Dload1:
		f.Push(f.Local(1))
		f.PC++
	case Lload2, Dload2:
		f.Push(f.Local(2))
		f.PC++
	case Lload3, Dload3:
		f.Push(f.Local(3))
		f.PC++

	case Istore, Fstore, Astore, Lstore, Dstore:
		f.SetLocal(u8At(code, f.PC+1), f.Pop())
		f.PC += 2
	case Istore0, Fstore0, Astore0, Lstore0, Dstore0:
		f.SetLocal(0, f.Pop())
		f.PC++
	case Istore1, Fstore1, Astore1, Lstore1, Dstore1:
		f.SetLocal(1, f.Pop())
		f.PC++
	case Istore2, Fstore2, Astore2, Lstore2, Dstore2:
		f.SetLocal(2, f.Pop())
		f.PC++
	case Istore3, Fstore3, Astore3, Lstore3, Dstore3:
		f.SetLocal(3, f.Pop())
		f.PC++

	case Iaload, Laload, Faload, Daload, Aaload, Baload, Caload, Saload:
		in.execArrayLoad(th, f)
	case Iastore, Lastore, Fastore, Dastore, Bastore, Castore, Sastore:
		in.execArrayStore(th, f)
	case Aastore:
		in.execAastore(th, f)

	case Pop:
		f.Pop()
		f.PC++
	case Pop2:
		// Treats every value as one physical cell (spec.md §3's one-cell-
		// per-value convention, see internal/cell's Cell doc): pop2 always
		// discards two cells rather than distinguishing a single wide value
		// from two narrow ones, since Kind carries no category-2 tag. A
		// documented simplification (DESIGN.md).
		f.Pop()
		f.Pop()
		f.PC++
	case Dup:
		f.Push(f.Peek(0))
		f.PC++
	case DupX1:
		v1, v2 := f.Pop(), f.Pop()
		f.Push(v1)
		f.Push(v2)
		f.Push(v1)
		f.PC++
	case DupX2:
		v1, v2, v3 := f.Pop(), f.Pop(), f.Pop()
		f.Push(v1)
		f.Push(v3)
		f.Push(v2)
		f.Push(v1)
		f.PC++
	case Dup2:
		v1, v2 := f.Pop(), f.Pop()
		f.Push(v2)
		f.Push(v1)
		f.Push(v2)
		f.Push(v1)
		f.PC++
	case Dup2X1:
		v1, v2, v3 := f.Pop(), f.Pop(), f.Pop()
		f.Push(v2)
		f.Push(v1)
		f.Push(v3)
		f.Push(v2)
		f.Push(v1)
		f.PC++
	case Dup2X2:
		v1, v2, v3, v4 := f.Pop(), f.Pop(), f.Pop(), f.Pop()
		f.Push(v2)
		f.Push(v1)
		f.Push(v4)
		f.Push(v3)
		f.Push(v2)
		f.Push(v1)
		f.PC++
	case Swap:
		v1, v2 := f.Pop(), f.Pop()
		f.Push(v1)
		f.Push(v2)
		f.PC++

	case Iadd:
		b, a := f.Pop().Int(), f.Pop().Int()
		f.Push(cell.Int(a + b))
		f.PC++
	case Ladd:
		b, a := f.Pop().Long(), f.Pop().Long()
		f.Push(cell.Long(a + b))
		f.PC++
	case Fadd:
		b, a := f.Pop().Float(), f.Pop().Float()
		f.Push(cell.Float(a + b))
		f.PC++
	case Dadd:
		b, a := f.Pop().Double(), f.Pop().Double()
		f.Push(cell.Double(a + b))
		f.PC++
	case Isub:
		b, a := f.Pop().Int(), f.Pop().Int()
		f.Push(cell.Int(a - b))
		f.PC++
	case Lsub:
		b, a := f.Pop().Long(), f.Pop().Long()
		f.Push(cell.Long(a - b))
		f.PC++
	case Fsub:
		b, a := f.Pop().Float(), f.Pop().Float()
		f.Push(cell.Float(a - b))
		f.PC++
	case Dsub:
		b, a := f.Pop().Double(), f.Pop().Double()
		f.Push(cell.Double(a - b))
		f.PC++
	case Imul:
		b, a := f.Pop().Int(), f.Pop().Int()
		f.Push(cell.Int(a * b))
		f.PC++
	case Lmul:
		b, a := f.Pop().Long(), f.Pop().Long()
		f.Push(cell.Long(a * b))
		f.PC++
	case Fmul:
		b, a := f.Pop().Float(), f.Pop().Float()
		f.Push(cell.Float(a * b))
		f.PC++
	case Dmul:
		b, a := f.Pop().Double(), f.Pop().Double()
		f.Push(cell.Double(a * b))
		f.PC++
	case Idiv:
		b, a := f.Pop().Int(), f.Pop().Int()
		f.PC++
		if b == 0 {
			in.throw(th, vmerr.ArithmeticException, "/ by zero")
			return nil
		}
		f.Push(cell.Int(a / b))
	case Ldiv:
		b, a := f.Pop().Long(), f.Pop().Long()
		f.PC++
		if b == 0 {
			in.throw(th, vmerr.ArithmeticException, "/ by zero")
			return nil
		}
		f.Push(cell.Long(a / b))
	case Fdiv:
		b, a := f.Pop().Float(), f.Pop().Float()
		f.Push(cell.Float(a / b))
		f.PC++
	case Ddiv:
		b, a := f.Pop().Double(), f.Pop().Double()
		f.Push(cell.Double(a / b))
		f.PC++
	case Irem:
		b, a := f.Pop().Int(), f.Pop().Int()
		f.PC++
		if b == 0 {
			in.throw(th, vmerr.ArithmeticException, "/ by zero")
			return nil
		}
		f.Push(cell.Int(a % b))
	case Lrem:
		b, a := f.Pop().Long(), f.Pop().Long()
		f.PC++
		if b == 0 {
			in.throw(th, vmerr.ArithmeticException, "/ by zero")
			return nil
		}
		f.Push(cell.Long(a % b))
	case Frem:
		b, a := f.Pop().Float(), f.Pop().Float()
		f.Push(cell.Float(float32(math.Mod(float64(a), float64(b)))))
		f.PC++
	case Drem:
		b, a := f.Pop().Double(), f.Pop().Double()
		f.Push(cell.Double(math.Mod(a, b)))
		f.PC++
	case Ineg:
		f.Push(cell.Int(-f.Pop().Int()))
		f.PC++
	case Lneg:
		f.Push(cell.Long(-f.Pop().Long()))
		f.PC++
	case Fneg:
		f.Push(cell.Float(-f.Pop().Float()))
		f.PC++
	case Dneg:
		f.Push(cell.Double(-f.Pop().Double()))
		f.PC++

	case Ishl:
		s, v := f.Pop().Int(), f.Pop().Int()
		f.Push(cell.Int(v << (uint32(s) & 0x1F)))
		f.PC++
	case Lshl:
		s, v := f.Pop().Int(), f.Pop().Long()
		f.Push(cell.Long(v << (uint32(s) & 0x3F)))
		f.PC++
	case Ishr:
		s, v := f.Pop().Int(), f.Pop().Int()
		f.Push(cell.Int(v >> (uint32(s) & 0x1F)))
		f.PC++
	case Lshr:
		s, v := f.Pop().Int(), f.Pop().Long()
		f.Push(cell.Long(v >> (uint32(s) & 0x3F)))
		f.PC++
	case Iushr:
		s, v := f.Pop().Int(), f.Pop().Int()
		f.Push(cell.Int(int32(uint32(v) >> (uint32(s) & 0x1F))))
		f.PC++
	case Lushr:
		s, v := f.Pop().Int(), f.Pop().Long()
		f.Push(cell.Long(int64(uint64(v) >> (uint32(s) & 0x3F))))
		f.PC++
	case Iand:
		b, a := f.Pop().Int(), f.Pop().Int()
		f.Push(cell.Int(a & b))
		f.PC++
	case Land:
		// Performed as a single 64-bit op rather than two 32-bit halves
		// (spec.md §9 open question, resolved this way; see DESIGN.md).
		b, a := f.Pop().Long(), f.Pop().Long()
		f.Push(cell.Long(a & b))
		f.PC++
	case Ior:
		b, a := f.Pop().Int(), f.Pop().Int()
		f.Push(cell.Int(a | b))
		f.PC++
	case Lor:
		b, a := f.Pop().Long(), f.Pop().Long()
		f.Push(cell.Long(a | b))
		f.PC++
	case Ixor:
		b, a := f.Pop().Int(), f.Pop().Int()
		f.Push(cell.Int(a ^ b))
		f.PC++
	case Lxor:
		b, a := f.Pop().Long(), f.Pop().Long()
		f.Push(cell.Long(a ^ b))
		f.PC++

	case Iinc:
		in.execIinc(f)

	case I2l:
		f.Push(cell.Long(int64(f.Pop().Int())))
		f.PC++
	case I2f:
		f.Push(cell.Float(float32(f.Pop().Int())))
		f.PC++
	case I2d:
		f.Push(cell.Double(float64(f.Pop().Int())))
		f.PC++
	case L2i:
		f.Push(cell.Int(int32(f.Pop().Long())))
		f.PC++
	case L2f:
		f.Push(cell.Float(float32(f.Pop().Long())))
		f.PC++
	case L2d:
		f.Push(cell.Double(float64(f.Pop().Long())))
		f.PC++
	case F2i:
		f.Push(cell.Int(truncToInt32(float64(f.Pop().Float()))))
		f.PC++
	case F2l:
		f.Push(cell.Long(truncToInt64(float64(f.Pop().Float()))))
		f.PC++
	case F2d:
		f.Push(cell.Double(float64(f.Pop().Float())))
		f.PC++
	case D2i:
		f.Push(cell.Int(truncToInt32(f.Pop().Double())))
		f.PC++
	case D2l:
		f.Push(cell.Long(truncToInt64(f.Pop().Double())))
		f.PC++
	case D2f:
		f.Push(cell.Float(float32(f.Pop().Double())))
		f.PC++
	case I2b:
		f.Push(cell.Int(int32(int8(f.Pop().Int()))))
		f.PC++
	case I2c:
		f.Push(cell.Int(int32(uint16(f.Pop().Int()))))
		f.PC++
	case I2s:
		f.Push(cell.Int(int32(int16(f.Pop().Int()))))
		f.PC++

	case Lcmp:
		b, a := f.Pop().Long(), f.Pop().Long()
		f.Push(cell.Int(cmp64(a, b)))
		f.PC++
	case Fcmpl:
		b, a := f.Pop().Float(), f.Pop().Float()
		f.Push(cell.Int(fcmp(float64(a), float64(b), -1)))
		f.PC++
	case Fcmpg:
		b, a := f.Pop().Float(), f.Pop().Float()
		f.Push(cell.Int(fcmp(float64(a), float64(b), 1)))
		f.PC++
	case Dcmpl:
		b, a := f.Pop().Double(), f.Pop().Double()
		f.Push(cell.Int(fcmp(a, b, -1)))
		f.PC++
	case Dcmpg:
		b, a := f.Pop().Double(), f.Pop().Double()
		f.Push(cell.Int(fcmp(a, b, 1)))
		f.PC++

	case Ifeq:
		in.branchIf(f, f.Pop().Int() == 0)
	case Ifne:
		in.branchIf(f, f.Pop().Int() != 0)
	case Iflt:
		in.branchIf(f, f.Pop().Int() < 0)
	case Ifge:
		in.branchIf(f, f.Pop().Int() >= 0)
	case Ifgt:
		in.branchIf(f, f.Pop().Int() > 0)
	case Ifle:
		in.branchIf(f, f.Pop().Int() <= 0)
	case IfIcmpeq:
		b, a := f.Pop().Int(), f.Pop().Int()
		in.branchIf(f, a == b)
	case IfIcmpne:
		b, a := f.Pop().Int(), f.Pop().Int()
		in.branchIf(f, a != b)
	case IfIcmplt:
		b, a := f.Pop().Int(), f.Pop().Int()
		in.branchIf(f, a < b)
	case IfIcmpge:
		b, a := f.Pop().Int(), f.Pop().Int()
		in.branchIf(f, a >= b)
	case IfIcmpgt:
		b, a := f.Pop().Int(), f.Pop().Int()
		in.branchIf(f, a > b)
	case IfIcmple:
		b, a := f.Pop().Int(), f.Pop().Int()
		in.branchIf(f, a <= b)
	case IfAcmpeq:
		b, a := f.Pop(), f.Pop()
		in.branchIf(f, sameRef(a, b))
	case IfAcmpne:
		b, a := f.Pop(), f.Pop()
		in.branchIf(f, !sameRef(a, b))
	case Ifnull:
		in.branchIf(f, f.Pop().IsNull())
	case Ifnonnull:
		in.branchIf(f, !f.Pop().IsNull())

	case Goto:
		f.PC += i16At(code, f.PC+1)
	case GotoW:
		f.PC += int(i32At(code, f.PC+1))
	case Jsr:
		in.execJsr(f)
	case JsrW:
		in.execJsrW(f)
	case Ret:
		in.execRet(f)
	case Tableswitch:
		in.execTableswitch(f)
	case Lookupswitch:
		in.execLookupswitch(f)

	case Ireturn, Freturn, Areturn:
		v := f.Pop()
		return in.doReturn(th, floor, []cell.Cell{v})
	case Lreturn, Dreturn:
		v := f.Pop()
		return in.doReturn(th, floor, []cell.Cell{v})
	case Return:
		return in.doReturn(th, floor, nil)

	case Getstatic:
		in.execGetstatic(th, f)
	case Putstatic:
		in.execPutstatic(th, f)
	case Getfield:
		in.execGetfield(th, f)
	case Putfield:
		in.execPutfield(th, f)

	case Invokevirtual:
		in.execInvokevirtual(th, f)
	case Invokespecial:
		in.execInvokespecial(th, f)
	case Invokestatic:
		in.execInvokestatic(th, f)
	case Invokeinterface:
		in.execInvokeinterface(th, f)

	case New:
		in.execNew(th, f)
	case Newarray:
		in.execNewarray(th, f)
	case Anewarray:
		in.execAnewarray(th, f)
	case Multianewarray:
		in.execMultianewarray(th, f)
	case Arraylength:
		in.execArraylength(th, f)
	case Athrow:
		in.execAthrow(th, f)
	case Checkcast:
		in.execCheckcast(th, f)
	case Instanceof:
		in.execInstanceof(th, f)
	case Monitorenter:
		in.execMonitorenter(th, f)
	case Monitorexit:
		in.execMonitorexit(th, f)

	case Wide:
		in.execWide(f)

	default:
		panic(vmerr.NewFatal(fmt.Sprintf("unimplemented opcode 0x%02X", byte(op)), nil))
	}
	return nil
}

// branchIf advances f.PC by the instruction's 2-byte signed offset when
// taken is true, or past the 3-byte instruction otherwise.
func (in *Interp) branchIf(f *frame.Frame, taken bool) {
	if taken {
		f.PC += i16At(f.Method.Code, f.PC+1)
	} else {
		f.PC += 3
	}
}

func sameRef(a, b cell.Cell) bool {
	if a.IsNull() || b.IsNull() {
		return a.IsNull() && b.IsNull()
	}
	return a.Ref() == b.Ref()
}

func cmp64(a, b int64) int32 {
	switch {
	case a > b:
		return 1
	case a < b:
		return -1
	default:
		return 0
	}
}

// fcmp implements fcmpl/fcmpg and dcmpl/dcmpg: nanResult is the result when
// either operand is NaN (-1 for the 'l' variant, 1 for the 'g' variant,
// JVMS 6.5 fcmp<op>).
func fcmp(a, b float64, nanResult int32) int32 {
	if math.IsNaN(a) || math.IsNaN(b) {
		return nanResult
	}
	switch {
	case a > b:
		return 1
	case a < b:
		return -1
	default:
		return 0
	}
}

func truncToInt32(v float64) int32 {
	if math.IsNaN(v) {
		return 0
	}
	if v >= math.MaxInt32 {
		return math.MaxInt32
	}
	if v <= math.MinInt32 {
		return math.MinInt32
	}
	return int32(v)
}

func truncToInt64(v float64) int64 {
	if math.IsNaN(v) {
		return 0
	}
	if v >= math.MaxInt64 {
		return math.MaxInt64
	}
	if v <= math.MinInt64 {
		return math.MinInt64
	}
	return int64(v)
}

// execLdc/execLdc2w push a resolved constant-pool entry (spec.md §4.B).
// ldc/ldc_w cover int/float/String/Class; ldc2_w covers long/double.
func (in *Interp) execLdc(th *thread.Thread, f *frame.Frame, wide bool) {
	var idx int
	if wide {
		idx = u16At(f.Method.Code, f.PC+1)
		f.PC += 3
	} else {
		idx = u8At(f.Method.Code, f.PC+1)
		f.PC += 2
	}
	e := f.Clazz.ConstantPool.At(idx)
	switch e.Tag() {
	case clazz.TagInteger:
		f.Push(cell.Int(e.Int))
	case clazz.TagFloat:
		f.Push(cell.Float(e.Float))
	case clazz.TagString:
		if ref, ok := e.ResolvedPtr.(cell.Ref); ok {
			f.Push(cell.RefOf(ref))
			return
		}
		// A TagString entry that hasn't been interned (e.g. ctx.StringClazz
		// was still nil at link time) gets interned lazily here.
		if in.ctx.StringClazz == nil {
			f.Push(cell.Null())
			return
		}
		if chars, ok := e.ResolvedPtr.([]uint16); ok {
			if existing, ok := in.ctx.Interns.Lookup(chars).(cell.Ref); ok {
				e.SetResolved(existing)
				f.Push(cell.RefOf(existing))
				return
			}
			s, err := in.ctx.Heap.NewString(in.ctx.StringClazz, chars)
			if err != nil {
				panic(vmerr.NewFatal("ldc intern", err))
			}
			in.ctx.Interns.Intern(s)
			e.SetResolved(s)
			f.Push(cell.RefOf(s))
			return
		}
		f.Push(cell.Null())
	case clazz.TagClass:
		c, err := loader.ResolveClazz(in.ctx, f.Clazz, idx)
		if err != nil {
			in.raiseLinkage(th, err)
			return
		}
		f.Push(cell.RefOf(c.ClassMirror))
	default:
		f.Push(cell.Zero)
	}
}

func (in *Interp) execLdc2w(f *frame.Frame) {
	idx := u16At(f.Method.Code, f.PC+1)
	f.PC += 3
	e := f.Clazz.ConstantPool.At(idx)
	switch e.Tag() {
	case clazz.TagLong:
		f.Push(cell.Long(e.Long))
	case clazz.TagDouble:
		f.Push(cell.Double(e.Double))
	default:
		f.Push(cell.Zero)
	}
}

func (in *Interp) execIinc(f *frame.Frame) {
	index := u8At(f.Method.Code, f.PC+1)
	c := i8At(f.Method.Code, f.PC+2)
	f.PC += 3
	v := f.Local(index)
	f.SetLocal(index, cell.Int(v.Int()+int32(c)))
}

func (in *Interp) execJsr(f *frame.Frame) {
	offset := i16At(f.Method.Code, f.PC+1)
	ret := f.PC + 3
	f.PC += offset
	f.Push(cell.ReturnAddr(ret))
}

func (in *Interp) execJsrW(f *frame.Frame) {
	offset := int(i32At(f.Method.Code, f.PC+1))
	ret := f.PC + 5
	f.PC += offset
	f.Push(cell.ReturnAddr(ret))
}

func (in *Interp) execRet(f *frame.Frame) {
	index := u8At(f.Method.Code, f.PC+1)
	f.PC = f.Local(index).ReturnPC()
}

func (in *Interp) execTableswitch(f *frame.Frame) {
	start := f.PC
	code := f.Method.Code
	pad := (4 - (start+1)%4) % 4
	p := start + 1 + pad
	def := int(i32At(code, p))
	low := int(i32At(code, p+4))
	high := int(i32At(code, p+8))
	key := int(f.Pop().Int())
	if key < low || key > high {
		f.PC = start + def
		return
	}
	offIdx := p + 12 + (key-low)*4
	f.PC = start + int(i32At(code, offIdx))
}

func (in *Interp) execLookupswitch(f *frame.Frame) {
	start := f.PC
	code := f.Method.Code
	pad := (4 - (start+1)%4) % 4
	p := start + 1 + pad
	def := int(i32At(code, p))
	npairs := int(i32At(code, p+4))
	key := f.Pop().Int()
	target := def
	base := p + 8
	for i := 0; i < npairs; i++ {
		match := i32At(code, base+i*8)
		if match == key {
			target = int(i32At(code, base+i*8+4))
			break
		}
	}
	f.PC = start + target
}

// execWide handles the wide-prefixed form of a load/store/ret/iinc
// instruction, whose local-variable index is 2 bytes instead of 1 (JVMS
// 6.5 wide).
func (in *Interp) execWide(f *frame.Frame) {
	code := f.Method.Code
	sub := Op(code[f.PC+1])
	index := u16At(code, f.PC+2)
	switch sub {
	case Iload, Lload, Fload, Dload, Aload:
		f.Push(f.Local(index))
		f.PC += 4
	case Istore, Lstore, Fstore, Dstore, Astore:
		f.SetLocal(index, f.Pop())
		f.PC += 4
	case Ret:
		f.PC = f.Local(index).ReturnPC()
	case Iinc:
		c := i16At(code, f.PC+4)
		v := f.Local(index)
		f.SetLocal(index, cell.Int(v.Int()+int32(c)))
		f.PC += 6
	default:
		f.PC += 4
	}
}

func (in *Interp) execArrayLoad(th *thread.Thread, f *frame.Frame) {
	idx := f.Pop().Int()
	aref := f.Pop()
	f.PC++
	if aref.IsNull() {
		in.throw(th, vmerr.NullPointerException, "")
		return
	}
	a, ok := aref.Ref().(*object.ArrayObject)
	if !ok {
		panic(vmerr.NewFatal("array load on non-array reference", nil))
	}
	if idx < 0 || int(idx) >= a.Length {
		in.throwf(th, vmerr.ArrayIndexOutOfBoundsException, "%d", idx)
		return
	}
	f.Push(loadElem(a, int(idx)))
}

func (in *Interp) execArrayStore(th *thread.Thread, f *frame.Frame) {
	v := f.Pop()
	idx := f.Pop().Int()
	aref := f.Pop()
	f.PC++
	if aref.IsNull() {
		in.throw(th, vmerr.NullPointerException, "")
		return
	}
	a, ok := aref.Ref().(*object.ArrayObject)
	if !ok {
		panic(vmerr.NewFatal("array store on non-array reference", nil))
	}
	if idx < 0 || int(idx) >= a.Length {
		in.throwf(th, vmerr.ArrayIndexOutOfBoundsException, "%d", idx)
		return
	}
	storeElem(a, int(idx), v)
}

// execAastore additionally enforces ArrayStoreException (JVMS 6.5 aastore),
// the one array-store opcode where the component type is a reference type
// and the stored value's runtime type must be checked.
func (in *Interp) execAastore(th *thread.Thread, f *frame.Frame) {
	v := f.Pop()
	idx := f.Pop().Int()
	aref := f.Pop()
	f.PC++
	if aref.IsNull() {
		in.throw(th, vmerr.NullPointerException, "")
		return
	}
	a, ok := aref.Ref().(*object.ArrayObject)
	if !ok {
		panic(vmerr.NewFatal("aastore on non-array reference", nil))
	}
	if idx < 0 || int(idx) >= a.Length {
		in.throwf(th, vmerr.ArrayIndexOutOfBoundsException, "%d", idx)
		return
	}
	if !v.IsNull() && a.Clazz.ComponentClazz != nil {
		rc := runtimeClazzOf(v.Ref())
		if rc == nil || !loader.IsAssignableFrom(rc, a.Clazz.ComponentClazz) {
			in.throwf(th, vmerr.ArrayStoreException, "%s", nameOf(rc))
			return
		}
	}
	storeElem(a, int(idx), v)
}

func readStaticField(fld *clazz.Field) cell.Cell {
	if fld.IsLong() {
		return cell.Long(fld.Owner.StaticLongs[fld.StaticValue.Int()])
	}
	return fld.StaticValue
}

func writeStaticField(fld *clazz.Field, v cell.Cell) {
	if fld.IsLong() {
		fld.Owner.StaticLongs[fld.StaticValue.Int()] = v.Long()
		return
	}
	fld.StaticValue = v
}

func (in *Interp) execGetstatic(th *thread.Thread, f *frame.Frame) {
	idx := u16At(f.Method.Code, f.PC+1)
	fld, err := loader.ResolveField(in.ctx, f.Clazz, idx, true)
	if err != nil {
		in.raiseLinkage(th, err)
		return
	}
	if err := loader.EnsureInitialized(in.ctx, th, &fld.Owner.Clazz); err != nil {
		in.raiseLinkage(th, err)
		return
	}
	f.PC += 3
	f.Push(readStaticField(fld))
}

func (in *Interp) execPutstatic(th *thread.Thread, f *frame.Frame) {
	idx := u16At(f.Method.Code, f.PC+1)
	fld, err := loader.ResolveField(in.ctx, f.Clazz, idx, true)
	if err != nil {
		in.raiseLinkage(th, err)
		return
	}
	if err := loader.EnsureInitialized(in.ctx, th, &fld.Owner.Clazz); err != nil {
		in.raiseLinkage(th, err)
		return
	}
	v := f.Pop()
	f.PC += 3
	writeStaticField(fld, v)
}

func (in *Interp) execGetfield(th *thread.Thread, f *frame.Frame) {
	idx := u16At(f.Method.Code, f.PC+1)
	fld, err := loader.ResolveField(in.ctx, f.Clazz, idx, false)
	if err != nil {
		in.raiseLinkage(th, err)
		return
	}
	ref := f.Pop()
	f.PC += 3
	if ref.IsNull() {
		in.throw(th, vmerr.NullPointerException, "")
		return
	}
	inst := instancePartOf(ref.Ref())
	if inst == nil {
		panic(vmerr.NewFatal("getfield on non-instance reference", nil))
	}
	f.Push(inst.Fields[fld.Offset])
}

func (in *Interp) execPutfield(th *thread.Thread, f *frame.Frame) {
	idx := u16At(f.Method.Code, f.PC+1)
	fld, err := loader.ResolveField(in.ctx, f.Clazz, idx, false)
	if err != nil {
		in.raiseLinkage(th, err)
		return
	}
	v := f.Pop()
	ref := f.Pop()
	f.PC += 3
	if ref.IsNull() {
		in.throw(th, vmerr.NullPointerException, "")
		return
	}
	inst := instancePartOf(ref.Ref())
	if inst == nil {
		panic(vmerr.NewFatal("putfield on non-instance reference", nil))
	}
	inst.Fields[fld.Offset] = v
}

func (in *Interp) execNew(th *thread.Thread, f *frame.Frame) {
	idx := u16At(f.Method.Code, f.PC+1)
	c, err := loader.ResolveClazz(in.ctx, f.Clazz, idx)
	if err != nil {
		in.raiseLinkage(th, err)
		return
	}
	ic := c.AsInstanceClazz()
	f.PC += 3
	if ic == nil || ic.IsInterface() || ic.IsAbstract() {
		in.throwf(th, vmerr.InstantiationError, "%s", nameOf(c))
		return
	}
	if err := loader.EnsureInitialized(in.ctx, th, c); err != nil {
		in.raiseLinkage(th, err)
		return
	}
	inst, err := in.ctx.Heap.NewInstance(ic)
	if err != nil {
		in.throw(th, vmerr.OutOfMemoryError, "")
		return
	}
	f.Push(cell.RefOf(inst))
}

func (in *Interp) execNewarray(th *thread.Thread, f *frame.Frame) {
	atype := u8At(f.Method.Code, f.PC+1)
	length := f.Pop().Int()
	f.PC += 2
	if length < 0 {
		in.throwf(th, vmerr.NegativeArraySizeException, "%d", length)
		return
	}
	name := "[" + string(newarrayTag(atype))
	arrC, err := loader.LoadClass(in.ctx, in.ctx.Bootstrap, in.ctx.UTF.GetString(name, true), false)
	if err != nil {
		in.raiseLinkage(th, err)
		return
	}
	ao, err := in.ctx.Heap.NewArray(arrC.AsArrayClazz(), int(length))
	if err != nil {
		in.throw(th, vmerr.OutOfMemoryError, "")
		return
	}
	f.Push(cell.RefOf(ao))
}

func (in *Interp) execAnewarray(th *thread.Thread, f *frame.Frame) {
	idx := u16At(f.Method.Code, f.PC+1)
	comp, err := loader.ResolveClazz(in.ctx, f.Clazz, idx)
	if err != nil {
		in.raiseLinkage(th, err)
		return
	}
	length := f.Pop().Int()
	f.PC += 3
	if length < 0 {
		in.throwf(th, vmerr.NegativeArraySizeException, "%d", length)
		return
	}
	name := arrayClazzNameFor(comp)
	arrC, err := loader.LoadClass(in.ctx, f.Clazz.Loader, in.ctx.UTF.GetString(name, true), false)
	if err != nil {
		in.raiseLinkage(th, err)
		return
	}
	ao, err := in.ctx.Heap.NewArray(arrC.AsArrayClazz(), int(length))
	if err != nil {
		in.throw(th, vmerr.OutOfMemoryError, "")
		return
	}
	f.Push(cell.RefOf(ao))
}

func (in *Interp) execMultianewarray(th *thread.Thread, f *frame.Frame) {
	idx := u16At(f.Method.Code, f.PC+1)
	dimensions := u8At(f.Method.Code, f.PC+3)
	target, err := loader.ResolveClazz(in.ctx, f.Clazz, idx)
	if err != nil {
		in.raiseLinkage(th, err)
		return
	}
	dims := make([]int, dimensions)
	negative := false
	for i := dimensions - 1; i >= 0; i-- {
		d := f.Pop().Int()
		if d < 0 {
			negative = true
		}
		dims[i] = int(d)
	}
	f.PC += 4
	if negative {
		in.throw(th, vmerr.NegativeArraySizeException, "")
		return
	}
	ac := target.AsArrayClazz()
	ao, err := in.ctx.Heap.NewMultiArray(ac, dims, func(a *clazz.ArrayClazz) *clazz.ArrayClazz {
		if a.ComponentClazz == nil {
			return nil
		}
		return a.ComponentClazz.AsArrayClazz()
	})
	if err != nil {
		in.throw(th, vmerr.OutOfMemoryError, "")
		return
	}
	f.Push(cell.RefOf(ao))
}

func (in *Interp) execArraylength(th *thread.Thread, f *frame.Frame) {
	ref := f.Pop()
	f.PC++
	if ref.IsNull() {
		in.throw(th, vmerr.NullPointerException, "")
		return
	}
	ao, ok := ref.Ref().(*object.ArrayObject)
	if !ok {
		panic(vmerr.NewFatal("arraylength on non-array reference", nil))
	}
	f.Push(cell.Int(int32(ao.Length)))
}

func (in *Interp) execAthrow(th *thread.Thread, f *frame.Frame) {
	ref := f.Pop()
	if ref.IsNull() {
		in.throw(th, vmerr.NullPointerException, "")
		return
	}
	vmerr.Raise(ref.Ref())
}

func (in *Interp) execCheckcast(th *thread.Thread, f *frame.Frame) {
	idx := u16At(f.Method.Code, f.PC+1)
	target, err := loader.ResolveClazz(in.ctx, f.Clazz, idx)
	if err != nil {
		in.raiseLinkage(th, err)
		return
	}
	f.PC += 3
	v := f.Peek(0)
	if v.IsNull() {
		return
	}
	rc := runtimeClazzOf(v.Ref())
	if rc == nil || !loader.IsAssignableFrom(rc, target) {
		in.throwf(th, vmerr.ClassCastException, "%s cannot be cast to %s", nameOf(rc), nameOf(target))
		return
	}
}

func (in *Interp) execInstanceof(th *thread.Thread, f *frame.Frame) {
	idx := u16At(f.Method.Code, f.PC+1)
	target, err := loader.ResolveClazz(in.ctx, f.Clazz, idx)
	if err != nil {
		in.raiseLinkage(th, err)
		return
	}
	f.PC += 3
	v := f.Pop()
	if v.IsNull() {
		f.Push(cell.Int(0))
		return
	}
	rc := runtimeClazzOf(v.Ref())
	if rc != nil && loader.IsAssignableFrom(rc, target) {
		f.Push(cell.Int(1))
	} else {
		f.Push(cell.Int(0))
	}
}

// execMonitorenter/execMonitorexit implement explicit synchronized-block
// locking (spec.md §4.F), reusing the same lazily-associated Monitor that
// synchronized methods acquire on entry.
func (in *Interp) execMonitorenter(th *thread.Thread, f *frame.Frame) {
	ref := f.Pop()
	startPC := f.PC
	f.PC++
	if ref.IsNull() {
		in.throw(th, vmerr.NullPointerException, "")
		return
	}
	mon := in.monitorFor(ref.Ref())
	if !mon.Acquire(th) {
		// th is now Blocked; rewind so this instruction retries once the
		// monitor grants ownership (spec.md §4.F "re-dispatch the same
		// instruction on grant").
		f.PC = startPC
		f.Push(ref)
	}
}

func (in *Interp) execMonitorexit(th *thread.Thread, f *frame.Frame) {
	ref := f.Pop()
	f.PC++
	if ref.IsNull() {
		in.throw(th, vmerr.NullPointerException, "")
		return
	}
	mon := in.monitorFor(ref.Ref())
	if mon.Owner != th {
		in.throw(th, vmerr.IllegalMonitorStateException, "")
		return
	}
	mon.Release()
}
