// Package interp implements the bytecode interpreter: opcode dispatch,
// invocation, exception unwinding, and monitor handling (spec.md §4.E/§4.F).
//
// Grounded on other_examples' thanhhungg97-jvm interpreter/opcodes.go for
// the opcode-constant/category-table shape, extended here to the full JVMS
// 6.5 opcode set, and other_examples' daimatz-gojvm vm.go/interpreter.go for
// the dispatch-loop-with-exception-table-search shape, generalized from
// Go-native recursion to the explicit frame-stack/scheduler model
// internal/thread and internal/frame already implement.
package interp

// Op is one JVM bytecode opcode (JVMS 6.5).
type Op byte

const (
	Nop         Op = 0x00
	AconstNull  Op = 0x01
	IconstM1    Op = 0x02
	Iconst0     Op = 0x03
	Iconst1     Op = 0x04
	Iconst2     Op = 0x05
	Iconst3     Op = 0x06
	Iconst4     Op = 0x07
	Iconst5     Op = 0x08
	Lconst0     Op = 0x09
	Lconst1     Op = 0x0A
	Fconst0     Op = 0x0B
	Fconst1     Op = 0x0C
	Fconst2     Op = 0x0D
	Dconst0     Op = 0x0E
	Dconst1     Op = 0x0F
	Bipush      Op = 0x10
	Sipush      Op = 0x11
	Ldc         Op = 0x12
	LdcW        Op = 0x13
	Ldc2W       Op = 0x14

	Iload  Op = 0x15
	Lload  Op = 0x16
	Fload  Op = 0x17
	Dload  Op = 0x18
	Aload  Op = 0x19
	Iload0 Op = 0x1A
	Iload1 Op = 0x1B
	Iload2 Op = 0x1C
	Iload3 Op = 0x1D
	Lload0 Op = 0x1E
	Lload1 Op = 0x1F
	Lload2 Op = 0x20
	Lload3 Op = 0x21
	Fload0 Op = 0x22
	Fload1 Op = 0x23
	Fload2 Op = 0x24
	Fload3 Op = 0x25
	Dload0 Op = 0x26
	Dload1 Op = 0x27
	Dload2 Op = 0x28
	Dload3 Op = 0x29
	Aload0 Op = 0x2A
	Aload1 Op = 0x2B
	Aload2 Op = 0x2C
	Aload3 Op = 0x2D

	Iaload Op = 0x2E
	Laload Op = 0x2F
	Faload Op = 0x30
	Daload Op = 0x31
	Aaload Op = 0x32
	Baload Op = 0x33
	Caload Op = 0x34
	Saload Op = 0x35

	Istore  Op = 0x36
	Lstore  Op = 0x37
	Fstore  Op = 0x38
	Dstore  Op = 0x39
	Astore  Op = 0x3A
	Istore0 Op = 0x3B
	Istore1 Op = 0x3C
	Istore2 Op = 0x3D
	Istore3 Op = 0x3E
	Lstore0 Op = 0x3F
	Lstore1 Op = 0x40
	Lstore2 Op = 0x41
	Lstore3 Op = 0x42
	Fstore0 Op = 0x43
	Fstore1 Op = 0x44
	Fstore2 Op = 0x45
	Fstore3 Op = 0x46
	Dstore0 Op = 0x47
	Dstore1 Op = 0x48
	Dstore2 Op = 0x49
	Dstore3 Op = 0x4A
	Astore0 Op = 0x4B
	Astore1 Op = 0x4C
	Astore2 Op = 0x4D
	Astore3 Op = 0x4E

	Iastore Op = 0x4F
	Lastore Op = 0x50
	Fastore Op = 0x51
	Dastore Op = 0x52
	Aastore Op = 0x53
	Bastore Op = 0x54
	Castore Op = 0x55
	Sastore Op = 0x56

	Pop     Op = 0x57
	Pop2    Op = 0x58
	Dup     Op = 0x59
	DupX1   Op = 0x5A
	DupX2   Op = 0x5B
	Dup2    Op = 0x5C
	Dup2X1  Op = 0x5D
	Dup2X2  Op = 0x5E
	Swap    Op = 0x5F

	Iadd Op = 0x60
	Ladd Op = 0x61
	Fadd Op = 0x62
	Dadd Op = 0x63
	Isub Op = 0x64
	Lsub Op = 0x65
	Fsub Op = 0x66
	Dsub Op = 0x67
	Imul Op = 0x68
	Lmul Op = 0x69
	Fmul Op = 0x6A
	Dmul Op = 0x6B
	Idiv Op = 0x6C
	Ldiv Op = 0x6D
	Fdiv Op = 0x6E
	Ddiv Op = 0x6F
	Irem Op = 0x70
	Lrem Op = 0x71
	Frem Op = 0x72
	Drem Op = 0x73
	Ineg Op = 0x74
	Lneg Op = 0x75
	Fneg Op = 0x76
	Dneg Op = 0x77

	Ishl  Op = 0x78
	Lshl  Op = 0x79
	Ishr  Op = 0x7A
	Lshr  Op = 0x7B
	Iushr Op = 0x7C
	Lushr Op = 0x7D
	Iand  Op = 0x7E
	Land  Op = 0x7F
	Ior   Op = 0x80
	Lor   Op = 0x81
	Ixor  Op = 0x82
	Lxor  Op = 0x83

	Iinc Op = 0x84

	I2l Op = 0x85
	I2f Op = 0x86
	I2d Op = 0x87
	L2i Op = 0x88
	L2f Op = 0x89
	L2d Op = 0x8A
	F2i Op = 0x8B
	F2l Op = 0x8C
	F2d Op = 0x8D
	D2i Op = 0x8E
	D2l Op = 0x8F
	D2f Op = 0x90
	I2b Op = 0x91
	I2c Op = 0x92
	I2s Op = 0x93

	Lcmp  Op = 0x94
	Fcmpl Op = 0x95
	Fcmpg Op = 0x96
	Dcmpl Op = 0x97
	Dcmpg Op = 0x98

	Ifeq      Op = 0x99
	Ifne      Op = 0x9A
	Iflt      Op = 0x9B
	Ifge      Op = 0x9C
	Ifgt      Op = 0x9D
	Ifle      Op = 0x9E
	IfIcmpeq  Op = 0x9F
	IfIcmpne  Op = 0xA0
	IfIcmplt  Op = 0xA1
	IfIcmpge  Op = 0xA2
	IfIcmpgt  Op = 0xA3
	IfIcmple  Op = 0xA4
	IfAcmpeq  Op = 0xA5
	IfAcmpne  Op = 0xA6
	Goto      Op = 0xA7
	Jsr       Op = 0xA8
	Ret       Op = 0xA9
	Tableswitch  Op = 0xAA
	Lookupswitch Op = 0xAB

	Ireturn Op = 0xAC
	Lreturn Op = 0xAD
	Freturn Op = 0xAE
	Dreturn Op = 0xAF
	Areturn Op = 0xB0
	Return  Op = 0xB1

	Getstatic     Op = 0xB2
	Putstatic     Op = 0xB3
	Getfield      Op = 0xB4
	Putfield      Op = 0xB5
	Invokevirtual Op = 0xB6
	Invokespecial Op = 0xB7
	Invokestatic  Op = 0xB8
	Invokeinterface Op = 0xB9
	Invokedynamic Op = 0xBA

	New             Op = 0xBB
	Newarray        Op = 0xBC
	Anewarray       Op = 0xBD
	Arraylength     Op = 0xBE
	Athrow          Op = 0xBF
	Checkcast       Op = 0xC0
	Instanceof      Op = 0xC1
	Monitorenter    Op = 0xC2
	Monitorexit     Op = 0xC3

	Wide       Op = 0xC4
	Multianewarray Op = 0xC5
	Ifnull     Op = 0xC6
	Ifnonnull  Op = 0xC7
	GotoW      Op = 0xC8
	JsrW       Op = 0xC9

	Breakpoint Op = 0xCA
)

// NewarrayType is the operand byte of the newarray instruction (JVMS 6.5
// newarray, Table 6.5-A).
const (
	ATBoolean = 4
	ATChar    = 5
	ATFloat   = 6
	ATDouble  = 7
	ATByte    = 8
	ATShort   = 9
	ATInt     = 10
	ATLong    = 11
)
