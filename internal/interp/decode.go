package interp

import "encoding/binary"

// u8At/i8At/u16At/i16At/u32At/i32At decode operand bytes embedded in a
// method's Code array at a fixed offset from the opcode itself, the layout
// JVMS 6.5 gives every instruction.

func u8At(code []byte, pc int) int { return int(code[pc]) }

func i8At(code []byte, pc int) int { return int(int8(code[pc])) }

func u16At(code []byte, pc int) int { return int(binary.BigEndian.Uint16(code[pc:])) }

func i16At(code []byte, pc int) int { return int(int16(binary.BigEndian.Uint16(code[pc:]))) }

func i32At(code []byte, pc int) int32 { return int32(binary.BigEndian.Uint32(code[pc:])) }
