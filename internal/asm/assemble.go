package asm

import (
	"github.com/rv16/rv16/internal/isa"
)

// SourceMap maps the start address of each emitted instruction or data
// directive back to the 1-based source line that produced it
// (SPEC_FULL.md §4.4, "Source maps"). Assemble always returns one; no CLI
// subcommand reads it. It is additive: it never changes the bytes
// Assemble emits.
type SourceMap map[uint16]int

// Result is the output of a successful assembly.
type Result struct {
	Bytes     []byte
	Base      uint16 // address of the first emitted byte
	Symbols   map[string]uint16
	SourceMap SourceMap
}

// operandRole classifies what an instruction's non-destination operand is
// used for, which determines which operand kinds are legal and how they
// map to an addressing mode. It mirrors the restrictions CPU.execute
// enforces, so the assembler never emits a combination the CPU would
// reject as a decode error.
type operandRole int

const (
	roleNone operandRole = iota
	roleRegisterOnly
	roleALUSource
	roleEffectiveAddress
	rolePort
	roleTarget
)

// shape describes an instruction's operand list: whether it takes a
// leading destination register, and the role of any remaining operand.
type shape struct {
	hasDest bool
	extra   operandRole
}

func shapeFor(op isa.Opcode) (shape, bool) {
	switch op {
	case isa.NOP, isa.HALT, isa.RET:
		return shape{}, true
	case isa.PUSH, isa.POP:
		return shape{hasDest: true, extra: roleNone}, true
	case isa.MOV:
		return shape{hasDest: true, extra: roleALUSource}, true
	case isa.LOAD, isa.STORE:
		return shape{hasDest: true, extra: roleEffectiveAddress}, true
	case isa.ADD, isa.SUB, isa.AND, isa.OR, isa.XOR, isa.CMP, isa.SHL, isa.SHR:
		return shape{hasDest: true, extra: roleALUSource}, true
	case isa.JMP, isa.JZ, isa.JNZ, isa.JC, isa.JNC, isa.JN, isa.CALL:
		return shape{hasDest: false, extra: roleTarget}, true
	case isa.IN, isa.OUT:
		return shape{hasDest: true, extra: rolePort}, true
	default:
		return shape{}, false
	}
}

// modeForRole maps a syntactic operand to the addressing mode it encodes
// for the given role, rejecting operand kinds the role cannot express.
func modeForRole(role operandRole, op Operand) (isa.Mode, error) {
	switch role {
	case roleALUSource:
		switch op.Kind {
		case OperandRegister:
			return isa.Register, nil
		case OperandImmediate, OperandLabel:
			return isa.Immediate, nil
		case OperandDirect:
			return isa.Direct, nil
		case OperandIndirectReg:
			return isa.RegisterIndirect, nil
		}
	case roleEffectiveAddress:
		switch op.Kind {
		case OperandIndirectReg:
			return isa.RegisterIndirect, nil
		case OperandDirect, OperandLabel:
			return isa.Direct, nil
		}
	case rolePort:
		switch op.Kind {
		case OperandRegister:
			return isa.Register, nil
		case OperandImmediate:
			return isa.Immediate, nil
		}
	case roleTarget:
		switch op.Kind {
		case OperandLabel, OperandNumber:
			return isa.PCRelative, nil
		}
	}
	return 0, semErrf(op.Line, "operand kind mismatch")
}

// instructionSize computes the encoded size of an instruction line without
// resolving any symbol values, matching the fixed byte counts of
// SPEC_FULL.md §4.4 pass 1.
func instructionSize(ln SourceLine) (int, error) {
	op, ok := isa.Mnemonics[ln.Mnemonic]
	if !ok {
		return 0, semErrf(ln.LineNo, "unknown mnemonic %s", ln.Mnemonic)
	}
	sh, ok := shapeFor(op)
	if !ok {
		return 0, semErrf(ln.LineNo, "unsupported opcode %s", ln.Mnemonic)
	}
	want := 0
	if sh.hasDest {
		want++
	}
	if sh.extra != roleNone {
		want++
	}
	if len(ln.Operands) != want {
		return 0, semErrf(ln.LineNo, "%s expects %d operand(s), found %d", ln.Mnemonic, want, len(ln.Operands))
	}
	if sh.extra == roleNone {
		return 2, nil
	}
	extraOperand := ln.Operands[len(ln.Operands)-1]
	mode, err := modeForRole(sh.extra, extraOperand)
	if err != nil {
		return 0, err
	}
	return isa.InstructionSizeForMode(mode), nil
}

// stringDirectiveSize returns the byte count .STRING reserves: the decoded
// payload plus a terminating NUL, padded to an even length.
func stringDirectiveSize(s string) int {
	n := len(s) + 1
	if n%2 != 0 {
		n++
	}
	return n
}

// Assemble runs the two-pass algorithm of SPEC_FULL.md §4.4 over source,
// returning the emitted image, its base address, the resolved symbol
// table, and a source map. The first error aborts assembly entirely; no
// partial image is returned.
func Assemble(source string) (Result, error) {
	lexed, err := Lex(source)
	if err != nil {
		return Result{}, err
	}
	lines, err := Parse(lexed)
	if err != nil {
		return Result{}, err
	}

	symbols := make(map[string]uint16)
	sizes := make([]int, len(lines))
	addrs := make([]uint16, len(lines))

	loc := uint16(isa.ResetPC)
	for i, ln := range lines {
		if ln.Label != "" {
			if _, dup := symbols[ln.Label]; dup {
				return Result{}, semErrf(ln.LineNo, "duplicate label %s", ln.Label)
			}
			symbols[ln.Label] = loc
		}
		addrs[i] = loc

		switch {
		case ln.Directive == ".ORG":
			v, err := resolveKnownOperand(*ln.DirOperand, symbols)
			if err != nil {
				return Result{}, err
			}
			loc = v
			addrs[i] = loc
			sizes[i] = 0

		case ln.Directive == ".WORD":
			sizes[i] = 2
			loc += 2

		case ln.Directive == ".STRING":
			n := stringDirectiveSize(ln.DirString)
			sizes[i] = n
			loc += uint16(n)

		case ln.Mnemonic != "":
			n, err := instructionSize(ln)
			if err != nil {
				return Result{}, err
			}
			sizes[i] = n
			loc += uint16(n)

		default:
			sizes[i] = 0
		}
	}

	var minAddr, maxAddrExclusive uint16
	haveAny := false
	for i := range lines {
		if sizes[i] == 0 {
			continue
		}
		end := addrs[i] + uint16(sizes[i])
		if !haveAny {
			minAddr, maxAddrExclusive, haveAny = addrs[i], end, true
			continue
		}
		if addrs[i] < minAddr {
			minAddr = addrs[i]
		}
		if end > maxAddrExclusive {
			maxAddrExclusive = end
		}
	}
	imgBase := uint16(isa.ResetPC)
	imgLen := 0
	if haveAny {
		imgBase = minAddr
		imgLen = int(maxAddrExclusive) - int(imgBase)
	}
	bytes := make([]byte, imgLen)
	smap := make(SourceMap)

	for i, ln := range lines {
		if sizes[i] == 0 {
			continue
		}
		addr := addrs[i]
		off := int(addr) - int(imgBase)

		switch {
		case ln.Directive == ".WORD":
			v, err := resolveKnownOperand(*ln.DirOperand, symbols)
			if err != nil {
				return Result{}, err
			}
			bytes[off] = byte(v)
			bytes[off+1] = byte(v >> 8)
			smap[addr] = ln.LineNo

		case ln.Directive == ".STRING":
			payload := append([]byte(ln.DirString), 0)
			copy(bytes[off:], payload)
			// Remaining byte(s), if the padding added one, stay zero.
			smap[addr] = ln.LineNo

		case ln.Mnemonic != "":
			enc, err := encodeInstruction(ln, addr, symbols)
			if err != nil {
				return Result{}, err
			}
			copy(bytes[off:], enc)
			smap[addr] = ln.LineNo
		}
	}

	return Result{Bytes: bytes, Base: imgBase, Symbols: symbols, SourceMap: smap}, nil
}

// resolveKnownOperand resolves a Number or Label operand against symbols,
// rejecting negative literals and out-of-range values per SPEC_FULL.md
// §4.4's pass 2 error list.
func resolveKnownOperand(op Operand, symbols map[string]uint16) (uint16, error) {
	if op.Label != "" {
		addr, ok := symbols[op.Label]
		if !ok {
			return 0, semErrf(op.Line, "undefined label %s", op.Label)
		}
		return addr, nil
	}
	if op.Negative {
		return 0, semErrf(op.Line, "negative literal not allowed")
	}
	if op.Value > 0xFFFF {
		return 0, semErrf(op.Line, "immediate value 0x%X out of 16-bit range", op.Value)
	}
	return uint16(op.Value), nil
}

// encodeInstruction emits the little-endian bytes for one instruction
// line, resolving labels against the fully-populated symbol table.
func encodeInstruction(ln SourceLine, addr uint16, symbols map[string]uint16) ([]byte, error) {
	op := isa.Mnemonics[ln.Mnemonic]
	sh, _ := shapeFor(op)

	var rd, rs uint8
	var mode isa.Mode
	var extra uint16
	hasExtra := false

	idx := 0
	if sh.hasDest {
		dest := ln.Operands[idx]
		idx++
		if dest.Kind != OperandRegister {
			return nil, semErrf(dest.Line, "%s destination must be a register", ln.Mnemonic)
		}
		rd = dest.Reg
	}

	if sh.extra != roleNone {
		src := ln.Operands[idx]
		m, err := modeForRole(sh.extra, src)
		if err != nil {
			return nil, err
		}
		mode = m
		switch src.Kind {
		case OperandRegister, OperandIndirectReg:
			rs = src.Reg
		case OperandImmediate, OperandDirect:
			v, err := resolveKnownOperand(src, symbols)
			if err != nil {
				return nil, err
			}
			extra = v
			hasExtra = true
		case OperandLabel:
			if sh.extra == roleTarget {
				target, err := resolveKnownOperand(src, symbols)
				if err != nil {
					return nil, err
				}
				extra = pcRelativeOffset(addr, target)
			} else {
				v, err := resolveKnownOperand(src, symbols)
				if err != nil {
					return nil, err
				}
				extra = v
			}
			hasExtra = true
		case OperandNumber:
			// Only reachable for roleTarget (control-transfer numeric target).
			target, err := resolveKnownOperand(src, symbols)
			if err != nil {
				return nil, err
			}
			extra = pcRelativeOffset(addr, target)
			hasExtra = true
		}
	}

	word := isa.Encode(op, mode, rd, rs)
	out := []byte{byte(word), byte(word >> 8)}
	if hasExtra != mode.HasExtraWord() {
		return nil, semErrf(ln.LineNo, "internal encoding inconsistency for %s", ln.Mnemonic)
	}
	if hasExtra {
		out = append(out, byte(extra), byte(extra>>8))
	}
	return out, nil
}

// pcRelativeOffset computes the signed extra word for a control-transfer
// instruction at instrAddr (4 bytes: word + extra) targeting target.
func pcRelativeOffset(instrAddr, target uint16) uint16 {
	base := int32(instrAddr) + 4
	diff := int32(target) - base
	return uint16(diff)
}
