package asm

import (
	"fmt"
	"strings"

	"github.com/rv16/rv16/internal/isa"
)

// Line is one decoded instruction produced by Disassemble: its address,
// any synthetic label attached to that address, and the mnemonic plus
// operand text rendered in the same grammar Assemble accepts.
type Line struct {
	Address  uint16
	Label    string // "" unless a PC-relative target elsewhere in the image resolves here
	Mnemonic string
	Operands string
	Size     int
}

// String renders the line the way it would appear in a listing: the
// label (if any) on its own, then the indented mnemonic and operands.
func (l Line) String() string {
	var sb strings.Builder
	if l.Label != "" {
		fmt.Fprintf(&sb, "%s:\n", l.Label)
	}
	fmt.Fprintf(&sb, "    %-6s", l.Mnemonic)
	if l.Operands != "" {
		sb.WriteString(" ")
		sb.WriteString(l.Operands)
	}
	return sb.String()
}

type decoded struct {
	addr  uint16
	op    isa.Opcode
	mode  isa.Mode
	rd    uint8
	rs    uint8
	extra uint16
	size  int
}

// Disassemble walks image starting at base the same way CPU.Step's
// fetch/decode stage does (the shared internal/isa tables, not a
// re-implementation), yielding one Line per instruction. Any PC-relative
// target that resolves to an address actually present in image is given a
// synthetic "L<address>" label; this recovers structure, not the
// original source's label names (SPEC_FULL.md §4.4).
func Disassemble(image []byte, base uint16) ([]Line, error) {
	var decs []decoded
	addr := base
	end := int(base) + len(image)

	readWord := func(a uint16) (uint16, error) {
		off := int(a) - int(base)
		if off < 0 || off+1 >= len(image) {
			return 0, fmt.Errorf("asm: truncated instruction at 0x%04X", a)
		}
		return uint16(image[off]) | uint16(image[off+1])<<8, nil
	}

	for int(addr) < end {
		w, err := readWord(addr)
		if err != nil {
			return nil, err
		}
		op, mode, rd, rs := isa.Word(w).Decode()
		if !op.Valid() {
			return nil, fmt.Errorf("asm: unknown opcode %d at 0x%04X", uint8(op), addr)
		}
		size := isa.InstructionSizeForMode(mode)
		var extra uint16
		if mode.HasExtraWord() {
			extra, err = readWord(addr + 2)
			if err != nil {
				return nil, err
			}
		}
		decs = append(decs, decoded{addr: addr, op: op, mode: mode, rd: rd, rs: rs, extra: extra, size: size})
		addr += uint16(size)
	}

	targets := make(map[uint16]bool)
	for _, d := range decs {
		if !d.op.IsControlTransfer() || d.mode != isa.PCRelative {
			continue
		}
		target := d.addr + uint16(d.size) + signExtend16(d.extra)
		if int(target) >= int(base) && int(target) < end {
			targets[target] = true
		}
	}

	lines := make([]Line, 0, len(decs))
	for _, d := range decs {
		labelName := func(a uint16) (string, bool) {
			if targets[a] {
				return fmt.Sprintf("L%04X", a), true
			}
			return "", false
		}
		mnem, operands := renderInstruction(d, labelName)
		line := Line{Address: d.addr, Mnemonic: mnem, Operands: operands, Size: d.size}
		if name, ok := labelName(d.addr); ok {
			line.Label = name
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func signExtend16(v uint16) uint16 {
	return uint16(int16(v))
}

// renderInstruction renders one decoded instruction's mnemonic and operand
// text, reusing the assembler's own operand grammar (#, [...], bare
// register) so output is re-assemblable wherever the addressing mode has
// a surface syntax.
func renderInstruction(d decoded, labelName func(uint16) (string, bool)) (string, string) {
	mnem := d.op.String()

	switch d.op {
	case isa.NOP, isa.HALT, isa.RET:
		return mnem, ""

	case isa.PUSH, isa.POP:
		return mnem, fmt.Sprintf("R%d", d.rd)

	case isa.JMP, isa.JZ, isa.JNZ, isa.JC, isa.JNC, isa.JN, isa.CALL:
		target := d.addr + uint16(d.size) + signExtend16(d.extra)
		if name, ok := labelName(target); ok {
			return mnem, name
		}
		return mnem, fmt.Sprintf("0x%04X", target)

	default:
		return mnem, fmt.Sprintf("R%d, %s", d.rd, renderOperand(d.mode, d.rs, d.extra))
	}
}

func renderOperand(mode isa.Mode, rs uint8, extra uint16) string {
	switch mode {
	case isa.Register:
		return fmt.Sprintf("R%d", rs)
	case isa.Immediate:
		return fmt.Sprintf("#0x%04X", extra)
	case isa.Direct:
		return fmt.Sprintf("[#0x%04X]", extra)
	case isa.RegisterIndirect:
		return fmt.Sprintf("[R%d]", rs)
	case isa.RegisterOffset:
		return fmt.Sprintf("[R%d+0x%04X]", rs, extra)
	case isa.PCRelative:
		return fmt.Sprintf("0x%04X", extra)
	default:
		return fmt.Sprintf("<mode %d>", uint8(mode))
	}
}
