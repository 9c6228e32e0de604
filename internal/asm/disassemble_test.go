package asm

import (
	"strings"
	"testing"

	"github.com/rv16/rv16/internal/isa"
)

func TestDisassembleSmoke(t *testing.T) {
	res, err := Assemble("MOV R0, #42\nHALT")
	assert(t, err == nil, "unexpected error: %v", err)

	lines, err := Disassemble(res.Bytes, res.Base)
	assert(t, err == nil, "unexpected error: %v", err)
	assert(t, len(lines) == 2, "expected 2 disassembled lines, got %d", len(lines))
	assert(t, lines[0].Mnemonic == "MOV", "expected MOV, got %q", lines[0].Mnemonic)
	assert(t, strings.Contains(lines[0].Operands, "0x002A"), "expected operand text to show 0x002A, got %q", lines[0].Operands)
	assert(t, lines[1].Mnemonic == "HALT", "expected HALT, got %q", lines[1].Mnemonic)
}

func TestDisassembleSynthesizesLabelForInRangeTarget(t *testing.T) {
	res, err := Assemble("JMP TARGET\nNOP\nNOP\nTARGET: HALT")
	assert(t, err == nil, "unexpected error: %v", err)

	lines, err := Disassemble(res.Bytes, res.Base)
	assert(t, err == nil, "unexpected error: %v", err)

	last := lines[len(lines)-1]
	assert(t, last.Label == "L"+hex4(last.Address), "expected synthetic label on the jump target, got %q", last.Label)
	assert(t, strings.Contains(lines[0].Operands, last.Label), "expected the JMP operand to reference the synthetic label, got %q", lines[0].Operands)
}

func TestDisassembleDoesNotLabelOutOfRangeTargets(t *testing.T) {
	// A JMP whose target lies outside the supplied image must fall back to
	// a raw hex operand instead of a synthetic label.
	res, err := Assemble("JMP 0xFFF0")
	assert(t, err == nil, "unexpected error: %v", err)

	lines, err := Disassemble(res.Bytes, res.Base)
	assert(t, err == nil, "unexpected error: %v", err)
	assert(t, lines[0].Label == "", "no line should be labeled when the only target is out of range")
	assert(t, strings.Contains(lines[0].Operands, "0xFFF0"), "expected raw hex operand, got %q", lines[0].Operands)
}

func TestDisassembleRejectsUnknownOpcode(t *testing.T) {
	// Bit pattern with an opcode field beyond the defined range.
	image := []byte{0xFF, 0xF8}
	_, err := Disassemble(image, isa.ResetPC)
	assert(t, err != nil, "expected an error for an undecodable opcode")
}

func TestDisassembleRejectsTruncatedImage(t *testing.T) {
	image := []byte{0x01}
	_, err := Disassemble(image, isa.ResetPC)
	assert(t, err != nil, "expected an error for a truncated instruction")
}

// TestAssembleDisassembleRoundTrip exercises Testable Property 5: the
// disassembly of an assembled program is semantically equivalent to the
// source program -- same mnemonics, operand roles, and total byte
// layout -- without requiring the original label spellings to survive.
func TestAssembleDisassembleRoundTrip(t *testing.T) {
	src := "MOV R0, #42\nMOV R1, R0\nADD R1, #1\nSTORE R1, [#0x1000]\nHALT"
	res, err := Assemble(src)
	assert(t, err == nil, "unexpected error: %v", err)

	lines, err := Disassemble(res.Bytes, res.Base)
	assert(t, err == nil, "unexpected error: %v", err)
	assert(t, len(lines) == 5, "expected 5 instructions, got %d", len(lines))

	wantMnemonics := []string{"MOV", "MOV", "ADD", "STORE", "HALT"}
	for i, want := range wantMnemonics {
		assert(t, lines[i].Mnemonic == want, "line %d: mnemonic = %q, want %q", i, lines[i].Mnemonic, want)
	}
	assert(t, strings.Contains(lines[0].Operands, "#0x002A"), "line 0 operand: %q", lines[0].Operands)
	assert(t, strings.Contains(lines[1].Operands, "R0"), "line 1 operand: %q", lines[1].Operands)
	assert(t, strings.Contains(lines[2].Operands, "#0x0001"), "line 2 operand: %q", lines[2].Operands)
	assert(t, strings.Contains(lines[3].Operands, "0x1000"), "line 3 operand: %q", lines[3].Operands)

	totalSize := 0
	for _, l := range lines {
		totalSize += l.Size
	}
	assert(t, totalSize == len(res.Bytes), "disassembled instruction sizes should cover the whole image: got %d, want %d", totalSize, len(res.Bytes))
}

func hex4(v uint16) string {
	const digits = "0123456789ABCDEF"
	b := [4]byte{digits[(v>>12)&0xF], digits[(v>>8)&0xF], digits[(v>>4)&0xF], digits[v&0xF]}
	return string(b[:])
}
