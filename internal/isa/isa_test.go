package isa

import "testing"

func assert(t *testing.T, cond bool, format string, args ...any) {
	t.Helper()
	if !cond {
		t.Fatalf(format, args...)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		op   Opcode
		mode Mode
		rd   uint8
		rs   uint8
	}{
		{MOV, Register, 0, 1},
		{ADD, Immediate, 2, 0},
		{LOAD, Direct, 3, 0},
		{STORE, RegisterIndirect, 1, 2},
		{JMP, PCRelative, 0, 0},
		{OUT, Register, 3, 1},
	}
	for _, c := range cases {
		w := Encode(c.op, c.mode, c.rd, c.rs)
		op, mode, rd, rs := w.Decode()
		assert(t, op == c.op, "opcode round-trip: got %v want %v", op, c.op)
		assert(t, mode == c.mode, "mode round-trip: got %v want %v", mode, c.mode)
		assert(t, rd == c.rd, "rd round-trip: got %d want %d", rd, c.rd)
		assert(t, rs == c.rs, "rs round-trip: got %d want %d", rs, c.rs)
	}
}

func TestMnemonicsTableMatchesOpcodeNames(t *testing.T) {
	for name, op := range Mnemonics {
		assert(t, op.String() == name, "Mnemonics[%s] = %v, but %v.String() = %s", name, op, op, op.String())
	}
}

func TestOpcodeCount(t *testing.T) {
	assert(t, int(opcodeCount) == 25, "expected 25 opcodes, got %d", opcodeCount)
	assert(t, len(Mnemonics) == 25, "expected 25 mnemonics, got %d", len(Mnemonics))
}

func TestModeHasExtraWord(t *testing.T) {
	withExtra := []Mode{Immediate, Direct, RegisterOffset, PCRelative}
	withoutExtra := []Mode{Register, RegisterIndirect}
	for _, m := range withExtra {
		assert(t, m.HasExtraWord(), "%v should carry an extra word", m)
	}
	for _, m := range withoutExtra {
		assert(t, !m.HasExtraWord(), "%v should not carry an extra word", m)
	}
}

func TestIsControlTransfer(t *testing.T) {
	for op := JMP; op <= CALL; op++ {
		assert(t, op.IsControlTransfer(), "%v should be a control-transfer opcode", op)
	}
	assert(t, !MOV.IsControlTransfer(), "MOV should not be control-transfer")
	assert(t, !RET.IsControlTransfer(), "RET should not be control-transfer")
}

func TestUnusedBitsIgnoredOnDecode(t *testing.T) {
	w := Encode(NOP, Register, 0, 0) | 0x0003 // set the two unused low bits
	op, _, _, _ := w.Decode()
	assert(t, op == NOP, "unused bits must not affect decoded opcode, got %v", op)
}
