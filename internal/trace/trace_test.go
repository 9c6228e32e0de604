package trace

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func assert(t *testing.T, cond bool, format string, args ...any) {
	t.Helper()
	if !cond {
		t.Fatalf(format, args...)
	}
}

func feedOneCycle(s Sink, cycle int, pc uint16) {
	s.StartCycle(cycle, pc)
	s.RecordRegisters(Registers{PC: pc + 2})
	s.RecordDecoded(Decoded{Opcode: "MOV", Mode: "Immediate"})
	s.RecordMemWrite(MemWriteEvent{Address: 0x1000, OldValue: 0, NewValue: 0xEF})
	s.EndCycle()
}

func TestSliceRecorderOrdering(t *testing.T) {
	r := NewSliceRecorder()
	feedOneCycle(r, 0, 0x8000)
	feedOneCycle(r, 1, 0x8004)

	assert(t, len(r.Cycles) == 2, "expected 2 recorded cycles, got %d", len(r.Cycles))
	assert(t, r.Cycles[0].Index == 0 && r.Cycles[1].Index == 1, "cycles must be recorded in order")
	assert(t, r.Cycles[0].PCBeforeFetch == 0x8000, "wrong PC for cycle 0")
	assert(t, len(r.Cycles[0].MemWrites) == 1, "expected one mem write for cycle 0")
	assert(t, r.Cycles[0].MemWrites[0].NewValue == 0xEF, "mem write value mismatch")
}

func TestSliceRecorderDoesNotLeakPartialCycle(t *testing.T) {
	r := NewSliceRecorder()
	r.StartCycle(0, 0x8000)
	r.RecordRegisters(Registers{})
	// No EndCycle call: a crash mid-cycle must not surface in r.Cycles.
	assert(t, len(r.Cycles) == 0, "an in-progress cycle must not appear before EndCycle")
}

func TestSliceRecorderLast(t *testing.T) {
	r := NewSliceRecorder()
	for i := 0; i < 5; i++ {
		feedOneCycle(r, i, uint16(0x8000+i*4))
	}
	last := r.Last(2)
	assert(t, len(last) == 2, "expected 2 cycles, got %d", len(last))
	assert(t, last[0].Index == 3 && last[1].Index == 4, "Last(2) should return the most recent cycles oldest-first")

	all := r.Last(100)
	assert(t, len(all) == 5, "Last(n) with n >= len should return every cycle")
}

func TestJSONWriterEmitsOneLinePerCycle(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONWriter(&buf)
	feedOneCycle(w, 0, 0x8000)
	feedOneCycle(w, 1, 0x8004)

	lines := bytes.Split(bytes.TrimRight(buf.Bytes(), "\n"), []byte("\n"))
	assert(t, len(lines) == 2, "expected 2 JSON lines, got %d", len(lines))

	var c0 Cycle
	assert(t, json.Unmarshal(lines[0], &c0) == nil, "first line must be valid JSON")
	assert(t, c0.Index == 0, "first line should be cycle 0, got %d", c0.Index)
	assert(t, c0.PCBeforeFetch == 0x8000, "wrong pc_before_fetch in first line")
}

func TestJSONWriterResetsStateAfterEndCycle(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONWriter(&buf)
	feedOneCycle(w, 0, 0x8000)

	// A second cycle that never calls RecordMemWrite must not inherit the
	// first cycle's mem writes.
	w.StartCycle(1, 0x8004)
	w.RecordRegisters(Registers{PC: 0x8006})
	w.RecordDecoded(Decoded{Opcode: "HALT"})
	w.EndCycle()

	lines := bytes.Split(bytes.TrimRight(buf.Bytes(), "\n"), []byte("\n"))
	var c1 Cycle
	assert(t, json.Unmarshal(lines[1], &c1) == nil, "second line must be valid JSON")
	assert(t, len(c1.MemWrites) == 0, "second cycle must not inherit the first cycle's mem writes")
}

// failingWriter always errors, to exercise JSONWriter.OnError.
type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, errors.New("write failed")
}

func TestJSONWriterInvokesOnErrorOnWriteFailure(t *testing.T) {
	w := NewJSONWriter(failingWriter{})
	var gotErr error
	w.OnError = func(err error) { gotErr = err }

	feedOneCycle(w, 0, 0x8000)

	assert(t, gotErr != nil, "expected OnError to be invoked when the underlying writer fails")
}

func TestJSONWriterWithoutOnErrorDoesNotPanic(t *testing.T) {
	w := NewJSONWriter(failingWriter{})
	feedOneCycle(w, 0, 0x8000) // must not panic even though OnError is nil
}
