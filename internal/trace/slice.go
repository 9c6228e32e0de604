package trace

// SliceRecorder accumulates completed cycles in memory for in-process
// consumers such as tests; Last returns the most recent N of them. The
// `debug` CLI subcommand does not use it.
type SliceRecorder struct {
	Cycles []Cycle
	cur    Cycle
}

// NewSliceRecorder returns an empty in-memory Sink.
func NewSliceRecorder() *SliceRecorder {
	return &SliceRecorder{}
}

func (s *SliceRecorder) StartCycle(cycle int, pcBeforeFetch uint16) {
	s.cur = Cycle{Index: cycle, PCBeforeFetch: pcBeforeFetch}
}

func (s *SliceRecorder) RecordRegisters(snapshot Registers) {
	s.cur.Registers = snapshot
}

func (s *SliceRecorder) RecordDecoded(fields Decoded) {
	s.cur.Decoded = fields
}

func (s *SliceRecorder) RecordMemWrite(event MemWriteEvent) {
	s.cur.MemWrites = append(s.cur.MemWrites, event)
}

func (s *SliceRecorder) EndCycle() {
	s.Cycles = append(s.Cycles, s.cur)
	s.cur = Cycle{}
}

// Last returns the most recent n cycles (or fewer if not enough have been
// recorded), oldest first.
func (s *SliceRecorder) Last(n int) []Cycle {
	if n >= len(s.Cycles) {
		return s.Cycles
	}
	return s.Cycles[len(s.Cycles)-n:]
}
