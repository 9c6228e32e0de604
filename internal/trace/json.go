package trace

import (
	"encoding/json"
	"io"
)

// JSONWriter is a Sink that marshals each completed cycle as one JSON
// object per line (JSON Lines), a thin adapter over the observable
// interfaces of SPEC_FULL.md §4.6. It buffers the in-progress cycle until
// EndCycle so a crash mid-cycle never emits a partial record.
type JSONWriter struct {
	enc *json.Encoder
	cur Cycle
	// OnError, if set, is invoked with any write error instead of it being
	// silently dropped; the caller is responsible for logging it (trace
	// sink errors are non-fatal per SPEC_FULL.md §7).
	OnError func(error)
}

// NewJSONWriter returns a Sink that writes newline-delimited JSON cycle
// records to w.
func NewJSONWriter(w io.Writer) *JSONWriter {
	return &JSONWriter{enc: json.NewEncoder(w)}
}

func (j *JSONWriter) StartCycle(cycle int, pcBeforeFetch uint16) {
	j.cur = Cycle{Index: cycle, PCBeforeFetch: pcBeforeFetch}
}

func (j *JSONWriter) RecordRegisters(snapshot Registers) {
	j.cur.Registers = snapshot
}

func (j *JSONWriter) RecordDecoded(fields Decoded) {
	j.cur.Decoded = fields
}

func (j *JSONWriter) RecordMemWrite(event MemWriteEvent) {
	j.cur.MemWrites = append(j.cur.MemWrites, event)
}

func (j *JSONWriter) EndCycle() {
	if err := j.enc.Encode(j.cur); err != nil && j.OnError != nil {
		j.OnError(err)
	}
	j.cur = Cycle{}
}
