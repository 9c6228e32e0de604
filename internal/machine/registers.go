package machine

import "github.com/rv16/rv16/internal/isa"

// Latches captures the observational IR/MAR/MDR state of the fetch phase
// for a single cycle. Per SPEC_FULL.md §4.5 and §9 these are not required
// for correctness; Registers keeps them only so CPU.Step can hand a
// complete snapshot to an attached trace.Sink.
type Latches struct {
	IR  uint16 // instruction register: the fetched instruction word
	MAR uint16 // memory address register: the address last fetched from
	MDR uint16 // memory data register: the word last read during fetch
}

// Registers holds the architectural state of one CPU core: four
// general-purpose registers, PC, SP, and a 4-bit flags register.
type Registers struct {
	GPR   [isa.NumGPR]uint16
	PC    uint16
	SP    uint16
	Flags uint8

	Latches Latches
	Halted  bool
}

// Reset restores the initial values of SPEC_FULL.md §6: PC=0x8000,
// SP=0x7FFF, GPRs=0, flags=0, halted=false. Memory is reset separately by
// the caller (Memory has no notion of "the" CPU that owns it).
func (r *Registers) Reset() {
	*r = Registers{
		PC: isa.ResetPC,
		SP: isa.ResetSP,
	}
}

// Get returns GPR idx. A decoded rd/rs field is always validated against
// isa.NumGPR by the CPU before this is called, so an out-of-range idx
// (which panics) is a programming error, not a user-triggerable one.
func (r *Registers) Get(idx uint8) uint16 {
	return r.GPR[idx]
}

// Set writes v into GPR idx.
func (r *Registers) Set(idx uint8, v uint16) {
	r.GPR[idx] = v
}

// SetFlag sets or clears the given flag bit (one of isa.FlagZ/N/C/V).
func (r *Registers) SetFlag(bit uint8, on bool) {
	if on {
		r.Flags |= bit
	} else {
		r.Flags &^= bit
	}
}

// Flag reports whether the given flag bit is set.
func (r *Registers) Flag(bit uint8) bool {
	return r.Flags&bit != 0
}

// Snapshot is an immutable copy of register state for a trace cycle.
type Snapshot struct {
	GPR     [isa.NumGPR]uint16
	PC      uint16
	SP      uint16
	Flags   uint8
	Latches Latches
}

// Snapshot captures the current register state by value.
func (r *Registers) Snapshot() Snapshot {
	return Snapshot{
		GPR:     r.GPR,
		PC:      r.PC,
		SP:      r.SP,
		Flags:   r.Flags,
		Latches: r.Latches,
	}
}
