package machine

import (
	"context"
	"fmt"

	"github.com/rv16/rv16/internal/isa"
	"github.com/rv16/rv16/internal/trace"
)

// MaxCycles is the safety cap on the number of instructions Run will
// execute before reporting CapHit, preventing a runaway program from
// hanging the host (SPEC_FULL.md §4.5).
const MaxCycles = 100_000

// DecodeError is returned when Step encounters an unknown opcode or an
// addressing mode invalid for the operation being decoded.
type DecodeError struct {
	PC      uint16
	Message string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode error at 0x%04X: %s", e.PC, e.Message)
}

// ExecutionError reports the cycle-cap condition: Run returns it as an
// error so that hitting the cap is reported rather than silent.
type ExecutionError struct {
	Cycles int
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution halted: exceeded cycle cap of %d", e.Cycles)
}

// CPU sequences fetch/decode/execute cycles against a Memory and a
// Registers, per SPEC_FULL.md §4.5.
type CPU struct {
	Mem *Memory
	Reg Registers

	cycle int
	trace trace.Sink
}

// NewCPU constructs a CPU wired to mem, with registers at their reset
// values. An optional trace.Sink may be attached with AttachTrace.
func NewCPU(mem *Memory) *CPU {
	c := &CPU{Mem: mem}
	c.Reg.Reset()
	return c
}

// AttachTrace installs a cycle recorder. Passing nil detaches it.
func (c *CPU) AttachTrace(sink trace.Sink) {
	c.trace = sink
}

// RunResult summarizes how a Run terminated.
type RunResult struct {
	Cycles   int
	Halted   bool
	CapHit   bool
	Canceled bool
	Final    Snapshot
}

// Run repeatedly steps the CPU until it halts, the context is canceled, or
// the cycle cap is reached. Canceling ctx between instructions is the
// host's only lever over execution (SPEC_FULL.md §5); the VM itself never
// spawns goroutines.
func (c *CPU) Run(ctx context.Context) (RunResult, error) {
	for {
		if c.Reg.Halted {
			return RunResult{Cycles: c.cycle, Halted: true, Final: c.Reg.Snapshot()}, nil
		}
		select {
		case <-ctx.Done():
			return RunResult{Cycles: c.cycle, Canceled: true, Final: c.Reg.Snapshot()}, nil
		default:
		}
		if c.cycle >= MaxCycles {
			return RunResult{Cycles: c.cycle, CapHit: true, Final: c.Reg.Snapshot()}, &ExecutionError{Cycles: MaxCycles}
		}
		if err := c.Step(); err != nil {
			return RunResult{Cycles: c.cycle, Final: c.Reg.Snapshot()}, err
		}
	}
}

// Step executes a single fetch/decode/execute cycle. If the CPU is
// already halted, it is a no-op. Any error halts the CPU before
// returning, per SPEC_FULL.md §4.5 and §7.
func (c *CPU) Step() error {
	if c.Reg.Halted {
		return nil
	}

	pcBefore := c.Reg.PC

	// Fetch.
	mar := c.Reg.PC
	mdr := c.Mem.ReadWord(mar)
	ir := mdr
	c.Reg.PC += 2
	c.Reg.Latches = Latches{IR: ir, MAR: mar, MDR: mdr}

	op, mode, rd, rs := isa.Word(ir).Decode()

	if !op.Valid() {
		err := &DecodeError{PC: pcBefore, Message: fmt.Sprintf("unknown opcode %d", uint8(op))}
		c.Reg.Halted = true
		return err
	}
	if rd >= isa.NumGPR || rs >= isa.NumGPR {
		err := &DecodeError{PC: pcBefore, Message: fmt.Sprintf("register index out of range (rd=%d rs=%d)", rd, rs)}
		c.Reg.Halted = true
		return err
	}

	var extra uint16
	if mode.HasExtraWord() {
		extra = c.Mem.ReadWord(c.Reg.PC)
		c.Reg.PC += 2
	}

	var events []trace.MemWriteEvent
	if c.trace != nil {
		c.trace.StartCycle(c.cycle, pcBefore)
		c.trace.RecordRegisters(traceSnapshot(c.Reg.Snapshot()))
		c.trace.RecordDecoded(trace.Decoded{
			Opcode: op.String(), Mode: mode.String(), Rd: rd, Rs: rs, Extra: extra,
		})
		c.Mem.SetTraceHook(func(ev MemWriteEvent) {
			events = append(events, trace.MemWriteEvent{Address: ev.Address, OldValue: ev.OldValue, NewValue: ev.NewValue})
		})
	}

	err := c.execute(op, mode, rd, rs, extra)

	if c.trace != nil {
		c.Mem.SetTraceHook(nil)
		// A cycle that failed in execute is never ended, so buffering sinks
		// drop it instead of emitting a partial record.
		if err == nil {
			for _, ev := range events {
				c.trace.RecordMemWrite(ev)
			}
			c.trace.EndCycle()
		}
	}

	if err != nil {
		c.Reg.Halted = true
		return err
	}

	c.cycle++
	return nil
}

func traceSnapshot(s Snapshot) trace.Registers {
	return trace.Registers{
		GPR: s.GPR, PC: s.PC, SP: s.SP, Flags: s.Flags,
		IR: s.Latches.IR, MAR: s.Latches.MAR, MDR: s.Latches.MDR,
	}
}

// effectiveAddress computes EA for LOAD/STORE/JMP-family addressing modes
// per SPEC_FULL.md §4.5. Register and Immediate are not valid sources of
// an effective address and return an error.
func (c *CPU) effectiveAddress(mode isa.Mode, rs uint8, extra uint16, pcAfterDecode uint16) (uint16, error) {
	switch mode {
	case isa.Direct:
		return extra, nil
	case isa.RegisterIndirect:
		return c.Reg.Get(rs), nil
	case isa.RegisterOffset:
		return c.Reg.Get(rs) + extra, nil
	case isa.PCRelative:
		return pcAfterDecode + signExtend(extra), nil
	default:
		return 0, &DecodeError{PC: c.Reg.PC, Message: fmt.Sprintf("invalid addressing mode %s for effective address", mode)}
	}
}

// resolveSource reads the operand value for a source-position mode.
func (c *CPU) resolveSource(mode isa.Mode, rs uint8, extra uint16, pcAfterDecode uint16) (uint16, error) {
	switch mode {
	case isa.Register:
		return c.Reg.Get(rs), nil
	case isa.Immediate:
		return extra, nil
	default:
		ea, err := c.effectiveAddress(mode, rs, extra, pcAfterDecode)
		if err != nil {
			return 0, err
		}
		return c.Mem.ReadWord(ea), nil
	}
}

func signExtend(v uint16) uint16 {
	return uint16(int16(v))
}

func (c *CPU) push(v uint16) {
	c.Reg.SP -= 2
	c.Mem.WriteWord(c.Reg.SP, v)
}

func (c *CPU) pop() uint16 {
	v := c.Mem.ReadWord(c.Reg.SP)
	c.Reg.SP += 2
	return v
}

// execute carries out the decoded instruction, per the per-opcode
// semantics table in SPEC_FULL.md §4.5.
func (c *CPU) execute(op isa.Opcode, mode isa.Mode, rd, rs uint8, extra uint16) error {
	pcAfterDecode := c.Reg.PC

	switch op {
	case isa.NOP:
		return nil

	case isa.HALT:
		c.Reg.Halted = true
		return nil

	case isa.MOV:
		// rd is always a register field; Immediate is only invalid as a
		// *destination* mode, which can't be expressed since destinations
		// are never encoded as Immediate in this instruction format.
		v, err := c.resolveSource(mode, rs, extra, pcAfterDecode)
		if err != nil {
			return err
		}
		c.Reg.Set(rd, v)
		return nil

	case isa.LOAD:
		ea, err := c.effectiveAddress(mode, rs, extra, pcAfterDecode)
		if err != nil {
			return err
		}
		c.Reg.Set(rd, c.Mem.ReadWord(ea))
		return nil

	case isa.STORE:
		ea, err := c.effectiveAddress(mode, rs, extra, pcAfterDecode)
		if err != nil {
			return err
		}
		c.Mem.WriteWord(ea, c.Reg.Get(rd))
		return nil

	case isa.ADD, isa.SUB, isa.AND, isa.OR, isa.XOR, isa.SHL, isa.SHR:
		src, err := c.resolveSource(mode, rs, extra, pcAfterDecode)
		if err != nil {
			return err
		}
		res := Eval(op, c.Reg.Get(rd), src)
		c.Reg.Set(rd, res.Value)
		c.Reg.Flags = res.Flags
		return nil

	case isa.CMP:
		src, err := c.resolveSource(mode, rs, extra, pcAfterDecode)
		if err != nil {
			return err
		}
		res := Eval(op, c.Reg.Get(rd), src)
		c.Reg.Flags = res.Flags
		return nil

	case isa.JMP, isa.JZ, isa.JNZ, isa.JC, isa.JNC, isa.JN:
		target, err := c.controlTarget(mode, extra, pcAfterDecode)
		if err != nil {
			return err
		}
		if c.jumpCondition(op) {
			c.Reg.PC = target
		}
		return nil

	case isa.CALL:
		target, err := c.controlTarget(mode, extra, pcAfterDecode)
		if err != nil {
			return err
		}
		c.push(c.Reg.PC)
		c.Reg.PC = target
		return nil

	case isa.RET:
		c.Reg.PC = c.pop()
		return nil

	case isa.PUSH:
		c.push(c.Reg.Get(rd))
		return nil

	case isa.POP:
		c.Reg.Set(rd, c.pop())
		return nil

	case isa.IN:
		port, err := c.portOperand(mode, rs, extra)
		if err != nil {
			return err
		}
		c.Reg.Set(rd, uint16(c.Mem.ReadByte(isa.IOBase+port)))
		return nil

	case isa.OUT:
		port, err := c.portOperand(mode, rs, extra)
		if err != nil {
			return err
		}
		c.Mem.WriteByte(isa.IOBase+port, byte(c.Reg.Get(rd)))
		return nil

	default:
		return &DecodeError{PC: c.Reg.PC, Message: fmt.Sprintf("unknown opcode %d", uint8(op))}
	}
}

// controlTarget resolves the branch target for JMP/J*/CALL. Per
// SPEC_FULL.md §4.4 and §9 these opcodes are always encoded PC-relative;
// any other mode in the decoded word is a decode error rather than being
// silently reinterpreted.
func (c *CPU) controlTarget(mode isa.Mode, extra uint16, pcAfterDecode uint16) (uint16, error) {
	if mode != isa.PCRelative {
		return 0, &DecodeError{PC: c.Reg.PC, Message: fmt.Sprintf("control-transfer instruction encoded with non-PC-relative mode %s", mode)}
	}
	return pcAfterDecode + signExtend(extra), nil
}

func (c *CPU) jumpCondition(op isa.Opcode) bool {
	switch op {
	case isa.JMP:
		return true
	case isa.JZ:
		return c.Reg.Flag(isa.FlagZ)
	case isa.JNZ:
		return !c.Reg.Flag(isa.FlagZ)
	case isa.JC:
		return c.Reg.Flag(isa.FlagC)
	case isa.JNC:
		return !c.Reg.Flag(isa.FlagC)
	case isa.JN:
		return c.Reg.Flag(isa.FlagN)
	default:
		return false
	}
}

// portOperand resolves the port number for IN/OUT. Per the open question
// in SPEC_FULL.md §4.5/§9, Immediate mode supplies the port directly and
// Register mode reads it from R[rs]; any other mode is rejected.
func (c *CPU) portOperand(mode isa.Mode, rs uint8, extra uint16) (uint16, error) {
	switch mode {
	case isa.Immediate:
		return extra & 0xFF, nil
	case isa.Register:
		return c.Reg.Get(rs) & 0xFF, nil
	default:
		return 0, &DecodeError{PC: c.Reg.PC, Message: fmt.Sprintf("invalid addressing mode %s for IN/OUT port operand", mode)}
	}
}
