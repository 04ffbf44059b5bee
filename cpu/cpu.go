// Package cpu implements the Ricoh 2A03 (NES) variant of the MOS 6502: the
// register file, the 256-entry decode table, the addressing-mode tick
// schedule, and reset/IRQ/NMI/BRK sequencing. BCD is permanently inert and
// undocumented opcodes are trapped rather than implemented, matching the
// chip actually soldered into an NES.
package cpu

import (
	"fmt"

	"github.com/retro6502/nes6502/irq"
)

const (
	NMIVector   = uint16(0xFFFA)
	ResetVector = uint16(0xFFFC)
	IRQVector   = uint16(0xFFFE)

	PNegative  = uint8(0x80)
	POverflow  = uint8(0x40)
	PS1        = uint8(0x20) // Always reads as 1.
	PBreak     = uint8(0x10) // Only meaningful in a stacked copy of P.
	PDecimal   = uint8(0x08) // Settable but inert on this variant.
	PInterrupt = uint8(0x04)
	PZero      = uint8(0x02)
	PCarry     = uint8(0x01)
)

// irqType tracks which interrupt, if any, is currently being serviced or
// waiting to be. NMI always wins over a pending IRQ.
type irqType int

const (
	irqNone irqType = iota
	irqIRQ
	irqNMI
)

// Bus is the memory-mapped address space the core reaches devices through.
// Read/Write are the ticking core-internal path; Peek/Poke are the
// non-ticking harness/debugger path (spec.md §6). Tick accounts for a
// clock cycle that touches no device (the 6502's internal "dead" cycles).
type Bus interface {
	Read(addr uint16) uint8
	Write(addr uint16, val uint8)
	Peek(addr uint16) uint8
	Poke(addr uint16, val uint8)
	Tick()
}

// InvalidCPUState indicates an internal precondition was violated (a bad
// opTick count, an impossible enum value). It means a bug in the core
// itself, not bad guest code, and halts execution.
type InvalidCPUState struct {
	Reason string
}

func (e InvalidCPUState) Error() string {
	return fmt.Sprintf("invalid CPU state: %s", e.Reason)
}

// HaltOpcode is raised when an illegal opcode is decoded under a strict
// ChipDef. Once the core has halted (for that reason or after an
// InvalidCPUState error), every later Tick returns it until Reset.
type HaltOpcode struct {
	Opcode uint8
}

func (e HaltOpcode) Error() string {
	return fmt.Sprintf("HALT(0x%.2X) executed", e.Opcode)
}

// ChipDef configures a new Chip.
type ChipDef struct {
	// Bus is the memory-mapped address space this core runs against.
	Bus Bus
	// Strict selects the illegal-opcode policy: false (the production
	// default) treats an undocumented opcode slot as a 2-tick NOP; true
	// halts with HaltOpcode, the behavior test builds want.
	Strict bool
}

// Chip is one Ricoh 2A03 CPU core instance. All state — registers, the
// in-flight opcode's tick position, pending interrupt lines — lives here;
// nothing is package-level, so multiple independent Chips can exist.
type Chip struct {
	A, X, Y, S, P uint8
	PC            uint16

	bus    Bus
	strict bool

	irqLine irq.Level
	nmiLine irq.Latch

	tickDone bool
	reset    bool

	op     uint8  // Opcode of the instruction currently in flight.
	opVal  uint8  // First byte read after the opcode.
	opTick int    // Cycle position within the current opcode/interrupt sequence.
	opAddr uint16 // Effective address computed by the addressing mode.

	opDone   bool
	addrDone bool

	skipInterrupt     bool // A just-taken branch defers interrupt polling one instruction.
	prevSkipInterrupt bool

	irqRaised        irqType
	runningInterrupt bool

	halted     bool
	haltOpcode uint8
}

// Init creates a new Chip wired to bus and immediately runs its power-on
// reset sequence.
func Init(def *ChipDef) (*Chip, error) {
	if def.Bus == nil {
		return nil, InvalidCPUState{"ChipDef.Bus must not be nil"}
	}
	p := &Chip{
		bus:      def.Bus,
		strict:   def.Strict,
		tickDone: true,
	}
	if err := p.PowerOn(); err != nil {
		return nil, err
	}
	return p, nil
}

// PowerOn puts the core through its reset sequence from an indeterminate
// register state, matching real hardware where power-up register contents
// are undefined (spec.md §3 Lifecycle).
func (p *Chip) PowerOn() error {
	p.P = PS1
	for {
		done, err := p.Reset()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// Reset runs (one tick at a time, across repeated calls) the 6-cycle reset
// sequence: a throwaway opcode-position read, three internal cycles where
// the stack pointer is walked down as if PC/P had been pushed (the pushes
// themselves are suppressed — open-bus, per spec.md §4.6), then the PC is
// loaded from ResetVector. Returns true once complete.
func (p *Chip) Reset() (bool, error) {
	if !p.reset {
		p.reset = true
		p.tickDone = false
		p.opTick = 0
	}
	p.opTick++
	switch {
	case p.opTick < 1 || p.opTick > 6:
		return true, InvalidCPUState{fmt.Sprintf("Reset: bad opTick %d", p.opTick)}
	case p.opTick == 1:
		_ = p.bus.Read(p.PC)
		p.P |= PInterrupt
		p.halted = false
		p.haltOpcode = 0
		p.irqRaised = irqNone
		return false, nil
	case p.opTick >= 2 && p.opTick <= 4:
		// Real hardware reads (not writes) these three stack-adjacent
		// cycles; no device is touched but a cycle is still spent.
		p.bus.Tick()
		p.S--
		return false, nil
	case p.opTick == 5:
		p.opVal = p.bus.Read(ResetVector)
		return false, nil
	}
	// case p.opTick == 6:
	p.PC = (uint16(p.bus.Read(ResetVector+1)) << 8) + uint16(p.opVal)
	p.reset = false
	p.opTick = 0
	p.tickDone = true
	return true, nil
}

// SetIRQ sets or clears the level-triggered IRQ line (spec.md §5
// trigger_nmi/set_irq). It is gated by the I flag at polling time, not here.
func (p *Chip) SetIRQ(level bool) {
	p.irqLine.Set(level)
}

// TriggerNMI latches the edge-triggered NMI line high. It stays latched,
// ungated by any flag, until the core begins servicing it.
func (p *Chip) TriggerNMI() {
	p.nmiLine.Trigger()
}

// Read is the non-ticking harness/debugger passthrough to the bus
// (spec.md §6: "pass-throughs for harness inspection (do not tick)").
func (p *Chip) Read(addr uint16) uint8 {
	return p.bus.Peek(addr)
}

// Write is the non-ticking harness/debugger passthrough to the bus.
func (p *Chip) Write(addr uint16, val uint8) {
	p.bus.Poke(addr, val)
}

// TraceRecord is a point-in-time snapshot of the core, captured before an
// instruction executes (spec.md §6 trace format).
type TraceRecord struct {
	PC     uint16
	A      uint8
	X      uint8
	Y      uint8
	P      uint8
	S      uint8
	Cycles uint64
}

// Trace snapshots the current register file and the bus's cycle count.
func (p *Chip) Trace() TraceRecord {
	cycles := uint64(0)
	if c, ok := p.bus.(interface{ Cycles() uint64 }); ok {
		cycles = c.Cycles()
	}
	return TraceRecord{PC: p.PC, A: p.A, X: p.X, Y: p.Y, P: p.P, S: p.S, Cycles: cycles}
}

// Step runs whole clock cycles until the in-flight instruction (or
// interrupt sequence) completes, returning the number of ticks consumed.
func (p *Chip) Step() (uint64, error) {
	start := uint64(0)
	if c, ok := p.bus.(interface{ Cycles() uint64 }); ok {
		start = c.Cycles()
	}
	for {
		if err := p.Tick(); err != nil {
			p.TickDone()
			return 0, err
		}
		p.TickDone()
		if p.InstructionDone() {
			break
		}
	}
	if c, ok := p.bus.(interface{ Cycles() uint64 }); ok {
		return c.Cycles() - start, nil
	}
	return 0, nil
}

// RunUntil repeatedly steps the core until the bus's cycle accountant
// reaches or exceeds target, or an error occurs.
func (p *Chip) RunUntil(target uint64) error {
	c, ok := p.bus.(interface{ Cycles() uint64 })
	if !ok {
		return InvalidCPUState{"RunUntil requires a Bus exposing Cycles()"}
	}
	for c.Cycles() < target {
		if _, err := p.Step(); err != nil {
			return err
		}
	}
	return nil
}

// Tick runs exactly one clock cycle: either progressing an in-flight
// instruction/interrupt sequence or, if the prior one just finished,
// starting the next. InstructionDone reports whether this call completed
// the current instruction.
func (p *Chip) Tick() error {
	if !p.tickDone {
		p.opDone = true
		return InvalidCPUState{"Tick called without TickDone at end of last cycle"}
	}
	p.tickDone = false

	if p.halted {
		p.opDone = true
		return HaltOpcode{p.haltOpcode}
	}

	p.opTick++

	// NMI is an edge already latched in nmiLine; IRQ is a level gated by
	// the I flag at the moment of polling (spec.md §4.6).
	nmiReq := p.nmiLine.Raised()
	irqReq := p.irqLine.Raised() && p.P&PInterrupt == 0
	if irqReq || nmiReq {
		switch p.irqRaised {
		case irqNone:
			if nmiReq {
				p.irqRaised = irqNMI
				p.nmiLine.Acknowledge()
			} else {
				p.irqRaised = irqIRQ
			}
		case irqIRQ:
			if nmiReq {
				p.irqRaised = irqNMI
				p.nmiLine.Acknowledge()
			}
		}
	}

	switch {
	case p.opTick == 1:
		p.op = p.bus.Read(p.PC)
		p.opDone = false
		p.addrDone = false
		if p.irqRaised == irqNone || p.skipInterrupt {
			p.PC++
			p.runningInterrupt = false
		}
		if p.irqRaised != irqNone && !p.skipInterrupt {
			p.runningInterrupt = true
		}
		return nil
	case p.opTick == 2:
		// Every instruction fetches the byte after the opcode even if it
		// turns out not to be needed; some addressing modes require it,
		// and real hardware performs the read regardless.
		p.opVal = p.bus.Read(p.PC)
		p.prevSkipInterrupt = false
		if p.skipInterrupt {
			p.skipInterrupt = false
			p.prevSkipInterrupt = true
		}
	case p.opTick > 8:
		p.opDone = true
		return InvalidCPUState{fmt.Sprintf("opTick %d too large (> 8)", p.opTick)}
	}

	var err error
	if p.runningInterrupt {
		addr := IRQVector
		if p.irqRaised == irqNMI {
			addr = NMIVector
		}
		p.opDone, err = p.runInterrupt(addr, true)
	} else {
		p.opDone, err = p.processOpcode()
	}

	if p.halted {
		p.haltOpcode = p.op
		p.opDone = true
		return HaltOpcode{p.op}
	}
	if err != nil {
		p.haltOpcode = p.op
		p.halted = true
		p.opDone = true
		return err
	}
	if p.opDone {
		p.opTick = 0
		if p.runningInterrupt {
			p.irqRaised = irqNone
		}
		p.runningInterrupt = false
	}
	return nil
}

// TickDone marks the current cycle as fully processed, required before the
// next Tick call.
func (p *Chip) TickDone() {
	p.tickDone = true
}

// InstructionDone reports whether the most recent Tick completed the
// in-flight instruction.
func (p *Chip) InstructionDone() bool {
	return p.opDone
}

func (p *Chip) zeroCheck(reg uint8) {
	p.P &^= PZero
	if reg == 0 {
		p.P |= PZero
	}
}

func (p *Chip) negativeCheck(reg uint8) {
	p.P &^= PNegative
	if reg&PNegative == PNegative {
		p.P |= PNegative
	}
}

func (p *Chip) carryCheck(res uint16) {
	p.P &^= PCarry
	if res >= 0x100 {
		p.P |= PCarry
	}
}

// overflowCheck sets V when the two operands' sign bits agree but differ
// from the result's sign bit: http://www.righto.com/2012/12/the-6502-overflow-flag-explained.html
func (p *Chip) overflowCheck(reg, arg, res uint8) {
	p.P &^= POverflow
	if (reg^res)&(arg^res)&0x80 != 0 {
		p.P |= POverflow
	}
}

func (p *Chip) pushStack(val uint8) {
	p.bus.Write(0x0100+uint16(p.S), val)
	p.S--
}

func (p *Chip) popStack() uint8 {
	p.S++
	return p.bus.Read(0x0100 + uint16(p.S))
}

// branchNOP accounts for the second (and final) cycle of a branch that was
// not taken.
func (p *Chip) branchNOP() (bool, error) {
	if p.opTick <= 1 || p.opTick > 3 {
		return true, InvalidCPUState{fmt.Sprintf("branchNOP invalid opTick %d", p.opTick)}
	}
	p.PC++
	return true, nil
}

// performBranch computes the branch target and the extra tick(s) a taken
// branch costs over a not-taken one (spec.md §4.4 Branches).
func (p *Chip) performBranch() (bool, error) {
	switch {
	case p.opTick <= 1 || p.opTick > 4:
		return true, InvalidCPUState{fmt.Sprintf("performBranch invalid opTick %d", p.opTick)}
	case p.opTick == 2:
		p.PC++
		return false, nil
	case p.opTick == 3:
		// A taken branch defers interrupt servicing past the next opcode
		// fetch, unless the previous instruction already deferred it, so
		// back-to-back branches cannot hold an interrupt off indefinitely.
		if !p.prevSkipInterrupt {
			p.skipInterrupt = true
		}
		p.opAddr = p.PC
		p.PC = (p.PC & 0xFF00) + uint16(uint8(p.PC&0x00FF)+p.opVal)
		_ = p.bus.Read(p.PC)
		if p.PC == p.opAddr+uint16(int16(int8(p.opVal))) {
			return true, nil
		}
		return false, nil
	}
	// case p.opTick == 4: page was crossed, fix up PC and re-fetch.
	p.PC = p.opAddr + uint16(int16(int8(p.opVal)))
	_ = p.bus.Read(p.PC)
	return true, nil
}

// runInterrupt runs the shared 7-cycle NMI/IRQ/BRK push-and-vector
// sequence (Reset has its own sequence). addr selects which vector to load PC from; irq distinguishes a
// hardware interrupt (B=0 in the pushed P) from BRK (B=1, handled by the
// caller setting irq=false only for BRK's PC++ semantics).
func (p *Chip) runInterrupt(addr uint16, irq bool) (bool, error) {
	switch {
	case p.opTick < 1 || p.opTick > 7:
		return true, InvalidCPUState{fmt.Sprintf("runInterrupt invalid opTick %d", p.opTick)}
	case p.opTick == 2:
		if !irq {
			// BRK: PC already points past the opcode; also skip the
			// padding/signature byte.
			p.PC++
		}
		return false, nil
	case p.opTick == 3:
		p.pushStack(uint8(p.PC >> 8))
		return false, nil
	case p.opTick == 4:
		p.pushStack(uint8(p.PC & 0xFF))
		return false, nil
	case p.opTick == 5:
		push := p.P | PS1
		push |= PBreak
		if irq {
			push &^= PBreak
		}
		p.P |= PInterrupt
		p.pushStack(push)
		return false, nil
	case p.opTick == 6:
		p.opVal = p.bus.Read(addr)
		return false, nil
	}
	// case p.opTick == 7:
	p.PC = (uint16(p.bus.Read(addr+1)) << 8) + uint16(p.opVal)
	if irq && !p.prevSkipInterrupt {
		p.skipInterrupt = true
	}
	return true, nil
}
