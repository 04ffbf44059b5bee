// Package bus implements the 16 bit address space the CPU core reaches
// memory-mapped devices through: internal RAM and its mirrors, the PPU/APU
// register windows, and cartridge space routed to a Mapper. The core never
// knows which device owns an address; it only calls Read/Write.
package bus

import (
	"math/rand"
	"time"
)

const (
	ramSize   = 0x0800
	ramMirror = 0x1FFF // $0000-$1FFF all alias the 2KiB internal RAM.
	ramMask   = uint16(ramSize - 1)

	ppuMin    = 0x2000
	ppuMax    = 0x3FFF
	ppuMirror = 0x0007 // PPU registers repeat every 8 bytes.

	apuIoMin = 0x4000
	apuIoMax = 0x4017

	cartMin = 0x4020
)

// Mapper is the interface the bus routes cartridge-space (0x4020-0xFFFF)
// accesses through. ROM loading and bank switching live outside the core;
// the bus only needs this minimal contract.
type Mapper interface {
	// Read returns the byte mapped to addr. addr is always in
	// [0x4020, 0xFFFF].
	Read(addr uint16) uint8
	// Write updates (or, for ROM, ignores) the byte mapped to addr.
	Write(addr uint16, val uint8)
}

// openBusMapper is installed when no cartridge is attached: reads return 0
// and writes are ignored. Unlike the $4018-$401F gap, it does not return the
// last value seen on the bus.
type openBusMapper struct{}

func (openBusMapper) Read(uint16) uint8     { return 0 }
func (openBusMapper) Write(uint16, uint8)   {}

// stubRegs models a memory-mapped register window (PPU or APU/IO) whose
// chip behavior is out of scope: writes are latched as the open-bus value
// and reads return it, which is close enough to real open-bus behavior for
// the addressing-mode and cycle-accounting contract the core depends on.
type stubRegs struct {
	latch uint8
}

func (s *stubRegs) read() uint8 {
	return s.latch
}

func (s *stubRegs) write(val uint8) {
	s.latch = val
}

// Bus is the concrete NES-shaped bus described in spec.md §3/§4.1. It owns
// 2KiB of internal RAM, stub PPU/APU register windows, a pluggable
// cartridge Mapper, and the monotonic cycle accountant described in
// spec.md §4.2.
type Bus struct {
	ram    [ramSize]uint8
	ppu    stubRegs
	apuIO  stubRegs
	mapper Mapper

	// ticks is the cycle accountant: advanced by exactly one on every
	// Read/Write and by the CPU directly (via Tick) on internal "dead"
	// cycles that don't touch the bus.
	ticks uint64

	// databus is the last value that crossed the bus, for components
	// that depend on transient open-bus state (unused address ranges,
	// write-only registers read back).
	databus uint8
}

// New creates a Bus with no cartridge attached (cartridge space reads as
// 0) and powers it on.
func New() *Bus {
	b := &Bus{mapper: openBusMapper{}}
	b.PowerOn()
	return b
}

// NewWithMapper creates a Bus routing cartridge space (0x4020-0xFFFF) to m.
func NewWithMapper(m Mapper) *Bus {
	b := &Bus{mapper: m}
	b.PowerOn()
	return b
}

// SetMapper attaches (or replaces) the cartridge mapper.
func (b *Bus) SetMapper(m Mapper) {
	if m == nil {
		m = openBusMapper{}
	}
	b.mapper = m
}

// PowerOn randomizes RAM contents, matching real hardware where RAM state
// on power-up is undefined (spec.md §3 Lifecycle).
func (b *Bus) PowerOn() {
	rand.Seed(time.Now().UnixNano())
	for i := range b.ram {
		b.ram[i] = uint8(rand.Intn(256))
	}
}

// Read returns the byte at addr after applying the mirroring rules of
// spec.md §3, and advances the cycle accountant by one tick.
func (b *Bus) Read(addr uint16) uint8 {
	b.ticks++
	return b.peek(addr)
}

// Write stores val at addr after applying the mirroring rules of
// spec.md §3, and advances the cycle accountant by one tick.
func (b *Bus) Write(addr uint16, val uint8) {
	b.ticks++
	b.poke(addr, val)
}

// Peek is a non-ticking read for harness/debugger inspection (spec.md §6:
// "pass-throughs for harness inspection (do not tick)").
func (b *Bus) Peek(addr uint16) uint8 {
	return b.peek(addr)
}

// Poke is a non-ticking write, the Write counterpart to Peek.
func (b *Bus) Poke(addr uint16, val uint8) {
	b.poke(addr, val)
}

// Tick advances the cycle accountant by one without touching any device.
// The CPU calls this for internal "dead" cycles prescribed by the 6502's
// micro-sequence that don't perform a bus access.
func (b *Bus) Tick() {
	b.ticks++
}

// Cycles returns the current value of the monotonic cycle accountant.
func (b *Bus) Cycles() uint64 {
	return b.ticks
}

// DatabusVal returns the last value observed crossing the bus, mirroring
// the teacher's memory.Bank.DatabusVal contract for components that model
// open-bus reads.
func (b *Bus) DatabusVal() uint8 {
	return b.databus
}

func (b *Bus) peek(addr uint16) uint8 {
	switch {
	case addr <= ramMirror:
		val := b.ram[addr&ramMask]
		b.databus = val
		return val
	case addr >= ppuMin && addr <= ppuMax:
		val := b.ppu.read()
		b.databus = val
		return val
	case addr >= apuIoMin && addr <= apuIoMax:
		val := b.apuIO.read()
		b.databus = val
		return val
	case addr < cartMin:
		// $4018-$401F: unmapped APU/IO test registers, neither RAM, PPU,
		// APU/IO, nor cartridge space. Real hardware leaves these as open
		// bus; don't route them into the mapper.
		return b.databus
	default:
		// cartMin..0xFFFF
		val := b.mapper.Read(addr)
		b.databus = val
		return val
	}
}

func (b *Bus) poke(addr uint16, val uint8) {
	b.databus = val
	switch {
	case addr <= ramMirror:
		b.ram[addr&ramMask] = val
	case addr >= ppuMin && addr <= ppuMax:
		b.ppu.write(val)
	case addr >= apuIoMin && addr <= apuIoMax:
		b.apuIO.write(val)
	case addr < cartMin:
		// $4018-$401F: open bus, write has no effect beyond the databus
		// latch already updated above.
	default:
		b.mapper.Write(addr, val)
	}
}
