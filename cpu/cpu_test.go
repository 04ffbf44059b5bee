package cpu

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/go-test/deep"
	"github.com/stretchr/testify/require"
)

// testBus is a flat 64KiB RAM implementing the Bus interface, standing in
// for bus.Bus in isolation so cpu tests don't need a cartridge.
type testBus struct {
	mem    [65536]uint8
	cycles uint64
}

func (b *testBus) Read(addr uint16) uint8 {
	b.cycles++
	return b.mem[addr]
}

func (b *testBus) Write(addr uint16, val uint8) {
	b.cycles++
	b.mem[addr] = val
}

func (b *testBus) Peek(addr uint16) uint8      { return b.mem[addr] }
func (b *testBus) Poke(addr uint16, val uint8) { b.mem[addr] = val }
func (b *testBus) Tick()                       { b.cycles++ }
func (b *testBus) Cycles() uint64              { return b.cycles }

func (b *testBus) setVector(addr uint16, target uint16) {
	b.mem[addr] = uint8(target & 0xFF)
	b.mem[addr+1] = uint8(target >> 8)
}

func newChip(t *testing.T, strict bool, fill uint8) (*Chip, *testBus) {
	t.Helper()
	b := &testBus{}
	for i := range b.mem {
		b.mem[i] = fill
	}
	b.setVector(ResetVector, 0x8000)
	b.setVector(IRQVector, 0xF000)
	b.setVector(NMIVector, 0xF100)
	c, err := Init(&ChipDef{Bus: b, Strict: strict})
	require.NoError(t, err)
	b.cycles = 0
	return c, b
}

func TestPowerOnLandsAtResetVector(t *testing.T) {
	c, _ := newChip(t, false, 0xEA)
	require.Equal(t, uint16(0x8000), c.PC)
	require.Equal(t, PInterrupt|PS1, c.P)
}

func TestLDAImmediateSetsFlags(t *testing.T) {
	c, b := newChip(t, false, 0xEA)
	b.mem[0x8000] = 0xA9 // LDA #$00
	b.mem[0x8001] = 0x00
	ticks, err := c.Step()
	require.NoError(t, err)
	require.EqualValues(t, 2, ticks)
	require.Equal(t, uint8(0), c.A)
	require.NotZero(t, c.P&PZero)

	c.PC = 0x8002
	b.mem[0x8002] = 0xA9 // LDA #$80
	b.mem[0x8003] = 0x80
	_, err = c.Step()
	require.NoError(t, err)
	require.Equal(t, uint8(0x80), c.A)
	require.NotZero(t, c.P&PNegative)
}

func TestADCOverflow(t *testing.T) {
	c, b := newChip(t, false, 0xEA)
	c.A = 0x7F
	b.mem[0x8000] = 0x69 // ADC #$01
	b.mem[0x8001] = 0x01
	_, err := c.Step()
	require.NoError(t, err)
	require.Equal(t, uint8(0x80), c.A)
	if diff := deep.Equal(uint8(POverflow|PNegative), c.P&(POverflow|PNegative|PZero|PCarry)); diff != nil {
		t.Fatalf("flags after signed overflow: %v\nfull state: %s", diff, spew.Sdump(c))
	}
}

func TestSBCUsesOnesComplement(t *testing.T) {
	c, b := newChip(t, false, 0xEA)
	c.A = 0x00
	c.P |= PCarry // No borrow in.
	b.mem[0x8000] = 0xE9 // SBC #$01
	b.mem[0x8001] = 0x01
	_, err := c.Step()
	require.NoError(t, err)
	require.Equal(t, uint8(0xFF), c.A)
	require.Zero(t, c.P&PCarry) // Borrow occurred.
	require.NotZero(t, c.P&PNegative)
}

func TestASLAccumulatorCarry(t *testing.T) {
	c, b := newChip(t, false, 0xEA)
	c.A = 0x80
	b.mem[0x8000] = 0x0A // ASL A
	_, err := c.Step()
	require.NoError(t, err)
	require.Equal(t, uint8(0), c.A)
	require.NotZero(t, c.P&PCarry)
	require.NotZero(t, c.P&PZero)
}

func TestBranchCycleCounts(t *testing.T) {
	tests := []struct {
		name    string
		startPC uint16
		taken   bool
		offset  uint8
		want    uint64
	}{
		{"not taken", 0x8000, false, 0x10, 2},
		{"taken, no page cross", 0x8000, true, 0x10, 3},
		{"taken, page cross", 0x80F0, true, 0x20, 4},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, b := newChip(t, false, 0xEA)
			c.PC = tc.startPC
			b.mem[tc.startPC] = 0xD0 // BNE
			b.mem[tc.startPC+1] = tc.offset
			if tc.taken {
				c.P &^= PZero
			} else {
				c.P |= PZero
			}
			ticks, err := c.Step()
			require.NoError(t, err)
			require.Equal(t, tc.want, ticks)
		})
	}
}

func TestJMPIndirectPageWrapBug(t *testing.T) {
	c, b := newChip(t, false, 0xEA)
	b.mem[0x8000] = 0x6C // JMP ($30FF)
	b.mem[0x8001] = 0xFF
	b.mem[0x8002] = 0x30
	b.mem[0x30FF] = 0x34 // Low byte of the target, fetched normally.
	b.mem[0x3100] = 0x12 // Correct, unwrapped high byte: must NOT be read.
	b.mem[0x3000] = 0x56 // High byte hardware actually fetches from ($3000).
	_, err := c.Step()
	require.NoError(t, err)
	require.EqualValues(t, 0x5634, c.PC)
}

func TestBRKPushesPCAndPWithBreakSet(t *testing.T) {
	c, b := newChip(t, false, 0xEA)
	b.mem[0x8000] = 0x00 // BRK
	startS := c.S
	_, err := c.Step()
	require.NoError(t, err)
	require.Equal(t, uint16(0xF000), c.PC)
	require.Equal(t, startS-3, c.S)
	pushedP := b.mem[0x0100+uint16(c.S)+1]
	require.NotZero(t, pushedP&PBreak)
	require.NotZero(t, c.P&PInterrupt)
}

func TestIRQGatedByInterruptFlag(t *testing.T) {
	c, b := newChip(t, false, 0xEA)
	c.P |= PInterrupt
	c.SetIRQ(true)
	b.mem[0x8000] = 0xEA // NOP
	_, err := c.Step()
	require.NoError(t, err)
	require.Equal(t, uint16(0x8001), c.PC) // Masked: ran the NOP, not the vector.

	c.P &^= PInterrupt
	_, err = c.Step()
	require.NoError(t, err)
	require.Equal(t, uint16(0xF000), c.PC)
}

func TestNMIIsEdgeTriggeredAndUngated(t *testing.T) {
	c, b := newChip(t, false, 0xEA)
	c.P |= PInterrupt // NMI ignores the I flag.
	c.TriggerNMI()
	b.mem[0x8000] = 0xEA
	_, err := c.Step()
	require.NoError(t, err)
	require.Equal(t, uint16(0xF100), c.PC)

	// Latch cleared by the first service; a second step without a new
	// Trigger runs ordinary code instead of re-vectoring.
	c.PC = 0x8001
	b.mem[0x8001] = 0xEA
	_, err = c.Step()
	require.NoError(t, err)
	require.Equal(t, uint16(0x8002), c.PC)
}

func TestIllegalOpcodePolicy(t *testing.T) {
	c, b := newChip(t, false, 0xEA)
	b.mem[0x8000] = 0x02 // Undocumented/HALT slot.
	ticks, err := c.Step()
	require.NoError(t, err)
	require.EqualValues(t, 2, ticks)
	require.Equal(t, uint16(0x8001), c.PC)

	strict, b2 := newChip(t, true, 0xEA)
	b2.mem[0x8000] = 0x02
	_, err = strict.Step()
	require.Error(t, err)
	require.IsType(t, HaltOpcode{}, err)
}

func TestTraceSnapshotsRegistersAndCycles(t *testing.T) {
	c, b := newChip(t, false, 0xEA)
	c.A, c.X, c.Y, c.S = 0x11, 0x22, 0x33, 0xFD
	b.mem[0x8000] = 0xEA
	_, err := c.Step()
	require.NoError(t, err)
	tr := c.Trace()
	want := TraceRecord{PC: 0x8001, A: 0x11, X: 0x22, Y: 0x33, P: c.P, S: 0xFD, Cycles: b.Cycles()}
	if diff := deep.Equal(want, tr); diff != nil {
		t.Fatalf("Trace() mismatch: %v", diff)
	}
}

func TestRunUntilAdvancesToTarget(t *testing.T) {
	c, b := newChip(t, false, 0xEA) // Field of NOPs.
	err := c.RunUntil(10)
	require.NoError(t, err)
	require.GreaterOrEqual(t, b.Cycles(), uint64(10))
}
