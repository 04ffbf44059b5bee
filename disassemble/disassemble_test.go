package disassemble

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type flatReader [65536]uint8

func (f *flatReader) Peek(addr uint16) uint8 { return f[addr] }

func TestStepDecodesDocumentedOpcodes(t *testing.T) {
	tests := []struct {
		name   string
		bytes  []uint8
		want   string
		count  int
	}{
		{"LDA immediate", []uint8{0xA9, 0x42}, "LDA #42", 2},
		{"JMP absolute", []uint8{0x4C, 0x00, 0x90}, "JMP 9000", 3},
		{"JMP indirect", []uint8{0x6C, 0xFF, 0x80}, "JMP (80FF)", 3},
		{"implied TAX", []uint8{0xAA}, "TAX", 1},
		{"BNE relative", []uint8{0xD0, 0x02}, "BNE 02", 2},
		{"illegal opcode", []uint8{0x02}, "ILL", 2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var r flatReader
			copy(r[0x8000:], tc.bytes)
			out, count := Step(0x8000, &r)
			assert.Equal(t, tc.count, count)
			assert.Contains(t, out, tc.want)
			assert.True(t, strings.HasPrefix(out, "8000 "))
		})
	}
}
