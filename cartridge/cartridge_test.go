package cartridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildINES(prgBanks, chrBanks int, trainer bool) []byte {
	flags6 := uint8(0)
	if trainer {
		flags6 |= flags6TrainerBit
	}
	h := []byte{'N', 'E', 'S', 0x1A, byte(prgBanks), byte(chrBanks), flags6, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	var out []byte
	out = append(out, h...)
	if trainer {
		out = append(out, make([]byte, 512)...)
	}
	prg := make([]byte, prgBanks*prgBankSize)
	for i := range prg {
		prg[i] = byte(i)
	}
	out = append(out, prg...)
	out = append(out, make([]byte, chrBanks*chrBankSize)...)
	return out
}

func TestLoadRejectsBadMagic(t *testing.T) {
	data := buildINES(1, 1, false)
	data[0] = 'X'
	_, err := Load(data)
	require.Error(t, err)
	assert.IsType(t, HeaderError{}, err)
}

func TestLoadRejectsTruncatedFile(t *testing.T) {
	data := buildINES(2, 1, false)
	data = data[:len(data)-10]
	_, err := Load(data)
	require.Error(t, err)
	assert.IsType(t, SizeError{}, err)
}

func TestLoadParsesHeaderAndBanks(t *testing.T) {
	data := buildINES(2, 1, true)
	rom, err := Load(data)
	require.NoError(t, err)
	assert.EqualValues(t, 2, rom.Header.PRGBanks)
	assert.EqualValues(t, 1, rom.Header.CHRBanks)
	assert.True(t, rom.Header.Trainer)
	assert.Len(t, rom.PRG, 2*prgBankSize)
	assert.Len(t, rom.CHR, chrBankSize)
	assert.Equal(t, uint8(0), rom.PRG[0])
	assert.Equal(t, uint8(1), rom.PRG[1])
}

func TestNROM16KiBMirrors(t *testing.T) {
	data := buildINES(1, 0, false)
	rom, err := Load(data)
	require.NoError(t, err)
	m := NewNROM(rom)
	assert.Equal(t, m.Read(0x8000), m.Read(0xC000))
	assert.Equal(t, m.Read(0xBFFF), m.Read(0xFFFF))
}

func TestNROM32KiBDistinctBanks(t *testing.T) {
	data := buildINES(2, 0, false)
	rom, err := Load(data)
	require.NoError(t, err)
	m := NewNROM(rom)
	assert.Equal(t, uint8(0), m.Read(0x8000))
	assert.Equal(t, uint8(0), m.Read(0xC000))
	assert.NotEqual(t, m.Read(0x8001), m.Read(0xFFFF))
}

func TestNROMWriteIgnored(t *testing.T) {
	data := buildINES(1, 0, false)
	rom, err := Load(data)
	require.NoError(t, err)
	m := NewNROM(rom)
	before := m.Read(0x8000)
	m.Write(0x8000, 0xFF)
	assert.Equal(t, before, m.Read(0x8000))
}
