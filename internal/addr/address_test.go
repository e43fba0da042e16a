package addr

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_SegOffRoundTrip_Property(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		seg := uint16(r.Intn(1 << 16))
		off := uint16(r.Intn(1 << 16))

		literal := fmt.Sprintf("%04X:%04X", seg, off)
		a, err := Parse(literal)
		require.NoError(t, err)
		assert.Equal(t, (uint32(seg)<<4)+uint32(off), a.Linear)
	}
}

func TestParse_LinearRoundTrip_Property(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	for i := 0; i < 200; i++ {
		linear := uint32(r.Intn(1 << 24))

		a := FromLinear(linear)
		assert.Equal(t, uint16((linear>>4)&0xFFFF), a.Segment)
		assert.Equal(t, uint16(linear&0xF), a.Offset)
		assert.Equal(t, linear, a.Linear)
	}
}

func TestParse_HexLinearLiteral(t *testing.T) {
	a, err := Parse("0xB8000")
	require.NoError(t, err)
	assert.Equal(t, uint32(0xB8000), a.Linear)
}

func TestParse_DecimalLinearLiteral(t *testing.T) {
	a, err := Parse("753664")
	require.NoError(t, err)
	assert.Equal(t, uint32(753664), a.Linear)
}

func TestParse_RejectsEmpty(t *testing.T) {
	_, err := Parse("")
	assert.Error(t, err)
}

func TestParse_RejectsMalformedSegOff(t *testing.T) {
	_, err := Parse("ZZZZ:0000")
	assert.Error(t, err)
}

func TestAddress_String(t *testing.T) {
	a := FromSegOff(0xB800, 0x0010)
	assert.Equal(t, "B800:0010", a.String())
}
