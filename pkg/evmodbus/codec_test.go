package evmodbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeF32ABCD(t *testing.T) {
	// 1.0f32 big-endian is 0x3F80_0000
	v := DecodeF32([]uint16{0x3F80, 0x0000}, ABCD)
	require.True(t, v.Ok)
	assert.InDelta(t, 1.0, v.Value, 1e-6)
}

func TestDecodeF32CDAB(t *testing.T) {
	v := DecodeF32([]uint16{0x0000, 0x3F80}, CDAB)
	require.True(t, v.Ok)
	assert.InDelta(t, 1.0, v.Value, 1e-6)
}

func TestDecodeF32NonFiniteIsMissing(t *testing.T) {
	// 0x7FC00000 is a quiet NaN
	v := DecodeF32([]uint16{0x7FC0, 0x0000}, ABCD)
	assert.False(t, v.Ok)
}

func TestDecodeF32ShortInput(t *testing.T) {
	v := DecodeF32([]uint16{0x3F80}, ABCD)
	assert.False(t, v.Ok)
}

func TestEncodeDecodeF32RoundTrip(t *testing.T) {
	for _, order := range []WordOrder{ABCD, CDAB} {
		for _, w := range []float32{0, 1, -1, 3.14159, 230.5, 32.0} {
			words := EncodeF32(w, order)
			got := DecodeF32(words, order)
			require.True(t, got.Ok)
			assert.InDelta(t, w, got.Value, 1e-4)
		}
	}
}

func TestDecodeF64(t *testing.T) {
	v := DecodeF64([]uint16{0x3FF0, 0x0000, 0x0000, 0x0000}, ABCD)
	require.True(t, v.Ok)
	assert.InDelta(t, 1.0, v.Value, 1e-9)
}

func TestEncodeDecodeF64RoundTrip(t *testing.T) {
	for _, w := range []float64{0, 1, -1, 12345.6789} {
		words := EncodeF64(w, ABCD)
		got := DecodeF64(words, ABCD)
		require.True(t, got.Ok)
		assert.InDelta(t, w, got.Value, 1e-9)
	}
}

func TestDecodeASCII(t *testing.T) {
	assert.Equal(t, "ABC", DecodeASCII([]uint16{0x4142, 0x4300}))
	assert.Equal(t, "AB", DecodeASCII([]uint16{0x4142}))
}

func TestDecodeASCIITrimsTrailingWhitespace(t *testing.T) {
	assert.Equal(t, "AB", DecodeASCII([]uint16{0x4142, 0x2020}))
}

func TestDecodeEncodeASCIIRoundTrip(t *testing.T) {
	s := "Alfen Eve"
	words := EncodeASCII(s)
	assert.Equal(t, s, DecodeASCII(words))
}

func TestDecodeASCIIInvalidBytesBecomeQuestionMark(t *testing.T) {
	got := DecodeASCII([]uint16{0x01FF})
	assert.Equal(t, "??", got)
}
