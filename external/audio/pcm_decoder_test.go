package audio

import (
	"testing"

	"github.com/foxseedlab/multilingo/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPCM16Decoder(t *testing.T) {
	dec := NewPCM16Decoder()
	in := []byte{1, 2, 3, 4}
	out, err := dec.Decode(in)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	in[0] = 9
	assert.Equal(t, byte(1), out[0], "decoder must not alias the inbound frame")

	_, err = dec.Decode([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrOddPCMLength)
}

func TestSplitPackets(t *testing.T) {
	frame := []byte{0, 2, 0xA, 0xB, 0, 0, 0, 1, 0xC}
	packets, err := splitPackets(frame)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{0xA, 0xB}, {0xC}}, packets)

	packets, err = splitPackets(nil)
	require.NoError(t, err)
	assert.Empty(t, packets)
}

func TestSplitPackets_Truncated(t *testing.T) {
	_, err := splitPackets([]byte{0, 5, 1, 2})
	assert.ErrorIs(t, err, ErrTruncatedPacket)

	_, err = splitPackets([]byte{0, 1, 7, 0})
	assert.ErrorIs(t, err, ErrTruncatedPacket)
}

func TestAppendPCM(t *testing.T) {
	out := appendPCM(nil, []int16{1, -1, 256})
	assert.Equal(t, []byte{1, 0, 0xFF, 0xFF, 0, 1}, out)
}

func TestNewDecoderFactory_PCM(t *testing.T) {
	factory, err := NewDecoderFactory(config.AudioCodecPCM16)
	require.NoError(t, err)
	dec, err := factory()
	require.NoError(t, err)
	_, ok := dec.(PCM16Decoder)
	assert.True(t, ok)
}
