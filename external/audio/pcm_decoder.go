package audio

import (
	"errors"

	"github.com/foxseedlab/multilingo/internal/audio"
)

var ErrOddPCMLength = errors.New("pcm16 frame has odd byte length")

// PCM16Decoder accepts frames that already carry 16 kHz mono
// little-endian LINEAR16 samples.
type PCM16Decoder struct{}

func NewPCM16Decoder() audio.Decoder {
	return PCM16Decoder{}
}

func (PCM16Decoder) Decode(frame []byte) ([]byte, error) {
	if len(frame)%2 != 0 {
		return nil, ErrOddPCMLength
	}
	out := make([]byte, len(frame))
	copy(out, frame)
	return out, nil
}

func (PCM16Decoder) Close() {}
