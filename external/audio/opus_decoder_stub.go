//go:build !opus

package audio

import (
	"errors"

	"github.com/foxseedlab/multilingo/internal/audio"
)

var ErrOpusUnavailable = errors.New("opus support not compiled in; rebuild with -tags opus")

func NewOpusDecoder() (audio.Decoder, error) {
	return nil, ErrOpusUnavailable
}
