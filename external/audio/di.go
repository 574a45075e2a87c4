package audio

import (
	"github.com/foxseedlab/multilingo/internal/audio"
	"github.com/foxseedlab/multilingo/internal/config"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (audio.DecoderFactory, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return NewDecoderFactory(cfg.AudioCodec)
	})
}

// NewDecoderFactory fails early when the codec cannot be decoded by this build.
func NewDecoderFactory(codec string) (audio.DecoderFactory, error) {
	switch codec {
	case config.AudioCodecOpus:
		dec, err := NewOpusDecoder()
		if err != nil {
			return nil, err
		}
		dec.Close()
		return NewOpusDecoder, nil
	default:
		return func() (audio.Decoder, error) {
			return NewPCM16Decoder(), nil
		}, nil
	}
}
