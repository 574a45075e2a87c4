package pipeline

import (
	"github.com/foxseedlab/multilingo/internal/audio"
	"github.com/foxseedlab/multilingo/internal/config"
	"github.com/foxseedlab/multilingo/internal/repository"
	"github.com/foxseedlab/multilingo/internal/session"
	"github.com/foxseedlab/multilingo/internal/transcriber"
	"github.com/foxseedlab/multilingo/internal/translator"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Processor, error) {
		cfg := do.MustInvoke[*config.Config](i)
		decoders := do.MustInvoke[audio.DecoderFactory](i)
		tr := do.MustInvoke[transcriber.Transcriber](i)
		tl := do.MustInvoke[translator.Translator](i)
		repo := do.MustInvoke[repository.Repository](i)
		sessions := do.MustInvoke[*session.Manager](i)
		return NewProcessor(cfg, decoders, tr, tl, repo, sessions), nil
	})
}
