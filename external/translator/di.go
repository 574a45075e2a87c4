package translator

import (
	"context"

	"github.com/foxseedlab/multilingo/internal/config"
	"github.com/foxseedlab/multilingo/internal/translator"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (translator.Translator, error) {
		c := do.MustInvoke[*config.Config](i)
		t, err := NewGoogleTranslator(context.Background(), GoogleTranslateConfig{
			CredentialsJSON: c.GoogleCloudCredentialsJSON,
		})
		if err != nil {
			return nil, err
		}
		return t, nil
	})
}
