package session

import (
	"github.com/foxseedlab/multilingo/internal/config"
	"github.com/foxseedlab/multilingo/internal/presence"
	"github.com/foxseedlab/multilingo/internal/registry"
	"github.com/foxseedlab/multilingo/internal/repository"
	"github.com/foxseedlab/multilingo/internal/webhook"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Manager, error) {
		cfg := do.MustInvoke[*config.Config](i)
		repo := do.MustInvoke[repository.Repository](i)
		reg := do.MustInvoke[*registry.Registry](i)
		ps := do.MustInvoke[presence.Store](i)
		wh := do.MustInvoke[webhook.Sender](i)
		return NewManager(cfg, repo, reg, ps, wh), nil
	})
}
