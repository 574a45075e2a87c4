package server

import (
	"github.com/foxseedlab/multilingo/internal/config"
	"github.com/foxseedlab/multilingo/internal/control"
	"github.com/foxseedlab/multilingo/internal/domain"
	"github.com/foxseedlab/multilingo/internal/pipeline"
	"github.com/foxseedlab/multilingo/internal/registry"
	"github.com/foxseedlab/multilingo/internal/repository"
	"github.com/foxseedlab/multilingo/internal/session"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Server, error) {
		cfg := do.MustInvoke[*config.Config](i)
		sessions := do.MustInvoke[*session.Manager](i)
		processor := do.MustInvoke[*pipeline.Processor](i)
		router := do.MustInvoke[*control.Router](i)
		repo := do.MustInvoke[repository.Repository](i)
		reg := do.MustInvoke[*registry.Registry](i)

		streams := func(roomID domain.RoomID, userID domain.UserID) (AudioStream, error) {
			s, err := processor.NewStream(roomID, userID)
			if err != nil {
				return nil, err
			}
			return s, nil
		}
		return NewServer(cfg, NewHandler(cfg, sessions, streams, router, repo), reg), nil
	})
}
