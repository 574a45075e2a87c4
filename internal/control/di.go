package control

import (
	"github.com/foxseedlab/multilingo/internal/session"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Router, error) {
		return NewRouter(do.MustInvoke[*session.Manager](i)), nil
	})
}
