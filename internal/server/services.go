package server

import (
	"log/slog"

	"libraryhub/internal/auth"
	"libraryhub/internal/catalog"
	"libraryhub/internal/circulation"
	"libraryhub/internal/membership"
	"libraryhub/internal/reports"
	"libraryhub/internal/store"
)

// NewServices wires every manager to the shared store handle.
func NewServices(st *store.Store, tokens *auth.Tokens, logger *slog.Logger, authOpts ...auth.Option) Services {
	component := func(name string) *slog.Logger {
		return logger.With("component", name)
	}

	lending := circulation.NewService(st, circulation.WithLogger(component("circulation")))

	return Services{
		Store:   st,
		Auth:    auth.NewService(st, tokens, append([]auth.Option{auth.WithLogger(component("auth"))}, authOpts...)...),
		Catalog: catalog.NewService(st, catalog.WithLogger(component("catalog"))),
		Members: membership.NewService(st, membership.WithLogger(component("membership"))),
		Lending: lending,
		Reports: reports.NewService(st),
	}
}
