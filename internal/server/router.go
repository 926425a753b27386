// Package server assembles the HTTP routing table and runs the listener.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"libraryhub/internal/auth"
	"libraryhub/internal/catalog"
	"libraryhub/internal/circulation"
	"libraryhub/internal/httpx"
	"libraryhub/internal/logging"
	"libraryhub/internal/membership"
	"libraryhub/internal/reports"
	"libraryhub/internal/store"
)

const defaultRequestTimeout = 15 * time.Second

// Services are the managers the routing table dispatches to.
type Services struct {
	Store   *store.Store
	Auth    auth.Service
	Catalog catalog.Service
	Members membership.Service
	Lending circulation.Service
	Reports *reports.Service
}

type routerConfig struct {
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures the router.
type Option func(*routerConfig)

// WithRequestTimeout bounds how long a single request may run.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *routerConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *routerConfig) {
		c.logger = logger
	}
}

// NewRouter builds the routing table. Every route except /login and
// /healthz requires a bearer token.
func NewRouter(svcs Services, opts ...Option) http.Handler {
	cfg := routerConfig{timeout: defaultRequestTimeout, logger: logging.Discard()}
	for _, opt := range opts {
		opt(&cfg)
	}

	authHandler := auth.NewHandler(svcs.Auth)
	bookHandler := catalog.NewHandler(svcs.Catalog)
	memberHandler := membership.NewHandler(svcs.Members)
	lendingHandler := circulation.NewHandler(svcs.Lending)
	reportHandler := reports.NewHandler(svcs.Reports)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  slog.NewLogLogger(cfg.logger.Handler(), slog.LevelInfo),
		NoColor: true,
	}))
	r.Use(middleware.Recoverer)
	r.Use(httpx.WithLogger(cfg.logger))
	r.Use(middleware.Timeout(cfg.timeout))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusNotFound, httpx.ErrorBody{Error: "route_not_found", Message: "no such route"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusMethodNotAllowed, httpx.ErrorBody{Error: "method_not_allowed", Message: "method not allowed"})
	})

	r.Get("/healthz", healthz(svcs.Store))
	r.Post("/login", authHandler.HandleLogin)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireLibrarian(svcs.Auth))

		r.Get("/profile", authHandler.HandleProfile)

		r.Route("/books", func(r chi.Router) {
			r.Get("/", bookHandler.HandleListBooks)
			r.Post("/", bookHandler.HandleCreateBook)
			r.Get("/{id}", bookHandler.HandleGetBook)
			r.Patch("/{id}", bookHandler.HandleUpdateBook)
			r.Put("/{id}", bookHandler.HandleUpdateBook)
			r.Delete("/{id}", bookHandler.HandleDeleteBook)
		})

		r.Route("/members", func(r chi.Router) {
			r.Get("/", memberHandler.HandleListMembers)
			r.Post("/", memberHandler.HandleCreateMember)
			r.Get("/{id}", memberHandler.HandleGetMember)
			r.Patch("/{id}", memberHandler.HandleUpdateMember)
			r.Put("/{id}", memberHandler.HandleUpdateMember)
			r.Delete("/{id}", memberHandler.HandleDeleteMember)
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", lendingHandler.HandleListTransactions)
			r.Post("/", lendingHandler.HandleIssue)
			r.Get("/overdue", lendingHandler.HandleListOverdue)
			r.Put("/{id}", lendingHandler.HandleReturn)
		})

		r.Get("/reports/summary", reportHandler.HandleSummary)
	})

	return r
}

func healthz(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := st.DB().PingContext(ctx); err != nil {
			httpx.JSON(w, http.StatusServiceUnavailable, httpx.ErrorBody{Error: "storage", Message: "database unreachable"})
			return
		}
		httpx.JSON(w, http.StatusOK, httpx.MessageBody{Message: "ok"})
	}
}
