package main

import (
	"context"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"libraryhub/internal/auth"
	"libraryhub/internal/server"
	"libraryhub/internal/telemetry"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			if err := cfg.RequireSecret(); err != nil {
				return err
			}

			shutdown, err := telemetry.Setup(ctx, cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.ServiceName, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := shutdown(context.WithoutCancel(ctx)); err != nil {
					logger.Warn("telemetry shutdown", "error", err)
				}
			}()

			st, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			if migrate {
				if err := st.Migrate(ctx); err != nil {
					return err
				}
			}

			tokens, err := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
			if err != nil {
				return err
			}

			loginLimit := rate.Limit(cfg.Auth.LoginRatePerMinute / 60)
			svcs := server.NewServices(st, tokens, logger, auth.WithLoginLimit(loginLimit, cfg.Auth.LoginBurst))
			router := server.NewRouter(svcs,
				server.WithRequestTimeout(cfg.HTTP.RequestTimeout),
				server.WithLogger(logger.With("component", "http")),
			)

			return server.New(cfg.HTTP.Addr(), router, logger).Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "apply the schema before serving")

	return cmd
}
