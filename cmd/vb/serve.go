package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"veribond/internal/app"
	"veribond/internal/notify"
	"veribond/internal/server"
)

func serveCmd() *cobra.Command {
	var (
		addr, basePath string
		localActor     bool
		devLogin       bool
		keeperInterval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return withRuntime(ctx, func(ctx context.Context, rt *app.Runtime) error {
				authCfg := server.AuthConfig{
					JWTSecret:        viper.GetString("jwt-secret"),
					AllowActorHeader: localActor,
					DevLogin:         devLogin,
					Logger:           rt.Logger,
				}
				if authCfg.JWTSecret == "" && (devLogin || !localActor) {
					return fmt.Errorf("VERIBOND_JWT_SECRET is required for bearer auth")
				}
				handler, err := server.New(server.Config{
					Engine:   rt.Engine,
					Sim:      rt.Sim,
					Logs:     rt.Logs,
					BasePath: basePath,
					Auth:     authCfg,
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

				g, ctx := errgroup.WithContext(ctx)
				g.Go(func() error {
					rt.Logger.Info("serving ledger API", "addr", addr, "base_path", basePath)
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				})
				g.Go(func() error {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return srv.Shutdown(shutdownCtx)
				})
				if d := notify.New(rt.Engine.Repo, rt.Config.Webhooks, rt.Logger); d != nil {
					g.Go(func() error {
						d.Run(ctx)
						return nil
					})
				}
				if keeperInterval > 0 {
					g.Go(func() error {
						runServerKeeper(ctx, rt, keeperInterval)
						return nil
					})
				}
				fmt.Printf("Serving VeriBond API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at %s/docs, metrics at /metrics)\n",
					addr, basePath, basePath, basePath)
				return g.Wait()
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&localActor, "trust-actor-header", false, "accept X-Actor-Id without credentials (local use only)")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "expose POST /auth/dev/login")
	cmd.Flags().DurationVar(&keeperInterval, "keeper-interval", 0, "run the keeper in-process at this interval (0 disables)")
	cmd.Flags().String("jwt-secret", "", "HS256 secret for bearer tokens (env VERIBOND_JWT_SECRET)")
	_ = viper.BindPFlag("jwt-secret", cmd.Flags().Lookup("jwt-secret"))
	return cmd
}

// runServerKeeper settles expired assertions and resolves due claims until
// ctx is done. Pass failures are logged and retried next tick.
func runServerKeeper(ctx context.Context, rt *app.Runtime, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	log := rt.Logger.With("component", "keeper")
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		if _, err := rt.Engine.SettleExpiredAssertions(ctx, rt.Config.Keeper.Batch, "keeper"); err != nil {
			log.Error("settle assertions", "error", err)
		}
		res, err := rt.Engine.ResolveDue(ctx, rt.Config.Keeper.Batch, rt.Config.Keeper.Workers, "keeper")
		if err != nil {
			log.Error("resolve due", "error", err)
			continue
		}
		if len(res) > 0 {
			log.Info("keeper pass", "claims", len(res))
		}
	}
}
