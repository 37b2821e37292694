package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jobboard/api/internal/app"
	"jobboard/api/internal/authpw"
	"jobboard/api/internal/export"
	"jobboard/api/internal/gitrepo"
	"jobboard/api/internal/metrics"
	"jobboard/api/internal/search"
	"jobboard/api/internal/session"
	"jobboard/api/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := start(ctx)
		if err != nil {
			return err
		}
		defer rt.close()
		cfg, log := rt.cfg, rt.log

		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Addr = addr
		}
		if err := os.MkdirAll(cfg.ReposDir, 0o755); err != nil {
			return err
		}

		dataStore := store.NewPostgresStore(rt.db)

		checks := []func(context.Context) error{rt.db.PingContext}
		var revoked session.Store
		if strings.TrimSpace(cfg.RedisURL) != "" {
			redisStore, err := session.NewRedisStore(cfg.RedisURL)
			if err != nil {
				return err
			}
			log.Info("using redis for token revocation")
			revoked = redisStore
			checks = append(checks, redisStore.Ping)
		} else {
			log.Warn("REDIS_URL not set; revoked tokens are kept in memory")
			revoked = session.NewMemoryStore()
		}
		defer revoked.Close()

		// A nil *Meili must not reach search.NewService as a non-nil Index.
		var index search.Index
		if strings.TrimSpace(cfg.MeiliURL) != "" {
			meili := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log.Named("search"))
			defer meili.Close()
			index = meili
		}
		searchService := search.NewService(index, dataStore, log.Named("search"))
		if err := searchService.Reindex(ctx); err != nil {
			log.Warn("initial search reindex failed", zap.Error(err))
		}

		exporter := export.NewService(dataStore, export.NewChromePDF(), export.Options{
			SiteURL: cfg.SiteURL,
			Locales: cfg.SiteLocales,
			Log:     log.Named("export"),
		})

		service := app.NewService(cfg, app.Deps{
			Store:     dataStore,
			Auth:      authpw.NewService(dataStore),
			Revoked:   revoked,
			Search:    searchService,
			Revisions: gitrepo.New(cfg.ReposDir),
			Export:    exporter,
			Metrics:   metrics.New(),
			Log:       log,
			Ping: func(ctx context.Context) error {
				for _, check := range checks {
					if err := check(ctx); err != nil {
						return err
					}
				}
				return nil
			},
		})

		server := &http.Server{
			Addr:              cfg.Addr,
			Handler:           app.NewHTTPServer(service, cfg.CORSOrigin).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		serverErrors := make(chan error, 1)
		go func() {
			log.Info("jobboard api listening", zap.String("addr", cfg.Addr))
			serverErrors <- server.ListenAndServe()
		}()

		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
			log.Info("shutting down")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown did not complete", zap.Error(err))
			return server.Close()
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address, overrides API_ADDR")
}
