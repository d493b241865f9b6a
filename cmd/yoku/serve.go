package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yoku-app/MERIDIA/api"
	"github.com/yoku-app/MERIDIA/config"
	"github.com/yoku-app/MERIDIA/localauth"
	"github.com/yoku-app/MERIDIA/server"
	"github.com/yoku-app/MERIDIA/supabase"
)

var purgeEvery time.Duration

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the sign-up pages and flow API",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the local account database",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cfg.Local.DatabasePath)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := localauth.Migrate(db); err != nil {
			return fmt.Errorf("migrate %s: %w", cfg.Local.DatabasePath, err)
		}
		logger.Info("database migrated", zap.String("path", cfg.Local.DatabasePath))
		return nil
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete expired sessions, codes and OAuth states",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cfg.Local.DatabasePath)
		if err != nil {
			return err
		}
		defer db.Close()
		store, err := localauth.New(db, localauth.Config{}, localauth.WithLogger(logger))
		if err != nil {
			return err
		}
		return store.Purge()
	},
}

func init() {
	serveCmd.Flags().DurationVar(&purgeEvery, "purge-every", time.Minute, "interval between sweeps of idle flows and expired records")
}

func openDB(path string) (localauth.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return localauth.DB{}, err
		}
	}
	return localauth.Open(path)
}

func providers(c *config.Config) []string {
	names := make([]string, 0, len(c.Auth.Social))
	for name := range c.Auth.Social {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		backend server.Backend
		store   *localauth.Store
	)
	switch cfg.Auth.Mode {
	case config.AuthLocal:
		db, err := openDB(cfg.Local.DatabasePath)
		if err != nil {
			return err
		}
		defer db.Close()
		lc, err := cfg.LocalAuth()
		if err != nil {
			return err
		}
		store, err = localauth.New(db, lc, localauth.WithLogger(logger.Named("localauth")))
		if err != nil {
			return err
		}
		backend = server.Local{Store: store}
	case config.AuthSupabase:
		hc := &http.Client{Timeout: cfg.APITimeout()}
		client := supabase.New(cfg.Supabase.URL, cfg.Supabase.AnonKey,
			supabase.WithStorageURL(cfg.Supabase.StorageURL),
			supabase.WithHTTPClient(hc),
			supabase.WithLogger(logger.Named("supabase")),
		)
		apiClient := api.New(cfg.API.BaseURL, nil, api.WithHTTPClient(hc), api.WithLogger(logger.Named("api")))
		backend = server.NewHosted(client, apiClient, cfg.CallbackURL())
	}

	srv := server.New(backend,
		server.WithLogger(logger),
		server.WithFlowTTL(cfg.FlowTTL()),
		server.WithProviders(providers(cfg)...),
		server.WithSecureCookies(strings.HasPrefix(cfg.Server.HostedURL, "https://")),
	)
	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", httpSrv.Addr), zap.String("auth", cfg.Auth.Mode))
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error { return srv.PurgeEvery(gctx, purgeEvery) })
	if store != nil {
		g.Go(func() error {
			t := time.NewTicker(purgeEvery)
			defer t.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-t.C:
					if err := store.Purge(); err != nil {
						logger.Warn("purge failed", zap.Error(err))
					}
				}
			}
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
		defer cancel()
		logger.Info("shutting down")
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
