// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/adrg/xdg"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/betterauth/betterauth/pkg/account"
	"github.com/betterauth/betterauth/pkg/adapter/sqlite"
	"github.com/betterauth/betterauth/pkg/admin"
	"github.com/betterauth/betterauth/pkg/auth"
	"github.com/betterauth/betterauth/pkg/authserver"
	"github.com/betterauth/betterauth/pkg/ciba"
	"github.com/betterauth/betterauth/pkg/devicecode"
	"github.com/betterauth/betterauth/pkg/jwks"
	"github.com/betterauth/betterauth/pkg/logger"
	"github.com/betterauth/betterauth/pkg/oidcprovider"
	"github.com/betterauth/betterauth/pkg/telemetry"
	"github.com/betterauth/betterauth/pkg/twofactor"
)

const (
	serverReadTimeout  = 10 * time.Second
	serverWriteTimeout = 30 * time.Second
	serverIdleTimeout  = 120 * time.Second
	shutdownTimeout    = 30 * time.Second
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the authentication server",
		Long: `Start the authentication server on SQLite.

Every flag can also be set through the environment with the BETTERAUTH_
prefix (BETTERAUTH_PORT, BETTERAUTH_SECRET, ...). Without --secret the server
falls back to BETTER_AUTH_SECRET, or in development to a built-in key.`,
		RunE: runServe,
	}

	cmd.Flags().String("base-url", "http://localhost:3000", "Public origin the server is reachable at")
	cmd.Flags().Int("port", 3000, "Port to listen on")
	cmd.Flags().String("database", "", "SQLite database path (default under the XDG data dir)")
	cmd.Flags().String("secret", "", "Secret for signing and encryption; generate one with 'betterauth secret'")
	cmd.Flags().StringSlice("trusted-origin", nil, "Origin allowed to make credentialed browser requests (repeatable)")
	cmd.Flags().String("demo-client-id", "demo-app", "Provision a public PKCE client with this id; empty disables it")
	cmd.Flags().String("demo-client-redirect", "http://localhost:8080/callback", "Redirect URI for the demo client")

	for _, name := range []string{
		"base-url", "port", "database", "secret",
		"trusted-origin", "demo-client-id", "demo-client-redirect",
	} {
		if err := viper.BindPFlag(name, cmd.Flags().Lookup(name)); err != nil {
			logger.Fatalf("Failed to bind %s flag: %v", name, err)
		}
	}

	return cmd
}

func runServe(_ *cobra.Command, _ []string) error {
	viper.SetEnvPrefix("BETTERAUTH")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPath := viper.GetString("database")
	if dbPath == "" {
		path, err := xdg.DataFile(filepath.Join("betterauth", "betterauth.db"))
		if err != nil {
			return fmt.Errorf("resolving default database path: %w", err)
		}
		dbPath = path
	}

	db, err := sqlite.Open(ctx, dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Infof("Using database %s", dbPath)

	log := logger.Get()
	registry := prometheus.NewRegistry()

	srv, err := authserver.New(authserver.Options{
		Auth: auth.Options{
			AppName:        "BetterAuth",
			BaseURL:        viper.GetString("base-url"),
			Secret:         viper.GetString("secret"),
			TrustedOrigins: viper.GetStringSlice("trusted-origin"),
			Database:       db,
			Logger:         log,
		},
		Clients: demoClients(),
	},
		account.New(account.Options{}),
		twofactor.New(twofactor.Options{}),
		jwks.New(jwks.Options{}),
		oidcprovider.New(oidcprovider.Options{}),
		devicecode.New(devicecode.Options{}),
		ciba.New(ciba.Options{SendNotification: logNotification(log)}),
		admin.New(admin.Options{}),
		telemetry.New(telemetry.Options{Registerer: registry}),
	)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/api/auth/", srv.Handler())
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", viper.GetInt("port")),
		Handler:      mux,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Infof("Authentication server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		return srv.RunSweeper(gctx, authserver.DefaultSweepInterval)
	})
	group.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		return err
	}
	logger.Info("Server shutdown complete")
	return nil
}

// demoClients provisions the public PKCE client used for trying the OAuth
// flows, unless it was disabled with --demo-client-id="".
func demoClients() []authserver.Client {
	id := viper.GetString("demo-client-id")
	if id == "" {
		return nil
	}
	return []authserver.Client{{
		ClientID:     id,
		Name:         "Demo Client",
		RedirectURIs: []string{viper.GetString("demo-client-redirect")},
		Public:       true,
	}}
}

// logNotification surfaces backchannel authentication requests in the server
// log. The dev server has no push channel, so the operator plays the user's
// device and approves via /ciba/authorize.
func logNotification(log *slog.Logger) func(context.Context, ciba.Notification) error {
	return func(_ context.Context, n ciba.Notification) error {
		log.Info("backchannel authentication requested",
			"authReqId", n.AuthReqID,
			"user", n.User.Email,
			"client", n.ClientName,
			"bindingMessage", n.BindingMessage,
		)
		return nil
	}
}
