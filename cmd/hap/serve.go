package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/capiscio/hap-core/pkg/authority"
)

var serveConfig string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a reference Verification Authority",
	Long: `Run a reference VA that issues claims, publishes its keys at
/.well-known/hap.json and answers claim lookups at /api/v1/verify/{id}.

The issuance API (POST /api/v1/claims) requires the configured API key
as a bearer token.`,
	Example: `  hap serve --config va.yaml`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if serveConfig == "" {
			return fmt.Errorf("--config is required")
		}
		cfg, err := authority.LoadConfig(serveConfig)
		if err != nil {
			return err
		}
		if cfg.APIKey == "" {
			slog.Warn("no API key configured; issuance API will reject every request")
		}

		signer, published, err := cfg.LoadKeys()
		if err != nil {
			return err
		}

		var store authority.Store = authority.NewMemoryStore()
		if cfg.StorePath != "" {
			if store, err = authority.NewFileStore(cfg.StorePath); err != nil {
				return err
			}
		}

		a, err := authority.New(cfg.Issuer, *signer, published, store, cfg.VerifyBaseURL)
		if err != nil {
			return err
		}

		httpServer := &http.Server{
			Addr:              cfg.Listen,
			Handler:           authority.NewServer(a, cfg.APIKey, slog.Default()).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			slog.Info("VA listening", "issuer", cfg.Issuer, "addr", cfg.Listen, "kid", signer.KeyID, "tls", cfg.TLS.Enabled())
			if cfg.TLS.Enabled() {
				errCh <- httpServer.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
			} else {
				errCh <- httpServer.ListenAndServe()
			}
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("failed to serve: %w", err)
			}
			return nil
		case <-ctx.Done():
		}

		slog.Info("shutting down VA")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveConfig, "config", "", "VA config file (YAML)")
}
