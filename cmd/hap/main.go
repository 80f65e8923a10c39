// Package main is the entry point for the hap CLI.
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/capiscio/hap-core/pkg/protocol"
	"github.com/capiscio/hap-core/pkg/registry"
	"github.com/capiscio/hap-core/pkg/verify"
)

var (
	logLevel   string
	timeout    time.Duration
	scheme     string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "hap",
	Short: "Human Attestation Protocol CLI",
	Long: `Issue, inspect and verify HAP claims.

A Verification Authority (VA) attests that a sender performed costly,
verifiable effort before contacting a recipient. This tool verifies those
attestations online against the issuing VA, or offline from compact
records and pinned keys.`,
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		level, err := parseLevel(logLevel)
		if err != nil {
			return err
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", protocol.DefaultTimeout, "Per-request timeout for VA lookups")
	rootCmd.PersistentFlags().StringVar(&scheme, "scheme", registry.DefaultScheme, "URL scheme used to reach VAs")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")
	_ = rootCmd.PersistentFlags().MarkHidden("scheme")
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

// newResolver builds the online resolver from the global flags.
func newResolver() *registry.HTTPResolver {
	r := registry.NewHTTPResolver(&http.Client{}, timeout)
	r.Scheme = scheme
	return r
}

func newPipeline(r registry.Resolver) (*verify.Pipeline, error) {
	return verify.New(r, verify.WithLogger(slog.Default()))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
