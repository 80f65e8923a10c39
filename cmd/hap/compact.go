package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/capiscio/hap-core/pkg/compact"
	"github.com/capiscio/hap-core/pkg/registry"
	"github.com/capiscio/hap-core/pkg/trust"
)

var (
	compactOffline bool
	compactBaseURL string
)

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Work with compact claim records",
	Long: `Compact records are dense, URL-embeddable claims of the form

  HAP1.<id>.<method>.<name>.<domain>.<issued>.<expires>.<issuer>.<signature>

They carry no key id, so verification tries each of the issuer's keys in
turn. Description, tier and effort dimensions are not part of the format.`,
}

var compactDecodeCmd = &cobra.Command{
	Use:   "decode <compact-or-url>",
	Short: "Decode a compact record without verifying it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := compactArg(args[0])
		if err != nil {
			return err
		}
		decoded, err := compact.Decode(text)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), decoded.Claim)
	},
}

var compactVerifyCmd = &cobra.Command{
	Use:   "verify <compact-or-url>",
	Short: "Verify a compact record against its issuer's keys",
	Long: `Verify a compact record against the current keys of the issuer it names.

With --offline the keys come from the local trust store (see "hap trust")
and no network access happens. The VA is never asked about the claim
itself, so a revoked claim still verifies here; use "hap claim verify" to
check revocation.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := compactArg(args[0])
		if err != nil {
			return err
		}

		var resolver registry.Resolver = newResolver()
		if compactOffline {
			store, err := trust.NewFileStore("")
			if err != nil {
				return fmt.Errorf("failed to open trust store: %w", err)
			}
			resolver = offlineResolver{KeyResolver: registry.NewLocalResolver(store), ClaimResolver: resolver}
		}

		pipeline, err := newPipeline(resolver)
		if err != nil {
			return err
		}
		return report(cmd.OutOrStdout(), pipeline.VerifyCompact(cmd.Context(), text))
	},
}

var compactURLCmd = &cobra.Command{
	Use:   "url <compact>",
	Short: "Embed a compact record in a verification URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if compactBaseURL == "" {
			return fmt.Errorf("--base is required")
		}
		if !compact.IsValid(args[0]) {
			return fmt.Errorf("not a compact record")
		}
		fmt.Fprintln(cmd.OutOrStdout(), compact.VerificationURL(compactBaseURL, args[0]))
		return nil
	},
}

// offlineResolver takes keys from the trust store. Compact verification
// never fetches claims, so ClaimResolver is never reached.
type offlineResolver struct {
	registry.KeyResolver
	registry.ClaimResolver
}

// compactArg accepts either a compact record or a URL carrying one.
func compactArg(arg string) (string, error) {
	if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
		return compact.ExtractFromURL(arg)
	}
	return arg, nil
}

func init() {
	rootCmd.AddCommand(compactCmd)
	compactCmd.AddCommand(compactDecodeCmd, compactVerifyCmd, compactURLCmd)

	compactVerifyCmd.Flags().BoolVar(&compactOffline, "offline", false, "Use pinned keys from the trust store")
	compactURLCmd.Flags().StringVar(&compactBaseURL, "base", "", "Verification page base URL")
}
