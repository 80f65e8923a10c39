package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/capiscio/hap-core/pkg/crypto"
	"github.com/capiscio/hap-core/pkg/trust"
)

var trustFromFile string

var trustCmd = &cobra.Command{
	Use:   "trust",
	Short: "Manage pinned VA keys",
	Long: `Manage the local trust store for offline compact verification.

The trust store holds the key sets of VAs you have chosen to pin. Pinned
keys are refreshed only when you run "hap trust add" again.

Location: ~/.hap/trust/ (or $HAP_TRUST_PATH)`,
}

var trustAddCmd = &cobra.Command{
	Use:   "add <domain>",
	Short: "Pin a VA's current key set",
	Example: `  # Fetch and pin https://ballista.jobs/.well-known/hap.json
  hap trust add ballista.jobs

  # Pin from a saved document (use - for stdin)
  hap trust add --from-file hap.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := trust.NewFileStore("")
		if err != nil {
			return fmt.Errorf("failed to open trust store: %w", err)
		}

		var set *crypto.KeySet
		switch {
		case trustFromFile != "":
			set, err = readKeySet(trustFromFile, cmd.InOrStdin())
		case len(args) == 1:
			set, err = newResolver().FetchKeys(cmd.Context(), args[0])
			if err == nil && set.Issuer != args[0] {
				err = fmt.Errorf("key set declares issuer %q, expected %q", set.Issuer, args[0])
			}
		default:
			err = fmt.Errorf("provide a domain or use --from-file")
		}
		if err != nil {
			return err
		}

		if err := store.Pin(set); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Pinned %d key(s) for %s\n", okFmt("✓"), len(set.Keys), set.Issuer)
		return nil
	},
}

var trustListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pinned VAs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, err := trust.NewFileStore("")
		if err != nil {
			return fmt.Errorf("failed to open trust store: %w", err)
		}

		sets, err := store.List()
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), sets)
		}
		if len(sets) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No pinned VAs.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ISSUER\tKEY ID")
		for _, set := range sets {
			for _, k := range set.Keys {
				fmt.Fprintf(w, "%s\t%s\n", set.Issuer, k.KeyID)
			}
		}
		return w.Flush()
	},
}

var trustRemoveCmd = &cobra.Command{
	Use:   "remove <domain>",
	Short: "Unpin a VA",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := trust.NewFileStore("")
		if err != nil {
			return fmt.Errorf("failed to open trust store: %w", err)
		}
		if err := store.Remove(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Removed %s\n", okFmt("✓"), args[0])
		return nil
	},
}

// readKeySet parses a key set document from path, or from stdin for "-".
func readKeySet(path string, stdin io.Reader) (*crypto.KeySet, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key set: %w", err)
	}

	var set crypto.KeySet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("failed to parse key set: %w", err)
	}
	return &set, nil
}

func init() {
	rootCmd.AddCommand(trustCmd)
	trustCmd.AddCommand(trustAddCmd, trustListCmd, trustRemoveCmd)

	trustAddCmd.Flags().StringVar(&trustFromFile, "from-file", "", "Key set document to pin (- for stdin)")
}
