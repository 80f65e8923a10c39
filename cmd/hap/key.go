package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/capiscio/hap-core/pkg/crypto"
)

var (
	keyKID        string
	keyOutPrivate string
	keyOutKeySet  string
	keyIssuer     string
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage VA signing keys",
}

var keyGenCmd = &cobra.Command{
	Use:   "gen",
	Short: "Generate a new Ed25519 signing key",
	Long: `Generate a new Ed25519 signing key for a Verification Authority.

Outputs:
  - Private key in JWK format (for signing claims)
  - The public key record, or a complete /.well-known/hap.json document
    when --issuer is set`,
	Example: `  # Generate a key and print its public record
  hap key gen --kid key_001

  # Generate a key and write the discovery document
  hap key gen --kid key_001 --issuer ballista.jobs --out-keyset hap.json`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if keyKID == "" {
			return fmt.Errorf("--kid is required")
		}

		priv, pub, err := crypto.GenerateKeyPair()
		if err != nil {
			return err
		}

		privBytes, err := crypto.MarshalPrivateKeyJWK(priv, keyKID)
		if err != nil {
			return err
		}
		if err := os.WriteFile(keyOutPrivate, privBytes, 0600); err != nil {
			return fmt.Errorf("failed to write private key: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%s Private key saved to %s\n", okFmt("✓"), keyOutPrivate)

		record := crypto.EncodePublicKey(pub, keyKID)
		if keyIssuer == "" {
			return printJSON(cmd.OutOrStdout(), record)
		}

		set := crypto.KeySet{Issuer: keyIssuer, Keys: []crypto.KeyRecord{record}}
		if keyOutKeySet == "" {
			return printJSON(cmd.OutOrStdout(), set)
		}

		f, err := os.OpenFile(keyOutKeySet, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return fmt.Errorf("failed to write key set: %w", err)
		}
		defer func() { _ = f.Close() }()
		if err := printJSON(f, set); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%s Key set saved to %s\n", okFmt("✓"), keyOutKeySet)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keyCmd)
	keyCmd.AddCommand(keyGenCmd)

	keyGenCmd.Flags().StringVar(&keyKID, "kid", "", "Key id to publish the key under")
	keyGenCmd.Flags().StringVar(&keyOutPrivate, "out-priv", "private.jwk", "Output path for private key (JWK format)")
	keyGenCmd.Flags().StringVar(&keyIssuer, "issuer", "", "VA domain; emits a full key set document")
	keyGenCmd.Flags().StringVar(&keyOutKeySet, "out-keyset", "", "Output path for the key set document")
}
