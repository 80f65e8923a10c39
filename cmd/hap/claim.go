package main

import (
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"github.com/capiscio/hap-core/pkg/attestation"
	"github.com/capiscio/hap-core/pkg/authority"
	"github.com/capiscio/hap-core/pkg/claim"
	"github.com/capiscio/hap-core/pkg/compact"
	"github.com/capiscio/hap-core/pkg/crypto"
	"github.com/capiscio/hap-core/pkg/protocol"
)

// claimFlags are the claim content flags shared by issue and request.
type claimFlags struct {
	toName       string
	toDomain     string
	method       string
	description  string
	tier         string
	expiresDays  int
	costAmount   int64
	costCurrency string
	seconds      int64
	physical     bool
	energy       int64
	test         bool
}

func (f *claimFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.toName, "to-name", "", "Recipient name (required)")
	cmd.Flags().StringVar(&f.toDomain, "to-domain", "", "Recipient domain")
	cmd.Flags().StringVar(&f.method, "method", "", "VA method identifier (required)")
	cmd.Flags().StringVar(&f.description, "description", "", "Human-readable description")
	cmd.Flags().StringVar(&f.tier, "tier", "", "Service tier")
	cmd.Flags().IntVar(&f.expiresDays, "expires-days", 0, "Days until expiration (0 = never)")
	cmd.Flags().Int64Var(&f.costAmount, "cost-amount", 0, "Cost in minor currency units")
	cmd.Flags().StringVar(&f.costCurrency, "cost-currency", "", "ISO 4217 currency code for --cost-amount")
	cmd.Flags().Int64Var(&f.seconds, "time", 0, "Seconds of exclusive time spent")
	cmd.Flags().BoolVar(&f.physical, "physical", false, "Effort involved a physical-world action")
	cmd.Flags().Int64Var(&f.energy, "energy", 0, "Energy expended in kilocalories")
	cmd.Flags().BoolVar(&f.test, "test", false, "Issue a hap_test_ identifier")
}

// params converts the flags into claim parameters. Effort dimensions are
// set only when their flag was given.
func (f *claimFlags) params(cmd *cobra.Command) claim.Params {
	p := claim.Params{
		Method:        f.method,
		Description:   f.description,
		RecipientName: f.toName,
		Domain:        f.toDomain,
		Tier:          f.tier,
		ExpiresInDays: f.expiresDays,
		Test:          f.test,
	}
	if cmd.Flags().Changed("cost-amount") {
		p.Cost = &claim.Cost{Amount: f.costAmount, Currency: f.costCurrency}
	}
	if cmd.Flags().Changed("time") {
		p.Time = claim.Int64(f.seconds)
	}
	if cmd.Flags().Changed("physical") {
		p.Physical = claim.Bool(f.physical)
	}
	if cmd.Flags().Changed("energy") {
		p.Energy = claim.Int64(f.energy)
	}
	return p
}

var (
	issueFlags    claimFlags
	issueKeyPath  string
	issueIssuer   string
	requestFlags  claimFlags
	requestVA     string
	requestAPIKey string
	revokeReason  string
	verifyIssuer  string
)

var claimCmd = &cobra.Command{
	Use:   "claim",
	Short: "Issue, inspect and verify claims",
}

var claimIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Sign a claim locally with a VA key",
	Long: `Create a claim and sign it with a local private key.

Prints the claim together with its structured (JWS) and compact encodings.
Nothing is stored: use "hap claim request" against a running VA to issue
claims that relying parties can look up.`,
	Example: `  hap claim issue --key private.jwk --issuer ballista.jobs \
    --to-name "Acme Corp" --to-domain acme.com --method ba_priority_mail \
    --cost-amount 1500 --cost-currency USD --expires-days 180`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if issueKeyPath == "" || issueIssuer == "" {
			return fmt.Errorf("--key and --issuer are required")
		}

		priv, kid, err := crypto.LoadPrivateKeyJWK(issueKeyPath)
		if err != nil {
			return err
		}

		p := issueFlags.params(cmd)
		p.Issuer = issueIssuer
		c, err := claim.New(p)
		if err != nil {
			return err
		}

		signed, err := attestation.Sign(c, priv, kid)
		if err != nil {
			return err
		}
		text, err := compact.Sign(signed.Claim, priv)
		if err != nil {
			return err
		}

		return printJSON(cmd.OutOrStdout(), authority.Issued{
			ID:      c.ID,
			Claim:   signed.Claim,
			JWS:     signed.JWS,
			Compact: text,
		})
	},
}

var claimRequestCmd = &cobra.Command{
	Use:   "request",
	Short: "Request a claim from a running VA",
	Example: `  HAP_API_KEY=secret hap claim request --va https://ballista.jobs \
    --to-name "Acme Corp" --method ba_priority_mail`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := vaClient()
		if err != nil {
			return err
		}

		p := requestFlags.params(cmd)
		issued, err := client.Issue(cmd.Context(), authority.IssueRequest{
			Recipient:     claim.Recipient{Name: p.RecipientName, Domain: p.Domain},
			Method:        p.Method,
			Description:   p.Description,
			Tier:          p.Tier,
			ExpiresInDays: p.ExpiresInDays,
			Cost:          p.Cost,
			Time:          p.Time,
			Physical:      p.Physical,
			Energy:        p.Energy,
			Test:          p.Test,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), issued)
	},
}

var claimRevokeCmd = &cobra.Command{
	Use:   "revoke <id>",
	Short: "Revoke a claim on a running VA",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := vaClient()
		if err != nil {
			return err
		}

		rec, err := client.Revoke(cmd.Context(), args[0], protocol.RevocationReason(revokeReason))
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), rec)
	},
}

var claimVerifyCmd = &cobra.Command{
	Use:   "verify <id-or-url>",
	Short: "Verify a claim against its issuing VA",
	Long: `Verify a claim by looking it up on the issuing VA.

The argument is either a claim id (with --issuer) or a VA verification URL
such as https://ballista.jobs/v/hap_abc123xyz456, whose host is used as the
issuer unless --issuer overrides it. A non-default port stays part of the
issuer (https://va.example:8443/... verifies against va.example:8443); pass
--issuer when the claim's issuer differs from the URL's host.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, issuer := resolveClaimRef(args[0], verifyIssuer)
		if issuer == "" {
			return fmt.Errorf("--issuer is required when verifying a bare id")
		}

		pipeline, err := newPipeline(newResolver())
		if err != nil {
			return err
		}
		return report(cmd.OutOrStdout(), pipeline.Verify(cmd.Context(), id, issuer))
	},
}

var claimInspectCmd = &cobra.Command{
	Use:   "inspect <jws>",
	Short: "Decode a structured claim without verifying it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, kid, err := attestation.Inspect(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%s signature not verified (kid %s)\n", warnFmt("UNVERIFIED"), kid)
		return printJSON(cmd.OutOrStdout(), c)
	},
}

// resolveClaimRef splits a verify argument into id and issuer. The issuer
// taken from a URL keeps a non-default port, since VAs are addressed as
// host[:port]; the scheme's default port is dropped.
func resolveClaimRef(arg, issuer string) (string, string) {
	id := arg
	if u, err := url.Parse(arg); err == nil && u.Host != "" {
		if extracted := claim.ExtractIDFromURL(arg); extracted != "" {
			id = extracted
		}
		if issuer == "" {
			issuer = urlIssuer(u)
		}
	}
	return id, issuer
}

func urlIssuer(u *url.URL) string {
	switch {
	case u.Port() == "":
		return u.Host
	case u.Scheme == "https" && u.Port() == "443", u.Scheme == "http" && u.Port() == "80":
		return u.Hostname()
	}
	return u.Host
}

func vaClient() (*authority.Client, error) {
	if requestVA == "" {
		return nil, fmt.Errorf("--va is required")
	}
	apiKey := requestAPIKey
	if apiKey == "" {
		apiKey = os.Getenv("HAP_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("an API key is required (--api-key or HAP_API_KEY)")
	}
	return authority.NewClient(requestVA, apiKey), nil
}

func init() {
	rootCmd.AddCommand(claimCmd)
	claimCmd.AddCommand(claimIssueCmd, claimRequestCmd, claimRevokeCmd, claimVerifyCmd, claimInspectCmd)

	issueFlags.register(claimIssueCmd)
	claimIssueCmd.Flags().StringVar(&issueKeyPath, "key", "", "Private key file (JWK)")
	claimIssueCmd.Flags().StringVar(&issueIssuer, "issuer", "", "VA domain to issue as")

	requestFlags.register(claimRequestCmd)
	for _, cmd := range []*cobra.Command{claimRequestCmd, claimRevokeCmd} {
		cmd.Flags().StringVar(&requestVA, "va", "", "VA base URL")
		cmd.Flags().StringVar(&requestAPIKey, "api-key", "", "VA API key (default $HAP_API_KEY)")
	}
	claimRevokeCmd.Flags().StringVar(&revokeReason, "reason", string(protocol.RevocationUserRequest), "Revocation reason: fraud, error, legal, user_request")

	claimVerifyCmd.Flags().StringVar(&verifyIssuer, "issuer", "", "Issuing VA domain")
}
