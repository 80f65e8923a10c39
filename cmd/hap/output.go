package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/capiscio/hap-core/pkg/claim"
	"github.com/capiscio/hap-core/pkg/verify"
)

var (
	okFmt    = color.New(color.FgGreen, color.Bold).SprintFunc()
	errFmt   = color.New(color.FgRed, color.Bold).SprintFunc()
	warnFmt  = color.New(color.FgYellow).SprintFunc()
	labelFmt = color.New(color.Faint).SprintFunc()
)

// errRejected is returned after a rejection has been printed so the
// process exits non-zero.
var errRejected = errors.New("verification rejected")

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// report prints an outcome and converts a rejection into errRejected.
func report(w io.Writer, o *verify.Outcome) error {
	if jsonOutput {
		if err := printJSON(w, o); err != nil {
			return err
		}
	} else {
		renderOutcome(w, o)
	}
	if !o.Verified() {
		return errRejected
	}
	return nil
}

func renderOutcome(w io.Writer, o *verify.Outcome) {
	if o.Verified() {
		fmt.Fprintf(w, "%s\n", okFmt("VERIFIED"))
	} else {
		fmt.Fprintf(w, "%s %s\n", errFmt("REJECTED"), o.Reason)
		fmt.Fprintf(w, "  %s %s\n", labelFmt("stage:"), o.Stage)
		if o.Err != nil {
			fmt.Fprintf(w, "  %s %s\n", labelFmt("detail:"), o.Err)
		}
	}

	if o.RevocationReason != "" {
		fmt.Fprintf(w, "  %s %s\n", labelFmt("revocation reason:"), o.RevocationReason)
	}
	if o.RevokedAt != nil {
		fmt.Fprintf(w, "  %s %s\n", labelFmt("revoked at:"), o.RevokedAt.Format(time.RFC3339))
	}
	if o.KeyID != "" {
		fmt.Fprintf(w, "  %s %s\n", labelFmt("key:"), o.KeyID)
	}
	if o.Claim != nil {
		renderClaim(w, o.Claim)
	}
	if o.Expired {
		fmt.Fprintf(w, "  %s\n", warnFmt("claim has expired"))
	}
	for _, warning := range o.Warnings {
		fmt.Fprintf(w, "  %s %s\n", warnFmt("warning:"), warning)
	}
}

func renderClaim(w io.Writer, c *claim.Claim) {
	fmt.Fprintf(w, "  %s %s\n", labelFmt("id:"), c.ID)
	fmt.Fprintf(w, "  %s %s\n", labelFmt("issuer:"), c.Issuer)
	if c.To.Domain != "" {
		fmt.Fprintf(w, "  %s %s (%s)\n", labelFmt("recipient:"), c.To.Name, c.To.Domain)
	} else {
		fmt.Fprintf(w, "  %s %s\n", labelFmt("recipient:"), c.To.Name)
	}
	fmt.Fprintf(w, "  %s %s\n", labelFmt("method:"), c.Method)
	if c.Description != "" {
		fmt.Fprintf(w, "  %s %s\n", labelFmt("description:"), c.Description)
	}
	fmt.Fprintf(w, "  %s %s\n", labelFmt("issued:"), c.IssuedAt.Format(time.RFC3339))
	if c.ExpiresAt != nil {
		fmt.Fprintf(w, "  %s %s\n", labelFmt("expires:"), c.ExpiresAt.Format(time.RFC3339))
	}
	if c.Cost != nil {
		fmt.Fprintf(w, "  %s %d %s (minor units)\n", labelFmt("cost:"), c.Cost.Amount, c.Cost.Currency)
	}
	if c.Time != nil {
		fmt.Fprintf(w, "  %s %ds\n", labelFmt("time:"), *c.Time)
	}
	if c.Physical != nil {
		fmt.Fprintf(w, "  %s %t\n", labelFmt("physical:"), *c.Physical)
	}
	if c.Energy != nil {
		fmt.Fprintf(w, "  %s %d kcal\n", labelFmt("energy:"), *c.Energy)
	}
}
