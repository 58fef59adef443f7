package main

import (
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"zerotrust/internal/audit"
)

func newVerifyChainCmd() *cobra.Command {
	var pubKeyPath string
	cmd := &cobra.Command{
		Use:   "verify-chain <export.json>",
		Short: "Verify an exported audit range",
		Long: `Recomputes every record hash in an export, checks the links back to the
anchor, and with --pubkey checks the signed checkpoint against the tail.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read export: %w", err)
			}
			var doc audit.ExportDocument
			if err := json.Unmarshal(raw, &doc); err != nil {
				return fmt.Errorf("decode export: %w", err)
			}
			exp, err := doc.Export()
			if err != nil {
				return fmt.Errorf("decode export: %w", err)
			}

			printHeader(out, "Audit chain verification")
			printInfo(out, fmt.Sprintf("records %d..%d (%s)", exp.From, exp.To, exp.Algorithm))

			var pub *ecdsa.PublicKey
			if pubKeyPath != "" {
				pemData, err := os.ReadFile(pubKeyPath)
				if err != nil {
					return fmt.Errorf("read public key: %w", err)
				}
				k, err := audit.ParsePublicKeyPEM(pemData)
				if err != nil {
					return err
				}
				pub = k
			}

			cp, err := exp.Verify(pub)
			if err != nil {
				return err
			}
			printSuccess(out, fmt.Sprintf("%d records link back to the anchor", len(exp.Records)))
			if cp == nil {
				printInfo(out, "checkpoint not checked (no --pubkey)")
				return nil
			}
			printSuccess(out, fmt.Sprintf("checkpoint signed at %s covers %d records, tail %s",
				time.Unix(cp.IssuedAt, 0).UTC().Format(time.RFC3339), cp.Size, hex.EncodeToString(cp.TailHash)))
			return nil
		},
	}
	cmd.Flags().StringVar(&pubKeyPath, "pubkey", "", "PEM public key of the checkpoint signer")
	return cmd
}
