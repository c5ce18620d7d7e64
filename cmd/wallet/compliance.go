package main

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Maphikza/sip-privacy-wallet/internal/compliance"
)

var complianceCmd = &cobra.Command{
	Use:   "compliance",
	Short: "Inspect and export the encrypted compliance ledger",
}

func ledgerFilter(cmd *cobra.Command) (compliance.Filter, error) {
	provider, _ := cmd.Flags().GetString("provider")
	f := compliance.Filter{Provider: provider}
	for name, dst := range map[string]*time.Time{"since": &f.Since, "until": &f.Until} {
		v, _ := cmd.Flags().GetString(name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return compliance.Filter{}, fmt.Errorf("--%s must be RFC 3339: %w", name, err)
		}
		*dst = t
	}
	return f, nil
}

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().String("provider", "", "Only records of this provider")
	cmd.Flags().String("since", "", "Only records at or after this time (RFC 3339)")
	cmd.Flags().String("until", "", "Only records at or before this time (RFC 3339)")
}

var complianceListCmd = &cobra.Command{
	Use:   "list",
	Short: "Decrypt and list ledger records",
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := ledgerFilter(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		s, err := openSession(ctx, false)
		if err != nil {
			return err
		}
		defer s.Close()

		records, err := s.engine.ComplianceRecords(ctx, f)
		if err != nil {
			return err
		}
		return printJSON(records)
	},
}

var complianceExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export ledger entries, still encrypted, for an auditor",
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := ledgerFilter(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		s, err := openSession(ctx, false)
		if err != nil {
			return err
		}
		defer s.Close()

		bundle, err := s.engine.ExportCompliance(ctx, f)
		if err != nil {
			return err
		}
		out, _ := cmd.Flags().GetString("out")
		if out == "" {
			return printJSON(bundle)
		}
		data, err := json.MarshalIndent(bundle, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(out, data, 0600); err != nil {
			return fmt.Errorf("failed to write bundle: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Exported %d entries to %s\n", len(bundle.Entries), out)
		return nil
	},
}

// complianceDecryptCmd is the auditor side: it needs no wallet, only the
// bundle and a disclosed viewing key.
var complianceDecryptCmd = &cobra.Command{
	Use:   "decrypt [bundle.json]",
	Short: "Decrypt an exported bundle with a disclosed viewing key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keyHex, _ := cmd.Flags().GetString("viewing-key")
		key, err := hex.DecodeString(keyHex)
		if err != nil || len(key) == 0 {
			return errors.New("--viewing-key must be a hex private key")
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var bundle compliance.EncryptedBundle
		if err := json.Unmarshal(data, &bundle); err != nil {
			return fmt.Errorf("failed to parse bundle: %w", err)
		}
		records, err := compliance.DecryptBundle(bundle, key)
		if err != nil {
			return err
		}
		return printJSON(records)
	},
}

var complianceClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every ledger entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			return errors.New("refusing to clear the ledger without --yes")
		}
		ctx := cmd.Context()
		s, err := openSession(ctx, false)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.engine.ClearCompliance(ctx); err != nil {
			return err
		}
		fmt.Println("Compliance ledger cleared.")
		return nil
	},
}

var discloseCmd = &cobra.Command{
	Use:   "disclose [recipient-name]",
	Short: "Record a viewing key disclosure and print the key to hand over",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		purpose, _ := cmd.Flags().GetString("purpose")
		expires, _ := cmd.Flags().GetDuration("expires-in")

		ctx := cmd.Context()
		s, err := openSession(ctx, false)
		if err != nil {
			return err
		}
		defer s.Close()

		var expiresAt *time.Time
		if expires > 0 {
			t := time.Now().Add(expires)
			expiresAt = &t
		}
		d, viewingKey, err := s.engine.Disclose(ctx, args[0], purpose, expiresAt)
		if err != nil {
			return err
		}
		return printJSON(struct {
			compliance.Disclosure
			ViewingKey string `json:"viewingKey"`
		}{d, hex.EncodeToString(viewingKey)})
	},
}

var revokeCmd = &cobra.Command{
	Use:   "revoke [disclosure-id]",
	Short: "Mark a disclosure revoked",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx, false)
		if err != nil {
			return err
		}
		defer s.Close()

		d, err := s.engine.Revoke(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(d)
	},
}

var disclosuresCmd = &cobra.Command{
	Use:   "disclosures",
	Short: "List viewing key disclosures",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx, false)
		if err != nil {
			return err
		}
		defer s.Close()

		if active, _ := cmd.Flags().GetBool("active"); active {
			list, err := s.engine.ActiveDisclosures(ctx)
			if err != nil {
				return err
			}
			return printJSON(list)
		}
		list, err := s.engine.Disclosures(ctx)
		if err != nil {
			return err
		}
		return printJSON(list)
	},
}

func init() {
	complianceCmd.AddCommand(complianceListCmd, complianceExportCmd, complianceDecryptCmd, complianceClearCmd)
	rootCmd.AddCommand(complianceCmd, discloseCmd, revokeCmd, disclosuresCmd)

	addFilterFlags(complianceListCmd)
	addFilterFlags(complianceExportCmd)
	complianceExportCmd.Flags().String("out", "", "Write the bundle to this file instead of stdout")
	complianceDecryptCmd.Flags().String("viewing-key", "", "Disclosed viewing private key (hex)")
	complianceClearCmd.Flags().Bool("yes", false, "Confirm deletion")

	discloseCmd.Flags().String("purpose", "", "Why the key is being disclosed")
	discloseCmd.Flags().Duration("expires-in", 0, "Disclosure lifetime, e.g. 720h; zero never expires")
	disclosuresCmd.Flags().Bool("active", false, "Only unexpired, unrevoked disclosures")
}
