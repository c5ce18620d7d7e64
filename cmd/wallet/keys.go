package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/Maphikza/sip-privacy-wallet/internal/vault"
	"github.com/Maphikza/sip-privacy-wallet/lib/address"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage stealth key records",
}

type keyView struct {
	ID         string     `json:"id"`
	Curve      string     `json:"curve"`
	Active     bool       `json:"active"`
	CreatedAt  time.Time  `json:"createdAt"`
	ArchivedAt *time.Time `json:"archivedAt,omitempty"`
	Mnemonic   string     `json:"mnemonic,omitempty"`
}

func viewKey(r vault.KeyRecord, withPhrase bool) keyView {
	v := keyView{
		ID:         r.ID,
		Curve:      string(r.Curve),
		Active:     r.IsActive,
		CreatedAt:  r.CreatedAt,
		ArchivedAt: r.ArchivedAt,
	}
	if withPhrase {
		v.Mnemonic = r.Mnemonic
	}
	return v
}

var keysGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Create the first key record if the wallet has none",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx, false)
		if err != nil {
			return err
		}
		defer s.Close()

		rec, err := s.engine.Vault().EnsureKey(ctx)
		if err != nil {
			return err
		}
		return printJSON(viewKey(rec, true))
	},
}

var keysRotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "Archive the active key record and activate a new one",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx, false)
		if err != nil {
			return err
		}
		defer s.Close()

		rec, err := s.engine.Rotate(ctx)
		if err != nil {
			return err
		}
		return printJSON(viewKey(rec, true))
	},
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every key record, archived ones included",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx, false)
		if err != nil {
			return err
		}
		defer s.Close()

		recs, err := s.engine.Vault().Records(ctx)
		if err != nil {
			return err
		}
		out := make([]keyView, 0, len(recs))
		for _, r := range recs {
			out = append(out, viewKey(r, false))
		}
		return printJSON(out)
	},
}

var keysImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Restore a key record from its recovery phrase (read from stdin)",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprint(os.Stderr, "Recovery phrase: ")
		phrase, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && phrase == "" {
			return fmt.Errorf("failed to read recovery phrase: %w", err)
		}

		ctx := cmd.Context()
		s, err := openSession(ctx, false)
		if err != nil {
			return err
		}
		defer s.Close()

		rec, err := s.engine.Vault().Import(ctx, strings.TrimSpace(phrase))
		if err != nil {
			return err
		}
		return printJSON(viewKey(rec, false))
	},
}

var metaAddressCmd = &cobra.Command{
	Use:   "meta-address",
	Short: "Print the active stealth meta-address",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx, false)
		if err != nil {
			return err
		}
		defer s.Close()

		meta, err := s.engine.MetaAddress(ctx)
		if err != nil {
			return err
		}
		fmt.Println(meta.String())

		if copyIt, _ := cmd.Flags().GetBool("copy"); copyIt {
			if err := clipboard.WriteAll(meta.String()); err != nil {
				return fmt.Errorf("failed to copy to clipboard: %w", err)
			}
			fmt.Fprintln(os.Stderr, "Copied to clipboard.")
		}
		return nil
	},
}

var paylinkCmd = &cobra.Command{
	Use:   "paylink",
	Short: "Build a payment request link for the active meta-address",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx, false)
		if err != nil {
			return err
		}
		defer s.Close()

		meta, err := s.engine.MetaAddress(ctx)
		if err != nil {
			return err
		}
		req := address.PaymentRequest{Address: meta.String()}
		for name, dst := range map[string]**string{"amount": &req.Amount, "token": &req.Token, "memo": &req.Memo} {
			if v, _ := cmd.Flags().GetString(name); v != "" {
				v := v
				*dst = &v
			}
		}
		link := address.FormatPaymentRequest(req)
		// Round-trip so a bad amount is reported before the link is shared.
		if _, err := address.ParsePaymentRequest(link); err != nil {
			return err
		}
		fmt.Println(link)
		return nil
	},
}

func init() {
	keysCmd.AddCommand(keysGenerateCmd, keysRotateCmd, keysListCmd, keysImportCmd)
	rootCmd.AddCommand(keysCmd, metaAddressCmd, paylinkCmd)

	metaAddressCmd.Flags().Bool("copy", false, "Copy the meta-address to the clipboard")

	paylinkCmd.Flags().String("amount", "", "Requested amount")
	paylinkCmd.Flags().String("token", "", "Requested token")
	paylinkCmd.Flags().String("memo", "", "Memo shown to the payer")
}
