package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Maphikza/sip-privacy-wallet/internal/privacy"
	"github.com/Maphikza/sip-privacy-wallet/lib/address"
)

const senderKeyEnv = "SIP_SENDER_KEY"

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the chain for payments to this wallet",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx, true)
		if err != nil {
			return err
		}
		defer s.Close()

		out, err := s.engine.ScanNow(ctx)
		if err != nil {
			return err
		}
		for _, r := range out.Rejected {
			fmt.Fprintf(os.Stderr, "Skipped malformed record %s: %v\n", r.Record.TxHash, r.Err)
		}
		return printJSON(out.Found)
	},
}

var paymentsCmd = &cobra.Command{
	Use:   "payments",
	Short: "List sent and received payments, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx, false)
		if err != nil {
			return err
		}
		defer s.Close()

		list, err := s.engine.ListPayments(ctx)
		if err != nil {
			return err
		}
		return printJSON(list)
	},
}

var claimCmd = &cobra.Command{
	Use:   "claim [payment-id]",
	Short: "Recover the one-time private key of a received payment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx, false)
		if err != nil {
			return err
		}
		defer s.Close()

		claim, err := s.engine.ClaimPayment(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(map[string]string{
			"id":         claim.Payment.ID,
			"address":    claim.Address,
			"privateKey": hex.EncodeToString(claim.PrivateKey),
		})
	},
}

func senderKey(cmd *cobra.Command) ([]byte, error) {
	raw, _ := cmd.Flags().GetString("key")
	if raw == "" {
		raw = os.Getenv(senderKeyEnv)
	}
	if raw == "" {
		return nil, fmt.Errorf("no sender key: pass --key or set %s", senderKeyEnv)
	}
	key, err := hex.DecodeString(strings.TrimPrefix(raw, "0x"))
	if err != nil {
		return nil, fmt.Errorf("sender key must be hex: %w", err)
	}
	return key, nil
}

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Pay a meta-address or regular address through a privacy provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		to, _ := cmd.Flags().GetString("to")
		link, _ := cmd.Flags().GetString("link")
		amount, _ := cmd.Flags().GetUint64("amount")
		token, _ := cmd.Flags().GetString("token")
		memo, _ := cmd.Flags().GetString("memo")
		provider, _ := cmd.Flags().GetString("provider")

		if link != "" {
			req, err := address.ParsePaymentRequest(link)
			if err != nil {
				return err
			}
			to = req.Address
			if req.Token != nil && token == "" {
				token = *req.Token
			}
			if req.Memo != nil && memo == "" {
				memo = *req.Memo
			}
		}
		if to == "" {
			return errors.New("a recipient is required: pass --to or --link")
		}
		if amount == 0 {
			return errors.New("amount must be positive")
		}

		kind, err := privacyKind(provider)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		s, err := openSession(ctx, true)
		if err != nil {
			return err
		}
		defer s.Close()

		key, err := senderKey(cmd)
		if err != nil {
			return err
		}
		signer, err := privacy.NewKeySigner(s.settings.Chain, key)
		if err != nil {
			return err
		}

		onStatus := func(st privacy.Status) {
			fmt.Fprintf(os.Stderr, "  %s\n", st)
		}
		out, err := s.engine.Send(ctx, kind, privacy.SendParams{
			Recipient: to,
			Amount:    amount,
			Token:     token,
			Memo:      memo,
		}, signer, onStatus)
		if err != nil {
			return err
		}
		if out.Result.Fallback {
			fmt.Fprintf(os.Stderr, "Warning: %s was unavailable, sent natively\n", kind)
		}
		if out.PaymentErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: payment was sent but not recorded: %v\n", out.PaymentErr)
		}
		if out.ComplianceErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: compliance record not written: %v\n", out.ComplianceErr)
		}
		return printJSON(out.Result)
	},
}

var swapCmd = &cobra.Command{
	Use:   "swap",
	Short: "Swap tokens through a delegated privacy provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")
		amount, _ := cmd.Flags().GetUint64("amount")
		minOut, _ := cmd.Flags().GetUint64("min-out")
		recipient, _ := cmd.Flags().GetString("recipient")
		provider, _ := cmd.Flags().GetString("provider")

		kind, err := privacyKind(provider)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		s, err := openSession(ctx, true)
		if err != nil {
			return err
		}
		defer s.Close()

		key, err := senderKey(cmd)
		if err != nil {
			return err
		}
		signer, err := privacy.NewKeySigner(s.settings.Chain, key)
		if err != nil {
			return err
		}
		out, err := s.engine.Swap(ctx, kind, privacy.SwapParams{
			FromToken: from,
			ToToken:   to,
			Amount:    amount,
			MinOut:    minOut,
			Recipient: recipient,
		}, signer, nil)
		if err != nil {
			return err
		}
		if out.ComplianceErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: compliance record not written: %v\n", out.ComplianceErr)
		}
		return printJSON(out.Result)
	},
}

func init() {
	rootCmd.AddCommand(scanCmd, paymentsCmd, claimCmd, sendCmd, swapCmd)

	sendCmd.Flags().String("to", "", "Recipient meta-address or address")
	sendCmd.Flags().String("link", "", "Pay a sipprotocol://pay link")
	sendCmd.Flags().Uint64("amount", 0, "Amount in base units")
	sendCmd.Flags().String("token", "", "Token symbol or mint")
	sendCmd.Flags().String("memo", "", "Memo")
	sendCmd.Flags().String("provider", string(privacy.Native), "Privacy provider")
	sendCmd.Flags().String("key", "", "Sender private key (hex); defaults to $"+senderKeyEnv)

	swapCmd.Flags().String("from", "", "Token to sell")
	swapCmd.Flags().String("to", "", "Token to buy")
	swapCmd.Flags().Uint64("amount", 0, "Amount in base units")
	swapCmd.Flags().Uint64("min-out", 0, "Minimum amount to receive")
	swapCmd.Flags().String("recipient", "", "Recipient of the bought tokens")
	swapCmd.Flags().String("provider", string(privacy.TEE), "Privacy provider")
	swapCmd.Flags().String("key", "", "Sender private key (hex); defaults to $"+senderKeyEnv)
}
