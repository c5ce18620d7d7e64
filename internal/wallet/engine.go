// Package wallet ties the stealth key vault, scanner, payment cache,
// compliance ledger and privacy providers into one engine.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Maphikza/sip-privacy-wallet/internal/chain"
	"github.com/Maphikza/sip-privacy-wallet/internal/compliance"
	"github.com/Maphikza/sip-privacy-wallet/internal/keystore"
	"github.com/Maphikza/sip-privacy-wallet/internal/logger"
	"github.com/Maphikza/sip-privacy-wallet/internal/notify"
	"github.com/Maphikza/sip-privacy-wallet/internal/payments"
	"github.com/Maphikza/sip-privacy-wallet/internal/privacy"
	"github.com/Maphikza/sip-privacy-wallet/internal/scanner"
	"github.com/Maphikza/sip-privacy-wallet/internal/vault"
	"github.com/Maphikza/sip-privacy-wallet/lib/address"
	"github.com/Maphikza/sip-privacy-wallet/lib/curve"
)

// Options configures an Engine. Store, Chain and ChainName are required.
type Options struct {
	Store     keystore.Store
	Locker    *keystore.Locker
	Chain     chain.Client
	ChainName string
	Network   string

	RPCEndpoint       string
	ProviderEndpoints map[privacy.Kind]string
	Notifier          notify.Notifier

	PaymentLimit    int
	SeenLimit       int
	ScanInterval    time.Duration
	MinScanInterval time.Duration
	ConfirmInterval time.Duration
}

type Engine struct {
	opts     Options
	vault    *vault.Vault
	payments *payments.Store
	ledger   *compliance.Ledger
	scanner  *scanner.Scanner
	registry *privacy.Registry

	now func() time.Time
}

func New(opts Options) (*Engine, error) {
	if opts.Store == nil || opts.Chain == nil {
		return nil, errors.New("wallet: store and chain client are required")
	}
	ch, err := address.LookupChain(opts.ChainName)
	if err != nil {
		return nil, err
	}
	c, err := curve.ByID(ch.Curve)
	if err != nil {
		return nil, err
	}
	if opts.Locker == nil {
		opts.Locker = keystore.NewLocker()
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.LogNotifier{}
	}

	e := &Engine{opts: opts, now: time.Now}
	e.vault = vault.New(opts.Store, opts.Locker, c)
	e.payments = payments.New(opts.Store, opts.Locker, opts.PaymentLimit)
	e.ledger = compliance.New(opts.Store, opts.Locker, e.vault)
	e.scanner = scanner.New(scanner.Options{
		Chain:       opts.Chain,
		Vault:       e.vault,
		Payments:    e.payments,
		Store:       opts.Store,
		Locker:      opts.Locker,
		Notifier:    opts.Notifier,
		ChainName:   opts.ChainName,
		SeenLimit:   opts.SeenLimit,
		Interval:    opts.ScanInterval,
		MinInterval: opts.MinScanInterval,
	})
	e.registry = privacy.NewRegistry(privacy.Env{
		Chain:           opts.Chain,
		ChainName:       opts.ChainName,
		Endpoints:       opts.ProviderEndpoints,
		ConfirmInterval: opts.ConfirmInterval,
	})
	return e, nil
}

func (e *Engine) Vault() *vault.Vault         { return e.vault }
func (e *Engine) Payments() *payments.Store   { return e.payments }
func (e *Engine) Ledger() *compliance.Ledger  { return e.ledger }
func (e *Engine) Scanner() *scanner.Scanner   { return e.scanner }
func (e *Engine) Registry() *privacy.Registry { return e.registry }
func (e *Engine) ChainName() string           { return e.opts.ChainName }

// MetaAddress returns the active meta-address, creating the first key
// record if the vault is empty.
func (e *Engine) MetaAddress(ctx context.Context) (address.MetaAddress, error) {
	if _, err := e.vault.EnsureKey(ctx); err != nil {
		return address.MetaAddress{}, err
	}
	return e.vault.MetaAddress(ctx, e.opts.ChainName)
}

// Rotate archives the active key record and activates a new one.
func (e *Engine) Rotate(ctx context.Context) (vault.KeyRecord, error) {
	rec, err := e.vault.Rotate(ctx)
	if err != nil {
		return vault.KeyRecord{}, err
	}
	logger.Info("Stealth keys rotated", "id", rec.ID)
	return rec, nil
}

func (e *Engine) ScanNow(ctx context.Context) (scanner.ScanOutput, error) {
	return e.scanner.ScanNow(ctx)
}

// StartBackgroundScan scans periodically until ctx is cancelled. The
// returned channel closes once the loop has exited.
func (e *Engine) StartBackgroundScan(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		e.scanner.Run(ctx)
	}()
	return done
}

func (e *Engine) ListPayments(ctx context.Context) ([]payments.Record, error) {
	return e.payments.List(ctx)
}

func (e *Engine) ComplianceRecords(ctx context.Context, f compliance.Filter) ([]compliance.DecryptedRecord, error) {
	return e.ledger.ListDecrypted(ctx, f)
}

func (e *Engine) ExportCompliance(ctx context.Context, f compliance.Filter) (compliance.EncryptedBundle, error) {
	return e.ledger.Export(ctx, f)
}

func (e *Engine) ClearCompliance(ctx context.Context) error {
	return e.ledger.Clear(ctx)
}

// Disclose records a disclosure and returns the active viewing private key
// to hand to the recipient.
func (e *Engine) Disclose(ctx context.Context, name, purpose string, expiresAt *time.Time) (compliance.Disclosure, []byte, error) {
	active, err := e.vault.ActiveKey(ctx)
	if err != nil {
		return compliance.Disclosure{}, nil, err
	}
	d, err := e.ledger.Disclose(ctx, name, purpose, expiresAt)
	if err != nil {
		return compliance.Disclosure{}, nil, err
	}
	return d, active.ViewingKeyPair.Private, nil
}

func (e *Engine) Revoke(ctx context.Context, id string) (compliance.Disclosure, error) {
	return e.ledger.Revoke(ctx, id)
}

func (e *Engine) Disclosures(ctx context.Context) ([]compliance.Disclosure, error) {
	return e.ledger.ListDisclosures(ctx)
}

func (e *Engine) ActiveDisclosures(ctx context.Context) ([]compliance.Disclosure, error) {
	return e.ledger.ActiveDisclosures(ctx, e.now())
}

func (e *Engine) adapterOptions(signer privacy.Signer) privacy.Options {
	return privacy.Options{
		Network:       e.opts.Network,
		WalletAddress: signer.Address(),
		RPCEndpoint:   e.opts.RPCEndpoint,
	}
}

// adapter returns the initialized provider. A back-end that failed to come
// up is not fatal here; the adapter decides whether it can fall back.
func (e *Engine) adapter(ctx context.Context, kind privacy.Kind, signer privacy.Signer) (privacy.Adapter, error) {
	a, err := e.registry.InitializeAdapter(ctx, kind, e.adapterOptions(signer))
	if err != nil {
		var initErr *privacy.InitError
		if !errors.As(err, &initErr) || a == nil || !a.IsReady() {
			return nil, err
		}
		logger.Warn("Privacy provider degraded", "provider", kind, "error", err)
	}
	return a, nil
}

// complianceRecord appends to the ledger. A failure is logged and handed
// back for the outcome only; the transfer is already on chain.
func (e *Engine) complianceRecord(ctx context.Context, rec compliance.Record) (compliance.RecordID, error) {
	id, err := e.ledger.Append(ctx, rec)
	if err != nil {
		logger.Warn("Failed to append compliance record", "provider", rec.Provider, "tx", rec.TxHash, "error", err)
		return "", fmt.Errorf("compliance record not written: %w", err)
	}
	return id, nil
}
