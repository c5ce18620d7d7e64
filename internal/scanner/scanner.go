// Package scanner finds incoming stealth payments by testing on-chain
// transfer records against every viewing key the vault has ever held.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Maphikza/sip-privacy-wallet/internal/chain"
	"github.com/Maphikza/sip-privacy-wallet/internal/keystore"
	"github.com/Maphikza/sip-privacy-wallet/internal/logger"
	"github.com/Maphikza/sip-privacy-wallet/internal/notify"
	"github.com/Maphikza/sip-privacy-wallet/internal/payments"
	"github.com/Maphikza/sip-privacy-wallet/internal/vault"
)

const (
	LastScanKey = "scanner:last_scan"
	SeenKey     = "scanner:seen"

	DefaultInterval    = 15 * time.Minute
	DefaultMinInterval = time.Minute
)

// ErrScanInProgress is returned to foreground callers while another scan runs.
var ErrScanInProgress = errors.New("scan already in progress")

type Phase string

const (
	Idle      Phase = "idle"
	Fetching  Phase = "fetching"
	Deriving  Phase = "deriving"
	Notifying Phase = "notifying"
)

type lastScanBlob struct {
	Version  int       `json:"version"`
	LastScan time.Time `json:"lastScan"`
}

type seenBlob struct {
	Version int      `json:"version"`
	Hashes  []string `json:"hashes"`
}

// Options configures a Scanner. Chain, Vault, Payments and Store are required.
type Options struct {
	Chain     chain.Client
	Vault     *vault.Vault
	Payments  *payments.Store
	Store     keystore.Store
	Locker    *keystore.Locker
	Notifier  notify.Notifier
	ChainName string

	SeenLimit   int
	Interval    time.Duration
	MinInterval time.Duration
	Parallelism int
}

type Scanner struct {
	opts Options
	now  func() time.Time

	inFlight atomic.Bool
	phase    atomic.Value

	mu      sync.Mutex
	lastRun time.Time
}

func New(opts Options) *Scanner {
	if opts.Locker == nil {
		opts.Locker = keystore.NewLocker()
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.LogNotifier{}
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MinInterval <= 0 {
		opts.MinInterval = DefaultMinInterval
	}
	s := &Scanner{opts: opts, now: time.Now}
	s.phase.Store(Idle)
	return s
}

// Phase reports what the scanner is doing right now.
func (s *Scanner) Phase() Phase {
	return s.phase.Load().(Phase)
}

// ScanNow runs a scan immediately, ignoring the minimum interval.
func (s *Scanner) ScanNow(ctx context.Context) (ScanOutput, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return ScanOutput{}, ErrScanInProgress
	}
	defer s.inFlight.Store(false)
	return s.scan(ctx)
}

// RunOnce is one background tick. It does nothing when a scan is already
// running or the last one started less than MinInterval ago.
func (s *Scanner) RunOnce(ctx context.Context) (ScanOutput, error) {
	s.mu.Lock()
	recent := !s.lastRun.IsZero() && s.now().Sub(s.lastRun) < s.opts.MinInterval
	s.mu.Unlock()
	if recent {
		return ScanOutput{}, nil
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		return ScanOutput{}, nil
	}
	defer s.inFlight.Store(false)
	return s.scan(ctx)
}

// Run scans once and then on every interval tick until ctx is done.
func (s *Scanner) Run(ctx context.Context) {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Background scan failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scanner) scan(ctx context.Context) (ScanOutput, error) {
	defer s.phase.Store(Idle)

	s.mu.Lock()
	s.lastRun = s.now()
	s.mu.Unlock()

	hasKeys, err := s.opts.Vault.HasKeys(ctx)
	if err != nil {
		return ScanOutput{}, err
	}
	if !hasKeys {
		logger.Debug("Skipping scan: no stealth keys")
		return ScanOutput{}, nil
	}

	unlock := s.opts.Locker.Lock(LastScanKey, SeenKey)
	defer unlock()

	s.phase.Store(Fetching)
	lastScan, err := s.loadLastScan(ctx)
	if err != nil {
		return ScanOutput{}, err
	}
	seen, err := s.loadSeen(ctx)
	if err != nil {
		return ScanOutput{}, err
	}
	records, err := s.opts.Chain.FetchTransferRecordsSince(ctx, lastScan)
	if err != nil {
		return ScanOutput{}, err
	}
	logger.Info("Fetched transfer records", "count", len(records), "since", lastScan)

	s.phase.Store(Deriving)
	keys, err := s.opts.Vault.Records(ctx)
	if err != nil {
		return ScanOutput{}, err
	}
	out, err := PerformScan(ctx, ScanInput{
		Records:     records,
		Keys:        keys,
		Seen:        seen,
		LastScan:    lastScan,
		Chain:       s.opts.ChainName,
		Parallelism: s.opts.Parallelism,
	})
	if err != nil {
		return ScanOutput{}, err
	}

	for _, p := range out.Found {
		if err := s.opts.Payments.Add(ctx, p); err != nil {
			return out, fmt.Errorf("record payment %s: %w", p.ID, err)
		}
	}
	if err := keystore.SetJSON(ctx, s.opts.Store, SeenKey, seenBlob{Version: 1, Hashes: out.Seen.Hashes()}); err != nil {
		return out, fmt.Errorf("save seen set: %w", err)
	}
	if out.LastScan.After(lastScan) {
		if err := keystore.SetJSON(ctx, s.opts.Store, LastScanKey, lastScanBlob{Version: 1, LastScan: out.LastScan}); err != nil {
			return out, fmt.Errorf("save last scan: %w", err)
		}
	}

	if out.Notification != nil {
		s.phase.Store(Notifying)
		n := out.Notification
		s.opts.Notifier.Notify(ctx, "Stealth payment received",
			fmt.Sprintf("%d new payment(s), total %d", n.Count, n.Total),
			map[string]string{
				"count":   strconv.Itoa(n.Count),
				"total":   strconv.FormatUint(n.Total, 10),
				"unknown": strconv.Itoa(n.UnknownAmounts),
			})
	}
	logger.Info("Scan completed", "found", len(out.Found), "rejected", len(out.Rejected))
	return out, nil
}

func (s *Scanner) loadLastScan(ctx context.Context) (time.Time, error) {
	var b lastScanBlob
	if _, err := keystore.GetJSON(ctx, s.opts.Store, LastScanKey, &b); err != nil {
		return time.Time{}, err
	}
	return b.LastScan, nil
}

func (s *Scanner) loadSeen(ctx context.Context) (*SeenSet, error) {
	var b seenBlob
	if _, err := keystore.GetJSON(ctx, s.opts.Store, SeenKey, &b); err != nil {
		return nil, err
	}
	return NewSeenSet(s.opts.SeenLimit, b.Hashes), nil
}
