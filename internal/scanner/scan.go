package scanner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/bits"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Maphikza/sip-privacy-wallet/internal/chain"
	"github.com/Maphikza/sip-privacy-wallet/internal/logger"
	"github.com/Maphikza/sip-privacy-wallet/internal/payments"
	"github.com/Maphikza/sip-privacy-wallet/internal/vault"
	"github.com/Maphikza/sip-privacy-wallet/lib/address"
	"github.com/Maphikza/sip-privacy-wallet/lib/amount"
	"github.com/Maphikza/sip-privacy-wallet/lib/curve"
	"github.com/Maphikza/sip-privacy-wallet/lib/stealth"
)

// ScanInput is everything one scan pass looks at.
type ScanInput struct {
	Records  []chain.TransferRecord
	Keys     []vault.KeyRecord
	Seen     *SeenSet
	LastScan time.Time

	// Chain names the chain used to render stealth addresses. Records that
	// carry their own chain override it.
	Chain string
	// Parallelism bounds concurrent derivations. Zero means GOMAXPROCS.
	Parallelism int
}

// Rejection is a record that could not be tested, with the reason.
type Rejection struct {
	Record chain.TransferRecord
	Err    error
}

// Notification summarizes what a scan found. Total saturates at
// math.MaxUint64.
type Notification struct {
	Count          int
	Total          uint64
	UnknownAmounts int
}

// ScanOutput is the result of PerformScan. Found is in record order.
type ScanOutput struct {
	Found        []payments.Record
	Seen         *SeenSet
	LastScan     time.Time
	Notification *Notification
	Rejected     []Rejection
}

type match struct {
	owned  bool
	key    vault.KeyRecord
	amount *uint64
	reject error
}

// PerformScan tests every record against every key record and returns the
// owned ones. It has no side effects: the input seen set is not modified.
func PerformScan(ctx context.Context, in ScanInput) (ScanOutput, error) {
	seen := in.Seen
	if seen == nil {
		seen = NewSeenSet(0, nil)
	}
	out := ScanOutput{Seen: seen.Clone(), LastScan: in.LastScan}

	for _, r := range in.Records {
		if r.Timestamp.After(out.LastScan) {
			out.LastScan = r.Timestamp
		}
	}

	curves := make(map[curve.ID]curve.Curve)
	for _, k := range in.Keys {
		if _, ok := curves[k.Curve]; ok {
			continue
		}
		c, err := curve.ByID(k.Curve)
		if err != nil {
			return ScanOutput{}, fmt.Errorf("key record %s: %w", k.ID, err)
		}
		curves[k.Curve] = c
	}

	limit := in.Parallelism
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}

	results := make([]match, len(in.Records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := range in.Records {
		i := i
		if seen.Contains(RecordHash(in.Records[i].StealthRecipient)) {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			m, err := derive(in.Records[i], in.Keys, curves)
			if err != nil {
				return err
			}
			results[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ScanOutput{}, err
	}

	var note Notification
	for i, m := range results {
		rec := in.Records[i]
		// Rejected records stay out of the seen set: they share the key of
		// the transfer whose recipient they carry.
		if m.reject != nil {
			logger.Warn("Rejected transfer record", "tx", rec.TxHash, "error", m.reject)
			out.Rejected = append(out.Rejected, Rejection{Record: rec, Err: m.reject})
			continue
		}
		if !m.owned {
			continue
		}
		h := RecordHash(rec.StealthRecipient)
		// Two records for the same one-time address in one batch.
		if out.Seen.Contains(h) {
			continue
		}
		out.Seen.Add(h)
		out.Found = append(out.Found, paymentFor(rec, m, h, in.Chain))

		note.Count++
		if m.amount != nil {
			note.Total = saturatingAdd(note.Total, *m.amount)
		} else {
			note.UnknownAmounts++
		}
	}
	if note.Count > 0 {
		out.Notification = &note
	}
	return out, nil
}

func saturatingAdd(a, b uint64) uint64 {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return math.MaxUint64
	}
	return sum
}

// derive finds the first key record that owns rec.
func derive(rec chain.TransferRecord, keys []vault.KeyRecord, curves map[curve.ID]curve.Curve) (match, error) {
	for _, k := range keys {
		c := curves[k.Curve]
		owned, err := stealth.Recognize(c, k.ViewingKeyPair.Private, k.SpendingKeyPair.Public, rec.EphemeralPubkey, rec.StealthRecipient)
		if errors.Is(err, curve.ErrInvalidPoint) {
			return match{reject: err}, nil
		}
		if err != nil {
			return match{}, fmt.Errorf("key record %s: %w", k.ID, err)
		}
		if !owned {
			continue
		}

		m := match{owned: true, key: k}
		if len(rec.EncryptedAmount) > 0 {
			shared, err := stealth.SharedSecret(c, k.ViewingKeyPair.Private, rec.EphemeralPubkey)
			if err != nil {
				return match{}, err
			}
			if v, err := amount.DecryptWith(rec.EncryptedAmount, shared); err == nil {
				m.amount = &v
			} else {
				logger.Warn("Could not decrypt amount of owned transfer", "tx", rec.TxHash, "error", err)
			}
		}
		return m, nil
	}
	return match{}, nil
}

func paymentFor(rec chain.TransferRecord, m match, id, defaultChain string) payments.Record {
	chainName := rec.Chain
	if chainName == "" {
		chainName = defaultChain
	}
	// Unknown chains keep an empty display address; the key is still stored.
	display, _ := address.ChainAddress(chainName, rec.StealthRecipient)
	return payments.Record{
		ID:               id,
		Direction:        payments.Receive,
		Amount:           m.amount,
		Token:            rec.Token,
		Status:           payments.StatusConfirmed,
		Timestamp:        rec.Timestamp,
		PrivacyLevel:     payments.Shielded,
		TxHash:           string(rec.TxHash),
		StealthAddress:   display,
		StealthPublicKey: rec.StealthRecipient,
		EphemeralPubkey:  rec.EphemeralPubkey,
		KeyID:            m.key.ID,
	}
}
