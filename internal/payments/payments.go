// Package payments is the local cache of sent and received payments. It is
// a bounded ring: once full, the oldest record is evicted first.
package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Maphikza/sip-privacy-wallet/internal/keystore"
)

// StorageKey is the keystore key of the payment list.
const StorageKey = "payments"

const storageVersion = 1

// DefaultLimit bounds the cache when no limit is configured.
const DefaultLimit = 500

var ErrNotFound = errors.New("payment not found")

type Direction string

const (
	Send    Direction = "send"
	Receive Direction = "receive"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
	StatusClaimed   Status = "claimed"
)

type PrivacyLevel string

const (
	Shielded    PrivacyLevel = "shielded"
	Compliant   PrivacyLevel = "compliant"
	Transparent PrivacyLevel = "transparent"
)

// Record is one payment. A nil Amount means the payment is owned but its
// amount could not be decrypted.
type Record struct {
	ID           string       `json:"id"`
	Direction    Direction    `json:"direction"`
	Amount       *uint64      `json:"amount,omitempty"`
	Token        string       `json:"token,omitempty"`
	Status       Status       `json:"status"`
	Claimed      bool         `json:"claimed"`
	Timestamp    time.Time    `json:"timestamp"`
	PrivacyLevel PrivacyLevel `json:"privacyLevel"`

	TxHash           string `json:"txHash,omitempty"`
	StealthAddress   string `json:"stealthAddress,omitempty"`
	StealthPublicKey []byte `json:"stealthPublicKey,omitempty"`
	EphemeralPubkey  []byte `json:"ephemeralPubkey,omitempty"`
	KeyID            string `json:"keyId,omitempty"`
	Recipient        string `json:"recipient,omitempty"`
	Provider         string `json:"provider,omitempty"`
	Fallback         bool   `json:"fallback,omitempty"`
}

type blob struct {
	Version int      `json:"version"`
	Records []Record `json:"records"`
}

// Store persists the payment ring.
type Store struct {
	ks     keystore.Store
	locker *keystore.Locker
	limit  int
}

func New(ks keystore.Store, locker *keystore.Locker, limit int) *Store {
	if locker == nil {
		locker = keystore.NewLocker()
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Store{ks: ks, locker: locker, limit: limit}
}

func (s *Store) load(ctx context.Context) (*blob, error) {
	var b blob
	if _, err := keystore.GetJSON(ctx, s.ks, StorageKey, &b); err != nil {
		return nil, err
	}
	b.Version = storageVersion
	return &b, nil
}

// update runs fn on the loaded list under the storage-key lock and saves.
func (s *Store) update(ctx context.Context, fn func(b *blob) error) error {
	unlock := s.locker.Lock(StorageKey)
	defer unlock()

	b, err := s.load(ctx)
	if err != nil {
		return err
	}
	if err := fn(b); err != nil {
		return err
	}
	if over := len(b.Records) - s.limit; over > 0 {
		b.Records = append([]Record(nil), b.Records[over:]...)
	}
	return keystore.SetJSON(ctx, s.ks, StorageKey, b)
}

// Add appends records, evicting the oldest beyond the limit. Records whose
// ID is already cached are skipped, so re-adding after a retry is harmless.
func (s *Store) Add(ctx context.Context, records ...Record) error {
	return s.update(ctx, func(b *blob) error {
		ids := make(map[string]bool, len(b.Records))
		for _, r := range b.Records {
			ids[r.ID] = true
		}
		for _, r := range records {
			if ids[r.ID] {
				continue
			}
			ids[r.ID] = true
			b.Records = append(b.Records, r)
		}
		return nil
	})
}

// List returns the cached payments, newest first.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	b, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Record, len(b.Records))
	for i, r := range b.Records {
		out[len(out)-1-i] = r
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	b, err := s.load(ctx)
	if err != nil {
		return Record{}, err
	}
	for _, r := range b.Records {
		if r.ID == id {
			return r, nil
		}
	}
	return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// MarkClaimed flags a received payment as claimed.
func (s *Store) MarkClaimed(ctx context.Context, id string) (Record, error) {
	var out Record
	err := s.update(ctx, func(b *blob) error {
		for i := range b.Records {
			if b.Records[i].ID == id {
				b.Records[i].Claimed = true
				b.Records[i].Status = StatusClaimed
				out = b.Records[i]
				return nil
			}
		}
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	})
	return out, err
}

// SetStatus updates the status of a payment.
func (s *Store) SetStatus(ctx context.Context, id string, status Status) error {
	return s.update(ctx, func(b *blob) error {
		for i := range b.Records {
			if b.Records[i].ID == id {
				b.Records[i].Status = status
				return nil
			}
		}
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	})
}

// Clear drops every cached payment.
func (s *Store) Clear(ctx context.Context) error {
	unlock := s.locker.Lock(StorageKey)
	defer unlock()
	return s.ks.Delete(ctx, StorageKey)
}
