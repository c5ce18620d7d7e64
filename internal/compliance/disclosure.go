package compliance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Maphikza/sip-privacy-wallet/internal/keystore"
)

var ErrDisclosureNotFound = errors.New("disclosure not found")

// Disclosure notes that the viewing key was handed to someone. Revoking it
// only updates this note; the recipient keeps what they were given.
type Disclosure struct {
	ID            string     `json:"id"`
	RecipientName string     `json:"recipientName"`
	Purpose       string     `json:"purpose"`
	DisclosedAt   time.Time  `json:"disclosedAt"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
	Revoked       bool       `json:"revoked"`
	RevokedAt     *time.Time `json:"revokedAt,omitempty"`
}

// Active reports whether d is neither revoked nor expired at now.
func (d Disclosure) Active(now time.Time) bool {
	if d.Revoked {
		return false
	}
	return d.ExpiresAt == nil || now.Before(*d.ExpiresAt)
}

type disclosureBlob struct {
	Version     int          `json:"version"`
	Disclosures []Disclosure `json:"disclosures"`
}

func (l *Ledger) loadDisclosures(ctx context.Context) (*disclosureBlob, error) {
	var b disclosureBlob
	if _, err := keystore.GetJSON(ctx, l.store, DisclosuresStorageKey, &b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLedger, err)
	}
	b.Version = 1
	return &b, nil
}

func (l *Ledger) updateDisclosures(ctx context.Context, fn func(b *disclosureBlob) error) error {
	unlock := l.locker.Lock(DisclosuresStorageKey)
	defer unlock()

	b, err := l.loadDisclosures(ctx)
	if err != nil {
		return err
	}
	if err := fn(b); err != nil {
		return err
	}
	if err := keystore.SetJSON(ctx, l.store, DisclosuresStorageKey, b); err != nil {
		return fmt.Errorf("%w: %v", ErrLedger, err)
	}
	return nil
}

// Disclose records that the viewing key was shared with name.
func (l *Ledger) Disclose(ctx context.Context, name, purpose string, expiresAt *time.Time) (Disclosure, error) {
	if name == "" {
		return Disclosure{}, fmt.Errorf("%w: recipient name is required", ErrLedger)
	}
	d := Disclosure{
		ID:            uuid.NewString(),
		RecipientName: name,
		Purpose:       purpose,
		DisclosedAt:   l.now(),
		ExpiresAt:     expiresAt,
	}
	err := l.updateDisclosures(ctx, func(b *disclosureBlob) error {
		b.Disclosures = append(b.Disclosures, d)
		return nil
	})
	return d, err
}

// Revoke marks a disclosure revoked. Revoking twice keeps the first time.
func (l *Ledger) Revoke(ctx context.Context, id string) (Disclosure, error) {
	var out Disclosure
	err := l.updateDisclosures(ctx, func(b *disclosureBlob) error {
		for i := range b.Disclosures {
			d := &b.Disclosures[i]
			if d.ID != id {
				continue
			}
			if !d.Revoked {
				now := l.now()
				d.Revoked = true
				d.RevokedAt = &now
			}
			out = *d
			return nil
		}
		return fmt.Errorf("%w: %s", ErrDisclosureNotFound, id)
	})
	return out, err
}

func (l *Ledger) ListDisclosures(ctx context.Context) ([]Disclosure, error) {
	b, err := l.loadDisclosures(ctx)
	if err != nil {
		return nil, err
	}
	return b.Disclosures, nil
}

// ActiveDisclosures lists disclosures that are live at now.
func (l *Ledger) ActiveDisclosures(ctx context.Context, now time.Time) ([]Disclosure, error) {
	all, err := l.ListDisclosures(ctx)
	if err != nil {
		return nil, err
	}
	var out []Disclosure
	for _, d := range all {
		if d.Active(now) {
			out = append(out, d)
		}
	}
	return out, nil
}
