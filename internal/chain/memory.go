package chain

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryClient is an in-process ledger. Submitted transfers become records
// immediately and confirm on the next Confirm call.
type MemoryClient struct {
	mu        sync.Mutex
	records   []TransferRecord
	submitted map[TxHash]bool

	// Now stamps new records; defaults to time.Now.
	Now func() time.Time
	// FetchErr and SubmitErr, when set, are returned wrapped in ErrChain.
	FetchErr  error
	SubmitErr error
}

func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		submitted: make(map[TxHash]bool),
		Now:       time.Now,
	}
}

// Publish appends a record as if another wallet had paid.
func (m *MemoryClient) Publish(r TransferRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.Timestamp.IsZero() {
		r.Timestamp = m.Now()
	}
	m.records = append(m.records, r)
}

func (m *MemoryClient) FetchTransferRecordsSince(ctx context.Context, since time.Time) ([]TransferRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FetchErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrChain, m.FetchErr)
	}

	var out []TransferRecord
	for _, r := range m.records {
		if !r.Timestamp.Before(since) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *MemoryClient) SubmitSignedTransaction(ctx context.Context, raw []byte) (TxHash, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SubmitErr != nil {
		return "", fmt.Errorf("%w: %v", ErrChain, m.SubmitErr)
	}

	_, transfer, err := DecodeTransaction(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrChain, err)
	}
	hash := HashTransaction(raw)
	if len(transfer.StealthRecipient) > 0 {
		m.records = append(m.records, TransferRecord{
			EphemeralPubkey:  transfer.EphemeralPubkey,
			StealthRecipient: transfer.StealthRecipient,
			EncryptedAmount:  transfer.EncryptedAmount,
			Timestamp:        m.Now(),
			TxHash:           hash,
			Token:            transfer.Token,
			Chain:            transfer.Chain,
		})
	}
	m.submitted[hash] = true
	return hash, nil
}

func (m *MemoryClient) Confirm(ctx context.Context, hash TxHash) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.submitted[hash] {
		return fmt.Errorf("%w: %w: %s", ErrChain, ErrTxNotFound, hash)
	}
	return nil
}

// Records returns a copy of every record on the ledger.
func (m *MemoryClient) Records() []TransferRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]TransferRecord(nil), m.records...)
}
