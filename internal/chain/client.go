// Package chain is the wallet's view of the blockchain: a source of stealth
// transfer records and a sink for signed transactions.
package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

var (
	// ErrChain wraps every network or consensus failure. Callers retry with
	// backoff; it is never swallowed.
	ErrChain        = errors.New("chain error")
	ErrNotConfirmed = errors.New("transaction not confirmed")
	ErrTxFailed     = errors.New("transaction failed")
	ErrTxNotFound   = errors.New("transaction not found")
)

// TxHash identifies a submitted transaction.
type TxHash string

// TransferRecord is one stealth transfer as stored by the on-chain program.
type TransferRecord struct {
	EphemeralPubkey  []byte    `json:"ephemeralPubkey"`
	StealthRecipient []byte    `json:"stealthRecipient"`
	EncryptedAmount  []byte    `json:"encryptedAmount,omitempty"`
	Timestamp        time.Time `json:"timestamp"`

	TxHash TxHash `json:"txHash,omitempty"`
	Token  string `json:"token,omitempty"`
	Chain  string `json:"chain,omitempty"`
}

// Client is consumed by the scanner and the privacy adapters.
type Client interface {
	// FetchTransferRecordsSince returns records with Timestamp >= since.
	FetchTransferRecordsSince(ctx context.Context, since time.Time) ([]TransferRecord, error)
	SubmitSignedTransaction(ctx context.Context, tx []byte) (TxHash, error)
	// Confirm returns nil once the transaction is final.
	Confirm(ctx context.Context, hash TxHash) error
}

// Transfer is the payload a stealth payment announces on chain. The value
// travels only as EncryptedAmount.
type Transfer struct {
	Chain            string `json:"chain"`
	Token            string `json:"token,omitempty"`
	From             string `json:"from"`
	StealthRecipient []byte `json:"stealthRecipient"`
	EphemeralPubkey  []byte `json:"ephemeralPubkey"`
	EncryptedAmount  []byte `json:"encryptedAmount,omitempty"`
	Memo             string `json:"memo,omitempty"`
}

// SignedTransaction is a Transfer plus the sender's signature over Payload.
type SignedTransaction struct {
	Payload   []byte `json:"payload"`
	Signer    string `json:"signer"`
	Signature []byte `json:"signature"`
}

// Encode serializes the transaction for SubmitSignedTransaction.
func (tx SignedTransaction) Encode() ([]byte, error) {
	return json.Marshal(tx)
}

// DecodeTransaction parses the output of Encode.
func DecodeTransaction(raw []byte) (SignedTransaction, *Transfer, error) {
	var tx SignedTransaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return SignedTransaction{}, nil, fmt.Errorf("failed to decode transaction: %w", err)
	}
	var transfer Transfer
	if err := json.Unmarshal(tx.Payload, &transfer); err != nil {
		return SignedTransaction{}, nil, fmt.Errorf("failed to decode transfer: %w", err)
	}
	return tx, &transfer, nil
}

// HashTransaction is the id of a raw transaction.
func HashTransaction(raw []byte) TxHash {
	return TxHash(chainhash.DoubleHashH(raw).String())
}
