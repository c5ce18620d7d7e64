package scanner

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// DefaultSeenLimit bounds the seen set when no limit is configured.
const DefaultSeenLimit = 10000

// RecordHash is the dedup key of a transfer: the SHA-256 of its stealth
// recipient, in chainhash's display form.
func RecordHash(stealthRecipient []byte) string {
	return chainhash.HashH(stealthRecipient).String()
}

// SeenSet remembers which owned transfers were already recorded. It is a
// bounded FIFO: once full, the oldest hash is dropped first.
type SeenSet struct {
	limit  int
	order  []string
	hashes map[string]struct{}
}

func NewSeenSet(limit int, hashes []string) *SeenSet {
	if limit <= 0 {
		limit = DefaultSeenLimit
	}
	s := &SeenSet{limit: limit, hashes: make(map[string]struct{}, len(hashes))}
	for _, h := range hashes {
		s.Add(h)
	}
	return s
}

func (s *SeenSet) Contains(h string) bool {
	_, ok := s.hashes[h]
	return ok
}

// Add inserts h, evicting the oldest entries beyond the limit.
func (s *SeenSet) Add(h string) {
	if s.Contains(h) {
		return
	}
	s.order = append(s.order, h)
	s.hashes[h] = struct{}{}
	for len(s.order) > s.limit {
		delete(s.hashes, s.order[0])
		s.order = s.order[1:]
	}
}

func (s *SeenSet) Len() int {
	return len(s.order)
}

// Hashes returns the set oldest first.
func (s *SeenSet) Hashes() []string {
	return append([]string(nil), s.order...)
}

// Clone returns an independent copy.
func (s *SeenSet) Clone() *SeenSet {
	return NewSeenSet(s.limit, s.order)
}
