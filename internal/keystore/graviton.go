package keystore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/deroproject/graviton"
)

const gravitonTree = "keystore"

// Graviton stores blobs in a versioned graviton tree. Every write commits a
// new version.
type Graviton struct {
	mu    sync.Mutex
	store *graviton.Store
}

// OpenGraviton opens a disk store at dir.
func OpenGraviton(dir string) (*Graviton, error) {
	store, err := graviton.NewDiskStore(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open graviton store: %w", err)
	}
	return &Graviton{store: store}, nil
}

// NewGravitonMemory is a graviton store that never touches disk.
func NewGravitonMemory() (*Graviton, error) {
	store, err := graviton.NewMemStore()
	if err != nil {
		return nil, err
	}
	return &Graviton{store: store}, nil
}

func (g *Graviton) tree() (*graviton.Tree, error) {
	ss, err := g.store.LoadSnapshot(0)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return ss.GetTree(gravitonTree)
}

// lookupErr maps graviton's absent-leaf error to ErrNotFound and keeps
// every other failure.
func lookupErr(key string, err error) error {
	if errors.Is(err, graviton.ErrNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("failed to get %s: %w", key, err)
}

func (g *Graviton) Get(_ context.Context, key string) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	tree, err := g.tree()
	if err != nil {
		return nil, err
	}
	value, err := tree.Get([]byte(key))
	if err != nil {
		return nil, lookupErr(key, err)
	}
	if value == nil {
		return nil, ErrNotFound
	}
	return value, nil
}

func (g *Graviton) Set(_ context.Context, key string, value []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	tree, err := g.tree()
	if err != nil {
		return err
	}
	if err := tree.Put([]byte(key), value); err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	if _, err := graviton.Commit(tree); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func (g *Graviton) Delete(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	tree, err := g.tree()
	if err != nil {
		return err
	}
	if _, err := tree.Get([]byte(key)); err != nil {
		if err := lookupErr(key, err); !errors.Is(err, ErrNotFound) {
			return err
		}
		return nil
	}
	if err := tree.Delete([]byte(key)); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	if _, err := graviton.Commit(tree); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}
