package privacy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Maphikza/sip-privacy-wallet/internal/logger"
)

// Factory builds an adapter. It must not do I/O; that belongs in Initialize.
type Factory func(opts Options, env Env) (Adapter, error)

type cacheKey struct {
	network       string
	walletAddress string
}

type entry struct {
	adapter Adapter

	mu          sync.Mutex
	initialized bool
	initErr     error
}

// Registry creates adapters and caches one instance per kind for the
// current network and wallet.
type Registry struct {
	env Env

	mu        sync.Mutex
	factories map[Kind]Factory
	key       cacheKey
	cache     map[Kind]*entry
}

// NewRegistry returns a registry with the built-in providers registered.
func NewRegistry(env Env) *Registry {
	r := &Registry{
		env:       env,
		factories: make(map[Kind]Factory),
		cache:     make(map[Kind]*entry),
	}
	r.RegisterFactory(Native, func(opts Options, env Env) (Adapter, error) {
		return NewNativeAdapter(opts, env), nil
	})
	for _, kind := range []Kind{PoolMix, TEE, MPC, FHE, ConfidentialToken} {
		r.RegisterFactory(kind, delegatedFactory(kind))
	}
	return r
}

func delegatedFactory(kind Kind) Factory {
	return func(opts Options, env Env) (Adapter, error) {
		var backend Backend
		if ep := env.Endpoints[kind]; ep != "" {
			backend = NewHTTPBackend(ep, env.HTTPClient)
		}
		return NewDelegatedAdapter(kind, opts, env, backend), nil
	}
}

// RegisterFactory adds or replaces the factory for kind. Cached instances
// of kind are dropped.
func (r *Registry) RegisterFactory(kind Kind, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = f
	delete(r.cache, kind)
}

// Kinds lists the registered providers.
func (r *Registry) Kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Kind, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CreateAdapter builds a fresh, uncached adapter.
func (r *Registry) CreateAdapter(kind Kind, opts Options) (Adapter, error) {
	r.mu.Lock()
	f, ok := r.factories[kind]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, kind)
	}
	return f(opts, r.env)
}

// GetAdapter returns the cached adapter for kind. A change of network or
// wallet address empties the whole cache first.
func (r *Registry) GetAdapter(kind Kind, opts Options) (Adapter, error) {
	e, err := r.entry(kind, opts)
	if err != nil {
		return nil, err
	}
	return e.adapter, nil
}

func (r *Registry) entry(kind Kind, opts Options) (*entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := cacheKey{network: opts.Network, walletAddress: opts.WalletAddress}
	if key != r.key {
		if len(r.cache) > 0 {
			logger.Debug("Adapter cache invalidated", "network", opts.Network)
		}
		r.cache = make(map[Kind]*entry)
		r.key = key
	}
	if e, ok := r.cache[kind]; ok {
		return e, nil
	}

	f, ok := r.factories[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, kind)
	}
	a, err := f(opts, r.env)
	if err != nil {
		return nil, err
	}
	e := &entry{adapter: a}
	r.cache[kind] = e
	return e, nil
}

// InitializeAdapter returns the cached adapter after running its Initialize
// once. Later calls return the first outcome. An attempt cut short by the
// caller's context is not remembered.
func (r *Registry) InitializeAdapter(ctx context.Context, kind Kind, opts Options) (Adapter, error) {
	e, err := r.entry(kind, opts)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		err := e.adapter.Initialize(ctx)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return e.adapter, err
		}
		e.initialized = true
		e.initErr = err
	}
	return e.adapter, e.initErr
}
