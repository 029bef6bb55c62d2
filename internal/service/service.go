// Package service shares one metadata store between concurrent transports.
//
// The store and its record set are single threaded; the service serializes
// every lookup and copies the results out before releasing the lock.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/TomasB/ipmeta/internal/data"
	"github.com/TomasB/ipmeta/internal/index"
	"github.com/TomasB/ipmeta/internal/ipmeta"
	"lukechampine.com/uint128"
)

// ErrUnavailable is returned when no store is loaded.
var ErrUnavailable = errors.New("metadata store unavailable")

// ErrNoProviders is reported by Ready when no provider is enabled.
var ErrNoProviders = errors.New("no providers enabled")

// Config describes how to build the store.
type Config struct {
	// Providers are "name options..." specs, e.g. "pfx2as -f rv2.pfx2as.gz".
	Providers []string
	// Index selects the prefix index; empty selects index.Default.
	Index index.Kind
	// CacheDir receives downloaded data files.
	CacheDir string
	// Backends overrides the built-in backends.
	Backends func() []ipmeta.Backend
}

// Lookup is what the transports need from the service.
type Lookup interface {
	Lookup(query string, providers []string) ([]Result, error)
	Providers() ([]ProviderInfo, error)
}

// Result is one record and the number of queried addresses it covers.
type Result struct {
	Provider   string
	Record     ipmeta.Record
	MatchedIPs uint128.Uint128
}

// ProviderInfo describes a registered provider.
type ProviderInfo struct {
	ID      ipmeta.ProviderID
	Name    string
	Enabled bool
}

// Service owns the current store.
type Service struct {
	cfg Config

	mu    sync.Mutex
	store *ipmeta.Store
	names map[ipmeta.ProviderID]string
}

// New builds the store and enables every configured provider.
func New(ctx context.Context, cfg Config) (*Service, error) {
	if cfg.Backends == nil {
		opts := data.Options{CacheDir: cfg.CacheDir}
		cfg.Backends = func() []ipmeta.Backend { return data.Backends(opts) }
	}
	s := &Service{cfg: cfg}
	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) build(ctx context.Context) (*ipmeta.Store, map[ipmeta.ProviderID]string, error) {
	store, err := ipmeta.NewStore(s.cfg.Index, s.cfg.Backends()...)
	if err != nil {
		return nil, nil, err
	}
	for _, spec := range s.cfg.Providers {
		if strings.TrimSpace(spec) == "" {
			continue
		}
		if err := store.EnableProviderSpec(ctx, spec); err != nil {
			store.Close()
			return nil, nil, err
		}
	}

	providers, err := store.Providers()
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	names := make(map[ipmeta.ProviderID]string, len(providers))
	for _, p := range providers {
		names[p.ID()] = p.Name()
		p.Release()
	}
	return store, names, nil
}

// Reload builds a fresh store from the configuration and swaps it in. On
// failure the current store stays in service.
func (s *Service) Reload(ctx context.Context) error {
	store, names, err := s.build(ctx)
	if err != nil {
		return fmt.Errorf("failed to load providers: %w", err)
	}

	s.mu.Lock()
	old := s.store
	s.store, s.names = store, names
	s.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			slog.Warn("failed to close previous store", "error", err)
		}
	}
	slog.Info("metadata store loaded", "providers", len(s.cfg.Providers), "index", string(store.Kind()))
	return nil
}

// Lookup resolves query against the named providers, or every enabled
// provider when names is empty.
func (s *Service) Lookup(query string, providers []string) ([]Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store == nil {
		return nil, ErrUnavailable
	}
	mask, err := s.store.MaskByName(providers...)
	if err != nil {
		return nil, err
	}
	rs, err := s.store.Lookup(query, mask)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, rs.Len())
	for rec, matched := range rs.All() {
		results = append(results, Result{
			Provider:   s.names[rec.Source],
			Record:     *rec,
			MatchedIPs: matched,
		})
	}
	return results, nil
}

// Providers lists every registered provider in id order.
func (s *Service) Providers() ([]ProviderInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store == nil {
		return nil, ErrUnavailable
	}
	handles, err := s.store.Providers()
	if err != nil {
		return nil, err
	}
	out := make([]ProviderInfo, 0, len(handles))
	for _, h := range handles {
		out = append(out, ProviderInfo{ID: h.ID(), Name: h.Name(), Enabled: h.Enabled()})
		h.Release()
	}
	return out, nil
}

// Ready reports whether lookups can be served.
func (s *Service) Ready() error {
	providers, err := s.Providers()
	if err != nil {
		return err
	}
	for _, p := range providers {
		if p.Enabled {
			return nil
		}
	}
	return ErrNoProviders
}

// Close releases the current store.
func (s *Service) Close() error {
	s.mu.Lock()
	store := s.store
	s.store = nil
	s.mu.Unlock()

	if store == nil {
		return nil
	}
	return store.Close()
}

// Aggregate merges results that share a provider and record id, summing
// their counts. The first result of each group keeps its position.
func Aggregate(results []Result) []Result {
	type key struct {
		provider string
		id       uint32
	}
	out := make([]Result, 0, len(results))
	pos := make(map[key]int, len(results))
	for _, r := range results {
		k := key{r.Provider, r.Record.ID}
		if i, ok := pos[k]; ok {
			out[i].MatchedIPs = out[i].MatchedIPs.Add(r.MatchedIPs)
			continue
		}
		pos[k] = len(out)
		out = append(out, r)
	}
	return out
}
