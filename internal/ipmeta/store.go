// Package ipmeta maps IP addresses and prefixes to metadata records drawn
// from pluggable providers.
//
// A Store owns a registry of providers and one reusable RecordSet. Callers
// enable providers, then look up an address or prefix; every enabled
// provider selected by the mask contributes one entry per record that owns
// part of the queried range, annotated with how many addresses it owns.
//
// A Store is not safe for concurrent use. Independent stores are.
package ipmeta

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/TomasB/ipmeta/internal/index"
	"lukechampine.com/uint128"
)

// Store is the provider registry and lookup entry point.
type Store struct {
	kind      index.Kind
	providers []*provider // ascending id
	byID      map[ProviderID]*provider
	byName    map[string]*provider
	set       *RecordSet

	// refs counts the owner plus every outstanding Provider handle.
	refs   atomic.Int64
	closed atomic.Bool
	dead   atomic.Bool
}

// NewStore registers the given backends. kind selects the index data
// structure handed to every backend on Enable; empty selects index.Default.
func NewStore(kind index.Kind, backends ...Backend) (*Store, error) {
	kind, err := index.ParseKind(string(kind))
	if err != nil {
		return nil, err
	}

	s := &Store{
		kind:   kind,
		byID:   make(map[ProviderID]*provider, len(backends)),
		byName: make(map[string]*provider, len(backends)),
		set:    NewRecordSet(),
	}
	for _, b := range backends {
		d := b.Describe()
		if d.ID < 1 || d.ID > MaxProviderID {
			return nil, fmt.Errorf("provider %q: id %d out of range 1-%d", d.Name, d.ID, MaxProviderID)
		}
		if d.Name == "" {
			return nil, fmt.Errorf("provider %d: empty name", d.ID)
		}
		if _, dup := s.byID[d.ID]; dup {
			return nil, fmt.Errorf("provider %q: duplicate id %d", d.Name, d.ID)
		}
		if _, dup := s.byName[d.Name]; dup {
			return nil, fmt.Errorf("provider %d: duplicate name %q", d.ID, d.Name)
		}
		p := &provider{desc: d, backend: b}
		s.providers = append(s.providers, p)
		s.byID[d.ID] = p
		s.byName[d.Name] = p
	}
	slices.SortFunc(s.providers, func(a, b *provider) int { return int(a.desc.ID - b.desc.ID) })

	s.refs.Store(1)
	return s, nil
}

// Kind returns the index data structure used by the store's providers.
func (s *Store) Kind() index.Kind { return s.kind }

// ProviderByID returns a handle to the provider with the given id, enabled
// or not.
func (s *Store) ProviderByID(id ProviderID) (*Provider, error) {
	if s.closed.Load() {
		return nil, ErrInvalidated
	}
	p, ok := s.byID[id]
	if !ok {
		return nil, &InputError{Input: strconv.Itoa(int(id)), Err: ErrUnknownProvider}
	}
	return newProviderHandle(s, p), nil
}

// ProviderByName returns a handle to the provider with the given name. The
// match is exact and case-sensitive.
func (s *Store) ProviderByName(name string) (*Provider, error) {
	if s.closed.Load() {
		return nil, ErrInvalidated
	}
	p, ok := s.byName[name]
	if !ok {
		return nil, &InputError{Input: name, Err: ErrUnknownProvider}
	}
	return newProviderHandle(s, p), nil
}

// Providers returns handles to every registered provider in ascending id
// order.
func (s *Store) Providers() ([]*Provider, error) {
	if s.closed.Load() {
		return nil, ErrInvalidated
	}
	out := make([]*Provider, 0, len(s.providers))
	for _, p := range s.providers {
		out = append(out, newProviderHandle(s, p))
	}
	return out, nil
}

// MaskByName builds a lookup mask from provider names. No names selects
// AllProviders.
func (s *Store) MaskByName(names ...string) (Mask, error) {
	if len(names) == 0 {
		return AllProviders, nil
	}
	var m Mask
	for _, name := range names {
		p, ok := s.byName[name]
		if !ok {
			return 0, &InputError{Input: name, Err: ErrUnknownProvider}
		}
		m |= p.mask()
	}
	return m, nil
}

// EnableProvider loads the provider's data with a backend specific option
// string. Enabling an already enabled provider fails with a ConfigError
// wrapping ErrAlreadyEnabled and leaves it enabled.
func (s *Store) EnableProvider(ctx context.Context, h *Provider, options string) error {
	if s.closed.Load() {
		return ErrInvalidated
	}
	if h == nil || h.tok.store != s {
		return &ConfigError{Provider: "<nil>", Options: options, Err: errors.New("provider is not registered with this store")}
	}
	if !h.Valid() {
		return ErrInvalidated
	}

	p := h.tok.p
	if p.enabled {
		return &ConfigError{Provider: p.desc.Name, Options: options, Err: ErrAlreadyEnabled}
	}
	if err := p.backend.Enable(ctx, options, s.kind); err != nil {
		slog.Warn("provider enable failed", "provider", p.desc.Name, "error", err)
		return &ConfigError{Provider: p.desc.Name, Options: options, Err: err}
	}
	p.enabled = true

	slog.Info("provider enabled", "provider", p.desc.Name, "id", p.desc.ID, "index", string(s.kind))
	return nil
}

// EnableProviderSpec enables a provider from a "name options..." string,
// e.g. "pfx2as -f routeviews.pfx2as.gz".
func (s *Store) EnableProviderSpec(ctx context.Context, spec string) error {
	spec = strings.TrimSpace(spec)
	name, options, _ := strings.Cut(spec, " ")
	if name == "" {
		return &ConfigError{Provider: "<empty>", Err: errors.New("empty provider spec")}
	}

	h, err := s.ProviderByName(name)
	if err != nil {
		if errors.Is(err, ErrUnknownProvider) {
			return &ConfigError{Provider: name, Options: options, Err: ErrUnknownProvider}
		}
		return err
	}
	defer h.Release()

	return s.EnableProvider(ctx, h, strings.TrimSpace(options))
}

// Lookup parses an address or prefix and looks it up in every enabled
// provider selected by mask.
//
// The returned RecordSet is the store's scratch buffer: it stays valid only
// until the next Lookup. A malformed query fails with an InputError before
// any provider is consulted and leaves the set empty.
func (s *Store) Lookup(query string, mask Mask) (*RecordSet, error) {
	if s.closed.Load() {
		return nil, ErrInvalidated
	}
	q, err := ParseQuery(query)
	if err != nil {
		s.set.Clear()
		return nil, err
	}
	return s.LookupPrefix(q, mask)
}

// LookupPrefix is Lookup for an already parsed prefix.
func (s *Store) LookupPrefix(q netip.Prefix, mask Mask) (*RecordSet, error) {
	if s.closed.Load() {
		return nil, ErrInvalidated
	}
	s.set.Clear()

	if err := checkPrefix(q); err != nil {
		return nil, &InputError{Input: q.String(), Err: err}
	}
	q = q.Masked()

	emit := func(rec *Record, matched uint128.Uint128) {
		if rec == nil || matched.IsZero() {
			return
		}
		s.set.add(rec, matched)
	}

	for _, p := range s.providers {
		if !p.enabled || mask&p.mask() == 0 {
			continue
		}
		if err := p.backend.Lookup(q, emit); err != nil {
			s.set.Clear()
			slog.Error("provider lookup failed", "provider", p.desc.Name, "query", q.String(), "error", err)
			return nil, &InternalError{Provider: p.desc.Name, Err: err}
		}
	}

	s.set.complete()
	slog.Debug("lookup completed", "query", q.String(), "mask", uint64(mask), "entries", s.set.Len())
	return s.set, nil
}

// Close gives up the owner's reference. The providers are torn down once
// every outstanding Provider handle has been released too. Close is
// idempotent; the store rejects further use by its owner.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.unref()
}

func (s *Store) unref() error {
	if s.refs.Add(-1) != 0 {
		return nil
	}
	return s.teardown()
}

func (s *Store) teardown() error {
	s.dead.Store(true)
	s.set.Clear()

	var errs []error
	for _, p := range s.providers {
		p.enabled = false
		if err := p.backend.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close provider %s: %w", p.desc.Name, err))
		}
	}
	err := errors.Join(errs...)
	if err != nil {
		slog.Error("store teardown failed", "error", err)
	} else {
		slog.Debug("store torn down", "providers", len(s.providers))
	}
	return err
}
