package ipmeta

import (
	"context"
	"fmt"
	"net/netip"
	"runtime"
	"sync/atomic"

	"github.com/TomasB/ipmeta/internal/index"
	"lukechampine.com/uint128"
)

// ProviderID identifies a provider for the lifetime of the process. Valid
// ids are 1 through MaxProviderID.
type ProviderID int

// MaxProviderID is the largest id that still fits in a Mask.
const MaxProviderID = 64

// Mask selects providers for a lookup, one bit per provider id.
type Mask uint64

// AllProviders selects every enabled provider.
const AllProviders = ^Mask(0)

// MaskOf returns the bit for the provider with the given id.
func MaskOf(id ProviderID) Mask {
	if id < 1 || id > MaxProviderID {
		return 0
	}
	return 1 << (id - 1)
}

// Descriptor is the static identity of a backend.
type Descriptor struct {
	ID   ProviderID
	Name string
}

// Emit receives one (record, coverage) pair from a backend lookup.
type Emit func(rec *Record, matched uint128.Uint128)

// Backend is a provider implementation: it loads its own data and answers
// prefix queries against its own index.
type Backend interface {
	// Describe returns the backend's static identity.
	Describe() Descriptor

	// Enable loads the backend's data according to a backend specific option
	// string. A failed Enable must leave the backend disabled and unchanged.
	Enable(ctx context.Context, options string, kind index.Kind) error

	// Lookup emits one pair per distinct record owning part of q. It is only
	// called after a successful Enable, with a valid masked prefix.
	Lookup(q netip.Prefix, emit Emit) error

	// Close releases the backend's resources.
	Close() error
}

type provider struct {
	desc    Descriptor
	backend Backend
	enabled bool
}

func (p *provider) mask() Mask { return MaskOf(p.desc.ID) }

// handleToken is the part of a Provider handle its runtime cleanup may
// reference.
type handleToken struct {
	store    *Store
	p        *provider
	released atomic.Bool
}

func (t *handleToken) release() {
	if t.released.CompareAndSwap(false, true) {
		t.store.unref()
	}
}

// Provider is a handle to one provider registered in a Store.
//
// A live handle keeps its store's data alive: the store is only torn down
// once its owner has closed it and every handle has been released, either
// explicitly with Release or by the garbage collector.
type Provider struct {
	tok     *handleToken
	cleanup runtime.Cleanup
}

func newProviderHandle(s *Store, p *provider) *Provider {
	s.refs.Add(1)
	tok := &handleToken{store: s, p: p}
	h := &Provider{tok: tok}
	h.cleanup = runtime.AddCleanup(h, func(t *handleToken) { t.release() }, tok)
	return h
}

// ID returns the provider id. ID, Name and Mask describe the provider's
// fixed identity and keep answering after the handle is released.
func (h *Provider) ID() ProviderID { return h.tok.p.desc.ID }

// Name returns the provider name.
func (h *Provider) Name() string { return h.tok.p.desc.Name }

// Mask returns the provider's bit for building a lookup mask.
func (h *Provider) Mask() Mask { return h.tok.p.mask() }

// Enabled reports whether the provider takes part in lookups. A released
// handle always reports false.
func (h *Provider) Enabled() bool {
	return h.Valid() && h.tok.p.enabled
}

// Valid reports whether the handle may still be used.
func (h *Provider) Valid() bool {
	return !h.tok.released.Load() && !h.tok.store.dead.Load()
}

// Release gives up the handle's reference on its store. Enabling through a
// released handle fails with ErrInvalidated and Enabled reports false.
// Release is idempotent.
func (h *Provider) Release() {
	h.cleanup.Stop()
	h.tok.release()
}

func (h *Provider) String() string {
	return fmt.Sprintf("<Provider id: %d, name: %s, enabled: %t>", h.ID(), h.Name(), h.Enabled())
}
