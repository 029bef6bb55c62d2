package ipmeta

import (
	"context"
	"errors"
	"net/netip"

	"github.com/TomasB/ipmeta/internal/index"
)

// fakeBackend serves a fixed prefix table once enabled with any option
// string other than "bad".
type fakeBackend struct {
	desc    Descriptor
	entries map[string]*Record

	idx       index.Index[*Record]
	lookupErr error
	lookups   int
	closed    int
}

func newFakeBackend(id ProviderID, name string, entries map[string]*Record) *fakeBackend {
	for _, rec := range entries {
		rec.Source = id
	}
	return &fakeBackend{desc: Descriptor{ID: id, Name: name}, entries: entries}
}

func (f *fakeBackend) Describe() Descriptor { return f.desc }

func (f *fakeBackend) Enable(_ context.Context, options string, kind index.Kind) error {
	if options == "bad" {
		return errors.New("unsupported option")
	}
	idx, err := index.New[*Record](kind)
	if err != nil {
		return err
	}
	for pfx, rec := range f.entries {
		if err := idx.Insert(netip.MustParsePrefix(pfx), rec); err != nil {
			return err
		}
	}
	f.idx = idx
	return nil
}

func (f *fakeBackend) Lookup(q netip.Prefix, emit Emit) error {
	f.lookups++
	if f.lookupErr != nil {
		return f.lookupErr
	}
	matches, err := f.idx.Cover(q)
	if err != nil {
		return err
	}
	for _, m := range matches {
		emit(m.Value, m.Count)
	}
	return nil
}

func (f *fakeBackend) Close() error {
	f.closed++
	return nil
}
