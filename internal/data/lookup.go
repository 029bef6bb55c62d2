package data

import (
	"errors"
	"net/netip"

	"github.com/TomasB/ipmeta/internal/index"
	"github.com/TomasB/ipmeta/internal/ipmeta"
	"lukechampine.com/uint128"
)

var errNotEnabled = errors.New("provider not enabled")

// table is the prefix index shared by the file based backends.
type table struct {
	idx index.Index[*ipmeta.Record]
}

func newTable(kind index.Kind) (*table, error) {
	idx, err := index.New[*ipmeta.Record](kind)
	if err != nil {
		return nil, err
	}
	return &table{idx: idx}, nil
}

func (t *table) insert(pfx netip.Prefix, rec *ipmeta.Record) error {
	return t.idx.Insert(pfx, rec)
}

// insertRange indexes the inclusive range [from, to] and returns its size.
func (t *table) insertRange(from, to netip.Addr, rec *ipmeta.Record) (uint128.Uint128, error) {
	prefixes, err := index.RangePrefixes(from, to)
	if err != nil {
		return uint128.Zero, err
	}
	size := uint128.Zero
	for _, pfx := range prefixes {
		if err := t.idx.Insert(pfx, rec); err != nil {
			return uint128.Zero, err
		}
		size = size.Add(index.Size(pfx))
	}
	return size, nil
}

// lookup emits one pair per distinct record, in first-match order. Several
// indexed prefixes can share a record, e.g. the CIDRs of one block range.
func (t *table) lookup(q netip.Prefix, emit ipmeta.Emit) error {
	matches, err := t.idx.Cover(q)
	if err != nil {
		return err
	}
	emitAggregated(matches, emit)
	return nil
}

func emitAggregated(matches []index.Match[*ipmeta.Record], emit ipmeta.Emit) {
	if len(matches) == 1 {
		emit(matches[0].Value, matches[0].Count)
		return
	}

	order := make([]*ipmeta.Record, 0, len(matches))
	counts := make(map[*ipmeta.Record]uint128.Uint128, len(matches))
	for _, m := range matches {
		c, seen := counts[m.Value]
		if !seen {
			order = append(order, m.Value)
		}
		counts[m.Value] = c.Add(m.Count)
	}
	for _, rec := range order {
		emit(rec, counts[rec])
	}
}

// tableBackend holds what the file based backends share.
type tableBackend struct {
	desc    ipmeta.Descriptor
	fetcher *Fetcher
	tbl     *table
}

func (b *tableBackend) Describe() ipmeta.Descriptor { return b.desc }

func (b *tableBackend) Lookup(q netip.Prefix, emit ipmeta.Emit) error {
	if b.tbl == nil {
		return errNotEnabled
	}
	return b.tbl.lookup(q, emit)
}

func (b *tableBackend) Close() error {
	b.tbl = nil
	return nil
}
