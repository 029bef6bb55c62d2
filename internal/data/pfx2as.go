package data

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"strconv"
	"strings"

	"github.com/TomasB/ipmeta/internal/index"
	"github.com/TomasB/ipmeta/internal/ipmeta"
)

// Pfx2AS serves CAIDA RouteViews prefix-to-AS files. Each distinct origin
// string (e.g. "3356", "3356_174" or "64512,64513") becomes one record
// whose ASNIPCount is the address space announced by that origin.
//
// Options: -f <pfx2as file>
type Pfx2AS struct {
	tableBackend
}

// NewPfx2AS returns a disabled prefix-to-AS backend.
func NewPfx2AS(fetcher *Fetcher) *Pfx2AS {
	return &Pfx2AS{tableBackend{desc: ipmeta.Descriptor{ID: Pfx2ASID, Name: "pfx2as"}, fetcher: fetcher}}
}

func (p *Pfx2AS) Enable(ctx context.Context, options string, kind index.Kind) error {
	opts := newOptionSet(p.desc.Name)
	file := opts.file("f", "pfx2as file")
	if err := opts.parse(options); err != nil {
		return err
	}
	if err := opts.require("f"); err != nil {
		return err
	}

	tbl, err := newTable(kind)
	if err != nil {
		return err
	}
	if err := p.read(ctx, *file, tbl); err != nil {
		return err
	}

	p.tbl = tbl
	return nil
}

func (p *Pfx2AS) read(ctx context.Context, path string, tbl *table) error {
	rc, err := p.fetcher.Open(ctx, path)
	if err != nil {
		return err
	}
	defer rc.Close()

	groups := make(map[string]*ipmeta.Record)
	r := newTSVReader(rc)
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		line, _ := r.FieldPos(0)
		if len(row) < 3 {
			return fmt.Errorf("%s line %d: expected 3 fields, got %d", path, line, len(row))
		}

		pfx, err := parsePrefix(row[0], row[1])
		if err != nil {
			return fmt.Errorf("%s line %d: %w", path, line, err)
		}
		origin := strings.TrimSpace(row[2])
		rec, ok := groups[origin]
		if !ok {
			asns, err := parseOrigin(origin)
			if err != nil {
				return fmt.Errorf("%s line %d: %w", path, line, err)
			}
			rec = &ipmeta.Record{ID: uint32(len(groups) + 1), Source: p.desc.ID, ASNs: asns}
			groups[origin] = rec
		}
		if err := tbl.insert(pfx, rec); err != nil {
			return fmt.Errorf("%s line %d: %w", path, line, err)
		}
		rec.ASNIPCount = rec.ASNIPCount.Add(index.Size(pfx))
	}
}

func parsePrefix(addr, bits string) (netip.Prefix, error) {
	a, err := netip.ParseAddr(strings.TrimSpace(addr))
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("invalid address %q", addr)
	}
	n, err := strconv.Atoi(strings.TrimSpace(bits))
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("invalid prefix length %q", bits)
	}
	pfx, err := a.Unmap().Prefix(n)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("invalid prefix %s/%s", addr, bits)
	}
	return pfx, nil
}

// parseOrigin splits a multi-origin ("_") or AS-set (",") origin field into
// its distinct ASNs, keeping their order.
func parseOrigin(s string) ([]uint32, error) {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '_' || r == ',' })
	if len(parts) == 0 {
		return nil, errors.New("empty origin")
	}
	asns := make([]uint32, 0, len(parts))
	seen := make(map[uint32]bool, len(parts))
	for _, part := range parts {
		v, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid origin ASN %q", part)
		}
		if !seen[uint32(v)] {
			seen[uint32(v)] = true
			asns = append(asns, uint32(v))
		}
	}
	return asns, nil
}
