package data

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/TomasB/ipmeta/internal/index"
	"github.com/TomasB/ipmeta/internal/ipmeta"
	"lukechampine.com/uint128"
)

// IP2ASN serves iptoasn.com range files (start, end, asn, country,
// description). Ranges announced by no one (ASN 0) are skipped. Addresses
// may be dotted or, for the v4-u32 variant, plain integers.
//
// Each distinct (ASN, country) pair is one record, so an ASN announcing
// space in several countries yields one record per country. ASNIPCount is
// the address space of the whole ASN.
//
// Options: -f <ip2asn tsv file>
type IP2ASN struct {
	tableBackend
}

// NewIP2ASN returns a disabled iptoasn backend.
func NewIP2ASN(fetcher *Fetcher) *IP2ASN {
	return &IP2ASN{tableBackend{desc: ipmeta.Descriptor{ID: IP2ASNID, Name: "ip2asn"}, fetcher: fetcher}}
}

func (p *IP2ASN) Enable(ctx context.Context, options string, kind index.Kind) error {
	opts := newOptionSet(p.desc.Name)
	file := opts.file("f", "ip2asn tsv file")
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

func (p *IP2ASN) read(ctx context.Context, path string, tbl *table) error {
	rc, err := p.fetcher.Open(ctx, path)
	if err != nil {
		return err
	}
	defer rc.Close()

	type recordKey struct {
		asn     uint32
		country string
	}
	var (
		records = make(map[recordKey]*ipmeta.Record)
		byASN   = make(map[uint32][]*ipmeta.Record)
		total   = make(map[uint32]uint128.Uint128)
	)
	r := newTSVReader(rc)
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		line, _ := r.FieldPos(0)
		if len(row) < 3 {
			return fmt.Errorf("%s line %d: expected at least 3 fields, got %d", path, line, len(row))
		}

		asn, err := strconv.ParseUint(strings.TrimSpace(row[2]), 10, 32)
		if err != nil {
			return fmt.Errorf("%s line %d: invalid ASN %q", path, line, row[2])
		}
		if asn == 0 {
			continue
		}
		from, err := parseAddr(strings.TrimSpace(row[0]))
		if err != nil {
			return fmt.Errorf("%s line %d: %w", path, line, err)
		}
		to, err := parseAddr(strings.TrimSpace(row[1]))
		if err != nil {
			return fmt.Errorf("%s line %d: %w", path, line, err)
		}

		key := recordKey{asn: uint32(asn)}
		if len(row) > 3 {
			key.country = countryField(row[3])
		}
		rec, ok := records[key]
		if !ok {
			rec = &ipmeta.Record{
				ID:            uint32(len(records) + 1),
				Source:        p.desc.ID,
				CountryCode:   key.country,
				ContinentCode: continentOf(key.country),
				ASNs:          []uint32{key.asn},
			}
			records[key] = rec
			byASN[key.asn] = append(byASN[key.asn], rec)
		}
		size, err := tbl.insertRange(from, to, rec)
		if err != nil {
			return fmt.Errorf("%s line %d: %w", path, line, err)
		}
		total[key.asn] = total[key.asn].Add(size)
	}

	for asn, recs := range byASN {
		for _, rec := range recs {
			rec.ASNIPCount = total[asn]
		}
	}
	return nil
}

func countryField(s string) string {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "none") {
		return ""
	}
	return s
}
