package data

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/TomasB/ipmeta/internal/index"
	"github.com/TomasB/ipmeta/internal/ipmeta"
)

// MaxMind serves the legacy GeoLite City CSV tables.
//
// Options: -b <blocks file> -l <locations file>
type MaxMind struct {
	tableBackend
}

// NewMaxMind returns a disabled MaxMind backend.
func NewMaxMind(fetcher *Fetcher) *MaxMind {
	return &MaxMind{tableBackend{desc: ipmeta.Descriptor{ID: MaxMindID, Name: "maxmind"}, fetcher: fetcher}}
}

func (m *MaxMind) Enable(ctx context.Context, options string, kind index.Kind) error {
	opts := newOptionSet(m.desc.Name)
	blocks := opts.file("b", "blocks file")
	locations := opts.file("l", "locations file")
	if err := opts.parse(options); err != nil {
		return err
	}
	if err := opts.require("b", "l"); err != nil {
		return err
	}

	locs, err := m.readLocations(ctx, *locations)
	if err != nil {
		return err
	}
	tbl, err := newTable(kind)
	if err != nil {
		return err
	}
	if err := m.readBlocks(ctx, *blocks, locs, tbl); err != nil {
		return err
	}

	m.tbl = tbl
	return nil
}

func (m *MaxMind) readLocations(ctx context.Context, path string) (map[uint32]*ipmeta.Record, error) {
	rc, err := m.fetcher.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	t, err := newCSVTable(path, rc, "locid", "country")
	if err != nil {
		return nil, err
	}
	var (
		cID      = t.col("locid")
		cCountry = t.col("country")
		cRegion  = t.col("region")
		cCity    = t.col("city")
		cPostal  = t.col("postalcode")
		cLat     = t.col("latitude")
		cLong    = t.col("longitude")
		cMetro   = t.col("metrocode", "dmacode")
		cArea    = t.col("areacode")
	)

	locs := make(map[uint32]*ipmeta.Record)
	for {
		row, err := t.next()
		if errors.Is(err, io.EOF) {
			return locs, nil
		}
		if err != nil {
			return nil, err
		}

		id, err := parseUint32(field(row, cID))
		if err != nil {
			return nil, t.errorf("invalid locId: %v", err)
		}
		rec := &ipmeta.Record{
			ID:          id,
			Source:      m.desc.ID,
			CountryCode: field(row, cCountry),
			Region:      field(row, cRegion),
			City:        field(row, cCity),
			PostCode:    field(row, cPostal),
		}
		rec.ContinentCode = continentOf(rec.CountryCode)
		rec.RegionCode = ipmeta.RegionCodeOf(rec.Region)
		if rec.Latitude, err = parseFloat(field(row, cLat)); err != nil {
			return nil, t.errorf("invalid latitude: %v", err)
		}
		if rec.Longitude, err = parseFloat(field(row, cLong)); err != nil {
			return nil, t.errorf("invalid longitude: %v", err)
		}
		if rec.MetroCode, err = parseUint32(field(row, cMetro)); err != nil {
			return nil, t.errorf("invalid metroCode: %v", err)
		}
		if rec.AreaCode, err = parseUint32(field(row, cArea)); err != nil {
			return nil, t.errorf("invalid areaCode: %v", err)
		}
		locs[id] = rec
	}
}

func (m *MaxMind) readBlocks(ctx context.Context, path string, locs map[uint32]*ipmeta.Record, tbl *table) error {
	rc, err := m.fetcher.Open(ctx, path)
	if err != nil {
		return err
	}
	defer rc.Close()

	t, err := newCSVTable(path, rc, "startipnum", "endipnum", "locid")
	if err != nil {
		return err
	}
	cStart, cEnd, cLoc := t.col("startipnum"), t.col("endipnum"), t.col("locid")

	for {
		row, err := t.next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		from, err := parseAddr(field(row, cStart))
		if err != nil {
			return t.errorf("%v", err)
		}
		to, err := parseAddr(field(row, cEnd))
		if err != nil {
			return t.errorf("%v", err)
		}
		id, err := parseUint32(field(row, cLoc))
		if err != nil {
			return t.errorf("invalid locId: %v", err)
		}
		rec, ok := locs[id]
		if !ok {
			return t.errorf("unknown locId %d", id)
		}
		if _, err := tbl.insertRange(from, to, rec); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
}
