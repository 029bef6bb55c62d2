package data

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/TomasB/ipmeta/internal/index"
	"github.com/TomasB/ipmeta/internal/ipmeta"
)

// NetAcqEdge serves Net Acuity Edge CSV exports. Columns are matched by
// header name; both the integer (ip_min/ip_max) and dotted
// (start_ip/end_ip) block layouts are accepted.
//
// Options: -b <blocks file> -l <locations file> [-p <polygon map file>]
type NetAcqEdge struct {
	tableBackend
}

// NewNetAcqEdge returns a disabled Net Acuity Edge backend.
func NewNetAcqEdge(fetcher *Fetcher) *NetAcqEdge {
	return &NetAcqEdge{tableBackend{desc: ipmeta.Descriptor{ID: NetAcqEdgeID, Name: "netacq-edge"}, fetcher: fetcher}}
}

func (n *NetAcqEdge) Enable(ctx context.Context, options string, kind index.Kind) error {
	opts := newOptionSet(n.desc.Name)
	blocks := opts.file("b", "blocks file")
	locations := opts.file("l", "locations file")
	polygons := opts.file("p", "location to polygon map file")
	if err := opts.parse(options); err != nil {
		return err
	}
	if err := opts.require("b", "l"); err != nil {
		return err
	}

	locs, err := n.readLocations(ctx, *locations)
	if err != nil {
		return err
	}
	if *polygons != "" {
		if err := n.readPolygons(ctx, *polygons, locs); err != nil {
			return err
		}
	}
	tbl, err := newTable(kind)
	if err != nil {
		return err
	}
	if err := n.readBlocks(ctx, *blocks, locs, tbl); err != nil {
		return err
	}

	n.tbl = tbl
	return nil
}

func (n *NetAcqEdge) readLocations(ctx context.Context, path string) (map[uint32]*ipmeta.Record, error) {
	rc, err := n.fetcher.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	t, err := newCSVTable(path, rc, "loc_id")
	if err != nil {
		return nil, err
	}
	var (
		cID        = t.col("loc_id")
		cContinent = t.col("cont_code", "continent_code")
		cCountry   = t.col("ctry_code", "country_code")
		cRegion    = t.col("region")
		cCity      = t.col("city")
		cPostal    = t.col("postal_code")
		cLat       = t.col("lat", "latitude")
		cLong      = t.col("long", "longitude")
		cMetro     = t.col("metro_code")
		cArea      = t.col("area_code")
		cRegCode   = t.col("region_code")
		cSpeed     = t.col("conn_speed", "connection_speed")
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
			return nil, t.errorf("invalid loc_id: %v", err)
		}
		rec := &ipmeta.Record{
			ID:              id,
			Source:          n.desc.ID,
			ContinentCode:   field(row, cContinent),
			CountryCode:     field(row, cCountry),
			Region:          field(row, cRegion),
			City:            field(row, cCity),
			PostCode:        field(row, cPostal),
			ConnectionSpeed: field(row, cSpeed),
		}
		if rec.ContinentCode == "" {
			rec.ContinentCode = continentOf(rec.CountryCode)
		}
		if rec.Latitude, err = parseFloat(field(row, cLat)); err != nil {
			return nil, t.errorf("invalid latitude: %v", err)
		}
		if rec.Longitude, err = parseFloat(field(row, cLong)); err != nil {
			return nil, t.errorf("invalid longitude: %v", err)
		}
		if rec.MetroCode, err = parseUint32(field(row, cMetro)); err != nil {
			return nil, t.errorf("invalid metro_code: %v", err)
		}
		if rec.AreaCode, err = parseUint32(field(row, cArea)); err != nil {
			return nil, t.errorf("invalid area_code: %v", err)
		}
		regionCode, err := parseUint32(field(row, cRegCode))
		if err != nil || regionCode > 0xffff {
			return nil, t.errorf("invalid region_code %q", field(row, cRegCode))
		}
		rec.RegionCode = uint16(regionCode)
		locs[id] = rec
	}
}

func (n *NetAcqEdge) readPolygons(ctx context.Context, path string, locs map[uint32]*ipmeta.Record) error {
	rc, err := n.fetcher.Open(ctx, path)
	if err != nil {
		return err
	}
	defer rc.Close()

	t, err := newCSVTable(path, rc, "loc_id", "polygon_id")
	if err != nil {
		return err
	}
	cLoc, cPoly := t.col("loc_id"), t.col("polygon_id")

	for {
		row, err := t.next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		id, err := parseUint32(field(row, cLoc))
		if err != nil {
			return t.errorf("invalid loc_id: %v", err)
		}
		poly, err := parseUint32(field(row, cPoly))
		if err != nil {
			return t.errorf("invalid polygon_id: %v", err)
		}
		rec, ok := locs[id]
		if !ok {
			return t.errorf("unknown loc_id %d", id)
		}
		rec.PolygonIDs = append(rec.PolygonIDs, poly)
	}
}

func (n *NetAcqEdge) readBlocks(ctx context.Context, path string, locs map[uint32]*ipmeta.Record, tbl *table) error {
	rc, err := n.fetcher.Open(ctx, path)
	if err != nil {
		return err
	}
	defer rc.Close()

	t, err := newCSVTable(path, rc, "loc_id")
	if err != nil {
		return err
	}
	cStart := t.col("ip_min", "start_ip", "ip_start")
	cEnd := t.col("ip_max", "end_ip", "ip_end")
	cLoc := t.col("loc_id")
	if cStart < 0 || cEnd < 0 {
		return fmt.Errorf("%s: missing block range columns", path)
	}

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
			return t.errorf("invalid loc_id: %v", err)
		}
		rec, ok := locs[id]
		if !ok {
			return t.errorf("unknown loc_id %d", id)
		}
		if _, err := tbl.insertRange(from, to, rec); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
}
