package data

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strings"

	"github.com/TomasB/ipmeta/internal/index"
	"github.com/TomasB/ipmeta/internal/ipmeta"
	"github.com/oschwald/geoip2-golang"
	"github.com/oschwald/maxminddb-golang"
	"go4.org/netipx"
	"lukechampine.com/uint128"
)

// MmdbReader serves a MaxMind DB file (GeoIP2/GeoLite2 City, Country or
// ASN) directly from the mmap'd database; the index kind is not used.
//
// Options: -f <file.mmdb>
type MmdbReader struct {
	desc    ipmeta.Descriptor
	fetcher *Fetcher

	db    *maxminddb.Reader
	asn   bool
	cache map[uintptr]*ipmeta.Record
}

// NewMmdbReader returns a disabled MaxMind DB backend.
func NewMmdbReader(fetcher *Fetcher) *MmdbReader {
	return &MmdbReader{desc: ipmeta.Descriptor{ID: MmdbID, Name: "mmdb"}, fetcher: fetcher}
}

func (r *MmdbReader) Describe() ipmeta.Descriptor { return r.desc }

func (r *MmdbReader) Enable(ctx context.Context, options string, _ index.Kind) error {
	opts := newOptionSet(r.desc.Name)
	file := opts.file("f", "MaxMind DB file")
	if err := opts.parse(options); err != nil {
		return err
	}
	if err := opts.require("f"); err != nil {
		return err
	}

	path, err := r.fetcher.Resolve(ctx, *file)
	if err != nil {
		return err
	}
	db, err := maxminddb.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open MMDB file: %w", err)
	}

	r.db = db
	r.asn = strings.Contains(db.Metadata.DatabaseType, "ASN")
	r.cache = make(map[uintptr]*ipmeta.Record)
	return nil
}

// Lookup walks the database networks within q. A database network wider
// than q is returned once and owns all of q.
func (r *MmdbReader) Lookup(q netip.Prefix, emit ipmeta.Emit) error {
	if r.db == nil {
		return errNotEnabled
	}
	if q.Addr().Is6() && r.db.Metadata.IPVersion == 4 {
		return nil
	}

	var (
		order  []*ipmeta.Record
		counts = make(map[*ipmeta.Record]uint128.Uint128)
	)
	networks := r.db.NetworksWithin(netipx.PrefixIPNet(q), maxminddb.SkipAliasedNetworks)
	for networks.Next() {
		subnet, err := networks.Network(&struct{}{})
		if err != nil {
			return fmt.Errorf("mmdb network walk failed: %w", err)
		}
		pfx, ok := netipx.FromStdIPNet(subnet)
		if !ok {
			return fmt.Errorf("mmdb returned invalid network %v", subnet)
		}
		pfx = unmapPrefix(pfx)

		rec, err := r.record(subnet.IP)
		if err != nil {
			return err
		}
		if rec == nil {
			continue
		}
		count := index.Size(pfx)
		if pfx.Bits() <= q.Bits() {
			count = index.Size(q)
		}
		c, seen := counts[rec]
		if !seen {
			order = append(order, rec)
		}
		counts[rec] = c.Add(count)
	}
	if err := networks.Err(); err != nil {
		return fmt.Errorf("mmdb network walk failed: %w", err)
	}

	for _, rec := range order {
		emit(rec, counts[rec])
	}
	return nil
}

// record returns the record stored for ip, decoding each data section once.
func (r *MmdbReader) record(ip net.IP) (*ipmeta.Record, error) {
	offset, err := r.db.LookupOffset(ip)
	if err != nil {
		return nil, fmt.Errorf("mmdb offset lookup failed: %w", err)
	}
	if offset == maxminddb.NotFound {
		return nil, nil
	}
	if rec, ok := r.cache[offset]; ok {
		return rec, nil
	}

	// The data section offset identifies a distinct record; GeoNameIDs and
	// ASNs repeat across sections with different contents.
	rec := &ipmeta.Record{ID: uint32(offset), Source: r.desc.ID}
	if r.asn {
		var asn geoip2.ASN
		if err := r.db.Decode(offset, &asn); err != nil {
			return nil, fmt.Errorf("mmdb decode failed: %w", err)
		}
		if asn.AutonomousSystemNumber != 0 {
			rec.ASNs = []uint32{uint32(asn.AutonomousSystemNumber)}
		}
	} else {
		var city geoip2.City
		if err := r.db.Decode(offset, &city); err != nil {
			return nil, fmt.Errorf("mmdb decode failed: %w", err)
		}
		fillLocation(rec, &city)
	}
	r.cache[offset] = rec
	return rec, nil
}

func fillLocation(rec *ipmeta.Record, city *geoip2.City) {
	rec.CountryCode = city.Country.IsoCode
	rec.ContinentCode = city.Continent.Code
	if rec.ContinentCode == "" {
		rec.ContinentCode = continentOf(rec.CountryCode)
	}
	rec.City = city.City.Names["en"]
	if len(city.Subdivisions) > 0 {
		rec.Region = city.Subdivisions[0].IsoCode
		rec.RegionCode = ipmeta.RegionCodeOf(rec.Region)
	}
	rec.PostCode = city.Postal.Code
	rec.Latitude = city.Location.Latitude
	rec.Longitude = city.Location.Longitude
	rec.MetroCode = uint32(city.Location.MetroCode)
}

func unmapPrefix(p netip.Prefix) netip.Prefix {
	if !p.Addr().Is4In6() || p.Bits() < 96 {
		return p
	}
	return netip.PrefixFrom(p.Addr().Unmap(), p.Bits()-96)
}

func (r *MmdbReader) Close() error {
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	r.cache = nil
	return err
}
