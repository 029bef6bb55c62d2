package ipmeta

import "lukechampine.com/uint128"

// Record is one metadata entry produced by a provider for some address
// range. Records are shared between lookups and must be treated as
// read-only by every caller.
type Record struct {
	// ID is unique within the producing provider.
	ID     uint32
	Source ProviderID

	CountryCode     string
	ContinentCode   string
	Region          string
	City            string
	PostCode        string
	ConnectionSpeed string

	// (0, 0) is a valid coordinate, not a missing value.
	Latitude  float64
	Longitude float64

	MetroCode  uint32
	AreaCode   uint32
	RegionCode uint16

	// ASNs keeps the order given by the provider.
	ASNs []uint32
	// ASNIPCount is the address space owned by the ASN (group), independent
	// of any query.
	ASNIPCount uint128.Uint128

	PolygonIDs []uint32
}

// RegionCodeOf packs a two character region code the way the legacy GeoIP
// tables do. Any other length yields zero.
func RegionCodeOf(region string) uint16 {
	if len(region) != 2 {
		return 0
	}
	return uint16(region[0])<<8 | uint16(region[1])
}
