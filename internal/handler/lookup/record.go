package lookup

import (
	"bytes"
	"fmt"

	"github.com/TomasB/ipmeta/internal/service"
	"github.com/vmihailenco/msgpack"
	"lukechampine.com/uint128"
)

// Count is an address count. It is a JSON number and, when it fits, a
// msgpack unsigned integer; larger IPv6 counts are msgpack strings.
type Count uint128.Uint128

func (c Count) MarshalJSON() ([]byte, error) {
	return []byte(uint128.Uint128(c).String()), nil
}

func (c *Count) UnmarshalJSON(b []byte) error {
	v, err := uint128.FromString(string(bytes.Trim(b, `"`)))
	if err != nil {
		return fmt.Errorf("invalid count %s: %w", b, err)
	}
	*c = Count(v)
	return nil
}

func (c Count) EncodeMsgpack(enc *msgpack.Encoder) error {
	v := uint128.Uint128(c)
	if v.Hi == 0 {
		return enc.EncodeUint64(v.Lo)
	}
	return enc.EncodeString(v.String())
}

// Record is the wire form of one lookup result.
type Record struct {
	Provider        string   `json:"provider" msgpack:"provider"`
	ID              uint32   `json:"id" msgpack:"id"`
	CountryCode     string   `json:"country_code" msgpack:"country_code"`
	ContinentCode   string   `json:"continent_code" msgpack:"continent_code"`
	Region          string   `json:"region,omitempty" msgpack:"region,omitempty"`
	City            string   `json:"city,omitempty" msgpack:"city,omitempty"`
	PostCode        string   `json:"post_code,omitempty" msgpack:"post_code,omitempty"`
	Latitude        float64  `json:"latitude" msgpack:"latitude"`
	Longitude       float64  `json:"longitude" msgpack:"longitude"`
	MetroCode       uint32   `json:"metro_code,omitempty" msgpack:"metro_code,omitempty"`
	AreaCode        uint32   `json:"area_code,omitempty" msgpack:"area_code,omitempty"`
	RegionCode      uint16   `json:"region_code,omitempty" msgpack:"region_code,omitempty"`
	ConnectionSpeed string   `json:"connection_speed,omitempty" msgpack:"connection_speed,omitempty"`
	ASNs            []uint32 `json:"asns,omitempty" msgpack:"asns,omitempty"`
	ASNIPCount      Count    `json:"asn_ip_count" msgpack:"asn_ip_count"`
	PolygonIDs      []uint32 `json:"polygon_ids,omitempty" msgpack:"polygon_ids,omitempty"`
	MatchedIPs      Count    `json:"matched_ip_count" msgpack:"matched_ip_count"`
}

func newRecord(r service.Result) Record {
	rec := r.Record
	return Record{
		Provider:        r.Provider,
		ID:              rec.ID,
		CountryCode:     rec.CountryCode,
		ContinentCode:   rec.ContinentCode,
		Region:          rec.Region,
		City:            rec.City,
		PostCode:        rec.PostCode,
		Latitude:        rec.Latitude,
		Longitude:       rec.Longitude,
		MetroCode:       rec.MetroCode,
		AreaCode:        rec.AreaCode,
		RegionCode:      rec.RegionCode,
		ConnectionSpeed: rec.ConnectionSpeed,
		ASNs:            rec.ASNs,
		ASNIPCount:      Count(rec.ASNIPCount),
		PolygonIDs:      rec.PolygonIDs,
		MatchedIPs:      Count(r.MatchedIPs),
	}
}
