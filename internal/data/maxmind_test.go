package data

import (
	"testing"

	"github.com/TomasB/ipmeta/internal/index"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const maxmindLocations = `Copyright (c) 2012 MaxMind LLC.  All Rights Reserved.
locId,country,region,city,postalCode,latitude,longitude,metroCode,areaCode
1,O1,"","","",0.0000,0.0000,,
17,US,CA,"Mountain View",94043,37.4192,-122.0574,807,650
42,AU,"07","Melbourne","",-37.8139,144.9634,,
`

const maxmindBlocks = `Copyright (c) 2012 MaxMind LLC.  All Rights Reserved.
startIpNum,endIpNum,locId
"16777216","16777471","17"
"16777472","16777983","42"
"16777984","16777999","1"
`

func TestMaxMind(t *testing.T) {
	blocks := writeFile(t, "GeoLiteCity-Blocks.csv", maxmindBlocks)
	locations := writeGzip(t, "GeoLiteCity-Location.csv.gz", maxmindLocations)

	m := NewMaxMind(NewFetcher(t.TempDir()))
	enableBackend(t, m, "-b "+blocks+" -l "+locations)

	t.Run("single address", func(t *testing.T) {
		hits := lookup(t, m, "1.0.0.7")
		require.Len(t, hits, 1)
		rec := hits[0].rec
		assert.Equal(t, uint64(1), hits[0].matched)
		assert.Equal(t, uint32(17), rec.ID)
		assert.Equal(t, MaxMindID, rec.Source)
		assert.Equal(t, "US", rec.CountryCode)
		assert.Equal(t, "NA", rec.ContinentCode)
		assert.Equal(t, "CA", rec.Region)
		assert.Equal(t, "Mountain View", rec.City)
		assert.Equal(t, "94043", rec.PostCode)
		assert.InDelta(t, 37.4192, rec.Latitude, 1e-9)
		assert.InDelta(t, -122.0574, rec.Longitude, 1e-9)
		assert.Equal(t, uint32(807), rec.MetroCode)
		assert.Equal(t, uint32(650), rec.AreaCode)
		assert.Equal(t, uint16('C')<<8|uint16('A'), rec.RegionCode)
	})

	t.Run("range split into prefixes is one record", func(t *testing.T) {
		hits := lookup(t, m, "1.0.0.0/22")
		require.Len(t, hits, 3)
		assert.Equal(t, uint32(17), hits[0].rec.ID)
		assert.Equal(t, uint64(256), hits[0].matched)
		assert.Equal(t, uint32(42), hits[1].rec.ID)
		assert.Equal(t, uint64(512), hits[1].matched)
		assert.Equal(t, "OC", hits[1].rec.ContinentCode)
		assert.Equal(t, uint32(1), hits[2].rec.ID)
		assert.Equal(t, uint64(16), hits[2].matched)
		assert.Empty(t, hits[2].rec.ContinentCode)
	})

	t.Run("unindexed space", func(t *testing.T) {
		assert.Empty(t, lookup(t, m, "10.0.0.0/8"))
	})
}

func TestMaxMind_Errors(t *testing.T) {
	locations := writeFile(t, "loc.csv", maxmindLocations)

	tests := []struct {
		name   string
		blocks string
	}{
		{"unknown location", "startIpNum,endIpNum,locId\n16777216,16777471,99\n"},
		{"bad address", "startIpNum,endIpNum,locId\nx,16777471,17\n"},
		{"inverted range", "startIpNum,endIpNum,locId\n16777471,16777216,17\n"},
		{"no header", "a,b,c\n1,2,3\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blocks := writeFile(t, "blocks.csv", tt.blocks)
			m := NewMaxMind(NewFetcher(t.TempDir()))
			err := m.Enable(t.Context(), "-b "+blocks+" -l "+locations, index.Default)
			assert.Error(t, err)
			assert.ErrorIs(t, m.Lookup(mustPrefix(t, "1.0.0.0/24"), nil), errNotEnabled)
		})
	}
}
