package data

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const netacqLocations = `"loc_id","cont_code","ctry_code","region","city","postal_code","lat","long","metro_code","area_code","region_code","conn_speed"
"1","EU","GB","eng","london","ec1a","51.5142","-0.0931","0","0","2573","broadband"
"2","","DE","be","berlin","10115","52.5200","13.4050","0","30","1001","cable"
`

const netacqBlocks = `"ip_min","ip_max","loc_id"
"2.125.160.0","2.125.160.255","1"
"2.125.161.0","2.125.161.127","2"
`

const netacqPolygons = `loc_id,polygon_id
1,826001
1,826044
2,276011
`

func TestNetAcqEdge(t *testing.T) {
	n := NewNetAcqEdge(NewFetcher(t.TempDir()))
	enableBackend(t, n, "-b "+writeFile(t, "blocks.csv", netacqBlocks)+
		" -l "+writeFile(t, "locations.csv", netacqLocations)+
		" -p "+writeFile(t, "polygons.csv", netacqPolygons))

	hits := lookup(t, n, "2.125.160.0/23")
	require.Len(t, hits, 2)

	london := hits[0].rec
	assert.Equal(t, uint64(256), hits[0].matched)
	assert.Equal(t, uint32(1), london.ID)
	assert.Equal(t, NetAcqEdgeID, london.Source)
	assert.Equal(t, "EU", london.ContinentCode)
	assert.Equal(t, "GB", london.CountryCode)
	assert.Equal(t, "london", london.City)
	assert.Equal(t, "broadband", london.ConnectionSpeed)
	assert.Equal(t, uint16(2573), london.RegionCode)
	assert.Equal(t, []uint32{826001, 826044}, london.PolygonIDs)

	berlin := hits[1].rec
	assert.Equal(t, uint64(128), hits[1].matched)
	assert.Equal(t, "EU", berlin.ContinentCode, "derived from country")
	assert.Equal(t, uint32(30), berlin.AreaCode)
	assert.Equal(t, []uint32{276011}, berlin.PolygonIDs)
}

func TestNetAcqEdge_WithoutPolygons(t *testing.T) {
	n := NewNetAcqEdge(NewFetcher(t.TempDir()))
	enableBackend(t, n, "-b "+writeFile(t, "blocks.csv", netacqBlocks)+
		" -l "+writeFile(t, "locations.csv", netacqLocations))

	hits := lookup(t, n, "2.125.160.1")
	require.Len(t, hits, 1)
	assert.Empty(t, hits[0].rec.PolygonIDs)
}

func TestNetAcqEdge_BadRegionCode(t *testing.T) {
	locations := writeFile(t, "locations.csv", "loc_id,ctry_code,region_code\n1,GB,70000\n")
	n := NewNetAcqEdge(NewFetcher(t.TempDir()))
	err := n.Enable(t.Context(), "-b "+writeFile(t, "blocks.csv", netacqBlocks)+" -l "+locations, "")
	assert.ErrorContains(t, err, "region_code")
}
