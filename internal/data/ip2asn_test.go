package data

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ip2asnData = "1.0.0.0\t1.0.0.255\t13335\tUS\tCLOUDFLARENET\n" +
	"1.0.1.0\t1.0.3.255\t0\tNone\tNot routed\n" +
	"1.0.4.0\t1.0.7.255\t38803\tAU\tWPL-AS-AP Wirefreebroadband Pty Ltd\n" +
	"1.1.1.0\t1.1.1.255\t13335\tUS\tCLOUDFLARENET\n"

func TestIP2ASN(t *testing.T) {
	p := NewIP2ASN(NewFetcher(t.TempDir()))
	enableBackend(t, p, "-f "+writeFile(t, "ip2asn-v4.tsv", ip2asnData))

	hits := lookup(t, p, "1.0.0.0/21")
	require.Len(t, hits, 2)

	cf := hits[0].rec
	assert.Equal(t, uint64(256), hits[0].matched)
	assert.Equal(t, uint32(1), cf.ID)
	assert.Equal(t, []uint32{13335}, cf.ASNs)
	assert.Equal(t, "US", cf.CountryCode)
	assert.Equal(t, "NA", cf.ContinentCode)
	assert.Equal(t, uint64(512), cf.ASNIPCount.Lo)
	assert.Equal(t, IP2ASNID, cf.Source)

	assert.Equal(t, uint32(2), hits[1].rec.ID)
	assert.Equal(t, []uint32{38803}, hits[1].rec.ASNs)
	assert.Equal(t, uint64(1024), hits[1].matched)
	assert.Equal(t, uint64(1024), hits[1].rec.ASNIPCount.Lo)
}

func TestIP2ASN_CountryPerRecord(t *testing.T) {
	rows := "2.0.0.0\t2.0.0.255\t64500\tUS\tEXAMPLE\n" +
		"2.0.1.0\t2.0.1.255\t64500\tDE\tEXAMPLE\n" +
		"2.0.2.0\t2.0.3.255\t64500\tUS\tEXAMPLE\n"
	p := NewIP2ASN(NewFetcher(t.TempDir()))
	enableBackend(t, p, "-f "+writeFile(t, "ip2asn-v4.tsv", rows))

	hits := lookup(t, p, "2.0.0.0/22")
	require.Len(t, hits, 2)

	byCC := map[string]hit{}
	for _, h := range hits {
		byCC[h.rec.CountryCode] = h
	}
	assert.Equal(t, uint64(768), byCC["US"].matched)
	assert.Equal(t, uint64(256), byCC["DE"].matched)
	assert.Equal(t, "EU", byCC["DE"].rec.ContinentCode)
	assert.NotEqual(t, byCC["US"].rec.ID, byCC["DE"].rec.ID)
	assert.Equal(t, []uint32{64500}, byCC["DE"].rec.ASNs)
	assert.Equal(t, uint64(1024), byCC["US"].rec.ASNIPCount.Lo, "count covers the whole ASN")
	assert.Equal(t, uint64(1024), byCC["DE"].rec.ASNIPCount.Lo)
}

func TestIP2ASN_IntegerAddresses(t *testing.T) {
	p := NewIP2ASN(NewFetcher(t.TempDir()))
	enableBackend(t, p, "-f "+writeFile(t, "ip2asn-v4-u32.tsv", "16777216\t16777471\t13335\tNone\tCLOUDFLARENET\n"))

	hits := lookup(t, p, "1.0.0.128/25")
	require.Len(t, hits, 1)
	assert.Equal(t, uint64(128), hits[0].matched)
	assert.Empty(t, hits[0].rec.CountryCode)
}

func TestIP2ASN_Malformed(t *testing.T) {
	p := NewIP2ASN(NewFetcher(t.TempDir()))
	err := p.Enable(t.Context(), "-f "+writeFile(t, "bad.tsv", "1.0.0.0\t1.0.0.255\tx\tUS\t-\n"), "")
	assert.ErrorContains(t, err, "invalid ASN")
}
