package data

import (
	"errors"
	"io"
	"net/netip"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVTable(t *testing.T) {
	in := "Copyright (c) MaxMind\n  LocId , Country\n1,US\n2,\"GB\"\n"
	tbl, err := newCSVTable("loc.csv", strings.NewReader(in), "locid")
	require.NoError(t, err)
	assert.Equal(t, 0, tbl.col("locid"))
	assert.Equal(t, 1, tbl.col("ctry", "country"))
	assert.Equal(t, -1, tbl.col("city"))

	row, err := tbl.next()
	require.NoError(t, err)
	assert.Equal(t, "US", field(row, 1))
	assert.Equal(t, "", field(row, 5))

	row, err = tbl.next()
	require.NoError(t, err)
	assert.Equal(t, "GB", field(row, 1))
	assert.ErrorContains(t, tbl.errorf("boom"), "loc.csv line 4: boom")

	_, err = tbl.next()
	assert.True(t, errors.Is(err, io.EOF))
}

func TestCSVTable_NoHeader(t *testing.T) {
	_, err := newCSVTable("x.csv", strings.NewReader("a,b\n1,2\n"), "locid")
	assert.ErrorContains(t, err, "no header")
}

func TestParseAddr(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "16777216", want: "1.0.0.0"},
		{in: "4294967295", want: "255.255.255.255"},
		{in: "10.1.2.3", want: "10.1.2.3"},
		{in: "::ffff:10.1.2.3", want: "10.1.2.3"},
		{in: "2001:db8::1", want: "2001:db8::1"},
		{in: "4294967296", wantErr: true},
		{in: "host", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseAddr(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, netip.MustParseAddr(tt.want), got)
		})
	}
}

func TestOptionSet(t *testing.T) {
	opts := newOptionSet("test")
	b := opts.file("b", "blocks file")
	l := opts.file("l", "locations file")
	require.NoError(t, opts.parse("  -b blocks.csv   -l loc.csv "))
	assert.Equal(t, "blocks.csv", *b)
	assert.Equal(t, "loc.csv", *l)
	assert.NoError(t, opts.require("b", "l"))

	opts = newOptionSet("test")
	opts.file("b", "blocks file")
	opts.file("l", "locations file")
	require.NoError(t, opts.parse("-b blocks.csv"))
	err := opts.require("b", "l")
	assert.ErrorIs(t, err, errMissingOption)
	assert.ErrorContains(t, err, "-l (locations file)")

	opts = newOptionSet("test")
	opts.file("f", "file")
	assert.ErrorContains(t, opts.parse("-f a b"), "unexpected argument")
	assert.Error(t, newOptionSet("test").parse("-z"))
}

func TestContinentOf(t *testing.T) {
	assert.Equal(t, "EU", continentOf("gb"))
	assert.Equal(t, "NA", continentOf("US"))
	assert.Equal(t, "AS", continentOf("JP"))
	assert.Equal(t, "", continentOf("A1"))
	assert.Equal(t, "", continentOf(""))
}
