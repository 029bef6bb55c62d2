package index

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lukechampine.com/uint128"
)

var kinds = []Kind{BART, Patricia}

func buildIndex(t *testing.T, kind Kind, entries map[string]string) Index[string] {
	t.Helper()
	idx, err := New[string](kind)
	require.NoError(t, err)
	for pfx, val := range entries {
		require.NoError(t, idx.Insert(netip.MustParsePrefix(pfx), val))
	}
	return idx
}

type want struct {
	prefix string
	value  string
	count  uint128.Uint128
}

func n(v uint64) uint128.Uint128 { return uint128.From64(v) }

func assertCover(t *testing.T, got []Match[string], expected []want) {
	t.Helper()
	require.Len(t, got, len(expected))
	for i, w := range expected {
		assert.Equal(t, netip.MustParsePrefix(w.prefix), got[i].Prefix, "entry %d prefix", i)
		assert.Equal(t, w.value, got[i].Value, "entry %d value", i)
		assert.Equal(t, w.count, got[i].Count, "entry %d count", i)
	}
}

func TestCover(t *testing.T) {
	entries := map[string]string{
		"10.0.0.0/8":    "A",
		"10.1.0.0/16":   "B",
		"10.1.2.0/24":   "C",
		"10.1.2.128/25": "D",
		"192.0.2.0/25":  "E",
		"2001:db8::/32": "V6",
	}

	tests := []struct {
		name  string
		query string
		want  []want
	}{
		{
			name:  "single address under wide prefix",
			query: "10.9.9.9/32",
			want:  []want{{"10.0.0.0/8", "A", n(1)}},
		},
		{
			name:  "single address takes longest match",
			query: "10.1.2.200/32",
			want:  []want{{"10.1.2.128/25", "D", n(1)}},
		},
		{
			name:  "query equal to indexed prefix with nested child",
			query: "10.1.2.0/24",
			want: []want{
				{"10.1.2.0/24", "C", n(128)},
				{"10.1.2.128/25", "D", n(128)},
			},
		},
		{
			name:  "query spanning nested prefixes",
			query: "10.1.0.0/16",
			want: []want{
				{"10.1.0.0/16", "B", n(65536 - 256)},
				{"10.1.2.0/24", "C", n(128)},
				{"10.1.2.128/25", "D", n(128)},
			},
		},
		{
			name:  "covering prefix is clipped to the query",
			query: "10.1.2.0/23",
			want: []want{
				{"10.1.0.0/16", "B", n(256)},
				{"10.1.2.0/24", "C", n(128)},
				{"10.1.2.128/25", "D", n(128)},
			},
		},
		{
			name:  "gaps are omitted",
			query: "192.0.2.0/24",
			want:  []want{{"192.0.2.0/25", "E", n(128)}},
		},
		{
			name:  "no match",
			query: "11.0.0.1/32",
			want:  []want{},
		},
		{
			name:  "ipv6",
			query: "2001:db8::/48",
			want:  []want{{"2001:db8::/32", "V6", n(1).Lsh(80)}},
		},
	}

	for _, kind := range kinds {
		idx := buildIndex(t, kind, entries)
		for _, tt := range tests {
			t.Run(string(kind)+"/"+tt.name, func(t *testing.T) {
				got, err := idx.Cover(netip.MustParsePrefix(tt.query))
				require.NoError(t, err)
				assertCover(t, got, tt.want)
			})
		}
	}
}

func TestCoverCountsSumToQuerySize(t *testing.T) {
	for _, kind := range kinds {
		t.Run(string(kind), func(t *testing.T) {
			idx := buildIndex(t, kind, map[string]string{
				"0.0.0.0/0":       "root",
				"172.16.0.0/12":   "a",
				"172.16.5.0/24":   "b",
				"172.16.5.7/32":   "c",
				"172.31.255.0/24": "d",
			})

			q := netip.MustParsePrefix("172.16.0.0/12")
			got, err := idx.Cover(q)
			require.NoError(t, err)

			sum := uint128.Zero
			for _, m := range got {
				assert.False(t, m.Count.IsZero())
				sum = sum.Add(m.Count)
			}
			assert.Equal(t, Size(q), sum)
		})
	}
}

func TestInsertReplaces(t *testing.T) {
	for _, kind := range kinds {
		t.Run(string(kind), func(t *testing.T) {
			idx, err := New[string](kind)
			require.NoError(t, err)

			require.NoError(t, idx.Insert(netip.MustParsePrefix("10.0.0.0/24"), "old"))
			require.NoError(t, idx.Insert(netip.MustParsePrefix("10.0.0.9/24"), "new"))
			assert.Equal(t, 1, idx.Len())

			got, err := idx.Cover(netip.MustParsePrefix("10.0.0.1/32"))
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "new", got[0].Value)
		})
	}
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("")
	require.NoError(t, err)
	assert.Equal(t, Default, k)

	k, err = ParseKind("patricia")
	require.NoError(t, err)
	assert.Equal(t, Patricia, k)

	_, err = ParseKind("bigarray")
	assert.Error(t, err)

	_, err = New[int]("bigarray")
	assert.Error(t, err)
}

func TestRangePrefixes(t *testing.T) {
	got, err := RangePrefixes(netip.MustParseAddr("10.0.0.0"), netip.MustParseAddr("10.0.1.127"))
	require.NoError(t, err)
	assert.Equal(t, []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/24"),
		netip.MustParsePrefix("10.0.1.0/25"),
	}, got)

	_, err = RangePrefixes(netip.MustParseAddr("10.0.1.0"), netip.MustParseAddr("10.0.0.0"))
	assert.Error(t, err)
}

func TestSize(t *testing.T) {
	assert.Equal(t, uint128.From64(256), Size(netip.MustParsePrefix("10.0.0.0/24")))
	assert.Equal(t, uint128.From64(1<<32), Size(netip.MustParsePrefix("0.0.0.0/0")))
	assert.Equal(t, uint128.From64(1), Size(netip.MustParsePrefix("2001:db8::1/128")))
}
