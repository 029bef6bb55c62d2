package data

import (
	"compress/gzip"
	"context"
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/TomasB/ipmeta/internal/index"
	"github.com/TomasB/ipmeta/internal/ipmeta"
	"github.com/stretchr/testify/require"
	"lukechampine.com/uint128"
)

type hit struct {
	rec     *ipmeta.Record
	matched uint64
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func writeGzip(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := gzip.NewWriter(f)
	_, err = zw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func enableBackend(t *testing.T, b ipmeta.Backend, options string) {
	t.Helper()
	require.NoError(t, b.Enable(context.Background(), options, index.Default))
	t.Cleanup(func() { b.Close() })
}

func lookup(t *testing.T, b ipmeta.Backend, query string) []hit {
	t.Helper()
	q, err := ipmeta.ParseQuery(query)
	require.NoError(t, err)

	var hits []hit
	err = b.Lookup(q, func(rec *ipmeta.Record, matched uint128.Uint128) {
		require.Zero(t, matched.Hi)
		hits = append(hits, hit{rec: rec, matched: matched.Lo})
	})
	require.NoError(t, err)
	return hits
}

func mustPrefix(t *testing.T, s string) netip.Prefix {
	t.Helper()
	q, err := ipmeta.ParseQuery(s)
	require.NoError(t, err)
	return q
}
