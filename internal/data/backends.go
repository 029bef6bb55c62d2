package data

import "github.com/TomasB/ipmeta/internal/ipmeta"

// Provider ids. They are stable: mask bits derived from them are part of
// the public API.
const (
	MaxMindID    ipmeta.ProviderID = 1
	NetAcqEdgeID ipmeta.ProviderID = 2
	Pfx2ASID     ipmeta.ProviderID = 3
	IP2ASNID     ipmeta.ProviderID = 4
	MmdbID       ipmeta.ProviderID = 5
)

// Options configures the built-in backends.
type Options struct {
	// CacheDir receives downloaded data files.
	CacheDir string
}

// Backends returns a fresh, disabled instance of every built-in backend.
func Backends(opts Options) []ipmeta.Backend {
	fetcher := NewFetcher(opts.CacheDir)
	return []ipmeta.Backend{
		NewMaxMind(fetcher),
		NewNetAcqEdge(fetcher),
		NewPfx2AS(fetcher),
		NewIP2ASN(fetcher),
		NewMmdbReader(fetcher),
	}
}
