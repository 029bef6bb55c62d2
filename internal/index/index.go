// Package index provides the prefix tables used by the metadata providers.
//
// Two interchangeable data structures are available: a balanced routing
// table (bart) and a path-compressed trie (cidranger). Both answer the same
// question: for a queried prefix, which indexed prefixes own which part of
// it under longest-prefix-match rules.
package index

import (
	"fmt"
	"net/netip"

	"lukechampine.com/uint128"
)

// Kind selects the data structure backing an Index.
type Kind string

const (
	// BART is a balanced routing table; the default.
	BART Kind = "bart"
	// Patricia is a path-compressed prefix trie.
	Patricia Kind = "patricia"
)

// Default is the data structure used when none is configured.
const Default = BART

// ParseKind converts a configuration string into a Kind. An empty string
// selects Default.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case "":
		return Default, nil
	case BART, Patricia:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown index data structure %q", s)
	}
}

// Match is one indexed prefix owning part of a queried range.
type Match[V any] struct {
	// Prefix is the indexed prefix, which may be wider than the query.
	Prefix netip.Prefix
	Value  V
	// Count is the number of queried addresses whose longest match is Prefix.
	Count uint128.Uint128
}

// Index maps prefixes to values.
type Index[V any] interface {
	// Insert adds or replaces the value stored for pfx. Host bits are ignored.
	Insert(pfx netip.Prefix, val V) error

	// Cover returns every indexed prefix that is the longest match for at
	// least one address of q, in address order.
	Cover(q netip.Prefix) ([]Match[V], error)

	// Len returns the number of indexed prefixes.
	Len() int
}

// New returns an empty Index of the given kind.
func New[V any](kind Kind) (Index[V], error) {
	switch kind {
	case "", BART:
		return newBartIndex[V](), nil
	case Patricia:
		return newPatriciaIndex[V](), nil
	default:
		return nil, fmt.Errorf("unknown index data structure %q", kind)
	}
}

// Size returns the number of addresses in p.
func Size(p netip.Prefix) uint128.Uint128 {
	return uint128.From64(1).Lsh(uint(p.Addr().BitLen() - p.Bits()))
}
