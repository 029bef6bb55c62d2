package index

import (
	"net/netip"

	"github.com/gaissmai/bart"
)

type bartIndex[V any] struct {
	t *bart.Table[V]
}

func newBartIndex[V any]() *bartIndex[V] {
	return &bartIndex[V]{t: new(bart.Table[V])}
}

func (b *bartIndex[V]) Insert(pfx netip.Prefix, val V) error {
	b.t.Insert(pfx.Masked(), val)
	return nil
}

func (b *bartIndex[V]) Cover(q netip.Prefix) ([]Match[V], error) {
	super, val, ok := b.t.LookupPrefixLPM(q)

	var subs []Match[V]
	for pfx, v := range b.t.Subnets(q) {
		subs = append(subs, Match[V]{Prefix: pfx, Value: v})
	}
	return cover(q, super, val, ok, subs), nil
}

func (b *bartIndex[V]) Len() int {
	return b.t.Size()
}
