package index

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/yl2chen/cidranger"
)

// rangerEntry carries the original prefix so results need no conversion back
// from net.IPNet.
type rangerEntry struct {
	pfx     netip.Prefix
	network net.IPNet
}

func (e rangerEntry) Network() net.IPNet {
	return e.network
}

type patriciaIndex[V any] struct {
	r    cidranger.Ranger
	vals map[netip.Prefix]V
}

func newPatriciaIndex[V any]() *patriciaIndex[V] {
	return &patriciaIndex[V]{
		r:    cidranger.NewPCTrieRanger(),
		vals: make(map[netip.Prefix]V),
	}
}

func (p *patriciaIndex[V]) Insert(pfx netip.Prefix, val V) error {
	pfx = pfx.Masked()
	if _, ok := p.vals[pfx]; !ok {
		if err := p.r.Insert(rangerEntry{pfx: pfx, network: toIPNet(pfx)}); err != nil {
			return fmt.Errorf("insert %s: %w", pfx, err)
		}
	}
	p.vals[pfx] = val
	return nil
}

func (p *patriciaIndex[V]) Cover(q netip.Prefix) ([]Match[V], error) {
	containing, err := p.r.ContainingNetworks(net.IP(q.Addr().AsSlice()))
	if err != nil {
		return nil, fmt.Errorf("containing networks of %s: %w", q, err)
	}

	var (
		super    netip.Prefix
		superVal V
		hasSuper bool
	)
	for _, e := range containing {
		pfx := e.(rangerEntry).pfx
		if pfx.Bits() > q.Bits() {
			continue
		}
		if !hasSuper || pfx.Bits() > super.Bits() {
			super, superVal, hasSuper = pfx, p.vals[pfx], true
		}
	}

	covered, err := p.r.CoveredNetworks(toIPNet(q))
	if err != nil {
		return nil, fmt.Errorf("covered networks of %s: %w", q, err)
	}
	subs := make([]Match[V], 0, len(covered))
	for _, e := range covered {
		pfx := e.(rangerEntry).pfx
		subs = append(subs, Match[V]{Prefix: pfx, Value: p.vals[pfx]})
	}

	return cover(q, super, superVal, hasSuper, subs), nil
}

func (p *patriciaIndex[V]) Len() int {
	return len(p.vals)
}

func toIPNet(pfx netip.Prefix) net.IPNet {
	return net.IPNet{
		IP:   net.IP(pfx.Addr().AsSlice()),
		Mask: net.CIDRMask(pfx.Bits(), pfx.Addr().BitLen()),
	}
}
