package index

import (
	"cmp"
	"net/netip"
	"slices"

	"lukechampine.com/uint128"
)

type coverNode[V any] struct {
	m    Match[V]
	span netip.Prefix // part of the query this node can own
}

// cover resolves longest-prefix ownership inside q.
//
// super is the longest indexed prefix containing all of q, if any. subs are
// the indexed prefixes contained in q, in any order; q itself may be among
// them. Indexed prefixes never partially overlap, so every candidate either
// contains or is contained in its neighbours once sorted.
func cover[V any](q netip.Prefix, super netip.Prefix, superVal V, hasSuper bool, subs []Match[V]) []Match[V] {
	nodes := make([]coverNode[V], 0, len(subs)+1)
	seen := make(map[netip.Prefix]struct{}, len(subs)+1)

	for _, m := range subs {
		if _, dup := seen[m.Prefix]; dup {
			continue
		}
		seen[m.Prefix] = struct{}{}
		nodes = append(nodes, coverNode[V]{m: m, span: m.Prefix})
	}
	if hasSuper {
		if _, dup := seen[super]; !dup {
			nodes = append(nodes, coverNode[V]{m: Match[V]{Prefix: super, Value: superVal}, span: q})
		}
	}

	slices.SortFunc(nodes, func(a, b coverNode[V]) int {
		if c := a.span.Addr().Compare(b.span.Addr()); c != 0 {
			return c
		}
		if c := cmp.Compare(a.span.Bits(), b.span.Bits()); c != 0 {
			return c
		}
		return cmp.Compare(a.m.Prefix.Bits(), b.m.Prefix.Bits())
	})

	// Walk in pre-order keeping the chain of enclosing nodes on a stack; each
	// node gives up the addresses of its immediate children.
	counts := make([]uint128.Uint128, len(nodes))
	stack := make([]int, 0, 8)
	for i, n := range nodes {
		for len(stack) > 0 && !contains(nodes[stack[len(stack)-1]].span, n.span) {
			stack = stack[:len(stack)-1]
		}
		size := Size(n.span)
		if len(stack) > 0 {
			top := stack[len(stack)-1]
			counts[top] = counts[top].Sub(size)
		}
		counts[i] = size
		stack = append(stack, i)
	}

	out := make([]Match[V], 0, len(nodes))
	for i, n := range nodes {
		if counts[i].IsZero() {
			continue
		}
		m := n.m
		m.Count = counts[i]
		out = append(out, m)
	}
	return out
}

func contains(outer, inner netip.Prefix) bool {
	return outer.Bits() <= inner.Bits() && outer.Contains(inner.Addr())
}
