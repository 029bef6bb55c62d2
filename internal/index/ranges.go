package index

import (
	"fmt"
	"net/netip"

	"go4.org/netipx"
)

// RangePrefixes splits the inclusive address range [from, to] into the
// minimal list of CIDR prefixes covering it.
func RangePrefixes(from, to netip.Addr) ([]netip.Prefix, error) {
	r := netipx.IPRangeFrom(from.Unmap(), to.Unmap())
	if !r.IsValid() {
		return nil, fmt.Errorf("invalid address range %s-%s", from, to)
	}
	return r.Prefixes(), nil
}
