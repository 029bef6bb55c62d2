package ipmeta

import (
	"errors"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

var (
	errMalformedAddress = errors.New("malformed address")
	errMaskRange        = errors.New("mask length out of range")
	errPrefixTooWide    = errors.New("prefix too wide: ::/0 holds 2^128 addresses, which overflows the 128-bit match count")
)

// ParseQuery converts an address or CIDR prefix string into the masked
// prefix to look up. A bare address becomes a host prefix (/32 or /128).
// IPv4-mapped IPv6 addresses are treated as IPv4. The mask length must be
// plain decimal digits. ::/0 is rejected because its size does not fit the
// 128-bit match count.
func ParseQuery(s string) (netip.Prefix, error) {
	s = strings.TrimSpace(s)

	addrPart, lenPart, hasLen := strings.Cut(s, "/")
	addr, err := netip.ParseAddr(addrPart)
	if err != nil || addr.Zone() != "" {
		return netip.Prefix{}, &InputError{Input: s, Err: errMalformedAddress}
	}

	mapped := addr.Is4In6()
	addr = addr.Unmap()

	bits := addr.BitLen()
	if hasLen {
		n, err := strconv.Atoi(lenPart)
		if err != nil || !isDigits(lenPart) {
			return netip.Prefix{}, &InputError{Input: s, Err: fmt.Errorf("%w: %q", errMaskRange, lenPart)}
		}
		if mapped {
			n -= 96
		}
		if n < 0 || n > addr.BitLen() {
			return netip.Prefix{}, &InputError{Input: s, Err: fmt.Errorf("%w: %s", errMaskRange, lenPart)}
		}
		bits = n
	}

	q := netip.PrefixFrom(addr, bits).Masked()
	if err := checkPrefix(q); err != nil {
		return netip.Prefix{}, &InputError{Input: s, Err: err}
	}
	return q, nil
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return s != ""
}

// checkPrefix rejects prefixes whose size does not fit a coverage count.
func checkPrefix(q netip.Prefix) error {
	if !q.IsValid() {
		return errMalformedAddress
	}
	if q.Addr().Is6() && q.Bits() == 0 {
		return errPrefixTooWide
	}
	return nil
}
