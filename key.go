package ratelimit

import "net/netip"

// IPKey returns the limiter key for a single client address.
// IPv4-mapped IPv6 addresses are unmapped so both representations of the
// same client share one key.
func IPKey(addr netip.Addr) netip.Addr {
	return addr.Unmap()
}

// SubnetKey returns the limiter key for the client's subnet.
// Globally routable IPv4 addresses are grouped by /24 and globally routable
// IPv6 addresses by /48, so a client rotating through addresses in its
// subnet still maps to one key. Non-global addresses keep their full
// address as the key so local clients are not lumped together.
func SubnetKey(addr netip.Addr) netip.Addr {
	if addr.Is4() {
		if !isGlobal4(addr) {
			return addr
		}
		o := addr.As4()
		o[3] = 0
		return netip.AddrFrom4(o)
	}
	// IPv4-mapped addresses keep their full form.
	if addr.Is4In6() {
		return addr
	}
	if !isGlobal6(addr) {
		return addr
	}
	s := addr.As16()
	for i := 6; i < 16; i++ {
		s[i] = 0
	}
	return netip.AddrFrom16(s)
}

// isGlobal4 reports whether an IPv4 address is globally routable.
func isGlobal4(addr netip.Addr) bool {
	o := addr.As4()
	u := uint32(o[0])<<24 | uint32(o[1])<<16 | uint32(o[2])<<8 | uint32(o[3])

	// 192.0.0.9 and 192.0.0.10 are the only globally routable addresses
	// in the otherwise reserved 192.0.0.0/24 range.
	if u == 0xc0000009 || u == 0xc000000a {
		return true
	}

	broadcast := u == 0xffffffff
	switch {
	case o[0] == 10, o[0] == 172 && o[1]&0xf0 == 16, o[0] == 192 && o[1] == 168:
		return false // private
	case o[0] == 127:
		return false // loopback
	case o[0] == 169 && o[1] == 254:
		return false // link local
	case broadcast:
		return false
	case o[0] == 192 && o[1] == 0 && o[2] == 2,
		o[0] == 198 && o[1] == 51 && o[2] == 100,
		o[0] == 203 && o[1] == 0 && o[2] == 113:
		return false // documentation
	case o[0] == 100 && o[1]&0xc0 == 0x40:
		return false // shared address space, 100.64.0.0/10
	case o[0] == 192 && o[1] == 0 && o[2] == 0:
		return false // reserved for future protocols
	case o[0]&0xf0 == 240:
		return false // reserved, 240.0.0.0/4
	case o[0] == 198 && o[1]&0xfe == 18:
		return false // benchmarking, 198.18.0.0/15
	case o[0] == 0:
		return false // 0.0.0.0/8
	}
	return true
}

// isGlobal6 reports whether an IPv6 address is globally routable.
func isGlobal6(addr netip.Addr) bool {
	s := addr.As16()
	seg0 := uint16(s[0])<<8 | uint16(s[1])

	if s[0] == 0xff {
		// Multicast with a routable scope.
		switch seg0 & 0x000f {
		case 1, 2, 3, 4, 5, 8, 14:
			return true
		default:
			return false
		}
	}
	if addr.IsLoopback() || addr.IsUnspecified() {
		return false
	}
	if seg0&0xffc0 == 0xfe80 {
		return false // link local
	}
	if seg0&0xfe00 == 0xfc00 {
		return false // unique local
	}
	if seg0 == 0x2001 && s[2] == 0x0d && s[3] == 0xb8 {
		return false // documentation, 2001:db8::/32
	}
	return true
}
