package dnsutil

import (
	"fmt"
	"net"
	"strings"
)

// IPToReverseQName converts an IP address into the fully qualified name normally looked
// up in the reverse tree. An empty string is returned for a nil or malformed IP.
func IPToReverseQName(ip net.IP) string {
	if ip4 := ip.To4(); ip4 != nil {
		return fmt.Sprintf("%d.%d.%d.%d%s", ip4[3], ip4[2], ip4[1], ip4[0], V4Suffix)
	}

	ip6 := ip.To16()
	if ip6 == nil {
		return ""
	}

	var sb strings.Builder
	for ix := 15; ix >= 0; ix-- {
		fmt.Fprintf(&sb, "%x.%x.", ip6[ix]&0xf, ip6[ix]>>4)
	}
	sb.WriteString(V6Suffix[1:])

	return sb.String()
}

// ReverseZone returns the reverse zone apex which covers the whole of cidr. Reverse
// labels fall on octet (ipv4) or nibble (ipv6) boundaries so a prefix which is not on a
// boundary is rounded down to the enclosing zone, e.g. 10.1.2.0/23 results in
// 1.10.in-addr.arpa.
func ReverseZone(cidr *net.IPNet) (string, error) {
	if cidr == nil {
		return "", fmt.Errorf("nil CIDR has no reverse zone")
	}
	ones, bits := cidr.Mask.Size()
	var keep, total int
	switch bits {
	case 8 * net.IPv4len:
		keep, total = ones/8, 4
	case 8 * net.IPv6len:
		keep, total = ones/4, 32
	default:
		return "", fmt.Errorf("non-canonical mask on %s", cidr.String())
	}

	full := IPToReverseQName(cidr.IP.Mask(cidr.Mask))
	if len(full) == 0 {
		return "", fmt.Errorf("cannot reverse %s", cidr.String())
	}
	labels := strings.Split(full, ".")

	return strings.Join(labels[total-keep:], "."), nil
}

// InvertPtrToIP extracts the IP address from a complete reverse qName. An error is
// returned if qName is not in a reverse tree, is truncated or contains malformed labels.
func InvertPtrToIP(qName string) (net.IP, error) {
	qName = strings.ToLower(qName)
	switch {
	case strings.HasSuffix(qName, V4Suffix):
		return invertIPv4(strings.TrimSuffix(qName, V4Suffix))
	case strings.HasSuffix(qName, V6Suffix):
		return invertIPv6(strings.TrimSuffix(qName, V6Suffix))
	}

	return nil, fmt.Errorf("unknown reverse suffix '%s'", qName)
}

// invertIPv4 converts 4.3.2.1 back into 1.2.3.4. Octets must be strict decimals with no
// leading zeroes.
func invertIPv4(s string) (net.IP, error) {
	labels := strings.Split(s, ".")
	if len(labels) != 4 {
		return nil, fmt.Errorf("malformed reverse ipv4 address '%s'", s)
	}
	var octets [4]byte
	for ix, label := range labels {
		v := convertDecimalOctet(label)
		if v < 0 {
			return nil, fmt.Errorf("malformed reverse ipv4 address '%s'", s)
		}
		octets[3-ix] = byte(v)
	}

	return net.IPv4(octets[0], octets[1], octets[2], octets[3]), nil
}

// invertIPv6 converts 32 reversed nibble labels back into an ipv6 address.
func invertIPv6(s string) (net.IP, error) {
	labels := strings.Split(s, ".")
	if len(labels) != 32 {
		return nil, fmt.Errorf("malformed reverse ipv6 address '%s'", s)
	}
	ip := make(net.IP, net.IPv6len)
	for ix, label := range labels {
		if len(label) != 1 {
			return nil, fmt.Errorf("malformed reverse ipv6 address '%s'", s)
		}
		var nibble byte
		switch h := label[0]; {
		case h >= '0' && h <= '9':
			nibble = h - '0'
		case h >= 'a' && h <= 'f':
			nibble = h - 'a' + 10
		default:
			return nil, fmt.Errorf("malformed reverse ipv6 address '%s'", s)
		}
		pos := 15 - ix/2
		if ix%2 == 0 {
			ip[pos] |= nibble
		} else {
			ip[pos] |= nibble << 4
		}
	}

	return ip, nil
}

// convertDecimalOctet strictly converts an ipv4 decimal octet to an int. Return -1 if
// conversion fails: no leading zeroes, range 0-255, length 1-3 and digits only.
func convertDecimalOctet(s string) int {
	if len(s) == 0 || len(s) > 3 || (s[0] == '0' && len(s) > 1) {
		return -1
	}
	ret := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return -1
		}
		ret = ret*10 + int(c-'0')
	}
	if ret > 255 {
		return -1
	}

	return ret
}
