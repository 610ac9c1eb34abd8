package central

import (
	"context"
	"fmt"
	"net"
	"strings"
)

// Member is one network member as reported by Central.
type Member struct {
	ID        string   // Node ID, ten hex digits
	Name      string   // Display name, possibly empty
	Online    bool     // Central's view of reachability
	Addresses []string // Assigned addresses as "ip" or "ip/prefix"
}

// IPs returns the usable addresses of the member. Entries which do not parse are
// silently dropped. IPv4 addresses are returned in 4 byte form.
func (t Member) IPs() (ips []net.IP) {
	for _, s := range t.Addresses {
		s = strings.TrimSpace(s)
		if ix := strings.IndexByte(s, '/'); ix >= 0 {
			s = s[:ix]
		}
		ip := net.ParseIP(s)
		if ip == nil {
			continue
		}
		if ip4 := ip.To4(); ip4 != nil {
			ip = ip4
		}
		ips = append(ips, ip)
	}

	return
}

// Source supplies the member list of a network.
type Source interface {
	Members(ctx context.Context, network string) ([]Member, error)
}

// Listen is an address assigned to this host on the network along with its subnet.
type Listen struct {
	IP     net.IP
	Subnet *net.IPNet // Network address form
}

// String returns the address in CIDR notation, e.g. "10.1.2.3/24".
func (t Listen) String() string {
	ones, _ := t.Subnet.Mask.Size()

	return fmt.Sprintf("%s/%d", t.IP, ones)
}
