package zone

import (
	"net"
	"sort"
	"strings"
	"sync"

	"github.com/zerotier/zeronsd/dnsutil"
)

// PTRSet contains one reverse Authority per distinct subnet. It is safe for concurrent
// use, though in practice registration completes before serving starts.
type PTRSet struct {
	nsName string
	ttl    uint32

	mu    sync.RWMutex
	slice []*Authority // Most specific first
}

// NewPTRSet creates an empty set. New authorities use nsName and ttl in their SOA and NS.
func NewPTRSet(nsName string, ttl uint32) *PTRSet {
	return &PTRSet{nsName: nsName, ttl: ttl}
}

// Register returns the authority for cidr, creating it if this is the first time the
// subnet has been seen. created is true if a new authority was made. Subnets are keyed on
// their network address and prefix length so different hosts on the same subnet share an
// authority.
func (t *PTRSet) Register(cidr *net.IPNet) (auth *Authority, created bool, err error) {
	key := (&net.IPNet{IP: cidr.IP.Mask(cidr.Mask), Mask: cidr.Mask}).String()

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, auth := range t.slice {
		if auth.CIDR.String() == key {
			return auth, false, nil
		}
	}

	auth, err = NewReverse(cidr, t.nsName, t.ttl)
	if err != nil {
		return nil, false, err
	}
	t.slice = append(t.slice, auth)
	t.sort()

	return auth, true, nil
}

// Len returns the number of registered subnets.
func (t *PTRSet) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.slice)
}

// Authorities returns a copy of the registered authorities, most specific first.
func (t *PTRSet) Authorities() []*Authority {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return append([]*Authority{}, t.slice...)
}

// sort arranges authorities in most-specific-first order so the find functions return
// the most specific match.
//
// Label count is the primary sort key with more labels coming earlier. Longer prefixes
// come next as distinct subnets can round to the same zone, then the domain name which
// gives stable results and a visually convenient order.
func (t *PTRSet) sort() {
	sort.Slice(t.slice,
		func(i, j int) bool {
			di := t.slice[i].Domain
			dj := t.slice[j].Domain
			ilc := strings.Count(di, ".")
			jlc := strings.Count(dj, ".")
			if ilc != jlc {
				return ilc > jlc
			}
			ip, _ := t.slice[i].CIDR.Mask.Size()
			jp, _ := t.slice[j].CIDR.Mask.Size()
			if ip != jp {
				return ip > jp
			}

			return di > dj
		},
	)
}

// Find returns the most specific authority whose subnet contains ip, or nil.
func (t *PTRSet) Find(ip net.IP) *Authority {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, auth := range t.slice {
		if auth.Contains(ip) {
			return auth
		}
	}

	return nil
}

// FindInDomain returns the most specific authority whose zone contains qName, or nil.
func (t *PTRSet) FindInDomain(qName string) *Authority {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, auth := range t.slice {
		if dnsutil.InDomain(qName, auth.Domain) {
			return auth
		}
	}

	return nil
}
