package zone

import (
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"

	"github.com/zerotier/zeronsd/database"
	"github.com/zerotier/zeronsd/dnsutil"
)

// Authority is a zone of authority. Domain, SOA, NS and CIDR are fixed at construction
// and may be read freely. Zone content is only accessed via Lookup, Current and Replace.
type Authority struct {
	Domain  string // Canonical FQDN of the apex
	Forward bool
	CIDR    *net.IPNet // Reverse authorities only
	SOA     dns.SOA
	NS      []dns.RR

	ttl      uint32
	wildcard bool
	getter   *database.Getter
}

var soaTime = time.Now() // Set here so tests can over-ride

// NewForward creates the forward authority for domain. In wildcard mode every name the
// refresher adds also gets a "*" child pointing at the same addresses.
func NewForward(domain string, wildcard bool, ttl uint32) (*Authority, error) {
	if _, ok := dns.IsDomainName(domain); !ok || domain == "." || len(domain) == 0 {
		return nil, fmt.Errorf("invalid domain '%s'", domain)
	}
	domain = dns.CanonicalName(domain)
	t := &Authority{Domain: domain, Forward: true, wildcard: wildcard, ttl: ttl}
	t.synthesize(domain, domain)

	return t, nil
}

// NewReverse creates the reverse authority for cidr. The apex is the reverse zone which
// fully contains the cidr. nsName is the forward domain, used for the NS and SOA mbox.
func NewReverse(cidr *net.IPNet, nsName string, ttl uint32) (*Authority, error) {
	domain, err := dnsutil.ReverseZone(cidr)
	if err != nil {
		return nil, err
	}
	masked := &net.IPNet{IP: cidr.IP.Mask(cidr.Mask), Mask: cidr.Mask}
	t := &Authority{Domain: domain, CIDR: masked, ttl: ttl}
	t.synthesize(dns.CanonicalName(nsName), dns.CanonicalName(nsName))

	return t, nil
}

func (t *Authority) synthesize(nsName, mboxDomain string) {
	t.SOA.Hdr.Name = t.Domain
	t.SOA.Hdr.Class = dns.ClassINET
	t.SOA.Hdr.Rrtype = dns.TypeSOA
	t.SOA.Hdr.Ttl = t.ttl
	t.SOA.Ns = nsName
	t.SOA.Mbox = "hostmaster." + mboxDomain
	t.SOA.Serial = uint32(soaTime.Unix())

	t.SOA.Refresh = 110040 // None of these timers really have much meaning as there
	t.SOA.Retry = 110080   // are no secondaries, but they have to be populated with
	t.SOA.Expire = 28      // something.
	t.SOA.Minttl = 9030

	t.NS = []dns.RR{&dns.NS{
		Hdr: dns.RR_Header{Name: t.Domain, Rrtype: dns.TypeNS, Class: dns.ClassINET, Ttl: t.ttl},
		Ns:  nsName,
	}}

	t.getter = database.NewGetter()
	t.getter.Replace(t.NewDatabase())
}

// TTL returns the TTL used for all records in the zone.
func (t *Authority) TTL() uint32 {
	return t.ttl
}

// Wildcard returns the construction-time wildcard setting.
func (t *Authority) Wildcard() bool {
	return t.wildcard
}

// NewDatabase returns a database populated with the apex SOA and NS. Refreshers start
// from this database so the apex always exists.
func (t *Authority) NewDatabase() *database.Database {
	db := database.NewDatabase()
	db.AddRR(&t.SOA)
	for _, rr := range t.NS {
		db.AddRR(rr)
	}

	return db
}

// Replace installs db as the complete zone content. Concurrent lookups see either the
// previous content or db, never a mix.
func (t *Authority) Replace(db *database.Database) {
	t.getter.Replace(db)
}

// Current returns the current zone content.
func (t *Authority) Current() *database.Database {
	return t.getter.Current()
}

// Lookup returns the RRs of qType at qName along with an NXDOMAIN indication. A qName
// outside the zone is always nxDomain.
func (t *Authority) Lookup(qType uint16, qName string) (ans []dns.RR, nxDomain bool) {
	ans, nxDomain, _ = t.LookupWildcard(qType, qName)

	return
}

// LookupWildcard is Lookup which also returns the owner of the wildcard which
// synthesized the answer, if any.
func (t *Authority) LookupWildcard(qType uint16, qName string) (ans []dns.RR, nxDomain bool, wildcardOrigin string) {
	if !dnsutil.InDomain(qName, t.Domain) {
		return nil, true, ""
	}

	return t.getter.Current().LookupWildcard(dns.ClassINET, qType, qName)
}

// Contains returns true if ip is in the subnet of a reverse authority.
func (t *Authority) Contains(ip net.IP) bool {
	return t.CIDR != nil && t.CIDR.Contains(ip)
}

// String returns a printable identifier such as "home.arpa." or
// "2.1.10.in-addr.arpa.(10.1.2.0/24)".
func (t *Authority) String() string {
	if t.Forward {
		return t.Domain
	}

	return t.Domain + "(" + t.CIDR.String() + ")"
}
