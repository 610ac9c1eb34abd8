package dnsutil

import (
	"strings"

	"github.com/miekg/dns"
)

// InDomain returns true if sub is equal to or below parent. Both names are made
// canonical before comparison and parent may carry a leading "." as is common when
// suffix matching.
func InDomain(sub, parent string) bool {
	if len(parent) == 0 || parent == "." {
		return true
	}

	parent = dns.CanonicalName(strings.TrimPrefix(parent, "."))
	sub = dns.CanonicalName(sub)
	if sub == parent {
		return true
	}

	return len(sub) > len(parent) && strings.HasSuffix(sub, "."+parent)
}

// ChompCanonicalName makes n canonical and drops one trailing dot.
func ChompCanonicalName(n string) string {
	return strings.TrimSuffix(dns.CanonicalName(n), ".")
}

// IsReverse returns true if qName sits in either of the reverse trees.
func IsReverse(qName string) bool {
	qName = dns.CanonicalName(qName)

	return strings.HasSuffix(qName, V4Suffix) || strings.HasSuffix(qName, V6Suffix) ||
		qName == V4Suffix[1:] || qName == V6Suffix[1:]
}

// RRIsEqual returns true if the RRs are identical excepting for TTL. Miekg does not
// offer a public comparison of the non-header part of an RR so the string forms are
// compared with the header portion removed.
func RRIsEqual(a, b dns.RR) bool {
	ah := a.Header()
	bh := b.Header()
	if ah.Class != bh.Class || ah.Rrtype != bh.Rrtype ||
		dns.CanonicalName(ah.Name) != dns.CanonicalName(bh.Name) {
		return false
	}

	as := a.String()[len(ah.String()):]
	bs := b.String()[len(bh.String()):]

	return strings.EqualFold(as, bs)
}
