package database

import (
	"net"

	"github.com/miekg/dns"

	"github.com/zerotier/zeronsd/dnsutil"
)

// AddPTR adds a PTR for ip pointing at target. Return false if the ip cannot be reversed
// or the PTR is a duplicate.
func (t *Database) AddPTR(ip net.IP, target string, ttl uint32) bool {
	qName := dnsutil.IPToReverseQName(ip)
	if len(qName) == 0 {
		return false
	}

	ptr := &dns.PTR{
		Hdr: dns.RR_Header{Name: qName, Rrtype: dns.TypePTR, Class: dns.ClassINET, Ttl: ttl},
		Ptr: dns.Fqdn(target),
	}

	return t.AddRR(ptr)
}

// LookupPTR returns the PTRs held for ip.
func (t *Database) LookupPTR(ip net.IP) (ar []dns.RR) {
	qName := dnsutil.IPToReverseQName(ip)
	if len(qName) == 0 {
		return
	}

	ar, _ = t.LookupRR(dns.ClassINET, dns.TypePTR, qName)

	return
}
