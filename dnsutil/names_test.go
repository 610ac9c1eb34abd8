package dnsutil

import (
	"testing"

	"github.com/miekg/dns"
)

func TestInDomain(t *testing.T) {
	testCases := []struct {
		sub, parent string
		exp         bool
	}{
		{"example.com.", "example.com.", true},
		{"a.example.com.", "example.com.", true},
		{"A.Example.COM", ".example.com.", true},
		{"aexample.com.", "example.com.", false},
		{"example.com.", "a.example.com.", false},
		{"anything.", ".", true},
		{"anything.", "", true},
		{"net.", "com.", false},
	}

	for ix, tc := range testCases {
		got := InDomain(tc.sub, tc.parent)
		if got != tc.exp {
			t.Error(ix, tc.sub, tc.parent, "got", got, "expected", tc.exp)
		}
	}
}

func TestChompCanonicalName(t *testing.T) {
	testCases := []struct{ in, exp string }{
		{"Example.COM.", "example.com"},
		{"a.b", "a.b"},
		{".", ""},
	}
	for ix, tc := range testCases {
		got := ChompCanonicalName(tc.in)
		if got != tc.exp {
			t.Error(ix, "got", got, "expected", tc.exp)
		}
	}
}

func TestIsReverse(t *testing.T) {
	testCases := []struct {
		qName string
		exp   bool
	}{
		{"1.0.0.10.in-addr.arpa.", true},
		{"IN-ADDR.ARPA.", true},
		{"b.a.9.8.ip6.arpa.", true},
		{"ip6.arpa.", true},
		{"arpa.", false},
		{"host.home.arpa.", false},
		{"in-addr.arpa.example.", false},
	}
	for ix, tc := range testCases {
		got := IsReverse(tc.qName)
		if got != tc.exp {
			t.Error(ix, tc.qName, "got", got, "expected", tc.exp)
		}
	}
}

func TestRRIsEqual(t *testing.T) {
	newRR := func(s string) dns.RR {
		rr, err := dns.NewRR(s)
		if err != nil {
			t.Fatal("Setup error", s, err)
		}
		return rr
	}

	testCases := []struct {
		a, b string
		exp  bool
	}{
		{"a.example. 60 IN A 10.0.0.1", "A.EXAMPLE. 3600 IN A 10.0.0.1", true},
		{"a.example. 60 IN A 10.0.0.1", "a.example. 60 IN A 10.0.0.2", false},
		{"a.example. 60 IN A 10.0.0.1", "b.example. 60 IN A 10.0.0.1", false},
		{"a.example. 60 IN A 10.0.0.1", "a.example. 60 CH A 10.0.0.1", false},
		{"1.0.0.10.in-addr.arpa. IN PTR h.example.", "1.0.0.10.in-addr.arpa. IN PTR H.example.", true},
		{"a.example. IN AAAA fd00::1", "a.example. IN A 10.0.0.1", false},
	}

	for ix, tc := range testCases {
		got := RRIsEqual(newRR(tc.a), newRR(tc.b))
		if got != tc.exp {
			t.Error(ix, tc.a, tc.b, "got", got, "expected", tc.exp)
		}
	}
}
