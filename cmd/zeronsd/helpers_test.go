package main

import (
	"context"
	"net"
	"testing"

	"github.com/miekg/dns"

	"github.com/zerotier/zeronsd/central"
	"github.com/zerotier/zeronsd/mock"
	"github.com/zerotier/zeronsd/refresh"
	"github.com/zerotier/zeronsd/zone"
)

const testNetwork = "8056c2e21c000001"

func setQuestion(qClass, qType uint16, qName string) *dns.Msg {
	m := new(dns.Msg)
	m.Id = 1
	m.Opcode = dns.OpcodeQuery
	m.Question = []dns.Question{{Name: qName, Qtype: qType, Qclass: qClass}}

	return m
}

func newRR(s string) dns.RR {
	rr, err := dns.NewRR(s)
	if err != nil {
		panic(err)
	}

	return rr
}

func testConfig() *config {
	cfg := newConfig()
	cfg.projectURL = "projectURL"
	cfg.TTLAsSecs = 60
	cfg.chaosFlag = true
	cfg.domain = "example.net."
	cfg.port = "0"

	return cfg
}

// testMembers covers a named member, an unnamed member, an offline member and a member
// with an address outside of the 10.1.2.0/24 subnet.
func testMembers() []central.Member {
	return []central.Member{
		{ID: "aaaaaaaaaa", Name: "Laptop One", Online: true, Addresses: []string{"10.1.2.3", "fd00::3"}},
		{ID: "bbbbbbbbbb", Online: true, Addresses: []string{"10.1.2.4/24"}},
		{ID: "cccccccccc", Name: "offline", Online: false, Addresses: []string{"10.1.2.5"}},
		{ID: "dddddddddd", Name: "far", Online: true, Addresses: []string{"10.9.9.9"}},
	}
}

// newTestAuthorities returns a forward zone and the reverse zone of cidr populated from
// testMembers by a single refresh tick.
func newTestAuthorities(t *testing.T, cidr string, wildcard bool) (fwd, rev *zone.Authority) {
	t.Helper()
	var err error
	fwd, err = zone.NewForward("example.net.", wildcard, 60)
	if err != nil {
		t.Fatal("Setup", err)
	}
	_, subnet, err := net.ParseCIDR(cidr)
	if err != nil {
		t.Fatal("Setup", err)
	}
	rev, err = zone.NewReverse(subnet, fwd.Domain, 60)
	if err != nil {
		t.Fatal("Setup", err)
	}

	src := &mock.Source{}
	src.Set(testMembers()...)
	r := refresh.New(refresh.Config{Network: testNetwork, Source: src, Forward: fwd, Reverse: rev})
	if err := r.Tick(context.Background()); err != nil {
		t.Fatal("Setup tick", err)
	}

	return
}

func newTestServer(t *testing.T, cfg *config, wildcard bool) *server {
	t.Helper()
	fwd, rev := newTestAuthorities(t, "10.1.2.0/24", wildcard)

	return newServer(cfg, fwd, rev, nil, "", "")
}

// exchange runs the query thru ServeDNS and returns the response.
func exchange(t *testing.T, srv *server, m *dns.Msg) *dns.Msg {
	t.Helper()
	wtr := &mock.ResponseWriter{}
	srv.ServeDNS(wtr, m)
	resp := wtr.Get()
	if resp == nil {
		t.Fatal("No response to", m.Question)
	}

	return resp
}
