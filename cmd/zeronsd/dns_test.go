package main

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/markdingo/rrl"
	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerotier/zeronsd/dnsutil"
	"github.com/zerotier/zeronsd/log"
	"github.com/zerotier/zeronsd/mock"
)

// This series of tests is essentially in order of the flow of ServeDNS in dns.go.

// Early validation testing prior to authority
func TestDNSFormErr(t *testing.T) {
	out := &mock.IOWriter{}
	log.SetOut(out)
	cfg := testConfig()
	cfg.logQueries.Store(true)
	server := newTestServer(t, cfg, false)
	out.Reset() // Discard refresh logging

	t.Run("Empty Message", func(t *testing.T) { testInvalid(t, server, new(dns.Msg)) })

	m := setQuestion(dns.ClassINET, dns.TypeSOA, "example.net.")
	q := dns.Question{Name: "xxx", Qtype: dns.TypeA, Qclass: dns.ClassINET}
	m.Question = append(m.Question, q) // Two questions
	t.Run("Two Questions", func(t *testing.T) { testInvalid(t, server, m) })

	m = setQuestion(dns.ClassINET, dns.TypeSOA, "example.net.")
	m.Answer = append(m.Answer, newRR("example.net. IN A 127.0.0.1"))
	t.Run("Non-empty Answer", func(t *testing.T) { testInvalid(t, server, m) })

	m = setQuestion(dns.ClassINET, dns.TypeSOA, "example.net.")
	m.Ns = append(m.Ns, newRR("example.net. IN A 127.0.0.1"))
	t.Run("Non-empty NS", func(t *testing.T) { testInvalid(t, server, m) })

	m = setQuestion(dns.ClassINET, dns.TypeSOA, "example.net.")
	m.Opcode = dns.OpcodeNotify
	t.Run("Wrong op-code", func(t *testing.T) { testInvalid(t, server, m) })

	// Check the logging output while we're at it
	exp := `ru=FORMERR q=None/ s=127.0.0.2:4053 id=0 h=U sz=12/0 C=0/0/0 Malformed Query
ru=FORMERR q=SOA/example.net. s=127.0.0.2:4053 id=1 h=U sz=12/0 C=0/0/0 Malformed Query
ru=FORMERR q=SOA/example.net. s=127.0.0.2:4053 id=1 h=U sz=12/0 C=0/0/0 Malformed Query
ru=FORMERR q=SOA/example.net. s=127.0.0.2:4053 id=1 h=U sz=12/0 C=0/0/0 Malformed Query
ru=FORMERR q=SOA/example.net. s=127.0.0.2:4053 id=1 h=U sz=12/0 C=0/0/0 Malformed Query
`
	got := out.String()
	if got != exp {
		t.Error("Log data differs. Got:", got, "Exp:", exp)
	}

	server.statsMu.RLock()
	defer server.statsMu.RUnlock()
	if server.stats.gen.badRequest != 5 {
		t.Error("Expected 5 bad requests, got", server.stats.gen.badRequest)
	}
}

// Sub-test for TestFormErr
func testInvalid(t *testing.T, server *server, m *dns.Msg) {
	wtr := &mock.ResponseWriter{}
	server.ServeDNS(wtr, m)
	resp := wtr.Get()
	if resp == nil {
		t.Fatal("Setup failed")
	}
	if resp.Rcode != dns.RcodeFormatError {
		t.Error("Expected format error, not", dnsutil.RcodeToString(resp.Rcode))
	}
}

func TestDNSForward(t *testing.T) {
	log.SetOut(&mock.IOWriter{})
	server := newTestServer(t, testConfig(), false)

	testCases := []struct {
		qType  uint16
		qName  string
		rcode  int
		answer []string // Data of each answer RR
		soa    bool     // Expect SOA in Authority
	}{
		{dns.TypeA, "laptop-one.example.net.", dns.RcodeSuccess, []string{"10.1.2.3"}, false},
		{dns.TypeA, "LAPTOP-ONE.Example.NET.", dns.RcodeSuccess, []string{"10.1.2.3"}, false},
		{dns.TypeAAAA, "laptop-one.example.net.", dns.RcodeSuccess, []string{"fd00::3"}, false},
		{dns.TypeA, "zt-aaaaaaaaaa.example.net.", dns.RcodeSuccess, []string{"10.1.2.3"}, false},
		{dns.TypeA, "zt-bbbbbbbbbb.example.net.", dns.RcodeSuccess, []string{"10.1.2.4"}, false},
		{dns.TypeA, "far.example.net.", dns.RcodeSuccess, []string{"10.9.9.9"}, false},
		{dns.TypeTXT, "laptop-one.example.net.", dns.RcodeSuccess, nil, true},     // NoData
		{dns.TypeAAAA, "zt-bbbbbbbbbb.example.net.", dns.RcodeSuccess, nil, true}, // NoData
		{dns.TypeA, "offline.example.net.", dns.RcodeNameError, nil, true},
		{dns.TypeA, "www.laptop-one.example.net.", dns.RcodeNameError, nil, true}, // No wildcard
	}

	for _, tc := range testCases {
		t.Run(tc.qName+"/"+dnsutil.TypeToString(tc.qType), func(t *testing.T) {
			resp := exchange(t, server, setQuestion(dns.ClassINET, tc.qType, tc.qName))
			assert.Equal(t, dnsutil.RcodeToString(tc.rcode), dnsutil.RcodeToString(resp.Rcode))
			assert.True(t, resp.Authoritative)
			assert.Equal(t, tc.answer, answerData(resp.Answer))
			if tc.soa {
				require.Len(t, resp.Ns, 1)
				assert.Equal(t, dns.TypeSOA, resp.Ns[0].Header().Rrtype)
				assert.Equal(t, "example.net.", resp.Ns[0].Header().Name)
			} else {
				assert.Empty(t, resp.Ns)
			}
		})
	}
}

func TestDNSWildcard(t *testing.T) {
	log.SetOut(&mock.IOWriter{})
	server := newTestServer(t, testConfig(), true)

	resp := exchange(t, server, setQuestion(dns.ClassINET, dns.TypeA, "www.laptop-one.example.net."))
	assert.Equal(t, dns.RcodeSuccess, resp.Rcode)
	require.Len(t, resp.Answer, 1)
	assert.Equal(t, "www.laptop-one.example.net.", resp.Answer[0].Header().Name)
	assert.Equal(t, []string{"10.1.2.3"}, answerData(resp.Answer))

	resp = exchange(t, server, setQuestion(dns.ClassINET, dns.TypeA, "a.b.zt-bbbbbbbbbb.example.net."))
	assert.Equal(t, []string{"10.1.2.4"}, answerData(resp.Answer))

	resp = exchange(t, server, setQuestion(dns.ClassINET, dns.TypeA, "www.unknown.example.net."))
	assert.Equal(t, dns.RcodeNameError, resp.Rcode)
}

func TestDNSApex(t *testing.T) {
	log.SetOut(&mock.IOWriter{})
	server := newTestServer(t, testConfig(), false)

	for _, apex := range []string{"example.net.", "2.1.10.in-addr.arpa."} {
		resp := exchange(t, server, setQuestion(dns.ClassINET, dns.TypeSOA, apex))
		require.Len(t, resp.Answer, 1, apex)
		soa, ok := resp.Answer[0].(*dns.SOA)
		require.True(t, ok, apex)
		assert.Equal(t, "example.net.", soa.Ns)
		assert.Equal(t, "hostmaster.example.net.", soa.Mbox)
		require.Len(t, resp.Ns, 1, apex)
		assert.Equal(t, dns.TypeNS, resp.Ns[0].Header().Rrtype)

		resp = exchange(t, server, setQuestion(dns.ClassINET, dns.TypeNS, apex))
		require.Len(t, resp.Answer, 1, apex)
		assert.Equal(t, "example.net.", resp.Answer[0].(*dns.NS).Ns)

		resp = exchange(t, server, setQuestion(dns.ClassINET, dns.TypeANY, apex))
		require.Len(t, resp.Answer, 1, apex)
		assert.Equal(t, dns.TypeSOA, resp.Answer[0].Header().Rrtype)
	}

	server.statsMu.RLock()
	defer server.statsMu.RUnlock()
	assert.Equal(t, 2, server.stats.gen.authZoneSOA)
	assert.Equal(t, 2, server.stats.gen.authZoneNS)
	assert.Equal(t, 2, server.stats.gen.authZoneANY)
}

func TestDNSReverse(t *testing.T) {
	out := &mock.IOWriter{}
	log.SetOut(out)
	cfg := testConfig()
	server := newTestServer(t, cfg, false)

	resp := exchange(t, server, setQuestion(dns.ClassINET, dns.TypePTR, "3.2.1.10.in-addr.arpa."))
	assert.Equal(t, dns.RcodeSuccess, resp.Rcode)
	assert.Equal(t, []string{"laptop-one.example.net."}, answerData(resp.Answer))

	resp = exchange(t, server, setQuestion(dns.ClassINET, dns.TypePTR, "4.2.1.10.in-addr.arpa."))
	assert.Equal(t, []string{"zt-bbbbbbbbbb.example.net."}, answerData(resp.Answer))

	// Offline member has no PTR but is inside our subnet
	resp = exchange(t, server, setQuestion(dns.ClassINET, dns.TypePTR, "5.2.1.10.in-addr.arpa."))
	assert.Equal(t, dns.RcodeNameError, resp.Rcode)
	require.Len(t, resp.Ns, 1)
	assert.Equal(t, "2.1.10.in-addr.arpa.", resp.Ns[0].Header().Name)

	// Member outside our subnet is served by some other server, if at all
	resp = exchange(t, server, setQuestion(dns.ClassINET, dns.TypePTR, "9.9.9.10.in-addr.arpa."))
	assert.Equal(t, dns.RcodeNameError, resp.Rcode)
	assert.True(t, resp.Authoritative)
	assert.Empty(t, resp.Ns)
	assert.Empty(t, resp.Answer)

	// As is all of ip6.arpa as there is no ipv6 subnet
	ip6 := dnsutil.IPToReverseQName(net.ParseIP("fd00::3"))
	resp = exchange(t, server, setQuestion(dns.ClassINET, dns.TypePTR, ip6))
	assert.Equal(t, dns.RcodeNameError, resp.Rcode)
	assert.Empty(t, resp.Ns)

	server.statsMu.RLock()
	assert.Equal(t, 2, server.stats.gen.foreignReverse)
	assert.Equal(t, 3, server.stats.APtr.queries)
	assert.Equal(t, 2, server.stats.APtr.good)
	server.statsMu.RUnlock()

	// Compact logging of PTR queries
	out.Reset()
	cfg.logQueries.Store(true)
	exchange(t, server, setQuestion(dns.ClassINET, dns.TypePTR, "3.2.1.10.in-addr.arpa."))
	got := out.String()
	assert.Contains(t, got, "q=PTR/10.1.2.3 ")
	assert.Contains(t, got, " laptop-one\n")
}

func TestDNSRefused(t *testing.T) {
	log.SetOut(&mock.IOWriter{})
	server := newTestServer(t, testConfig(), false)

	resp := exchange(t, server, setQuestion(dns.ClassINET, dns.TypeA, "example.com."))
	assert.Equal(t, dns.RcodeRefused, resp.Rcode)
	assert.False(t, resp.Authoritative)

	resp = exchange(t, server, setQuestion(dns.ClassHESIOD, dns.TypeA, "laptop-one.example.net."))
	assert.Equal(t, dns.RcodeRefused, resp.Rcode)

	server.statsMu.RLock()
	defer server.statsMu.RUnlock()
	assert.Equal(t, 1, server.stats.gen.noAuthority)
	assert.Equal(t, 1, server.stats.gen.wrongClass)
}

// UDP responses are limited to 512 without EDNS and otherwise to the client size, capped
// at MaxUDPSize. TCP has no limit.
func TestDNSMaxSize(t *testing.T) {
	out := &mock.IOWriter{}
	log.SetOut(out)
	cfg := testConfig()
	server := newTestServer(t, cfg, false)
	cfg.logQueries.Store(true)

	query := func(size uint16) {
		m := setQuestion(dns.ClassINET, dns.TypeA, "laptop-one.example.net.")
		if size > 0 {
			m.SetEdns0(size, false)
		}
		out.Reset()
		resp := exchange(t, server, m)
		if size > 0 {
			require.NotNil(t, resp.IsEdns0(), "EDNS query should get EDNS reply")
		} else {
			assert.Nil(t, resp.IsEdns0(), "Non-EDNS query should not get EDNS reply")
		}
	}

	query(0)
	assert.Contains(t, out.String(), "/512 ")
	query(800)
	assert.Contains(t, out.String(), "/800 ")
	query(4096)
	assert.Contains(t, out.String(), "/1232 ")

	tcp := newServer(cfg, server.forward, server.reverse, nil, dnsutil.TCPNetwork, "")
	out.Reset()
	exchange(t, tcp, setQuestion(dns.ClassINET, dns.TypeA, "laptop-one.example.net."))
	assert.Contains(t, out.String(), " h=T ")
	assert.Contains(t, out.String(), "/0 ")
}

// rrlTupleFor runs an in-zone query thru the database dispatch and returns the tuple rrl
// would be given.
func rrlTupleFor(t *testing.T, srv *server, qType uint16, qName string) *rrl.ResponseTuple {
	t.Helper()
	m := setQuestion(dns.ClassINET, qType, qName)
	req := newRequest(m, mock.NewNetAddr("udp", "127.0.0.2:4053"), dnsutil.UDPNetwork)
	req.question = m.Question[0]
	req.qName = qName
	require.True(t, srv.setAuthority(req), qName)
	srv.serveDatabase(&mock.ResponseWriter{}, req)

	return req.rrlTuple()
}

func TestRRLTuple(t *testing.T) {
	log.SetOut(&mock.IOWriter{})
	server := newTestServer(t, testConfig(), false)

	testCases := []struct {
		qType    uint16
		qName    string
		category rrl.AllowanceCategory
		salient  string
	}{
		{dns.TypeA, "laptop-one.example.net.", rrl.AllowanceAnswer, "laptop-one.example.net."},
		{dns.TypeA, "random1.example.net.", rrl.AllowanceNXDomain, "example.net."},
		{dns.TypeA, "random2.example.net.", rrl.AllowanceNXDomain, "example.net."},
		{dns.TypeTXT, "laptop-one.example.net.", rrl.AllowanceReferral, "example.net."}, // SOA in Ns
		{dns.TypePTR, "3.2.1.10.in-addr.arpa.", rrl.AllowanceAnswer, "3.2.1.10.in-addr.arpa."},
	}
	for _, tc := range testCases {
		tuple := rrlTupleFor(t, server, tc.qType, tc.qName)
		assert.Equal(t, tc.category, tuple.AllowanceCategory, tc.qName)
		assert.Equal(t, tc.salient, tuple.SalientName, tc.qName)
		assert.Equal(t, tc.qType, tuple.Type, tc.qName)
	}

	// Refused
	m := setQuestion(dns.ClassINET, dns.TypeA, "example.com.")
	req := newRequest(m, nil, dnsutil.UDPNetwork)
	req.response = exchange(t, server, m)
	tuple := req.rrlTuple()
	assert.Equal(t, rrl.AllowanceError, tuple.AllowanceCategory)
	assert.Equal(t, "example.com.", tuple.SalientName)
}

// Wildcard answers are all accounted against the member name, not the query name.
func TestRRLTupleWildcard(t *testing.T) {
	log.SetOut(&mock.IOWriter{})
	server := newTestServer(t, testConfig(), true)

	for _, qName := range []string{"r1.laptop-one.example.net.", "r2.laptop-one.example.net.",
		"a.b.r3.laptop-one.example.net."} {
		tuple := rrlTupleFor(t, server, dns.TypeA, qName)
		assert.Equal(t, rrl.AllowanceAnswer, tuple.AllowanceCategory, qName)
		assert.Equal(t, "laptop-one.example.net.", tuple.SalientName, qName)
	}

	// Exact names are their own salient name even in wildcard mode
	tuple := rrlTupleFor(t, server, dns.TypeA, "laptop-one.example.net.")
	assert.Equal(t, "laptop-one.example.net.", tuple.SalientName)
	tuple = rrlTupleFor(t, server, dns.TypeA, "zt-aaaaaaaaaa.example.net.")
	assert.Equal(t, "zt-aaaaaaaaaa.example.net.", tuple.SalientName)
}

// A random-subdomain flood below a wildcard shares one rate limit.
func TestRRLWildcardFlood(t *testing.T) {
	log.SetOut(&mock.IOWriter{})
	cfg := testConfig()
	require.NoError(t, cfg.rrlConfig.SetValue("responses-per-second", "1"))
	now := time.Now()
	cfg.rrlConfig.SetNowFunc(func() time.Time { return now }) // Frozen so no credit accrues
	fwd, rev := newTestAuthorities(t, "10.1.2.0/24", true)
	server := newServer(cfg, fwd, rev, rrl.NewRRL(cfg.rrlConfig), dnsutil.UDPNetwork, "")

	var sent int
	for _, qName := range []string{"r1.laptop-one.example.net.", "r2.laptop-one.example.net.",
		"r3.laptop-one.example.net."} {
		wtr := &mock.ResponseWriter{}
		server.ServeDNS(wtr, setQuestion(dns.ClassINET, dns.TypeA, qName))
		if resp := wtr.Get(); resp != nil && !resp.Truncated {
			sent++
		}
	}

	assert.Equal(t, 1, sent, "Only the first response fits the allowance")
	server.statsMu.RLock()
	defer server.statsMu.RUnlock()
	assert.Equal(t, 1, server.stats.gen.rrlDrop)
	assert.Equal(t, 1, server.stats.gen.rrlSlip)
}

func answerData(rrs []dns.RR) (ret []string) {
	for _, rr := range rrs {
		switch r := rr.(type) {
		case *dns.A:
			ret = append(ret, r.A.String())
		case *dns.AAAA:
			ret = append(ret, r.AAAA.String())
		case *dns.PTR:
			ret = append(ret, r.Ptr)
		default:
			ret = append(ret, strings.TrimPrefix(rr.String(), rr.Header().String()))
		}
	}

	return
}

// The logged source is the remote address of the writer.
func TestDNSRemoteAddr(t *testing.T) {
	out := &mock.IOWriter{}
	log.SetOut(out)
	cfg := testConfig()
	cfg.logQueries.Store(true)
	server := newTestServer(t, cfg, false)

	wtr := mock.NewResponseWriter("udp", "[fd00::1]:53", "[fd00::99]:34000")
	server.ServeDNS(wtr, setQuestion(dns.ClassINET, dns.TypeAAAA, "laptop-one.example.net."))
	resp := wtr.Get()
	require.NotNil(t, resp)
	require.Len(t, resp.Answer, 1)
	assert.Contains(t, out.String(), " s=[fd00::99]:34000 ")
}
