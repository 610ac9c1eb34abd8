package main

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"net"

	"github.com/dchest/siphash"
	"github.com/miekg/dns"

	"github.com/zerotier/zeronsd/dnsutil"
)

// rfc7873 cookie lengths in bytes
const (
	clientCookieLen    = 8
	serverCookieMinLen = 8
	serverCookieMaxLen = 32
	serverCookieV1Len  = 16
)

// Cookie timestamp windows in seconds. Timestamps are uint32 serial numbers.
const (
	wrapDistance = uint64(1<<31) - 1
	maxBehindGap = 60 * 60
	maxAheadGap  = 60 * 5
	reissueGap   = maxAheadGap / 2
)

// findNSID returns the NSID sub-opt of the query, if present.
func (t *request) findNSID() *dns.EDNS0_NSID {
	if t.opt == nil {
		return nil
	}
	for _, subopt := range t.opt.Option {
		if so, ok := subopt.(*dns.EDNS0_NSID); ok {
			return so
		}
	}

	return nil
}

// genOpt returns the OPT RR for the response. Only EDNS queries get one.
func (t *request) genOpt() *dns.OPT {
	if t.opt == nil {
		return nil
	}

	opt := new(dns.OPT)
	opt.Hdr.Name = "."
	opt.Hdr.Rrtype = dns.TypeOPT
	opt.SetUDPSize(dnsutil.MaxUDPSize)
	if t.maxSize > 0 {
		opt.SetUDPSize(t.maxSize)
	}

	if len(t.nsidOut) > 0 {
		opt.Option = append(opt.Option, &dns.EDNS0_NSID{Code: dns.EDNS0NSID, Nsid: t.nsidOut})
	}
	if len(t.cookieOut) > 0 {
		opt.Option = append(opt.Option, &dns.EDNS0_COOKIE{Code: dns.EDNS0COOKIE,
			Cookie: hex.EncodeToString(t.cookieOut)}) // miekg wants hex
	}

	return opt
}

// findCookies extracts the client and server cookies from the query. Whatever is found
// is kept for logging even if the cookie is malformed.
func (t *request) findCookies() {
	if t.opt == nil {
		return
	}

	var so *dns.EDNS0_COOKIE
	for _, subopt := range t.opt.Option {
		if c, ok := subopt.(*dns.EDNS0_COOKIE); ok {
			so = c
			break
		}
	}
	if so == nil {
		return
	}
	t.cookiesPresent = true

	raw, err := hex.DecodeString(so.Cookie)
	if err != nil || len(raw) < clientCookieLen {
		t.clientCookie = raw
		return
	}

	t.clientCookie = raw[:clientCookieLen]
	t.serverCookie = raw[clientCookieLen:]
	t.cookieWellFormed = len(t.serverCookie) == 0 ||
		(len(t.serverCookie) >= serverCookieMinLen && len(t.serverCookie) <= serverCookieMaxLen)
}

// validateOrGenerateCookie checks the server cookie supplied by the client and sets
// cookieValid accordingly. cookieOut is always populated: with the client's cookie if it
// is valid and fresh, otherwise with a newly minted one.
func (t *request) validateOrGenerateCookie(secrets [2]uint64, unixTime int64) {
	now := uint32(unixTime & 0xFFFFFFFF)
	var now64, ts64 uint64

	sc := t.serverCookie
	if len(sc) == serverCookieV1Len && sc[0] == 1 && sc[1] == 0 && sc[2] == 0 && sc[3] == 0 {
		ts := binary.BigEndian.Uint32(sc[4:8])
		now64, ts64 = normalizeTimestamps(now, ts)
		if ts64+maxBehindGap > now64 && now64+maxAheadGap > ts64 {
			t.cookieOut = genV1Cookie(secrets, ts, t.src, t.clientCookie)
			t.cookieValid = bytes.Equal(sc, t.cookieOut[clientCookieLen:])
		}
	}

	if !t.cookieValid || ts64+reissueGap < now64 {
		t.cookieOut = genV1Cookie(secrets, now, t.src, t.clientCookie)
	}
}

// normalizeTimestamps converts two serial numbers into comparable uint64s by lifting the
// smaller one past the wrap if they are more than half the number space apart.
func normalizeTimestamps(a, b uint32) (A, B uint64) {
	A = uint64(a)
	B = uint64(b)
	switch {
	case A > B && A-B > wrapDistance:
		B += wrapDistance + 1
	case B > A && B-A > wrapDistance:
		A += wrapDistance + 1
	}

	return
}

// genV1Cookie returns the 24 byte client+server cookie. The server part is:
//
//	[0]    Version 1
//	[1:4]  Reserved, zero
//	[4:8]  Timestamp
//	[8:16] SipHash-2-4(client cookie | version | reserved | timestamp | client IP)
func genV1Cookie(secrets [2]uint64, clock uint32, src net.Addr, clientCookie []byte) []byte {
	cookie := make([]byte, clientCookieLen+serverCookieV1Len+net.IPv6len)
	copy(cookie, clientCookie)
	cookie[8] = 1
	binary.BigEndian.PutUint32(cookie[12:16], clock)

	ix := 16
	if ip := addrIP(src); ip != nil {
		if ip4 := ip.To4(); ip4 != nil {
			ix += copy(cookie[ix:], ip4)
		} else {
			ix += copy(cookie[ix:], ip.To16())
		}
	}

	sum := siphash.Hash(secrets[0], secrets[1], cookie[:ix])
	binary.BigEndian.PutUint64(cookie[16:24], sum)

	return cookie[:clientCookieLen+serverCookieV1Len]
}

// addrIP extracts the IP from a net.Addr without caring what sort of Addr it is.
func addrIP(addr net.Addr) net.IP {
	if addr == nil {
		return nil
	}
	switch a := addr.(type) {
	case *net.UDPAddr:
		return a.IP
	case *net.TCPAddr:
		return a.IP
	}
	h, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return nil
	}

	return net.ParseIP(h)
}
