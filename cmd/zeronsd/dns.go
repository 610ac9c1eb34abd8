package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/markdingo/miekgrrl"
	"github.com/markdingo/rrl"
	"github.com/miekg/dns"

	"github.com/zerotier/zeronsd/dnsutil"
)

// Called from miekg - handles all DNS queries. All query logic is embedded in this one
// rather large function.
func (t *server) ServeDNS(wtr dns.ResponseWriter, query *dns.Msg) {
	req := newRequest(query, wtr.RemoteAddr(), t.network)
	req.stats.gen.queries++
	if t.cfg.logQueries.Load() {
		defer req.log()
	}
	defer t.addStats(&req.stats) // Add req.stats to t.stats

	// Validate query. Extra can have EDNS options so don't length check that slice.
	// As of RFC7873 a query with no questions and a COOKIE OPT is valid.
	if len(req.query.Question) > 0 {
		req.question = req.query.Question[0]           // Populate early for logger
		req.qName = strings.ToLower(req.question.Name) // Normalize
		req.logQName = req.qName                       // Can override
	}

	req.opt = req.query.IsEdns0() // Extract Opt values nice and early

	if len(t.cfg.nsid) > 0 && req.findNSID() != nil {
		req.nsidOut = t.cfg.nsidAsHex
		req.stats.gen.nsid++
	}

	// Cookies are exchanged and checked but a wrong server cookie is not (yet) a reason
	// to treat a client differently.
	req.findCookies()
	if req.cookiesPresent {
		req.stats.gen.cookie++
		if !req.cookieWellFormed {
			t.serveFormErr(wtr, req)
			req.addNote("Malformed cookie")
			req.stats.gen.malformedCookie++
			return
		}
		req.validateOrGenerateCookie(t.cookieSecrets, time.Now().Unix())
		if !req.cookieValid && len(req.serverCookie) > 0 {
			req.addNote("Server cookie mismatch")
			req.stats.gen.wrongCookie++
		}
	}

	if len(req.clientCookie) > 0 && len(req.serverCookie) == 0 && len(req.query.Question) == 0 {
		req.response.SetReply(query)
		t.writeMsg(wtr, req)
		req.addNote("Cookie-only query")
		req.stats.gen.cookieOnly++
		return
	}

	// Past the cookie-only case, only "normal" queries are accepted. miekg checks most
	// of this already, but exactly what it checks is undocumented.
	if len(req.query.Question) != 1 ||
		len(req.query.Answer) != 0 ||
		len(req.query.Ns) != 0 ||
		req.query.Opcode != dns.OpcodeQuery {
		t.serveFormErr(wtr, req)
		req.addNote("Malformed Query")
		req.stats.gen.badRequest++
		return
	}

	// Non-EDNS UDP clients get the classic 512 limit. EDNS clients get what they ask
	// for within reason.
	if t.network == dnsutil.UDPNetwork {
		req.maxSize = dns.MinMsgSize
		if req.opt != nil {
			req.maxSize = dnsutil.MaxUDPSize
			mz := req.opt.UDPSize()
			if mz > dns.MinMsgSize && mz < dnsutil.MaxUDPSize {
				req.maxSize = mz
			}
		}
	}

	// Pre-processing complete. Dispatch order:
	//
	// 1. CHAOS
	// 2. Authority or Refused
	// 3. Not ClassINET
	// 4. Special Authority Queries (SOA, NS, ANY)
	// 5. Database
	// 6. Negative answers

	// Dispatch 1. CHAOS
	if t.cfg.chaosFlag && req.question.Qclass == dns.ClassCHAOS {
		req.stats.gen.chaos++
		if !t.serveCHAOS(wtr, req) {
			t.serveRefused(wtr, req)
			req.stats.gen.chaosRefused++
		}
		return
	}

	// Dispatch 2. Authority. The forward zone is shared by all servers, but each
	// server only answers for the reverse zone of its own subnet. Other reverse
	// names are authoritatively denied rather than refused so clients stop looking.
	if !t.setAuthority(req) {
		if dnsutil.IsReverse(req.qName) {
			req.addNote("foreign reverse")
			req.response.SetRcode(req.query, dns.RcodeNameError)
			t.writeMsg(wtr, req)
			req.stats.gen.foreignReverse++
			return
		}
		req.addNote("out of bailiwick")
		t.serveRefused(wtr, req)
		req.stats.gen.noAuthority++
		return
	}

	// Dispatch 3. Not ClassINET
	if req.question.Qclass != dns.ClassINET {
		t.serveRefused(wtr, req)
		req.addNote(fmt.Sprintf("Wrong class %s",
			dnsutil.ClassToString(dns.Class(req.question.Qclass))))
		req.stats.gen.wrongClass++
		return
	}

	// Dispatch 4. Special Authority Queries
	if req.qName == req.auth.Domain {
		switch req.question.Qtype {
		case dns.TypeANY:
			req.response.SetRcode(req.query, dns.RcodeSuccess)
			req.response.Answer = append(req.response.Answer, &req.auth.SOA)
			req.stats.gen.authZoneANY++
			t.writeMsg(wtr, req)
			return

		case dns.TypeSOA:
			req.response.SetRcode(req.query, dns.RcodeSuccess)
			req.response.Answer = append(req.response.Answer, &req.auth.SOA)
			req.response.Ns = append(req.response.Ns, req.auth.NS...)
			req.stats.gen.authZoneSOA++
			t.writeMsg(wtr, req)
			return

		case dns.TypeNS:
			req.response.SetRcode(req.query, dns.RcodeSuccess)
			req.response.Answer = append(req.response.Answer, req.auth.NS...)
			req.stats.gen.authZoneNS++
			t.writeMsg(wtr, req)
			return
		}
	}

	// Dispatch 5 & 6. Database then negatives
	if t.serveDatabase(wtr, req) {
		req.stats.gen.dbDone++
	}
}

// setAuthority finds the authority for the query, returning false if there is none.
func (t *server) setAuthority(req *request) bool {
	switch {
	case dnsutil.InDomain(req.qName, t.forward.Domain):
		req.auth = t.forward
	case t.reverse != nil && dnsutil.InDomain(req.qName, t.reverse.Domain):
		req.auth = t.reverse
	}

	return req.auth != nil
}

func (t *server) serveNoError(wtr dns.ResponseWriter, req *request) {
	req.response.SetRcode(req.query, dns.RcodeSuccess)
	req.response.Ns = append(req.response.Ns, &req.auth.SOA)
	t.writeMsg(wtr, req)
}

func (t *server) serveFormErr(wtr dns.ResponseWriter, req *request) {
	req.response.SetRcodeFormatError(req.query)
	t.writeMsg(wtr, req)
}

func (t *server) serveNXDomain(wtr dns.ResponseWriter, req *request) {
	req.response.SetRcode(req.query, dns.RcodeNameError)
	req.response.Ns = append(req.response.Ns, &req.auth.SOA)
	t.writeMsg(wtr, req)
}

func (t *server) serveRefused(wtr dns.ResponseWriter, req *request) {
	req.response.SetRcode(req.query, dns.RcodeRefused)
	t.writeMsg(wtr, req)
}

// serveDatabase looks up the zone content of the current authority and serves either
// the answer or the appropriate negative. Returns true if an answer was served.
func (t *server) serveDatabase(wtr dns.ResponseWriter, req *request) bool {
	statsp := req.qTypeStats()
	if statsp != nil {
		statsp.queries++
	}
	if req.question.Qtype == dns.TypePTR {
		if ip, err := dnsutil.InvertPtrToIP(req.qName); err == nil {
			req.logQName = ip.String() // Log a more compact variant
		}
	}

	ar, nx, origin := req.auth.LookupWildcard(req.question.Qtype, req.qName)
	req.wildcardOrigin = origin
	if len(ar) == 0 {
		if nx {
			req.stats.gen.dbNXDomain++
			t.serveNXDomain(wtr, req)
		} else {
			req.stats.gen.dbNoError++
			t.serveNoError(wtr, req)
		}
		return false
	}

	req.response.SetReply(req.query)
	req.response.Answer = append(req.response.Answer, ar...)
	if ptr, ok := ar[0].(*dns.PTR); ok { // Log first label of PTR target
		req.addNote(strings.SplitN(ptr.Ptr, ".", 2)[0])
	}

	if req.maxSize > 0 {
		req.response.Truncate(int(req.maxSize)) // Removes excess RRs and sets TC=1
	}

	t.writeMsg(wtr, req)
	if statsp != nil {
		statsp.good++
		statsp.answers += len(req.response.Answer)
	}

	return true
}

// qTypeStats returns the high-activity stats bucket for the query, if it has one.
func (t *request) qTypeStats() *qTypeStats {
	switch t.question.Qtype {
	case dns.TypeA:
		return &t.stats.A
	case dns.TypeAAAA:
		return &t.stats.AAAA
	case dns.TypePTR:
		switch {
		case strings.HasSuffix(t.qName, dnsutil.V4Suffix):
			return &t.stats.APtr
		case strings.HasSuffix(t.qName, dnsutil.V6Suffix):
			return &t.stats.AAAAPtr
		}
	}

	return nil
}

// writeMsg finalizes the output message with all of the common processing then calls
// the response writer to send the message, subject to rate limiting. Any error is
// recorded in req.logError
func (t *server) writeMsg(wtr dns.ResponseWriter, req *request) {
	req.response.Authoritative = req.auth != nil || req.response.Rcode == dns.RcodeNameError
	if opt := req.genOpt(); opt != nil {
		req.response.Extra = append(req.response.Extra, opt)
	}

	if t.rrlHandler != nil && t.network == dnsutil.UDPNetwork {
		req.rrlAction, _, _ = t.rrlHandler.Debit(req.src, req.rrlTuple())
		switch req.rrlAction {
		case rrl.Drop:
			req.stats.gen.rrlDrop++
			if !t.cfg.rrlDryRun {
				return
			}
		case rrl.Slip:
			req.stats.gen.rrlSlip++
			if !t.cfg.rrlDryRun { // Truncated empty reply invites a TCP retry
				req.response.Truncated = true
				req.response.Answer = nil
				req.response.Ns = nil
				req.response.Extra = nil
			}
		}
	}

	req.msgSize = req.response.Len() // Transfer to Stats for reporting purposes
	req.compressed = req.response.Compress
	req.truncated = req.response.Truncated

	err := wtr.WriteMsg(req.response)
	if err != nil {
		req.logError = fmt.Errorf("WriteMsg failed: %w", err)
	}
}

// rrlTuple classifies the response for rrl. Answers synthesized from a wildcard are
// accounted against the wildcard owner so a random-subdomain flood below a member is
// treated as one stream.
func (t *request) rrlTuple() *rrl.ResponseTuple {
	return miekgrrl.Derive(t.response, t.wildcardOrigin)
}
