package main

import (
	"fmt"
	"net"
	"strings"

	"github.com/markdingo/rrl"
	"github.com/miekg/dns"

	"github.com/zerotier/zeronsd/dnsutil"
	"github.com/zerotier/zeronsd/log"
	"github.com/zerotier/zeronsd/zone"
)

// There is a whole bunch of info about a query and the response that is gradually
// extracted and accumulated as a request progresses and gets dispatched. Rather than pass
// this around as a fleet of function parameters it all gets accumulated into a request
// struct. A request is only ever accessed by a single go-routine and only lives for the
// life of a DNS query.
type request struct {
	query    *dns.Msg
	response *dns.Msg
	question dns.Question
	qName    string
	opt      *dns.OPT // Set if query contains an OPT RR

	nsidOut string // Hex of NSID to return, if requested and configured

	cookiesPresent   bool // EDNS cookie sub-opt found
	cookieWellFormed bool // Lengths are within rfc7873 limits
	cookieValid      bool // Server cookie matches what we'd generate
	clientCookie     []byte
	serverCookie     []byte
	cookieOut        []byte // Full cookie (client + server) to return

	auth           *zone.Authority // Match for current request
	wildcardOrigin string          // Owner of the wildcard which synthesized the answer

	src        net.Addr // From here on down is log data
	network    string
	logQName   string   // Short but recognizable qName to keep log entries shorter
	logNotes   []string // Mixed in with log message, if set
	logError   error    // Append to log message, if set
	msgSize    int
	maxSize    uint16 // EDNS0 or zero which will cause dns.WriteMsg() to default
	compressed bool
	truncated  bool
	rrlAction  rrl.Action

	// To avoid holding a lock for the whole query, stats are accumulated in a
	// separate copy and added back into the aggregate server stats at the end.
	stats serverStats
}

func newRequest(query *dns.Msg, src net.Addr, network string) *request {
	return &request{query: query, response: new(dns.Msg), src: src, network: network}
}

func (t *request) addNote(note string) {
	t.logNotes = append(t.logNotes, note)
}

func (t *request) log() {
	note := t.logNotes
	if t.logError != nil {
		note = append(note, t.logError.Error())
	}
	var noteStr string
	if len(note) > 0 {
		noteStr = " " + strings.Join(note, ":")
	}

	rcodeStr := "ne"
	if t.response.MsgHdr.Rcode != dns.RcodeSuccess {
		rcodeStr = dnsutil.RcodeToString(t.response.MsgHdr.Rcode)
	}
	switch t.rrlAction {
	case rrl.Drop:
		rcodeStr += "/D"
	case rrl.Slip:
		rcodeStr += "/S"
	}

	hFlags := make([]byte, 0, 10) // 'h' = humongous?
	if t.network == dnsutil.TCPNetwork {
		hFlags = append(hFlags, 'T')
	} else {
		hFlags = append(hFlags, 'U') // Superfluous but ensures h= doesn't dangle
	}
	if len(t.clientCookie) > 0 {
		hFlags = append(hFlags, 'C')
	}
	if len(t.serverCookie) > 0 {
		hFlags = append(hFlags, 'S')
		if t.cookieValid {
			hFlags = append(hFlags, 'V')
		}
	}
	if len(t.nsidOut) > 0 {
		hFlags = append(hFlags, 'n')
	}
	if t.compressed {
		hFlags = append(hFlags, 'z')
	}
	if t.truncated {
		hFlags = append(hFlags, 't')
	}

	srcStr := ""
	if t.src != nil {
		srcStr = t.src.String()
	}

	fmt.Fprintf(log.Out(), "ru=%s q=%s/%s s=%s id=%d h=%s sz=%d/%d C=%d/%d/%d%s\n",
		rcodeStr, dnsutil.TypeToString(t.question.Qtype), t.logQName,
		srcStr,
		t.response.MsgHdr.Id, string(hFlags), t.msgSize, t.maxSize,
		len(t.response.Answer), len(t.response.Ns), len(t.response.Extra), noteStr)
}
