package main

import (
	"github.com/miekg/dns"

	"github.com/zerotier/zeronsd/pregen"
)

var commonCHAOSPrefix = programName + " " + pregen.Version + " " + pregen.ReleaseDate

// serveCHAOS answers the well known identity TXT queries. There is no defined syntax and
// every server does something different, so the version names all get the same blurb.
//
// Returns false if nothing was served so the caller can refuse.
func (t *server) serveCHAOS(wtr dns.ResponseWriter, req *request) bool {
	if req.question.Qtype != dns.TypeTXT {
		return false
	}

	var response string
	switch req.qName {
	case "version.bind.", "version.server.", "authors.bind.":
		response = commonCHAOSPrefix + " " + t.cfg.projectURL
	case "hostname.bind.", "id.server.":
		if len(t.cfg.nsid) == 0 {
			return false
		}
		response = t.cfg.nsid
	default:
		return false
	}

	req.response.SetReply(req.query)
	txt := new(dns.TXT)
	txt.Hdr.Name = req.question.Name
	txt.Hdr.Class = dns.ClassCHAOS
	txt.Hdr.Rrtype = dns.TypeTXT
	txt.Hdr.Ttl = t.cfg.TTLAsSecs
	txt.Txt = append(txt.Txt, response)

	req.response.Answer = append(req.response.Answer, txt)
	t.writeMsg(wtr, req)

	return true
}
