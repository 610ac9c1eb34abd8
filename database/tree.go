package database

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/miekg/dns"

	"github.com/zerotier/zeronsd/dnsutil"
)

// If RR is a.b.c. IN A 1.2.3.4, then the reference to the RR is:
//
// rrSet := database.cm[IN].children[c].children[b].children[a].tm[A]
//
// A wildcard owner such as *.b.c. is stored as an ordinary child labelled "*" and is only
// consulted by LookupRR when the query name has no exact node.

const wildcardLabel = "*"

type classMap map[uint16]*node
type typeMap map[uint16][]dns.RR

type node struct {
	tm       typeMap  // Both of these maps are created on-demand so that the
	children labelMap // presence of a map implies at least one map entry.
}

type labelMap map[string]*node

// Database is constructed with NewDatabase() - using a default construction will result
// in a panic due to unconstructed maps.
type Database struct {
	cm    classMap
	count int // RRs added
}

// NewDatabase *must* be used to construct a new database
func NewDatabase() *Database {
	return &Database{cm: make(classMap)}
}

// AddRR adds a copy of the RR into the tree. Return true if it was added. Return false if
// it's a duplicate, ignoring TTL.
func (t *Database) AddRR(rr dns.RR) bool {
	qClass := rr.Header().Class
	qType := rr.Header().Rrtype
	labels := splitLabels(rr.Header().Name)
	parent := t.cm[qClass] // Get or create root node for this class
	if parent == nil {
		parent = &node{}
		t.cm[qClass] = parent
	}

	for ix := len(labels) - 1; ix >= 0; ix-- { // Iterate down the labels
		if parent.children == nil {
			parent.children = make(labelMap)
		}
		child := parent.children[labels[ix]]
		if child == nil {
			child = &node{}
			parent.children[labels[ix]] = child
		}
		parent = child
	}

	tm := parent.tm // Get or create the typeMap for this node
	if tm == nil {
		tm = make(typeMap)
		parent.tm = tm
	}

	rrset := tm[qType]
	for _, eRR := range rrset {
		if dnsutil.RRIsEqual(eRR, rr) {
			return false
		}
	}

	// dns.RR is effectively a pointer so store a copy that callers cannot modify.
	tm[qType] = append(rrset, dns.Copy(rr))
	t.count++

	return true
}

// LookupRR returns copies of the matching RRs. Callers are free to modify the results,
// particularly TTL. nxDomain is true if there is no node for the qName, either exactly or
// by way of a wildcard at the closest encloser. Nodes are only created when there is
// something to add into them so the presence of a node implies RRs or children.
//
// RRs found via a wildcard are returned with their owner name replaced by qName. A qType
// of ANY returns every RR at the node.
func (t *Database) LookupRR(qClass, qType uint16, qName string) (ans []dns.RR, nxDomain bool) {
	ans, nxDomain, _ = t.LookupWildcard(qClass, qType, qName)

	return
}

// LookupWildcard is LookupRR which also returns the name owning the wildcard when the
// answer was synthesized, e.g. "host.home.arpa." for a match on "*.host.home.arpa.".
// wildcardOrigin is empty for an exact match.
func (t *Database) LookupWildcard(qClass, qType uint16, qName string) (ans []dns.RR, nxDomain bool, wildcardOrigin string) {
	nxDomain = true
	labels := splitLabels(qName)

	parent := t.cm[qClass] // Iterate from the root of the desired class
	if parent == nil {
		return
	}

	synthesized := false
	for ix := len(labels) - 1; ix >= 0; ix-- {
		child := parent.children[labels[ix]] // Nil map lookups are fine
		if child == nil {
			child = parent.children[wildcardLabel]
			if child == nil {
				return
			}
			parent = child
			synthesized = true
			wildcardOrigin = dns.Fqdn(strings.Join(labels[ix+1:], "."))
			break
		}
		parent = child
	}

	nxDomain = false

	var rrsets [][]dns.RR
	if qType == dns.TypeANY {
		types := make([]int, 0, len(parent.tm))
		for rrtype := range parent.tm {
			types = append(types, int(rrtype))
		}
		sort.Ints(types) // Stable output is friendlier for logs and tests
		for _, rrtype := range types {
			rrsets = append(rrsets, parent.tm[uint16(rrtype)])
		}
	} else if rrset, ok := parent.tm[qType]; ok {
		rrsets = append(rrsets, rrset)
	}

	for _, rrset := range rrsets {
		for _, rr := range rrset {
			cp := dns.Copy(rr)
			if synthesized {
				cp.Header().Name = dns.Fqdn(qName)
			}
			ans = append(ans, cp)
		}
	}

	return
}

// Count returns the total count of all RRs in the database.
func (t *Database) Count() int {
	return t.count
}

// Dump writes every RR in the database to w in sorted order.
func (t *Database) Dump(w io.Writer) {
	var lines []string
	for _, root := range t.cm {
		lines = root.collect(lines)
	}
	sort.Strings(lines)
	fmt.Fprintln(w, "Database Dump", t.count)
	for _, l := range lines {
		fmt.Fprintln(w, l)
	}
}

func (t *node) collect(lines []string) []string {
	for _, rrset := range t.tm {
		for _, rr := range rrset {
			lines = append(lines, rr.String())
		}
	}
	for _, child := range t.children {
		lines = child.collect(lines)
	}

	return lines
}

// splitLabels returns the canonical labels of qName, leftmost first. The root returns an
// empty slice.
func splitLabels(qName string) []string {
	qName = dnsutil.ChompCanonicalName(qName)
	if len(qName) == 0 {
		return nil
	}

	return strings.Split(qName, ".")
}
