/*
Package refresh keeps zone authorities in step with the membership of a network.

A Refresher fetches the member list on a fixed interval, derives forward and reverse
records, merges in static hosts entries and replaces the content of the forward authority
and the reverse authority of its subnet. A failed fetch leaves the current content in
place until a later tick succeeds. There is no backoff; the next attempt is always the
next tick.

Static hosts entries take precedence over member-derived names. When the hosts file has
a name, member addresses at that name are not added, and since exact names are preferred
over wildcards a hosts name below a member wildcard also wins. Hosts addresses inside the
subnet replace member PTRs for the same address.
*/
package refresh

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/miekg/dns"

	"github.com/zerotier/zeronsd/central"
	"github.com/zerotier/zeronsd/database"
	"github.com/zerotier/zeronsd/hostname"
	"github.com/zerotier/zeronsd/hosts"
	"github.com/zerotier/zeronsd/log"
	"github.com/zerotier/zeronsd/zone"
)

const DefaultInterval = 30 * time.Second

// Config is supplied to New. Reverse and HostsPath are optional. A nil Clock uses the
// system clock.
type Config struct {
	Network   string
	Source    central.Source
	Forward   *zone.Authority
	Reverse   *zone.Authority
	HostsPath string
	Interval  time.Duration
	Clock     clock.Clock
}

// Stats is a point-in-time copy of the refresher counters.
type Stats struct {
	Ticks       uint64
	Successes   uint64
	Failures    uint64
	LastSuccess time.Time
	LastError   string
	Members     int // Online members with at least one usable address
	Forward     int // RRs in the last forward database
	Reverse     int // RRs in the last reverse database
	Hosts       int // Name/address pairs from the hosts file
}

// Refresher is created with New and started with Run.
type Refresher struct {
	cfg     Config
	trigger chan struct{}

	tickMu    sync.Mutex // Serializes Tick
	lastHosts *hosts.Table
	lastHErr  string

	mu    sync.Mutex // Protects stats
	stats Stats
}

// New returns a Refresher ready to Run.
func New(cfg Config) *Refresher {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	return &Refresher{cfg: cfg, trigger: make(chan struct{}, 1)}
}

// Name identifies the refresher in logs.
func (t *Refresher) Name() string {
	if t.cfg.Reverse != nil {
		return t.cfg.Network + "/" + t.cfg.Reverse.CIDR.String()
	}

	return t.cfg.Network
}

// Run ticks immediately then every interval until ctx is done. Trigger causes an
// additional tick.
func (t *Refresher) Run(ctx context.Context) {
	ticker := t.cfg.Clock.Ticker(t.cfg.Interval)
	defer ticker.Stop()

	t.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Minor("Refresh ", t.Name(), " stopped")
			return
		case <-ticker.C:
			t.Tick(ctx)
		case <-t.trigger:
			t.Tick(ctx)
		}
	}
}

// Trigger requests an immediate tick. It never blocks and multiple requests made before
// the tick starts are coalesced.
func (t *Refresher) Trigger() {
	select {
	case t.trigger <- struct{}{}:
	default:
	}
}

// Stats returns a copy of the current counters.
func (t *Refresher) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.stats
}

// Tick performs one refresh. An error means the authorities were left untouched.
func (t *Refresher) Tick(ctx context.Context) error {
	t.tickMu.Lock()
	defer t.tickMu.Unlock()

	members, err := t.cfg.Source.Members(ctx, t.cfg.Network)
	if err != nil {
		err = fmt.Errorf("fetch members of %s: %w", t.cfg.Network, err)
		log.Major("Refresh ", t.Name(), " skipped: ", err)
		t.mu.Lock()
		t.stats.Ticks++
		t.stats.Failures++
		t.stats.LastError = err.Error()
		t.mu.Unlock()
		return err
	}

	table := t.loadHosts()
	b := newBuilder(t.cfg.Forward, t.cfg.Reverse, table)
	usable := b.addMembers(members)
	b.addHosts()

	t.cfg.Forward.Replace(b.fwd)
	if t.cfg.Reverse != nil {
		t.cfg.Reverse.Replace(b.rev)
	}

	t.mu.Lock()
	t.stats.Ticks++
	t.stats.Successes++
	t.stats.LastSuccess = t.cfg.Clock.Now()
	t.stats.LastError = ""
	t.stats.Members = usable
	t.stats.Forward = b.fwd.Count()
	revCount := 0
	if b.rev != nil {
		revCount = b.rev.Count()
	}
	t.stats.Reverse = revCount
	t.stats.Hosts = table.Len()
	t.mu.Unlock()

	log.Minorf("Refresh %s: %d members, %d forward, %d reverse", t.Name(), usable,
		b.fwd.Count(), revCount)

	return nil
}

// loadHosts re-reads the hosts file. If it cannot be read, the last good table is used.
// Line errors are logged whenever they change.
func (t *Refresher) loadHosts() *hosts.Table {
	if len(t.cfg.HostsPath) == 0 {
		return nil
	}

	table, err := hosts.Load(t.cfg.HostsPath, t.cfg.Forward.Domain)
	if table == nil {
		log.Major("Warning: ", err, ": using previous entries")
		return t.lastHosts
	}

	hErr := ""
	if err != nil {
		hErr = err.Error()
	}
	if hErr != t.lastHErr && len(hErr) > 0 {
		log.Major("Warning: hosts file lines skipped: ", hErr)
	}
	t.lastHErr = hErr
	t.lastHosts = table

	return table
}

// builder accumulates the databases of one tick.
type builder struct {
	fwdAuth *zone.Authority
	revAuth *zone.Authority
	table   *hosts.Table
	ttl     uint32

	fwd *database.Database
	rev *database.Database

	hostsPTR map[string]bool // IPs with hosts entries
}

func newBuilder(fwdAuth, revAuth *zone.Authority, table *hosts.Table) *builder {
	b := &builder{fwdAuth: fwdAuth, revAuth: revAuth, table: table, ttl: fwdAuth.TTL(),
		fwd: fwdAuth.NewDatabase(), hostsPTR: make(map[string]bool)}
	if revAuth != nil {
		b.rev = revAuth.NewDatabase()
	}
	for _, n := range table.Names() {
		for _, ip := range table.Lookup(n) {
			b.hostsPTR[ip.String()] = true
		}
	}

	return b
}

// addMembers adds records for every online member with a usable address and returns how
// many such members there were.
func (b *builder) addMembers(members []central.Member) int {
	type usable struct {
		id  string
		ips []net.IP
	}
	var list []usable
	var named []hostname.Member
	for _, m := range members {
		if !m.Online {
			continue
		}
		ips := m.IPs()
		if len(ips) == 0 {
			continue
		}
		list = append(list, usable{m.ID, ips})
		named = append(named, hostname.Member{ID: m.ID, Name: m.Name})
	}

	names := hostname.Assign(named)
	for _, u := range list {
		n := names[u.id]
		for _, label := range []string{n.ID, n.Name} {
			if len(label) == 0 {
				continue
			}
			fqdn := label + "." + b.fwdAuth.Domain
			b.addAddresses(fqdn, u.ips, true)
			if b.fwdAuth.Wildcard() {
				b.addAddresses("*."+fqdn, u.ips, true)
			}
		}
		// A PTR target must resolve back to the member so a name taken by the hosts
		// file falls back to the ID name.
		target := n.Primary() + "." + b.fwdAuth.Domain
		if b.table.Has(target) {
			target = n.ID + "." + b.fwdAuth.Domain
		}
		if b.table.Has(target) {
			continue
		}
		for _, ip := range u.ips {
			if !b.hostsPTR[ip.String()] {
				b.addPTR(ip, target)
			}
		}
	}

	return len(list)
}

func (b *builder) addHosts() {
	for _, n := range b.table.Names() {
		ips := b.table.Lookup(n)
		b.addAddresses(n, ips, false)
		for _, ip := range ips {
			b.addPTR(ip, n)
		}
	}
}

// addAddresses adds A and AAAA records. Member names yield to hosts entries.
func (b *builder) addAddresses(fqdn string, ips []net.IP, member bool) {
	if member && b.table.Has(fqdn) {
		return
	}
	for _, ip := range ips {
		hdr := dns.RR_Header{Name: fqdn, Class: dns.ClassINET, Ttl: b.ttl}
		if ip4 := ip.To4(); ip4 != nil {
			hdr.Rrtype = dns.TypeA
			b.fwd.AddRR(&dns.A{Hdr: hdr, A: ip4})
		} else {
			hdr.Rrtype = dns.TypeAAAA
			b.fwd.AddRR(&dns.AAAA{Hdr: hdr, AAAA: ip})
		}
	}
}

func (b *builder) addPTR(ip net.IP, target string) {
	if b.rev == nil || !b.revAuth.Contains(ip) {
		return
	}
	b.rev.AddPTR(ip, target, b.ttl)
}
