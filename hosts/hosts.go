/*
Package hosts parses files in /etc/hosts format into a table of names and addresses
relative to a domain.

Each line holds an address followed by one or more names. Text following a '#' is a
comment. Names without a trailing dot are relative to the domain unless they are already
within it. Absolute names outside the domain are rejected, as are malformed addresses and
names. Bad lines are skipped and reported together so one typo does not discard the
rest of the file.
*/
package hosts

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"sort"
	"strings"

	"github.com/miekg/dns"
	"go.uber.org/multierr"

	"github.com/zerotier/zeronsd/dnsutil"
)

// Table maps canonical FQDNs to their addresses. A nil Table is empty.
type Table struct {
	byName map[string][]net.IP
	count  int
}

// Names returns all names in sorted order.
func (t *Table) Names() []string {
	if t == nil {
		return nil
	}
	ret := make([]string, 0, len(t.byName))
	for n := range t.byName {
		ret = append(ret, n)
	}
	sort.Strings(ret)

	return ret
}

// Lookup returns the addresses of name, which must be an FQDN.
func (t *Table) Lookup(name string) []net.IP {
	if t == nil {
		return nil
	}

	return t.byName[dns.CanonicalName(name)]
}

// Has returns true if name is in the table.
func (t *Table) Has(name string) bool {
	return len(t.Lookup(name)) > 0
}

// Len returns the number of unique name/address pairs.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}

	return t.count
}

func (t *Table) add(name string, ip net.IP) {
	for _, e := range t.byName[name] {
		if e.Equal(ip) {
			return
		}
	}
	t.byName[name] = append(t.byName[name], ip)
	t.count++
}

// Load reads and parses path. An error opening or reading the file returns a nil Table.
// Otherwise the Table is returned along with any line errors combined via multierr.
func Load(path, domain string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("hosts: %w", err)
	}
	defer f.Close()

	table, lineErrs, err := Parse(f, path, domain)
	if err != nil {
		return nil, err
	}

	return table, lineErrs
}

// Parse parses r. source names r in error messages. lineErrs contains one error per bad
// line; err is only set if r could not be read.
func Parse(r io.Reader, source, domain string) (table *Table, lineErrs, err error) {
	domain = dns.CanonicalName(domain)
	table = &Table{byName: make(map[string][]net.IP)}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if ix := strings.IndexByte(line, '#'); ix >= 0 {
			line = line[:ix]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if len(fields) == 1 {
			lineErrs = multierr.Append(lineErrs, fmt.Errorf("%s:%d: no names for %s", source, lineNo, fields[0]))
			continue
		}

		ip := net.ParseIP(fields[0])
		if ip == nil {
			lineErrs = multierr.Append(lineErrs, fmt.Errorf("%s:%d: invalid address '%s'", source, lineNo, fields[0]))
			continue
		}
		if ip4 := ip.To4(); ip4 != nil {
			ip = ip4
		}

		for _, n := range fields[1:] {
			fqdn, err := qualify(n, domain)
			if err != nil {
				lineErrs = multierr.Append(lineErrs, fmt.Errorf("%s:%d: %w", source, lineNo, err))
				continue
			}
			table.add(fqdn, ip)
		}
	}
	if err = scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("hosts: %s: %w", source, err)
	}

	return table, lineErrs, nil
}

// qualify converts a hosts file name into a canonical FQDN within domain.
func qualify(name, domain string) (string, error) {
	if _, ok := dns.IsDomainName(name); !ok || name == "." {
		return "", fmt.Errorf("invalid name '%s'", name)
	}
	if dns.IsFqdn(name) {
		if !dnsutil.InDomain(name, domain) {
			return "", fmt.Errorf("name '%s' is outside %s", name, domain)
		}
		return dns.CanonicalName(name), nil
	}

	fqdn := dns.CanonicalName(name)
	if !dnsutil.InDomain(fqdn, domain) {
		fqdn = dns.CanonicalName(name + "." + domain)
	}

	return fqdn, nil
}
