package main

import (
	"fmt"
	"net"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/markdingo/rrl"
	"github.com/miekg/dns"

	"github.com/zerotier/zeronsd/central"
	"github.com/zerotier/zeronsd/dnsutil"
	"github.com/zerotier/zeronsd/log"
	"github.com/zerotier/zeronsd/pregen"
)

const (
	programName = "zeronsd"

	defaultDomain         = "home.arpa"
	defaultPort           = "53"
	defaultRefresh        = 30 * time.Second
	defaultReportInterval = time.Hour
	defaultTTL            = time.Minute

	envToken   = "ZEROTIER_CENTRAL_TOKEN"
	envCentral = "ZEROTIER_CENTRAL_INSTANCE"
	envLocal   = "ZEROTIER_LOCAL_URL"
)

// rrlConfigStrings separates out the RRL options from all the rest for easy management
// and identification.
type rrlConfigStrings struct {
	window       string // "--rrl-window"
	slipRatio    string // "--rrl-slip-ratio"
	maxTableSize string // "--rrl-max-table-size"

	ipv4PrefixLength string // "--rrl-ipv4-CIDR"
	ipv6PrefixLength string // "--rrl-ipv6-CIDR"

	responsesInterval string // "--rrl-responses-psec"
	nodataInterval    string // "--rrl-nodata-psec"
	nxdomainsInterval string // "--rrl-nxdomain-psec"
	referralsInterval string // "--rrl-referrals-psec"
	errorsInterval    string // "--rrl-errors-psec"
	requestsInterval  string // "--rrl-requests-psec"
}

// config defines the global configuration settings used by zeronsd. These settings
// apply across the whole program and all servers. Once ValidateCommandLineOptions has
// returned they are never changed, apart from logQueries which is atomic as SIGUSR2
// toggles it while servers are running.
type config struct {
	projectURL string

	network string // Positional argument: the ZeroTier network ID

	domain     string // -d --domain
	hostsFile  string // -f --file
	secretFile string // -s --secret
	tokenFile  string // -t --token
	wildcard   bool   // -w --wildcard

	centralURL string // From the environment or the default
	localURL   string
	token      string // Central API token
	authtoken  string // Local service secret

	refresh       time.Duration
	updateCentral bool
	metricsAddr   string
	port          string

	chaosFlag bool

	logMajorFlag bool // Major events and on-going information such as periodic stats
	logMinorFlag bool // Details associated with Major event
	logDebugFlag bool // Developer flag
	logQueries   atomic.Bool

	TTL            time.Duration // TTLs for all served RRs
	TTLAsSecs      uint32        // Converted and rounded from TTL
	reportInterval time.Duration // Statistics reporting interval. Zero means never.

	nsid      string  // Respond to EDNS NSID request with this string
	nsidAsHex string  // Encoding version
	nsidOpt   dns.OPT // Ready to send version

	user, group, chroot string // Privilege constraints

	listens []central.Listen // Set explicitly with --listen or discovered
	listen  []string         // --listen

	rrlOptions   rrlConfigStrings // Set by flags package
	rrlOptionSet bool             // True if at least one rrl option was set
	rrlDryRun    bool             // "--rrl-dryrun"
	rrlConfig    *rrl.Config      // Populated if RRL is active

	getenv func(string) string // Replaceable for tests
}

func newConfig() *config {
	t := &config{projectURL: pregen.Project}
	info, ok := debug.ReadBuildInfo()
	if ok && len(info.Main.Path) > 0 {
		t.projectURL = info.Main.Path // Override with embedded if present
	}

	t.rrlConfig = rrl.NewConfig() // This default config is a no-op

	return t
}

func (t *config) generateNSIDOpt() {
	t.nsidOpt.Hdr.Name = "."
	t.nsidOpt.Hdr.Rrtype = dns.TypeOPT
	t.nsidOpt.Hdr.Ttl = 0 // extended RCODE and flags
	t.nsidOpt.SetUDPSize(dnsutil.MaxUDPSize)
	e := new(dns.EDNS0_NSID)
	e.Code = dns.EDNS0NSID
	e.Nsid = t.nsidAsHex
	t.nsidOpt.Option = append(t.nsidOpt.Option, e)
}

// listenAddress returns the host:port a server binds for ip.
func (t *config) listenAddress(ip net.IP) string {
	return net.JoinHostPort(ip.String(), t.port)
}

func (t *config) printVersion() {
	fmt.Fprintf(log.Out(), "Program:     %s %s (%s)\n",
		programName, pregen.Version, pregen.ReleaseDate)
	fmt.Fprintf(log.Out(), "Project:     %s\n", t.projectURL)
}
