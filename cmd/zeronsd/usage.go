package main

import (
	"fmt"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/zerotier/zeronsd/log"
)

type parseResult int // This is a ternary variable
const (
	parseStop     parseResult = iota // No error, but don't continue
	parseContinue                    // No errors and continue
	parseFailed                      // Errors, do not continue
)

// parseOptions populates config from the command line. The network ID is the one and
// only positional argument.
//
// Neither "flag" nor "spf13/pflag" reject duplicate options so the ParseAll callback
// tracks them and rejects all but the few which are legitimately repeated.
func (t *zeronsd) parseOptions(args []string) parseResult {
	var helpFlag, versionFlag, logQueries bool

	name := programName
	if len(args) > 0 {
		name = args[0]
	}

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Consider '-h' for command-line usage")
	}

	fs.SetOutput(log.Out())

	// Non-config flags

	fs.BoolVarP(&helpFlag, "help", "h", false, "Print command-line usage")
	fs.BoolVarP(&versionFlag, "version", "v", false, "Print version and origin URL")

	// Network flags

	fs.StringVarP(&t.cfg.domain, "domain", "d", defaultDomain,
		"Domain under which member names are served")
	fs.StringVarP(&t.cfg.hostsFile, "file", "f", "",
		`An additional list of hosts in /etc/hosts format. Re-read on
every refresh.`)
	fs.StringVarP(&t.cfg.secretFile, "secret", "s", "",
		`Path to authtoken.secret of the local ZeroTier service (usually
detected)`)
	fs.StringVarP(&t.cfg.tokenFile, "token", "t", "",
		`Path to a file containing the ZeroTier Central token. Overrides
$`+envToken+`.`)
	fs.BoolVarP(&t.cfg.wildcard, "wildcard", "w", false,
		`Wildcard all member names so any name below a member resolves
to that member's addresses`)
	fs.BoolVar(&t.cfg.updateCentral, "update-central", true,
		`Set the network DNS domain and server in Central at startup so
members learn of this name server`)

	// config flags

	fs.BoolVar(&t.cfg.chaosFlag, "CHAOS", true,
		`Answer CHAOS TXT queries for version.bind, version.server,
authors.bind, hostname.bind and id.server.`)

	fs.BoolVar(&t.cfg.logMajorFlag, "log-major", true, "Log major events to Stdout")
	fs.BoolVar(&t.cfg.logMinorFlag, "log-minor", false,
		"Log minor events to Stdout - this implies --log-major")
	fs.BoolVar(&t.cfg.logDebugFlag, "log-debug", false,
		"Log debug events to Stdout - this implies --log-minor")
	fs.BoolVar(&logQueries, "log-queries", false,
		`Log DNS queries to Stdout. This setting can be toggled with
SIGUSR2.`)

	// config Durations

	fs.DurationVar(&t.cfg.TTL, "TTL", defaultTTL, "TTL for all served records (>= 1s)")
	fs.DurationVar(&t.cfg.refresh, "refresh", defaultRefresh,
		"Interval between member refreshes from Central (>= 1s)")
	fs.DurationVar(&t.cfg.reportInterval, "report", defaultReportInterval,
		"Interval between statistics reports (>= 1s)")

	// config StringVars

	fs.StringVar(&t.cfg.chroot, "chroot", "",
		`Reduce privileges with chroot() after listen sockets are open.
`)
	fs.StringVar(&t.cfg.group, "group", "",
		"Reduce privileges with setgid() after listen sockets are open.")
	fs.StringVar(&t.cfg.metricsAddr, "metrics", "",
		`Serve /metrics and /healthz over HTTP on this address, e.g.
'127.0.0.1:9153'.`)
	fs.StringVar(&t.cfg.nsid, "NSID", "",
		"Respond to EDNS NSID sub-opt with the specified string.")
	fs.StringVar(&t.cfg.port, "port", defaultPort, "Port to listen on for DNS queries")
	fs.StringVar(&t.cfg.user, "user", "",
		"Reduce privileges with setuid() after listen sockets are open.")

	// config RRL StringVars - all RRL configs are set as strings so as to match the
	// interface provided by the rrl package. It does the actual conversion of numbers
	// and so forth and generates errors if they are invalid or out of range.

	fs.StringVar(&t.cfg.rrlOptions.window, "rrl-window", "",
		"Seconds during which response rates are tracked (default 15)")
	fs.StringVar(&t.cfg.rrlOptions.slipRatio, "rrl-slip-ratio", "",
		`Ratio of rate-limited responses given a truncated response over
a dropped response. A ratio of 0 disables slip processing and
thus all rate-limited responses are dropped (default 2).`)
	fs.StringVar(&t.cfg.rrlOptions.maxTableSize, "rrl-max-table-size", "",
		`Maximum number of responses to be tracked at one time. When
exceeded, rrl stops rate limiting new responses (default
100000).`)
	fs.BoolVar(&t.cfg.rrlDryRun, "rrl-dryrun", false,
		"Invoke RRL analysis but ignore recommended action")
	fs.StringVar(&t.cfg.rrlOptions.ipv4PrefixLength, "rrl-ipv4-CIDR", "",
		`The prefix length in bits to use for identifying a ipv4 client
CIDR (default 24).`)
	fs.StringVar(&t.cfg.rrlOptions.ipv6PrefixLength, "rrl-ipv6-CIDR", "",
		`The prefix length in bits to use for identifying a ipv6 client
CIDR (default 56).`)
	fs.StringVar(&t.cfg.rrlOptions.responsesInterval, "rrl-responses-psec", "",
		`The number of Answer responses allowed per second. An
allowance of 0 disables Answer rate limiting (default 0).`)
	fs.StringVar(&t.cfg.rrlOptions.nodataInterval, "rrl-nodata-psec", "",
		`The number of NoData responses allowed per second (defaults to
--rrl-responses-psec).`)
	fs.StringVar(&t.cfg.rrlOptions.nxdomainsInterval, "rrl-nxdomain-psec", "",
		`The number of NXDomain responses allowed per second (defaults
to --rrl-responses-psec).`)
	fs.StringVar(&t.cfg.rrlOptions.referralsInterval, "rrl-referrals-psec", "",
		`The number of Referral responses allowed per second. NoData
responses carry the zone SOA in the Authority section so they are
accounted as Referrals (defaults to --rrl-responses-psec).`)
	fs.StringVar(&t.cfg.rrlOptions.errorsInterval, "rrl-errors-psec", "",
		`The number of Error responses allowed per second (excluding
NXDomain) (defaults to --rrl-responses-psec).`)
	fs.StringVar(&t.cfg.rrlOptions.requestsInterval, "rrl-requests-psec", "",
		`The number requests allowed per second from a source IP. An
allowance of 0 disables rate limiting of requests (default 0).`)

	// config String Arrays

	fs.StringArrayVar(&t.cfg.listen, "listen", []string{},
		`Address/prefix to listen on, e.g. 10.147.17.1/24. Disables
discovery via the local ZeroTier service.
`)

	////////////////////////////////////////

	dupes := make(map[string]bool) // True means dupes are ok

	dupes["help"] = true    // Documentation options that never run zeronsd
	dupes["version"] = true // can be duplicate because the user may be fumbling
	dupes["listen"] = true  // Legitimately repeated

	err := fs.ParseAll(args[min(1, len(args)):],
		func(f *flag.Flag, v string) error {
			if tf, ok := dupes[f.Name]; ok {
				if tf {
					return fs.Set(f.Name, v)
				}
				return fmt.Errorf("Duplicate option '--%v %v' not allowed",
					f.Name, v)
			}
			dupes[f.Name] = false
			return fs.Set(f.Name, v)
		})

	if err != nil {
		fmt.Fprintln(log.Out(), "Error:", err.Error())
		return parseFailed
	}
	t.cfg.logQueries.Store(logQueries)

	// Handle all documentation options locally

	if helpFlag {
		printUsage(fs)
		fmt.Fprintln(log.Out())
		t.cfg.printVersion()
		return parseStop
	}

	if versionFlag {
		t.cfg.printVersion()
		return parseStop
	}

	switch fs.NArg() {
	case 0:
		fmt.Fprintln(log.Out(), "Error: no network ID. Consider '-h' for command-line usage")
		return parseFailed
	case 1:
		t.cfg.network = fs.Arg(0)
	default:
		fmt.Fprintf(log.Out(), "Error: Unexpected goop on command line: '%s'\n",
			strings.Join(fs.Args()[1:], " "))
		return parseFailed
	}

	return t.parseRRLOptions()
}

// RRL options are handed to the rrl package as strings. It does all the conversion to
// ints and floats and returns errors as necessary.
//
// Since the rrl config starts life as a no-op config, at least one of the *psec values
// has to be set greater than zero otherwise rrl does nothing in the Debit() call. As soon
// as any --rrl-* option is set the caller presumably wants a functional rrl so check that
// at least one *psec value is also set.
func (t *zeronsd) parseRRLOptions() parseResult {
	for _, o := range []struct{ name, value string }{
		{"window", t.cfg.rrlOptions.window},
		{"slip-ratio", t.cfg.rrlOptions.slipRatio},
		{"max-table-size", t.cfg.rrlOptions.maxTableSize},
		{"ipv4-prefix-length", t.cfg.rrlOptions.ipv4PrefixLength},
		{"ipv6-prefix-length", t.cfg.rrlOptions.ipv6PrefixLength},
		{"responses-per-second", t.cfg.rrlOptions.responsesInterval},
		{"nodata-per-second", t.cfg.rrlOptions.nodataInterval},
		{"nxdomains-per-second", t.cfg.rrlOptions.nxdomainsInterval},
		{"referrals-per-second", t.cfg.rrlOptions.referralsInterval},
		{"errors-per-second", t.cfg.rrlOptions.errorsInterval},
		{"requests-per-second", t.cfg.rrlOptions.requestsInterval},
	} {
		if !t.setRRLOption(o.name, o.value) {
			return parseFailed
		}
	}

	// Check that they haven't only set no-op rrl options
	if (t.cfg.rrlOptionSet || t.cfg.rrlDryRun) && !t.cfg.rrlConfig.IsActive() {
		fmt.Fprintln(log.Out(), "Error: RRL requires at least one -*psec option to activate")
		return parseFailed
	}

	return parseContinue
}

func (t *zeronsd) setRRLOption(name, value string) bool {
	if len(value) == 0 {
		return true
	}

	t.cfg.rrlOptionSet = true // Say at least one --rrl option is present
	err := t.cfg.rrlConfig.SetValue(name, value)
	if err != nil {
		fmt.Fprintln(log.Out(), "Error:", err.Error())
		return false
	}

	return true
}

func printUsage(fs *flag.FlagSet) {
	o := log.Out()
	fmt.Fprintln(o, "NAME")
	fmt.Fprintln(o, " ", programName, "-- a name server for the members of a ZeroTier network")
	fmt.Fprintln(o)
	fmt.Fprintln(o, "SYNOPSIS")
	fmt.Fprintln(o, "     zeronsd -h | --help | -v | --version")
	fmt.Fprintln(o, `     zeronsd [-d domain=home.arpa] [-f hosts-file] [-s authtoken.secret]
             [-t token-file] [-w] [--listen address/prefix]`+"…"+`
             [--refresh time.Duration=30s] [--TTL time.Duration=1m]
             [--port port=53] [--update-central=true] [--metrics host:port]
             [--CHAOS=true] [--NSID hostid]
             [--user user-name] [--group group-name] [--chroot path]
             [--log-major=true] [--log-minor] [--log-debug]
             [--log-queries] [--report time.Duration=1h]
             [--rrl-dryrun] [--rrl-*]
             network-id`)

	fmt.Fprint(o, `
DESCRIPTION
     zeronsd serves DNS for the members of a ZeroTier network. Member names
     and addresses are fetched from ZeroTier Central on a fixed interval and
     served under the chosen domain, along with the reverse zones of every
     subnet this host is assigned on the network.

     Every member is reachable as zt-<member-id>.<domain>. Members with a name
     in Central are also reachable by that name, converted into a valid DNS
     label.

     The Central API token is read from $`+envToken+` or from the
     file named by -t. A typical invocation is:

           # ZEROTIER_CENTRAL_TOKEN=xxxx zeronsd -d home.arpa 8056c2e21c000001
`)
	fmt.Fprintln(o)
	fmt.Fprintln(o, "OPTIONS")
	op := fs.Output() // Save and restore
	fs.SetOutput(o)
	fs.PrintDefaults()
	fs.SetOutput(op)

	fmt.Fprint(o, `
ENVIRONMENT
  `+envToken+`     Central API token
  `+envCentral+`  Central API URL (default https://my.zerotier.com/api)
  `+envLocal+`         Local service URL (default http://localhost:9993)

NOTES
  1. --listen can be repeated multiple times.
  2. RRL is only activated when at least one of the *-psec values is set above zero.

SIGNALS
  SIGHUP  - refresh all zones from Central immediately
  SIGQUIT - Produce a stack dump and exit
  SIGTERM - initiate shutdown
  SIGINT  - initiate shutdown
  SIGUSR1 - generates an immediate stats report
  SIGUSR2 - toggles --log-queries
`)
}
