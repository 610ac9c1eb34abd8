package main

import (
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/zerotier/zeronsd/central"
	"github.com/zerotier/zeronsd/hosts"
)

// ValidateCommandLineOptions checks everything that is likely a typo or usage error and
// loads the secrets. All of this happens before any sockets are opened so a bad
// configuration never results in a partially running server.
func (t *zeronsd) ValidateCommandLineOptions() error {
	getenv := t.cfg.getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	if !isNetworkID(t.cfg.network) {
		return fmt.Errorf("Invalid network ID '%s': must be 16 hex digits", t.cfg.network)
	}
	t.cfg.network = strings.ToLower(t.cfg.network)

	labs, is := dns.IsDomainName(t.cfg.domain)
	if !is || labs < 1 || t.cfg.domain == "." {
		return fmt.Errorf("Invalid domain name: --domain %s", t.cfg.domain)
	}
	t.cfg.domain = dns.CanonicalName(t.cfg.domain)

	if t.cfg.TTL < time.Second {
		return fmt.Errorf("--TTL must be at least 1 second")
	}
	if t.cfg.TTL.Seconds() > math.MaxUint32 {
		return fmt.Errorf("--TTL must be at most %d seconds", uint32(math.MaxUint32))
	}
	t.cfg.TTLAsSecs = uint32(t.cfg.TTL.Seconds() + 0.5) // Round up to next second

	if t.cfg.refresh < time.Second {
		return fmt.Errorf("--refresh must be at least 1 second")
	}
	if t.cfg.reportInterval < time.Second {
		return fmt.Errorf("--report must be at least 1 second")
	}

	if p, err := strconv.Atoi(t.cfg.port); err != nil || p < 0 || p > 65535 {
		return fmt.Errorf("--port %s is not a valid port number", t.cfg.port)
	}

	// Central token comes from the file if given, otherwise the environment.
	if len(t.cfg.tokenFile) > 0 {
		tok, err := central.ReadSecret(t.cfg.tokenFile)
		if err != nil {
			return fmt.Errorf("--token: %w", err)
		}
		t.cfg.token = tok
	} else {
		t.cfg.token = strings.TrimSpace(getenv(envToken))
	}
	if len(t.cfg.token) == 0 {
		return fmt.Errorf("missing zerotier central token: set %s in environment, or pass a file containing it with -t", envToken)
	}

	t.cfg.centralURL = getenv(envCentral)
	t.cfg.localURL = getenv(envLocal)

	if len(t.cfg.hostsFile) > 0 { // Only unreadable is fatal, bad lines are warnings
		table, err := hosts.Load(t.cfg.hostsFile, t.cfg.domain)
		if table == nil {
			return fmt.Errorf("--file: %w", err)
		}
		if err != nil {
			warning(err, "--file", t.cfg.hostsFile)
		}
	}

	// The local service secret is only needed when discovering listen addresses.
	if len(t.cfg.listen) > 0 {
		var err error
		t.cfg.listens, err = central.ParseListen(t.cfg.listen)
		if err != nil {
			return fmt.Errorf("--listen: %w", err)
		}
	} else {
		path := t.cfg.secretFile
		if len(path) == 0 {
			path = central.DefaultAuthtokenPath()
		}
		secret, err := central.ReadSecret(path)
		if err != nil {
			return fmt.Errorf("authtoken.secret: %w", err)
		}
		t.cfg.authtoken = secret
	}

	t.cfg.nsidAsHex = hex.EncodeToString([]byte(t.cfg.nsid)) // Convert nsid to hex
	t.cfg.generateNSIDOpt()

	return nil
}

// isNetworkID returns true if s looks like a ZeroTier network ID.
func isNetworkID(s string) bool {
	if len(s) != 16 {
		return false
	}
	_, err := hex.DecodeString(s)

	return err == nil
}
