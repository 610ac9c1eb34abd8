package main

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/markdingo/rrl"

	"github.com/zerotier/zeronsd/central"
	"github.com/zerotier/zeronsd/dnsutil"
	"github.com/zerotier/zeronsd/log"
	"github.com/zerotier/zeronsd/osutil"
	"github.com/zerotier/zeronsd/refresh"
	"github.com/zerotier/zeronsd/zone"
)

// dnsUpdater pushes the name server details to the network configuration.
type dnsUpdater interface {
	SetDNS(ctx context.Context, network, domain string, servers []string) error
}

// listenDiscoverer returns the addresses assigned to this host on the network.
type listenDiscoverer interface {
	ListenAddresses(ctx context.Context, network string) ([]central.Listen, error)
}

// binding ties a listen address to the reverse authority of its subnet.
type binding struct {
	listen  central.Listen
	reverse *zone.Authority
}

// The zeronsd container exists so that most of the "main" functionality can be delegated
// to support functions and help keep the flow of main() nice and clean.
type zeronsd struct {
	cfg *config

	done  chan struct{} // All collaborative go-routines should monitor - see Done()
	sig   chan os.Signal
	clock clock.Clock

	source     central.Source // Replaceable for tests, otherwise set by connect()
	updater    dnsUpdater
	discoverer listenDiscoverer

	forward    *zone.Authority
	ptrs       *zone.PTRSet
	bindings   []binding
	refreshers []*refresh.Refresher
	refreshWG  sync.WaitGroup
	cancel     context.CancelFunc

	rrlHandler *rrl.RRL // Nil unless RRL is active

	wg      sync.WaitGroup // For all servers started
	servers []*server
	metrics *http.Server

	startTime time.Time
	statsTime time.Time // Last time stats were reset
}

func newZeronsd(cfg *config) *zeronsd {
	t := &zeronsd{
		cfg:   cfg,
		done:  make(chan struct{}),
		sig:   make(chan os.Signal, 1),
		clock: clock.New(),
	}
	if t.cfg == nil {
		t.cfg = newConfig()
	}
	t.startTime = t.clock.Now()
	t.statsTime = t.startTime

	return t
}

// Done is the go idiomatic way to tell collaborative go-routines to exit.
func (t *zeronsd) Done() <-chan struct{} {
	return t.done
}

// connect creates the clients for Central and the local service from the validated
// config. Clients already set, presumably by tests, are left alone.
func (t *zeronsd) connect() {
	if t.source == nil {
		c := central.NewClient(t.cfg.centralURL, t.cfg.token, central.DefaultTimeout)
		t.source = c
		if t.updater == nil {
			t.updater = c
		}
	}
	if t.discoverer == nil && len(t.cfg.listens) == 0 {
		t.discoverer = central.NewLocal(t.cfg.localURL, t.cfg.authtoken, central.DefaultTimeout)
	}
	if t.cfg.rrlConfig.IsActive() {
		t.rrlHandler = rrl.NewRRL(t.cfg.rrlConfig)
	}
}

// Open Listen sockets and start servers. A UDP and a TCP server is started for each
// binding. Failure to bind one address is not fatal as the host may have lost that
// address since discovery; failure to bind all of them is.
//
// Cookie secrets are a cryptographically strong random value shared by all servers.
func (t *zeronsd) startServers() error {
	var cookieSecrets [2]uint64
	b := make([]byte, 16)
	rand.Read(b)
	cookieSecrets[0] = binary.BigEndian.Uint64(b[:8])
	cookieSecrets[1] = binary.BigEndian.Uint64(b[8:])

	for _, bind := range t.bindings {
		addr := t.cfg.listenAddress(bind.listen.IP)
		for _, network := range []string{dnsutil.UDPNetwork, dnsutil.TCPNetwork} {
			srv := newServer(t.cfg, t.forward, bind.reverse, t.rrlHandler, network, addr)
			srv.cookieSecrets = cookieSecrets
			err := t.startServer(srv)
			if err != nil {
				warning(err, "Listen on", network, addr, "skipped")
				continue
			}
			t.servers = append(t.servers, srv)
			log.Major("Listen on: ", srv.network, " ", srv.address, " ", bind.reverse)
		}
	}

	if len(t.servers) == 0 {
		return errors.New("could not listen on any address")
	}

	return nil
}

// Stop all servers and only return when they have all exited
func (t *zeronsd) stopServers() {
	for _, srv := range t.servers {
		srv.stop()
	}
	t.wg.Wait()
}

// Constrain process via setuid, setgid and chroot. Called after all sockets are open.
func (t *zeronsd) Constrain() error {
	if len(t.cfg.user) > 0 || len(t.cfg.group) > 0 || len(t.cfg.chroot) > 0 {
		err := osutil.Constrain(t.cfg.user, t.cfg.group, t.cfg.chroot)
		if err != nil {
			return err
		}
		log.Major("Process Constraint: ", osutil.ConstraintReport())
	}

	return nil
}
