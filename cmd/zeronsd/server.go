package main

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/markdingo/rrl"
	"github.com/miekg/dns"

	"github.com/zerotier/zeronsd/dnsutil"
	"github.com/zerotier/zeronsd/zone"
)

// server is created for each listen address and network. All servers share the forward
// authority but each only answers for the reverse authority of its own subnet.
type server struct {
	cfg        *config
	forward    *zone.Authority
	reverse    *zone.Authority // May be nil in tests
	rrlHandler *rrl.RRL        // May be nil if not configured

	network string // Listen details
	address string

	miekg *dns.Server

	statsMu  sync.RWMutex
	stats    serverStats // Reset by each stats report
	lifetime serverStats // Never reset, exported as metrics counters

	dropped         atomic.Uint64 // Undecodable datagrams, counted outside of statsMu
	droppedLifetime atomic.Uint64

	cookieSecrets [2]uint64
}

func newServer(cfg *config, forward, reverse *zone.Authority, rrlHandler *rrl.RRL, network, address string) *server {
	t := &server{
		cfg:        cfg,
		forward:    forward,
		reverse:    reverse,
		rrlHandler: rrlHandler,
		network:    network,
		address:    address,
	}

	if len(t.network) == 0 {
		t.network = dnsutil.UDPNetwork
	}

	t.miekg = &dns.Server{Net: t.network, Addr: t.address, Handler: t}

	// The miekg.defaultMsgAcceptFunc rejects Server Cookie queries (RFC7873#5.4) as
	// qdcount==0, so that function has been replaced with our own which also gathers
	// stats on rejections.
	t.miekg.MsgAcceptFunc = func(dh dns.Header) dns.MsgAcceptAction {
		return t.customMsgAcceptFunc(dh)
	}

	// miekg replies FORMERR to datagrams with a plausible header and a garbage body,
	// which makes us a reflector for anyone spraying junk. Drop them instead.
	if t.network == dnsutil.UDPNetwork {
		t.miekg.DecorateReader = func(r dns.Reader) dns.Reader {
			return &dropReader{Reader: r, srv: t}
		}
	}

	return t
}

// startServer starts accepting DNS queries. It waits until the service has actually
// started prior to returning to the caller by way of NotifyStartedFunc.
//
// Returns error if the server fails to start or nil.
func (t *zeronsd) startServer(srv *server) error {
	t.wg.Add(1)

	hasStarted := make(chan error, 1) // Make sure listener has started before returning
	srv.miekg.NotifyStartedFunc = func() {
		hasStarted <- nil
	}

	go func() {
		defer t.wg.Done()
		err := srv.miekg.ListenAndServe()
		if err != nil {
			select {
			case hasStarted <- err: // Only the first message is ever read
			default:
			}
		}
	}()

	return <-hasStarted
}

// localAddr returns the bound address which is useful when the port was zero.
func (t *server) localAddr() net.Addr {
	if t.miekg.PacketConn != nil {
		return t.miekg.PacketConn.LocalAddr()
	}
	if t.miekg.Listener != nil {
		return t.miekg.Listener.Addr()
	}

	return nil
}

func (t *server) stop() {
	t.miekg.Shutdown()
}

func (t *server) addStats(from *serverStats) {
	t.statsMu.Lock()
	t.stats.add(from)
	t.lifetime.add(from)
	t.statsMu.Unlock()
}

// Called from acceptFunc from within miekg when a query fails prior to our ServeDNS()
func (t *server) addAcceptError() {
	t.statsMu.Lock()
	t.stats.gen.badRequest++
	t.lifetime.gen.badRequest++
	t.statsMu.Unlock()
}

func (t *server) addDropped() {
	t.dropped.Add(1)
	t.droppedLifetime.Add(1)
}

// dropReader discards datagrams which do not decode as a DNS message so that miekg never
// sees them. Datagrams shorter than a header are already ignored by miekg.
type dropReader struct {
	dns.Reader
	srv *server
}

func (t *dropReader) ReadUDP(conn *net.UDPConn, timeout time.Duration) ([]byte, *dns.SessionUDP, error) {
	for {
		m, s, err := t.Reader.ReadUDP(conn, timeout)
		if err != nil {
			return m, s, err
		}
		if err := new(dns.Msg).Unpack(m); err == nil {
			return m, s, nil
		}
		t.srv.addDropped()
	}
}
