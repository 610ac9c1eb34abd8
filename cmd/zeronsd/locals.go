package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/zerotier/zeronsd/log"
	"github.com/zerotier/zeronsd/refresh"
	"github.com/zerotier/zeronsd/zone"
)

// discoverListens asks the local ZeroTier service which addresses this host has on the
// network, unless they were given with --listen.
func (t *zeronsd) discoverListens(ctx context.Context) error {
	if len(t.cfg.listens) > 0 {
		return nil
	}
	if t.discoverer == nil {
		return errors.New("no listen addresses and no means of discovering them")
	}

	listens, err := t.discoverer.ListenAddresses(ctx, t.cfg.network)
	if err != nil {
		return fmt.Errorf("discover listen addresses: %w", err)
	}
	if len(listens) == 0 {
		return fmt.Errorf("this host has no addresses on network %s: is it joined and authorized?",
			t.cfg.network)
	}
	for _, l := range listens {
		log.Minor("Discovered: ", l)
	}
	t.cfg.listens = listens

	return nil
}

// generateAuthorities creates the forward authority and one reverse authority per
// distinct subnet. Each new subnet gets its own refresher. Listen addresses which share
// a subnet share the reverse authority and its refresher.
func (t *zeronsd) generateAuthorities() error {
	var err error
	t.forward, err = zone.NewForward(t.cfg.domain, t.cfg.wildcard, t.cfg.TTLAsSecs)
	if err != nil {
		return err
	}
	log.Major("Zone Authority: ", t.forward)

	t.ptrs = zone.NewPTRSet(t.forward.Domain, t.cfg.TTLAsSecs)
	for _, l := range t.cfg.listens {
		auth, created, err := t.ptrs.Register(l.Subnet)
		if err != nil {
			return fmt.Errorf("reverse zone for %s: %w", l, err)
		}
		t.bindings = append(t.bindings, binding{listen: l, reverse: auth})
		if !created {
			continue
		}
		log.Major("Zone Authority: ", auth)
		t.refreshers = append(t.refreshers, refresh.New(refresh.Config{
			Network:   t.cfg.network,
			Source:    t.source,
			Forward:   t.forward,
			Reverse:   auth,
			HostsPath: t.cfg.hostsFile,
			Interval:  t.cfg.refresh,
			Clock:     t.clock,
		}))
	}

	return nil
}

// startRefreshers runs each refresher in its own go-routine until stopRefreshers.
func (t *zeronsd) startRefreshers() {
	var ctx context.Context
	ctx, t.cancel = context.WithCancel(context.Background())
	for _, r := range t.refreshers {
		t.refreshWG.Add(1)
		go func(r *refresh.Refresher) {
			defer t.refreshWG.Done()
			r.Run(ctx)
		}(r)
	}
}

func (t *zeronsd) stopRefreshers() {
	if t.cancel != nil {
		t.cancel()
	}
	t.refreshWG.Wait()
}

// triggerRefreshers requests an immediate refresh from every refresher.
func (t *zeronsd) triggerRefreshers() {
	for _, r := range t.refreshers {
		r.Trigger()
	}
}

// updateCentral sets the network DNS to our domain and the first ipv4 listen address,
// falling back to the first listen address if there is no ipv4. Failure is not fatal
// as DNS can still be configured by hand.
func (t *zeronsd) updateCentral(ctx context.Context) error {
	if !t.cfg.updateCentral || t.updater == nil || len(t.servers) == 0 {
		return nil
	}

	server := ""
	for _, srv := range t.servers {
		ip := addrIP(srv.localAddr())
		if ip == nil {
			continue
		}
		if ip.To4() != nil {
			server = ip.String()
			break
		}
		if len(server) == 0 {
			server = ip.String()
		}
	}
	if len(server) == 0 {
		return nil
	}

	err := t.updater.SetDNS(ctx, t.cfg.network, t.forward.Domain, []string{server})
	if err != nil {
		return fmt.Errorf("update central DNS: %w", err)
	}
	log.Major("Central DNS set to ", t.forward.Domain, " ", server)

	return nil
}
