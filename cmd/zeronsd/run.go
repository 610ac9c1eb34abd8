package main

import (
	"fmt"
	"os"
	"time"

	"github.com/zerotier/zeronsd/log"
	"github.com/zerotier/zeronsd/osutil"
	"github.com/zerotier/zeronsd/pregen"
)

// Run the server loop checking for signals and stats reports events
func (t *zeronsd) Run() {
	t.startTime = t.clock.Now()
	t.statsTime = t.startTime

	var signal os.Signal
	osutil.SignalNotify(t.sig) // Register interest in signals

	fmt.Fprintln(log.Out(), programName, pregen.Version, "Ready")

	reportTicker := t.clock.Ticker(t.cfg.reportInterval)
	defer reportTicker.Stop()

	stopFlag := false
	for !stopFlag {
		select {
		case <-t.done: // Closed by tests
			stopFlag = true

		case <-reportTicker.C:
			t.statsReport(true)

		case signal = <-t.sig:
			switch {
			case osutil.IsSignalTERM(signal), osutil.IsSignalINT(signal):
				stopFlag = true

			case osutil.IsSignalUSR1(signal):
				t.statsReport(false)

			case osutil.IsSignalUSR2(signal):
				lq := !t.cfg.logQueries.Load()
				t.cfg.logQueries.Store(lq)
				log.Majorf("--log-queries=%t", lq)

			case osutil.IsSignalHUP(signal):
				log.Major("SIGHUP refresh initiated")
				t.triggerRefreshers()

			default:
				log.Majorf("Signal '%s' reserved for future use", signal)
			}
		}
	}

	if signal != nil {
		log.Majorf("Signal '%s' initiates shutdown", signal)
	}
	t.shutdown()
}

// shutdown stops everything in reverse order of startup. It is safe to call once only.
func (t *zeronsd) shutdown() {
	select {
	case <-t.done:
	default:
		close(t.done)
	}
	t.stopMetrics()
	t.stopRefreshers()
	t.stopServers()
	log.Minor("All Listen servers stopped")
}

var zeroStats serverStats

// totals returns the sum of all server stats and the number of dropped datagrams.
func (t *zeronsd) totals(resetCounters bool) (totals serverStats, dropped uint64) {
	for _, srv := range t.servers {
		srv.statsMu.Lock() // Take writer lock in case resetCounters is true
		totals.add(&srv.stats)
		if resetCounters {
			srv.stats = zeroStats
		}
		srv.statsMu.Unlock()
		if resetCounters {
			dropped += srv.dropped.Swap(0)
		} else {
			dropped += srv.dropped.Load()
		}
	}

	return
}

// lifetimeTotals sums the counters which are never reset so exported counters only ever
// increase regardless of how often stats are reported.
func (t *zeronsd) lifetimeTotals() (totals serverStats, dropped uint64) {
	for _, srv := range t.servers {
		srv.statsMu.RLock()
		totals.add(&srv.lifetime)
		srv.statsMu.RUnlock()
		dropped += srv.droppedLifetime.Load()
	}

	return
}

// Writes summary stats to Stdout
func (t *zeronsd) statsReport(resetCounters bool) {
	totals, dropped := t.totals(resetCounters)

	now := t.clock.Now()
	upDuration := now.Sub(t.startTime).Round(time.Second)
	statsDuration := now.Sub(t.statsTime).Round(time.Second)
	if resetCounters {
		t.statsTime = now
	}

	// Version is included for stats parsers as the output changes between releases.
	log.Major("Stats: Uptime ", upDuration, " Stats Time: ", statsDuration, " ", pregen.Version)
	log.Major("Stats: Total ", totals.gen.String(), " dropped=", dropped)
	log.Major("Stats: A ", totals.A.String())
	log.Major("Stats: AAAA ", totals.AAAA.String())
	log.Major("Stats: A Ptr ", totals.APtr.String())
	log.Major("Stats: AAAA Ptr ", totals.AAAAPtr.String())
	for _, r := range t.refreshers {
		s := r.Stats()
		log.Majorf("Stats: Refresh %s ticks=%d ok=%d fail=%d members=%d rr=%d/%d hosts=%d",
			r.Name(), s.Ticks, s.Successes, s.Failures, s.Members, s.Forward, s.Reverse, s.Hosts)
	}
}
