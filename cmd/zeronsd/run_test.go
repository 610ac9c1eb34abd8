//go:build !windows

package main

import (
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/miekg/dns"

	"github.com/zerotier/zeronsd/central"
	"github.com/zerotier/zeronsd/log"
	"github.com/zerotier/zeronsd/mock"
)

func waitForLog(t *testing.T, out *mock.IOWriter, s string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !strings.Contains(out.String(), s) {
		if time.Now().After(deadline) {
			t.Fatal("Log never contained", s, out.String())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRun(t *testing.T) {
	testCases := []string{
		"Zone Authority",
		"Listen on",
		programName,
		"Ready",
		"Stats: Uptime ",
		"Stats: Total q=0",
		"Stats: A q=0",
		"Stats: AAAA q=0",
		"Stats: A Ptr q=0",
		"Stats: AAAA Ptr q=0",
		"Stats: Refresh " + testNetwork + "/127.0.0.0/8 ticks=",
		"SIGHUP refresh initiated",
		"log-queries=true",
		"log-queries=false",
		"initiates shutdown",
		"All Listen servers stopped",
	}

	out := &mock.IOWriter{}
	log.SetOut(out)
	log.SetLevel(log.MinorLevel)

	cfg := testConfig()
	cfg.network = testNetwork
	cfg.reportInterval = time.Second * 3
	zn := newZeronsd(cfg)
	mClock := clock.NewMock()
	zn.clock = mClock
	src := &mock.Source{}
	zn.source = src
	zn.cfg.listens, _ = central.ParseListen([]string{"127.0.0.1/8"})
	if err := zn.generateAuthorities(); err != nil {
		t.Fatal("generateAuthorities", err)
	}
	if err := zn.startServers(); err != nil {
		t.Fatal("startServers", err)
	}
	zn.startRefreshers()

	finished := make(chan struct{})
	go func() {
		zn.Run()
		close(finished)
	}()
	waitForLog(t, out, "Ready")
	time.Sleep(100 * time.Millisecond) // Let Run create its ticker
	mClock.Add(4 * time.Second)        // Trigger a stats report
	waitForLog(t, out, "Stats: Uptime")

	// Send all non-terminating signals and toggle USR2 (--log-queries toggle)

	calls := src.Calls()
	for _, sig := range []os.Signal{syscall.SIGUSR1, syscall.SIGHUP, syscall.SIGUSR2, syscall.SIGUSR2} {
		zn.sig <- sig
		time.Sleep(time.Millisecond * 100)
	}
	if src.Calls() <= calls {
		t.Error("SIGHUP did not trigger a refresh")
	}
	if zn.cfg.logQueries.Load() {
		t.Error("Two SIGUSR2 should leave --log-queries as it was")
	}

	// Send shutdown and wait for Run to finish
	zn.sig <- syscall.SIGTERM
	<-zn.Done()
	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after SIGTERM")
	}

	got := out.String()
	for _, s := range testCases {
		if !strings.Contains(got, s) {
			t.Error("Does not contain", s)
		}
	}
	if t.Failed() {
		t.Log(got)
	}
}

// Closing done, as tests do, also stops Run.
func TestRunDone(t *testing.T) {
	log.SetOut(&mock.IOWriter{})
	zn := newZeronsd(testConfig())
	zn.cfg.reportInterval = time.Hour
	finished := make(chan struct{})
	go func() {
		zn.Run()
		close(finished)
	}()
	time.Sleep(50 * time.Millisecond)
	close(zn.done)
	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after done was closed")
	}
}

func TestStatsReportReset(t *testing.T) {
	out := &mock.IOWriter{}
	log.SetOut(out)
	log.SetLevel(log.MajorLevel)

	zn := newZeronsd(testConfig())
	srv := newTestServer(t, zn.cfg, false)
	zn.servers = append(zn.servers, srv)
	exchange(t, srv, setQuestion(dns.ClassINET, dns.TypeA, "laptop-one.example.net."))
	exchange(t, srv, setQuestion(dns.ClassINET, dns.TypePTR, "3.2.1.10.in-addr.arpa."))
	srv.addDropped()

	zn.statsReport(true)
	got := out.String()
	for _, s := range []string{"Stats: Total q=2/", "dropped=1", "Stats: A q=1 good=1(1)",
		"Stats: A Ptr q=1 good=1(1)"} {
		if !strings.Contains(got, s) {
			t.Error("Does not contain", s, got)
		}
	}

	totals, dropped := zn.totals(false)
	if totals.gen.queries != 0 || dropped != 0 {
		t.Error("Counters should have been reset", totals.gen.String(), dropped)
	}
	totals, dropped = zn.lifetimeTotals()
	if totals.gen.queries != 2 || dropped != 1 {
		t.Error("Lifetime counters should not be reset", totals.gen.String(), dropped)
	}
}
