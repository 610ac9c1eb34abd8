package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerotier/zeronsd/central"
	"github.com/zerotier/zeronsd/log"
	"github.com/zerotier/zeronsd/mock"
)

func newMetricsZeronsd(t *testing.T) (*zeronsd, *mock.Source) {
	t.Helper()
	log.SetOut(&mock.IOWriter{})
	zn := newZeronsd(testConfig())
	zn.cfg.network = testNetwork
	src := &mock.Source{}
	src.Set(testMembers()...)
	zn.source = src
	zn.cfg.listens, _ = central.ParseListen([]string{"10.1.2.1/24"})
	require.NoError(t, zn.generateAuthorities())

	return zn, src
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	return rec
}

func TestHealthz(t *testing.T) {
	zn, src := newMetricsZeronsd(t)
	h := zn.metricsHandler()

	rec := get(t, h, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "starting", resp.Status)
	require.Len(t, resp.Zones, 1)
	assert.Empty(t, resp.Zones[0].LastSuccess)

	require.NoError(t, zn.refreshers[0].Tick(context.Background()))
	rec = get(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	resp = healthResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, commonCHAOSPrefix, resp.Version)
	assert.Equal(t, testNetwork+"/10.1.2.0/24", resp.Zones[0].Zone)
	assert.Equal(t, 3, resp.Zones[0].Members)
	assert.NotEmpty(t, resp.Zones[0].LastSuccess)

	// A failure after a success is still healthy since the last content is served
	src.Fail(assert.AnError)
	assert.Error(t, zn.refreshers[0].Tick(context.Background()))
	rec = get(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"failures":1`)
	assert.Contains(t, rec.Body.String(), assert.AnError.Error())
}

func TestMetrics(t *testing.T) {
	zn, _ := newMetricsZeronsd(t)
	require.NoError(t, zn.refreshers[0].Tick(context.Background()))

	srv := newServer(zn.cfg, zn.forward, zn.bindings[0].reverse, nil, "", "")
	zn.servers = append(zn.servers, srv)
	exchange(t, srv, setQuestion(dns.ClassINET, dns.TypeA, "laptop-one.example.net."))
	exchange(t, srv, setQuestion(dns.ClassINET, dns.TypeA, "nope.example.net."))
	exchange(t, srv, setQuestion(dns.ClassINET, dns.TypeA, "example.com."))
	srv.addDropped()
	srv.addDropped()

	rec := get(t, zn.metricsHandler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	for _, s := range []string{
		"zeronsd_queries_total 3",
		`zeronsd_responses_total{outcome="answer"} 1`,
		`zeronsd_responses_total{outcome="nxdomain"} 1`,
		`zeronsd_responses_total{outcome="refused"} 1`,
		"zeronsd_dropped_datagrams_total 2",
		`zeronsd_refresh_total{result="success",zone="` + testNetwork + `/10.1.2.0/24"} 1`,
		`zeronsd_refresh_total{result="failure",zone="` + testNetwork + `/10.1.2.0/24"} 0`,
		`zeronsd_members{zone="` + testNetwork + `/10.1.2.0/24"} 3`,
		"zeronsd_refresh_last_success_seconds",
		`zeronsd_records{kind="hosts"`,
	} {
		if !strings.Contains(body, s) {
			t.Error("Metrics do not contain", s)
		}
	}
	if t.Failed() {
		t.Log(body)
	}

	// A stats report resets its own counters, never the exported ones
	zn.statsReport(true)
	exchange(t, srv, setQuestion(dns.ClassINET, dns.TypeA, "laptop-one.example.net."))
	body = get(t, zn.metricsHandler(), "/metrics").Body.String()
	for _, s := range []string{
		"zeronsd_queries_total 4",
		`zeronsd_responses_total{outcome="answer"} 2`,
		`zeronsd_responses_total{outcome="nxdomain"} 1`,
		"zeronsd_dropped_datagrams_total 2",
	} {
		if !strings.Contains(body, s) {
			t.Error("Counter went backwards after stats report", s)
		}
	}
}

func TestStartMetrics(t *testing.T) {
	zn, _ := newMetricsZeronsd(t)
	assert.NoError(t, zn.startMetrics()) // Not configured is a no-op
	assert.Nil(t, zn.metrics)

	zn.cfg.metricsAddr = "127.0.0.1:bogus"
	assert.Error(t, zn.startMetrics())

	zn.cfg.metricsAddr = "127.0.0.1:0"
	require.NoError(t, zn.startMetrics())
	assert.NotNil(t, zn.metrics)
	zn.stopMetrics()
}
