package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zerotier/zeronsd/log"
)

const metricsNamespace = "zeronsd"

var (
	queriesDesc = prometheus.NewDesc(metricsNamespace+"_queries_total",
		"DNS queries received by all servers", nil, nil)
	responsesDesc = prometheus.NewDesc(metricsNamespace+"_responses_total",
		"DNS responses by outcome", []string{"outcome"}, nil)
	droppedDesc = prometheus.NewDesc(metricsNamespace+"_dropped_datagrams_total",
		"UDP datagrams dropped because they did not decode", nil, nil)
	refreshDesc = prometheus.NewDesc(metricsNamespace+"_refresh_total",
		"Refresh ticks by result", []string{"zone", "result"}, nil)
	lastSuccessDesc = prometheus.NewDesc(metricsNamespace+"_refresh_last_success_seconds",
		"Unix time of the last successful refresh", []string{"zone"}, nil)
	recordsDesc = prometheus.NewDesc(metricsNamespace+"_records",
		"Records installed by the last successful refresh", []string{"zone", "kind"}, nil)
	membersDesc = prometheus.NewDesc(metricsNamespace+"_members",
		"Online members with usable addresses at the last successful refresh", []string{"zone"}, nil)
)

// collector exposes the lifetime server counters and the refresher counters. Values are
// read at scrape time.
type collector struct {
	z *zeronsd
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- queriesDesc
	ch <- responsesDesc
	ch <- droppedDesc
	ch <- refreshDesc
	ch <- lastSuccessDesc
	ch <- recordsDesc
	ch <- membersDesc
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	totals, dropped := c.z.lifetimeTotals()
	gen := &totals.gen

	ch <- prometheus.MustNewConstMetric(queriesDesc, prometheus.CounterValue, float64(gen.queries))
	for _, o := range []struct {
		outcome string
		count   int
	}{
		{"answer", gen.dbDone + gen.authZoneANY + gen.authZoneSOA + gen.authZoneNS},
		{"nodata", gen.dbNoError},
		{"nxdomain", gen.dbNXDomain + gen.foreignReverse},
		{"refused", gen.noAuthority + gen.wrongClass + gen.chaosRefused},
		{"formerr", gen.badRequest + gen.malformedCookie},
		{"chaos", gen.chaos - gen.chaosRefused},
		{"rrl_drop", gen.rrlDrop},
		{"rrl_slip", gen.rrlSlip},
	} {
		ch <- prometheus.MustNewConstMetric(responsesDesc, prometheus.CounterValue,
			float64(o.count), o.outcome)
	}
	ch <- prometheus.MustNewConstMetric(droppedDesc, prometheus.CounterValue, float64(dropped))

	for _, r := range c.z.refreshers {
		s := r.Stats()
		name := r.Name()
		ch <- prometheus.MustNewConstMetric(refreshDesc, prometheus.CounterValue,
			float64(s.Successes), name, "success")
		ch <- prometheus.MustNewConstMetric(refreshDesc, prometheus.CounterValue,
			float64(s.Failures), name, "failure")
		if !s.LastSuccess.IsZero() {
			ch <- prometheus.MustNewConstMetric(lastSuccessDesc, prometheus.GaugeValue,
				float64(s.LastSuccess.Unix()), name)
		}
		ch <- prometheus.MustNewConstMetric(recordsDesc, prometheus.GaugeValue, float64(s.Forward), name, "forward")
		ch <- prometheus.MustNewConstMetric(recordsDesc, prometheus.GaugeValue, float64(s.Reverse), name, "reverse")
		ch <- prometheus.MustNewConstMetric(recordsDesc, prometheus.GaugeValue, float64(s.Hosts), name, "hosts")
		ch <- prometheus.MustNewConstMetric(membersDesc, prometheus.GaugeValue, float64(s.Members), name)
	}
}

type healthZone struct {
	Zone        string `json:"zone"`
	Successes   uint64 `json:"successes"`
	Failures    uint64 `json:"failures"`
	LastSuccess string `json:"last_success,omitempty"`
	LastError   string `json:"last_error,omitempty"`
	Members     int    `json:"members"`
	Records     int    `json:"records"`
}

type healthResponse struct {
	Status  string       `json:"status"`
	Version string       `json:"version"`
	Uptime  string       `json:"uptime"`
	Servers int          `json:"servers"`
	Zones   []healthZone `json:"zones"`
}

// handleHealth reports "ok" once every refresher has succeeded at least once, otherwise
// "starting" with a 503 so orchestrators hold traffic until zones have content.
func (t *zeronsd) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "ok",
		Version: commonCHAOSPrefix,
		Uptime:  t.clock.Now().Sub(t.startTime).Round(time.Second).String(),
		Servers: len(t.servers),
		Zones:   []healthZone{},
	}
	for _, rf := range t.refreshers {
		s := rf.Stats()
		hz := healthZone{Zone: rf.Name(), Successes: s.Successes, Failures: s.Failures,
			LastError: s.LastError, Members: s.Members, Records: s.Forward + s.Reverse}
		if s.LastSuccess.IsZero() {
			resp.Status = "starting"
		} else {
			hz.LastSuccess = s.LastSuccess.UTC().Format(time.RFC3339)
		}
		resp.Zones = append(resp.Zones, hz)
	}

	w.Header().Set("Content-Type", "application/json")
	if resp.Status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(resp)
}

// metricsHandler returns the mux serving /metrics and /healthz.
func (t *zeronsd) metricsHandler() http.Handler {
	registry := prometheus.NewRegistry()
	registry.MustRegister(&collector{z: t})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", t.handleHealth)

	return mux
}

// startMetrics listens on --metrics, if set. The listen happens here so a bad address
// is reported at startup rather than lost in a go-routine.
func (t *zeronsd) startMetrics() error {
	if len(t.cfg.metricsAddr) == 0 {
		return nil
	}
	ln, err := net.Listen("tcp", t.cfg.metricsAddr)
	if err != nil {
		return err
	}

	t.metrics = &http.Server{Handler: t.metricsHandler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := t.metrics.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Major("metrics: server error: ", err)
		}
	}()
	log.Major("Metrics on: http://", ln.Addr(), "/metrics")

	return nil
}

func (t *zeronsd) stopMetrics() {
	if t.metrics == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	t.metrics.Shutdown(ctx)
}
