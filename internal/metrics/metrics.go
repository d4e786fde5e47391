package metrics

import (
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ProbesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proxysieve_probes_total",
			Help: "TCP connect probes by result",
		},
		[]string{"result"},
	)

	DNSBLQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proxysieve_dnsbl_queries_total",
			Help: "DNSBL lookups by result class",
		},
		[]string{"list", "result"},
	)

	RunPhase = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "proxysieve_run_phase",
			Help: "Current pipeline phase: 0=idle through 7=done",
		},
	)

	CandidatesProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "proxysieve_candidates_processed_total",
			Help: "Candidates that completed the pipeline",
		},
	)

	CandidatesAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "proxysieve_candidates_accepted_total",
			Help: "Candidates that passed every stage",
		},
	)
)

// Serve exposes /metrics on the given port. A port of 0 disables the
// listener. The server runs for the lifetime of the process.
func Serve(port int) {
	if port == 0 {
		return
	}

	go func() {
		addr := fmt.Sprintf(":%d", port)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())

		log.Info("Metrics listener started", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Error("Metrics listener terminated", "error", err)
		}
	}()
}
