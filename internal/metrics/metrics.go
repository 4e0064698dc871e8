// Package metrics exposes Prometheus instrumentation for the orchestrator
// on a small HTTP listener.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Set holds every collector the components report into.
type Set struct {
	registry *prometheus.Registry

	CyclesTotal    prometheus.Counter
	CycleDuration  prometheus.Histogram
	DefconLevel    prometheus.Gauge
	CompositeScore prometheus.Gauge
	NewsScore      prometheus.Gauge
	MacroScore     prometheus.Gauge
	OpenPositions  prometheus.Gauge

	LLMCalls       *prometheus.CounterVec
	LLMTokens      *prometheus.CounterVec
	TradesTotal    *prometheus.CounterVec
	ProviderErrors *prometheus.CounterVec
	CommandsTotal  *prometheus.CounterVec
}

// New builds the collector set on a private registry.
func New() *Set {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Set{
		registry: reg,
		CyclesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "warroom_cycles_total",
			Help: "Monitoring cycles completed.",
		}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "warroom_cycle_duration_seconds",
			Help:    "Wall time per monitoring cycle.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		DefconLevel: factory.NewGauge(prometheus.GaugeOpts{
			Name: "warroom_defcon_level",
			Help: "Current alert level (1 = execute, 5 = peacetime).",
		}),
		CompositeScore: factory.NewGauge(prometheus.GaugeOpts{
			Name: "warroom_composite_score",
			Help: "Latest composite signal score.",
		}),
		NewsScore: factory.NewGauge(prometheus.GaugeOpts{
			Name: "warroom_news_score",
			Help: "Latest news signal score.",
		}),
		MacroScore: factory.NewGauge(prometheus.GaugeOpts{
			Name: "warroom_macro_score",
			Help: "Latest macro composite score.",
		}),
		OpenPositions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "warroom_open_positions",
			Help: "Open paper positions.",
		}),
		LLMCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "warroom_llm_calls_total",
			Help: "LLM calls by model and tier.",
		}, []string{"model", "tier"}),
		LLMTokens: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "warroom_llm_tokens_total",
			Help: "LLM tokens by model and direction.",
		}, []string{"model", "direction"}),
		TradesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "warroom_trades_total",
			Help: "Paper trades by action.",
		}, []string{"action"}),
		ProviderErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "warroom_provider_errors_total",
			Help: "Upstream provider failures by endpoint.",
		}, []string{"endpoint"}),
		CommandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "warroom_commands_total",
			Help: "Operator commands processed by name.",
		}, []string{"command"}),
	}
}

// Handler returns the scrape handler for the private registry.
func (s *Set) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// Server is the metrics HTTP listener.
type Server struct {
	srv *http.Server
}

// NewServer mounts /metrics and /healthz on addr. An empty addr disables
// the listener.
func NewServer(addr string, set *Set) *Server {
	if addr == "" {
		return nil
	}
	r := mux.NewRouter()
	r.Handle("/metrics", set.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}).Methods(http.MethodGet)

	return &Server{srv: &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}}
}

// Start serves in the background. Nil-safe.
func (s *Server) Start() {
	if s == nil {
		return
	}
	go func() {
		log.Info().Str("addr", s.srv.Addr).Msg("metrics listener up")
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics listener failed")
		}
	}()
}

// Stop shuts the listener down. Nil-safe.
func (s *Server) Stop(ctx context.Context) {
	if s == nil {
		return
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("metrics shutdown failed")
	}
}
