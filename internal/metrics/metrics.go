// Package metrics exposes decode engine counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/njyeung/netplay/player"
)

const shutdownTimeout = 5 * time.Second

var allStates = []player.State{
	player.StateIdle,
	player.StateLoading,
	player.StateBuffering,
	player.StatePlaying,
	player.StatePaused,
	player.StateStopped,
	player.StateError,
}

// Metrics holds Prometheus counters and gauges for the player. It implements
// player.Metrics.
type Metrics struct {
	registry *prometheus.Registry

	framesDecoded   *prometheus.CounterVec
	packetsDropped  *prometheus.CounterVec
	framesPresented prometheus.Counter
	queueDepth      *prometheus.GaugeVec
	state           *prometheus.GaugeVec
	rebuffers       prometheus.Counter
	seeks           *prometheus.CounterVec
}

var _ player.Metrics = (*Metrics)(nil)

// New creates and registers the player metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		framesDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netplay_frames_decoded_total",
			Help: "Decoded units by stream (video frames or audio PCM blocks)",
		}, []string{"stream"}),
		packetsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netplay_packets_dropped_total",
			Help: "Packets dropped because they failed to decode",
		}, []string{"stream"}),
		framesPresented: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "netplay_frames_presented_total",
			Help: "Video frames moved to the frame buffer",
		}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "netplay_queue_depth",
			Help: "Decoded units waiting in each queue",
		}, []string{"stream"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "netplay_state",
			Help: "1 for the current playback state, 0 otherwise",
		}, []string{"state"}),
		rebuffers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "netplay_rebuffers_total",
			Help: "Times playback ran dry and went back to buffering",
		}),
		seeks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netplay_seeks_total",
			Help: "Seeks by result",
		}, []string{"result"}),
	}

	registry.MustRegister(
		m.framesDecoded,
		m.packetsDropped,
		m.framesPresented,
		m.queueDepth,
		m.state,
		m.rebuffers,
		m.seeks,
	)
	m.StateChanged(player.StateIdle)
	return m
}

// Registry returns the private registry, for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) FrameDecoded(kind player.StreamKind) {
	m.framesDecoded.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) PacketDropped(kind player.StreamKind) {
	m.packetsDropped.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) FramePresented() {
	m.framesPresented.Inc()
}

func (m *Metrics) QueueDepth(kind player.StreamKind, n int) {
	m.queueDepth.WithLabelValues(kind.String()).Set(float64(n))
}

func (m *Metrics) StateChanged(to player.State) {
	for _, s := range allStates {
		v := 0.0
		if s == to {
			v = 1
		}
		m.state.WithLabelValues(s.String()).Set(v)
	}
}

func (m *Metrics) Rebuffered() {
	m.rebuffers.Inc()
}

func (m *Metrics) Seeked(ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.seeks.WithLabelValues(result).Inc()
}

// Handler returns an http.Handler that serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Router serves /metrics and a /healthz probe.
func (m *Metrics) Router(log *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(requestLogger(log))
	r.Method(http.MethodGet, "/metrics", m.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

// Serve runs the metrics endpoint on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, log *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           m.Router(log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("metrics server starting", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("metrics server stopped")
	return nil
}

// responseWriter captures the status code for request logging.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func requestLogger(log *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrap := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrap, r)
			log.Debug("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", wrap.status),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}
