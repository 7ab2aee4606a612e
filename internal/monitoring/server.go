package monitoring

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vanetguard/vanetguard/internal/logging"
	"go.uber.org/zap"
)

// Server exposes the metrics registry, a health probe and the latest run
// report over HTTP.
type Server struct {
	logger  *zap.Logger
	metrics *Metrics
	feed    *Feed
	server  *http.Server
	started time.Time

	httpDuration *prometheus.HistogramVec

	reportMu sync.RWMutex
	report   any
}

// NewServer creates a server listening on addr once Start is called.
func NewServer(logger *zap.Logger, addr string, metrics *Metrics) *Server {
	s := &Server{
		logger:  logger,
		metrics: metrics,
		feed:    NewFeed(logger.Named("feed")),
		started: time.Now(),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	metrics.Registry().MustRegister(s.httpDuration)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})).Methods(http.MethodGet)
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/report", s.handleReport).Methods(http.MethodGet)
	router.Handle("/events", s.feed).Methods(http.MethodGet)
	router.Use(s.loggingMiddleware, s.metricsMiddleware)
	return router
}

// Start binds the listener and serves in the background. The listener is
// bound synchronously so address errors surface here.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("Starting monitoring server", zap.String("address", ln.Addr().String()))

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Monitoring server error", zap.Error(err))
		}
	}()
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping monitoring server")
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	// hijacked websocket connections are not closed by Shutdown
	s.feed.Close()
	return s.server.Shutdown(ctx)
}

// Publish pushes an event to every /events subscriber.
func (s *Server) Publish(eventType string, data any) error {
	return s.feed.Publish(eventType, data)
}

// SetReport replaces the document served on /report.
func (s *Server) SetReport(report any) {
	s.reportMu.Lock()
	s.report = report
	s.reportMu.Unlock()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "healthy",
		"uptime":       time.Since(s.started).String(),
		"feed_clients": s.feed.Clients(),
		"system":       CollectSystemStats(r.Context()),
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	s.reportMu.RLock()
	report := s.report
	s.reportMu.RUnlock()

	if report == nil {
		logging.FromContext(r.Context(), s.logger).Debug("Report requested before any run finished")
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "no finished run yet",
		})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	rw.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		logger := s.logger.With(zap.String("request_id", requestID))

		next.ServeHTTP(wrapped, r.WithContext(logging.ToContext(r.Context(), logger)))

		logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", wrapped.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tmpl, err := cur.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		s.httpDuration.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.status)).
			Observe(time.Since(start).Seconds())
	})
}
