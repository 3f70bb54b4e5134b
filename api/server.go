package api

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"github.com/tanpawarit/Chative-Realty-Call-Agent/agent/agents/orchestrator"
	statex "github.com/tanpawarit/Chative-Realty-Call-Agent/agent/state"
	"github.com/tanpawarit/Chative-Realty-Call-Agent/api/transcript"
	metricsx "github.com/tanpawarit/Chative-Realty-Call-Agent/pkg/metrics"
)

const defaultTurnTimeout = 8 * time.Second

// CallService is the orchestrator surface the transport drives.
type CallService interface {
	HandleTurn(ctx context.Context, callID string, transcript string) (orchestrator.Reply, error)
	EndCall(ctx context.Context, callID string, outcome string) error
	Snapshot(ctx context.Context, callID string) (*statex.CallState, error)
}

type Server struct {
	calls       CallService
	hub         *transcript.Hub
	publisher   transcript.Publisher
	metrics     *metricsx.Metrics
	turnTimeout time.Duration
}

type Option func(*Server)

// WithTranscripts enables the websocket endpoints and forwards webhook
// transcripts to publisher. The hub always receives them.
func WithTranscripts(hub *transcript.Hub, publisher transcript.Publisher) Option {
	return func(s *Server) {
		s.hub = hub
		s.publisher = publisher
	}
}

func WithMetrics(m *metricsx.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

func WithTurnTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.turnTimeout = d
		}
	}
}

func NewServer(calls CallService, opts ...Option) (*Server, error) {
	if calls == nil {
		return nil, errors.New("call service is required")
	}
	s := &Server{
		calls:       calls,
		turnTimeout: defaultTurnTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Router registers every route.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(requestLogger)

	r.HandleFunc("/retell-webhook", s.handleWebhook).Methods(http.MethodPost)
	r.HandleFunc("/webhook", s.handleWebhook).Methods(http.MethodPost)

	calls := r.PathPrefix("/calls/{call_id}").Subrouter()
	calls.HandleFunc("", s.handleSnapshot).Methods(http.MethodGet)
	calls.HandleFunc("/end", s.handleEndCall).Methods(http.MethodPost)

	if s.hub != nil {
		r.HandleFunc("/ws-transcript/{call_id}", s.handleTranscriptIngest)
		r.HandleFunc("/ws/calls/{call_id}", s.handleTranscriptSubscribe)
	}

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	return r
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack keeps websocket upgrades working through the logger.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}
