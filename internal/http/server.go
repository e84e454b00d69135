// Package http serves the operational endpoints and the optional message
// webhook.
package http

import (
	"context"
	"crypto/subtle"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"raskhody/internal/bot"
	"raskhody/internal/log"
	"raskhody/internal/metrics"
	"raskhody/internal/middleware/ratelimit"
	"raskhody/internal/middleware/security"
	"raskhody/internal/middleware/trace"
	"raskhody/internal/storage"
	"raskhody/internal/worker"
)

// HeaderWebhookSecret must match Options.WebhookSecret when one is set.
const HeaderWebhookSecret = "X-Webhook-Secret"

const (
	maxBodyBytes = 64 << 10
	readyTimeout = 2 * time.Second
)

// Pinger reports whether the store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Submitter runs jobs in per-key order. Implemented by worker.Pool.
type Submitter interface {
	Submit(ctx context.Context, key int64, job worker.Job) error
}

type Options struct {
	Addr string

	// Store backs /readyz.
	Store Pinger
	// Reader serves the expense summary route. Nil disables it.
	Reader storage.ExpenseReader
	// Handler serves POST /v1/messages. Nil disables it.
	Handler bot.MessageHandler
	// Pool orders webhook messages per user. Nil runs them inline.
	Pool Submitter

	Gatherer prometheus.Gatherer
	Metrics  *metrics.Metrics

	WebhookSecret string
	// RateLimit is the per-client request budget per minute on /v1 routes.
	RateLimit int
	// TrustedProxies lists CIDRs whose forwarding headers are believed.
	TrustedProxies []string

	Logger *log.Logger
}

type Server struct {
	http.Server
	opts         Options
	logger       *log.Logger
	limiter      *ratelimit.Limiter
	shutdownOnce sync.Once
}

func NewServer(opts Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		opts:    opts,
		logger:  opts.Logger.WithComponent(log.ComponentHTTP),
		limiter: ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimit}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))

	clientIP := security.NewClientIP()
	for _, cidr := range opts.TrustedProxies {
		if err := clientIP.AddTrustedProxy(cidr); err != nil {
			s.limiter.Stop()
			return nil, err
		}
	}
	api := func(h http.HandlerFunc) http.Handler {
		return s.limiter.Middleware(clientIP.Extract)(s.requireSecret(h))
	}
	if opts.Handler != nil {
		mux.Handle("POST /v1/messages", api(s.handleMessage))
	}
	if opts.Reader != nil {
		mux.Handle("GET /v1/users/{userID}/expenses", api(s.handleExpenses))
	}

	tracer := trace.NewMiddleware(opts.Logger, opts.Metrics)
	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           security.Headers(tracer.Middleware(mux)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", s.Addr)
		if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) requireSecret(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.opts.WebhookSecret != "" {
			got := r.Header.Get(HeaderWebhookSecret)
			if subtle.ConstantTimeCompare([]byte(got), []byte(s.opts.WebhookSecret)) != 1 {
				writeError(w, http.StatusUnauthorized, "invalid webhook secret")
				return
			}
		}
		next(w, r)
	}
}
