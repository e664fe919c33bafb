// Package server exposes the monitor over HTTP: sign-in and logout, the
// guarded dashboard area, websocket tabs and the metrics endpoint.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/sessionwatch"
	"github.com/MrEthical07/sessionwatch/internal/config"
	"github.com/MrEthical07/sessionwatch/metrics/export/prometheus"
	"github.com/MrEthical07/sessionwatch/middleware"
	"github.com/MrEthical07/sessionwatch/record"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Authenticator verifies credentials against the backend.
type Authenticator interface {
	SignIn(ctx context.Context, username, password string) (record.Principal, error)
}

// Throttle budgets failed sign-ins per username and client IP.
type Throttle interface {
	CheckLogin(ctx context.Context, username, ip string) error
	IncrementLogin(ctx context.Context, username, ip string) error
	ResetLogin(ctx context.Context, username, ip string) error
}

// Options wires a [Server].
type Options struct {
	Config  *config.Config
	Monitor *sessionwatch.Monitor
	Auth    Authenticator
	// Throttle may be nil to disable sign-in throttling.
	Throttle Throttle
	// Redis, when set, is pinged by the health endpoint.
	Redis  redis.UniversalClient
	Logger *zap.Logger
}

// Server is the HTTP surface of one monitor.
type Server struct {
	cfg      *config.Config
	monitor  *sessionwatch.Monitor
	auth     Authenticator
	throttle Throttle
	redis    redis.UniversalClient
	logger   *zap.Logger
	upgrader websocket.Upgrader
	handler  http.Handler
}

// New validates opts and builds the route table.
func New(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, errors.New("server config required")
	}
	if opts.Monitor == nil {
		return nil, errors.New("server monitor required")
	}
	if opts.Auth == nil {
		return nil, errors.New("server authenticator required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	s := &Server{
		cfg:      opts.Config,
		monitor:  opts.Monitor,
		auth:     opts.Auth,
		throttle: opts.Throttle,
		redis:    opts.Redis,
		logger:   opts.Logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	s.handler = s.routes()
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	routes := s.cfg.Routes

	mux.HandleFunc("GET "+routes.SignInPath, s.handleSignInPage)
	mux.HandleFunc("POST "+routes.SignInPath, s.handleSignIn)
	mux.HandleFunc("POST /auth/logout", s.handleLogout)
	mux.HandleFunc("GET /auth/session", s.handleSession)
	mux.HandleFunc("GET /ws", s.handleTab)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	guard := middleware.Guard(s.monitor, middleware.Options{Logger: s.logger.Named("guard")})
	protected := strings.TrimRight(routes.ProtectedPrefix, "/") + "/"
	mux.Handle(protected, guard(http.HandlerFunc(s.handleDashboard)))

	if s.cfg.Metrics.Enabled {
		mux.Handle("GET "+s.cfg.Metrics.Path, prometheus.NewPrometheusExporter(s.monitor).Handler())
	}

	return s.logRequests(mux)
}

// Run serves on the configured address until ctx is done, then shuts down
// gracefully within the configured timeout.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Server.Addr,
		Handler:      s.handler,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	s.logger.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status": "ok",
		"tabs":   s.monitor.OpenTabs(),
		"audit": map[string]uint64{
			"delivered": s.monitor.AuditDelivered(),
			"dropped":   s.monitor.AuditDropped(),
		},
	}
	if s.redis != nil {
		start := time.Now()
		if err := s.redis.Ping(r.Context()).Err(); err != nil {
			s.logger.Warn("health redis ping failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "redis": err.Error()})
			return
		}
		status["redisLatencyMs"] = time.Since(start).Milliseconds()
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	rec, _ := middleware.RecordFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"path":        r.URL.Path,
		"user":        rec.User,
		"permissions": rec.PermissionList,
		"expiresAtMs": rec.ExpiresAtMs,
	})
}

// checkOrigin accepts same-host upgrades and the configured origins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.Server.AllowedOrigins {
		if strings.EqualFold(origin, allowed) {
			return true
		}
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
