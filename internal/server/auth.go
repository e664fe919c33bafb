package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/MrEthical07/sessionwatch"
	"github.com/MrEthical07/sessionwatch/internal/rate"
	"github.com/MrEthical07/sessionwatch/middleware"
	"github.com/MrEthical07/sessionwatch/record"
	"github.com/MrEthical07/sessionwatch/upstream"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type signInResponse struct {
	Session  *record.Record `json:"session"`
	Redirect string         `json:"redirect"`
}

type sessionResponse struct {
	Session     *record.Record `json:"session"`
	RemainingMs int64          `json:"remainingMs"`
}

func (s *Server) handleSignInPage(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("sign in required\n"))
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form")
		return
	}
	username := strings.TrimSpace(r.PostForm.Get("username"))
	password := r.PostForm.Get("password")
	ip := middleware.ClientIP(r)
	ctx := sessionwatch.WithClientIP(r.Context(), ip)
	ns := s.namespaceFor(r)

	if s.throttle != nil {
		if err := s.throttle.CheckLogin(ctx, username, ip); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				s.monitor.ReportSignInFailure(ctx, ns, username, true, err)
				writeError(w, http.StatusTooManyRequests, "Too many sign-in attempts, try again later")
				return
			}
			s.logger.Warn("sign-in throttle unavailable", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "Sign-in temporarily unavailable")
			return
		}
	}

	principal, err := s.auth.SignIn(ctx, username, password)
	if err != nil {
		s.signInFailed(w, r, ns, username, ip, err)
		return
	}

	rec, err := s.monitor.SignIn(ctx, ns, principal)
	if err != nil {
		s.logger.Error("sign-in store failed", zap.String("namespace", ns), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "Sign-in temporarily unavailable")
		return
	}

	if s.throttle != nil {
		if err := s.throttle.ResetLogin(ctx, username, ip); err != nil {
			s.logger.Warn("sign-in throttle reset failed", zap.Error(err))
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.NamespaceCookie,
		Value:    ns,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cfg.Server.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, signInResponse{Session: rec, Redirect: s.cfg.Routes.HomePath})
}

func (s *Server) signInFailed(w http.ResponseWriter, r *http.Request, ns, username, ip string, err error) {
	ctx := sessionwatch.WithClientIP(r.Context(), ip)

	switch {
	case errors.Is(err, upstream.ErrMissingCredentials):
		writeError(w, http.StatusBadRequest, "Username and password are required")
	case errors.Is(err, upstream.ErrInvalidCredentials):
		limited := false
		if s.throttle != nil {
			if terr := s.throttle.IncrementLogin(ctx, username, ip); errors.Is(terr, rate.ErrRateLimited) {
				limited = true
			} else if terr != nil {
				s.logger.Warn("sign-in throttle increment failed", zap.Error(terr))
			}
		}
		s.monitor.ReportSignInFailure(ctx, ns, username, limited, err)

		msg := "Wrong user credentials"
		var rejected *upstream.RejectedError
		if errors.As(err, &rejected) && rejected.Detail != "" {
			msg += ": " + rejected.Detail
		}
		writeError(w, http.StatusUnauthorized, msg)
	default:
		s.monitor.ReportSignInFailure(ctx, ns, username, false, err)
		s.logger.Warn("sign-in backend failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "Wrong user credentials")
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := sessionwatch.WithClientIP(r.Context(), middleware.ClientIP(r))
	ns := middleware.NamespaceFromRequest(r)
	if err := s.monitor.Logout(ctx, ns); err != nil {
		s.logger.Error("logout failed", zap.String("namespace", ns), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "Logout failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.monitor.Session(r.Context(), middleware.NamespaceFromRequest(r))
	if !ok {
		writeError(w, http.StatusUnauthorized, "no session")
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		Session:     rec,
		RemainingMs: rec.ExpiresAtMs - s.monitor.Now().UnixMilli(),
	})
}

// namespaceFor keeps the browser's existing namespace so every tab of it
// shares one record. A browser without one gets a fresh namespace.
func (s *Server) namespaceFor(r *http.Request) string {
	if ns := middleware.NamespaceFromRequest(r); ns != "" {
		return ns
	}
	return uuid.NewString()
}
