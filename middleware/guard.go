package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/MrEthical07/sessionwatch"
	"github.com/MrEthical07/sessionwatch/record"
	"go.uber.org/zap"
)

// NamespaceCookie carries the session namespace chosen at sign-in.
const NamespaceCookie = "sw_ns"

type recordContextKey struct{}

// Options configures [Guard].
type Options struct {
	// Namespace picks the namespace of a request. Defaults to [NamespaceFromRequest].
	Namespace func(r *http.Request) string
	Logger    *zap.Logger
}

// PrincipalFromContext returns the principal injected by [Guard].
func PrincipalFromContext(ctx context.Context) (record.Principal, bool) {
	rec, ok := RecordFromContext(ctx)
	if !ok {
		return record.Principal{}, false
	}
	return rec.Principal, true
}

// RecordFromContext returns the session record injected by [Guard].
func RecordFromContext(ctx context.Context) (*record.Record, bool) {
	rec, ok := ctx.Value(recordContextKey{}).(*record.Record)
	return rec, ok && rec != nil
}

// NamespaceFromRequest reads the namespace cookie. A missing cookie maps to
// the monitor's default namespace.
func NamespaceFromRequest(r *http.Request) string {
	c, err := r.Cookie(NamespaceCookie)
	if err != nil {
		return ""
	}
	return c.Value
}

// ClientIP returns the first X-Forwarded-For hop, falling back to the
// connection's remote host.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Guard sends requests without a live session to the sign-in path. Requests
// with one renew it and carry the record in their context.
func Guard(m *sessionwatch.Monitor, opts Options) func(http.Handler) http.Handler {
	if opts.Namespace == nil {
		opts.Namespace = NamespaceFromRequest
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := sessionwatch.WithClientIP(r.Context(), ClientIP(r))
			ns := opts.Namespace(r)

			rec, ok, err := m.Touch(ctx, ns)
			if err != nil {
				opts.Logger.Warn("guard touch failed",
					zap.String("namespace", ns),
					zap.String("path", r.URL.Path),
					zap.Error(err),
				)
				rec, ok = m.Session(ctx, ns)
			}
			if !ok || rec == nil {
				redirectToSignIn(w, r, m.Config().Routes.SignInPath)
				return
			}

			ctx = context.WithValue(ctx, recordContextKey{}, rec)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// redirectToSignIn uses 303 for non-GET so browsers follow with a GET;
// fetch callers asking for JSON get a bare 401.
func redirectToSignIn(w http.ResponseWriter, r *http.Request, signIn string) {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	code := http.StatusFound
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		code = http.StatusSeeOther
	}
	http.Redirect(w, r, signIn, code)
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
