package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MrEthical07/sessionwatch"
	"github.com/MrEthical07/sessionwatch/internal/clock"
	"github.com/MrEthical07/sessionwatch/record"
	"github.com/stretchr/testify/require"
)

func newGuardTest(t *testing.T) (*sessionwatch.Monitor, *clock.Fake) {
	t.Helper()
	fake := clock.NewFake(time.UnixMilli(0))
	m, err := sessionwatch.New().WithClock(fake).Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m, fake
}

func signIn(t *testing.T, m *sessionwatch.Monitor, ns string) {
	t.Helper()
	p := record.Principal{
		AccessToken: "at-1",
		User:        record.User{ID: "u-1", Username: "ops@example.com"},
	}
	_, err := m.SignIn(context.Background(), ns, p)
	require.NoError(t, err)
}

func dashboardRequest(ns string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/dashboard/home", nil)
	if ns != "" {
		req.AddCookie(&http.Cookie{Name: NamespaceCookie, Value: ns})
	}
	return req
}

func TestGuardRedirectsWithoutSession(t *testing.T) {
	m, _ := newGuardTest(t)

	called := false
	h := Guard(m, Options{})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, dashboardRequest("ops"))

	require.False(t, called, "handler must not run without a session")
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "/auth/sign-in", rec.Header().Get("Location"))
}

func TestGuardJSONCallerGets401(t *testing.T) {
	m, _ := newGuardTest(t)
	h := Guard(m, Options{})(http.NotFoundHandler())

	req := dashboardRequest("ops")
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGuardPostUsesSeeOther(t *testing.T) {
	m, _ := newGuardTest(t)
	h := Guard(m, Options{})(http.NotFoundHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/dashboard/rides", nil))

	require.Equal(t, http.StatusSeeOther, rec.Code)
}

func TestGuardRenewsAndInjectsPrincipal(t *testing.T) {
	m, fake := newGuardTest(t)
	signIn(t, m, "ops")
	fake.AdvanceTo(time.UnixMilli(100000))

	var (
		got     record.Principal
		found   bool
		expires int64
	)
	h := Guard(m, Options{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, found = PrincipalFromContext(r.Context())
		rec, _ := RecordFromContext(r.Context())
		expires = rec.ExpiresAtMs
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, dashboardRequest("ops"))

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.True(t, found, "principal must be in the request context")
	require.Equal(t, "u-1", got.User.ID)
	require.Equal(t, int64(700000), expires)

	stored, ok := m.Session(context.Background(), "ops")
	require.True(t, ok)
	require.Equal(t, int64(700000), stored.ExpiresAtMs)
}

func TestGuardRejectsLapsedSession(t *testing.T) {
	m, fake := newGuardTest(t)
	signIn(t, m, "ops")
	fake.AdvanceTo(time.UnixMilli(600000))

	rec := httptest.NewRecorder()
	Guard(m, Options{})(http.NotFoundHandler()).ServeHTTP(rec, dashboardRequest("ops"))
	require.Equal(t, http.StatusFound, rec.Code)
}

func TestGuardNamespacesAreIsolated(t *testing.T) {
	m, _ := newGuardTest(t)
	signIn(t, m, "ops")

	rec := httptest.NewRecorder()
	Guard(m, Options{})(http.NotFoundHandler()).ServeHTTP(rec, dashboardRequest("finance"))
	require.Equal(t, http.StatusFound, rec.Code)
}

func TestGuardNilMonitor(t *testing.T) {
	rec := httptest.NewRecorder()
	Guard(nil, Options{})(http.NotFoundHandler()).ServeHTTP(rec, dashboardRequest(""))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAccessToken(t *testing.T) {
	m, _ := newGuardTest(t)
	signIn(t, m, "ops")
	h := RequireAccessToken(m, Options{})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{name: "missing", header: "", want: http.StatusUnauthorized},
		{name: "wrong", header: "Bearer other", want: http.StatusUnauthorized},
		{name: "not bearer", header: "Basic at-1", want: http.StatusUnauthorized},
		{name: "match", header: "Bearer at-1", want: http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := dashboardRequest("ops")
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			require.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.4:5555"
	require.Equal(t, "192.0.2.4", ClientIP(req))

	req.Header.Set("X-Forwarded-For", " 10.0.0.7 , 192.0.2.4")
	require.Equal(t, "10.0.0.7", ClientIP(req), "first forwarded hop wins")
}
