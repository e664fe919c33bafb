// Package upstream signs users in against the dashboard's REST backend.
//
// The backend owns credentials. This package only posts the sign-in form and
// turns the response into a [record.Principal] ready for Monitor.SignIn.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/sessionwatch/record"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

var (
	// ErrMissingCredentials is returned before any request when the username
	// or password is empty.
	ErrMissingCredentials = errors.New("username and password required")
	// ErrInvalidCredentials is matched by every backend rejection.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUpstreamUnavailable wraps transport failures and 5xx responses.
	ErrUpstreamUnavailable = errors.New("sign-in backend unavailable")
	// ErrInvalidResponse is returned for a 200 without a usable principal.
	ErrInvalidResponse = errors.New("invalid sign-in response")
)

// DefaultPermissions is attached to every principal when Config leaves
// PermissionList nil.
var DefaultPermissions = []string{"MERCHANT_ADMIN", "SUPER_ADMIN"}

const maxResponseBytes = 1 << 20

// RejectedError is a non-2xx answer from the backend. It matches
// ErrInvalidCredentials.
type RejectedError struct {
	Status int
	Detail string
}

func (e *RejectedError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s (status %d)", ErrInvalidCredentials, e.Status)
	}
	return fmt.Sprintf("%s: %s", ErrInvalidCredentials, e.Detail)
}

func (e *RejectedError) Unwrap() error { return ErrInvalidCredentials }

// Config configures a [Client].
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	PermissionList []string
	HTTPClient     *http.Client
	Logger         *zap.Logger
}

// Client posts sign-in forms to {BaseURL}/login/user.
type Client struct {
	endpoint    string
	http        *http.Client
	permissions []string
	logger      *zap.Logger
	parser      *jwt.Parser
}

// New validates cfg and creates a client.
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("upstream BaseURL must be an absolute URL: %q", cfg.BaseURL)
	}
	if cfg.HTTPClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		cfg.HTTPClient = &http.Client{Timeout: timeout}
	}
	if cfg.PermissionList == nil {
		cfg.PermissionList = DefaultPermissions
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Client{
		endpoint:    strings.TrimRight(base.String(), "/") + "/login/user",
		http:        cfg.HTTPClient,
		permissions: append([]string(nil), cfg.PermissionList...),
		logger:      cfg.Logger,
		parser:      jwt.NewParser(),
	}, nil
}

type errorBody struct {
	Detail json.RawMessage `json:"detail"`
}

// SignIn exchanges a username and password for a principal.
func (c *Client) SignIn(ctx context.Context, username, password string) (record.Principal, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return record.Principal{}, ErrMissingCredentials
	}

	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return record.Principal{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("sign-in request failed", zap.String("endpoint", c.endpoint), zap.Error(err))
		return record.Principal{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return record.Principal{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	c.logger.Debug("sign-in response",
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	switch {
	case resp.StatusCode >= 500:
		return record.Principal{}, fmt.Errorf("%w: status %d", ErrUpstreamUnavailable, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return record.Principal{}, &RejectedError{Status: resp.StatusCode, Detail: detailOf(body)}
	}

	var p record.Principal
	if err := json.Unmarshal(body, &p); err != nil {
		return record.Principal{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if !p.Valid() {
		return record.Principal{}, fmt.Errorf("%w: missing access_token", ErrInvalidResponse)
	}

	p.PermissionList = append([]string(nil), c.permissions...)
	c.fillFromClaims(&p)
	if p.User.Username == "" {
		p.User.Username = username
	}
	return p, nil
}

// fillFromClaims reads the access token without verifying it. The backend
// verifies its own tokens; the claims only fill gaps in the user object.
func (c *Client) fillFromClaims(p *record.Principal) {
	claims := jwt.MapClaims{}
	if _, _, err := c.parser.ParseUnverified(p.AccessToken, claims); err != nil {
		c.logger.Debug("access token is not a readable jwt", zap.Error(err))
		return
	}
	if p.User.ID == "" {
		if sub, err := claims.GetSubject(); err == nil && sub != "" {
			p.User.ID = sub
		} else if id, ok := claims["user_id"]; ok {
			p.User.ID = fmt.Sprint(id)
		}
	}
	if p.User.Role == "" {
		if role, ok := claims["role"].(string); ok {
			p.User.Role = role
		}
	}
	if p.User.Email == "" {
		if email, ok := claims["email"].(string); ok {
			p.User.Email = email
		}
	}
}

func detailOf(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil || len(eb.Detail) == 0 {
		return strings.TrimSpace(string(body))
	}
	var s string
	if err := json.Unmarshal(eb.Detail, &s); err == nil {
		return s
	}
	return string(eb.Detail)
}
