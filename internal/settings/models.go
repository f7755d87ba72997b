package settings

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidConfig = errors.New("settings: invalid config")

const (
	DefaultBackendURL = "http://localhost:8000"
	minAPIKeyLen      = 8
)

// RoutingConfig is the user-editable routing configuration. It is read before
// every routing decision.
type RoutingConfig struct {
	Enabled          bool   `json:"enabled"`
	BackendURL       string `json:"backend_url"`
	APIKey           string `json:"api_key,omitempty"`
	AutoReject       bool   `json:"auto_reject"`
	ForwardToBackend bool   `json:"forward_to_backend"`
}

func Defaults() RoutingConfig {
	return RoutingConfig{
		Enabled:          false,
		BackendURL:       DefaultBackendURL,
		AutoReject:       false,
		ForwardToBackend: true,
	}
}

// Validate rejects configurations that must never reach the network.
func (c RoutingConfig) Validate() error {
	return c.validateAt(time.Now())
}

func (c RoutingConfig) validateAt(now time.Time) error {
	u, err := url.Parse(strings.TrimSpace(c.BackendURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: backend url must be an http(s) URL with a host, got %q", ErrInvalidConfig, c.BackendURL)
	}
	return validateAPIKey(c.APIKey, now)
}

func validateAPIKey(key string, now time.Time) error {
	if key == "" {
		return nil
	}
	if strings.ContainsAny(key, " \t\r\n") {
		return fmt.Errorf("%w: api key must not contain whitespace", ErrInvalidConfig)
	}
	if len(key) < minAPIKeyLen {
		return fmt.Errorf("%w: api key must be at least %d characters", ErrInvalidConfig, minAPIKeyLen)
	}
	if strings.Count(key, ".") != 2 {
		return nil
	}

	// Three dot-separated segments: treat as a JWT and catch unusable tokens early.
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(key, claims); err != nil {
		return fmt.Errorf("%w: api key looks like a JWT but cannot be parsed", ErrInvalidConfig)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return fmt.Errorf("%w: api key has an invalid exp claim", ErrInvalidConfig)
	}
	if exp != nil && !exp.After(now) {
		return fmt.Errorf("%w: api key token expired at %s", ErrInvalidConfig, exp.UTC().Format(time.RFC3339))
	}
	return nil
}

// Masked returns a copy safe to show in UIs and logs.
func (c RoutingConfig) Masked() RoutingConfig {
	if c.APIKey == "" {
		return c
	}
	k := c.APIKey
	if len(k) > 4 {
		k = k[len(k)-4:]
	}
	c.APIKey = "****" + k
	return c
}

// Patch is a partial update; nil fields are left unchanged.
type Patch struct {
	Enabled          *bool   `json:"enabled,omitempty"`
	BackendURL       *string `json:"backend_url,omitempty"`
	APIKey           *string `json:"api_key,omitempty"`
	AutoReject       *bool   `json:"auto_reject,omitempty"`
	ForwardToBackend *bool   `json:"forward_to_backend,omitempty"`
}

func (p Patch) Apply(c RoutingConfig) RoutingConfig {
	if p.Enabled != nil {
		c.Enabled = *p.Enabled
	}
	if p.BackendURL != nil {
		c.BackendURL = strings.TrimSpace(*p.BackendURL)
	}
	if p.APIKey != nil {
		c.APIKey = strings.TrimSpace(*p.APIKey)
	}
	if p.AutoReject != nil {
		c.AutoReject = *p.AutoReject
	}
	if p.ForwardToBackend != nil {
		c.ForwardToBackend = *p.ForwardToBackend
	}
	return c
}

// TouchesBackend reports whether the patch changes how the backend is reached.
func (p Patch) TouchesBackend() bool {
	return p.BackendURL != nil || p.APIKey != nil
}

func Bool(v bool) *bool       { return &v }
func String(v string) *string { return &v }
