package settings

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
)

func signed(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "dev", "exp": exp.Unix()}).SignedString([]byte("k"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func TestDefaults(t *testing.T) {
	d := Defaults()
	if d.Enabled || d.AutoReject || !d.ForwardToBackend || d.BackendURL != DefaultBackendURL || d.APIKey != "" {
		t.Fatalf("unexpected defaults: %+v", d)
	}
	if err := d.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	cases := map[string]struct {
		cfg RoutingConfig
		ok  bool
	}{
		"https ok":       {RoutingConfig{BackendURL: "https://api.example.com"}, true},
		"no scheme":      {RoutingConfig{BackendURL: "api.example.com"}, false},
		"ftp":            {RoutingConfig{BackendURL: "ftp://api.example.com"}, false},
		"no host":        {RoutingConfig{BackendURL: "http://"}, false},
		"short key":      {RoutingConfig{BackendURL: DefaultBackendURL, APIKey: "abc"}, false},
		"key whitespace": {RoutingConfig{BackendURL: DefaultBackendURL, APIKey: "abc def ghi"}, false},
		"opaque key":     {RoutingConfig{BackendURL: DefaultBackendURL, APIKey: "sk_live_12345678"}, true},
		"garbage jwt":    {RoutingConfig{BackendURL: DefaultBackendURL, APIKey: "aaaa.bbbb.cccc"}, false},
		"expired jwt":    {RoutingConfig{BackendURL: DefaultBackendURL, APIKey: signed(t, now.Add(-time.Hour))}, false},
		"live jwt":       {RoutingConfig{BackendURL: DefaultBackendURL, APIKey: signed(t, now.Add(time.Hour))}, true},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := tc.cfg.validateAt(now)
			if tc.ok && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestPatchApply(t *testing.T) {
	base := Defaults()
	p := Patch{Enabled: Bool(true), BackendURL: String(" http://new:9000 ")}
	got := p.Apply(base)
	if !got.Enabled || got.BackendURL != "http://new:9000" || !got.ForwardToBackend {
		t.Fatalf("unexpected result: %+v", got)
	}
	if !p.TouchesBackend() {
		t.Fatalf("expected backend change")
	}
	if (Patch{AutoReject: Bool(true)}).TouchesBackend() {
		t.Fatalf("auto reject does not touch backend")
	}
	if base.Enabled {
		t.Fatalf("apply must not mutate the input")
	}
}

func TestMasked(t *testing.T) {
	c := RoutingConfig{APIKey: "sk_live_12345678"}
	if got := c.Masked().APIKey; got != "****5678" {
		t.Fatalf("unexpected mask %q", got)
	}
	if c.APIKey != "sk_live_12345678" {
		t.Fatalf("mask must not mutate the input")
	}
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore(Defaults())
	ctx := context.Background()
	c, _ := s.Load(ctx)
	c.Enabled = true
	if err := s.Save(ctx, c); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, _ := s.Load(ctx)
	if !got.Enabled {
		t.Fatalf("expected saved value")
	}
}

func TestHashRoundTripKeepsFallbackForMissingFields(t *testing.T) {
	fb := Defaults()
	got := decodeHash(map[string]string{fieldEnabled: "true", fieldAutoReject: "bogus"}, fb)
	if !got.Enabled || got.AutoReject || got.BackendURL != fb.BackendURL || !got.ForwardToBackend {
		t.Fatalf("unexpected decode: %+v", got)
	}
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("CALLSHIELD_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CALLSHIELD_TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()
	ctx := context.Background()
	device := "test-" + time.Now().Format("150405.000000")
	defer rdb.Del(ctx, RedisKey(device))

	s := NewRedisStore(rdb, device, Defaults())
	c, err := s.Load(ctx)
	if err != nil || c != Defaults() {
		t.Fatalf("expected fallback, got %+v err=%v", c, err)
	}
	c.Enabled, c.APIKey = true, "sk_live_12345678"
	if err := s.Save(ctx, c); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.Load(ctx)
	if err != nil || got != c {
		t.Fatalf("expected %+v, got %+v err=%v", c, got, err)
	}
}
