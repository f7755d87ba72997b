package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds everything the callshield processes read at startup.
// Values come from env, optionally layered over a YAML file (see LoadFile).
// Business packages receive the sub-structs they need, never raw env.
type Config struct {
	App       AppConfig
	Device    DeviceConfig
	Routing   RoutingConfig
	Settings  SettingsConfig
	Redis     RedisConfig
	History   HistoryConfig
	DB        DBConfig
	Auth      AuthConfig
	Server    ServerConfig
	Dashboard DashboardConfig
}

type AppConfig struct {
	Env string
	// Port of the agent control API. 0 disables the control API.
	Port int
}

type DeviceConfig struct {
	ID          string
	Platform    string
	PhoneNumber string
}

// RoutingConfig seeds the agent's mutable routing settings.
type RoutingConfig struct {
	Enabled          bool
	BackendURL       string
	APIKey           string
	Timeout          time.Duration
	AutoReject       bool
	ForwardToBackend bool

	// EventSource selects the device call-event source: feed or none.
	EventSource string
}

type SettingsConfig struct {
	// Store is memory or redis.
	Store string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

type HistoryConfig struct {
	// Store is memory or postgres.
	Store string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

type AuthConfig struct {
	JWTSecret      string
	JWTIssuer      string
	JWTAudience    string
	AccessTokenTTL time.Duration
}

// ServerConfig configures the reference routing backend.
type ServerConfig struct {
	Port            int
	APIKey          string
	RedirectNumbers []string
	BlockedNumbers  []string

	// DecoyPersonas answers spam Twilio calls with a talking persona
	// instead of dialing the redirect number.
	DecoyPersonas bool
}

type DashboardConfig struct {
	URL      string
	Interval time.Duration
}

const (
	DefaultBackendURL = "http://localhost:8000"
	DefaultTimeout    = 5 * time.Second
)

// Load reads configuration from the process environment.
func Load() (Config, error) {
	return load(os.Getenv)
}

// LoadFile reads a YAML (or any viper-supported) file. Keys are the env names
// in lower case (backend_url: ...); env vars still win over file values.
func LoadFile(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	v.AutomaticEnv()
	return load(func(key string) string { return v.GetString(key) })
}

type reader struct {
	get  func(string) string
	errs []error
}

func (r *reader) str(key, def string) string {
	if v := strings.TrimSpace(r.get(key)); v != "" {
		return v
	}
	return def
}

func (r *reader) secret(key string) string {
	return r.get(key)
}

func (r *reader) int(key string, def int) int {
	v := strings.TrimSpace(r.get(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s must be an integer, got %q", key, v))
		return def
	}
	return n
}

func (r *reader) bool(key string, def bool) bool {
	v := strings.TrimSpace(r.get(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s must be a boolean, got %q", key, v))
		return def
	}
	return b
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(r.get(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s must be a duration, got %q", key, v))
		return def
	}
	return d
}

func (r *reader) list(key string, def []string) []string {
	v := strings.TrimSpace(r.get(key))
	if v == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func load(get func(string) string) (Config, error) {
	r := &reader{get: get}
	c := Config{}

	c.App.Env = r.str("APP_ENV", "local")
	c.App.Port = r.int("APP_PORT", 8081)

	c.Device.ID = r.str("DEVICE_ID", defaultDeviceID())
	c.Device.Platform = r.str("DEVICE_PLATFORM", "mobile")
	c.Device.PhoneNumber = r.str("PHONE_NUMBER", "")

	c.Routing.Enabled = r.bool("ROUTING_ENABLED", false)
	c.Routing.BackendURL = r.str("BACKEND_URL", DefaultBackendURL)
	c.Routing.APIKey = strings.TrimSpace(r.secret("BACKEND_API_KEY"))
	c.Routing.Timeout = r.duration("BACKEND_TIMEOUT", DefaultTimeout)
	c.Routing.AutoReject = r.bool("AUTO_REJECT", false)
	c.Routing.ForwardToBackend = r.bool("FORWARD_TO_BACKEND", true)
	c.Routing.EventSource = r.str("EVENT_SOURCE", "feed")

	c.Settings.Store = r.str("SETTINGS_STORE", "memory")
	c.Redis.Host = r.str("REDIS_HOST", "")
	c.Redis.Port = r.int("REDIS_PORT", 6379)
	c.Redis.Password = r.secret("REDIS_PASSWORD")

	c.History.Store = r.str("HISTORY_STORE", "memory")
	c.DB.Host = r.str("DB_HOST", "")
	c.DB.Port = r.int("DB_PORT", 5432)
	c.DB.User = r.str("DB_USER", "")
	c.DB.Password = r.secret("DB_PASSWORD")
	c.DB.Name = r.str("DB_NAME", "")
	c.DB.SSLMode = r.str("DB_SSLMODE", "")

	c.Auth.JWTSecret = r.secret("JWT_SECRET")
	c.Auth.JWTIssuer = r.str("JWT_ISSUER", "")
	c.Auth.JWTAudience = r.str("JWT_AUDIENCE", "")
	c.Auth.AccessTokenTTL = r.duration("JWT_ACCESS_TTL", 12*time.Hour)

	c.Server.Port = r.int("BACKEND_SERVER_PORT", 8000)
	c.Server.APIKey = strings.TrimSpace(r.secret("BACKEND_SERVER_API_KEY"))
	c.Server.RedirectNumbers = r.list("REDIRECT_NUMBERS", []string{"+1800VOICEMAIL"})
	c.Server.BlockedNumbers = r.list("BLOCKED_NUMBERS", []string{"+1234567890", "spam"})
	c.Server.DecoyPersonas = r.bool("DECOY_PERSONAS", false)

	c.Dashboard.URL = r.str("DASHBOARD_URL", DefaultBackendURL)
	c.Dashboard.Interval = r.duration("DASHBOARD_INTERVAL", 30*time.Second)

	if err := joinErrors(r.errs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks everything every command needs. Agent-only requirements
// live in ValidateAgent.
func (c *Config) Validate() error {
	var errs []error

	if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port < 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port or 0, got %d", c.App.Port))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("BACKEND_SERVER_PORT must be a valid port, got %d", c.Server.Port))
	}
	if err := validateHTTPURL(c.Routing.BackendURL); err != nil {
		errs = append(errs, fmt.Errorf("BACKEND_URL %w", err))
	}
	if err := validateHTTPURL(c.Dashboard.URL); err != nil {
		errs = append(errs, fmt.Errorf("DASHBOARD_URL %w", err))
	}
	if c.Routing.Timeout <= 0 {
		errs = append(errs, errors.New("BACKEND_TIMEOUT must be positive"))
	}
	if c.Dashboard.Interval < time.Second {
		errs = append(errs, errors.New("DASHBOARD_INTERVAL must be at least 1s"))
	}
	switch c.Routing.EventSource {
	case "feed", "none":
	default:
		errs = append(errs, fmt.Errorf("EVENT_SOURCE must be one of feed, none, got %q", c.Routing.EventSource))
	}
	switch c.Settings.Store {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("SETTINGS_STORE must be one of memory, redis, got %q", c.Settings.Store))
	}
	switch c.History.Store {
	case "memory", "postgres":
	default:
		errs = append(errs, fmt.Errorf("HISTORY_STORE must be one of memory, postgres, got %q", c.History.Store))
	}
	if c.DB.SSLMode == "" {
		if c.IsProduction() && c.History.Store == "postgres" {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}
	if len(c.Server.RedirectNumbers) == 0 {
		errs = append(errs, errors.New("REDIRECT_NUMBERS must not be empty"))
	}

	return joinErrors(errs)
}

// ValidateAgent adds the checks that only matter for the device agent.
func (c Config) ValidateAgent() error {
	var errs []error

	if c.Device.ID == "" {
		errs = append(errs, errors.New("DEVICE_ID is required"))
	}
	if c.App.Port > 0 && c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required when the control API is enabled"))
	}
	if c.Auth.AccessTokenTTL <= 0 {
		errs = append(errs, errors.New("JWT_ACCESS_TTL must be positive"))
	}
	if c.Settings.Store == "redis" {
		if c.Redis.Host == "" {
			errs = append(errs, errors.New("REDIS_HOST is required when SETTINGS_STORE=redis"))
		}
		if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
			errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
		}
	}
	if c.History.Store == "postgres" {
		if c.DB.Host == "" {
			errs = append(errs, errors.New("DB_HOST is required when HISTORY_STORE=postgres"))
		}
		if c.DB.User == "" {
			errs = append(errs, errors.New("DB_USER is required when HISTORY_STORE=postgres"))
		}
		if c.DB.Name == "" {
			errs = append(errs, errors.New("DB_NAME is required when HISTORY_STORE=postgres"))
		}
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) BackendServerAddr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// PostgresDSN contains secrets; never log it.
func (c Config) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func defaultDeviceID() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "unknown-device"
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("must be a valid URL, got %q", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("must use http or https, got %q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("must include a host, got %q", raw)
	}
	return nil
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
