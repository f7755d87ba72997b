package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"callshield/internal/backend"
	"callshield/internal/calls"
	"callshield/internal/detection"
	"callshield/internal/history"
	"callshield/internal/notify"
	"callshield/internal/reporting"
	"callshield/internal/settings"
	"callshield/pkg/logger"
)

var (
	ErrDisabled            = errors.New("routing: call routing is disabled in configuration")
	ErrUnsupportedPlatform = errors.New("routing: call detection not supported on this platform")
	ErrPermissionDenied    = errors.New("routing: call detection permissions denied")
)

// Notice titles shown to the user.
const (
	NoticeNotSupported        = "Not Supported"
	NoticePermissionsRequired = "Permissions Required"
	NoticeSetupFailed         = "Setup Failed"
	NoticeCallBlocked         = "Call Blocked"
	NoticeCallRedirected      = "Call Redirected"
)

// Backend is the subset of the backend client the orchestrator needs.
type Backend interface {
	RouteCall(ctx context.Context, req backend.RouteRequest) backend.RouteResponse
	NotifyCallStatus(ctx context.Context, callerID string, status calls.NotifyStatus) bool
	RegisterDevice(ctx context.Context, deviceID, phoneNumber string) bool
	TestConnection(ctx context.Context) bool
	GetRoutingConfig(ctx context.Context) (map[string]any, bool)
	UpdateConfig(baseURL, apiKey string)
}

// Recorder receives one entry per terminal routing action.
type Recorder interface {
	Record(ctx context.Context, e history.Entry) error
}

type Options struct {
	DeviceID    string
	PhoneNumber string

	Backend  Backend
	Settings settings.Store
	Source   detection.Source
	Stats    *reporting.Tracker
	Notifier notify.Notifier
	History  Recorder
	Logger   *slog.Logger
}

// Orchestrator owns the routing lifecycle (Idle/Active) and the per-call
// decision flow. Handlers may be invoked from any goroutine.
type Orchestrator struct {
	deviceID    string
	phoneNumber string

	backend  Backend
	store    settings.Store
	source   detection.Source
	stats    *reporting.Tracker
	notifier notify.Notifier
	history  Recorder
	log      *slog.Logger

	// mu serializes Start/Stop/UpdateConfiguration.
	mu     sync.Mutex
	active bool

	cfgMu sync.RWMutex
	cfg   settings.RoutingConfig
}

func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		deviceID:    opts.DeviceID,
		phoneNumber: opts.PhoneNumber,
		backend:     opts.Backend,
		store:       opts.Settings,
		source:      opts.Source,
		stats:       opts.Stats,
		notifier:    opts.Notifier,
		history:     opts.History,
		log:         logger.OrDefault(opts.Logger),
		cfg:         settings.Defaults(),
	}
	if o.store == nil {
		o.store = settings.NewMemoryStore(settings.Defaults())
	}
	if o.source == nil {
		o.source = detection.Unsupported{}
	}
	if o.stats == nil {
		o.stats = reporting.NewTracker()
	}
	if o.notifier == nil {
		o.notifier = notify.LogNotifier{Log: o.log}
	}
	return o
}

// Initialize pushes the stored configuration to the backend client, probes
// the backend and registers the device. An unreachable backend is only a
// warning; a failed settings load is an error.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	cfg, err := o.loadConfig(ctx)
	if err != nil {
		return err
	}
	o.backend.UpdateConfig(cfg.BackendURL, cfg.APIKey)

	if !o.backend.TestConnection(ctx) {
		o.log.WarnContext(ctx, "backend server is not reachable, call routing may not work properly", "backend_url", cfg.BackendURL)
	}
	if !o.backend.RegisterDevice(ctx, o.deviceID, o.phoneNumber) {
		o.log.WarnContext(ctx, "device registration failed", "device_id", o.deviceID)
	}
	o.log.InfoContext(ctx, "call routing service initialized", "device_id", o.deviceID)
	return nil
}

// Start transitions Idle to Active. It is a no-op when already Active.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active {
		return nil
	}

	cfg, err := o.loadConfig(ctx)
	if err != nil {
		return err
	}
	if !cfg.Enabled {
		o.log.WarnContext(ctx, "call routing is disabled in configuration")
		return ErrDisabled
	}
	if !o.source.Supported() {
		o.notifier.Notice(ctx, NoticeNotSupported, "Call detection is not available on this platform.")
		return ErrUnsupportedPlatform
	}
	if !o.source.RequestPermissions(ctx) {
		o.notifier.Notice(ctx, NoticePermissionsRequired, "Please grant all phone permissions to enable call routing.")
		return ErrPermissionDenied
	}

	o.backend.UpdateConfig(cfg.BackendURL, cfg.APIKey)
	if err := o.source.Start(ctx, detection.Handlers{
		OnIncoming:     o.HandleIncoming,
		OnAnswered:     o.HandleAnswered,
		OnDisconnected: o.HandleDisconnected,
	}); err != nil {
		o.notifier.Notice(ctx, NoticeSetupFailed, "Call detection could not be started.")
		return fmt.Errorf("routing: start detection: %w", err)
	}

	o.active = true
	o.log.InfoContext(ctx, "call routing started", "device_id", o.deviceID)
	return nil
}

// Stop transitions to Idle unconditionally.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.source.Stop()
	o.active = false
	o.log.Info("call routing stopped", "device_id", o.deviceID)
}

func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active && o.source.Running()
}

// UpdateConfiguration validates and persists p. A backend URL or key change
// is applied to the client before it returns. Disabling routing while Active
// unsubscribes from the source and returns to Idle.
func (o *Orchestrator) UpdateConfiguration(ctx context.Context, p settings.Patch) (settings.RoutingConfig, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	cur, err := o.loadConfig(ctx)
	if err != nil {
		return settings.RoutingConfig{}, err
	}
	next := p.Apply(cur)
	if err := next.Validate(); err != nil {
		return settings.RoutingConfig{}, err
	}
	if err := o.store.Save(ctx, next); err != nil {
		return settings.RoutingConfig{}, fmt.Errorf("routing: save settings: %w", err)
	}
	o.setCached(next)

	if p.TouchesBackend() {
		o.backend.UpdateConfig(next.BackendURL, next.APIKey)
	}
	if !next.Enabled && o.active {
		o.source.Stop()
		o.active = false
		o.log.InfoContext(ctx, "call routing stopped by configuration", "device_id", o.deviceID)
	}
	o.log.InfoContext(ctx, "routing configuration updated", "enabled", next.Enabled, "backend_url", next.BackendURL)
	return next, nil
}

func (o *Orchestrator) Configuration(ctx context.Context) (settings.RoutingConfig, error) {
	return o.loadConfig(ctx)
}

func (o *Orchestrator) Stats() reporting.Stats { return o.stats.Snapshot() }

func (o *Orchestrator) ResetStats() { o.stats.Reset() }

func (o *Orchestrator) TestBackendConnection(ctx context.Context) bool {
	return o.backend.TestConnection(ctx)
}

func (o *Orchestrator) RoutingConfig(ctx context.Context) (map[string]any, bool) {
	return o.backend.GetRoutingConfig(ctx)
}

// HandleIncoming runs the routing flow for one incoming call. It never fails:
// backend problems resolve to allow.
func (o *Orchestrator) HandleIncoming(ctx context.Context, ev calls.Event) {
	log := o.log.With("caller_id", ev.CallerID, "device_id", o.deviceID)
	log.InfoContext(ctx, "processing incoming call")

	cfg := o.configForCall(ctx)
	ticket := o.stats.Begin(ev.CallerID, ev.Timestamp)

	var resp backend.RouteResponse
	if cfg.ForwardToBackend {
		resp = o.backend.RouteCall(ctx, backend.RouteRequest{
			CallerID:  ev.CallerID,
			Timestamp: ev.Timestamp.UTC().Format(backend.TimestampLayout),
			DeviceID:  o.deviceID,
			Action:    backend.RequestRoute,
		})
	} else {
		resp = localDecision()
	}

	d := decide(resp)
	switch d.Outcome {
	case calls.OutcomeAllowed:
		log.InfoContext(ctx, "allowing call")
	case calls.OutcomeRejected:
		log.InfoContext(ctx, "rejecting call")
		if cfg.AutoReject {
			o.notifier.Notice(ctx, NoticeCallBlocked, fmt.Sprintf("Blocked incoming call from %s", ev.CallerID))
		}
	case calls.OutcomeRedirected:
		if resp.RedirectNumber != "" {
			log.InfoContext(ctx, "redirecting call", "redirect_to", resp.RedirectNumber)
			o.notifier.Notice(ctx, NoticeCallRedirected, fmt.Sprintf("Call from %s is being redirected to %s", ev.CallerID, resp.RedirectNumber))
		} else {
			log.InfoContext(ctx, "no redirect number provided")
		}
	default:
		log.WarnContext(ctx, "unknown routing action", "action", string(resp.Action))
	}
	if !o.stats.Complete(ticket, d.Outcome) {
		log.DebugContext(ctx, "stats were reset during the call, outcome not counted")
	}

	o.record(ctx, ev, d)
	if cfg.ForwardToBackend {
		o.backend.NotifyCallStatus(ctx, ev.CallerID, calls.NotifyStatusFor(d.Outcome))
	}
}

func (o *Orchestrator) HandleAnswered(ctx context.Context, ev calls.Event) {
	o.log.InfoContext(ctx, "call answered", "caller_id", ev.CallerID)
	if o.configForCall(ctx).ForwardToBackend {
		o.backend.NotifyCallStatus(ctx, ev.CallerID, calls.NotifyAnswered)
	}
}

func (o *Orchestrator) HandleDisconnected(ctx context.Context, ev calls.Event) {
	o.log.InfoContext(ctx, "call disconnected", "caller_id", ev.CallerID)
	if o.configForCall(ctx).ForwardToBackend {
		o.backend.NotifyCallStatus(ctx, ev.CallerID, calls.NotifyMissed)
	}
}

func (o *Orchestrator) record(ctx context.Context, ev calls.Event, d Decision) {
	if o.history == nil {
		return
	}
	e := history.Entry{
		DeviceID:  o.deviceID,
		CallerID:  ev.CallerID,
		Action:    d.Outcome,
		Message:   d.Response.Message,
		BackendOK: d.Response.Success,
		CreatedAt: time.Now().UTC(),
	}
	if d.Outcome == calls.OutcomeRedirected {
		e.RedirectTo = d.Response.RedirectNumber
	}
	if err := o.history.Record(ctx, e); err != nil {
		o.log.WarnContext(ctx, "history append failed", "caller_id", ev.CallerID, "err", err)
	}
}

func (o *Orchestrator) loadConfig(ctx context.Context) (settings.RoutingConfig, error) {
	cfg, err := o.store.Load(ctx)
	if err != nil {
		return settings.RoutingConfig{}, fmt.Errorf("routing: load settings: %w", err)
	}
	o.setCached(cfg)
	return cfg, nil
}

// configForCall reads the current configuration, falling back to the last
// one seen when the store is unavailable.
func (o *Orchestrator) configForCall(ctx context.Context) settings.RoutingConfig {
	cfg, err := o.loadConfig(ctx)
	if err == nil {
		return cfg
	}
	o.log.WarnContext(ctx, "using cached routing configuration", "err", err)
	o.cfgMu.RLock()
	defer o.cfgMu.RUnlock()
	return o.cfg
}

func (o *Orchestrator) setCached(cfg settings.RoutingConfig) {
	o.cfgMu.Lock()
	o.cfg = cfg
	o.cfgMu.Unlock()
}
