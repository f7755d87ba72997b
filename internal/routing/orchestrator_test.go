package routing

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"callshield/internal/backend"
	"callshield/internal/calls"
	"callshield/internal/detection"
	"callshield/internal/history"
	"callshield/internal/notify"
	"callshield/internal/settings"
	"callshield/pkg/logger"
)

type stubBackend struct {
	mu        sync.Mutex
	responses []backend.RouteResponse
	routed    []backend.RouteRequest
	statuses  []calls.NotifyStatus
	updates   []string
	reachable bool
}

func (s *stubBackend) RouteCall(ctx context.Context, req backend.RouteRequest) backend.RouteResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routed = append(s.routed, req)
	if len(s.responses) == 0 {
		return backend.UnavailableResponse()
	}
	r := s.responses[0]
	s.responses = s.responses[1:]
	return r
}

func (s *stubBackend) NotifyCallStatus(ctx context.Context, callerID string, status calls.NotifyStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, status)
	return true
}

func (s *stubBackend) RegisterDevice(ctx context.Context, deviceID, phoneNumber string) bool {
	return s.reachable
}
func (s *stubBackend) TestConnection(ctx context.Context) bool { return s.reachable }
func (s *stubBackend) GetRoutingConfig(ctx context.Context) (map[string]any, bool) {
	return map[string]any{"spamDetection": true}, s.reachable
}

func (s *stubBackend) UpdateConfig(baseURL, apiKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, baseURL+"|"+apiKey)
}

type spySource struct {
	supported, permitted bool
	startErr             error
	calls                int
}

func (s *spySource) Supported() bool {
	s.calls++
	return s.supported
}

func (s *spySource) RequestPermissions(context.Context) bool {
	s.calls++
	return s.permitted
}

func (s *spySource) Start(context.Context, detection.Handlers) error {
	s.calls++
	return s.startErr
}

func (s *spySource) Stop()         {}
func (s *spySource) Running() bool { return false }

type fixture struct {
	orch     *Orchestrator
	backend  *stubBackend
	feed     *detection.Feed
	notices  *notify.Recorder
	history  *history.MemoryRepo
	settings *settings.MemoryStore
}

func newFixture(t *testing.T, cfg settings.RoutingConfig, responses ...backend.RouteResponse) *fixture {
	t.Helper()
	f := &fixture{
		backend:  &stubBackend{responses: responses, reachable: true},
		feed:     detection.NewFeed(nil),
		notices:  &notify.Recorder{},
		history:  history.NewMemoryRepo(0),
		settings: settings.NewMemoryStore(cfg),
	}
	f.orch = New(Options{
		DeviceID: "dev-1",
		Backend:  f.backend,
		Settings: f.settings,
		Source:   f.feed,
		Notifier: f.notices,
		History:  history.NewService(f.history),
		Logger:   logger.Discard(),
	})
	return f
}

func enabled() settings.RoutingConfig {
	c := settings.Defaults()
	c.Enabled = true
	return c
}

func (f *fixture) emit(t *testing.T, caller string, status calls.EventStatus) {
	t.Helper()
	if err := f.feed.Emit(context.Background(), calls.Event{CallerID: caller, Status: status}); err != nil {
		t.Fatalf("emit: %v", err)
	}
}

func TestOrchestrator_AllowRejectRedirect(t *testing.T) {
	f := newFixture(t, enabled(),
		backend.RouteResponse{Success: true, Action: backend.ActionAllow},
		backend.RouteResponse{Success: true, Action: backend.ActionReject},
		backend.RouteResponse{Success: true, Action: backend.ActionRedirect, RedirectNumber: "+15551234567"},
	)
	if err := f.orch.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < 3; i++ {
		f.emit(t, "+15559876543", calls.EventIncoming)
	}

	s := f.orch.Stats()
	if s.TotalCalls != 3 || s.RoutedCalls != 1 || s.RejectedCalls != 1 {
		t.Fatalf("unexpected stats: %+v", s)
	}
	if s.LastCall == nil || s.LastCall.CallerID != "+15559876543" || s.LastCall.Action != calls.OutcomeRedirected {
		t.Fatalf("unexpected last call: %+v", s.LastCall)
	}

	want := []calls.NotifyStatus{calls.NotifyAnswered, calls.NotifyRejected, calls.NotifyAnswered}
	if len(f.backend.statuses) != len(want) {
		t.Fatalf("expected %v, got %v", want, f.backend.statuses)
	}
	for i := range want {
		if f.backend.statuses[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, f.backend.statuses)
		}
	}
	if f.backend.routed[0].DeviceID != "dev-1" || f.backend.routed[0].Action != backend.RequestRoute {
		t.Fatalf("unexpected route request: %+v", f.backend.routed[0])
	}

	// AutoReject is off, so only the redirect produces a notice.
	ns := f.notices.Notices()
	if len(ns) != 1 || ns[0].Title != NoticeCallRedirected {
		t.Fatalf("unexpected notices: %+v", ns)
	}

	entries, _ := f.history.Recent(context.Background(), 10)
	if len(entries) != 3 || entries[0].RedirectTo != "+15551234567" || entries[1].Action != calls.OutcomeRejected {
		t.Fatalf("unexpected history: %+v", entries)
	}
}

func TestOrchestrator_AutoRejectNotifies(t *testing.T) {
	cfg := enabled()
	cfg.AutoReject = true
	f := newFixture(t, cfg, backend.RouteResponse{Success: true, Action: backend.ActionReject})
	if err := f.orch.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.emit(t, "+1", calls.EventIncoming)

	ns := f.notices.Notices()
	if len(ns) != 1 || ns[0].Title != NoticeCallBlocked || ns[0].Message != "Blocked incoming call from +1" {
		t.Fatalf("unexpected notices: %+v", ns)
	}
}

func TestOrchestrator_RedirectWithoutTargetHasNoNotice(t *testing.T) {
	f := newFixture(t, enabled(), backend.RouteResponse{Success: true, Action: backend.ActionRedirect})
	_ = f.orch.Start(context.Background())
	f.emit(t, "+1", calls.EventIncoming)

	if n := f.notices.Notices(); len(n) != 0 {
		t.Fatalf("expected no notices, got %+v", n)
	}
	if s := f.orch.Stats(); s.RoutedCalls != 1 {
		t.Fatalf("expected routed call counted, got %+v", s)
	}
}

func TestOrchestrator_UnknownActionOnlyLogs(t *testing.T) {
	f := newFixture(t, enabled(), backend.RouteResponse{Success: true, Action: backend.Action("voicemail")})
	_ = f.orch.Start(context.Background())
	f.emit(t, "+1", calls.EventIncoming)

	s := f.orch.Stats()
	if s.TotalCalls != 1 || s.RoutedCalls != 0 || s.RejectedCalls != 0 || s.UnknownCalls != 1 || s.LastCall.Action != calls.OutcomeUnknown {
		t.Fatalf("unexpected stats: %+v", s)
	}
}

func TestOrchestrator_StartDisabledNeverTouchesSource(t *testing.T) {
	src := &spySource{supported: true, permitted: true}
	o := New(Options{Backend: &stubBackend{}, Source: src, Settings: settings.NewMemoryStore(settings.Defaults()), Logger: logger.Discard()})

	if err := o.Start(context.Background()); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
	if src.calls != 0 {
		t.Fatalf("expected no source calls, got %d", src.calls)
	}
}

func TestOrchestrator_StartFailures(t *testing.T) {
	cases := map[string]struct {
		src    *spySource
		err    error
		notice string
	}{
		"unsupported": {&spySource{}, ErrUnsupportedPlatform, NoticeNotSupported},
		"denied":      {&spySource{supported: true}, ErrPermissionDenied, NoticePermissionsRequired},
		"setup":       {&spySource{supported: true, permitted: true, startErr: detection.ErrUnsupportedPlatform}, detection.ErrUnsupportedPlatform, NoticeSetupFailed},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec := &notify.Recorder{}
			o := New(Options{Backend: &stubBackend{}, Source: tc.src, Settings: settings.NewMemoryStore(enabled()), Notifier: rec, Logger: logger.Discard()})

			if err := o.Start(context.Background()); !errors.Is(err, tc.err) {
				t.Fatalf("expected %v, got %v", tc.err, err)
			}
			if ns := rec.Notices(); len(ns) != 1 || ns[0].Title != tc.notice {
				t.Fatalf("expected %q notice, got %+v", tc.notice, ns)
			}
			if o.Running() {
				t.Fatalf("expected idle")
			}
		})
	}
}

func TestOrchestrator_StartStopLifecycle(t *testing.T) {
	f := newFixture(t, enabled())
	ctx := context.Background()
	if err := f.orch.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := f.orch.Start(ctx); err != nil {
		t.Fatalf("second start should be a no-op, got %v", err)
	}
	if !f.orch.Running() {
		t.Fatalf("expected running")
	}

	f.orch.Stop()
	if f.orch.Running() {
		t.Fatalf("expected stopped")
	}
	if err := f.feed.Emit(ctx, calls.Event{CallerID: "+1", Status: calls.EventIncoming}); !errors.Is(err, detection.ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning after stop, got %v", err)
	}
	f.orch.Stop()
}

func TestOrchestrator_UnreachableBackendResolvesToAllow(t *testing.T) {
	srv := httptest.NewServer(nil)
	url := srv.URL
	srv.Close()

	client := backend.New(backend.Options{BaseURL: url, Timeout: 200 * time.Millisecond, Logger: logger.Discard()})
	feed := detection.NewFeed(nil)
	cfg := enabled()
	cfg.BackendURL = url
	o := New(Options{DeviceID: "d", Backend: client, Source: feed, Settings: settings.NewMemoryStore(cfg), Logger: logger.Discard()})
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := feed.Emit(context.Background(), calls.Event{CallerID: "+1", Status: calls.EventIncoming}); err != nil {
		t.Fatalf("emit: %v", err)
	}

	s := o.Stats()
	if s.TotalCalls != 1 || s.RoutedCalls != 0 || s.RejectedCalls != 0 || s.LastCall.Action != calls.OutcomeAllowed {
		t.Fatalf("unexpected stats: %+v", s)
	}
}

func TestOrchestrator_ForwardingDisabledDecidesLocally(t *testing.T) {
	cfg := enabled()
	cfg.ForwardToBackend = false
	f := newFixture(t, cfg, backend.RouteResponse{Success: true, Action: backend.ActionReject})
	_ = f.orch.Start(context.Background())
	f.emit(t, "+1", calls.EventIncoming)
	f.emit(t, "+1", calls.EventDisconnected)

	if len(f.backend.routed) != 0 || len(f.backend.statuses) != 0 {
		t.Fatalf("expected no backend traffic, got routed=%d statuses=%v", len(f.backend.routed), f.backend.statuses)
	}
	entries, _ := f.history.Recent(context.Background(), 1)
	if len(entries) != 1 || entries[0].Message != messageForwardingDisabled || entries[0].Action != calls.OutcomeAllowed {
		t.Fatalf("unexpected history: %+v", entries)
	}
}

func TestOrchestrator_AnsweredAndDisconnectedOnlyNotify(t *testing.T) {
	f := newFixture(t, enabled())
	_ = f.orch.Start(context.Background())
	f.emit(t, "+1", calls.EventAnswered)
	f.emit(t, "+1", calls.EventDisconnected)

	if s := f.orch.Stats(); s.TotalCalls != 0 {
		t.Fatalf("expected no counted calls, got %+v", s)
	}
	if len(f.backend.statuses) != 2 || f.backend.statuses[0] != calls.NotifyAnswered || f.backend.statuses[1] != calls.NotifyMissed {
		t.Fatalf("unexpected statuses: %v", f.backend.statuses)
	}
}

func TestOrchestrator_ResetStats(t *testing.T) {
	f := newFixture(t, enabled(), backend.RouteResponse{Success: true, Action: backend.ActionReject})
	_ = f.orch.Start(context.Background())
	f.emit(t, "+1", calls.EventIncoming)

	f.orch.ResetStats()
	s := f.orch.Stats()
	if s.TotalCalls != 0 || s.RoutedCalls != 0 || s.RejectedCalls != 0 || s.LastCall != nil {
		t.Fatalf("expected zeroed stats, got %+v", s)
	}
}

func TestOrchestrator_UpdateConfiguration(t *testing.T) {
	f := newFixture(t, settings.Defaults())
	ctx := context.Background()

	if _, err := f.orch.UpdateConfiguration(ctx, settings.Patch{BackendURL: settings.String("not a url")}); !errors.Is(err, settings.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if len(f.backend.updates) != 0 {
		t.Fatalf("invalid config must not reach the client")
	}

	got, err := f.orch.UpdateConfiguration(ctx, settings.Patch{AutoReject: settings.Bool(true)})
	if err != nil || !got.AutoReject {
		t.Fatalf("unexpected result %+v err=%v", got, err)
	}
	if len(f.backend.updates) != 0 {
		t.Fatalf("non-backend change must not reconfigure the client")
	}

	_, err = f.orch.UpdateConfiguration(ctx, settings.Patch{BackendURL: settings.String("https://api.example.com"), APIKey: settings.String("sk_live_12345678")})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(f.backend.updates) != 1 || f.backend.updates[0] != "https://api.example.com|sk_live_12345678" {
		t.Fatalf("unexpected client updates: %v", f.backend.updates)
	}
	stored, _ := f.settings.Load(ctx)
	if !stored.AutoReject || stored.BackendURL != "https://api.example.com" {
		t.Fatalf("unexpected stored config: %+v", stored)
	}
}

func TestOrchestrator_Initialize(t *testing.T) {
	f := newFixture(t, settings.Defaults())
	f.backend.reachable = false
	if err := f.orch.Initialize(context.Background()); err != nil {
		t.Fatalf("unreachable backend must not fail initialize: %v", err)
	}
	if len(f.backend.updates) != 1 || f.backend.updates[0] != settings.DefaultBackendURL+"|" {
		t.Fatalf("expected stored config applied, got %v", f.backend.updates)
	}
}

func TestOrchestrator_DisablingWhileActiveStopsRouting(t *testing.T) {
	f := newFixture(t, enabled(), backend.RouteResponse{Success: true, Action: backend.ActionAllow})
	ctx := context.Background()
	if err := f.orch.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := f.orch.UpdateConfiguration(ctx, settings.Patch{Enabled: settings.Bool(false)}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if f.orch.Running() || f.feed.Running() {
		t.Fatalf("expected routing to stop when disabled")
	}
	err := f.feed.Emit(ctx, calls.Event{CallerID: "+15559876543", Status: calls.EventIncoming})
	if !errors.Is(err, detection.ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
	if s := f.orch.Stats(); s.TotalCalls != 0 {
		t.Fatalf("expected no routed calls, got %+v", s)
	}
	if len(f.backend.routed) != 0 {
		t.Fatalf("expected no backend requests, got %d", len(f.backend.routed))
	}

	if err := f.orch.Start(ctx); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled on restart, got %v", err)
	}
}

type gatedBackend struct {
	*stubBackend
	entered chan struct{}
	release chan struct{}
}

func (g *gatedBackend) RouteCall(ctx context.Context, req backend.RouteRequest) backend.RouteResponse {
	close(g.entered)
	<-g.release
	return backend.RouteResponse{Success: true, Action: backend.ActionReject}
}

func TestOrchestrator_ResetDuringCallKeepsCountersConsistent(t *testing.T) {
	gb := &gatedBackend{
		stubBackend: &stubBackend{reachable: true},
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	feed := detection.NewFeed(nil)
	orch := New(Options{
		DeviceID: "dev-1",
		Backend:  gb,
		Settings: settings.NewMemoryStore(enabled()),
		Source:   feed,
		Notifier: &notify.Recorder{},
		Logger:   logger.Discard(),
	})
	ctx := context.Background()
	if err := orch.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- feed.Emit(ctx, calls.Event{CallerID: "+1234567890", Status: calls.EventIncoming})
	}()
	<-gb.entered
	orch.ResetStats()
	close(gb.release)
	if err := <-done; err != nil {
		t.Fatalf("emit: %v", err)
	}

	s := orch.Stats()
	if s.TotalCalls != 0 || s.RejectedCalls != 0 || s.Pending() != 0 {
		t.Fatalf("expected the in-flight call to be dropped after reset, got %+v", s)
	}
}
