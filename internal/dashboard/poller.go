package dashboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"callshield/internal/backend"
	"callshield/internal/backendserver"
	"callshield/pkg/logger"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultInterval = 30 * time.Second

	PathSummary = "/api/analytics/summary"
	PathCalls   = "/api/calls"
)

var ErrCallNotFound = errors.New("dashboard: call not found")

// Fetcher is the part of backend.Client the poller uses.
type Fetcher interface {
	Send(ctx context.Context, method, path string, body, out any) (int, error)
}

type Options struct {
	Client   Fetcher
	Interval time.Duration
	Logger   *slog.Logger
	// Out receives one rendered snapshot per refresh in Run. Defaults to stdout.
	Out io.Writer
	Now func() time.Time
}

// Snapshot is one refresh of the dashboard. Each panel carries its own error
// so a failing endpoint only blanks its own table.
type Snapshot struct {
	FetchedAt time.Time

	Summary    *backendserver.Summary
	SummaryErr error

	Calls    []backendserver.CallRecord
	CallsErr error

	Healthy   bool
	HealthErr error
}

type Poller struct {
	client   Fetcher
	interval time.Duration
	log      *slog.Logger
	out      io.Writer
	now      func() time.Time

	mu   sync.RWMutex
	last Snapshot
}

func NewPoller(opts Options) *Poller {
	p := &Poller{
		client:   opts.Client,
		interval: opts.Interval,
		log:      logger.OrDefault(opts.Logger),
		out:      opts.Out,
		now:      opts.Now,
	}
	if p.interval <= 0 {
		p.interval = DefaultInterval
	}
	if p.out == nil {
		p.out = os.Stdout
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Refresh fetches the summary, recent calls and health concurrently.
func (p *Poller) Refresh(ctx context.Context) Snapshot {
	snap := Snapshot{FetchedAt: p.now()}

	var group errgroup.Group
	group.Go(func() error {
		var sum backendserver.Summary
		if _, err := p.client.Send(ctx, http.MethodGet, PathSummary, nil, &sum); err != nil {
			snap.SummaryErr = err
			return nil
		}
		snap.Summary = &sum
		return nil
	})
	group.Go(func() error {
		var records []backendserver.CallRecord
		if _, err := p.client.Send(ctx, http.MethodGet, PathCalls, nil, &records); err != nil {
			snap.CallsErr = err
			return nil
		}
		snap.Calls = records
		return nil
	})
	group.Go(func() error {
		var health backend.HealthResponse
		if _, err := p.client.Send(ctx, http.MethodGet, backend.PathHealth, nil, &health); err != nil {
			snap.HealthErr = err
			return nil
		}
		snap.Healthy = health.Status == "healthy"
		return nil
	})
	_ = group.Wait()

	for panel, err := range map[string]error{"summary": snap.SummaryErr, "calls": snap.CallsErr, "health": snap.HealthErr} {
		if err != nil {
			p.log.Warn("dashboard panel failed", "panel", panel, "err", err)
		}
	}

	p.mu.Lock()
	p.last = snap
	p.mu.Unlock()
	return snap
}

// Last returns the most recent snapshot.
func (p *Poller) Last() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last
}

// Run refreshes and renders immediately, then on every tick until ctx ends.
func (p *Poller) Run(ctx context.Context, plain bool) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if err := Render(p.out, p.Refresh(ctx), plain); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// CallDetails fetches one call record and its persona transcript by id.
func (p *Poller) CallDetails(ctx context.Context, id string) (backendserver.CallDetails, error) {
	var out backendserver.CallDetails
	_, err := p.client.Send(ctx, http.MethodGet, PathCalls+"/"+url.PathEscape(id), nil, &out)
	var herr *backend.HTTPError
	if errors.As(err, &herr) && herr.Status == http.StatusNotFound {
		return backendserver.CallDetails{}, fmt.Errorf("%w: %s", ErrCallNotFound, id)
	}
	if err != nil {
		return backendserver.CallDetails{}, err
	}
	return out, nil
}
