package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/fatih/color"

	"callshield/pkg/logger"
)

// Notifier shows a short user-facing notice. Implementations must not block
// the caller for long and never fail the routing flow.
type Notifier interface {
	Notice(ctx context.Context, title, message string)
}

// LogNotifier writes notices as structured log lines.
type LogNotifier struct {
	Log *slog.Logger
}

func (n LogNotifier) Notice(ctx context.Context, title, message string) {
	l := n.Log
	if l == nil {
		l = logger.From(ctx)
	}
	l.InfoContext(ctx, "notice", "title", title, "message", message)
}

// ConsoleNotifier prints notices to a terminal.
type ConsoleNotifier struct {
	mu    sync.Mutex
	w     io.Writer
	title *color.Color
}

// NewConsoleNotifier writes to w; plain disables ANSI colors.
func NewConsoleNotifier(w io.Writer, plain bool) *ConsoleNotifier {
	title := color.New(color.FgYellow, color.Bold)
	if plain {
		title.DisableColor()
	}
	return &ConsoleNotifier{w: w, title: title}
}

func (n *ConsoleNotifier) Notice(ctx context.Context, title, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, _ = fmt.Fprintf(n.w, "%s %s\n", n.title.Sprintf("[%s]", title), message)
}

// Multi fans a notice out to several notifiers in order.
type Multi []Notifier

func (m Multi) Notice(ctx context.Context, title, message string) {
	for _, n := range m {
		if n != nil {
			n.Notice(ctx, title, message)
		}
	}
}

// Recorder keeps notices in memory; tests use it to assert on side effects.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
}

type Notice struct {
	Title   string
	Message string
}

func (r *Recorder) Notice(ctx context.Context, title, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, Notice{Title: title, Message: message})
}

func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notice, len(r.notices))
	copy(out, r.notices)
	return out
}
