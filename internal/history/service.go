package history

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Repository is the persistence contract for history entries.
// It is append-only: there is no Update or Delete.
type Repository interface {
	Append(ctx context.Context, e Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

var ErrInvalidEntry = errors.New("history: invalid entry")

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

func (s *Service) Record(ctx context.Context, e Entry) error {
	if s.repo == nil {
		return errors.New("history: repository not configured")
	}
	if e.DeviceID == "" || e.Action == "" {
		return ErrInvalidEntry
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// Recent clamps limit to [1, MaxLimit]; zero or negative means DefaultLimit.
func (s *Service) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if s.repo == nil {
		return nil, errors.New("history: repository not configured")
	}
	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}
	return s.repo.Recent(ctx, limit)
}
