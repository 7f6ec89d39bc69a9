package repo

import (
	"context"
	"errors"
	"time"

	"github.com/hamed0406/subcheck/internal/domain"
)

var ErrNotFound = errors.New("scan not found")

// ScanStore persists scans, their progress and final outcome. Swap in any
// DB adapter.
//
// Get returns per-host results. List returns scans newest first without
// per-host results; finished scans carry Summary instead.
type ScanStore interface {
	Create(ctx context.Context, s *domain.Scan) error
	Get(ctx context.Context, id domain.ScanID) (*domain.Scan, error)
	List(ctx context.Context) ([]*domain.Scan, error)
	UpdateProgress(ctx context.Context, id domain.ScanID, p domain.Progress) error
	Finish(ctx context.Context, id domain.ScanID, out domain.RunOutcome, finishedAt time.Time) error
}
