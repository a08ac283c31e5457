package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rewired-gh/econoracle/internal/gate"
	"github.com/rewired-gh/econoracle/internal/logger"
)

// Rotator trims stored history.
type Rotator interface {
	Rotate(ctx context.Context, auditRetention time.Duration) (int, error)
}

// SweepTask removes expired cooldown entries and rotates stored snapshots and
// audit rows. r may be nil.
func SweepTask(g *gate.Gate, r Rotator, auditRetention time.Duration) Maintenance {
	return func(ctx context.Context) error {
		var errs []error
		if _, err := g.CleanupExpired(ctx, 0); err != nil {
			errs = append(errs, err)
		}
		if r != nil {
			removed, err := r.Rotate(ctx, auditRetention)
			if err != nil {
				errs = append(errs, err)
			} else if removed > 0 {
				logger.Info("Rotated %d old snapshots", removed)
			}
		}
		return errors.Join(errs...)
	}
}
