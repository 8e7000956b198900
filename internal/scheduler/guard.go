package scheduler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/buildharbor/signing-adapter/pkg/model"
)

// StatusChecker is the slice of the scheduler API the guard needs.
type StatusChecker interface {
	Status(ctx context.Context, clientID, experienceName, platform, sdkVersion string) (JobStatus, error)
}

// Guard rejects a new run while a build for the same target is still in
// flight, so two runs never mutate one credential set concurrently.
type Guard struct {
	logger  *zap.Logger
	checker StatusChecker
}

// NewGuard creates a conflict guard over the given status source.
func NewGuard(logger *zap.Logger, checker StatusChecker) *Guard {
	return &Guard{logger: logger, checker: checker}
}

// EnsureNoConflict returns ErrBuildInProgress when a job for the target is
// already running. It must be called before any credential state is touched.
func (g *Guard) EnsureNoConflict(ctx context.Context, clientID, experienceName, platform, sdkVersion string) error {
	status, err := g.checker.Status(ctx, clientID, experienceName, platform, sdkVersion)
	if err != nil {
		return err
	}
	if status.InProgress {
		g.logger.Warn("guard.build_conflict",
			zap.String("client_id", clientID),
			zap.String("experience", experienceName),
			zap.String("sdk", sdkVersion),
			zap.String("job_id", status.JobID))
		return fmt.Errorf("%w: job %s", model.ErrBuildInProgress, status.JobID)
	}
	return nil
}
