package deploy

import (
	"context"
	"time"

	"log/slog"

	"github.com/edgelabs/edgedeploy/internal/domain"
	"github.com/edgelabs/edgedeploy/internal/repository"
	"github.com/edgelabs/edgedeploy/pkg/config"
)

const (
	defaultSweepInterval = time.Minute
	sweepTimeout         = 15 * time.Second
)

const interruptedMessage = "deployment interrupted before completion"

// Sweeper fails deployments abandoned mid-flight: records stuck in the
// deploying state longer than the TTL, typically after a crash between
// the ledger insert and the platform upload.
type Sweeper struct {
	deployments repository.DeploymentRepository
	logger      *slog.Logger
	interval    time.Duration
	ttl         time.Duration

	now func() time.Time
}

// NewSweeper constructs a sweeper. It returns nil when sweeping is
// disabled by configuration.
func NewSweeper(deployments repository.DeploymentRepository, logger *slog.Logger, cfg config.APIConfig) *Sweeper {
	if deployments == nil {
		return nil
	}
	if cfg.DeployingTTL <= 0 {
		return nil
	}
	interval := cfg.SweepInterval
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		deployments: deployments,
		logger:      logger.With("component", "sweeper"),
		interval:    interval,
		ttl:         cfg.DeployingTTL,
		now:         time.Now,
	}
}

// Run executes the sweep loop until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	if s == nil {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("deployment sweeper started", "interval", s.interval, "ttl", s.ttl)
	s.runIteration(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("deployment sweeper stopped")
			return
		case <-ticker.C:
			s.runIteration(ctx)
		}
	}
}

func (s *Sweeper) runIteration(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, sweepTimeout)
	defer cancel()

	cutoff := s.now().UTC().Add(-s.ttl)
	stale, err := s.deployments.ListDeploymentsWithStatusUpdatedBefore(ctx, StatusDeploying, cutoff)
	if err != nil {
		s.logger.Warn("list stale deployments failed", "error", err)
		return
	}

	for _, d := range stale {
		update := domain.DeploymentStatusUpdate{
			DeploymentID: d.ID,
			Status:       StatusFailed,
			Metadata:     mustJSON(map[string]string{"error": interruptedMessage}),
		}
		if err := s.deployments.UpdateDeploymentStatus(ctx, update); err != nil {
			s.logger.Warn("mark stale deployment failed", "deployment_id", d.ID, "error", err)
			continue
		}
		s.logger.Info("stale deployment marked failed", "deployment_id", d.ID, "worker", d.WorkerName)
	}
}
