package repository

import (
	"context"
	"time"

	"github.com/edgelabs/edgedeploy/internal/domain"
)

// DeploymentRepository stores the deployment ledger.
type DeploymentRepository interface {
	CreateDeployment(ctx context.Context, deployment *domain.Deployment) error
	UpdateDeploymentStatus(ctx context.Context, update domain.DeploymentStatusUpdate) error
	ListDeployments(ctx context.Context, limit, offset int) ([]domain.Deployment, error)
	ListDeploymentsWithStatusUpdatedBefore(ctx context.Context, status string, updatedBefore time.Time) ([]domain.Deployment, error)
	GetDeploymentByID(ctx context.Context, deploymentID string) (*domain.Deployment, error)
	DeleteDeployment(ctx context.Context, deploymentID string) error
}

// ServerRepository persists the logical server registry.
type ServerRepository interface {
	GetServerByID(ctx context.Context, serverID string) (*domain.Server, error)
	UpdateServerWorker(ctx context.Context, serverID, workerName, status string) error
}
