package deploy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/edgelabs/edgedeploy/internal/domain"
	"github.com/edgelabs/edgedeploy/internal/platform"
	"github.com/edgelabs/edgedeploy/internal/repository"
	"github.com/edgelabs/edgedeploy/pkg/config"
)

// Status constants for deployment records.
const (
	StatusDeploying = "deploying"
	StatusActive    = "active"
	StatusFailed    = "failed"
)

const serverStatusActive = "active"

// Service reconciles the deployment ledger against the remote
// script-hosting platform.
type Service struct {
	deployments repository.DeploymentRepository
	servers     repository.ServerRepository
	platform    platform.Client
	logger      *slog.Logger
	cfg         config.APIConfig

	now   func() time.Time
	newID func() string
}

// New returns a deployment service.
func New(deployments repository.DeploymentRepository, servers repository.ServerRepository, client platform.Client, logger *slog.Logger, cfg config.APIConfig) Service {
	return Service{
		deployments: deployments,
		servers:     servers,
		platform:    client,
		logger:      logger,
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
	}
}

// DeployRequest carries everything needed to publish a new worker.
type DeployRequest struct {
	ServerID      string
	WorkerName    string
	ScriptContent string
	Bindings      []domain.Binding
}

// DeployResult reports the outcome of a deployment attempt. DeploymentID
// is set as soon as the ledger insert succeeds, so it resolves via Get
// even when the attempt itself failed.
type DeployResult struct {
	DeploymentID  string
	WorkerName    string
	Namespace     string
	DeploymentURL string
}

// UpdateResult reports a successful script update.
type UpdateResult struct {
	DeploymentID string
	WorkerName   string
}

// DeleteResult reports a successful deployment removal.
type DeleteResult struct {
	DeploymentID string
}

// Deploy publishes a worker into the configured dispatch namespace. The
// ledger insert happens before any platform call; partial remote effects
// of a failed attempt are recorded, not rolled back.
func (s Service) Deploy(ctx context.Context, req DeployRequest) (DeployResult, error) {
	serverID := strings.TrimSpace(req.ServerID)
	workerName := strings.TrimSpace(req.WorkerName)
	if serverID == "" {
		return DeployResult{}, ErrServerIDRequired
	}
	if workerName == "" {
		return DeployResult{}, ErrWorkerNameRequired
	}

	namespace := s.cfg.DispatchNamespace
	deployment := &domain.Deployment{
		ID:            s.newID(),
		ServerID:      serverID,
		WorkerName:    workerName,
		Namespace:     namespace,
		ScriptContent: req.ScriptContent,
		Bindings:      req.Bindings,
		Status:        StatusDeploying,
	}
	if err := s.deployments.CreateDeployment(ctx, deployment); err != nil {
		// Nothing reached the platform yet, fail fast.
		return DeployResult{}, &LedgerError{Op: "insert deployment", Err: err}
	}
	result := DeployResult{
		DeploymentID: deployment.ID,
		WorkerName:   workerName,
		Namespace:    namespace,
	}

	if err := s.ensureNamespace(ctx, namespace); err != nil {
		return result, s.failDeployment(ctx, deployment.ID, err)
	}

	if err := s.platform.UploadScript(ctx, namespace, workerName, req.ScriptContent, req.Bindings); err != nil {
		publishErr := &PublishError{Op: "upload", Script: workerName, Err: err}
		return result, s.failDeployment(ctx, deployment.ID, publishErr)
	}

	deployedAt := s.now()
	deploymentURL := s.DeploymentURL(workerName)
	update := domain.DeploymentStatusUpdate{
		DeploymentID:  deployment.ID,
		Status:        StatusActive,
		DeploymentURL: deploymentURL,
		DeployedAt:    &deployedAt,
	}
	if err := s.deployments.UpdateDeploymentStatus(ctx, update); err != nil {
		// The platform already hosts the script but the record still
		// says deploying. The sweeper flags it if nothing else does.
		s.logger.Error("ledger update after successful publish failed", "deployment_id", deployment.ID, "error", err)
		return result, &LedgerError{Op: "activate deployment", Err: err}
	}
	result.DeploymentURL = deploymentURL

	if err := s.servers.UpdateServerWorker(ctx, serverID, workerName, serverStatusActive); err != nil {
		// Cross-entity consistency is best effort.
		s.logger.Warn("server registry update failed", "deployment_id", deployment.ID, "server_id", serverID, "error", err)
	}

	s.logger.Info("worker deployed", "deployment_id", deployment.ID, "worker", workerName, "namespace", namespace, "url", deploymentURL)
	return result, nil
}

// Update republishes a deployed worker with new module content. The
// record's stored bindings are resupplied so the platform overwrite
// cannot strip the worker's configuration.
func (s Service) Update(ctx context.Context, deploymentID, scriptContent string) (UpdateResult, error) {
	if strings.TrimSpace(deploymentID) == "" {
		return UpdateResult{}, ErrDeploymentIDRequired
	}
	if strings.TrimSpace(scriptContent) == "" {
		return UpdateResult{}, ErrScriptContentRequired
	}
	deployment, err := s.loadDeployment(ctx, deploymentID)
	if err != nil {
		return UpdateResult{}, err
	}

	if err := s.platform.UploadScript(ctx, deployment.Namespace, deployment.WorkerName, scriptContent, deployment.Bindings); err != nil {
		// The record keeps its prior status; the platform still serves
		// the last-known-good content stored on it.
		return UpdateResult{}, &PublishError{Op: "upload", Script: deployment.WorkerName, Err: err}
	}

	deployedAt := s.now()
	update := domain.DeploymentStatusUpdate{
		DeploymentID:  deploymentID,
		Status:        StatusActive,
		ScriptContent: scriptContent,
		DeploymentURL: s.DeploymentURL(deployment.WorkerName),
		DeployedAt:    &deployedAt,
	}
	if err := s.deployments.UpdateDeploymentStatus(ctx, update); err != nil {
		s.logger.Error("ledger update after successful publish failed", "deployment_id", deploymentID, "error", err)
		return UpdateResult{}, &LedgerError{Op: "record update", Err: err}
	}

	s.logger.Info("worker updated", "deployment_id", deploymentID, "worker", deployment.WorkerName)
	return UpdateResult{DeploymentID: deploymentID, WorkerName: deployment.WorkerName}, nil
}

// Delete removes a worker from the platform and, only once the remote
// delete succeeded, drops the ledger record. Namespaces are never torn
// down, only scripts within them.
func (s Service) Delete(ctx context.Context, deploymentID string) (DeleteResult, error) {
	if strings.TrimSpace(deploymentID) == "" {
		return DeleteResult{}, ErrDeploymentIDRequired
	}
	deployment, err := s.loadDeployment(ctx, deploymentID)
	if err != nil {
		return DeleteResult{}, err
	}

	if err := s.platform.DeleteScript(ctx, deployment.Namespace, deployment.WorkerName); err != nil {
		// Remote still hosts the script, so the record stays.
		return DeleteResult{}, &PublishError{Op: "delete", Script: deployment.WorkerName, Err: err}
	}
	if err := s.deployments.DeleteDeployment(ctx, deploymentID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return DeleteResult{}, &LedgerError{Op: "remove deployment", Err: err}
	}

	s.logger.Info("worker deleted", "deployment_id", deploymentID, "worker", deployment.WorkerName)
	return DeleteResult{DeploymentID: deploymentID}, nil
}

// Get returns a single ledger record. A missing id surfaces as
// repository.ErrNotFound, distinct from a record in the failed state.
func (s Service) Get(ctx context.Context, deploymentID string) (*domain.Deployment, error) {
	if strings.TrimSpace(deploymentID) == "" {
		return nil, ErrDeploymentIDRequired
	}
	return s.deployments.GetDeploymentByID(ctx, deploymentID)
}

// List returns a ledger page, most recently deployed first.
func (s Service) List(ctx context.Context, limit, offset int) ([]domain.Deployment, error) {
	return s.deployments.ListDeployments(ctx, limit, offset)
}

// DeploymentURL derives the public URL for a worker. Consumers building
// the URL independently must produce identical bytes.
func (s Service) DeploymentURL(workerName string) string {
	return fmt.Sprintf("https://%s.%s.%s", workerName, s.cfg.DispatchNamespace, s.cfg.WorkersDomain)
}

func (s Service) loadDeployment(ctx context.Context, deploymentID string) (*domain.Deployment, error) {
	deployment, err := s.deployments.GetDeploymentByID(ctx, deploymentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, &LedgerError{Op: "load deployment", Err: err}
	}
	return deployment, nil
}

// ensureNamespace makes the target namespace exist. Concurrent creators
// are tolerated: a lookup miss falls through to create, and a
// duplicate-create conflict counts as success.
func (s Service) ensureNamespace(ctx context.Context, namespace string) error {
	lookupErr := s.platform.GetNamespace(ctx, namespace)
	if lookupErr == nil {
		return nil
	}
	createErr := s.platform.CreateNamespace(ctx, namespace)
	if createErr == nil || platform.IsAlreadyExists(createErr) {
		return nil
	}
	s.logger.Error("namespace provisioning failed", "namespace", namespace, "lookup_error", lookupErr, "create_error", createErr)
	return &ProvisionError{Namespace: namespace, Err: createErr}
}

// failDeployment records the failure cause on the ledger record, keyed by
// id like every other mutation. Partial remote effects stay in place.
func (s Service) failDeployment(ctx context.Context, deploymentID string, cause error) error {
	update := domain.DeploymentStatusUpdate{
		DeploymentID: deploymentID,
		Status:       StatusFailed,
		Metadata:     mustJSON(map[string]string{"error": errorMessage(cause)}),
	}
	if err := s.deployments.UpdateDeploymentStatus(ctx, update); err != nil {
		s.logger.Warn("mark deployment failed", "deployment_id", deploymentID, "error", err)
	}
	return cause
}

func errorMessage(err error) string {
	if err == nil || strings.TrimSpace(err.Error()) == "" {
		return "Unknown error"
	}
	return err.Error()
}

func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
