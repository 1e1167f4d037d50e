package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edgelabs/edgedeploy/internal/domain"
	"github.com/edgelabs/edgedeploy/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.DeploymentRepository = (*Repository)(nil)
	_ repository.ServerRepository     = (*Repository)(nil)
)

const deploymentColumns = `id, server_id, worker_name, namespace, script_content, bindings, status, deployment_url, metadata, deployed_at, created_at, updated_at`

// CreateDeployment inserts a ledger record for a deployment attempt.
func (r *Repository) CreateDeployment(ctx context.Context, deployment *domain.Deployment) error {
	if deployment == nil {
		return fmt.Errorf("deployment required")
	}
	bindings, err := bindingsValue(deployment.Bindings)
	if err != nil {
		return fmt.Errorf("encode bindings: %w", err)
	}
	const query = `INSERT INTO deployments (id, server_id, worker_name, namespace, script_content, bindings, status, deployment_url, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		RETURNING created_at, updated_at`
	var createdAt, updatedAt time.Time
	err = r.pool.QueryRow(ctx, query,
		deployment.ID,
		deployment.ServerID,
		deployment.WorkerName,
		deployment.Namespace,
		deployment.ScriptContent,
		bindings,
		deployment.Status,
		emptyToNil(deployment.DeploymentURL),
		bytesToNil(deployment.Metadata),
	).Scan(&createdAt, &updatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return repository.ErrInvalidArgument
			case "23514", "22P02":
				return repository.ErrInvalidArgument
			}
		}
		return err
	}
	deployment.CreatedAt = createdAt
	deployment.UpdatedAt = updatedAt
	return nil
}

// UpdateDeploymentStatus mutates a ledger record in place. Unset fields
// keep their stored values.
func (r *Repository) UpdateDeploymentStatus(ctx context.Context, update domain.DeploymentStatusUpdate) error {
	const query = `UPDATE deployments SET
			status = COALESCE($2, status),
			script_content = COALESCE($3, script_content),
			deployment_url = COALESCE($4, deployment_url),
			metadata = COALESCE($5, metadata),
			deployed_at = COALESCE($6, deployed_at),
			updated_at = NOW()
		WHERE id = $1`
	cmdTag, err := r.pool.Exec(ctx, query,
		update.DeploymentID,
		emptyToNil(update.Status),
		emptyToNil(update.ScriptContent),
		emptyToNil(update.DeploymentURL),
		bytesToNil(update.Metadata),
		timePtrToNil(update.DeployedAt),
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListDeployments returns a ledger page ordered by most recent successful
// deployment first. Records that never deployed sort last.
func (r *Repository) ListDeployments(ctx context.Context, limit, offset int) ([]domain.Deployment, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	const query = `SELECT ` + deploymentColumns + `
		FROM deployments
		ORDER BY deployed_at DESC NULLS LAST, created_at DESC, id
		LIMIT $1 OFFSET $2`
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDeployments(rows)
}

// ListDeploymentsWithStatusUpdatedBefore returns records holding the given
// status whose last write predates the cutoff.
func (r *Repository) ListDeploymentsWithStatusUpdatedBefore(ctx context.Context, status string, updatedBefore time.Time) ([]domain.Deployment, error) {
	const query = `SELECT ` + deploymentColumns + `
		FROM deployments
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at ASC`
	rows, err := r.pool.Query(ctx, query, status, updatedBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDeployments(rows)
}

// GetDeploymentByID fetches a single ledger record.
func (r *Repository) GetDeploymentByID(ctx context.Context, deploymentID string) (*domain.Deployment, error) {
	const query = `SELECT ` + deploymentColumns + ` FROM deployments WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, deploymentID)
	d, err := scanDeployment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return d, nil
}

// DeleteDeployment removes a ledger record.
func (r *Repository) DeleteDeployment(ctx context.Context, deploymentID string) error {
	const query = `DELETE FROM deployments WHERE id = $1`
	cmdTag, err := r.pool.Exec(ctx, query, deploymentID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// GetServerByID fetches a server registry record.
func (r *Repository) GetServerByID(ctx context.Context, serverID string) (*domain.Server, error) {
	const query = `SELECT id, name, worker_name, status, created_at, updated_at FROM servers WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, serverID)
	var (
		s          domain.Server
		workerName *string
	)
	if err := row.Scan(&s.ID, &s.Name, &workerName, &s.Status, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	if workerName != nil {
		s.WorkerName = *workerName
	}
	return &s, nil
}

// UpdateServerWorker points a server at its deployed worker.
func (r *Repository) UpdateServerWorker(ctx context.Context, serverID, workerName, status string) error {
	const query = `UPDATE servers SET
			worker_name = COALESCE($2, worker_name),
			status = COALESCE($3, status),
			updated_at = NOW()
		WHERE id = $1`
	cmdTag, err := r.pool.Exec(ctx, query, serverID, emptyToNil(workerName), emptyToNil(status))
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeployment(row rowScanner) (*domain.Deployment, error) {
	var (
		d             domain.Deployment
		bindings      []byte
		deploymentURL *string
		metadata      []byte
		deployedAt    *time.Time
	)
	if err := row.Scan(
		&d.ID,
		&d.ServerID,
		&d.WorkerName,
		&d.Namespace,
		&d.ScriptContent,
		&bindings,
		&d.Status,
		&deploymentURL,
		&metadata,
		&deployedAt,
		&d.CreatedAt,
		&d.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(bindings) > 0 {
		if err := json.Unmarshal(bindings, &d.Bindings); err != nil {
			return nil, fmt.Errorf("decode bindings for %s: %w", d.ID, err)
		}
	}
	if deploymentURL != nil {
		d.DeploymentURL = *deploymentURL
	}
	if len(metadata) > 0 {
		d.Metadata = json.RawMessage(metadata)
	}
	d.DeployedAt = deployedAt
	return &d, nil
}

func scanDeployments(rows pgx.Rows) ([]domain.Deployment, error) {
	deployments := make([]domain.Deployment, 0)
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, err
		}
		deployments = append(deployments, *d)
	}
	return deployments, rows.Err()
}

func bindingsValue(bindings []domain.Binding) (any, error) {
	if len(bindings) == 0 {
		return nil, nil
	}
	return json.Marshal(bindings)
}

func emptyToNil(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func bytesToNil(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func timePtrToNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
