package domain

import (
	"encoding/json"
	"time"
)

// Deployment captures a single worker deployment attempt. A record is
// written before the platform is touched and survives failed attempts,
// so the ledger is a superset of what the platform currently hosts.
type Deployment struct {
	ID            string          `json:"id"`
	ServerID      string          `json:"serverId"`
	WorkerName    string          `json:"workerName"`
	Namespace     string          `json:"namespace"`
	ScriptContent string          `json:"scriptContent"`
	Bindings      []Binding       `json:"bindings"`
	Status        string          `json:"status"`
	DeploymentURL string          `json:"deploymentUrl,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	DeployedAt    *time.Time      `json:"deployedAt,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// DeploymentStatusUpdate captures mutable fields for a deployment.
// Zero-valued fields are left untouched by the ledger.
type DeploymentStatusUpdate struct {
	DeploymentID  string
	Status        string
	ScriptContent string
	DeploymentURL string
	Metadata      json.RawMessage
	DeployedAt    *time.Time
}
