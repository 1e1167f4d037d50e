package domain

import "time"

// Server is the logical service a deployment fulfills. Deployments hold
// a foreign reference to a server; they do not own it.
type Server struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	WorkerName string    `json:"workerName,omitempty"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}
