package deploy

import (
	"errors"
	"fmt"
)

// Validation errors returned before any remote call is attempted.
var (
	ErrServerIDRequired      = errors.New("server id required")
	ErrWorkerNameRequired    = errors.New("worker name required")
	ErrDeploymentIDRequired  = errors.New("deployment id required")
	ErrScriptContentRequired = errors.New("script content required")
)

// ProvisionError indicates namespace lookup and creation both failed.
type ProvisionError struct {
	Namespace string
	Err       error
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("provision namespace %q: %v", e.Namespace, e.Err)
}

func (e *ProvisionError) Unwrap() error { return e.Err }

// PublishError indicates the platform rejected a script upload or delete.
type PublishError struct {
	Op     string
	Script string
	Err    error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("%s script %q: %v", e.Op, e.Script, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// LedgerError indicates the local deployment ledger failed.
type LedgerError struct {
	Op  string
	Err error
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *LedgerError) Unwrap() error { return e.Err }
