package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/edgelabs/edgedeploy/internal/domain"
)

// Client provisions namespaces and publishes worker scripts on the remote
// script-hosting platform. Implementations make single-attempt blocking
// calls; retry policy belongs to the caller.
type Client interface {
	GetNamespace(ctx context.Context, namespace string) error
	CreateNamespace(ctx context.Context, namespace string) error
	UploadScript(ctx context.Context, namespace, scriptName, content string, bindings []domain.Binding) error
	DeleteScript(ctx context.Context, namespace, scriptName string) error
}

// APIError represents an error response from the platform API.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("platform request failed with status %d", e.Status)
	}
	return fmt.Sprintf("platform request failed (%d): %s", e.Status, e.Message)
}

// duplicate-create error code returned by namespace creation.
const codeNamespaceAlreadyExists = 100119

// IsNotFound reports whether err represents a missing remote resource.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// IsAlreadyExists reports whether err represents a duplicate-create
// conflict, which idempotent provisioning treats as success.
func IsAlreadyExists(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == http.StatusConflict || apiErr.Code == codeNamespaceAlreadyExists
}
