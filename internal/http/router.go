package httpx

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/edgelabs/edgedeploy/internal/domain"
	"github.com/edgelabs/edgedeploy/internal/repository"
	"github.com/edgelabs/edgedeploy/internal/service/deploy"
)

// Router wires HTTP endpoints to the deployment service.
type Router struct {
	mux       *http.ServeMux
	logger    *slog.Logger
	deploy    deploy.Service
	limiter   RateLimiter
	authToken string
	dbHealth  func(context.Context) error

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	deployResults      *prometheus.CounterVec
}

const (
	rateWindowDefault  = time.Minute
	rateLimitWrite     = 60
	rateLimitRead      = 240
	healthCheckTimeout = 2 * time.Second
	defaultListLimit   = 100
)

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, deploySvc deploy.Service, limiter RateLimiter, authToken string, dbHealth func(context.Context) error) *Router {
	r := &Router{
		mux:       http.NewServeMux(),
		logger:    logger,
		deploy:    deploySvc,
		limiter:   limiter,
		authToken: strings.TrimSpace(authToken),
		dbHealth:  dbHealth,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit(r.instrument("/healthz", r.handleHealthz)))
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/deployments", r.audit(r.instrument("/deployments",
		r.requireAuth(r.withRateLimit(rateLimitWrite, rateWindowDefault, r.handleDeployments)))))
	r.mux.HandleFunc("/deployments/", r.audit(r.instrument("/deployments/{id}",
		r.requireAuth(r.withRateLimit(rateLimitRead, rateWindowDefault, r.handleDeploymentByID)))))
}

func (r *Router) handleDeployments(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodPost:
		r.handleDeploy(w, req)
	case http.MethodGet:
		r.handleList(w, req)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleDeploy(w http.ResponseWriter, req *http.Request) {
	var payload struct {
		ServerID      string           `json:"serverId"`
		WorkerName    string           `json:"workerName"`
		ScriptContent string           `json:"scriptContent"`
		Bindings      []domain.Binding `json:"bindings"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	result, err := r.deploy.Deploy(req.Context(), deploy.DeployRequest{
		ServerID:      payload.ServerID,
		WorkerName:    payload.WorkerName,
		ScriptContent: payload.ScriptContent,
		Bindings:      payload.Bindings,
	})
	if err != nil {
		r.recordDeployResult("deploy", "failure")
		if result.DeploymentID != "" {
			r.logger.Warn("deployment failed", "deployment_id", result.DeploymentID, "error", err)
		}
		writeFailure(w, statusForError(err), err.Error())
		return
	}
	r.recordDeployResult("deploy", "success")
	writeResult(w, http.StatusOK, map[string]any{
		"deploymentId":  result.DeploymentID,
		"workerName":    result.WorkerName,
		"namespace":     result.Namespace,
		"deploymentUrl": result.DeploymentURL,
	})
}

func (r *Router) handleList(w http.ResponseWriter, req *http.Request) {
	limit := defaultListLimit
	if raw := req.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	offset := 0
	if raw := req.URL.Query().Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	deployments, err := r.deploy.List(req.Context(), limit, offset)
	if err != nil {
		writeFailure(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeResult(w, http.StatusOK, map[string]any{
		"deployments": deployments,
		"count":       len(deployments),
	})
}

func (r *Router) handleDeploymentByID(w http.ResponseWriter, req *http.Request) {
	id := strings.TrimPrefix(req.URL.Path, "/deployments/")
	if id == "" || strings.Contains(id, "/") {
		r.notFound(w)
		return
	}
	switch req.Method {
	case http.MethodGet:
		r.handleGet(w, req, id)
	case http.MethodPut:
		r.handleUpdate(w, req, id)
	case http.MethodDelete:
		r.handleDelete(w, req, id)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleGet(w http.ResponseWriter, req *http.Request, id string) {
	deployment, err := r.deploy.Get(req.Context(), id)
	if err != nil {
		writeFailure(w, statusForError(err), failureMessage(err))
		return
	}
	writeResult(w, http.StatusOK, map[string]any{"deployment": deployment})
}

func (r *Router) handleUpdate(w http.ResponseWriter, req *http.Request, id string) {
	var payload struct {
		ScriptContent string `json:"scriptContent"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	result, err := r.deploy.Update(req.Context(), id, payload.ScriptContent)
	if err != nil {
		r.recordDeployResult("update", "failure")
		writeFailure(w, statusForError(err), failureMessage(err))
		return
	}
	r.recordDeployResult("update", "success")
	writeResult(w, http.StatusOK, map[string]any{
		"deploymentId": result.DeploymentID,
		"workerName":   result.WorkerName,
	})
}

func (r *Router) handleDelete(w http.ResponseWriter, req *http.Request, id string) {
	result, err := r.deploy.Delete(req.Context(), id)
	if err != nil {
		r.recordDeployResult("delete", "failure")
		writeFailure(w, statusForError(err), failureMessage(err))
		return
	}
	r.recordDeployResult("delete", "success")
	writeResult(w, http.StatusOK, map[string]any{"deploymentId": result.DeploymentID})
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["database"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

// requireAuth enforces the static API bearer token. An unset token
// disables authentication for local development.
func (r *Router) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if r.authToken == "" {
			next(w, req)
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer "))
		if len(token) != len(r.authToken) || subtle.ConstantTimeCompare([]byte(token), []byte(r.authToken)) != 1 {
			r.logger.Warn("api token mismatch", "path", req.URL.Path)
			writeFailure(w, http.StatusUnauthorized, "invalid api token")
			return
		}
		next(w, req)
	}
}

func (r *Router) audit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(start)
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeFailure(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeFailure(w, http.StatusNotFound, "not found")
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, deploy.ErrServerIDRequired),
		errors.Is(err, deploy.ErrWorkerNameRequired),
		errors.Is(err, deploy.ErrDeploymentIDRequired),
		errors.Is(err, deploy.ErrScriptContentRequired):
		return http.StatusBadRequest
	}
	var provisionErr *deploy.ProvisionError
	var publishErr *deploy.PublishError
	if errors.As(err, &provisionErr) || errors.As(err, &publishErr) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func failureMessage(err error) string {
	if errors.Is(err, repository.ErrNotFound) {
		return "deployment not found"
	}
	return err.Error()
}
