package httpx

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/edgelabs/edgedeploy/internal/domain"
	"github.com/edgelabs/edgedeploy/internal/platform"
	"github.com/edgelabs/edgedeploy/internal/repository"
	"github.com/edgelabs/edgedeploy/internal/service/deploy"
	"github.com/edgelabs/edgedeploy/pkg/config"
)

type stubDeploymentRepo struct {
	records map[string]*domain.Deployment
}

func newStubDeploymentRepo() *stubDeploymentRepo {
	return &stubDeploymentRepo{records: make(map[string]*domain.Deployment)}
}

func (s *stubDeploymentRepo) CreateDeployment(_ context.Context, d *domain.Deployment) error {
	clone := *d
	clone.CreatedAt = time.Now().UTC()
	clone.UpdatedAt = clone.CreatedAt
	s.records[d.ID] = &clone
	return nil
}

func (s *stubDeploymentRepo) UpdateDeploymentStatus(_ context.Context, update domain.DeploymentStatusUpdate) error {
	record, ok := s.records[update.DeploymentID]
	if !ok {
		return repository.ErrNotFound
	}
	if update.Status != "" {
		record.Status = update.Status
	}
	if update.ScriptContent != "" {
		record.ScriptContent = update.ScriptContent
	}
	if update.DeploymentURL != "" {
		record.DeploymentURL = update.DeploymentURL
	}
	if len(update.Metadata) > 0 {
		record.Metadata = update.Metadata
	}
	if update.DeployedAt != nil {
		record.DeployedAt = update.DeployedAt
	}
	return nil
}

func (s *stubDeploymentRepo) ListDeployments(_ context.Context, limit, offset int) ([]domain.Deployment, error) {
	var out []domain.Deployment
	for _, record := range s.records {
		out = append(out, *record)
	}
	if offset >= len(out) {
		return nil, nil
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}

func (s *stubDeploymentRepo) ListDeploymentsWithStatusUpdatedBefore(_ context.Context, status string, updatedBefore time.Time) ([]domain.Deployment, error) {
	return nil, nil
}

func (s *stubDeploymentRepo) GetDeploymentByID(_ context.Context, id string) (*domain.Deployment, error) {
	record, ok := s.records[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *record
	return &clone, nil
}

func (s *stubDeploymentRepo) DeleteDeployment(_ context.Context, id string) error {
	if _, ok := s.records[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.records, id)
	return nil
}

type stubServerRepo struct{}

func (stubServerRepo) GetServerByID(_ context.Context, id string) (*domain.Server, error) {
	return &domain.Server{ID: id}, nil
}

func (stubServerRepo) UpdateServerWorker(context.Context, string, string, string) error {
	return nil
}

type stubPlatform struct {
	uploadErr error
}

func (stubPlatform) GetNamespace(context.Context, string) error    { return nil }
func (stubPlatform) CreateNamespace(context.Context, string) error { return nil }
func (s stubPlatform) UploadScript(context.Context, string, string, string, []domain.Binding) error {
	return s.uploadErr
}
func (stubPlatform) DeleteScript(context.Context, string, string) error { return nil }

type routerFixture struct {
	router *Router
	repo   *stubDeploymentRepo
}

func newTestRouter(t *testing.T, authToken string, pf platform.Client) routerFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := newStubDeploymentRepo()
	if pf == nil {
		pf = stubPlatform{}
	}
	svc := deploy.New(repo, stubServerRepo{}, pf, logger, config.APIConfig{
		DispatchNamespace: "edge-workers",
		WorkersDomain:     "workers.dev",
	})
	router := NewRouter(logger, svc, nil, authToken, nil)
	t.Cleanup(router.Close)
	return routerFixture{router: router, repo: repo}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestDeployEndpointSuccessShape(t *testing.T) {
	fx := newTestRouter(t, "", nil)

	payload := `{"serverId":"srv-1","workerName":"agent","scriptContent":"export default {}"}`
	req := httptest.NewRequest(http.MethodPost, "/deployments", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["success"] != true {
		t.Fatalf("expected success envelope, got %v", body)
	}
	if body["deploymentId"] == "" || body["deploymentId"] == nil {
		t.Fatal("expected deploymentId in response")
	}
	if body["deploymentUrl"] != "https://agent.edge-workers.workers.dev" {
		t.Fatalf("unexpected deploymentUrl %v", body["deploymentUrl"])
	}
	if body["namespace"] != "edge-workers" {
		t.Fatalf("unexpected namespace %v", body["namespace"])
	}
}

func TestDeployEndpointFailureShape(t *testing.T) {
	fx := newTestRouter(t, "", stubPlatform{uploadErr: &platform.APIError{Status: 500, Message: "internal error"}})

	payload := `{"serverId":"srv-1","workerName":"agent"}`
	req := httptest.NewRequest(http.MethodPost, "/deployments", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["success"] != false {
		t.Fatalf("expected success=false, got %v", body)
	}
	if _, ok := body["error"].(string); !ok {
		t.Fatalf("expected error string, got %v", body)
	}
	if len(body) != 2 {
		t.Fatalf("expected exactly success and error keys, got %v", body)
	}
}

func TestDeployEndpointValidation(t *testing.T) {
	fx := newTestRouter(t, "", nil)

	req := httptest.NewRequest(http.MethodPost, "/deployments", strings.NewReader(`{"workerName":"agent"}`))
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["success"] != false {
		t.Fatalf("expected failure envelope, got %v", body)
	}
}

func TestGetEndpointUnknownIDReturns404(t *testing.T) {
	fx := newTestRouter(t, "", nil)

	req := httptest.NewRequest(http.MethodGet, "/deployments/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["error"] != "deployment not found" {
		t.Fatalf("expected not-found message, got %v", body["error"])
	}
}

func TestGetEndpointReturnsFailedRecordWith200(t *testing.T) {
	fx := newTestRouter(t, "", nil)
	id := uuid.NewString()
	fx.repo.records[id] = &domain.Deployment{
		ID:         id,
		ServerID:   "srv-1",
		WorkerName: "agent",
		Status:     "failed",
		Metadata:   json.RawMessage(`{"error":"quota exceeded"}`),
	}

	req := httptest.NewRequest(http.MethodGet, "/deployments/"+id, nil)
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for failed record, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	deployment, ok := body["deployment"].(map[string]any)
	if !ok {
		t.Fatalf("expected deployment object, got %v", body)
	}
	if deployment["status"] != "failed" {
		t.Fatalf("expected failed status, got %v", deployment["status"])
	}
}

func TestUpdateEndpoint(t *testing.T) {
	fx := newTestRouter(t, "", nil)
	id := uuid.NewString()
	fx.repo.records[id] = &domain.Deployment{
		ID:         id,
		ServerID:   "srv-1",
		WorkerName: "agent",
		Namespace:  "edge-workers",
		Status:     "active",
	}

	req := httptest.NewRequest(http.MethodPut, "/deployments/"+id, strings.NewReader(`{"scriptContent":"export default { updated: true }"}`))
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["deploymentId"] != id || body["workerName"] != "agent" {
		t.Fatalf("unexpected update response %v", body)
	}
}

func TestDeleteEndpoint(t *testing.T) {
	fx := newTestRouter(t, "", nil)
	id := uuid.NewString()
	fx.repo.records[id] = &domain.Deployment{
		ID:         id,
		WorkerName: "agent",
		Namespace:  "edge-workers",
		Status:     "active",
	}

	req := httptest.NewRequest(http.MethodDelete, "/deployments/"+id, nil)
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if _, ok := fx.repo.records[id]; ok {
		t.Fatal("expected record removed")
	}
}

func TestListEndpoint(t *testing.T) {
	fx := newTestRouter(t, "", nil)
	for i := 0; i < 3; i++ {
		id := uuid.NewString()
		fx.repo.records[id] = &domain.Deployment{ID: id, WorkerName: "agent", Status: "active"}
	}

	req := httptest.NewRequest(http.MethodGet, "/deployments?limit=2", nil)
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["count"] != float64(2) {
		t.Fatalf("expected count 2, got %v", body["count"])
	}
}

func TestAuthTokenEnforced(t *testing.T) {
	fx := newTestRouter(t, "secret-token", nil)

	req := httptest.NewRequest(http.MethodGet, "/deployments", nil)
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/deployments", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/deployments", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	rec = httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with valid token, got %d", rec.Code)
	}
}

func TestHealthzReportsDatabaseState(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := deploy.New(newStubDeploymentRepo(), stubServerRepo{}, stubPlatform{}, logger, config.APIConfig{})
	router := NewRouter(logger, svc, nil, "", func(context.Context) error { return nil })
	t.Cleanup(router.Close)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "ok" {
		t.Fatalf("expected ok status, got %v", body["status"])
	}
}

func TestMethodNotAllowed(t *testing.T) {
	fx := newTestRouter(t, "", nil)

	req := httptest.NewRequest(http.MethodPatch, "/deployments", nil)
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
