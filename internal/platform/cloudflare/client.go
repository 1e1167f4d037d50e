package cloudflare

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/edgelabs/edgedeploy/internal/domain"
	"github.com/edgelabs/edgedeploy/internal/platform"
)

const mainModuleName = "worker.js"

// Client talks to a Workers-for-Platforms style dispatch API.
type Client struct {
	baseURL    string
	accountID  string
	token      string
	httpClient *http.Client
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

var _ platform.Client = (*Client)(nil)

// New constructs a Client for the given account against the provided API base URL.
func New(base, accountID, token string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		return nil, fmt.Errorf("platform api base url required")
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid platform api base url: %w", err)
	}
	if strings.TrimSpace(accountID) == "" {
		return nil, fmt.Errorf("platform account id required")
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		accountID:  accountID,
		token:      strings.TrimSpace(token),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// GetNamespace checks that a dispatch namespace exists.
func (c *Client) GetNamespace(ctx context.Context, namespace string) error {
	path := fmt.Sprintf("/accounts/%s/workers/dispatch/namespaces/%s", c.accountID, url.PathEscape(namespace))
	return c.do(ctx, http.MethodGet, path, "", nil)
}

// CreateNamespace provisions a dispatch namespace. Creating a namespace
// that already exists yields an error IsAlreadyExists recognizes.
func (c *Client) CreateNamespace(ctx context.Context, namespace string) error {
	payload, err := json.Marshal(map[string]string{"name": namespace})
	if err != nil {
		return fmt.Errorf("encode namespace request: %w", err)
	}
	path := fmt.Sprintf("/accounts/%s/workers/dispatch/namespaces", c.accountID)
	return c.do(ctx, http.MethodPost, path, "application/json", bytes.NewReader(payload))
}

// UploadScript publishes module content and bindings as the named script,
// replacing any prior version in a single overwrite.
func (c *Client) UploadScript(ctx context.Context, namespace, scriptName, content string, bindings []domain.Binding) error {
	body, contentType, err := scriptUploadBody(content, bindings)
	if err != nil {
		return err
	}
	path := fmt.Sprintf("/accounts/%s/workers/dispatch/namespaces/%s/scripts/%s",
		c.accountID, url.PathEscape(namespace), url.PathEscape(scriptName))
	return c.do(ctx, http.MethodPut, path, contentType, body)
}

// DeleteScript removes the named script from its namespace.
func (c *Client) DeleteScript(ctx context.Context, namespace, scriptName string) error {
	path := fmt.Sprintf("/accounts/%s/workers/dispatch/namespaces/%s/scripts/%s?force=true",
		c.accountID, url.PathEscape(namespace), url.PathEscape(scriptName))
	return c.do(ctx, http.MethodDelete, path, "", nil)
}

// scriptUploadBody assembles the multipart upload: a metadata part naming
// the main module and carrying the bindings verbatim, plus the module part.
func scriptUploadBody(content string, bindings []domain.Binding) (io.Reader, string, error) {
	if bindings == nil {
		bindings = []domain.Binding{}
	}
	metadata, err := json.Marshal(map[string]any{
		"main_module": mainModuleName,
		"bindings":    bindings,
	})
	if err != nil {
		return nil, "", fmt.Errorf("encode script metadata: %w", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	metaHeader := textproto.MIMEHeader{}
	metaHeader.Set("Content-Disposition", `form-data; name="metadata"`)
	metaHeader.Set("Content-Type", "application/json")
	metaPart, err := writer.CreatePart(metaHeader)
	if err != nil {
		return nil, "", fmt.Errorf("create metadata part: %w", err)
	}
	if _, err := metaPart.Write(metadata); err != nil {
		return nil, "", fmt.Errorf("write metadata part: %w", err)
	}

	moduleHeader := textproto.MIMEHeader{}
	moduleHeader.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name=%q; filename=%q`, mainModuleName, mainModuleName))
	moduleHeader.Set("Content-Type", "application/javascript+module")
	modulePart, err := writer.CreatePart(moduleHeader)
	if err != nil {
		return nil, "", fmt.Errorf("create module part: %w", err)
	}
	if _, err := io.WriteString(modulePart, content); err != nil {
		return nil, "", fmt.Errorf("write module part: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart body: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}

type envelope struct {
	Success bool `json:"success"`
	Errors  []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader) error {
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env envelope
	decoded := json.Unmarshal(data, &env) == nil

	if resp.StatusCode >= http.StatusBadRequest || (decoded && !env.Success) {
		apiErr := &platform.APIError{Status: resp.StatusCode}
		if decoded && len(env.Errors) > 0 {
			apiErr.Code = env.Errors[0].Code
			apiErr.Message = env.Errors[0].Message
		} else if msg := strings.TrimSpace(string(data)); msg != "" {
			apiErr.Message = msg
		}
		return apiErr
	}
	return nil
}
