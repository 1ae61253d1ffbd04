package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	api "github.com/mist-hpc/mist/api/v1alpha1"
	"github.com/mist-hpc/mist/pkg/requestid"
)

// APIError is returned for every non 2xx answer of the gateway.
type APIError struct {
	StatusCode int
	Body       api.Error
}

func (e *APIError) Error() string {
	if e.Body.Message == "" {
		return fmt.Sprintf("gateway returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("gateway returned status %d: %s", e.StatusCode, e.Body.Message)
}

// GatewayClient is an HTTP client for the job gateway.
type GatewayClient struct {
	baseURL    string
	credential *Credential
	httpClient *http.Client
}

// NewFromConfig returns a gateway client from the given config.
func NewFromConfig(config *Config) *GatewayClient {
	return NewGatewayClient(config.Service.Server, config.Credential)
}

func NewGatewayClient(baseURL string, credential *Credential) *GatewayClient {
	return &GatewayClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		credential: credential,
		httpClient: NewHTTPClient(),
	}
}

// NewHTTPClient returns the HTTP client used to reach the gateway.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// ListJobsParams narrows a job listing. Zero values are not sent.
type ListJobsParams struct {
	States []string
	All    bool
	Limit  int
}

func (c *GatewayClient) Login(ctx context.Context, username, password string) (*api.Credential, error) {
	var cred api.Credential
	if err := c.do(ctx, http.MethodPost, "/auth/login", api.LoginRequest{Username: username, Password: password}, http.StatusOK, &cred); err != nil {
		return nil, err
	}
	return &cred, nil
}

func (c *GatewayClient) Refresh(ctx context.Context) (*api.Credential, error) {
	var cred api.Credential
	if err := c.do(ctx, http.MethodPost, "/auth/refresh", nil, http.StatusOK, &cred); err != nil {
		return nil, err
	}
	return &cred, nil
}

// Logout ends the session the client authenticates with.
func (c *GatewayClient) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", nil, http.StatusNoContent, nil)
}

func (c *GatewayClient) WhoAmI(ctx context.Context) (*api.Identity, error) {
	var identity api.Identity
	if err := c.do(ctx, http.MethodGet, "/auth/whoami", nil, http.StatusOK, &identity); err != nil {
		return nil, err
	}
	return &identity, nil
}

func (c *GatewayClient) SubmitJob(ctx context.Context, payload string) (*api.JobCreated, error) {
	var created api.JobCreated
	if err := c.do(ctx, http.MethodPost, "/jobs", api.JobCreate{Payload: payload}, http.StatusCreated, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *GatewayClient) GetJob(ctx context.Context, id uuid.UUID) (*api.Job, error) {
	var job api.Job
	if err := c.do(ctx, http.MethodGet, "/jobs/"+id.String(), nil, http.StatusOK, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *GatewayClient) ListJobs(ctx context.Context, params ListJobsParams) (api.JobList, error) {
	q := url.Values{}
	for _, s := range params.States {
		q.Add("state", s)
	}
	if params.All {
		q.Set("all", "true")
	}
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}

	path := "/jobs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	jobs := api.JobList{}
	if err := c.do(ctx, http.MethodGet, path, nil, http.StatusOK, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

func (c *GatewayClient) CancelJob(ctx context.Context, id uuid.UUID) (*api.Job, error) {
	var job api.Job
	if err := c.do(ctx, http.MethodDelete, "/jobs/"+id.String(), nil, http.StatusOK, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *GatewayClient) DispatcherStatus(ctx context.Context) (*api.DispatcherStatus, error) {
	var status api.DispatcherStatus
	if err := c.do(ctx, http.MethodGet, "/dispatcher/status", nil, http.StatusOK, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *GatewayClient) do(ctx context.Context, method, path string, in any, expected int, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(requestid.Header, requestid.Generate())
	if c.credential != nil {
		req.Header.Set("Authorization", c.credential.Type+" "+c.credential.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call gateway: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != expected {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(bodyBytes, &apiErr.Body)
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
