package farm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/buildfarm-dev/farmctl/protocol"
)

const defaultUserAgent = "farmctl"

// ErrNotFound is returned when the farm has no job for the requested id.
var ErrNotFound = errors.New("farm: job not found")

// APIError captures non-2xx responses from the farm, including the server's
// error code when the body carries the standard error envelope.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("farm api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
}

// Client is an HTTP client for the build farm API. It covers the job catalog
// (recent jobs, lookup by id) and job submission.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	UserAgent  string
}

// NewClient constructs a farm client with a bounded request timeout.
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL:    baseURL,
		Token:      token,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		UserAgent:  defaultUserAgent,
	}
}

// RecentJobs returns up to limit jobs for the platform and project, newest first.
func (c *Client) RecentJobs(ctx context.Context, platform protocol.Platform, projectID string, limit int) ([]protocol.RemoteJob, error) {
	if limit <= 0 {
		limit = 10
	}
	q := url.Values{}
	q.Set("platform", string(platform))
	q.Set("limit", strconv.Itoa(limit))

	path := fmt.Sprintf("/api/v1/projects/%s/jobs?%s", url.PathEscape(projectID), q.Encode())
	var jobs []protocol.RemoteJob
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// JobByID fetches a single job snapshot. Missing jobs map to ErrNotFound.
func (c *Client) JobByID(ctx context.Context, id string) (protocol.RemoteJob, error) {
	var job protocol.RemoteJob
	err := c.doJSON(ctx, http.MethodGet, "/api/v1/jobs/"+url.PathEscape(id), nil, &job)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return protocol.RemoteJob{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return protocol.RemoteJob{}, err
	}
	return job, nil
}

// CreateJob submits a build job and returns the farm's acknowledgement.
func (c *Client) CreateJob(ctx context.Context, req protocol.SubmitJobRequest) (protocol.SubmitJobResponse, error) {
	if req.Type == "" {
		req.Type = "SubmitJob"
	}
	var resp protocol.SubmitJobResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/jobs", req, &resp); err != nil {
		return protocol.SubmitJobResponse{}, err
	}
	return resp, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload any, out any) error {
	if c == nil {
		return errors.New("farm client is nil")
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	base := strings.TrimRight(c.BaseURL, "/")
	req, err := http.NewRequestWithContext(ctx, method, base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	ua := c.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	req.Header.Set("User-Agent", ua)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp.StatusCode, respBody)
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return err
		}
	}
	return nil
}

func newAPIError(status int, body []byte) *APIError {
	var envelope protocol.ServerError
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Code != "" {
		return &APIError{StatusCode: status, Code: envelope.Code, Message: envelope.Message}
	}
	return &APIError{StatusCode: status, Message: string(body)}
}
