// Package identity talks to the participant-management web service that owns
// user accounts and per-project anonymised identities.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/civichealth/interviewrelay/internal/interview"
)

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxElapsed time.Duration
}

func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: httpClient,
		maxElapsed: 30 * time.Second,
	}
}

// UserIDByEmail resolves an account id; a 404 becomes ErrUnknownUser so
// callers can distinguish a missing account from a service failure.
func (c *Client) UserIDByEmail(ctx context.Context, email string) (string, error) {
	q := url.Values{}
	q.Set("email", email)
	var out struct {
		ID string `json:"id"`
	}
	err := c.getJSON(ctx, "/v1/user?"+q.Encode(), &out)
	if err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
			return "", fmt.Errorf("%w: %s", interview.ErrUnknownUser, email)
		}
		return "", err
	}
	return out.ID, nil
}

func (c *Client) UserProjects(ctx context.Context, userID string) ([]interview.UserProject, error) {
	q := url.Values{}
	q.Set("user_id", userID)
	var out []interview.UserProject
	if err := c.getJSON(ctx, "/v1/userprojects?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) UsersByProject(ctx context.Context, projectID string) ([]interview.ProjectUser, error) {
	q := url.Values{}
	q.Set("project_id", projectID)
	var out []interview.ProjectUser
	if err := c.getJSON(ctx, "/v1/projectusers?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// getJSON issues an authenticated GET with exponential-backoff retry on
// transient failures. Client errors other than 429 are permanent.
func (c *Client) getJSON(ctx context.Context, requestPath string, out any) error {
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+requestPath, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("X-Api-Key", c.apiKey)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		payload, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return readErr
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			if out == nil || len(payload) == 0 {
				return nil
			}
			if err := json.Unmarshal(payload, out); err != nil {
				return backoff.Permanent(err)
			}
			return nil
		}

		httpErr := newHTTPError(resp.StatusCode, payload)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return httpErr
		}
		return backoff.Permanent(httpErr)
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = c.maxElapsed
	return backoff.Retry(operation, backoff.WithContext(policy, ctx))
}

type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("identity service: %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("identity service: unexpected status %d", e.StatusCode)
}

func newHTTPError(status int, payload []byte) *HTTPError {
	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(payload, &body)
	return &HTTPError{StatusCode: status, Code: body.Code, Message: body.Message}
}
