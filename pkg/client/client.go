// Package client is a typed Go client for the ShramSaathi REST API.
package client

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
	"sync"
	"time"

	"shramsaathi-backend/internal/domain"
	"shramsaathi-backend/internal/filter"
	"shramsaathi-backend/pkg/apperror"
)

// Error is a failed API call. It unwraps to one of the apperror sentinels.
type Error struct {
	Status  int
	Kind    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   json.RawMessage `json:"error"`
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

// New returns a client for the API rooted at baseURL, e.g. http://localhost:8083/api.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// WebsocketURL derives the realtime endpoint from the base URL, carrying the token.
func (c *Client) WebsocketURL() string {
	u := c.baseURL + "/ws"
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	if token := c.Token(); token != "" {
		u += "?token=" + url.QueryEscape(token)
	}
	return u
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Message: err.Error(), Err: errors.Join(apperror.ErrTransientNetworkFailure, err)}
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && resp.StatusCode < 300 {
		return &Error{Status: resp.StatusCode, Message: "malformed response", Err: errors.Join(apperror.ErrTransientNetworkFailure, err)}
	}

	if resp.StatusCode >= 300 {
		return classify(method, path, resp.StatusCode, env)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("client: decode response: %w", err)
		}
	}
	return nil
}

// classify maps a failed response onto the error taxonomy. A conflict on
// application submission is always a duplicate application.
func classify(method, path string, status int, env envelope) *Error {
	e := &Error{Status: status, Message: env.Message}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}

	var kind string
	_ = json.Unmarshal(env.Error, &kind)
	e.Kind = kind

	switch {
	case status == http.StatusConflict && method == http.MethodPost && path == "/applications":
		e.Err = apperror.ErrDuplicateApplication
	case apperror.FromKind(kind) != nil:
		e.Err = apperror.FromKind(kind)
	default:
		e.Err = apperror.ErrTransientNetworkFailure
	}
	return e
}

func id(v int64) string { return strconv.FormatInt(v, 10) }

func (c *Client) Login(ctx context.Context, phone, password string) (*domain.LoginResult, error) {
	var out domain.LoginResult
	if err := c.do(ctx, http.MethodPost, "/auth/login", domain.LoginInput{Phone: phone, Password: password}, &out); err != nil {
		return nil, err
	}
	c.SetToken(out.Token)
	return &out, nil
}

func (c *Client) Me(ctx context.Context) (*domain.Profile, error) {
	var out domain.Profile
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpsertProfile registers a new profile, or updates the caller's own when a token is set.
// A returned token is kept for later calls.
func (c *Client) UpsertProfile(ctx context.Context, in domain.ProfileInput) (*domain.UpsertResult, error) {
	var out domain.UpsertResult
	if err := c.do(ctx, http.MethodPost, "/users", in, &out); err != nil {
		return nil, err
	}
	if out.Token != "" {
		c.SetToken(out.Token)
	}
	return &out, nil
}

func (c *Client) GetUser(ctx context.Context, userID int64) (*domain.Profile, error) {
	var out domain.Profile
	if err := c.do(ctx, http.MethodGet, "/users/"+id(userID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SearchWorkers lists worker profiles matching criteria.
func (c *Client) SearchWorkers(ctx context.Context, criteria filter.Criteria) (*domain.ProfileSearch, error) {
	q := url.Values{"role": {domain.RoleWorker}}
	setFloat := func(key string, v *float64) {
		if v != nil {
			q.Set(key, strconv.FormatFloat(*v, 'f', -1, 64))
		}
	}
	setFloat("minAge", criteria.MinAge)
	setFloat("maxAge", criteria.MaxAge)
	setFloat("minExperience", criteria.MinExperience)
	setFloat("maxExperience", criteria.MaxExperience)
	if criteria.Pincode != "" {
		q.Set("pincode", criteria.Pincode)
	}
	if criteria.ShowAll {
		q.Set("showAll", "true")
	}

	var out domain.ProfileSearch
	if err := c.do(ctx, http.MethodGet, "/users?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListJobs(ctx context.Context) ([]domain.Job, error) {
	var out []domain.Job
	if err := c.do(ctx, http.MethodGet, "/jobs", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListJobsByOwner(ctx context.Context, ownerID int64) ([]domain.Job, error) {
	var out []domain.Job
	if err := c.do(ctx, http.MethodGet, "/jobs/owner/"+id(ownerID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateJob(ctx context.Context, job domain.Job) (*domain.Job, error) {
	var out domain.Job
	if err := c.do(ctx, http.MethodPost, "/jobs", job, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteJob(ctx context.Context, jobID int64) error {
	return c.do(ctx, http.MethodDelete, "/jobs/"+id(jobID), nil, nil)
}

// Apply submits an application. A repeat for the same job fails with
// apperror.ErrDuplicateApplication.
func (c *Client) Apply(ctx context.Context, in domain.ApplyInput) (*domain.Application, error) {
	var out domain.Application
	if err := c.do(ctx, http.MethodPost, "/applications", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ApplicationsByJob(ctx context.Context, jobID int64) ([]domain.Application, error) {
	var out []domain.Application
	if err := c.do(ctx, http.MethodGet, "/applications/job/"+id(jobID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ApplicationsByWorker(ctx context.Context, workerID int64) ([]domain.Application, error) {
	var out []domain.Application
	if err := c.do(ctx, http.MethodGet, "/applications/worker/"+id(workerID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SetStatus moves an application to PENDING, ACCEPTED or REJECTED.
func (c *Client) SetStatus(ctx context.Context, applicationID int64, status string, supersede bool) (*domain.StatusChange, error) {
	q := url.Values{"status": {strings.ToUpper(status)}}
	if supersede {
		q.Set("supersede", "true")
	}

	var out domain.StatusChange
	if err := c.do(ctx, http.MethodPut, "/applications/"+id(applicationID)+"/status?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SendChat(ctx context.Context, in domain.SendMessageInput) (*domain.ChatMessage, error) {
	var out domain.ChatMessage
	if err := c.do(ctx, http.MethodPost, "/chat", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ChatHistory(ctx context.Context, applicationID int64) ([]domain.ChatMessage, error) {
	var out []domain.ChatMessage
	if err := c.do(ctx, http.MethodGet, "/chat/"+id(applicationID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) OwnerApplicationCounts(ctx context.Context, ownerID int64) (map[int64]int64, error) {
	out := map[int64]int64{}
	if err := c.do(ctx, http.MethodGet, "/analytics/owner/"+id(ownerID)+"/application-counts", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) WorkerSummary(ctx context.Context, workerID int64) (*domain.WorkerSummary, error) {
	var out domain.WorkerSummary
	if err := c.do(ctx, http.MethodGet, "/analytics/worker/"+id(workerID)+"/summary", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
