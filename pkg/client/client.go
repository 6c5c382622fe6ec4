// Package client is the API client used by wizard front-ends. Configuration
// is injected: callers supply the base URL and a credential provider rather
// than relying on ambient globals.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// FailureKind classifies a submission failure.
type FailureKind int

const (
	// FailureUnauthenticated means the credential was missing or rejected;
	// the caller should re-authenticate.
	FailureUnauthenticated FailureKind = iota
	// FailureValidation means the server rejected the payload, possibly with
	// field-level detail.
	FailureValidation
	// FailureTransient means a network or server error; the user may retry
	// by re-triggering submission.
	FailureTransient
)

func (k FailureKind) String() string {
	switch k {
	case FailureUnauthenticated:
		return "unauthenticated"
	case FailureValidation:
		return "validation"
	case FailureTransient:
		return "transient"
	default:
		return fmt.Sprintf("failure(%d)", int(k))
	}
}

// APIError is a classified request failure.
type APIError struct {
	Kind    FailureKind
	Message string
	// Fields carries field-level validation messages when the server
	// reported them.
	Fields map[string][]string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// ErrSubmissionInFlight is returned when a submit is attempted while another
// submission has not finished. The caller must not mutate the draft until the
// in-flight request settles.
var ErrSubmissionInFlight = errors.New("client: a submission is already in flight")

// CredentialProvider supplies the bearer credential attached to requests.
type CredentialProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a CredentialProvider returning a fixed token.
type StaticToken string

// Token returns the fixed token.
func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

// Config describes an API client.
type Config struct {
	BaseURL     string
	Credentials CredentialProvider
	HTTPClient  *http.Client
}

// Client talks to the backend's snapshot and workout endpoints.
type Client struct {
	baseURL     string
	credentials CredentialProvider
	httpClient  *http.Client
	inFlight    atomic.Bool
}

// New constructs a Client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("client: base url is required")
	}
	if cfg.Credentials == nil {
		return nil, errors.New("client: credential provider is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		credentials: cfg.Credentials,
		httpClient:  httpClient,
	}, nil
}

// InFlight reports whether a submission is currently outstanding. UIs use it
// to disable edits and toggles while a draft is mid-flight.
func (c *Client) InFlight() bool {
	return c.inFlight.Load()
}

// Selection mirrors one chosen entity within a category.
type Selection struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Record mirrors one stored attribute record.
type Record struct {
	Category string `json:"category"`
	Name     string `json:"name"`
	Value    string `json:"value"`
}

// SubmitResult reports a successful snapshot submission.
type SubmitResult struct {
	SavedCount int
	Records    []Record
}

// Workout mirrors a created or listed workout.
type Workout struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Description      string   `json:"description"`
	Muscules         []string `json:"muscules"`
	Active           bool     `json:"active"`
	CreatedAtSeconds int64    `json:"created_at_s"`
}

type envelope struct {
	Status  string              `json:"status"`
	Message string              `json:"message"`
	Data    json.RawMessage     `json:"data"`
	Errors  map[string][]string `json:"errors"`
}

type savedData struct {
	SavedCount int      `json:"saved_count"`
	Records    []Record `json:"records"`
}

// SubmitMetrics sends a complete metrics snapshot, replacing all previously
// stored metrics for the authenticated owner. No retry is performed on
// failure; the caller's draft stays intact for resubmission.
func (c *Client) SubmitMetrics(ctx context.Context, snapshot map[string]map[string]string) (SubmitResult, error) {
	return c.submit(ctx, "/api/metrics", snapshot)
}

// SubmitMuscles sends a complete muscle selection snapshot, replacing all
// previously stored muscles for the authenticated owner.
func (c *Client) SubmitMuscles(ctx context.Context, selections map[string][]Selection) (SubmitResult, error) {
	return c.submit(ctx, "/api/muscles", selections)
}

func (c *Client) submit(ctx context.Context, path string, payload interface{}) (SubmitResult, error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		return SubmitResult{}, ErrSubmissionInFlight
	}
	defer c.inFlight.Store(false)

	body, err := c.do(ctx, http.MethodPost, path, payload, http.StatusCreated)
	if err != nil {
		return SubmitResult{}, err
	}

	var data savedData
	if err := json.Unmarshal(body, &data); err != nil {
		return SubmitResult{}, &APIError{Kind: FailureTransient, Message: "malformed server response"}
	}
	return SubmitResult{SavedCount: data.SavedCount, Records: data.Records}, nil
}

// FetchMetrics returns the stored metrics grouped by category.
func (c *Client) FetchMetrics(ctx context.Context) (map[string][]Record, error) {
	return c.fetchGrouped(ctx, "/api/metrics")
}

// FetchMuscles returns the stored muscle selections grouped by category.
func (c *Client) FetchMuscles(ctx context.Context) (map[string][]Record, error) {
	return c.fetchGrouped(ctx, "/api/muscles")
}

func (c *Client) fetchGrouped(ctx context.Context, path string) (map[string][]Record, error) {
	body, err := c.do(ctx, http.MethodGet, path, nil, http.StatusOK)
	if err != nil {
		return nil, err
	}

	grouped := make(map[string][]Record)
	if err := json.Unmarshal(body, &grouped); err != nil {
		return nil, &APIError{Kind: FailureTransient, Message: "malformed server response"}
	}
	return grouped, nil
}

// CreateWorkout creates a workout that freezes the owner's current muscle
// snapshot server-side.
func (c *Client) CreateWorkout(ctx context.Context, name, description string) (Workout, error) {
	payload := map[string]string{"name": name, "description": description}
	body, err := c.do(ctx, http.MethodPost, "/api/workouts", payload, http.StatusCreated)
	if err != nil {
		return Workout{}, err
	}

	var workout Workout
	if err := json.Unmarshal(body, &workout); err != nil {
		return Workout{}, &APIError{Kind: FailureTransient, Message: "malformed server response"}
	}
	return workout, nil
}

// ListWorkouts returns the owner's active workouts.
func (c *Client) ListWorkouts(ctx context.Context) ([]Workout, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/workouts", nil, http.StatusOK)
	if err != nil {
		return nil, err
	}

	var listed []Workout
	if err := json.Unmarshal(body, &listed); err != nil {
		return nil, &APIError{Kind: FailureTransient, Message: "malformed server response"}
	}
	return listed, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload interface{}, wantStatus int) (json.RawMessage, error) {
	token, err := c.credentials.Token(ctx)
	if err != nil || strings.TrimSpace(token) == "" {
		return nil, &APIError{Kind: FailureUnauthenticated, Message: "no credential available"}
	}

	var bodyReader io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, &APIError{Kind: FailureValidation, Message: "unencodable payload"}
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, &APIError{Kind: FailureTransient, Message: err.Error()}
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")
	request.Header.Set("Authorization", "Bearer "+token)

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, &APIError{Kind: FailureTransient, Message: err.Error()}
	}
	defer response.Body.Close()

	raw, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, &APIError{Kind: FailureTransient, Message: err.Error()}
	}

	var parsed envelope
	if len(raw) > 0 {
		// A non-JSON body (e.g. a proxy error page) is treated as transient.
		if err := json.Unmarshal(raw, &parsed); err != nil && response.StatusCode == wantStatus {
			return nil, &APIError{Kind: FailureTransient, Message: "malformed server response"}
		}
	}

	switch {
	case response.StatusCode == wantStatus:
		return parsed.Data, nil
	case response.StatusCode == http.StatusUnauthorized:
		return nil, &APIError{Kind: FailureUnauthenticated, Message: parsed.Message}
	case response.StatusCode == http.StatusUnprocessableEntity:
		return nil, &APIError{Kind: FailureValidation, Message: parsed.Message, Fields: parsed.Errors}
	default:
		message := parsed.Message
		if message == "" {
			message = fmt.Sprintf("unexpected status %d", response.StatusCode)
		}
		return nil, &APIError{Kind: FailureTransient, Message: message}
	}
}
