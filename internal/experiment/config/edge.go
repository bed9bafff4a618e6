package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"splitlab/internal/experiment/models"
	dErrors "splitlab/pkg/domainerrors"
)

// defaultFetchTimeout bounds how long an assignment call may wait on the
// remote store before the fallback chain takes over.
const defaultFetchTimeout = 2 * time.Second

// edgeDocument is the wire shape served by the remote config store.
type edgeDocument struct {
	Tests []models.Test `json:"tests"`
}

// Edge fetches test definitions from a remote config service over HTTP. Every
// fetch carries a bounded timeout; assignment must never block indefinitely
// on configuration.
type Edge struct {
	url     string
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

// EdgeOption configures an Edge provider.
type EdgeOption func(*Edge)

// WithHTTPClient overrides the HTTP client, for tests.
func WithHTTPClient(client *http.Client) EdgeOption {
	return func(e *Edge) {
		e.client = client
	}
}

// WithFetchTimeout overrides the per-fetch timeout.
func WithFetchTimeout(d time.Duration) EdgeOption {
	return func(e *Edge) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithEdgeLogger sets the logger for dropped definitions.
func WithEdgeLogger(logger *slog.Logger) EdgeOption {
	return func(e *Edge) {
		e.logger = logger
	}
}

// NewEdge creates a provider fetching from url.
func NewEdge(url string, opts ...EdgeOption) *Edge {
	e := &Edge{
		url:     url,
		client:  &http.Client{},
		timeout: defaultFetchTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Edge) GetConfig(ctx context.Context) (models.ConfigSet, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.url, nil)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "build config request")
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "fetch test definitions")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, dErrors.Wrap(
			fmt.Errorf("config store returned %d", resp.StatusCode),
			dErrors.CodeUnavailable, "fetch test definitions",
		)
	}

	var doc edgeDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "decode test definitions")
	}

	set := make(models.ConfigSet, len(doc.Tests))
	for _, t := range doc.Tests {
		set[t.ID] = t
	}

	valid, errs := set.Validated()
	for _, verr := range errs {
		e.logger.WarnContext(ctx, "dropping invalid test definition", "url", e.url, "error", verr)
	}
	return valid, nil
}
