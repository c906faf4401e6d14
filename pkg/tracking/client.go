package tracking

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/opst/trackfab-api-types/experiments"
	"github.com/opst/trackfab-api-types/runs"
	"github.com/opst/trackfab/pkg/utils/slices"
)

var ErrApiRootInvalid = errors.New("api root is invalid")

type TrackClient interface {
	// Health checks that the tracking server is up.
	//
	// Returns
	//
	// - error: nil when the server responds healthy.
	Health(ctx context.Context) error

	// EnsureExperiment creates an experiment, or fetches it when one with
	// the name exists already.
	//
	// Args
	//
	// - context.Context
	//
	// - string: name of the experiment
	//
	// Returns
	//
	// - experiments.Detail: the experiment, as the server knows it
	//
	// - error
	EnsureExperiment(ctx context.Context, name string) (experiments.Detail, error)

	// GetExperiment fetches an experiment by name, without creating it.
	GetExperiment(ctx context.Context, name string) (experiments.Detail, error)

	// CreateRun starts a new run in an experiment.
	//
	// Args
	//
	// - context.Context
	//
	// - string: experiment id the run belongs to
	//
	// - string: name of the run. can be empty.
	//
	// - []runs.Tag: initial tags
	//
	// Returns
	//
	// - runs.Detail: the created run
	//
	// - error
	CreateRun(ctx context.Context, experimentId string, runName string, tags []runs.Tag) (runs.Detail, error)

	// GetRun fetches a run by id.
	GetRun(ctx context.Context, runId string) (runs.Detail, error)

	// UpdateRun sets the status (and, for terminal statuses, the end time)
	// of a run.
	//
	// Returns
	//
	// - runs.Info: metadata of the updated run
	//
	// - error
	UpdateRun(ctx context.Context, req runs.UpdateRequest) (runs.Info, error)

	// LogParam records a single param of a run.
	LogParam(ctx context.Context, runId string, key string, value string) error

	// LogMetric records a single metric point of a run.
	LogMetric(ctx context.Context, runId string, metric runs.Metric) error

	// SetTag sets a tag on a run.
	SetTag(ctx context.Context, runId string, key string, value string) error

	// LogBatch records metrics, params and tags of a run in one request.
	LogBatch(ctx context.Context, runId string, data runs.Data) error

	// SearchRuns queries runs over experiments.
	//
	// Args
	//
	// - context.Context
	//
	// - runs.SearchRequest: experiment ids (required), filter, ordering,
	// paging.
	//
	// Returns
	//
	// - runs.SearchResponse: matched runs and, when more are left, the
	// token of the next page
	//
	// - error
	SearchRuns(ctx context.Context, query runs.SearchRequest) (runs.SearchResponse, error)

	// PutArtifact uploads an artifact file of a run through the tracking
	// server.
	//
	// Args
	//
	// - context.Context
	//
	// - string: the run's artifact uri. It should be proxied
	// ("mlflow-artifacts:" scheme); other schemes are rejected.
	//
	// - string: name of the file to be put
	//
	// - io.Reader: content
	//
	// Returns
	//
	// - error
	PutArtifact(ctx context.Context, artifactUri string, name string, content io.Reader) error

	// GetArtifact downloads an artifact file of a run.
	//
	// Args
	//
	// - handler: function to be called for the raw stream.
	// If handler returns an error, downloading is stopped and the error
	// is returned.
	GetArtifact(ctx context.Context, artifactUri string, name string, handler func(io.Reader) error) error
}

type client struct {
	httpclient *http.Client
	api        string
	token      string
}

type ClientOption func(*client)

// WithToken sets a bearer token to be sent with each request.
func WithToken(token string) ClientOption {
	return func(c *client) {
		c.token = token
	}
}

// create a new client for a tracking server.
//
// # Args
//
// - apiRoot: base URL of the server, like "http://localhost:5000"
//
// - options: ClientOptions, applied in order
//
// # Return
//
// - TrackClient: created client
//
// - error: ErrApiRootInvalid when apiRoot is empty.
func NewClient(apiRoot string, options ...ClientOption) (TrackClient, error) {
	if strings.TrimSpace(apiRoot) == "" {
		return nil, ErrApiRootInvalid
	}

	c := &client{
		httpclient: new(http.Client),
		api:        strings.TrimSuffix(apiRoot, "/"),
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

func (c *client) do(req *http.Request) (*http.Response, error) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return c.httpclient.Do(req)
}

// build URL with path
func (c *client) apipath(path ...string) string {
	path = slices.Map(path, func(p string) string {
		return strings.TrimPrefix(strings.TrimSuffix(p, "/"), "/")
	})

	return strings.Join(append([]string{c.api}, path...), "/")
}

// URL of a tracking API endpoint.
func (c *client) mlflow(path ...string) string {
	return c.apipath(append([]string{"api/2.0/mlflow"}, path...)...)
}

// URL of a proxied artifact.
func (c *client) artifact(path ...string) string {
	return c.apipath(append([]string{"api/2.0/mlflow-artifacts/artifacts"}, path...)...)
}

func (c *client) postJson(ctx context.Context, url string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}
