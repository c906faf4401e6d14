package mock

import (
	"context"
	"io"
	"testing"

	"github.com/opst/trackfab-api-types/experiments"
	"github.com/opst/trackfab-api-types/runs"
	"github.com/opst/trackfab/pkg/tracking"
)

type LogParamArgs struct {
	RunId string
	Key   string
	Value string
}

type LogMetricArgs struct {
	RunId  string
	Metric runs.Metric
}

type SetTagArgs struct {
	RunId string
	Key   string
	Value string
}

type LogBatchArgs struct {
	RunId string
	Data  runs.Data
}

type CreateRunArgs struct {
	ExperimentId string
	RunName      string
	Tags         []runs.Tag
}

type PutArtifactArgs struct {
	ArtifactUri string
	Name        string
}

type GetArtifactArgs struct {
	ArtifactUri string
	Name        string
}

func New(t *testing.T) *mockTrackClient {
	return &mockTrackClient{t: t}
}

type mockTrackClient struct {
	t    *testing.T
	Impl struct {
		Health           func(ctx context.Context) error
		EnsureExperiment func(ctx context.Context, name string) (experiments.Detail, error)
		GetExperiment    func(ctx context.Context, name string) (experiments.Detail, error)
		CreateRun        func(ctx context.Context, experimentId string, runName string, tags []runs.Tag) (runs.Detail, error)
		GetRun           func(ctx context.Context, runId string) (runs.Detail, error)
		UpdateRun        func(ctx context.Context, update runs.UpdateRequest) (runs.Info, error)
		LogParam         func(ctx context.Context, runId string, key string, value string) error
		LogMetric        func(ctx context.Context, runId string, metric runs.Metric) error
		SetTag           func(ctx context.Context, runId string, key string, value string) error
		LogBatch         func(ctx context.Context, runId string, data runs.Data) error
		SearchRuns       func(ctx context.Context, query runs.SearchRequest) (runs.SearchResponse, error)
		PutArtifact      func(ctx context.Context, artifactUri string, name string, content io.Reader) error
		GetArtifact      func(ctx context.Context, artifactUri string, name string, handler func(io.Reader) error) error
	}
	Calls struct {
		Health           int
		EnsureExperiment []string
		GetExperiment    []string
		CreateRun        []CreateRunArgs
		GetRun           []string
		UpdateRun        []runs.UpdateRequest
		LogParam         []LogParamArgs
		LogMetric        []LogMetricArgs
		SetTag           []SetTagArgs
		LogBatch         []LogBatchArgs
		SearchRuns       []runs.SearchRequest
		PutArtifact      []PutArtifactArgs
		GetArtifact      []GetArtifactArgs
	}
}

var _ tracking.TrackClient = &mockTrackClient{}

func (m *mockTrackClient) Health(ctx context.Context) error {
	m.t.Helper()

	m.Calls.Health += 1
	if m.Impl.Health == nil {
		m.t.Fatal("Health is not ready to be called")
	}
	return m.Impl.Health(ctx)
}

func (m *mockTrackClient) EnsureExperiment(ctx context.Context, name string) (experiments.Detail, error) {
	m.t.Helper()

	m.Calls.EnsureExperiment = append(m.Calls.EnsureExperiment, name)
	if m.Impl.EnsureExperiment == nil {
		m.t.Fatal("EnsureExperiment is not ready to be called")
	}
	return m.Impl.EnsureExperiment(ctx, name)
}

func (m *mockTrackClient) GetExperiment(ctx context.Context, name string) (experiments.Detail, error) {
	m.t.Helper()

	m.Calls.GetExperiment = append(m.Calls.GetExperiment, name)
	if m.Impl.GetExperiment == nil {
		m.t.Fatal("GetExperiment is not ready to be called")
	}
	return m.Impl.GetExperiment(ctx, name)
}

func (m *mockTrackClient) CreateRun(ctx context.Context, experimentId string, runName string, tags []runs.Tag) (runs.Detail, error) {
	m.t.Helper()

	m.Calls.CreateRun = append(m.Calls.CreateRun, CreateRunArgs{
		ExperimentId: experimentId, RunName: runName, Tags: tags,
	})
	if m.Impl.CreateRun == nil {
		m.t.Fatal("CreateRun is not ready to be called")
	}
	return m.Impl.CreateRun(ctx, experimentId, runName, tags)
}

func (m *mockTrackClient) GetRun(ctx context.Context, runId string) (runs.Detail, error) {
	m.t.Helper()

	m.Calls.GetRun = append(m.Calls.GetRun, runId)
	if m.Impl.GetRun == nil {
		m.t.Fatal("GetRun is not ready to be called")
	}
	return m.Impl.GetRun(ctx, runId)
}

func (m *mockTrackClient) UpdateRun(ctx context.Context, update runs.UpdateRequest) (runs.Info, error) {
	m.t.Helper()

	m.Calls.UpdateRun = append(m.Calls.UpdateRun, update)
	if m.Impl.UpdateRun == nil {
		m.t.Fatal("UpdateRun is not ready to be called")
	}
	return m.Impl.UpdateRun(ctx, update)
}

func (m *mockTrackClient) LogParam(ctx context.Context, runId string, key string, value string) error {
	m.t.Helper()

	m.Calls.LogParam = append(m.Calls.LogParam, LogParamArgs{RunId: runId, Key: key, Value: value})
	if m.Impl.LogParam == nil {
		m.t.Fatal("LogParam is not ready to be called")
	}
	return m.Impl.LogParam(ctx, runId, key, value)
}

func (m *mockTrackClient) LogMetric(ctx context.Context, runId string, metric runs.Metric) error {
	m.t.Helper()

	m.Calls.LogMetric = append(m.Calls.LogMetric, LogMetricArgs{RunId: runId, Metric: metric})
	if m.Impl.LogMetric == nil {
		m.t.Fatal("LogMetric is not ready to be called")
	}
	return m.Impl.LogMetric(ctx, runId, metric)
}

func (m *mockTrackClient) SetTag(ctx context.Context, runId string, key string, value string) error {
	m.t.Helper()

	m.Calls.SetTag = append(m.Calls.SetTag, SetTagArgs{RunId: runId, Key: key, Value: value})
	if m.Impl.SetTag == nil {
		m.t.Fatal("SetTag is not ready to be called")
	}
	return m.Impl.SetTag(ctx, runId, key, value)
}

func (m *mockTrackClient) LogBatch(ctx context.Context, runId string, data runs.Data) error {
	m.t.Helper()

	m.Calls.LogBatch = append(m.Calls.LogBatch, LogBatchArgs{RunId: runId, Data: data})
	if m.Impl.LogBatch == nil {
		m.t.Fatal("LogBatch is not ready to be called")
	}
	return m.Impl.LogBatch(ctx, runId, data)
}

func (m *mockTrackClient) SearchRuns(ctx context.Context, query runs.SearchRequest) (runs.SearchResponse, error) {
	m.t.Helper()

	m.Calls.SearchRuns = append(m.Calls.SearchRuns, query)
	if m.Impl.SearchRuns == nil {
		m.t.Fatal("SearchRuns is not ready to be called")
	}
	return m.Impl.SearchRuns(ctx, query)
}

func (m *mockTrackClient) PutArtifact(ctx context.Context, artifactUri string, name string, content io.Reader) error {
	m.t.Helper()

	m.Calls.PutArtifact = append(m.Calls.PutArtifact, PutArtifactArgs{
		ArtifactUri: artifactUri, Name: name,
	})
	if m.Impl.PutArtifact == nil {
		m.t.Fatal("PutArtifact is not ready to be called")
	}
	return m.Impl.PutArtifact(ctx, artifactUri, name, content)
}

func (m *mockTrackClient) GetArtifact(ctx context.Context, artifactUri string, name string, handler func(io.Reader) error) error {
	m.t.Helper()

	m.Calls.GetArtifact = append(m.Calls.GetArtifact, GetArtifactArgs{
		ArtifactUri: artifactUri, Name: name,
	})
	if m.Impl.GetArtifact == nil {
		m.t.Fatal("GetArtifact is not ready to be called")
	}
	return m.Impl.GetArtifact(ctx, artifactUri, name, handler)
}
