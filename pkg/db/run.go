package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opst/trackfab/pkg/utils/cmp"
)

type RunStatus string

const (
	// This Run is queued but has not reported anything yet.
	Scheduled RunStatus = "SCHEDULED"

	// This Run is running.
	Running RunStatus = "RUNNING"

	// This Run has been done, successfully.
	Finished RunStatus = "FINISHED"

	// This Run stopped with error.
	Failed RunStatus = "FAILED"

	// This Run was stopped from outside.
	Killed RunStatus = "KILLED"
)

func (rs RunStatus) String() string {
	return string(rs)
}

func AsRunStatus(status string) (RunStatus, error) {
	switch status {
	case string(Scheduled):
		return Scheduled, nil
	case string(Running):
		return Running, nil
	case string(Finished):
		return Finished, nil
	case string(Failed):
		return Failed, nil
	case string(Killed):
		return Killed, nil
	default:
		return "", fmt.Errorf("'%s' is not RunStatus", status)
	}
}

// IsTerminal returns true when no further work is expected for a run in this status.
func (rs RunStatus) IsTerminal() bool {
	switch rs {
	case Finished, Failed, Killed:
		return true
	default:
		return false
	}
}

type Param struct {
	Key   string
	Value string
}

type Metric struct {
	Key       string
	Value     float64
	Timestamp time.Time
	Step      int64
}

func (m Metric) Equal(o Metric) bool {
	return m.Key == o.Key &&
		m.Value == o.Value &&
		m.Timestamp.Equal(o.Timestamp) &&
		m.Step == o.Step
}

// Newer returns true when m should replace o as the latest point of its key.
func (m Metric) Newer(o Metric) bool {
	if m.Step != o.Step {
		return o.Step < m.Step
	}
	if !m.Timestamp.Equal(o.Timestamp) {
		return o.Timestamp.Before(m.Timestamp)
	}
	return o.Value <= m.Value
}

type Tag struct {
	Key   string
	Value string
}

type RunBody struct {
	Id             string
	ExperimentId   int64
	Name           string
	Status         RunStatus
	StartedAt      time.Time
	EndedAt        *time.Time
	ArtifactUri    string
	LifecycleStage LifecycleStage
	UpdatedAt      time.Time
}

func (rb RunBody) Equal(o RunBody) bool {
	if (rb.EndedAt == nil) != (o.EndedAt == nil) {
		return false
	}
	if rb.EndedAt != nil && !rb.EndedAt.Equal(*o.EndedAt) {
		return false
	}
	return rb.Id == o.Id &&
		rb.ExperimentId == o.ExperimentId &&
		rb.Name == o.Name &&
		rb.Status == o.Status &&
		rb.StartedAt.Equal(o.StartedAt) &&
		rb.ArtifactUri == o.ArtifactUri &&
		rb.LifecycleStage == o.LifecycleStage &&
		rb.UpdatedAt.Equal(o.UpdatedAt)
}

type Run struct {
	RunBody

	Params []Param

	// Metrics holds the latest point per metric key.
	Metrics []Metric

	Tags []Tag
}

func (r Run) Equal(o Run) bool {
	return r.RunBody.Equal(o.RunBody) &&
		cmp.SliceContentEq(r.Params, o.Params) &&
		cmp.SliceContentEqWith(r.Metrics, o.Metrics, Metric.Equal) &&
		cmp.SliceContentEq(r.Tags, o.Tags)
}

// LatestMetric returns the latest point of the metric key, if the run has one.
func (r Run) LatestMetric(key string) (Metric, bool) {
	for _, m := range r.Metrics {
		if m.Key == key {
			return m, true
		}
	}
	return Metric{}, false
}

func (r Run) Param(key string) (string, bool) {
	for _, p := range r.Params {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

func (r Run) Tag(key string) (string, bool) {
	for _, t := range r.Tags {
		if t.Key == key {
			return t.Value, true
		}
	}
	return "", false
}

var (
	// a param is logged again with a value different from the recorded one.
	ErrConflictingParam = errors.New("param is already logged with another value")
)

func NewErrConflictingParam(key string, recorded string, requested string) error {
	return fmt.Errorf(
		"%w: %s is '%s', not '%s'", ErrConflictingParam, key, recorded, requested,
	)
}

// RunDelta is a partial update of a run. Zero-value fields are kept as is.
type RunDelta struct {
	Status  RunStatus
	Name    *string
	EndedAt *time.Time
}

type RunFindQuery struct {
	ExperimentIds []int64
	Conditions    []RunCondition
	OrderBy       []RunOrder

	// Limit bounds the page size. Non-positive means unbounded.
	Limit int32

	// Offset skips preceding runs in the sorted sequence.
	Offset int64
}

type RunPage struct {
	Runs []Run

	// NextOffset is set when more runs remain after this page.
	NextOffset *int64
}

type RunInterface interface {
	// create a new run under an active experiment.
	//
	// # Args
	//
	// - context.Context
	//
	// - experimentId
	//
	// - name: run name. It may be empty.
	//
	// - startedAt
	//
	// - tags: tags to be set on the new run.
	//
	// # Returns
	//
	// - Run: the created run, in Running status, with its artifact uri assigned.
	//
	// - error: ErrMissing when the experiment does not exist or is not active.
	New(ctx context.Context, experimentId int64, name string, startedAt time.Time, tags []Tag) (Run, error)

	// get runs by ids, with params, latest metrics and tags.
	//
	// The returned map has entries only for run ids which are found.
	Get(ctx context.Context, runIds []string) (map[string]Run, error)

	// update status, name and/or end time of a run.
	//
	// # Returns
	//
	// - Run: the run after the update.
	//
	// - error: ErrMissing when the run does not exist.
	Update(ctx context.Context, runId string, delta RunDelta) (Run, error)

	// record params of a run.
	//
	// Logging a param twice with the same value is a no-op.
	//
	// # Returns
	//
	// - error: ErrMissing when the run does not exist.
	// ErrConflictingParam when a param is already recorded with another value.
	LogParams(ctx context.Context, runId string, params []Param) error

	// record metric points of a run, keeping the latest point per key.
	//
	// # Returns
	//
	// - error: ErrMissing when the run does not exist.
	LogMetrics(ctx context.Context, runId string, metrics []Metric) error

	// set tags of a run. Existing tags with the same key are overwritten.
	//
	// # Returns
	//
	// - error: ErrMissing when the run does not exist.
	SetTags(ctx context.Context, runId string, tags []Tag) error

	// record metrics, params and tags in a single transaction.
	//
	// When any of them is rejected, none is recorded.
	LogBatch(ctx context.Context, runId string, metrics []Metric, params []Param, tags []Tag) error

	// find active runs of experiments, filtered, sorted and paged by query.
	Find(ctx context.Context, query RunFindQuery) (RunPage, error)

	// mark non-terminal runs which have not been updated since before as Failed.
	//
	// # Returns
	//
	// - []string: ids of runs which are marked.
	FailStale(ctx context.Context, before time.Time) ([]string, error)
}
