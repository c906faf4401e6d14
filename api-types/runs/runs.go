package runs

import (
	"github.com/opst/trackfab-api-types/internal/utils/cmp"
	"github.com/opst/trackfab-api-types/misc/millitime"
)

// Status of a run on the tracking API.
type Status string

const (
	StatusRunning   Status = "RUNNING"
	StatusScheduled Status = "SCHEDULED"
	StatusFinished  Status = "FINISHED"
	StatusFailed    Status = "FAILED"
	StatusKilled    Status = "KILLED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusRunning, StatusScheduled, StatusFinished, StatusFailed, StatusKilled:
		return true
	}
	return false
}

// Terminal returns true when no further status transition is allowed.
func (s Status) Terminal() bool {
	switch s {
	case StatusFinished, StatusFailed, StatusKilled:
		return true
	}
	return false
}

type Param struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (p Param) Equal(o Param) bool {
	return p.Key == o.Key && p.Value == o.Value
}

type Metric struct {
	Key       string         `json:"key"`
	Value     float64        `json:"value"`
	Timestamp millitime.Time `json:"timestamp"`
	Step      int64          `json:"step"`
}

func (m Metric) Equal(o Metric) bool {
	return m.Key == o.Key &&
		m.Value == o.Value &&
		m.Timestamp.Equal(o.Timestamp) &&
		m.Step == o.Step
}

type Tag struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (t Tag) Equal(o Tag) bool {
	return t.Key == o.Key && t.Value == o.Value
}

type Info struct {
	RunId        string         `json:"run_id"`
	ExperimentId string         `json:"experiment_id"`
	RunName      string         `json:"run_name,omitempty"`
	Status       Status         `json:"status"`
	StartTime    millitime.Time `json:"start_time"`

	// EndTime is nil while the run is not in a terminal status.
	EndTime        *millitime.Time `json:"end_time,omitempty"`
	ArtifactUri    string          `json:"artifact_uri,omitempty"`
	LifecycleStage string          `json:"lifecycle_stage,omitempty"`
}

func (i Info) Equal(o Info) bool {
	return i.RunId == o.RunId &&
		i.ExperimentId == o.ExperimentId &&
		i.RunName == o.RunName &&
		i.Status == o.Status &&
		i.StartTime.Equal(o.StartTime) &&
		equalTimePointer(i.EndTime, o.EndTime) &&
		i.ArtifactUri == o.ArtifactUri &&
		i.LifecycleStage == o.LifecycleStage
}

func equalTimePointer(a, b *millitime.Time) bool {
	if (a == nil) || (b == nil) {
		return (a == nil) && (b == nil)
	}
	return a.Equal(*b)
}

type Data struct {
	Metrics []Metric `json:"metrics,omitempty"`
	Params  []Param  `json:"params,omitempty"`
	Tags    []Tag    `json:"tags,omitempty"`
}

func (d Data) Equal(o Data) bool {
	return cmp.SliceEqualUnordered(d.Metrics, o.Metrics) &&
		cmp.SliceEqualUnordered(d.Params, o.Params) &&
		cmp.SliceEqualUnordered(d.Tags, o.Tags)
}

type Detail struct {
	Info Info `json:"info"`
	Data Data `json:"data"`
}

func (r Detail) Equal(o Detail) bool {
	return r.Info.Equal(o.Info) && r.Data.Equal(o.Data)
}

type CreateRequest struct {
	ExperimentId string         `json:"experiment_id"`
	RunName      string         `json:"run_name,omitempty"`
	StartTime    millitime.Time `json:"start_time"`
	Tags         []Tag          `json:"tags,omitempty"`
}

// CreateResponse is the envelope of "runs/create".
type CreateResponse struct {
	Run Detail `json:"run"`
}

// GetResponse is the envelope of "runs/get".
type GetResponse struct {
	Run Detail `json:"run"`
}

type UpdateRequest struct {
	RunId   string          `json:"run_id"`
	Status  Status          `json:"status,omitempty"`
	EndTime *millitime.Time `json:"end_time,omitempty"`
	RunName string          `json:"run_name,omitempty"`
}

// UpdateResponse is the envelope of "runs/update".
type UpdateResponse struct {
	RunInfo Info `json:"run_info"`
}

type LogParamRequest struct {
	RunId string `json:"run_id"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

type LogMetricRequest struct {
	RunId     string         `json:"run_id"`
	Key       string         `json:"key"`
	Value     float64        `json:"value"`
	Timestamp millitime.Time `json:"timestamp"`
	Step      int64          `json:"step"`
}

type SetTagRequest struct {
	RunId string `json:"run_id"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

type LogBatchRequest struct {
	RunId   string   `json:"run_id"`
	Metrics []Metric `json:"metrics,omitempty"`
	Params  []Param  `json:"params,omitempty"`
	Tags    []Tag    `json:"tags,omitempty"`
}

type SearchRequest struct {
	ExperimentIds []string `json:"experiment_ids"`
	Filter        string   `json:"filter,omitempty"`
	MaxResults    int32    `json:"max_results,omitempty"`
	OrderBy       []string `json:"order_by,omitempty"`
	PageToken     string   `json:"page_token,omitempty"`
}

type SearchResponse struct {
	Runs          []Detail `json:"runs,omitempty"`
	NextPageToken string   `json:"next_page_token,omitempty"`
}
