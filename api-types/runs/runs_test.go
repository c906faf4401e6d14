package runs_test

import (
	"encoding/json"
	"testing"

	"github.com/opst/trackfab-api-types/misc/millitime"
	"github.com/opst/trackfab-api-types/runs"
)

func TestDetail_unmarshal(t *testing.T) {
	expr := `{
		"info": {
			"run_id": "abc123",
			"experiment_id": "1",
			"run_name": "run_2",
			"status": "FINISHED",
			"start_time": 1711974645123,
			"end_time": 1711974646000,
			"artifact_uri": "mlflow-artifacts:/1/abc123/artifacts",
			"lifecycle_stage": "active"
		},
		"data": {
			"metrics": [
				{"key": "accuracy", "value": 0.93, "timestamp": 1711974646000, "step": 0}
			],
			"params": [
				{"key": "n_estimators", "value": "100"},
				{"key": "max_depth", "value": "5"}
			]
		}
	}`

	got := new(runs.Detail)
	if err := json.Unmarshal([]byte(expr), got); err != nil {
		t.Fatal(err)
	}

	endTime := millitime.FromMilli(1711974646000)
	want := runs.Detail{
		Info: runs.Info{
			RunId:          "abc123",
			ExperimentId:   "1",
			RunName:        "run_2",
			Status:         runs.StatusFinished,
			StartTime:      millitime.FromMilli(1711974645123),
			EndTime:        &endTime,
			ArtifactUri:    "mlflow-artifacts:/1/abc123/artifacts",
			LifecycleStage: "active",
		},
		Data: runs.Data{
			Metrics: []runs.Metric{
				{Key: "accuracy", Value: 0.93, Timestamp: millitime.FromMilli(1711974646000), Step: 0},
			},
			Params: []runs.Param{
				{Key: "n_estimators", Value: "100"},
				{Key: "max_depth", Value: "5"},
			},
		},
	}

	if !got.Equal(want) {
		t.Errorf("unmatch:\n- actual  : %+v\n- expected: %+v", *got, want)
	}
}

func TestData_Equal_ignoresOrdering(t *testing.T) {
	a := runs.Data{
		Params: []runs.Param{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}},
	}
	b := runs.Data{
		Params: []runs.Param{{Key: "b", Value: "2"}, {Key: "a", Value: "1"}},
	}

	if !a.Equal(b) {
		t.Error("Data.Equal should not care ordering of params")
	}

	c := runs.Data{
		Params: []runs.Param{{Key: "a", Value: "1"}},
	}
	if a.Equal(c) {
		t.Error("Data with different params should not be equal")
	}
}

func TestStatus(t *testing.T) {
	for _, s := range []runs.Status{
		runs.StatusRunning, runs.StatusScheduled, runs.StatusFinished,
		runs.StatusFailed, runs.StatusKilled,
	} {
		if !s.Valid() {
			t.Errorf("%s should be valid", s)
		}
	}
	if runs.Status("DONE").Valid() {
		t.Error("DONE is not a status")
	}

	if runs.StatusRunning.Terminal() || runs.StatusScheduled.Terminal() {
		t.Error("RUNNING and SCHEDULED are not terminal")
	}
	for _, s := range []runs.Status{
		runs.StatusFinished, runs.StatusFailed, runs.StatusKilled,
	} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}
