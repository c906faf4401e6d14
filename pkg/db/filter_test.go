package db_test

import (
	"testing"
	"time"

	"github.com/opst/trackfab/pkg/db"
	"github.com/opst/trackfab/pkg/utils/cmp"
	"github.com/opst/trackfab/pkg/utils/slices"
	"github.com/opst/trackfab/pkg/utils/try"
)

func TestParseRunFilter(t *testing.T) {
	type When struct {
		filter string
	}
	type Then struct {
		conditions []db.RunCondition
	}

	theory := func(when When, then Then) func(*testing.T) {
		return func(t *testing.T) {
			actual := try.To(db.ParseRunFilter(when.filter)).OrFatal(t)
			if !cmp.SliceEq(actual, then.conditions) {
				t.Errorf(
					"unmatch: (actual, expected) = (%+v, %+v)",
					actual, then.conditions,
				)
			}
		}
	}

	t.Run("empty filter has no conditions", theory(
		When{filter: ""},
		Then{conditions: []db.RunCondition{}},
	))
	t.Run("blank filter has no conditions", theory(
		When{filter: "   "},
		Then{conditions: []db.RunCondition{}},
	))
	t.Run("metric against a number", theory(
		When{filter: "metrics.accuracy >= 0.9"},
		Then{conditions: []db.RunCondition{
			{Subject: db.SubjectMetric, Key: "accuracy", Op: ">=", Number: 0.9},
		}},
	))
	t.Run("subjects may be singular", theory(
		When{filter: "metric.loss < 1e-2"},
		Then{conditions: []db.RunCondition{
			{Subject: db.SubjectMetric, Key: "loss", Op: "<", Number: 0.01},
		}},
	))
	t.Run("conjunction of subjects", theory(
		When{filter: "params.model = 'forest' AND tags.team != \"ml\" AND attributes.status = 'FINISHED'"},
		Then{conditions: []db.RunCondition{
			{Subject: db.SubjectParam, Key: "model", Op: "=", Value: "forest"},
			{Subject: db.SubjectTag, Key: "team", Op: "!=", Value: "ml"},
			{Subject: db.SubjectAttribute, Key: "status", Op: "=", Value: "FINISHED"},
		}},
	))
	t.Run("key without subject is an attribute", theory(
		When{filter: "run_name LIKE '%forest%'"},
		Then{conditions: []db.RunCondition{
			{Subject: db.SubjectAttribute, Key: "run_name", Op: "LIKE", Value: "%forest%"},
		}},
	))
	t.Run("keys may be quoted", theory(
		When{filter: "tags.`my tag` = 'x' and params.\"max depth\" = '7'"},
		Then{conditions: []db.RunCondition{
			{Subject: db.SubjectTag, Key: "my tag", Op: "=", Value: "x"},
			{Subject: db.SubjectParam, Key: "max depth", Op: "=", Value: "7"},
		}},
	))
	t.Run("start_time against unix milliseconds", theory(
		When{filter: "start_time > 1700000000000"},
		Then{conditions: []db.RunCondition{
			{Subject: db.SubjectAttribute, Key: "start_time", Op: ">", Number: 1700000000000},
		}},
	))

	shouldFail := func(filter string) func(*testing.T) {
		return func(t *testing.T) {
			if _, err := db.ParseRunFilter(filter); err == nil {
				t.Errorf("no error caused by filter %q", filter)
			}
		}
	}

	t.Run("unknown subject is rejected", shouldFail("foo.x = 'y'"))
	t.Run("unknown attribute is rejected", shouldFail("attributes.foo = 'x'"))
	t.Run("LIKE is rejected for metrics", shouldFail("metrics.accuracy LIKE 0.9"))
	t.Run("ordering is rejected for params", shouldFail("params.model > 'forest'"))
	t.Run("number is rejected for params", shouldFail("params.max_depth = 7"))
	t.Run("string is rejected for metrics", shouldFail("metrics.accuracy = 'high'"))
	t.Run("bare word is rejected as a value", shouldFail("params.model = forest"))
	t.Run("comparisons need AND between", shouldFail("params.x = 'a' params.y = 'b'"))
	t.Run("OR is not a conjunction", shouldFail("params.x = 'a' OR params.y = 'b'"))
	t.Run("unclosed quote is rejected", shouldFail("params.x = 'a"))
	t.Run("trailing AND is rejected", shouldFail("params.x = 'a' AND"))
}

func TestRunCondition_Match(t *testing.T) {
	started := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	ended := started.Add(90 * time.Second)
	run := db.Run{
		RunBody: db.RunBody{
			Id:             "5f2e6a0c4f5e4b5d8a31c0ffee00beef",
			ExperimentId:   1,
			Name:           "forest-run-3",
			Status:         db.Finished,
			StartedAt:      started,
			EndedAt:        &ended,
			ArtifactUri:    "file:///trackfab/artifacts/1/5f2e6a0c4f5e4b5d8a31c0ffee00beef/artifacts",
			LifecycleStage: db.StageActive,
		},
		Params: []db.Param{
			{Key: "model", Value: "forest"},
			{Key: "max_depth", Value: "7"},
		},
		Metrics: []db.Metric{
			{Key: "accuracy", Value: 0.93, Timestamp: ended, Step: 0},
		},
		Tags: []db.Tag{
			{Key: "team", Value: "ML Platform"},
		},
	}

	for name, testcase := range map[string]struct {
		when db.RunCondition
		then bool
	}{
		"metric over the bound matches": {
			when: db.RunCondition{Subject: db.SubjectMetric, Key: "accuracy", Op: ">", Number: 0.9},
			then: true,
		},
		"metric under the bound does not match": {
			when: db.RunCondition{Subject: db.SubjectMetric, Key: "accuracy", Op: ">=", Number: 0.95},
			then: false,
		},
		"missing metric never matches": {
			when: db.RunCondition{Subject: db.SubjectMetric, Key: "loss", Op: "<", Number: 1},
			then: false,
		},
		"missing metric does not match even with !=": {
			when: db.RunCondition{Subject: db.SubjectMetric, Key: "loss", Op: "!=", Number: 1},
			then: false,
		},
		"param equality matches": {
			when: db.RunCondition{Subject: db.SubjectParam, Key: "model", Op: "=", Value: "forest"},
			then: true,
		},
		"param inequality matches other values": {
			when: db.RunCondition{Subject: db.SubjectParam, Key: "model", Op: "!=", Value: "tree"},
			then: true,
		},
		"LIKE matches with wildcard": {
			when: db.RunCondition{Subject: db.SubjectParam, Key: "model", Op: "LIKE", Value: "fo%"},
			then: true,
		},
		"LIKE is case sensitive": {
			when: db.RunCondition{Subject: db.SubjectParam, Key: "model", Op: "LIKE", Value: "FO%"},
			then: false,
		},
		"ILIKE folds case": {
			when: db.RunCondition{Subject: db.SubjectTag, Key: "team", Op: "ILIKE", Value: "ml%"},
			then: true,
		},
		"underscore matches a single char": {
			when: db.RunCondition{Subject: db.SubjectAttribute, Key: "run_name", Op: "LIKE", Value: "%run_3"},
			then: true,
		},
		"status matches as a string": {
			when: db.RunCondition{Subject: db.SubjectAttribute, Key: "status", Op: "=", Value: "FINISHED"},
			then: true,
		},
		"run_id matches as a string": {
			when: db.RunCondition{Subject: db.SubjectAttribute, Key: "run_id", Op: "=", Value: "5f2e6a0c4f5e4b5d8a31c0ffee00beef"},
			then: true,
		},
		"start_time compares in milliseconds": {
			when: db.RunCondition{Subject: db.SubjectAttribute, Key: "start_time", Op: "<=", Number: float64(started.UnixMilli())},
			then: true,
		},
		"end_time compares in milliseconds": {
			when: db.RunCondition{Subject: db.SubjectAttribute, Key: "end_time", Op: ">", Number: float64(started.UnixMilli())},
			then: true,
		},
	} {
		t.Run(name, func(t *testing.T) {
			if actual := testcase.when.Match(run); actual != testcase.then {
				t.Errorf(
					"unmatch: (actual, expected) = (%v, %v)",
					actual, testcase.then,
				)
			}
		})
	}

	t.Run("a run without end time does not match on end_time", func(t *testing.T) {
		running := run
		running.EndedAt = nil
		running.Status = db.Running
		cond := db.RunCondition{
			Subject: db.SubjectAttribute, Key: "end_time", Op: ">", Number: 0,
		}
		if cond.Match(running) {
			t.Error("a run without end time matched on end_time")
		}
	})
}

func TestParseRunOrder(t *testing.T) {
	type When struct {
		clause string
	}
	type Then struct {
		order db.RunOrder
	}

	theory := func(when When, then Then) func(*testing.T) {
		return func(t *testing.T) {
			actual := try.To(db.ParseRunOrder(when.clause)).OrFatal(t)
			if actual != then.order {
				t.Errorf(
					"unmatch: (actual, expected) = (%+v, %+v)",
					actual, then.order,
				)
			}
		}
	}

	t.Run("metric descending", theory(
		When{clause: "metrics.accuracy DESC"},
		Then{order: db.RunOrder{Subject: db.SubjectMetric, Key: "accuracy", Desc: true}},
	))
	t.Run("direction defaults to ascending", theory(
		When{clause: "start_time"},
		Then{order: db.RunOrder{Subject: db.SubjectAttribute, Key: "start_time"}},
	))
	t.Run("param ascending", theory(
		When{clause: "params.model asc"},
		Then{order: db.RunOrder{Subject: db.SubjectParam, Key: "model"}},
	))

	shouldFail := func(clause string) func(*testing.T) {
		return func(t *testing.T) {
			if _, err := db.ParseRunOrder(clause); err == nil {
				t.Errorf("no error caused by order %q", clause)
			}
		}
	}

	t.Run("unknown attribute is rejected", shouldFail("attributes.foo"))
	t.Run("direction is ASC or DESC only", shouldFail("metrics.accuracy DOWN"))
	t.Run("trailing junk is rejected", shouldFail("metrics.accuracy DESC extra"))
}

func TestSortRuns(t *testing.T) {
	at := func(offset time.Duration) time.Time {
		return time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC).Add(offset)
	}
	newRun := func(id string, started time.Time, accuracy *float64, model string) db.Run {
		r := db.Run{
			RunBody: db.RunBody{Id: id, Status: db.Finished, StartedAt: started},
			Params:  []db.Param{{Key: "model", Value: model}},
		}
		if accuracy != nil {
			r.Metrics = []db.Metric{{Key: "accuracy", Value: *accuracy, Timestamp: started}}
		}
		return r
	}
	acc := func(v float64) *float64 { return &v }
	ids := func(runs []db.Run) []string {
		return slices.Map(runs, func(r db.Run) string { return r.Id })
	}

	t.Run("it sorts by metric descending, runs without the metric last", func(t *testing.T) {
		runs := []db.Run{
			newRun("a", at(0), acc(0.90), "forest"),
			newRun("b", at(0), acc(0.95), "forest"),
			newRun("c", at(0), nil, "forest"),
		}
		db.SortRuns(runs, []db.RunOrder{
			{Subject: db.SubjectMetric, Key: "accuracy", Desc: true},
		})

		expected := []string{"b", "a", "c"}
		if actual := ids(runs); !cmp.SliceEq(actual, expected) {
			t.Errorf("unmatch: (actual, expected) = (%v, %v)", actual, expected)
		}
	})

	t.Run("it falls back to newest start time, then run id", func(t *testing.T) {
		runs := []db.Run{
			newRun("b", at(0), nil, "forest"),
			newRun("c", at(time.Hour), nil, "forest"),
			newRun("a", at(time.Hour), nil, "forest"),
		}
		db.SortRuns(runs, nil)

		expected := []string{"a", "c", "b"}
		if actual := ids(runs); !cmp.SliceEq(actual, expected) {
			t.Errorf("unmatch: (actual, expected) = (%v, %v)", actual, expected)
		}
	})

	t.Run("it applies sort keys in order", func(t *testing.T) {
		runs := []db.Run{
			newRun("a", at(0), acc(0.90), "tree"),
			newRun("b", at(0), acc(0.95), "forest"),
			newRun("c", at(0), acc(0.90), "forest"),
		}
		db.SortRuns(runs, []db.RunOrder{
			{Subject: db.SubjectParam, Key: "model"},
			{Subject: db.SubjectMetric, Key: "accuracy", Desc: true},
		})

		expected := []string{"b", "c", "a"}
		if actual := ids(runs); !cmp.SliceEq(actual, expected) {
			t.Errorf("unmatch: (actual, expected) = (%v, %v)", actual, expected)
		}
	})
}
