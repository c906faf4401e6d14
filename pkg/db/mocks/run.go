package mocks

import (
	"context"
	"errors"
	"time"

	"github.com/opst/trackfab/pkg/db"
)

type RunInterface struct {
	Impl struct {
		New        func(context.Context, int64, string, time.Time, []db.Tag) (db.Run, error)
		Get        func(context.Context, []string) (map[string]db.Run, error)
		Update     func(context.Context, string, db.RunDelta) (db.Run, error)
		LogParams  func(context.Context, string, []db.Param) error
		LogMetrics func(context.Context, string, []db.Metric) error
		SetTags    func(context.Context, string, []db.Tag) error
		LogBatch   func(context.Context, string, []db.Metric, []db.Param, []db.Tag) error
		Find       func(context.Context, db.RunFindQuery) (db.RunPage, error)
		FailStale  func(context.Context, time.Time) ([]string, error)
	}
	Calls struct {
		New CallLog[struct {
			ExperimentId int64
			Name         string
			StartedAt    time.Time
			Tags         []db.Tag
		}]
		Get    CallLog[struct{ RunIds []string }]
		Update CallLog[struct {
			RunId string
			Delta db.RunDelta
		}]
		LogParams CallLog[struct {
			RunId  string
			Params []db.Param
		}]
		LogMetrics CallLog[struct {
			RunId   string
			Metrics []db.Metric
		}]
		SetTags CallLog[struct {
			RunId string
			Tags  []db.Tag
		}]
		LogBatch CallLog[struct {
			RunId   string
			Metrics []db.Metric
			Params  []db.Param
			Tags    []db.Tag
		}]
		Find      CallLog[struct{ Query db.RunFindQuery }]
		FailStale CallLog[struct{ Before time.Time }]
	}
}

func NewRunInterface() *RunInterface {
	return &RunInterface{}
}

var _ db.RunInterface = &RunInterface{}

func (ri *RunInterface) New(ctx context.Context, experimentId int64, name string, startedAt time.Time, tags []db.Tag) (db.Run, error) {
	ri.Calls.New = append(ri.Calls.New, struct {
		ExperimentId int64
		Name         string
		StartedAt    time.Time
		Tags         []db.Tag
	}{
		ExperimentId: experimentId, Name: name, StartedAt: startedAt, Tags: tags,
	})
	if ri.Impl.New != nil {
		return ri.Impl.New(ctx, experimentId, name, startedAt, tags)
	}
	panic(errors.New("it should not be called"))
}

func (ri *RunInterface) Get(ctx context.Context, runIds []string) (map[string]db.Run, error) {
	ri.Calls.Get = append(ri.Calls.Get, struct{ RunIds []string }{RunIds: runIds})
	if ri.Impl.Get != nil {
		return ri.Impl.Get(ctx, runIds)
	}
	panic(errors.New("it should not be called"))
}

func (ri *RunInterface) Update(ctx context.Context, runId string, delta db.RunDelta) (db.Run, error) {
	ri.Calls.Update = append(ri.Calls.Update, struct {
		RunId string
		Delta db.RunDelta
	}{
		RunId: runId, Delta: delta,
	})
	if ri.Impl.Update != nil {
		return ri.Impl.Update(ctx, runId, delta)
	}
	panic(errors.New("it should not be called"))
}

func (ri *RunInterface) LogParams(ctx context.Context, runId string, params []db.Param) error {
	ri.Calls.LogParams = append(ri.Calls.LogParams, struct {
		RunId  string
		Params []db.Param
	}{
		RunId: runId, Params: params,
	})
	if ri.Impl.LogParams != nil {
		return ri.Impl.LogParams(ctx, runId, params)
	}
	panic(errors.New("it should not be called"))
}

func (ri *RunInterface) LogMetrics(ctx context.Context, runId string, metrics []db.Metric) error {
	ri.Calls.LogMetrics = append(ri.Calls.LogMetrics, struct {
		RunId   string
		Metrics []db.Metric
	}{
		RunId: runId, Metrics: metrics,
	})
	if ri.Impl.LogMetrics != nil {
		return ri.Impl.LogMetrics(ctx, runId, metrics)
	}
	panic(errors.New("it should not be called"))
}

func (ri *RunInterface) SetTags(ctx context.Context, runId string, tags []db.Tag) error {
	ri.Calls.SetTags = append(ri.Calls.SetTags, struct {
		RunId string
		Tags  []db.Tag
	}{
		RunId: runId, Tags: tags,
	})
	if ri.Impl.SetTags != nil {
		return ri.Impl.SetTags(ctx, runId, tags)
	}
	panic(errors.New("it should not be called"))
}

func (ri *RunInterface) LogBatch(ctx context.Context, runId string, metrics []db.Metric, params []db.Param, tags []db.Tag) error {
	ri.Calls.LogBatch = append(ri.Calls.LogBatch, struct {
		RunId   string
		Metrics []db.Metric
		Params  []db.Param
		Tags    []db.Tag
	}{
		RunId: runId, Metrics: metrics, Params: params, Tags: tags,
	})
	if ri.Impl.LogBatch != nil {
		return ri.Impl.LogBatch(ctx, runId, metrics, params, tags)
	}
	panic(errors.New("it should not be called"))
}

func (ri *RunInterface) Find(ctx context.Context, query db.RunFindQuery) (db.RunPage, error) {
	ri.Calls.Find = append(ri.Calls.Find, struct{ Query db.RunFindQuery }{Query: query})
	if ri.Impl.Find != nil {
		return ri.Impl.Find(ctx, query)
	}
	panic(errors.New("it should not be called"))
}

func (ri *RunInterface) FailStale(ctx context.Context, before time.Time) ([]string, error) {
	ri.Calls.FailStale = append(ri.Calls.FailStale, struct{ Before time.Time }{Before: before})
	if ri.Impl.FailStale != nil {
		return ri.Impl.FailStale(ctx, before)
	}
	panic(errors.New("it should not be called"))
}
