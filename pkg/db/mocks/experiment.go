package mocks

import (
	"context"
	"errors"

	"github.com/opst/trackfab/pkg/db"
)

type ExperimentInterface struct {
	Impl struct {
		New       func(context.Context, string, string) (db.Experiment, error)
		Get       func(context.Context, []int64) (map[int64]db.Experiment, error)
		GetByName func(context.Context, string) (db.Experiment, error)
		Find      func(context.Context) ([]db.Experiment, error)
	}
	Calls struct {
		New CallLog[struct {
			Name             string
			ArtifactLocation string
		}]
		Get       CallLog[struct{ Ids []int64 }]
		GetByName CallLog[struct{ Name string }]
		Find      CallLog[struct{}]
	}
}

func NewExperimentInterface() *ExperimentInterface {
	return &ExperimentInterface{}
}

var _ db.ExperimentInterface = &ExperimentInterface{}

func (ei *ExperimentInterface) New(ctx context.Context, name string, artifactLocation string) (db.Experiment, error) {
	ei.Calls.New = append(ei.Calls.New, struct {
		Name             string
		ArtifactLocation string
	}{
		Name: name, ArtifactLocation: artifactLocation,
	})
	if ei.Impl.New != nil {
		return ei.Impl.New(ctx, name, artifactLocation)
	}
	panic(errors.New("it should not be called"))
}

func (ei *ExperimentInterface) Get(ctx context.Context, ids []int64) (map[int64]db.Experiment, error) {
	ei.Calls.Get = append(ei.Calls.Get, struct{ Ids []int64 }{Ids: ids})
	if ei.Impl.Get != nil {
		return ei.Impl.Get(ctx, ids)
	}
	panic(errors.New("it should not be called"))
}

func (ei *ExperimentInterface) GetByName(ctx context.Context, name string) (db.Experiment, error) {
	ei.Calls.GetByName = append(ei.Calls.GetByName, struct{ Name string }{Name: name})
	if ei.Impl.GetByName != nil {
		return ei.Impl.GetByName(ctx, name)
	}
	panic(errors.New("it should not be called"))
}

func (ei *ExperimentInterface) Find(ctx context.Context) ([]db.Experiment, error) {
	ei.Calls.Find = append(ei.Calls.Find, struct{}{})
	if ei.Impl.Find != nil {
		return ei.Impl.Find(ctx)
	}
	panic(errors.New("it should not be called"))
}
