package db

import (
	"context"
	"time"
)

type LifecycleStage string

const (
	StageActive  LifecycleStage = "active"
	StageDeleted LifecycleStage = "deleted"
)

type Experiment struct {
	Id               int64
	Name             string
	ArtifactLocation string
	LifecycleStage   LifecycleStage
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (e Experiment) Equal(o Experiment) bool {
	return e.Id == o.Id &&
		e.Name == o.Name &&
		e.ArtifactLocation == o.ArtifactLocation &&
		e.LifecycleStage == o.LifecycleStage &&
		e.CreatedAt.Equal(o.CreatedAt) &&
		e.UpdatedAt.Equal(o.UpdatedAt)
}

type ExperimentInterface interface {
	// create a new experiment.
	//
	// # Args
	//
	// - context.Context
	//
	// - name: experiment name. It should be unique.
	//
	// - artifactLocation: root uri where artifacts of runs in this experiment go.
	// When empty, the store assigns its default location.
	//
	// # Returns
	//
	// - Experiment: the created experiment.
	//
	// - error: ErrAlreadyExists when the name is taken.
	New(ctx context.Context, name string, artifactLocation string) (Experiment, error)

	// get experiments by ids.
	//
	// The returned map has entries only for ids which are found.
	Get(ctx context.Context, ids []int64) (map[int64]Experiment, error)

	// get an active experiment by its name.
	//
	// # Returns
	//
	// - error: ErrMissing when no active experiment has the name.
	GetByName(ctx context.Context, name string) (Experiment, error)

	// list active experiments, ordered by id.
	Find(ctx context.Context) ([]Experiment, error)
}
