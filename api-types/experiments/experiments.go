package experiments

import (
	"github.com/opst/trackfab-api-types/misc/millitime"
)

// Lifecycle stages of an experiment.
const (
	LifecycleStageActive  = "active"
	LifecycleStageDeleted = "deleted"
)

type Detail struct {
	ExperimentId     string         `json:"experiment_id"`
	Name             string         `json:"name"`
	ArtifactLocation string         `json:"artifact_location,omitempty"`
	LifecycleStage   string         `json:"lifecycle_stage,omitempty"`
	CreationTime     millitime.Time `json:"creation_time"`
	LastUpdateTime   millitime.Time `json:"last_update_time"`
}

func (d Detail) Equal(o Detail) bool {
	return d.ExperimentId == o.ExperimentId &&
		d.Name == o.Name &&
		d.ArtifactLocation == o.ArtifactLocation &&
		d.LifecycleStage == o.LifecycleStage &&
		d.CreationTime.Equal(o.CreationTime) &&
		d.LastUpdateTime.Equal(o.LastUpdateTime)
}

type CreateRequest struct {
	Name             string `json:"name"`
	ArtifactLocation string `json:"artifact_location,omitempty"`
}

type CreateResponse struct {
	ExperimentId string `json:"experiment_id"`
}

// GetResponse is the envelope of "experiments/get-by-name".
type GetResponse struct {
	Experiment Detail `json:"experiment"`
}
