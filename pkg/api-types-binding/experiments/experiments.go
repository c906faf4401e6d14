package experiments

import (
	"strconv"

	"github.com/opst/trackfab-api-types/experiments"
	"github.com/opst/trackfab-api-types/misc/millitime"
	kdb "github.com/opst/trackfab/pkg/db"
)

func ComposeDetail(e kdb.Experiment) experiments.Detail {
	return experiments.Detail{
		ExperimentId:     strconv.FormatInt(e.Id, 10),
		Name:             e.Name,
		ArtifactLocation: e.ArtifactLocation,
		LifecycleStage:   string(e.LifecycleStage),
		CreationTime:     millitime.New(e.CreatedAt),
		LastUpdateTime:   millitime.New(e.UpdatedAt),
	}
}
