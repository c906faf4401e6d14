package runs

import (
	"strconv"

	"github.com/opst/trackfab-api-types/misc/millitime"
	"github.com/opst/trackfab-api-types/runs"
	kdb "github.com/opst/trackfab/pkg/db"
	"github.com/opst/trackfab/pkg/utils/slices"
)

func ComposeInfo(r kdb.RunBody) runs.Info {
	var endTime *millitime.Time
	if r.EndedAt != nil {
		t := millitime.New(*r.EndedAt)
		endTime = &t
	}

	return runs.Info{
		RunId:          r.Id,
		ExperimentId:   strconv.FormatInt(r.ExperimentId, 10),
		RunName:        r.Name,
		Status:         runs.Status(r.Status),
		StartTime:      millitime.New(r.StartedAt),
		EndTime:        endTime,
		ArtifactUri:    r.ArtifactUri,
		LifecycleStage: string(r.LifecycleStage),
	}
}

func ComposeDetail(r kdb.Run) runs.Detail {
	return runs.Detail{
		Info: ComposeInfo(r.RunBody),
		Data: runs.Data{
			Metrics: slices.Map(r.Metrics, ComposeMetric),
			Params:  slices.Map(r.Params, ComposeParam),
			Tags:    slices.Map(r.Tags, ComposeTag),
		},
	}
}

func ComposeMetric(m kdb.Metric) runs.Metric {
	return runs.Metric{
		Key:       m.Key,
		Value:     m.Value,
		Timestamp: millitime.New(m.Timestamp),
		Step:      m.Step,
	}
}

func ComposeParam(p kdb.Param) runs.Param {
	return runs.Param{Key: p.Key, Value: p.Value}
}

func ComposeTag(t kdb.Tag) runs.Tag {
	return runs.Tag{Key: t.Key, Value: t.Value}
}
