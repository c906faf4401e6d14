package tracking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/opst/trackfab-api-types/misc/millitime"
	"github.com/opst/trackfab-api-types/runs"
)

func (c *client) CreateRun(ctx context.Context, experimentId string, runName string, tags []runs.Tag) (runs.Detail, error) {
	body, err := json.Marshal(runs.CreateRequest{
		ExperimentId: experimentId,
		RunName:      runName,
		StartTime:    millitime.Now(),
		Tags:         tags,
	})
	if err != nil {
		return runs.Detail{}, err
	}

	resp, err := c.postJson(ctx, c.mlflow("runs", "create"), bytes.NewReader(body))
	if err != nil {
		return runs.Detail{}, err
	}
	defer resp.Body.Close()

	envelope := runs.CreateResponse{}
	if err := unmarshalJsonResponse(
		resp, &envelope,
		MessageFor{
			Status4xx: fmt.Sprintf("run cannot be created in experiment %s", experimentId),
			Status5xx: fmt.Sprintf("server error (status code = %d)", resp.StatusCode),
		},
	); err != nil {
		return runs.Detail{}, err
	}
	return envelope.Run, nil
}

func (c *client) GetRun(ctx context.Context, runId string) (runs.Detail, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.mlflow("runs", "get"), nil)
	if err != nil {
		return runs.Detail{}, err
	}
	q := req.URL.Query()
	q.Add("run_id", runId)
	req.URL.RawQuery = q.Encode()

	resp, err := c.do(req)
	if err != nil {
		return runs.Detail{}, err
	}
	defer resp.Body.Close()

	envelope := runs.GetResponse{}
	if err := unmarshalJsonResponse(
		resp, &envelope,
		MessageFor{
			Status4xx: fmt.Sprintf("run %s is not found", runId),
			Status5xx: fmt.Sprintf("server error (status code = %d)", resp.StatusCode),
		},
	); err != nil {
		return runs.Detail{}, err
	}
	return envelope.Run, nil
}

func (c *client) UpdateRun(ctx context.Context, update runs.UpdateRequest) (runs.Info, error) {
	body, err := json.Marshal(update)
	if err != nil {
		return runs.Info{}, err
	}

	resp, err := c.postJson(ctx, c.mlflow("runs", "update"), bytes.NewReader(body))
	if err != nil {
		return runs.Info{}, err
	}
	defer resp.Body.Close()

	envelope := runs.UpdateResponse{}
	if err := unmarshalJsonResponse(
		resp, &envelope,
		MessageFor{
			Status4xx: fmt.Sprintf("run %s cannot be updated", update.RunId),
			Status5xx: fmt.Sprintf("server error (status code = %d)", resp.StatusCode),
		},
	); err != nil {
		return runs.Info{}, err
	}
	return envelope.RunInfo, nil
}

func (c *client) LogParam(ctx context.Context, runId string, key string, value string) error {
	body, err := json.Marshal(runs.LogParamRequest{RunId: runId, Key: key, Value: value})
	if err != nil {
		return err
	}
	return c.postLog(ctx, c.mlflow("runs", "log-parameter"), body, runId)
}

func (c *client) LogMetric(ctx context.Context, runId string, metric runs.Metric) error {
	body, err := json.Marshal(runs.LogMetricRequest{
		RunId:     runId,
		Key:       metric.Key,
		Value:     metric.Value,
		Timestamp: metric.Timestamp,
		Step:      metric.Step,
	})
	if err != nil {
		return err
	}
	return c.postLog(ctx, c.mlflow("runs", "log-metric"), body, runId)
}

func (c *client) SetTag(ctx context.Context, runId string, key string, value string) error {
	body, err := json.Marshal(runs.SetTagRequest{RunId: runId, Key: key, Value: value})
	if err != nil {
		return err
	}
	return c.postLog(ctx, c.mlflow("runs", "set-tag"), body, runId)
}

func (c *client) LogBatch(ctx context.Context, runId string, data runs.Data) error {
	body, err := json.Marshal(runs.LogBatchRequest{
		RunId:   runId,
		Metrics: data.Metrics,
		Params:  data.Params,
		Tags:    data.Tags,
	})
	if err != nil {
		return err
	}
	return c.postLog(ctx, c.mlflow("runs", "log-batch"), body, runId)
}

// postLog sends a logging request whose success payload is an empty object.
func (c *client) postLog(ctx context.Context, url string, body []byte, runId string) error {
	resp, err := c.postJson(ctx, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return unmarshalResponseDiscardingPayload(
		resp,
		MessageFor{
			Status4xx: fmt.Sprintf("cannot log to run %s", runId),
			Status5xx: fmt.Sprintf("server error (status code = %d)", resp.StatusCode),
		},
	)
}

func (c *client) SearchRuns(ctx context.Context, query runs.SearchRequest) (runs.SearchResponse, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return runs.SearchResponse{}, err
	}

	resp, err := c.postJson(ctx, c.mlflow("runs", "search"), bytes.NewReader(body))
	if err != nil {
		return runs.SearchResponse{}, err
	}
	defer resp.Body.Close()

	found := runs.SearchResponse{}
	if err := unmarshalJsonResponse(
		resp, &found,
		MessageFor{
			Status4xx: "run search query is rejected",
			Status5xx: fmt.Sprintf("server error (status code = %d)", resp.StatusCode),
		},
	); err != nil {
		return runs.SearchResponse{}, err
	}
	return found, nil
}
