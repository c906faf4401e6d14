package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/opst/trackfab-api-types/runs"
	binderr "github.com/opst/trackfab/pkg/api-types-binding/errors"
	bindruns "github.com/opst/trackfab/pkg/api-types-binding/runs"
	kdb "github.com/opst/trackfab/pkg/db"
	"github.com/opst/trackfab/pkg/utils/slices"
)

// page size of runs/search when max_results is not given.
const defaultSearchPageSize = 1000

func CreateRunHandler(dbRun kdb.RunInterface) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		req := runs.CreateRequest{}
		if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
			return binderr.InvalidParameter("request body is not a json of run", err)
		}

		experimentId, err := parseExperimentId(req.ExperimentId)
		if err != nil {
			return binderr.InvalidParameter(err.Error(), err)
		}

		startedAt := req.StartTime.Time()
		if startedAt.IsZero() {
			startedAt = time.Now()
		}

		run, err := dbRun.New(
			ctx, experimentId, req.RunName, startedAt,
			slices.Map(req.Tags, tagFromWire),
		)
		if errors.Is(err, kdb.ErrMissing) {
			return binderr.NotFound(
				fmt.Sprintf("no active experiment has id %d", experimentId), err,
			)
		} else if err != nil {
			return binderr.InternalServerError(err)
		}

		return c.JSON(http.StatusOK, runs.CreateResponse{
			Run: bindruns.ComposeDetail(run),
		})
	}
}

func GetRunHandler(dbRun kdb.RunInterface) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		runId := c.QueryParam("run_id")
		if runId == "" {
			return binderr.InvalidParameter("query parameter 'run_id' is required", nil)
		}

		found, err := dbRun.Get(ctx, []string{runId})
		if err != nil {
			return binderr.InternalServerError(err)
		}
		run, ok := found[runId]
		if !ok {
			return binderr.NotFound(fmt.Sprintf("run '%s' is not found", runId), nil)
		}

		return c.JSON(http.StatusOK, runs.GetResponse{
			Run: bindruns.ComposeDetail(run),
		})
	}
}

func UpdateRunHandler(dbRun kdb.RunInterface) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		req := runs.UpdateRequest{}
		if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
			return binderr.InvalidParameter("request body is not a json of run update", err)
		}
		if req.RunId == "" {
			return binderr.InvalidParameter("run_id is required", nil)
		}

		delta := kdb.RunDelta{}
		if req.Status != "" {
			if !req.Status.Valid() {
				return binderr.InvalidParameter(
					fmt.Sprintf("'%s' is not a run status", req.Status), nil,
				)
			}
			delta.Status = kdb.RunStatus(req.Status)
		}
		if req.EndTime != nil {
			endedAt := req.EndTime.Time()
			delta.EndedAt = &endedAt
		}
		if req.RunName != "" {
			delta.Name = &req.RunName
		}

		updated, err := dbRun.Update(ctx, req.RunId, delta)
		if errors.Is(err, kdb.ErrMissing) {
			return binderr.NotFound(fmt.Sprintf("run '%s' is not found", req.RunId), err)
		} else if err != nil {
			return binderr.InternalServerError(err)
		}

		return c.JSON(http.StatusOK, runs.UpdateResponse{
			RunInfo: bindruns.ComposeInfo(updated.RunBody),
		})
	}
}

func LogParamHandler(dbRun kdb.RunInterface) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		req := runs.LogParamRequest{}
		if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
			return binderr.InvalidParameter("request body is not a json of param", err)
		}
		if req.RunId == "" || req.Key == "" {
			return binderr.InvalidParameter("run_id and key are required", nil)
		}

		err := dbRun.LogParams(ctx, req.RunId, []kdb.Param{{Key: req.Key, Value: req.Value}})
		return logResponse(c, req.RunId, err)
	}
}

func LogMetricHandler(dbRun kdb.RunInterface) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		req := runs.LogMetricRequest{}
		if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
			return binderr.InvalidParameter("request body is not a json of metric", err)
		}
		if req.RunId == "" || req.Key == "" {
			return binderr.InvalidParameter("run_id and key are required", nil)
		}

		err := dbRun.LogMetrics(ctx, req.RunId, []kdb.Metric{{
			Key:       req.Key,
			Value:     req.Value,
			Timestamp: req.Timestamp.Time(),
			Step:      req.Step,
		}})
		return logResponse(c, req.RunId, err)
	}
}

func SetTagHandler(dbRun kdb.RunInterface) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		req := runs.SetTagRequest{}
		if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
			return binderr.InvalidParameter("request body is not a json of tag", err)
		}
		if req.RunId == "" || req.Key == "" {
			return binderr.InvalidParameter("run_id and key are required", nil)
		}

		err := dbRun.SetTags(ctx, req.RunId, []kdb.Tag{{Key: req.Key, Value: req.Value}})
		return logResponse(c, req.RunId, err)
	}
}

func LogBatchHandler(dbRun kdb.RunInterface) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		req := runs.LogBatchRequest{}
		if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
			return binderr.InvalidParameter("request body is not a json of batch", err)
		}
		if req.RunId == "" {
			return binderr.InvalidParameter("run_id is required", nil)
		}

		err := dbRun.LogBatch(
			ctx, req.RunId,
			slices.Map(req.Metrics, metricFromWire),
			slices.Map(req.Params, paramFromWire),
			slices.Map(req.Tags, tagFromWire),
		)
		return logResponse(c, req.RunId, err)
	}
}

func SearchRunsHandler(dbRun kdb.RunInterface) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		req := runs.SearchRequest{}
		if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
			return binderr.InvalidParameter("request body is not a json of run search", err)
		}

		query := kdb.RunFindQuery{Limit: req.MaxResults}
		if query.Limit <= 0 {
			query.Limit = defaultSearchPageSize
		}

		for _, id := range req.ExperimentIds {
			experimentId, err := parseExperimentId(id)
			if err != nil {
				return binderr.InvalidParameter(err.Error(), err)
			}
			query.ExperimentIds = append(query.ExperimentIds, experimentId)
		}

		conditions, err := kdb.ParseRunFilter(req.Filter)
		if err != nil {
			return binderr.InvalidParameter(err.Error(), err)
		}
		query.Conditions = conditions

		for _, clause := range req.OrderBy {
			order, err := kdb.ParseRunOrder(clause)
			if err != nil {
				return binderr.InvalidParameter(err.Error(), err)
			}
			query.OrderBy = append(query.OrderBy, order)
		}

		if req.PageToken != "" {
			offset, err := strconv.ParseInt(req.PageToken, 10, 64)
			if err != nil || offset < 0 {
				return binderr.InvalidParameter(
					fmt.Sprintf("'%s' is not a page token", req.PageToken), err,
				)
			}
			query.Offset = offset
		}

		page, err := dbRun.Find(ctx, query)
		if err != nil {
			return binderr.InternalServerError(err)
		}

		resp := runs.SearchResponse{
			Runs: slices.Map(page.Runs, bindruns.ComposeDetail),
		}
		if page.NextOffset != nil {
			resp.NextPageToken = strconv.FormatInt(*page.NextOffset, 10)
		}

		return c.JSON(http.StatusOK, resp)
	}
}

// logResponse converts the outcome of a logging operation into the
// empty-body response of the log endpoints.
func logResponse(c echo.Context, runId string, err error) error {
	if errors.Is(err, kdb.ErrMissing) {
		return binderr.NotFound(fmt.Sprintf("run '%s' is not found", runId), err)
	}
	if errors.Is(err, kdb.ErrConflictingParam) {
		return binderr.InvalidParameter(err.Error(), err)
	}
	if err != nil {
		return binderr.InternalServerError(err)
	}
	return c.JSON(http.StatusOK, struct{}{})
}

func parseExperimentId(id string) (int64, error) {
	parsed, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("'%s' is not an experiment id", id)
	}
	return parsed, nil
}

func metricFromWire(m runs.Metric) kdb.Metric {
	return kdb.Metric{
		Key:       m.Key,
		Value:     m.Value,
		Timestamp: m.Timestamp.Time(),
		Step:      m.Step,
	}
}

func paramFromWire(p runs.Param) kdb.Param {
	return kdb.Param{Key: p.Key, Value: p.Value}
}

func tagFromWire(t runs.Tag) kdb.Tag {
	return kdb.Tag{Key: t.Key, Value: t.Value}
}
