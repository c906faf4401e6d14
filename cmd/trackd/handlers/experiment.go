package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/opst/trackfab-api-types/experiments"
	binderr "github.com/opst/trackfab/pkg/api-types-binding/errors"
	bindexp "github.com/opst/trackfab/pkg/api-types-binding/experiments"
	kdb "github.com/opst/trackfab/pkg/db"
)

func CreateExperimentHandler(dbExperiment kdb.ExperimentInterface) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		req := experiments.CreateRequest{}
		if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
			return binderr.InvalidParameter("request body is not a json of experiment", err)
		}
		if req.Name == "" {
			return binderr.InvalidParameter("experiment name is required", nil)
		}

		ex, err := dbExperiment.New(ctx, req.Name, req.ArtifactLocation)
		if errors.Is(err, kdb.ErrAlreadyExists) {
			return binderr.AlreadyExists(
				fmt.Sprintf("experiment '%s' exists already", req.Name), err,
			)
		} else if err != nil {
			return binderr.InternalServerError(err)
		}

		return c.JSON(http.StatusOK, experiments.CreateResponse{
			ExperimentId: strconv.FormatInt(ex.Id, 10),
		})
	}
}

func GetExperimentByNameHandler(dbExperiment kdb.ExperimentInterface) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		name := c.QueryParam("experiment_name")
		if name == "" {
			return binderr.InvalidParameter("query parameter 'experiment_name' is required", nil)
		}

		ex, err := dbExperiment.GetByName(ctx, name)
		if errors.Is(err, kdb.ErrMissing) {
			return binderr.NotFound(
				fmt.Sprintf("no active experiment has name '%s'", name), err,
			)
		} else if err != nil {
			return binderr.InternalServerError(err)
		}

		return c.JSON(http.StatusOK, experiments.GetResponse{
			Experiment: bindexp.ComposeDetail(ex),
		})
	}
}
