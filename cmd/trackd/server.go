package main

import (
	"errors"

	"github.com/labstack/echo/v4"
	apierr "github.com/opst/trackfab-api-types/errors"
	"github.com/opst/trackfab/cmd/trackd/auth"
	"github.com/opst/trackfab/cmd/trackd/handlers"
	"github.com/opst/trackfab/pkg/buildtime"
	configs "github.com/opst/trackfab/pkg/configs/trackd"
	kdb "github.com/opst/trackfab/pkg/db"
	"github.com/opst/trackfab/pkg/utils/echoutil"
)

var API_ROOT = "/api/2.0"

// BuildServer wires the tracking API onto an echo server.
//
// Handlers report failures as [apierr.ErrorResponse]; the error handler
// renders them with their status code, anything else as 500.
func BuildServer(conf *configs.TrackdConfig, database kdb.TrackDatabase, loglevel string) *echo.Echo {

	e := echo.New()
	echoutil.SetLevel(e, loglevel)

	e.HTTPErrorHandler = func(err error, c echo.Context) {
		var eresp *apierr.ErrorResponse
		if errors.As(err, &eresp) && !c.Response().Committed {
			if jerr := c.JSON(eresp.HTTPStatus(), eresp); jerr != nil {
				e.Logger.Error(jerr)
			}
		} else {
			e.DefaultHTTPErrorHandler(err, c)
		}
		e.Logger.Error(err)
	}

	// logging for server-side latency.
	e.Use(echoutil.LogHandlerFunc)

	e.GET("/health", handlers.HealthHandler())
	e.GET("/version", handlers.VersionHandler(buildtime.VersionString()))

	// tracking clients send paths without trailing slashes.
	api := e.Group(API_ROOT)
	if conf.SignKey != "" {
		api.Use(auth.Middleware([]byte(conf.SignKey)))
	}

	dbExperiment := database.Experiment()
	dbRun := database.Run()

	api.POST("/mlflow/experiments/create", handlers.CreateExperimentHandler(dbExperiment))
	api.GET("/mlflow/experiments/get-by-name", handlers.GetExperimentByNameHandler(dbExperiment))

	api.POST("/mlflow/runs/create", handlers.CreateRunHandler(dbRun))
	api.GET("/mlflow/runs/get", handlers.GetRunHandler(dbRun))
	api.POST("/mlflow/runs/update", handlers.UpdateRunHandler(dbRun))
	api.POST("/mlflow/runs/log-parameter", handlers.LogParamHandler(dbRun))
	api.POST("/mlflow/runs/log-metric", handlers.LogMetricHandler(dbRun))
	api.POST("/mlflow/runs/set-tag", handlers.SetTagHandler(dbRun))
	api.POST("/mlflow/runs/log-batch", handlers.LogBatchHandler(dbRun))
	api.POST("/mlflow/runs/search", handlers.SearchRunsHandler(dbRun))

	api.PUT("/mlflow-artifacts/artifacts/*", handlers.PutArtifactHandler(conf.ArtifactRoot))
	api.GET("/mlflow-artifacts/artifacts/*", handlers.GetArtifactHandler(conf.ArtifactRoot))

	return e
}
