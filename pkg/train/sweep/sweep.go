// Package sweep runs hyperparameter sweeps against a tracking service.
//
// A sweep trains one forest per grid combination, records each run's
// hyperparameters, metrics and model artifact on the tracking service,
// pushes the metrics to the metrics gateway, and keeps the best model
// on local disk.
package sweep

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/opst/trackfab-api-types/experiments"
	"github.com/opst/trackfab-api-types/misc/millitime"
	apiruns "github.com/opst/trackfab-api-types/runs"
	"github.com/opst/trackfab/pkg/gateway"
	"github.com/opst/trackfab/pkg/tracking"
	"github.com/opst/trackfab/pkg/train/dataset"
	"github.com/opst/trackfab/pkg/train/forest"
	"github.com/opst/trackfab/pkg/train/metrics"
)

const (
	DefaultExperimentName = "iris_classification"
	DefaultTestSize       = 0.2
	DefaultSeed           = 42
	DefaultBestModelDir   = "./best_model"
	DefaultDatasetName    = "iris"

	// ModelArtifact is the name each run's model is stored under.
	ModelArtifact = "model.json"
)

var ErrNoModelTrained = errors.New("no model trained successfully")

// Config shapes a sweep. Zero fields fall back to the Default*
// constants, and an empty Grid falls back to DefaultGrid.
type Config struct {
	Experiment   string
	Grid         []forest.Params
	TestSize     float64
	Seed         int64
	BestModelDir string
	DatasetName  string
}

func (c Config) withDefaults() Config {
	if c.Experiment == "" {
		c.Experiment = DefaultExperimentName
	}
	if len(c.Grid) == 0 {
		c.Grid = DefaultGrid()
	}
	if c.TestSize == 0 {
		c.TestSize = DefaultTestSize
	}
	if c.Seed == 0 {
		c.Seed = DefaultSeed
	}
	if c.BestModelDir == "" {
		c.BestModelDir = DefaultBestModelDir
	}
	if c.DatasetName == "" {
		c.DatasetName = DefaultDatasetName
	}
	return c
}

// RunResult is the score of one tracked run.
type RunResult struct {
	RunId    string
	Params   forest.Params
	Accuracy float64
	Loss     float64
}

// Summary is what a finished sweep leaves behind.
type Summary struct {
	Best      RunResult
	ModelPath string
}

type Sweep struct {
	tracking tracking.TrackClient
	gateway  gateway.Gateway
	logger   *log.Logger
}

func New(track tracking.TrackClient, gw gateway.Gateway, logger *log.Logger) *Sweep {
	return &Sweep{tracking: track, gateway: gw, logger: logger}
}

// Run sweeps the grid over the table.
//
// Each combination becomes one run on the tracking service: its
// hyperparameters are logged in a batch, the trained model's accuracy
// and log loss are logged as metrics and pushed to the gateway, and the
// model itself is stored as the run's artifact. A failing combination
// marks its run FAILED and the sweep moves on, unless ctx itself is
// done.
//
// The best model by accuracy is written to cfg.BestModelDir. When every
// combination fails, Run returns ErrNoModelTrained.
func (s *Sweep) Run(ctx context.Context, d dataset.Table, cfg Config) (Summary, error) {
	cfg = cfg.withDefaults()

	experiment, err := s.tracking.EnsureExperiment(ctx, cfg.Experiment)
	if err != nil {
		return Summary{}, fmt.Errorf("cannot prepare experiment %s: %w", cfg.Experiment, err)
	}
	s.logger.Printf("experiment: %s (id = %s)", experiment.Name, experiment.ExperimentId)

	train, test, err := dataset.Split(d, cfg.TestSize, cfg.Seed)
	if err != nil {
		return Summary{}, err
	}
	s.logger.Printf("dataset loaded: %d train samples, %d test samples", train.Len(), test.Len())

	var best *RunResult
	var bestModel *forest.Forest
	for i, params := range cfg.Grid {
		if err := ctx.Err(); err != nil {
			return Summary{}, err
		}
		params.Seed = cfg.Seed

		s.logger.Printf(
			"run %d/%d: n_estimators = %d, max_depth = %d, min_samples_split = %d",
			i+1, len(cfg.Grid), params.NEstimators, params.MaxDepth, params.MinSamplesSplit,
		)

		result, model, err := s.trainOne(ctx, cfg, experiment, train, test, params, i+1)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return Summary{}, err
			}
			s.logger.Printf("run %d/%d failed: %s", i+1, len(cfg.Grid), err)
			continue
		}
		s.logger.Printf("accuracy = %.4f, loss = %.4f", result.Accuracy, result.Loss)

		if best == nil || best.Accuracy < result.Accuracy {
			best = &result
			bestModel = model
			s.logger.Printf("new best model found! accuracy: %.4f", result.Accuracy)
		}
	}

	if best == nil {
		return Summary{}, ErrNoModelTrained
	}

	path, err := saveModel(cfg.BestModelDir, best.RunId, bestModel)
	if err != nil {
		return Summary{}, err
	}
	s.logger.Printf("best model saved to %s", path)
	s.logger.Printf(
		"experiment completed! best accuracy: %.4f (run: %s)", best.Accuracy, best.RunId,
	)

	return Summary{Best: *best, ModelPath: path}, nil
}

// trainOne drives a single run from CreateRun to UpdateRun. Whatever
// happens in between, it tries to close the run with FINISHED or FAILED.
func (s *Sweep) trainOne(
	ctx context.Context,
	cfg Config,
	experiment experiments.Detail,
	train dataset.Table,
	test dataset.Table,
	params forest.Params,
	number int,
) (RunResult, *forest.Forest, error) {
	run, err := s.tracking.CreateRun(ctx, experiment.ExperimentId, "", nil)
	if err != nil {
		return RunResult{}, nil, fmt.Errorf("cannot create run: %w", err)
	}

	result := RunResult{RunId: run.Info.RunId, Params: params}
	var model *forest.Forest

	trainErr := func() error {
		if err := s.tracking.LogBatch(ctx, run.Info.RunId, apiruns.Data{
			Params: []apiruns.Param{
				{Key: "n_estimators", Value: strconv.Itoa(params.NEstimators)},
				{Key: "max_depth", Value: strconv.Itoa(params.MaxDepth)},
				{Key: "min_samples_split", Value: strconv.Itoa(params.MinSamplesSplit)},
				{Key: "run_number", Value: strconv.Itoa(number)},
				{Key: "timestamp", Value: time.Now().Format(time.RFC3339)},
			},
		}); err != nil {
			return fmt.Errorf("cannot log hyperparameters: %w", err)
		}

		f, err := forest.Train(ctx, train, params)
		if err != nil {
			return err
		}
		model = f

		predicted := make([]int, test.Len())
		probabilities := make([][]float64, test.Len())
		for i := range test.Features {
			predicted[i] = f.Predict(test.Features[i])
			probabilities[i] = f.Probabilities(test.Features[i])
		}
		if result.Accuracy, err = metrics.Accuracy(predicted, test.Labels); err != nil {
			return err
		}
		if result.Loss, err = metrics.LogLoss(probabilities, test.Labels); err != nil {
			return err
		}

		now := millitime.Now()
		if err := s.tracking.LogMetric(ctx, run.Info.RunId, apiruns.Metric{
			Key: "accuracy", Value: result.Accuracy, Timestamp: now,
		}); err != nil {
			return fmt.Errorf("cannot log accuracy: %w", err)
		}
		if err := s.tracking.LogMetric(ctx, run.Info.RunId, apiruns.Metric{
			Key: "loss", Value: result.Loss, Timestamp: now,
		}); err != nil {
			return fmt.Errorf("cannot log loss: %w", err)
		}

		buf, err := json.Marshal(f)
		if err != nil {
			return fmt.Errorf("cannot encode model: %w", err)
		}
		if err := s.tracking.PutArtifact(
			ctx, run.Info.ArtifactUri, ModelArtifact, bytes.NewReader(buf),
		); err != nil {
			return fmt.Errorf("cannot store model artifact: %w", err)
		}

		for _, param := range []apiruns.Param{
			{Key: "dataset", Value: cfg.DatasetName},
			{Key: "test_size", Value: strconv.FormatFloat(cfg.TestSize, 'g', -1, 64)},
			{Key: "random_state", Value: strconv.FormatInt(cfg.Seed, 10)},
		} {
			if err := s.tracking.LogParam(ctx, run.Info.RunId, param.Key, param.Value); err != nil {
				return fmt.Errorf("cannot log param %s: %w", param.Key, err)
			}
		}

		// metrics on the gateway are a courtesy copy. never fail the run
		// over them.
		if err := s.gateway.Push(ctx, gateway.RunMetrics{
			Experiment: cfg.Experiment,
			RunId:      run.Info.RunId,
			Accuracy:   result.Accuracy,
			Loss:       result.Loss,
		}); err != nil {
			s.logger.Printf("failed to push metrics to gateway: %s", err)
		} else {
			s.logger.Printf("metrics pushed to gateway for run %s", run.Info.RunId)
		}

		return nil
	}()

	status := apiruns.StatusFinished
	if trainErr != nil {
		status = apiruns.StatusFailed
	}
	endTime := millitime.Now()
	if _, err := s.tracking.UpdateRun(ctx, apiruns.UpdateRequest{
		RunId: run.Info.RunId, Status: status, EndTime: &endTime,
	}); err != nil && trainErr == nil {
		trainErr = fmt.Errorf("cannot finish run %s: %w", run.Info.RunId, err)
	}

	if trainErr != nil {
		return RunResult{}, nil, trainErr
	}
	return result, model, nil
}

func saveModel(dir string, runId string, model *forest.Forest) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("cannot prepare model directory %s: %w", dir, err)
	}
	buf, err := json.MarshalIndent(model, "", "  ")
	if err != nil {
		return "", fmt.Errorf("cannot encode model: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("best_model_%s.json", runId))
	if err := os.WriteFile(path, buf, 0644); err != nil {
		return "", fmt.Errorf("cannot save model to %s: %w", path, err)
	}
	return path, nil
}
