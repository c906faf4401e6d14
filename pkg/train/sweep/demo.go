package sweep

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/opst/trackfab/pkg/train/dataset"
	"github.com/opst/trackfab/pkg/train/forest"
	"github.com/opst/trackfab/pkg/train/metrics"
)

// Demo runs a short sweep with no tracking service and no gateway,
// writing its progress to out. It trains each grid combination (by
// default DemoGrid), keeps the most accurate model, saves it under
// cfg.BestModelDir and lists what ended up there.
//
// Unlike Run, a failing combination aborts the demonstration.
func Demo(ctx context.Context, out io.Writer, d dataset.Table, cfg Config) error {
	if len(cfg.Grid) == 0 {
		cfg.Grid = DemoGrid()
	}
	cfg = cfg.withDefaults()

	train, test, err := dataset.Split(d, cfg.TestSize, cfg.Seed)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "dataset loaded: %d train samples, %d test samples\n", train.Len(), test.Len())

	var best *RunResult
	var bestModel *forest.Forest
	for i, params := range cfg.Grid {
		if err := ctx.Err(); err != nil {
			return err
		}
		params.Seed = cfg.Seed
		runId := fmt.Sprintf("demo_run_%d_%s", i+1, time.Now().Format("150405"))

		fmt.Fprintf(out, "--- run %d/%d (%s) ---\n", i+1, len(cfg.Grid), runId)
		fmt.Fprintf(
			out, "n_estimators = %d, max_depth = %d, min_samples_split = %d\n",
			params.NEstimators, params.MaxDepth, params.MinSamplesSplit,
		)

		f, err := forest.Train(ctx, train, params)
		if err != nil {
			return err
		}
		predicted := make([]int, test.Len())
		for j := range test.Features {
			predicted[j] = f.Predict(test.Features[j])
		}
		accuracy, err := metrics.Accuracy(predicted, test.Labels)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "accuracy = %.4f\n", accuracy)

		if best == nil || best.Accuracy < accuracy {
			best = &RunResult{RunId: runId, Params: params, Accuracy: accuracy}
			bestModel = f
			fmt.Fprintln(out, "new best model!")
		} else {
			fmt.Fprintf(out, "worse than the current best (%.4f)\n", best.Accuracy)
		}
	}

	if best == nil {
		return ErrNoModelTrained
	}

	path, err := saveModel(cfg.BestModelDir, best.RunId, bestModel)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "best model saved to %s\n", path)

	entries, err := os.ReadDir(cfg.BestModelDir)
	if err != nil {
		return fmt.Errorf("cannot list %s: %w", cfg.BestModelDir, err)
	}
	fmt.Fprintf(out, "files in %s:\n", cfg.BestModelDir)
	for _, entry := range entries {
		fmt.Fprintf(out, "  %s\n", entry.Name())
	}

	fmt.Fprintf(
		out, "demonstration finished! best accuracy: %.4f (run: %s)\n",
		best.Accuracy, best.RunId,
	)
	return nil
}
