package run_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/opst/trackfab/cmd/track/subcommands/experiment/run"
	"github.com/opst/trackfab/cmd/track/subcommands/internal/commandline"
	config "github.com/opst/trackfab/pkg/configs/stack"
	"github.com/opst/trackfab/pkg/train/dataset"
	"github.com/opst/trackfab/pkg/train/forest"
	"github.com/opst/trackfab/pkg/train/sweep"
	"github.com/opst/trackfab/pkg/utils/args"
	"github.com/youta-t/flarc"
)

func defaultFlag() run.Flag {
	return run.Flag{
		Experiment:      sweep.DefaultExperimentName,
		Output:          sweep.DefaultBestModelDir,
		TestSize:        sweep.DefaultTestSize,
		Seed:            sweep.DefaultSeed,
		NEstimators:     &args.Ints{},
		MaxDepth:        &args.Ints{},
		MinSamplesSplit: &args.Ints{},
	}
}

func TestRunCommand(t *testing.T) {
	summary := sweep.Summary{
		Best: sweep.RunResult{
			RunId:    "run-1",
			Params:   forest.Params{NEstimators: 100, MaxDepth: 5, MinSamplesSplit: 2},
			Accuracy: 0.9333,
			Loss:     0.21,
		},
		ModelPath: "./best_model/best_model_run-1.json",
	}

	t.Run("with default flags, it sweeps the builtin sample", func(t *testing.T) {
		called := 0
		var gotTable dataset.Table
		var gotCfg sweep.Config
		testee := run.Task(func(
			ctx context.Context, logger *log.Logger, conf *config.StackConfig,
			d dataset.Table, cfg sweep.Config,
		) (sweep.Summary, error) {
			called += 1
			gotTable = d
			gotCfg = cfg
			return summary, nil
		})

		stdout := new(bytes.Buffer)
		err := testee(
			context.Background(),
			commandline.MockCommandline[run.Flag]{
				Fullname_: "track experiment run",
				Stdout_:   stdout,
				Stderr_:   io.Discard,
				Flags_:    defaultFlag(),
			},
			nil,
		)
		if err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
		if called != 1 {
			t.Fatalf("runner is called %d times", called)
		}

		if expected := dataset.Sample().Len(); gotTable.Len() != expected {
			t.Errorf(
				"dataset size is not equal (actual, expected): %d, %d",
				gotTable.Len(), expected,
			)
		}
		if gotCfg.Experiment != sweep.DefaultExperimentName {
			t.Errorf("unexpected experiment: %s", gotCfg.Experiment)
		}
		if gotCfg.Grid != nil {
			t.Errorf("grid should default to nil: %+v", gotCfg.Grid)
		}
		if gotCfg.TestSize != sweep.DefaultTestSize || gotCfg.Seed != sweep.DefaultSeed {
			t.Errorf("unexpected split config: %+v", gotCfg)
		}
		if gotCfg.DatasetName != "" {
			t.Errorf("dataset name should be defaulted by the sweep: %s", gotCfg.DatasetName)
		}

		actual := map[string]any{}
		if err := json.Unmarshal(stdout.Bytes(), &actual); err != nil {
			t.Fatalf("output is not JSON: %s", err)
		}
		if actual["run_id"] != "run-1" {
			t.Errorf("unexpected run_id: %v", actual["run_id"])
		}
		if actual["model_path"] != summary.ModelPath {
			t.Errorf("unexpected model_path: %v", actual["model_path"])
		}
	})

	t.Run("it loads the named csv dataset", func(t *testing.T) {
		dataFile := filepath.Join(t.TempDir(), "beans.csv")
		if err := os.WriteFile(dataFile, []byte(
			"width,height,class\n1.0,2.0,a\n1.1,2.1,a\n3.0,4.0,b\n3.1,4.1,b\n",
		), os.FileMode(0600)); err != nil {
			t.Fatal(err)
		}

		var gotTable dataset.Table
		var gotCfg sweep.Config
		testee := run.Task(func(
			ctx context.Context, logger *log.Logger, conf *config.StackConfig,
			d dataset.Table, cfg sweep.Config,
		) (sweep.Summary, error) {
			gotTable = d
			gotCfg = cfg
			return summary, nil
		})

		flags := defaultFlag()
		flags.Data = dataFile
		err := testee(
			context.Background(),
			commandline.MockCommandline[run.Flag]{
				Fullname_: "track experiment run",
				Stdout_:   io.Discard,
				Stderr_:   io.Discard,
				Flags_:    flags,
			},
			nil,
		)
		if err != nil {
			t.Fatalf("unexpected error: %s", err)
		}

		if gotTable.Len() != 4 {
			t.Errorf("dataset size is not equal (actual, expected): %d, 4", gotTable.Len())
		}
		if expected := "beans"; gotCfg.DatasetName != expected {
			t.Errorf(
				"dataset name is not equal (actual, expected): %s, %s",
				gotCfg.DatasetName, expected,
			)
		}
	})

	t.Run("grid flags span their cartesian product", func(t *testing.T) {
		var gotCfg sweep.Config
		testee := run.Task(func(
			ctx context.Context, logger *log.Logger, conf *config.StackConfig,
			d dataset.Table, cfg sweep.Config,
		) (sweep.Summary, error) {
			gotCfg = cfg
			return summary, nil
		})

		flags := defaultFlag()
		flags.NEstimators = &args.Ints{50, 100}
		flags.MaxDepth = &args.Ints{3, 5}
		flags.MinSamplesSplit = &args.Ints{2}
		err := testee(
			context.Background(),
			commandline.MockCommandline[run.Flag]{
				Fullname_: "track experiment run",
				Stdout_:   io.Discard,
				Stderr_:   io.Discard,
				Flags_:    flags,
			},
			nil,
		)
		if err != nil {
			t.Fatalf("unexpected error: %s", err)
		}

		expected := sweep.GridOf([]int{50, 100}, []int{3, 5}, []int{2})
		if len(gotCfg.Grid) != len(expected) {
			t.Fatalf(
				"grid size is not equal (actual, expected): %d, %d",
				len(gotCfg.Grid), len(expected),
			)
		}
		for i := range expected {
			if gotCfg.Grid[i] != expected[i] {
				t.Errorf(
					"grid[%d] is not equal (actual, expected): %+v, %+v",
					i, gotCfg.Grid[i], expected[i],
				)
			}
		}
	})

	t.Run("a partial grid is a usage error", func(t *testing.T) {
		called := 0
		testee := run.Task(func(
			ctx context.Context, logger *log.Logger, conf *config.StackConfig,
			d dataset.Table, cfg sweep.Config,
		) (sweep.Summary, error) {
			called += 1
			return summary, nil
		})

		flags := defaultFlag()
		flags.NEstimators = &args.Ints{50}
		err := testee(
			context.Background(),
			commandline.MockCommandline[run.Flag]{
				Fullname_: "track experiment run",
				Stdout_:   io.Discard,
				Stderr_:   io.Discard,
				Flags_:    flags,
			},
			nil,
		)
		if !errors.Is(err, flarc.ErrUsage) {
			t.Errorf("unexpected error: %v", err)
		}
		if called != 0 {
			t.Errorf("runner is called %d times", called)
		}
	})

	t.Run("when the dataset file is missing, it does not sweep", func(t *testing.T) {
		called := 0
		testee := run.Task(func(
			ctx context.Context, logger *log.Logger, conf *config.StackConfig,
			d dataset.Table, cfg sweep.Config,
		) (sweep.Summary, error) {
			called += 1
			return summary, nil
		})

		flags := defaultFlag()
		flags.Data = filepath.Join(t.TempDir(), "no-such-data.csv")
		err := testee(
			context.Background(),
			commandline.MockCommandline[run.Flag]{
				Fullname_: "track experiment run",
				Stdout_:   io.Discard,
				Stderr_:   io.Discard,
				Flags_:    flags,
			},
			nil,
		)
		if err == nil {
			t.Fatal("no error occured")
		}
		if called != 0 {
			t.Errorf("runner is called %d times", called)
		}
	})

	t.Run("when the sweep fails, the error is returned", func(t *testing.T) {
		expectedErr := errors.New("fake error")
		testee := run.Task(func(
			ctx context.Context, logger *log.Logger, conf *config.StackConfig,
			d dataset.Table, cfg sweep.Config,
		) (sweep.Summary, error) {
			return sweep.Summary{}, expectedErr
		})

		err := testee(
			context.Background(),
			commandline.MockCommandline[run.Flag]{
				Fullname_: "track experiment run",
				Stdout_:   io.Discard,
				Stderr_:   io.Discard,
				Flags_:    defaultFlag(),
			},
			nil,
		)
		if !errors.Is(err, expectedErr) {
			t.Errorf("unexpected error: %v", err)
		}
	})
}
