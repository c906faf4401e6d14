package demo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/opst/trackfab/pkg/train/dataset"
	"github.com/opst/trackfab/pkg/train/sweep"
	"github.com/youta-t/flarc"
)

type Flag struct {
	Data     string  `flag:"data" metavar:"DATASET.csv" help:"csv dataset with a header and the class label in the last column. The builtin sample is used when omitted."`
	Output   string  `flag:"output" alias:"o" metavar:"DIR" help:"directory where the best model is saved."`
	TestSize float64 `flag:"test-size" help:"fraction of rows held out for evaluation."`
	Seed     int64   `flag:"seed" help:"random seed for splitting and training."`
}

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"Run a short training sweep locally, without any cluster.",
		Flag{
			Output:   sweep.DefaultBestModelDir,
			TestSize: sweep.DefaultTestSize,
			Seed:     sweep.DefaultSeed,
		},
		flarc.Args{},
		Task(),
		flarc.WithDescription(`
Train the first three grid combinations on the local machine and save the
best model. Nothing is tracked and nothing is pushed; "{{ .Command }}" is
for trying the training program out before deploying any stack.
`),
	)
}

func Task() flarc.Task[Flag] {
	return func(ctx context.Context, cl flarc.Commandline[Flag], params []any) error {
		flags := cl.Flags()

		cfg := sweep.Config{
			TestSize:     flags.TestSize,
			Seed:         flags.Seed,
			BestModelDir: flags.Output,
		}

		d := dataset.Table{}
		if flags.Data == "" {
			d = dataset.Sample()
		} else {
			f, err := os.Open(flags.Data)
			if err != nil {
				return fmt.Errorf("cannot open dataset (%s): %w", flags.Data, err)
			}
			var lerr error
			d, lerr = dataset.Load(f)
			f.Close()
			if lerr != nil {
				return fmt.Errorf("cannot load dataset (%s): %w", flags.Data, lerr)
			}
			cfg.DatasetName = strings.TrimSuffix(
				filepath.Base(flags.Data), filepath.Ext(flags.Data),
			)
		}

		return sweep.Demo(ctx, cl.Stdout(), d, cfg)
	}
}
