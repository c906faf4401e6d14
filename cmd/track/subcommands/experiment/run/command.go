package run

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	cerr "github.com/opst/trackfab/cmd/track/errors"
	"github.com/opst/trackfab/cmd/track/subcommands/internal/connect"
	"github.com/opst/trackfab/pkg/cluster"
	"github.com/opst/trackfab/pkg/cluster/forward"
	config "github.com/opst/trackfab/pkg/configs/stack"
	"github.com/opst/trackfab/pkg/gateway"
	"github.com/opst/trackfab/pkg/stack"
	"github.com/opst/trackfab/pkg/tracking"
	"github.com/opst/trackfab/pkg/train/dataset"
	"github.com/opst/trackfab/pkg/train/sweep"
	"github.com/opst/trackfab/pkg/utils/args"
	"github.com/opst/trackfab/pkg/utils/retry"
	"github.com/youta-t/flarc"
	"golang.org/x/sync/errgroup"
)

type Flag struct {
	Config          string     `flag:"config" metavar:"STACK_CONFIG.yml" help:"stack configuration file. The builtin defaults are used when omitted."`
	Data            string     `flag:"data" metavar:"DATASET.csv" help:"csv dataset with a header and the class label in the last column. The builtin sample is used when omitted."`
	Experiment      string     `flag:"experiment" help:"name of the tracking experiment."`
	Output          string     `flag:"output" alias:"o" metavar:"DIR" help:"directory where the best model is saved."`
	TestSize        float64    `flag:"test-size" help:"fraction of rows held out for evaluation."`
	Seed            int64      `flag:"seed" help:"random seed for splitting and training."`
	NEstimators     *args.Ints `flag:"n-estimators" metavar:"N,..." help:"numbers of trees to sweep. Repeatable."`
	MaxDepth        *args.Ints `flag:"max-depth" metavar:"N,..." help:"tree depth limits to sweep. Repeatable."`
	MinSamplesSplit *args.Ints `flag:"min-samples-split" metavar:"N,..." help:"node split thresholds to sweep. Repeatable."`
}

type Option struct {
	run func(
		ctx context.Context,
		logger *log.Logger,
		conf *config.StackConfig,
		d dataset.Table,
		cfg sweep.Config,
	) (sweep.Summary, error)
}

func WithRunner(
	run func(
		ctx context.Context,
		logger *log.Logger,
		conf *config.StackConfig,
		d dataset.Table,
		cfg sweep.Config,
	) (sweep.Summary, error),
) func(*Option) *Option {
	return func(opt *Option) *Option {
		opt.run = run
		return opt
	}
}

func New(
	options ...func(*Option) *Option,
) (flarc.Command, error) {
	option := &Option{
		run: RunExperiment,
	}
	for _, opt := range options {
		option = opt(option)
	}

	return flarc.NewCommand(
		"Run the training sweep against the deployed tracking stack.",
		Flag{
			Experiment:      sweep.DefaultExperimentName,
			Output:          sweep.DefaultBestModelDir,
			TestSize:        sweep.DefaultTestSize,
			Seed:            sweep.DefaultSeed,
			NEstimators:     &args.Ints{},
			MaxDepth:        &args.Ints{},
			MinSamplesSplit: &args.Ints{},
		},
		flarc.Args{},
		Task(option.run),
		flarc.WithDescription(`
Train a random-forest classifier for each hyperparameter combination,
recording every run on the tracking server and pushing its gauges to the
metrics gateway. Both services are reached through port-forward tunnels
which "{{ .Command }}" opens, supervises and closes by itself.

The grid defaults to six combinations. Passing all of "--n-estimators",
"--max-depth" and "--min-samples-split" sweeps their cartesian product
instead.

The best model by accuracy is saved into "--output" and uploaded as an
artifact of its run.

Example:

	{{ .Command }} --data ./iris.csv --n-estimators 50,100 --max-depth 3,5 --min-samples-split 2
`),
	)
}

func Task(
	run func(context.Context, *log.Logger, *config.StackConfig, dataset.Table, sweep.Config) (sweep.Summary, error),
) flarc.Task[Flag] {
	return func(ctx context.Context, cl flarc.Commandline[Flag], params []any) error {
		logger := log.New(cl.Stderr(), fmt.Sprintf("[%s] ", cl.Fullname()), log.LstdFlags)

		flags := cl.Flags()
		conf, err := connect.Load(flags.Config)
		if err != nil {
			return fmt.Errorf(
				"cannot load stack configuration (%s): %w", flags.Config, err,
			)
		}

		cfg := sweep.Config{
			Experiment:   flags.Experiment,
			TestSize:     flags.TestSize,
			Seed:         flags.Seed,
			BestModelDir: flags.Output,
		}

		nEstimators := []int(*flags.NEstimators)
		maxDepth := []int(*flags.MaxDepth)
		minSamplesSplit := []int(*flags.MinSamplesSplit)
		if 0 < len(nEstimators) || 0 < len(maxDepth) || 0 < len(minSamplesSplit) {
			if len(nEstimators) == 0 || len(maxDepth) == 0 || len(minSamplesSplit) == 0 {
				return fmt.Errorf(
					"%w: --n-estimators, --max-depth and --min-samples-split are required together",
					flarc.ErrUsage,
				)
			}
			cfg.Grid = sweep.GridOf(nEstimators, maxDepth, minSamplesSplit)
		}

		d := dataset.Table{}
		if flags.Data == "" {
			d = dataset.Sample()
		} else {
			f, err := os.Open(flags.Data)
			if err != nil {
				return fmt.Errorf("cannot open dataset (%s): %w", flags.Data, err)
			}
			d, err = dataset.Load(f)
			f.Close()
			if err != nil {
				return fmt.Errorf("cannot load dataset (%s): %w", flags.Data, err)
			}
			cfg.DatasetName = strings.TrimSuffix(
				filepath.Base(flags.Data), filepath.Ext(flags.Data),
			)
		}

		summary, err := run(ctx, logger, conf, d, cfg)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cl.Stdout())
		enc.SetIndent("", "    ")
		return enc.Encode(summaryOut{
			RunId:           summary.Best.RunId,
			Accuracy:        summary.Best.Accuracy,
			Loss:            summary.Best.Loss,
			NEstimators:     summary.Best.Params.NEstimators,
			MaxDepth:        summary.Best.Params.MaxDepth,
			MinSamplesSplit: summary.Best.Params.MinSamplesSplit,
			ModelPath:       summary.ModelPath,
		})
	}
}

type summaryOut struct {
	RunId           string  `json:"run_id"`
	Accuracy        float64 `json:"accuracy"`
	Loss            float64 `json:"loss"`
	NEstimators     int     `json:"n_estimators"`
	MaxDepth        int     `json:"max_depth"`
	MinSamplesSplit int     `json:"min_samples_split"`
	ModelPath       string  `json:"model_path"`
}

// RunExperiment opens tunnels to the tracking server and the metrics
// gateway, waits for both to answer, then sweeps.
func RunExperiment(
	ctx context.Context,
	logger *log.Logger,
	conf *config.StackConfig,
	d dataset.Table,
	cfg sweep.Config,
) (sweep.Summary, error) {
	conn, err := connect.ClusterConnection()
	if err != nil {
		return sweep.Summary{}, err
	}
	client := cluster.WrapK8sClient(conn.Clientset)

	sctx, stop := context.WithCancel(ctx)
	defer stop()
	eg, egctx := errgroup.WithContext(sctx)

	trackingReady := make(chan string, 1)
	gatewayReady := make(chan string, 1)

	trackingSup := &forward.Supervisor{
		Namespace: conf.Namespace(),
		Spec: forward.Spec{
			Service:   conf.TrackingServer().Name(),
			Port:      stack.PortNameHTTP,
			LocalPort: conf.TrackingServer().Port(),
		},
		Config:     conn.Config,
		Client:     client,
		RetryLimit: 5,
		Log:        logger,
	}
	gatewaySup := &forward.Supervisor{
		Namespace: conf.Namespace(),
		Spec: forward.Spec{
			Service:   conf.MetricsGateway().Name(),
			Port:      stack.PortNameHTTP,
			LocalPort: conf.MetricsGateway().Port(),
		},
		Config:     conn.Config,
		Client:     client,
		RetryLimit: 5,
		Log:        logger,
	}

	eg.Go(func() error {
		return trackingSup.Run(egctx, func(addr string) { trackingReady <- addr })
	})
	eg.Go(func() error {
		return gatewaySup.Run(egctx, func(addr string) { gatewayReady <- addr })
	})

	var summary sweep.Summary
	eg.Go(func() error {
		// the sweep is over: tear the tunnels down
		defer stop()

		var trackingAddr, gatewayAddr string
		select {
		case trackingAddr = <-trackingReady:
		case <-egctx.Done():
			return egctx.Err()
		}
		select {
		case gatewayAddr = <-gatewayReady:
		case <-egctx.Done():
			return egctx.Err()
		}

		track, err := tracking.NewClient("http://" + trackingAddr)
		if err != nil {
			return err
		}
		gw, err := gateway.New("http://" + gatewayAddr)
		if err != nil {
			return err
		}

		hctx, hcancel := context.WithTimeout(egctx, conf.Timeout())
		defer hcancel()
		if _, err := retry.Blocking(hctx, retry.StaticBackoff(time.Second), func() (struct{}, error) {
			if err := track.Health(hctx); err != nil {
				return struct{}{}, fmt.Errorf("%w: %s", retry.ErrRetry, err)
			}
			return struct{}{}, nil
		}); err != nil {
			return cerr.NewCuiError(
				"tracking server does not answer",
				cerr.WithAdvice("Is the stack deployed? Check `track stack status`, or deploy with `track stack apply`."),
				cerr.WithCause(err),
			)
		}
		if _, err := retry.Blocking(hctx, retry.StaticBackoff(time.Second), func() (struct{}, error) {
			if err := gw.Ready(hctx); err != nil {
				return struct{}{}, fmt.Errorf("%w: %s", retry.ErrRetry, err)
			}
			return struct{}{}, nil
		}); err != nil {
			return cerr.NewCuiError(
				"metrics gateway does not answer",
				cerr.WithAdvice("Is the stack deployed? Check `track stack status`, or deploy with `track stack apply`."),
				cerr.WithCause(err),
			)
		}

		s, err := sweep.New(track, gw, logger).Run(egctx, d, cfg)
		if err != nil {
			return err
		}
		summary = s
		return nil
	})

	if err := eg.Wait(); err != nil {
		return sweep.Summary{}, err
	}
	return summary, nil
}
