package status

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/opst/trackfab-api-types/stacks"
	"github.com/opst/trackfab/cmd/track/subcommands/internal/connect"
	config "github.com/opst/trackfab/pkg/configs/stack"
	"github.com/opst/trackfab/pkg/loop"
	"github.com/youta-t/flarc"
)

type Flag struct {
	Config string        `flag:"config" metavar:"STACK_CONFIG.yml" help:"stack configuration file. The builtin defaults are used when omitted."`
	Watch  time.Duration `flag:"watch" metavar:"INTERVAL" help:"repeat the report at this interval until interrupted."`
}

type Option struct {
	report func(
		ctx context.Context,
		logger *log.Logger,
		conf *config.StackConfig,
	) (stacks.Report, error)
}

func WithReporter(
	report func(
		ctx context.Context,
		logger *log.Logger,
		conf *config.StackConfig,
	) (stacks.Report, error),
) func(*Option) *Option {
	return func(opt *Option) *Option {
		opt.report = report
		return opt
	}
}

func New(
	options ...func(*Option) *Option,
) (flarc.Command, error) {
	option := &Option{
		report: RunStatus,
	}
	for _, opt := range options {
		option = opt(option)
	}

	return flarc.NewCommand(
		"Report readiness of the tracking stack components.",
		Flag{},
		flarc.Args{},
		Task(option.report),
		flarc.WithDescription(`
Show, as JSON, whether each stack component is ready: artifact store,
metadata database, tracking server and metrics gateway.

With "--watch", "{{ .Command }}" repeats the report until interrupted.
`),
	)
}

func Task(
	report func(context.Context, *log.Logger, *config.StackConfig) (stacks.Report, error),
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

		enc := json.NewEncoder(cl.Stdout())
		enc.SetIndent("", "    ")

		if flags.Watch <= 0 {
			rep, err := report(ctx, logger, conf)
			if err != nil {
				return err
			}
			return enc.Encode(rep)
		}

		_, err = loop.Start(ctx, struct{}{}, func(ctx context.Context, s struct{}) (struct{}, loop.Next) {
			rep, err := report(ctx, logger, conf)
			if err != nil {
				return s, loop.Break(err)
			}
			if err := enc.Encode(rep); err != nil {
				return s, loop.Break(err)
			}
			return s, loop.Continue(flags.Watch)
		})
		if ctx.Err() != nil {
			// interrupting the watch is the normal way out
			return nil
		}
		return err
	}
}

func RunStatus(
	ctx context.Context,
	logger *log.Logger,
	conf *config.StackConfig,
) (stacks.Report, error) {
	s, err := connect.Connect(conf, logger)
	if err != nil {
		return stacks.Report{}, err
	}
	return s.Status(ctx)
}
