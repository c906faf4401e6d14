package down

import (
	"context"
	"fmt"
	"log"

	"github.com/opst/trackfab/cmd/track/subcommands/internal/connect"
	config "github.com/opst/trackfab/pkg/configs/stack"
	"github.com/opst/trackfab/pkg/stack"
	"github.com/youta-t/flarc"
)

type Flag struct {
	Config   string `flag:"config" metavar:"STACK_CONFIG.yml" help:"stack configuration file. The builtin defaults are used when omitted."`
	KeepData bool   `flag:"keep-data" help:"keep the persistent volume claims holding artifacts and metadata."`
}

type Option struct {
	down func(
		ctx context.Context,
		logger *log.Logger,
		conf *config.StackConfig,
		keepData bool,
	) error
}

func WithTeardown(
	down func(
		ctx context.Context,
		logger *log.Logger,
		conf *config.StackConfig,
		keepData bool,
	) error,
) func(*Option) *Option {
	return func(opt *Option) *Option {
		opt.down = down
		return opt
	}
}

func New(
	options ...func(*Option) *Option,
) (flarc.Command, error) {
	option := &Option{
		down: RunDown,
	}
	for _, opt := range options {
		option = opt(option)
	}

	return flarc.NewCommand(
		"Remove the tracking stack from the cluster.",
		Flag{},
		flarc.Args{},
		Task(option.down),
		flarc.WithDescription(`
Delete the applied stack resources in reverse order and wait for each of
them to be gone.

With "--keep-data", persistent volume claims survive so that a later
"track stack apply" finds artifacts and metadata again.
`),
	)
}

func Task(
	down func(context.Context, *log.Logger, *config.StackConfig, bool) error,
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

		if err := down(ctx, logger, conf, flags.KeepData); err != nil {
			return err
		}
		if flags.KeepData {
			logger.Printf(
				"stack is removed from namespace %s (volumes are kept)",
				conf.Namespace(),
			)
		} else {
			logger.Printf("stack is removed from namespace %s", conf.Namespace())
		}
		return nil
	}
}

func RunDown(
	ctx context.Context,
	logger *log.Logger,
	conf *config.StackConfig,
	keepData bool,
) error {
	s, err := connect.Connect(conf, logger)
	if err != nil {
		return err
	}
	return s.Down(ctx, stack.DownOptions{KeepData: keepData})
}
