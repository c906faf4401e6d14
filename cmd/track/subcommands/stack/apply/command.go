package apply

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
	Config string `flag:"config" metavar:"STACK_CONFIG.yml" help:"stack configuration file. The builtin defaults are used when omitted."`
	Force  bool   `flag:"force" help:"take over fields owned by other field managers."`
}

type Option struct {
	apply func(
		ctx context.Context,
		logger *log.Logger,
		conf *config.StackConfig,
		force bool,
	) error
}

func WithApplier(
	apply func(
		ctx context.Context,
		logger *log.Logger,
		conf *config.StackConfig,
		force bool,
	) error,
) func(*Option) *Option {
	return func(opt *Option) *Option {
		opt.apply = apply
		return opt
	}
}

func New(
	options ...func(*Option) *Option,
) (flarc.Command, error) {
	option := &Option{
		apply: RunApply,
	}
	for _, opt := range options {
		option = opt(option)
	}

	return flarc.NewCommand(
		"Deploy the tracking stack and wait for it to come ready.",
		Flag{},
		flarc.Args{},
		Task(option.apply),
		flarc.WithDescription(`
Apply the stack manifests onto the current kubernetes cluster and wait for
each component: artifact store, metadata database, tracking server and
metrics gateway.

When the configuration declares a GitOps source, "{{ .Command }}" applies
the source and kustomization custom resources instead, and leaves pulling
manifests to the controller.

"{{ .Command }}" stops at the first component which does not come ready
within the configured timeout.
`),
	)
}

func Task(
	apply func(context.Context, *log.Logger, *config.StackConfig, bool) error,
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

		if err := apply(ctx, logger, conf, flags.Force); err != nil {
			return err
		}
		logger.Printf("stack is ready in namespace %s", conf.Namespace())
		return nil
	}
}

func RunApply(
	ctx context.Context,
	logger *log.Logger,
	conf *config.StackConfig,
	force bool,
) error {
	s, err := connect.Connect(conf, logger, stack.WithForce(force))
	if err != nil {
		return err
	}
	return s.Apply(ctx)
}
