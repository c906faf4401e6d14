package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path"

	"github.com/opst/trackfab/cmd/track/subcommands/common"
	subexperiment "github.com/opst/trackfab/cmd/track/subcommands/experiment"
	subinit "github.com/opst/trackfab/cmd/track/subcommands/init"
	"github.com/opst/trackfab/cmd/track/subcommands/logger"
	subruns "github.com/opst/trackfab/cmd/track/subcommands/runs"
	substack "github.com/opst/trackfab/cmd/track/subcommands/stack"
	subversion "github.com/opst/trackfab/cmd/track/subcommands/version"
	"github.com/opst/trackfab/pkg/utils/try"
	"github.com/youta-t/flarc"
)

func main() {
	name := path.Base(os.Args[0])
	logger := logger.Default()
	logger.SetPrefix(fmt.Sprintf("[%s] ", name))

	ctx, cancel := signal.NotifyContext(
		context.Background(), os.Interrupt, os.Kill,
	)
	defer cancel()

	cf := try.To(common.Flags(".")).OrFatal(logger)
	init := try.To(subinit.New()).OrFatal(logger)
	stack := try.To(substack.New()).OrFatal(logger)
	experiment := try.To(subexperiment.New()).OrFatal(logger)
	runs := try.To(subruns.New()).OrFatal(logger)
	version := try.To(subversion.New()).OrFatal(logger)

	track := try.To(
		flarc.NewCommandGroup(
			"Trackfab Commandline interface",
			cf,
			flarc.WithSubcommand("init", init),
			flarc.WithSubcommand("stack", stack),
			flarc.WithSubcommand("experiment", experiment),
			flarc.WithSubcommand("runs", runs),
			flarc.WithSubcommand("version", version),
		),
	).OrFatal(logger)

	os.Exit(flarc.Run(ctx, track, flarc.WithHelp(true)))
}
