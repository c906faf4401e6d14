package experiment

import (
	experiment_demo "github.com/opst/trackfab/cmd/track/subcommands/experiment/demo"
	experiment_run "github.com/opst/trackfab/cmd/track/subcommands/experiment/run"
	"github.com/youta-t/flarc"
)

func New() (flarc.Command, error) {
	run, err := experiment_run.New()
	if err != nil {
		return nil, err
	}
	demo, err := experiment_demo.New()
	if err != nil {
		return nil, err
	}

	return flarc.NewCommandGroup(
		"Run training sweeps.",
		struct{}{},
		flarc.WithSubcommand("run", run),
		flarc.WithSubcommand("demo", demo),
	)
}
