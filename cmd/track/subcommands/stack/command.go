package stack

import (
	stack_apply "github.com/opst/trackfab/cmd/track/subcommands/stack/apply"
	stack_down "github.com/opst/trackfab/cmd/track/subcommands/stack/down"
	stack_status "github.com/opst/trackfab/cmd/track/subcommands/stack/status"
	stack_template "github.com/opst/trackfab/cmd/track/subcommands/stack/template"
	"github.com/youta-t/flarc"
)

func New() (flarc.Command, error) {
	apply, err := stack_apply.New()
	if err != nil {
		return nil, err
	}
	status, err := stack_status.New()
	if err != nil {
		return nil, err
	}
	down, err := stack_down.New()
	if err != nil {
		return nil, err
	}
	template, err := stack_template.New()
	if err != nil {
		return nil, err
	}

	return flarc.NewCommandGroup(
		"Deploy, inspect and remove the tracking stack.",
		struct{}{},
		flarc.WithSubcommand("apply", apply),
		flarc.WithSubcommand("status", status),
		flarc.WithSubcommand("down", down),
		flarc.WithSubcommand("template", template),
	)
}
