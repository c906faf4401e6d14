package runs

import (
	runs_list "github.com/opst/trackfab/cmd/track/subcommands/runs/list"
	"github.com/youta-t/flarc"
)

func New() (flarc.Command, error) {
	list, err := runs_list.New()
	if err != nil {
		return nil, err
	}

	return flarc.NewCommandGroup(
		"Inspect Runs recorded on the tracking server.",
		struct{}{},
		flarc.WithSubcommand("list", list),
	)
}
