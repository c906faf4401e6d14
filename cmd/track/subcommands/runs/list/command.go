package list

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"

	"github.com/opst/trackfab-api-types/runs"
	"github.com/opst/trackfab/cmd/track/config/profiles"
	"github.com/opst/trackfab/cmd/track/subcommands/common"
	"github.com/opst/trackfab/pkg/tracking"
	"github.com/opst/trackfab/pkg/train/sweep"
	"github.com/youta-t/flarc"
)

type Flag struct {
	Experiment string   `flag:"experiment" metavar:"NAME" help:"name of the Experiment to list Runs of."`
	Filter     string   `flag:"filter" metavar:"EXPRESSION" help:"show Runs satisfying the expression, like \"metrics.accuracy > 0.9\"."`
	Limit      int64    `flag:"limit" metavar:"N" help:"maximum number of Runs to be listed. 0 means all."`
	OrderBy    []string `flag:"order-by" metavar:"FIELD[ ASC|DESC]" help:"sort key, like \"metrics.accuracy DESC\". Repeatable."`
}

type Option struct {
	list func(
		ctx context.Context,
		logger *log.Logger,
		client tracking.TrackClient,
		experimentName string,
		query runs.SearchRequest,
	) ([]runs.Detail, error)
}

func WithList(
	list func(
		ctx context.Context,
		logger *log.Logger,
		client tracking.TrackClient,
		experimentName string,
		query runs.SearchRequest,
	) ([]runs.Detail, error),
) func(*Option) *Option {
	return func(opt *Option) *Option {
		opt.list = list
		return opt
	}
}

func New(options ...func(*Option) *Option) (flarc.Command, error) {
	option := &Option{
		list: RunListRuns,
	}
	for _, o := range options {
		option = o(option)
	}

	return flarc.NewCommand(
		"Display Runs of an Experiment that satisfy all specified conditions.",
		Flag{
			Experiment: sweep.DefaultExperimentName,
			Filter:     "",
			Limit:      0,
			OrderBy:    []string{},
		},
		flarc.Args{},
		common.NewTask(Task(option.list)),
		flarc.WithDescription(`
Display Runs of an Experiment, newest first unless ordered otherwise.

Runs are shown as a JSON array, with their params, metrics and tags.

Example
-------

Listing Runs of the default Experiment:

	{{ .Command }}

Listing Runs of an Experiment by name:

	{{ .Command }} --experiment iris_classification

Listing accurate Runs only, best first:

	{{ .Command }} --filter "metrics.accuracy > 0.9" --order-by "metrics.accuracy DESC"

Listing the single best Run:

	{{ .Command }} --order-by "metrics.accuracy DESC" --limit 1
`),
	)
}

func Task(
	list func(
		ctx context.Context,
		logger *log.Logger,
		client tracking.TrackClient,
		experimentName string,
		query runs.SearchRequest,
	) ([]runs.Detail, error),
) common.Task[Flag] {
	return func(
		ctx context.Context,
		logger *log.Logger,
		profile *profiles.TrackProfile,
		client tracking.TrackClient,
		cl flarc.Commandline[Flag],
		params []any,
	) error {
		flags := cl.Flags()
		if flags.Experiment == "" {
			return fmt.Errorf("%w: --experiment is required", flarc.ErrUsage)
		}
		if flags.Limit < 0 {
			return fmt.Errorf("%w: --limit should not be negative", flarc.ErrUsage)
		}
		limit := flags.Limit
		if math.MaxInt32 < limit {
			// the wire carries int32. beyond that lists everything anyway.
			limit = math.MaxInt32
		}

		query := runs.SearchRequest{
			Filter:     flags.Filter,
			MaxResults: int32(limit),
			OrderBy:    flags.OrderBy,
		}

		found, err := list(ctx, logger, client, flags.Experiment, query)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cl.Stdout())
		enc.SetIndent("", "    ")
		if err := enc.Encode(found); err != nil {
			return err
		}

		return nil
	}
}

func RunListRuns(
	ctx context.Context,
	logger *log.Logger,
	client tracking.TrackClient,
	experimentName string,
	query runs.SearchRequest,
) ([]runs.Detail, error) {
	experiment, err := client.GetExperiment(ctx, experimentName)
	if err != nil {
		return nil, err
	}
	query.ExperimentIds = []string{experiment.ExperimentId}

	found := []runs.Detail{}
	for {
		page, err := client.SearchRuns(ctx, query)
		if err != nil {
			return nil, err
		}
		found = append(found, page.Runs...)

		if 0 < query.MaxResults && query.MaxResults <= int32(len(found)) {
			return found[:query.MaxResults], nil
		}
		if page.NextPageToken == "" {
			return found, nil
		}
		query.PageToken = page.NextPageToken
	}
}
