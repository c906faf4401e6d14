package common

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/opst/trackfab/cmd/track/config/profiles"
	cerr "github.com/opst/trackfab/cmd/track/errors"
	"github.com/opst/trackfab/pkg/tracking"
	"github.com/youta-t/flarc"
)

type TrackTaskWithCommonFlag[T any] func(
	ctx context.Context,
	logger *log.Logger,
	commonFlag CommonFlags,
	cl flarc.Commandline[T],
	params []any,
) error

func NewTaskWithCommonFlag[T any](task TrackTaskWithCommonFlag[T]) flarc.Task[T] {
	return func(ctx context.Context, cl flarc.Commandline[T], pos []any) error {
		var commonFlag CommonFlags
		found := false
		newpos := make([]any, 0, len(pos))
		for _, p := range pos {
			switch v := p.(type) {
			case CommonFlags:
				found = true
				commonFlag = v
			default:
				newpos = append(newpos, p)
			}
		}
		if !found {
			return errors.New("programming error: common flags not found")
		}

		logger := log.New(cl.Stderr(), "", log.LstdFlags)
		logger.SetPrefix(fmt.Sprintf("[%s] ", cl.Fullname()))

		return task(
			ctx,
			logger,
			commonFlag,
			cl,
			newpos,
		)
	}
}

type Task[T any] func(
	ctx context.Context,
	logger *log.Logger,
	profile *profiles.TrackProfile,
	client tracking.TrackClient,
	cl flarc.Commandline[T],
	params []any,
) error

func NewTask[T any](task Task[T]) flarc.Task[T] {

	return NewTaskWithCommonFlag(func(
		ctx context.Context,
		logger *log.Logger,
		commonFlag CommonFlags,
		cl flarc.Commandline[T],
		params []any,
	) error {
		store, err := profiles.LoadProfileStore(commonFlag.ProfileStore)
		if err != nil {
			if errors.Is(err, profiles.ErrProfileStoreNotFound) {
				return cerr.NewCuiError(
					fmt.Sprintf("profile store (%s) is not found", commonFlag.ProfileStore),
					cerr.WithAdvice("Please try `track init` first. Ask your admin to get a track profile."),
					cerr.WithCause(err),
				)
			}
			return cerr.NewCuiError(
				fmt.Sprintf("failed to load profile store (%s)", commonFlag.ProfileStore),
				cerr.WithCause(err),
			)
		}
		prof, ok := store[commonFlag.Profile]
		if !ok {
			return cerr.NewCuiError(
				fmt.Sprintf(
					"profile '%s' not found in the profile store (%s)",
					commonFlag.Profile, commonFlag.ProfileStore,
				),
				cerr.WithAdvice("Ask your admin to get a track profile, and register it with `track init`."),
			)
		}

		client, err := tracking.NewClient(prof.ApiRoot, tracking.WithToken(prof.Token))
		if err != nil {
			return cerr.NewCuiError(
				fmt.Sprintf(
					"failed to create tracking client. Your track profile (%s in %s) can be broken",
					commonFlag.Profile, commonFlag.ProfileStore,
				),
				cerr.WithAdvice("Remove it and try `track init` again. Ask your admin to get a track profile."),
				cerr.WithCause(err),
			)
		}
		return task(ctx, logger, prof, client, cl, params)
	})
}
