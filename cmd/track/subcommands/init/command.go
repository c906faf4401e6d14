package init

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/opst/trackfab/cmd/track/config/profiles"
	"github.com/opst/trackfab/cmd/track/subcommands/common"
	"github.com/youta-t/flarc"
	"gopkg.in/yaml.v3"
)

const ARG_PROFILE_FILE = "TRACK_PROFILE_FILE"

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"initialize this directory as a trackfab-powered project.",
		struct{}{},
		flarc.Args{
			{
				Name: ARG_PROFILE_FILE, Required: true,
				Help: "filepath to track profile file, which you received from your admin.",
			},
		},
		common.NewTaskWithCommonFlag(Task()),
		flarc.WithDescription(`
Register a new track profile into your profile store.

A "track profile" is a file which contains endpoints of a tracking stack.
"{{ .Command }}" registers the given profile into your profile store.

The name of the profile is given by "--profile" ( default: current filepath ).
`),
	)
}

func Task() common.TrackTaskWithCommonFlag[struct{}] {
	return func(
		ctx context.Context,
		logger *log.Logger,
		cf common.CommonFlags,
		cl flarc.Commandline[struct{}],
		params []any,
	) error {
		profFile := cl.Args()[ARG_PROFILE_FILE][0]

		profStore, err := profiles.LoadProfileStore(cf.ProfileStore)
		if errors.Is(err, profiles.ErrProfileStoreNotFound) {
			// ok.
			profStore = profiles.ProfileStore{}
		} else if err != nil {
			return fmt.Errorf(
				"failed to load profile store (%s): %w", cf.ProfileStore, err,
			)
		}

		newProf := new(profiles.TrackProfile)
		{
			content, err := os.ReadFile(profFile)
			if err != nil {
				return fmt.Errorf(
					"failed to read profile file (%s): %w", profFile, err,
				)
			}
			if err := yaml.Unmarshal(content, newProf); err != nil {
				return fmt.Errorf(
					"failed to parse profile file (%s): %w", profFile, err,
				)
			}
		}
		if err := newProf.Verify(); err != nil {
			return fmt.Errorf("%s: %w", profFile, err)
		}

		profName := cf.Profile
		profStore[profName] = newProf
		if err := profStore.Save(cf.ProfileStore); err != nil {
			return fmt.Errorf(
				"failed to save profile store (%s): %w", cf.ProfileStore, err,
			)
		}
		logger.Printf("profile %s is saved to %s", profName, cf.ProfileStore)

		{
			f, err := os.OpenFile(
				".trackprofile", os.O_RDWR|os.O_CREATE|os.O_TRUNC, os.FileMode(0600),
			)
			if err != nil {
				return fmt.Errorf("failed to open .trackprofile: %w", err)
			}
			defer f.Close()
			f.Write([]byte(profName))
		}

		return nil
	}
}
