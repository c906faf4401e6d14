package common

import (
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ProfileEnvVar names the profile to use, overriding `.trackprofile` detection.
const ProfileEnvVar = "TRACKFAB_PROFILE"

type CommonFlags struct {
	Profile      string `flag:"profile" help:"track profile name to use"`
	ProfileStore string `flag:"profile-store" help:"path to track profile store file"`
}

type commonFlagDetection struct {
	home   string
	getenv func(string) string
}

type CommonFlagDetectionOption func(*commonFlagDetection) *commonFlagDetection

func WithHome(home string) CommonFlagDetectionOption {
	return func(opt *commonFlagDetection) *commonFlagDetection {
		opt.home = home
		return opt
	}
}

// WithEnviron overrides environment variable lookup. For testing.
func WithEnviron(getenv func(string) string) CommonFlagDetectionOption {
	return func(opt *commonFlagDetection) *commonFlagDetection {
		opt.getenv = getenv
		return opt
	}
}

// Flags detects default values of CommonFlags.
//
// The profile name is taken from the environment variable TRACKFAB_PROFILE,
// or otherwise from the first `.trackprofile` file found in `from` or
// its ancestor directories.
func Flags(from string, opt ...CommonFlagDetectionOption) (CommonFlags, error) {
	detparam := commonFlagDetection{
		home:   "",
		getenv: os.Getenv,
	}
	for _, o := range opt {
		detparam = *o(&detparam)
	}

	home := detparam.home
	if home == "" {
		_home, err := os.UserHomeDir()
		if err != nil {
			_home = ""
		}
		home = _home
	}
	store := path.Join(home, ".trackfab", "profile")

	if p := detparam.getenv(ProfileEnvVar); p != "" {
		return CommonFlags{Profile: p, ProfileStore: store}, nil
	}

	if _from, err := filepath.Abs(from); err == nil {
		from = _from
	}

	profile := from

	for searchpath := from; ; {
		candidate := path.Join(searchpath, ".trackprofile")
		if s, err := os.Stat(candidate); err == nil && s.Mode().IsRegular() {
			_profile, err := os.ReadFile(candidate)
			if err != nil {
				return CommonFlags{}, err
			}
			if p := strings.Split(string(_profile), "\n"); 0 < len(p) {
				profile = strings.TrimSpace(p[0])
			}
			break
		}

		next := path.Dir(searchpath)
		if next == searchpath {
			break
		}
		searchpath = next
	}

	return CommonFlags{
		Profile:      profile,
		ProfileStore: store,
	}, nil
}
