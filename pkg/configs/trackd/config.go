package trackd

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// Runs left RUNNING or SCHEDULED without any logging for this long
	// are swept to FAILED.
	DefaultStaleRunTTL = 30 * time.Minute

	// How often the sweeper looks for stale runs.
	DefaultSweepInterval = 5 * time.Minute
)

// Configuration of the trackd server.
type TrackdConfig struct {
	// Port the server listens on.
	ServerPort string `yaml:"port"`

	// Connection string of the metadata database.
	DBURI string `yaml:"database"`

	// Directory holding artifact files put through the artifact API.
	ArtifactRoot string `yaml:"artifactRoot"`

	// Key for signing and verifying bearer tokens. Empty disables auth.
	SignKey string `yaml:"signKey,omitempty"`

	// TTL before an unfinished, untouched run is swept to FAILED.
	StaleRunTTL string `yaml:"staleRunTTL,omitempty"`

	// Interval between sweeps.
	SweepInterval string `yaml:"sweepInterval,omitempty"`
}

func LoadTrackdConfig(filepath string) (*TrackdConfig, error) {
	content, err := os.ReadFile(filepath)
	if err != nil {
		return nil, err
	}
	return Unmarshal(content)
}

func Unmarshal(conf []byte) (*TrackdConfig, error) {
	var out TrackdConfig
	err := yaml.Unmarshal(conf, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SweepPolicy parses the stale-run sweep timings, falling back to
// defaults for omitted values.
func (c *TrackdConfig) SweepPolicy() (ttl time.Duration, interval time.Duration, err error) {
	ttl = DefaultStaleRunTTL
	if c.StaleRunTTL != "" {
		ttl, err = time.ParseDuration(c.StaleRunTTL)
		if err != nil {
			return 0, 0, fmt.Errorf("staleRunTTL can not be parsed: %w", err)
		}
	}

	interval = DefaultSweepInterval
	if c.SweepInterval != "" {
		interval, err = time.ParseDuration(c.SweepInterval)
		if err != nil {
			return 0, 0, fmt.Errorf("sweepInterval can not be parsed: %w", err)
		}
	}

	return ttl, interval, nil
}
