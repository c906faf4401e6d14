package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"
	kpool "github.com/opst/trackfab/pkg/conn/db/postgres/pool"
	"github.com/opst/trackfab/pkg/db"
	kpgexp "github.com/opst/trackfab/pkg/db/postgres/experiment"
	"github.com/opst/trackfab/pkg/db/postgres/gate"
	kpgrun "github.com/opst/trackfab/pkg/db/postgres/run"
	kpgschema "github.com/opst/trackfab/pkg/db/postgres/schema"
	xe "github.com/opst/trackfab/pkg/errors"
	"github.com/opst/trackfab/pkg/utils/retry"
)

type trackDBPostgres struct {
	pool       *pgxpool.Pool
	experiment db.ExperimentInterface
	runs       db.RunInterface
	schema     db.SchemaInterface
}

type Config struct {
	ArtifactRoot     string
	SchemaRepository string
	Backoff          retry.Backoff
}

func DefaultConfig() Config {
	return Config{
		ArtifactRoot: kpgexp.DefaultArtifactRoot,
	}
}

type Option func(*Config) *Config

// WithArtifactRoot sets the base of artifact locations for new experiments.
func WithArtifactRoot(root string) Option {
	return func(c *Config) *Config {
		c.ArtifactRoot = root
		return c
	}
}

// WithSchemaRepository enables schema upgrades and version checks against
// the repository directory.
func WithSchemaRepository(repository string) Option {
	return func(c *Config) *Config {
		c.SchemaRepository = repository
		return c
	}
}

// WithBackoff sets the wait between connection attempts while the database
// is starting up.
func WithBackoff(b retry.Backoff) Option {
	return func(c *Config) *Config {
		c.Backoff = b
		return c
	}
}

func New(
	ctx context.Context,
	url string,
	options ...Option,
) (db.TrackDatabase, error) {
	c := DefaultConfig()
	for _, option := range options {
		c = *option(&c)
	}

	gateOptions := []gate.Option{}
	if c.Backoff != nil {
		gateOptions = append(gateOptions, gate.WithBackoff(c.Backoff))
	}
	pool, err := gate.Connect(ctx, url, gateOptions...)
	if err != nil {
		return nil, xe.Wrap(err)
	}

	p := kpool.Wrap(pool)
	var schema db.SchemaInterface = kpgschema.Null()
	if c.SchemaRepository != "" {
		schema = kpgschema.New(p, c.SchemaRepository)
	}

	return &trackDBPostgres{
		pool:       pool,
		experiment: kpgexp.New(p, kpgexp.WithArtifactRoot(c.ArtifactRoot)),
		runs:       kpgrun.New(p),
		schema:     schema,
	}, nil
}

func (t *trackDBPostgres) Experiment() db.ExperimentInterface {
	return t.experiment
}

func (t *trackDBPostgres) Run() db.RunInterface {
	return t.runs
}

func (t *trackDBPostgres) Schema() db.SchemaInterface {
	return t.schema
}

func (t *trackDBPostgres) Close() error {
	t.pool.Close()
	return nil
}
