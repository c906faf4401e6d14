package experiment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v4"
	kpool "github.com/opst/trackfab/pkg/conn/db/postgres/pool"
	"github.com/opst/trackfab/pkg/db"
	kpgerr "github.com/opst/trackfab/pkg/db/postgres/errors"
)

// DefaultArtifactRoot is the base of artifact locations assigned to
// experiments created without one.
//
// The "mlflow-artifacts:" scheme means "proxied by the tracking server";
// clients resolve such locations against the server's artifact API, so
// they need no knowledge of the directory backing it.
const DefaultArtifactRoot = "mlflow-artifacts:"

// a struct for DB operations related to Experiment
type experimentPG struct { // implements db.ExperimentInterface
	pool         kpool.Pool
	artifactRoot string
}

type Option func(*experimentPG) *experimentPG

// WithArtifactRoot sets the base of artifact locations assigned to
// experiments created without one.
func WithArtifactRoot(root string) Option {
	return func(e *experimentPG) *experimentPG {
		e.artifactRoot = root
		return e
	}
}

func New(pool kpool.Pool, options ...Option) *experimentPG {
	e := &experimentPG{
		pool:         pool,
		artifactRoot: DefaultArtifactRoot,
	}
	for _, o := range options {
		e = o(e)
	}
	return e
}

var _ db.ExperimentInterface = &experimentPG{}

func (e *experimentPG) New(ctx context.Context, name string, artifactLocation string) (db.Experiment, error) {
	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return db.Experiment{}, err
	}
	defer tx.Rollback(ctx)

	ex := db.Experiment{}
	var stage string
	if err := tx.QueryRow(
		ctx,
		`
		insert into "experiment" ("name", "artifact_location")
		values ($1, $2)
		returning "experiment_id", "name", "artifact_location", "lifecycle_stage", "created_at", "updated_at";
		`,
		name, artifactLocation,
	).Scan(
		&ex.Id, &ex.Name, &ex.ArtifactLocation, &stage, &ex.CreatedAt, &ex.UpdatedAt,
	); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return db.Experiment{}, kpgerr.Exists{
				Table:    "experiment",
				Identity: fmt.Sprintf("name '%s'", name),
			}
		}
		return db.Experiment{}, err
	}
	ex.LifecycleStage = db.LifecycleStage(stage)

	// the location defaults to <root>/<experiment id>,
	// and the id is known after the insert only.
	if artifactLocation == "" {
		ex.ArtifactLocation = fmt.Sprintf(
			"%s/%d", strings.TrimSuffix(e.artifactRoot, "/"), ex.Id,
		)
		if _, err := tx.Exec(
			ctx,
			`update "experiment" set "artifact_location" = $1 where "experiment_id" = $2;`,
			ex.ArtifactLocation, ex.Id,
		); err != nil {
			return db.Experiment{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return db.Experiment{}, err
	}
	return ex, nil
}

func (e *experimentPG) Get(ctx context.Context, ids []int64) (map[int64]db.Experiment, error) {
	if len(ids) == 0 {
		return map[int64]db.Experiment{}, nil
	}

	conn, err := e.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	rows, err := conn.Query(
		ctx,
		`
		select "experiment_id", "name", "artifact_location", "lifecycle_stage", "created_at", "updated_at"
		from "experiment"
		where "experiment_id" = any($1::bigint[]);
		`,
		ids,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := map[int64]db.Experiment{}
	for rows.Next() {
		ex := db.Experiment{}
		var stage string
		if err := rows.Scan(
			&ex.Id, &ex.Name, &ex.ArtifactLocation, &stage, &ex.CreatedAt, &ex.UpdatedAt,
		); err != nil {
			return nil, err
		}
		ex.LifecycleStage = db.LifecycleStage(stage)
		result[ex.Id] = ex
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (e *experimentPG) GetByName(ctx context.Context, name string) (db.Experiment, error) {
	conn, err := e.pool.Acquire(ctx)
	if err != nil {
		return db.Experiment{}, err
	}
	defer conn.Release()

	ex := db.Experiment{}
	var stage string
	if err := conn.QueryRow(
		ctx,
		`
		select "experiment_id", "name", "artifact_location", "lifecycle_stage", "created_at", "updated_at"
		from "experiment"
		where "name" = $1;
		`,
		name,
	).Scan(
		&ex.Id, &ex.Name, &ex.ArtifactLocation, &stage, &ex.CreatedAt, &ex.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return db.Experiment{}, kpgerr.Missing{
				Table:    "experiment",
				Identity: fmt.Sprintf("name '%s'", name),
			}
		}
		return db.Experiment{}, err
	}
	ex.LifecycleStage = db.LifecycleStage(stage)
	return ex, nil
}

func (e *experimentPG) Find(ctx context.Context) ([]db.Experiment, error) {
	conn, err := e.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	rows, err := conn.Query(
		ctx,
		`
		select "experiment_id", "name", "artifact_location", "lifecycle_stage", "created_at", "updated_at"
		from "experiment"
		where "lifecycle_stage" = 'active'
		order by "experiment_id";
		`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []db.Experiment{}
	for rows.Next() {
		ex := db.Experiment{}
		var stage string
		if err := rows.Scan(
			&ex.Id, &ex.Name, &ex.ArtifactLocation, &stage, &ex.CreatedAt, &ex.UpdatedAt,
		); err != nil {
			return nil, err
		}
		ex.LifecycleStage = db.LifecycleStage(stage)
		result = append(result, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
