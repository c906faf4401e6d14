package run

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	kpool "github.com/opst/trackfab/pkg/conn/db/postgres/pool"
	"github.com/opst/trackfab/pkg/db"
	kpgerr "github.com/opst/trackfab/pkg/db/postgres/errors"
	xe "github.com/opst/trackfab/pkg/errors"
)

// a struct for DB operations related to Run
type runPG struct { // implements db.RunInterface
	pool kpool.Pool
}

func New(pool kpool.Pool) *runPG {
	return &runPG{pool: pool}
}

var _ db.RunInterface = &runPG{}

type runStatus db.RunStatus

// implement sql.Scanner
func (rs *runStatus) Scan(v any) error {
	var s string
	switch vv := v.(type) {
	case string:
		s = vv
	case []byte:
		s = string(vv)
	default:
		return fmt.Errorf("parse error for RunStatus: %#v", v)
	}

	parsed, err := db.AsRunStatus(s)
	if err != nil {
		return err
	}
	*rs = runStatus(parsed)
	return nil
}

func (m *runPG) New(ctx context.Context, experimentId int64, name string, startedAt time.Time, tags []db.Tag) (db.Run, error) {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return db.Run{}, err
	}
	defer tx.Rollback(ctx)

	// step 1. find the experiment hosting the new run, and lock it.
	var artifactLocation string
	if err := tx.QueryRow(
		ctx,
		`
		select "artifact_location" from "experiment"
		where "experiment_id" = $1 and "lifecycle_stage" = 'active'
		for update;
		`,
		experimentId,
	).Scan(&artifactLocation); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return db.Run{}, kpgerr.Missing{
				Table:    "experiment",
				Identity: fmt.Sprintf("active experiment experiment_id=%d", experimentId),
			}
		}
		return db.Run{}, err
	}

	// step 2. insert a run record. Its id is generated on the database side.
	var runId string
	if err := tx.QueryRow(
		ctx,
		`
		insert into "run" ("experiment_id", "name", "started_at")
		values ($1, $2, $3)
		returning "run_id";
		`,
		experimentId, name, startedAt,
	).Scan(&runId); err != nil {
		return db.Run{}, xe.Wrap(err)
	}

	// step 3. the artifact uri contains the run id, known after the insert only.
	artifactUri := fmt.Sprintf(
		"%s/%s/artifacts", strings.TrimSuffix(artifactLocation, "/"), runId,
	)
	if _, err := tx.Exec(
		ctx,
		`update "run" set "artifact_uri" = $1 where "run_id" = $2;`,
		artifactUri, runId,
	); err != nil {
		return db.Run{}, err
	}

	// step 4. initial tags.
	if err := setTags(ctx, tx, runId, tags); err != nil {
		return db.Run{}, err
	}

	runs, err := getRuns(ctx, tx, []string{runId})
	if err != nil {
		return db.Run{}, err
	}
	r, ok := runs[runId]
	if !ok {
		return db.Run{}, kpgerr.Missing{
			Table:    "run",
			Identity: fmt.Sprintf("run_id='%s'", runId),
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return db.Run{}, err
	}
	return r, nil
}

func (m *runPG) Get(ctx context.Context, runIds []string) (map[string]db.Run, error) {
	if len(runIds) == 0 {
		return map[string]db.Run{}, nil
	}

	conn, err := m.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	return getRuns(ctx, conn, runIds)
}

func (m *runPG) Update(ctx context.Context, runId string, delta db.RunDelta) (db.Run, error) {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return db.Run{}, err
	}
	defer tx.Rollback(ctx)

	var status *string
	if delta.Status != "" {
		s := delta.Status.String()
		status = &s
	}
	if err := tx.QueryRow(
		ctx,
		`
		update "run" set
			"status" = coalesce($2::varchar, "status"),
			"name" = coalesce($3::varchar, "name"),
			"ended_at" = coalesce($4::timestamp with time zone, "ended_at"),
			"updated_at" = now()
		where "run_id" = $1 and "lifecycle_stage" = 'active'
		returning "run_id";
		`,
		runId, status, delta.Name, delta.EndedAt,
	).Scan(&runId); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return db.Run{}, kpgerr.Missing{
				Table:    "run",
				Identity: fmt.Sprintf("run_id='%s'", runId),
			}
		}
		return db.Run{}, err
	}

	runs, err := getRuns(ctx, tx, []string{runId})
	if err != nil {
		return db.Run{}, err
	}
	r := runs[runId]

	if err := tx.Commit(ctx); err != nil {
		return db.Run{}, err
	}
	return r, nil
}

func (m *runPG) LogParams(ctx context.Context, runId string, params []db.Param) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := touchRun(ctx, tx, runId); err != nil {
		return err
	}
	if err := logParams(ctx, tx, runId, params); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (m *runPG) LogMetrics(ctx context.Context, runId string, metrics []db.Metric) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := touchRun(ctx, tx, runId); err != nil {
		return err
	}
	if err := logMetrics(ctx, tx, runId, metrics); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (m *runPG) SetTags(ctx context.Context, runId string, tags []db.Tag) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := touchRun(ctx, tx, runId); err != nil {
		return err
	}
	if err := setTags(ctx, tx, runId, tags); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (m *runPG) LogBatch(ctx context.Context, runId string, metrics []db.Metric, params []db.Param, tags []db.Tag) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := touchRun(ctx, tx, runId); err != nil {
		return err
	}
	if err := logMetrics(ctx, tx, runId, metrics); err != nil {
		return err
	}
	if err := logParams(ctx, tx, runId, params); err != nil {
		return err
	}
	if err := setTags(ctx, tx, runId, tags); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (m *runPG) Find(ctx context.Context, query db.RunFindQuery) (db.RunPage, error) {
	conn, err := m.pool.Acquire(ctx)
	if err != nil {
		return db.RunPage{}, err
	}
	defer conn.Release()

	experimentIds := query.ExperimentIds
	if experimentIds == nil {
		experimentIds = []int64{}
	}

	rows, err := conn.Query(
		ctx,
		`
		select "run_id" from "run"
		where (cardinality($1::bigint[]) = 0 or "experiment_id" = any($1::bigint[]))
			and "lifecycle_stage" = 'active';
		`,
		experimentIds,
	)
	if err != nil {
		return db.RunPage{}, err
	}
	defer rows.Close()

	runIds := []string{}
	for rows.Next() {
		var runId string
		if err := rows.Scan(&runId); err != nil {
			return db.RunPage{}, err
		}
		runIds = append(runIds, runId)
	}
	if err := rows.Err(); err != nil {
		return db.RunPage{}, err
	}

	found, err := getRuns(ctx, conn, runIds)
	if err != nil {
		return db.RunPage{}, err
	}

	runs := []db.Run{}
NEXT_RUN:
	for _, r := range found {
		for _, c := range query.Conditions {
			if !c.Match(r) {
				continue NEXT_RUN
			}
		}
		runs = append(runs, r)
	}
	db.SortRuns(runs, query.OrderBy)

	page := db.RunPage{Runs: runs}
	if int64(len(runs)) <= query.Offset {
		page.Runs = []db.Run{}
		return page, nil
	}
	page.Runs = page.Runs[query.Offset:]
	if 0 < query.Limit && int(query.Limit) < len(page.Runs) {
		page.Runs = page.Runs[:query.Limit]
		next := query.Offset + int64(query.Limit)
		page.NextOffset = &next
	}
	return page, nil
}

func (m *runPG) FailStale(ctx context.Context, before time.Time) ([]string, error) {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(
		ctx,
		`
		update "run"
		set "status" = 'FAILED', "ended_at" = now(), "updated_at" = now()
		where "status" in ('RUNNING', 'SCHEDULED')
			and "lifecycle_stage" = 'active'
			and "updated_at" < $1
		returning "run_id";
		`,
		before,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runIds := []string{}
	for rows.Next() {
		var runId string
		if err := rows.Scan(&runId); err != nil {
			return nil, err
		}
		runIds = append(runIds, runId)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return runIds, nil
}

// touchRun asserts that the run is active, and records the activity on it.
func touchRun(ctx context.Context, conn kpool.Queryer, runId string) error {
	var found string
	if err := conn.QueryRow(
		ctx,
		`
		update "run" set "updated_at" = now()
		where "run_id" = $1 and "lifecycle_stage" = 'active'
		returning "run_id";
		`,
		runId,
	).Scan(&found); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return kpgerr.Missing{
				Table:    "run",
				Identity: fmt.Sprintf("run_id='%s'", runId),
			}
		}
		return err
	}
	return nil
}

func logParams(ctx context.Context, conn kpool.Queryer, runId string, params []db.Param) error {
	for _, p := range params {
		// on conflict, keep the recorded value and return it for comparison.
		var recorded string
		if err := conn.QueryRow(
			ctx,
			`
			insert into "run_param" ("run_id", "key", "value")
			values ($1, $2, $3)
			on conflict ("run_id", "key") do update set "value" = "run_param"."value"
			returning "value";
			`,
			runId, p.Key, p.Value,
		).Scan(&recorded); err != nil {
			return err
		}
		if recorded != p.Value {
			return db.NewErrConflictingParam(p.Key, recorded, p.Value)
		}
	}
	return nil
}

func logMetrics(ctx context.Context, conn kpool.Queryer, runId string, metrics []db.Metric) error {
	for _, mt := range metrics {
		if _, err := conn.Exec(
			ctx,
			`
			insert into "run_metric" ("run_id", "key", "value", "timestamp", "step")
			values ($1, $2, $3, $4, $5)
			on conflict do nothing;
			`,
			runId, mt.Key, mt.Value, mt.Timestamp, mt.Step,
		); err != nil {
			return err
		}

		// the latest point per key wins by (step, timestamp, value).
		if _, err := conn.Exec(
			ctx,
			`
			insert into "latest_metric" ("run_id", "key", "value", "timestamp", "step")
			values ($1, $2, $3, $4, $5)
			on conflict ("run_id", "key") do update
			set "value" = excluded."value",
				"timestamp" = excluded."timestamp",
				"step" = excluded."step"
			where ("latest_metric"."step", "latest_metric"."timestamp", "latest_metric"."value")
				<= (excluded."step", excluded."timestamp", excluded."value");
			`,
			runId, mt.Key, mt.Value, mt.Timestamp, mt.Step,
		); err != nil {
			return err
		}
	}
	return nil
}

func setTags(ctx context.Context, conn kpool.Queryer, runId string, tags []db.Tag) error {
	for _, t := range tags {
		if _, err := conn.Exec(
			ctx,
			`
			insert into "run_tag" ("run_id", "key", "value")
			values ($1, $2, $3)
			on conflict ("run_id", "key") do update set "value" = excluded."value";
			`,
			runId, t.Key, t.Value,
		); err != nil {
			return err
		}
	}
	return nil
}

func getRuns(ctx context.Context, conn kpool.Queryer, runIds []string) (map[string]db.Run, error) {
	bodies, err := getRunBodies(ctx, conn, runIds)
	if err != nil {
		return nil, err
	}
	params, err := getParams(ctx, conn, runIds)
	if err != nil {
		return nil, err
	}
	metrics, err := getLatestMetrics(ctx, conn, runIds)
	if err != nil {
		return nil, err
	}
	tags, err := getTags(ctx, conn, runIds)
	if err != nil {
		return nil, err
	}

	result := map[string]db.Run{}
	for runId, body := range bodies {
		result[runId] = db.Run{
			RunBody: body,
			Params:  params[runId],
			Metrics: metrics[runId],
			Tags:    tags[runId],
		}
	}
	return result, nil
}

func getRunBodies(ctx context.Context, conn kpool.Queryer, runIds []string) (map[string]db.RunBody, error) {
	rows, err := conn.Query(
		ctx,
		`
		select
			"run_id", "experiment_id", "name", "status", "started_at",
			"ended_at", "artifact_uri", "lifecycle_stage", "updated_at"
		from "run"
		where "run_id" = any($1::varchar[]);
		`,
		runIds,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := map[string]db.RunBody{}
	for rows.Next() {
		body := db.RunBody{}
		var status runStatus
		var stage string
		if err := rows.Scan(
			&body.Id, &body.ExperimentId, &body.Name, &status, &body.StartedAt,
			&body.EndedAt, &body.ArtifactUri, &stage, &body.UpdatedAt,
		); err != nil {
			return nil, err
		}
		body.Status = db.RunStatus(status)
		body.LifecycleStage = db.LifecycleStage(stage)
		result[body.Id] = body
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func getParams(ctx context.Context, conn kpool.Queryer, runIds []string) (map[string][]db.Param, error) {
	rows, err := conn.Query(
		ctx,
		`
		select "run_id", "key", "value" from "run_param"
		where "run_id" = any($1::varchar[])
		order by "run_id", "key";
		`,
		runIds,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := map[string][]db.Param{}
	for rows.Next() {
		var runId string
		p := db.Param{}
		if err := rows.Scan(&runId, &p.Key, &p.Value); err != nil {
			return nil, err
		}
		result[runId] = append(result[runId], p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func getLatestMetrics(ctx context.Context, conn kpool.Queryer, runIds []string) (map[string][]db.Metric, error) {
	rows, err := conn.Query(
		ctx,
		`
		select "run_id", "key", "value", "timestamp", "step" from "latest_metric"
		where "run_id" = any($1::varchar[])
		order by "run_id", "key";
		`,
		runIds,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := map[string][]db.Metric{}
	for rows.Next() {
		var runId string
		mt := db.Metric{}
		if err := rows.Scan(&runId, &mt.Key, &mt.Value, &mt.Timestamp, &mt.Step); err != nil {
			return nil, err
		}
		result[runId] = append(result[runId], mt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func getTags(ctx context.Context, conn kpool.Queryer, runIds []string) (map[string][]db.Tag, error) {
	rows, err := conn.Query(
		ctx,
		`
		select "run_id", "key", "value" from "run_tag"
		where "run_id" = any($1::varchar[])
		order by "run_id", "key";
		`,
		runIds,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := map[string][]db.Tag{}
	for rows.Next() {
		var runId string
		t := db.Tag{}
		if err := rows.Scan(&runId, &t.Key, &t.Value); err != nil {
			return nil, err
		}
		result[runId] = append(result[runId], t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
