// Package postgres provides a PostgreSQL implementation of tracking.Store.
// It uses pgx/v5 for connection pooling; artifacts are stored as BYTEA so a
// single database holds the complete tracking state.
package postgres

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mlbridge-io/mlbridge/pkg/api"
	"github.com/mlbridge-io/mlbridge/pkg/tracking"
)

func init() {
	opener := func(ctx context.Context, u *url.URL) (tracking.Store, error) {
		return New(ctx, Config{DSN: u.String(), MigrateOnStart: true})
	}
	tracking.RegisterScheme("postgres", opener)
	tracking.RegisterScheme("postgresql", opener)
}

// Store is a PostgreSQL-backed tracking store.
type Store struct {
	pool *pgxpool.Pool
}

// Ensure Store implements tracking.Store at compile time.
var _ tracking.Store = (*Store)(nil)

// querier is satisfied by both pgxpool.Pool and pgx.Tx, so data-logging
// helpers work inside and outside transactions.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// ---------------------------------------------------------------------------
// Experiments
// ---------------------------------------------------------------------------

func (s *Store) CreateExperiment(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", api.NewInvalidParameterError("experiment name must not be empty")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UnixMilli()
	var id int64
	err = tx.QueryRow(ctx,
		"INSERT INTO experiments (name, creation_time, last_update_time) VALUES ($1, $2, $2) RETURNING id",
		name, now,
	).Scan(&id)
	if err != nil {
		if isDuplicateKey(err) {
			return "", fmt.Errorf("%w: experiment %q", tracking.ErrAlreadyExists, name)
		}
		return "", fmt.Errorf("inserting experiment: %w", err)
	}

	location := fmt.Sprintf("mlflow-artifacts:/%d", id)
	if _, err := tx.Exec(ctx,
		"UPDATE experiments SET artifact_location = $1 WHERE id = $2", location, id,
	); err != nil {
		return "", fmt.Errorf("setting artifact location: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("committing experiment: %w", err)
	}
	return strconv.FormatInt(id, 10), nil
}

func (s *Store) GetExperimentByName(ctx context.Context, name string) (*api.Experiment, error) {
	var (
		id    int64
		exp   api.Experiment
		stage string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, artifact_location, lifecycle_stage, creation_time, last_update_time
		FROM experiments
		WHERE name = $1
		ORDER BY (lifecycle_stage = 'active') DESC, id DESC
		LIMIT 1
	`, name).Scan(&id, &exp.Name, &exp.ArtifactLocation, &stage, &exp.CreationTime, &exp.LastUpdateTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: experiment %q", tracking.ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("querying experiment: %w", err)
	}
	exp.ExperimentID = strconv.FormatInt(id, 10)
	exp.LifecycleStage = api.LifecycleStage(stage)
	return &exp, nil
}

func (s *Store) RestoreExperiment(ctx context.Context, experimentID string) error {
	return s.setExperimentStage(ctx, experimentID, api.LifecycleStageActive)
}

// DeleteExperiment soft-deletes an experiment. Runs stay in place.
func (s *Store) DeleteExperiment(ctx context.Context, experimentID string) error {
	return s.setExperimentStage(ctx, experimentID, api.LifecycleStageDeleted)
}

func (s *Store) setExperimentStage(ctx context.Context, experimentID string, stage api.LifecycleStage) error {
	id, err := strconv.ParseInt(experimentID, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: experiment %s", tracking.ErrNotFound, experimentID)
	}
	result, err := s.pool.Exec(ctx,
		"UPDATE experiments SET lifecycle_stage = $1, last_update_time = $2 WHERE id = $3",
		string(stage), time.Now().UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("updating experiment: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: experiment %s", tracking.ErrNotFound, experimentID)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Runs
// ---------------------------------------------------------------------------

func (s *Store) CreateRun(ctx context.Context, experimentID, name string, startTime int64, tags []api.RunTag) (*api.Run, error) {
	expID, err := strconv.ParseInt(experimentID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: experiment %s", tracking.ErrNotFound, experimentID)
	}
	if startTime == 0 {
		startTime = time.Now().UnixMilli()
	}

	runID := api.NewRunID()
	artifactURI := fmt.Sprintf("mlflow-artifacts:/%s/%s/artifacts", experimentID, runID)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO runs (run_id, experiment_id, run_name, status, start_time, artifact_uri)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, runID, expID, name, string(api.RunStatusRunning), startTime, artifactURI)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: experiment %s", tracking.ErrNotFound, experimentID)
		}
		return nil, fmt.Errorf("inserting run: %w", err)
	}

	finalTags := make([]api.RunTag, 0, len(tags)+1)
	hasName := false
	for _, t := range tags {
		if t.Key == api.TagRunName {
			hasName = true
		}
		finalTags = append(finalTags, t)
	}
	if name != "" && !hasName {
		finalTags = append(finalTags, api.RunTag{Key: api.TagRunName, Value: name})
	}
	for _, t := range finalTags {
		if err := setTagIn(ctx, tx, runID, t); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing run: %w", err)
	}

	return &api.Run{
		Info: api.RunInfo{
			RunID:          runID,
			RunName:        name,
			ExperimentID:   experimentID,
			Status:         api.RunStatusRunning,
			StartTime:      startTime,
			ArtifactURI:    artifactURI,
			LifecycleStage: api.LifecycleStageActive,
		},
		Data: api.RunData{Tags: finalTags},
	}, nil
}

func (s *Store) GetRun(ctx context.Context, runID string) (*api.Run, error) {
	return s.loadRun(ctx, runID)
}

func (s *Store) UpdateRun(ctx context.Context, runID string, status api.RunStatus, endTime int64) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE runs
		SET status   = COALESCE(NULLIF($2, ''), status),
		    end_time = CASE WHEN $3 = 0 THEN end_time ELSE $3 END
		WHERE run_id = $1
	`, runID, string(status), endTime)
	if err != nil {
		return fmt.Errorf("updating run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: run %s", tracking.ErrNotFound, runID)
	}
	return nil
}

func (s *Store) SearchRuns(ctx context.Context, experimentIDs []string, filter string, maxResults int) ([]*api.Run, error) {
	parsed, err := tracking.ParseFilter(filter)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(experimentIDs))
	for _, e := range experimentIDs {
		id, err := strconv.ParseInt(e, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT run_id FROM runs
		WHERE experiment_id = ANY($1)
		ORDER BY start_time DESC, run_id DESC
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	var runIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		runIDs = append(runIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading runs: %w", err)
	}

	// The filter grammar spans tags and attributes, so runs are loaded in
	// full and matched here rather than translated to SQL.
	var out []*api.Run
	for _, id := range runIDs {
		run, err := s.loadRun(ctx, id)
		if err != nil {
			return nil, err
		}
		if parsed.Matches(run) {
			out = append(out, run)
			if maxResults > 0 && len(out) == maxResults {
				break
			}
		}
	}
	return out, nil
}

// loadRun assembles a run with its params, tags and latest metric points.
func (s *Store) loadRun(ctx context.Context, runID string) (*api.Run, error) {
	var (
		run   api.Run
		expID int64
		stage string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT run_id, experiment_id, run_name, status, start_time, end_time, artifact_uri, lifecycle_stage
		FROM runs WHERE run_id = $1
	`, runID).Scan(
		&run.Info.RunID, &expID, &run.Info.RunName, (*string)(&run.Info.Status),
		&run.Info.StartTime, &run.Info.EndTime, &run.Info.ArtifactURI, &stage,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: run %s", tracking.ErrNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("querying run: %w", err)
	}
	run.Info.ExperimentID = strconv.FormatInt(expID, 10)
	run.Info.LifecycleStage = api.LifecycleStage(stage)

	rows, err := s.pool.Query(ctx,
		"SELECT key, value FROM params WHERE run_id = $1 ORDER BY key", runID)
	if err != nil {
		return nil, fmt.Errorf("querying params: %w", err)
	}
	for rows.Next() {
		var p api.Param
		if err := rows.Scan(&p.Key, &p.Value); err != nil {
			rows.Close()
			return nil, err
		}
		run.Data.Params = append(run.Data.Params, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading params: %w", err)
	}

	rows, err = s.pool.Query(ctx,
		"SELECT key, value FROM tags WHERE run_id = $1 ORDER BY key", runID)
	if err != nil {
		return nil, fmt.Errorf("querying tags: %w", err)
	}
	for rows.Next() {
		var t api.RunTag
		if err := rows.Scan(&t.Key, &t.Value); err != nil {
			rows.Close()
			return nil, err
		}
		run.Data.Tags = append(run.Data.Tags, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading tags: %w", err)
	}

	rows, err = s.pool.Query(ctx, `
		SELECT DISTINCT ON (key) key, value, timestamp, step
		FROM metrics WHERE run_id = $1
		ORDER BY key, timestamp DESC, step DESC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying metrics: %w", err)
	}
	for rows.Next() {
		var m api.Metric
		if err := rows.Scan(&m.Key, &m.Value, &m.Timestamp, &m.Step); err != nil {
			rows.Close()
			return nil, err
		}
		run.Data.Metrics = append(run.Data.Metrics, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading metrics: %w", err)
	}

	return &run, nil
}

// ---------------------------------------------------------------------------
// Run data
// ---------------------------------------------------------------------------

func (s *Store) LogMetric(ctx context.Context, runID string, m api.Metric) error {
	return logMetricIn(ctx, s.pool, runID, m)
}

func logMetricIn(ctx context.Context, q querier, runID string, m api.Metric) error {
	if !api.ValidateKey(m.Key) {
		return api.NewInvalidParameterError("invalid key %q", m.Key)
	}
	if m.Timestamp == 0 {
		m.Timestamp = time.Now().UnixMilli()
	}
	_, err := q.Exec(ctx,
		"INSERT INTO metrics (run_id, key, value, timestamp, step) VALUES ($1, $2, $3, $4, $5)",
		runID, m.Key, m.Value, m.Timestamp, m.Step,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: run %s", tracking.ErrNotFound, runID)
		}
		return fmt.Errorf("inserting metric: %w", err)
	}
	return nil
}

func (s *Store) LogParam(ctx context.Context, runID string, p api.Param) error {
	return logParamIn(ctx, s.pool, runID, p)
}

func logParamIn(ctx context.Context, q querier, runID string, p api.Param) error {
	if !api.ValidateKey(p.Key) {
		return api.NewInvalidParameterError("invalid key %q", p.Key)
	}
	result, err := q.Exec(ctx,
		"INSERT INTO params (run_id, key, value) VALUES ($1, $2, $3) ON CONFLICT (run_id, key) DO NOTHING",
		runID, p.Key, p.Value,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: run %s", tracking.ErrNotFound, runID)
		}
		return fmt.Errorf("inserting param: %w", err)
	}
	if result.RowsAffected() > 0 {
		return nil
	}

	// Params are write-once: the same value is a no-op, a new one an error.
	var existing string
	if err := q.QueryRow(ctx,
		"SELECT value FROM params WHERE run_id = $1 AND key = $2", runID, p.Key,
	).Scan(&existing); err != nil {
		return fmt.Errorf("checking param: %w", err)
	}
	if existing == p.Value {
		return nil
	}
	return api.NewInvalidParameterError(
		"param %q already logged with value %q (new value %q)", p.Key, existing, p.Value)
}

func (s *Store) SetTag(ctx context.Context, runID string, t api.RunTag) error {
	return setTagIn(ctx, s.pool, runID, t)
}

func setTagIn(ctx context.Context, q querier, runID string, t api.RunTag) error {
	if !api.ValidateKey(t.Key) {
		return api.NewInvalidParameterError("invalid key %q", t.Key)
	}
	_, err := q.Exec(ctx, `
		INSERT INTO tags (run_id, key, value) VALUES ($1, $2, $3)
		ON CONFLICT (run_id, key) DO UPDATE SET value = EXCLUDED.value
	`, runID, t.Key, t.Value)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: run %s", tracking.ErrNotFound, runID)
		}
		return fmt.Errorf("upserting tag: %w", err)
	}
	if t.Key == api.TagRunName {
		if _, err := q.Exec(ctx,
			"UPDATE runs SET run_name = $1 WHERE run_id = $2", t.Value, runID,
		); err != nil {
			return fmt.Errorf("updating run name: %w", err)
		}
	}
	return nil
}

func (s *Store) LogBatch(ctx context.Context, runID string, metrics []api.Metric, params []api.Param, tags []api.RunTag) error {
	if len(metrics)+len(params)+len(tags) > 1000 {
		return api.NewInvalidParameterError("batch of %d entries exceeds the limit of 1000",
			len(metrics)+len(params)+len(tags))
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, p := range params {
		if err := logParamIn(ctx, tx, runID, p); err != nil {
			return err
		}
	}
	for _, m := range metrics {
		if err := logMetricIn(ctx, tx, runID, m); err != nil {
			return err
		}
	}
	for _, t := range tags {
		if err := setTagIn(ctx, tx, runID, t); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) GetMetricHistory(ctx context.Context, runID, key string) ([]api.Metric, error) {
	if err := s.runExists(ctx, runID); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT key, value, timestamp, step FROM metrics
		WHERE run_id = $1 AND key = $2
		ORDER BY timestamp, step
	`, runID, key)
	if err != nil {
		return nil, fmt.Errorf("querying metric history: %w", err)
	}
	defer rows.Close()

	var out []api.Metric
	for rows.Next() {
		var m api.Metric
		if err := rows.Scan(&m.Key, &m.Value, &m.Timestamp, &m.Step); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) runExists(ctx context.Context, runID string) error {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM runs WHERE run_id = $1)", runID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("checking run: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: run %s", tracking.ErrNotFound, runID)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Model registry
// ---------------------------------------------------------------------------

func (s *Store) CreateRegisteredModel(ctx context.Context, name string) error {
	if name == "" {
		return api.NewInvalidParameterError("registered model name must not be empty")
	}
	now := time.Now().UnixMilli()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO registered_models (name, creation_timestamp, last_updated_timestamp)
		VALUES ($1, $2, $2)
		ON CONFLICT (name) DO NOTHING
	`, name, now)
	if err != nil {
		return fmt.Errorf("inserting registered model: %w", err)
	}
	return nil
}

func (s *Store) CreateModelVersion(ctx context.Context, name, source, runID string) (*api.ModelVersion, error) {
	now := time.Now().UnixMilli()
	var version int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO model_versions (name, version, run_id, source, status, creation_timestamp)
		SELECT $1, COALESCE(MAX(version), 0) + 1, $2, $3, 'READY', $4
		FROM model_versions WHERE name = $1
		RETURNING version
	`, name, runID, source, now).Scan(&version)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: registered model %q", tracking.ErrNotFound, name)
		}
		if isDuplicateKey(err) {
			return nil, fmt.Errorf("%w: model version for %q", tracking.ErrAlreadyExists, name)
		}
		return nil, fmt.Errorf("inserting model version: %w", err)
	}

	if _, err := s.pool.Exec(ctx,
		"UPDATE registered_models SET last_updated_timestamp = $1 WHERE name = $2", now, name,
	); err != nil {
		return nil, fmt.Errorf("updating registered model: %w", err)
	}

	return &api.ModelVersion{
		Name:              name,
		Version:           strconv.FormatInt(version, 10),
		RunID:             runID,
		Source:            source,
		Status:            "READY",
		CreationTimestamp: now,
	}, nil
}

func (s *Store) SearchModelVersions(ctx context.Context, filter string) ([]*api.ModelVersion, error) {
	field, value, err := tracking.ParseVersionFilter(filter)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT name, version, run_id, source, status, creation_timestamp
		FROM model_versions
	`
	var args []any
	switch field {
	case "name":
		query += " WHERE name = $1"
		args = append(args, value)
	case "run_id":
		query += " WHERE run_id = $1"
		args = append(args, value)
	}
	query += " ORDER BY name, version"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying model versions: %w", err)
	}
	defer rows.Close()

	var out []*api.ModelVersion
	for rows.Next() {
		var (
			v       api.ModelVersion
			version int64
		)
		if err := rows.Scan(&v.Name, &version, &v.RunID, &v.Source, &v.Status, &v.CreationTimestamp); err != nil {
			return nil, err
		}
		v.Version = strconv.FormatInt(version, 10)
		out = append(out, &v)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// Artifacts
// ---------------------------------------------------------------------------

func (s *Store) UploadArtifact(ctx context.Context, runID, path string, r io.Reader) error {
	if path == "" || strings.Contains(path, "..") {
		return api.NewInvalidParameterError("invalid artifact path %q", path)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading artifact %s: %w", path, err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO artifacts (run_id, path, data, updated_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (run_id, path) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at
	`, runID, path, data, time.Now().UnixMilli())
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: run %s", tracking.ErrNotFound, runID)
		}
		return fmt.Errorf("storing artifact: %w", err)
	}
	return nil
}

func (s *Store) DownloadArtifact(ctx context.Context, runID, path string) (io.ReadCloser, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		"SELECT data FROM artifacts WHERE run_id = $1 AND path = $2", runID, path,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: artifact %s", tracking.ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("querying artifact: %w", err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *Store) ListArtifacts(ctx context.Context, runID, path string) ([]api.FileInfo, error) {
	if err := s.runExists(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		"SELECT path, octet_length(data) FROM artifacts WHERE run_id = $1", runID)
	if err != nil {
		return nil, fmt.Errorf("querying artifacts: %w", err)
	}
	defer rows.Close()

	prefix := ""
	if path != "" {
		prefix = strings.Trim(path, "/") + "/"
	}

	dirs := make(map[string]bool)
	var out []api.FileInfo
	for rows.Next() {
		var (
			p    string
			size int64
		)
		if err := rows.Scan(&p, &size); err != nil {
			return nil, err
		}
		if prefix != "" && !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := strings.TrimPrefix(p, prefix)
		if idx := strings.Index(rest, "/"); idx >= 0 {
			dir := prefix + rest[:idx]
			if !dirs[dir] {
				dirs[dir] = true
				out = append(out, api.FileInfo{Path: dir, IsDir: true})
			}
			continue
		}
		out = append(out, api.FileInfo{Path: p, FileSize: size})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// isDuplicateKey checks if the error is a PostgreSQL unique violation (23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// isForeignKeyViolation checks for a PostgreSQL foreign key violation (23503).
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
