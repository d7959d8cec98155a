package release

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PostgresStore implements Store for PostgreSQL, metrics-wrapped the way the
// teacher's PostgresHistoryRepository instruments every query.
type PostgresStore struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	metrics *StoreMetrics
}

// StoreMetrics contains Prometheus metrics for store operations.
type StoreMetrics struct {
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec
}

// NewPostgresStore creates a PostgreSQL-backed Store. Pass a shared
// *prometheus.Registry-bound metrics struct (via NewStoreMetrics) so
// multiple stores in one process don't double-register collectors.
func NewPostgresStore(pool *pgxpool.Pool, logger *slog.Logger, metrics *StoreMetrics) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NewStoreMetrics()
	}
	return &PostgresStore{pool: pool, logger: logger, metrics: metrics}
}

// NewStoreMetrics registers the default store metric collectors.
func NewStoreMetrics() *StoreMetrics {
	return &StoreMetrics{
		QueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "release_store_query_duration_seconds",
				Help:    "Duration of release store queries",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"operation", "status"},
		),
		QueryErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "release_store_query_errors_total",
				Help: "Total number of release store query errors",
			},
			[]string{"operation", "error_type"},
		),
	}
}

func (s *PostgresStore) observe(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.QueryDuration.WithLabelValues(operation, status).Observe(time.Since(start).Seconds())
}

const releaseColumns = `id, service_name, release_tag, rollback_to_tag, status, initiated_by,
	ci_run_id, ci_action_link, ci_ref, approved_list, created_at, started_at, completed_at`

func scanRelease(row pgx.Row) (*Release, error) {
	var r Release
	var approvedJSON []byte
	if err := row.Scan(
		&r.ID, &r.ServiceName, &r.ReleaseTag, &r.RollbackToTag, &r.Status, &r.InitiatedBy,
		&r.CIRunID, &r.CIActionLink, &r.CIRef, &approvedJSON, &r.CreatedAt, &r.StartedAt, &r.CompletedAt,
	); err != nil {
		return nil, err
	}
	if len(approvedJSON) > 0 {
		if err := json.Unmarshal(approvedJSON, &r.ApprovedList); err != nil {
			return nil, fmt.Errorf("unmarshal approved_list: %w", err)
		}
	}
	return &r, nil
}

// Create implements Store.
func (s *PostgresStore) Create(ctx context.Context, serviceName, releaseTag, initiatedBy, ciRunID, ciActionLink, ciRef string) (int64, error) {
	start := time.Now()
	operation := "create"
	var err error
	defer func() { s.observe(operation, start, err) }()

	const query = `
		INSERT INTO releases (service_name, release_tag, rollback_to_tag, status, initiated_by,
			ci_run_id, ci_action_link, ci_ref, approved_list, created_at)
		VALUES ($1, $2, '', $3, $4, $5, $6, $7, '[]', now())
		RETURNING id`

	var id int64
	err = s.pool.QueryRow(ctx, query, serviceName, releaseTag, string(Initiated), initiatedBy, ciRunID, ciActionLink, ciRef).Scan(&id)
	if err != nil {
		s.metrics.QueryErrors.WithLabelValues(operation, "insert").Inc()
		return 0, &StoreError{Op: operation, Err: err}
	}
	return id, nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, id int64) (*Release, error) {
	start := time.Now()
	operation := "get"
	var err error
	defer func() { s.observe(operation, start, err) }()

	query := `SELECT ` + releaseColumns + ` FROM releases WHERE id = $1`
	r, scanErr := scanRelease(s.pool.QueryRow(ctx, query, id))
	if scanErr != nil {
		err = scanErr
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		s.metrics.QueryErrors.WithLabelValues(operation, "scan").Inc()
		return nil, &StoreError{Op: operation, Err: scanErr}
	}
	return r, nil
}

// GetForUpdate implements Store. It opens a transaction, takes a row lock
// via SELECT ... FOR UPDATE, hands the release to fn, and persists whatever
// fn returns within the same transaction before committing — the atomic
// read-modify-write every mutating Engine operation needs.
func (s *PostgresStore) GetForUpdate(ctx context.Context, id int64, fn func(ctx context.Context, r *Release) (*Release, error)) (*Release, error) {
	start := time.Now()
	operation := "get_for_update"
	var err error
	defer func() { s.observe(operation, start, err) }()

	tx, txErr := s.pool.Begin(ctx)
	if txErr != nil {
		err = txErr
		return nil, &StoreError{Op: operation, Err: txErr}
	}
	defer tx.Rollback(ctx)

	query := `SELECT ` + releaseColumns + ` FROM releases WHERE id = $1 FOR UPDATE`
	current, scanErr := scanRelease(tx.QueryRow(ctx, query, id))
	if scanErr != nil {
		err = scanErr
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		s.metrics.QueryErrors.WithLabelValues(operation, "scan").Inc()
		return nil, &StoreError{Op: operation, Err: scanErr}
	}

	next, fnErr := fn(ctx, current)
	if fnErr != nil {
		err = fnErr
		return nil, fnErr
	}

	approvedJSON, jsonErr := json.Marshal(next.ApprovedList)
	if jsonErr != nil {
		err = jsonErr
		return nil, &StoreError{Op: operation, Err: jsonErr}
	}

	const update = `
		UPDATE releases SET
			status = $1, rollback_to_tag = $2, ci_run_id = $3, ci_action_link = $4,
			ci_ref = $5, approved_list = $6, started_at = $7, completed_at = $8
		WHERE id = $9`
	if _, execErr := tx.Exec(ctx, update,
		string(next.Status), next.RollbackToTag, next.CIRunID, next.CIActionLink,
		next.CIRef, approvedJSON, next.StartedAt, next.CompletedAt, id,
	); execErr != nil {
		err = execErr
		s.metrics.QueryErrors.WithLabelValues(operation, "update").Inc()
		return nil, &StoreError{Op: operation, Err: execErr}
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		err = commitErr
		return nil, &StoreError{Op: operation, Err: commitErr}
	}

	return next, nil
}

func (s *PostgresStore) listByStatuses(ctx context.Context, operation, serviceName string, statuses []Status) ([]*Release, error) {
	start := time.Now()
	var err error
	defer func() { s.observe(operation, start, err) }()

	tokens := make([]string, len(statuses))
	for i, st := range statuses {
		tokens[i] = string(st)
	}

	query := `SELECT ` + releaseColumns + ` FROM releases WHERE status = ANY($1)`
	args := []interface{}{tokens}
	if serviceName != "" {
		query += ` AND service_name = $2`
		args = append(args, serviceName)
	}
	query += ` ORDER BY created_at DESC`

	rows, queryErr := s.pool.Query(ctx, query, args...)
	if queryErr != nil {
		err = queryErr
		s.metrics.QueryErrors.WithLabelValues(operation, "query").Inc()
		return nil, &StoreError{Op: operation, Err: queryErr}
	}
	defer rows.Close()

	var out []*Release
	for rows.Next() {
		r, scanErr := scanRelease(rows)
		if scanErr != nil {
			err = scanErr
			s.metrics.QueryErrors.WithLabelValues(operation, "scan").Inc()
			return nil, &StoreError{Op: operation, Err: scanErr}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

var activeStatuses = []Status{Initiated, StageBuilding, StageTestRollback, ManualTesting, ManualTestPassed, Deploying, Rollback}
var successfulStatuses = []Status{Deployed, RollbackDone}
var failedStatuses = []Status{StageBuildingFailed, StageRollbackTestFailed, ManualTestFailed, ProductionFailed, RollbackFailed}

// ListActive implements Store.
func (s *PostgresStore) ListActive(ctx context.Context, serviceName string) ([]*Release, error) {
	return s.listByStatuses(ctx, "list_active", serviceName, activeStatuses)
}

// ListSuccessful implements Store.
func (s *PostgresStore) ListSuccessful(ctx context.Context, serviceName string) ([]*Release, error) {
	return s.listByStatuses(ctx, "list_successful", serviceName, successfulStatuses)
}

// ListFailed implements Store.
func (s *PostgresStore) ListFailed(ctx context.Context, serviceName string) ([]*Release, error) {
	return s.listByStatuses(ctx, "list_failed", serviceName, failedStatuses)
}

// RecentSuccessful implements Store.
func (s *PostgresStore) RecentSuccessful(ctx context.Context, serviceName string, excludeID int64, limit int) ([]*Release, error) {
	start := time.Now()
	operation := "recent_successful"
	var err error
	defer func() { s.observe(operation, start, err) }()

	if limit <= 0 {
		limit = 10
	}

	tokens := []string{string(Deployed), string(RollbackDone)}
	query := `
		SELECT ` + releaseColumns + ` FROM releases
		WHERE service_name = $1 AND status = ANY($2) AND id != $3
		ORDER BY completed_at DESC
		LIMIT $4`

	rows, queryErr := s.pool.Query(ctx, query, serviceName, tokens, excludeID, limit)
	if queryErr != nil {
		err = queryErr
		s.metrics.QueryErrors.WithLabelValues(operation, "query").Inc()
		return nil, &StoreError{Op: operation, Err: queryErr}
	}
	defer rows.Close()

	var out []*Release
	for rows.Next() {
		r, scanErr := scanRelease(rows)
		if scanErr != nil {
			err = scanErr
			s.metrics.QueryErrors.WithLabelValues(operation, "scan").Inc()
			return nil, &StoreError{Op: operation, Err: scanErr}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
