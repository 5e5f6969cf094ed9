package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/lifeledger/pkg/models"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
	opts storeOptions
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...Option) *PostgresStore {
	return &PostgresStore{pool: pool, opts: buildOptions(opts)}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Jobs ---

const jobColumns = `message_id, agent_type, task, intent, payload, dependencies, run_at, ttl_sec,
	status, attempts, max_attempts, backoff_strategy, result, last_error,
	started_at, completed_at, created_at, updated_at`

// readyPredicate matches claimable jobs of agent $1 at time $2. A dependency
// that does not exist is never treated as completed.
const readyPredicate = `j.agent_type = $1
	  AND j.status IN ('pending', 'ready')
	  AND j.run_at <= $2
	  AND NOT EXISTS (
	      SELECT 1 FROM unnest(j.dependencies) AS dep(id)
	      LEFT JOIN jobs d ON d.message_id = dep.id
	      WHERE d.status IS DISTINCT FROM 'completed')`

func scanJob(row pgx.Row) (*models.Job, error) {
	var (
		j         models.Job
		agentType string
		payload   []byte
		result    []byte
	)
	err := row.Scan(&j.MessageID, &agentType, &j.Task, &j.Intent, &payload, &j.Dependencies,
		&j.RunAt, &j.TTLSec, &j.Status, &j.Attempts, &j.MaxAttempts, &j.BackoffStrategy,
		&result, &j.LastError, &j.StartedAt, &j.CompletedAt, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	j.AgentType = models.AgentType(agentType)
	j.Payload = json.RawMessage(payload)
	if result != nil {
		j.Result = json.RawMessage(result)
	}
	if j.Dependencies == nil {
		j.Dependencies = []uuid.UUID{}
	}
	return &j, nil
}

func (s *PostgresStore) ClaimNextReady(ctx context.Context, agentType models.AgentType, limit int) ([]*models.Job, error) {
	if limit <= 0 {
		return []*models.Job{}, nil
	}
	now := s.opts.utcNow()

	rows, err := s.pool.Query(ctx,
		`UPDATE jobs SET status = 'running', updated_at = $2
		 WHERE message_id IN (
		     SELECT j.message_id FROM jobs j
		     WHERE `+readyPredicate+`
		     ORDER BY j.run_at, j.created_at
		     LIMIT $3
		     FOR UPDATE OF j SKIP LOCKED)
		   AND status IN ('pending', 'ready')
		 RETURNING `+jobColumns,
		string(agentType), now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim ready jobs: %w", err)
	}
	defer rows.Close()

	jobs := []*models.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claimed job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim ready jobs: %w", err)
	}

	// RETURNING order is unspecified.
	sort.SliceStable(jobs, func(a, b int) bool {
		if !jobs[a].RunAt.Equal(jobs[b].RunAt) {
			return jobs[a].RunAt.Before(jobs[b].RunAt)
		}
		return jobs[a].CreatedAt.Before(jobs[b].CreatedAt)
	})
	return jobs, nil
}

func (s *PostgresStore) Start(ctx context.Context, id uuid.UUID) error {
	now := s.opts.utcNow()
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET started_at = $2, updated_at = $2
		 WHERE message_id = $1 AND status = 'running'`, id, now)
	if err != nil {
		return fmt.Errorf("start job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionError(ctx, id, models.JobStatusRunning)
	}
	return nil
}

func (s *PostgresStore) Complete(ctx context.Context, id uuid.UUID, result json.RawMessage) error {
	now := s.opts.utcNow()
	if len(result) == 0 {
		result = json.RawMessage(`null`)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = 'completed', result = $2, completed_at = $3, updated_at = $3
		 WHERE message_id = $1 AND status = 'running'`, id, result, now)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionError(ctx, id, models.JobStatusCompleted)
	}
	return nil
}

func (s *PostgresStore) Fail(ctx context.Context, id uuid.UUID, errMsg string, retryAllowed bool) error {
	now := s.opts.utcNow()
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var (
			status      string
			attempts    int
			maxAttempts int
			strategy    string
		)
		err := tx.QueryRow(ctx,
			`SELECT status, attempts, max_attempts, backoff_strategy
			 FROM jobs WHERE message_id = $1 FOR UPDATE`, id,
		).Scan(&status, &attempts, &maxAttempts, &strategy)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if status != models.JobStatusRunning {
			return fmt.Errorf("%w: %s -> failed", ErrInvalidTransition, status)
		}

		attempts++
		if retryAllowed && attempts < maxAttempts {
			runAt := now.Add(s.opts.backoff.Delay(strategy, attempts))
			_, err = tx.Exec(ctx,
				`UPDATE jobs SET status = 'ready', attempts = $2, last_error = $3, run_at = $4, updated_at = $5
				 WHERE message_id = $1`, id, attempts, errMsg, runAt, now)
			return err
		}
		if attempts > maxAttempts {
			attempts = maxAttempts
		}
		_, err = tx.Exec(ctx,
			`UPDATE jobs SET status = 'dead', attempts = $2, last_error = $3, completed_at = $4, updated_at = $4
			 WHERE message_id = $1`, id, attempts, errMsg, now)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidTransition) {
			return err
		}
		return fmt.Errorf("fail job: %w", err)
	}
	return nil
}

func (s *PostgresStore) Release(ctx context.Context, id uuid.UUID, runAt time.Time) error {
	now := s.opts.utcNow()
	if runAt.IsZero() {
		runAt = now
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = 'ready', run_at = $2, updated_at = $3
		 WHERE message_id = $1 AND status = 'running'`, id, runAt.UTC(), now)
	if err != nil {
		return fmt.Errorf("release job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionError(ctx, id, models.JobStatusReady)
	}
	return nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, job models.NewJob) (uuid.UUID, error) {
	now := s.opts.utcNow()
	applyJobDefaults(&job, now, s.opts.maxAttempts)

	id := uuid.New()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (message_id, agent_type, task, intent, payload, dependencies, run_at, ttl_sec,
		                   status, attempts, max_attempts, backoff_strategy, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending', 0, $9, $10, $11, $11)`,
		id, string(job.AgentType), job.Task, job.Intent, job.Payload, job.Dependencies,
		job.RunAt.UTC(), job.TTLSec, job.MaxAttempts, job.BackoffStrategy, now)
	if err != nil {
		if isDuplicateKeyError(err) {
			return uuid.Nil, ErrDuplicateKey
		}
		return uuid.Nil, fmt.Errorf("create job: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) Cancel(ctx context.Context, id uuid.UUID) error {
	now := s.opts.utcNow()
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = 'cancelled', completed_at = $2, updated_at = $2
		 WHERE message_id = $1 AND status IN ('pending', 'ready', 'running')`, id, now)
	if err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionError(ctx, id, models.JobStatusCancelled)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE message_id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) CountPendingReady(ctx context.Context, agentType models.AgentType) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM jobs j WHERE `+readyPredicate,
		string(agentType), s.opts.utcNow()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count ready jobs: %w", err)
	}
	return n, nil
}

// transitionError explains why a guarded job UPDATE touched no rows.
func (s *PostgresStore) transitionError(ctx context.Context, id uuid.UUID, target string) error {
	var current string
	err := s.pool.QueryRow(ctx, `SELECT status FROM jobs WHERE message_id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get job status: %w", err)
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, target)
}

// --- Events ---

func (s *PostgresStore) AppendEvent(ctx context.Context, evt *models.Event) error {
	payload := evt.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO events (id, type, payload, source, correlation_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		evt.ID, evt.Type, payload, evt.Source, evt.CorrelationID, evt.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListEvents(ctx context.Context, eventType string, limit int) ([]*models.Event, error) {
	query := `SELECT id, type, payload, source, correlation_id, created_at FROM events`
	args := []any{}
	if eventType != "" {
		query += ` WHERE type = $1`
		args = append(args, eventType)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, normalizeLogLimit(limit))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := []*models.Event{}
	for rows.Next() {
		var (
			e       models.Event
			payload []byte
		)
		if err := rows.Scan(&e.ID, &e.Type, &payload, &e.Source, &e.CorrelationID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Payload = json.RawMessage(payload)
		events = append(events, &e)
	}
	return events, rows.Err()
}

// --- Logs ---

func (s *PostgresStore) AppendLog(ctx context.Context, entry *models.LogEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.opts.utcNow()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO agent_logs (agent_type, level, message, context, job_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		entry.AgentType, entry.Level, entry.Message, entry.Context, entry.JobID, entry.CreatedAt,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListLogs(ctx context.Context, filter models.LogFilter) ([]*models.LogEntry, error) {
	conditions := []string{}
	args := []any{}
	argIdx := 1

	if filter.AgentType != "" {
		conditions = append(conditions, fmt.Sprintf("agent_type = $%d", argIdx))
		args = append(args, filter.AgentType)
		argIdx++
	}
	if filter.Level != "" {
		conditions = append(conditions, fmt.Sprintf("level = $%d", argIdx))
		args = append(args, filter.Level)
		argIdx++
	}

	query := `SELECT id, agent_type, level, message, context, job_id, created_at FROM agent_logs`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", argIdx)
	args = append(args, normalizeLogLimit(filter.Limit))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	defer rows.Close()

	logs := []*models.LogEntry{}
	for rows.Next() {
		var l models.LogEntry
		if err := rows.Scan(&l.ID, &l.AgentType, &l.Level, &l.Message, &l.Context, &l.JobID, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}

// --- Journal entries ---

func (s *PostgresStore) InTx(ctx context.Context, fn func(tx EntryTx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&pgEntryTx{q: tx, now: s.opts.utcNow})
	})
}

func (s *PostgresStore) GetEntry(ctx context.Context, id string) (*models.JournalEntry, error) {
	var e models.JournalEntry
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, content, entry_date, created_at, updated_at
		 FROM journal_entries WHERE id = $1`, id,
	).Scan(&e.ID, &e.UserID, &e.Content, &e.EntryDate, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	return &e, nil
}

func (s *PostgresStore) ListEntryAreas(ctx context.Context, entryID string) ([]*models.EntryAreaLink, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT entry_id, area_id, provenance, strength, created_at
		 FROM entry_areas WHERE entry_id = $1 ORDER BY created_at`, entryID)
	if err != nil {
		return nil, fmt.Errorf("list entry areas: %w", err)
	}
	defer rows.Close()

	links := []*models.EntryAreaLink{}
	for rows.Next() {
		var l models.EntryAreaLink
		if err := rows.Scan(&l.EntryID, &l.AreaID, &l.Provenance, &l.Strength, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan entry area: %w", err)
		}
		links = append(links, &l)
	}
	return links, rows.Err()
}

type pgEntryTx struct {
	q   querier
	now func() time.Time
}

func (t *pgEntryTx) UpsertEntry(ctx context.Context, e *models.JournalEntry) error {
	now := t.now()
	_, err := t.q.Exec(ctx,
		`INSERT INTO journal_entries (id, user_id, content, entry_date, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)
		 ON CONFLICT (id) DO UPDATE SET
		   user_id = EXCLUDED.user_id,
		   content = EXCLUDED.content,
		   entry_date = EXCLUDED.entry_date,
		   updated_at = EXCLUDED.updated_at`,
		e.ID, e.UserID, e.Content, e.EntryDate, now)
	if err != nil {
		return fmt.Errorf("upsert entry: %w", err)
	}
	return nil
}

func (t *pgEntryTx) ResolveArea(ctx context.Context, code string) (*models.Area, error) {
	var a models.Area
	err := t.q.QueryRow(ctx,
		`SELECT id, code, name FROM areas WHERE code = $1`, code,
	).Scan(&a.ID, &a.Code, &a.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("area %q: %w", code, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve area: %w", err)
	}
	return &a, nil
}

func (t *pgEntryTx) LinkEntryArea(ctx context.Context, l *models.EntryAreaLink) error {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = t.now()
	}
	_, err := t.q.Exec(ctx,
		`INSERT INTO entry_areas (entry_id, area_id, provenance, strength, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (entry_id, area_id) DO UPDATE SET
		   provenance = EXCLUDED.provenance,
		   strength = EXCLUDED.strength`,
		l.EntryID, l.AreaID, l.Provenance, l.Strength, l.CreatedAt)
	if err != nil {
		return fmt.Errorf("link entry area: %w", err)
	}
	return nil
}

// --- Commitments ---

func (s *PostgresStore) CreateCommitment(ctx context.Context, c *models.Commitment) (bool, error) {
	intentVerbs := c.IntentVerbs
	if intentVerbs == nil {
		intentVerbs = []string{}
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO commitments (id, user_id, entry_id, statement, confidence, intent_verbs, entities, source, status, detected_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO NOTHING`,
		c.ID, c.UserID, c.EntryID, c.Statement, c.Confidence, intentVerbs, c.Entities,
		c.Source, c.Status, c.DetectedAt)
	if err != nil {
		return false, fmt.Errorf("create commitment: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) ListCommitments(ctx context.Context, userID string) ([]*models.Commitment, error) {
	query := `SELECT id, user_id, entry_id, statement, confidence, intent_verbs, entities, source, status, detected_at
		 FROM commitments`
	args := []any{}
	if userID != "" {
		query += ` WHERE user_id = $1`
		args = append(args, userID)
	}
	query += ` ORDER BY detected_at, statement`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list commitments: %w", err)
	}
	defer rows.Close()

	commitments := []*models.Commitment{}
	for rows.Next() {
		var c models.Commitment
		if err := rows.Scan(&c.ID, &c.UserID, &c.EntryID, &c.Statement, &c.Confidence,
			&c.IntentVerbs, &c.Entities, &c.Source, &c.Status, &c.DetectedAt); err != nil {
			return nil, fmt.Errorf("scan commitment: %w", err)
		}
		commitments = append(commitments, &c)
	}
	return commitments, rows.Err()
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

var _ Store = (*PostgresStore)(nil)
