package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/lifeledger/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")
var ErrInvalidTransition = errors.New("invalid job status transition")

// JobStore is the durable, atomically claimable job queue. Every method is
// atomic with respect to concurrent callers, including callers in other
// processes sharing the same backing database.
type JobStore interface {
	// ClaimNextReady moves up to limit ready jobs of agentType to running and
	// returns them. No two callers ever receive the same job.
	ClaimNextReady(ctx context.Context, agentType models.AgentType, limit int) ([]*models.Job, error)
	Start(ctx context.Context, id uuid.UUID) error
	Complete(ctx context.Context, id uuid.UUID, result json.RawMessage) error
	// Fail records a failed attempt. With retryAllowed and attempts left the
	// job returns to ready after its backoff; otherwise it becomes dead.
	Fail(ctx context.Context, id uuid.UUID, errMsg string, retryAllowed bool) error
	// Release hands a running job back to ready without consuming an attempt.
	Release(ctx context.Context, id uuid.UUID, runAt time.Time) error
	CreateJob(ctx context.Context, job models.NewJob) (uuid.UUID, error)
	Cancel(ctx context.Context, id uuid.UUID) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	CountPendingReady(ctx context.Context, agentType models.AgentType) (int, error)
}

// EventStore is the append-only event stream.
type EventStore interface {
	AppendEvent(ctx context.Context, evt *models.Event) error
	ListEvents(ctx context.Context, eventType string, limit int) ([]*models.Event, error)
}

// LogStore is the append-only agent log stream.
type LogStore interface {
	AppendLog(ctx context.Context, entry *models.LogEntry) error
	ListLogs(ctx context.Context, filter models.LogFilter) ([]*models.LogEntry, error)
}

// EntryTx is the set of entry writes performed atomically by the classifier.
type EntryTx interface {
	UpsertEntry(ctx context.Context, entry *models.JournalEntry) error
	ResolveArea(ctx context.Context, code string) (*models.Area, error)
	LinkEntryArea(ctx context.Context, link *models.EntryAreaLink) error
}

// EntryStore persists journal entries and their taxonomy links.
type EntryStore interface {
	// InTx runs fn in a single transaction; nothing fn wrote survives an error.
	InTx(ctx context.Context, fn func(tx EntryTx) error) error
	GetEntry(ctx context.Context, id string) (*models.JournalEntry, error)
	ListEntryAreas(ctx context.Context, entryID string) ([]*models.EntryAreaLink, error)
}

// CommitmentStore persists detected commitments.
type CommitmentStore interface {
	// CreateCommitment inserts c; an existing commitment with the same ID is
	// left untouched and reported as created=false.
	CreateCommitment(ctx context.Context, c *models.Commitment) (created bool, err error)
	ListCommitments(ctx context.Context, userID string) ([]*models.Commitment, error)
}

// Store is the data access interface. All persistence goes through here.
type Store interface {
	Ping(ctx context.Context) error
	JobStore
	EventStore
	LogStore
	EntryStore
	CommitmentStore
}

const (
	defaultLogLimit = 100
	maxLogLimit     = 1000
)

func normalizeLogLimit(limit int) int {
	if limit <= 0 {
		return defaultLogLimit
	}
	if limit > maxLogLimit {
		return maxLogLimit
	}
	return limit
}

// applyJobDefaults fills the zero values of a new job.
func applyJobDefaults(job *models.NewJob, now time.Time, maxAttempts int) {
	if job.Intent == "" {
		job.Intent = models.DefaultIntent
	}
	if job.Dependencies == nil {
		job.Dependencies = []uuid.UUID{}
	}
	if job.RunAt.IsZero() {
		job.RunAt = now
	}
	if job.TTLSec <= 0 {
		job.TTLSec = models.DefaultTTLSec
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = maxAttempts
	}
	if job.BackoffStrategy == "" {
		job.BackoffStrategy = models.BackoffExponential
	}
	if len(job.Payload) == 0 {
		job.Payload = json.RawMessage(`{}`)
	}
}
