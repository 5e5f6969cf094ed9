package store_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/lifeledger/internal/store"
	"github.com/kiranshivaraju/lifeledger/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a settable time source shared with the store.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newMemoryStore(t *testing.T, clock *fakeClock) *store.MemoryStore {
	t.Helper()
	return store.NewMemoryStore(
		store.WithClock(clock.Now),
		store.WithBackoff(store.Backoff{Base: time.Second, Max: time.Minute}),
	)
}

func createJob(t *testing.T, s store.JobStore, agent models.AgentType, opts ...func(*models.NewJob)) uuid.UUID {
	t.Helper()
	nj := models.NewJob{AgentType: agent, Task: "process", Payload: json.RawMessage(`{"entry_id":"e1"}`)}
	for _, o := range opts {
		o(&nj)
	}
	id, err := s.CreateJob(context.Background(), nj)
	require.NoError(t, err)
	return id
}

// --- Create ---

func TestMemoryCreateJob_Defaults(t *testing.T) {
	clock := newFakeClock()
	s := newMemoryStore(t, clock)

	id := createJob(t, s, models.AgentCommitmentDetector)
	job, err := s.GetJob(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Equal(t, models.DefaultIntent, job.Intent)
	assert.Equal(t, models.DefaultTTLSec, job.TTLSec)
	assert.Equal(t, models.DefaultMaxAttempts, job.MaxAttempts)
	assert.Equal(t, models.BackoffExponential, job.BackoffStrategy)
	assert.Empty(t, job.Dependencies)
	assert.Equal(t, clock.Now(), job.RunAt)
	assert.Zero(t, job.Attempts)
}

func TestMemoryCreateJob_IdenticalPayloadsGetDistinctIDs(t *testing.T) {
	s := newMemoryStore(t, newFakeClock())

	first := createJob(t, s, models.AgentCommitmentDetector)
	second := createJob(t, s, models.AgentCommitmentDetector)
	assert.NotEqual(t, first, second)
}

// --- Claim ---

func TestMemoryClaim_RespectsRunAt(t *testing.T) {
	clock := newFakeClock()
	s := newMemoryStore(t, clock)
	ctx := context.Background()

	createJob(t, s, models.AgentEntryClassifier, func(j *models.NewJob) {
		j.RunAt = clock.Now().Add(time.Minute)
	})

	jobs, err := s.ClaimNextReady(ctx, models.AgentEntryClassifier, 10)
	require.NoError(t, err)
	assert.Empty(t, jobs)

	clock.Advance(time.Minute)
	jobs, err = s.ClaimNextReady(ctx, models.AgentEntryClassifier, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, models.JobStatusRunning, jobs[0].Status)
}

func TestMemoryClaim_UnmetDependenciesNeverReturned(t *testing.T) {
	clock := newFakeClock()
	s := newMemoryStore(t, clock)
	ctx := context.Background()

	dep := createJob(t, s, models.AgentEntryClassifier)
	child := createJob(t, s, models.AgentCommitmentDetector, func(j *models.NewJob) {
		j.Dependencies = []uuid.UUID{dep}
	})
	orphan := createJob(t, s, models.AgentCommitmentDetector, func(j *models.NewJob) {
		j.Dependencies = []uuid.UUID{uuid.New()}
	})

	jobs, err := s.ClaimNextReady(ctx, models.AgentCommitmentDetector, 10)
	require.NoError(t, err)
	assert.Empty(t, jobs)

	// Dependency running is still not completed.
	claimed, err := s.ClaimNextReady(ctx, models.AgentEntryClassifier, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	jobs, err = s.ClaimNextReady(ctx, models.AgentCommitmentDetector, 10)
	require.NoError(t, err)
	assert.Empty(t, jobs)

	require.NoError(t, s.Complete(ctx, dep, json.RawMessage(`{"ok":true}`)))

	jobs, err = s.ClaimNextReady(ctx, models.AgentCommitmentDetector, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, child, jobs[0].MessageID)

	o, err := s.GetJob(ctx, orphan)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, o.Status)
}

func TestMemoryClaim_LimitAndOrder(t *testing.T) {
	clock := newFakeClock()
	s := newMemoryStore(t, clock)
	ctx := context.Background()

	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		ids = append(ids, createJob(t, s, models.AgentEntryClassifier))
		clock.Advance(time.Millisecond)
	}

	jobs, err := s.ClaimNextReady(ctx, models.AgentEntryClassifier, 3)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	for i, j := range jobs {
		assert.Equal(t, ids[i], j.MessageID)
	}

	n, err := s.CountPendingReady(ctx, models.AgentEntryClassifier)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMemoryClaim_OtherAgentTypeIgnored(t *testing.T) {
	s := newMemoryStore(t, newFakeClock())
	createJob(t, s, models.AgentEntryClassifier)

	jobs, err := s.ClaimNextReady(context.Background(), models.AgentCommitmentDetector, 10)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestMemoryClaim_ConcurrentCallersNeverShareAJob(t *testing.T) {
	s := newMemoryStore(t, newFakeClock())
	ctx := context.Background()

	const total = 200
	for i := 0; i < total; i++ {
		createJob(t, s, models.AgentCommitmentDetector)
	}

	var (
		mu   sync.Mutex
		seen = make(map[uuid.UUID]int)
		wg   sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				jobs, err := s.ClaimNextReady(ctx, models.AgentCommitmentDetector, 3)
				if err != nil || len(jobs) == 0 {
					return
				}
				mu.Lock()
				for _, j := range jobs {
					seen[j.MessageID]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, total)
	for id, n := range seen {
		assert.Equal(t, 1, n, "job %s claimed %d times", id, n)
	}
}

// --- Lifecycle ---

func TestMemoryFail_RetriesWithBackoffThenCompletes(t *testing.T) {
	clock := newFakeClock()
	s := newMemoryStore(t, clock)
	ctx := context.Background()

	id := createJob(t, s, models.AgentCommitmentDetector)

	for attempt := 1; attempt <= 2; attempt++ {
		jobs, err := s.ClaimNextReady(ctx, models.AgentCommitmentDetector, 1)
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		require.NoError(t, s.Fail(ctx, id, "boom", true))

		job, err := s.GetJob(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusReady, job.Status)
		assert.Equal(t, attempt, job.Attempts)
		require.NotNil(t, job.LastError)
		assert.Equal(t, "boom", *job.LastError)

		// Backoff keeps it out of the next claim.
		jobs, err = s.ClaimNextReady(ctx, models.AgentCommitmentDetector, 1)
		require.NoError(t, err)
		assert.Empty(t, jobs)
		clock.Advance(time.Minute)
	}

	jobs, err := s.ClaimNextReady(ctx, models.AgentCommitmentDetector, 1)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.NoError(t, s.Complete(ctx, id, json.RawMessage(`{"done":true}`)))

	job, err := s.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.JSONEq(t, `{"done":true}`, string(job.Result))
	assert.NotNil(t, job.CompletedAt)
}

func TestMemoryFail_DeadAfterMaxAttempts(t *testing.T) {
	clock := newFakeClock()
	s := newMemoryStore(t, clock)
	ctx := context.Background()

	id := createJob(t, s, models.AgentCommitmentDetector, func(j *models.NewJob) {
		j.MaxAttempts = 3
	})

	for i := 0; i < 3; i++ {
		jobs, err := s.ClaimNextReady(ctx, models.AgentCommitmentDetector, 1)
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		require.NoError(t, s.Fail(ctx, id, "still broken", true))
		clock.Advance(time.Hour)
	}

	job, err := s.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusDead, job.Status)
	assert.Equal(t, 3, job.Attempts)

	jobs, err := s.ClaimNextReady(ctx, models.AgentCommitmentDetector, 10)
	require.NoError(t, err)
	assert.Empty(t, jobs, "dead jobs are never re-claimed")
}

func TestMemoryFail_NoRetryGoesStraightToDead(t *testing.T) {
	s := newMemoryStore(t, newFakeClock())
	ctx := context.Background()

	id := createJob(t, s, models.AgentEntryClassifier)
	_, err := s.ClaimNextReady(ctx, models.AgentEntryClassifier, 1)
	require.NoError(t, err)
	require.NoError(t, s.Fail(ctx, id, "fatal", false))

	job, err := s.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusDead, job.Status)
	assert.Equal(t, 1, job.Attempts)
}

func TestMemoryRelease_DoesNotConsumeAttempt(t *testing.T) {
	clock := newFakeClock()
	s := newMemoryStore(t, clock)
	ctx := context.Background()

	id := createJob(t, s, models.AgentEntryClassifier)
	_, err := s.ClaimNextReady(ctx, models.AgentEntryClassifier, 1)
	require.NoError(t, err)

	require.NoError(t, s.Release(ctx, id, clock.Now().Add(30*time.Second)))

	job, err := s.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusReady, job.Status)
	assert.Zero(t, job.Attempts)
	assert.Equal(t, clock.Now().Add(30*time.Second), job.RunAt)
}

func TestMemoryTransitions_Invalid(t *testing.T) {
	s := newMemoryStore(t, newFakeClock())
	ctx := context.Background()

	id := createJob(t, s, models.AgentEntryClassifier)

	assert.ErrorIs(t, s.Start(ctx, id), store.ErrInvalidTransition)
	assert.ErrorIs(t, s.Complete(ctx, id, nil), store.ErrInvalidTransition)
	assert.ErrorIs(t, s.Fail(ctx, id, "x", true), store.ErrInvalidTransition)
	assert.ErrorIs(t, s.Start(ctx, uuid.New()), store.ErrNotFound)

	_, err := s.GetJob(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMemoryCancel(t *testing.T) {
	s := newMemoryStore(t, newFakeClock())
	ctx := context.Background()

	pending := createJob(t, s, models.AgentEntryClassifier)
	require.NoError(t, s.Cancel(ctx, pending))
	job, err := s.GetJob(ctx, pending)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, job.Status)

	// Cancelled jobs are terminal.
	assert.ErrorIs(t, s.Cancel(ctx, pending), store.ErrInvalidTransition)

	running := createJob(t, s, models.AgentEntryClassifier)
	_, err = s.ClaimNextReady(ctx, models.AgentEntryClassifier, 1)
	require.NoError(t, err)
	require.NoError(t, s.Cancel(ctx, running))
	assert.ErrorIs(t, s.Complete(ctx, running, nil), store.ErrInvalidTransition)

	assert.ErrorIs(t, s.Cancel(ctx, uuid.New()), store.ErrNotFound)
}

// --- Events & logs ---

func TestMemoryEvents_AppendAndList(t *testing.T) {
	s := newMemoryStore(t, newFakeClock())
	ctx := context.Background()

	evt := &models.Event{ID: uuid.New(), Type: models.EventCommitmentDetected, Payload: json.RawMessage(`{}`), Source: "CommitmentDetector"}
	require.NoError(t, s.AppendEvent(ctx, evt))
	require.NoError(t, s.AppendEvent(ctx, &models.Event{ID: uuid.New(), Type: models.EventJournalEntryCreated, Source: "EntryClassifier"}))
	assert.ErrorIs(t, s.AppendEvent(ctx, evt), store.ErrDuplicateKey)

	events, err := s.ListEvents(ctx, models.EventCommitmentDetected, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, evt.ID, events[0].ID)

	all, err := s.ListEvents(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestMemoryLogs_FilterAndLimit(t *testing.T) {
	s := newMemoryStore(t, newFakeClock())
	ctx := context.Background()

	jobID := uuid.New()
	for i := 0; i < 3; i++ {
		require.NoError(t, s.AppendLog(ctx, &models.LogEntry{AgentType: "EntryClassifier", Level: models.LogLevelInfo, Message: "ok"}))
	}
	require.NoError(t, s.AppendLog(ctx, &models.LogEntry{AgentType: "EntryClassifier", Level: models.LogLevelError, Message: "bad", JobID: &jobID}))
	require.NoError(t, s.AppendLog(ctx, &models.LogEntry{AgentType: "CommitmentDetector", Level: models.LogLevelInfo, Message: "ok"}))

	logs, err := s.ListLogs(ctx, models.LogFilter{AgentType: "EntryClassifier", Level: models.LogLevelError})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "bad", logs[0].Message)
	assert.Equal(t, &jobID, logs[0].JobID)

	logs, err = s.ListLogs(ctx, models.LogFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "CommitmentDetector", logs[0].AgentType, "newest first")
}

// --- Entries ---

func TestMemoryInTx_RollsBackOnError(t *testing.T) {
	s := newMemoryStore(t, newFakeClock())
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx store.EntryTx) error {
		require.NoError(t, tx.UpsertEntry(ctx, &models.JournalEntry{ID: "e1", UserID: "u1", Content: "text"}))
		area, err := tx.ResolveArea(ctx, "health")
		require.NoError(t, err)
		require.NoError(t, tx.LinkEntryArea(ctx, &models.EntryAreaLink{EntryID: "e1", AreaID: area.ID, Provenance: models.ProvenanceAgent, Strength: 0.5}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.GetEntry(ctx, "e1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	links, err := s.ListEntryAreas(ctx, "e1")
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestMemoryInTx_CommitIsIdempotent(t *testing.T) {
	s := newMemoryStore(t, newFakeClock())
	ctx := context.Background()

	write := func(strength float64) {
		err := s.InTx(ctx, func(tx store.EntryTx) error {
			if err := tx.UpsertEntry(ctx, &models.JournalEntry{ID: "e1", UserID: "u1", Content: "text"}); err != nil {
				return err
			}
			area, err := tx.ResolveArea(ctx, "finance")
			if err != nil {
				return err
			}
			return tx.LinkEntryArea(ctx, &models.EntryAreaLink{EntryID: "e1", AreaID: area.ID, Provenance: models.ProvenanceAgent, Strength: strength})
		})
		require.NoError(t, err)
	}
	write(0.5)
	write(0.9)

	links, err := s.ListEntryAreas(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, 0.9, links[0].Strength)
}

func TestMemoryResolveArea_Unknown(t *testing.T) {
	s := newMemoryStore(t, newFakeClock())
	ctx := context.Background()

	err := s.InTx(ctx, func(tx store.EntryTx) error {
		_, err := tx.ResolveArea(ctx, "astrology")
		return err
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// --- Commitments ---

func TestMemoryCreateCommitment_IgnoresDuplicateID(t *testing.T) {
	s := newMemoryStore(t, newFakeClock())
	ctx := context.Background()

	c := &models.Commitment{ID: uuid.New(), UserID: "u1", EntryID: "e1", Statement: "I will run", Confidence: 0.75, Status: models.CommitmentStatusActive}
	created, err := s.CreateCommitment(ctx, c)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.CreateCommitment(ctx, c)
	require.NoError(t, err)
	assert.False(t, created)

	list, err := s.ListCommitments(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = s.ListCommitments(ctx, "someone-else")
	require.NoError(t, err)
	assert.Empty(t, list)
}
