package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/lifeledger/pkg/models"
)

// DefaultAreaCodes mirrors the taxonomy seeded by the SQL migrations.
var DefaultAreaCodes = []string{
	"health", "fitness", "finance", "career", "relationships", "family",
	"learning", "creativity", "spirituality", "recreation", "environment", "contribution",
}

// MemoryStore is a process-local Store. A single mutex serialises every
// operation, which gives ClaimNextReady the same exclusivity as the
// Postgres implementation for callers sharing one instance.
type MemoryStore struct {
	opts storeOptions

	mu          sync.Mutex
	jobs        map[uuid.UUID]*models.Job
	events      []*models.Event
	logs        []*models.LogEntry
	nextLogID   int64
	entries     map[string]*models.JournalEntry
	areas       map[string]*models.Area
	links       map[string][]*models.EntryAreaLink
	commitments map[uuid.UUID]*models.Commitment
	commitOrder []uuid.UUID
}

// NewMemoryStore returns an empty MemoryStore seeded with DefaultAreaCodes.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		opts:        buildOptions(opts),
		jobs:        make(map[uuid.UUID]*models.Job),
		entries:     make(map[string]*models.JournalEntry),
		areas:       make(map[string]*models.Area),
		links:       make(map[string][]*models.EntryAreaLink),
		commitments: make(map[uuid.UUID]*models.Commitment),
	}
	for _, code := range DefaultAreaCodes {
		s.areas[code] = &models.Area{
			ID:   uuid.NewSHA1(uuid.NameSpaceOID, []byte("area:"+code)),
			Code: code,
			Name: titleCase(code),
		}
	}
	return s
}

func (s *MemoryStore) Ping(_ context.Context) error { return nil }

// --- Jobs ---

func (s *MemoryStore) ClaimNextReady(_ context.Context, agentType models.AgentType, limit int) ([]*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		return []*models.Job{}, nil
	}
	now := s.opts.utcNow()
	ready := s.readyLocked(agentType, now)
	if len(ready) > limit {
		ready = ready[:limit]
	}

	claimed := make([]*models.Job, 0, len(ready))
	for _, j := range ready {
		j.Status = models.JobStatusRunning
		j.UpdatedAt = now
		claimed = append(claimed, cloneJob(j))
	}
	return claimed, nil
}

// readyLocked returns the claimable jobs for agentType in run_at order.
func (s *MemoryStore) readyLocked(agentType models.AgentType, now time.Time) []*models.Job {
	var ready []*models.Job
	for _, j := range s.jobs {
		if j.AgentType != agentType {
			continue
		}
		if j.Status != models.JobStatusPending && j.Status != models.JobStatusReady {
			continue
		}
		if j.RunAt.After(now) {
			continue
		}
		if !s.dependenciesCompletedLocked(j) {
			continue
		}
		ready = append(ready, j)
	}
	sort.Slice(ready, func(a, b int) bool {
		if !ready[a].RunAt.Equal(ready[b].RunAt) {
			return ready[a].RunAt.Before(ready[b].RunAt)
		}
		if !ready[a].CreatedAt.Equal(ready[b].CreatedAt) {
			return ready[a].CreatedAt.Before(ready[b].CreatedAt)
		}
		return ready[a].MessageID.String() < ready[b].MessageID.String()
	})
	return ready
}

func (s *MemoryStore) dependenciesCompletedLocked(j *models.Job) bool {
	for _, depID := range j.Dependencies {
		dep, ok := s.jobs[depID]
		if !ok || dep.Status != models.JobStatusCompleted {
			return false
		}
	}
	return true
}

func (s *MemoryStore) Start(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, err := s.runningLocked(id, models.JobStatusRunning)
	if err != nil {
		return err
	}
	now := s.opts.utcNow()
	j.StartedAt = &now
	j.UpdatedAt = now
	return nil
}

func (s *MemoryStore) Complete(_ context.Context, id uuid.UUID, result json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, err := s.runningLocked(id, models.JobStatusCompleted)
	if err != nil {
		return err
	}
	if len(result) == 0 {
		result = json.RawMessage(`null`)
	}
	now := s.opts.utcNow()
	j.Status = models.JobStatusCompleted
	j.Result = append(json.RawMessage(nil), result...)
	j.CompletedAt = &now
	j.UpdatedAt = now
	return nil
}

func (s *MemoryStore) Fail(_ context.Context, id uuid.UUID, errMsg string, retryAllowed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, err := s.runningLocked(id, "failed")
	if err != nil {
		return err
	}
	now := s.opts.utcNow()
	msg := errMsg
	j.LastError = &msg
	j.UpdatedAt = now
	j.Attempts++

	if retryAllowed && j.Attempts < j.MaxAttempts {
		j.Status = models.JobStatusReady
		j.RunAt = now.Add(s.opts.backoff.Delay(j.BackoffStrategy, j.Attempts))
		return nil
	}
	if j.Attempts > j.MaxAttempts {
		j.Attempts = j.MaxAttempts
	}
	j.Status = models.JobStatusDead
	j.CompletedAt = &now
	return nil
}

func (s *MemoryStore) Release(_ context.Context, id uuid.UUID, runAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, err := s.runningLocked(id, models.JobStatusReady)
	if err != nil {
		return err
	}
	now := s.opts.utcNow()
	if runAt.IsZero() {
		runAt = now
	}
	j.Status = models.JobStatusReady
	j.RunAt = runAt.UTC()
	j.UpdatedAt = now
	return nil
}

func (s *MemoryStore) runningLocked(id uuid.UUID, target string) (*models.Job, error) {
	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if j.Status != models.JobStatusRunning {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, target)
	}
	return j, nil
}

func (s *MemoryStore) CreateJob(_ context.Context, job models.NewJob) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.utcNow()
	applyJobDefaults(&job, now, s.opts.maxAttempts)

	id := uuid.New()
	s.jobs[id] = &models.Job{
		MessageID:       id,
		AgentType:       job.AgentType,
		Task:            job.Task,
		Intent:          job.Intent,
		Payload:         append(json.RawMessage(nil), job.Payload...),
		Dependencies:    append([]uuid.UUID{}, job.Dependencies...),
		RunAt:           job.RunAt.UTC(),
		TTLSec:          job.TTLSec,
		Status:          models.JobStatusPending,
		MaxAttempts:     job.MaxAttempts,
		BackoffStrategy: job.BackoffStrategy,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	return id, nil
}

func (s *MemoryStore) Cancel(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if j.IsTerminal() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, models.JobStatusCancelled)
	}
	now := s.opts.utcNow()
	j.Status = models.JobStatusCancelled
	j.CompletedAt = &now
	j.UpdatedAt = now
	return nil
}

func (s *MemoryStore) GetJob(_ context.Context, id uuid.UUID) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneJob(j), nil
}

func (s *MemoryStore) CountPendingReady(_ context.Context, agentType models.AgentType) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.readyLocked(agentType, s.opts.utcNow())), nil
}

func cloneJob(j *models.Job) *models.Job {
	c := *j
	c.Payload = append(json.RawMessage(nil), j.Payload...)
	c.Dependencies = append([]uuid.UUID{}, j.Dependencies...)
	if j.Result != nil {
		c.Result = append(json.RawMessage(nil), j.Result...)
	}
	return &c
}

// --- Events ---

func (s *MemoryStore) AppendEvent(_ context.Context, evt *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.events {
		if e.ID == evt.ID {
			return ErrDuplicateKey
		}
	}
	c := *evt
	c.Payload = append(json.RawMessage(nil), evt.Payload...)
	s.events = append(s.events, &c)
	return nil
}

func (s *MemoryStore) ListEvents(_ context.Context, eventType string, limit int) ([]*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit = normalizeLogLimit(limit)
	out := []*models.Event{}
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		if eventType != "" && s.events[i].Type != eventType {
			continue
		}
		c := *s.events[i]
		out = append(out, &c)
	}
	return out, nil
}

// --- Logs ---

func (s *MemoryStore) AppendLog(_ context.Context, entry *models.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.opts.utcNow()
	}
	s.nextLogID++
	entry.ID = s.nextLogID
	c := *entry
	s.logs = append(s.logs, &c)
	return nil
}

func (s *MemoryStore) ListLogs(_ context.Context, filter models.LogFilter) ([]*models.LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit := normalizeLogLimit(filter.Limit)
	out := []*models.LogEntry{}
	for i := len(s.logs) - 1; i >= 0 && len(out) < limit; i-- {
		l := s.logs[i]
		if filter.AgentType != "" && l.AgentType != filter.AgentType {
			continue
		}
		if filter.Level != "" && l.Level != filter.Level {
			continue
		}
		c := *l
		out = append(out, &c)
	}
	return out, nil
}

// --- Journal entries ---

// InTx buffers fn's writes and applies them only if fn succeeds.
func (s *MemoryStore) InTx(ctx context.Context, fn func(tx EntryTx) error) error {
	tx := &memEntryTx{store: s}
	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range tx.entries {
		if existing, ok := s.entries[e.ID]; ok {
			e.CreatedAt = existing.CreatedAt
		}
		s.entries[e.ID] = e
	}
	for _, l := range tx.links {
		s.upsertLinkLocked(l)
	}
	return nil
}

func (s *MemoryStore) upsertLinkLocked(l *models.EntryAreaLink) {
	links := s.links[l.EntryID]
	for i, existing := range links {
		if existing.AreaID == l.AreaID {
			l.CreatedAt = existing.CreatedAt
			links[i] = l
			return
		}
	}
	s.links[l.EntryID] = append(links, l)
}

func (s *MemoryStore) GetEntry(_ context.Context, id string) (*models.JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *e
	return &c, nil
}

func (s *MemoryStore) ListEntryAreas(_ context.Context, entryID string) ([]*models.EntryAreaLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []*models.EntryAreaLink{}
	for _, l := range s.links[entryID] {
		c := *l
		out = append(out, &c)
	}
	return out, nil
}

type memEntryTx struct {
	store   *MemoryStore
	entries []*models.JournalEntry
	links   []*models.EntryAreaLink
}

func (t *memEntryTx) UpsertEntry(_ context.Context, e *models.JournalEntry) error {
	now := t.store.opts.utcNow()
	c := *e
	c.CreatedAt = now
	c.UpdatedAt = now
	t.entries = append(t.entries, &c)
	return nil
}

func (t *memEntryTx) ResolveArea(_ context.Context, code string) (*models.Area, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	a, ok := t.store.areas[code]
	if !ok {
		return nil, fmt.Errorf("area %q: %w", code, ErrNotFound)
	}
	c := *a
	return &c, nil
}

func (t *memEntryTx) LinkEntryArea(_ context.Context, l *models.EntryAreaLink) error {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = t.store.opts.utcNow()
	}
	c := *l
	t.links = append(t.links, &c)
	return nil
}

// --- Commitments ---

func (s *MemoryStore) CreateCommitment(_ context.Context, c *models.Commitment) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.commitments[c.ID]; ok {
		return false, nil
	}
	cp := *c
	s.commitments[c.ID] = &cp
	s.commitOrder = append(s.commitOrder, c.ID)
	return true, nil
}

func (s *MemoryStore) ListCommitments(_ context.Context, userID string) ([]*models.Commitment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []*models.Commitment{}
	for _, id := range s.commitOrder {
		c := s.commitments[id]
		if userID != "" && c.UserID != userID {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func titleCase(code string) string {
	if code == "" {
		return code
	}
	b := []byte(code)
	if b[0] >= 'a' && b[0] <= 'z' {
		b[0] -= 'a' - 'A'
	}
	return string(b)
}

var _ Store = (*MemoryStore)(nil)
