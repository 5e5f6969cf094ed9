// Package orchestrator claims ready jobs from the job store, routes each to
// the agent registered for its type and records the outcome. Correctness
// across processes rests on the store's exclusive claim; everything held
// here is local and rebuilt on restart.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/lifeledger/internal/agent"
	"github.com/kiranshivaraju/lifeledger/internal/events"
	"github.com/kiranshivaraju/lifeledger/internal/metrics"
	"github.com/kiranshivaraju/lifeledger/internal/store"
	"github.com/kiranshivaraju/lifeledger/pkg/models"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultBatchSize    = 10
	DefaultDispatcherID = "orchestrator"
)

// Store is the persistence the orchestrator needs.
type Store interface {
	store.JobStore
	store.EventStore
	store.LogStore
}

type registration struct {
	handler agent.Handler
	cfg     agent.Config
	cfgErr  error
	sem     *semaphore.Weighted
}

type Orchestrator struct {
	store          Store
	bus            events.Bus
	limiter        Limiter
	pollInterval   time.Duration
	batchSize      int
	parallelAgents bool
	dispatcherID   string
	now            func() time.Time

	mu       sync.RWMutex
	handlers map[models.AgentType]*registration

	running atomic.Bool
	wake    chan struct{}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithPollInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithParallelAgents polls agent types concurrently. Jobs of one type are
// still dispatched one after another.
func WithParallelAgents(enabled bool) Option {
	return func(o *Orchestrator) {
		o.parallelAgents = enabled
	}
}

// WithDispatcherID names this instance in envelope provenance.
func WithDispatcherID(id string) Option {
	return func(o *Orchestrator) {
		if id != "" {
			o.dispatcherID = id
		}
	}
}

func WithBus(b events.Bus) Option {
	return func(o *Orchestrator) {
		if b != nil {
			o.bus = b
		}
	}
}

func WithLimiter(l Limiter) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.limiter = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// New builds an Orchestrator over st. Without WithBus events stay in
// process; without WithLimiter rate limits are enforced per process.
func New(st Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:        st,
		pollInterval: DefaultPollInterval,
		batchSize:    DefaultBatchSize,
		dispatcherID: DefaultDispatcherID,
		now:          time.Now,
		handlers:     make(map[models.AgentType]*registration),
		wake:         make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.bus == nil {
		o.bus = events.NewMemoryBus()
	}
	if o.limiter == nil {
		o.limiter = NewLocalLimiter(o.now)
	}
	return o
}

// Register routes jobs of agentType to h, replacing any earlier handler.
// A handler whose declared config is invalid is still registered but
// reported unhealthy.
func (o *Orchestrator) Register(agentType models.AgentType, h agent.Handler) {
	cfg := h.Config()
	cfgErr := cfg.Validate()
	if cfgErr == nil && cfg.Name != agentType {
		cfgErr = fmt.Errorf("handler declares %s but is registered for %s", cfg.Name, agentType)
	}
	if cfgErr != nil {
		slog.Warn("agent registered with invalid config", "agent_type", agentType, "error", cfgErr)
	}

	weight := int64(cfg.MaxConcurrent)
	if weight <= 0 {
		weight = 1
	}

	o.mu.Lock()
	o.handlers[agentType] = &registration{
		handler: h,
		cfg:     cfg,
		cfgErr:  cfgErr,
		sem:     semaphore.NewWeighted(weight),
	}
	o.mu.Unlock()

	slog.Info("agent registered", "agent_type", agentType, "version", cfg.Version,
		"rate_limit_per_min", cfg.RateLimitPerMin, "max_concurrent", cfg.MaxConcurrent)
}

// AgentConfig returns the config declared by the handler registered for agentType.
func (o *Orchestrator) AgentConfig(agentType models.AgentType) (agent.Config, bool) {
	reg := o.registration(agentType)
	if reg == nil {
		return agent.Config{}, false
	}
	return reg.cfg, true
}

func (o *Orchestrator) registration(agentType models.AgentType) *registration {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.handlers[agentType]
}

// registeredTypes returns the registered agent types in a stable order.
func (o *Orchestrator) registeredTypes() []models.AgentType {
	o.mu.RLock()
	defer o.mu.RUnlock()
	types := make([]models.AgentType, 0, len(o.handlers))
	for t := range o.handlers {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Start polls until Stop is called or ctx is done. Each iteration runs to
// completion, including every dispatch, before the loop checks whether to
// exit. In-flight handlers are never cancelled.
func (o *Orchestrator) Start(ctx context.Context) error {
	if !o.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	// A Stop that arrived while no loop was sleeping leaves a stale wake.
	select {
	case <-o.wake:
	default:
	}
	slog.Info("orchestrator started", "dispatcher", o.dispatcherID,
		"poll_interval", o.pollInterval.String(), "batch_size", o.batchSize, "parallel_agents", o.parallelAgents)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for o.running.Load() {
		if ctx.Err() != nil {
			o.running.Store(false)
			break
		}

		_ = o.RunOnce(ctx)

		if !o.running.Load() {
			break
		}
		timer.Reset(o.pollInterval)
		select {
		case <-timer.C:
		case <-o.wake:
		case <-ctx.Done():
		}
	}

	slog.Info("orchestrator stopped", "dispatcher", o.dispatcherID)
	return nil
}

// Stop asks the loop to exit once the current iteration finishes.
func (o *Orchestrator) Stop() {
	o.running.Store(false)
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// Running reports whether Start's loop is active.
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// RunOnce performs one poll iteration over every registered agent type.
// Batch failures are logged and returned joined; they never abort the
// remaining types.
func (o *Orchestrator) RunOnce(ctx context.Context) error {
	types := o.registeredTypes()

	if !o.parallelAgents {
		var errs []error
		for _, t := range types {
			if err := o.pollAgent(ctx, t); err != nil {
				errs = append(errs, o.batchFailed(t, err))
			}
		}
		return errors.Join(errs...)
	}

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, t := range types {
		g.Go(func() error {
			if err := o.pollAgent(ctx, t); err != nil {
				mu.Lock()
				errs = append(errs, o.batchFailed(t, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (o *Orchestrator) batchFailed(t models.AgentType, err error) error {
	berr := &BatchLoopError{AgentType: t, Err: err}
	metrics.PollErrorsTotal.WithLabelValues(string(t)).Inc()
	slog.Error("agent batch failed", "agent_type", t, "error", err)
	return berr
}

// pollAgent claims one batch for agentType and dispatches it in order.
func (o *Orchestrator) pollAgent(ctx context.Context, agentType models.AgentType) error {
	reg := o.registration(agentType)
	if reg == nil {
		return fmt.Errorf("%w: %s", ErrNoHandler, agentType)
	}

	jobs, err := o.store.ClaimNextReady(ctx, agentType, o.batchSize)
	if err != nil {
		return &TransientJobError{Op: "claim", Err: err}
	}
	if len(jobs) == 0 {
		return nil
	}
	metrics.JobsClaimedTotal.WithLabelValues(string(agentType)).Add(float64(len(jobs)))

	// Claimed jobs must reach a recorded outcome even if ctx ends mid-batch.
	jobCtx := context.WithoutCancel(ctx)

	var errs []error
	for i, job := range jobs {
		ok, retryAt, err := o.limiter.Allow(jobCtx, reg.cfg)
		if err != nil {
			slog.Warn("rate limiter unavailable, dispatching anyway", "agent_type", agentType, "error", err)
			ok = true
		}
		if !ok {
			o.releaseRemaining(jobCtx, agentType, jobs[i:], retryAt)
			break
		}

		if _, err := o.Dispatch(jobCtx, job, reg.handler); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// releaseRemaining hands rate-limited jobs back to the store without
// consuming an attempt.
func (o *Orchestrator) releaseRemaining(ctx context.Context, agentType models.AgentType, jobs []*models.Job, retryAt time.Time) {
	for _, j := range jobs {
		if err := o.store.Release(ctx, j.MessageID, retryAt); err != nil {
			slog.Error("release rate-limited job failed", "agent_type", agentType, "job_id", j.MessageID, "error", err)
			continue
		}
		metrics.JobsDispatchedTotal.WithLabelValues(string(agentType), metrics.StatusReleased).Inc()
	}
	slog.Info("agent rate limit reached, jobs released",
		"agent_type", agentType, "released", len(jobs), "retry_at", retryAt)
}

// --- Events ---

// Emit appends an event to the store and publishes it on the bus.
func (o *Orchestrator) Emit(ctx context.Context, eventType string, payload any, source string, correlationID *string) (uuid.UUID, error) {
	var data json.RawMessage
	switch p := payload.(type) {
	case json.RawMessage:
		data = p
	case []byte:
		data = p
	default:
		b, err := json.Marshal(payload)
		if err != nil {
			return uuid.Nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
		}
		data = b
	}

	evt := &models.Event{
		ID:            uuid.New(),
		Type:          eventType,
		Payload:       data,
		Source:        source,
		CorrelationID: correlationID,
		CreatedAt:     o.now().UTC(),
	}
	if err := o.store.AppendEvent(ctx, evt); err != nil {
		return uuid.Nil, fmt.Errorf("append event: %w", err)
	}
	if err := o.bus.Publish(ctx, evt); err != nil {
		return evt.ID, fmt.Errorf("publish event: %w", err)
	}
	metrics.EventsEmittedTotal.WithLabelValues(eventType).Inc()
	return evt.ID, nil
}

// Subscribe attaches h to newly published events of eventType.
func (o *Orchestrator) Subscribe(eventType string, h events.Handler) (func(), error) {
	return o.bus.Subscribe(eventType, h)
}

// --- Logs ---

// Log appends an agent log line and mirrors it to the process logger. A
// failed append is reported through slog only; it never fails the caller.
func (o *Orchestrator) Log(ctx context.Context, agentType models.AgentType, level, message string, fields map[string]any, jobID *uuid.UUID) error {
	if !models.ValidLogLevel(level) {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, level)
	}

	attrs := []any{"agent_type", agentType}
	if jobID != nil {
		attrs = append(attrs, "job_id", *jobID)
	}
	for k, v := range fields {
		attrs = append(attrs, k, v)
	}
	slog.Log(ctx, slogLevel(level), message, attrs...)

	err := o.store.AppendLog(ctx, &models.LogEntry{
		AgentType: string(agentType),
		Level:     level,
		Message:   message,
		Context:   fields,
		JobID:     jobID,
		CreatedAt: o.now().UTC(),
	})
	if err != nil {
		slog.Error("append agent log failed", "agent_type", agentType, "error", err)
	}
	return nil
}

func slogLevel(level string) slog.Level {
	switch level {
	case models.LogLevelDebug:
		return slog.LevelDebug
	case models.LogLevelWarn:
		return slog.LevelWarn
	case models.LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// GetLogs lists agent logs, newest first.
func (o *Orchestrator) GetLogs(ctx context.Context, filter models.LogFilter) ([]*models.LogEntry, error) {
	return o.store.ListLogs(ctx, filter)
}

// --- Jobs ---

// CreateJob enqueues a job. Identical requests always produce distinct jobs.
func (o *Orchestrator) CreateJob(ctx context.Context, job models.NewJob) (uuid.UUID, error) {
	if !job.AgentType.Valid() {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrUnknownAgentType, job.AgentType)
	}
	return o.store.CreateJob(ctx, job)
}

func (o *Orchestrator) GetJobStatus(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return o.store.GetJob(ctx, id)
}

func (o *Orchestrator) CancelJob(ctx context.Context, id uuid.UUID) error {
	return o.store.Cancel(ctx, id)
}

var _ agent.Runtime = (*Orchestrator)(nil)
