package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/kiranshivaraju/lifeledger/internal/api/handler"
	"github.com/kiranshivaraju/lifeledger/internal/app"
	"github.com/kiranshivaraju/lifeledger/internal/store"
	"github.com/kiranshivaraju/lifeledger/pkg/models"
	"github.com/spf13/cobra"
)

// ErrUnhealthy is returned by the health command when any agent is degraded.
var ErrUnhealthy = errors.New("orchestrator unhealthy")

func (c *cli) newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(c.out)
	tw.SetStyle(table.StyleLight)
	return tw
}

func (c *cli) enqueueCmd() *cobra.Command {
	var (
		agentType, task, payload, runAt, backoff string
		maxAttempts                              int
		deps                                     []string
	)
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Create a job for an agent",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !json.Valid([]byte(payload)) {
				return fmt.Errorf("--payload must be valid JSON")
			}
			job := models.NewJob{
				AgentType:       models.AgentType(agentType),
				Task:            task,
				Payload:         json.RawMessage(payload),
				MaxAttempts:     maxAttempts,
				BackoffStrategy: backoff,
			}
			if runAt != "" {
				t, err := time.Parse(time.RFC3339, runAt)
				if err != nil {
					return fmt.Errorf("--run-at must be RFC3339: %w", err)
				}
				job.RunAt = t
			}
			for _, d := range deps {
				id, err := uuid.Parse(d)
				if err != nil {
					return fmt.Errorf("--depends-on %q: %w", d, err)
				}
				job.Dependencies = append(job.Dependencies, id)
			}

			return c.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				id, err := a.Orchestrator.CreateJob(ctx, job)
				if err != nil {
					return err
				}
				if c.jsonOutput() {
					return c.printJSON(map[string]uuid.UUID{"message_id": id})
				}
				fmt.Fprintln(c.out, id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&agentType, "agent", "", "agent type (EntryClassifier, CommitmentDetector)")
	cmd.Flags().StringVar(&task, "task", "", "task name")
	cmd.Flags().StringVar(&payload, "payload", "{}", "JSON payload")
	cmd.Flags().StringVar(&runAt, "run-at", "", "earliest run time (RFC3339)")
	cmd.Flags().StringVar(&backoff, "backoff", "", "backoff strategy (exponential, linear, fixed)")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "attempt budget (0 uses JOB_MAX_ATTEMPTS)")
	cmd.Flags().StringSliceVar(&deps, "depends-on", nil, "message ids that must complete first")
	_ = cmd.MarkFlagRequired("agent")
	_ = cmd.MarkFlagRequired("task")
	return cmd
}

func (c *cli) entryCmd() *cobra.Command {
	var (
		entryID, userID, content, date string
		tags                           []string
	)
	cmd := &cobra.Command{
		Use:   "entry",
		Short: "Enqueue a journal entry for classification and commitment detection",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if entryID == "" {
				entryID = uuid.NewString()
			}
			p := models.JournalEntryPayload{EntryID: entryID, UserID: userID, Content: content, Date: date}
			for _, code := range tags {
				p.Tags = append(p.Tags, models.EntryTag{AreaCode: code})
			}
			payload, err := json.Marshal(p)
			if err != nil {
				return err
			}

			return c.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				tw := c.newTable()
				tw.AppendHeader(table.Row{"Agent", "Message ID"})
				ids := make(map[models.AgentType]uuid.UUID, 2)
				for _, job := range []models.NewJob{
					{AgentType: models.AgentEntryClassifier, Task: handler.TaskClassifyEntry, Payload: payload},
					{AgentType: models.AgentCommitmentDetector, Task: handler.TaskDetectCommitments, Payload: payload},
				} {
					id, err := a.Orchestrator.CreateJob(ctx, job)
					if err != nil {
						return err
					}
					ids[job.AgentType] = id
					tw.AppendRow(table.Row{job.AgentType, id})
				}
				if c.jsonOutput() {
					return c.printJSON(map[string]any{"entry_id": entryID, "jobs": ids})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&entryID, "entry-id", "", "entry id (generated when empty)")
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&content, "content", "", "entry text")
	cmd.Flags().StringVar(&date, "date", "", "entry date (YYYY-MM-DD)")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "explicit area code (repeatable)")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("content")
	return cmd
}

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <message-id>",
		Short: "Show a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid message id: %w", err)
			}
			return c.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				j, err := a.Orchestrator.GetJobStatus(ctx, id)
				if err != nil {
					return err
				}
				if c.jsonOutput() {
					return c.printJSON(j)
				}
				lastErr := ""
				if j.LastError != nil {
					lastErr = *j.LastError
				}
				tw := c.newTable()
				tw.AppendRows([]table.Row{
					{"Message ID", j.MessageID},
					{"Agent", j.AgentType},
					{"Task", j.Task},
					{"Status", j.Status},
					{"Attempts", fmt.Sprintf("%d/%d", j.Attempts, j.MaxAttempts)},
					{"Run at", j.RunAt.Format(time.RFC3339)},
					{"Last error", lastErr},
				})
				tw.Render()
				return nil
			})
		},
	}
}

func (c *cli) cancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <message-id>",
		Short: "Cancel a pending, ready or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid message id: %w", err)
			}
			return c.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Orchestrator.CancelJob(ctx, id); err != nil {
					return err
				}
				fmt.Fprintln(c.out, "cancelled", id)
				return nil
			})
		},
	}
}

func (c *cli) logsCmd() *cobra.Command {
	var f models.LogFilter
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "List agent logs, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if f.Level != "" && !models.ValidLogLevel(f.Level) {
				return fmt.Errorf("--level must be one of debug, info, warn, error")
			}
			return c.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				logs, err := a.Orchestrator.GetLogs(ctx, f)
				if err != nil {
					return err
				}
				if c.jsonOutput() {
					return c.printJSON(logs)
				}
				tw := c.newTable()
				tw.AppendHeader(table.Row{"Time", "Agent", "Level", "Message", "Job"})
				for _, l := range logs {
					job := ""
					if l.JobID != nil {
						job = l.JobID.String()
					}
					tw.AppendRow(table.Row{l.CreatedAt.Format(time.RFC3339), l.AgentType, l.Level, l.Message, job})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.AgentType, "agent", "", "agent type filter")
	cmd.Flags().StringVar(&f.Level, "level", "", "level filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "maximum rows")
	return cmd
}

func (c *cli) eventsCmd() *cobra.Command {
	var (
		eventType string
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List stored events of one type, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				evts, err := a.Store.ListEvents(ctx, eventType, limit)
				if err != nil {
					return err
				}
				if c.jsonOutput() {
					return c.printJSON(evts)
				}
				tw := c.newTable()
				tw.AppendHeader(table.Row{"Time", "ID", "Source", "Payload"})
				for _, e := range evts {
					tw.AppendRow(table.Row{e.CreatedAt.Format(time.RFC3339), e.ID, e.Source, string(e.Payload)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&eventType, "type", models.EventCommitmentDetected, "event type")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum rows")
	return cmd
}

func (c *cli) healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Report pending jobs per agent",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				h := a.Orchestrator.HealthCheck(ctx)
				if c.jsonOutput() {
					if err := c.printJSON(h); err != nil {
						return err
					}
				} else {
					tw := c.newTable()
					tw.AppendHeader(table.Row{"Agent", "Registered", "Pending", "Error"})
					for _, at := range models.AgentTypes {
						ah, ok := h.Agents[at]
						if !ok {
							continue
						}
						tw.AppendRow(table.Row{at, ah.Registered, ah.JobsPending, ah.Error})
					}
					tw.Render()
				}
				if !h.Healthy {
					return ErrUnhealthy
				}
				return nil
			})
		},
	}
}

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.Database.URL == "" {
				return fmt.Errorf("DATABASE_URL is required for migrate")
			}
			if err := store.RunMigrations(cfg.Database.URL); err != nil {
				return err
			}
			fmt.Fprintln(c.out, "migrations applied")
			return nil
		},
	}
}

func (c *cli) runOnceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run-once",
		Short: "Run a single poll iteration and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				before := a.Orchestrator.HealthCheck(ctx)
				err := a.Orchestrator.RunOnce(ctx)
				after := a.Orchestrator.HealthCheck(ctx)

				if err != nil {
					return err
				}
				if c.jsonOutput() {
					return c.printJSON(after)
				}
				tw := c.newTable()
				tw.AppendHeader(table.Row{"Agent", "Pending before", "Pending after"})
				for _, at := range models.AgentTypes {
					tw.AppendRow(table.Row{at, before.Agents[at].JobsPending, after.Agents[at].JobsPending})
				}
				tw.Render()
				return nil
			})
		},
	}
}
