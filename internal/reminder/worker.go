// Package reminder turns approaching project deadlines into outbox events.
// Delivery (email, push) is owned by a downstream consumer.
package reminder

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/studysync-app/studysync/internal/model"
	"github.com/studysync-app/studysync/internal/outbox"
	"github.com/studysync-app/studysync/internal/storage"
)

const EventDeadlineDue = "schedule.deadline.due.v1"

type Worker struct {
	pool     *storage.Pool
	projects *storage.ProjectRepository
	groups   *storage.GroupRepository
	outbox   *outbox.Repository
	logger   *slog.Logger
	interval time.Duration
	lead     time.Duration
	batch    int
}

type WorkerConfig struct {
	Interval time.Duration // poll cadence
	Lead     time.Duration // how far ahead of the deadline to fire
	Batch    int
}

func NewWorker(pool *storage.Pool, projects *storage.ProjectRepository, groups *storage.GroupRepository, outboxRepo *outbox.Repository, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Lead <= 0 {
		cfg.Lead = 24 * time.Hour
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 50
	}
	return &Worker{
		pool:     pool,
		projects: projects,
		groups:   groups,
		outbox:   outboxRepo,
		logger:   logger,
		interval: cfg.Interval,
		lead:     cfg.Lead,
		batch:    cfg.Batch,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.processBatch(ctx); err != nil {
				w.logger.Error("deadline reminder batch failed", "err", err)
			}
		}
	}
}

func (w *Worker) processBatch(ctx context.Context) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	due, err := w.projects.DueForReminder(ctx, tx, time.Now(), w.lead, w.batch)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return tx.Commit(ctx)
	}

	for _, project := range due {
		recipients, err := w.recipients(ctx, project)
		if err != nil {
			return err
		}

		payload, err := json.Marshal(map[string]any{
			"project_id":   project.ID,
			"project_name": project.Name,
			"deadline":     project.Deadline.Format(time.RFC3339),
			"recipients":   recipients,
		})
		if err != nil {
			return err
		}

		if err := w.outbox.Insert(ctx, tx, outbox.Event{
			AggregateType: "project",
			AggregateID:   project.ID,
			EventType:     EventDeadlineDue,
			Payload:       payload,
		}); err != nil {
			return err
		}
		if err := w.projects.MarkDeadlineNotified(ctx, tx, project.ID); err != nil {
			return err
		}
		w.logger.Info("deadline reminder enqueued",
			"project_id", project.ID, "deadline", project.Deadline, "recipients", len(recipients))
	}

	return tx.Commit(ctx)
}

// recipients resolves who to notify: explicit participants, falling back to
// the whole group when the project has none.
func (w *Worker) recipients(ctx context.Context, project model.Project) ([]string, error) {
	emails, err := w.projects.ParticipantEmails(ctx, project.ID)
	if err != nil {
		return nil, err
	}
	if len(emails) > 0 {
		return emails, nil
	}
	return w.groups.MemberEmails(ctx, project.GroupID)
}
