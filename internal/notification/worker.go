package notification

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	notificationDatamodel "github.com/procurex/requisition-engine/internal/core/datamodel/notification"
)

// DeliveryWorkerConfig bounds the out-of-band email retry loop.
type DeliveryWorkerConfig struct {
	MaxWorkers   int
	BatchSize    int
	MaxRetries   int
	PollInterval time.Duration
}

// DeliveryWorker drains pending and failed email jobs with a bounded retry
// count. It runs out-of-band: the workflow transition that created a job has
// long since committed by the time delivery is attempted.
type DeliveryWorker struct {
	repo   RepositoryAPI
	users  UserDirectoryAPI
	sender EmailSenderAPI
	logger *slog.Logger
	config DeliveryWorkerConfig
}

func NewDeliveryWorker(repo RepositoryAPI, users UserDirectoryAPI, sender EmailSenderAPI, logger *slog.Logger, config DeliveryWorkerConfig) *DeliveryWorker {
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = 4
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 50
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 5
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 30 * time.Second
	}
	return &DeliveryWorker{
		repo:   repo,
		users:  users,
		sender: sender,
		logger: logger,
		config: config,
	}
}

// Run polls for due jobs until the context is canceled.
func (w *DeliveryWorker) Run(ctx context.Context) {
	w.logger.Info("notification delivery worker started",
		"max_workers", w.config.MaxWorkers,
		"poll_interval", w.config.PollInterval,
		"max_retries", w.config.MaxRetries)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		w.drainOnce(ctx)

		select {
		case <-ctx.Done():
			w.logger.Info("notification delivery worker stopped")
			return
		case <-ticker.C:
		}
	}
}

// drainOnce processes one batch of due jobs with bounded concurrency.
func (w *DeliveryWorker) drainOnce(ctx context.Context) {
	jobs, err := w.repo.DueJobs(w.config.BatchSize, w.config.MaxRetries)
	if err != nil {
		w.logger.Error("failed to fetch delivery jobs", "error", err)
		return
	}
	if len(jobs) == 0 {
		return
	}

	sem := make(chan struct{}, w.config.MaxWorkers)
	var wg sync.WaitGroup
	for _, job := range jobs {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(job *notificationDatamodel.DeliveryJob) {
			defer wg.Done()
			defer func() { <-sem }()
			w.process(ctx, job)
		}(job)
	}
	wg.Wait()
}

func (w *DeliveryWorker) process(ctx context.Context, job *notificationDatamodel.DeliveryJob) {
	row, err := w.repo.GetByID(job.NotificationID)
	if err != nil {
		w.fail(job, fmt.Sprintf("notification lookup failed: %v", err))
		return
	}

	email, err := w.users.EmailFor(row.UserID)
	if err != nil || email == "" {
		w.fail(job, "recipient has no email address")
		return
	}

	subject := fmt.Sprintf("Requisition update (%s)", row.ToStatus)
	if err := w.sender.Send(ctx, email, subject, row.Message); err != nil {
		w.logger.Warn("email delivery attempt failed",
			"job_id", job.ID,
			"notification_id", row.ID,
			"attempt", job.Attempts+1,
			"error", err)
		w.fail(job, err.Error())
		return
	}

	if err := w.repo.MarkJobSent(job.ID); err != nil {
		w.logger.Error("failed to mark delivery job sent", "job_id", job.ID, "error", err)
		return
	}
	w.logger.Info("notification email delivered",
		"job_id", job.ID,
		"notification_id", row.ID)
}

func (w *DeliveryWorker) fail(job *notificationDatamodel.DeliveryJob, reason string) {
	if err := w.repo.MarkJobFailed(job.ID, job.Attempts+1, reason); err != nil {
		w.logger.Error("failed to mark delivery job failed", "job_id", job.ID, "error", err)
	}
}
