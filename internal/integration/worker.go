package integration

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/cargolink/cargolink-backend/internal/notifications"
	"github.com/cargolink/cargolink-backend/pkg/config"
	"github.com/cargolink/cargolink-backend/pkg/db"
	"github.com/cargolink/cargolink-backend/pkg/db/models"
	"github.com/cargolink/cargolink-backend/pkg/instance"
	"github.com/cargolink/cargolink-backend/pkg/logger"
	"github.com/cargolink/cargolink-backend/pkg/metrics"
)

// WorkerParams configure the reconcile worker.
type WorkerParams struct {
	Tx            db.TxRunner
	Repo          Repository
	Registry      *Registry
	Lock          CycleLock
	Notifications notifications.Service
	Metrics       *metrics.ReconcileMetrics
	Logger        *logger.Logger
	Config        config.ReconcileConfig
	InstanceID    string
	Now           func() time.Time
}

// Worker drives integration events to a terminal state: poll for due rows,
// claim, invoke the provider handler, record the outcome.
type Worker struct {
	tx            db.TxRunner
	repo          Repository
	registry      *Registry
	lock          CycleLock
	notifications notifications.Service
	metrics       *metrics.ReconcileMetrics
	logg          *logger.Logger
	cfg           config.ReconcileConfig
	instanceID    string
	now           func() time.Time
}

// NewWorker builds a reconcile worker.
func NewWorker(params WorkerParams) (*Worker, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("integration repository required")
	}
	if params.Registry == nil {
		return nil, fmt.Errorf("handler registry required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("cycle lock required")
	}
	if params.Notifications == nil {
		return nil, fmt.Errorf("notification service required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}

	cfg := params.Config
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = 15 * time.Second
	}

	instanceID := params.InstanceID
	if instanceID == "" {
		instanceID = instance.GetID()
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}

	return &Worker{
		tx:            params.Tx,
		repo:          params.Repo,
		registry:      params.Registry,
		lock:          params.Lock,
		notifications: params.Notifications,
		metrics:       params.Metrics,
		logg:          params.Logger,
		cfg:           cfg,
		instanceID:    instanceID,
		now:           now,
	}, nil
}

// Run polls until the context is canceled.
func (w *Worker) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := w.RunCycle(ctx); err != nil {
		w.logg.Error(ctx, "reconcile cycle failed", err)
	}
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logg.Info(ctx, "reconcile worker context canceled")
			return ctx.Err()
		case <-ticker.C:
			if err := w.RunCycle(ctx); err != nil {
				w.logg.Error(ctx, "reconcile cycle failed", err)
			}
		}
	}
}

// RunCycle executes one polling cycle under the Redis cycle lock.
func (w *Worker) RunCycle(ctx context.Context) error {
	start := w.now()

	locked, err := w.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		w.logg.Info(ctx, "another reconcile instance holds the lock; skipping cycle")
		w.observeCycle("skipped", w.now().Sub(start))
		return nil
	}
	defer func() {
		if relErr := w.lock.Release(ctx); relErr != nil {
			w.logg.Error(ctx, "failed to release reconcile lock", relErr)
		}
	}()

	events, err := w.repo.ListDue(ctx, w.now().UTC(), w.cfg.BatchSize)
	if err != nil {
		w.observeCycle("error", w.now().Sub(start))
		return fmt.Errorf("listing due events: %w", err)
	}

	for i := range events {
		event := &events[i]
		claimed, err := w.repo.Claim(ctx, event, w.instanceID, w.now().UTC())
		if err != nil {
			w.logg.Error(ctx, "claiming integration event failed", err)
			continue
		}
		if !claimed {
			continue
		}
		w.processEvent(ctx, event)
	}

	w.observeCycle("ok", w.now().Sub(start))
	return nil
}

func (w *Worker) processEvent(ctx context.Context, event *models.IntegrationEvent) {
	eventCtx := w.logg.WithFields(ctx, map[string]any{
		"event_id":    event.ID.String(),
		"provider":    event.Provider,
		"retry_count": event.RetryCount,
	})

	handler, ok := w.registry.Get(event.Provider)
	if !ok {
		w.logg.Error(eventCtx, "no handler registered for provider", fmt.Errorf("provider %q", event.Provider))
		w.exhaust(eventCtx, event, fmt.Sprintf("no handler registered for provider %q", event.Provider))
		return
	}

	handlerCtx, cancel := context.WithTimeout(eventCtx, w.cfg.HandlerTimeout)
	response, err := handler.Handle(handlerCtx, event)
	cancel()

	if err == nil {
		if markErr := w.repo.MarkSucceeded(ctx, event, response); markErr != nil {
			w.logg.Error(eventCtx, "marking event succeeded failed", markErr)
			return
		}
		w.incAttempt(event.Provider, "succeeded")
		w.logg.Info(eventCtx, "integration event reconciled")
		return
	}

	w.logg.Error(eventCtx, "integration handler failed", err)

	if event.RetryCount+1 >= w.cfg.MaxRetries {
		w.exhaust(eventCtx, event, err.Error())
		return
	}

	// Exponential backoff: the Nth failure waits 2^N minutes before the
	// next attempt.
	delay := time.Duration(1<<uint(event.RetryCount+1)) * time.Minute
	nextRetryAt := w.now().UTC().Add(delay)
	if markErr := w.repo.MarkRetrying(ctx, event, err.Error(), nextRetryAt); markErr != nil {
		w.logg.Error(eventCtx, "marking event retrying failed", markErr)
		return
	}
	w.incAttempt(event.Provider, "retrying")
}

// exhaust moves the event to terminal failure and records the operator
// escalation in the same transaction, so the notification exists exactly when
// the failure does.
func (w *Worker) exhaust(ctx context.Context, event *models.IntegrationEvent, lastError string) {
	err := w.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := w.repo.WithTx(tx).MarkFailed(ctx, event, lastError); err != nil {
			return err
		}
		return w.notifications.NotifyIntegrationExhausted(ctx, tx, event)
	})
	if err != nil {
		w.logg.Error(ctx, "marking event failed", err)
		return
	}
	w.incAttempt(event.Provider, "failed")
	w.incExhausted(event.Provider)
	w.logg.Warn(ctx, "integration event exhausted retries; operator notified")
}

func (w *Worker) observeCycle(outcome string, duration time.Duration) {
	if w.metrics == nil {
		return
	}
	w.metrics.ObserveCycle(outcome, duration)
}

func (w *Worker) incAttempt(provider, outcome string) {
	if w.metrics == nil {
		return
	}
	w.metrics.IncAttempt(provider, outcome)
}

func (w *Worker) incExhausted(provider string) {
	if w.metrics == nil {
		return
	}
	w.metrics.IncExhausted(provider)
}
