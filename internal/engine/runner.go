package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"heirloom/internal/account"
	"heirloom/internal/audit"
	"heirloom/internal/engine/metrics"
	"heirloom/internal/notify"
	"heirloom/internal/platform/config"
	"heirloom/pkg/requestcontext"
)

// runLockKey guards against overlapping batch runs across schedulers.
const runLockKey = "heirloom:engine:run-lock"

// Locker is the best-effort run lease. Conditional store updates remain the
// correctness backstop when no locker is configured or the lease races.
type Locker interface {
	AcquireRunLock(ctx context.Context, key string, ttl time.Duration) (release func(), acquired bool, err error)
}

// RunSummary reports one batch run. The JSON keys are the contract external
// schedulers consume.
type RunSummary struct {
	Success        bool      `json:"success"`
	Message        string    `json:"message"`
	TriggeredCount int       `json:"triggeredCount"`
	AwaitingCount  int       `json:"awaitingCount"`
	ResumedCount   int       `json:"resumedCount"`
	NotifiedCount  int       `json:"notifiedCount"`
	FailedUsers    int       `json:"failedUsers"`
	TotalUsers     int       `json:"totalUsers"`
	Timestamp      time.Time `json:"timestamp"`
}

// Runner sweeps all candidate users through the orchestrator. Users are
// processed sequentially with a per-user timeout; one slow or failing user
// is skipped and picked up again on the next run.
type Runner struct {
	accounts     account.Store
	orchestrator *Orchestrator
	sink         *notify.Sink
	locker       Locker
	metrics      *metrics.Metrics
	cfg          config.RunConfig
	logger       *slog.Logger
	tracer       trace.Tracer
}

type RunnerOption func(*Runner)

// WithLocker wires the redis run lease. Optional.
func WithLocker(locker Locker) RunnerOption {
	return func(r *Runner) { r.locker = locker }
}

func WithMetrics(m *metrics.Metrics) RunnerOption {
	return func(r *Runner) { r.metrics = m }
}

func WithRunnerLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = logger }
}

func NewRunner(accounts account.Store, orchestrator *Orchestrator, sink *notify.Sink, cfg config.RunConfig, opts ...RunnerOption) *Runner {
	r := &Runner{
		accounts:     accounts,
		orchestrator: orchestrator,
		sink:         sink,
		cfg:          cfg,
		logger:       slog.Default(),
		tracer:       otel.Tracer("heirloom/engine"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunOnce executes a single batch run: resume stranded triggers, deliver
// notifications owed from earlier runs, then evaluate every candidate against
// one pinned clock.
func (r *Runner) RunOnce(ctx context.Context) (*RunSummary, error) {
	ctx, span := r.tracer.Start(ctx, "engine.RunOnce")
	defer span.End()

	started := time.Now()
	now := requestcontext.Now(ctx)
	// Pin one clock for the whole run so every user is evaluated against
	// the same instant.
	ctx = requestcontext.WithTime(ctx, now)

	if r.locker != nil {
		release, acquired, err := r.locker.AcquireRunLock(ctx, runLockKey, r.cfg.LockTTL)
		if err != nil {
			r.logger.WarnContext(ctx, "run lock unavailable, proceeding without lease", "error", err)
		} else if !acquired {
			r.metrics.IncrementRun("skipped")
			return &RunSummary{
				Success:   true,
				Message:   "another run holds the lease",
				Timestamp: now,
			}, nil
		} else {
			defer release()
		}
	}

	summary := &RunSummary{Timestamp: now}

	resumed, err := r.orchestrator.ResumePending(ctx)
	if err != nil {
		r.logger.ErrorContext(ctx, "resume scan failed", "error", err)
	}
	summary.ResumedCount = resumed

	notified, err := r.orchestrator.DeliverScheduledNotifications(ctx)
	if err != nil {
		r.logger.ErrorContext(ctx, "scheduled notification sweep failed", "error", err)
	}
	summary.NotifiedCount = notified

	users, err := r.accounts.ListCandidates(ctx)
	if err != nil {
		r.metrics.IncrementRun("failed")
		return nil, fmt.Errorf("list candidate users: %w", err)
	}
	summary.TotalUsers = len(users)

	for _, user := range users {
		outcome, err := r.processWithTimeout(ctx, user)
		if err != nil {
			// Retryable by construction: nothing before the flip persists,
			// and anything after it is found by the next resume scan.
			summary.FailedUsers++
			r.logger.ErrorContext(ctx, "user processing failed, continuing",
				"user_id", user.ID,
				"error", err,
			)
			continue
		}
		summary.TriggeredCount += outcome.Triggered
		summary.AwaitingCount += outcome.Awaiting
		r.recordVaultMetrics(outcome)
	}

	summary.Success = summary.FailedUsers == 0
	summary.Message = fmt.Sprintf("evaluated %d users, triggered %d plans", summary.TotalUsers, summary.TriggeredCount)
	if summary.FailedUsers > 0 {
		summary.Message = fmt.Sprintf("%s, %d users failed", summary.Message, summary.FailedUsers)
	}

	r.metrics.AddUsersEvaluated(summary.TotalUsers)
	r.metrics.AddPlansTriggered(summary.TriggeredCount)
	r.metrics.AddTriggersAwaiting(summary.AwaitingCount)
	r.metrics.ObserveRunDuration(time.Since(started))
	if summary.Success {
		r.metrics.IncrementRun("success")
	} else {
		r.metrics.IncrementRun("partial")
	}

	r.sink.Record(ctx, audit.Event{
		Timestamp: now,
		Resource:  "engine/run",
		Action:    audit.ActionRunCompleted,
		Risk:      audit.ActionRunCompleted.Risk(),
		Detail:    summary.Message,
		RequestID: requestcontext.RequestID(ctx),
	})
	r.logger.InfoContext(ctx, "batch run completed",
		"total_users", summary.TotalUsers,
		"triggered", summary.TriggeredCount,
		"awaiting", summary.AwaitingCount,
		"resumed", summary.ResumedCount,
		"notified", summary.NotifiedCount,
		"failed_users", summary.FailedUsers,
		"duration", time.Since(started),
	)
	return summary, nil
}

// Run drives RunOnce on the configured interval until ctx is cancelled.
// A zero interval disables the internal ticker (external scheduler mode).
func (r *Runner) Run(ctx context.Context) error {
	if r.cfg.Interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				r.logger.ErrorContext(ctx, "scheduled run failed", "error", err)
			}
		}
	}
}

func (r *Runner) processWithTimeout(ctx context.Context, user *account.User) (*UserOutcome, error) {
	if r.cfg.UserTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.UserTimeout)
		defer cancel()
	}
	outcome, err := r.orchestrator.ProcessUser(ctx, user)
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("user %s timed out after %s: %w", user.ID, r.cfg.UserTimeout, err)
	}
	return outcome, err
}

func (r *Runner) recordVaultMetrics(outcome *UserOutcome) {
	for _, result := range outcome.VaultResults {
		outcomeLabel := "success"
		switch {
		case !result.Success:
			outcomeLabel = "failed"
		case result.Skipped:
			outcomeLabel = "skipped"
		}
		r.metrics.IncrementVaultAction(result.Category.String(), outcomeLabel)
	}
}
