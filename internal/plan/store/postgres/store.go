package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"heirloom/internal/plan"
	"heirloom/pkg/domain"
	"heirloom/pkg/platform/sentinel"
	txcontext "heirloom/pkg/platform/tx"
)

// Store implements plan.Store on PostgreSQL.
//
// MarkTriggered relies on a conditional UPDATE (WHERE NOT is_triggered) and
// CreatePendingTrigger on a partial unique index over pending triggers, so
// overlapping batch runs resolve at the database without advisory locks.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) querier(ctx context.Context) dbQuerier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const planColumns = `id, user_id, plan_type, instructions, is_active, is_triggered, triggered_at`

func (s *Store) Get(ctx context.Context, planID domain.PlanID) (*plan.InheritancePlan, error) {
	row := s.querier(ctx).QueryRowContext(ctx,
		`SELECT `+planColumns+` FROM inheritance_plans WHERE id = $1`,
		uuid.UUID(planID),
	)
	p, err := scanPlan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("plan %s: %w", planID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("get plan: %w", err)
	}
	return p, nil
}

func (s *Store) ListEligible(ctx context.Context, userID domain.UserID) ([]*plan.InheritancePlan, error) {
	rows, err := s.querier(ctx).QueryContext(ctx,
		`SELECT `+planColumns+` FROM inheritance_plans
		 WHERE user_id = $1 AND is_active AND NOT is_triggered
		 ORDER BY id`,
		uuid.UUID(userID),
	)
	if err != nil {
		return nil, fmt.Errorf("list eligible plans: %w", err)
	}
	defer rows.Close()

	var plans []*plan.InheritancePlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate plans: %w", err)
	}
	return plans, nil
}

func (s *Store) MarkTriggered(ctx context.Context, planID domain.PlanID, at time.Time) error {
	res, err := s.querier(ctx).ExecContext(ctx, `
		UPDATE inheritance_plans
		SET is_triggered = true, triggered_at = $2
		WHERE id = $1 AND NOT is_triggered
	`, uuid.UUID(planID), at)
	if err != nil {
		return fmt.Errorf("mark plan triggered: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark plan triggered rows affected: %w", err)
	}
	if affected == 0 {
		// Either absent or already flipped; distinguish for callers.
		var exists bool
		if err := s.querier(ctx).QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM inheritance_plans WHERE id = $1)`,
			uuid.UUID(planID),
		).Scan(&exists); err != nil {
			return fmt.Errorf("check plan existence: %w", err)
		}
		if !exists {
			return fmt.Errorf("plan %s: %w", planID, sentinel.ErrNotFound)
		}
		return fmt.Errorf("plan %s: %w", planID, sentinel.ErrAlreadyTriggered)
	}
	return nil
}

func (s *Store) Save(ctx context.Context, p *plan.InheritancePlan) error {
	_, err := s.querier(ctx).ExecContext(ctx, `
		INSERT INTO inheritance_plans (id, user_id, plan_type, instructions, is_active, is_triggered, triggered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			plan_type = EXCLUDED.plan_type,
			instructions = EXCLUDED.instructions,
			is_active = EXCLUDED.is_active
	`,
		uuid.UUID(p.ID),
		uuid.UUID(p.UserID),
		p.PlanType.String(),
		p.Instructions,
		p.IsActive,
		p.IsTriggered,
		p.TriggeredAt,
	)
	if err != nil {
		return fmt.Errorf("save plan: %w", err)
	}
	return nil
}

const triggerColumns = `id, plan_id, user_id, reason, status, requires_verification, created_at, completed_at, error`

// CreatePendingTrigger inserts a pending trigger unless one already exists
// for the plan (enforced by the partial unique index on pending status).
func (s *Store) CreatePendingTrigger(ctx context.Context, t *plan.InheritanceTrigger) (bool, *plan.InheritanceTrigger, error) {
	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	res, err := s.querier(ctx).ExecContext(ctx, `
		INSERT INTO inheritance_triggers (id, plan_id, user_id, reason, status, requires_verification, created_at)
		VALUES ($1, $2, $3, $4, 'pending', $5, $6)
		ON CONFLICT (plan_id) WHERE status = 'pending' DO NOTHING
	`,
		uuid.UUID(t.ID),
		uuid.UUID(t.PlanID),
		uuid.UUID(t.UserID),
		t.Reason,
		t.RequiresVerification,
		createdAt,
	)
	if err != nil {
		return false, nil, fmt.Errorf("create pending trigger: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, nil, fmt.Errorf("create pending trigger rows affected: %w", err)
	}

	row := s.querier(ctx).QueryRowContext(ctx,
		`SELECT `+triggerColumns+` FROM inheritance_triggers
		 WHERE plan_id = $1 AND status = 'pending'`,
		uuid.UUID(t.PlanID),
	)
	existing, err := scanTrigger(row)
	if err != nil {
		return false, nil, fmt.Errorf("fetch pending trigger: %w", err)
	}
	return affected > 0, existing, nil
}

func (s *Store) CompleteTrigger(ctx context.Context, triggerID domain.TriggerID, at time.Time) error {
	res, err := s.querier(ctx).ExecContext(ctx, `
		UPDATE inheritance_triggers
		SET status = 'completed', completed_at = $2, error = ''
		WHERE id = $1 AND status <> 'completed'
	`, uuid.UUID(triggerID), at)
	if err != nil {
		return fmt.Errorf("complete trigger: %w", err)
	}
	// Zero rows is fine: completion is idempotent.
	_, _ = res.RowsAffected()
	return nil
}

func (s *Store) FailTrigger(ctx context.Context, triggerID domain.TriggerID, reason string) error {
	res, err := s.querier(ctx).ExecContext(ctx, `
		UPDATE inheritance_triggers
		SET status = 'failed', error = $2
		WHERE id = $1 AND status = 'pending'
	`, uuid.UUID(triggerID), reason)
	if err != nil {
		return fmt.Errorf("fail trigger: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("fail trigger rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("trigger %s not pending: %w", triggerID, sentinel.ErrInvalidState)
	}
	return nil
}

func (s *Store) ListPendingTriggers(ctx context.Context) ([]*plan.InheritanceTrigger, error) {
	rows, err := s.querier(ctx).QueryContext(ctx,
		`SELECT `+triggerColumns+` FROM inheritance_triggers
		 WHERE status = 'pending'
		 ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending triggers: %w", err)
	}
	defer rows.Close()
	return collectTriggers(rows)
}

func (s *Store) ListTriggersByPlan(ctx context.Context, planID domain.PlanID) ([]*plan.InheritanceTrigger, error) {
	rows, err := s.querier(ctx).QueryContext(ctx,
		`SELECT `+triggerColumns+` FROM inheritance_triggers
		 WHERE plan_id = $1
		 ORDER BY created_at`,
		uuid.UUID(planID),
	)
	if err != nil {
		return nil, fmt.Errorf("list triggers by plan: %w", err)
	}
	defer rows.Close()
	return collectTriggers(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlan(row rowScanner) (*plan.InheritancePlan, error) {
	var (
		p        plan.InheritancePlan
		pid, uid uuid.UUID
		planType string
	)
	err := row.Scan(&pid, &uid, &planType, &p.Instructions, &p.IsActive, &p.IsTriggered, &p.TriggeredAt)
	if err != nil {
		return nil, err
	}
	p.ID = domain.PlanID(pid)
	p.UserID = domain.UserID(uid)
	p.PlanType = domain.PlanType(planType)
	return &p, nil
}

func scanTrigger(row rowScanner) (*plan.InheritanceTrigger, error) {
	var (
		t             plan.InheritanceTrigger
		tid, pid, uid uuid.UUID
		status        string
	)
	err := row.Scan(&tid, &pid, &uid, &t.Reason, &status, &t.RequiresVerification, &t.CreatedAt, &t.CompletedAt, &t.Error)
	if err != nil {
		return nil, err
	}
	t.ID = domain.TriggerID(tid)
	t.PlanID = domain.PlanID(pid)
	t.UserID = domain.UserID(uid)
	t.Status = plan.TriggerStatus(status)
	return &t, nil
}

func collectTriggers(rows *sql.Rows) ([]*plan.InheritanceTrigger, error) {
	var triggers []*plan.InheritanceTrigger
	for rows.Next() {
		t, err := scanTrigger(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trigger: %w", err)
		}
		triggers = append(triggers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate triggers: %w", err)
	}
	return triggers, nil
}
