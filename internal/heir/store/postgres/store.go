package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"heirloom/internal/heir"
	"heirloom/pkg/domain"
	"heirloom/pkg/platform/sentinel"
	txcontext "heirloom/pkg/platform/tx"
)

// Store implements heir.Store on PostgreSQL.
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

const heirColumns = `id, plan_id, email, name, access_level, notify_on_activation,
	notification_delay_days, notified_at, notification_status, is_active`

func (s *Store) ListActiveByPlan(ctx context.Context, planID domain.PlanID) ([]*heir.Heir, error) {
	rows, err := s.querier(ctx).QueryContext(ctx,
		`SELECT `+heirColumns+` FROM heirs WHERE plan_id = $1 AND is_active ORDER BY id`,
		uuid.UUID(planID),
	)
	if err != nil {
		return nil, fmt.Errorf("list heirs by plan: %w", err)
	}
	defer rows.Close()

	var heirs []*heir.Heir
	for rows.Next() {
		h, err := scanHeir(rows)
		if err != nil {
			return nil, fmt.Errorf("scan heir: %w", err)
		}
		heirs = append(heirs, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate heirs: %w", err)
	}
	return heirs, nil
}

func (s *Store) ListScheduled(ctx context.Context) ([]*heir.Heir, error) {
	rows, err := s.querier(ctx).QueryContext(ctx,
		`SELECT `+heirColumns+` FROM heirs
		 WHERE is_active AND notification_status = 'scheduled' ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list scheduled heirs: %w", err)
	}
	defer rows.Close()

	var heirs []*heir.Heir
	for rows.Next() {
		h, err := scanHeir(rows)
		if err != nil {
			return nil, fmt.Errorf("scan heir: %w", err)
		}
		heirs = append(heirs, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate heirs: %w", err)
	}
	return heirs, nil
}

const accessColumns =`id, heir_id, vault_id, vault_item_id, can_view, can_export, can_edit, access_status, granted_at`

func (s *Store) ListPendingAccessByHeir(ctx context.Context, heirID domain.HeirID) ([]*heir.HeirVaultAccess, error) {
	rows, err := s.querier(ctx).QueryContext(ctx,
		`SELECT `+accessColumns+` FROM heir_vault_access
		 WHERE heir_id = $1 AND access_status = 'pending' ORDER BY id`,
		uuid.UUID(heirID),
	)
	if err != nil {
		return nil, fmt.Errorf("list pending access by heir: %w", err)
	}
	defer rows.Close()
	return collectAccess(rows)
}

func (s *Store) ListPendingAccessByVault(ctx context.Context, vaultID domain.VaultID) ([]*heir.HeirVaultAccess, error) {
	rows, err := s.querier(ctx).QueryContext(ctx,
		`SELECT `+accessColumns+` FROM heir_vault_access
		 WHERE vault_id = $1 AND access_status = 'pending' ORDER BY id`,
		uuid.UUID(vaultID),
	)
	if err != nil {
		return nil, fmt.Errorf("list pending access by vault: %w", err)
	}
	defer rows.Close()
	return collectAccess(rows)
}

// GrantAccess is conditional on pending status so re-dispatch is a no-op.
func (s *Store) GrantAccess(ctx context.Context, accessID domain.AccessID, at time.Time) error {
	_, err := s.querier(ctx).ExecContext(ctx, `
		UPDATE heir_vault_access
		SET access_status = 'granted', granted_at = $2
		WHERE id = $1 AND access_status = 'pending'
	`, uuid.UUID(accessID), at)
	if err != nil {
		return fmt.Errorf("grant access: %w", err)
	}
	return nil
}

func (s *Store) SetNotification(ctx context.Context, heirID domain.HeirID, status heir.NotificationStatus, notifiedAt *time.Time) error {
	res, err := s.querier(ctx).ExecContext(ctx, `
		UPDATE heirs
		SET notification_status = $2,
			notified_at = COALESCE($3, notified_at)
		WHERE id = $1
	`, uuid.UUID(heirID), string(status), notifiedAt)
	if err != nil {
		return fmt.Errorf("set heir notification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set heir notification rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("heir %s: %w", heirID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *Store) SaveHeir(ctx context.Context, h *heir.Heir) error {
	_, err := s.querier(ctx).ExecContext(ctx, `
		INSERT INTO heirs (id, plan_id, email, name, access_level, notify_on_activation,
			notification_delay_days, notified_at, notification_status, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			name = EXCLUDED.name,
			access_level = EXCLUDED.access_level,
			notify_on_activation = EXCLUDED.notify_on_activation,
			notification_delay_days = EXCLUDED.notification_delay_days,
			is_active = EXCLUDED.is_active
	`,
		uuid.UUID(h.ID),
		uuid.UUID(h.PlanID),
		h.Email,
		h.Name,
		string(h.AccessLevel),
		h.NotifyOnActivation,
		h.NotificationDelayDays,
		h.NotifiedAt,
		string(h.NotificationStatus),
		h.IsActive,
	)
	if err != nil {
		return fmt.Errorf("save heir: %w", err)
	}
	return nil
}

func (s *Store) SaveAccess(ctx context.Context, a *heir.HeirVaultAccess) error {
	var itemID *uuid.UUID
	if a.VaultItemID != nil {
		iid := uuid.UUID(*a.VaultItemID)
		itemID = &iid
	}
	_, err := s.querier(ctx).ExecContext(ctx, `
		INSERT INTO heir_vault_access (id, heir_id, vault_id, vault_item_id,
			can_view, can_export, can_edit, access_status, granted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			can_view = EXCLUDED.can_view,
			can_export = EXCLUDED.can_export,
			can_edit = EXCLUDED.can_edit
	`,
		uuid.UUID(a.ID),
		uuid.UUID(a.HeirID),
		uuid.UUID(a.VaultID),
		itemID,
		a.CanView,
		a.CanExport,
		a.CanEdit,
		string(a.AccessStatus),
		a.GrantedAt,
	)
	if err != nil {
		return fmt.Errorf("save access: %w", err)
	}
	return nil
}

func (s *Store) GetHeir(ctx context.Context, heirID domain.HeirID) (*heir.Heir, error) {
	row := s.querier(ctx).QueryRowContext(ctx,
		`SELECT `+heirColumns+` FROM heirs WHERE id = $1`,
		uuid.UUID(heirID),
	)
	h, err := scanHeir(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("heir %s: %w", heirID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("get heir: %w", err)
	}
	return h, nil
}

func (s *Store) GetAccess(ctx context.Context, accessID domain.AccessID) (*heir.HeirVaultAccess, error) {
	row := s.querier(ctx).QueryRowContext(ctx,
		`SELECT `+accessColumns+` FROM heir_vault_access WHERE id = $1`,
		uuid.UUID(accessID),
	)
	a, err := scanAccess(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("access %s: %w", accessID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("get access: %w", err)
	}
	return a, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHeir(row rowScanner) (*heir.Heir, error) {
	var (
		h             heir.Heir
		hid, pid      uuid.UUID
		level, status string
	)
	err := row.Scan(&hid, &pid, &h.Email, &h.Name, &level, &h.NotifyOnActivation,
		&h.NotificationDelayDays, &h.NotifiedAt, &status, &h.IsActive)
	if err != nil {
		return nil, err
	}
	h.ID = domain.HeirID(hid)
	h.PlanID = domain.PlanID(pid)
	h.AccessLevel = heir.AccessLevel(level)
	h.NotificationStatus = heir.NotificationStatus(status)
	return &h, nil
}

func scanAccess(row rowScanner) (*heir.HeirVaultAccess, error) {
	var (
		a        heir.HeirVaultAccess
		aid, hid uuid.UUID
		vid      uuid.UUID
		itemID   *uuid.UUID
		status   string
	)
	err := row.Scan(&aid, &hid, &vid, &itemID, &a.CanView, &a.CanExport, &a.CanEdit, &status, &a.GrantedAt)
	if err != nil {
		return nil, err
	}
	a.ID = domain.AccessID(aid)
	a.HeirID = domain.HeirID(hid)
	a.VaultID = domain.VaultID(vid)
	if itemID != nil {
		iid := domain.VaultItemID(*itemID)
		a.VaultItemID = &iid
	}
	a.AccessStatus = heir.AccessStatus(status)
	return &a, nil
}

func collectAccess(rows *sql.Rows) ([]*heir.HeirVaultAccess, error) {
	var out []*heir.HeirVaultAccess
	for rows.Next() {
		a, err := scanAccess(rows)
		if err != nil {
			return nil, fmt.Errorf("scan access: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate access rows: %w", err)
	}
	return out, nil
}
