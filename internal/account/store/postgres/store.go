package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"heirloom/internal/account"
	"heirloom/pkg/domain"
	"heirloom/pkg/platform/sentinel"
	txcontext "heirloom/pkg/platform/tx"
)

// Store implements account.Store on PostgreSQL.
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

const userColumns = `id, email, trigger_method, trigger_settings, scheduled_date, last_activity, is_active`

func (s *Store) Get(ctx context.Context, userID domain.UserID) (*account.User, error) {
	row := s.querier(ctx).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		uuid.UUID(userID),
	)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", userID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (s *Store) ListCandidates(ctx context.Context) ([]*account.User, error) {
	rows, err := s.querier(ctx).QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE is_active ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	defer rows.Close()

	var users []*account.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}
	return users, nil
}

// RecordActivity uses GREATEST so a late out-of-order write cannot move the
// timestamp backward under concurrent writers.
func (s *Store) RecordActivity(ctx context.Context, userID domain.UserID, at time.Time) error {
	res, err := s.querier(ctx).ExecContext(ctx, `
		UPDATE users
		SET last_activity = GREATEST(COALESCE(last_activity, 'epoch'::timestamptz), $2)
		WHERE id = $1
	`, uuid.UUID(userID), at)
	if err != nil {
		return fmt.Errorf("record activity: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("record activity rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("user %s: %w", userID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *Store) Save(ctx context.Context, user *account.User) error {
	settings, err := json.Marshal(user.TriggerSettings)
	if err != nil {
		return fmt.Errorf("marshal trigger settings: %w", err)
	}
	_, err = s.querier(ctx).ExecContext(ctx, `
		INSERT INTO users (id, email, trigger_method, trigger_settings, scheduled_date, last_activity, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			trigger_method = EXCLUDED.trigger_method,
			trigger_settings = EXCLUDED.trigger_settings,
			scheduled_date = EXCLUDED.scheduled_date,
			last_activity = EXCLUDED.last_activity,
			is_active = EXCLUDED.is_active
	`,
		uuid.UUID(user.ID),
		user.Email,
		user.TriggerMethod.String(),
		settings,
		user.ScheduledDate,
		user.LastActivity,
		user.IsActive,
	)
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*account.User, error) {
	var (
		user     account.User
		uid      uuid.UUID
		method   string
		settings []byte
	)
	err := row.Scan(
		&uid,
		&user.Email,
		&method,
		&settings,
		&user.ScheduledDate,
		&user.LastActivity,
		&user.IsActive,
	)
	if err != nil {
		return nil, err
	}
	user.ID = domain.UserID(uid)
	user.TriggerMethod = domain.TriggerMethod(method)
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &user.TriggerSettings); err != nil {
			return nil, fmt.Errorf("unmarshal trigger settings: %w", err)
		}
	}
	return &user, nil
}
