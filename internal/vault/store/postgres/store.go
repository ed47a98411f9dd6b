package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"heirloom/internal/vault"
	"heirloom/pkg/domain"
	"heirloom/pkg/platform/sentinel"
	txcontext "heirloom/pkg/platform/tx"
)

// Store implements vault.Store on PostgreSQL. death_settings is a JSONB
// column so disposition markers survive without schema churn.
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

const vaultColumns = `id, user_id, name, category, death_settings, is_shared`

func (s *Store) Get(ctx context.Context, vaultID domain.VaultID) (*vault.Vault, error) {
	row := s.querier(ctx).QueryRowContext(ctx,
		`SELECT `+vaultColumns+` FROM vaults WHERE id = $1`,
		uuid.UUID(vaultID),
	)
	v, err := scanVault(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("vault %s: %w", vaultID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("get vault: %w", err)
	}
	return v, nil
}

func (s *Store) ListByUser(ctx context.Context, userID domain.UserID) ([]*vault.Vault, error) {
	rows, err := s.querier(ctx).QueryContext(ctx,
		`SELECT `+vaultColumns+` FROM vaults WHERE user_id = $1 ORDER BY id`,
		uuid.UUID(userID),
	)
	if err != nil {
		return nil, fmt.Errorf("list vaults by user: %w", err)
	}
	defer rows.Close()

	var vaults []*vault.Vault
	for rows.Next() {
		v, err := scanVault(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vault: %w", err)
		}
		vaults = append(vaults, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vaults: %w", err)
	}
	return vaults, nil
}

func (s *Store) ListItems(ctx context.Context, vaultID domain.VaultID) ([]*vault.VaultItem, error) {
	rows, err := s.querier(ctx).QueryContext(ctx,
		`SELECT id, vault_id, name, data FROM vault_items WHERE vault_id = $1 ORDER BY id`,
		uuid.UUID(vaultID),
	)
	if err != nil {
		return nil, fmt.Errorf("list vault items: %w", err)
	}
	defer rows.Close()

	var items []*vault.VaultItem
	for rows.Next() {
		var (
			item     vault.VaultItem
			iid, vid uuid.UUID
		)
		if err := rows.Scan(&iid, &vid, &item.Name, &item.Data); err != nil {
			return nil, fmt.Errorf("scan vault item: %w", err)
		}
		item.ID = domain.VaultItemID(iid)
		item.VaultID = domain.VaultID(vid)
		items = append(items, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vault items: %w", err)
	}
	return items, nil
}

func (s *Store) DeleteItems(ctx context.Context, vaultID domain.VaultID) (int, error) {
	res, err := s.querier(ctx).ExecContext(ctx,
		`DELETE FROM vault_items WHERE vault_id = $1`,
		uuid.UUID(vaultID),
	)
	if err != nil {
		return 0, fmt.Errorf("delete vault items: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete vault items rows affected: %w", err)
	}
	return int(affected), nil
}

func (s *Store) Delete(ctx context.Context, vaultID domain.VaultID) error {
	_, err := s.querier(ctx).ExecContext(ctx,
		`DELETE FROM vaults WHERE id = $1`,
		uuid.UUID(vaultID),
	)
	if err != nil {
		return fmt.Errorf("delete vault: %w", err)
	}
	return nil
}

// MarkShared is conditional so overlapping dispatches resolve at the
// database: exactly one caller observes the flip.
func (s *Store) MarkShared(ctx context.Context, vaultID domain.VaultID) (bool, error) {
	res, err := s.querier(ctx).ExecContext(ctx, `
		UPDATE vaults SET is_shared = true
		WHERE id = $1 AND NOT is_shared
	`, uuid.UUID(vaultID))
	if err != nil {
		return false, fmt.Errorf("mark vault shared: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark vault shared rows affected: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := s.querier(ctx).QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM vaults WHERE id = $1)`,
			uuid.UUID(vaultID),
		).Scan(&exists); err != nil {
			return false, fmt.Errorf("check vault existence: %w", err)
		}
		if !exists {
			return false, fmt.Errorf("vault %s: %w", vaultID, sentinel.ErrNotFound)
		}
		return false, nil
	}
	return true, nil
}

func (s *Store) UpdateDeathSettings(ctx context.Context, vaultID domain.VaultID, settings vault.DeathSettings) error {
	payload, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshal death settings: %w", err)
	}
	res, err := s.querier(ctx).ExecContext(ctx,
		`UPDATE vaults SET death_settings = $2 WHERE id = $1`,
		uuid.UUID(vaultID), payload,
	)
	if err != nil {
		return fmt.Errorf("update death settings: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update death settings rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("vault %s: %w", vaultID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *Store) SaveVault(ctx context.Context, v *vault.Vault) error {
	payload, err := json.Marshal(v.DeathSettings)
	if err != nil {
		return fmt.Errorf("marshal death settings: %w", err)
	}
	_, err = s.querier(ctx).ExecContext(ctx, `
		INSERT INTO vaults (id, user_id, name, category, death_settings, is_shared)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			category = EXCLUDED.category,
			death_settings = EXCLUDED.death_settings
	`,
		uuid.UUID(v.ID),
		uuid.UUID(v.UserID),
		v.Name,
		v.Category.String(),
		payload,
		v.IsShared,
	)
	if err != nil {
		return fmt.Errorf("save vault: %w", err)
	}
	return nil
}

func (s *Store) SaveItem(ctx context.Context, item *vault.VaultItem) error {
	_, err := s.querier(ctx).ExecContext(ctx, `
		INSERT INTO vault_items (id, vault_id, name, data)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			data = EXCLUDED.data
	`,
		uuid.UUID(item.ID),
		uuid.UUID(item.VaultID),
		item.Name,
		item.Data,
	)
	if err != nil {
		return fmt.Errorf("save vault item: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVault(row rowScanner) (*vault.Vault, error) {
	var (
		v        vault.Vault
		vid, uid uuid.UUID
		category string
		settings []byte
	)
	if err := row.Scan(&vid, &uid, &v.Name, &category, &settings, &v.IsShared); err != nil {
		return nil, err
	}
	v.ID = domain.VaultID(vid)
	v.UserID = domain.UserID(uid)
	v.Category = domain.VaultCategory(category)
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &v.DeathSettings); err != nil {
			return nil, fmt.Errorf("unmarshal death settings: %w", err)
		}
	}
	return &v, nil
}
