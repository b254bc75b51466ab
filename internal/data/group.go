package data

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/ovo-bot/ovo-agent/internal/biz/repo"
)

// groupRepo stores per-group enable flags
type groupRepo struct {
	db           *sql.DB
	defaultValue bool
}

// NewGroupRepo creates a group repository. Seed entries are written only
// for groups that have no stored flag yet.
func NewGroupRepo(db *sql.DB, defaultEnabled bool, seed map[string]bool) (repo.GroupRepo, error) {
	if err := execAll(db, `
		CREATE TABLE IF NOT EXISTS group_settings (
			group_id TEXT PRIMARY KEY,
			enabled INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)
	`); err != nil {
		return nil, fmt.Errorf("failed to create group_settings table: %w", err)
	}

	ids := make([]string, 0, len(seed))
	for id := range seed {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	now := time.Now().Unix()
	for _, id := range ids {
		if _, err := db.Exec(`
			INSERT OR IGNORE INTO group_settings (group_id, enabled, updated_at) VALUES (?, ?, ?)
		`, id, seed[id], now); err != nil {
			return nil, fmt.Errorf("failed to seed group %s: %w", id, err)
		}
	}
	return &groupRepo{db: db, defaultValue: defaultEnabled}, nil
}

func (r *groupRepo) IsEnabled(ctx context.Context, groupID string) (bool, error) {
	var enabled bool
	err := r.db.QueryRowContext(ctx, `SELECT enabled FROM group_settings WHERE group_id = ?`, groupID).Scan(&enabled)
	if err == sql.ErrNoRows {
		return r.defaultValue, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get group setting: %w", err)
	}
	return enabled, nil
}

func (r *groupRepo) SetEnabled(ctx context.Context, groupID string, enabled bool) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO group_settings (group_id, enabled, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(group_id) DO UPDATE SET
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`, groupID, enabled, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to set group setting: %w", err)
	}
	return nil
}

func (r *groupRepo) List(ctx context.Context) ([]repo.GroupSetting, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT group_id, enabled FROM group_settings ORDER BY group_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list group settings: %w", err)
	}
	defer rows.Close()

	var settings []repo.GroupSetting
	for rows.Next() {
		var s repo.GroupSetting
		if err := rows.Scan(&s.GroupID, &s.Enabled); err != nil {
			return nil, fmt.Errorf("failed to scan group setting: %w", err)
		}
		settings = append(settings, s)
	}
	return settings, rows.Err()
}
