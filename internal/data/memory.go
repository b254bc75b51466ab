package data

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ovo-bot/ovo-agent/internal/biz/domain"
	"github.com/ovo-bot/ovo-agent/internal/biz/repo"
)

const (
	// A session holding more turns than archiveThreshold is folded into a
	// summary, keeping the newest keepTurns
	archiveThreshold = 40
	keepTurns        = 20

	summarySnippets   = 6
	summarySnippetLen = 24
	maxFactLen        = 40
)

// memoryRepo implements the long-term memory repository
type memoryRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewMemoryRepo creates a memory repository on db
func NewMemoryRepo(db *sql.DB) (repo.MemoryRepo, error) {
	err := execAll(db,
		`CREATE TABLE IF NOT EXISTS users (
			user_id TEXT PRIMARY KEY,
			display_name TEXT NOT NULL DEFAULT '',
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS facts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			group_id TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			UNIQUE(user_id, content)
		)`,
		`CREATE TABLE IF NOT EXISTS turns (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_key TEXT NOT NULL,
			user_id TEXT NOT NULL,
			group_id TEXT NOT NULL DEFAULT '',
			user_text TEXT NOT NULL,
			reply_text TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_key, id)`,
		`CREATE TABLE IF NOT EXISTS summaries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_key TEXT NOT NULL,
			content TEXT NOT NULL,
			turn_count INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		)`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory tables: %w", err)
	}
	return &memoryRepo{db: db, now: time.Now}, nil
}

// GetContext loads the display name, facts and archived summaries for a turn
func (r *memoryRepo) GetContext(ctx context.Context, event *domain.ChatEvent, sessionKey string, opts repo.MemoryOptions) (*domain.MemoryContext, error) {
	mem := &domain.MemoryContext{UserDisplayName: event.SenderName}

	var name string
	err := r.db.QueryRowContext(ctx, `SELECT display_name FROM users WHERE user_id = ?`, event.UserID).Scan(&name)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return nil, fmt.Errorf("failed to get user: %w", err)
	case mem.UserDisplayName == "":
		mem.UserDisplayName = name
	}

	if opts.MaxFacts > 0 {
		facts, err := r.queryStrings(ctx, `
			SELECT content FROM facts WHERE user_id = ?
			ORDER BY created_at DESC, id DESC LIMIT ?
		`, event.UserID, opts.MaxFacts)
		if err != nil {
			return nil, fmt.Errorf("failed to get facts: %w", err)
		}
		mem.LongTermFacts = facts
	}

	if opts.MaxSummaries > 0 {
		summaries, err := r.queryStrings(ctx, `
			SELECT content FROM summaries WHERE session_key = ?
			ORDER BY id DESC LIMIT ?
		`, sessionKey, opts.MaxSummaries)
		if err != nil {
			return nil, fmt.Errorf("failed to get summaries: %w", err)
		}
		mem.ArchivedSummaries = summaries
	}
	return mem, nil
}

// RecordTurn stores a committed turn in one transaction
func (r *memoryRepo) RecordTurn(ctx context.Context, event *domain.ChatEvent, sessionKey, userText, replyText string) error {
	now := event.TimeOr(r.now()).UnixMilli()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO users (user_id, display_name, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			display_name = CASE WHEN excluded.display_name != '' THEN excluded.display_name ELSE users.display_name END,
			updated_at = excluded.updated_at
	`, event.UserID, event.SenderName, now); err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO turns (session_key, user_id, group_id, user_text, reply_text, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, sessionKey, event.UserID, event.GroupID, userText, replyText, now); err != nil {
		return fmt.Errorf("failed to insert turn: %w", err)
	}

	for _, fact := range ExtractFacts(userText) {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO facts (user_id, group_id, content, created_at) VALUES (?, ?, ?, ?)
		`, event.UserID, event.GroupID, fact, now); err != nil {
			return fmt.Errorf("failed to insert fact: %w", err)
		}
	}

	if err := archiveTurns(ctx, tx, sessionKey, now); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit turn: %w", err)
	}
	return nil
}

// archiveTurns folds the oldest turns of an oversized session into a summary
func archiveTurns(ctx context.Context, tx *sql.Tx, sessionKey string, now int64) error {
	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM turns WHERE session_key = ?`, sessionKey).Scan(&count); err != nil {
		return fmt.Errorf("failed to count turns: %w", err)
	}
	if count <= archiveThreshold {
		return nil
	}
	fold := count - keepTurns

	rows, err := tx.QueryContext(ctx, `
		SELECT id, user_text FROM turns WHERE session_key = ?
		ORDER BY id ASC LIMIT ?
	`, sessionKey, fold)
	if err != nil {
		return fmt.Errorf("failed to load turns: %w", err)
	}
	var lastID int64
	var snippets []string
	for rows.Next() {
		var text string
		if err := rows.Scan(&lastID, &text); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan turn: %w", err)
		}
		text = strings.TrimSpace(text)
		if text != "" && len(snippets) < summarySnippets {
			snippets = append(snippets, clip(text, summarySnippetLen))
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to load turns: %w", err)
	}

	summary := fmt.Sprintf("之前聊过%d轮：%s", fold, strings.Join(snippets, "；"))
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO summaries (session_key, content, turn_count, created_at) VALUES (?, ?, ?, ?)
	`, sessionKey, summary, fold, now); err != nil {
		return fmt.Errorf("failed to insert summary: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM turns WHERE session_key = ? AND id <= ?`, sessionKey, lastID); err != nil {
		return fmt.Errorf("failed to delete archived turns: %w", err)
	}
	return nil
}

// SearchFacts finds facts about a user whose content contains query.
// An empty query lists the newest facts.
func (r *memoryRepo) SearchFacts(ctx context.Context, userID, query string, limit int) ([]*domain.Fact, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, group_id, content, created_at FROM facts
		WHERE user_id = ? AND content LIKE ?
		ORDER BY created_at DESC, id DESC LIMIT ?
	`, userID, "%"+query+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search facts: %w", err)
	}
	defer rows.Close()

	var facts []*domain.Fact
	for rows.Next() {
		var f domain.Fact
		var createdAt int64
		if err := rows.Scan(&f.ID, &f.UserID, &f.GroupID, &f.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan fact: %w", err)
		}
		f.CreatedAt = time.UnixMilli(createdAt)
		facts = append(facts, &f)
	}
	return facts, rows.Err()
}

func (r *memoryRepo) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ========== Fact Extraction ==========

var factPatterns = []struct {
	re     *regexp.Regexp
	prefix string
}{
	{regexp.MustCompile(`我叫([^，。！？,.!?\s]+)`), "名字是"},
	{regexp.MustCompile(`我喜欢([^，。！？,.!?]+)`), "喜欢"},
	{regexp.MustCompile(`我住在([^，。！？,.!?\s]+)`), "住在"},
	{regexp.MustCompile(`我是(?:做|搞)([^，。！？,.!?\s]+)的`), "职业是"},
	{regexp.MustCompile(`(?i)\bmy name is ([a-z][a-z '-]*[a-z])`), "name is "},
	{regexp.MustCompile(`(?i)\bi (?:like|love) ([^,.!?]+)`), "likes "},
	{regexp.MustCompile(`(?i)\bi live in ([^,.!?]+)`), "lives in "},
}

// ExtractFacts pulls first-person statements worth remembering out of text
func ExtractFacts(text string) []string {
	var facts []string
	seen := make(map[string]bool)
	for _, p := range factPatterns {
		for _, m := range p.re.FindAllStringSubmatch(text, -1) {
			value := strings.TrimSpace(m[1])
			if value == "" {
				continue
			}
			fact := p.prefix + clip(value, maxFactLen)
			if !seen[fact] {
				seen[fact] = true
				facts = append(facts, fact)
			}
		}
	}
	return facts
}

// clip truncates s to n runes
func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
