package data

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ovo-bot/ovo-agent/internal/biz/repo"

	_ "modernc.org/sqlite"
)

// Repositories contains all repositories
type Repositories struct {
	Messages  repo.MessageRepo
	Memory    repo.MemoryRepo
	Groups    repo.GroupRepo
	Tools     repo.ToolRouter
	Generator repo.Generator

	db *sql.DB
}

// Options configures NewRepositories
type Options struct {
	DBPath        string
	GroupDefault  bool
	GroupSeed     map[string]bool
	SendPerSecond float64
	SendBurst     int
}

// NewRepositories creates all repositories
func NewRepositories(opts Options, client FeishuClient, gen repo.Generator) (*Repositories, error) {
	db, err := OpenDB(opts.DBPath)
	if err != nil {
		return nil, err
	}

	memory, err := NewMemoryRepo(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	groups, err := NewGroupRepo(db, opts.GroupDefault, opts.GroupSeed)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Repositories{
		Messages:  NewFeishuRepo(client, opts.SendPerSecond, opts.SendBurst),
		Memory:    memory,
		Groups:    groups,
		Tools:     NewToolRouter(memory),
		Generator: gen,
		db:        db,
	}, nil
}

// Close releases the database
func (r *Repositories) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// OpenDB opens a sqlite database, creating its directory first
func OpenDB(dbPath string) (*sql.DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows one writer; a single connection avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}
	return db, nil
}

// execAll runs schema statements in order
func execAll(db *sql.DB, stmts ...string) error {
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
