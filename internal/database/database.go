package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // CGO-free SQLite

	"github.com/vincentbai/stepcoach/internal/models"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

var (
	ErrNotFound     = errors.New("not found")
	ErrShared       = errors.New("walkthrough is shared; only steps can be edited")
	ErrNotReady     = errors.New("walkthrough is not ready")
	ErrFinished     = errors.New("recording session already finished")
	ErrEmptySession = errors.New("recording session has no steps")
	ErrInvalid      = errors.New("invalid input")
	ErrChanged      = errors.New("steps changed while processing")
)

type Database struct {
	db             *sql.DB
	validStepTypes map[string]bool
	now            func() time.Time
}

func NewDatabase(databasePath string) (*Database, error) {
	if dir := filepath.Dir(databasePath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// WAL + busy timeout to avoid "database is locked"
	db, err := sql.Open("sqlite", databasePath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serializes writers; a single connection keeps transactions honest.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Database{
		db: db,
		validStepTypes: map[string]bool{
			models.StepClick:    true,
			models.StepInput:    true,
			models.StepChange:   true,
			models.StepNavigate: true,
		},
		now: time.Now,
	}, nil
}

func migrate(db *sql.DB) error {
	goose.SetBaseFS(migrationFiles)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Ping checks the connection; used by the health endpoint.
func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *Database) ValidateStep(step models.Step) error {
	if step.URL == "" {
		return fmt.Errorf("URL cannot be empty")
	}
	if step.Type == "" {
		return fmt.Errorf("Type cannot be empty")
	}
	if !d.validStepTypes[step.Type] {
		return fmt.Errorf("invalid step type: %s", step.Type)
	}
	if step.Timestamp <= 0 {
		return fmt.Errorf("timestamp must be positive")
	}
	if step.Type != models.StepNavigate && step.Element == nil {
		return fmt.Errorf("%s step requires an element", step.Type)
	}
	if _, err := url.Parse(step.URL); err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	return nil
}

// ValidateSteps validates every step and reports the first failure with its position.
func (d *Database) ValidateSteps(steps []models.Step) error {
	for position, step := range steps {
		if err := d.ValidateStep(step); err != nil {
			return fmt.Errorf("%w: step %d: %w", ErrInvalid, position, err)
		}
	}
	return nil
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// timestamp is the current time at the precision the store keeps.
func (d *Database) timestamp() time.Time {
	return d.now().UTC().Truncate(time.Millisecond)
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullableMillis(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}
	t := fromMillis(value.Int64)
	return &t
}

// withTx runs fn inside a transaction, rolling back on error.
func (d *Database) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	transaction, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(transaction); err != nil {
		_ = transaction.Rollback()
		return err
	}
	if err := transaction.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
