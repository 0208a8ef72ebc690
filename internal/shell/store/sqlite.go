package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/artpar/agentresourcerest/internal/core/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// =============================================================================
// Executor Interface - Shared by DB and Transaction
// =============================================================================

// executor abstracts database operations that can be performed on both
// a database connection and a transaction.
type executor interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Rebind(query string) string
}

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens the database at dsn and runs migrations.
// ":memory:" gives a private in-memory database.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", withParams(dsn))
	if err != nil {
		return nil, &OpError{Op: "open", Kind: ErrUnavailable, Err: err}
	}

	// Each in-memory connection is its own database.
	if strings.Contains(dsn, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &OpError{Op: "open", Kind: ErrUnavailable, Err: err}
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, &OpError{Op: "migrate", Kind: ErrUnavailable, Err: err}
	}

	return &SQLiteStore{db: db}, nil
}

func withParams(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_busy_timeout=5000&_journal_mode=WAL"
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return &OpError{Op: "Ping", Kind: ErrUnavailable, Err: err}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) RecordInvocation(ctx context.Context, inv *domain.ToolInvocation) error {
	return recordInvocation(ctx, s.db, inv)
}

func (s *SQLiteStore) ListInvocations(ctx context.Context, userID string, opts ListOptions) ([]domain.ToolInvocation, error) {
	return listInvocations(ctx, s.db, userID, opts)
}

func (s *SQLiteStore) CountInvocations(ctx context.Context, userID string) (int, error) {
	return countInvocations(ctx, s.db, userID)
}

func (s *SQLiteStore) CreateMeterEvent(ctx context.Context, event *domain.MeterEvent) error {
	return createMeterEvent(ctx, s.db, event)
}

func (s *SQLiteStore) GetUnreportedEvents(ctx context.Context, limit int) ([]domain.MeterEvent, error) {
	return getUnreportedEvents(ctx, s.db, limit)
}

func (s *SQLiteStore) MarkEventsReported(ctx context.Context, ids []string, reportedAt time.Time) error {
	return markEventsReported(ctx, s.db, ids, reportedAt)
}

// =============================================================================
// Transaction Support
// =============================================================================

func (s *SQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return &OpError{Op: "begin", Kind: ErrTxFailed, Err: err}
	}

	txS := &txSQLiteStore{tx: tx}

	if err := fn(txS); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return &OpError{Op: "rollback", Kind: ErrTxFailed, Err: errors.Join(err, rbErr)}
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return &OpError{Op: "commit", Kind: ErrTxFailed, Err: err}
	}

	return nil
}

// txSQLiteStore implements Store within a transaction.
type txSQLiteStore struct {
	tx *sqlx.Tx
}

func (s *txSQLiteStore) RecordInvocation(ctx context.Context, inv *domain.ToolInvocation) error {
	return recordInvocation(ctx, s.tx, inv)
}

func (s *txSQLiteStore) ListInvocations(ctx context.Context, userID string, opts ListOptions) ([]domain.ToolInvocation, error) {
	return listInvocations(ctx, s.tx, userID, opts)
}

func (s *txSQLiteStore) CountInvocations(ctx context.Context, userID string) (int, error) {
	return countInvocations(ctx, s.tx, userID)
}

func (s *txSQLiteStore) CreateMeterEvent(ctx context.Context, event *domain.MeterEvent) error {
	return createMeterEvent(ctx, s.tx, event)
}

func (s *txSQLiteStore) GetUnreportedEvents(ctx context.Context, limit int) ([]domain.MeterEvent, error) {
	return getUnreportedEvents(ctx, s.tx, limit)
}

func (s *txSQLiteStore) MarkEventsReported(ctx context.Context, ids []string, reportedAt time.Time) error {
	return markEventsReported(ctx, s.tx, ids, reportedAt)
}

func (s *txSQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	// Already in a transaction; run inline.
	return fn(s)
}

func (s *txSQLiteStore) Ping(ctx context.Context) error {
	return nil
}

func (s *txSQLiteStore) Close() error {
	return nil
}

// =============================================================================
// Tool Invocations
// =============================================================================

type invocationRow struct {
	ID           string `db:"id"`
	RequestID    string `db:"request_id"`
	UserID       string `db:"user_id"`
	Tool         string `db:"tool"`
	Success      bool   `db:"success"`
	ErrorMessage string `db:"error_message"`
	DurationMS   int64  `db:"duration_ms"`
	CreatedAt    string `db:"created_at"`
}

func recordInvocation(ctx context.Context, exec executor, inv *domain.ToolInvocation) error {
	query := `
		INSERT INTO tool_invocations (
			id, request_id, user_id, tool, success, error_message, duration_ms, created_at
		) VALUES (
			:id, :request_id, :user_id, :tool, :success, :error_message, :duration_ms, :created_at
		)`

	row := invocationRow{
		ID:           inv.ID,
		RequestID:    inv.RequestID,
		UserID:       inv.UserID,
		Tool:         inv.Tool,
		Success:      inv.Success,
		ErrorMessage: inv.ErrorMessage,
		DurationMS:   inv.DurationMS,
		CreatedAt:    formatTime(inv.CreatedAt),
	}

	if _, err := exec.NamedExecContext(ctx, query, row); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: tool_invocations.id") {
			return &OpError{Op: "RecordInvocation", Table: "tool_invocations", ID: inv.ID, Kind: ErrDuplicateID}
		}
		return &OpError{Op: "RecordInvocation", Table: "tool_invocations", ID: inv.ID, Err: err}
	}
	return nil
}

func listInvocations(ctx context.Context, exec executor, userID string, opts ListOptions) ([]domain.ToolInvocation, error) {
	opts = opts.Normalize()

	query := `SELECT * FROM tool_invocations`
	args := []any{}
	if userID != AllUsers {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, opts.Limit, opts.Offset)

	var rows []invocationRow
	if err := exec.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, &OpError{Op: "ListInvocations", Table: "tool_invocations", Err: err}
	}

	out := make([]domain.ToolInvocation, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.ToolInvocation{
			ID:           row.ID,
			RequestID:    row.RequestID,
			UserID:       row.UserID,
			Tool:         row.Tool,
			Success:      row.Success,
			ErrorMessage: row.ErrorMessage,
			DurationMS:   row.DurationMS,
			CreatedAt:    parseTime(row.CreatedAt),
		})
	}
	return out, nil
}

func countInvocations(ctx context.Context, exec executor, userID string) (int, error) {
	query := `SELECT COUNT(*) FROM tool_invocations`
	args := []any{}
	if userID != AllUsers {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}

	var n int
	if err := exec.GetContext(ctx, &n, query, args...); err != nil {
		return 0, &OpError{Op: "CountInvocations", Table: "tool_invocations", Err: err}
	}
	return n, nil
}

// =============================================================================
// Meter Events
// =============================================================================

type meterEventRow struct {
	ID           string  `db:"id"`
	UserID       string  `db:"user_id"`
	EventType    string  `db:"event_type"`
	ResourceID   string  `db:"resource_id"`
	ResourceType string  `db:"resource_type"`
	Quantity     int64   `db:"quantity"`
	Metadata     *string `db:"metadata"`
	Timestamp    string  `db:"timestamp"`
	ReportedAt   *string `db:"reported_at"`
	CreatedAt    string  `db:"created_at"`
}

func createMeterEvent(ctx context.Context, exec executor, event *domain.MeterEvent) error {
	var metadata *string
	if len(event.Metadata) > 0 {
		data, err := json.Marshal(event.Metadata)
		if err != nil {
			return &OpError{Op: "CreateMeterEvent", Table: "meter_events", ID: event.ID, Err: err}
		}
		str := string(data)
		metadata = &str
	}

	query := `
		INSERT INTO meter_events (
			id, user_id, event_type, resource_id, resource_type, quantity,
			metadata, timestamp, reported_at, created_at
		) VALUES (
			:id, :user_id, :event_type, :resource_id, :resource_type, :quantity,
			:metadata, :timestamp, :reported_at, :created_at
		)`

	row := meterEventRow{
		ID:           event.ID,
		UserID:       event.UserID,
		EventType:    string(event.EventType),
		ResourceID:   event.ResourceID,
		ResourceType: event.ResourceType,
		Quantity:     event.Quantity,
		Metadata:     metadata,
		Timestamp:    formatTime(event.Timestamp),
		CreatedAt:    formatTime(event.CreatedAt),
	}
	if event.ReportedAt != nil {
		at := formatTime(*event.ReportedAt)
		row.ReportedAt = &at
	}

	if _, err := exec.NamedExecContext(ctx, query, row); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: meter_events.id") {
			return &OpError{Op: "CreateMeterEvent", Table: "meter_events", ID: event.ID, Kind: ErrDuplicateID}
		}
		return &OpError{Op: "CreateMeterEvent", Table: "meter_events", ID: event.ID, Err: err}
	}
	return nil
}

// getUnreportedEvents returns the oldest events not yet accepted by the gateway.
func getUnreportedEvents(ctx context.Context, exec executor, limit int) ([]domain.MeterEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows []meterEventRow
	err := exec.SelectContext(ctx, &rows,
		`SELECT * FROM meter_events WHERE reported_at IS NULL ORDER BY timestamp ASC, id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, &OpError{Op: "GetUnreportedEvents", Table: "meter_events", Err: err}
	}

	events := make([]domain.MeterEvent, 0, len(rows))
	for _, row := range rows {
		event, err := rowToMeterEvent(&row)
		if err != nil {
			return nil, err
		}
		events = append(events, *event)
	}
	return events, nil
}

func markEventsReported(ctx context.Context, exec executor, ids []string, reportedAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	query, args, err := sqlx.In(`UPDATE meter_events SET reported_at = ? WHERE id IN (?)`, formatTime(reportedAt), ids)
	if err != nil {
		return &OpError{Op: "MarkEventsReported", Table: "meter_events", Err: err}
	}
	if _, err := exec.ExecContext(ctx, exec.Rebind(query), args...); err != nil {
		return &OpError{Op: "MarkEventsReported", Table: "meter_events", Err: err}
	}
	return nil
}

func rowToMeterEvent(row *meterEventRow) (*domain.MeterEvent, error) {
	event := &domain.MeterEvent{
		ID:           row.ID,
		UserID:       row.UserID,
		EventType:    domain.EventType(row.EventType),
		ResourceID:   row.ResourceID,
		ResourceType: row.ResourceType,
		Quantity:     row.Quantity,
		Metadata:     map[string]string{},
		Timestamp:    parseTime(row.Timestamp),
		CreatedAt:    parseTime(row.CreatedAt),
	}
	if row.Metadata != nil && *row.Metadata != "" {
		if err := json.Unmarshal([]byte(*row.Metadata), &event.Metadata); err != nil {
			return nil, &OpError{Op: "GetUnreportedEvents", Table: "meter_events", ID: row.ID, Kind: ErrCorruptRow, Err: err}
		}
	}
	if row.ReportedAt != nil {
		at := parseTime(*row.ReportedAt)
		event.ReportedAt = &at
	}
	return event, nil
}

// =============================================================================
// Helpers
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}
