package indexer

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"landescrow/core/events"
	"landescrow/core/types"
)

// DefaultListLimit caps history queries that do not specify a limit.
const DefaultListLimit = 100

// MaxListLimit bounds any single history query.
const MaxListLimit = 1000

// Record is a committed escrow event as persisted by the index.
type Record struct {
	ID         string            `json:"id"`
	Sequence   int64             `json:"sequence"`
	Type       string            `json:"type"`
	EscrowID   uint64            `json:"escrowId,omitempty"`
	Attributes map[string]string `json:"attributes"`
	RecordedAt time.Time         `json:"recordedAt"`
}

// Store persists committed events into SQLite so history survives restarts
// and can be queried per escrow.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open creates or opens the event index at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("indexer: path required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite serialises writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if logger == nil {
		logger = slog.Default()
	}
	store := &Store{db: db, logger: logger.With("component", "indexer"), now: time.Now}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) init() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS escrow_events (
            sequence INTEGER PRIMARY KEY AUTOINCREMENT,
            id TEXT NOT NULL UNIQUE,
            type TEXT NOT NULL,
            escrow_id INTEGER NOT NULL DEFAULT 0,
            attributes TEXT NOT NULL,
            recorded_at INTEGER NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS escrow_events_escrow ON escrow_events(escrow_id, sequence);`,
		`CREATE INDEX IF NOT EXISTS escrow_events_type ON escrow_events(type, sequence);`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Emit implements events.Emitter. Failures are logged rather than returned
// because the ledger change has already been committed.
func (s *Store) Emit(evt events.Event) {
	payload, ok := events.Payload(evt)
	if !ok {
		return
	}
	if _, err := s.Append(context.Background(), payload); err != nil {
		s.logger.Error("index event", slog.String("event", payload.Type), slog.Any("error", err))
	}
}

// Append stores a single event payload and returns the persisted record.
func (s *Store) Append(ctx context.Context, payload *types.Event) (Record, error) {
	if payload == nil || strings.TrimSpace(payload.Type) == "" {
		return Record{}, fmt.Errorf("indexer: event type required")
	}
	attrs := payload.Clone().Attributes
	encoded, err := json.Marshal(attrs)
	if err != nil {
		return Record{}, err
	}
	record := Record{
		ID:         uuid.NewString(),
		Type:       payload.Type,
		EscrowID:   escrowIDOf(attrs),
		Attributes: attrs,
		RecordedAt: s.now().UTC().Truncate(time.Millisecond),
	}
	const stmt = `INSERT INTO escrow_events(id, type, escrow_id, attributes, recorded_at) VALUES (?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, stmt, record.ID, record.Type, int64(record.EscrowID), string(encoded), record.RecordedAt.UnixMilli())
	if err != nil {
		return Record{}, err
	}
	record.Sequence, err = res.LastInsertId()
	if err != nil {
		return Record{}, err
	}
	return record, nil
}

// List returns the history of a single escrow in commit order.
func (s *Store) List(ctx context.Context, escrowID uint64, limit int) ([]Record, error) {
	const query = `SELECT sequence, id, type, escrow_id, attributes, recorded_at FROM escrow_events WHERE escrow_id = ? ORDER BY sequence ASC LIMIT ?`
	return s.query(ctx, query, int64(escrowID), clampLimit(limit))
}

// Recent returns the newest events, optionally restricted to one type.
func (s *Store) Recent(ctx context.Context, eventType string, limit int) ([]Record, error) {
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		const query = `SELECT sequence, id, type, escrow_id, attributes, recorded_at FROM escrow_events ORDER BY sequence DESC LIMIT ?`
		return s.query(ctx, query, clampLimit(limit))
	}
	const query = `SELECT sequence, id, type, escrow_id, attributes, recorded_at FROM escrow_events WHERE type = ? ORDER BY sequence DESC LIMIT ?`
	return s.query(ctx, query, eventType, clampLimit(limit))
}

// Count returns the number of indexed events.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM escrow_events`).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) query(ctx context.Context, query string, args ...interface{}) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	records := []Record{}
	for rows.Next() {
		var (
			record     Record
			escrowID   int64
			attributes string
			recordedAt int64
		)
		if err := rows.Scan(&record.Sequence, &record.ID, &record.Type, &escrowID, &attributes, &recordedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(attributes), &record.Attributes); err != nil {
			return nil, fmt.Errorf("indexer: decode event %s: %w", record.ID, err)
		}
		record.EscrowID = uint64(escrowID)
		record.RecordedAt = time.UnixMilli(recordedAt).UTC()
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

func escrowIDOf(attrs map[string]string) uint64 {
	id, err := strconv.ParseUint(strings.TrimSpace(attrs["escrowId"]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
