// Package sqlite provides a SQLite-backed consent request store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Thiagoxp95/portaria/internal/platform/storage/sqlitedb"
	"github.com/Thiagoxp95/portaria/internal/platform/storage/sqlitemigrate"
	"github.com/Thiagoxp95/portaria/internal/services/consent/storage"
	"github.com/Thiagoxp95/portaria/internal/services/consent/storage/sqlite/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store persists consent requests in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite consent store and applies embedded migrations.
func Open(path string) (*Store, error) {
	sqlDB, err := sqlitedb.Open(path)
	if err != nil {
		return nil, err
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// OpenDB wraps an existing SQLite handle and applies embedded migrations.
// It allows the directory and consent stores to share one database file.
func OpenDB(sqlDB *sql.DB) (*Store, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("sql db is required")
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// CreateConsent inserts one consent row.
func (s *Store) CreateConsent(ctx context.Context, consent storage.ConsentRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	sid := strings.TrimSpace(consent.ConversationSID)
	if sid == "" {
		return fmt.Errorf("conversation sid is required")
	}
	if strings.TrimSpace(consent.ToNumber) == "" {
		return fmt.Errorf("destination number is required")
	}
	if consent.TTLSeconds <= 0 {
		return fmt.Errorf("ttl seconds must be greater than zero")
	}
	status := consent.Status
	if status == "" {
		status = storage.StatusPending
	}
	if !status.Valid() {
		return fmt.Errorf("status %q is not valid", status)
	}
	createdAt := consent.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	transcript, err := encodeTranscript(consent.Transcript)
	if err != nil {
		return err
	}

	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO whatsapp_consents (
		   conversation_sid,
		   to_number,
		   apt,
		   visitor,
		   company,
		   last_msg_sid,
		   ttl_seconds,
		   status,
		   transcript,
		   created_at,
		   decided_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		sid,
		consent.ToNumber,
		consent.Apt,
		consent.Visitor,
		consent.Company,
		consent.LastMsgSID,
		consent.TTLSeconds,
		string(status),
		transcript,
		toMillis(createdAt),
	)
	if err != nil {
		if isConsentUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("create consent: %w", err)
	}
	return nil
}

// GetConsent returns one consent row by conversation SID.
func (s *Store) GetConsent(ctx context.Context, conversationSID string) (storage.ConsentRequest, error) {
	if err := ctx.Err(); err != nil {
		return storage.ConsentRequest{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ConsentRequest{}, fmt.Errorf("storage is not configured")
	}
	conversationSID = strings.TrimSpace(conversationSID)
	if conversationSID == "" {
		return storage.ConsentRequest{}, fmt.Errorf("conversation sid is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		consentSelectColumns+` FROM whatsapp_consents WHERE conversation_sid = ?`,
		conversationSID,
	)
	return scanConsent(row)
}

// LatestPendingByNumber returns the newest pending consent for a number.
// Ties on creation time break toward the most recently created row.
func (s *Store) LatestPendingByNumber(ctx context.Context, toNumber string) (storage.ConsentRequest, error) {
	if err := ctx.Err(); err != nil {
		return storage.ConsentRequest{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ConsentRequest{}, fmt.Errorf("storage is not configured")
	}
	toNumber = strings.TrimSpace(toNumber)
	if toNumber == "" {
		return storage.ConsentRequest{}, fmt.Errorf("destination number is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		consentSelectColumns+`
		   FROM whatsapp_consents
		  WHERE to_number = ? AND status = ?
		  ORDER BY created_at DESC, rowid DESC
		  LIMIT 1`,
		toNumber,
		string(storage.StatusPending),
	)
	return scanConsent(row)
}

// ResolveConsent appends one inbound event and flips the row to a terminal
// status. The write is conditional on the row still being pending, so a
// concurrent sweep or resolution wins exactly once.
func (s *Store) ResolveConsent(ctx context.Context, conversationSID string, status storage.Status, event storage.TranscriptEvent, decidedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	conversationSID = strings.TrimSpace(conversationSID)
	if conversationSID == "" {
		return fmt.Errorf("conversation sid is required")
	}
	if !status.Terminal() {
		return fmt.Errorf("resolution status %q is not terminal", status)
	}
	if decidedAt.IsZero() {
		decidedAt = time.Now().UTC()
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin resolve transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var rawTranscript string
	var lastMsgSID string
	err = tx.QueryRowContext(
		ctx,
		`SELECT transcript, last_msg_sid FROM whatsapp_consents
		  WHERE conversation_sid = ? AND status = ?`,
		conversationSID,
		string(storage.StatusPending),
	).Scan(&rawTranscript, &lastMsgSID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return resolveMissError(ctx, tx, conversationSID)
		}
		return fmt.Errorf("read consent transcript: %w", err)
	}

	transcript, err := decodeTranscript(rawTranscript)
	if err != nil {
		return err
	}
	transcript = append(transcript, event)
	encoded, err := encodeTranscript(transcript)
	if err != nil {
		return err
	}
	if event.MessageSID != "" {
		lastMsgSID = event.MessageSID
	}

	result, err := tx.ExecContext(
		ctx,
		`UPDATE whatsapp_consents
		    SET status = ?, decided_at = ?, transcript = ?, last_msg_sid = ?
		  WHERE conversation_sid = ? AND status = ?`,
		string(status),
		toMillis(decidedAt),
		encoded,
		lastMsgSID,
		conversationSID,
		string(storage.StatusPending),
	)
	if err != nil {
		return fmt.Errorf("resolve consent: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve consent: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotPending
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit resolve transaction: %w", err)
	}
	return nil
}

// resolveMissError distinguishes a missing row from one already resolved.
func resolveMissError(ctx context.Context, tx *sql.Tx, conversationSID string) error {
	var one int
	err := tx.QueryRowContext(
		ctx,
		"SELECT 1 FROM whatsapp_consents WHERE conversation_sid = ?",
		conversationSID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check consent existence: %w", err)
	}
	return storage.ErrNotPending
}

// SweepExpired marks pending rows past their TTL as no_answer. Each row is
// flipped with a conditional update, so rows resolved mid-sweep are skipped.
func (s *Store) SweepExpired(ctx context.Context, now time.Time) (storage.SweepResult, error) {
	if err := ctx.Err(); err != nil {
		return storage.SweepResult{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.SweepResult{}, fmt.Errorf("storage is not configured")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT conversation_sid FROM whatsapp_consents
		  WHERE status = ? AND created_at + ttl_seconds * 1000 < ?
		  ORDER BY created_at ASC`,
		string(storage.StatusPending),
		toMillis(now),
	)
	if err != nil {
		return storage.SweepResult{}, fmt.Errorf("select expired consents: %w", err)
	}
	var expired []string
	for rows.Next() {
		var sid string
		if err := rows.Scan(&sid); err != nil {
			_ = rows.Close()
			return storage.SweepResult{}, fmt.Errorf("scan expired consent: %w", err)
		}
		expired = append(expired, sid)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return storage.SweepResult{}, fmt.Errorf("select expired consents: %w", err)
	}
	_ = rows.Close()

	result := storage.SweepResult{}
	for _, sid := range expired {
		update, err := s.sqlDB.ExecContext(
			ctx,
			`UPDATE whatsapp_consents
			    SET status = ?, decided_at = ?
			  WHERE conversation_sid = ? AND status = ?`,
			string(storage.StatusNoAnswer),
			toMillis(now),
			sid,
			string(storage.StatusPending),
		)
		if err != nil {
			return result, fmt.Errorf("mark consent %s expired: %w", sid, err)
		}
		affected, err := update.RowsAffected()
		if err != nil {
			return result, fmt.Errorf("mark consent %s expired: %w", sid, err)
		}
		if affected == 0 {
			// Resolved between select and update; the other writer won.
			continue
		}
		result.Marked++
		result.ConversationSIDs = append(result.ConversationSIDs, sid)
	}
	return result, nil
}

// ListByNumber returns consents for a number ordered newest first.
func (s *Store) ListByNumber(ctx context.Context, toNumber string, status *storage.Status, limit int) ([]storage.ConsentRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	toNumber = strings.TrimSpace(toNumber)
	if toNumber == "" {
		return nil, fmt.Errorf("destination number is required")
	}
	if limit <= 0 {
		limit = 10
	}

	query := consentSelectColumns + ` FROM whatsapp_consents WHERE to_number = ?`
	args := []any{toNumber}
	if status != nil {
		query += " AND status = ?"
		args = append(args, string(*status))
	}
	query += " ORDER BY created_at DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	return s.queryConsents(ctx, query, args...)
}

// ListAll returns consents ordered newest first, optionally filtered by status.
func (s *Store) ListAll(ctx context.Context, status *storage.Status, limit int) ([]storage.ConsentRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		limit = 20
	}

	query := consentSelectColumns + ` FROM whatsapp_consents`
	var args []any
	if status != nil {
		query += " WHERE status = ?"
		args = append(args, string(*status))
	}
	query += " ORDER BY created_at DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	return s.queryConsents(ctx, query, args...)
}

const consentSelectColumns = `SELECT conversation_sid, to_number, apt, visitor, company,
       last_msg_sid, ttl_seconds, status, transcript, created_at, decided_at`

func (s *Store) queryConsents(ctx context.Context, query string, args ...any) ([]storage.ConsentRequest, error) {
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list consents: %w", err)
	}
	defer rows.Close()

	var consents []storage.ConsentRequest
	for rows.Next() {
		consent, err := scanConsent(rows)
		if err != nil {
			return nil, fmt.Errorf("list consents: %w", err)
		}
		consents = append(consents, consent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list consents: %w", err)
	}
	return consents, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConsent(row rowScanner) (storage.ConsentRequest, error) {
	var consent storage.ConsentRequest
	var status string
	var rawTranscript string
	var createdAt int64
	var decidedAt sql.NullInt64
	err := row.Scan(
		&consent.ConversationSID,
		&consent.ToNumber,
		&consent.Apt,
		&consent.Visitor,
		&consent.Company,
		&consent.LastMsgSID,
		&consent.TTLSeconds,
		&status,
		&rawTranscript,
		&createdAt,
		&decidedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ConsentRequest{}, storage.ErrNotFound
		}
		return storage.ConsentRequest{}, fmt.Errorf("scan consent: %w", err)
	}
	consent.Status = storage.Status(status)
	consent.CreatedAt = fromMillis(createdAt)
	if decidedAt.Valid {
		decided := fromMillis(decidedAt.Int64)
		consent.DecidedAt = &decided
	}
	transcript, err := decodeTranscript(rawTranscript)
	if err != nil {
		return storage.ConsentRequest{}, err
	}
	consent.Transcript = transcript
	return consent, nil
}

func encodeTranscript(events []storage.TranscriptEvent) (string, error) {
	if events == nil {
		events = []storage.TranscriptEvent{}
	}
	encoded, err := json.Marshal(events)
	if err != nil {
		return "", fmt.Errorf("encode transcript: %w", err)
	}
	return string(encoded), nil
}

func decodeTranscript(raw string) ([]storage.TranscriptEvent, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var events []storage.TranscriptEvent
	if err := json.Unmarshal([]byte(raw), &events); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	return events, nil
}

func isConsentUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint failed") &&
		strings.Contains(message, "whatsapp_consents.conversation_sid")
}

var _ storage.ConsentStore = (*Store)(nil)
