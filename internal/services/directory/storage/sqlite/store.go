// Package sqlite provides a SQLite-backed resident directory store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Thiagoxp95/portaria/internal/platform/storage/sqlitedb"
	"github.com/Thiagoxp95/portaria/internal/platform/storage/sqlitemigrate"
	"github.com/Thiagoxp95/portaria/internal/services/directory/storage"
	"github.com/Thiagoxp95/portaria/internal/services/directory/storage/sqlite/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store persists resident rows in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite directory store and applies embedded migrations.
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

// CreateResident inserts one resident row.
func (s *Store) CreateResident(ctx context.Context, resident storage.Resident) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	apartment := strings.TrimSpace(resident.ApartmentNumber)
	phone := strings.TrimSpace(resident.PhoneNumber)
	if apartment == "" {
		return fmt.Errorf("apartment number is required")
	}
	if phone == "" {
		return fmt.Errorf("phone number is required")
	}
	createdAt := resident.CreatedAt.UTC()
	updatedAt := resident.UpdatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO residents (
		   apartment_number,
		   phone_number,
		   resident_name,
		   notes,
		   is_active,
		   created_at,
		   updated_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		apartment,
		phone,
		strings.TrimSpace(resident.ResidentName),
		strings.TrimSpace(resident.Notes),
		boolToInt(resident.Active),
		toMillis(createdAt),
		toMillis(updatedAt),
	)
	if err != nil {
		if isResidentUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("create resident: %w", err)
	}
	return nil
}

// GetResident returns one resident by apartment number. Matching is exact and
// case-sensitive.
func (s *Store) GetResident(ctx context.Context, apartmentNumber string) (storage.Resident, error) {
	if err := ctx.Err(); err != nil {
		return storage.Resident{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Resident{}, fmt.Errorf("storage is not configured")
	}
	// Lookup is exact: no trimming or normalization of the key.
	if apartmentNumber == "" {
		return storage.Resident{}, fmt.Errorf("apartment number is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT apartment_number, phone_number, resident_name, notes, is_active,
		        created_at, updated_at
		   FROM residents
		  WHERE apartment_number = ?`,
		apartmentNumber,
	)
	return scanResident(row)
}

// UpdateResident applies a partial update to one resident row.
func (s *Store) UpdateResident(ctx context.Context, apartmentNumber string, update storage.ResidentUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	apartmentNumber = strings.TrimSpace(apartmentNumber)
	if apartmentNumber == "" {
		return fmt.Errorf("apartment number is required")
	}

	assignments := make([]string, 0, 5)
	args := make([]any, 0, 6)
	if update.PhoneNumber != nil {
		assignments = append(assignments, "phone_number = ?")
		args = append(args, strings.TrimSpace(*update.PhoneNumber))
	}
	if update.ResidentName != nil {
		assignments = append(assignments, "resident_name = ?")
		args = append(args, strings.TrimSpace(*update.ResidentName))
	}
	if update.Notes != nil {
		assignments = append(assignments, "notes = ?")
		args = append(args, strings.TrimSpace(*update.Notes))
	}
	if update.Active != nil {
		assignments = append(assignments, "is_active = ?")
		args = append(args, boolToInt(*update.Active))
	}
	if len(assignments) == 0 {
		return nil
	}
	assignments = append(assignments, "updated_at = ?")
	args = append(args, toMillis(time.Now()))
	args = append(args, apartmentNumber)

	result, err := s.sqlDB.ExecContext(
		ctx,
		"UPDATE residents SET "+strings.Join(assignments, ", ")+" WHERE apartment_number = ?",
		args...,
	)
	if err != nil {
		return fmt.Errorf("update resident: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update resident: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListResidents returns directory rows ordered by apartment number.
func (s *Store) ListResidents(ctx context.Context, includeInactive bool) ([]storage.Resident, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	query := `SELECT apartment_number, phone_number, resident_name, notes, is_active,
	                 created_at, updated_at
	            FROM residents`
	if !includeInactive {
		query += " WHERE is_active = 1"
	}
	query += " ORDER BY apartment_number ASC"

	rows, err := s.sqlDB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list residents: %w", err)
	}
	defer rows.Close()

	var residents []storage.Resident
	for rows.Next() {
		resident, err := scanResident(rows)
		if err != nil {
			return nil, fmt.Errorf("list residents: %w", err)
		}
		residents = append(residents, resident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list residents: %w", err)
	}
	return residents, nil
}

// DeleteResident removes one resident row.
func (s *Store) DeleteResident(ctx context.Context, apartmentNumber string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	apartmentNumber = strings.TrimSpace(apartmentNumber)
	if apartmentNumber == "" {
		return fmt.Errorf("apartment number is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, "DELETE FROM residents WHERE apartment_number = ?", apartmentNumber)
	if err != nil {
		return fmt.Errorf("delete resident: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete resident: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResident(row rowScanner) (storage.Resident, error) {
	var resident storage.Resident
	var active int
	var createdAt int64
	var updatedAt int64
	err := row.Scan(
		&resident.ApartmentNumber,
		&resident.PhoneNumber,
		&resident.ResidentName,
		&resident.Notes,
		&active,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Resident{}, storage.ErrNotFound
		}
		return storage.Resident{}, fmt.Errorf("scan resident: %w", err)
	}
	resident.Active = active != 0
	resident.CreatedAt = fromMillis(createdAt)
	resident.UpdatedAt = fromMillis(updatedAt)
	return resident, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func isResidentUniqueViolation(err error) bool {
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
		strings.Contains(message, "residents.apartment_number")
}

var _ storage.ResidentStore = (*Store)(nil)
