// Package directory resolves apartment numbers to resident contact details.
package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Thiagoxp95/portaria/internal/services/directory/storage"
)

// ErrInactive indicates a resident row exists but is flagged inactive.
// It is distinct from storage.ErrNotFound so callers can tell an unknown
// apartment apart from one that opted out.
var ErrInactive = errors.New("resident is inactive")

// Contact is the lookup result handed to the consent flow.
type Contact struct {
	ApartmentNumber string
	PhoneNumber     string
	ResidentName    string
}

// Service reads and manages the resident directory.
type Service struct {
	store storage.ResidentStore
}

// NewService creates a directory service over the provided store.
func NewService(store storage.ResidentStore) *Service {
	return &Service{store: store}
}

// Lookup resolves an apartment number to the resident's contact details.
// It returns storage.ErrNotFound when no row matches and ErrInactive when the
// matching resident is flagged inactive. Lookup has no side effects.
func (s *Service) Lookup(ctx context.Context, apartmentNumber string) (Contact, error) {
	if s == nil || s.store == nil {
		return Contact{}, fmt.Errorf("directory store is not configured")
	}
	// Lookup is exact: no trimming or normalization of the key.
	if apartmentNumber == "" {
		return Contact{}, fmt.Errorf("apartment number is required")
	}

	resident, err := s.store.GetResident(ctx, apartmentNumber)
	if err != nil {
		return Contact{}, err
	}
	if !resident.Active {
		return Contact{}, fmt.Errorf("apartment %s: %w", apartmentNumber, ErrInactive)
	}
	return Contact{
		ApartmentNumber: resident.ApartmentNumber,
		PhoneNumber:     resident.PhoneNumber,
		ResidentName:    resident.ResidentName,
	}, nil
}

// AddParams carries the fields for a new directory entry.
type AddParams struct {
	ApartmentNumber string
	PhoneNumber     string
	ResidentName    string
	Notes           string
}

// Add registers a resident for an apartment. Adding a second resident for the
// same apartment fails with storage.ErrAlreadyExists; the first row is left
// unchanged.
func (s *Service) Add(ctx context.Context, params AddParams) error {
	if s == nil || s.store == nil {
		return fmt.Errorf("directory store is not configured")
	}
	if strings.TrimSpace(params.ApartmentNumber) == "" {
		return fmt.Errorf("apartment number is required")
	}
	if strings.TrimSpace(params.PhoneNumber) == "" {
		return fmt.Errorf("phone number is required")
	}
	return s.store.CreateResident(ctx, storage.Resident{
		ApartmentNumber: params.ApartmentNumber,
		PhoneNumber:     params.PhoneNumber,
		ResidentName:    params.ResidentName,
		Notes:           params.Notes,
		Active:          true,
	})
}

// Update applies a partial update to one directory entry.
func (s *Service) Update(ctx context.Context, apartmentNumber string, update storage.ResidentUpdate) error {
	if s == nil || s.store == nil {
		return fmt.Errorf("directory store is not configured")
	}
	return s.store.UpdateResident(ctx, apartmentNumber, update)
}

// List returns directory entries ordered by apartment number.
func (s *Service) List(ctx context.Context, includeInactive bool) ([]storage.Resident, error) {
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("directory store is not configured")
	}
	return s.store.ListResidents(ctx, includeInactive)
}

// Delete removes one directory entry.
func (s *Service) Delete(ctx context.Context, apartmentNumber string) error {
	if s == nil || s.store == nil {
		return fmt.Errorf("directory store is not configured")
	}
	return s.store.DeleteResident(ctx, apartmentNumber)
}
