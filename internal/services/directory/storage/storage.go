// Package storage defines persistence contracts for the resident directory.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates no resident row matches the apartment number.
	ErrNotFound = errors.New("resident not found")
	// ErrAlreadyExists indicates the apartment already has a registered resident.
	ErrAlreadyExists = errors.New("resident already exists")
)

// Resident stores one apartment-to-contact mapping.
type Resident struct {
	ApartmentNumber string
	PhoneNumber     string
	ResidentName    string
	Notes           string
	Active          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ResidentUpdate carries a partial update; nil fields are left unchanged.
type ResidentUpdate struct {
	PhoneNumber  *string
	ResidentName *string
	Notes        *string
	Active       *bool
}

// ResidentStore persists resident directory rows keyed by apartment number.
type ResidentStore interface {
	CreateResident(ctx context.Context, resident Resident) error
	GetResident(ctx context.Context, apartmentNumber string) (Resident, error)
	UpdateResident(ctx context.Context, apartmentNumber string, update ResidentUpdate) error
	ListResidents(ctx context.Context, includeInactive bool) ([]Resident, error)
	DeleteResident(ctx context.Context, apartmentNumber string) error
}
