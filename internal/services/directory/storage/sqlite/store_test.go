package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/Thiagoxp95/portaria/internal/services/directory/storage"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "directory.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(""); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestCreateGetResidentRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	input := storage.Resident{
		ApartmentNumber: "1507",
		PhoneNumber:     "+5511999999999",
		ResidentName:    "Maria Souza",
		Notes:           "prefers evening deliveries",
		Active:          true,
	}
	if err := store.CreateResident(context.Background(), input); err != nil {
		t.Fatalf("create resident: %v", err)
	}

	got, err := store.GetResident(context.Background(), "1507")
	if err != nil {
		t.Fatalf("get resident: %v", err)
	}
	if got.PhoneNumber != input.PhoneNumber {
		t.Fatalf("phone = %q, want %q", got.PhoneNumber, input.PhoneNumber)
	}
	if got.ResidentName != input.ResidentName {
		t.Fatalf("name = %q, want %q", got.ResidentName, input.ResidentName)
	}
	if !got.Active {
		t.Fatal("expected resident to be active")
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Fatal("expected timestamps to be set")
	}
}

func TestGetResidentMatchIsCaseSensitive(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	if err := store.CreateResident(context.Background(), storage.Resident{
		ApartmentNumber: "23B",
		PhoneNumber:     "+5511888888888",
		Active:          true,
	}); err != nil {
		t.Fatalf("create resident: %v", err)
	}

	if _, err := store.GetResident(context.Background(), "23b"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("lowercase lookup error = %v, want %v", err, storage.ErrNotFound)
	}
}

func TestGetResidentMatchIsExact(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	if err := store.CreateResident(context.Background(), storage.Resident{
		ApartmentNumber: "1203",
		PhoneNumber:     "+5511999999999",
		Active:          true,
	}); err != nil {
		t.Fatalf("create resident: %v", err)
	}

	if _, err := store.GetResident(context.Background(), " 1203"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("padded lookup error = %v, want %v", err, storage.ErrNotFound)
	}
	if _, err := store.GetResident(context.Background(), "1203 "); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("padded lookup error = %v, want %v", err, storage.ErrNotFound)
	}
}

func TestCreateResidentRejectsDuplicateApartment(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	input := storage.Resident{
		ApartmentNumber: "1507",
		PhoneNumber:     "+5511999999999",
		Active:          true,
	}
	if err := store.CreateResident(context.Background(), input); err != nil {
		t.Fatalf("create resident: %v", err)
	}

	input.PhoneNumber = "+5511000000000"
	err := store.CreateResident(context.Background(), input)
	if !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("duplicate create error = %v, want %v", err, storage.ErrAlreadyExists)
	}

	got, err := store.GetResident(context.Background(), "1507")
	if err != nil {
		t.Fatalf("get resident: %v", err)
	}
	if got.PhoneNumber != "+5511999999999" {
		t.Fatalf("first row changed by failed duplicate: phone = %q", got.PhoneNumber)
	}
}

func TestUpdateResidentPartialFields(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	if err := store.CreateResident(context.Background(), storage.Resident{
		ApartmentNumber: "1203",
		PhoneNumber:     "+5511777777777",
		ResidentName:    "João Lima",
		Active:          true,
	}); err != nil {
		t.Fatalf("create resident: %v", err)
	}

	inactive := false
	if err := store.UpdateResident(context.Background(), "1203", storage.ResidentUpdate{
		Active: &inactive,
	}); err != nil {
		t.Fatalf("update resident: %v", err)
	}

	got, err := store.GetResident(context.Background(), "1203")
	if err != nil {
		t.Fatalf("get resident: %v", err)
	}
	if got.Active {
		t.Fatal("expected resident to be inactive")
	}
	if got.PhoneNumber != "+5511777777777" {
		t.Fatalf("phone changed by partial update: %q", got.PhoneNumber)
	}
	if got.ResidentName != "João Lima" {
		t.Fatalf("name changed by partial update: %q", got.ResidentName)
	}
}

func TestUpdateResidentMissingRow(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	phone := "+5511666666666"
	err := store.UpdateResident(context.Background(), "9999", storage.ResidentUpdate{PhoneNumber: &phone})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("update missing row error = %v, want %v", err, storage.ErrNotFound)
	}
}

func TestListResidentsFiltersInactive(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	for _, resident := range []storage.Resident{
		{ApartmentNumber: "101", PhoneNumber: "+551101", Active: true},
		{ApartmentNumber: "102", PhoneNumber: "+551102", Active: false},
		{ApartmentNumber: "103", PhoneNumber: "+551103", Active: true},
	} {
		if err := store.CreateResident(context.Background(), resident); err != nil {
			t.Fatalf("create resident %s: %v", resident.ApartmentNumber, err)
		}
	}

	active, err := store.ListResidents(context.Background(), false)
	if err != nil {
		t.Fatalf("list active residents: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("active residents = %d, want 2", len(active))
	}

	all, err := store.ListResidents(context.Background(), true)
	if err != nil {
		t.Fatalf("list all residents: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("all residents = %d, want 3", len(all))
	}
	if all[0].ApartmentNumber != "101" {
		t.Fatalf("expected apartment order, got %q first", all[0].ApartmentNumber)
	}
}

func TestDeleteResident(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	if err := store.CreateResident(context.Background(), storage.Resident{
		ApartmentNumber: "808",
		PhoneNumber:     "+551108",
		Active:          true,
	}); err != nil {
		t.Fatalf("create resident: %v", err)
	}

	if err := store.DeleteResident(context.Background(), "808"); err != nil {
		t.Fatalf("delete resident: %v", err)
	}
	if _, err := store.GetResident(context.Background(), "808"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("get after delete error = %v, want %v", err, storage.ErrNotFound)
	}
	if err := store.DeleteResident(context.Background(), "808"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("second delete error = %v, want %v", err, storage.ErrNotFound)
	}
}
