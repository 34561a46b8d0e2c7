package model

import (
	"errors"
	"testing"
	"time"
)

func TestBicycleTransitions(t *testing.T) {
	tests := []struct {
		name    string
		status  BicycleStatus
		op      func(b *Bicycle) error
		wantErr bool
		want    BicycleStatus
	}{
		{
			name:   "start rental from available",
			status: BicycleStatusAvailable,
			op:     func(b *Bicycle) error { return b.StartRental() },
			want:   BicycleStatusRented,
		},
		{
			name:    "start rental from rented",
			status:  BicycleStatusRented,
			op:      func(b *Bicycle) error { return b.StartRental() },
			wantErr: true,
		},
		{
			name:    "start rental from maintenance",
			status:  BicycleStatusUnavailable,
			op:      func(b *Bicycle) error { return b.StartRental() },
			wantErr: true,
		},
		{
			name:   "end rental from rented",
			status: BicycleStatusRented,
			op:     func(b *Bicycle) error { return b.EndRental(2) },
			want:   BicycleStatusAvailable,
		},
		{
			name:    "end rental from available",
			status:  BicycleStatusAvailable,
			op:      func(b *Bicycle) error { return b.EndRental(2) },
			wantErr: true,
		},
		{
			name:   "start maintenance from available",
			status: BicycleStatusAvailable,
			op:     func(b *Bicycle) error { return b.StartMaintenance() },
			want:   BicycleStatusUnavailable,
		},
		{
			name:    "start maintenance from rented",
			status:  BicycleStatusRented,
			op:      func(b *Bicycle) error { return b.StartMaintenance() },
			wantErr: true,
		},
		{
			name:   "complete maintenance from maintenance",
			status: BicycleStatusUnavailable,
			op:     func(b *Bicycle) error { return b.CompleteMaintenance(time.Now()) },
			want:   BicycleStatusAvailable,
		},
		{
			name:    "complete maintenance from available",
			status:  BicycleStatusAvailable,
			op:      func(b *Bicycle) error { return b.CompleteMaintenance(time.Now()) },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &Bicycle{ID: 1, Status: tt.status}

			err := tt.op(b)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("expected ErrInvalidTransition, got %v", err)
				}
				if b.Status != tt.status {
					t.Fatalf("status changed on failed transition: %s -> %s", tt.status, b.Status)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if b.Status != tt.want {
				t.Fatalf("status = %s, want %s", b.Status, tt.want)
			}
		})
	}
}

func TestBicycleEndRentalSetsStation(t *testing.T) {
	b := &Bicycle{ID: 1, Status: BicycleStatusRented}

	if err := b.EndRental(7); err != nil {
		t.Fatalf("end rental: %v", err)
	}
	if b.StationID == nil || *b.StationID != 7 {
		t.Fatalf("station not set after end rental: %v", b.StationID)
	}
}

func TestBicycleCompleteMaintenanceResetsMileage(t *testing.T) {
	serviced := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b := &Bicycle{ID: 1, Status: BicycleStatusUnavailable, Mileage: 60}

	if err := b.CompleteMaintenance(serviced); err != nil {
		t.Fatalf("complete maintenance: %v", err)
	}
	if b.Mileage != 0 {
		t.Fatalf("mileage = %d, want 0", b.Mileage)
	}
	if !b.LastServiceAt.Equal(serviced) {
		t.Fatalf("last service at = %v, want %v", b.LastServiceAt, serviced)
	}
}

func TestBicycleAddMileage(t *testing.T) {
	b := &Bicycle{ID: 1, Status: BicycleStatusRented, Mileage: 10}

	if err := b.AddMileage(15); err != nil {
		t.Fatalf("add mileage: %v", err)
	}
	if b.Mileage != 25 {
		t.Fatalf("mileage = %d, want 25", b.Mileage)
	}

	if err := b.AddMileage(-1); !errors.Is(err, ErrNegativeMileage) {
		t.Fatalf("expected ErrNegativeMileage, got %v", err)
	}
	if b.Mileage != 25 {
		t.Fatalf("mileage changed on failed add: %d", b.Mileage)
	}
}

func TestBicycleNeedsService(t *testing.T) {
	b := &Bicycle{Mileage: ServiceThresholdMileage}
	if b.NeedsService() {
		t.Fatalf("mileage at threshold must not need service")
	}

	b.Mileage = ServiceThresholdMileage + 1
	if !b.NeedsService() {
		t.Fatalf("mileage above threshold must need service")
	}
}
