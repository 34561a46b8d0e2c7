package model

import (
	"errors"
	"testing"
	"time"
)

func TestRentalDurationMinutes(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		now  time.Time
		want int64
	}{
		{name: "exact minutes", now: start.Add(10 * time.Minute), want: 10},
		{name: "partial minute truncated", now: start.Add(10*time.Minute + 59*time.Second), want: 10},
		{name: "less than a minute", now: start.Add(30 * time.Second), want: 0},
		{name: "clock behind start", now: start.Add(-5 * time.Minute), want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRental(1, 1, 1, start)
			if got := r.DurationMinutes(tt.now); got != tt.want {
				t.Fatalf("duration = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRentalComplete(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(10 * time.Minute)

	r := NewRental(1, 2, 3, start)
	if err := r.Complete(4, end); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if r.Status != RentalStatusEnded {
		t.Fatalf("status = %s, want %s", r.Status, RentalStatusEnded)
	}
	if r.Cost != 10*CostPerMinute {
		t.Fatalf("cost = %d, want %d", r.Cost, 10*CostPerMinute)
	}
	if r.EndStationID == nil || *r.EndStationID != 4 {
		t.Fatalf("end station = %v, want 4", r.EndStationID)
	}
	if r.EndedAt == nil || !r.EndedAt.Equal(end) {
		t.Fatalf("ended at = %v, want %v", r.EndedAt, end)
	}

	// Повторное завершение должно отклоняться без изменения стоимости.
	if err := r.Complete(5, end.Add(time.Hour)); !errors.Is(err, ErrRentalNotActive) {
		t.Fatalf("expected ErrRentalNotActive, got %v", err)
	}
	if r.Cost != 10*CostPerMinute {
		t.Fatalf("cost changed on repeated complete: %d", r.Cost)
	}
}

func TestRentalCancel(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r := NewRental(1, 2, 3, start)

	if err := r.Cancel(start.Add(time.Minute)); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if r.Status != RentalStatusCancelled {
		t.Fatalf("status = %s, want %s", r.Status, RentalStatusCancelled)
	}
	if r.Cost != 0 {
		t.Fatalf("cost = %d, want 0", r.Cost)
	}
	if r.EndStationID == nil || *r.EndStationID != r.StartStationID {
		t.Fatalf("cancelled rental must return bicycle to start station, got %v", r.EndStationID)
	}

	if err := r.Cancel(start.Add(time.Hour)); !errors.Is(err, ErrRentalNotActive) {
		t.Fatalf("expected ErrRentalNotActive, got %v", err)
	}
}

func TestRepairComplete(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r := NewRepair(1, 2, "flat tire", start)

	end := start.Add(time.Hour)
	if err := r.Complete(end); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if r.Status != RepairStatusCompleted {
		t.Fatalf("status = %s, want %s", r.Status, RepairStatusCompleted)
	}
	if r.EndedAt == nil || !r.EndedAt.Equal(end) {
		t.Fatalf("ended at = %v, want %v", r.EndedAt, end)
	}

	if err := r.Complete(end); !errors.Is(err, ErrRepairNotActive) {
		t.Fatalf("expected ErrRepairNotActive, got %v", err)
	}
}
