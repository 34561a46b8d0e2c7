package model

import "time"

// RepairStatus описывает статус ремонта.
type RepairStatus string

const (
	RepairStatusInProgress RepairStatus = "IN_PROGRESS"
	RepairStatusCompleted  RepairStatus = "COMPLETED"
)

// Repair представляет ремонт велосипеда.
type Repair struct {
	ID           int64
	Version      int64
	BicycleID    int64
	TechnicianID int64
	Description  string
	Status       RepairStatus
	StartedAt    time.Time
	EndedAt      *time.Time
}

// NewRepair создаёт незавершённый ремонт.
func NewRepair(bicycleID, technicianID int64, description string, now time.Time) *Repair {
	return &Repair{
		BicycleID:    bicycleID,
		TechnicianID: technicianID,
		Description:  description,
		Status:       RepairStatusInProgress,
		StartedAt:    now,
	}
}

// IsInProgress сообщает, выполняется ли ремонт.
func (r *Repair) IsInProgress() bool {
	return r.Status == RepairStatusInProgress
}

// Complete завершает незавершённый ремонт.
func (r *Repair) Complete(now time.Time) error {
	if !r.IsInProgress() {
		return ErrRepairNotActive
	}
	r.Status = RepairStatusCompleted
	r.EndedAt = &now
	return nil
}
