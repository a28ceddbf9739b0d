package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	StatusSubmitted = "submitted"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Terminal reports whether a status admits no further transitions.
func Terminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

// Job is the persisted lifecycle record for one computation. Exactly one row
// exists per fingerprint; the UID is the client-facing handle and is
// independent of the fingerprint.
type Job struct {
	UID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"uid"`
	Fingerprint string         `gorm:"column:fingerprint;not null;uniqueIndex" json:"-"`
	Kind        string         `gorm:"column:kind;not null;index" json:"kind"`
	Status      string         `gorm:"column:status;not null;index" json:"status"`
	Error       string         `gorm:"column:error" json:"error,omitempty"`
	Params      datatypes.JSON `gorm:"column:params" json:"params"`
	Result      datatypes.JSON `gorm:"column:result" json:"result,omitempty"`
	CreatedAt   time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null" json:"updated_at"`
}

func (Job) TableName() string { return "job" }
