package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Round statuses. Transitions are monotonic: waiting -> active -> completed.
const (
	RoundStatusWaiting   = "waiting"
	RoundStatusActive    = "active"
	RoundStatusCompleted = "completed"
)

// Round is one timed game instance with a single drawn outcome.
// Rounds are append-only history; they are never deleted.
type Round struct {
	ID      string `gorm:"primaryKey;type:uuid"`
	Variant string `gorm:"type:varchar(30);not null;index;default:'pick10'"`

	StartTime time.Time `gorm:"type:timestamptz;not null"`
	EndTime   time.Time `gorm:"type:timestamptz;not null;index"`
	Status    string    `gorm:"type:varchar(20);not null;index"`

	// Outcome is set exactly when the round completes.
	Outcome *int `gorm:"type:int"`

	ParticipantCount int             `gorm:"not null;default:0"`
	TotalStake       decimal.Decimal `gorm:"type:numeric(30,9);not null;default:0"`
	WinnerCount      int             `gorm:"not null;default:0"`
	PrizePerWinner   decimal.Decimal `gorm:"type:numeric(30,9);not null;default:0"`

	// ForcedClosed marks rounds completed through the degraded error path
	// (settlement failed, round closed to keep the schedule moving).
	ForcedClosed bool `gorm:"not null;default:false"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Round) TableName() string {
	return "rounds"
}

// Pending reports whether the round still occupies the single pending slot.
func (r *Round) Pending() bool {
	return r != nil && (r.Status == RoundStatusWaiting || r.Status == RoundStatusActive)
}
