package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Payout audit statuses. A payout is recorded as dispatched the moment the
// network accepts the transaction; the reconciler later flips it to
// confirmed or failed. Entries are never unclaimed by reconciliation.
const (
	PayoutStatusDispatched = "dispatched"
	PayoutStatusConfirmed  = "confirmed"
	PayoutStatusFailed     = "failed"
)

// PayoutAudit records one dispatched prize transfer per successful claim.
type PayoutAudit struct {
	ID      uint64 `gorm:"primaryKey;autoIncrement"`
	EntryID string `gorm:"type:uuid;not null;index"`
	RoundID string `gorm:"type:uuid;not null;index"`

	Signature string          `gorm:"type:varchar(128);not null;uniqueIndex"`
	Amount    decimal.Decimal `gorm:"type:numeric(30,9);not null"`
	Recipient string          `gorm:"type:varchar(64);not null"`

	Status    string         `gorm:"type:varchar(20);not null;index;default:'dispatched'"`
	RawStatus datatypes.JSON `gorm:"type:jsonb"`

	CheckedAt *time.Time `gorm:"type:timestamptz"`
	CreatedAt time.Time  `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"type:timestamptz;autoUpdateTime"`
}

func (PayoutAudit) TableName() string {
	return "payout_audits"
}
