package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ClaimSentinelRef is written into reward_tx_ref while a claim holds the
// optimistic lock but the on-chain transfer has not been submitted yet.
const ClaimSentinelRef = "pending"

// Entry is one player's participation in a round. SelectedValue is immutable
// after creation; the winner fields are written once by settlement and the
// claim fields once by the claim workflow (rollback excepted).
type Entry struct {
	ID      string `gorm:"primaryKey;type:uuid"`
	RoundID string `gorm:"type:uuid;not null;index;uniqueIndex:ux_round_participant"`

	ParticipantAddress string `gorm:"type:varchar(64);not null;index;uniqueIndex:ux_round_participant"`
	SelectedValue      int    `gorm:"not null"`
	StakeTxRef         string `gorm:"type:varchar(128);not null"`

	IsWinner    bool            `gorm:"not null;default:false"`
	PrizeAmount decimal.Decimal `gorm:"type:numeric(30,9);not null;default:0"`

	RewardClaimed bool    `gorm:"not null;default:false"`
	RewardTxRef   *string `gorm:"type:varchar(128)"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Entry) TableName() string {
	return "entries"
}
