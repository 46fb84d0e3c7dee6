package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SystemConfig supplies the treasury wallet and fee parameters. The engine
// treats it as a single always-present row and never writes it.
type SystemConfig struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	TreasuryAddress string `gorm:"type:varchar(64);not null"`
	// Base58-encoded ed25519 secret (32-byte seed or 64-byte expanded key).
	TreasurySecretKey string `gorm:"type:text;not null"`

	PlatformFeePercentage decimal.Decimal `gorm:"type:numeric(10,6);not null;default:0.03"`
	EntryFee              decimal.Decimal `gorm:"type:numeric(30,9);not null;default:0.1"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (SystemConfig) TableName() string {
	return "system_configs"
}
