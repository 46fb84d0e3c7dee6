package models

import "time"

// BootstrapRoundID fills the pointer row before the variant's first round
// exists. The row has to be present to be lockable.
const BootstrapRoundID = "00000000-0000-0000-0000-000000000000"

// RoundPointer is the single-row-per-variant record naming the current
// pending (waiting or active) round. Round creation locks this row, so two
// overlapping scheduler runs can never both insert a new round.
type RoundPointer struct {
	Variant   string    `gorm:"primaryKey;type:varchar(30)"`
	RoundID   string    `gorm:"type:uuid;not null"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (RoundPointer) TableName() string {
	return "round_pointers"
}
