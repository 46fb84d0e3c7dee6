package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"guessrounds/internal/models"
)

// Repository is the persistence surface of the round lifecycle engine.
// Methods suffixed Tx participate in a transaction opened via InTx; the
// conditional updates return whether the guarded write actually hit a row,
// which is the engine's only concurrency primitive.
type Repository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	// Rounds.
	InsertRoundTx(ctx context.Context, tx *gorm.DB, item *models.Round) error
	GetRoundByID(ctx context.Context, id string) (*models.Round, error)
	ListExpiredActiveRounds(ctx context.Context, variant string, now time.Time) ([]models.Round, error)
	ListDueWaitingRounds(ctx context.Context, variant string, now time.Time) ([]models.Round, error)
	GetPendingRound(ctx context.Context, variant string) (*models.Round, error)
	GetPendingRoundTx(ctx context.Context, tx *gorm.DB, variant string) (*models.Round, error)
	ListRecentRounds(ctx context.Context, variant string, limit int) ([]models.Round, error)
	// ActivateRound flips waiting -> active. False when another invocation
	// already moved the round on.
	ActivateRound(ctx context.Context, id string) (bool, error)
	// CompleteRound finalizes an active round. The update is filtered on
	// status = active so a racing settlement affects zero rows.
	CompleteRound(ctx context.Context, id string, result RoundResult) (bool, error)

	// Round pointer (single pending round guard).
	GetRoundPointerForUpdateTx(ctx context.Context, tx *gorm.DB, variant string) (*models.RoundPointer, error)
	SaveRoundPointerTx(ctx context.Context, tx *gorm.DB, item *models.RoundPointer) error

	// Entries.
	InsertEntry(ctx context.Context, item *models.Entry) error
	GetEntryByID(ctx context.Context, id string) (*models.Entry, error)
	ListEntriesByRoundID(ctx context.Context, roundID string) ([]models.Entry, error)
	MarkEntryWinner(ctx context.Context, id string, prize decimal.Decimal) error
	// LockEntryForClaim is the claim-side compare-and-set: it sets
	// reward_claimed = true plus the sentinel tx ref, guarded by
	// reward_claimed = false. False means a concurrent claim won the race.
	LockEntryForClaim(ctx context.Context, id string, sentinelRef string) (bool, error)
	FinalizeEntryClaim(ctx context.Context, id string, txRef string) error
	RollbackEntryClaim(ctx context.Context, id string) error

	// System configuration (read-only).
	GetSystemConfig(ctx context.Context) (*models.SystemConfig, error)

	// Payout audits.
	InsertPayoutAudit(ctx context.Context, item *models.PayoutAudit) error
	ListPayoutAuditsByStatus(ctx context.Context, status string, limit int) ([]models.PayoutAudit, error)
	UpdatePayoutAuditStatus(ctx context.Context, id uint64, status string, raw []byte, checkedAt time.Time) error
}

// RoundResult carries the settlement outputs persisted at completion.
type RoundResult struct {
	Outcome          int
	ParticipantCount int
	TotalStake       decimal.Decimal
	WinnerCount      int
	PrizePerWinner   decimal.Decimal
	ForcedClosed     bool
}
