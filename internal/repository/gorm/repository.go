package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"guessrounds/internal/models"
	"guessrounds/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// --- Rounds -----------------------------------------------------------------

func (s *Store) InsertRoundTx(ctx context.Context, tx *gorm.DB, item *models.Round) error {
	if s == nil || item == nil {
		return nil
	}
	if tx == nil {
		tx = s.db
	}
	return tx.WithContext(ctx).Create(item).Error
}

func (s *Store) GetRoundByID(ctx context.Context, id string) (*models.Round, error) {
	if s == nil || s.db == nil || strings.TrimSpace(id) == "" {
		return nil, nil
	}
	var item models.Round
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListExpiredActiveRounds(ctx context.Context, variant string, now time.Time) ([]models.Round, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Round
	err := s.db.WithContext(ctx).
		Where("variant = ?", variant).
		Where("status = ?", models.RoundStatusActive).
		Where("end_time < ?", now).
		Order("end_time asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListDueWaitingRounds(ctx context.Context, variant string, now time.Time) ([]models.Round, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Round
	err := s.db.WithContext(ctx).
		Where("variant = ?", variant).
		Where("status = ?", models.RoundStatusWaiting).
		Where("start_time < ?", now).
		Order("start_time asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) GetPendingRound(ctx context.Context, variant string) (*models.Round, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	return pendingRound(s.db.WithContext(ctx), variant)
}

func (s *Store) GetPendingRoundTx(ctx context.Context, tx *gorm.DB, variant string) (*models.Round, error) {
	if s == nil {
		return nil, nil
	}
	if tx == nil {
		tx = s.db
	}
	return pendingRound(tx.WithContext(ctx), variant)
}

func pendingRound(q *gorm.DB, variant string) (*models.Round, error) {
	var item models.Round
	err := q.
		Where("variant = ?", variant).
		Where("status IN ?", []string{models.RoundStatusWaiting, models.RoundStatusActive}).
		Order("end_time desc").
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListRecentRounds(ctx context.Context, variant string, limit int) ([]models.Round, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	query := s.db.WithContext(ctx).Model(&models.Round{})
	if strings.TrimSpace(variant) != "" {
		query = query.Where("variant = ?", variant)
	}
	var items []models.Round
	if err := query.Order("end_time desc").Limit(limit).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ActivateRound(ctx context.Context, id string) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	res := s.db.WithContext(ctx).
		Model(&models.Round{}).
		Where("id = ?", id).
		Where("status = ?", models.RoundStatusWaiting).
		Updates(map[string]any{
			"status":     models.RoundStatusActive,
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected > 0, res.Error
}

func (s *Store) CompleteRound(ctx context.Context, id string, result repository.RoundResult) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	res := s.db.WithContext(ctx).
		Model(&models.Round{}).
		Where("id = ?", id).
		Where("status = ?", models.RoundStatusActive).
		Updates(map[string]any{
			"status":            models.RoundStatusCompleted,
			"outcome":           result.Outcome,
			"participant_count": result.ParticipantCount,
			"total_stake":       result.TotalStake,
			"winner_count":      result.WinnerCount,
			"prize_per_winner":  result.PrizePerWinner,
			"forced_closed":     result.ForcedClosed,
			"updated_at":        time.Now().UTC(),
		})
	return res.RowsAffected > 0, res.Error
}

// --- Round pointer ----------------------------------------------------------

func (s *Store) GetRoundPointerForUpdateTx(ctx context.Context, tx *gorm.DB, variant string) (*models.RoundPointer, error) {
	if s == nil {
		return nil, nil
	}
	if tx == nil {
		tx = s.db
	}
	var item models.RoundPointer
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("variant = ?", variant).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) SaveRoundPointerTx(ctx context.Context, tx *gorm.DB, item *models.RoundPointer) error {
	if s == nil || item == nil {
		return nil
	}
	if tx == nil {
		tx = s.db
	}
	return tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "variant"}},
		DoUpdates: clause.AssignmentColumns([]string{"round_id", "updated_at"}),
	}).Create(item).Error
}

// --- Entries ----------------------------------------------------------------

func (s *Store) InsertEntry(ctx context.Context, item *models.Entry) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetEntryByID(ctx context.Context, id string) (*models.Entry, error) {
	if s == nil || s.db == nil || strings.TrimSpace(id) == "" {
		return nil, nil
	}
	var item models.Entry
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListEntriesByRoundID(ctx context.Context, roundID string) ([]models.Entry, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Entry
	err := s.db.WithContext(ctx).
		Where("round_id = ?", roundID).
		Order("created_at asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) MarkEntryWinner(ctx context.Context, id string, prize decimal.Decimal) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.Entry{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"is_winner":      true,
			"prize_amount":   prize,
			"reward_claimed": false,
			"updated_at":     time.Now().UTC(),
		}).Error
}

func (s *Store) LockEntryForClaim(ctx context.Context, id string, sentinelRef string) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	res := s.db.WithContext(ctx).
		Model(&models.Entry{}).
		Where("id = ?", id).
		Where("reward_claimed = ?", false).
		Updates(map[string]any{
			"reward_claimed": true,
			"reward_tx_ref":  sentinelRef,
			"updated_at":     time.Now().UTC(),
		})
	return res.RowsAffected > 0, res.Error
}

func (s *Store) FinalizeEntryClaim(ctx context.Context, id string, txRef string) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.Entry{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"reward_tx_ref": txRef,
			"updated_at":    time.Now().UTC(),
		}).Error
}

func (s *Store) RollbackEntryClaim(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.Entry{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"reward_claimed": false,
			"reward_tx_ref":  nil,
			"updated_at":     time.Now().UTC(),
		}).Error
}

// --- System config ----------------------------------------------------------

func (s *Store) GetSystemConfig(ctx context.Context) (*models.SystemConfig, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.SystemConfig
	err := s.db.WithContext(ctx).Order("id asc").First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// --- Payout audits ----------------------------------------------------------

func (s *Store) InsertPayoutAudit(ctx context.Context, item *models.PayoutAudit) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListPayoutAuditsByStatus(ctx context.Context, status string, limit int) ([]models.PayoutAudit, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	var items []models.PayoutAudit
	err := s.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at asc").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) UpdatePayoutAuditStatus(ctx context.Context, id uint64, status string, raw []byte, checkedAt time.Time) error {
	if s == nil || s.db == nil {
		return nil
	}
	updates := map[string]any{
		"status":     status,
		"checked_at": checkedAt,
		"updated_at": time.Now().UTC(),
	}
	if len(raw) > 0 {
		updates["raw_status"] = raw
	}
	return s.db.WithContext(ctx).
		Model(&models.PayoutAudit{}).
		Where("id = ?", id).
		Updates(updates).Error
}
