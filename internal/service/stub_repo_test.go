package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"guessrounds/internal/models"
	"guessrounds/internal/repository"
)

// stubRepo is a test-only in-memory implementation of repository.Repository.
// The mutex stands in for the database's row-level guarantees: InTx holds it
// for the whole callback, which is how the pointer-row lock serializes
// concurrent round creation in production.
type stubRepo struct {
	mu       sync.Mutex
	rounds   map[string]*models.Round
	entries  map[string]*models.Entry
	pointers map[string]*models.RoundPointer
	sysCfg   *models.SystemConfig
	audits   []*models.PayoutAudit

	failRollback bool
	failFinalize bool
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		rounds:   map[string]*models.Round{},
		entries:  map[string]*models.Entry{},
		pointers: map[string]*models.RoundPointer{},
		sysCfg: &models.SystemConfig{
			ID:                    1,
			PlatformFeePercentage: decimal.RequireFromString("0.03"),
			EntryFee:              decimal.RequireFromString("0.1"),
		},
	}
}

func (s *stubRepo) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(nil)
}

func (s *stubRepo) InsertRoundTx(ctx context.Context, tx *gorm.DB, item *models.Round) error {
	cp := *item
	s.rounds[item.ID] = &cp
	return nil
}

func (s *stubRepo) GetRoundByID(ctx context.Context, id string) (*models.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rounds[id]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, nil
}

func (s *stubRepo) ListExpiredActiveRounds(ctx context.Context, variant string, now time.Time) ([]models.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Round
	for _, r := range s.rounds {
		if r.Variant == variant && r.Status == models.RoundStatusActive && !r.EndTime.After(now) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndTime.Before(out[j].EndTime) })
	return out, nil
}

func (s *stubRepo) ListDueWaitingRounds(ctx context.Context, variant string, now time.Time) ([]models.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Round
	for _, r := range s.rounds {
		if r.Variant == variant && r.Status == models.RoundStatusWaiting && !r.StartTime.After(now) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (s *stubRepo) pendingLocked(variant string) *models.Round {
	var best *models.Round
	for _, r := range s.rounds {
		if r.Variant != variant || !r.Pending() {
			continue
		}
		if best == nil || r.EndTime.After(best.EndTime) {
			best = r
		}
	}
	if best == nil {
		return nil
	}
	cp := *best
	return &cp
}

func (s *stubRepo) GetPendingRound(ctx context.Context, variant string) (*models.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingLocked(variant), nil
}

func (s *stubRepo) GetPendingRoundTx(ctx context.Context, tx *gorm.DB, variant string) (*models.Round, error) {
	return s.pendingLocked(variant), nil
}

func (s *stubRepo) ListRecentRounds(ctx context.Context, variant string, limit int) ([]models.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Round
	for _, r := range s.rounds {
		if r.Variant == variant {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndTime.After(out[j].EndTime) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *stubRepo) ActivateRound(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[id]
	if !ok || r.Status != models.RoundStatusWaiting {
		return false, nil
	}
	r.Status = models.RoundStatusActive
	return true, nil
}

func (s *stubRepo) CompleteRound(ctx context.Context, id string, result repository.RoundResult) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[id]
	if !ok || r.Status != models.RoundStatusActive {
		return false, nil
	}
	outcome := result.Outcome
	r.Status = models.RoundStatusCompleted
	r.Outcome = &outcome
	r.ParticipantCount = result.ParticipantCount
	r.TotalStake = result.TotalStake
	r.WinnerCount = result.WinnerCount
	r.PrizePerWinner = result.PrizePerWinner
	r.ForcedClosed = result.ForcedClosed
	return true, nil
}

func (s *stubRepo) GetRoundPointerForUpdateTx(ctx context.Context, tx *gorm.DB, variant string) (*models.RoundPointer, error) {
	if p, ok := s.pointers[variant]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (s *stubRepo) SaveRoundPointerTx(ctx context.Context, tx *gorm.DB, item *models.RoundPointer) error {
	cp := *item
	s.pointers[item.Variant] = &cp
	return nil
}

func (s *stubRepo) InsertEntry(ctx context.Context, item *models.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.RoundID == item.RoundID && e.ParticipantAddress == item.ParticipantAddress {
			return fmt.Errorf("stub: duplicate round participant")
		}
	}
	cp := *item
	s.entries[item.ID] = &cp
	return nil
}

func (s *stubRepo) GetEntryByID(ctx context.Context, id string) (*models.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, nil
}

func (s *stubRepo) ListEntriesByRoundID(ctx context.Context, roundID string) ([]models.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Entry
	for _, e := range s.entries {
		if e.RoundID == roundID {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *stubRepo) MarkEntryWinner(ctx context.Context, id string, prize decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("stub: entry %s not found", id)
	}
	e.IsWinner = true
	e.PrizeAmount = prize
	return nil
}

func (s *stubRepo) LockEntryForClaim(ctx context.Context, id string, sentinelRef string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok || e.RewardClaimed {
		return false, nil
	}
	e.RewardClaimed = true
	ref := sentinelRef
	e.RewardTxRef = &ref
	return true, nil
}

func (s *stubRepo) FinalizeEntryClaim(ctx context.Context, id string, txRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFinalize {
		return fmt.Errorf("stub: finalize failed")
	}
	e, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("stub: entry %s not found", id)
	}
	ref := txRef
	e.RewardClaimed = true
	e.RewardTxRef = &ref
	return nil
}

func (s *stubRepo) RollbackEntryClaim(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failRollback {
		return fmt.Errorf("stub: rollback failed")
	}
	e, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("stub: entry %s not found", id)
	}
	e.RewardClaimed = false
	e.RewardTxRef = nil
	return nil
}

func (s *stubRepo) GetSystemConfig(ctx context.Context) (*models.SystemConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sysCfg == nil {
		return nil, nil
	}
	cp := *s.sysCfg
	return &cp, nil
}

func (s *stubRepo) InsertPayoutAudit(ctx context.Context, item *models.PayoutAudit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *item
	cp.ID = uint64(len(s.audits) + 1)
	s.audits = append(s.audits, &cp)
	return nil
}

func (s *stubRepo) ListPayoutAuditsByStatus(ctx context.Context, status string, limit int) ([]models.PayoutAudit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PayoutAudit
	for _, a := range s.audits {
		if a.Status == status {
			out = append(out, *a)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *stubRepo) UpdatePayoutAuditStatus(ctx context.Context, id uint64, status string, raw []byte, checkedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.audits {
		if a.ID == id {
			a.Status = status
			a.RawStatus = raw
			t := checkedAt
			a.CheckedAt = &t
			return nil
		}
	}
	return fmt.Errorf("stub: audit %d not found", id)
}
