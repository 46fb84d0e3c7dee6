package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"guessrounds/internal/game"
	"guessrounds/internal/metrics"
	"guessrounds/internal/models"
	"guessrounds/internal/realtime"
	"guessrounds/internal/repository"
)

// Scheduler owns the round lifecycle for every configured variant. Each
// invocation settles expired active rounds, activates due waiting rounds
// and guarantees an upcoming round exists. Invocations are stateless and
// may overlap: transitions are monotonic (re-running a no-op is safe) and
// creation serializes on the round pointer row.
type Scheduler struct {
	Repo       repository.Repository
	Settlement *SettlementService
	Variants   []game.Variant
	Logger     *zap.Logger
	Hub        *realtime.Hub
	Metrics    *metrics.Metrics
}

type VariantStats struct {
	Variant         string `json:"variant"`
	ProcessedRounds int    `json:"processed_rounds"`
	ActivatedRounds int    `json:"activated_rounds"`
	CreatedNewRound bool   `json:"created_new_round"`
	CurrentRoundID  string `json:"current_round_id"`
	CurrentStatus   string `json:"current_status"`
}

type RunStats struct {
	ProcessedRounds int            `json:"processed_rounds"`
	ActivatedRounds int            `json:"activated_rounds"`
	CreatedNewRound bool           `json:"created_new_round"`
	CurrentRoundID  string         `json:"current_round_id"`
	CurrentStatus   string         `json:"current_status"`
	Variants        []VariantStats `json:"variants,omitempty"`
}

// Run executes one scheduler pass over all variants. Sub-step errors are
// logged and do not abort the pass; partial progress is recovered by the
// next invocation.
func (s *Scheduler) Run(ctx context.Context, now time.Time) RunStats {
	var stats RunStats
	if s == nil || s.Repo == nil {
		return stats
	}
	if s.Metrics != nil {
		s.Metrics.SchedulerRuns.Inc()
	}
	for _, variant := range s.Variants {
		vs := VariantStats{Variant: variant.Name}

		processed, err := s.AdvanceExpiredActiveRounds(ctx, now, variant)
		vs.ProcessedRounds = processed
		if err != nil && s.Logger != nil {
			s.Logger.Error("advance expired rounds failed",
				zap.String("variant", variant.Name), zap.Error(err))
		}

		activated, err := s.ActivateDueWaitingRounds(ctx, now, variant)
		vs.ActivatedRounds = activated
		if err != nil && s.Logger != nil {
			s.Logger.Error("activate waiting rounds failed",
				zap.String("variant", variant.Name), zap.Error(err))
		}

		current, created, err := s.EnsureUpcomingRound(ctx, now, variant)
		vs.CreatedNewRound = created
		if err != nil && s.Logger != nil {
			s.Logger.Error("ensure upcoming round failed",
				zap.String("variant", variant.Name), zap.Error(err))
		}
		if current != nil {
			vs.CurrentRoundID = current.ID
			vs.CurrentStatus = current.Status
		}

		stats.ProcessedRounds += vs.ProcessedRounds
		stats.ActivatedRounds += vs.ActivatedRounds
		stats.CreatedNewRound = stats.CreatedNewRound || vs.CreatedNewRound
		stats.Variants = append(stats.Variants, vs)
	}
	if len(stats.Variants) > 0 {
		stats.CurrentRoundID = stats.Variants[0].CurrentRoundID
		stats.CurrentStatus = stats.Variants[0].CurrentStatus
	}
	return stats
}

// AdvanceExpiredActiveRounds settles every active round past its end time.
// Normally that is at most one round, but after an outage the backlog is
// drained in end-time order. Per-round failures do not stop the loop.
func (s *Scheduler) AdvanceExpiredActiveRounds(ctx context.Context, now time.Time, variant game.Variant) (int, error) {
	if s == nil || s.Repo == nil || s.Settlement == nil {
		return 0, nil
	}
	expired, err := s.Repo.ListExpiredActiveRounds(ctx, variant.Name, now)
	if err != nil {
		return 0, err
	}
	processed := 0
	for i := range expired {
		round := expired[i]
		if err := s.Settlement.SettleRound(ctx, &round, variant); err != nil {
			if s.Logger != nil {
				s.Logger.Error("settlement failed",
					zap.String("round_id", round.ID),
					zap.String("variant", variant.Name),
					zap.Error(err),
				)
			}
			continue
		}
		processed++
	}
	return processed, nil
}

// ActivateDueWaitingRounds flips waiting rounds whose start time has
// passed. The guarded update makes a repeat invocation a no-op.
func (s *Scheduler) ActivateDueWaitingRounds(ctx context.Context, now time.Time, variant game.Variant) (int, error) {
	if s == nil || s.Repo == nil {
		return 0, nil
	}
	due, err := s.Repo.ListDueWaitingRounds(ctx, variant.Name, now)
	if err != nil {
		return 0, err
	}
	activated := 0
	for _, round := range due {
		ok, err := s.Repo.ActivateRound(ctx, round.ID)
		if err != nil {
			if s.Logger != nil {
				s.Logger.Error("activate round failed",
					zap.String("round_id", round.ID), zap.Error(err))
			}
			continue
		}
		if !ok {
			continue
		}
		activated++
		if s.Metrics != nil {
			s.Metrics.RoundsActivated.WithLabelValues(variant.Name).Inc()
		}
		if s.Logger != nil {
			s.Logger.Info("round activated",
				zap.String("round_id", round.ID),
				zap.String("variant", variant.Name),
			)
		}
		if s.Hub != nil {
			s.Hub.Publish(realtime.Event{
				Type:    realtime.EventRoundActivated,
				Variant: variant.Name,
				Payload: map[string]any{"round_id": round.ID},
			})
		}
	}
	return activated, nil
}

// EnsureUpcomingRound creates the next waiting round when none is pending,
// or when the pending one ends within the variant's creation lead. The
// whole check-then-insert runs under the pointer row lock, so concurrent
// invocations cannot both create.
func (s *Scheduler) EnsureUpcomingRound(ctx context.Context, now time.Time, variant game.Variant) (*models.Round, bool, error) {
	if s == nil || s.Repo == nil {
		return nil, false, nil
	}
	var current *models.Round
	created := false
	err := s.Repo.InTx(ctx, func(tx *gorm.DB) error {
		ptr, err := s.Repo.GetRoundPointerForUpdateTx(ctx, tx, variant.Name)
		if err != nil {
			return err
		}
		if ptr == nil {
			// First run for this variant: a missing row cannot be locked, so
			// materialize it. The upsert's own row lock serializes racers.
			if err := s.Repo.SaveRoundPointerTx(ctx, tx, &models.RoundPointer{
				Variant: variant.Name,
				RoundID: models.BootstrapRoundID,
			}); err != nil {
				return err
			}
		}
		pending, err := s.Repo.GetPendingRoundTx(ctx, tx, variant.Name)
		if err != nil {
			return err
		}
		if pending != nil && pending.EndTime.Sub(now) >= variant.CreationLead {
			current = pending
			return nil
		}

		start := now.Add(variant.StartDelay)
		round := &models.Round{
			ID:             uuid.NewString(),
			Variant:        variant.Name,
			StartTime:      start,
			EndTime:        start.Add(variant.RoundDuration),
			Status:         models.RoundStatusWaiting,
			TotalStake:     decimal.Zero,
			PrizePerWinner: decimal.Zero,
		}
		if err := s.Repo.InsertRoundTx(ctx, tx, round); err != nil {
			return err
		}
		if err := s.Repo.SaveRoundPointerTx(ctx, tx, &models.RoundPointer{
			Variant: variant.Name,
			RoundID: round.ID,
		}); err != nil {
			return err
		}
		current = round
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if created {
		if s.Metrics != nil {
			s.Metrics.RoundsCreated.WithLabelValues(variant.Name).Inc()
		}
		if s.Logger != nil {
			s.Logger.Info("round created",
				zap.String("round_id", current.ID),
				zap.String("variant", variant.Name),
				zap.Time("start_time", current.StartTime),
				zap.Time("end_time", current.EndTime),
			)
		}
		if s.Hub != nil {
			s.Hub.Publish(realtime.Event{
				Type:    realtime.EventRoundCreated,
				Variant: variant.Name,
				Payload: map[string]any{
					"round_id":   current.ID,
					"start_time": current.StartTime,
					"end_time":   current.EndTime,
				},
			})
		}
	}
	return current, created, nil
}
