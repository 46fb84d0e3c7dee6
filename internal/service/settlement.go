package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"guessrounds/internal/game"
	"guessrounds/internal/metrics"
	"guessrounds/internal/models"
	"guessrounds/internal/realtime"
	"guessrounds/internal/repository"
)

// prizeScale is the number of fractional digits prizes are floored to,
// matching the chain token's minor unit. The indivisible remainder of an
// equal split stays in the treasury as rounding slack.
const prizeScale = 9

// SettlementService finalizes one expired active round: draws the outcome,
// splits the distributable pot equally among matching entries and completes
// the round. A failed settlement either force-completes the round with
// zeroed counters (liveness over that round's payout) or leaves it for the
// next tick, depending on ForceCloseOnError.
type SettlementService struct {
	Repo              repository.Repository
	Logger            *zap.Logger
	Hub               *realtime.Hub
	Metrics           *metrics.Metrics
	ForceCloseOnError bool

	// DrawOutcome overrides the uniform draw; tests pin the outcome here.
	DrawOutcome func(game.Variant) (int, error)
}

func (s *SettlementService) SettleRound(ctx context.Context, round *models.Round, variant game.Variant) error {
	if s == nil || s.Repo == nil || round == nil {
		return nil
	}

	outcome, err := s.draw(variant)
	if err != nil {
		return s.failed(ctx, round, variant, fmt.Errorf("draw outcome: %w", err))
	}

	cfg, err := s.Repo.GetSystemConfig(ctx)
	if err != nil {
		return s.failed(ctx, round, variant, fmt.Errorf("load system config: %w", err))
	}
	if cfg == nil {
		return s.failed(ctx, round, variant, fmt.Errorf("system config row is missing"))
	}
	entryFee := cfg.EntryFee
	if variant.EntryFee.IsPositive() {
		entryFee = variant.EntryFee
	}

	entries, err := s.Repo.ListEntriesByRoundID(ctx, round.ID)
	if err != nil {
		return s.failed(ctx, round, variant, fmt.Errorf("load entries: %w", err))
	}

	// Stake is recomputed from the entries actually present, never trusted
	// from the round's cached counter.
	totalStake := entryFee.Mul(decimal.NewFromInt(int64(len(entries))))
	platformFee := totalStake.Mul(cfg.PlatformFeePercentage)
	distributable := totalStake.Sub(platformFee)

	winners := make([]models.Entry, 0, len(entries))
	for _, e := range entries {
		if e.SelectedValue == outcome {
			winners = append(winners, e)
		}
	}

	prizePerWinner := decimal.Zero
	if len(winners) > 0 {
		prizePerWinner = distributable.
			Div(decimal.NewFromInt(int64(len(winners)))).
			RoundDown(prizeScale)
		for _, w := range winners {
			if err := s.Repo.MarkEntryWinner(ctx, w.ID, prizePerWinner); err != nil {
				return s.failed(ctx, round, variant, fmt.Errorf("mark winner %s: %w", w.ID, err))
			}
		}
	}

	result := repository.RoundResult{
		Outcome:          outcome,
		ParticipantCount: len(entries),
		TotalStake:       totalStake,
		WinnerCount:      len(winners),
		PrizePerWinner:   prizePerWinner,
	}
	completed, err := s.Repo.CompleteRound(ctx, round.ID, result)
	if err != nil {
		return s.failed(ctx, round, variant, fmt.Errorf("complete round: %w", err))
	}
	if !completed {
		// A racing invocation finished first; its settlement stands.
		if s.Logger != nil {
			s.Logger.Info("round already completed by a concurrent run",
				zap.String("round_id", round.ID))
		}
		return nil
	}

	if s.Metrics != nil {
		s.Metrics.RoundsSettled.WithLabelValues(variant.Name, "normal").Inc()
	}
	if s.Logger != nil {
		s.Logger.Info("round settled",
			zap.String("round_id", round.ID),
			zap.String("variant", variant.Name),
			zap.Int("outcome", outcome),
			zap.Int("participants", len(entries)),
			zap.Int("winners", len(winners)),
			zap.String("total_stake", totalStake.String()),
			zap.String("prize_per_winner", prizePerWinner.String()),
		)
	}
	if s.Hub != nil {
		s.Hub.Publish(realtime.Event{
			Type:    realtime.EventRoundCompleted,
			Variant: variant.Name,
			Payload: map[string]any{
				"round_id":         round.ID,
				"outcome":          outcome,
				"winner_count":     len(winners),
				"prize_per_winner": prizePerWinner.String(),
			},
		})
	}
	return nil
}

func (s *SettlementService) draw(variant game.Variant) (int, error) {
	if s.DrawOutcome != nil {
		return s.DrawOutcome(variant)
	}
	return variant.Draw()
}

// failed handles a settlement that could not finish. With ForceCloseOnError
// the round is completed with a fresh drawn outcome and zeroed counters so
// the schedule never sticks; that round's payouts are sacrificed and the
// completion is flagged forced_closed for audit.
func (s *SettlementService) failed(ctx context.Context, round *models.Round, variant game.Variant, cause error) error {
	if !s.ForceCloseOnError {
		if s.Logger != nil {
			s.Logger.Error("settlement failed, round left active for retry",
				zap.String("round_id", round.ID),
				zap.Error(cause),
			)
		}
		return cause
	}

	outcome := variant.Domain[0]
	if drawn, err := variant.Draw(); err == nil {
		outcome = drawn
	}
	result := repository.RoundResult{
		Outcome:        outcome,
		TotalStake:     decimal.Zero,
		PrizePerWinner: decimal.Zero,
		ForcedClosed:   true,
	}
	forced, err := s.Repo.CompleteRound(ctx, round.ID, result)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Error("force-close failed, round is stuck until next tick",
				zap.String("round_id", round.ID),
				zap.NamedError("cause", cause),
				zap.Error(err),
			)
		}
		return cause
	}
	if s.Metrics != nil && forced {
		s.Metrics.RoundsSettled.WithLabelValues(variant.Name, "forced").Inc()
	}
	if s.Logger != nil && forced {
		s.Logger.Error("settlement failed, round force-closed with degraded data",
			zap.String("round_id", round.ID),
			zap.String("variant", variant.Name),
			zap.Int("fallback_outcome", outcome),
			zap.Error(cause),
		)
	}
	if s.Hub != nil && forced {
		s.Hub.Publish(realtime.Event{
			Type:    realtime.EventRoundCompleted,
			Variant: variant.Name,
			Payload: map[string]any{
				"round_id":      round.ID,
				"outcome":       outcome,
				"forced_closed": true,
			},
		})
	}
	return nil
}
