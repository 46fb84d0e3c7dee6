package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"guessrounds/internal/game"
	"guessrounds/internal/models"
	"guessrounds/internal/realtime"
	"guessrounds/internal/repository"
)

// Join failure modes surfaced to the HTTP layer.
var (
	ErrRoundNotFound    = errors.New("round not found")
	ErrRoundClosed      = errors.New("round is no longer accepting entries")
	ErrValueOutOfRange  = errors.New("selected value is outside the variant's outcome domain")
	ErrDuplicateEntry   = errors.New("wallet already joined this round")
	ErrVariantUnknown   = errors.New("unknown game variant")
	ErrAddressRequired  = errors.New("wallet address is required")
	ErrStakeRefRequired = errors.New("stake transaction reference is required")
)

// RoundsService serves read queries and round joins.
type RoundsService struct {
	Repo     repository.Repository
	Variants []game.Variant
	Logger   *zap.Logger
	Hub      *realtime.Hub
}

func (s *RoundsService) Variant(name string) (game.Variant, error) {
	for _, v := range s.Variants {
		if v.Name == name {
			return v, nil
		}
	}
	return game.Variant{}, fmt.Errorf("%w: %q", ErrVariantUnknown, name)
}

// CurrentRound returns the pending round for the variant, nil when none
// exists (the scheduler will create one on its next tick).
func (s *RoundsService) CurrentRound(ctx context.Context, variant string) (*models.Round, error) {
	if s == nil || s.Repo == nil {
		return nil, fmt.Errorf("rounds service is not wired")
	}
	if _, err := s.Variant(variant); err != nil {
		return nil, err
	}
	return s.Repo.GetPendingRound(ctx, variant)
}

func (s *RoundsService) RecentRounds(ctx context.Context, variant string, limit int) ([]models.Round, error) {
	if s == nil || s.Repo == nil {
		return nil, fmt.Errorf("rounds service is not wired")
	}
	if _, err := s.Variant(variant); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.Repo.ListRecentRounds(ctx, variant, limit)
}

func (s *RoundsService) RoundEntries(ctx context.Context, roundID string) (*models.Round, []models.Entry, error) {
	if s == nil || s.Repo == nil {
		return nil, nil, fmt.Errorf("rounds service is not wired")
	}
	round, err := s.Repo.GetRoundByID(ctx, roundID)
	if err != nil {
		return nil, nil, err
	}
	if round == nil {
		return nil, nil, ErrRoundNotFound
	}
	entries, err := s.Repo.ListEntriesByRoundID(ctx, roundID)
	if err != nil {
		return nil, nil, err
	}
	return round, entries, nil
}

// Join records one wallet's pick in a pending round. A wallet joins a round
// at most once; the unique round+address index backs up the pre-check.
func (s *RoundsService) Join(ctx context.Context, roundID, address string, selectedValue int, stakeTxRef string) (*models.Entry, error) {
	if s == nil || s.Repo == nil {
		return nil, fmt.Errorf("rounds service is not wired")
	}
	if address == "" {
		return nil, ErrAddressRequired
	}
	if stakeTxRef == "" {
		return nil, ErrStakeRefRequired
	}

	round, err := s.Repo.GetRoundByID(ctx, roundID)
	if err != nil {
		return nil, err
	}
	if round == nil {
		return nil, ErrRoundNotFound
	}
	if !round.Pending() {
		return nil, ErrRoundClosed
	}
	variant, err := s.Variant(round.Variant)
	if err != nil {
		return nil, err
	}
	if !variant.Contains(selectedValue) {
		return nil, ErrValueOutOfRange
	}

	existing, err := s.Repo.ListEntriesByRoundID(ctx, roundID)
	if err != nil {
		return nil, err
	}
	for _, e := range existing {
		if e.ParticipantAddress == address {
			return nil, ErrDuplicateEntry
		}
	}

	entry := &models.Entry{
		ID:                 uuid.NewString(),
		RoundID:            round.ID,
		ParticipantAddress: address,
		SelectedValue:      selectedValue,
		StakeTxRef:         stakeTxRef,
	}
	if err := s.Repo.InsertEntry(ctx, entry); err != nil {
		return nil, err
	}

	if s.Logger != nil {
		s.Logger.Info("entry joined",
			zap.String("round_id", round.ID),
			zap.String("entry_id", entry.ID),
			zap.String("address", address),
			zap.Int("selected_value", selectedValue),
		)
	}
	if s.Hub != nil {
		s.Hub.Publish(realtime.Event{
			Type:    realtime.EventEntryJoined,
			Variant: round.Variant,
			Payload: map[string]any{
				"round_id":       round.ID,
				"entry_id":       entry.ID,
				"selected_value": selectedValue,
			},
		})
	}
	return entry, nil
}
