package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"guessrounds/internal/chain"
	"guessrounds/internal/metrics"
	"guessrounds/internal/models"
	"guessrounds/internal/realtime"
	"guessrounds/internal/repository"
)

// ClaimErrorKind is the machine-readable taxonomy surfaced to the HTTP
// layer; the browser translates kinds into user-facing copy.
type ClaimErrorKind string

const (
	ClaimNotFound          ClaimErrorKind = "not_found"
	ClaimForbidden         ClaimErrorKind = "forbidden"
	ClaimNotEligible       ClaimErrorKind = "not_eligible"
	ClaimAlreadyClaimed    ClaimErrorKind = "already_claimed"
	ClaimInvalidAmount     ClaimErrorKind = "invalid_amount"
	ClaimConfiguration     ClaimErrorKind = "configuration"
	ClaimInsufficientFunds ClaimErrorKind = "insufficient_funds"
	ClaimPayoutFailed      ClaimErrorKind = "payout_failed"
	// ClaimRollbackFailed means the compensating rollback itself failed:
	// the entry is stuck claimed-but-unpaid and needs manual remediation.
	ClaimRollbackFailed ClaimErrorKind = "rollback_failed"
	ClaimInternal       ClaimErrorKind = "internal"
)

type ClaimError struct {
	Kind    ClaimErrorKind
	Message string
	// TxRef carries the prior transaction reference on already_claimed.
	TxRef string
	Err   error
}

func (e *ClaimError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ClaimError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func claimErr(kind ClaimErrorKind, message string, err error) *ClaimError {
	return &ClaimError{Kind: kind, Message: message, Err: err}
}

// AsClaimError unwraps err into a *ClaimError, defaulting to internal.
func AsClaimError(err error) *ClaimError {
	var ce *ClaimError
	if errors.As(err, &ce) {
		return ce
	}
	return &ClaimError{Kind: ClaimInternal, Message: "claim failed", Err: err}
}

type ClaimResult struct {
	Signature string
	Amount    decimal.Decimal
	Recipient string
}

// ClaimService pays out one winning entry's prize exactly once. The order
// is deliberate: mark claimed first (optimistic lock), then transfer, then
// confirm; any payout failure rolls the lock back within the same attempt.
type ClaimService struct {
	Repo    repository.Repository
	Chain   ChainClient
	Logger  *zap.Logger
	Hub     *realtime.Hub
	Metrics *metrics.Metrics
}

func (s *ClaimService) Claim(ctx context.Context, entryID, claimantAddress string) (*ClaimResult, error) {
	result, err := s.claim(ctx, entryID, claimantAddress)
	if s.Metrics != nil {
		label := "success"
		if err != nil {
			label = string(AsClaimError(err).Kind)
		}
		s.Metrics.ClaimsTotal.WithLabelValues(label).Inc()
	}
	return result, err
}

func (s *ClaimService) claim(ctx context.Context, entryID, claimantAddress string) (*ClaimResult, error) {
	if s == nil || s.Repo == nil || s.Chain == nil {
		return nil, claimErr(ClaimInternal, "claim service is not wired", nil)
	}

	entry, err := s.Repo.GetEntryByID(ctx, entryID)
	if err != nil {
		return nil, claimErr(ClaimInternal, "load entry", err)
	}
	if entry == nil {
		return nil, claimErr(ClaimNotFound, "entry not found", nil)
	}
	if entry.ParticipantAddress != claimantAddress {
		return nil, claimErr(ClaimForbidden, "entry belongs to a different wallet", nil)
	}
	if !entry.IsWinner {
		return nil, claimErr(ClaimNotEligible, "entry did not win this round", nil)
	}
	if entry.RewardClaimed {
		ce := claimErr(ClaimAlreadyClaimed, "reward was already claimed", nil)
		if entry.RewardTxRef != nil {
			ce.TxRef = *entry.RewardTxRef
		}
		return nil, ce
	}
	if !entry.PrizeAmount.IsPositive() {
		return nil, claimErr(ClaimInvalidAmount, "prize amount is not positive", nil)
	}

	treasury, err := s.loadTreasury(ctx)
	if err != nil {
		return nil, err
	}

	// Optimistic lock: flip the claimed flag before touching the chain so a
	// concurrent duplicate loses the race here instead of double-paying.
	locked, err := s.Repo.LockEntryForClaim(ctx, entry.ID, models.ClaimSentinelRef)
	if err != nil {
		return nil, claimErr(ClaimInternal, "lock entry for claim", err)
	}
	if !locked {
		ce := claimErr(ClaimAlreadyClaimed, "reward was already claimed", nil)
		if current, err := s.Repo.GetEntryByID(ctx, entry.ID); err == nil && current != nil && current.RewardTxRef != nil {
			ce.TxRef = *current.RewardTxRef
		}
		return nil, ce
	}

	balance, err := s.Chain.Balance(ctx, treasury.Address())
	if err != nil {
		return nil, s.rollback(ctx, entry.ID, claimErr(ClaimPayoutFailed, "fetch treasury balance", err))
	}
	fee, err := s.Chain.EstimateTransferFee(ctx)
	if err != nil {
		return nil, s.rollback(ctx, entry.ID, claimErr(ClaimPayoutFailed, "estimate network fee", err))
	}
	if balance.LessThan(entry.PrizeAmount.Add(fee)) {
		return nil, s.rollback(ctx, entry.ID, claimErr(ClaimInsufficientFunds,
			fmt.Sprintf("treasury balance %s below prize %s plus fee %s",
				balance.String(), entry.PrizeAmount.String(), fee.String()), nil))
	}

	// Submission acceptance is success; confirmation is the reconciler's
	// job. The chain client bounds the submit with its own deadline.
	signature, err := s.Chain.Transfer(ctx, treasury, entry.ParticipantAddress, entry.PrizeAmount)
	if err != nil {
		return nil, s.rollback(ctx, entry.ID, claimErr(ClaimPayoutFailed, "submit prize transfer", err))
	}

	if err := s.Repo.FinalizeEntryClaim(ctx, entry.ID, signature); err != nil {
		// The transfer is already on the wire; rolling back now would risk a
		// double payout. Keep the lock, surface loudly, let the audit row
		// carry the reference.
		if s.Logger != nil {
			s.Logger.Error("paid but failed to persist transaction reference",
				zap.String("entry_id", entry.ID),
				zap.String("signature", signature),
				zap.Error(err),
			)
		}
	}

	audit := &models.PayoutAudit{
		EntryID:   entry.ID,
		RoundID:   entry.RoundID,
		Signature: signature,
		Amount:    entry.PrizeAmount,
		Recipient: entry.ParticipantAddress,
		Status:    models.PayoutStatusDispatched,
	}
	if err := s.Repo.InsertPayoutAudit(ctx, audit); err != nil && s.Logger != nil {
		s.Logger.Warn("payout audit insert failed",
			zap.String("entry_id", entry.ID),
			zap.String("signature", signature),
			zap.Error(err),
		)
	}

	if s.Logger != nil {
		s.Logger.Info("reward claimed",
			zap.String("entry_id", entry.ID),
			zap.String("round_id", entry.RoundID),
			zap.String("recipient", entry.ParticipantAddress),
			zap.String("amount", entry.PrizeAmount.String()),
			zap.String("signature", signature),
		)
	}
	if s.Hub != nil {
		s.Hub.Publish(realtime.Event{
			Type: realtime.EventRewardClaimed,
			Payload: map[string]any{
				"entry_id":  entry.ID,
				"round_id":  entry.RoundID,
				"amount":    entry.PrizeAmount.String(),
				"signature": signature,
			},
		})
	}

	return &ClaimResult{
		Signature: signature,
		Amount:    entry.PrizeAmount,
		Recipient: entry.ParticipantAddress,
	}, nil
}

// loadTreasury reads the treasury keypair from system config and verifies
// the signing key actually derives the configured address.
func (s *ClaimService) loadTreasury(ctx context.Context) (*chain.Keypair, error) {
	cfg, err := s.Repo.GetSystemConfig(ctx)
	if err != nil {
		return nil, claimErr(ClaimInternal, "load system config", err)
	}
	if cfg == nil || cfg.TreasuryAddress == "" || cfg.TreasurySecretKey == "" {
		return nil, claimErr(ClaimConfiguration, "treasury wallet is not configured", nil)
	}
	keypair, err := chain.ParseKeypair(cfg.TreasurySecretKey)
	if err != nil {
		return nil, claimErr(ClaimConfiguration, "treasury secret key is malformed", err)
	}
	if keypair.Address() != cfg.TreasuryAddress {
		return nil, claimErr(ClaimConfiguration, "treasury secret key does not match the configured address", nil)
	}
	return keypair, nil
}

// rollback undoes the claim lock after a payout failure and returns cause.
// A failed rollback leaves the entry claimed-but-unpaid, which is escalated
// as rollback_failed instead of being swallowed.
func (s *ClaimService) rollback(ctx context.Context, entryID string, cause *ClaimError) error {
	if err := s.Repo.RollbackEntryClaim(ctx, entryID); err != nil {
		if s.Logger != nil {
			s.Logger.Error("claim rollback failed, entry stuck claimed without payout",
				zap.String("entry_id", entryID),
				zap.NamedError("cause", cause),
				zap.Error(err),
			)
		}
		return &ClaimError{
			Kind:    ClaimRollbackFailed,
			Message: "payout failed and rollback did not restore the entry; manual remediation required",
			Err:     errors.Join(cause, err),
		}
	}
	if s.Logger != nil {
		s.Logger.Warn("claim rolled back",
			zap.String("entry_id", entryID),
			zap.String("kind", string(cause.Kind)),
			zap.Error(cause),
		)
	}
	return cause
}
