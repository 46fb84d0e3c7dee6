package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"guessrounds/internal/metrics"
	"guessrounds/internal/models"
	"guessrounds/internal/repository"
)

// Reconciler resolves dispatched payouts against the chain. Transfers are
// accepted without waiting for finality, so a periodic pass asks the node
// for signature statuses and promotes each audit row to confirmed or
// failed. Unknown signatures stay dispatched and are retried next pass.
type Reconciler struct {
	Repo      repository.Repository
	Chain     ChainClient
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
	BatchSize int
}

type ReconcileStats struct {
	Checked   int `json:"checked"`
	Confirmed int `json:"confirmed"`
	Failed    int `json:"failed"`
	Pending   int `json:"pending"`
}

func (r *Reconciler) RunOnce(ctx context.Context, now time.Time) (ReconcileStats, error) {
	var stats ReconcileStats
	if r == nil || r.Repo == nil || r.Chain == nil {
		return stats, nil
	}
	batch := r.BatchSize
	if batch <= 0 {
		batch = 100
	}

	audits, err := r.Repo.ListPayoutAuditsByStatus(ctx, models.PayoutStatusDispatched, batch)
	if err != nil {
		return stats, err
	}
	if len(audits) == 0 {
		if r.Metrics != nil {
			r.Metrics.PayoutsPending.Set(0)
		}
		return stats, nil
	}

	signatures := make([]string, len(audits))
	for i, a := range audits {
		signatures[i] = a.Signature
	}
	statuses, err := r.Chain.SignatureStatuses(ctx, signatures)
	if err != nil {
		return stats, err
	}

	bySignature := make(map[string]int, len(statuses))
	for i, st := range statuses {
		bySignature[st.Signature] = i
	}

	for _, audit := range audits {
		stats.Checked++
		i, ok := bySignature[audit.Signature]
		if !ok || !statuses[i].Known {
			stats.Pending++
			continue
		}
		st := statuses[i]

		next := models.PayoutStatusConfirmed
		if st.Failed {
			next = models.PayoutStatusFailed
		} else if !st.Confirmed {
			// Known to the node but not yet at confirmed commitment.
			stats.Pending++
			continue
		}

		if err := r.Repo.UpdatePayoutAuditStatus(ctx, audit.ID, next, st.Raw, now); err != nil {
			if r.Logger != nil {
				r.Logger.Error("payout audit update failed",
					zap.Uint64("audit_id", audit.ID),
					zap.String("signature", audit.Signature),
					zap.Error(err),
				)
			}
			stats.Pending++
			continue
		}

		switch next {
		case models.PayoutStatusConfirmed:
			stats.Confirmed++
		case models.PayoutStatusFailed:
			stats.Failed++
			if r.Logger != nil {
				r.Logger.Error("payout failed on chain",
					zap.Uint64("audit_id", audit.ID),
					zap.String("entry_id", audit.EntryID),
					zap.String("signature", audit.Signature),
					zap.String("amount", audit.Amount.String()),
					zap.String("recipient", audit.Recipient),
				)
			}
		}
	}

	if r.Metrics != nil {
		r.Metrics.PayoutsPending.Set(float64(stats.Pending))
	}
	if r.Logger != nil && (stats.Confirmed > 0 || stats.Failed > 0) {
		r.Logger.Info("payout reconciliation pass",
			zap.Int("checked", stats.Checked),
			zap.Int("confirmed", stats.Confirmed),
			zap.Int("failed", stats.Failed),
			zap.Int("pending", stats.Pending),
		)
	}
	return stats, nil
}
