package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"guessrounds/internal/service"
)

type ClaimHandler struct {
	Claims *service.ClaimService
	Logger *zap.Logger
}

func (h *ClaimHandler) Register(r *gin.Engine) {
	r.POST("/api/v1/claim", h.claim)
}

type claimRequest struct {
	EntryID       string `json:"entry_id"`
	WalletAddress string `json:"wallet_address"`
}

type claimResponse struct {
	Success              bool   `json:"success"`
	TransactionSignature string `json:"transaction_signature,omitempty"`
	Amount               string `json:"amount,omitempty"`
	Recipient            string `json:"recipient,omitempty"`
}

type claimErrorResponse struct {
	Success        bool   `json:"success"`
	Error          string `json:"error"`
	TechnicalError string `json:"technical_error,omitempty"`
	TxRef          string `json:"tx_ref,omitempty"`
}

func (h *ClaimHandler) claim(c *gin.Context) {
	if h.Claims == nil {
		Error(c, http.StatusInternalServerError, "claim service unavailable", nil)
		return
	}
	var req claimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	req.EntryID = strings.TrimSpace(req.EntryID)
	req.WalletAddress = strings.TrimSpace(req.WalletAddress)
	if req.EntryID == "" || req.WalletAddress == "" {
		Error(c, http.StatusBadRequest, "entry_id and wallet_address required", nil)
		return
	}

	result, err := h.Claims.Claim(c.Request.Context(), req.EntryID, req.WalletAddress)
	if err != nil {
		ce := service.AsClaimError(err)
		if h.Logger != nil {
			h.Logger.Warn("claim rejected",
				zap.String("entry_id", req.EntryID),
				zap.String("wallet", req.WalletAddress),
				zap.String("kind", string(ce.Kind)),
				zap.Error(err),
			)
		}
		// Any claim failure is a 500 for the caller; the body distinguishes
		// the user-facing message from the technical detail.
		c.JSON(http.StatusInternalServerError, claimErrorResponse{
			Success:        false,
			Error:          claimMessage(ce),
			TechnicalError: ce.Error(),
			TxRef:          ce.TxRef,
		})
		return
	}

	c.JSON(http.StatusOK, claimResponse{
		Success:              true,
		TransactionSignature: result.Signature,
		Amount:               result.Amount.String(),
		Recipient:            result.Recipient,
	})
}

// claimMessage maps an error kind to the copy shown to the player.
func claimMessage(ce *service.ClaimError) string {
	switch ce.Kind {
	case service.ClaimNotFound:
		return "Entry not found"
	case service.ClaimForbidden:
		return "This entry belongs to a different wallet"
	case service.ClaimNotEligible:
		return "This entry is not eligible for a reward"
	case service.ClaimAlreadyClaimed:
		return "Reward has already been claimed"
	case service.ClaimInvalidAmount:
		return "Reward amount is invalid"
	case service.ClaimConfiguration:
		return "Payouts are temporarily unavailable"
	case service.ClaimInsufficientFunds:
		return "Payouts are temporarily unavailable, please try again later"
	case service.ClaimPayoutFailed:
		return "Payout failed, your reward remains claimable"
	case service.ClaimRollbackFailed:
		return "Payout failed, please contact support"
	default:
		return "Claim failed, please try again later"
	}
}
