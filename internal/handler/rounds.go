package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"guessrounds/internal/models"
	"guessrounds/internal/service"
)

type RoundsHandler struct {
	Rounds *service.RoundsService
}

func (h *RoundsHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/rounds")
	group.GET("/current", h.current)
	group.GET("", h.list)
	group.GET("/:id/entries", h.entries)
	group.POST("/:id/join", h.join)
}

type roundView struct {
	ID               string    `json:"id"`
	Variant          string    `json:"variant"`
	StartTime        time.Time `json:"start_time"`
	EndTime          time.Time `json:"end_time"`
	Status           string    `json:"status"`
	Outcome          *int      `json:"outcome,omitempty"`
	ParticipantCount int       `json:"participant_count"`
	TotalStake       string    `json:"total_stake"`
	WinnerCount      int       `json:"winner_count"`
	PrizePerWinner   string    `json:"prize_per_winner"`
	ForcedClosed     bool      `json:"forced_closed,omitempty"`
}

func toRoundView(r *models.Round) roundView {
	return roundView{
		ID:               r.ID,
		Variant:          r.Variant,
		StartTime:        r.StartTime,
		EndTime:          r.EndTime,
		Status:           r.Status,
		Outcome:          r.Outcome,
		ParticipantCount: r.ParticipantCount,
		TotalStake:       r.TotalStake.String(),
		WinnerCount:      r.WinnerCount,
		PrizePerWinner:   r.PrizePerWinner.String(),
		ForcedClosed:     r.ForcedClosed,
	}
}

type entryView struct {
	ID                 string `json:"id"`
	RoundID            string `json:"round_id"`
	ParticipantAddress string `json:"participant_address"`
	SelectedValue      int    `json:"selected_value"`
	IsWinner           bool   `json:"is_winner"`
	PrizeAmount        string `json:"prize_amount"`
	RewardClaimed      bool   `json:"reward_claimed"`
}

func toEntryView(e *models.Entry) entryView {
	return entryView{
		ID:                 e.ID,
		RoundID:            e.RoundID,
		ParticipantAddress: e.ParticipantAddress,
		SelectedValue:      e.SelectedValue,
		IsWinner:           e.IsWinner,
		PrizeAmount:        e.PrizeAmount.String(),
		RewardClaimed:      e.RewardClaimed,
	}
}

func (h *RoundsHandler) current(c *gin.Context) {
	if h.Rounds == nil {
		Error(c, http.StatusInternalServerError, "rounds service unavailable", nil)
		return
	}
	variant := strings.TrimSpace(c.Query("variant"))
	if variant == "" {
		variant = "pick10"
	}
	round, err := h.Rounds.CurrentRound(c.Request.Context(), variant)
	if err != nil {
		if errors.Is(err, service.ErrVariantUnknown) {
			Error(c, http.StatusBadRequest, "unknown variant", nil)
			return
		}
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	if round == nil {
		Error(c, http.StatusNotFound, "no pending round", nil)
		return
	}
	Ok(c, toRoundView(round), nil)
}

func (h *RoundsHandler) list(c *gin.Context) {
	if h.Rounds == nil {
		Error(c, http.StatusInternalServerError, "rounds service unavailable", nil)
		return
	}
	variant := strings.TrimSpace(c.Query("variant"))
	if variant == "" {
		variant = "pick10"
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	rounds, err := h.Rounds.RecentRounds(c.Request.Context(), variant, limit)
	if err != nil {
		if errors.Is(err, service.ErrVariantUnknown) {
			Error(c, http.StatusBadRequest, "unknown variant", nil)
			return
		}
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	views := make([]roundView, 0, len(rounds))
	for i := range rounds {
		views = append(views, toRoundView(&rounds[i]))
	}
	Ok(c, views, map[string]any{"count": len(views)})
}

func (h *RoundsHandler) entries(c *gin.Context) {
	if h.Rounds == nil {
		Error(c, http.StatusInternalServerError, "rounds service unavailable", nil)
		return
	}
	round, entries, err := h.Rounds.RoundEntries(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrRoundNotFound) {
			Error(c, http.StatusNotFound, "round not found", nil)
			return
		}
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	views := make([]entryView, 0, len(entries))
	for i := range entries {
		views = append(views, toEntryView(&entries[i]))
	}
	Ok(c, gin.H{"round": toRoundView(round), "entries": views}, map[string]any{"count": len(views)})
}

type joinRequest struct {
	WalletAddress string `json:"wallet_address"`
	SelectedValue int    `json:"selected_value"`
	StakeTxRef    string `json:"stake_tx_ref"`
}

func (h *RoundsHandler) join(c *gin.Context) {
	if h.Rounds == nil {
		Error(c, http.StatusInternalServerError, "rounds service unavailable", nil)
		return
	}
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	entry, err := h.Rounds.Join(c.Request.Context(),
		c.Param("id"),
		strings.TrimSpace(req.WalletAddress),
		req.SelectedValue,
		strings.TrimSpace(req.StakeTxRef),
	)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRoundNotFound):
			Error(c, http.StatusNotFound, "round not found", nil)
		case errors.Is(err, service.ErrRoundClosed):
			Error(c, http.StatusConflict, "round is no longer accepting entries", nil)
		case errors.Is(err, service.ErrDuplicateEntry):
			Error(c, http.StatusConflict, "wallet already joined this round", nil)
		case errors.Is(err, service.ErrValueOutOfRange),
			errors.Is(err, service.ErrAddressRequired),
			errors.Is(err, service.ErrStakeRefRequired):
			Error(c, http.StatusBadRequest, err.Error(), nil)
		default:
			Error(c, http.StatusInternalServerError, err.Error(), nil)
		}
		return
	}
	Ok(c, toEntryView(entry), nil)
}
