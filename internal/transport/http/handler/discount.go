package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ErlanBelekov/birthday-campaign/internal/domain"
	"github.com/gin-gonic/gin"
)

type discountLedger interface {
	Redeem(ctx context.Context, userID, code string) (bool, error)
	ListActive(ctx context.Context, userID string) ([]*domain.Discount, error)
}

type DiscountHandler struct {
	ledger discountLedger
	logger *slog.Logger
}

func NewDiscountHandler(ledger discountLedger, logger *slog.Logger) *DiscountHandler {
	return &DiscountHandler{ledger: ledger, logger: logger.With("component", "discount_handler")}
}

type redeemRequest struct {
	Code string `json:"code" binding:"required,max=64"`
}

type redeemResponse struct {
	Redeemed bool   `json:"redeemed"`
	Error    string `json:"error,omitempty"`
}

type discountResponse struct {
	Code     string    `json:"code"`
	IssuedAt time.Time `json:"issued_at"`
}

type listDiscountsResponse struct {
	Discounts []discountResponse `json:"discounts"`
}

func (h *DiscountHandler) Redeem(ctx *gin.Context) {
	var req redeemRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := ctx.GetString("userID")
	ok, err := h.ledger.Redeem(ctx.Request.Context(), userID, req.Code)
	if err != nil {
		h.logger.ErrorContext(ctx.Request.Context(), "redeem discount", "user_id", userID, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	if !ok {
		ctx.JSON(http.StatusConflict, redeemResponse{Redeemed: false, Error: errInvalidCode})
		return
	}

	ctx.JSON(http.StatusOK, redeemResponse{Redeemed: true})
}

func (h *DiscountHandler) ListAvailable(ctx *gin.Context) {
	userID := ctx.GetString("userID")
	discounts, err := h.ledger.ListActive(ctx.Request.Context(), userID)
	if err != nil {
		h.logger.ErrorContext(ctx.Request.Context(), "list discounts", "user_id", userID, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	resp := listDiscountsResponse{Discounts: make([]discountResponse, 0, len(discounts))}
	for _, d := range discounts {
		resp.Discounts = append(resp.Discounts, discountResponse{Code: d.Code, IssuedAt: d.IssuedAt})
	}
	ctx.JSON(http.StatusOK, resp)
}
