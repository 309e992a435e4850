package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"trade-settlement-go/internal/models"
	"trade-settlement-go/internal/quotes"
	"trade-settlement-go/internal/scheduler"
	"trade-settlement-go/internal/settlement"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Settlement is the part of the settlement engine the API serves.
type Settlement interface {
	CreateTrade(ctx context.Context, req settlement.CreateTradeRequest) (*models.Trade, error)
	GetTrade(ctx context.Context, id string) (*models.Trade, error)
	GetTradesByAccount(ctx context.Context, accountID string) ([]models.Trade, error)
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	Statistics(ctx context.Context, accountID string, now time.Time) (*settlement.Statistics, error)
}

// Sweeper runs an on-demand resolution sweep.
type Sweeper interface {
	Trigger(ctx context.Context) (settlement.SweepResult, error)
	State() scheduler.State
}

// Handler holds dependencies for the API endpoints.
type Handler struct {
	logger  *zap.Logger
	engine  Settlement
	sweeper Sweeper
	prices  quotes.PriceSource
	now     func() time.Time
}

// NewHandler creates a new Handler. prices may be nil, in which case every new
// trade must carry its own entry price.
func NewHandler(logger *zap.Logger, engine Settlement, sweeper Sweeper, prices quotes.PriceSource) *Handler {
	return &Handler{
		logger:  logger.Named("api"),
		engine:  engine,
		sweeper: sweeper,
		prices:  prices,
		now:     time.Now,
	}
}

// CreateTradeRequest is the body of POST /api/v1/trades.
type CreateTradeRequest struct {
	ID                 string              `json:"id"`
	AccountID          string              `json:"account_id" binding:"required"`
	AssetID            string              `json:"asset_id" binding:"required"`
	AssetName          string              `json:"asset_name"`
	AssetSymbol        string              `json:"asset_symbol"`
	Direction          string              `json:"direction" binding:"required"`
	Amount             decimal.Decimal     `json:"amount"`
	EntryPrice         decimal.NullDecimal `json:"entry_price"`
	DeliveryDeadlineMs int64               `json:"delivery_deadline_ms"`
	DurationSeconds    int64               `json:"duration_seconds"`
}

// CreateTrade places a new trade.
// POST /api/v1/trades
func (h *Handler) CreateTrade(c *gin.Context) {
	var req CreateTradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 0, "invalid request: "+err.Error())
		return
	}

	deadlineMs := req.DeliveryDeadlineMs
	switch {
	case deadlineMs != 0 && req.DurationSeconds != 0:
		fail(c, http.StatusBadRequest, 0, "set either delivery_deadline_ms or duration_seconds, not both")
		return
	case req.DurationSeconds < 0:
		fail(c, http.StatusBadRequest, 0, "duration_seconds must be positive")
		return
	case req.DurationSeconds > 0:
		deadlineMs = h.now().Add(time.Duration(req.DurationSeconds) * time.Second).UnixMilli()
	}

	entryPrice := req.EntryPrice.Decimal
	if !req.EntryPrice.Valid {
		if h.prices == nil {
			fail(c, http.StatusBadRequest, 0, "entry_price is required")
			return
		}
		if req.AssetSymbol == "" {
			fail(c, http.StatusBadRequest, 0, "asset_symbol is required to quote the entry price")
			return
		}
		price, err := h.prices.GetPrice(c.Request.Context(), req.AssetSymbol)
		if err != nil {
			h.logger.Error("Failed to quote entry price", zap.String("symbol", req.AssetSymbol), zap.Error(err))
			fail(c, http.StatusBadGateway, CodeQuoteUnavailable, "entry price unavailable")
			return
		}
		entryPrice = price
	}

	trade, err := h.engine.CreateTrade(c.Request.Context(), settlement.CreateTradeRequest{
		TradeID:   req.ID,
		AccountID: req.AccountID,
		Asset: settlement.Asset{
			ID:     req.AssetID,
			Name:   req.AssetName,
			Symbol: req.AssetSymbol,
		},
		Direction:          models.Direction(req.Direction),
		AmountWagered:      req.Amount,
		EntryPrice:         entryPrice,
		DeliveryDeadlineMs: deadlineMs,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	success(c, http.StatusCreated, trade)
}

// GetTrade returns a single trade.
// GET /api/v1/trades/:id
func (h *Handler) GetTrade(c *gin.Context) {
	trade, err := h.engine.GetTrade(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	success(c, http.StatusOK, trade)
}

// ListTrades returns the account's trades, newest first.
// GET /api/v1/accounts/:id/trades
func (h *Handler) ListTrades(c *gin.Context) {
	trades, err := h.engine.GetTradesByAccount(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{
		"trades": trades,
		"total":  len(trades),
	})
}

// GetBalance returns the account balance.
// GET /api/v1/accounts/:id/balance
func (h *Handler) GetBalance(c *gin.Context) {
	account, err := h.engine.GetAccount(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{
		"account_id":    account.ID,
		"balance":       account.Balance,
		"updated_at_ms": account.UpdatedAtMs,
	})
}

// GetStatistics returns win/loss statistics for the account.
// GET /api/v1/accounts/:id/statistics
func (h *Handler) GetStatistics(c *gin.Context) {
	stats, err := h.engine.Statistics(c.Request.Context(), c.Param("id"), h.now())
	if err != nil {
		h.writeError(c, err)
		return
	}
	success(c, http.StatusOK, stats)
}

// RunSettlement runs a resolution sweep on demand.
// POST /api/v1/admin/settlements/run
func (h *Handler) RunSettlement(c *gin.Context) {
	identity := c.GetString("admin_identity")
	h.logger.Info("Manual settlement sweep requested", zap.String("identity", identity))

	result, err := h.sweeper.Trigger(c.Request.Context())
	if err != nil {
		h.logger.Error("Manual settlement sweep failed", zap.Error(err))
		fail(c, http.StatusServiceUnavailable, CodeSettlementSweepFail, err.Error())
		return
	}
	success(c, http.StatusOK, result)
}

// Health reports liveness and the sweep state.
// GET /health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"scheduler": h.sweeper.State(),
	})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, settlement.ErrInvalidInput):
		fail(c, http.StatusBadRequest, 0, err.Error())
	case errors.Is(err, settlement.ErrAccountNotFound):
		fail(c, http.StatusNotFound, CodeAccountNotFound, err.Error())
	case errors.Is(err, settlement.ErrTradeNotFound):
		fail(c, http.StatusNotFound, CodeTradeNotFound, err.Error())
	case errors.Is(err, settlement.ErrInsufficientBalance):
		fail(c, http.StatusUnprocessableEntity, CodeBalanceNotEnough, err.Error())
	default:
		h.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		fail(c, http.StatusInternalServerError, 0, "internal error")
	}
}
