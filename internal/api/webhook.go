package api

import (
	"net/http"
	"strconv"

	"trading-journal/internal/apperr"
	"trading-journal/internal/journal"
	"trading-journal/internal/models"
	"trading-journal/internal/validation"
)

// Webhook actions.
const (
	ActionOpen  = "OPEN"
	ActionClose = "CLOSE"
)

// WebhookRequest is the body the trading terminal posts for both actions.
type WebhookRequest struct {
	Symbol     string      `json:"symbol" validate:"required"`
	Action     string      `json:"action" validate:"required,oneof=OPEN CLOSE"`
	Price      float64     `json:"price" validate:"gt=0"`
	StopLoss   float64     `json:"sl" validate:"gt=0"`
	TakeProfit float64     `json:"tp" validate:"gt=0"`
	Profit     *float64    `json:"profit"`
	LotSize    *float64    `json:"lotSize" validate:"omitnil,gt=0"`
	Side       models.Side `json:"type" validate:"omitempty,oneof=BUY SELL"`
	Setup      string      `json:"setup"`
}

// TradeResponse is the body of a successful trade mutation.
type TradeResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Trade   *models.Trade `json:"trade"`
}

// TradesResponse is the body of a trade listing.
type TradesResponse struct {
	Success bool           `json:"success"`
	Trades  []models.Trade `json:"trades"`
}

// WebhookTradeHandler applies an OPEN or CLOSE event.
func (h *Handler) WebhookTradeHandler(w http.ResponseWriter, r *http.Request) {
	var req WebhookRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := validation.Struct(req); err != nil {
		h.respondError(w, r, err)
		return
	}

	apiKey := r.Header.Get(APIKeyHeader)
	switch req.Action {
	case ActionOpen:
		trade, err := h.manager.ApplyOpenEvent(r.Context(), apiKey, journal.OpenEvent{
			Symbol:     req.Symbol,
			Side:       req.Side,
			Price:      req.Price,
			StopLoss:   req.StopLoss,
			TakeProfit: req.TakeProfit,
			LotSize:    req.LotSize,
			Setup:      req.Setup,
		})
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		h.respondJSON(w, http.StatusOK, TradeResponse{Success: true, Message: "Trade opened successfully", Trade: trade})

	case ActionClose:
		trade, err := h.manager.ApplyCloseEvent(r.Context(), apiKey, journal.CloseEvent{
			Symbol: req.Symbol,
			Price:  req.Price,
			Profit: req.Profit,
		})
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		h.respondJSON(w, http.StatusOK, TradeResponse{Success: true, Message: "Trade closed successfully", Trade: trade})
	}
}

// WebhookRecentTradesHandler lists the key owner's newest trades.
func (h *Handler) WebhookRecentTradesHandler(w http.ResponseWriter, r *http.Request) {
	limit := journal.MaxRecentTrades
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.respondError(w, r, apperr.Validation("Invalid request data", apperr.FieldError{Field: "limit", Message: "must be an integer"}))
			return
		}
		limit = n
	}

	trades, err := h.manager.RecentTrades(r.Context(), r.Header.Get(APIKeyHeader), limit)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, TradesResponse{Success: true, Trades: nonNil(trades)})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
