package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"trading-journal/internal/apperr"
	"trading-journal/internal/journal"
	"trading-journal/internal/models"
	"trading-journal/internal/store"
)

const (
	defaultTradePage = 50
	maxTradePage     = 200
)

// parseTradeFilter reads the trade list query string.
func parseTradeFilter(r *http.Request) (store.TradeFilter, error) {
	q := r.URL.Query()
	f := store.TradeFilter{
		Symbol: strings.ToUpper(strings.TrimSpace(q.Get("symbol"))),
		Setup:  q.Get("setup"),
		Limit:  defaultTradePage,
	}
	var details []apperr.FieldError

	if v := q.Get("type"); v != "" {
		side, err := models.ParseSide(strings.ToUpper(v))
		if err != nil {
			details = append(details, apperr.FieldError{Field: "type", Message: "must be one of [BUY SELL]"})
		}
		f.Side = side
	}
	if v := q.Get("status"); v != "" {
		status, err := models.ParseStatus(strings.ToUpper(v))
		if err != nil {
			details = append(details, apperr.FieldError{Field: "status", Message: "must be one of [OPEN CLOSED]"})
		}
		f.Status = status
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		t, err := parseTime(v)
		if err != nil {
			details = append(details, apperr.FieldError{Field: p.name, Message: "must be a date (YYYY-MM-DD) or RFC 3339 time"})
			continue
		}
		*p.dst = &t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			details = append(details, apperr.FieldError{Field: "limit", Message: "must be a positive integer"})
		}
		f.Limit = min(n, maxTradePage)
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			details = append(details, apperr.FieldError{Field: "offset", Message: "must be a non-negative integer"})
		}
		f.Offset = n
	}

	if len(details) > 0 {
		return f, apperr.Validation("Invalid request data", details...)
	}
	return f, nil
}

func parseTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, v)
}

// ListTradesHandler returns the session user's trades matching the filters.
func (h *Handler) ListTradesHandler(w http.ResponseWriter, r *http.Request) {
	f, err := parseTradeFilter(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	trades, err := h.store.ListTrades(r.Context(), claimsFromContext(r.Context()).Subject, f)
	if err != nil {
		h.respondError(w, r, apperr.Internal("failed to list trades", err))
		return
	}
	h.respondJSON(w, http.StatusOK, TradesResponse{Success: true, Trades: nonNil(trades)})
}

// CreateTradeHandler records a manual trade.
func (h *Handler) CreateTradeHandler(w http.ResponseWriter, r *http.Request) {
	var in journal.ManualTrade
	if err := decodeJSON(r, &in); err != nil {
		h.respondError(w, r, err)
		return
	}

	trade, err := h.manager.RecordManualTrade(r.Context(), claimsFromContext(r.Context()).Subject, in)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, TradeResponse{Success: true, Message: "Trade created successfully", Trade: trade})
}

// CloseTradeRequest is the body of POST /api/trades/{id}/close.
type CloseTradeRequest struct {
	Price  float64  `json:"price"`
	Profit *float64 `json:"profit"`
}

// CloseTradeHandler closes one of the session user's trades.
func (h *Handler) CloseTradeHandler(w http.ResponseWriter, r *http.Request) {
	var in CloseTradeRequest
	if err := decodeJSON(r, &in); err != nil {
		h.respondError(w, r, err)
		return
	}

	tradeID := mux.Vars(r)["id"]
	trade, err := h.manager.CloseTradeByID(r.Context(), claimsFromContext(r.Context()).Subject, tradeID, in.Price, in.Profit)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, TradeResponse{Success: true, Message: "Trade closed successfully", Trade: trade})
}
