package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"trading-journal/internal/id"
)

// ContractSize is the units-per-lot convention used to turn a price move into
// account currency. Stored profits depend on it, so it must not change.
const ContractSize = 100000

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Status is the lifecycle state of a trade. CLOSED is terminal.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

// Source records how a trade entered the journal.
type Source string

const (
	SourceWebhook Source = "WEBHOOK"
	SourceManual  Source = "MANUAL"
)

// Trade represents one position in a user's journal.
// ExitPrice, Profit and ClosedAt are nil while the trade is OPEN and set once CLOSED.
type Trade struct {
	ID            string     `gorm:"primaryKey;size:26" json:"id"`
	UserID        string     `gorm:"size:26;not null;index:idx_trades_lookup,priority:1" json:"userId"`
	Symbol        string     `gorm:"not null;index:idx_trades_lookup,priority:2" json:"symbol"`
	Side          Side       `gorm:"column:type;not null" json:"type"`
	EntryPrice    float64    `gorm:"not null" json:"entryPrice"`
	ExitPrice     *float64   `json:"exitPrice"`
	StopLoss      *float64   `gorm:"column:sl" json:"sl"`
	TakeProfit    *float64   `gorm:"column:tp" json:"tp"`
	LotSize       float64    `gorm:"not null" json:"lotSize"`
	Profit        *float64   `json:"profit"`
	Status        Status     `gorm:"not null;index:idx_trades_lookup,priority:3" json:"status"`
	Setup         string     `json:"setup,omitempty"`
	ScreenshotURL string     `json:"screenshotUrl,omitempty"`
	Source        Source     `gorm:"not null" json:"source"`
	ClosedAt      *time.Time `json:"closedAt"`
	CreatedAt     time.Time  `gorm:"index:idx_trades_lookup,priority:4" json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// BeforeCreate assigns a time-sortable ID.
func (t *Trade) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = id.New()
	}
	return nil
}

// IsClosed reports whether the trade has a realized result.
func (t *Trade) IsClosed() bool {
	return t.Status == StatusClosed
}

// ProfitAt returns the profit the trade would realize if closed at price.
func (t *Trade) ProfitAt(price float64) float64 {
	return Profit(t.Side, t.EntryPrice, price, t.LotSize)
}

// Close moves the trade to CLOSED in memory.
func (t *Trade) Close(exitPrice, profit float64, at time.Time) {
	t.ExitPrice = &exitPrice
	t.Profit = &profit
	t.Status = StatusClosed
	t.ClosedAt = &at
}

// CheckState verifies the OPEN/CLOSED field invariant.
func (t *Trade) CheckState() error {
	switch t.Status {
	case StatusOpen:
		if t.ExitPrice != nil || t.Profit != nil {
			return errors.New("open trade must not carry exit price or profit")
		}
	case StatusClosed:
		if t.ExitPrice == nil || t.Profit == nil {
			return errors.New("closed trade must carry exit price and profit")
		}
	default:
		return fmt.Errorf("unknown trade status %q", t.Status)
	}
	return nil
}

// Profit converts a price move into account currency:
// (exit - entry) * lot * ContractSize for BUY, and the negation for SELL.
// Decimal arithmetic keeps results such as 0.007 * 0.1 * 100000 exact.
func Profit(side Side, entry, exit, lotSize float64) float64 {
	move := decimal.NewFromFloat(exit).Sub(decimal.NewFromFloat(entry))
	if side == SideSell {
		move = move.Neg()
	}
	return move.
		Mul(decimal.NewFromFloat(lotSize)).
		Mul(decimal.NewFromInt(ContractSize)).
		InexactFloat64()
}

// ParseSide validates a side string.
func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case SideBuy, SideSell:
		return Side(s), nil
	}
	return "", fmt.Errorf("invalid side %q", s)
}

// ParseStatus validates a status string.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusOpen, StatusClosed:
		return Status(s), nil
	}
	return "", fmt.Errorf("invalid status %q", s)
}
