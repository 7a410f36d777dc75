// Package metrics derives performance figures from a user's trades and
// maintains the per-day balance/equity snapshots behind the equity curve.
package metrics

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"trading-journal/internal/models"
)

// ProfitFactorKind tags a ProfitFactor as a number or as unbounded.
type ProfitFactorKind string

const (
	KindFinite   ProfitFactorKind = "finite"
	KindInfinite ProfitFactorKind = "infinite"
)

// ProfitFactor is gross profit over gross loss. A journal with winners and no
// losers has an infinite profit factor, which is carried as a tag instead of
// an IEEE infinity so it survives JSON encoding.
type ProfitFactor struct {
	Kind  ProfitFactorKind
	Value float64
}

// Finite returns a numeric profit factor.
func Finite(v float64) ProfitFactor { return ProfitFactor{Kind: KindFinite, Value: v} }

// Infinite returns the unbounded profit factor.
func Infinite() ProfitFactor { return ProfitFactor{Kind: KindInfinite} }

// IsInfinite reports whether there were profits and no losses.
func (p ProfitFactor) IsInfinite() bool { return p.Kind == KindInfinite }

// Float returns the value, using math.Inf for the unbounded case.
func (p ProfitFactor) Float() float64 {
	if p.IsInfinite() {
		return math.Inf(1)
	}
	return p.Value
}

func (p ProfitFactor) String() string {
	if p.IsInfinite() {
		return "∞"
	}
	return fmt.Sprintf("%.2f", p.Value)
}

type profitFactorJSON struct {
	Kind  ProfitFactorKind `json:"kind"`
	Value *float64         `json:"value"`
}

// MarshalJSON encodes {"kind":"finite","value":x} or {"kind":"infinite","value":null}.
func (p ProfitFactor) MarshalJSON() ([]byte, error) {
	out := profitFactorJSON{Kind: KindFinite}
	if p.IsInfinite() {
		out.Kind = KindInfinite
	} else {
		v := p.Value
		out.Value = &v
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the MarshalJSON form.
func (p *ProfitFactor) UnmarshalJSON(data []byte) error {
	var in profitFactorJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch in.Kind {
	case KindInfinite:
		*p = Infinite()
	case KindFinite, "":
		if in.Value == nil {
			*p = Finite(0)
		} else {
			*p = Finite(*in.Value)
		}
	default:
		return fmt.Errorf("unknown profit factor kind %q", in.Kind)
	}
	return nil
}

// closedProfits returns the realized profit of every trade that has one.
func closedProfits(trades []models.Trade) []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(trades))
	for _, t := range trades {
		if t.Profit != nil {
			out = append(out, decimal.NewFromFloat(*t.Profit))
		}
	}
	return out
}

// WinRate returns the percentage of closed trades with a positive profit.
// Trades without a profit are ignored; no closed trades yields 0.
func WinRate(trades []models.Trade) float64 {
	profits := closedProfits(trades)
	if len(profits) == 0 {
		return 0
	}
	wins := 0
	for _, p := range profits {
		if p.IsPositive() {
			wins++
		}
	}
	return 100 * float64(wins) / float64(len(profits))
}

func grossProfitLoss(trades []models.Trade) (gross, loss decimal.Decimal) {
	for _, p := range closedProfits(trades) {
		if p.IsPositive() {
			gross = gross.Add(p)
		} else if p.IsNegative() {
			loss = loss.Add(p)
		}
	}
	return gross, loss.Abs()
}

// ComputeProfitFactor returns gross profit divided by gross loss.
// Without losses it is Infinite when there was any profit and Finite(0) otherwise.
func ComputeProfitFactor(trades []models.Trade) ProfitFactor {
	gross, loss := grossProfitLoss(trades)
	if loss.IsZero() {
		if gross.IsPositive() {
			return Infinite()
		}
		return Finite(0)
	}
	return Finite(gross.Div(loss).InexactFloat64())
}

// RiskReward returns the mean reward/risk ratio of the trades that have both a
// stop loss and a take profit. Trades whose stop sits on the entry are skipped.
func RiskReward(trades []models.Trade) float64 {
	sum, n := 0.0, 0
	for _, t := range trades {
		if t.StopLoss == nil || t.TakeProfit == nil {
			continue
		}
		risk := math.Abs(t.EntryPrice - *t.StopLoss)
		if risk == 0 {
			continue
		}
		sum += math.Abs(*t.TakeProfit-t.EntryPrice) / risk
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// TotalProfit sums the realized profit of closed trades.
func TotalProfit(trades []models.Trade) float64 {
	total := decimal.Zero
	for _, p := range closedProfits(trades) {
		total = total.Add(p)
	}
	return total.InexactFloat64()
}

// AverageWin returns the mean profit of winning trades, 0 if there are none.
func AverageWin(trades []models.Trade) float64 {
	return average(trades, decimal.Decimal.IsPositive)
}

// AverageLoss returns the mean profit of losing trades (a negative number), 0 if there are none.
func AverageLoss(trades []models.Trade) float64 {
	return average(trades, decimal.Decimal.IsNegative)
}

func average(trades []models.Trade, keep func(decimal.Decimal) bool) float64 {
	sum, n := decimal.Zero, int64(0)
	for _, p := range closedProfits(trades) {
		if keep(p) {
			sum = sum.Add(p)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum.Div(decimal.NewFromInt(n)).InexactFloat64()
}

// DailyPnL sums the profit of trades closed on day's calendar date in loc.
func DailyPnL(trades []models.Trade, day time.Time, loc *time.Location) float64 {
	start := models.Day(day, loc)
	end := start.AddDate(0, 0, 1)

	total := decimal.Zero
	for _, t := range trades {
		if t.Profit == nil || t.ClosedAt == nil {
			continue
		}
		if !t.ClosedAt.Before(start) && t.ClosedAt.Before(end) {
			total = total.Add(decimal.NewFromFloat(*t.Profit))
		}
	}
	return total.InexactFloat64()
}

// EquityPoint is one day of the equity curve.
type EquityPoint struct {
	Date    time.Time `json:"date"`
	Equity  float64   `json:"equity"`
	Balance float64   `json:"balance"`
}

// BuildEquityCurve returns exactly rangeDays points, one per calendar day,
// ending on end's day in end's location. Each day uses the latest snapshot at
// or before it; days before the first snapshot carry opening.
func BuildEquityCurve(snapshots []models.JournalMetric, rangeDays int, end time.Time, opening float64) []EquityPoint {
	if rangeDays <= 0 {
		return nil
	}

	sorted := make([]models.JournalMetric, len(snapshots))
	copy(sorted, snapshots)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	loc := end.Location()
	last := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, loc)
	first := last.AddDate(0, 0, -(rangeDays - 1))

	points := make([]EquityPoint, 0, rangeDays)
	current := EquityPoint{Equity: opening, Balance: opening}
	next := 0
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		dayEnd := day.AddDate(0, 0, 1)
		for next < len(sorted) && sorted[next].Date.Before(dayEnd) {
			current.Equity = sorted[next].Equity
			current.Balance = sorted[next].Balance
			next++
		}
		current.Date = day
		points = append(points, current)
	}
	return points
}

// MaxDrawdown returns the deepest fall of equity from its running peak, as a
// percentage of that peak. It is 0 or negative.
func MaxDrawdown(points []EquityPoint) float64 {
	peak, worst := 0.0, 0.0
	for _, p := range points {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak <= 0 {
			continue
		}
		if dd := (p.Equity - peak) / peak * 100; dd < worst {
			worst = dd
		}
	}
	return worst
}

// RelativeDrawdown returns how far the latest equity sits below the peak, in percent.
func RelativeDrawdown(points []EquityPoint) float64 {
	if len(points) == 0 {
		return 0
	}
	peak := 0.0
	for _, p := range points {
		peak = math.Max(peak, p.Equity)
	}
	if peak <= 0 {
		return 0
	}
	return (points[len(points)-1].Equity - peak) / peak * 100
}
