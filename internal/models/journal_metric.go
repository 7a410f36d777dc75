package models

import (
	"time"

	"gorm.io/gorm"

	"trading-journal/internal/id"
)

// JournalMetric is the balance/equity snapshot of one user for one calendar day.
// There is at most one row per (UserID, Date).
type JournalMetric struct {
	ID        string    `gorm:"primaryKey;size:26" json:"id"`
	UserID    string    `gorm:"size:26;not null;uniqueIndex:idx_metrics_user_date,priority:1" json:"userId"`
	Date      time.Time `gorm:"not null;uniqueIndex:idx_metrics_user_date,priority:2" json:"date"`
	Balance   float64   `gorm:"not null" json:"balance"`
	Equity    float64   `gorm:"not null" json:"equity"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BeforeCreate assigns a time-sortable ID.
func (m *JournalMetric) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = id.New()
	}
	return nil
}

// Day returns midnight of t's calendar day in loc, expressed in UTC.
func Day(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc).UTC()
}

// All lists every persisted model in migration order.
func All() []interface{} {
	return []interface{}{&User{}, &Trade{}, &JournalMetric{}}
}
