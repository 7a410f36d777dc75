package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"trading-journal/internal/id"
)

// Role is the closed set of account roles.
type Role string

const (
	RoleTrader Role = "TRADER"
	RoleAdmin  Role = "ADMIN"
)

// ParseRole validates a role string. An empty string yields RoleTrader.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case "":
		return RoleTrader, nil
	case RoleTrader, RoleAdmin:
		return Role(s), nil
	}
	return "", fmt.Errorf("invalid role %q", s)
}

// User is a journal account. APIKey authenticates webhook calls and is never rotated.
type User struct {
	ID              string          `gorm:"primaryKey;size:26" json:"id"`
	Name            string          `json:"name"`
	Email           string          `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash    string          `gorm:"column:password;not null" json:"-"`
	Role            Role            `gorm:"not null" json:"role"`
	APIKey          string          `gorm:"column:api_key;uniqueIndex;not null" json:"apiKey"`
	StartingBalance *float64        `json:"startingBalance,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
	Trades          []Trade         `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Metrics         []JournalMetric `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// BeforeCreate assigns a time-sortable ID.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = id.New()
	}
	return nil
}

// IsAdmin reports whether the user holds the ADMIN role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
