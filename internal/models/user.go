package models

import "time"

// User owns recurring rules and budgets.
type User struct {
	Base
	Email          string          `gorm:"uniqueIndex;not null" json:"email"`
	Password       string          `gorm:"not null" json:"-"`
	FirstName      string          `json:"first_name"`
	LastName       string          `json:"last_name"`
	IsActive       bool            `gorm:"default:true" json:"is_active"`
	LastLoginAt    *time.Time      `json:"last_login_at,omitempty"`
	RecurringRules []RecurringRule `gorm:"foreignKey:UserID" json:"recurring_rules,omitempty"`
	Budgets        []Budget        `gorm:"foreignKey:UserID" json:"budgets,omitempty"`
}
