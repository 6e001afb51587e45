package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Recurrence is the billing cadence of a revenue obligation.
type Recurrence string

const (
	RecurrenceDaily   Recurrence = "daily"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
	RecurrenceYearly  Recurrence = "yearly"
)

// ParseRecurrence normalizes a stored recurrence value.
func ParseRecurrence(value string) Recurrence {
	return Recurrence(strings.ToLower(strings.TrimSpace(value)))
}

func (r Recurrence) Valid() bool {
	switch r {
	case RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly, RecurrenceYearly:
		return true
	default:
		return false
	}
}

// RevenueSchedule is a levy the taxpayer may pay against.
type RevenueSchedule struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	Name        string       `json:"name" gorm:"type:text;not null"`
	Description string       `json:"description" gorm:"type:text"`
	Amount      int64        `json:"amount" gorm:"not null"`
	Recurrence  Recurrence   `json:"recurrence" gorm:"type:text;not null"`
	Currency    string       `json:"currency" gorm:"type:text;not null"`
	CreatedAt   time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time    `json:"updated_at" gorm:"not null"`
}

func (RevenueSchedule) TableName() string { return "revenue_schedules" }
