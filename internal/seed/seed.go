package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	revenuedomain "github.com/smallbiznis/levy/internal/revenue/domain"
	"gorm.io/gorm"
)

// DefaultSchedules is the starter catalogue for a fresh deployment.
var DefaultSchedules = []revenuedomain.RevenueSchedule{
	{
		Name:        "Market Levy",
		Description: "Monthly levy for market stall operators.",
		Amount:      250000,
		Recurrence:  revenuedomain.RecurrenceMonthly,
		Currency:    "NGN",
	},
	{
		Name:        "Tenement Rate",
		Description: "Annual rate on occupied property.",
		Amount:      1500000,
		Recurrence:  revenuedomain.RecurrenceYearly,
		Currency:    "NGN",
	},
	{
		Name:        "Motor Park Ticket",
		Description: "Weekly ticket for commercial vehicle operators.",
		Amount:      50000,
		Recurrence:  revenuedomain.RecurrenceWeekly,
		Currency:    "NGN",
	},
	{
		Name:        "Hawker Permit",
		Description: "Daily permit for street trading.",
		Amount:      20000,
		Recurrence:  revenuedomain.RecurrenceDaily,
		Currency:    "NGN",
	},
}

// EnsureRevenueSchedules creates any default schedule missing by name.
// Existing rows are left untouched.
func EnsureRevenueSchedules(ctx context.Context, db *gorm.DB, node *snowflake.Node, now time.Time) (int, error) {
	if db == nil {
		return 0, errors.New("seed database handle is required")
	}
	if node == nil {
		return 0, errors.New("seed id generator is required")
	}

	created := 0
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, def := range DefaultSchedules {
			ok, err := ensureScheduleTx(ctx, tx, node, def, now.UTC())
			if err != nil {
				return err
			}
			if ok {
				created++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}

func ensureScheduleTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, def revenuedomain.RevenueSchedule, now time.Time) (bool, error) {
	var existing revenuedomain.RevenueSchedule
	err := tx.WithContext(ctx).Where("name = ?", def.Name).First(&existing).Error
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}

	schedule := def
	schedule.ID = node.Generate()
	schedule.CreatedAt = now
	schedule.UpdatedAt = now
	if err := tx.WithContext(ctx).Create(&schedule).Error; err != nil {
		return false, err
	}
	return true, nil
}
