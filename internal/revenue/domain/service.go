package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*RevenueSchedule, error)
	List(ctx context.Context, db *gorm.DB) ([]RevenueSchedule, error)
}

// Service is the read-only view of revenue schedules used by the payment core.
type Service interface {
	Get(ctx context.Context, id snowflake.ID) (*RevenueSchedule, error)
	List(ctx context.Context) ([]RevenueSchedule, error)
}
