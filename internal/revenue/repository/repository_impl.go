package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/levy/internal/revenue/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.RevenueSchedule, error) {
	var item domain.RevenueSchedule
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, description, amount, recurrence, currency, created_at, updated_at
		 FROM revenue_schedules
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]domain.RevenueSchedule, error) {
	var items []domain.RevenueSchedule
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, description, amount, recurrence, currency, created_at, updated_at
		 FROM revenue_schedules
		 ORDER BY name ASC, id ASC`,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
