package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/levy/internal/revenue/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("revenue.service"),
		repo: p.Repo,
	}
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.RevenueSchedule, error) {
	if id == 0 {
		return nil, domain.ErrScheduleNotFound
	}
	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrScheduleNotFound
	}
	normalize(item)
	if item.Amount <= 0 {
		s.log.Warn("revenue schedule has non-positive amount", zap.String("schedule_id", id.String()))
		return nil, domain.ErrInvalidSchedule
	}
	return item, nil
}

func (s *Service) List(ctx context.Context) ([]domain.RevenueSchedule, error) {
	items, err := s.repo.List(ctx, s.db)
	if err != nil {
		return nil, err
	}
	for i := range items {
		normalize(&items[i])
	}
	return items, nil
}

func normalize(item *domain.RevenueSchedule) {
	item.Recurrence = domain.ParseRecurrence(string(item.Recurrence))
	item.Currency = strings.ToUpper(strings.TrimSpace(item.Currency))
	if item.Currency == "" {
		item.Currency = "NGN"
	}
}
