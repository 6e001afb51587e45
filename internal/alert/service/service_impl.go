package service

import (
	"context"
	"fmt"
	"strings"

	alertdomain "github.com/smallbiznis/levy/internal/alert/domain"
	"github.com/smallbiznis/levy/internal/config"
	"github.com/smallbiznis/levy/internal/providers/slack"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log     *zap.Logger
	Slack   slack.Provider
	Runtime *config.RuntimeConfigHolder `optional:"true"`
}

type Service struct {
	log     *zap.Logger
	slack   slack.Provider
	runtime *config.RuntimeConfigHolder
}

func NewService(p Params) alertdomain.Service {
	provider := p.Slack
	if provider == nil {
		provider = &slack.NoOpProvider{}
	}
	return &Service{
		log:     p.Log.Named("alert.service"),
		slack:   provider,
		runtime: p.Runtime,
	}
}

func (s *Service) NotifyRecordingFailed(ctx context.Context, failure alertdomain.RecordingFailure) error {
	message := fmt.Sprintf(
		"[%s] Payment captured but not recorded\nintent: %s\ngateway: %s %s\npayer: %s\nschedule: %s period: %s\namount: %d %s\ncause: %s",
		strings.ToUpper(string(alertdomain.SeverityCritical)),
		failure.IntentToken,
		failure.GatewayProvider,
		failure.GatewayReference,
		failure.PayerID,
		failure.ScheduleID,
		failure.PeriodReference,
		failure.Amount,
		failure.Currency,
		failure.Cause,
	)
	return s.post(ctx, "recording_failed", message)
}

func (s *Service) NotifyDivergence(ctx context.Context, divergence alertdomain.Divergence) error {
	if !s.runtime.Get().Alert.NotifyOnDivergence {
		return nil
	}
	message := fmt.Sprintf(
		"[%s] Ledger divergence on payment %s\nledger tx: %s\nfields: %s",
		strings.ToUpper(string(alertdomain.SeverityWarning)),
		divergence.PaymentID,
		divergence.LedgerTxHash,
		strings.Join(divergence.Fields, ", "),
	)
	return s.post(ctx, "diverged", message)
}

func (s *Service) post(ctx context.Context, kind string, message string) error {
	channel := s.runtime.Get().Alert.Channel
	if err := s.slack.PostMessage(ctx, channel, message); err != nil {
		s.log.Warn("failed to post alert", zap.String("kind", kind), zap.String("channel", channel), zap.Error(err))
		return err
	}
	return nil
}
