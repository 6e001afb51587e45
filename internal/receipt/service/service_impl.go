package service

import (
	"context"
	"fmt"
	"io"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	authdomain "github.com/smallbiznis/levy/internal/auth/domain"
	"github.com/smallbiznis/levy/internal/authorization"
	"github.com/smallbiznis/levy/internal/config"
	obstracing "github.com/smallbiznis/levy/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/levy/internal/payment/domain"
	"github.com/smallbiznis/levy/internal/providers/pdf"
	"github.com/smallbiznis/levy/internal/receipt/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Cfg      config.Config
	Payments paymentdomain.Service
	PDF      pdf.Provider
}

type Service struct {
	log      *zap.Logger
	issuer   config.ReceiptConfig
	payments paymentdomain.Service
	pdf      pdf.Provider
}

func NewService(p Params) domain.Service {
	return &Service{
		log:      p.Log.Named("receipt.service"),
		issuer:   p.Cfg.Receipt,
		payments: p.Payments,
		pdf:      p.PDF,
	}
}

func (s *Service) Render(ctx context.Context, principal authdomain.Principal, scope authorization.Scope, paymentID snowflake.ID) (*domain.Receipt, error) {
	ctx, span := obstracing.StartSpan(ctx, "receipt", "render", attribute.String("payment.id", paymentID.String()))
	defer span.End()

	payment, err := s.payments.Get(ctx, principal, scope, paymentID)
	if err != nil {
		obstracing.MarkError(span, err)
		return nil, err
	}
	if payment.Status != paymentdomain.StatusSuccess {
		return nil, domain.ErrReceiptUnavailable
	}

	reader, err := s.pdf.GenerateReceipt(ctx, s.receiptData(payment))
	if err != nil {
		obstracing.MarkError(span, err)
		s.log.Error("render receipt", zap.String("payment_id", payment.ID.String()), zap.Error(err))
		return nil, fmt.Errorf("render receipt: %w", err)
	}
	if reader == nil {
		return nil, domain.ErrReceiptUnavailable
	}
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read receipt: %w", err)
	}

	return &domain.Receipt{
		FileName: FileName(payment),
		Content:  content,
	}, nil
}

func (s *Service) receiptData(payment *paymentdomain.Payment) pdf.ReceiptData {
	data := pdf.ReceiptData{
		ReceiptNumber:    payment.ID.String(),
		IssuerName:       s.issuer.IssuerName,
		IssuerAddress:    s.issuer.IssuerAddress,
		PayerID:          payment.PayerID,
		RevenueType:      payment.ScheduleName,
		Recurrence:       payment.Recurrence,
		PeriodReference:  payment.PeriodReference,
		Amount:           FormatAmount(payment.Amount, payment.Currency),
		DatePaid:         payment.CreatedAt.UTC().Format("2006-01-02"),
		GatewayProvider:  payment.GatewayProvider,
		GatewayReference: payment.GatewayReference,
	}
	if payment.LedgerTxHash != nil {
		data.LedgerTxHash = *payment.LedgerTxHash
	}
	return data
}

// FormatAmount renders minor units with two decimal places.
func FormatAmount(minor int64, currency string) string {
	return currency + " " + decimal.New(minor, -2).StringFixed(2)
}

// FileName is a download name such as "receipt-market-levy-2024-03-1234.pdf".
func FileName(payment *paymentdomain.Payment) string {
	base := slug.Make(fmt.Sprintf("receipt %s %s %s", payment.ScheduleName, payment.PeriodReference, payment.ID.String()))
	return base + ".pdf"
}
