package pdf

import (
	"context"
	"io"

	"go.uber.org/fx"
)

var Module = fx.Module("provider.pdf",
	fx.Provide(NewProvider),
)

type Provider interface {
	GenerateReceipt(ctx context.Context, data ReceiptData) (io.Reader, error)
}

func NewProvider() Provider {
	return &PDFProvider{}
}

type NoOpProvider struct{}

func (p *NoOpProvider) GenerateReceipt(ctx context.Context, data ReceiptData) (io.Reader, error) {
	return nil, nil
}
