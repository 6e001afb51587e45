package pdf

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

var ErrEmptyReceipt = errors.New("empty_receipt")

// ReceiptData is the display-ready content of a payment receipt.
type ReceiptData struct {
	ReceiptNumber    string
	IssuerName       string
	IssuerAddress    string
	PayerID          string
	RevenueType      string
	Recurrence       string
	PeriodReference  string
	Amount           string
	DatePaid         string
	GatewayProvider  string
	GatewayReference string
	LedgerTxHash     string
}

type PDFProvider struct{}

func (p *PDFProvider) GenerateReceipt(ctx context.Context, receipt ReceiptData) (io.Reader, error) {
	if receipt.ReceiptNumber == "" {
		return nil, ErrEmptyReceipt
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(20,
		text.NewCol(6, "Payment receipt", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		col.New(6).Add(
			text.New(receipt.IssuerName, props.Text{Style: fontstyle.Bold, Align: align.Right}),
			text.New(receipt.IssuerAddress, props.Text{Top: 5, Size: 9, Align: align.Right}),
		),
	)

	m.AddRow(20,
		col.New(6).Add(
			text.New("Receipt number: "+receipt.ReceiptNumber, props.Text{Top: 0}),
			text.New("Date paid: "+receipt.DatePaid, props.Text{Top: 4}),
			text.New("Period: "+receipt.PeriodReference, props.Text{Top: 8}),
		),
		col.New(6).Add(
			text.New("Paid by", props.Text{Style: fontstyle.Bold}),
			text.New(receipt.PayerID, props.Text{Top: 5}),
		),
	)

	m.AddRow(15,
		text.NewCol(12, receipt.Amount+" paid on "+receipt.DatePaid, props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Top:   5,
		}),
	)

	m.AddRow(10,
		text.NewCol(6, "Revenue type", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, "Recurrence", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(15,
		text.NewCol(6, receipt.RevenueType, props.Text{Size: 9}),
		text.NewCol(3, receipt.Recurrence, props.Text{Size: 9}),
		text.NewCol(3, receipt.Amount, props.Text{Size: 9, Align: align.Right}),
	)

	m.AddRow(10,
		text.NewCol(4, "Gateway reference", props.Text{Size: 9}),
		text.NewCol(8, receipt.GatewayProvider+" / "+receipt.GatewayReference, props.Text{Size: 9}),
	)
	ledgerLine := receipt.LedgerTxHash
	if ledgerLine == "" {
		ledgerLine = "pending anchoring"
	}
	m.AddRow(10,
		text.NewCol(4, "Ledger transaction", props.Text{Size: 9}),
		text.NewCol(8, ledgerLine, props.Text{Size: 9}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}

	return bytes.NewReader(doc.GetBytes()), nil
}
