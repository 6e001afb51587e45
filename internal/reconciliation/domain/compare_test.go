package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	ledgerdomain "github.com/smallbiznis/levy/internal/ledger/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sameSource() (DatabaseRecord, *ledgerdomain.LedgerRecord) {
	db := DatabaseRecord{
		ID:              "1",
		RevenueType:     "Market Levy",
		Amount:          5000,
		Period:          "monthly",
		PeriodReference: "2024-03",
		LedgerTxHash:    "0xabc",
	}
	ledger := &ledgerdomain.LedgerRecord{
		TxHash:          "0xabc",
		RevenueType:     db.RevenueType,
		Amount:          decimal.NewFromInt(db.Amount),
		Period:          db.Period,
		PeriodReference: db.PeriodReference,
	}
	return db, ledger
}

func TestCompareRoundTripReconciles(t *testing.T) {
	db, ledger := sameSource()
	diffs := Compare(db, ledger)
	assert.Empty(t, diffs)
	assert.Equal(t, StatusReconciled, Verdict(ledger, diffs))
}

func TestCompareAmountOffByOne(t *testing.T) {
	db, ledger := sameSource()
	ledger.Amount = ledger.Amount.Add(decimal.NewFromInt(1))

	diffs := Compare(db, ledger)
	require.Len(t, diffs, 1)
	assert.Equal(t, FieldAmount, diffs[0].Field)
	assert.Equal(t, "5000", diffs[0].DatabaseValue)
	assert.Equal(t, "5001", diffs[0].LedgerValue)
	assert.Equal(t, StatusDiverged, Verdict(ledger, diffs))
}

func TestCompareAmountScaleInsensitive(t *testing.T) {
	db, ledger := sameSource()
	ledger.Amount = decimal.RequireFromString("5000.00")
	assert.Empty(t, Compare(db, ledger))
}

func TestCompareEveryField(t *testing.T) {
	db, ledger := sameSource()
	ledger.RevenueType = "Tenement Rate"
	ledger.PeriodReference = "2024-04"
	ledger.Period = "yearly"

	fields := make([]string, 0)
	for _, diff := range Compare(db, ledger) {
		fields = append(fields, diff.Field)
	}
	assert.ElementsMatch(t, []string{FieldRevenueType, FieldPeriodReference, FieldRecurrence}, fields)
}

func TestCompareRecurrenceIgnoresCase(t *testing.T) {
	db, ledger := sameSource()
	ledger.Period = "Monthly"
	assert.Empty(t, Compare(db, ledger))
}

func TestCompareMissingLedgerRecord(t *testing.T) {
	db, _ := sameSource()
	diffs := Compare(db, nil)
	require.Len(t, diffs, 1)
	assert.Equal(t, FieldLedgerRecord, diffs[0].Field)
	assert.Equal(t, StatusDiverged, Verdict(nil, diffs))
}
