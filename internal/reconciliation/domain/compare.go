package domain

import (
	"strings"

	"github.com/shopspring/decimal"
	ledgerdomain "github.com/smallbiznis/levy/internal/ledger/domain"
)

// Compare returns the fields on which db and ledger disagree. A nil ledger
// record yields a single ledger_record diff.
func Compare(db DatabaseRecord, ledger *ledgerdomain.LedgerRecord) []Diff {
	if ledger == nil {
		return []Diff{{Field: FieldLedgerRecord, DatabaseValue: db.LedgerTxHash, LedgerValue: ""}}
	}

	diffs := make([]Diff, 0)
	dbAmount := decimal.NewFromInt(db.Amount)
	if !dbAmount.Equal(ledger.Amount) {
		diffs = append(diffs, Diff{Field: FieldAmount, DatabaseValue: dbAmount.String(), LedgerValue: ledger.Amount.String()})
	}
	if strings.TrimSpace(db.RevenueType) != strings.TrimSpace(ledger.RevenueType) {
		diffs = append(diffs, Diff{Field: FieldRevenueType, DatabaseValue: db.RevenueType, LedgerValue: ledger.RevenueType})
	}
	if strings.TrimSpace(db.PeriodReference) != strings.TrimSpace(ledger.PeriodReference) {
		diffs = append(diffs, Diff{Field: FieldPeriodReference, DatabaseValue: db.PeriodReference, LedgerValue: ledger.PeriodReference})
	}
	if !strings.EqualFold(strings.TrimSpace(db.Period), strings.TrimSpace(ledger.Period)) {
		diffs = append(diffs, Diff{Field: FieldRecurrence, DatabaseValue: db.Period, LedgerValue: ledger.Period})
	}
	return diffs
}

// Verdict is RECONCILED only when the ledger record exists and nothing differs.
func Verdict(ledger *ledgerdomain.LedgerRecord, diffs []Diff) Status {
	if ledger != nil && len(diffs) == 0 {
		return StatusReconciled
	}
	return StatusDiverged
}
