package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BalanceCache caches computed patient balances. The store remains
// authoritative: mutations invalidate, reads fall back to recomputation on a
// miss.
type BalanceCache interface {
	// Get returns the cached balance, or found=false on a miss
	Get(ctx context.Context, tenantID, patientID uuid.UUID) (balance *PatientBalance, found bool, err error)

	// Set stores a computed balance with the cache's configured TTL
	Set(ctx context.Context, tenantID, patientID uuid.UUID, balance *PatientBalance) error

	// Invalidate drops the cached balance after a financial mutation
	Invalidate(ctx context.Context, tenantID, patientID uuid.UUID) error
}

// StatementLine is one row of a patient statement
type StatementLine struct {
	Date        time.Time       `json:"date"`
	EntryType   string          `json:"entry_type"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Balance     decimal.Decimal `json:"balance"` // Running balance after this line
}

// PatientStatement is a chronological account statement for one patient
type PatientStatement struct {
	TenantID       uuid.UUID       `json:"tenant_id"`
	PatientID      uuid.UUID       `json:"patient_id"`
	PatientName    string          `json:"patient_name"`
	FromDate       time.Time       `json:"from_date"`
	ToDate         time.Time       `json:"to_date"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	ClosingBalance decimal.Decimal `json:"closing_balance"`
	Lines          []StatementLine `json:"lines"`
	GeneratedAt    time.Time       `json:"generated_at"`
}

// StatementSink delivers a generated statement somewhere out of process, such
// as an email queue or an export bucket. Rendering is out of scope here.
type StatementSink interface {
	Deliver(ctx context.Context, statement *PatientStatement) error
}
