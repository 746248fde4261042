package billing

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dentalclinic/backend/internal/domain/billing"
)

type balanceServiceFixture struct {
	invoiceRepo *MockInvoiceRepository
	paymentRepo *MockPaymentRepository
	ledgerRepo  *MockLedgerRepository
	patientRepo *MockPatientRepository
	cache       *MockBalanceCache
	sink        *MockStatementSink
	service     *BalanceService
}

func newBalanceServiceFixture() *balanceServiceFixture {
	f := &balanceServiceFixture{
		invoiceRepo: new(MockInvoiceRepository),
		paymentRepo: new(MockPaymentRepository),
		ledgerRepo:  new(MockLedgerRepository),
		patientRepo: new(MockPatientRepository),
		cache:       new(MockBalanceCache),
		sink:        new(MockStatementSink),
	}
	f.service = NewBalanceService(
		f.invoiceRepo, f.paymentRepo, f.ledgerRepo, f.patientRepo,
		f.cache, f.sink, zap.NewNop(),
	)
	return f
}

func TestBalanceService_GetPatientBalance_CacheHit(t *testing.T) {
	f := newBalanceServiceFixture()
	tenantID := uuid.New()
	patientID := uuid.New()

	f.cache.On("Get", mock.Anything, tenantID, patientID).
		Return(&PatientBalance{
			PatientID: patientID,
			Balance:   decimal.NewFromFloat(420.00),
			Credit:    decimal.NewFromFloat(35.00),
		}, true, nil)

	balance, err := f.service.GetPatientBalance(context.Background(), tenantID, patientID)

	require.NoError(t, err)
	assert.True(t, balance.FromCache)
	assert.True(t, balance.Balance.Equal(decimal.NewFromFloat(420.00)))
	assert.True(t, balance.Credit.Equal(decimal.NewFromFloat(35.00)))
	f.invoiceRepo.AssertNotCalled(t, "SumOutstandingByPatient", mock.Anything, mock.Anything, mock.Anything)
}

func TestBalanceService_GetPatientBalance_CacheMiss(t *testing.T) {
	f := newBalanceServiceFixture()
	tenantID := uuid.New()
	patientID := uuid.New()

	f.cache.On("Get", mock.Anything, tenantID, patientID).Return(nil, false, nil)
	f.invoiceRepo.On("SumOutstandingByPatient", mock.Anything, tenantID, patientID).
		Return(decimal.NewFromFloat(500.00), nil)
	f.paymentRepo.On("SumCreditByPatient", mock.Anything, tenantID, patientID).
		Return(decimal.NewFromFloat(120.00), nil)
	f.cache.On("Set", mock.Anything, tenantID, patientID, mock.MatchedBy(func(b *PatientBalance) bool {
		return b.Balance.Equal(decimal.NewFromFloat(500.00)) && b.Credit.Equal(decimal.NewFromFloat(120.00))
	})).Return(nil)

	balance, err := f.service.GetPatientBalance(context.Background(), tenantID, patientID)

	require.NoError(t, err)
	assert.False(t, balance.FromCache)
	// Unapplied credit is informational and does not reduce the balance
	assert.True(t, balance.Balance.Equal(decimal.NewFromFloat(500.00)))
	assert.True(t, balance.Credit.Equal(decimal.NewFromFloat(120.00)))
	f.cache.AssertExpectations(t)
}

func TestBalanceService_GetPatientBalance_CreditWithoutDebt(t *testing.T) {
	f := newBalanceServiceFixture()
	tenantID := uuid.New()
	patientID := uuid.New()

	f.cache.On("Get", mock.Anything, tenantID, patientID).Return(nil, false, nil)
	f.invoiceRepo.On("SumOutstandingByPatient", mock.Anything, tenantID, patientID).
		Return(decimal.Zero, nil)
	f.paymentRepo.On("SumCreditByPatient", mock.Anything, tenantID, patientID).
		Return(decimal.NewFromFloat(75.00), nil)
	f.cache.On("Set", mock.Anything, tenantID, patientID, mock.Anything).Return(nil)

	balance, err := f.service.GetPatientBalance(context.Background(), tenantID, patientID)

	require.NoError(t, err)
	// Nothing is owed; the credit sits unapplied until drawn
	assert.True(t, balance.Balance.IsZero())
	assert.True(t, balance.Credit.Equal(decimal.NewFromFloat(75.00)))
}

func TestBalanceService_ReconcilePatient_Balanced(t *testing.T) {
	f := newBalanceServiceFixture()
	tenantID := uuid.New()
	patientID := uuid.New()

	f.invoiceRepo.On("SumOutstandingByPatient", mock.Anything, tenantID, patientID).
		Return(decimal.NewFromFloat(300.00), nil)
	f.paymentRepo.On("SumCreditByPatient", mock.Anything, tenantID, patientID).
		Return(decimal.NewFromFloat(50.00), nil)
	f.ledgerRepo.On("BalanceByPatient", mock.Anything, tenantID, patientID).
		Return(decimal.NewFromFloat(250.00), nil)

	report, err := f.service.ReconcilePatient(context.Background(), tenantID, patientID)

	require.NoError(t, err)
	assert.True(t, report.Balanced)
	assert.True(t, report.Discrepancy.IsZero())
}

func TestBalanceService_ReconcilePatient_Discrepancy(t *testing.T) {
	f := newBalanceServiceFixture()
	tenantID := uuid.New()
	patientID := uuid.New()

	f.invoiceRepo.On("SumOutstandingByPatient", mock.Anything, tenantID, patientID).
		Return(decimal.NewFromFloat(300.00), nil)
	f.paymentRepo.On("SumCreditByPatient", mock.Anything, tenantID, patientID).
		Return(decimal.Zero, nil)
	f.ledgerRepo.On("BalanceByPatient", mock.Anything, tenantID, patientID).
		Return(decimal.NewFromFloat(280.00), nil)

	report, err := f.service.ReconcilePatient(context.Background(), tenantID, patientID)

	require.NoError(t, err)
	assert.False(t, report.Balanced)
	assert.True(t, report.Discrepancy.Equal(decimal.NewFromFloat(20.00)))
	assert.True(t, report.DerivedBalance.Equal(decimal.NewFromFloat(300.00)))
	assert.True(t, report.LedgerBalance.Equal(decimal.NewFromFloat(280.00)))
}

func TestBalanceService_GenerateStatement(t *testing.T) {
	f := newBalanceServiceFixture()
	tenantID := uuid.New()
	pat := newServicePatient(t, tenantID)
	from := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)

	before, err := billing.NewInvoiceIssuedEntry(tenantID, pat.ID, uuid.New(), decimal.NewFromFloat(100.00), "Invoice INV-1")
	require.NoError(t, err)
	before.EntryDate = time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

	charge, err := billing.NewInvoiceIssuedEntry(tenantID, pat.ID, uuid.New(), decimal.NewFromFloat(250.00), "Invoice INV-2")
	require.NoError(t, err)
	charge.EntryDate = time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC)

	payment, err := billing.NewPaymentReceivedEntry(tenantID, pat.ID, uuid.New(), decimal.NewFromFloat(150.00), "Payment PAY-1")
	require.NoError(t, err)
	payment.EntryDate = time.Date(2026, 2, 12, 0, 0, 0, 0, time.UTC)

	after, err := billing.NewInvoiceIssuedEntry(tenantID, pat.ID, uuid.New(), decimal.NewFromFloat(80.00), "Invoice INV-3")
	require.NoError(t, err)
	after.EntryDate = time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)

	f.patientRepo.On("FindByIDForTenant", mock.Anything, tenantID, pat.ID).Return(pat, nil)
	f.ledgerRepo.On("FindByPatient", mock.Anything, tenantID, pat.ID, mock.Anything).
		Return(billing.LedgerEntries{before, charge, payment, after}, nil)

	statement, err := f.service.GenerateStatement(context.Background(), tenantID, pat.ID, from, to)

	require.NoError(t, err)
	assert.Equal(t, "Jane Smith", statement.PatientName)
	assert.True(t, statement.OpeningBalance.Equal(decimal.NewFromFloat(100.00)))
	require.Len(t, statement.Lines, 2)
	assert.True(t, statement.Lines[0].Balance.Equal(decimal.NewFromFloat(350.00)))
	assert.True(t, statement.Lines[1].Amount.Equal(decimal.NewFromFloat(-150.00)))
	assert.True(t, statement.Lines[1].Balance.Equal(decimal.NewFromFloat(200.00)))
	assert.True(t, statement.ClosingBalance.Equal(decimal.NewFromFloat(200.00)))
}

func TestBalanceService_GenerateStatement_SkipsCreditApplications(t *testing.T) {
	f := newBalanceServiceFixture()
	tenantID := uuid.New()
	pat := newServicePatient(t, tenantID)
	from := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)

	charge, err := billing.NewInvoiceIssuedEntry(tenantID, pat.ID, uuid.New(), decimal.NewFromFloat(200.00), "Invoice INV-1")
	require.NoError(t, err)
	charge.EntryDate = time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC)

	payment, err := billing.NewPaymentReceivedEntry(tenantID, pat.ID, uuid.New(), decimal.NewFromFloat(200.00), "Advance payment PAY-1")
	require.NoError(t, err)
	payment.EntryDate = time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)

	// The payment already moved the balance; its later application must not
	// move it a second time
	applied, err := billing.NewCreditAppliedEntry(tenantID, pat.ID, uuid.New(), uuid.New(),
		decimal.NewFromFloat(200.00), "Credit from PAY-1 applied to invoice INV-1")
	require.NoError(t, err)
	applied.EntryDate = time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC)

	f.patientRepo.On("FindByIDForTenant", mock.Anything, tenantID, pat.ID).Return(pat, nil)
	f.ledgerRepo.On("FindByPatient", mock.Anything, tenantID, pat.ID, mock.Anything).
		Return(billing.LedgerEntries{charge, payment, applied}, nil)

	statement, err := f.service.GenerateStatement(context.Background(), tenantID, pat.ID, from, to)

	require.NoError(t, err)
	require.Len(t, statement.Lines, 2)
	assert.True(t, statement.ClosingBalance.IsZero())
}

func TestBalanceService_GenerateStatement_SwapsInvertedRange(t *testing.T) {
	f := newBalanceServiceFixture()
	tenantID := uuid.New()
	pat := newServicePatient(t, tenantID)
	from := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	f.patientRepo.On("FindByIDForTenant", mock.Anything, tenantID, pat.ID).Return(pat, nil)
	f.ledgerRepo.On("FindByPatient", mock.Anything, tenantID, pat.ID, mock.Anything).
		Return(billing.LedgerEntries{}, nil)

	statement, err := f.service.GenerateStatement(context.Background(), tenantID, pat.ID, from, to)

	require.NoError(t, err)
	assert.True(t, statement.FromDate.Before(statement.ToDate))
}

func TestBalanceService_DeliverStatement(t *testing.T) {
	f := newBalanceServiceFixture()
	tenantID := uuid.New()
	pat := newServicePatient(t, tenantID)

	f.patientRepo.On("FindByIDForTenant", mock.Anything, tenantID, pat.ID).Return(pat, nil)
	f.ledgerRepo.On("FindByPatient", mock.Anything, tenantID, pat.ID, mock.Anything).
		Return(billing.LedgerEntries{}, nil)
	f.sink.On("Deliver", mock.Anything, mock.MatchedBy(func(s *PatientStatement) bool {
		return s.PatientID == pat.ID && s.PatientName == "Jane Smith"
	})).Return(nil)

	_, err := f.service.DeliverStatement(context.Background(), tenantID, pat.ID,
		time.Now().AddDate(0, -1, 0), time.Now())

	require.NoError(t, err)
	f.sink.AssertExpectations(t)
}
