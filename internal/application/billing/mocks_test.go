package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/dentalclinic/backend/internal/domain/billing"
	"github.com/dentalclinic/backend/internal/domain/catalog"
	"github.com/dentalclinic/backend/internal/domain/patient"
)

// =============================================================================
// Mock repositories and ports shared by the billing service tests
// =============================================================================

// passthroughTxManager runs the closure directly, without a real transaction
type passthroughTxManager struct{}

func (passthroughTxManager) WithinTransaction(ctx context.Context, fn func(txCtx context.Context) error) error {
	return fn(ctx)
}

// MockInvoiceRepository mocks billing.InvoiceRepository
type MockInvoiceRepository struct {
	mock.Mock
}

func (m *MockInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Invoice, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*billing.Invoice, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) FindByInvoiceNumber(ctx context.Context, tenantID uuid.UUID, invoiceNumber string) (*billing.Invoice, error) {
	args := m.Called(ctx, tenantID, invoiceNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter billing.InvoiceFilter) ([]billing.Invoice, error) {
	args := m.Called(ctx, tenantID, filter)
	return args.Get(0).([]billing.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) FindByPatient(ctx context.Context, tenantID, patientID uuid.UUID, filter billing.InvoiceFilter) ([]billing.Invoice, error) {
	args := m.Called(ctx, tenantID, patientID, filter)
	return args.Get(0).([]billing.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) FindOutstanding(ctx context.Context, tenantID, patientID uuid.UUID) ([]billing.Invoice, error) {
	args := m.Called(ctx, tenantID, patientID)
	return args.Get(0).([]billing.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) FindPastDue(ctx context.Context, tenantID uuid.UUID, asOf time.Time, limit int) ([]billing.Invoice, error) {
	args := m.Called(ctx, tenantID, asOf, limit)
	return args.Get(0).([]billing.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) Save(ctx context.Context, invoice *billing.Invoice) error {
	args := m.Called(ctx, invoice)
	return args.Error(0)
}

func (m *MockInvoiceRepository) SaveWithLock(ctx context.Context, invoice *billing.Invoice) error {
	args := m.Called(ctx, invoice)
	return args.Error(0)
}

func (m *MockInvoiceRepository) DeleteForTenant(ctx context.Context, tenantID, id uuid.UUID) error {
	args := m.Called(ctx, tenantID, id)
	return args.Error(0)
}

func (m *MockInvoiceRepository) CountForTenant(ctx context.Context, tenantID uuid.UUID, filter billing.InvoiceFilter) (int64, error) {
	args := m.Called(ctx, tenantID, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockInvoiceRepository) SumOutstandingByPatient(ctx context.Context, tenantID, patientID uuid.UUID) (decimal.Decimal, error) {
	args := m.Called(ctx, tenantID, patientID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockInvoiceRepository) SumOutstandingForTenant(ctx context.Context, tenantID uuid.UUID) (decimal.Decimal, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockInvoiceRepository) ExistsByInvoiceNumber(ctx context.Context, tenantID uuid.UUID, invoiceNumber string) (bool, error) {
	args := m.Called(ctx, tenantID, invoiceNumber)
	return args.Bool(0), args.Error(1)
}

func (m *MockInvoiceRepository) GenerateInvoiceNumber(ctx context.Context, tenantID uuid.UUID) (string, error) {
	args := m.Called(ctx, tenantID)
	return args.String(0), args.Error(1)
}

// MockPaymentRepository mocks billing.PaymentRepository
type MockPaymentRepository struct {
	mock.Mock
}

func (m *MockPaymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Payment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Payment), args.Error(1)
}

func (m *MockPaymentRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*billing.Payment, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Payment), args.Error(1)
}

func (m *MockPaymentRepository) FindByPaymentNumber(ctx context.Context, tenantID uuid.UUID, paymentNumber string) (*billing.Payment, error) {
	args := m.Called(ctx, tenantID, paymentNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Payment), args.Error(1)
}

func (m *MockPaymentRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter billing.PaymentFilter) ([]billing.Payment, error) {
	args := m.Called(ctx, tenantID, filter)
	return args.Get(0).([]billing.Payment), args.Error(1)
}

func (m *MockPaymentRepository) FindByPatient(ctx context.Context, tenantID, patientID uuid.UUID, filter billing.PaymentFilter) ([]billing.Payment, error) {
	args := m.Called(ctx, tenantID, patientID, filter)
	return args.Get(0).([]billing.Payment), args.Error(1)
}

func (m *MockPaymentRepository) FindWithCredit(ctx context.Context, tenantID, patientID uuid.UUID) ([]billing.Payment, error) {
	args := m.Called(ctx, tenantID, patientID)
	return args.Get(0).([]billing.Payment), args.Error(1)
}

func (m *MockPaymentRepository) Save(ctx context.Context, payment *billing.Payment) error {
	args := m.Called(ctx, payment)
	return args.Error(0)
}

func (m *MockPaymentRepository) SaveWithLock(ctx context.Context, payment *billing.Payment) error {
	args := m.Called(ctx, payment)
	return args.Error(0)
}

func (m *MockPaymentRepository) CountForTenant(ctx context.Context, tenantID uuid.UUID, filter billing.PaymentFilter) (int64, error) {
	args := m.Called(ctx, tenantID, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockPaymentRepository) SumCreditByPatient(ctx context.Context, tenantID, patientID uuid.UUID) (decimal.Decimal, error) {
	args := m.Called(ctx, tenantID, patientID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockPaymentRepository) SumReceivedForTenant(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (decimal.Decimal, error) {
	args := m.Called(ctx, tenantID, from, to)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockPaymentRepository) GeneratePaymentNumber(ctx context.Context, tenantID uuid.UUID) (string, error) {
	args := m.Called(ctx, tenantID)
	return args.String(0), args.Error(1)
}

// MockLedgerRepository mocks billing.LedgerRepository
type MockLedgerRepository struct {
	mock.Mock
}

func (m *MockLedgerRepository) Append(ctx context.Context, entries ...*billing.LedgerEntry) error {
	args := m.Called(ctx, entries)
	return args.Error(0)
}

func (m *MockLedgerRepository) FindByPatient(ctx context.Context, tenantID, patientID uuid.UUID, filter billing.LedgerFilter) (billing.LedgerEntries, error) {
	args := m.Called(ctx, tenantID, patientID, filter)
	return args.Get(0).(billing.LedgerEntries), args.Error(1)
}

func (m *MockLedgerRepository) FindByInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) (billing.LedgerEntries, error) {
	args := m.Called(ctx, tenantID, invoiceID)
	return args.Get(0).(billing.LedgerEntries), args.Error(1)
}

func (m *MockLedgerRepository) BalanceByPatient(ctx context.Context, tenantID, patientID uuid.UUID) (decimal.Decimal, error) {
	args := m.Called(ctx, tenantID, patientID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockLedgerRepository) CountByPatient(ctx context.Context, tenantID, patientID uuid.UUID, filter billing.LedgerFilter) (int64, error) {
	args := m.Called(ctx, tenantID, patientID, filter)
	return args.Get(0).(int64), args.Error(1)
}

// MockRefundRepository mocks billing.RefundRepository
type MockRefundRepository struct {
	mock.Mock
}

func (m *MockRefundRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Refund, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Refund), args.Error(1)
}

func (m *MockRefundRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*billing.Refund, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Refund), args.Error(1)
}

func (m *MockRefundRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter billing.RefundFilter) ([]billing.Refund, error) {
	args := m.Called(ctx, tenantID, filter)
	return args.Get(0).([]billing.Refund), args.Error(1)
}

func (m *MockRefundRepository) FindByPatient(ctx context.Context, tenantID, patientID uuid.UUID, filter billing.RefundFilter) ([]billing.Refund, error) {
	args := m.Called(ctx, tenantID, patientID, filter)
	return args.Get(0).([]billing.Refund), args.Error(1)
}

func (m *MockRefundRepository) FindByPayment(ctx context.Context, tenantID, paymentID uuid.UUID) ([]billing.Refund, error) {
	args := m.Called(ctx, tenantID, paymentID)
	return args.Get(0).([]billing.Refund), args.Error(1)
}

func (m *MockRefundRepository) Save(ctx context.Context, refund *billing.Refund) error {
	args := m.Called(ctx, refund)
	return args.Error(0)
}

func (m *MockRefundRepository) SaveWithLock(ctx context.Context, refund *billing.Refund) error {
	args := m.Called(ctx, refund)
	return args.Error(0)
}

func (m *MockRefundRepository) SumRefundedByPayment(ctx context.Context, tenantID, paymentID uuid.UUID) (decimal.Decimal, error) {
	args := m.Called(ctx, tenantID, paymentID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockRefundRepository) SumProcessedByPatient(ctx context.Context, tenantID, patientID uuid.UUID) (decimal.Decimal, error) {
	args := m.Called(ctx, tenantID, patientID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockRefundRepository) GenerateRefundNumber(ctx context.Context, tenantID uuid.UUID) (string, error) {
	args := m.Called(ctx, tenantID)
	return args.String(0), args.Error(1)
}

// MockPaymentPlanRepository mocks billing.PaymentPlanRepository
type MockPaymentPlanRepository struct {
	mock.Mock
}

func (m *MockPaymentPlanRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.PaymentPlan, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.PaymentPlan), args.Error(1)
}

func (m *MockPaymentPlanRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*billing.PaymentPlan, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.PaymentPlan), args.Error(1)
}

func (m *MockPaymentPlanRepository) FindByInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) (*billing.PaymentPlan, error) {
	args := m.Called(ctx, tenantID, invoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.PaymentPlan), args.Error(1)
}

func (m *MockPaymentPlanRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter billing.PaymentPlanFilter) ([]billing.PaymentPlan, error) {
	args := m.Called(ctx, tenantID, filter)
	return args.Get(0).([]billing.PaymentPlan), args.Error(1)
}

func (m *MockPaymentPlanRepository) FindActiveWithDueInstallments(ctx context.Context, tenantID uuid.UUID, asOf time.Time) ([]billing.PaymentPlan, error) {
	args := m.Called(ctx, tenantID, asOf)
	return args.Get(0).([]billing.PaymentPlan), args.Error(1)
}

func (m *MockPaymentPlanRepository) Save(ctx context.Context, plan *billing.PaymentPlan) error {
	args := m.Called(ctx, plan)
	return args.Error(0)
}

func (m *MockPaymentPlanRepository) SaveWithLock(ctx context.Context, plan *billing.PaymentPlan) error {
	args := m.Called(ctx, plan)
	return args.Error(0)
}

func (m *MockPaymentPlanRepository) GeneratePlanNumber(ctx context.Context, tenantID uuid.UUID) (string, error) {
	args := m.Called(ctx, tenantID)
	return args.String(0), args.Error(1)
}

// MockPatientRepository mocks patient.PatientRepository
type MockPatientRepository struct {
	mock.Mock
}

func (m *MockPatientRepository) FindByID(ctx context.Context, id uuid.UUID) (*patient.Patient, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*patient.Patient), args.Error(1)
}

func (m *MockPatientRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*patient.Patient, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*patient.Patient), args.Error(1)
}

func (m *MockPatientRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter patient.PatientFilter) ([]patient.Patient, error) {
	args := m.Called(ctx, tenantID, filter)
	return args.Get(0).([]patient.Patient), args.Error(1)
}

func (m *MockPatientRepository) Save(ctx context.Context, p *patient.Patient) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockPatientRepository) CountForTenant(ctx context.Context, tenantID uuid.UUID, filter patient.PatientFilter) (int64, error) {
	args := m.Called(ctx, tenantID, filter)
	return args.Get(0).(int64), args.Error(1)
}

// MockProcedureRepository mocks catalog.ProcedureRepository
type MockProcedureRepository struct {
	mock.Mock
}

func (m *MockProcedureRepository) FindByID(ctx context.Context, id uuid.UUID) (*catalog.Procedure, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Procedure), args.Error(1)
}

func (m *MockProcedureRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*catalog.Procedure, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Procedure), args.Error(1)
}

func (m *MockProcedureRepository) FindByCode(ctx context.Context, tenantID uuid.UUID, code string) (*catalog.Procedure, error) {
	args := m.Called(ctx, tenantID, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Procedure), args.Error(1)
}

func (m *MockProcedureRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter catalog.ProcedureFilter) ([]catalog.Procedure, error) {
	args := m.Called(ctx, tenantID, filter)
	return args.Get(0).([]catalog.Procedure), args.Error(1)
}

func (m *MockProcedureRepository) Save(ctx context.Context, procedure *catalog.Procedure) error {
	args := m.Called(ctx, procedure)
	return args.Error(0)
}

func (m *MockProcedureRepository) ExistsByCode(ctx context.Context, tenantID uuid.UUID, code string) (bool, error) {
	args := m.Called(ctx, tenantID, code)
	return args.Bool(0), args.Error(1)
}

// MockBalanceCache mocks the balance cache port
type MockBalanceCache struct {
	mock.Mock
}

func (m *MockBalanceCache) Get(ctx context.Context, tenantID, patientID uuid.UUID) (*PatientBalance, bool, error) {
	args := m.Called(ctx, tenantID, patientID)
	var balance *PatientBalance
	if args.Get(0) != nil {
		balance = args.Get(0).(*PatientBalance)
	}
	return balance, args.Bool(1), args.Error(2)
}

func (m *MockBalanceCache) Set(ctx context.Context, tenantID, patientID uuid.UUID, balance *PatientBalance) error {
	args := m.Called(ctx, tenantID, patientID, balance)
	return args.Error(0)
}

func (m *MockBalanceCache) Invalidate(ctx context.Context, tenantID, patientID uuid.UUID) error {
	args := m.Called(ctx, tenantID, patientID)
	return args.Error(0)
}

// MockStatementSink mocks the statement delivery port
type MockStatementSink struct {
	mock.Mock
}

func (m *MockStatementSink) Deliver(ctx context.Context, statement *PatientStatement) error {
	args := m.Called(ctx, statement)
	return args.Error(0)
}
