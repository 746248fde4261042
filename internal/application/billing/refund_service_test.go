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
	"github.com/dentalclinic/backend/internal/domain/shared"
)

type refundServiceFixture struct {
	refundRepo  *MockRefundRepository
	paymentRepo *MockPaymentRepository
	invoiceRepo *MockInvoiceRepository
	patientRepo *MockPatientRepository
	ledgerRepo  *MockLedgerRepository
	cache       *MockBalanceCache
	service     *RefundService
}

func newRefundServiceFixture() *refundServiceFixture {
	f := &refundServiceFixture{
		refundRepo:  new(MockRefundRepository),
		paymentRepo: new(MockPaymentRepository),
		invoiceRepo: new(MockInvoiceRepository),
		patientRepo: new(MockPatientRepository),
		ledgerRepo:  new(MockLedgerRepository),
		cache:       new(MockBalanceCache),
	}
	f.service = NewRefundService(
		f.refundRepo, f.paymentRepo, f.invoiceRepo, f.patientRepo, f.ledgerRepo,
		passthroughTxManager{}, f.cache, zap.NewNop(),
	)
	return f
}

func TestRefundService_RequestRefund_FromPayment(t *testing.T) {
	f := newRefundServiceFixture()
	tenantID := uuid.New()
	pat := newServicePatient(t, tenantID)
	pay := newCreditPayment(t, tenantID, pat.ID, "PAY-1", 300.00, time.Now())

	f.patientRepo.On("FindByIDForTenant", mock.Anything, tenantID, pat.ID).Return(pat, nil)
	f.paymentRepo.On("FindByIDForTenant", mock.Anything, tenantID, pay.ID).Return(pay, nil)
	f.refundRepo.On("FindByPayment", mock.Anything, tenantID, pay.ID).Return([]billing.Refund{}, nil)
	f.refundRepo.On("GenerateRefundNumber", mock.Anything, tenantID).Return("REF-20260115-00001", nil)
	f.refundRepo.On("Save", mock.Anything, mock.Anything).Return(nil)

	refund, err := f.service.RequestRefund(context.Background(), RequestRefundRequest{
		TenantID:  tenantID,
		PatientID: pat.ID,
		PaymentID: &pay.ID,
		Amount:    decimal.NewFromFloat(120.00),
		Method:    billing.PaymentMethodBankTransfer,
		Reason:    "overpayment at checkout",
	})

	require.NoError(t, err)
	assert.Equal(t, billing.RefundStatusPending, refund.Status)
	assert.Equal(t, billing.RefundSourcePayment, refund.Source)
	assert.Equal(t, "REF-20260115-00001", refund.RefundNumber)
}

func TestRefundService_RequestRefund_ExceedsRefundable(t *testing.T) {
	f := newRefundServiceFixture()
	tenantID := uuid.New()
	pat := newServicePatient(t, tenantID)
	// Allocation does not cap the refundable amount, the full 300 does
	pay := newCreditPayment(t, tenantID, pat.ID, "PAY-1", 300.00, time.Now())
	require.NoError(t, pay.Allocate(uuid.New(), "INV-A", decimal.NewFromFloat(250.00), ""))

	f.patientRepo.On("FindByIDForTenant", mock.Anything, tenantID, pat.ID).Return(pat, nil)
	f.paymentRepo.On("FindByIDForTenant", mock.Anything, tenantID, pay.ID).Return(pay, nil)
	f.refundRepo.On("FindByPayment", mock.Anything, tenantID, pay.ID).Return([]billing.Refund{}, nil)

	_, err := f.service.RequestRefund(context.Background(), RequestRefundRequest{
		TenantID:  tenantID,
		PatientID: pat.ID,
		PaymentID: &pay.ID,
		Amount:    decimal.NewFromFloat(350.00),
		Method:    billing.PaymentMethodBankTransfer,
		Reason:    "changed mind",
	})

	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
	assert.Equal(t, "EXCEEDS_REFUNDABLE", shared.ErrorCode(err))
	f.refundRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestRefundService_RequestRefund_OpenRefundHoldsAmount(t *testing.T) {
	f := newRefundServiceFixture()
	tenantID := uuid.New()
	pat := newServicePatient(t, tenantID)
	pay := newCreditPayment(t, tenantID, pat.ID, "PAY-1", 300.00, time.Now())

	pending, err := billing.NewPaymentRefund(
		tenantID, "REF-1", pat.ID, "Jane Smith", pay.ID,
		decimal.NewFromFloat(200.00), billing.PaymentMethodCash, "first request",
	)
	require.NoError(t, err)

	f.patientRepo.On("FindByIDForTenant", mock.Anything, tenantID, pat.ID).Return(pat, nil)
	f.paymentRepo.On("FindByIDForTenant", mock.Anything, tenantID, pay.ID).Return(pay, nil)
	f.refundRepo.On("FindByPayment", mock.Anything, tenantID, pay.ID).Return([]billing.Refund{*pending}, nil)

	// Only 100 remains refundable while the 200 request is open
	_, err = f.service.RequestRefund(context.Background(), RequestRefundRequest{
		TenantID:  tenantID,
		PatientID: pat.ID,
		PaymentID: &pay.ID,
		Amount:    decimal.NewFromFloat(150.00),
		Method:    billing.PaymentMethodCash,
		Reason:    "second request",
	})

	require.Error(t, err)
	assert.Equal(t, "EXCEEDS_REFUNDABLE", shared.ErrorCode(err))
}

func TestRefundService_RequestRefund_VoidedPayment(t *testing.T) {
	f := newRefundServiceFixture()
	tenantID := uuid.New()
	pat := newServicePatient(t, tenantID)
	pay := newCreditPayment(t, tenantID, pat.ID, "PAY-1", 300.00, time.Now())
	require.NoError(t, pay.Void("entered twice"))

	f.patientRepo.On("FindByIDForTenant", mock.Anything, tenantID, pat.ID).Return(pat, nil)
	f.paymentRepo.On("FindByIDForTenant", mock.Anything, tenantID, pay.ID).Return(pay, nil)

	_, err := f.service.RequestRefund(context.Background(), RequestRefundRequest{
		TenantID:  tenantID,
		PatientID: pat.ID,
		PaymentID: &pay.ID,
		Amount:    decimal.NewFromFloat(50.00),
		Method:    billing.PaymentMethodCash,
		Reason:    "refund attempt",
	})

	require.Error(t, err)
	assert.True(t, shared.IsConflict(err))
	assert.Equal(t, "PAYMENT_VOIDED", shared.ErrorCode(err))
}

func TestRefundService_RequestRefund_FromCredit(t *testing.T) {
	f := newRefundServiceFixture()
	tenantID := uuid.New()
	pat := newServicePatient(t, tenantID)

	f.patientRepo.On("FindByIDForTenant", mock.Anything, tenantID, pat.ID).Return(pat, nil)
	f.paymentRepo.On("SumCreditByPatient", mock.Anything, tenantID, pat.ID).
		Return(decimal.NewFromFloat(180.00), nil)
	f.refundRepo.On("FindByPatient", mock.Anything, tenantID, pat.ID, mock.Anything).
		Return([]billing.Refund{}, nil)
	f.refundRepo.On("GenerateRefundNumber", mock.Anything, tenantID).Return("REF-20260115-00002", nil)
	f.refundRepo.On("Save", mock.Anything, mock.Anything).Return(nil)

	refund, err := f.service.RequestRefund(context.Background(), RequestRefundRequest{
		TenantID:  tenantID,
		PatientID: pat.ID,
		Amount:    decimal.NewFromFloat(180.00),
		Method:    billing.PaymentMethodBankTransfer,
		Reason:    "credit payout",
	})

	require.NoError(t, err)
	assert.Equal(t, billing.RefundSourceCredit, refund.Source)
	assert.Nil(t, refund.PaymentID)
}

func TestRefundService_ApproveThenProcess(t *testing.T) {
	f := newRefundServiceFixture()
	tenantID := uuid.New()
	patientID := uuid.New()
	approver := uuid.New()

	refund, err := billing.NewCreditRefund(
		tenantID, "REF-1", patientID, "Jane Smith",
		decimal.NewFromFloat(90.00), billing.PaymentMethodBankTransfer, "credit payout",
	)
	require.NoError(t, err)

	source := newCreditPayment(t, tenantID, patientID, "PAY-1", 100.00, time.Now())

	f.refundRepo.On("FindByIDForTenant", mock.Anything, tenantID, refund.ID).Return(refund, nil)
	f.refundRepo.On("SaveWithLock", mock.Anything, mock.Anything).Return(nil)
	f.paymentRepo.On("FindWithCredit", mock.Anything, tenantID, patientID).
		Return([]billing.Payment{*source}, nil)
	f.paymentRepo.On("SaveWithLock", mock.Anything, mock.MatchedBy(func(p *billing.Payment) bool {
		return p.ID == source.ID && p.RefundedAmount.Equal(decimal.NewFromFloat(90.00))
	})).Return(nil)
	f.paymentRepo.On("GeneratePaymentNumber", mock.Anything, tenantID).Return("PAY-00009", nil)
	f.paymentRepo.On("Save", mock.Anything, mock.MatchedBy(func(p *billing.Payment) bool {
		return p.Type == billing.PaymentTypeRefund && p.Amount.Equal(decimal.NewFromFloat(90.00))
	})).Return(nil)
	f.ledgerRepo.On("Append", mock.Anything, mock.MatchedBy(func(entries []*billing.LedgerEntry) bool {
		return len(entries) == 1 && entries[0].EntryType == billing.LedgerEntryTypeRefund &&
			entries[0].Amount.Equal(decimal.NewFromFloat(90.00))
	})).Return(nil)
	f.cache.On("Invalidate", mock.Anything, tenantID, patientID).Return(nil)

	approved, err := f.service.ApproveRefund(context.Background(), tenantID, refund.ID, approver)
	require.NoError(t, err)
	assert.Equal(t, billing.RefundStatusApproved, approved.Status)

	processed, err := f.service.ProcessRefund(context.Background(), tenantID, refund.ID, "TXN-8841")
	require.NoError(t, err)
	assert.Equal(t, billing.RefundStatusProcessed, processed.Status)
	assert.Equal(t, "TXN-8841", processed.Reference)
	f.ledgerRepo.AssertExpectations(t)
	f.paymentRepo.AssertExpectations(t)
}

func TestRefundService_ProcessRefund_InsufficientCredit(t *testing.T) {
	f := newRefundServiceFixture()
	tenantID := uuid.New()
	patientID := uuid.New()

	refund, err := billing.NewCreditRefund(
		tenantID, "REF-1", patientID, "Jane Smith",
		decimal.NewFromFloat(90.00), billing.PaymentMethodCash, "credit payout",
	)
	require.NoError(t, err)
	require.NoError(t, refund.Approve(uuid.New()))

	// Only 60 of free credit remains by processing time
	source := newCreditPayment(t, tenantID, patientID, "PAY-1", 60.00, time.Now())

	f.refundRepo.On("FindByIDForTenant", mock.Anything, tenantID, refund.ID).Return(refund, nil)
	f.refundRepo.On("SaveWithLock", mock.Anything, mock.Anything).Return(nil)
	f.paymentRepo.On("FindWithCredit", mock.Anything, tenantID, patientID).
		Return([]billing.Payment{*source}, nil)
	f.paymentRepo.On("SaveWithLock", mock.Anything, mock.Anything).Return(nil)

	_, err = f.service.ProcessRefund(context.Background(), tenantID, refund.ID, "TXN-1")

	require.Error(t, err)
	assert.True(t, shared.IsConflict(err))
	assert.Equal(t, "INSUFFICIENT_CREDIT", shared.ErrorCode(err))
	f.ledgerRepo.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
}

func TestRefundService_ProcessRefund_UnwindsAllocatedPayment(t *testing.T) {
	f := newRefundServiceFixture()
	tenantID := uuid.New()
	patientID := uuid.New()

	// 50 received and fully applied to a 50 invoice
	inv := newServiceInvoice(t, tenantID, patientID, "INV-A", 50.00)
	pay := newCreditPayment(t, tenantID, patientID, "PAY-1", 50.00, time.Now())
	require.NoError(t, inv.ApplyPayment(pay.ID, decimal.NewFromFloat(50.00), ""))
	require.NoError(t, pay.Allocate(inv.ID, "INV-A", decimal.NewFromFloat(50.00), ""))
	require.Equal(t, billing.InvoiceStatusPaid, inv.Status)

	refund, err := billing.NewPaymentRefund(
		tenantID, "REF-1", patientID, "Jane Smith", pay.ID,
		decimal.NewFromFloat(50.00), billing.PaymentMethodCash, "wrong patient billed",
	)
	require.NoError(t, err)
	require.NoError(t, refund.Approve(uuid.New()))

	f.refundRepo.On("FindByIDForTenant", mock.Anything, tenantID, refund.ID).Return(refund, nil)
	f.refundRepo.On("SaveWithLock", mock.Anything, mock.Anything).Return(nil)
	f.paymentRepo.On("FindByIDForTenant", mock.Anything, tenantID, pay.ID).Return(pay, nil)
	f.invoiceRepo.On("FindByIDForTenant", mock.Anything, tenantID, inv.ID).Return(inv, nil)
	f.invoiceRepo.On("SaveWithLock", mock.Anything, inv).Return(nil)
	f.paymentRepo.On("SaveWithLock", mock.Anything, pay).Return(nil)
	f.paymentRepo.On("GeneratePaymentNumber", mock.Anything, tenantID).Return("PAY-00011", nil)
	f.paymentRepo.On("Save", mock.Anything, mock.MatchedBy(func(p *billing.Payment) bool {
		return p.Type == billing.PaymentTypeRefund && p.Amount.Equal(decimal.NewFromFloat(50.00))
	})).Return(nil)
	f.ledgerRepo.On("Append", mock.Anything, mock.Anything).Return(nil)
	f.cache.On("Invalidate", mock.Anything, tenantID, patientID).Return(nil)

	processed, err := f.service.ProcessRefund(context.Background(), tenantID, refund.ID, "TXN-1")

	require.NoError(t, err)
	assert.Equal(t, billing.RefundStatusProcessed, processed.Status)
	assert.True(t, inv.AmountPaid.IsZero())
	assert.True(t, inv.AmountDue.Equal(decimal.NewFromFloat(50.00)))
	assert.Equal(t, billing.InvoiceStatusUnpaid, inv.Status)
	assert.True(t, pay.AllocatedAmount().IsZero())
	// The refunded money is out of the pool: nothing left to allocate
	assert.True(t, pay.RefundedAmount.Equal(decimal.NewFromFloat(50.00)))
	assert.True(t, pay.UnallocatedAmount().IsZero())
	err = pay.Allocate(uuid.New(), "INV-B", decimal.NewFromFloat(50.00), "")
	require.Error(t, err)
	assert.Equal(t, "EXCEEDS_UNALLOCATED", shared.ErrorCode(err))
	f.invoiceRepo.AssertExpectations(t)
}

func TestRefundService_ProcessPendingRejected(t *testing.T) {
	f := newRefundServiceFixture()
	tenantID := uuid.New()

	refund, err := billing.NewCreditRefund(
		tenantID, "REF-1", uuid.New(), "Jane Smith",
		decimal.NewFromFloat(90.00), billing.PaymentMethodCash, "credit payout",
	)
	require.NoError(t, err)

	f.refundRepo.On("FindByIDForTenant", mock.Anything, tenantID, refund.ID).Return(refund, nil)

	_, err = f.service.ProcessRefund(context.Background(), tenantID, refund.ID, "TXN-1")

	require.Error(t, err)
	assert.True(t, shared.IsConflict(err))
	f.ledgerRepo.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
}

func TestRefundService_ProcessRefundBatch_PartialFailure(t *testing.T) {
	f := newRefundServiceFixture()
	tenantID := uuid.New()
	patientID := uuid.New()

	good, err := billing.NewCreditRefund(
		tenantID, "REF-1", patientID, "Jane Smith",
		decimal.NewFromFloat(40.00), billing.PaymentMethodCash, "payout",
	)
	require.NoError(t, err)
	require.NoError(t, good.Approve(uuid.New()))

	stillPending, err := billing.NewCreditRefund(
		tenantID, "REF-2", patientID, "Jane Smith",
		decimal.NewFromFloat(60.00), billing.PaymentMethodCash, "payout",
	)
	require.NoError(t, err)

	source := newCreditPayment(t, tenantID, patientID, "PAY-1", 40.00, time.Now())

	f.refundRepo.On("FindByIDForTenant", mock.Anything, tenantID, good.ID).Return(good, nil)
	f.refundRepo.On("FindByIDForTenant", mock.Anything, tenantID, stillPending.ID).Return(stillPending, nil)
	f.refundRepo.On("SaveWithLock", mock.Anything, mock.Anything).Return(nil)
	f.paymentRepo.On("FindWithCredit", mock.Anything, tenantID, patientID).
		Return([]billing.Payment{*source}, nil)
	f.paymentRepo.On("SaveWithLock", mock.Anything, mock.Anything).Return(nil)
	f.paymentRepo.On("GeneratePaymentNumber", mock.Anything, tenantID).Return("PAY-00010", nil)
	f.paymentRepo.On("Save", mock.Anything, mock.Anything).Return(nil)
	f.ledgerRepo.On("Append", mock.Anything, mock.Anything).Return(nil)
	f.cache.On("Invalidate", mock.Anything, tenantID, patientID).Return(nil)

	result, err := f.service.ProcessRefundBatch(context.Background(), tenantID,
		[]uuid.UUID{good.ID, stillPending.ID}, "TXN-BATCH", false)

	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 1, result.Succeeded)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, 1, result.Failed[0].Index)
	assert.Equal(t, "INVALID_STATE", result.Failed[0].Code)
	assert.Equal(t, []string{"REF-1"}, result.Documents)
}
