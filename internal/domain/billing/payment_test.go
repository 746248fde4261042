package billing

import (
	"testing"
	"time"

	"github.com/dentalclinic/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestPayment(t *testing.T, amount float64) *Payment {
	p, err := NewPayment(
		uuid.New(),
		"PAY-20260115-00001",
		uuid.New(),
		"Jane Smith",
		decimal.NewFromFloat(amount),
		PaymentMethodCard,
		"AUTH-4821",
		time.Now(),
		"",
	)
	require.NoError(t, err)
	return p
}

// ============================================
// PaymentMethod Tests
// ============================================

func TestPaymentMethod_IsValid(t *testing.T) {
	tests := []struct {
		method  PaymentMethod
		isValid bool
	}{
		{PaymentMethodCash, true},
		{PaymentMethodCard, true},
		{PaymentMethodBankTransfer, true},
		{PaymentMethodCheck, true},
		{PaymentMethodInsurance, true},
		{PaymentMethodOther, true},
		{PaymentMethod("BARTER"), false},
		{PaymentMethod(""), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.method), func(t *testing.T) {
			assert.Equal(t, tt.isValid, tt.method.IsValid())
		})
	}
}

// ============================================
// NewPayment Tests
// ============================================

func TestNewPayment(t *testing.T) {
	p := createTestPayment(t, 300.00)

	assert.Equal(t, PaymentTypePayment, p.Type)
	assert.Equal(t, PaymentStatusCompleted, p.Status)
	assert.True(t, p.AllocatedAmount().IsZero())
	assert.True(t, p.UnallocatedAmount().Equal(decimal.NewFromFloat(300.00)))
	assert.Len(t, p.GetDomainEvents(), 1)
	assert.Equal(t, "PaymentRecorded", p.GetDomainEvents()[0].EventType())
}

func TestNewAdvancePayment(t *testing.T) {
	p, err := NewAdvancePayment(
		uuid.New(), "PAY-00002", uuid.New(), "Jane Smith",
		decimal.NewFromFloat(200.00), PaymentMethodCash, "", time.Now(), "on account",
	)
	require.NoError(t, err)

	assert.Equal(t, PaymentTypeCredit, p.Type)
	assert.Equal(t, PaymentStatusCompleted, p.Status)
	assert.True(t, p.UnallocatedAmount().Equal(decimal.NewFromFloat(200.00)))
}

func TestNewRefundPayment(t *testing.T) {
	p, err := NewRefundPayment(
		uuid.New(), "PAY-00003", uuid.New(), "Jane Smith",
		decimal.NewFromFloat(75.00), PaymentMethodBankTransfer, "REF-00001", time.Now(), "",
	)
	require.NoError(t, err)

	assert.Equal(t, PaymentTypeRefund, p.Type)
	// Outbound money never counts as allocatable credit
	assert.True(t, p.UnallocatedAmount().IsZero())

	err = p.Allocate(uuid.New(), "INV-00001", decimal.NewFromFloat(10.00), "")
	require.Error(t, err)
	assert.True(t, shared.IsConflict(err))
}

func TestNewPayment_Validation(t *testing.T) {
	tenantID := uuid.New()
	patientID := uuid.New()

	tests := []struct {
		name   string
		create func() (*Payment, error)
	}{
		{
			name: "zero amount",
			create: func() (*Payment, error) {
				return NewPayment(tenantID, "PAY-1", patientID, "Jane", decimal.Zero, PaymentMethodCash, "", time.Now(), "")
			},
		},
		{
			name: "negative amount",
			create: func() (*Payment, error) {
				return NewPayment(tenantID, "PAY-1", patientID, "Jane", decimal.NewFromFloat(-10), PaymentMethodCash, "", time.Now(), "")
			},
		},
		{
			name: "invalid method",
			create: func() (*Payment, error) {
				return NewPayment(tenantID, "PAY-1", patientID, "Jane", decimal.NewFromFloat(10), PaymentMethod("IOU"), "", time.Now(), "")
			},
		},
		{
			name: "empty number",
			create: func() (*Payment, error) {
				return NewPayment(tenantID, "", patientID, "Jane", decimal.NewFromFloat(10), PaymentMethodCash, "", time.Now(), "")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := tt.create()
			require.Error(t, err)
			assert.Nil(t, p)
			assert.True(t, shared.IsValidation(err))
		})
	}
}

// ============================================
// Allocation Tests
// ============================================

func TestPayment_Allocate(t *testing.T) {
	p := createTestPayment(t, 500.00)
	invoiceID := uuid.New()

	err := p.Allocate(invoiceID, "INV-001", decimal.NewFromFloat(200.00), "")

	require.NoError(t, err)
	assert.True(t, p.AllocatedAmount().Equal(decimal.NewFromFloat(200.00)))
	assert.True(t, p.UnallocatedAmount().Equal(decimal.NewFromFloat(300.00)))
	assert.False(t, p.IsFullyAllocated())
	assert.True(t, p.HasAllocationFor(invoiceID))
}

func TestPayment_Allocate_FullAmount(t *testing.T) {
	p := createTestPayment(t, 500.00)

	err := p.Allocate(uuid.New(), "INV-001", decimal.NewFromFloat(500.00), "")

	require.NoError(t, err)
	assert.True(t, p.IsFullyAllocated())
}

func TestPayment_Allocate_Duplicate(t *testing.T) {
	p := createTestPayment(t, 500.00)
	invoiceID := uuid.New()
	require.NoError(t, p.Allocate(invoiceID, "INV-001", decimal.NewFromFloat(100.00), ""))

	err := p.Allocate(invoiceID, "INV-001", decimal.NewFromFloat(100.00), "")

	require.Error(t, err)
	assert.True(t, shared.IsConflict(err))
}

func TestPayment_Allocate_ExceedsUnallocated(t *testing.T) {
	p := createTestPayment(t, 500.00)
	require.NoError(t, p.Allocate(uuid.New(), "INV-001", decimal.NewFromFloat(400.00), ""))

	err := p.Allocate(uuid.New(), "INV-002", decimal.NewFromFloat(200.00), "")

	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
	assert.True(t, p.AllocatedAmount().Equal(decimal.NewFromFloat(400.00)))
}

func TestPayment_ReleaseAllocation(t *testing.T) {
	p := createTestPayment(t, 500.00)
	invoiceID := uuid.New()
	require.NoError(t, p.Allocate(invoiceID, "INV-001", decimal.NewFromFloat(200.00), ""))

	released, err := p.ReleaseAllocation(invoiceID)

	require.NoError(t, err)
	assert.True(t, released.Equal(decimal.NewFromFloat(200.00)))
	assert.True(t, p.AllocatedAmount().IsZero())
	assert.False(t, p.HasAllocationFor(invoiceID))
}

func TestPayment_ReleaseAllocation_NotFound(t *testing.T) {
	p := createTestPayment(t, 500.00)

	_, err := p.ReleaseAllocation(uuid.New())

	require.Error(t, err)
	assert.True(t, shared.IsNotFound(err))
}

func TestPayment_Deallocate_NewestFirst(t *testing.T) {
	p := createTestPayment(t, 500.00)
	olderInvoice := uuid.New()
	newerInvoice := uuid.New()
	require.NoError(t, p.Allocate(olderInvoice, "INV-001", decimal.NewFromFloat(300.00), ""))
	require.NoError(t, p.Allocate(newerInvoice, "INV-002", decimal.NewFromFloat(150.00), ""))

	// 200 unwinds all of INV-002 and 50 of INV-001
	releases, err := p.Deallocate(decimal.NewFromFloat(200.00))

	require.NoError(t, err)
	require.Len(t, releases, 2)
	assert.Equal(t, newerInvoice, releases[0].InvoiceID)
	assert.True(t, releases[0].Amount.Equal(decimal.NewFromFloat(150.00)))
	assert.Equal(t, olderInvoice, releases[1].InvoiceID)
	assert.True(t, releases[1].Amount.Equal(decimal.NewFromFloat(50.00)))
	assert.False(t, p.HasAllocationFor(newerInvoice))
	assert.True(t, p.AllocatedAmount().Equal(decimal.NewFromFloat(250.00)))
	assert.True(t, p.UnallocatedAmount().Equal(decimal.NewFromFloat(250.00)))
}

func TestPayment_Deallocate_ExceedsAllocated(t *testing.T) {
	p := createTestPayment(t, 500.00)
	require.NoError(t, p.Allocate(uuid.New(), "INV-001", decimal.NewFromFloat(100.00), ""))

	_, err := p.Deallocate(decimal.NewFromFloat(150.00))

	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
	assert.Equal(t, "EXCEEDS_ALLOCATED", shared.ErrorCode(err))
}

// ============================================
// MarkRefunded Tests
// ============================================

func TestPayment_MarkRefunded(t *testing.T) {
	p := createTestPayment(t, 500.00)

	err := p.MarkRefunded(decimal.NewFromFloat(200.00))

	require.NoError(t, err)
	assert.True(t, p.RefundedAmount.Equal(decimal.NewFromFloat(200.00)))
	assert.True(t, p.UnallocatedAmount().Equal(decimal.NewFromFloat(300.00)))
}

func TestPayment_MarkRefunded_ExceedsUnallocated(t *testing.T) {
	p := createTestPayment(t, 500.00)
	require.NoError(t, p.Allocate(uuid.New(), "INV-001", decimal.NewFromFloat(400.00), ""))

	err := p.MarkRefunded(decimal.NewFromFloat(150.00))

	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
	assert.Equal(t, "EXCEEDS_UNALLOCATED", shared.ErrorCode(err))
	assert.True(t, p.RefundedAmount.IsZero())
}

func TestPayment_MarkRefunded_BlocksReallocation(t *testing.T) {
	p := createTestPayment(t, 500.00)
	require.NoError(t, p.MarkRefunded(decimal.NewFromFloat(500.00)))

	err := p.Allocate(uuid.New(), "INV-001", decimal.NewFromFloat(100.00), "")

	require.Error(t, err)
	assert.Equal(t, "EXCEEDS_UNALLOCATED", shared.ErrorCode(err))
	assert.True(t, p.UnallocatedAmount().IsZero())
	assert.True(t, p.IsFullyAllocated())
}

func TestPayment_MarkRefunded_AfterVoid(t *testing.T) {
	p := createTestPayment(t, 500.00)
	require.NoError(t, p.Void("voided"))

	err := p.MarkRefunded(decimal.NewFromFloat(100.00))

	require.Error(t, err)
	assert.True(t, shared.IsConflict(err))
}

// ============================================
// Void Tests
// ============================================

func TestPayment_Void(t *testing.T) {
	p := createTestPayment(t, 500.00)

	err := p.Void("entered twice")

	require.NoError(t, err)
	assert.Equal(t, PaymentStatusVoided, p.Status)
	assert.True(t, p.IsVoided())
	assert.True(t, p.UnallocatedAmount().IsZero())
	assert.NotNil(t, p.VoidedAt)
}

func TestPayment_Void_AlreadyVoided(t *testing.T) {
	p := createTestPayment(t, 500.00)
	require.NoError(t, p.Void("first"))

	err := p.Void("again")

	require.Error(t, err)
	assert.True(t, shared.IsConflict(err))
}

func TestPayment_Void_RequiresReason(t *testing.T) {
	p := createTestPayment(t, 500.00)

	err := p.Void("")

	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
}

func TestPayment_Allocate_AfterVoid(t *testing.T) {
	p := createTestPayment(t, 500.00)
	require.NoError(t, p.Void("voided"))

	err := p.Allocate(uuid.New(), "INV-001", decimal.NewFromFloat(100.00), "")

	require.Error(t, err)
	assert.True(t, shared.IsConflict(err))
}
