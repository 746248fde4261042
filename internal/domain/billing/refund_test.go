package billing

import (
	"testing"

	"github.com/dentalclinic/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestRefund(t *testing.T) *Refund {
	r, err := NewPaymentRefund(
		uuid.New(),
		"REF-20260115-00001",
		uuid.New(),
		"Jane Smith",
		uuid.New(),
		decimal.NewFromFloat(150.00),
		PaymentMethodBankTransfer,
		"treatment cancelled",
	)
	require.NoError(t, err)
	return r
}

func createApprovedRefund(t *testing.T) *Refund {
	r := createTestRefund(t)
	require.NoError(t, r.Approve(uuid.New()))
	return r
}

// ============================================
// RefundStatus Tests
// ============================================

func TestRefundStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status     RefundStatus
		isTerminal bool
	}{
		{RefundStatusPending, false},
		{RefundStatusApproved, false},
		{RefundStatusProcessed, true},
		{RefundStatusRejected, true},
		{RefundStatusCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.isTerminal, tt.status.IsTerminal())
		})
	}
}

// ============================================
// Constructor Tests
// ============================================

func TestNewPaymentRefund(t *testing.T) {
	r := createTestRefund(t)

	assert.Equal(t, RefundStatusPending, r.Status)
	assert.Equal(t, RefundSourcePayment, r.Source)
	assert.NotNil(t, r.PaymentID)
	assert.Len(t, r.GetDomainEvents(), 1)
	assert.Equal(t, "RefundRequested", r.GetDomainEvents()[0].EventType())
}

func TestNewCreditRefund(t *testing.T) {
	r, err := NewCreditRefund(
		uuid.New(), "REF-1", uuid.New(), "Jane",
		decimal.NewFromFloat(80.00), PaymentMethodCash, "unused credit",
	)

	require.NoError(t, err)
	assert.Equal(t, RefundSourceCredit, r.Source)
	assert.Nil(t, r.PaymentID)
}

func TestNewRefund_Validation(t *testing.T) {
	_, err := NewCreditRefund(uuid.New(), "REF-1", uuid.New(), "Jane",
		decimal.Zero, PaymentMethodCash, "reason")
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))

	_, err = NewCreditRefund(uuid.New(), "REF-1", uuid.New(), "Jane",
		decimal.NewFromFloat(10), PaymentMethodCash, "")
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
}

// ============================================
// Lifecycle Tests
// ============================================

func TestRefund_ApproveProcessFlow(t *testing.T) {
	r := createTestRefund(t)
	approver := uuid.New()

	require.NoError(t, r.Approve(approver))
	assert.Equal(t, RefundStatusApproved, r.Status)
	assert.Equal(t, approver, *r.ApprovedBy)

	require.NoError(t, r.Process("WIRE-9912"))
	assert.Equal(t, RefundStatusProcessed, r.Status)
	assert.True(t, r.IsProcessed())
	assert.Equal(t, "WIRE-9912", r.Reference)
}

func TestRefund_Reject(t *testing.T) {
	r := createTestRefund(t)

	require.NoError(t, r.Reject("no supporting documentation"))

	assert.Equal(t, RefundStatusRejected, r.Status)
	assert.Equal(t, "no supporting documentation", r.RejectReason)
}

func TestRefund_Cancel(t *testing.T) {
	pending := createTestRefund(t)
	require.NoError(t, pending.Cancel("patient withdrew request"))
	assert.Equal(t, RefundStatusCancelled, pending.Status)

	approved := createApprovedRefund(t)
	require.NoError(t, approved.Cancel("patient withdrew request"))
	assert.Equal(t, RefundStatusCancelled, approved.Status)
}

func TestRefund_IllegalTransitions(t *testing.T) {
	t.Run("process pending", func(t *testing.T) {
		r := createTestRefund(t)
		err := r.Process("WIRE-1")
		require.Error(t, err)
		assert.True(t, shared.IsConflict(err))
	})

	t.Run("approve approved", func(t *testing.T) {
		r := createApprovedRefund(t)
		err := r.Approve(uuid.New())
		require.Error(t, err)
		assert.True(t, shared.IsConflict(err))
	})

	t.Run("reject approved", func(t *testing.T) {
		r := createApprovedRefund(t)
		err := r.Reject("too late")
		require.Error(t, err)
		assert.True(t, shared.IsConflict(err))
	})

	t.Run("cancel processed", func(t *testing.T) {
		r := createApprovedRefund(t)
		require.NoError(t, r.Process("WIRE-1"))
		err := r.Cancel("too late")
		require.Error(t, err)
		assert.True(t, shared.IsConflict(err))
	})
}
