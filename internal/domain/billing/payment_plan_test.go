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

func monthlySpecs(amounts ...float64) []InstallmentSpec {
	specs := make([]InstallmentSpec, len(amounts))
	base := time.Now().AddDate(0, 1, 0)
	for i, a := range amounts {
		specs[i] = InstallmentSpec{
			Amount:  decimal.NewFromFloat(a),
			DueDate: base.AddDate(0, i, 0),
		}
	}
	return specs
}

func createTestPlan(t *testing.T, amounts ...float64) *PaymentPlan {
	if len(amounts) == 0 {
		amounts = []float64{300.00, 300.00, 400.00}
	}
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(decimal.NewFromFloat(a))
	}
	p, err := NewPaymentPlan(
		uuid.New(),
		"PLAN-20260115-00001",
		uuid.New(),
		"INV-20260115-00001",
		uuid.New(),
		total,
		monthlySpecs(amounts...),
		"",
	)
	require.NoError(t, err)
	return p
}

// ============================================
// NewPaymentPlan Tests
// ============================================

func TestNewPaymentPlan(t *testing.T) {
	p := createTestPlan(t, 300.00, 300.00, 400.00)

	assert.Equal(t, PaymentPlanStatusActive, p.Status)
	assert.Len(t, p.Installments, 3)
	assert.Equal(t, 1, p.Installments[0].Sequence)
	assert.True(t, p.RemainingAmount().Equal(decimal.NewFromFloat(1000.00)))
	assert.Len(t, p.GetDomainEvents(), 1)
	assert.Equal(t, "PaymentPlanCreated", p.GetDomainEvents()[0].EventType())
}

func TestNewPaymentPlan_SumMismatch(t *testing.T) {
	_, err := NewPaymentPlan(
		uuid.New(), "PLAN-1", uuid.New(), "INV-1", uuid.New(),
		decimal.NewFromFloat(1000.00),
		monthlySpecs(300.00, 300.00), // sums to 600, not 1000
		"",
	)

	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
	assert.Equal(t, "INSTALLMENT_SUM_MISMATCH", shared.ErrorCode(err))
}

func TestNewPaymentPlan_SingleInstallment(t *testing.T) {
	_, err := NewPaymentPlan(
		uuid.New(), "PLAN-1", uuid.New(), "INV-1", uuid.New(),
		decimal.NewFromFloat(500.00),
		monthlySpecs(500.00),
		"",
	)

	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
}

func TestNewPaymentPlan_UnorderedDates(t *testing.T) {
	specs := monthlySpecs(300.00, 300.00)
	specs[1].DueDate = specs[0].DueDate.AddDate(0, -2, 0)

	_, err := NewPaymentPlan(
		uuid.New(), "PLAN-1", uuid.New(), "INV-1", uuid.New(),
		decimal.NewFromFloat(600.00), specs, "",
	)

	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
}

// ============================================
// Installment Payment Tests
// ============================================

// payInstallment settles the installment's full remaining amount
func payInstallment(t *testing.T, p *PaymentPlan, idx int) {
	t.Helper()
	ins := p.Installments[idx]
	require.NoError(t, p.RecordInstallmentPayment(ins.ID, uuid.New(), ins.RemainingAmount(), time.Now()))
}

func TestPaymentPlan_RecordInstallmentPayment_InOrder(t *testing.T) {
	p := createTestPlan(t, 300.00, 300.00, 400.00)

	payInstallment(t, p, 0)

	assert.Equal(t, InstallmentStatusPaid, p.Installments[0].Status)
	assert.Equal(t, PaymentPlanStatusActive, p.Status)
	assert.True(t, p.PaidAmount().Equal(decimal.NewFromFloat(300.00)))
	assert.True(t, p.RemainingAmount().Equal(decimal.NewFromFloat(700.00)))
}

func TestPaymentPlan_RecordInstallmentPayment_Partial(t *testing.T) {
	p := createTestPlan(t, 300.00, 300.00, 400.00)

	err := p.RecordInstallmentPayment(p.Installments[0].ID, uuid.New(),
		decimal.NewFromFloat(100.00), time.Now())
	require.NoError(t, err)

	assert.Equal(t, InstallmentStatusPartiallyPaid, p.Installments[0].Status)
	assert.True(t, p.Installments[0].RemainingAmount().Equal(decimal.NewFromFloat(200.00)))
	assert.Nil(t, p.Installments[0].PaidAt)

	// The remainder settles the installment
	err = p.RecordInstallmentPayment(p.Installments[0].ID, uuid.New(),
		decimal.NewFromFloat(200.00), time.Now())
	require.NoError(t, err)

	assert.Equal(t, InstallmentStatusPaid, p.Installments[0].Status)
	assert.NotNil(t, p.Installments[0].PaidAt)
	assert.True(t, p.PaidAmount().Equal(decimal.NewFromFloat(300.00)))
}

func TestPaymentPlan_RecordInstallmentPayment_ExceedsRemaining(t *testing.T) {
	p := createTestPlan(t, 300.00, 300.00, 400.00)

	err := p.RecordInstallmentPayment(p.Installments[0].ID, uuid.New(),
		decimal.NewFromFloat(350.00), time.Now())

	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
	assert.Equal(t, "EXCEEDS_INSTALLMENT", shared.ErrorCode(err))
	assert.Equal(t, InstallmentStatusPending, p.Installments[0].Status)
}

func TestPaymentPlan_RecordInstallmentPayment_OutOfOrder(t *testing.T) {
	p := createTestPlan(t, 300.00, 300.00, 400.00)

	err := p.RecordInstallmentPayment(p.Installments[2].ID, uuid.New(),
		decimal.NewFromFloat(400.00), time.Now())

	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
}

func TestPaymentPlan_CompletesOnLastInstallment(t *testing.T) {
	p := createTestPlan(t, 300.00, 700.00)

	payInstallment(t, p, 0)
	payInstallment(t, p, 1)

	assert.Equal(t, PaymentPlanStatusCompleted, p.Status)
	assert.NotNil(t, p.CompletedAt)
	assert.True(t, p.RemainingAmount().IsZero())
}

// ============================================
// Overdue and Default Tests
// ============================================

func TestPaymentPlan_RefreshOverdue(t *testing.T) {
	p := createTestPlan(t, 300.00, 700.00)
	p.Installments[0].DueDate = time.Now().AddDate(0, 0, -5)

	flagged := p.RefreshOverdue(time.Now())

	assert.Equal(t, 1, flagged)
	assert.Equal(t, InstallmentStatusOverdue, p.Installments[0].Status)
	assert.Equal(t, InstallmentStatusPending, p.Installments[1].Status)
}

func TestPaymentPlan_RefreshOverdue_PartiallyPaid(t *testing.T) {
	p := createTestPlan(t, 300.00, 700.00)
	require.NoError(t, p.RecordInstallmentPayment(p.Installments[0].ID, uuid.New(),
		decimal.NewFromFloat(50.00), time.Now()))
	p.Installments[0].DueDate = time.Now().AddDate(0, 0, -5)

	flagged := p.RefreshOverdue(time.Now())

	assert.Equal(t, 1, flagged)
	assert.Equal(t, InstallmentStatusOverdue, p.Installments[0].Status)
	// The partial amount already applied stays on the installment
	assert.True(t, p.Installments[0].PaidAmount.Equal(decimal.NewFromFloat(50.00)))
}

func TestPaymentPlan_MarkDefaulted(t *testing.T) {
	p := createTestPlan(t, 300.00, 700.00)
	p.Installments[0].DueDate = time.Now().AddDate(0, 0, -60)
	p.RefreshOverdue(time.Now())

	require.NoError(t, p.MarkDefaulted())

	assert.Equal(t, PaymentPlanStatusDefaulted, p.Status)
	assert.Equal(t, InstallmentStatusDefaulted, p.Installments[0].Status)
	assert.Equal(t, InstallmentStatusDefaulted, p.Installments[1].Status)
}

func TestPaymentPlan_MarkDefaulted_NothingOverdue(t *testing.T) {
	p := createTestPlan(t, 300.00, 700.00)

	err := p.MarkDefaulted()

	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
}

func TestPaymentPlan_ResumesFromDefault(t *testing.T) {
	p := createTestPlan(t, 300.00, 700.00)
	p.Installments[0].DueDate = time.Now().AddDate(0, 0, -60)
	p.RefreshOverdue(time.Now())
	require.NoError(t, p.MarkDefaulted())

	payInstallment(t, p, 0)

	assert.Equal(t, PaymentPlanStatusActive, p.Status)
	assert.Nil(t, p.DefaultedAt)
	// The rest of the schedule falls back from defaulted to overdue
	assert.Equal(t, InstallmentStatusOverdue, p.Installments[1].Status)
}

// ============================================
// Cancel Tests
// ============================================

func TestPaymentPlan_Cancel(t *testing.T) {
	p := createTestPlan(t)

	require.NoError(t, p.Cancel("patient switched to lump sum"))

	assert.Equal(t, PaymentPlanStatusCancelled, p.Status)
}

func TestPaymentPlan_Cancel_Completed(t *testing.T) {
	p := createTestPlan(t, 300.00, 700.00)
	payInstallment(t, p, 0)
	payInstallment(t, p, 1)

	err := p.Cancel("too late")

	require.Error(t, err)
	assert.True(t, shared.IsConflict(err))
}
