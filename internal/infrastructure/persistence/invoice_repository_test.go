package persistence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/dentalclinic/backend/internal/domain/billing"
	"github.com/dentalclinic/backend/internal/domain/shared"
)

// newMockDB creates a GORM connection backed by sqlmock
func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return gormDB, mock, mockDB
}

func newMockInvoiceRepository(t *testing.T) (*GormInvoiceRepository, sqlmock.Sqlmock, *sql.DB) {
	gormDB, mock, mockDB := newMockDB(t)
	return NewGormInvoiceRepository(gormDB), mock, mockDB
}

func TestGormInvoiceRepository_FindByIDForTenant(t *testing.T) {
	t.Run("finds existing invoice", func(t *testing.T) {
		repo, mock, mockDB := newMockInvoiceRepository(t)
		defer mockDB.Close()

		invoiceID := uuid.New()
		tenantID := uuid.New()

		rows := sqlmock.NewRows([]string{"id", "tenant_id", "version", "invoice_number", "patient_id", "patient_name", "status"}).
			AddRow(invoiceID, tenantID, 1, "INV-20260301-00001", uuid.New(), "John Doe", "UNPAID")

		mock.ExpectQuery(`SELECT \* FROM "invoices" WHERE id = \$1 AND tenant_id = \$2 ORDER BY .* LIMIT .*`).
			WithArgs(invoiceID, tenantID, 1).
			WillReturnRows(rows)

		invoice, err := repo.FindByIDForTenant(context.Background(), tenantID, invoiceID)

		assert.NoError(t, err)
		require.NotNil(t, invoice)
		assert.Equal(t, invoiceID, invoice.ID)
		assert.Equal(t, "INV-20260301-00001", invoice.InvoiceNumber)
		assert.Equal(t, billing.InvoiceStatusUnpaid, invoice.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns ErrNotFound for missing invoice", func(t *testing.T) {
		repo, mock, mockDB := newMockInvoiceRepository(t)
		defer mockDB.Close()

		invoiceID := uuid.New()
		tenantID := uuid.New()

		mock.ExpectQuery(`SELECT \* FROM "invoices" WHERE id = \$1 AND tenant_id = \$2 ORDER BY .* LIMIT .*`).
			WithArgs(invoiceID, tenantID, 1).
			WillReturnError(gorm.ErrRecordNotFound)

		invoice, err := repo.FindByIDForTenant(context.Background(), tenantID, invoiceID)

		assert.Nil(t, invoice)
		assert.ErrorIs(t, err, shared.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormInvoiceRepository_SaveWithLock(t *testing.T) {
	t.Run("saves uncontended aggregate and bumps version", func(t *testing.T) {
		repo, mock, mockDB := newMockInvoiceRepository(t)
		defer mockDB.Close()

		invoice := &billing.Invoice{
			TenantAggregateRoot: shared.NewTenantAggregateRoot(uuid.New()),
			InvoiceNumber:       "INV-20260301-00003",
		}
		invoice.Version = 1

		mock.ExpectQuery(`SELECT "version" FROM "invoices" WHERE id = \$1`).
			WithArgs(invoice.ID).
			WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(1))
		mock.ExpectExec(`UPDATE "invoices" SET`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.SaveWithLock(context.Background(), invoice)

		assert.NoError(t, err)
		assert.Equal(t, 2, invoice.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects stale version", func(t *testing.T) {
		repo, mock, mockDB := newMockInvoiceRepository(t)
		defer mockDB.Close()

		invoice := &billing.Invoice{
			TenantAggregateRoot: shared.NewTenantAggregateRoot(uuid.New()),
			InvoiceNumber:       "INV-20260301-00002",
		}
		invoice.Version = 2

		mock.ExpectQuery(`SELECT "version" FROM "invoices" WHERE id = \$1`).
			WithArgs(invoice.ID).
			WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(3))

		err := repo.SaveWithLock(context.Background(), invoice)

		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
		assert.Equal(t, 2, invoice.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormInvoiceRepository_SumOutstandingByPatient(t *testing.T) {
	repo, mock, mockDB := newMockInvoiceRepository(t)
	defer mockDB.Close()

	tenantID := uuid.New()
	patientID := uuid.New()

	mock.ExpectQuery(`SELECT COALESCE\(SUM\(amount_due\), 0\) FROM "invoices"`).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow("380.00"))

	sum, err := repo.SumOutstandingByPatient(context.Background(), tenantID, patientID)

	assert.NoError(t, err)
	assert.True(t, sum.Equal(decimalFromString(t, "380.00")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormInvoiceRepository_GenerateInvoiceNumber(t *testing.T) {
	t.Run("continues today's sequence", func(t *testing.T) {
		repo, mock, mockDB := newMockInvoiceRepository(t)
		defer mockDB.Close()

		tenantID := uuid.New()
		date := time.Now().Format("20060102")

		mock.ExpectQuery(`SELECT "invoice_number" FROM "invoices"`).
			WillReturnRows(sqlmock.NewRows([]string{"invoice_number"}).AddRow("INV-" + date + "-00007"))

		number, err := repo.GenerateInvoiceNumber(context.Background(), tenantID)

		assert.NoError(t, err)
		assert.Equal(t, "INV-"+date+"-00008", number)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("starts at one when no documents exist", func(t *testing.T) {
		repo, mock, mockDB := newMockInvoiceRepository(t)
		defer mockDB.Close()

		tenantID := uuid.New()
		date := time.Now().Format("20060102")

		mock.ExpectQuery(`SELECT "invoice_number" FROM "invoices"`).
			WillReturnRows(sqlmock.NewRows([]string{"invoice_number"}))

		number, err := repo.GenerateInvoiceNumber(context.Background(), tenantID)

		assert.NoError(t, err)
		assert.Equal(t, "INV-"+date+"-00001", number)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
