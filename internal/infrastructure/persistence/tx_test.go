package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestGormTransactionManager_WithinTransaction(t *testing.T) {
	t.Run("commits on success", func(t *testing.T) {
		gormDB, mock, mockDB := newMockDB(t)
		defer mockDB.Close()
		manager := NewGormTransactionManager(gormDB)

		mock.ExpectBegin()
		mock.ExpectCommit()

		var sawTx bool
		err := manager.WithinTransaction(context.Background(), func(txCtx context.Context) error {
			_, sawTx = txCtx.Value(txContextKey{}).(*gorm.DB)
			return nil
		})

		assert.NoError(t, err)
		assert.True(t, sawTx)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on error", func(t *testing.T) {
		gormDB, mock, mockDB := newMockDB(t)
		defer mockDB.Close()
		manager := NewGormTransactionManager(gormDB)

		mock.ExpectBegin()
		mock.ExpectRollback()

		boom := errors.New("allocation failed")
		err := manager.WithinTransaction(context.Background(), func(txCtx context.Context) error {
			return boom
		})

		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nested call reuses the outer transaction", func(t *testing.T) {
		gormDB, mock, mockDB := newMockDB(t)
		defer mockDB.Close()
		manager := NewGormTransactionManager(gormDB)

		mock.ExpectBegin()
		mock.ExpectCommit()

		var calls int
		err := manager.WithinTransaction(context.Background(), func(outerCtx context.Context) error {
			calls++
			return manager.WithinTransaction(outerCtx, func(innerCtx context.Context) error {
				calls++
				return nil
			})
		})

		assert.NoError(t, err)
		assert.Equal(t, 2, calls)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDBFromContext(t *testing.T) {
	t.Run("falls back to base connection", func(t *testing.T) {
		gormDB, _, mockDB := newMockDB(t)
		defer mockDB.Close()

		db := dbFromContext(context.Background(), gormDB)

		assert.NotNil(t, db)
	})
}
