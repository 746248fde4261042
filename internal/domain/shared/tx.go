package shared

import "context"

// TransactionManager runs a unit of work atomically. Every money-mutating
// operation reads current state, validates invariants, and writes all
// resulting rows inside one transaction, or not at all. Repositories pick the
// transaction up from the context supplied to fn.
type TransactionManager interface {
	WithinTransaction(ctx context.Context, fn func(txCtx context.Context) error) error
}
