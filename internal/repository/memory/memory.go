// Package memory provides in-memory implementations of the repository
// interfaces. They back the service tests and the local development mode,
// where spinning up Postgres is not worth the trouble. All stores are
// safe for concurrent use but offer no durability.
package memory

import (
	"context"

	"loom/internal/domain/repositories"
)

// TransactionManager is a pass-through: the in-memory stores have no
// transactions, each operation is individually atomic under its store's
// lock. Service-level sequencing that relies on real transactions is
// exercised by the Postgres integration tests instead.
type TransactionManager struct{}

// NewTransactionManager creates a pass-through transaction manager
func NewTransactionManager() *TransactionManager {
	return &TransactionManager{}
}

// ExecTx runs fn directly
func (tm *TransactionManager) ExecTx(ctx context.Context, fn repositories.TxFn) error {
	return fn(ctx)
}
