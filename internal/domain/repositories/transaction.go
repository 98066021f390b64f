package repositories

import "context"

// TxFn runs within a transaction.
type TxFn func(ctx context.Context) error

// TransactionManager runs functions inside a database transaction. The
// checkpoint append and rewind paths use it to keep the tip-read and the
// subsequent write in one logical step.
type TransactionManager interface {
	ExecTx(ctx context.Context, fn TxFn) error
}
