package repositories

import "context"

// TxFn is a function that runs within a transaction
type TxFn func(ctx context.Context) error

// TransactionManager runs a group of repository calls atomically. Every
// store (postgres, sqlite, memory) provides one; fn must use the ctx it is
// handed so its calls join the transaction.
type TransactionManager interface {
	ExecTx(ctx context.Context, fn TxFn) error
}
