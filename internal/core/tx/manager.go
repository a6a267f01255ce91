// Package tx defines the transaction management contract for domain services.
// The PostgreSQL implementation lives in the infrastructure layer.
package tx

import "context"

// Manager runs functions within a store-level transaction.
// If the context already carries a transaction, it is reused.
type Manager interface {
	// RunInTransaction executes fn within a transaction.
	// The transaction commits when fn returns nil and rolls back otherwise.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// ReadOnly executes fn in a read-only transaction.
	ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error
}
