// Package persistence provides transaction management shared by all
// repositories. A unit of work stores the open transaction in the context;
// repositories pick it up from there, so a ledger check, a state transition
// and the outbox writes commit together or not at all.
package persistence

import "context"

// UnitOfWork coordinates a transaction across repositories.
type UnitOfWork interface {
	// Begin starts a transaction and returns a context carrying it.
	// If the context already carries a transaction, it is reused and
	// ownership stays with the outer caller.
	Begin(ctx context.Context) (context.Context, error)

	// Commit commits the transaction if this unit owns it.
	Commit(ctx context.Context) error

	// Rollback rolls back the transaction if this unit owns it.
	Rollback(ctx context.Context) error
}

// Transact runs fn inside a unit of work, committing on success and
// rolling back on error.
func Transact(ctx context.Context, uow UnitOfWork, fn func(ctx context.Context) error) error {
	txCtx, err := uow.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(txCtx); err != nil {
		_ = uow.Rollback(txCtx)
		return err
	}
	return uow.Commit(txCtx)
}
