package repository

import (
	"context"
	"errors"
	"fmt"

	"eodmarker/database"
	"eodmarker/service"

	"github.com/jackc/pgx/v5"
	log "github.com/sirupsen/logrus"
)

// unitOfWork implements the UnitOfWork interface
type unitOfWork struct {
	db                     *database.DB
	tx                     pgx.Tx
	ctx                    context.Context
	transactionalPublisher service.TransactionalEventPublisher
	statusRepo             service.StatusStore
}

// NewUnitOfWorkFactory creates a new UnitOfWork factory.
// newPublisher is called once per unit of work so pending events never leak
// between transactions.
func NewUnitOfWorkFactory(db *database.DB, newPublisher func() service.TransactionalEventPublisher) service.UnitOfWorkFactory {
	return &unitOfWorkFactory{
		db:           db,
		newPublisher: newPublisher,
	}
}

type unitOfWorkFactory struct {
	db           *database.DB
	newPublisher func() service.TransactionalEventPublisher
}

func (f *unitOfWorkFactory) Create() service.UnitOfWork {
	uow := &unitOfWork{db: f.db}
	if f.newPublisher != nil {
		uow.transactionalPublisher = f.newPublisher()
	}
	return uow
}

// Begin starts a new transaction
func (u *unitOfWork) Begin(ctx context.Context) error {
	if u.tx != nil {
		return fmt.Errorf("transaction already started")
	}

	tx, err := u.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %w", service.ErrStorage, err)
	}

	u.tx = tx
	u.ctx = ctx
	u.statusRepo = newStatusRepositoryWithTx(tx)

	return nil
}

// Commit commits the transaction
func (u *unitOfWork) Commit() error {
	if u.tx == nil {
		return fmt.Errorf("no transaction to commit")
	}

	err := u.tx.Commit(u.ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to commit transaction: %w", service.ErrStorage, err)
	}

	u.tx = nil

	// Flush pending events after successful commit
	if u.transactionalPublisher != nil {
		if err := u.transactionalPublisher.Flush(u.ctx); err != nil {
			log.WithError(err).Warn("Failed to flush events after commit")
		}
	}

	return nil
}

// Rollback rolls back the transaction
func (u *unitOfWork) Rollback() error {
	if u.tx == nil {
		return nil // Nothing to rollback
	}

	err := u.tx.Rollback(u.ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}

	u.tx = nil

	// Discard pending events on rollback
	if u.transactionalPublisher != nil {
		u.transactionalPublisher.Discard()
	}

	return nil
}

// StatusRepository returns the status repository for this unit of work
func (u *unitOfWork) StatusRepository() service.StatusStore {
	if u.statusRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.statusRepo
}

// EventBus returns the transactional event publisher for this unit of work
func (u *unitOfWork) EventBus() service.EventPublisher {
	if u.transactionalPublisher == nil {
		panic("unit of work has no event publisher")
	}
	return u.transactionalPublisher
}
