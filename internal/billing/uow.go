package billing

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/saraya-erp/saraya-erp/internal/accounting"
	"github.com/saraya-erp/saraya-erp/internal/platform/db"
)

// Tx groups the ledger and invoice stores bound to one transaction.
type Tx interface {
	Ledger() accounting.TxRepository
	Invoices() Store
}

// UnitOfWork runs fn inside one atomic transaction.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Poster is the slice of the posting engine billing flows depend on.
type Poster interface {
	PostWithin(ctx context.Context, tx accounting.TxRepository, in accounting.PostingInput) (accounting.PostingResult, error)
	AfterCommit(ctx context.Context, results ...accounting.PostingResult)
}

type sqlUnitOfWork struct {
	pool db.TxBeginner
}

// NewUnitOfWork returns a pgx backed UnitOfWork.
func NewUnitOfWork(pool db.TxBeginner) UnitOfWork {
	return &sqlUnitOfWork{pool: pool}
}

func (u *sqlUnitOfWork) Do(ctx context.Context, fn func(context.Context, Tx) error) error {
	return db.WithTx(ctx, u.pool, func(tx pgx.Tx) error {
		return fn(ctx, sqlTx{ledger: accounting.NewTxRepository(tx), invoices: NewStore(tx)})
	})
}

type sqlTx struct {
	ledger   accounting.TxRepository
	invoices Store
}

func (t sqlTx) Ledger() accounting.TxRepository { return t.ledger }
func (t sqlTx) Invoices() Store                 { return t.invoices }
