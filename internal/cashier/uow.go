package cashier

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/saraya-erp/saraya-erp/internal/accounting"
	"github.com/saraya-erp/saraya-erp/internal/billing"
	"github.com/saraya-erp/saraya-erp/internal/platform/db"
)

// Tx extends the billing transaction with cashier persistence.
type Tx interface {
	billing.Tx
	Cash() CashStore
}

// UnitOfWork runs fn inside one atomic transaction.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
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
		return fn(ctx, sqlTx{
			ledger:   accounting.NewTxRepository(tx),
			invoices: billing.NewStore(tx),
			cash:     NewStore(tx),
		})
	})
}

type sqlTx struct {
	ledger   accounting.TxRepository
	invoices billing.Store
	cash     CashStore
}

func (t sqlTx) Ledger() accounting.TxRepository { return t.ledger }
func (t sqlTx) Invoices() billing.Store         { return t.invoices }
func (t sqlTx) Cash() CashStore                 { return t.cash }
