package repository

import "context"

type Tx interface{}

var NoTX Tx

// TransactionManager runs fn inside a single storage transaction and passes the
// infra-defined handle (pgx.Tx for Postgres) as tx. Repositories must accept a nil tx
// and fall back to their non-transactional path.
//
// Stage workers use it to make "write result + enqueue next stage + complete item"
// one atomic step.
type TransactionManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
