package repository

import "context"

// Transactor groups repository calls into one unit of work. Repositories
// pick the transaction up from the context they are handed.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
