// Package repository implements storage operations for every collection
// in the data model, against a shared pgx connection pool. Every
// repository holds a DB, which is either the pool directly or a
// transaction (see WithTx), following the same pool-is-passed-in-not-owned
// principle the teacher's services layer uses.
package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is satisfied by both *pgxpool.Pool and pgx.Tx, letting every
// repository method run either standalone or inside a caller-managed
// transaction.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgx.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var (
	_ DB = (*pgxpool.Pool)(nil)
	_ DB = (pgx.Tx)(nil)
)

// Repositories bundles every collection's repository behind the shared
// pool, the unit callers construct once at startup.
type Repositories struct {
	Cities     *CityRepository
	Meetings   *MeetingRepository
	Items      *ItemRepository
	Matters    *MatterRepository
	Committees *CommitteeRepository
	Queue      *QueueRepository
	pool       *pgxpool.Pool
}

// New builds a Repositories bundle backed by pool.
func New(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		Cities:     &CityRepository{db: pool},
		Meetings:   &MeetingRepository{db: pool},
		Items:      &ItemRepository{db: pool},
		Matters:    &MatterRepository{db: pool},
		Committees: &CommitteeRepository{db: pool},
		Queue:      &QueueRepository{db: pool},
		pool:       pool,
	}
}

// Pool returns the underlying connection pool, for callers like the
// queue-claim helper that need their own transaction distinct from any
// scope a Repositories bundle might already be running in.
func (r *Repositories) Pool() *pgxpool.Pool {
	return r.pool
}

// WithTx runs fn inside a transaction, passing a Repositories bundle
// whose every member shares that transaction, committing on a nil
// return and rolling back otherwise.
func (r *Repositories) WithTx(ctx context.Context, fn func(ctx context.Context, tx *Repositories) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	scoped := &Repositories{
		Cities:     &CityRepository{db: tx},
		Meetings:   &MeetingRepository{db: tx},
		Items:      &ItemRepository{db: tx},
		Matters:    &MatterRepository{db: tx},
		Committees: &CommitteeRepository{db: tx},
		Queue:      &QueueRepository{db: tx},
	}

	if err := fn(ctx, scoped); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
