// Package postgres implements domain.DocumentStore on a single JSONB table.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/dossier/internal/domain"
)

//go:embed schema.sql
var schema string

// Notifier fans document change notifications out to live queries.
// redis.ChangeFeed satisfies it.
type Notifier interface {
	NotifyChange(ctx context.Context, collection, id string) error
	// WatchChanges yields batches of changed ids until ctx ends or stop is called.
	WatchChanges(ctx context.Context, collection string) (changes <-chan []string, stop func(), err error)
}

type Options struct {
	MaxConns int32
	// MaxBytes is the per-document size ceiling. 0 disables it.
	MaxBytes int
	// Notifier drives Subscribe. When nil, live queries poll every PollInterval.
	Notifier     Notifier
	PollInterval time.Duration
}

type Store struct {
	pool *pgxpool.Pool
	docs *DocumentStore
}

func New(ctx context.Context, dsn string, opts Options) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: parse config: %w", err)
	}

	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: connect: %w", err)
	}

	err = pool.Ping(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres.New: ping: %w", err)
	}

	return &Store{
		pool: pool,
		docs: NewDocumentStore(pool, opts),
	}, nil
}

// Migrate creates the documents table when missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres.Migrate: %w", err)
	}
	return nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Documents() *DocumentStore { return s.docs }

// translate marks connectivity failures as domain.ErrRemoteUnavailable.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}

	var netErr net.Error
	var connErr *pgconn.ConnectError
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr),
		errors.As(err, &connErr),
		pgconn.Timeout(err):
		return fmt.Errorf("%s: %w: %w", op, domain.ErrRemoteUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
