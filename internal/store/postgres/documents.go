package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/dossier/internal/domain"
)

const defaultPollInterval = 5 * time.Second

// DocumentStore is a domain.DocumentStore over the documents table.
type DocumentStore struct {
	pool     *pgxpool.Pool
	maxBytes int
	notifier Notifier
	poll     time.Duration
}

func NewDocumentStore(pool *pgxpool.Pool, opts Options) *DocumentStore {
	s := &DocumentStore{
		pool:     pool,
		maxBytes: opts.MaxBytes,
		notifier: opts.Notifier,
		poll:     opts.PollInterval,
	}
	if s.poll <= 0 {
		s.poll = defaultPollInterval
	}
	return s
}

func (s *DocumentStore) Get(ctx context.Context, collection, id string) ([]byte, error) {
	var body []byte
	err := s.pool.QueryRow(ctx,
		`SELECT body FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	).Scan(&body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("postgres.DocumentStore.Get: %s/%s: %w", collection, id, domain.ErrNotFound)
		}
		return nil, translate("postgres.DocumentStore.Get", err)
	}
	return body, nil
}

func (s *DocumentStore) Set(ctx context.Context, collection, id string, body []byte) error {
	if err := s.check(collection, id, body); err != nil {
		return err
	}

	_, err := s.pool.Exec(ctx, upsertSQL, collection, id, body)
	if err != nil {
		return translate("postgres.DocumentStore.Set", err)
	}

	s.publish(ctx, collection, id)
	return nil
}

// SetAll writes every document in one transaction, or none of them.
func (s *DocumentStore) SetAll(ctx context.Context, collection string, docs []domain.Document) error {
	for _, d := range docs {
		if err := s.check(collection, d.ID, d.Body); err != nil {
			return err
		}
	}
	if len(docs) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return translate("postgres.DocumentStore.SetAll: begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, d := range docs {
		batch.Queue(upsertSQL, collection, d.ID, d.Body)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return translate("postgres.DocumentStore.SetAll: batch", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return translate("postgres.DocumentStore.SetAll: commit", err)
	}

	for _, d := range docs {
		s.publish(ctx, collection, d.ID)
	}
	return nil
}

func (s *DocumentStore) Delete(ctx context.Context, collection, id string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	)
	if err != nil {
		return translate("postgres.DocumentStore.Delete", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres.DocumentStore.Delete: %s/%s: %w", collection, id, domain.ErrNotFound)
	}

	s.publish(ctx, collection, id)
	return nil
}

func (s *DocumentStore) Query(ctx context.Context, q domain.Query) ([]domain.Document, error) {
	sql, args, err := compileQuery(q)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, translate("postgres.DocumentStore.Query", err)
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		var d domain.Document
		if err := rows.Scan(&d.ID, &d.Body); err != nil {
			return nil, fmt.Errorf("postgres.DocumentStore.Query: scan: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, translate("postgres.DocumentStore.Query: rows", err)
	}

	return docs, nil
}

// Subscribe delivers the current result set before returning, then a fresh
// one after every change notification on the collection (or every poll
// interval without a notifier). Errors after setup go to onError.
func (s *DocumentStore) Subscribe(ctx context.Context, q domain.Query, onSnapshot func([]domain.Document), onError func(error)) (domain.Unsubscribe, error) {
	ctx, cancel := context.WithCancel(ctx)

	var changes <-chan []string
	closeSub := func() {}
	if s.notifier != nil {
		ch, cleanup, err := s.notifier.WatchChanges(ctx, q.Collection)
		if err != nil {
			cancel()
			return nil, translate("postgres.DocumentStore.Subscribe", err)
		}
		changes, closeSub = ch, cleanup
	}

	initial, err := s.Query(ctx, q)
	if err != nil {
		closeSub()
		cancel()
		return nil, err
	}
	onSnapshot(initial)

	go func() {
		defer closeSub()
		s.watch(ctx, q, changes, onSnapshot, onError)
	}()

	var once sync.Once
	return func() { once.Do(cancel) }, nil
}

func (s *DocumentStore) watch(ctx context.Context, q domain.Query, changes <-chan []string, onSnapshot func([]domain.Document), onError func(error)) {
	var tick <-chan time.Time
	if changes == nil {
		ticker := time.NewTicker(s.poll)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				if ctx.Err() == nil && onError != nil {
					onError(fmt.Errorf("postgres.DocumentStore.Subscribe: notification channel closed: %w", domain.ErrRemoteUnavailable))
				}
				return
			}
		case <-tick:
		}

		docs, err := s.Query(ctx, q)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if onError != nil {
				onError(err)
			}
			continue
		}
		if ctx.Err() != nil {
			return
		}
		onSnapshot(docs)
	}
}

func (s *DocumentStore) check(collection, id string, body []byte) error {
	if s.maxBytes > 0 && len(body) > s.maxBytes {
		return fmt.Errorf("postgres.DocumentStore.Set: %s/%s is %d bytes: %w", collection, id, len(body), domain.ErrDocumentTooLarge)
	}
	if !json.Valid(body) {
		return fmt.Errorf("postgres.DocumentStore.Set: %s/%s: invalid JSON body", collection, id)
	}
	return nil
}

func (s *DocumentStore) publish(ctx context.Context, collection, id string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyChange(ctx, collection, id); err != nil {
		log.Warn().Err(err).Str("collection", collection).Str("id", id).Msg("change notification not published")
	}
}

const upsertSQL = `INSERT INTO documents (collection, id, body, updated_at)
	VALUES ($1, $2, $3, now())
	ON CONFLICT (collection, id) DO UPDATE SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at`
