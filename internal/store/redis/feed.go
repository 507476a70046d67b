// Package redis carries document change notifications between the process
// that writes a document and the live queries watching its collection.
package redis

import (
	"context"
	"fmt"
	"slices"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "dossier:docs:"

// ChangeFeed publishes the id of every written document on a per-collection
// channel. Watchers receive ids in batches: a burst of writes that arrives
// while the previous batch is still unread is merged into one batch, so a
// slow watcher re-runs its query once per burst rather than once per write.
type ChangeFeed struct {
	client *redis.Client
}

func New(ctx context.Context, addr, password string, db int) (*ChangeFeed, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis.New: ping: %w", err)
	}
	return &ChangeFeed{client: client}, nil
}

func NewWithClient(client *redis.Client) *ChangeFeed {
	return &ChangeFeed{client: client}
}

func (f *ChangeFeed) Close() error {
	if err := f.client.Close(); err != nil {
		return fmt.Errorf("redis.ChangeFeed.Close: %w", err)
	}
	return nil
}

// NotifyChange announces that id in collection was written or deleted.
func (f *ChangeFeed) NotifyChange(ctx context.Context, collection, id string) error {
	if err := f.client.Publish(ctx, CollectionChannel(collection), id).Err(); err != nil {
		return fmt.Errorf("redis.ChangeFeed.NotifyChange: %w", err)
	}
	return nil
}

// WatchChanges returns batches of changed ids for collection and a stop
// function. The channel is closed when ctx ends or stop is called.
func (f *ChangeFeed) WatchChanges(ctx context.Context, collection string) (<-chan []string, func(), error) {
	sub := f.client.Subscribe(ctx, CollectionChannel(collection))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("redis.ChangeFeed.WatchChanges: %s: %w", collection, err)
	}

	ids := make(chan string)
	go func() {
		defer close(ids)
		for msg := range sub.Channel() {
			select {
			case ids <- msg.Payload:
			case <-ctx.Done():
				return
			}
		}
	}()

	out := make(chan []string)
	go coalesce(ctx, ids, out)

	return out, func() { _ = sub.Close() }, nil
}

// coalesce forwards ids from in to out, merging everything that arrives
// while out is not being read. Duplicate ids within a batch are dropped.
// out is closed once in is closed and the last batch delivered, or when
// ctx ends.
func coalesce(ctx context.Context, in <-chan string, out chan<- []string) {
	defer close(out)

	var pending []string
	for {
		var send chan<- []string
		if len(pending) > 0 {
			send = out
		} else if in == nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case id, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			if !slices.Contains(pending, id) {
				pending = append(pending, id)
			}
		case send <- pending:
			pending = nil
		}
	}
}

// CollectionChannel returns the Redis channel carrying changes to a
// document collection.
func CollectionChannel(collection string) string {
	return channelPrefix + collection
}
