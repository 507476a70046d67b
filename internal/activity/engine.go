package activity

import (
	"context"
	"fmt"
	"sync"

	"github.com/gosuda/dossier/internal/domain"
)

type State int

const (
	StateIdle State = iota
	StateSubscribed
)

func (s State) String() string {
	if s == StateSubscribed {
		return "subscribed"
	}
	return "idle"
}

// Engine keeps at most one live subscription on the activity collection.
// Every filter change tears down the previous subscription before opening
// the next one, and snapshots from a torn-down subscription are dropped.
//
// onSnapshot receives the full current result set, newest first, each time
// it changes. It may run synchronously inside SetFilter and must not call
// back into the Engine.
type Engine struct {
	docs       domain.DocumentStore
	pageSize   int
	onSnapshot func([]*domain.ActivityEvent)
	onError    func(error)

	mu          sync.Mutex
	state       State
	filter      Filter
	unsubscribe domain.Unsubscribe

	// deliverMu orders deliveries against generation changes.
	deliverMu sync.Mutex
	gen       uint64
}

func NewEngine(docs domain.DocumentStore, pageSize int, onSnapshot func([]*domain.ActivityEvent), onError func(error)) *Engine {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if onError == nil {
		onError = func(error) {}
	}
	return &Engine{
		docs:       docs,
		pageSize:   pageSize,
		onSnapshot: onSnapshot,
		onError:    onError,
	}
}

// SetFilter replaces the live subscription with one for f. On error the
// engine is left idle.
func (e *Engine) SetFilter(ctx context.Context, f Filter) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	gen := e.advance()
	e.teardownLocked()

	unsubscribe, err := e.docs.Subscribe(ctx, f.query(e.pageSize),
		func(docs []domain.Document) { e.deliver(gen, f, docs) },
		func(err error) { e.fail(gen, err) },
	)
	if err != nil {
		return fmt.Errorf("activity.Engine.SetFilter: %w", err)
	}

	e.unsubscribe = unsubscribe
	e.filter = f
	e.state = StateSubscribed
	return nil
}

// Close drops the live subscription. It is safe to call repeatedly.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.advance()
	e.teardownLocked()
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) Filter() Filter {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.filter
}

func (e *Engine) teardownLocked() {
	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}
	e.state = StateIdle
}

func (e *Engine) advance() uint64 {
	e.deliverMu.Lock()
	defer e.deliverMu.Unlock()
	e.gen++
	return e.gen
}

func (e *Engine) deliver(gen uint64, f Filter, docs []domain.Document) {
	events := f.apply(docs)

	e.deliverMu.Lock()
	defer e.deliverMu.Unlock()
	if gen != e.gen {
		return
	}
	e.onSnapshot(events)
}

func (e *Engine) fail(gen uint64, err error) {
	e.deliverMu.Lock()
	defer e.deliverMu.Unlock()
	if gen != e.gen {
		return
	}
	e.onError(fmt.Errorf("activity.Engine: %w", err))
}

// Fetch returns one page of events matching f without subscribing.
func Fetch(ctx context.Context, docs domain.DocumentStore, f Filter, pageSize int) ([]*domain.ActivityEvent, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	result, err := docs.Query(ctx, f.query(pageSize))
	if err != nil {
		return nil, fmt.Errorf("activity.Fetch: %w", err)
	}
	return f.apply(result), nil
}
