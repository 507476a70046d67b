package activity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/dossier/internal/domain"
)

// Recorder appends events to the activity collection with strictly
// increasing timestamps.
type Recorder struct {
	docs domain.DocumentStore
	now  func() time.Time

	mu   sync.Mutex
	last time.Time
}

// NewRecorder returns a Recorder. A nil clock uses time.Now.
func NewRecorder(docs domain.DocumentStore, clock func() time.Time) *Recorder {
	if clock == nil {
		clock = time.Now
	}
	return &Recorder{docs: docs, now: clock}
}

func (r *Recorder) Record(ctx context.Context, actor domain.Actor, action domain.Action, details *domain.EventDetails, clientContext string) (*domain.ActivityEvent, error) {
	if actor.ID == "" {
		return nil, fmt.Errorf("activity.Recorder.Record: %w", domain.ErrUnauthorized)
	}
	if !domain.ValidateAction(action) {
		return nil, fmt.Errorf("activity.Recorder.Record: %w", &domain.ValidationError{Field: "action", Reason: fmt.Sprintf("unknown action %q", action)})
	}

	e := &domain.ActivityEvent{
		ID:            uuid.NewString(),
		ActorID:       actor.ID,
		ActorName:     actor.Name,
		Action:        action,
		Details:       details,
		Timestamp:     r.stamp(),
		ClientContext: clientContext,
	}

	body, err := domain.EncodeEvent(e)
	if err != nil {
		return nil, fmt.Errorf("activity.Recorder.Record: %w", err)
	}
	if err := r.docs.Set(ctx, domain.CollectionActivity, e.ID, body); err != nil {
		return nil, fmt.Errorf("activity.Recorder.Record: %w", err)
	}
	return e, nil
}

// stamp returns the clock at stored precision, bumped past the previous stamp.
func (r *Recorder) stamp() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts := r.now().UTC().Truncate(time.Microsecond)
	if !ts.After(r.last) {
		ts = r.last.Add(time.Microsecond)
	}
	r.last = ts
	return ts
}
