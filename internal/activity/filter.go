// Package activity serves the live, filterable audit event feed and records
// new events.
package activity

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/dossier/internal/domain"
)

const DefaultPageSize = 100

// Filter narrows the feed. Zero fields match everything.
type Filter struct {
	Actor  string
	Action domain.Action
	// Since is an inclusive lower bound applied after each snapshot.
	Since time.Time
}

// ParseFilter builds a Filter from request values. since is YYYY-MM-DD and is
// interpreted as midnight UTC.
func ParseFilter(actor, action, since string) (Filter, error) {
	f := Filter{Actor: actor, Action: domain.Action(action)}

	if action != "" && !domain.ValidateAction(f.Action) {
		return Filter{}, &domain.ValidationError{Field: "action", Reason: fmt.Sprintf("unknown action %q", action)}
	}
	if since != "" {
		t, err := time.Parse(domain.DateLayout, since)
		if err != nil {
			return Filter{}, &domain.ValidationError{Field: "since", Reason: fmt.Sprintf("%q is not YYYY-MM-DD", since)}
		}
		f.Since = t
	}
	return f, nil
}

// query composes the store-side part of f. The date bound stays client-side
// so the store never needs an index per filter combination.
func (f Filter) query(pageSize int) domain.Query {
	q := domain.Query{
		Collection: domain.CollectionActivity,
		OrderBy:    "timestamp",
		Descending: true,
		Limit:      pageSize,
	}
	if f.Actor != "" {
		q.Filters = append(q.Filters, domain.Filter{Field: "actorId", Value: f.Actor})
	}
	if f.Action != "" {
		q.Filters = append(q.Filters, domain.Filter{Field: "action", Value: string(f.Action)})
	}
	return q
}

// apply decodes a snapshot and drops events before f.Since.
func (f Filter) apply(docs []domain.Document) []*domain.ActivityEvent {
	events := make([]*domain.ActivityEvent, 0, len(docs))
	for _, d := range docs {
		e, err := domain.DecodeEvent(d.ID, d.Body)
		if err != nil {
			log.Warn().Err(err).Str("event_id", d.ID).Msg("skipping undecodable activity event")
			continue
		}
		if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
			continue
		}
		events = append(events, e)
	}
	return events
}
