package v1

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/dossier/internal/activity"
	"github.com/gosuda/dossier/internal/domain"
)

// EventView is the JSON form of an activity event, shared with the live feed.
type EventView struct {
	ID            string               `json:"id"`
	ActorID       string               `json:"actorId"`
	ActorName     string               `json:"actorName"`
	Action        domain.Action        `json:"action"`
	Details       *domain.EventDetails `json:"details,omitempty"`
	Timestamp     time.Time            `json:"timestamp"`
	ClientContext string               `json:"clientContext,omitempty"`
}

func EventViews(events []*domain.ActivityEvent) []EventView {
	out := make([]EventView, 0, len(events))
	for _, e := range events {
		out = append(out, EventView{
			ID:            e.ID,
			ActorID:       e.ActorID,
			ActorName:     e.ActorName,
			Action:        e.Action,
			Details:       e.Details,
			Timestamp:     e.Timestamp,
			ClientContext: e.ClientContext,
		})
	}
	return out
}

type ListActivityInput struct {
	Actor  string `query:"actor" doc:"Actor ID"`
	Action string `query:"action" doc:"Action name"`
	Since  string `query:"since" doc:"YYYY-MM-DD, inclusive"`
}

type ListActivityOutput struct {
	Body []EventView
}

// RegisterActivityRoutes serves one filtered page of the audit log, newest
// first. Live updates are on the websocket feed.
func RegisterActivityRoutes(api huma.API, docs domain.DocumentStore, pageSize int) {
	huma.Register(api, huma.Operation{
		OperationID: "list-activity",
		Method:      http.MethodGet,
		Path:        "/activity",
		Summary:     "List activity events",
		Tags:        []string{"Activity"},
	}, func(ctx context.Context, input *ListActivityInput) (*ListActivityOutput, error) {
		if _, err := requireActor(ctx); err != nil {
			return nil, err
		}

		f, err := activity.ParseFilter(input.Actor, input.Action, input.Since)
		if err != nil {
			return nil, huma.Error400BadRequest(err.Error())
		}

		events, err := activity.Fetch(ctx, docs, f, pageSize)
		if err != nil {
			return nil, storeError("failed to list activity", err)
		}
		return &ListActivityOutput{Body: EventViews(events)}, nil
	})
}
