package v1

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/dossier/internal/domain"
	"github.com/gosuda/dossier/internal/server/middleware"
)

// storeError maps repository errors onto HTTP problems.
func storeError(msg string, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return huma.Error404NotFound("report not found")
	case errors.Is(err, domain.ErrValidation):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, domain.ErrDocumentTooLarge):
		return huma.NewError(http.StatusRequestEntityTooLarge, "report document exceeds the store limit", err)
	case errors.Is(err, domain.ErrRemoteUnavailable):
		return huma.Error503ServiceUnavailable("remote store unavailable", err)
	default:
		return huma.Error500InternalServerError(msg, err)
	}
}

func requireActor(ctx context.Context) (domain.Actor, error) {
	actor, ok := middleware.ActorFromContext(ctx)
	if !ok {
		return domain.Actor{}, huma.Error401Unauthorized("authentication required")
	}
	return actor, nil
}

func requireWriter(ctx context.Context) (domain.Actor, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return actor, err
	}
	if !middleware.CanWrite(actor.Role) {
		return actor, huma.Error403Forbidden("role " + actor.Role + " cannot modify reports")
	}
	return actor, nil
}

// record appends an audit event. Failures are logged and never fail the request.
func record(ctx context.Context, rec ActivityRecorder, actor domain.Actor, action domain.Action, details *domain.EventDetails, clientContext string) {
	if rec == nil {
		return
	}
	if _, err := rec.Record(ctx, actor, action, details, clientContext); err != nil {
		log.Warn().Err(err).Str("actor", actor.ID).Str("action", string(action)).Msg("activity event not recorded")
	}
}
