package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/dossier/internal/activity"
	v1 "github.com/gosuda/dossier/internal/api/v1"
	"github.com/gosuda/dossier/internal/auth"
	"github.com/gosuda/dossier/internal/domain"
	"github.com/gosuda/dossier/internal/server/middleware"
)

// Hub serves the live activity feed over WebSocket. Each connection owns
// one auth.Session and one activity.Engine.
type Hub struct {
	docs      domain.DocumentStore
	jwtSecret string
	pageSize  int
	origins   []string
}

// NewHub creates a new WebSocket hub. origins are host patterns accepted in
// the Origin header in addition to the request host.
func NewHub(docs domain.DocumentStore, jwtSecret string, pageSize int, origins []string) *Hub {
	return &Hub{docs: docs, jwtSecret: jwtSecret, pageSize: pageSize, origins: origins}
}

// ServeActivity streams filtered activity snapshots. The client starts with
// an unfiltered feed and narrows it with filter messages. The connection is
// closed when the session token expires unless the client sends a fresh
// token for the same actor first.
func (h *Hub) ServeActivity(w http.ResponseWriter, r *http.Request) {
	token := middleware.BearerToken(r)
	if token == "" {
		token = r.URL.Query().Get("access_token")
	}

	session := auth.NewSession(h.jwtSecret)
	actor, err := session.SignIn(token)
	if err != nil {
		http.Error(w, `{"title":"Unauthorized","status":401,"detail":"invalid or expired token"}`, http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		log.Error().Err(err).Msg("websocket accept")
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &client{conn: conn, ctx: ctx}
	engine := activity.NewEngine(h.docs, h.pageSize, c.snapshot, c.fail)
	defer engine.Close()

	session.OnChange(func(a *domain.Actor) {
		if a != nil || ctx.Err() != nil {
			return
		}
		engine.Close()
		_ = conn.Close(websocket.StatusPolicyViolation, "session ended")
		cancel()
	})
	defer func() {
		cancel()
		session.SignOut()
	}()

	log.Info().Str("actor", actor.ID).Msg("activity feed connected")

	if err := engine.SetFilter(ctx, activity.Filter{}); err != nil {
		log.Error().Err(err).Msg("activity feed subscribe")
		_ = conn.Close(websocket.StatusInternalError, "subscribe failed")
		return
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				log.Debug().Err(err).Str("actor", actor.ID).Msg("websocket read")
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.send(ServerMessage{Type: msgError, Error: "malformed message"})
			continue
		}

		switch msg.Type {
		case "", msgFilter:
			f, err := activity.ParseFilter(msg.Actor, msg.Action, msg.Since)
			if err != nil {
				c.send(ServerMessage{Type: msgError, Error: err.Error()})
				continue
			}
			if err := engine.SetFilter(ctx, f); err != nil {
				log.Warn().Err(err).Str("actor", actor.ID).Msg("activity feed resubscribe")
				c.send(ServerMessage{Type: msgError, Error: "subscribe failed"})
			}

		case msgToken:
			claims, err := auth.ValidateToken(h.jwtSecret, msg.Token)
			if err != nil || claims.Subject != actor.ID {
				c.send(ServerMessage{Type: msgError, Error: "token rejected"})
				continue
			}
			if _, err := session.SignIn(msg.Token); err != nil {
				c.send(ServerMessage{Type: msgError, Error: "token rejected"})
				continue
			}
			c.send(ServerMessage{Type: msgSignedIn, Actor: actor.ID})

		default:
			c.send(ServerMessage{Type: msgError, Error: "unknown message type " + msg.Type})
		}
	}
}

// client writes to one connection. Writes may come from the read loop and
// from subscription callbacks at the same time; websocket.Conn allows that.
type client struct {
	conn *websocket.Conn
	ctx  context.Context //nolint:containedctx // connection lifetime
}

func (c *client) snapshot(events []*domain.ActivityEvent) {
	c.send(ServerMessage{Type: msgSnapshot, Events: v1.EventViews(events)})
}

func (c *client) fail(err error) {
	log.Warn().Err(err).Msg("activity feed subscription error")
	c.send(ServerMessage{Type: msgError, Error: "feed interrupted"})
}

func (c *client) send(msg ServerMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Msg("websocket encode")
		return
	}
	if err := c.conn.Write(c.ctx, websocket.MessageText, payload); err != nil {
		log.Debug().Err(err).Msg("websocket write")
	}
}
