package ws

import (
	v1 "github.com/gosuda/dossier/internal/api/v1"
)

// Client message types.
const (
	msgFilter = "filter"
	msgToken  = "token"
)

// Server message types.
const (
	msgSnapshot = "snapshot"
	msgError    = "error"
	msgSignedIn = "signed_in"
)

// ClientMessage is sent by the browser. An empty Type means "filter".
type ClientMessage struct {
	Type   string `json:"type,omitempty"`
	Actor  string `json:"actor,omitempty"`
	Action string `json:"action,omitempty"`
	Since  string `json:"since,omitempty"`
	Token  string `json:"token,omitempty"`
}

// ServerMessage carries either a full snapshot of the filtered feed or an
// error description. Events is always present on snapshots, empty or not.
type ServerMessage struct {
	Type   string         `json:"type"`
	Events []v1.EventView `json:"events"`
	Actor  string         `json:"actor,omitempty"`
	Error  string         `json:"error,omitempty"`
}
