package domain

import (
	"slices"
	"time"
)

type Action string

const (
	ActionLogin        Action = "login"
	ActionLogout       Action = "logout"
	ActionReportView   Action = "report_view"
	ActionReportCreate Action = "report_create"
	ActionReportEdit   Action = "report_edit"
	ActionReportDelete Action = "report_delete"
	ActionReportExport Action = "report_export"
	ActionSearch       Action = "search"
)

// ValidActions is the canonical set of activity actions.
var ValidActions = []Action{ //nolint:gochecknoglobals // canonical enum list
	ActionLogin,
	ActionLogout,
	ActionReportView,
	ActionReportCreate,
	ActionReportEdit,
	ActionReportDelete,
	ActionReportExport,
	ActionSearch,
}

// ValidateAction returns true if the given action is known.
func ValidateAction(a Action) bool {
	return slices.Contains(ValidActions, a)
}

// EventDetails carries action-specific context.
type EventDetails struct {
	ReportID     string `json:"reportId,omitempty"`
	Subject      string `json:"subject,omitempty"`
	Query        string `json:"query,omitempty"`
	ExportMethod string `json:"method,omitempty"`
}

// ActivityEvent is an append-only audit record. It is never updated or deleted.
type ActivityEvent struct {
	ID            string
	ActorID       string
	ActorName     string
	Action        Action
	Details       *EventDetails
	Timestamp     time.Time
	ClientContext string
}

// Actor is the authenticated principal performing an action.
type Actor struct {
	ID   string
	Name string
	Role string
}
