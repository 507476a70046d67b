package server

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	v1 "github.com/gosuda/dossier/internal/api/v1"
	"github.com/gosuda/dossier/internal/api/ws"
)

func registerAPIRoutes(api huma.API, deps Deps, pageSize int) {
	v1.RegisterReportRoutes(api, deps.Reports, deps.Recorder)
	v1.RegisterActivityRoutes(api, deps.Docs, pageSize)
}

func registerWSRoutes(r chi.Router, hub *ws.Hub) {
	r.Get("/activity", hub.ServeActivity)
}
