package v1

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/dossier/internal/domain"
)

type ListReportsInput struct {
	UserAgent string `header:"User-Agent"`
}

type ListReportsOutput struct {
	Body struct {
		Reports []ReportView `json:"reports"`
		// Stale is set when the remote store could not be read and the
		// cached list was served instead.
		Stale   bool   `json:"stale"`
		Warning string `json:"warning,omitempty"`
	}
}

type NextIDInput struct {
	Year int `query:"year" minimum:"0" maximum:"9999" doc:"Defaults to the current year"`
}

type NextIDOutput struct {
	Body struct {
		ID string `json:"id"`
	}
}

type GetReportInput struct {
	ID        string `path:"id" doc:"Report ID (RPT-<year>-<seq>)"`
	UserAgent string `header:"User-Agent"`
}

type GetReportOutput struct {
	Body ReportView
}

type PutReportInput struct {
	ID        string `path:"id" doc:"Report ID (RPT-<year>-<seq>)"`
	UserAgent string `header:"User-Agent"`
	Body      ReportBody
}

type PutReportOutput struct {
	Body ReportView
}

type DeleteReportInput struct {
	ID        string `path:"id" doc:"Report ID (RPT-<year>-<seq>)"`
	UserAgent string `header:"User-Agent"`
}

type BatchReportItem struct {
	ID string `json:"id" doc:"Report ID (RPT-<year>-<seq>)"`
	ReportBody
}

type SaveBatchInput struct {
	UserAgent string `header:"User-Agent"`
	Body      struct {
		Reports []BatchReportItem `json:"reports" minItems:"1"`
	}
}

type SaveBatchOutput struct {
	Body struct {
		Saved []string `json:"saved"`
	}
}

func RegisterReportRoutes(api huma.API, store ReportStore, rec ActivityRecorder) {
	huma.Register(api, huma.Operation{
		OperationID: "list-reports",
		Method:      http.MethodGet,
		Path:        "/reports",
		Summary:     "List reports, newest first",
		Tags:        []string{"Reports"},
	}, func(ctx context.Context, _ *ListReportsInput) (*ListReportsOutput, error) {
		if _, err := requireActor(ctx); err != nil {
			return nil, err
		}

		reports, err := store.LoadAll(ctx)
		out := &ListReportsOutput{}
		if err != nil {
			if !errors.Is(err, domain.ErrStaleCache) {
				return nil, storeError("failed to list reports", err)
			}
			out.Body.Stale = true
			out.Body.Warning = err.Error()
		}
		out.Body.Reports = toViews(reports)
		return out, nil
	})

	// Registered ahead of /reports/{id} so the literal segment wins.
	huma.Register(api, huma.Operation{
		OperationID: "next-report-id",
		Method:      http.MethodGet,
		Path:        "/reports/next-id",
		Summary:     "Suggest the next free report ID",
		Tags:        []string{"Reports"},
	}, func(ctx context.Context, input *NextIDInput) (*NextIDOutput, error) {
		if _, err := requireActor(ctx); err != nil {
			return nil, err
		}

		year := input.Year
		if year == 0 {
			year = time.Now().UTC().Year()
		}
		out := &NextIDOutput{}
		out.Body.ID = store.NextID(year)
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-report",
		Method:      http.MethodGet,
		Path:        "/reports/{id}",
		Summary:     "Get a report with its attachment payloads",
		Tags:        []string{"Reports"},
	}, func(ctx context.Context, input *GetReportInput) (*GetReportOutput, error) {
		actor, err := requireActor(ctx)
		if err != nil {
			return nil, err
		}

		rep, err := store.LoadOne(ctx, input.ID)
		if err != nil {
			return nil, storeError("failed to get report", err)
		}

		record(ctx, rec, actor, domain.ActionReportView, &domain.EventDetails{ReportID: rep.ID, Subject: rep.SubjectName}, input.UserAgent)
		return &GetReportOutput{Body: toView(rep, true)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "put-report",
		Method:      http.MethodPut,
		Path:        "/reports/{id}",
		Summary:     "Create or replace a report",
		Tags:        []string{"Reports"},
	}, func(ctx context.Context, input *PutReportInput) (*PutReportOutput, error) {
		actor, err := requireWriter(ctx)
		if err != nil {
			return nil, err
		}

		prev, err := store.LoadOne(ctx, input.ID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			prev = nil
		case err != nil:
			return nil, storeError("failed to read stored report", err)
		}

		rep, err := input.Body.toReport(input.ID, prev)
		if err != nil {
			return nil, storeError("invalid report", err)
		}

		saved, err := store.Save(ctx, rep)
		if err != nil {
			return nil, storeError("failed to save report", err)
		}

		action := domain.ActionReportEdit
		if prev == nil {
			action = domain.ActionReportCreate
		}
		record(ctx, rec, actor, action, &domain.EventDetails{ReportID: saved.ID, Subject: saved.SubjectName}, input.UserAgent)

		return &PutReportOutput{Body: toView(saved, false)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-report",
		Method:      http.MethodDelete,
		Path:        "/reports/{id}",
		Summary:     "Delete a report and its remote payloads",
		Tags:        []string{"Reports"},
	}, func(ctx context.Context, input *DeleteReportInput) (*struct{}, error) {
		actor, err := requireWriter(ctx)
		if err != nil {
			return nil, err
		}

		if err := store.Delete(ctx, input.ID); err != nil {
			return nil, storeError("failed to delete report", err)
		}

		record(ctx, rec, actor, domain.ActionReportDelete, &domain.EventDetails{ReportID: input.ID}, input.UserAgent)
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "save-report-batch",
		Method:      http.MethodPost,
		Path:        "/reports/batch",
		Summary:     "Save several reports in one atomic document write",
		Tags:        []string{"Reports"},
	}, func(ctx context.Context, input *SaveBatchInput) (*SaveBatchOutput, error) {
		actor, err := requireWriter(ctx)
		if err != nil {
			return nil, err
		}

		known := make(map[string]bool)
		for _, r := range store.Reports() {
			known[r.ID] = true
		}

		reports := make([]*domain.Report, 0, len(input.Body.Reports))
		for _, item := range input.Body.Reports {
			rep, err := item.toReport(item.ID, nil)
			if err != nil {
				return nil, storeError("invalid report", err)
			}
			reports = append(reports, rep)
		}

		if err := store.SaveAll(ctx, reports); err != nil {
			return nil, storeError("failed to save reports", err)
		}

		out := &SaveBatchOutput{}
		for _, rep := range reports {
			out.Body.Saved = append(out.Body.Saved, rep.ID)
			action := domain.ActionReportEdit
			if !known[rep.ID] {
				action = domain.ActionReportCreate
			}
			record(ctx, rec, actor, action, &domain.EventDetails{ReportID: rep.ID, Subject: rep.SubjectName}, input.UserAgent)
		}
		log.Info().Str("actor", actor.ID).Int("count", len(reports)).Msg("report batch saved")
		return out, nil
	})
}
