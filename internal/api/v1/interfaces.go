package v1

import (
	"context"

	"github.com/gosuda/dossier/internal/domain"
)

// ReportStore abstracts the report repository for handler testing.
// *repository.Repository satisfies this interface.
type ReportStore interface {
	Reports() []*domain.Report
	LoadAll(ctx context.Context) ([]*domain.Report, error)
	LoadOne(ctx context.Context, id string) (*domain.Report, error)
	Save(ctx context.Context, rep *domain.Report) (*domain.Report, error)
	SaveAll(ctx context.Context, reports []*domain.Report) error
	Delete(ctx context.Context, id string) error
	NextID(year int) string
}

// ActivityRecorder appends audit events. *activity.Recorder satisfies this
// interface.
type ActivityRecorder interface {
	Record(ctx context.Context, actor domain.Actor, action domain.Action, details *domain.EventDetails, clientContext string) (*domain.ActivityEvent, error)
}
