package v1_test

import (
	"context"
	"sync"

	"github.com/gosuda/dossier/internal/auth"
	"github.com/gosuda/dossier/internal/domain"
	"github.com/gosuda/dossier/internal/server/middleware"
)

// ---------------------------------------------------------------------------
// Context helpers inject the actor into context for DoCtx.
// ---------------------------------------------------------------------------

func actorCtx(role string) context.Context {
	return middleware.WithActor(context.Background(), domain.Actor{ID: "u-" + role, Name: "User " + role, Role: role})
}

func analystCtx() context.Context { return actorCtx(auth.RoleAnalyst) }
func viewerCtx() context.Context  { return actorCtx(auth.RoleViewer) }

// ---------------------------------------------------------------------------
// Mock ReportStore
// ---------------------------------------------------------------------------

type mockReportStore struct {
	reportsFunc func() []*domain.Report
	loadAllFunc func(ctx context.Context) ([]*domain.Report, error)
	loadOneFunc func(ctx context.Context, id string) (*domain.Report, error)
	saveFunc    func(ctx context.Context, rep *domain.Report) (*domain.Report, error)
	saveAllFunc func(ctx context.Context, reports []*domain.Report) error
	deleteFunc  func(ctx context.Context, id string) error
	nextIDFunc  func(year int) string
}

func (m *mockReportStore) Reports() []*domain.Report {
	if m.reportsFunc == nil {
		return nil
	}
	return m.reportsFunc()
}

func (m *mockReportStore) LoadAll(ctx context.Context) ([]*domain.Report, error) {
	return m.loadAllFunc(ctx)
}

func (m *mockReportStore) LoadOne(ctx context.Context, id string) (*domain.Report, error) {
	return m.loadOneFunc(ctx, id)
}

func (m *mockReportStore) Save(ctx context.Context, rep *domain.Report) (*domain.Report, error) {
	return m.saveFunc(ctx, rep)
}

func (m *mockReportStore) SaveAll(ctx context.Context, reports []*domain.Report) error {
	return m.saveAllFunc(ctx, reports)
}

func (m *mockReportStore) Delete(ctx context.Context, id string) error {
	return m.deleteFunc(ctx, id)
}

func (m *mockReportStore) NextID(year int) string {
	return m.nextIDFunc(year)
}

// ---------------------------------------------------------------------------
// Recording ActivityRecorder
// ---------------------------------------------------------------------------

type recordedEvent struct {
	actor   domain.Actor
	action  domain.Action
	details *domain.EventDetails
	client  string
}

type mockRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
	err    error
}

func (m *mockRecorder) Record(_ context.Context, actor domain.Actor, action domain.Action, details *domain.EventDetails, clientContext string) (*domain.ActivityEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.events = append(m.events, recordedEvent{actor: actor, action: action, details: details, client: clientContext})
	return &domain.ActivityEvent{ActorID: actor.ID, Action: action, Details: details}, nil
}

func (m *mockRecorder) actions() []domain.Action {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Action, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.action)
	}
	return out
}

func sampleReport(id string) *domain.Report {
	return &domain.Report{
		ID:             id,
		SubjectName:    "Ivan Petrov",
		Nationality:    "RU",
		Date:           "2024-03-01",
		Classification: domain.ClassificationSecret,
		Summary:        "Observed at the border crossing",
	}
}
