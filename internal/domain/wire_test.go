package domain_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/dossier/internal/domain"
)

func placedReport() *domain.Report {
	r := validReport()
	r.Location = &domain.Location{Name: "Paris", Lat: 48.8566, Lng: 2.3522}
	r.Attachments = []*domain.Attachment{
		{Name: "note.txt", MimeType: "text/plain", Size: 2, Locator: domain.InlineLocator([]byte("hi"))},
		{Name: "scan.pdf", MimeType: "application/pdf", Size: 2097152, Locator: domain.OverflowLocator("RPT-2024-0001/1")},
		{Name: "photo.jpg", MimeType: "image/jpeg", Size: 5000, Locator: domain.RemoteLocator(domain.RemoteRef{
			URL:  "https://blobs.example.com/reports/RPT-2024-0001/photo.jpg",
			Path: "reports/RPT-2024-0001/photo.jpg",
		})},
	}
	return r
}

func TestEncodeReport_Golden(t *testing.T) {
	t.Parallel()

	body, err := domain.EncodeReport(placedReport())
	require.NoError(t, err)

	g := goldie.New(t, goldie.WithFixtureDir("testdata"))
	g.Assert(t, "report_document", body)
}

func TestEncodeDecodeReport(t *testing.T) {
	t.Parallel()

	original := placedReport()
	body, err := domain.EncodeReport(original)
	require.NoError(t, err)

	got, err := domain.DecodeReport(body)
	require.NoError(t, err)

	assert.Equal(t, original.ID, got.ID)
	assert.Equal(t, original.SubjectName, got.SubjectName)
	assert.Equal(t, original.Classification, got.Classification)
	assert.Equal(t, original.Location, got.Location)
	require.Len(t, got.Attachments, 3)
	for i := range original.Attachments {
		assert.Equal(t, original.Attachments[i].Locator, got.Attachments[i].Locator, "attachment %d", i)
		assert.Equal(t, original.Attachments[i].Size, got.Attachments[i].Size, "attachment %d", i)
	}
}

func TestEncodeReport_EmptyInlinePayload(t *testing.T) {
	t.Parallel()

	r := validReport()
	r.Attachments = []*domain.Attachment{{Name: "empty.txt", MimeType: "text/plain", Locator: domain.InlineLocator(nil)}}

	body, err := domain.EncodeReport(r)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"inline":""`)

	got, err := domain.DecodeReport(body)
	require.NoError(t, err)
	assert.Equal(t, domain.LocatorInline, got.Attachments[0].Locator.Kind)
	assert.Empty(t, got.Attachments[0].Locator.Inline)
}

func TestEncodeReport_RejectsUnplaced(t *testing.T) {
	t.Parallel()

	t.Run("pending payload", func(t *testing.T) {
		t.Parallel()

		r := validReport()
		r.Attachments = []*domain.Attachment{domain.NewAttachmentBytes("a", "text/plain", []byte("x"))}
		_, err := domain.EncodeReport(r)
		require.Error(t, err)
	})

	t.Run("no locator", func(t *testing.T) {
		t.Parallel()

		r := validReport()
		r.Attachments = []*domain.Attachment{{Name: "a"}}
		_, err := domain.EncodeReport(r)
		require.Error(t, err)
	})
}

func TestEncodeReport_NoLocation(t *testing.T) {
	t.Parallel()

	body, err := domain.EncodeReport(validReport())
	require.NoError(t, err)
	assert.False(t, bytes.Contains(body, []byte(`"lat"`)))
	assert.Contains(t, string(body), `"attachments":[]`)

	got, err := domain.DecodeReport(body)
	require.NoError(t, err)
	assert.Nil(t, got.Location)
}

func TestEncodeDecodeEvent(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 6, 1, 12, 30, 0, 100000000, time.UTC)
	e := &domain.ActivityEvent{
		ID:            "evt-1",
		ActorID:       "alice",
		ActorName:     "Alice",
		Action:        domain.ActionReportView,
		Details:       &domain.EventDetails{ReportID: "RPT-2024-0001"},
		Timestamp:     ts,
		ClientContext: "firefox",
	}

	body, err := domain.EncodeEvent(e)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"timestamp":"2024-06-01T12:30:00.100000Z"`)
	assert.NotContains(t, string(body), "evt-1")

	got, err := domain.DecodeEvent("evt-1", body)
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, e.Action, got.Action)
	assert.Equal(t, e.Details, got.Details)
	assert.True(t, ts.Equal(got.Timestamp))
}
