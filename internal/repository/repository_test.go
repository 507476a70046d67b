package repository_test

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/dossier/internal/domain"
	"github.com/gosuda/dossier/internal/repository"
	"github.com/gosuda/dossier/internal/store/memory"
	"github.com/gosuda/dossier/internal/store/sqlite"
)

const (
	ceiling = 1 << 20   // 1 MiB document ceiling
	budget  = 800 << 10 // 800 KiB inline budget
)

type countingBlobs struct {
	*memory.BlobStore
	puts    atomic.Int32
	deletes atomic.Int32
}

func (c *countingBlobs) Put(ctx context.Context, path string, data []byte, mime string) (domain.RemoteRef, error) {
	c.puts.Add(1)
	return c.BlobStore.Put(ctx, path, data, mime)
}

func (c *countingBlobs) Delete(ctx context.Context, path string) error {
	c.deletes.Add(1)
	return c.BlobStore.Delete(ctx, path)
}

// stuckDocs never answers Query while stuck is set, ignoring ctx.
type stuckDocs struct {
	domain.DocumentStore
	stuck   atomic.Bool
	release chan struct{}
}

func (s *stuckDocs) Query(ctx context.Context, q domain.Query) ([]domain.Document, error) {
	if s.stuck.Load() {
		<-s.release
	}
	return s.DocumentStore.Query(ctx, q)
}

// flakyDocs fails the next n Set calls.
type flakyDocs struct {
	domain.DocumentStore
	failSets atomic.Int32
}

func (f *flakyDocs) Set(ctx context.Context, collection, id string, body []byte) error {
	if f.failSets.Add(-1) >= 0 {
		return domain.ErrRemoteUnavailable
	}
	return f.DocumentStore.Set(ctx, collection, id, body)
}

func newReport(id string, attachments ...*domain.Attachment) *domain.Report {
	return &domain.Report{
		ID:             id,
		PassportNumber: "X1234567",
		SubjectName:    "Jane Roe",
		Nationality:    "NL",
		Date:           "2024-06-03",
		Classification: domain.ClassificationSecret,
		Summary:        "sighting",
		Content:        "# Notes\nmet contact",
		Location:       &domain.Location{Name: "Rotterdam", Lat: 51.92, Lng: 4.47},
		Attachments:    attachments,
	}
}

func newRepo(t *testing.T, opts repository.Options) *repository.Repository {
	t.Helper()

	if opts.Docs == nil {
		opts.Docs = memory.NewDocumentStore(ceiling)
	}
	if opts.Overflow == nil {
		opts.Overflow = memory.NewOverflowStore()
	}
	if opts.Budget == 0 {
		opts.Budget = budget
	}
	repo, err := repository.New(opts)
	require.NoError(t, err)
	return repo
}

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts repository.Options
	}{
		{name: "missing docs", opts: repository.Options{Overflow: memory.NewOverflowStore(), Budget: 1}},
		{name: "missing overflow", opts: repository.Options{Docs: memory.NewDocumentStore(0), Budget: 1}},
		{name: "zero budget", opts: repository.Options{Docs: memory.NewDocumentStore(0), Overflow: memory.NewOverflowStore()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := repository.New(tt.opts)
			assert.Error(t, err)
		})
	}
}

func TestSaveLoadOneRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newRepo(t, repository.Options{})

	small := []byte("tiny note")
	large := bytes.Repeat([]byte{0xAB}, budget+1)
	rep := newReport("RPT-2024-0001",
		domain.NewAttachmentBytes("note.txt", "text/plain", small),
		domain.NewAttachmentBytes("scan.tiff", "image/tiff", large),
		domain.NewAttachmentBytes("empty.bin", "application/octet-stream", nil),
	)

	_, err := repo.Save(ctx, rep)
	require.NoError(t, err)

	got, err := repo.LoadOne(ctx, "RPT-2024-0001")
	require.NoError(t, err)

	assert.Equal(t, rep.ID, got.ID)
	assert.Equal(t, rep.SubjectName, got.SubjectName)
	assert.Equal(t, rep.PassportNumber, got.PassportNumber)
	assert.Equal(t, rep.Nationality, got.Nationality)
	assert.Equal(t, rep.Date, got.Date)
	assert.Equal(t, rep.Classification, got.Classification)
	assert.Equal(t, rep.Summary, got.Summary)
	assert.Equal(t, rep.Content, got.Content)
	assert.Equal(t, rep.Location, got.Location)

	require.Len(t, got.Attachments, 3)
	wantKinds := []domain.LocatorKind{domain.LocatorInline, domain.LocatorOverflow, domain.LocatorInline}
	wantData := [][]byte{small, large, {}}
	for i, a := range got.Attachments {
		assert.Equal(t, rep.Attachments[i].Name, a.Name)
		assert.Equal(t, rep.Attachments[i].MimeType, a.MimeType)
		assert.Equal(t, rep.Attachments[i].Size, a.Size)
		assert.Equal(t, wantKinds[i], a.Locator.Kind, "attachment %d", i)
		assert.True(t, a.Resolved, "attachment %d", i)
		assert.True(t, bytes.Equal(wantData[i], a.Payload), "attachment %d payload", i)
	}
}

func TestSaveUnknownSizeGoesToOverflow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newRepo(t, repository.Options{})

	a := domain.NewAttachment("stream.log", "text/plain", strings.NewReader("abc"), domain.UnknownSize)
	rep := newReport("RPT-2024-0002", a)

	_, err := repo.Save(ctx, rep)
	require.NoError(t, err)
	assert.Equal(t, domain.LocatorOverflow, a.Locator.Kind)
	assert.Equal(t, int64(3), a.Size)
}

func TestSaveUnderstatedSizeIsNotInlined(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newRepo(t, repository.Options{})

	data := bytes.Repeat([]byte("x"), budget*2)
	a := domain.NewAttachment("liar.bin", "application/octet-stream", bytes.NewReader(data), 10)

	_, err := repo.Save(ctx, newReport("RPT-2024-0003", a))
	require.NoError(t, err)
	assert.Equal(t, domain.LocatorOverflow, a.Locator.Kind)
}

func TestSaveIdempotentWithRemoteBlobs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	blobs := &countingBlobs{BlobStore: memory.NewBlobStore("https://blobs.test")}
	docs := memory.NewDocumentStore(ceiling)
	repo := newRepo(t, repository.Options{Docs: docs, Blobs: blobs})

	rep := newReport("RPT-2024-0004",
		domain.NewAttachmentBytes("a.pdf", "application/pdf", []byte("%PDF-a")),
		domain.NewAttachmentBytes("b.png", "image/png", []byte("png-b")),
	)

	_, err := repo.Save(ctx, rep)
	require.NoError(t, err)
	first, err := docs.Get(ctx, domain.CollectionReports, rep.ID)
	require.NoError(t, err)

	_, err = repo.Save(ctx, rep)
	require.NoError(t, err)
	second, err := docs.Get(ctx, domain.CollectionReports, rep.ID)
	require.NoError(t, err)

	assert.Equal(t, int32(2), blobs.puts.Load(), "one put per attachment across both saves")
	assert.Equal(t, int32(0), blobs.deletes.Load())
	assert.JSONEq(t, string(first), string(second))
	assert.Equal(t, 2, blobs.Len())

	for _, a := range rep.Attachments {
		assert.Equal(t, domain.LocatorRemote, a.Locator.Kind)
		assert.True(t, strings.HasPrefix(a.Locator.Remote.Path, "reports/RPT-2024-0004/"), a.Locator.Remote.Path)
		assert.Equal(t, "https://blobs.test/"+a.Locator.Remote.Path, a.Locator.Remote.URL)
	}
}

func TestSaveRetryAfterDocumentFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	overflow := memory.NewOverflowStore()
	docs := &flakyDocs{DocumentStore: memory.NewDocumentStore(ceiling)}
	docs.failSets.Store(1)
	repo := newRepo(t, repository.Options{Docs: docs, Overflow: overflow})

	rep := newReport("RPT-2024-0005", domain.NewAttachmentBytes("big.bin", "application/octet-stream", bytes.Repeat([]byte{1}, budget+10)))

	_, err := repo.Save(ctx, rep)
	require.ErrorIs(t, err, domain.ErrRemoteUnavailable)

	// The tier write stays behind and the attachment is already placed.
	keys, err := overflow.Keys(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"RPT-2024-0005/0"}, keys)
	assert.Empty(t, repo.Reports())

	_, err = repo.Save(ctx, rep)
	require.NoError(t, err)

	keys, err = overflow.Keys(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"RPT-2024-0005/0"}, keys)
	require.Len(t, repo.Reports(), 1)
}

func TestSaveDocumentTooLarge(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newRepo(t, repository.Options{})

	rep := newReport("RPT-2024-0006")
	rep.Content = strings.Repeat("a", ceiling+1)

	_, err := repo.Save(ctx, rep)
	require.ErrorIs(t, err, domain.ErrDocumentTooLarge)
	assert.Empty(t, repo.Reports())
}

func TestSaveValidation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	overflow := memory.NewOverflowStore()
	repo := newRepo(t, repository.Options{Overflow: overflow})

	rep := newReport("bad-id", domain.NewAttachmentBytes("big.bin", "", bytes.Repeat([]byte{1}, budget+1)))
	_, err := repo.Save(ctx, rep)
	require.ErrorIs(t, err, domain.ErrValidation)

	keys, err := overflow.Keys(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, keys, "no tier write before validation")

	// A list-view attachment carries neither payload nor locator.
	meta := newReport("RPT-2024-0007", &domain.Attachment{Name: "ghost.txt", Size: 3})
	_, err = repo.Save(ctx, meta)
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestSaveReleasesStalePayloads(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	overflow := memory.NewOverflowStore()
	repo := newRepo(t, repository.Options{Overflow: overflow})

	big := func(b byte) []byte { return bytes.Repeat([]byte{b}, budget+1) }
	rep := newReport("RPT-2024-0008",
		domain.NewAttachmentBytes("one.bin", "", big(1)),
		domain.NewAttachmentBytes("two.bin", "", big(2)),
	)
	_, err := repo.Save(ctx, rep)
	require.NoError(t, err)

	// Drop the first attachment and add a new one at index 1, which is
	// still held by two.bin.
	rep.Attachments = []*domain.Attachment{rep.Attachments[1], domain.NewAttachmentBytes("three.bin", "", big(3))}
	_, err = repo.Save(ctx, rep)
	require.NoError(t, err)

	assert.Equal(t, "RPT-2024-0008/1", rep.Attachments[0].Locator.OverflowKey)
	assert.Equal(t, "RPT-2024-0008/2", rep.Attachments[1].Locator.OverflowKey)

	keys, err := overflow.Keys(ctx, "RPT-2024-0008/")
	require.NoError(t, err)
	assert.Equal(t, []string{"RPT-2024-0008/1", "RPT-2024-0008/2"}, keys)

	got, err := repo.LoadOne(ctx, rep.ID)
	require.NoError(t, err)
	require.Len(t, got.Attachments, 2)
	assert.Equal(t, big(2), got.Attachments[0].Payload)
	assert.Equal(t, big(3), got.Attachments[1].Payload)
}

func TestOverflowAcrossRestartAndDevices(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	docs := memory.NewDocumentStore(ceiling)
	payload := bytes.Repeat([]byte{0x5A}, 2<<20)

	deviceA, err := sqlite.Open(filepath.Join(dir, "device-a.db"))
	require.NoError(t, err)

	repo := newRepo(t, repository.Options{Docs: docs, Overflow: deviceA})
	rep := newReport("RPT-2024-0001", domain.NewAttachmentBytes("intercept.wav", "audio/wav", payload))
	_, err = repo.Save(ctx, rep)
	require.NoError(t, err)
	assert.Equal(t, domain.LocatorOverflow, rep.Attachments[0].Locator.Kind)
	require.NoError(t, deviceA.Close())

	t.Run("same device after restart", func(t *testing.T) {
		reopened, err := sqlite.Open(filepath.Join(dir, "device-a.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = reopened.Close() })

		restarted := newRepo(t, repository.Options{Docs: docs, Overflow: reopened})
		got, err := restarted.LoadOne(ctx, "RPT-2024-0001")
		require.NoError(t, err)
		require.Len(t, got.Attachments, 1)
		assert.True(t, got.Attachments[0].Resolved)
		assert.Equal(t, int64(len(payload)), got.Attachments[0].Size)
		assert.True(t, bytes.Equal(payload, got.Attachments[0].Payload))
	})

	t.Run("different device", func(t *testing.T) {
		deviceB, err := sqlite.Open(filepath.Join(dir, "device-b.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = deviceB.Close() })

		other := newRepo(t, repository.Options{Docs: docs, Overflow: deviceB})
		got, err := other.LoadOne(ctx, "RPT-2024-0001")
		require.NoError(t, err)
		require.Len(t, got.Attachments, 1)

		a := got.Attachments[0]
		assert.False(t, a.Resolved)
		assert.Nil(t, a.Payload)
		assert.ErrorIs(t, a.ResolveErr, domain.ErrBlobNotFound)
		assert.Equal(t, "intercept.wav", a.Name)
		assert.Equal(t, int64(len(payload)), a.Size)
	})
}

func TestLoadOneNotFound(t *testing.T) {
	t.Parallel()

	repo := newRepo(t, repository.Options{})
	_, err := repo.LoadOne(context.Background(), "RPT-2024-0404")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLoadOneMissingRemoteBlob(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	blobs := memory.NewBlobStore("mem://")
	repo := newRepo(t, repository.Options{Blobs: blobs})

	rep := newReport("RPT-2024-0010",
		domain.NewAttachmentBytes("kept.txt", "text/plain", []byte("kept")),
		domain.NewAttachmentBytes("lost.txt", "text/plain", []byte("lost")),
	)
	_, err := repo.Save(ctx, rep)
	require.NoError(t, err)
	require.NoError(t, blobs.Delete(ctx, rep.Attachments[1].Locator.Remote.Path))

	got, err := repo.LoadOne(ctx, rep.ID)
	require.NoError(t, err)
	assert.True(t, got.Attachments[0].Resolved)
	assert.Equal(t, []byte("kept"), got.Attachments[0].Payload)
	assert.False(t, got.Attachments[1].Resolved)
	assert.ErrorIs(t, got.Attachments[1].ResolveErr, domain.ErrBlobNotFound)
}

func TestLoadOneRemoteReadThroughCache(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	blobs := memory.NewBlobStore("mem://")
	overflow := memory.NewOverflowStore()
	repo := newRepo(t, repository.Options{Blobs: blobs, Overflow: overflow, CacheRemote: true})

	rep := newReport("RPT-2024-0011", domain.NewAttachmentBytes("map.png", "image/png", []byte("png")))
	_, err := repo.Save(ctx, rep)
	require.NoError(t, err)
	path := rep.Attachments[0].Locator.Remote.Path

	_, err = repo.LoadOne(ctx, rep.ID)
	require.NoError(t, err)

	cached, ok, err := overflow.Get(ctx, "blob:"+path)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("png"), cached)

	// Served from the local copy once the remote one is gone.
	require.NoError(t, blobs.Delete(ctx, path))
	got, err := repo.LoadOne(ctx, rep.ID)
	require.NoError(t, err)
	assert.True(t, got.Attachments[0].Resolved)
	assert.Equal(t, []byte("png"), got.Attachments[0].Payload)

	require.NoError(t, repo.Delete(ctx, rep.ID))
	_, ok, err = overflow.Get(ctx, "blob:"+path)
	require.NoError(t, err)
	assert.False(t, ok, "cache entry released with the report")
}

func TestLoadAll(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newRepo(t, repository.Options{})

	older := newReport("RPT-2024-0001", domain.NewAttachmentBytes("a.txt", "text/plain", []byte("aaa")))
	older.Date = "2024-01-15"
	newer := newReport("RPT-2024-0002")
	newer.Date = "2024-07-01"
	require.NoError(t, repo.SaveAll(ctx, []*domain.Report{older, newer}))

	list, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "RPT-2024-0002", list[0].ID)
	assert.Equal(t, "RPT-2024-0001", list[1].ID)

	require.Len(t, list[1].Attachments, 1)
	a := list[1].Attachments[0]
	assert.Equal(t, "a.txt", a.Name)
	assert.Equal(t, "text/plain", a.MimeType)
	assert.Equal(t, int64(3), a.Size)
	assert.True(t, a.Locator.IsZero(), "list view carries no locator")
	assert.Nil(t, a.Payload)
}

func TestLoadAllTimeoutServesCache(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	docs := &stuckDocs{DocumentStore: memory.NewDocumentStore(ceiling), release: make(chan struct{})}
	t.Cleanup(func() { close(docs.release) })
	repo := newRepo(t, repository.Options{Docs: docs, LoadTimeout: 50 * time.Millisecond})

	_, err := repo.Save(ctx, newReport("RPT-2024-0001"))
	require.NoError(t, err)
	first, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, first, 1)

	docs.stuck.Store(true)

	start := time.Now()
	list, err := repo.LoadAll(ctx)
	assert.Less(t, time.Since(start), 2*time.Second)
	require.ErrorIs(t, err, domain.ErrStaleCache)
	assert.ErrorIs(t, err, domain.ErrRemoteUnavailable)
	require.Len(t, list, 1)
	assert.Equal(t, "RPT-2024-0001", list[0].ID)
}

func TestLoadAllErrorWithoutCache(t *testing.T) {
	t.Parallel()

	docs := &stuckDocs{DocumentStore: memory.NewDocumentStore(ceiling), release: make(chan struct{})}
	t.Cleanup(func() { close(docs.release) })
	docs.stuck.Store(true)
	repo := newRepo(t, repository.Options{Docs: docs, LoadTimeout: 20 * time.Millisecond})

	list, err := repo.LoadAll(context.Background())
	require.ErrorIs(t, err, domain.ErrStaleCache)
	assert.Empty(t, list)
}

func TestDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	blobs := &countingBlobs{BlobStore: memory.NewBlobStore("mem://")}
	docs := memory.NewDocumentStore(ceiling)
	repo := newRepo(t, repository.Options{Docs: docs, Blobs: blobs})

	rep := newReport("RPT-2024-0012",
		domain.NewAttachmentBytes("1.jpg", "image/jpeg", []byte("1")),
		domain.NewAttachmentBytes("2.jpg", "image/jpeg", []byte("2")),
	)
	_, err := repo.Save(ctx, rep)
	require.NoError(t, err)
	require.Equal(t, 2, blobs.Len())

	require.NoError(t, repo.Delete(ctx, rep.ID))
	assert.Equal(t, 0, blobs.Len())
	assert.Equal(t, int32(2), blobs.deletes.Load())
	_, err = docs.Get(ctx, domain.CollectionReports, rep.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, repo.Reports())

	// Second delete is a no-op.
	require.NoError(t, repo.Delete(ctx, rep.ID))
	assert.Equal(t, int32(2), blobs.deletes.Load())
}

type failingBlobDeletes struct {
	*memory.BlobStore
}

func (f failingBlobDeletes) Delete(context.Context, string) error {
	return errors.New("bucket offline")
}

func TestDeleteKeepsDocumentWhenBlobDeleteFails(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	docs := memory.NewDocumentStore(ceiling)
	repo := newRepo(t, repository.Options{Docs: docs, Blobs: failingBlobDeletes{memory.NewBlobStore("mem://")}})

	rep := newReport("RPT-2024-0013", domain.NewAttachmentBytes("x.bin", "", []byte("x")))
	_, err := repo.Save(ctx, rep)
	require.NoError(t, err)

	require.Error(t, repo.Delete(ctx, rep.ID))
	_, err = docs.Get(ctx, domain.CollectionReports, rep.ID)
	assert.NoError(t, err)
}

func TestDeleteOverflow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	overflow := memory.NewOverflowStore()
	repo := newRepo(t, repository.Options{Overflow: overflow})

	rep := newReport("RPT-2024-0014", domain.NewAttachmentBytes("big.bin", "", bytes.Repeat([]byte{9}, budget+1)))
	_, err := repo.Save(ctx, rep)
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, rep.ID))
	keys, err := overflow.Keys(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestSaveAll(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("commits every document", func(t *testing.T) {
		t.Parallel()

		docs := memory.NewDocumentStore(ceiling)
		repo := newRepo(t, repository.Options{Docs: docs})

		reports := []*domain.Report{newReport("RPT-2024-0001"), newReport("RPT-2024-0002")}
		require.NoError(t, repo.SaveAll(ctx, reports))

		all, err := docs.Query(ctx, domain.Query{Collection: domain.CollectionReports})
		require.NoError(t, err)
		assert.Len(t, all, 2)
		assert.Len(t, repo.Reports(), 2)
	})

	t.Run("oversized member commits nothing", func(t *testing.T) {
		t.Parallel()

		docs := memory.NewDocumentStore(ceiling)
		repo := newRepo(t, repository.Options{Docs: docs})

		huge := newReport("RPT-2024-0002")
		huge.Summary = strings.Repeat("s", ceiling)
		err := repo.SaveAll(ctx, []*domain.Report{newReport("RPT-2024-0001"), huge})
		require.ErrorIs(t, err, domain.ErrDocumentTooLarge)

		all, err := docs.Query(ctx, domain.Query{Collection: domain.CollectionReports})
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("duplicate ids", func(t *testing.T) {
		t.Parallel()

		repo := newRepo(t, repository.Options{})
		err := repo.SaveAll(ctx, []*domain.Report{newReport("RPT-2024-0001"), newReport("RPT-2024-0001")})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestNextID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newRepo(t, repository.Options{})

	assert.Equal(t, "RPT-2024-0001", repo.NextID(2024))

	require.NoError(t, repo.SaveAll(ctx, []*domain.Report{
		newReport("RPT-2024-0001"),
		newReport("RPT-2024-0007"),
		newReport("RPT-2023-0042"),
	}))

	assert.Equal(t, "RPT-2024-0008", repo.NextID(2024))
	assert.Equal(t, "RPT-2023-0043", repo.NextID(2023))
	assert.Equal(t, "RPT-2025-0001", repo.NextID(2025))
}

func TestSweep(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	overflow := memory.NewOverflowStore()
	repo := newRepo(t, repository.Options{Overflow: overflow})

	rep := newReport("RPT-2024-0001", domain.NewAttachmentBytes("big.bin", "", bytes.Repeat([]byte{1}, budget+1)))
	_, err := repo.Save(ctx, rep)
	require.NoError(t, err)

	require.NoError(t, overflow.Put(ctx, "RPT-2024-0002/0", []byte("orphan")))
	require.NoError(t, overflow.Put(ctx, "blob:reports/gone/x", []byte("orphan")))
	require.NoError(t, overflow.Put(ctx, "settings", []byte("unrelated")))

	orphans, err := repo.Sweep(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"RPT-2024-0002/0", "blob:reports/gone/x"}, orphans)

	keys, err := overflow.Keys(ctx, "")
	require.NoError(t, err)
	assert.Len(t, keys, 4, "dry run deletes nothing")

	_, err = repo.Sweep(ctx, true)
	require.NoError(t, err)
	keys, err = overflow.Keys(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"RPT-2024-0001/0", "settings"}, keys)
}

func TestConcurrentSavesSameID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	blobs := &countingBlobs{BlobStore: memory.NewBlobStore("mem://")}
	repo := newRepo(t, repository.Options{Blobs: blobs})

	rep := newReport("RPT-2024-0020", domain.NewAttachmentBytes("a.txt", "text/plain", []byte("a")))

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Save(ctx, rep)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), blobs.puts.Load())
	assert.Len(t, repo.Reports(), 1)
}

// gatedDocs pauses the next armed Get or Query after the inner store has
// answered, until release is closed.
type gatedDocs struct {
	domain.DocumentStore
	armGet   atomic.Bool
	armQuery atomic.Bool
	entered  chan struct{}
	release  chan struct{}
	queryCtx chan error
}

func newGatedDocs() *gatedDocs {
	return &gatedDocs{
		DocumentStore: memory.NewDocumentStore(ceiling),
		entered:       make(chan struct{}),
		release:       make(chan struct{}),
		queryCtx:      make(chan error, 1),
	}
}

func (g *gatedDocs) Get(ctx context.Context, collection, id string) ([]byte, error) {
	body, err := g.DocumentStore.Get(ctx, collection, id)
	if g.armGet.CompareAndSwap(true, false) {
		close(g.entered)
		<-g.release
	}
	return body, err
}

func (g *gatedDocs) Query(ctx context.Context, q domain.Query) ([]domain.Document, error) {
	docs, err := g.DocumentStore.Query(ctx, q)
	if g.armQuery.CompareAndSwap(true, false) {
		close(g.entered)
		<-g.release
		g.queryCtx <- ctx.Err()
	}
	return docs, err
}

func TestLoadOneDoesNotResurrectDeleted(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	docs := newGatedDocs()
	repo := newRepo(t, repository.Options{Docs: docs})

	_, err := repo.Save(ctx, newReport("RPT-2024-0001"))
	require.NoError(t, err)

	docs.armGet.Store(true)
	loaded := make(chan error, 1)
	go func() {
		_, err := repo.LoadOne(ctx, "RPT-2024-0001")
		loaded <- err
	}()
	<-docs.entered

	deleted := make(chan error, 1)
	go func() { deleted <- repo.Delete(ctx, "RPT-2024-0001") }()

	close(docs.release)
	require.NoError(t, <-loaded)
	require.NoError(t, <-deleted)

	_, err = repo.LoadOne(ctx, "RPT-2024-0001")
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, repo.Reports())
}

func TestLoadAllKeepsWritesMadeDuringRefresh(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	docs := newGatedDocs()
	repo := newRepo(t, repository.Options{Docs: docs, LoadTimeout: 5 * time.Second})

	_, err := repo.Save(ctx, newReport("RPT-2024-0001"))
	require.NoError(t, err)

	docs.armQuery.Store(true)
	type result struct {
		list []*domain.Report
		err  error
	}
	done := make(chan result, 1)
	go func() {
		list, err := repo.LoadAll(ctx)
		done <- result{list, err}
	}()
	<-docs.entered

	require.NoError(t, repo.Delete(ctx, "RPT-2024-0001"))
	_, err = repo.Save(ctx, newReport("RPT-2024-0002"))
	require.NoError(t, err)

	close(docs.release)
	res := <-done
	require.NoError(t, res.err)
	require.Len(t, res.list, 1)
	assert.Equal(t, "RPT-2024-0002", res.list[0].ID)

	list, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "RPT-2024-0002", list[0].ID)
}

func TestLoadAllTimeoutAbandonsQuery(t *testing.T) {
	t.Parallel()

	docs := newGatedDocs()
	repo := newRepo(t, repository.Options{Docs: docs, LoadTimeout: 20 * time.Millisecond})

	docs.armQuery.Store(true)
	_, err := repo.LoadAll(context.Background())
	require.ErrorIs(t, err, domain.ErrStaleCache)

	close(docs.release)
	select {
	case qerr := <-docs.queryCtx:
		assert.NoError(t, qerr, "late query keeps a live context")
	case <-time.After(2 * time.Second):
		t.Fatal("abandoned query never finished")
	}
}

func TestSaveEmptyAttachmentStaysInline(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	blobs := &countingBlobs{BlobStore: memory.NewBlobStore("mem://")}
	repo := newRepo(t, repository.Options{Blobs: blobs})

	rep := newReport("RPT-2024-0030", domain.NewAttachmentBytes("empty.txt", "text/plain", nil))
	_, err := repo.Save(ctx, rep)
	require.NoError(t, err)

	assert.Equal(t, int32(0), blobs.puts.Load())
	assert.Equal(t, domain.LocatorInline, rep.Attachments[0].Locator.Kind)

	got, err := repo.LoadOne(ctx, rep.ID)
	require.NoError(t, err)
	require.Len(t, got.Attachments, 1)
	assert.True(t, got.Attachments[0].Resolved)
	assert.Empty(t, got.Attachments[0].Payload)
}
