// Package repository keeps reports consistent across the in-memory cache,
// the device-local overflow store and the remote document and blob stores.
package repository

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/gosuda/dossier/internal/domain"
	"github.com/gosuda/dossier/internal/placement"
)

const (
	DefaultLoadTimeout = 8 * time.Second
	// blobCachePrefix namespaces remote payloads cached in the overflow store.
	blobCachePrefix = "blob:"
)

type Options struct {
	Docs     domain.DocumentStore
	Blobs    domain.BlobStore // nil disables the remote blob tier
	Overflow domain.OverflowStore
	// Budget is the largest attachment embedded inline in a document.
	Budget      int64
	LoadTimeout time.Duration
	// CacheRemote keeps a device-local copy of remote payloads after the first read.
	CacheRemote bool
}

// Repository owns the report list shown to callers. The list only changes
// through Repository methods.
type Repository struct {
	docs        domain.DocumentStore
	blobs       domain.BlobStore
	overflow    domain.OverflowStore
	policy      placement.Policy
	loadTimeout time.Duration
	cacheRemote bool

	locks *keyedMutex

	mu    sync.RWMutex
	cache []*domain.Report
	// gen counts cache writes. touched records the generation of the last
	// write per id while a LoadAll is in flight, so a snapshot read before
	// that write cannot overwrite it.
	gen      uint64
	touched  map[string]uint64
	inflight int
}

func New(opts Options) (*Repository, error) {
	if opts.Docs == nil {
		return nil, errors.New("repository.New: document store is required")
	}
	if opts.Overflow == nil {
		return nil, errors.New("repository.New: overflow store is required")
	}
	if opts.Budget <= 0 {
		return nil, errors.New("repository.New: budget must be positive")
	}
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = DefaultLoadTimeout
	}

	return &Repository{
		docs:        opts.Docs,
		blobs:       opts.Blobs,
		overflow:    opts.Overflow,
		policy:      placement.New(opts.Budget, opts.Blobs != nil),
		loadTimeout: opts.LoadTimeout,
		cacheRemote: opts.CacheRemote && opts.Blobs != nil,
		locks:       newKeyedMutex(),
		touched:     make(map[string]uint64),
	}, nil
}

// Reports returns a copy of the cached metadata list, newest first.
func (r *Repository) Reports() []*domain.Report {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Report, len(r.cache))
	for i, rep := range r.cache {
		out[i] = rep.Metadata()
	}
	return out
}

// NextID returns the next free report id for year, based on the cache.
func (r *Repository) NextID(year int) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	maxSeq := 0
	for _, rep := range r.cache {
		y, seq, err := domain.ParseReportID(rep.ID)
		if err != nil || y != year {
			continue
		}
		maxSeq = max(maxSeq, seq)
	}
	return domain.FormatReportID(year, maxSeq+1)
}

// beginRefresh marks a LoadAll in flight and returns the generation its
// snapshot is taken at.
func (r *Repository) beginRefresh() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inflight++
	return r.gen
}

// endRefresh installs a snapshot taken at generation since. Ids written
// after since keep their cached state. A nil snapshot leaves the cache as is.
func (r *Repository) endRefresh(since uint64, snapshot []*domain.Report) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if snapshot != nil {
		next := make([]*domain.Report, 0, len(snapshot))
		for _, rep := range snapshot {
			if r.touched[rep.ID] <= since {
				next = append(next, rep)
			}
		}
		for _, rep := range r.cache {
			if r.touched[rep.ID] > since {
				next = append(next, rep)
			}
		}
		sortNewestFirst(next)
		r.cache = next
	}

	r.inflight--
	if r.inflight == 0 {
		clear(r.touched)
	}
}

// touchLocked records a cache write for id. r.mu must be held.
func (r *Repository) touchLocked(id string) {
	r.gen++
	if r.inflight > 0 {
		r.touched[id] = r.gen
	}
}

func (r *Repository) upsertCache(rep *domain.Report) {
	meta := rep.Metadata()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.touchLocked(rep.ID)

	i := slices.IndexFunc(r.cache, func(c *domain.Report) bool { return c.ID == rep.ID })
	if i >= 0 {
		r.cache[i] = meta
	} else {
		r.cache = append(r.cache, meta)
	}
	sortNewestFirst(r.cache)
}

func (r *Repository) dropCache(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touchLocked(id)
	r.cache = slices.DeleteFunc(r.cache, func(c *domain.Report) bool { return c.ID == id })
}

// sortNewestFirst orders by date descending, then id descending.
func sortNewestFirst(reports []*domain.Report) {
	slices.SortStableFunc(reports, func(a, b *domain.Report) int {
		if a.Date != b.Date {
			if a.Date > b.Date {
				return -1
			}
			return 1
		}
		switch {
		case a.ID > b.ID:
			return -1
		case a.ID < b.ID:
			return 1
		}
		return 0
	})
}
