package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/gosuda/dossier/internal/domain"
)

// LoadAll refreshes the cached list from the document store and returns it.
//
// The read is bounded by the load timeout. On timeout or any store error the
// previous cache is returned unchanged together with a non-nil warning that
// wraps domain.ErrStaleCache. A stuck store call is abandoned; its late
// result is discarded. Reports saved or deleted while the read is in flight
// keep their cached state.
func (r *Repository) LoadAll(ctx context.Context) ([]*domain.Report, error) {
	type result struct {
		docs []domain.Document
		err  error
	}

	since := r.beginRefresh()

	// The query outlives the race: a late answer is dropped, not cancelled.
	qctx := context.WithoutCancel(ctx)
	done := make(chan result, 1)
	go func() {
		docs, err := r.docs.Query(qctx, domain.Query{
			Collection: domain.CollectionReports,
			OrderBy:    "date",
			Descending: true,
		})
		done <- result{docs: docs, err: err}
	}()

	timer := time.NewTimer(r.loadTimeout)
	defer timer.Stop()

	var res result
	select {
	case res = <-done:
	case <-timer.C:
		res.err = fmt.Errorf("timed out after %s: %w", r.loadTimeout, domain.ErrRemoteUnavailable)
	case <-ctx.Done():
		res.err = ctx.Err()
	}

	if res.err != nil {
		r.endRefresh(since, nil)
		log.Warn().Err(res.err).Msg("report list refresh failed, serving cached list")
		return r.Reports(), fmt.Errorf("repository.LoadAll: %w: %w", domain.ErrStaleCache, res.err)
	}

	snapshot := make([]*domain.Report, 0, len(res.docs))
	for _, d := range res.docs {
		rep, err := domain.DecodeReport(d.Body)
		if err != nil {
			log.Warn().Err(err).Str("report_id", d.ID).Msg("skipping undecodable report document")
			continue
		}
		snapshot = append(snapshot, rep.Metadata())
	}

	r.endRefresh(since, snapshot)
	return r.Reports(), nil
}

// LoadOne returns a fully hydrated report. A missing document yields
// domain.ErrNotFound. Attachments whose payload cannot be resolved are
// returned with Resolved false and ResolveErr set; the load continues.
func (r *Repository) LoadOne(ctx context.Context, id string) (*domain.Report, error) {
	rep, err := r.readLocked(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("repository.LoadOne: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, a := range rep.Attachments {
		g.Go(func() error {
			r.resolve(gctx, rep.ID, a)
			return nil
		})
	}
	_ = g.Wait()

	return rep, nil
}

// readLocked reads and decodes one report and refreshes its cache entry
// while holding the id lock, so a concurrent Delete cannot be undone by a
// late cache write.
func (r *Repository) readLocked(ctx context.Context, id string) (*domain.Report, error) {
	unlock := r.locks.Lock(id)
	defer unlock()

	body, err := r.docs.Get(ctx, domain.CollectionReports, id)
	if err != nil {
		if isNotFound(err) {
			r.dropCache(id)
		}
		return nil, err
	}

	rep, err := domain.DecodeReport(body)
	if err != nil {
		return nil, err
	}
	r.upsertCache(rep)
	return rep, nil
}

func (r *Repository) resolve(ctx context.Context, reportID string, a *domain.Attachment) {
	data, err := r.fetch(ctx, a.Locator)
	if err != nil {
		a.Resolved = false
		a.ResolveErr = err
		log.Warn().Err(err).
			Str("report_id", reportID).
			Str("attachment", a.Name).
			Str("locator", a.Locator.String()).
			Msg("attachment payload unavailable")
		return
	}
	a.Payload = data
	a.Resolved = true
	a.ResolveErr = nil
}

func (r *Repository) fetch(ctx context.Context, loc domain.Locator) ([]byte, error) {
	switch loc.Kind {
	case domain.LocatorInline:
		return loc.Inline, nil

	case domain.LocatorOverflow:
		data, ok, err := r.overflow.Get(ctx, loc.OverflowKey)
		if err != nil {
			return nil, fmt.Errorf("overflow %s: %w", loc.OverflowKey, err)
		}
		if !ok {
			return nil, fmt.Errorf("overflow %s not on this device: %w", loc.OverflowKey, domain.ErrBlobNotFound)
		}
		return data, nil

	case domain.LocatorRemote:
		return r.fetchRemote(ctx, loc.Remote.Path)

	default:
		return nil, fmt.Errorf("attachment has no locator: %w", domain.ErrBlobNotFound)
	}
}

func (r *Repository) fetchRemote(ctx context.Context, path string) ([]byte, error) {
	cacheKey := blobCachePrefix + path
	if r.cacheRemote {
		data, ok, err := r.overflow.Get(ctx, cacheKey)
		if err == nil && ok {
			return data, nil
		}
		if err != nil {
			log.Debug().Err(err).Str("path", path).Msg("blob cache read failed")
		}
	}

	if r.blobs == nil {
		return nil, fmt.Errorf("remote %s: no blob store configured: %w", path, domain.ErrRemoteUnavailable)
	}

	data, err := r.blobs.Get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("remote %s: %w", path, err)
	}

	if r.cacheRemote {
		if err := r.overflow.Put(ctx, cacheKey, data); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("blob cache write failed")
		}
	}
	return data, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
