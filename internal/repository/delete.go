package repository

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/gosuda/dossier/internal/domain"
)

// Delete removes a report and the tier payloads it references. A report
// that no longer exists counts as deleted.
//
// Remote blobs are deleted concurrently before the document; a failure there
// keeps the document so a retry can find the blobs again. Device-local
// payloads are released after the document and only logged on failure.
func (r *Repository) Delete(ctx context.Context, id string) error {
	unlock := r.locks.Lock(id)
	defer unlock()

	body, err := r.docs.Get(ctx, domain.CollectionReports, id)
	if err != nil {
		if isNotFound(err) {
			r.dropCache(id)
			return nil
		}
		return fmt.Errorf("repository.Delete: %w", err)
	}

	var locators []domain.Locator
	if rep, err := domain.DecodeReport(body); err != nil {
		log.Warn().Err(err).Str("report_id", id).Msg("deleting undecodable report, tier payloads left behind")
	} else {
		locators = rep.Locators()
	}

	var paths, keys []string
	for _, loc := range locators {
		switch loc.Kind {
		case domain.LocatorOverflow:
			keys = append(keys, loc.OverflowKey)
		case domain.LocatorRemote:
			paths = append(paths, loc.Remote.Path)
			keys = append(keys, blobCachePrefix+loc.Remote.Path)
		}
	}

	if len(paths) > 0 {
		if r.blobs == nil {
			log.Warn().Str("report_id", id).Int("blobs", len(paths)).Msg("no blob store configured, remote payloads left behind")
		} else {
			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(4)
			for _, p := range paths {
				g.Go(func() error {
					if err := r.blobs.Delete(gctx, p); err != nil {
						return fmt.Errorf("blob delete %s: %w", p, err)
					}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return fmt.Errorf("repository.Delete: %w", err)
			}
		}
	}

	if err := r.docs.Delete(ctx, domain.CollectionReports, id); err != nil && !isNotFound(err) {
		return fmt.Errorf("repository.Delete: %w", err)
	}
	r.dropCache(id)

	if len(keys) > 0 {
		if err := r.overflow.Delete(ctx, keys...); err != nil {
			log.Warn().Err(err).Str("report_id", id).Strs("keys", keys).Msg("local payloads not released")
		}
	}
	return nil
}
