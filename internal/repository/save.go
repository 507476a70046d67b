package repository

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"slices"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/gosuda/dossier/internal/domain"
	"github.com/gosuda/dossier/internal/placement"
)

// Save places every pending attachment payload into its tier, then writes
// the document. rep is updated in place: each placed attachment loses its
// pending payload and gains a locator, so calling Save again after a
// failure does not repeat completed tier writes.
//
// Tier writes are not rolled back when the document write fails.
func (r *Repository) Save(ctx context.Context, rep *domain.Report) (*domain.Report, error) {
	unlock := r.locks.Lock(rep.ID)
	defer unlock()

	if err := rep.Validate(); err != nil {
		return nil, fmt.Errorf("repository.Save: %w", err)
	}

	prev := r.storedLocators(ctx, rep.ID)

	if err := r.place(ctx, rep, prev); err != nil {
		return nil, fmt.Errorf("repository.Save: %w", err)
	}

	body, err := domain.EncodeReport(rep)
	if err != nil {
		return nil, fmt.Errorf("repository.Save: %w", err)
	}

	if err := r.docs.Set(ctx, domain.CollectionReports, rep.ID, body); err != nil {
		return nil, fmt.Errorf("repository.Save: %w", err)
	}

	r.releaseStale(ctx, rep.ID, prev, rep.Locators())
	r.upsertCache(rep)
	return rep, nil
}

// SaveAll places attachments for each report independently, then commits
// all documents in one batch.
func (r *Repository) SaveAll(ctx context.Context, reports []*domain.Report) error {
	ids := make([]string, 0, len(reports))
	for _, rep := range reports {
		ids = append(ids, rep.ID)
	}
	slices.Sort(ids)
	if len(slices.Compact(slices.Clone(ids))) != len(ids) {
		return fmt.Errorf("repository.SaveAll: duplicate report id: %w", domain.ErrValidation)
	}

	unlock := r.locks.LockAll(ids)
	defer unlock()

	for _, rep := range reports {
		if err := rep.Validate(); err != nil {
			return fmt.Errorf("repository.SaveAll: %s: %w", rep.ID, err)
		}
	}

	prevs := make([][]domain.Locator, len(reports))
	docs := make([]domain.Document, len(reports))
	for i, rep := range reports {
		prevs[i] = r.storedLocators(ctx, rep.ID)
		if err := r.place(ctx, rep, prevs[i]); err != nil {
			return fmt.Errorf("repository.SaveAll: %s: %w", rep.ID, err)
		}
		body, err := domain.EncodeReport(rep)
		if err != nil {
			return fmt.Errorf("repository.SaveAll: %w", err)
		}
		docs[i] = domain.Document{ID: rep.ID, Body: body}
	}

	if err := r.docs.SetAll(ctx, domain.CollectionReports, docs); err != nil {
		return fmt.Errorf("repository.SaveAll: %w", err)
	}

	for i, rep := range reports {
		r.releaseStale(ctx, rep.ID, prevs[i], rep.Locators())
		r.upsertCache(rep)
	}
	return nil
}

type tierWrite struct {
	att      *domain.Attachment
	decision placement.Decision
	key      string
	data     []byte
}

// place resolves every pending attachment of rep into exactly one locator.
// Payloads are read and overflow keys allocated sequentially; tier writes
// then run concurrently.
func (r *Repository) place(ctx context.Context, rep *domain.Report, prev []domain.Locator) error {
	taken := make(map[string]bool)
	for _, loc := range prev {
		if loc.Kind == domain.LocatorOverflow {
			taken[loc.OverflowKey] = true
		}
	}
	for _, a := range rep.Attachments {
		if a.Locator.Kind == domain.LocatorOverflow {
			taken[a.Locator.OverflowKey] = true
		}
	}

	var writes []tierWrite
	for i, a := range rep.Attachments {
		decision := r.policy.PlaceAttachment(a)
		if decision == placement.Keep {
			if a.Locator.IsZero() {
				return fmt.Errorf("attachment %d (%s) has neither payload nor locator: %w", i, a.Name, domain.ErrValidation)
			}
			continue
		}

		src, _, _ := a.Pending()
		data, err := io.ReadAll(src)
		if err != nil {
			return fmt.Errorf("read attachment %d (%s): %w", i, a.Name, err)
		}
		// The declared size is only a hint; re-place inline payloads by what was read.
		if decision == placement.Inline {
			decision = r.policy.Place(int64(len(data)))
		}

		w := tierWrite{att: a, decision: decision, data: data}
		if decision == placement.Overflow {
			w.key = allocateKey(rep.ID, i, taken)
			taken[w.key] = true
		}
		writes = append(writes, w)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, w := range writes {
		g.Go(func() error {
			return r.write(gctx, rep.ID, w)
		})
	}
	return g.Wait()
}

func (r *Repository) write(ctx context.Context, reportID string, w tierWrite) error {
	switch w.decision {
	case placement.Inline:
		w.att.Settle(domain.InlineLocator(w.data), w.data)

	case placement.Overflow:
		if err := r.overflow.Put(ctx, w.key, w.data); err != nil {
			return fmt.Errorf("overflow put %s: %w", w.key, err)
		}
		w.att.Settle(domain.OverflowLocator(w.key), w.data)

	case placement.RemoteBlob:
		path := blobPath(reportID, w.att.Name)
		ref, err := r.blobs.Put(ctx, path, w.data, w.att.MimeType)
		if err != nil {
			return fmt.Errorf("blob put %s: %w", path, err)
		}
		w.att.Settle(domain.RemoteLocator(ref), w.data)

	default:
		return fmt.Errorf("unexpected placement %q", w.decision)
	}
	return nil
}

// allocateKey returns <reportID>/<index>, advancing the index while the key
// is held by another attachment of the same report.
func allocateKey(reportID string, index int, taken map[string]bool) string {
	for {
		key := reportID + "/" + strconv.Itoa(index)
		if !taken[key] {
			return key
		}
		index++
	}
}

func blobPath(reportID, name string) string {
	return "reports/" + reportID + "/" + uuid.NewString() + "-" + url.PathEscape(name)
}

// storedLocators returns the locators of the currently stored document, or
// nil when there is none or it cannot be read.
func (r *Repository) storedLocators(ctx context.Context, id string) []domain.Locator {
	body, err := r.docs.Get(ctx, domain.CollectionReports, id)
	if err != nil {
		if !isNotFound(err) {
			log.Warn().Err(err).Str("report_id", id).Msg("previous document unreadable, stale payloads will not be released")
		}
		return nil
	}
	prev, err := domain.DecodeReport(body)
	if err != nil {
		log.Warn().Err(err).Str("report_id", id).Msg("previous document undecodable")
		return nil
	}
	return prev.Locators()
}

// releaseStale deletes tier payloads that prev referenced and next does not.
// Failures are logged only.
func (r *Repository) releaseStale(ctx context.Context, reportID string, prev, next []domain.Locator) {
	keep := make(map[string]bool, len(next))
	for _, loc := range next {
		keep[locatorKey(loc)] = true
	}

	var keys []string
	for _, loc := range prev {
		if keep[locatorKey(loc)] {
			continue
		}
		switch loc.Kind {
		case domain.LocatorOverflow:
			keys = append(keys, loc.OverflowKey)
		case domain.LocatorRemote:
			keys = append(keys, blobCachePrefix+loc.Remote.Path)
			if r.blobs == nil {
				continue
			}
			if err := r.blobs.Delete(ctx, loc.Remote.Path); err != nil {
				log.Warn().Err(err).Str("report_id", reportID).Str("path", loc.Remote.Path).Msg("stale blob not deleted")
			}
		}
	}

	if len(keys) > 0 {
		if err := r.overflow.Delete(ctx, keys...); err != nil {
			log.Warn().Err(err).Str("report_id", reportID).Strs("keys", keys).Msg("stale overflow payloads not deleted")
		}
	}
}

func locatorKey(loc domain.Locator) string {
	switch loc.Kind {
	case domain.LocatorOverflow:
		return "o:" + loc.OverflowKey
	case domain.LocatorRemote:
		return "r:" + loc.Remote.Path
	default:
		return ""
	}
}
