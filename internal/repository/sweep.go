package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/gosuda/dossier/internal/domain"
)

// Sweep lists overflow keys that no stored report references, such as
// payloads written by a save whose document write failed. With apply set
// the orphans are deleted.
//
// A save that is between its tier writes and its document write can have
// its fresh payloads reported as orphans; run Sweep while no writers are
// active.
func (r *Repository) Sweep(ctx context.Context, apply bool) ([]string, error) {
	docs, err := r.docs.Query(ctx, domain.Query{Collection: domain.CollectionReports})
	if err != nil {
		return nil, fmt.Errorf("repository.Sweep: %w", err)
	}

	referenced := make(map[string]bool)
	for _, d := range docs {
		rep, err := domain.DecodeReport(d.Body)
		if err != nil {
			return nil, fmt.Errorf("repository.Sweep: %s: %w", d.ID, err)
		}
		for _, loc := range rep.Locators() {
			switch loc.Kind {
			case domain.LocatorOverflow:
				referenced[loc.OverflowKey] = true
			case domain.LocatorRemote:
				referenced[blobCachePrefix+loc.Remote.Path] = true
			}
		}
	}

	keys, err := r.overflow.Keys(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("repository.Sweep: %w", err)
	}

	var orphans []string
	for _, k := range keys {
		if referenced[k] {
			continue
		}
		if !strings.HasPrefix(k, blobCachePrefix) && !strings.HasPrefix(k, "RPT-") {
			continue
		}
		orphans = append(orphans, k)
	}

	if apply && len(orphans) > 0 {
		if err := r.overflow.Delete(ctx, orphans...); err != nil {
			return orphans, fmt.Errorf("repository.Sweep: %w", err)
		}
	}
	return orphans, nil
}
