// Package placement decides which storage tier an attachment payload goes to.
package placement

import "github.com/gosuda/dossier/internal/domain"

// Decision is the outcome of a placement evaluation.
type Decision string

const (
	// Keep means the attachment already has a locator and is left as-is.
	Keep       Decision = "keep"
	Inline     Decision = "inline"
	Overflow   Decision = "overflow"
	RemoteBlob Decision = "remote_blob"
)

// Policy is a pure function of payload size, budget and whether a remote
// blob store is configured.
type Policy struct {
	// Budget is the largest payload embedded inline. It is set below the
	// document store ceiling because descriptive fields share the document.
	Budget int64
	// RemoteConfigured sends every fresh non-empty payload to the remote blob store.
	RemoteConfigured bool
}

// New returns a Policy for the given inline budget.
func New(budget int64, remoteConfigured bool) Policy {
	return Policy{Budget: budget, RemoteConfigured: remoteConfigured}
}

// Place decides where a fresh payload of sizeBytes goes. An empty payload is
// always inline. domain.UnknownSize (or any negative size) is treated as
// exceeding the budget.
func (p Policy) Place(sizeBytes int64) Decision {
	if sizeBytes == 0 {
		return Inline
	}
	if p.RemoteConfigured {
		return RemoteBlob
	}
	if sizeBytes < 0 || sizeBytes > p.Budget {
		return Overflow
	}
	return Inline
}

// PlaceAttachment evaluates an attachment. Attachments without a pending
// payload that already carry a locator are never moved between tiers.
func (p Policy) PlaceAttachment(a *domain.Attachment) Decision {
	_, size, pending := a.Pending()
	if !pending {
		return Keep
	}
	return p.Place(size)
}
