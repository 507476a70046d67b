package domain

import (
	"bytes"
	"fmt"
	"io"
)

// LocatorKind identifies the tier an attachment payload lives in.
type LocatorKind string

const (
	LocatorInline   LocatorKind = "inline"
	LocatorOverflow LocatorKind = "overflow"
	LocatorRemote   LocatorKind = "remote"
)

// RemoteRef addresses a payload in the remote blob store.
type RemoteRef struct {
	URL  string `json:"url"`
	Path string `json:"path"`
}

// Locator is a tagged union: exactly one of Inline, OverflowKey or Remote is
// meaningful, selected by Kind. The zero Locator means "not placed yet".
type Locator struct {
	Kind        LocatorKind
	Inline      []byte
	OverflowKey string
	Remote      RemoteRef
}

func InlineLocator(data []byte) Locator {
	if data == nil {
		data = []byte{}
	}
	return Locator{Kind: LocatorInline, Inline: data}
}

func OverflowLocator(key string) Locator {
	return Locator{Kind: LocatorOverflow, OverflowKey: key}
}

func RemoteLocator(ref RemoteRef) Locator {
	return Locator{Kind: LocatorRemote, Remote: ref}
}

func (l Locator) IsZero() bool { return l.Kind == "" }

func (l Locator) String() string {
	switch l.Kind {
	case LocatorInline:
		return fmt.Sprintf("inline(%d bytes)", len(l.Inline))
	case LocatorOverflow:
		return "overflow(" + l.OverflowKey + ")"
	case LocatorRemote:
		return "remote(" + l.Remote.Path + ")"
	default:
		return "unplaced"
	}
}

// UnknownSize marks a pending payload whose length is not known up front.
const UnknownSize int64 = -1

type pendingPayload struct {
	r    io.Reader
	size int64
}

// Attachment is a file attached to a report.
//
// A freshly supplied file carries a pending payload until the repository
// places it into a tier; after that it carries exactly one Locator.
// Payload holds the resolved bytes after hydration and Resolved reports
// whether they could be found on this device.
type Attachment struct {
	Name     string
	MimeType string
	Size     int64
	Locator  Locator

	Payload    []byte
	Resolved   bool
	ResolveErr error

	pending *pendingPayload
}

// NewAttachment wraps a user-supplied payload. Pass UnknownSize when the
// stream length is not known.
func NewAttachment(name, mimeType string, r io.Reader, size int64) *Attachment {
	return &Attachment{
		Name:     name,
		MimeType: mimeType,
		Size:     size,
		pending:  &pendingPayload{r: r, size: size},
	}
}

// NewAttachmentBytes wraps an in-memory payload.
func NewAttachmentBytes(name, mimeType string, data []byte) *Attachment {
	return NewAttachment(name, mimeType, bytes.NewReader(data), int64(len(data)))
}

// Pending returns the raw payload handle and its declared size, if the
// attachment has not been placed yet.
func (a *Attachment) Pending() (io.Reader, int64, bool) {
	if a.pending == nil {
		return nil, 0, false
	}
	return a.pending.r, a.pending.size, true
}

// Settle records the tier the payload was written to and drops the pending
// handle. Size is only filled in when it was unknown.
func (a *Attachment) Settle(loc Locator, data []byte) {
	if a.Size == UnknownSize {
		a.Size = int64(len(data))
	}
	a.Locator = loc
	a.Payload = data
	a.Resolved = true
	a.ResolveErr = nil
	a.pending = nil
}
