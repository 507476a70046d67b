package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimestampLayout is fixed-width so that stored timestamps sort lexically.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// ReportDocument is the persisted wire shape of a Report.
type ReportDocument struct {
	ID             string               `json:"id"`
	PassportNumber string               `json:"passportNumber"`
	SubjectName    string               `json:"subjectName"`
	Nationality    string               `json:"nationality"`
	Date           string               `json:"date"`
	Classification Classification       `json:"classification"`
	Summary        string               `json:"summary"`
	Content        string               `json:"content"`
	LocationName   string               `json:"locationName,omitempty"`
	Lat            *float64             `json:"lat,omitempty"`
	Lng            *float64             `json:"lng,omitempty"`
	Attachments    []AttachmentDocument `json:"attachments"`
}

// AttachmentDocument is the persisted wire shape of an Attachment. Exactly
// one of Inline, OverflowRef and RemoteRef is set.
type AttachmentDocument struct {
	Name        string     `json:"name"`
	MimeType    string     `json:"mimeType"`
	Size        int64      `json:"size"`
	Inline      *[]byte    `json:"inline,omitempty"`
	OverflowRef string     `json:"overflowRef,omitempty"`
	RemoteRef   *RemoteRef `json:"remoteRef,omitempty"`
}

// EncodeReport serializes a fully placed report. It refuses reports that
// still hold pending payloads or unplaced attachments.
func EncodeReport(r *Report) ([]byte, error) {
	doc := ReportDocument{
		ID:             r.ID,
		PassportNumber: r.PassportNumber,
		SubjectName:    r.SubjectName,
		Nationality:    r.Nationality,
		Date:           r.Date,
		Classification: r.Classification,
		Summary:        r.Summary,
		Content:        r.Content,
		Attachments:    make([]AttachmentDocument, 0, len(r.Attachments)),
	}
	if r.Location != nil {
		lat, lng := r.Location.Lat, r.Location.Lng
		doc.LocationName = r.Location.Name
		doc.Lat = &lat
		doc.Lng = &lng
	}

	for i, a := range r.Attachments {
		if _, _, ok := a.Pending(); ok {
			return nil, fmt.Errorf("domain.EncodeReport: attachment %d (%s) is not placed", i, a.Name)
		}
		ad := AttachmentDocument{Name: a.Name, MimeType: a.MimeType, Size: a.Size}
		switch a.Locator.Kind {
		case LocatorInline:
			data := a.Locator.Inline
			if data == nil {
				data = []byte{}
			}
			ad.Inline = &data
		case LocatorOverflow:
			ad.OverflowRef = a.Locator.OverflowKey
		case LocatorRemote:
			ref := a.Locator.Remote
			ad.RemoteRef = &ref
		default:
			return nil, fmt.Errorf("domain.EncodeReport: attachment %d (%s) has no locator", i, a.Name)
		}
		doc.Attachments = append(doc.Attachments, ad)
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("domain.EncodeReport: %w", err)
	}
	return body, nil
}

// DecodeReport parses a stored report document. Payloads are not resolved.
func DecodeReport(body []byte) (*Report, error) {
	var doc ReportDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("domain.DecodeReport: %w", err)
	}

	r := &Report{
		ID:             doc.ID,
		PassportNumber: doc.PassportNumber,
		SubjectName:    doc.SubjectName,
		Nationality:    doc.Nationality,
		Date:           doc.Date,
		Classification: doc.Classification,
		Summary:        doc.Summary,
		Content:        doc.Content,
		Attachments:    make([]*Attachment, 0, len(doc.Attachments)),
	}
	if doc.Lat != nil && doc.Lng != nil {
		r.Location = &Location{Name: doc.LocationName, Lat: *doc.Lat, Lng: *doc.Lng}
	}

	for _, ad := range doc.Attachments {
		a := &Attachment{Name: ad.Name, MimeType: ad.MimeType, Size: ad.Size}
		switch {
		case ad.Inline != nil:
			a.Locator = InlineLocator(*ad.Inline)
		case ad.OverflowRef != "":
			a.Locator = OverflowLocator(ad.OverflowRef)
		case ad.RemoteRef != nil:
			a.Locator = RemoteLocator(*ad.RemoteRef)
		}
		r.Attachments = append(r.Attachments, a)
	}
	return r, nil
}

type activityDocument struct {
	ActorID       string        `json:"actorId"`
	ActorName     string        `json:"actorName"`
	Action        Action        `json:"action"`
	Details       *EventDetails `json:"details,omitempty"`
	Timestamp     string        `json:"timestamp"`
	ClientContext string        `json:"clientContext"`
}

// EncodeEvent serializes an activity event body (the id is the document id).
func EncodeEvent(e *ActivityEvent) ([]byte, error) {
	body, err := json.Marshal(activityDocument{
		ActorID:       e.ActorID,
		ActorName:     e.ActorName,
		Action:        e.Action,
		Details:       e.Details,
		Timestamp:     e.Timestamp.UTC().Format(TimestampLayout),
		ClientContext: e.ClientContext,
	})
	if err != nil {
		return nil, fmt.Errorf("domain.EncodeEvent: %w", err)
	}
	return body, nil
}

// DecodeEvent parses a stored activity document.
func DecodeEvent(id string, body []byte) (*ActivityEvent, error) {
	var doc activityDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("domain.DecodeEvent: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, doc.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("domain.DecodeEvent: timestamp: %w", err)
	}
	return &ActivityEvent{
		ID:            id,
		ActorID:       doc.ActorID,
		ActorName:     doc.ActorName,
		Action:        doc.Action,
		Details:       doc.Details,
		Timestamp:     ts,
		ClientContext: doc.ClientContext,
	}, nil
}
