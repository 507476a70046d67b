package v1

import (
	"fmt"

	"github.com/gosuda/dossier/internal/domain"
)

type LocationBody struct {
	Name string  `json:"name,omitempty"`
	Lat  float64 `json:"lat" minimum:"-90" maximum:"90"`
	Lng  float64 `json:"lng" minimum:"-180" maximum:"180"`
}

// AttachmentBody is an attachment as sent by clients. Data carries a new
// payload; an attachment without data keeps the stored payload of the same
// name.
type AttachmentBody struct {
	Name     string `json:"name" minLength:"1"`
	MimeType string `json:"mimeType,omitempty"`
	Data     []byte `json:"data,omitempty" doc:"Base64 payload"`
}

type ReportBody struct {
	PassportNumber string                `json:"passportNumber,omitempty"`
	SubjectName    string                `json:"subjectName" minLength:"1"`
	Nationality    string                `json:"nationality,omitempty"`
	Date           string                `json:"date" doc:"YYYY-MM-DD"`
	Classification domain.Classification `json:"classification" enum:"top-secret,secret,confidential"`
	Summary        string                `json:"summary,omitempty"`
	Content        string                `json:"content,omitempty" doc:"Markdown body"`
	Location       *LocationBody         `json:"location,omitempty"`
	Attachments    []AttachmentBody      `json:"attachments,omitempty"`
}

type AttachmentView struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
	Tier     string `json:"tier,omitempty"`
	// Available is false when the payload could not be found on this device.
	Available *bool  `json:"available,omitempty"`
	Error     string `json:"error,omitempty"`
	Data      []byte `json:"data,omitempty"`
}

type ReportView struct {
	ID             string                `json:"id"`
	PassportNumber string                `json:"passportNumber"`
	SubjectName    string                `json:"subjectName"`
	Nationality    string                `json:"nationality"`
	Date           string                `json:"date"`
	Classification domain.Classification `json:"classification"`
	Summary        string                `json:"summary"`
	Content        string                `json:"content"`
	Location       *LocationBody         `json:"location,omitempty"`
	Attachments    []AttachmentView      `json:"attachments"`
}

// toReport builds a domain report for id. Attachments without data are
// matched by name against prev; a name missing from prev, or kept twice, is
// a validation error.
func (b *ReportBody) toReport(id string, prev *domain.Report) (*domain.Report, error) {
	rep := &domain.Report{
		ID:             id,
		PassportNumber: b.PassportNumber,
		SubjectName:    b.SubjectName,
		Nationality:    b.Nationality,
		Date:           b.Date,
		Classification: b.Classification,
		Summary:        b.Summary,
		Content:        b.Content,
		Attachments:    make([]*domain.Attachment, 0, len(b.Attachments)),
	}
	if b.Location != nil {
		rep.Location = &domain.Location{Name: b.Location.Name, Lat: b.Location.Lat, Lng: b.Location.Lng}
	}

	keptNames := make(map[string]bool)
	for i, ab := range b.Attachments {
		if ab.Data != nil {
			rep.Attachments = append(rep.Attachments, domain.NewAttachmentBytes(ab.Name, ab.MimeType, ab.Data))
			continue
		}
		if keptNames[ab.Name] {
			return nil, &domain.ValidationError{
				Field:  fmt.Sprintf("attachments[%d].name", i),
				Reason: fmt.Sprintf("stored attachment %q is already kept", ab.Name),
			}
		}
		keptNames[ab.Name] = true

		kept := findAttachment(prev, ab.Name)
		if kept == nil {
			return nil, &domain.ValidationError{
				Field:  fmt.Sprintf("attachments[%d].data", i),
				Reason: fmt.Sprintf("no stored attachment named %q to keep", ab.Name),
			}
		}
		if ab.MimeType != "" {
			kept.MimeType = ab.MimeType
		}
		rep.Attachments = append(rep.Attachments, kept)
	}
	return rep, nil
}

func findAttachment(rep *domain.Report, name string) *domain.Attachment {
	if rep == nil {
		return nil
	}
	for _, a := range rep.Attachments {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// toView renders rep. Payload bytes are included only when withData is set.
func toView(rep *domain.Report, withData bool) ReportView {
	v := ReportView{
		ID:             rep.ID,
		PassportNumber: rep.PassportNumber,
		SubjectName:    rep.SubjectName,
		Nationality:    rep.Nationality,
		Date:           rep.Date,
		Classification: rep.Classification,
		Summary:        rep.Summary,
		Content:        rep.Content,
		Attachments:    make([]AttachmentView, 0, len(rep.Attachments)),
	}
	if rep.Location != nil {
		v.Location = &LocationBody{Name: rep.Location.Name, Lat: rep.Location.Lat, Lng: rep.Location.Lng}
	}

	for _, a := range rep.Attachments {
		av := AttachmentView{
			Name:     a.Name,
			MimeType: a.MimeType,
			Size:     a.Size,
			Tier:     string(a.Locator.Kind),
		}
		if withData {
			available := a.Resolved
			av.Available = &available
			if a.Resolved {
				av.Data = a.Payload
			} else if a.ResolveErr != nil {
				av.Error = a.ResolveErr.Error()
			}
		}
		v.Attachments = append(v.Attachments, av)
	}
	return v
}

func toViews(reports []*domain.Report) []ReportView {
	out := make([]ReportView, 0, len(reports))
	for _, rep := range reports {
		out = append(out, toView(rep, false))
	}
	return out
}
