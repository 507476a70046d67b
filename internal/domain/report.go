package domain

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"time"
)

type Classification string

const (
	ClassificationTopSecret    Classification = "top-secret"
	ClassificationSecret       Classification = "secret"
	ClassificationConfidential Classification = "confidential"
)

// ValidClassifications is the canonical set of report classifications.
var ValidClassifications = []Classification{ //nolint:gochecknoglobals // canonical enum list
	ClassificationTopSecret,
	ClassificationSecret,
	ClassificationConfidential,
}

// DateLayout is the ISO calendar date format used for Report.Date.
const DateLayout = "2006-01-02"

var reportIDPattern = regexp.MustCompile(`^RPT-(\d{4})-(\d{4})$`) //nolint:gochecknoglobals // compiled once

// Location is the optional geolocation of a report.
type Location struct {
	Name string
	Lat  float64
	Lng  float64
}

// Report is an intelligence report. ID is assigned at creation and never changes.
type Report struct {
	ID             string
	PassportNumber string
	SubjectName    string
	Nationality    string
	Date           string // YYYY-MM-DD
	Classification Classification
	Summary        string
	Content        string // markdown body
	Location       *Location
	Attachments    []*Attachment
}

// FormatReportID builds an id of the form RPT-<year>-<4-digit-seq>.
func FormatReportID(year, seq int) string {
	return fmt.Sprintf("RPT-%04d-%04d", year, seq)
}

// ParseReportID splits a report id into its year and sequence number.
func ParseReportID(id string) (year, seq int, err error) {
	m := reportIDPattern.FindStringSubmatch(id)
	if m == nil {
		return 0, 0, invalid("id", fmt.Sprintf("%q does not match RPT-<year>-<seq>", id))
	}
	year, _ = strconv.Atoi(m[1])
	seq, _ = strconv.Atoi(m[2])
	return year, seq, nil
}

// Validate checks the descriptive fields and attachment metadata.
func (r *Report) Validate() error {
	if _, _, err := ParseReportID(r.ID); err != nil {
		return err
	}
	if r.SubjectName == "" {
		return invalid("subjectName", "required")
	}
	if !slices.Contains(ValidClassifications, r.Classification) {
		return invalid("classification", fmt.Sprintf("unknown classification %q", r.Classification))
	}
	if _, err := time.Parse(DateLayout, r.Date); err != nil {
		return invalid("date", fmt.Sprintf("%q is not YYYY-MM-DD", r.Date))
	}
	if r.Location != nil {
		if r.Location.Lat < -90 || r.Location.Lat > 90 {
			return invalid("lat", "must be within [-90, 90]")
		}
		if r.Location.Lng < -180 || r.Location.Lng > 180 {
			return invalid("lng", "must be within [-180, 180]")
		}
	}
	for i, a := range r.Attachments {
		if a == nil {
			return invalid(fmt.Sprintf("attachments[%d]", i), "nil attachment")
		}
		if a.Name == "" {
			return invalid(fmt.Sprintf("attachments[%d].name", i), "required")
		}
		if a.Size < 0 && a.pending == nil {
			return invalid(fmt.Sprintf("attachments[%d].size", i), "must not be negative")
		}
	}
	return nil
}

// Metadata returns the list view of the report: descriptive fields are kept,
// attachments are reduced to name, mime type and size.
func (r *Report) Metadata() *Report {
	out := *r
	if r.Location != nil {
		loc := *r.Location
		out.Location = &loc
	}
	out.Attachments = make([]*Attachment, len(r.Attachments))
	for i, a := range r.Attachments {
		out.Attachments[i] = &Attachment{Name: a.Name, MimeType: a.MimeType, Size: a.Size}
	}
	return &out
}

// Locators returns every populated tier locator referenced by the report.
func (r *Report) Locators() []Locator {
	locs := make([]Locator, 0, len(r.Attachments))
	for _, a := range r.Attachments {
		if !a.Locator.IsZero() {
			locs = append(locs, a.Locator)
		}
	}
	return locs
}
