// Package tender defines the core types shared across the acquisition pipeline.
package tender

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Canonical record keys that the pipeline reads or writes itself. Every other
// key is passed through from the portal under its translated or generated name.
const (
	KeyTenderID          = "tender_id"
	KeyOrganizerName     = "organizer_name"
	KeyOrganizerBIN      = "organizer_bin"
	KeyApplicationsCount = "applications_count"
	KeyLotsInfo          = "lots_info"
	KeyTechSpecFiles     = "techspec_files"
	KeyAttributes        = "attributes"

	KeyLotID     = "lot_id"
	KeyLotNumber = "lot_number"
	KeyPrevPlan  = "prev_plan"
)

// Analysis result labels.
const (
	LabelTechSpec  = "techspec_analyzed"
	LabelAffiliate = "affiliate_analysis"
)

// Record is the canonical announcement record: an open mapping with typed
// accessors for the fields the pipeline depends on.
type Record struct {
	Fields
}

// NewRecord returns an empty Record.
func NewRecord() *Record {
	return &Record{Fields: *NewFields()}
}

// OrganizerName returns the organizer name field.
func (r *Record) OrganizerName() (string, bool) {
	return r.Text(KeyOrganizerName)
}

// OrganizerBIN returns the derived organizer identifier.
func (r *Record) OrganizerBIN() (string, bool) {
	return r.Text(KeyOrganizerBIN)
}

// DeriveOrganizerBIN sets organizer_bin to the first whitespace-delimited token
// of organizer_name. Nothing is set when organizer_name is absent.
func (r *Record) DeriveOrganizerBIN() {
	name, ok := r.OrganizerName()
	if !ok {
		return
	}
	bin := ""
	if tokens := strings.Fields(name); len(tokens) > 0 {
		bin = tokens[0]
	}
	r.Set(KeyOrganizerBIN, bin)
}

// Lots returns the lot entries in source order.
func (r *Record) Lots() []Lot {
	v, _ := r.Get(KeyLotsInfo)
	lots, _ := v.([]Lot)
	return lots
}

// TechSpecFiles returns the technical-specification file references.
func (r *Record) TechSpecFiles() []TechSpecFile {
	v, _ := r.Get(KeyTechSpecFiles)
	files, _ := v.([]TechSpecFile)
	return files
}

// SetAnalysis stores one analysis outcome under its label.
func (r *Record) SetAnalysis(label, text string) {
	r.Set(label, text)
}

// Lot is one purchasable line item. Its schema is open like the Record's.
type Lot struct {
	Fields
}

// NewLot returns an empty Lot.
func NewLot() Lot {
	return Lot{Fields: *NewFields()}
}

// LotID returns the identifier read from the lot's action control, if any.
func (l *Lot) LotID() (string, bool) {
	return l.Text(KeyLotID)
}

// LotNumber returns the lot number text.
func (l *Lot) LotNumber() (string, bool) {
	return l.Text(KeyLotNumber)
}

// PrevPlan reports the previous-plan flag.
func (l *Lot) PrevPlan() bool {
	v, _ := l.Get(KeyPrevPlan)
	b, _ := v.(bool)
	return b
}

// TechSpecFile references one technical-specification attachment.
type TechSpecFile struct {
	LotID    string `json:"lot_id"`
	FileLink string `json:"file_link"`
	FileName string `json:"file_name"`
}

// Credentials is the explicit header set attached to every portal request.
type Credentials struct {
	Token   string
	Headers http.Header
}

// Header returns a copy of the credential headers.
func (c Credentials) Header() http.Header {
	if c.Headers == nil {
		return http.Header{}
	}
	return c.Headers.Clone()
}

// FetchRequest captures everything needed to perform one portal request.
type FetchRequest struct {
	Method  string
	URL     string
	Body    []byte
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	Attempts   int
}

// CheckStatus returns an error for non-2xx responses. Fetchers never call it;
// interpreting the status is up to the caller.
func (r FetchResponse) CheckStatus() error {
	if r.StatusCode >= 200 && r.StatusCode < 300 {
		return nil
	}
	return &StatusError{URL: r.URL, StatusCode: r.StatusCode}
}

// StatusError reports a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.StatusCode, e.URL)
}
