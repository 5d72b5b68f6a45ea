package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Accepted media types. Matching is exact against the declared type;
// content is never sniffed.
const (
	MediaJPEG = "image/jpeg"
	MediaPNG  = "image/png"
	MediaJPG  = "image/jpg"
	MediaPDF  = "application/pdf"
)

// AllowedMediaTypes lists every media type a selection may declare.
var AllowedMediaTypes = []string{MediaJPEG, MediaPNG, MediaJPG, MediaPDF}

// IsAllowed reports whether mediaType is on the allow-list.
func IsAllowed(mediaType string) bool {
	for _, mt := range AllowedMediaTypes {
		if mediaType == mt {
			return true
		}
	}
	return false
}

// IsImage reports whether mediaType is an image subtype.
func IsImage(mediaType string) bool {
	return strings.HasPrefix(mediaType, "image/")
}

// File is a selected document: an opaque blob plus its declared media type.
// Files are treated as immutable once selected.
type File struct {
	Name      string
	MediaType string
	Data      []byte
}

// Size returns the payload length in bytes.
func (f File) Size() int64 {
	return int64(len(f.Data))
}

// Scalar is a display value taken verbatim from the parser response.
// JSON strings are unquoted, numbers and booleans keep their literal text,
// null becomes empty.
type Scalar string

// UnmarshalJSON accepts any JSON scalar.
func (s *Scalar) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}

	switch b[0] {
	case '"':
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*s = Scalar(str)
	case '{', '[':
		return fmt.Errorf("scalar: expected string, number or boolean, got %q", b[:1])
	default:
		*s = Scalar(b)
	}
	return nil
}

// String returns the display text.
func (s Scalar) String() string {
	return string(s)
}

// Row is one parsed invoice line. Fields are display values with no
// normalization applied.
type Row struct {
	InvoiceNumber Scalar `json:"invoiceNumber"`
	Date          Scalar `json:"date"`
	TotalAmount   Scalar `json:"totalAmount"`
}

// PreviewRef is an opaque handle to a preview held in a PreviewStore.
// The empty value means no preview.
type PreviewRef string

// State is the complete workflow state for one session.
type State struct {
	// File is the current selection, nil when nothing is selected.
	File *File

	// Preview is set only while File is an accepted image.
	Preview PreviewRef

	// Rows holds the most recent successful parse in response order.
	Rows []Row

	// Err is the message shown in the error banner, nil when none.
	Err *Error

	// InFlight is true between Begin and the submission outcome.
	InFlight bool

	// Selection counts selection changes so a late submission outcome
	// can tell whether the file it sent is still the current one.
	Selection uint64
}

// ErrorText returns the banner message, or "" when there is no error.
func (s State) ErrorText() string {
	if s.Err == nil {
		return ""
	}
	return s.Err.Message
}

// HasFile reports whether a file is selected.
func (s State) HasFile() bool {
	return s.File != nil
}

// Consistent reports whether the preview invariant holds: a preview exists
// only for a selected image.
func (s State) Consistent() bool {
	if s.Preview == "" {
		return true
	}
	return s.File != nil && IsImage(s.File.MediaType)
}

// clone returns a copy whose Rows slice is not shared with s.
func (s State) clone() State {
	if s.Rows != nil {
		s.Rows = append([]Row(nil), s.Rows...)
	}
	return s
}
