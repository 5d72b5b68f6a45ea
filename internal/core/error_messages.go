package core

// error_messages.go defines the workflow error taxonomy and the user-facing
// messages with codes for support reference.
//
// Error codes are grouped by category:
//
// # Validation Errors (VAL001-VAL099, FILE001-FILE099)
//
//	VAL001  - Invalid file type: declared media type is not on the allow-list
//	FILE001 - File too large: selection exceeds the configured size limit
//	FILE002 - No file: submit was called with nothing selected
//
// # Application Errors (APP001-APP099)
//
//	APP001 - Parse failed: the parser answered with success=false
//
// # Transport Errors (NET001-NET099)
//
//	NET001 - Processing failed: network failure, non-success status or malformed body
//	NET002 - Timeout: the parse request did not complete within PARSER_TIMEOUT
//
// # Upload Errors (UPL001-UPL099)
//
//	UPL001 - Submit in progress: a submission for this session is outstanding
//	UPL002 - Parser busy: no parse slot became free within PARSER_MAX_WAIT
//	UPL003 - Session expired: the session or preview no longer exists
//
// # Rate Limiting (RATE001)
//
//	RATE001 - Rate limited: too many requests
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: check application logs for the technical error

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Fixed banner messages.
const (
	MsgInvalidType     = "Invalid file type. Please upload an image or PDF."
	MsgParseFailed     = "Failed to parse the document."
	MsgProcessingError = "An error occurred while processing the document."
)

var (
	// ErrNoFile is returned by Begin when nothing is selected.
	ErrNoFile = errors.New("no file selected")

	// ErrSubmitInFlight is returned by Begin while a submission is outstanding.
	ErrSubmitInFlight = errors.New("submit already in progress")

	// ErrRejected is returned by a Parser when the service answered
	// success=false. It marks the soft-failure path.
	ErrRejected = errors.New("document rejected by parser")

	// ErrPreviewNotFound is returned for unknown or released preview handles.
	ErrPreviewNotFound = errors.New("preview not found")
)

// Kind classifies workflow errors.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindApplication
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindApplication:
		return "application"
	case KindTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// Error is a workflow failure. Message is what the banner shows; Err is
// the technical cause kept for logging.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewValidationError returns a validation error with the given message.
func NewValidationError(message string, cause error) *Error {
	return &Error{Kind: KindValidation, Message: message, Err: cause}
}

// NewApplicationError returns an application error. An empty message
// becomes MsgParseFailed.
func NewApplicationError(message string, cause error) *Error {
	if message == "" {
		message = MsgParseFailed
	}
	return &Error{Kind: KindApplication, Message: message, Err: cause}
}

// NewTransportError returns a transport error. An empty message becomes
// MsgProcessingError.
func NewTransportError(message string, cause error) *Error {
	if message == "" {
		message = MsgProcessingError
	}
	return &Error{Kind: KindTransport, Message: message, Err: cause}
}

// ErrFileTooLarge reports a selection over limit bytes.
func ErrFileTooLarge(limit int64) *Error {
	return NewValidationError(
		fmt.Sprintf("File is too large. Please upload a file under %s.", formatBytes(limit)),
		fmt.Errorf("file too large: limit %d bytes", limit),
	)
}

// CheckMediaType returns a validation error when mediaType is not allowed.
func CheckMediaType(mediaType string) *Error {
	if IsAllowed(mediaType) {
		return nil
	}
	return NewValidationError(MsgInvalidType, fmt.Errorf("invalid file type %q", mediaType))
}

// Classify converts any submission error into a workflow Error.
// ErrRejected becomes an application error; anything not already an
// *Error is treated as a transport failure.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var werr *Error
	if errors.As(err, &werr) {
		return werr
	}
	if errors.Is(err, ErrRejected) {
		return NewApplicationError(MsgParseFailed, err)
	}
	if errors.Is(err, ErrParserBusy) {
		return NewTransportError("The document parser is busy. Please try again in a moment.", err)
	}
	return NewTransportError("", err)
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20 && n%(1<<20) == 0:
		return fmt.Sprintf("%d MB", n>>20)
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%d KB", n>>10)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// sentinelMessages maps known errors, checked with errors.Is, to messages.
// Order matters: the first match wins.
var sentinelMessages = []struct {
	target error
	msg    UserMessage
}{
	{ErrNoFile, UserMessage{"No file selected", "Please choose an image or PDF first", "FILE002"}},
	{ErrSubmitInFlight, UserMessage{"A document is already being parsed", "Wait for the current request to finish", "UPL001"}},
	{ErrParserBusy, UserMessage{"The document parser is busy", "Please try again in a moment", "UPL002"}},
	{ErrPreviewNotFound, UserMessage{"Preview is no longer available", "Select the file again", "UPL003"}},
	{ErrRejected, UserMessage{MsgParseFailed, "Check that the document is legible and try again", "APP001"}},
	{context.DeadlineExceeded, UserMessage{"The document parser did not respond in time", "Try again or upload a smaller file", "NET002"}},
}

// errorPatterns maps technical error text (case-insensitive) to messages
// for errors that carry no sentinel.
var errorPatterns = []struct {
	pattern string
	msg     UserMessage
}{
	{"file too large", UserMessage{"File exceeds the maximum size limit", "Upload a smaller file", "FILE001"}},
	{"request body too large", UserMessage{"File exceeds the maximum size limit", "Upload a smaller file", "FILE001"}},
	{"no file provided", UserMessage{"No file selected", "Please choose an image or PDF first", "FILE002"}},
	{"session not found", UserMessage{"Your session has expired", "Reload the page and select the file again", "UPL003"}},
	{"rate limit", UserMessage{"Too many requests", "Please wait a moment before trying again", "RATE001"}},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts an error to a user-friendly message.
// Workflow errors keep their banner text; sentinels and known patterns map
// to fixed messages; anything else yields ERR000.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.target) {
			return sm.msg
		}
	}

	var werr *Error
	if errors.As(err, &werr) {
		switch werr.Kind {
		case KindValidation:
			code := "VAL001"
			if strings.Contains(strings.ToLower(errString(werr.Err)), "file too large") {
				code = "FILE001"
			}
			return UserMessage{Message: werr.Message, Action: "Upload a JPEG, PNG or PDF file", Code: code}
		case KindApplication:
			return UserMessage{Message: werr.Message, Action: "Check that the document is legible and try again", Code: "APP001"}
		case KindTransport:
			return UserMessage{Message: werr.Message, Action: "Please try again", Code: "NET001"}
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
