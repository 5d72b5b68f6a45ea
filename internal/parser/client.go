// Package parser is the HTTP client for the remote document parsing service.
//
// A document is posted as multipart/form-data with a single "file" part.
// The service answers {"success": bool, "parsedData": [...]} on success and
// {"message": "..."} alongside a non-2xx status on failure. The client maps
// these onto the core error taxonomy:
//
//   - 2xx, success=true: rows returned
//   - 2xx, success=false: core.ErrRejected (soft failure)
//   - non-2xx: transport error carrying the body's message, if any
//   - network failure, timeout, malformed body: transport error with the
//     generic message
package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/JonMunkholm/docparse/internal/core"
	"github.com/JonMunkholm/docparse/internal/logging"
)

// FieldName is the multipart field carrying the document.
const FieldName = "file"

// DefaultTimeout bounds a parse request when none is configured.
const DefaultTimeout = 30 * time.Second

// maxResponseSize caps how much of a response body is read.
const maxResponseSize = 1 << 20

// Client posts documents to a parse endpoint.
type Client struct {
	endpoint string
	timeout  time.Duration
	http     *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// New creates a client for endpoint, an absolute URL.
func New(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint: endpoint,
		timeout:  DefaultTimeout,
		http:     &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the URL documents are posted to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// response is the service's JSON body.
type response struct {
	Success    bool       `json:"success"`
	ParsedData []core.Row `json:"parsedData"`
	Message    *string    `json:"message"`
}

// Parse posts f and returns the parsed rows. It implements core.Parser.
func (c *Client) Parse(ctx context.Context, f core.File) ([]core.Row, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, contentType, err := encodeMultipart(f)
	if err != nil {
		return nil, core.NewTransportError("", fmt.Errorf("encode request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return nil, core.NewTransportError("", fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	logger := logging.WithFields(ctx, "endpoint", c.endpoint, "name", f.Name, "size", f.Size())
	logger.Debug("posting document")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, core.NewTransportError("", fmt.Errorf("parse request timed out after %s: %w", c.timeout, context.DeadlineExceeded))
		}
		return nil, core.NewTransportError("", fmt.Errorf("post document: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, core.NewTransportError("", fmt.Errorf("read response timed out after %s: %w", c.timeout, context.DeadlineExceeded))
		}
		return nil, core.NewTransportError("", fmt.Errorf("read response: %w", err))
	}

	logger.Debug("parse response", "status", resp.StatusCode, "bytes", len(raw))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, core.NewTransportError(errorMessage(raw), fmt.Errorf("parser returned status %d", resp.StatusCode))
	}

	if err := validateBody(raw); err != nil {
		return nil, core.NewTransportError("", err)
	}

	var out response
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, core.NewTransportError("", fmt.Errorf("decode response: %w", err))
	}
	if !out.Success {
		if out.Message != nil && *out.Message != "" {
			return nil, fmt.Errorf("%w: %s", core.ErrRejected, *out.Message)
		}
		return nil, core.ErrRejected
	}
	if out.ParsedData == nil {
		out.ParsedData = []core.Row{}
	}
	return out.ParsedData, nil
}

// errorMessage extracts "message" from an error body verbatim, or "" when
// the body is not JSON or the message is missing or blank.
func errorMessage(raw []byte) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	if strings.TrimSpace(body.Message) == "" {
		return ""
	}
	return body.Message
}

// encodeMultipart builds the request body with one "file" part whose
// Content-Type is the declared media type.
func encodeMultipart(f core.File) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	name := f.Name
	if name == "" {
		name = "upload"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, FieldName, escapeQuotes(name)))
	if f.MediaType != "" {
		h.Set("Content-Type", f.MediaType)
	} else {
		h.Set("Content-Type", "application/octet-stream")
	}

	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(f.Data); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
