package core

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/JonMunkholm/docparse/internal/logging"
)

// Parser sends a document to the parsing service. It returns the parsed
// rows, ErrRejected when the service answered success=false, or any other
// error for transport failures.
type Parser interface {
	Parse(ctx context.Context, f File) ([]Row, error)
}

// ParserFunc adapts a function to the Parser interface.
type ParserFunc func(ctx context.Context, f File) ([]Row, error)

// Parse calls fn.
func (fn ParserFunc) Parse(ctx context.Context, f File) ([]Row, error) {
	return fn(ctx, f)
}

// Workflow is the upload controller for one session.
type Workflow struct {
	parser   Parser
	previews *PreviewStore
	limiter  *ParseLimiter
	maxSize  int64

	mu       sync.Mutex
	state    State
	closed   bool
	lastUsed time.Time
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithLimiter shares a process-wide parse limiter.
func WithLimiter(l *ParseLimiter) Option {
	return func(w *Workflow) { w.limiter = l }
}

// WithMaxFileSize refuses selections larger than n bytes.
func WithMaxFileSize(n int64) Option {
	return func(w *Workflow) { w.maxSize = n }
}

// NewWorkflow creates an idle workflow. previews may be nil, in which case
// image selections carry no preview handle.
func NewWorkflow(parser Parser, previews *PreviewStore, opts ...Option) *Workflow {
	w := &Workflow{
		parser:   parser,
		previews: previews,
		lastUsed: time.Now(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Snapshot returns a copy of the current state.
func (w *Workflow) Snapshot() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state.clone()
}

// Touch marks the workflow as used now. Reads go through Snapshot, which
// does not count as use, so callers serving a session's requests touch it.
func (w *Workflow) Touch() {
	w.mu.Lock()
	w.lastUsed = time.Now()
	w.mu.Unlock()
}

// LastUsed returns when the workflow last handled an operation.
func (w *Workflow) LastUsed() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastUsed
}

// SelectFile applies a user selection and returns the resulting state.
// An accepted image gets a fresh preview handle; the handle it replaces,
// if any, is released.
func (w *Workflow) SelectFile(ctx context.Context, f File) State {
	logger := logging.FromContext(ctx)

	if w.maxSize > 0 && f.Size() > w.maxSize {
		logger.Debug("file rejected", "name", f.Name, "size", f.Size(), "limit", w.maxSize)
		return w.RefuseFile(ctx, ErrFileTooLarge(w.maxSize))
	}

	var ref PreviewRef
	if w.previews != nil && IsAllowed(f.MediaType) && IsImage(f.MediaType) {
		ref = w.previews.Issue(f)
	}

	next, dropped, ok := w.apply(func(s State) State { return Select(s, f, ref) })
	if !ok {
		w.release(ref)
		return next
	}
	w.release(dropped)

	if next.File == nil {
		logger.Debug("file rejected", "name", f.Name, "media_type", f.MediaType)
	} else {
		logger.Debug("file selected",
			"name", f.Name,
			"media_type", f.MediaType,
			"size", f.Size(),
			"preview", next.Preview != "",
		)
	}
	return next
}

// RefuseFile rejects a selection that could not be read, such as an
// oversized upload, with err as the banner message.
func (w *Workflow) RefuseFile(ctx context.Context, err *Error) State {
	next, dropped, _ := w.apply(func(s State) State { return Refuse(s, err) })
	w.release(dropped)
	logging.FromContext(ctx).Debug("file refused", "error", err)
	return next
}

// ClearSelection drops the current file and preview.
func (w *Workflow) ClearSelection(ctx context.Context) State {
	next, dropped, _ := w.apply(Clear)
	w.release(dropped)
	logging.FromContext(ctx).Debug("selection cleared")
	return next
}

// Submit posts the selected file to the parser and applies the outcome.
//
// The returned error is non-nil only when no request was made: ErrNoFile,
// ErrSubmitInFlight, or an error for a closed workflow. Parse outcomes,
// including failures, are reported through the returned state.
func (w *Workflow) Submit(ctx context.Context) (State, error) {
	logger := logging.FromContext(ctx)

	w.mu.Lock()
	if w.closed {
		snap := w.state.clone()
		w.mu.Unlock()
		return snap, errWorkflowClosed
	}
	begun, err := Begin(w.state)
	if err != nil {
		snap := w.state.clone()
		w.mu.Unlock()
		return snap, err
	}
	w.state = begun
	w.lastUsed = time.Now()
	file := *begun.File
	selection := begun.Selection
	w.mu.Unlock()

	start := time.Now()
	rows, err := w.parse(ctx, file)
	elapsed := time.Since(start)

	var transition func(State) State
	switch {
	case err == nil:
		transition = func(s State) State { return Succeed(s, selection, rows) }
		logger.Info("parse succeeded", "name", file.Name, "rows", len(rows), "duration_ms", elapsed.Milliseconds())
	case errors.Is(err, ErrRejected):
		transition = Reject
		logger.Info("parse rejected", "name", file.Name, "duration_ms", elapsed.Milliseconds())
	default:
		werr := Classify(err)
		transition = func(s State) State { return Fail(s, werr) }
		logger.Warn("parse failed",
			"name", file.Name,
			"kind", werr.Kind.String(),
			"error", err,
			"duration_ms", elapsed.Milliseconds(),
		)
	}

	next, dropped := w.applyAlways(transition)
	w.release(dropped)
	return next, nil
}

// ExportCSV writes the current rows as CSV.
func (w *Workflow) ExportCSV(out io.Writer) error {
	return WriteCSV(out, w.Snapshot().Rows)
}

// Close ends the workflow and releases its preview handle. Later
// selections are ignored and submissions fail.
func (w *Workflow) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	dropped := w.state.Preview
	w.state = Clear(w.state)
	w.mu.Unlock()

	w.release(dropped)
}

var errWorkflowClosed = errors.New("session not found: workflow closed")

func (w *Workflow) parse(ctx context.Context, f File) ([]Row, error) {
	if w.parser == nil {
		return nil, NewTransportError("", errors.New("no parser configured"))
	}
	if w.limiter != nil {
		if err := w.limiter.Acquire(ctx); err != nil {
			return nil, err
		}
		defer w.limiter.Release()
	}
	return w.parser.Parse(ctx, f)
}

// apply runs fn on the current state unless the workflow is closed. It
// returns the new state and the preview handle fn dropped, if any.
func (w *Workflow) apply(fn func(State) State) (State, PreviewRef, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return w.state.clone(), "", false
	}
	next, dropped := w.transition(fn)
	return next, dropped, true
}

// applyAlways runs fn even on a closed workflow so an outstanding
// submission still clears InFlight.
func (w *Workflow) applyAlways(fn func(State) State) (State, PreviewRef) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.transition(fn)
}

func (w *Workflow) transition(fn func(State) State) (State, PreviewRef) {
	prev := w.state
	w.state = fn(prev)
	w.lastUsed = time.Now()

	var dropped PreviewRef
	if prev.Preview != "" && prev.Preview != w.state.Preview {
		dropped = prev.Preview
	}
	return w.state.clone(), dropped
}

func (w *Workflow) release(ref PreviewRef) {
	if ref != "" && w.previews != nil {
		w.previews.Release(ref)
	}
}
