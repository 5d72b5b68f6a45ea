package core

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// stubParser returns a fixed outcome and records what it received.
type stubParser struct {
	mu    sync.Mutex
	rows  []Row
	err   error
	calls []File
	gate  chan struct{}
}

func (p *stubParser) Parse(ctx context.Context, f File) ([]Row, error) {
	p.mu.Lock()
	p.calls = append(p.calls, f)
	gate := p.gate
	p.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return p.rows, p.err
}

func (p *stubParser) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func TestWorkflow_PNGSelectAndSubmit(t *testing.T) {
	ctx := context.Background()
	rows := []Row{{InvoiceNumber: "INV-1", Date: "2024-01-01", TotalAmount: "100"}}
	parser := &stubParser{rows: rows}
	previews := NewPreviewStore()
	wf := NewWorkflow(parser, previews)

	state := wf.SelectFile(ctx, pngFile())
	if state.Preview == "" {
		t.Fatal("Preview empty after PNG selection")
	}
	if state.ErrorText() != "" {
		t.Errorf("ErrorText() = %q, want empty", state.ErrorText())
	}
	if previews.Len() != 1 {
		t.Errorf("previews.Len() = %d, want 1", previews.Len())
	}

	state, err := wf.Submit(ctx)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if len(state.Rows) != 1 || state.Rows[0] != rows[0] {
		t.Errorf("Rows = %+v, want %+v", state.Rows, rows)
	}
	if state.File != nil || state.Preview != "" {
		t.Errorf("selection not cleared: File=%v Preview=%q", state.File, state.Preview)
	}
	if previews.Len() != 0 {
		t.Errorf("preview not released after success: Len() = %d", previews.Len())
	}
	if got := parser.calls[0]; got.Name != "scan.png" || got.MediaType != MediaPNG {
		t.Errorf("parser received %+v", got)
	}
}

func TestWorkflow_TextFileRejected(t *testing.T) {
	wf := NewWorkflow(&stubParser{}, NewPreviewStore())

	state := wf.SelectFile(context.Background(), File{Name: "notes.txt", MediaType: "text/plain"})

	if state.ErrorText() != "Invalid file type. Please upload an image or PDF." {
		t.Errorf("ErrorText() = %q", state.ErrorText())
	}
	if state.File != nil {
		t.Errorf("File = %+v, want nil", state.File)
	}
}

func TestWorkflow_ReleasesSupersededPreview(t *testing.T) {
	ctx := context.Background()
	previews := NewPreviewStore()
	wf := NewWorkflow(&stubParser{}, previews)

	first := wf.SelectFile(ctx, pngFile())
	second := wf.SelectFile(ctx, File{Name: "b.jpg", MediaType: MediaJPEG, Data: []byte("jpg")})

	if _, err := previews.Open(first.Preview); !errors.Is(err, ErrPreviewNotFound) {
		t.Errorf("first preview still open, err = %v", err)
	}
	if _, err := previews.Open(second.Preview); err != nil {
		t.Errorf("second preview not open: %v", err)
	}

	wf.SelectFile(ctx, pdfFile())
	if previews.Len() != 0 {
		t.Errorf("preview kept after PDF selection: Len() = %d", previews.Len())
	}

	wf.SelectFile(ctx, pngFile())
	wf.SelectFile(ctx, File{Name: "bad.gif", MediaType: "image/gif"})
	if previews.Len() != 0 {
		t.Errorf("preview kept after refused selection: Len() = %d", previews.Len())
	}
}

func TestWorkflow_SoftFailureKeepsState(t *testing.T) {
	ctx := context.Background()
	parser := &stubParser{rows: []Row{{InvoiceNumber: "FIRST"}}}
	previews := NewPreviewStore()
	wf := NewWorkflow(parser, previews)

	wf.SelectFile(ctx, pdfFile())
	if _, err := wf.Submit(ctx); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	selected := wf.SelectFile(ctx, pngFile())
	parser.err = ErrRejected
	state, err := wf.Submit(ctx)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if state.ErrorText() != MsgParseFailed {
		t.Errorf("ErrorText() = %q, want %q", state.ErrorText(), MsgParseFailed)
	}
	if state.File == nil || state.Preview != selected.Preview {
		t.Errorf("selection changed on soft failure: File=%v Preview=%q", state.File, state.Preview)
	}
	if len(state.Rows) != 1 || state.Rows[0].InvoiceNumber != "FIRST" {
		t.Errorf("Rows = %+v, want previous rows kept", state.Rows)
	}
	if previews.Len() != 1 {
		t.Errorf("previews.Len() = %d, want 1", previews.Len())
	}
}

func TestWorkflow_HardFailureMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"server message", NewTransportError("X", errors.New("status 400")), "X"},
		{"network error", errors.New("dial tcp: connection refused"), MsgProcessingError},
		{"timeout", context.DeadlineExceeded, MsgProcessingError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			wf := NewWorkflow(&stubParser{err: tt.err}, NewPreviewStore())
			wf.SelectFile(ctx, pdfFile())

			state, err := wf.Submit(ctx)
			if err != nil {
				t.Fatalf("Submit() error = %v", err)
			}
			if state.ErrorText() != tt.want {
				t.Errorf("ErrorText() = %q, want %q", state.ErrorText(), tt.want)
			}
			if state.Err.Kind != KindTransport {
				t.Errorf("Err.Kind = %v, want %v", state.Err.Kind, KindTransport)
			}
			if state.File == nil {
				t.Error("File cleared on hard failure")
			}
		})
	}
}

func TestWorkflow_SubmitWithoutFile(t *testing.T) {
	parser := &stubParser{}
	wf := NewWorkflow(parser, nil)

	_, err := wf.Submit(context.Background())
	if !errors.Is(err, ErrNoFile) {
		t.Errorf("Submit() error = %v, want ErrNoFile", err)
	}
	if parser.callCount() != 0 {
		t.Errorf("parser called %d times, want 0", parser.callCount())
	}
}

func TestWorkflow_RejectsConcurrentSubmit(t *testing.T) {
	ctx := context.Background()
	parser := &stubParser{rows: []Row{{InvoiceNumber: "INV-1"}}, gate: make(chan struct{})}
	wf := NewWorkflow(parser, nil)
	wf.SelectFile(ctx, pdfFile())

	done := make(chan State, 1)
	go func() {
		state, _ := wf.Submit(ctx)
		done <- state
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !wf.Snapshot().InFlight {
		if time.Now().After(deadline) {
			t.Fatal("first submission never went in flight")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := wf.Submit(ctx); !errors.Is(err, ErrSubmitInFlight) {
		t.Errorf("second Submit() error = %v, want ErrSubmitInFlight", err)
	}

	close(parser.gate)
	state := <-done
	if len(state.Rows) != 1 {
		t.Errorf("Rows = %+v, want one row", state.Rows)
	}
	if parser.callCount() != 1 {
		t.Errorf("parser called %d times, want 1", parser.callCount())
	}
	if wf.Snapshot().InFlight {
		t.Error("InFlight still set after completion")
	}
}

func TestWorkflow_MaxFileSize(t *testing.T) {
	previews := NewPreviewStore()
	wf := NewWorkflow(&stubParser{}, previews, WithMaxFileSize(2))

	state := wf.SelectFile(context.Background(), pngFile())

	if state.File != nil {
		t.Error("oversized file accepted")
	}
	if !strings.Contains(state.ErrorText(), "too large") {
		t.Errorf("ErrorText() = %q, want size message", state.ErrorText())
	}
	if previews.Len() != 0 {
		t.Errorf("preview issued for oversized file: Len() = %d", previews.Len())
	}
}

func TestWorkflow_LimiterBusy(t *testing.T) {
	ctx := context.Background()
	limiter := NewParseLimiter(1, 20*time.Millisecond)
	if !limiter.TryAcquire() {
		t.Fatal("TryAcquire failed")
	}
	defer limiter.Release()

	parser := &stubParser{}
	wf := NewWorkflow(parser, nil, WithLimiter(limiter))
	wf.SelectFile(ctx, pdfFile())

	state, err := wf.Submit(ctx)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if !errors.Is(state.Err, ErrParserBusy) {
		t.Errorf("Err = %v, want ErrParserBusy", state.Err)
	}
	if state.File == nil {
		t.Error("File cleared when parser was busy")
	}
	if parser.callCount() != 0 {
		t.Errorf("parser called %d times, want 0", parser.callCount())
	}
}

func TestWorkflow_ExportCSV(t *testing.T) {
	ctx := context.Background()
	wf := NewWorkflow(&stubParser{rows: []Row{
		{InvoiceNumber: "INV-1", Date: "2024-01-01", TotalAmount: "100"},
		{InvoiceNumber: "INV-2", Date: "2024-01-02", TotalAmount: "7.5"},
	}}, nil)
	wf.SelectFile(ctx, pdfFile())
	if _, err := wf.Submit(ctx); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	var buf bytes.Buffer
	if err := wf.ExportCSV(&buf); err != nil {
		t.Fatalf("ExportCSV() error = %v", err)
	}

	want := "invoiceNumber,date,totalAmount\nINV-1,2024-01-01,100\nINV-2,2024-01-02,7.5\n"
	if buf.String() != want {
		t.Errorf("ExportCSV() = %q, want %q", buf.String(), want)
	}
}

func TestWorkflow_TouchUpdatesLastUsed(t *testing.T) {
	wf := NewWorkflow(&stubParser{}, nil)
	before := wf.LastUsed()

	time.Sleep(5 * time.Millisecond)
	wf.Snapshot()
	if !wf.LastUsed().Equal(before) {
		t.Error("Snapshot() changed LastUsed")
	}

	wf.Touch()
	if !wf.LastUsed().After(before) {
		t.Errorf("LastUsed() = %v, want after %v", wf.LastUsed(), before)
	}
}

func TestWorkflow_Close(t *testing.T) {
	ctx := context.Background()
	previews := NewPreviewStore()
	wf := NewWorkflow(&stubParser{}, previews)

	wf.SelectFile(ctx, pngFile())
	wf.Close()

	if previews.Len() != 0 {
		t.Errorf("preview not released on Close: Len() = %d", previews.Len())
	}

	state := wf.SelectFile(ctx, pngFile())
	if state.File != nil {
		t.Error("selection accepted after Close")
	}
	if previews.Len() != 0 {
		t.Errorf("preview leaked after Close: Len() = %d", previews.Len())
	}
	if _, err := wf.Submit(ctx); err == nil {
		t.Error("Submit() after Close returned nil error")
	}

	wf.Close()
}

func TestContextWithWorkflow(t *testing.T) {
	wf := NewWorkflow(nil, nil)
	ctx := ContextWithWorkflow(context.Background(), wf)

	got, ok := WorkflowFromContext(ctx)
	if !ok || got != wf {
		t.Errorf("WorkflowFromContext() = %p, %v; want %p, true", got, ok, wf)
	}
	if _, ok := WorkflowFromContext(context.Background()); ok {
		t.Error("WorkflowFromContext(empty) ok = true")
	}
}
