package templates

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/JonMunkholm/docparse/internal/core"
)

func render(t *testing.T, p PageParams) string {
	t.Helper()
	var buf bytes.Buffer
	if err := Page(p).Render(context.Background(), &buf); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	return buf.String()
}

func TestPage_Visibility(t *testing.T) {
	tests := []struct {
		name    string
		params  PageParams
		want    []string
		notWant []string
	}{
		{
			name:    "idle",
			params:  PageParams{},
			want:    []string{`type="file"`, `action="/select"`},
			notWant: []string{"Parse Document", "<img", "<table", "Export to CSV", `role="alert"`},
		},
		{
			name:    "pdf selected",
			params:  PageParams{HasFile: true, FileName: "invoice.pdf"},
			want:    []string{"Parse Document", "Remove file", "invoice.pdf"},
			notWant: []string{"<img", "<table"},
		},
		{
			name:   "image selected",
			params: PageParams{HasFile: true, FileName: "scan.png", PreviewURL: "/preview/abc"},
			want:   []string{`<img src="/preview/abc"`, "Parse Document"},
		},
		{
			name:    "in flight",
			params:  PageParams{HasFile: true, FileName: "scan.png", InFlight: true},
			want:    []string{"disabled"},
			notWant: []string{"Parse Document"},
		},
		{
			name:   "results",
			params: PageParams{Rows: []core.Row{{InvoiceNumber: "INV-1", Date: "2024-01-01", TotalAmount: "100"}}},
			want: []string{
				"<th>Invoice Number</th><th>Date</th><th>Total Amount</th>",
				"<td>INV-1</td><td>2024-01-01</td><td>100</td>",
				`href="/export"`,
				"Export to CSV",
			},
			notWant: []string{"Parse Document"},
		},
		{
			name:   "error banner",
			params: PageParams{ErrorText: core.MsgInvalidType},
			want:   []string{`role="alert"`, core.MsgInvalidType},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := render(t, tt.params)
			for _, s := range tt.want {
				if !strings.Contains(out, s) {
					t.Errorf("output missing %q", s)
				}
			}
			for _, s := range tt.notWant {
				if strings.Contains(out, s) {
					t.Errorf("output unexpectedly contains %q", s)
				}
			}
		})
	}
}

func TestPage_EscapesValues(t *testing.T) {
	out := render(t, PageParams{
		HasFile:   true,
		FileName:  `<script>alert(1)</script>.pdf`,
		ErrorText: `<b>bad</b>`,
		Rows:      []core.Row{{InvoiceNumber: `"><img src=x>`}},
	})

	for _, raw := range []string{"<script>alert(1)", "<b>bad</b>", `"><img src=x>`} {
		if strings.Contains(out, raw) {
			t.Errorf("unescaped value %q in output", raw)
		}
	}
	if !strings.Contains(out, "&lt;script&gt;") {
		t.Error("file name not escaped")
	}
}

func TestNewPageParams(t *testing.T) {
	s := core.State{
		File:    &core.File{Name: "scan.jpg", MediaType: core.MediaJPEG},
		Preview: "ref-1",
		Err:     core.NewApplicationError("", nil),
	}
	p := NewPageParams(s, func(ref core.PreviewRef) string { return "/preview/" + string(ref) })

	if !p.HasFile || p.FileName != "scan.jpg" {
		t.Errorf("file = %v %q", p.HasFile, p.FileName)
	}
	if p.PreviewURL != "/preview/ref-1" {
		t.Errorf("PreviewURL = %q", p.PreviewURL)
	}
	if p.ErrorText != core.MsgParseFailed {
		t.Errorf("ErrorText = %q, want %q", p.ErrorText, core.MsgParseFailed)
	}

	empty := NewPageParams(core.State{}, nil)
	if empty.HasFile || empty.PreviewURL != "" || empty.ErrorText != "" {
		t.Errorf("empty state params = %+v", empty)
	}
}

func TestErrorPage(t *testing.T) {
	var buf bytes.Buffer
	if err := ErrorPage("Too many requests", "Wait", "RATE001").Render(context.Background(), &buf); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	out := buf.String()
	for _, s := range []string{"Too many requests", "Wait", "RATE001", `href="/"`} {
		if !strings.Contains(out, s) {
			t.Errorf("output missing %q", s)
		}
	}
}
