package web

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/docparse/internal/core"
	"github.com/JonMunkholm/docparse/internal/logging"
	"github.com/JonMunkholm/docparse/internal/parser"
	"github.com/JonMunkholm/docparse/internal/web/templates"
)

// multipartOverhead is allowed on top of the file size limit for the
// form's boundaries and part headers.
const multipartOverhead = 64 << 10

var errNoSession = errors.New("session not found")

// workflow returns the session's workflow attached by the session middleware.
func workflow(r *http.Request) (*core.Workflow, error) {
	wf, ok := core.WorkflowFromContext(r.Context())
	if !ok {
		return nil, errNoSession
	}
	return wf, nil
}

// respondState answers a state-changing request: JSON callers get the new
// state, form posts are redirected back to the page.
func respondState(w http.ResponseWriter, r *http.Request, s core.State) {
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, newStateView(s))
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleIndex renders the upload page for the session.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	wf, err := workflow(r)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	params := templates.NewPageParams(wf.Snapshot(), previewURL)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := templates.Page(params).Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render page", "error", err)
	}
}

// handleSelect reads the multipart "file" field and applies it as the
// session's selection. Uploads over the size limit are refused into the
// banner like any other rejected selection.
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	wf, err := workflow(r)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	if err := r.ParseMultipartForm(maxSize + multipartOverhead); err != nil {
		if isTooLarge(err) {
			respondState(w, r, wf.RefuseFile(r.Context(), core.ErrFileTooLarge(maxSize)))
			return
		}
		respondError(w, r, fmt.Errorf("invalid upload form: %w", err), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	// An empty file input is a no-op, the current selection stays as is.
	file, header, err := r.FormFile(parser.FieldName)
	if errors.Is(err, http.ErrMissingFile) {
		respondState(w, r, wf.Snapshot())
		return
	}
	if err != nil {
		respondError(w, r, fmt.Errorf("no file provided: %w", err), http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, r, fmt.Errorf("read upload: %w", err), http.StatusBadRequest)
		return
	}

	state := wf.SelectFile(r.Context(), core.File{
		Name:      core.CleanFileName(header.Filename),
		MediaType: header.Header.Get("Content-Type"),
		Data:      data,
	})
	respondState(w, r, state)
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return true
	}
	return strings.Contains(err.Error(), "request body too large")
}

// handleSubmit posts the selected file to the parser and waits for the
// outcome. The parse is not cancelled if the browser navigates away; the
// parser timeout bounds it instead, and the result is shown on next load.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	wf, err := workflow(r)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	state, err := wf.Submit(context.WithoutCancel(r.Context()))
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	respondState(w, r, state)
}

// handleClear removes the selected file.
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	wf, err := workflow(r)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	respondState(w, r, wf.ClearSelection(r.Context()))
}

// handleExport downloads the current rows as CSV.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	wf, err := workflow(r)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	var buf bytes.Buffer
	if err := wf.ExportCSV(&buf); err != nil {
		respondError(w, r, fmt.Errorf("export rows: %w", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, core.ExportFilename))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Write(buf.Bytes())
}

// handlePreview serves the session's current preview image. Handles held
// by other sessions are not served.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	wf, err := workflow(r)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	ref := core.PreviewRef(chi.URLParam(r, "ref"))
	if ref == "" || wf.Snapshot().Preview != ref {
		respondError(w, r, core.ErrPreviewNotFound, http.StatusNotFound)
		return
	}

	pv, err := s.previews.Open(ref)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	w.Header().Set("Content-Type", pv.MediaType)
	w.Header().Set("Cache-Control", "private, no-store")
	w.Header().Set("Content-Length", strconv.Itoa(len(pv.Data)))
	w.Write(pv.Data)
}

// handleState returns the session's state as JSON.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	wf, err := workflow(r)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, newStateView(wf.Snapshot()))
}

// HealthResponse reports process-wide counters.
type HealthResponse struct {
	Status   string                  `json:"status"`
	Sessions int                     `json:"sessions"`
	Previews int                     `json:"previews"`
	Parser   core.ParseLimiterStatus `json:"parser"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:   "ok",
		Sessions: s.sessions.Len(),
		Previews: s.previews.Len(),
	}
	if s.limiter != nil {
		resp.Parser = s.limiter.Status()
	}
	writeJSON(w, http.StatusOK, resp)
}
