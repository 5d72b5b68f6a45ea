package web

import (
	"net/url"

	"github.com/JonMunkholm/docparse/internal/core"
)

// StateView is the JSON form of a session's workflow state.
type StateView struct {
	File     *FileView  `json:"file"`
	Preview  string     `json:"preview,omitempty"`
	Rows     []core.Row `json:"rows"`
	Error    *ErrorView `json:"error"`
	InFlight bool       `json:"inFlight"`
}

// FileView describes the selected file without its contents.
type FileView struct {
	Name      string `json:"name"`
	MediaType string `json:"mediaType"`
	Size      int64  `json:"size"`
}

// ErrorView is the banner error with its kind and support code.
type ErrorView struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func newStateView(s core.State) StateView {
	v := StateView{
		Preview:  previewURL(s.Preview),
		Rows:     s.Rows,
		InFlight: s.InFlight,
	}
	if v.Rows == nil {
		v.Rows = []core.Row{}
	}
	if s.File != nil {
		v.File = &FileView{Name: s.File.Name, MediaType: s.File.MediaType, Size: s.File.Size()}
	}
	if s.Err != nil {
		v.Error = &ErrorView{
			Kind:    s.Err.Kind.String(),
			Message: s.Err.Message,
			Code:    core.MapError(s.Err).Code,
		}
	}
	return v
}

// previewURL is where a preview handle is served, or "" for none.
func previewURL(ref core.PreviewRef) string {
	if ref == "" {
		return ""
	}
	return "/preview/" + url.PathEscape(string(ref))
}
