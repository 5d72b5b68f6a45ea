// Package templates renders the upload page as templ components.
//
// Markup lives in page.templ; page_templ.go is generated from it by running
// templ generate at the module root.
package templates

import "github.com/JonMunkholm/docparse/internal/core"

// PageParams is everything the page shows for one session.
type PageParams struct {
	FileName   string
	HasFile    bool
	InFlight   bool
	PreviewURL string
	Rows       []core.Row
	ErrorText  string
}

// NewPageParams builds the page view of a workflow state. previewURL maps
// a handle to the URL that serves it.
func NewPageParams(s core.State, previewURL func(core.PreviewRef) string) PageParams {
	p := PageParams{
		HasFile:   s.HasFile(),
		InFlight:  s.InFlight,
		Rows:      s.Rows,
		ErrorText: s.ErrorText(),
	}
	if s.File != nil {
		p.FileName = s.File.Name
	}
	if s.Preview != "" && previewURL != nil {
		p.PreviewURL = previewURL(s.Preview)
	}
	return p
}
