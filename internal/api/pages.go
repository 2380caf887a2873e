package api

import (
	"bytes"
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/kalambet/sprout/internal/docstore"
	"github.com/kalambet/sprout/internal/filestore"
	"github.com/kalambet/sprout/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// page is the data every template renders from.
type page struct {
	Title    string
	User     string
	Fullname string
	Flash    *session.Flash
	Message  string
	Query    string
	Answer   string
	History  []docstore.HistoryEntry
	Files    []filestore.File
	// UploadNeedsToken hides the browser upload form; uploads then go
	// through `sprout files upload`.
	UploadNeedsToken bool
}

// renderPage executes the named template and writes it with code. The
// pending flash message, if any, is consumed.
func renderPage(w http.ResponseWriter, r *http.Request, code int, name string, p page) {
	if f, ok := session.PopFlash(w, r); ok {
		p.Flash = &f
	}
	var buf bytes.Buffer
	if err := pageTemplates.ExecuteTemplate(&buf, name, p); err != nil {
		slog.Error("rendering page", "page", name, "error", err)
		httpError(w, http.StatusInternalServerError, "server_error", "failed to render page")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	buf.WriteTo(w)
}
