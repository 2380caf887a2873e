package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/sprout/internal/filestore"
)

const (
	maxJSONBodySize       = 1 << 20   // 1MB
	DefaultMaxUploadBytes = 500 << 20 // 500MB
	multipartMemory       = 32 << 20
)

type FilesDeps struct {
	Store          *filestore.Store
	Token          string // optional; guards the JSON API when set
	MaxUploadBytes int64
	Logger         *slog.Logger
}

type DeleteRequest struct {
	Files []filestore.Ref `json:"files"`
}

type RenameRequest struct {
	OldName string `json:"old_name"`
	NewName string `json:"new_name"`
	Sub     string `json:"sub"`
}

// StatusResponse is the envelope the JSON file routes answer with.
type StatusResponse struct {
	Status  string           `json:"status"`
	Msg     string           `json:"msg,omitempty"`
	Deleted *int             `json:"deleted,omitempty"`
	NewSub  string           `json:"new_sub,omitempty"`
	NewName string           `json:"new_name,omitempty"`
	Files   []filestore.File `json:"files,omitempty"`
}

// NewFilesHandler returns the file storage service's routes.
func NewFilesHandler(deps FilesDeps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = DefaultMaxUploadBytes
	}
	r := chi.NewRouter()
	useCommonMiddleware(r, deps.Logger)

	r.Get("/health", handleHealth)
	r.Get("/", handleFilesIndex(deps))
	r.Get("/storage/{sub}/{name}", handleStorageFile(deps))
	r.Get("/preview/{sub}/{name}", handlePreview(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Get("/api/files", handleListFiles(deps))
		r.Post("/upload", handleUpload(deps))
		r.Post("/delete", handleDeleteFiles(deps))
		r.Post("/rename", handleRenameFile(deps))
	})

	return r
}

func handleFilesIndex(deps FilesDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		files, err := deps.Store.List(r.Context())
		if err != nil {
			deps.Logger.Error("listing files", "error", err)
			renderPage(w, r, http.StatusInternalServerError, "error.html", page{Title: "Error", Message: "Could not list stored files."})
			return
		}
		renderPage(w, r, http.StatusOK, "files.html", page{Title: "Files", Files: files, UploadNeedsToken: deps.Token != ""})
	}
}

func handleListFiles(deps FilesDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		files, err := deps.Store.List(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "server_error", "listing files: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"files": files})
	}
}

func handleStorageFile(deps FilesDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fh, f, err := deps.Store.Open(chi.URLParam(r, "sub"), chi.URLParam(r, "name"))
		if err != nil {
			if errors.Is(err, filestore.ErrNotFound) || errors.Is(err, filestore.ErrInvalidName) {
				httpError(w, http.StatusNotFound, "not_found", "file not found")
				return
			}
			httpError(w, http.StatusInternalServerError, "server_error", "opening file: %v", err)
			return
		}
		defer fh.Close()
		http.ServeContent(w, r, f.Name, f.ModTime, fh)
	}
}

func handlePreview(deps FilesDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := deps.Store.Preview(r.Context(), chi.URLParam(r, "sub"), chi.URLParam(r, "name"))
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, p)
		case errors.Is(err, filestore.ErrNotFound), errors.Is(err, filestore.ErrInvalidName):
			httpError(w, http.StatusNotFound, "not_found", "file not found")
		case errors.Is(err, filestore.ErrNoPreview):
			httpError(w, http.StatusUnsupportedMediaType, "unsupported_type", "%v", err)
		default:
			httpError(w, http.StatusInternalServerError, "server_error", "preview failed: %v", err)
		}
	}
}

// handleUpload stores every "file" part and redirects back to the listing.
// Clients asking for JSON get the stored files instead.
func handleUpload(deps FilesDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, deps.MaxUploadBytes)
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				httpError(w, http.StatusRequestEntityTooLarge, "invalid_request_error", "upload exceeds %d bytes", deps.MaxUploadBytes)
				return
			}
			if !errors.Is(err, http.ErrNotMultipart) {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid multipart body: %v", err)
				return
			}
		}
		if r.MultipartForm != nil {
			defer r.MultipartForm.RemoveAll()
		}

		var stored []filestore.File
		if r.MultipartForm != nil {
			for _, part := range r.MultipartForm.File["file"] {
				if part.Filename == "" {
					continue
				}
				f, err := saveUpload(r, deps.Store, part)
				if errors.Is(err, filestore.ErrInvalidName) {
					deps.Logger.Warn("skipping upload with unusable name", "name", part.Filename)
					continue
				}
				if err != nil {
					httpError(w, http.StatusInternalServerError, "server_error", "storing %s: %v", part.Filename, err)
					return
				}
				stored = append(stored, f)
			}
		}

		if wantsJSON(r) {
			writeJSON(w, http.StatusOK, StatusResponse{Status: "ok", Files: stored})
			return
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

func saveUpload(r *http.Request, store *filestore.Store, part *multipart.FileHeader) (filestore.File, error) {
	src, err := part.Open()
	if err != nil {
		return filestore.File{}, err
	}
	defer src.Close()
	return store.Save(r.Context(), part.Filename, src)
}

func handleDeleteFiles(deps FilesDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DeleteRequest
		if !decodeJSONBody(w, r, &req) {
			return
		}
		n, err := deps.Store.Delete(r.Context(), req.Files)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, StatusResponse{Status: "error", Msg: err.Error(), Deleted: &n})
			return
		}
		writeJSON(w, http.StatusOK, StatusResponse{Status: "ok", Deleted: &n})
	}
}

func handleRenameFile(deps FilesDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RenameRequest
		if !decodeJSONBody(w, r, &req) {
			return
		}
		f, err := deps.Store.Rename(r.Context(), req.Sub, req.OldName, req.NewName)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, StatusResponse{Status: "ok", NewSub: f.Subfolder, NewName: f.Name})
		case errors.Is(err, filestore.ErrMissingName):
			writeJSON(w, http.StatusBadRequest, StatusResponse{Status: "error", Msg: "missing names"})
		case errors.Is(err, filestore.ErrInvalidName):
			writeJSON(w, http.StatusBadRequest, StatusResponse{Status: "error", Msg: "invalid file name"})
		case errors.Is(err, filestore.ErrNotFound):
			writeJSON(w, http.StatusNotFound, StatusResponse{Status: "error", Msg: "old file not found"})
		default:
			deps.Logger.Error("renaming file", "sub", req.Sub, "name", req.OldName, "error", err)
			writeJSON(w, http.StatusInternalServerError, StatusResponse{Status: "error", Msg: "rename failed"})
		}
	}
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, StatusResponse{Status: "error", Msg: "invalid request body"})
		return false
	}
	return true
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
