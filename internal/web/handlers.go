package web

import (
	"errors"
	"io"
	"io/fs"
	"iter"
	"net/http"
	"strconv"
	"strings"

	"github.com/cjeanneret/sdcam/internal/debug"
	"github.com/cjeanneret/sdcam/internal/logic/capture"
	"github.com/cjeanneret/sdcam/internal/storage"
)

const (
	contentTypeJPEG  = "image/jpeg"
	contentTypePlain = "text/plain; charset=utf-8"
)

// Capturer runs one capture.
type Capturer interface {
	Capture() (*capture.Result, error)
}

// FileStore is the subset of storage.FileStore the dispatcher needs.
type FileStore interface {
	List() iter.Seq2[storage.Entry, error]
	Open(name string) (*storage.File, error)
	Delete(name string) error
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Capturer Capturer
	Files    FileStore
	staticFS fs.FS
}

// NewHandlers creates handlers with the given dependencies.
func NewHandlers(c Capturer, files FileStore, staticFS fs.FS) *Handlers {
	return &Handlers{
		Capturer: c,
		Files:    files,
		staticFS: staticFS,
	}
}

// ServeIndex serves the control page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleCapture handles GET /capture: takes a picture, stores it, and returns it.
func (h *Handlers) HandleCapture(w http.ResponseWriter, r *http.Request) {
	res, err := h.Capturer.Capture()
	if err != nil {
		debug.Error(err)
		http.Error(w, captureMessage(err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentTypeJPEG)
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Data)))
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-File-Name", res.Name)
	w.Write(res.Data)
}

// captureMessage maps a workflow failure to the plain-text reason sent to the client.
func captureMessage(err error) string {
	switch {
	case errors.Is(err, capture.ErrCaptureFailed):
		return "Camera capture failed"
	case errors.Is(err, capture.ErrCounterUnavailable):
		return "Failed to read file counter"
	case errors.Is(err, capture.ErrPersistFailed):
		return "Failed to store image"
	default:
		return "Capture failed"
	}
}

// HandleList handles GET /list: one regular file name per line.
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	var b strings.Builder
	for e, err := range h.Files.List() {
		if err != nil {
			debug.Error(err)
			http.Error(w, "Storage unavailable", http.StatusInternalServerError)
			return
		}
		if !e.Regular {
			continue
		}
		b.WriteString(e.Name)
		b.WriteByte('\n')
	}

	w.Header().Set("Content-Type", contentTypePlain)
	w.Header().Set("Cache-Control", "no-store")
	io.WriteString(w, b.String())
}

// HandleView handles GET /view?name=: streams a stored image.
func (h *Handlers) HandleView(w http.ResponseWriter, r *http.Request) {
	name, ok := nameParam(w, r)
	if !ok {
		return
	}

	f, err := h.Files.Open(name)
	if err != nil {
		storageError(w, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", contentTypeJPEG)
	w.Header().Set("Content-Length", strconv.FormatInt(f.Size, 10))
	if _, err := io.Copy(w, f); err != nil {
		debug.Warn("View: streaming %s aborted: %v", name, err)
	}
}

// HandleDelete handles GET /delete?name=: removes a stored image.
func (h *Handlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	name, ok := nameParam(w, r)
	if !ok {
		return
	}

	if err := h.Files.Delete(name); err != nil {
		storageError(w, err)
		return
	}
	debug.Live("Deleted %s", name)

	w.Header().Set("Content-Type", contentTypePlain)
	io.WriteString(w, "File deleted")
}

// nameParam extracts the required name query parameter. An empty value counts
// as missing so it can never address the medium root.
func nameParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := r.URL.Query().Get("name")
	if name == "" {
		http.Error(w, "Missing file name parameter", http.StatusBadRequest)
		return "", false
	}
	return name, true
}

func storageError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}
	debug.Error(err)
	http.Error(w, "Storage unavailable", http.StatusInternalServerError)
}
