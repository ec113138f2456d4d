package web

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/cjeanneret/sdcam/internal/hw/camera"
	"github.com/cjeanneret/sdcam/internal/logic/capture"
	"github.com/cjeanneret/sdcam/internal/storage"
)

var jpegStub = []byte("\xff\xd8\xff\xe0stub-image")

// ---------- fixtures ----------

type fakeCapturer struct {
	res   *capture.Result
	err   error
	calls int
}

func (f *fakeCapturer) Capture() (*capture.Result, error) {
	f.calls++
	return f.res, f.err
}

// brokenStore fails every operation as an unavailable medium would.
type brokenStore struct{}

func (brokenStore) List() iter.Seq2[storage.Entry, error] {
	return func(yield func(storage.Entry, error) bool) {
		yield(storage.Entry{}, storage.ErrStorageUnavailable)
	}
}

func (brokenStore) Open(string) (*storage.File, error) { return nil, storage.ErrStorageUnavailable }
func (brokenStore) Delete(string) error                { return storage.ErrStorageUnavailable }

type fixture struct {
	dir     string
	counter *storage.Counter
	files   *storage.FileStore
}

// newStoreFixture opens a medium in a temp dir with a counter record and the given files.
func newStoreFixture(t *testing.T, names ...string) *fixture {
	t.Helper()
	dir := t.TempDir()
	m, err := storage.OpenMedium(dir)
	if err != nil {
		t.Fatalf("OpenMedium: %v", err)
	}
	t.Cleanup(func() { m.Close() })

	counter := storage.NewCounter(m, "filecounter.txt")
	if err := counter.Init(); err != nil {
		t.Fatalf("counter Init: %v", err)
	}
	files := storage.NewFileStore(m, counter.Reserved()...)
	for _, n := range names {
		if err := files.Create(n, jpegStub); err != nil {
			t.Fatalf("Create %s: %v", n, err)
		}
	}
	return &fixture{dir: dir, counter: counter, files: files}
}

func newTestHandlers(c Capturer, files FileStore) *Handlers {
	staticFS := fstest.MapFS{
		"index.html": &fstest.MapFile{Data: []byte("<html>test</html>")},
	}
	return NewHandlers(c, files, staticFS)
}

func get(h http.HandlerFunc, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	h(w, req)
	return w
}

func assertPlain(t *testing.T, w *httptest.ResponseRecorder, status int, body string) {
	t.Helper()
	if w.Code != status {
		t.Errorf("status = %d, want %d", w.Code, status)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q, want text/plain", ct)
	}
	if got := strings.TrimSpace(w.Body.String()); got != body {
		t.Errorf("body = %q, want %q", got, body)
	}
}

// ---------- ServeIndex ----------

func TestServeIndex(t *testing.T) {
	h := newTestHandlers(&fakeCapturer{}, brokenStore{})
	w := get(h.ServeIndex, "/")

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q, want text/html; charset=utf-8", ct)
	}
	if !strings.Contains(w.Body.String(), "<html>") {
		t.Error("body should contain HTML content")
	}
}

func TestServeIndex_MissingPage(t *testing.T) {
	h := NewHandlers(&fakeCapturer{}, brokenStore{}, fstest.MapFS{})
	w := get(h.ServeIndex, "/")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// ---------- HandleCapture ----------

func TestHandleCapture_Success(t *testing.T) {
	c := &fakeCapturer{res: &capture.Result{Sequence: 7, Name: "/picture7.jpg", Data: jpegStub, CounterAdvanced: true}}
	h := newTestHandlers(c, brokenStore{})
	w := get(h.HandleCapture, "/capture")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Content-Type = %q, want image/jpeg", ct)
	}
	if cl := w.Header().Get("Content-Length"); cl != strconv.Itoa(len(jpegStub)) {
		t.Errorf("Content-Length = %q, want %d", cl, len(jpegStub))
	}
	if got := w.Header().Get("X-File-Name"); got != "/picture7.jpg" {
		t.Errorf("X-File-Name = %q", got)
	}
	if !bytes.Equal(w.Body.Bytes(), jpegStub) {
		t.Error("body should be the captured image")
	}
	if c.calls != 1 {
		t.Errorf("Capture called %d times, want 1", c.calls)
	}
}

func TestHandleCapture_FailureMessages(t *testing.T) {
	cause := errors.New("boom")
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"sensor", fmt.Errorf("%w: %w", capture.ErrCaptureFailed, cause), "Camera capture failed"},
		{"counter", fmt.Errorf("%w: %w", capture.ErrCounterUnavailable, cause), "Failed to read file counter"},
		{"persist", fmt.Errorf("%w: %w", capture.ErrPersistFailed, cause), "Failed to store image"},
		{"unknown", cause, "Capture failed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestHandlers(&fakeCapturer{err: tc.err}, brokenStore{})
			w := get(h.HandleCapture, "/capture")
			assertPlain(t, w, http.StatusInternalServerError, tc.want)
		})
	}
}

// ---------- HandleList ----------

func TestHandleList(t *testing.T) {
	fx := newStoreFixture(t, "picture0.jpg", "picture1.jpg", "picture2.jpg")
	if err := os.Mkdir(filepath.Join(fx.dir, "DCIM"), 0o755); err != nil {
		t.Fatal(err)
	}
	h := newTestHandlers(&fakeCapturer{}, fx.files)

	w := get(h.HandleList, "/list")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	lines := strings.Fields(w.Body.String())
	if len(lines) != 3 {
		t.Fatalf("listed %d names, want 3: %q", len(lines), lines)
	}
	for _, want := range []string{"picture0.jpg", "picture1.jpg", "picture2.jpg"} {
		if !strings.Contains(w.Body.String(), want+"\n") {
			t.Errorf("list missing %q", want)
		}
	}
	if strings.Contains(w.Body.String(), "filecounter") {
		t.Error("list should not expose the counter record")
	}
	if strings.Contains(w.Body.String(), "DCIM") {
		t.Error("list should skip directories")
	}
}

func TestHandleList_Empty(t *testing.T) {
	fx := newStoreFixture(t)
	h := newTestHandlers(&fakeCapturer{}, fx.files)
	assertPlain(t, get(h.HandleList, "/list"), http.StatusOK, "")
}

func TestHandleList_Idempotent(t *testing.T) {
	fx := newStoreFixture(t, "a.jpg", "b.jpg")
	h := newTestHandlers(&fakeCapturer{}, fx.files)

	first := get(h.HandleList, "/list").Body.String()
	second := get(h.HandleList, "/list").Body.String()
	if first != second {
		t.Errorf("list changed between calls: %q vs %q", first, second)
	}
}

func TestHandleList_StorageUnavailable(t *testing.T) {
	h := newTestHandlers(&fakeCapturer{}, brokenStore{})
	assertPlain(t, get(h.HandleList, "/list"), http.StatusInternalServerError, "Storage unavailable")
}

// ---------- HandleView ----------

func TestHandleView(t *testing.T) {
	fx := newStoreFixture(t, "picture0.jpg")
	h := newTestHandlers(&fakeCapturer{}, fx.files)

	for _, target := range []string{"/view?name=picture0.jpg", "/view?name=%2Fpicture0.jpg"} {
		w := get(h.HandleView, target)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: status = %d, want %d", target, w.Code, http.StatusOK)
		}
		if ct := w.Header().Get("Content-Type"); ct != "image/jpeg" {
			t.Errorf("%s: Content-Type = %q, want image/jpeg", target, ct)
		}
		if cl := w.Header().Get("Content-Length"); cl != strconv.Itoa(len(jpegStub)) {
			t.Errorf("%s: Content-Length = %q, want %d", target, cl, len(jpegStub))
		}
		if !bytes.Equal(w.Body.Bytes(), jpegStub) {
			t.Errorf("%s: body mismatch", target)
		}
	}
}

func TestHandleView_MissingName(t *testing.T) {
	h := newTestHandlers(&fakeCapturer{}, brokenStore{})
	for _, target := range []string{"/view", "/view?name=", "/view?other=x"} {
		assertPlain(t, get(h.HandleView, target), http.StatusBadRequest, "Missing file name parameter")
	}
}

func TestHandleView_NotFound(t *testing.T) {
	fx := newStoreFixture(t, "picture0.jpg")
	if err := os.Mkdir(filepath.Join(fx.dir, "DCIM"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(t.TempDir(), "outside.jpg"), filepath.Join(fx.dir, "link.jpg")); err != nil {
		t.Fatal(err)
	}
	h := newTestHandlers(&fakeCapturer{}, fx.files)

	for _, name := range []string{"nope.jpg", "DCIM", "filecounter.txt", "FILECOUNTER.TXT", "..", "../etc/passwd", "link.jpg"} {
		t.Run(name, func(t *testing.T) {
			w := get(h.HandleView, "/view?name="+name)
			assertPlain(t, w, http.StatusNotFound, "File not found")
		})
	}
}

func TestHandleView_StorageUnavailable(t *testing.T) {
	h := newTestHandlers(&fakeCapturer{}, brokenStore{})
	assertPlain(t, get(h.HandleView, "/view?name=a.jpg"), http.StatusInternalServerError, "Storage unavailable")
}

// ---------- HandleDelete ----------

func TestHandleDelete(t *testing.T) {
	fx := newStoreFixture(t, "picture0.jpg", "picture1.jpg")
	h := newTestHandlers(&fakeCapturer{}, fx.files)

	assertPlain(t, get(h.HandleDelete, "/delete?name=picture0.jpg"), http.StatusOK, "File deleted")
	assertPlain(t, get(h.HandleView, "/view?name=picture0.jpg"), http.StatusNotFound, "File not found")
	assertPlain(t, get(h.HandleList, "/list"), http.StatusOK, "picture1.jpg")
}

func TestHandleDelete_Twice(t *testing.T) {
	fx := newStoreFixture(t, "picture0.jpg")
	h := newTestHandlers(&fakeCapturer{}, fx.files)

	assertPlain(t, get(h.HandleDelete, "/delete?name=picture0.jpg"), http.StatusOK, "File deleted")
	assertPlain(t, get(h.HandleDelete, "/delete?name=picture0.jpg"), http.StatusNotFound, "File not found")
}

func TestHandleDelete_MissingName(t *testing.T) {
	h := newTestHandlers(&fakeCapturer{}, brokenStore{})
	assertPlain(t, get(h.HandleDelete, "/delete"), http.StatusBadRequest, "Missing file name parameter")
}

func TestHandleDelete_CounterProtected(t *testing.T) {
	fx := newStoreFixture(t)
	h := newTestHandlers(&fakeCapturer{}, fx.files)

	for _, name := range []string{"filecounter.txt", "FILECOUNTER.TXT", "FileCounter.Txt"} {
		assertPlain(t, get(h.HandleDelete, "/delete?name="+name), http.StatusNotFound, "File not found")
	}
	if _, err := os.Stat(filepath.Join(fx.dir, "filecounter.txt")); err != nil {
		t.Errorf("counter record should survive: %v", err)
	}
}

func TestHandleDelete_StorageUnavailable(t *testing.T) {
	h := newTestHandlers(&fakeCapturer{}, brokenStore{})
	assertPlain(t, get(h.HandleDelete, "/delete?name=a.jpg"), http.StatusInternalServerError, "Storage unavailable")
}

// ---------- Server / Mux ----------

// newTestServer wires the real workflow on a temp medium with a synthetic sensor.
func newTestServer(t *testing.T) (*Server, *fixture) {
	t.Helper()
	fx := newStoreFixture(t)
	wf := capture.NewWorkflow(camera.NewTestPatternSensor(32, 24, 50), fx.counter, fx.files,
		func(n int) string { return fmt.Sprintf("/picture%d.jpg", n) })
	return NewServer("127.0.0.1:0", time.Second, wf, fx.files), fx
}

func TestMux_Routes(t *testing.T) {
	srv, _ := newTestServer(t)
	mux := srv.Mux()

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/", http.StatusOK},
		{http.MethodGet, "/static/app.js", http.StatusOK},
		{http.MethodGet, "/static/style.css", http.StatusOK},
		{http.MethodGet, "/list", http.StatusOK},
		{http.MethodGet, "/view", http.StatusBadRequest},
		{http.MethodGet, "/delete", http.StatusBadRequest},
		{http.MethodGet, "/view?name=none.jpg", http.StatusNotFound},
		{http.MethodGet, "/unknown", http.StatusNotFound},
		{http.MethodPost, "/capture", http.StatusMethodNotAllowed},
	}
	for _, tc := range tests {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Errorf("status = %d, want %d", w.Code, tc.want)
			}
			if w.Header().Get("X-Request-Id") == "" {
				t.Error("X-Request-Id header missing")
			}
		})
	}
}

func TestMux_CaptureListDeleteScenario(t *testing.T) {
	srv, _ := newTestServer(t)
	mux := srv.Mux()
	do := func(target string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
		return w
	}

	for i := 0; i < 3; i++ {
		w := do("/capture")
		if w.Code != http.StatusOK {
			t.Fatalf("capture %d: status = %d, body %q", i, w.Code, w.Body.String())
		}
		if !bytes.HasPrefix(w.Body.Bytes(), []byte{0xff, 0xd8}) {
			t.Fatalf("capture %d: body is not a JPEG", i)
		}
	}
	listed := strings.Fields(do("/list").Body.String())
	slices.Sort(listed)
	if want := []string{"picture0.jpg", "picture1.jpg", "picture2.jpg"}; !slices.Equal(listed, want) {
		t.Fatalf("list = %q, want %q", listed, want)
	}

	assertPlain(t, do("/delete?name=picture1.jpg"), http.StatusOK, "File deleted")
	assertPlain(t, do("/view?name=picture1.jpg"), http.StatusNotFound, "File not found")

	w := do("/capture")
	if got := w.Header().Get("X-File-Name"); got != "/picture3.jpg" {
		t.Errorf("next capture name = %q, want /picture3.jpg", got)
	}

	view := do("/view?name=picture3.jpg")
	if view.Code != http.StatusOK || !bytes.Equal(view.Body.Bytes(), w.Body.Bytes()) {
		t.Error("viewing the new capture should return the bytes capture returned")
	}
}

func TestMux_ConcurrentCapturesGetDistinctNames(t *testing.T) {
	srv, fx := newTestServer(t)
	mux := srv.Mux()

	const n = 8
	var wg sync.WaitGroup
	names := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/capture", nil))
			names <- w.Header().Get("X-File-Name")
		}()
	}
	wg.Wait()
	close(names)

	seen := map[string]bool{}
	for name := range names {
		if seen[name] {
			t.Errorf("duplicate capture name %q", name)
		}
		seen[name] = true
	}
	if len(seen) != n {
		t.Errorf("got %d distinct names, want %d", len(seen), n)
	}

	data, err := os.ReadFile(filepath.Join(fx.dir, "filecounter.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(string(data)); got != strconv.Itoa(n) {
		t.Errorf("counter = %q, want %d", got, n)
	}
}

func TestMux_StaticServesEmbeddedAssets(t *testing.T) {
	srv, _ := newTestServer(t)
	w := httptest.NewRecorder()
	srv.Mux().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	body, _ := io.ReadAll(w.Body)
	if !strings.Contains(string(body), "/static/app.js") {
		t.Error("control page should load app.js")
	}
}
