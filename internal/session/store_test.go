package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/JonMunkholm/docparse/internal/core"
	"github.com/JonMunkholm/docparse/internal/logging"
)

func newTestStore(previews *core.PreviewStore, idle time.Duration) *Store {
	return NewStore(func() *core.Workflow {
		return core.NewWorkflow(nil, previews)
	}, idle)
}

func TestStore_CreateGetDelete(t *testing.T) {
	store := newTestStore(nil, time.Minute)

	id, wf := store.Create()
	if id == "" || wf == nil {
		t.Fatalf("Create() = %q, %v", id, wf)
	}

	got, ok := store.Get(id)
	if !ok || got != wf {
		t.Errorf("Get(%q) = %v, %v; want created workflow", id, got, ok)
	}
	if _, ok := store.Get(""); ok {
		t.Error("Get(\"\") found a session")
	}
	if _, ok := store.Get("unknown"); ok {
		t.Error("Get(unknown) found a session")
	}

	other, _ := store.Create()
	if other == id {
		t.Error("Create() reused an id")
	}
	if store.Len() != 2 {
		t.Errorf("Len() = %d, want 2", store.Len())
	}

	store.Delete(id)
	if _, ok := store.Get(id); ok {
		t.Error("Get() after Delete() found the session")
	}
	store.Delete(id)
	if store.Len() != 1 {
		t.Errorf("Len() = %d, want 1", store.Len())
	}
}

func TestStore_SweepReleasesPreviews(t *testing.T) {
	previews := core.NewPreviewStore()
	store := newTestStore(previews, time.Minute)

	_, wf := store.Create()
	wf.SelectFile(context.Background(), core.File{Name: "a.png", MediaType: core.MediaPNG, Data: []byte("png")})
	if previews.Len() != 1 {
		t.Fatalf("previews.Len() = %d, want 1", previews.Len())
	}

	if n := store.Sweep(time.Now()); n != 0 {
		t.Errorf("Sweep(now) = %d, want 0 for fresh session", n)
	}

	if n := store.Sweep(time.Now().Add(2 * time.Minute)); n != 1 {
		t.Errorf("Sweep(later) = %d, want 1", n)
	}
	if store.Len() != 0 {
		t.Errorf("Len() = %d, want 0", store.Len())
	}
	if previews.Len() != 0 {
		t.Errorf("previews.Len() = %d, want 0 after expiry", previews.Len())
	}
}

func TestStore_RunClosesOnCancel(t *testing.T) {
	previews := core.NewPreviewStore()
	store := newTestStore(previews, time.Hour)

	_, wf := store.Create()
	wf.SelectFile(context.Background(), core.File{Name: "a.jpg", MediaType: core.MediaJPEG, Data: []byte("jpg")})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- store.Run(ctx, 10*time.Millisecond) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}

	if store.Len() != 0 || previews.Len() != 0 {
		t.Errorf("after Run: sessions=%d previews=%d, want 0", store.Len(), previews.Len())
	}
}

func TestMiddleware(t *testing.T) {
	store := newTestStore(nil, time.Minute)
	opts := CookieOptions{Name: "sid", MaxAge: time.Minute}

	var seen *core.Workflow
	var seenSession string
	h := store.Middleware(opts)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = core.WorkflowFromContext(r.Context())
		seenSession = logging.SessionID(r.Context())
	}))

	// First request creates a session and sets the cookie.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("got %d cookies, want 1", len(cookies))
	}
	c := cookies[0]
	if c.Name != "sid" || !c.HttpOnly || c.SameSite != http.SameSiteLaxMode || c.Path != "/" {
		t.Errorf("cookie = %+v", c)
	}
	if seen == nil {
		t.Fatal("workflow not attached to context")
	}
	if seenSession != c.Value {
		t.Errorf("session id in context = %q, want %q", seenSession, c.Value)
	}
	first := seen

	// Returning with the cookie reuses the workflow and refreshes the
	// cookie so its lifetime runs from this request.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(c)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	refreshed := rec.Result().Cookies()
	if len(refreshed) != 1 {
		t.Fatalf("got %d cookies for known session, want 1", len(refreshed))
	}
	if refreshed[0].Value != c.Value || refreshed[0].MaxAge != 60 {
		t.Errorf("refreshed cookie = %+v, want value %q MaxAge 60", refreshed[0], c.Value)
	}
	if seen != first {
		t.Error("known session got a different workflow")
	}

	// An unknown cookie value starts a new session.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: "stale"})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if len(rec.Result().Cookies()) != 1 {
		t.Error("no cookie issued for unknown session")
	}
	if seen == first {
		t.Error("unknown session reused a workflow")
	}
	if store.Len() != 2 {
		t.Errorf("Len() = %d, want 2", store.Len())
	}
}

func TestMiddleware_ReadsKeepSessionAlive(t *testing.T) {
	store := newTestStore(nil, 100*time.Millisecond)
	h := store.Middleware(CookieOptions{Name: "sid", MaxAge: time.Minute})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if wf, ok := core.WorkflowFromContext(r.Context()); ok {
			wf.Snapshot()
		}
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	cookie := rec.Result().Cookies()[0]

	// Each read-only request lands inside the idle window.
	for i := 0; i < 3; i++ {
		time.Sleep(60 * time.Millisecond)
		req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
		req.AddCookie(cookie)
		h.ServeHTTP(httptest.NewRecorder(), req)

		if n := store.Sweep(time.Now()); n != 0 {
			t.Fatalf("Sweep() after read %d = %d, want 0", i, n)
		}
	}
	if _, ok := store.Get(cookie.Value); !ok {
		t.Fatal("active session was swept")
	}

	// Without further requests the session goes idle and is swept.
	if n := store.Sweep(time.Now().Add(time.Second)); n != 1 {
		t.Errorf("Sweep(idle) = %d, want 1", n)
	}
}
