package channel

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/pinesap/lectern/models"
)

func fakeClient(ts *httptest.Server) *Client {
	c := NewClient(ts.URL, "token-1", "sam", "device-1")
	c.HTTPClient = ts.Client()
	return c
}

func TestFetchLibraries(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/libraries" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token-1" {
			t.Errorf("unexpected auth header %q", got)
		}
		w.Write([]byte(`{"libraries":[{"id":"lib-1","name":"Audiobooks","mediaType":"book"},{"id":"lib-2","name":"Casts","mediaType":"podcast"}]}`))
	}))
	defer ts.Close()

	want := []models.Library{
		{ID: "lib-1", Title: "Audiobooks", Type: models.LibraryTypeLibrary},
		{ID: "lib-2", Title: "Casts", Type: models.LibraryTypePodcast},
	}
	got, err := fakeClient(ts).FetchLibraries(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !cmp.Equal(want, got) {
		t.Error(cmp.Diff(want, got))
	}
}

func TestFetchBook_MergesProgressEndpoint(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/items/item-1":
			w.Write([]byte(`{
				"id":"item-1","libraryId":"lib-1","updatedAt":42,
				"media":{
					"duration":120,
					"metadata":{"title":"Annihilation","authorName":"Jeff VanderMeer"},
					"chapters":[{"id":0,"start":0,"end":60,"title":"One"},{"id":1,"start":60,"end":120,"title":"Two"}],
					"audioFiles":[{"ino":"f1","duration":120,"mimeType":"audio/mpeg","metadata":{"filename":"part1.mp3","size":9000}}]
				}
			}`))
		case "/api/me/progress/item-1":
			w.Write([]byte(`{"libraryItemId":"item-1","currentTime":61.5,"isFinished":false,"lastUpdate":1700000000000}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()

	got, err := fakeClient(ts).FetchBook(context.Background(), "item-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Annihilation" || len(got.Chapters) != 2 || len(got.Files) != 1 {
		t.Fatalf("unexpected item %#v", got)
	}
	if got.Chapters[0].ID != "0" || got.Chapters[1].Duration != 60 {
		t.Errorf("chapter conversion wrong: %#v", got.Chapters)
	}
	if got.Progress == nil || got.Progress.CurrentTime != 61.5 {
		t.Errorf("progress not attached: %#v", got.Progress)
	}
}

func TestFetchBook_NoProgressIsNotAnError(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/items/item-1" {
			w.Write([]byte(`{"id":"item-1","media":{"metadata":{"title":"Unread"},"audioFiles":[{"ino":"f1","duration":10,"metadata":{"filename":"a.mp3"}}]}}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	got, err := fakeClient(ts).FetchBook(context.Background(), "item-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Progress != nil {
		t.Errorf("expected nil progress, got %#v", got.Progress)
	}
	// With no server chapters the file stands in as a chapter.
	if len(got.Chapters) != 1 || got.Chapters[0].ID != "f1" {
		t.Errorf("file-backed chapter missing: %#v", got.Chapters)
	}
}

func TestSearchBooks_EscapesQuery(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/libraries/lib-1/search" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if got := r.URL.Query().Get("q"); got != "war & peace" {
			t.Errorf("query arrived as %q", got)
		}
		if got := r.URL.Query().Get("limit"); got != "5" {
			t.Errorf("limit arrived as %q", got)
		}
		w.Write([]byte(`{"book":[{"libraryItem":{"id":"item-1","libraryId":"lib-1","media":{"metadata":{"title":"War and Peace","authorName":"Leo Tolstoy"}}}}]}`))
	}))
	defer ts.Close()

	got, err := fakeClient(ts).SearchBooks(context.Background(), "lib-1", "war & peace", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Title != "War and Peace" {
		t.Errorf("unexpected results %#v", got)
	}
}

func TestDo_NotFound(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	_, err := fakeClient(ts).FetchBook(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDo_ServerErrorIsUnavailable(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	_, err := fakeClient(ts).FetchLibraries(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestDo_ConnectionRefusedIsUnavailable(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close()

	_, err := fakeClient(ts).FetchLibraries(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestSyncProgress_SessionGone(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	err := fakeClient(ts).SyncProgress(context.Background(), "stale-session", models.PlaybackProgress{TotalTime: 10})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestProvideFileURI(t *testing.T) {
	t.Parallel()
	c := NewClient("https://abs.example/", "tok", "sam", "dev")
	got, err := c.ProvideFileURI("item-1", "file-1")
	if err != nil {
		t.Fatal(err)
	}
	want := "https://abs.example/api/items/item-1/file/file-1?token=tok"
	if got != want {
		t.Errorf("uri = %q, want %q", got, want)
	}
}
