package library

import (
	"context"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/pinesap/lectern/models"
)

func TestSyncLibrary_FetchesOnlyNewAndUpdated(t *testing.T) {
	t.Parallel()
	remote := &stubChannel{
		books: models.PagedItems[models.Book]{
			Items: []models.Book{
				{ID: "unchanged", LibraryID: "lib-1", UpdatedAt: 100},
				{ID: "updated", LibraryID: "lib-1", UpdatedAt: 300},
				{ID: "brand-new", LibraryID: "lib-1", UpdatedAt: 100},
			},
		},
		items: map[string]models.DetailedItem{
			"updated": {
				ID: "updated", LibraryID: "lib-1", UpdatedAt: 300,
				Chapters: []models.Chapter{{ID: "A", Start: 0, End: 10}},
			},
			"brand-new": {
				ID: "brand-new", LibraryID: "lib-1", UpdatedAt: 100,
				Chapters: []models.Chapter{{ID: "A", Start: 0, End: 10}},
			},
		},
	}
	repo, store := newTestRepo(t, remote, true, false)

	seed := func(id string, updatedAt int64) {
		item := models.DetailedItem{
			ID: id, LibraryID: "lib-1", UpdatedAt: updatedAt,
			Chapters: []models.Chapter{{ID: "A", Start: 0, End: 10}},
		}
		if err := store.UpsertItem(item, testAccount, nil, nil); err != nil {
			t.Fatal(err)
		}
	}
	seed("unchanged", 100)
	seed("updated", 200)

	if err := repo.SyncLibrary(context.Background(), "lib-1", nil); err != nil {
		t.Fatal(err)
	}

	sort.Strings(remote.fetchedItems)
	want := []string{"brand-new", "updated"}
	if !cmp.Equal(want, remote.fetchedItems) {
		t.Error(cmp.Diff(want, remote.fetchedItems))
	}

	persisted, err := store.Item("brand-new")
	if err != nil {
		t.Fatal(err)
	}
	if persisted == nil || len(persisted.Chapters) == 0 {
		t.Error("new item detail was not persisted")
	}
}

func TestSyncLibrary_SummaryRowsLandEvenWhenDetailFails(t *testing.T) {
	t.Parallel()
	remote := &stubChannel{
		books: models.PagedItems[models.Book]{
			Items: []models.Book{{ID: "ghost", LibraryID: "lib-1", UpdatedAt: 100}},
		},
		// No detail payloads: every FetchBook returns not-found.
		items: map[string]models.DetailedItem{},
	}
	repo, store := newTestRepo(t, remote, true, false)

	if err := repo.SyncLibrary(context.Background(), "lib-1", nil); err != nil {
		t.Fatal(err)
	}

	books, err := store.Items(listAll("lib-1"))
	if err != nil {
		t.Fatal(err)
	}
	if len(books) != 1 || books[0].ID != "ghost" {
		t.Errorf("summary row missing after failed detail fetch: %#v", books)
	}
}

func TestSyncRecents_RemoteNewerPullsDetail(t *testing.T) {
	t.Parallel()
	remote := &stubChannel{
		recents: []models.RecentBook{{ID: "i1", ListenedLastUpdate: 500, CurrentTime: 90}},
		items: map[string]models.DetailedItem{
			"i1": {
				ID: "i1", LibraryID: "lib-1",
				Chapters: []models.Chapter{{ID: "A", Start: 0, End: 100}},
				Progress: &models.MediaProgress{CurrentTime: 90, LastUpdate: 500},
			},
		},
	}
	repo, store := newTestRepo(t, remote, true, false)

	seedProgress(t, store, "i1", 10, 100)

	if err := repo.SyncRecents(context.Background(), "lib-1"); err != nil {
		t.Fatal(err)
	}

	progress, err := store.Progress("i1")
	if err != nil {
		t.Fatal(err)
	}
	if progress.CurrentTime != 90 {
		t.Errorf("remote progress not pulled: %#v", progress)
	}
	if remote.startCalls != 0 {
		t.Error("no session should be opened when remote is newer")
	}
}

func TestSyncRecents_LocalNewerPushesThroughSession(t *testing.T) {
	t.Parallel()
	remote := &stubChannel{
		recents: []models.RecentBook{{ID: "i1", ListenedLastUpdate: 100, CurrentTime: 10}},
		session: models.PlaybackSession{SessionID: "sess-1", ItemID: "i1"},
		items:   map[string]models.DetailedItem{},
	}
	repo, store := newTestRepo(t, remote, true, false)

	seedProgress(t, store, "i1", 77, 500)

	if err := repo.SyncRecents(context.Background(), "lib-1"); err != nil {
		t.Fatal(err)
	}

	if remote.startCalls != 1 {
		t.Fatalf("expected one session open, got %d", remote.startCalls)
	}
	if len(remote.pushedTimes) != 1 || remote.pushedTimes[0] != 77 {
		t.Errorf("local position not pushed: %#v", remote.pushedTimes)
	}
}

func TestSyncRecents_EqualTimestampsDoNothing(t *testing.T) {
	t.Parallel()
	remote := &stubChannel{
		recents: []models.RecentBook{{ID: "i1", ListenedLastUpdate: 500, CurrentTime: 90}},
		items:   map[string]models.DetailedItem{},
	}
	repo, store := newTestRepo(t, remote, true, false)

	seedProgress(t, store, "i1", 90, 500)

	if err := repo.SyncRecents(context.Background(), "lib-1"); err != nil {
		t.Fatal(err)
	}

	if remote.startCalls != 0 || len(remote.fetchedItems) != 0 {
		t.Errorf("equal timestamps triggered work: starts=%d fetches=%v",
			remote.startCalls, remote.fetchedItems)
	}
}
