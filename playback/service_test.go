package playback

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/pinesap/lectern/channel"
	"github.com/pinesap/lectern/db"
	"github.com/pinesap/lectern/library"
	"github.com/pinesap/lectern/models"
	"github.com/pinesap/lectern/storage"
)

var playbackAccount = db.Account{Host: "https://abs.example", Username: "sam"}

// sessionChannel counts session opens and progress pushes. Setting block
// makes SyncProgress wait until release is closed, so tests can hold a
// sync attempt in flight.
type sessionChannel struct {
	mu         sync.Mutex
	startCalls int
	syncCalls  int
	syncErrs   []error

	block   bool
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (c *sessionChannel) FetchLibraries(ctx context.Context) ([]models.Library, error) {
	return nil, nil
}

func (c *sessionChannel) FetchBooks(ctx context.Context, libraryID string, page, pageSize int) (models.PagedItems[models.Book], error) {
	return models.PagedItems[models.Book]{}, nil
}

func (c *sessionChannel) FetchBook(ctx context.Context, itemID string) (*models.DetailedItem, error) {
	return nil, channel.ErrNotFound
}

func (c *sessionChannel) FetchRecentListened(ctx context.Context, libraryID string) ([]models.RecentBook, error) {
	return nil, nil
}

func (c *sessionChannel) SearchBooks(ctx context.Context, libraryID, query string, limit int) ([]models.Book, error) {
	return nil, nil
}

func (c *sessionChannel) StartPlayback(ctx context.Context, itemID string) (models.PlaybackSession, error) {
	c.mu.Lock()
	c.startCalls++
	n := c.startCalls
	c.mu.Unlock()
	return models.PlaybackSession{SessionID: "sess-" + string(rune('0'+n)), ItemID: itemID}, nil
}

func (c *sessionChannel) SyncProgress(ctx context.Context, sessionID string, progress models.PlaybackProgress) error {
	if c.block {
		c.once.Do(func() { close(c.entered) })
		<-c.release
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.syncCalls++
	if len(c.syncErrs) > 0 {
		err := c.syncErrs[0]
		c.syncErrs = c.syncErrs[1:]
		return err
	}
	return nil
}

func (c *sessionChannel) FetchBookCover(ctx context.Context, itemID string) (io.ReadCloser, error) {
	return nil, channel.ErrNotFound
}

func (c *sessionChannel) FetchFile(ctx context.Context, itemID, fileID string) (io.ReadCloser, error) {
	return nil, channel.ErrNotFound
}

func (c *sessionChannel) ProvideFileURI(itemID, fileID string) (string, error) {
	return "https://abs.example/stream/" + itemID + "/" + fileID, nil
}

func (c *sessionChannel) counts() (starts, syncs int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startCalls, c.syncCalls
}

type alwaysOnline struct{}

func (alwaysOnline) Online() bool { return true }

type defaultSettings struct{}

func (defaultSettings) ForceOffline() bool       { return false }
func (defaultSettings) Ordering() (string, bool) { return "title", true }

// playingItem spans two files of 150s and 250s with three chapters.
func playingItem() models.DetailedItem {
	return models.DetailedItem{
		ID:        "item-1",
		LibraryID: "lib-1",
		Chapters: []models.Chapter{
			{ID: "A", Start: 0, End: 100, Duration: 100},
			{ID: "B", Start: 100, End: 250, Duration: 150},
			{ID: "C", Start: 250, End: 400, Duration: 150},
		},
		Files: []models.File{
			{ID: "F1", Name: "part1.mp3", Duration: 150},
			{ID: "F2", Name: "part2.mp3", Duration: 250},
		},
	}
}

func newTestService(t *testing.T, remote *sessionChannel) (*Service, *ReportedPlayer, *db.MemoryStore) {
	t.Helper()
	store := db.NewMemoryStore()
	if err := store.UpsertItem(playingItem(), playbackAccount, nil, nil); err != nil {
		t.Fatal(err)
	}
	layout := storage.NewLayout(t.TempDir(), "")
	repo := library.NewRepository(store, remote, alwaysOnline{}, defaultSettings{}, layout, playbackAccount)
	player := &ReportedPlayer{}
	service := NewService(repo, remote, store, player)
	return service, player, store
}

func TestTotalTime(t *testing.T) {
	t.Parallel()
	item := playingItem()

	tests := []struct {
		name      string
		fileIndex int
		elapsed   float64
		want      float64
	}{
		{"first file", 0, 42, 42},
		{"second file offsets by first duration", 1, 110, 260},
		{"index past the end clamps to last file", 5, 10, 160},
		{"negative index passes elapsed through", -1, 30, 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := TotalTime(item, tt.fileIndex, tt.elapsed); got != tt.want {
				t.Errorf("TotalTime = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSync_ConcurrentAttemptsCollapseToOne(t *testing.T) {
	t.Parallel()
	remote := &sessionChannel{
		block:   true,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	service, player, _ := newTestService(t, remote)
	player.Report(Snapshot{ItemID: "item-1", FileIndex: 0, Elapsed: 30, Status: StatusPaused})

	var first sync.WaitGroup
	first.Add(1)
	go func() {
		defer first.Done()
		service.OnPlayerEvent(context.Background())
	}()
	// Wait until the first attempt holds the lock inside the remote call,
	// then fire a burst of ticks. Every one of them must be dropped, not
	// queued: the burst drains completely while the lock is still held.
	<-remote.entered

	var burst sync.WaitGroup
	for i := 0; i < 8; i++ {
		burst.Add(1)
		go func() {
			defer burst.Done()
			service.OnPlayerEvent(context.Background())
		}()
	}
	burst.Wait()

	close(remote.release)
	first.Wait()

	if _, syncs := remote.counts(); syncs != 1 {
		t.Errorf("remote sync calls = %d, want 1", syncs)
	}
}

func TestSync_LocalWriteSurvivesRemoteFailure(t *testing.T) {
	t.Parallel()
	remote := &sessionChannel{syncErrs: []error{channel.ErrUnavailable}}
	service, player, store := newTestService(t, remote)
	player.Report(Snapshot{ItemID: "item-1", FileIndex: 1, Elapsed: 110, Status: StatusPaused})

	service.OnPlayerEvent(context.Background())

	progress, err := store.Progress("item-1")
	if err != nil {
		t.Fatal(err)
	}
	if progress == nil || progress.CurrentTime != 260 {
		t.Errorf("local progress = %#v, want CurrentTime 260", progress)
	}
}

func TestSync_SessionReopensAfterServerDiscardsIt(t *testing.T) {
	t.Parallel()
	remote := &sessionChannel{syncErrs: []error{channel.ErrNotFound}}
	service, player, _ := newTestService(t, remote)
	player.Report(Snapshot{ItemID: "item-1", FileIndex: 0, Elapsed: 30, Status: StatusPaused})

	// First attempt opens a session, pushes, and learns the server
	// discarded it.
	service.OnPlayerEvent(context.Background())
	// The next attempt must open a fresh session rather than reuse the
	// dead one.
	service.OnPlayerEvent(context.Background())

	starts, syncs := remote.counts()
	if starts != 2 {
		t.Errorf("session opens = %d, want 2", starts)
	}
	if syncs != 2 {
		t.Errorf("remote sync calls = %d, want 2", syncs)
	}
}

func TestSync_SessionReusedWithinChapter(t *testing.T) {
	t.Parallel()
	remote := &sessionChannel{}
	service, player, _ := newTestService(t, remote)

	player.Report(Snapshot{ItemID: "item-1", FileIndex: 0, Elapsed: 10, Status: StatusPaused})
	service.OnPlayerEvent(context.Background())
	player.Report(Snapshot{ItemID: "item-1", FileIndex: 0, Elapsed: 20, Status: StatusPaused})
	service.OnPlayerEvent(context.Background())

	starts, _ := remote.counts()
	if starts != 1 {
		t.Errorf("session opens = %d, want 1", starts)
	}

	// Crossing into the next chapter re-anchors the session.
	player.Report(Snapshot{ItemID: "item-1", FileIndex: 0, Elapsed: 120, Status: StatusPaused})
	service.OnPlayerEvent(context.Background())
	starts, _ = remote.counts()
	if starts != 2 {
		t.Errorf("session opens after chapter change = %d, want 2", starts)
	}
}

func waitLoopStopped(t *testing.T, s *Service) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		s.mu.Lock()
		stopped := s.loopCancel == nil
		s.mu.Unlock()
		if stopped {
			return
		}
		select {
		case <-deadline:
			t.Fatal("sync loop kept running after pause")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestLoop_RestartsAfterPauseResume(t *testing.T) {
	t.Parallel()
	remote := &sessionChannel{}
	service, player, _ := newTestService(t, remote)
	service.longInterval = 10 * time.Millisecond
	service.shortInterval = 5 * time.Millisecond

	player.Report(Snapshot{ItemID: "item-1", FileIndex: 0, Elapsed: 30, Status: StatusPlaying})
	service.OnPlayerEvent(context.Background())

	// Pause without an event long enough for the running loop to observe
	// the paused snapshot on its own tick and wind itself down.
	player.Report(Snapshot{ItemID: "item-1", FileIndex: 0, Elapsed: 30, Status: StatusPaused})
	waitLoopStopped(t, service)

	player.Report(Snapshot{ItemID: "item-1", FileIndex: 0, Elapsed: 35, Status: StatusPlaying})
	service.OnPlayerEvent(context.Background())
	_, base := remote.counts()

	// The resumed loop must keep ticking periodically on its own, not
	// just push the one event-triggered sync.
	deadline := time.After(2 * time.Second)
	for {
		if _, syncs := remote.counts(); syncs >= base+2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("periodic sync loop never ticked after resume")
		case <-time.After(5 * time.Millisecond):
		}
	}
	service.Stop()
}

func TestOnPlayerEvent_NoSnapshotStops(t *testing.T) {
	t.Parallel()
	remote := &sessionChannel{}
	service, _, _ := newTestService(t, remote)

	service.OnPlayerEvent(context.Background())

	if _, syncs := remote.counts(); syncs != 0 {
		t.Errorf("sync ran without a player snapshot: %d calls", syncs)
	}
	if state := service.CurrentState(); state.Status != StatusStopped {
		t.Errorf("state = %q, want stopped", state.Status)
	}
}

func TestReportedPlayer(t *testing.T) {
	t.Parallel()
	player := &ReportedPlayer{}
	if _, ok := player.Snapshot(); ok {
		t.Error("empty player reported a snapshot")
	}
	want := Snapshot{ItemID: "item-1", FileIndex: 1, Elapsed: 12.5, Status: StatusPlaying}
	player.Report(want)
	got, ok := player.Snapshot()
	if !ok || got != want {
		t.Errorf("Snapshot() = %#v, %v", got, ok)
	}
}
