package caching

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/pinesap/lectern/channel"
	"github.com/pinesap/lectern/db"
	"github.com/pinesap/lectern/live"
	"github.com/pinesap/lectern/models"
	"github.com/pinesap/lectern/storage"
)

// Manager runs chapter downloads and evictions for items. Each item has
// an observable cache state that moves Idle → Queued → Caching →
// Completed or Error; a new request restarts the machine from Idle.
type Manager struct {
	remote  channel.Channel
	store   db.Store
	layout  *storage.Layout
	covers  *Covers
	account db.Account

	mu     sync.Mutex
	states map[string]*live.Value[models.CacheState]
	feed   *live.Value[CacheEvent]
}

// CacheEvent pairs a state change with the item it belongs to, for
// consumers that watch all items at once.
type CacheEvent struct {
	ItemID string            `json:"item_id"`
	State  models.CacheState `json:"state"`
}

func NewManager(remote channel.Channel, store db.Store, layout *storage.Layout, covers *Covers, account db.Account) *Manager {
	return &Manager{
		remote:  remote,
		store:   store,
		layout:  layout,
		covers:  covers,
		account: account,
		states:  map[string]*live.Value[models.CacheState]{},
		feed:    live.NewValue(CacheEvent{State: models.CacheState{Status: models.CacheIdle}}),
	}
}

// Watch streams every state change across all items.
func (m *Manager) Watch(ctx context.Context) <-chan CacheEvent {
	return m.feed.Subscribe(ctx)
}

// State returns the observable cache state for an item, creating it in
// the Idle state on first use.
func (m *Manager) State(itemID string) *live.Value[models.CacheState] {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[itemID]
	if !ok {
		state = live.NewValue(models.CacheState{Status: models.CacheIdle})
		m.states[itemID] = state
	}
	return state
}

func (m *Manager) setState(itemID string, state models.CacheState) {
	m.State(itemID).Set(state)
	m.feed.Set(CacheEvent{ItemID: itemID, State: state})
}

// CacheItem downloads whatever the option requires that is not already
// on disk. Cancellation is honoured between file transfers; a failure
// mid-run evicts only what this run touched and finishes in Error.
func (m *Manager) CacheItem(ctx context.Context, itemID string, option models.DownloadOption, currentTotalTime float64) error {
	item, err := m.store.Item(itemID)
	if err != nil {
		return err
	}
	if item == nil || (len(item.Chapters) == 0 && len(item.Files) == 0) {
		remote, err := m.remote.FetchBook(ctx, itemID)
		if err != nil {
			m.setState(itemID, models.CacheState{Status: models.CacheError})
			return err
		}
		if err := m.store.UpsertItem(*remote, m.account, nil, nil); err != nil {
			m.setState(itemID, models.CacheState{Status: models.CacheError})
			return err
		}
		item = remote
	}

	requested := RequestedChapters(*item, option, currentTotalTime)
	missing := []models.Chapter{}
	for _, chapter := range requested {
		if !m.chapterOnDisk(*item, chapter) {
			missing = append(missing, chapter)
		}
	}
	files := filesForChapters(*item, missing)
	if len(files) == 0 {
		m.setState(itemID, models.CacheState{Status: models.CacheCompleted, Progress: 1})
		return nil
	}

	m.setState(itemID, models.CacheState{Status: models.CacheQueued})
	m.setState(itemID, models.CacheState{Status: models.CacheCaching})

	for i, file := range files {
		if err := ctx.Err(); err != nil {
			m.failRun(ctx, *item, missing)
			return err
		}
		if err := m.downloadFile(ctx, itemID, file); err != nil {
			slog.Error("File transfer failed",
				slog.String("item", itemID),
				slog.String("file", file.ID),
				slog.String("error", err.Error()))
			m.failRun(ctx, *item, missing)
			return err
		}
		m.setState(itemID, models.CacheState{
			Status:   models.CacheCaching,
			Progress: float64(i+1) / float64(len(files)),
		})
	}

	fetched := make([]string, 0, len(missing))
	for _, chapter := range missing {
		fetched = append(fetched, chapter.ID)
	}
	if err := m.store.UpsertItem(*item, m.account, fetched, nil); err != nil {
		m.setState(itemID, models.CacheState{Status: models.CacheError})
		return err
	}

	if err := m.covers.FetchCover(ctx, itemID); err != nil {
		slog.Debug("Cover fetch after caching failed",
			slog.String("item", itemID),
			slog.String("error", err.Error()))
	}

	m.setState(itemID, models.CacheState{Status: models.CacheCompleted, Progress: 1})
	return nil
}

// chapterOnDisk verifies the persisted flag against the filesystem. A
// flagged chapter whose files have gone missing counts as a miss and is
// fetched again on the next run.
func (m *Manager) chapterOnDisk(item models.DetailedItem, chapter models.Chapter) bool {
	if !chapter.Cached {
		return false
	}
	for _, file := range RelatedFiles(item, chapter) {
		if _, err := os.Stat(m.layout.MediaPath(item.ID, file.ID)); err != nil {
			return false
		}
	}
	return true
}

func (m *Manager) downloadFile(ctx context.Context, itemID string, file models.File) error {
	path := m.layout.MediaPath(itemID, file.ID)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	body, err := m.remote.FetchFile(ctx, itemID, file.ID)
	if err != nil {
		return err
	}
	defer body.Close()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	// Write to a temp name first so a torn transfer never masquerades as
	// a cached file.
	tmp := path + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, body); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// failRun cleans up after a failed transfer: the chapters this run was
// fetching are evicted, then cover and metadata are refreshed
// best-effort so the item stays browsable, and the state lands on Error.
func (m *Manager) failRun(ctx context.Context, item models.DetailedItem, runChapters []models.Chapter) {
	for _, chapter := range runChapters {
		if err := m.evictChapterFiles(item, chapter); err != nil {
			slog.Warn("Failed to evict partial chapter",
				slog.String("item", item.ID),
				slog.String("chapter", chapter.ID),
				slog.String("error", err.Error()))
		}
	}
	if err := m.covers.FetchCover(ctx, item.ID); err != nil {
		slog.Debug("Cover fetch after failed run skipped",
			slog.String("item", item.ID),
			slog.String("error", err.Error()))
	}
	if libraries, err := m.remote.FetchLibraries(ctx); err == nil {
		if err := m.store.UpsertLibraries(libraries, m.account); err != nil {
			slog.Debug("Library refresh after failed run skipped",
				slog.String("error", err.Error()))
		}
	}
	m.setState(item.ID, models.CacheState{Status: models.CacheError})
}

// evictChapterFiles deletes the chapter's on-disk files, keeping any
// file that another still-cached chapter also needs.
func (m *Manager) evictChapterFiles(item models.DetailedItem, target models.Chapter) error {
	needed := map[string]bool{}
	for _, chapter := range item.Chapters {
		if chapter.ID == target.ID || !chapter.Cached {
			continue
		}
		for _, file := range RelatedFiles(item, chapter) {
			needed[file.ID] = true
		}
	}
	for _, file := range RelatedFiles(item, target) {
		if needed[file.ID] {
			continue
		}
		path := m.layout.MediaPath(item.ID, file.ID)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %s: %w", path, err)
		}
	}
	return nil
}

// DropChapter un-caches one chapter and removes its files, except files
// shared with a chapter that remains cached.
func (m *Manager) DropChapter(itemID, chapterID string) error {
	item, err := m.store.Item(itemID)
	if err != nil {
		return err
	}
	if item == nil {
		return nil
	}
	if err := m.store.UpsertItem(*item, m.account, nil, []string{chapterID}); err != nil {
		return err
	}
	for _, chapter := range item.Chapters {
		if chapter.ID != chapterID {
			continue
		}
		// The persisted flag is already cleared; evict against the
		// updated view so shared files survive.
		updated := *item
		updated.Chapters = append([]models.Chapter(nil), item.Chapters...)
		for i := range updated.Chapters {
			if updated.Chapters[i].ID == chapterID {
				updated.Chapters[i].Cached = false
			}
		}
		return m.evictChapterFiles(updated, chapter)
	}
	return nil
}

// DropItem un-caches every chapter and deletes the item's storage root.
// Dropping an item that has nothing on disk is a no-op.
func (m *Manager) DropItem(itemID string) error {
	item, err := m.store.Item(itemID)
	if err != nil {
		return err
	}
	if item != nil {
		dropped := make([]string, 0, len(item.Chapters))
		for _, chapter := range item.Chapters {
			dropped = append(dropped, chapter.ID)
		}
		if err := m.store.UpsertItem(*item, m.account, nil, dropped); err != nil {
			return err
		}
	}
	if err := os.RemoveAll(m.layout.ItemRoot(itemID)); err != nil {
		return err
	}
	m.setState(itemID, models.CacheState{Status: models.CacheIdle})
	return nil
}

// DropCompleted evicts every cached chapter the listener has already
// finished, reclaiming space without touching upcoming content.
func (m *Manager) DropCompleted(itemID string, currentTotalTime float64) error {
	item, err := m.store.Item(itemID)
	if err != nil {
		return err
	}
	if item == nil {
		return nil
	}
	for _, chapter := range item.Chapters {
		if chapter.Cached && chapter.End <= currentTotalTime {
			if err := m.DropChapter(itemID, chapter.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// IsComplete reports whether every chapter of the item is on disk.
func (m *Manager) IsComplete(itemID string) (bool, error) {
	item, err := m.store.Item(itemID)
	if err != nil {
		return false, err
	}
	return item != nil && item.AllChaptersCached(), nil
}

// CachedSize reports the bytes this item occupies on disk.
func (m *Manager) CachedSize(itemID string) (int64, error) {
	item, err := m.store.Item(itemID)
	if err != nil {
		return 0, err
	}
	if item == nil {
		return 0, nil
	}
	ids := make([]string, 0, len(item.Files))
	for _, file := range item.Files {
		ids = append(ids, file.ID)
	}
	return m.layout.ItemSize(itemID, ids), nil
}
