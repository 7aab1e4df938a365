package db

import (
	"sort"
	"strings"
	"sync"

	"github.com/pinesap/lectern/models"
)

// MemoryStore is a map-backed Store used by tests. It mirrors the
// SqliteStore semantics, including the chapter cache-flag carry-forward
// and the account isolation rule, without touching disk.
type MemoryStore struct {
	mu               sync.RWMutex
	items            map[string]models.DetailedItem
	accounts         map[string]Account
	progress         map[string]models.MediaProgress
	progressAccounts map[string]Account
	colours          map[string]models.Colours
	// durations mirrors the items.duration column: a summary upsert may
	// overwrite it without the chapters ever changing.
	durations map[string]float64
	// summaryOnly marks rows written by UpsertSummaries that were never
	// upgraded to a full item.
	summaryOnly map[string]models.Book
	libraries   map[Account][]models.Library
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:            map[string]models.DetailedItem{},
		accounts:         map[string]Account{},
		progress:         map[string]models.MediaProgress{},
		progressAccounts: map[string]Account{},
		colours:          map[string]models.Colours{},
		durations:        map[string]float64{},
		summaryOnly:      map[string]models.Book{},
		libraries:        map[Account][]models.Library{},
	}
}

func (m *MemoryStore) UpsertItem(item models.DetailedItem, account Account, fetched, dropped []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	previous, existed := m.items[item.ID]
	stored := item
	stored.Chapters = make([]models.Chapter, len(item.Chapters))
	for i, chapter := range item.Chapters {
		cached := false
		switch {
		case contains(dropped, chapter.ID):
			cached = false
		case contains(fetched, chapter.ID):
			cached = true
		case existed:
			for _, old := range previous.Chapters {
				if old.ID == chapter.ID && old.Cached {
					cached = true
				}
			}
		}
		chapter.Cached = cached
		stored.Chapters[i] = chapter
	}
	if item.Progress != nil {
		m.progress[item.ID] = *item.Progress
		m.progressAccounts[item.ID] = account
	}
	stored.Progress = nil
	m.items[item.ID] = stored
	m.accounts[item.ID] = account
	m.durations[item.ID] = stored.TotalDuration()
	delete(m.summaryOnly, item.ID)
	return nil
}

func (m *MemoryStore) UpsertSummaries(books []models.Book, account Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, book := range books {
		if full, ok := m.items[book.ID]; ok {
			full.Title = book.Title
			full.Subtitle = book.Subtitle
			full.Author = book.Author
			full.Series = models.ParseSeriesNames(book.Series)
			full.LibraryID = book.LibraryID
			full.UpdatedAt = book.UpdatedAt
			m.items[book.ID] = full
			m.durations[book.ID] = book.Duration
		} else {
			m.summaryOnly[book.ID] = book
		}
		m.accounts[book.ID] = account
	}
	return nil
}

func (m *MemoryStore) Item(id string) (*models.DetailedItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.items[id]
	if !ok {
		if summary, ok := m.summaryOnly[id]; ok {
			shell := models.DetailedItem{
				ID:        summary.ID,
				Title:     summary.Title,
				Subtitle:  summary.Subtitle,
				Author:    summary.Author,
				LibraryID: summary.LibraryID,
				UpdatedAt: summary.UpdatedAt,
			}
			return &shell, nil
		}
		return nil, nil
	}
	clone := item
	clone.Chapters = append([]models.Chapter(nil), item.Chapters...)
	clone.Files = append([]models.File(nil), item.Files...)
	clone.DominantColours = m.colours[id]
	if progress, ok := m.progress[id]; ok {
		p := progress
		clone.Progress = &p
	}
	return &clone, nil
}

func (m *MemoryStore) visible(id string, account Account) bool {
	if m.accounts[id] == account {
		return true
	}
	for _, chapter := range m.items[id].Chapters {
		if chapter.Cached {
			return true
		}
	}
	return false
}

func (m *MemoryStore) summaries(libraryID string, account Account) []models.Book {
	books := []models.Book{}
	for id, item := range m.items {
		if item.LibraryID != libraryID || !m.visible(id, account) {
			continue
		}
		books = append(books, models.Book{
			ID:        item.ID,
			Title:     item.Title,
			Subtitle:  item.Subtitle,
			Author:    item.Author,
			Series:    item.SeriesNames(),
			Duration:  m.durations[id],
			LibraryID: item.LibraryID,
			CreatedAt: item.CreatedAt,
			UpdatedAt: item.UpdatedAt,
		})
	}
	for id, book := range m.summaryOnly {
		if book.LibraryID != libraryID || !m.visible(id, account) {
			continue
		}
		books = append(books, book)
	}
	return books
}

func (m *MemoryStore) Items(req ListRequest) ([]models.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	books := m.summaries(req.LibraryID, req.Account)
	sort.Slice(books, func(i, j int) bool {
		a, b := books[i], books[j]
		less := false
		switch req.OrderBy {
		case "author":
			if a.Author != b.Author {
				less = a.Author < b.Author
			} else {
				less = a.ID < b.ID
			}
		case "createdAt":
			if a.CreatedAt != b.CreatedAt {
				less = a.CreatedAt < b.CreatedAt
			} else {
				less = a.ID < b.ID
			}
		case "updatedAt":
			if a.UpdatedAt != b.UpdatedAt {
				less = a.UpdatedAt < b.UpdatedAt
			} else {
				less = a.ID < b.ID
			}
		default:
			if a.Title != b.Title {
				less = a.Title < b.Title
			} else {
				less = a.ID < b.ID
			}
		}
		if req.Ascending {
			return less
		}
		return !less
	})

	if req.Offset >= len(books) {
		return []models.Book{}, nil
	}
	books = books[req.Offset:]
	if req.Limit > 0 && req.Limit < len(books) {
		books = books[:req.Limit]
	}
	return books, nil
}

func (m *MemoryStore) CountItems(libraryID string, account Account) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.summaries(libraryID, account)), nil
}

func (m *MemoryStore) Search(req SearchRequest) ([]models.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	query := strings.ToLower(req.Query)
	matched := []models.Book{}
	for _, book := range m.summaries(req.LibraryID, req.Account) {
		haystack := strings.ToLower(book.Title + " " + book.Author + " " + book.Series)
		if strings.Contains(haystack, query) {
			matched = append(matched, book)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Title != matched[j].Title {
			return matched[i].Title < matched[j].Title
		}
		return matched[i].ID < matched[j].ID
	})
	return matched, nil
}

func (m *MemoryStore) Recent(req RecentRequest) ([]models.RecentBook, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	recents := []models.RecentBook{}
	for id, progress := range m.progress {
		item, ok := m.items[id]
		if !ok || item.LibraryID != req.LibraryID || !m.visible(id, req.Account) {
			continue
		}
		if progress.CurrentTime <= 0 || progress.IsFinished {
			continue
		}
		percentage := 0
		if total := m.durations[id]; total > 0 {
			percentage = int(progress.CurrentTime / total * 100)
		}
		recents = append(recents, models.RecentBook{
			ID:                 id,
			Title:              item.Title,
			Author:             item.Author,
			ListenedPercentage: percentage,
			ListenedLastUpdate: progress.LastUpdate,
			CurrentTime:        progress.CurrentTime,
		})
	}
	sort.Slice(recents, func(i, j int) bool {
		if recents[i].ListenedLastUpdate != recents[j].ListenedLastUpdate {
			return recents[i].ListenedLastUpdate > recents[j].ListenedLastUpdate
		}
		return recents[i].ID > recents[j].ID
	})
	if req.Limit > 0 && req.Limit < len(recents) {
		recents = recents[:req.Limit]
	}
	return recents, nil
}

func (m *MemoryStore) SaveProgress(itemID string, progress models.MediaProgress, account Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progress[itemID] = progress
	m.progressAccounts[itemID] = account
	return nil
}

func (m *MemoryStore) Progress(itemID string) (*models.MediaProgress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	progress, ok := m.progress[itemID]
	if !ok {
		return nil, nil
	}
	return &progress, nil
}

func (m *MemoryStore) LatestProgressUpdate(libraryID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	latest := int64(0)
	for id, progress := range m.progress {
		if item, ok := m.items[id]; ok && item.LibraryID == libraryID && progress.LastUpdate > latest {
			latest = progress.LastUpdate
		}
	}
	return latest, nil
}

func (m *MemoryStore) UpsertLibraries(libraries []models.Library, account Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.libraries[account] = append([]models.Library(nil), libraries...)
	return nil
}

func (m *MemoryStore) Libraries(account Account) ([]models.Library, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	libraries := append([]models.Library(nil), m.libraries[account]...)
	sort.Slice(libraries, func(i, j int) bool { return libraries[i].Title < libraries[j].Title })
	return libraries, nil
}

func (m *MemoryStore) HasCachedChapters(itemID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, chapter := range m.items[itemID].Chapters {
		if chapter.Cached {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) IsChapterCached(itemID, chapterID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, chapter := range m.items[itemID].Chapters {
		if chapter.ID == chapterID && chapter.Cached {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) SetDominantColours(itemID string, colours models.Colours) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.colours[itemID] = colours
	return nil
}

func (m *MemoryStore) DeleteItem(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
	delete(m.accounts, id)
	delete(m.progress, id)
	delete(m.progressAccounts, id)
	delete(m.colours, id)
	delete(m.durations, id)
	delete(m.summaryOnly, id)
	return nil
}

func (m *MemoryStore) DeleteWithoutDownloads() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, item := range m.items {
		downloaded := false
		for _, chapter := range item.Chapters {
			if chapter.Cached {
				downloaded = true
			}
		}
		if !downloaded {
			delete(m.items, id)
			delete(m.accounts, id)
			delete(m.progress, id)
			delete(m.progressAccounts, id)
			delete(m.colours, id)
			delete(m.durations, id)
		}
	}
	for id := range m.summaryOnly {
		delete(m.summaryOnly, id)
		delete(m.accounts, id)
	}
	return nil
}
