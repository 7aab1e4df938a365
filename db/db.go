// Package db is the durable local mirror of library metadata and
// progress. All multi-row mutations are transactional and every listing
// query is built with bound parameters.
package db

import "github.com/pinesap/lectern/models"

// Account scopes rows to the server and user that produced them. Rows
// written before accounts existed carry NULLs and are matched by the
// cached-content side of the isolation clause only.
type Account struct {
	Host     string
	Username string
}

// Store is everything the repository, caching manager and playback
// service need from persistence. SqliteStore is the real implementation;
// MemoryStore backs tests.
type Store interface {
	// UpsertItem writes a full item in one transaction: the item row, a
	// replacement of its file and chapter rows, and progress when present.
	// The chapter cache flags merge as follows: ids in fetched become
	// cached, ids in dropped become un-cached, and any chapter already
	// cached locally stays cached even when the new payload forgot it.
	UpsertItem(item models.DetailedItem, account Account, fetched, dropped []string) error

	// UpsertSummaries refreshes item-level summary fields only, leaving
	// chapters, files and any richer metadata already stored untouched.
	UpsertSummaries(books []models.Book, account Account) error

	// Item returns the full item or nil when it is not mirrored locally.
	Item(id string) (*models.DetailedItem, error)

	Items(req ListRequest) ([]models.Book, error)
	CountItems(libraryID string, account Account) (int, error)
	Search(req SearchRequest) ([]models.Book, error)
	Recent(req RecentRequest) ([]models.RecentBook, error)

	SaveProgress(itemID string, progress models.MediaProgress, account Account) error
	Progress(itemID string) (*models.MediaProgress, error)
	LatestProgressUpdate(libraryID string) (int64, error)

	UpsertLibraries(libraries []models.Library, account Account) error
	Libraries(account Account) ([]models.Library, error)

	HasCachedChapters(itemID string) (bool, error)
	IsChapterCached(itemID, chapterID string) (bool, error)
	SetDominantColours(itemID string, colours models.Colours) error

	DeleteItem(id string) error

	// DeleteWithoutDownloads removes every item that has no cached
	// chapter, reclaiming metadata-only mirror entries while never
	// touching anything the user downloaded.
	DeleteWithoutDownloads() error
}
