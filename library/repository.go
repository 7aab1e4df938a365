// Package library is the local-first façade over the metadata mirror
// and the remote channel. Reads prefer local data and fall back to the
// server; anything fetched remotely is persisted before it is returned.
package library

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/pinesap/lectern/channel"
	"github.com/pinesap/lectern/db"
	"github.com/pinesap/lectern/models"
	"github.com/pinesap/lectern/storage"
)

// ErrContentUnavailable means a file is neither cached on disk nor
// streamable because the server is unreachable.
var ErrContentUnavailable = errors.New("library: content unavailable offline")

// Reachability is the slice of the network monitor the repository needs.
type Reachability interface {
	Online() bool
}

// Settings is the slice of the preferences store the repository needs.
type Settings interface {
	ForceOffline() bool
	Ordering() (field string, ascending bool)
}

type Repository struct {
	store   db.Store
	remote  channel.Channel
	net     Reachability
	prefs   Settings
	layout  *storage.Layout
	account db.Account
}

func NewRepository(store db.Store, remote channel.Channel, net Reachability, prefs Settings, layout *storage.Layout, account db.Account) *Repository {
	return &Repository{
		store:   store,
		remote:  remote,
		net:     net,
		prefs:   prefs,
		layout:  layout,
		account: account,
	}
}

func (r *Repository) FetchLibraries(ctx context.Context) ([]models.Library, error) {
	local, err := r.store.Libraries(r.account)
	if err != nil {
		return nil, err
	}
	if len(local) > 0 {
		return local, nil
	}
	remote, err := r.remote.FetchLibraries(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.store.UpsertLibraries(remote, r.account); err != nil {
		slog.Error("Failed to persist libraries", slog.String("error", err.Error()))
	}
	return remote, nil
}

func (r *Repository) FetchBooks(ctx context.Context, libraryID string, page, pageSize int) (models.PagedItems[models.Book], error) {
	orderBy, ascending := r.prefs.Ordering()
	local, err := r.store.Items(db.ListRequest{
		LibraryID: libraryID,
		Account:   r.account,
		OrderBy:   orderBy,
		Ascending: ascending,
		Limit:     pageSize,
		Offset:    page * pageSize,
	})
	if err != nil {
		return models.PagedItems[models.Book]{}, err
	}
	if len(local) > 0 {
		total, err := r.store.CountItems(libraryID, r.account)
		if err != nil {
			return models.PagedItems[models.Book]{}, err
		}
		return models.PagedItems[models.Book]{Items: local, CurrentPage: page, TotalItems: total}, nil
	}

	remote, err := r.remote.FetchBooks(ctx, libraryID, page, pageSize)
	if err != nil {
		return models.PagedItems[models.Book]{}, err
	}
	if err := r.store.UpsertSummaries(remote.Items, r.account); err != nil {
		slog.Error("Failed to persist book summaries", slog.String("error", err.Error()))
	}
	return remote, nil
}

// FetchBook returns the richest item it can. A local row counts as a
// detailed hit only when it actually carries chapters or files; a bare
// summary falls through to the server so the caller never receives an
// item it cannot play.
func (r *Repository) FetchBook(ctx context.Context, itemID string) (*models.DetailedItem, error) {
	local, err := r.store.Item(itemID)
	if err != nil {
		return nil, err
	}
	if local != nil && (len(local.Chapters) > 0 || len(local.Files) > 0) {
		return r.makeAvailableIfOnline(local), nil
	}

	remote, err := r.remote.FetchBook(ctx, itemID)
	if err != nil {
		if local != nil {
			return r.makeAvailableIfOnline(local), nil
		}
		return nil, err
	}

	localProgress, err := r.store.Progress(itemID)
	if err != nil {
		return nil, err
	}
	remote.Progress = MergeProgress(localProgress, remote.Progress)

	if err := r.store.UpsertItem(*remote, r.account, nil, nil); err != nil {
		return nil, err
	}
	// Read back so carried-forward cache flags are reflected in what the
	// caller sees, not just on disk.
	persisted, err := r.store.Item(itemID)
	if err != nil {
		return nil, err
	}
	if persisted == nil {
		return r.makeAvailableIfOnline(remote), nil
	}
	return r.makeAvailableIfOnline(persisted), nil
}

// makeAvailableIfOnline marks every chapter available for streaming when
// the server is reachable. It works on a copy: the persisted cache flags
// are never touched.
func (r *Repository) makeAvailableIfOnline(item *models.DetailedItem) *models.DetailedItem {
	clone := *item
	clone.Chapters = append([]models.Chapter(nil), item.Chapters...)
	online := r.net.Online() && !r.prefs.ForceOffline()
	for i := range clone.Chapters {
		if online {
			clone.Chapters[i].Available = true
		} else {
			clone.Chapters[i].Available = clone.Chapters[i].Cached
		}
	}
	return &clone
}

func (r *Repository) Search(ctx context.Context, libraryID, query string, limit int) ([]models.Book, error) {
	local, err := r.store.Search(db.SearchRequest{
		LibraryID: libraryID,
		Account:   r.account,
		Query:     query,
	})
	if err != nil {
		return nil, err
	}
	if len(local) > 0 {
		if limit > 0 && limit < len(local) {
			local = local[:limit]
		}
		return local, nil
	}

	remote, err := r.remote.SearchBooks(ctx, libraryID, query, limit)
	if err != nil {
		return nil, err
	}
	if err := r.store.UpsertSummaries(remote, r.account); err != nil {
		slog.Error("Failed to persist search results", slog.String("error", err.Error()))
	}
	return remote, nil
}

func (r *Repository) Recent(ctx context.Context, libraryID string, limit int) ([]models.RecentBook, error) {
	local, err := r.store.Recent(db.RecentRequest{
		LibraryID: libraryID,
		Account:   r.account,
		Limit:     limit,
	})
	if err != nil {
		return nil, err
	}
	if len(local) > 0 {
		return local, nil
	}
	return r.remote.FetchRecentListened(ctx, libraryID)
}

// LatestProgressUpdate reports when any item in the library last
// recorded listening progress, in unix milliseconds. Zero means nothing
// has been listened to locally.
func (r *Repository) LatestProgressUpdate(libraryID string) (int64, error) {
	return r.store.LatestProgressUpdate(libraryID)
}

// ClearMetadata deletes every mirrored item that has no cached chapter.
// User downloads and their metadata are untouched.
func (r *Repository) ClearMetadata() error {
	return r.store.DeleteWithoutDownloads()
}

// RemoveItem deletes one item's mirrored metadata outright, progress
// included. Callers drop the item's cached content first.
func (r *Repository) RemoveItem(itemID string) error {
	return r.store.DeleteItem(itemID)
}

// SyncProgress writes progress locally first, so offline listening is
// never lost, then pushes it to the open session. With force-offline set
// the push is skipped and the call succeeds on the local write alone.
func (r *Repository) SyncProgress(ctx context.Context, sessionID, itemID string, progress models.PlaybackProgress) error {
	record := models.MediaProgress{
		CurrentTime: progress.TotalTime,
		LastUpdate:  time.Now().UnixMilli(),
	}
	if err := r.store.SaveProgress(itemID, record, r.account); err != nil {
		return err
	}
	if r.prefs.ForceOffline() {
		return nil
	}
	if sessionID == "" {
		return channel.ErrUnavailable
	}
	return r.remote.SyncProgress(ctx, sessionID, progress)
}

// ProvideFileURI prefers the on-disk copy and only falls back to a
// streaming URL when the server is reachable.
func (r *Repository) ProvideFileURI(itemID, fileID string) (string, error) {
	path := r.layout.MediaPath(itemID, fileID)
	if _, err := os.Stat(path); err == nil {
		return "file://" + path, nil
	}
	if !r.net.Online() || r.prefs.ForceOffline() {
		return "", ErrContentUnavailable
	}
	return r.remote.ProvideFileURI(itemID, fileID)
}

// MergeProgress picks the progress record with the newer LastUpdate.
// A tie keeps the local record, and a missing remote record never
// overwrites a local one.
func MergeProgress(local, remote *models.MediaProgress) *models.MediaProgress {
	if remote == nil {
		return local
	}
	if local == nil {
		return remote
	}
	if remote.LastUpdate > local.LastUpdate {
		return remote
	}
	return local
}
