// Package channel talks to the remote media server. It is the only
// package that knows the server's wire format; everything it returns is
// already converted to the local domain types.
package channel

import (
	"context"
	"errors"
	"io"

	"github.com/pinesap/lectern/models"
)

var (
	// ErrNotFound means the server answered and the entity does not
	// exist, for example a playback session it already discarded.
	ErrNotFound = errors.New("channel: not found")
	// ErrUnavailable means the server could not be reached or answered
	// with a transport-level failure. Callers fall back to local data.
	ErrUnavailable = errors.New("channel: server unavailable")
)

// Channel is the remote side of the repository. Client implements it
// against a real server; tests substitute their own.
type Channel interface {
	FetchLibraries(ctx context.Context) ([]models.Library, error)
	FetchBooks(ctx context.Context, libraryID string, page, pageSize int) (models.PagedItems[models.Book], error)
	FetchBook(ctx context.Context, itemID string) (*models.DetailedItem, error)
	FetchRecentListened(ctx context.Context, libraryID string) ([]models.RecentBook, error)
	SearchBooks(ctx context.Context, libraryID, query string, limit int) ([]models.Book, error)

	StartPlayback(ctx context.Context, itemID string) (models.PlaybackSession, error)
	SyncProgress(ctx context.Context, sessionID string, progress models.PlaybackProgress) error

	FetchBookCover(ctx context.Context, itemID string) (io.ReadCloser, error)
	FetchFile(ctx context.Context, itemID, fileID string) (io.ReadCloser, error)
	ProvideFileURI(itemID, fileID string) (string, error)
}
