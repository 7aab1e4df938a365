package library

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pinesap/lectern/db"
	"github.com/pinesap/lectern/models"
)

const (
	syncPageSize   = 100
	syncBatchLimit = 20

	coverPrefetchDelay   = 2 * time.Second
	coverPrefetchSpacing = 100 * time.Millisecond

	recentReconcileLimit = 20
)

// CoverFetcher pulls an item's cover into local storage. Prefetch
// failures are logged and never fail a sync.
type CoverFetcher interface {
	FetchCover(ctx context.Context, itemID string) error
}

// SyncLibrary reconciles the local mirror with the server. Summary rows
// land first so listings refresh quickly, then items that are new or
// newer remotely get a full detail fetch in bounded concurrent batches.
func (r *Repository) SyncLibrary(ctx context.Context, libraryID string, covers CoverFetcher) error {
	stale := []string{}
	for page := 0; ; page++ {
		remote, err := r.remote.FetchBooks(ctx, libraryID, page, syncPageSize)
		if err != nil {
			return err
		}

		// Diff before the summary upsert, otherwise the upsert itself
		// would erase the updatedAt signal we are diffing on.
		for _, book := range remote.Items {
			local, err := r.store.Item(book.ID)
			if err != nil {
				return err
			}
			switch {
			case local == nil:
				stale = append(stale, book.ID)
			case book.UpdatedAt > local.UpdatedAt:
				stale = append(stale, book.ID)
			case len(local.Chapters) == 0 && len(local.Files) == 0:
				// A summary-only row from an interrupted earlier run.
				stale = append(stale, book.ID)
			}
		}

		if err := r.store.UpsertSummaries(remote.Items, r.account); err != nil {
			return err
		}
		if len(remote.Items) < syncPageSize {
			break
		}
	}

	fetched := r.fetchDetails(ctx, stale)
	slog.Debug("Library sync complete",
		slog.String("library", libraryID),
		slog.Int("stale", len(stale)),
		slog.Int("fetched", len(fetched)))

	if covers != nil && len(fetched) > 0 {
		r.prefetchCovers(ctx, fetched, covers)
	}
	return nil
}

// fetchDetails pulls full items concurrently, at most syncBatchLimit in
// flight, and returns the ids that were persisted successfully.
func (r *Repository) fetchDetails(ctx context.Context, ids []string) []string {
	var mu sync.Mutex
	fetched := []string{}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(syncBatchLimit)
	for _, id := range ids {
		g.Go(func() error {
			item, err := r.remote.FetchBook(ctx, id)
			if err != nil {
				slog.Warn("Failed to fetch item detail",
					slog.String("item", id),
					slog.String("error", err.Error()))
				return nil
			}
			local, err := r.store.Progress(id)
			if err != nil {
				return nil
			}
			item.Progress = MergeProgress(local, item.Progress)
			if err := r.store.UpsertItem(*item, r.account, nil, nil); err != nil {
				slog.Error("Failed to persist item detail",
					slog.String("item", id),
					slog.String("error", err.Error()))
				return nil
			}
			mu.Lock()
			fetched = append(fetched, id)
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return fetched
}

// prefetchCovers warms cover files one at a time with a small spacing
// delay so a big sync does not saturate the connection.
func (r *Repository) prefetchCovers(ctx context.Context, ids []string, covers CoverFetcher) {
	if !sleepCtx(ctx, coverPrefetchDelay) {
		return
	}
	for _, id := range ids {
		if err := covers.FetchCover(ctx, id); err != nil {
			slog.Debug("Cover prefetch failed",
				slog.String("item", id),
				slog.String("error", err.Error()))
		}
		if !sleepCtx(ctx, coverPrefetchSpacing) {
			return
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// SyncRecents reconciles listening positions in both directions. An id
// whose remote record is strictly newer gets its detail refetched and
// cached; one whose local record is strictly newer is pushed to the
// server through a fresh playback session. Equal timestamps do nothing.
func (r *Repository) SyncRecents(ctx context.Context, libraryID string) error {
	remote, err := r.remote.FetchRecentListened(ctx, libraryID)
	if err != nil {
		return err
	}
	local, err := r.store.Recent(db.RecentRequest{
		LibraryID: libraryID,
		Account:   r.account,
		Limit:     recentReconcileLimit,
	})
	if err != nil {
		return err
	}

	remoteByID := map[string]models.RecentBook{}
	for _, rec := range remote {
		remoteByID[rec.ID] = rec
	}
	localByID := map[string]models.RecentBook{}
	for _, rec := range local {
		localByID[rec.ID] = rec
	}

	ids := map[string]struct{}{}
	for id := range remoteByID {
		ids[id] = struct{}{}
	}
	for id := range localByID {
		ids[id] = struct{}{}
	}

	for id := range ids {
		remoteRec, hasRemote := remoteByID[id]
		localRec, hasLocal := localByID[id]
		switch {
		case hasRemote && (!hasLocal || remoteRec.ListenedLastUpdate > localRec.ListenedLastUpdate):
			if fetched := r.fetchDetails(ctx, []string{id}); len(fetched) == 0 {
				slog.Warn("Failed to pull newer remote progress", slog.String("item", id))
			}
		case hasLocal && (!hasRemote || localRec.ListenedLastUpdate > remoteRec.ListenedLastUpdate):
			if err := r.pushProgress(ctx, id, localRec.CurrentTime); err != nil {
				slog.Warn("Failed to push local progress",
					slog.String("item", id),
					slog.String("error", err.Error()))
			}
		}
	}
	return nil
}

// pushProgress opens a throwaway session anchored at the local position
// so the server catches up with offline listening.
func (r *Repository) pushProgress(ctx context.Context, itemID string, currentTime float64) error {
	session, err := r.remote.StartPlayback(ctx, itemID)
	if err != nil {
		return err
	}
	return r.remote.SyncProgress(ctx, session.SessionID, models.PlaybackProgress{TotalTime: currentTime})
}
