package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/pinesap/lectern/caching"
	"github.com/pinesap/lectern/library"
	"github.com/pinesap/lectern/network"
	"github.com/pinesap/lectern/prefs"
)

const (
	reachabilityInterval = 15 * time.Second
	recentSyncInterval   = 5 * time.Minute
	librarySyncInterval  = 30 * time.Minute
)

func SetupInBackground(
	repo *library.Repository,
	monitor *network.Monitor,
	covers *caching.Covers,
	settings *prefs.Store,
) (gocron.Scheduler, error) {
	s, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, err
	}

	s.NewJob(
		gocron.DurationJob(reachabilityInterval),
		gocron.NewTask(func() {
			monitor.Refresh(context.Background())
		}),
	)

	s.NewJob(
		gocron.DurationJob(librarySyncInterval),
		gocron.NewTask(func() {
			if !monitor.Online() || settings.ForceOffline() {
				return
			}
			libraryID := settings.PreferredLibrary()
			if libraryID == "" {
				return
			}
			if err := repo.SyncLibrary(context.Background(), libraryID, covers); err != nil {
				slog.Warn("Library sync failed",
					slog.String("library", libraryID),
					slog.String("error", err.Error()))
			}
		}),
	)

	s.NewJob(
		gocron.DurationJob(recentSyncInterval),
		gocron.NewTask(func() {
			if !monitor.Online() || settings.ForceOffline() {
				return
			}
			libraryID := settings.PreferredLibrary()
			if libraryID == "" {
				return
			}
			if err := repo.SyncRecents(context.Background(), libraryID); err != nil {
				slog.Warn("Recents sync failed",
					slog.String("library", libraryID),
					slog.String("error", err.Error()))
			}
		}),
	)

	// Seed the reachability verdict so the first requests don't all see
	// a stale offline status.
	monitor.Refresh(context.Background())

	return s, nil
}
