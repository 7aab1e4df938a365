package playback

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/pinesap/lectern/channel"
	"github.com/pinesap/lectern/db"
	"github.com/pinesap/lectern/library"
	"github.com/pinesap/lectern/live"
	"github.com/pinesap/lectern/models"
)

const (
	syncIntervalLong  = 10 * time.Second
	syncIntervalShort = 5 * time.Second
	// Near a file boundary syncs tighten up so a track transition is
	// never more than a couple of seconds stale on the server.
	shortSyncWindow = 2*syncIntervalLong - time.Second
)

type Service struct {
	repo   *library.Repository
	remote channel.Channel
	store  db.Store
	player Player
	state  *live.Value[State]

	// syncing is the try-lock: a tick that finds it held is skipped
	// outright rather than queued.
	syncing sync.Mutex

	mu             sync.Mutex
	session        *models.PlaybackSession
	sessionChapter int
	loopCancel     context.CancelFunc
	loopItem       string
	loopGen        uint64

	longInterval  time.Duration
	shortInterval time.Duration
}

func NewService(repo *library.Repository, remote channel.Channel, store db.Store, player Player) *Service {
	return &Service{
		repo:          repo,
		remote:        remote,
		store:         store,
		player:        player,
		state:         live.NewValue(State{Status: StatusStopped}),
		longInterval:  syncIntervalLong,
		shortInterval: syncIntervalShort,
	}
}

// Watch streams the service's view of playback, starting with the
// current state.
func (s *Service) Watch(ctx context.Context) <-chan State {
	return s.state.Subscribe(ctx)
}

func (s *Service) CurrentState() State {
	return s.state.Get()
}

// OnPlayerEvent is called for every player event of interest: track
// transition, play/pause, seek, state change. It syncs immediately and
// keeps the periodic loop running while playback is ongoing.
func (s *Service) OnPlayerEvent(ctx context.Context) {
	snapshot, ok := s.player.Snapshot()
	if !ok {
		s.Stop()
		return
	}
	if err := s.sync(ctx); err != nil {
		slog.Debug("Immediate sync failed", slog.String("error", err.Error()))
	}
	if snapshot.Status == StatusPlaying {
		s.ensureLoop(ctx, snapshot.ItemID)
	} else if snapshot.Status == StatusStopped {
		s.Stop()
	}
}

// Stop cancels the sync loop and forgets the open session. Preparing a
// new item goes through here so the old item's loop can never outlive it.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loopCancel != nil {
		s.loopCancel()
		s.loopCancel = nil
	}
	s.loopItem = ""
	s.session = nil
}

func (s *Service) ensureLoop(ctx context.Context, itemID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loopCancel != nil && s.loopItem == itemID {
		return
	}
	if s.loopCancel != nil {
		s.loopCancel()
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.loopCancel = cancel
	s.loopItem = itemID
	s.loopGen++
	go s.loop(loopCtx, itemID, s.loopGen)
}

func (s *Service) loop(ctx context.Context, itemID string, gen uint64) {
	defer s.finishLoop(gen)
	for {
		interval := s.nextInterval()
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		snapshot, ok := s.player.Snapshot()
		if !ok || snapshot.ItemID != itemID || snapshot.Status != StatusPlaying {
			return
		}
		if err := s.sync(ctx); err != nil {
			slog.Debug("Periodic sync failed",
				slog.String("item", itemID),
				slog.String("error", err.Error()))
		}
	}
}

// finishLoop releases the loop handle when the loop owning it exits, so
// the next play event can start a fresh one. The generation check keeps
// an old loop's exit from tearing down a loop that already replaced it.
func (s *Service) finishLoop(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loopGen != gen {
		return
	}
	if s.loopCancel != nil {
		s.loopCancel()
		s.loopCancel = nil
	}
	s.loopItem = ""
}

// nextInterval picks the adaptive spacing: short near the start or end
// of the current file, long in the middle.
func (s *Service) nextInterval() time.Duration {
	snapshot, ok := s.player.Snapshot()
	if !ok {
		return s.longInterval
	}
	item, err := s.store.Item(snapshot.ItemID)
	if err != nil || item == nil || snapshot.FileIndex >= len(item.Files) {
		return s.longInterval
	}
	fileDuration := item.Files[snapshot.FileIndex].Duration
	window := shortSyncWindow.Seconds()
	if snapshot.Elapsed <= window || fileDuration-snapshot.Elapsed <= window {
		return s.shortInterval
	}
	return s.longInterval
}

// sync performs one guarded sync attempt. If another attempt holds the
// lock this one is dropped entirely, never queued.
func (s *Service) sync(ctx context.Context) error {
	if !s.syncing.TryLock() {
		return nil
	}
	defer s.syncing.Unlock()

	snapshot, ok := s.player.Snapshot()
	if !ok {
		return nil
	}
	item, err := s.store.Item(snapshot.ItemID)
	if err != nil {
		return err
	}
	if item == nil {
		return nil
	}

	totalTime := TotalTime(*item, snapshot.FileIndex, snapshot.Elapsed)
	progress := models.PlaybackProgress{
		TotalTime:   totalTime,
		ChapterTime: models.ChapterPosition(*item, totalTime),
	}
	chapterIndex := models.ChapterIndex(*item, totalTime)

	sessionID := s.ensureSession(ctx, snapshot.ItemID, chapterIndex)

	// The local write happens inside SyncProgress before any remote
	// traffic, so a failed push can never lose listening time.
	err = s.repo.SyncProgress(ctx, sessionID, snapshot.ItemID, progress)
	if errors.Is(err, channel.ErrNotFound) {
		// The server discarded the session. Drop it and let the next
		// tick open a fresh one instead of retrying in place.
		s.mu.Lock()
		s.session = nil
		s.mu.Unlock()
	}

	s.state.Set(State{
		ItemID:   snapshot.ItemID,
		Status:   snapshot.Status,
		Progress: progress,
	})
	return err
}

// ensureSession returns the open session id, opening a fresh session
// when there is none, the item changed, or the listener crossed into a
// different chapter. An open failure leaves the session empty; the local
// progress write still proceeds.
func (s *Service) ensureSession(ctx context.Context, itemID string, chapterIndex int) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != nil && s.session.ItemID == itemID && s.sessionChapter == chapterIndex {
		return s.session.SessionID
	}

	session, err := s.remote.StartPlayback(ctx, itemID)
	if err != nil {
		slog.Debug("Failed to open playback session",
			slog.String("item", itemID),
			slog.String("error", err.Error()))
		s.session = nil
		return ""
	}
	s.session = &session
	s.sessionChapter = chapterIndex
	return session.SessionID
}
