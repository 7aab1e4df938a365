package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/r3labs/sse/v2"

	"github.com/pinesap/lectern/caching"
	"github.com/pinesap/lectern/channel"
	"github.com/pinesap/lectern/config"
	"github.com/pinesap/lectern/db"
	"github.com/pinesap/lectern/events"
	"github.com/pinesap/lectern/library"
	"github.com/pinesap/lectern/migrations"
	"github.com/pinesap/lectern/network"
	"github.com/pinesap/lectern/playback"
	"github.com/pinesap/lectern/prefs"
	"github.com/pinesap/lectern/storage"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println(err)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.GetLogLevel(),
	}))
	slog.SetDefault(logger)

	store, err := db.NewSqliteStore(cfg.Lectern.DbPath)
	if err != nil {
		slog.Error("Failed to open database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := store.ApplyMigrations(migrations.GetMigrations()); err != nil {
		slog.Error("Failed to apply migrations", slog.String("error", err.Error()))
		os.Exit(1)
	}

	settings, err := prefs.NewStore(cfg.Lectern.PrefsDir)
	if err != nil {
		slog.Error("Failed to open preferences", slog.String("error", err.Error()))
		os.Exit(1)
	}

	layout := storage.NewLayout(cfg.Lectern.StorageDir, cfg.Lectern.FallbackStorageDir)
	remote := channel.NewClient(cfg.Server.URL, cfg.Server.Token, cfg.Server.Username, settings.DeviceID())
	monitor := network.NewMonitor(cfg.Server.URL)
	account := db.Account{Host: cfg.Server.URL, Username: cfg.Server.Username}

	repo := library.NewRepository(store, remote, monitor, settings, layout, account)
	covers := caching.NewCovers(remote, store, layout)
	manager := caching.NewManager(remote, store, layout, covers, account)

	player := &playback.ReportedPlayer{}
	service := playback.NewService(repo, remote, store, player)

	scheduler, err := SetupInBackground(repo, monitor, covers, settings)
	if err != nil {
		slog.Error("Failed to build scheduler", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if cfg.Lectern.BackgroundJobsEnabled {
		scheduler.Start()
		slog.Info("Background jobs have started up in the background.")
	} else {
		slog.Info("Background jobs are disabled.")
	}

	events.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go forwardPlaybackEvents(ctx, service)
	go forwardCacheEvents(ctx, manager)

	router := RegisterRoutes(http.NewServeMux(), repo, manager, service, player, layout, settings)

	slog.Info("Lectern is running", slog.String("port", cfg.Lectern.Port))

	if err := http.ListenAndServe(":"+cfg.Lectern.Port, router); err != nil {
		slog.Error("Server stopped", slog.String("error", err.Error()))
		service.Stop()
		scheduler.Shutdown()
		os.Exit(1)
	}
}

// forwardPlaybackEvents mirrors the sync service's state onto the SSE
// surface so connected clients see progress without polling.
func forwardPlaybackEvents(ctx context.Context, service *playback.Service) {
	for state := range service.Watch(ctx) {
		byteStream := new(bytes.Buffer)
		if err := json.NewEncoder(byteStream).Encode(state); err != nil {
			continue
		}
		events.Server.Publish("playback", &sse.Event{Data: byteStream.Bytes()})
	}
}

func forwardCacheEvents(ctx context.Context, manager *caching.Manager) {
	for event := range manager.Watch(ctx) {
		byteStream := new(bytes.Buffer)
		if err := json.NewEncoder(byteStream).Encode(event); err != nil {
			continue
		}
		events.Server.Publish("cache", &sse.Event{Data: byteStream.Bytes()})
	}
}
