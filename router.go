package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/rs/cors"

	"github.com/pinesap/lectern/caching"
	"github.com/pinesap/lectern/events"
	"github.com/pinesap/lectern/library"
	"github.com/pinesap/lectern/models"
	"github.com/pinesap/lectern/playback"
	"github.com/pinesap/lectern/prefs"
	"github.com/pinesap/lectern/storage"
)

func renderJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}

func renderJSONError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func RegisterRoutes(
	mux *http.ServeMux,
	repo *library.Repository,
	manager *caching.Manager,
	service *playback.Service,
	player *playback.ReportedPlayer,
	layout *storage.Layout,
	settings *prefs.Store,
) http.Handler {

	events.Server.CreateStream("playback")
	events.Server.CreateStream("cache")

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, "Welcome to Lectern, an offline-first mirror of your audiobook library.\n")
	})

	mux.HandleFunc("GET /api/v1/libraries", func(w http.ResponseWriter, r *http.Request) {
		libraries, err := repo.FetchLibraries(r.Context())
		if err != nil {
			renderJSONError(w, http.StatusBadGateway, err)
			return
		}
		renderJSON(w, libraries)
	})

	mux.HandleFunc("GET /api/v1/libraries/{id}/items", func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		pageSize, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
		if pageSize <= 0 {
			pageSize = 20
		}
		books, err := repo.FetchBooks(r.Context(), r.PathValue("id"), page, pageSize)
		if err != nil {
			renderJSONError(w, http.StatusBadGateway, err)
			return
		}
		renderJSON(w, books)
	})

	mux.HandleFunc("GET /api/v1/libraries/{id}/search", func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if limit <= 0 {
			limit = 10
		}
		books, err := repo.Search(r.Context(), r.PathValue("id"), r.URL.Query().Get("q"), limit)
		if err != nil {
			renderJSONError(w, http.StatusBadGateway, err)
			return
		}
		renderJSON(w, books)
	})

	mux.HandleFunc("GET /api/v1/libraries/{id}/recent", func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if limit <= 0 {
			limit = 10
		}
		recents, err := repo.Recent(r.Context(), r.PathValue("id"), limit)
		if err != nil {
			renderJSONError(w, http.StatusBadGateway, err)
			return
		}
		if latest, err := repo.LatestProgressUpdate(r.PathValue("id")); err == nil && latest > 0 {
			w.Header().Set("X-Progress-Updated-At", strconv.FormatInt(latest, 10))
		}
		renderJSON(w, recents)
	})

	mux.HandleFunc("GET /api/v1/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		item, err := repo.FetchBook(r.Context(), r.PathValue("id"))
		if err != nil {
			renderJSONError(w, http.StatusBadGateway, err)
			return
		}
		if item == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		renderJSON(w, item)
	})

	mux.HandleFunc("GET /api/v1/items/{id}/cover", func(w http.ResponseWriter, r *http.Request) {
		variant := storage.CoverThumb
		if r.URL.Query().Get("variant") == "raw" {
			variant = storage.CoverRaw
		}
		path := layout.CoverPath(r.PathValue("id"), variant)
		if _, err := os.Stat(path); err != nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=86400")
		http.ServeFile(w, r, path)
	})

	mux.HandleFunc("GET /api/v1/items/{id}/file/{fileID}/uri", func(w http.ResponseWriter, r *http.Request) {
		uri, err := repo.ProvideFileURI(r.PathValue("id"), r.PathValue("fileID"))
		if err != nil {
			renderJSONError(w, http.StatusNotFound, err)
			return
		}
		renderJSON(w, map[string]string{"uri": uri})
	})

	mux.HandleFunc("POST /api/v1/items/{id}/cache", func(w http.ResponseWriter, r *http.Request) {
		var request struct {
			Option      string  `json:"option"`
			CurrentTime float64 `json:"current_time"`
		}
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			renderJSONError(w, http.StatusBadRequest, err)
			return
		}
		option := models.DecodeDownloadOption(request.Option)
		if option == nil {
			option = settings.DownloadOption()
		}
		if option == nil {
			option = models.RemainingItemsOption{}
		}
		itemID := r.PathValue("id")
		// Detached from the request so a slow download never holds the
		// HTTP connection open; progress is observable on /events.
		go manager.CacheItem(context.Background(), itemID, option, request.CurrentTime)
		w.WriteHeader(http.StatusAccepted)
	})

	mux.HandleFunc("DELETE /api/v1/items/{id}/cache", func(w http.ResponseWriter, r *http.Request) {
		if err := manager.DropItem(r.PathValue("id")); err != nil {
			renderJSONError(w, http.StatusInternalServerError, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("DELETE /api/v1/items/{id}/cache/{chapterID}", func(w http.ResponseWriter, r *http.Request) {
		if err := manager.DropChapter(r.PathValue("id"), r.PathValue("chapterID")); err != nil {
			renderJSONError(w, http.StatusInternalServerError, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("DELETE /api/v1/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		itemID := r.PathValue("id")
		if err := manager.DropItem(itemID); err != nil {
			renderJSONError(w, http.StatusInternalServerError, err)
			return
		}
		if err := repo.RemoveItem(itemID); err != nil {
			renderJSONError(w, http.StatusInternalServerError, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	// Reclaims metadata-only rows; anything with a download stays.
	mux.HandleFunc("DELETE /api/v1/metadata", func(w http.ResponseWriter, r *http.Request) {
		if err := repo.ClearMetadata(); err != nil {
			renderJSONError(w, http.StatusInternalServerError, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /api/v1/items/{id}/cache", func(w http.ResponseWriter, r *http.Request) {
		size, err := manager.CachedSize(r.PathValue("id"))
		if err != nil {
			renderJSONError(w, http.StatusInternalServerError, err)
			return
		}
		complete, err := manager.IsComplete(r.PathValue("id"))
		if err != nil {
			renderJSONError(w, http.StatusInternalServerError, err)
			return
		}
		renderJSON(w, map[string]any{
			"state":    manager.State(r.PathValue("id")).Get(),
			"size":     size,
			"complete": complete,
		})
	})

	mux.HandleFunc("GET /api/v1/cache", func(w http.ResponseWriter, r *http.Request) {
		renderJSON(w, map[string]any{"total_size": layout.TotalSize()})
	})

	mux.HandleFunc("GET /api/v1/playing", func(w http.ResponseWriter, r *http.Request) {
		renderJSON(w, service.CurrentState())
	})

	// The player engine reports its position here; every report counts
	// as a player event and triggers a sync.
	mux.HandleFunc("POST /api/v1/playing", func(w http.ResponseWriter, r *http.Request) {
		var snapshot playback.Snapshot
		if err := json.NewDecoder(r.Body).Decode(&snapshot); err != nil {
			renderJSONError(w, http.StatusBadRequest, err)
			return
		}
		player.Report(snapshot)
		service.OnPlayerEvent(context.Background())
		w.WriteHeader(http.StatusAccepted)
	})

	mux.HandleFunc("GET /api/v1/prefs", func(w http.ResponseWriter, r *http.Request) {
		field, ascending := settings.Ordering()
		renderJSON(w, map[string]any{
			"preferred_library":  settings.PreferredLibrary(),
			"force_offline":      settings.ForceOffline(),
			"ordering_field":     field,
			"ordering_ascending": ascending,
			"download_option":    models.EncodeDownloadOption(settings.DownloadOption()),
		})
	})

	mux.HandleFunc("PUT /api/v1/prefs", func(w http.ResponseWriter, r *http.Request) {
		var request struct {
			PreferredLibrary  *string `json:"preferred_library"`
			ForceOffline      *bool   `json:"force_offline"`
			OrderingField     *string `json:"ordering_field"`
			OrderingAscending *bool   `json:"ordering_ascending"`
			DownloadOption    *string `json:"download_option"`
		}
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			renderJSONError(w, http.StatusBadRequest, err)
			return
		}
		if request.PreferredLibrary != nil {
			if err := settings.SetPreferredLibrary(*request.PreferredLibrary); err != nil {
				renderJSONError(w, http.StatusInternalServerError, err)
				return
			}
		}
		if request.ForceOffline != nil {
			if err := settings.SetForceOffline(*request.ForceOffline); err != nil {
				renderJSONError(w, http.StatusInternalServerError, err)
				return
			}
		}
		if request.OrderingField != nil || request.OrderingAscending != nil {
			field, ascending := settings.Ordering()
			if request.OrderingField != nil {
				field = *request.OrderingField
			}
			if request.OrderingAscending != nil {
				ascending = *request.OrderingAscending
			}
			if err := settings.SetOrdering(field, ascending); err != nil {
				renderJSONError(w, http.StatusInternalServerError, err)
				return
			}
		}
		if request.DownloadOption != nil {
			if err := settings.SetDownloadOption(models.DecodeDownloadOption(*request.DownloadOption)); err != nil {
				renderJSONError(w, http.StatusInternalServerError, err)
				return
			}
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("/events", events.Server.ServeHTTP)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"http://localhost:1313", "http://localhost:8080"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE"},
		AllowedHeaders: []string{"Origin, Content-Type, Accept"},
	})

	return c.Handler(mux)
}
