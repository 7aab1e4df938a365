package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pinesap/lectern/models"
	"github.com/pinesap/lectern/shared"
)

// Client is the HTTP implementation of Channel against an
// Audiobookshelf-compatible server.
type Client struct {
	Host       string
	Token      string
	Username   string
	DeviceID   string
	HTTPClient *http.Client
}

func NewClient(host, token, username, deviceID string) *Client {
	return &Client{
		Host:     strings.TrimRight(host, "/"),
		Token:    token,
		Username: username,
		DeviceID: deviceID,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *Client) buildUrl(endpoint string) string {
	return fmt.Sprintf("%s%s", c.Host, endpoint)
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.buildUrl(endpoint), body)
	if err != nil {
		return nil, err
	}
	req.Header = http.Header{
		"Accept":        []string{"application/json"},
		"Content-Type":  []string{"application/json"},
		"Authorization": []string{"Bearer " + c.Token},
		"User-Agent":    []string{shared.UserAgent},
	}
	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if res.StatusCode == http.StatusNotFound {
		res.Body.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, endpoint)
	}
	if res.StatusCode >= 400 {
		res.Body.Close()
		return nil, fmt.Errorf("%w: %s returned %d", ErrUnavailable, endpoint, res.StatusCode)
	}
	return res, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	res, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	return json.NewDecoder(res.Body).Decode(out)
}

func (c *Client) FetchLibraries(ctx context.Context) ([]models.Library, error) {
	var payload librariesResponse
	if err := c.getJSON(ctx, "/api/libraries", &payload); err != nil {
		return nil, err
	}
	libraries := make([]models.Library, 0, len(payload.Libraries))
	for _, l := range payload.Libraries {
		libraries = append(libraries, l.toLibrary())
	}
	return libraries, nil
}

func (c *Client) FetchBooks(ctx context.Context, libraryID string, page, pageSize int) (models.PagedItems[models.Book], error) {
	var payload libraryItemsResponse
	endpoint := fmt.Sprintf("/api/libraries/%s/items?minified=1&limit=%d&page=%d", libraryID, pageSize, page)
	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		return models.PagedItems[models.Book]{}, err
	}
	books := make([]models.Book, 0, len(payload.Results))
	for _, r := range payload.Results {
		books = append(books, r.toBook())
	}
	return models.PagedItems[models.Book]{
		Items:       books,
		CurrentPage: payload.Page,
		TotalItems:  payload.Total,
	}, nil
}

func (c *Client) FetchBook(ctx context.Context, itemID string) (*models.DetailedItem, error) {
	var payload libraryItemPayload
	if err := c.getJSON(ctx, fmt.Sprintf("/api/items/%s?expanded=1", itemID), &payload); err != nil {
		return nil, err
	}
	item := payload.toDetailedItem()

	// Progress lives on a separate endpoint; a missing record just means
	// the user never listened to this item.
	var progress progressPayload
	err := c.getJSON(ctx, fmt.Sprintf("/api/me/progress/%s", itemID), &progress)
	switch {
	case err == nil:
		item.Progress = progress.toMediaProgress()
	case errors.Is(err, ErrNotFound):
	default:
		return nil, err
	}

	return &item, nil
}

func (c *Client) FetchRecentListened(ctx context.Context, libraryID string) ([]models.RecentBook, error) {
	var shelves []personalizedShelf
	if err := c.getJSON(ctx, fmt.Sprintf("/api/libraries/%s/personalized", libraryID), &shelves); err != nil {
		return nil, err
	}
	recents := []models.RecentBook{}
	for _, shelf := range shelves {
		if shelf.ID != "continue-listening" {
			continue
		}
		for _, entity := range shelf.Entities {
			recents = append(recents, entity.toRecentBook())
		}
	}
	return recents, nil
}

func (c *Client) SearchBooks(ctx context.Context, libraryID, query string, limit int) ([]models.Book, error) {
	var payload searchResponse
	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(limit))
	endpoint := fmt.Sprintf("/api/libraries/%s/search?%s", libraryID, params.Encode())
	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, err
	}
	books := make([]models.Book, 0, len(payload.Book))
	for _, r := range payload.Book {
		books = append(books, r.LibraryItem.toBook())
	}
	return books, nil
}

func (c *Client) StartPlayback(ctx context.Context, itemID string) (models.PlaybackSession, error) {
	request := playbackRequestPayload{
		DeviceInfo: devicePayload{
			DeviceID:   c.DeviceID,
			ClientName: shared.ClientName,
		},
		SupportedMime: shared.SupportedMimeTypes,
		MediaPlayer:   shared.ClientName,
	}
	res, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/items/%s/play", itemID), request)
	if err != nil {
		return models.PlaybackSession{}, err
	}
	defer res.Body.Close()
	var session playbackSessionPayload
	if err := json.NewDecoder(res.Body).Decode(&session); err != nil {
		return models.PlaybackSession{}, err
	}
	return models.PlaybackSession{
		SessionID: session.ID,
		ItemID:    session.LibraryItemID,
	}, nil
}

func (c *Client) SyncProgress(ctx context.Context, sessionID string, progress models.PlaybackProgress) error {
	payload := syncProgressPayload{
		CurrentTime:  progress.TotalTime,
		TimeListened: 0,
	}
	res, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/session/%s/sync", sessionID), payload)
	if err != nil {
		return err
	}
	res.Body.Close()
	return nil
}

func (c *Client) FetchBookCover(ctx context.Context, itemID string) (io.ReadCloser, error) {
	res, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/items/%s/cover", itemID), nil)
	if err != nil {
		return nil, err
	}
	return res.Body, nil
}

func (c *Client) FetchFile(ctx context.Context, itemID, fileID string) (io.ReadCloser, error) {
	res, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/items/%s/file/%s", itemID, fileID), nil)
	if err != nil {
		return nil, err
	}
	return res.Body, nil
}

// ProvideFileURI hands the player a direct streaming URL for a file that
// is not cached locally.
func (c *Client) ProvideFileURI(itemID, fileID string) (string, error) {
	if c.Host == "" {
		return "", ErrUnavailable
	}
	return fmt.Sprintf("%s/api/items/%s/file/%s?token=%s", c.Host, itemID, fileID, c.Token), nil
}
