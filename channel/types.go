package channel

import (
	"strconv"

	"github.com/pinesap/lectern/models"
)

type librariesResponse struct {
	Libraries []libraryPayload `json:"libraries"`
}

type libraryPayload struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	MediaType string `json:"mediaType"`
}

type libraryItemsResponse struct {
	Results []libraryItemPayload `json:"results"`
	Total   int                  `json:"total"`
	Page    int                  `json:"page"`
}

type libraryItemPayload struct {
	ID            string           `json:"id"`
	LibraryID     string           `json:"libraryId"`
	AddedAt       int64            `json:"addedAt"`
	UpdatedAt     int64            `json:"updatedAt"`
	Media         mediaPayload     `json:"media"`
	MediaProgress *progressPayload `json:"mediaProgress,omitempty"`
}

type mediaPayload struct {
	Duration   float64            `json:"duration"`
	Metadata   metadataPayload    `json:"metadata"`
	Chapters   []chapterPayload   `json:"chapters"`
	AudioFiles []audioFilePayload `json:"audioFiles"`
}

type metadataPayload struct {
	Title         string          `json:"title"`
	Subtitle      string          `json:"subtitle"`
	AuthorName    string          `json:"authorName"`
	NarratorName  string          `json:"narratorName"`
	Publisher     string          `json:"publisher"`
	PublishedYear string          `json:"publishedYear"`
	Description   string          `json:"description"`
	SeriesName    string          `json:"seriesName"`
	Series        []seriesPayload `json:"series"`
}

type seriesPayload struct {
	Name     string `json:"name"`
	Sequence string `json:"sequence"`
}

type chapterPayload struct {
	ID    int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Title string  `json:"title"`
}

type audioFilePayload struct {
	Ino      string               `json:"ino"`
	Duration float64              `json:"duration"`
	MimeType string               `json:"mimeType"`
	Metadata audioFileMetaPayload `json:"metadata"`
}

type audioFileMetaPayload struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

type progressPayload struct {
	LibraryItemID string  `json:"libraryItemId"`
	CurrentTime   float64 `json:"currentTime"`
	IsFinished    bool    `json:"isFinished"`
	LastUpdate    int64   `json:"lastUpdate"`
}

type playbackSessionPayload struct {
	ID            string `json:"id"`
	LibraryItemID string `json:"libraryItemId"`
}

type playbackRequestPayload struct {
	DeviceInfo     devicePayload `json:"deviceInfo"`
	SupportedMime  []string      `json:"supportedMimeTypes"`
	MediaPlayer    string        `json:"mediaPlayer"`
	ForceTranscode bool          `json:"forceTranscode"`
}

type devicePayload struct {
	DeviceID   string `json:"deviceId"`
	ClientName string `json:"clientName"`
}

type syncProgressPayload struct {
	TimeListened float64 `json:"timeListened"`
	CurrentTime  float64 `json:"currentTime"`
}

type personalizedShelf struct {
	ID       string               `json:"id"`
	Entities []libraryItemPayload `json:"entities"`
}

type searchResponse struct {
	Book []searchResult `json:"book"`
}

type searchResult struct {
	LibraryItem libraryItemPayload `json:"libraryItem"`
}

func (p libraryPayload) toLibrary() models.Library {
	libraryType := models.LibraryTypeUnknown
	switch p.MediaType {
	case "book":
		libraryType = models.LibraryTypeLibrary
	case "podcast":
		libraryType = models.LibraryTypePodcast
	}
	return models.Library{
		ID:    p.ID,
		Title: p.Name,
		Type:  libraryType,
	}
}

func (p libraryItemPayload) toBook() models.Book {
	return models.Book{
		ID:        p.ID,
		Title:     p.Media.Metadata.Title,
		Subtitle:  p.Media.Metadata.Subtitle,
		Author:    p.Media.Metadata.AuthorName,
		Series:    p.Media.Metadata.SeriesName,
		Duration:  p.Media.Duration,
		LibraryID: p.LibraryID,
		CreatedAt: p.AddedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

// toDetailedItem converts a full item payload. When the server defines no
// chapters the audio files stand in as one chapter each, so a chapterless
// item is still cacheable and navigable.
func (p libraryItemPayload) toDetailedItem() models.DetailedItem {
	item := models.DetailedItem{
		ID:        p.ID,
		Title:     p.Media.Metadata.Title,
		Subtitle:  p.Media.Metadata.Subtitle,
		Author:    p.Media.Metadata.AuthorName,
		Narrator:  p.Media.Metadata.NarratorName,
		Publisher: p.Media.Metadata.Publisher,
		Year:      p.Media.Metadata.PublishedYear,
		Abstract:  p.Media.Metadata.Description,
		LibraryID: p.LibraryID,
		CreatedAt: p.AddedAt,
		UpdatedAt: p.UpdatedAt,
	}
	for _, s := range p.Media.Metadata.Series {
		item.Series = append(item.Series, models.Series{Name: s.Name, Sequence: s.Sequence})
	}
	for _, f := range p.Media.AudioFiles {
		item.Files = append(item.Files, models.File{
			ID:       f.Ino,
			Name:     f.Metadata.Filename,
			Duration: f.Duration,
			MimeType: f.MimeType,
			Size:     f.Metadata.Size,
		})
	}
	if len(p.Media.Chapters) > 0 {
		for _, c := range p.Media.Chapters {
			item.Chapters = append(item.Chapters, models.Chapter{
				ID:       strconv.Itoa(c.ID),
				Title:    c.Title,
				Start:    c.Start,
				End:      c.End,
				Duration: c.End - c.Start,
			})
		}
	} else {
		start := 0.0
		for _, f := range item.Files {
			item.Chapters = append(item.Chapters, models.Chapter{
				ID:       f.ID,
				Title:    f.Name,
				Start:    start,
				End:      start + f.Duration,
				Duration: f.Duration,
			})
			start += f.Duration
		}
	}
	return item
}

func (p libraryItemPayload) toRecentBook() models.RecentBook {
	recent := models.RecentBook{
		ID:     p.ID,
		Title:  p.Media.Metadata.Title,
		Author: p.Media.Metadata.AuthorName,
	}
	if p.MediaProgress != nil {
		recent.CurrentTime = p.MediaProgress.CurrentTime
		recent.ListenedLastUpdate = p.MediaProgress.LastUpdate
		if p.Media.Duration > 0 {
			recent.ListenedPercentage = int(p.MediaProgress.CurrentTime / p.Media.Duration * 100)
		}
	}
	return recent
}

func (p progressPayload) toMediaProgress() *models.MediaProgress {
	return &models.MediaProgress{
		CurrentTime: p.CurrentTime,
		IsFinished:  p.IsFinished,
		LastUpdate:  p.LastUpdate,
	}
}
