package models

import "strings"

// LibraryType mirrors the kinds of libraries the server can host.
type LibraryType string

const (
	LibraryTypeLibrary LibraryType = "library"
	LibraryTypePodcast LibraryType = "podcast"
	LibraryTypeUnknown LibraryType = "unknown"
)

type Library struct {
	ID    string      `json:"id"`
	Title string      `json:"title"`
	Type  LibraryType `json:"type"`
}

// Chapter is a logical playback segment within an item. Cached reflects the
// persisted on-disk state while Available is what the player is allowed to
// open right now: every cached chapter is available, and when the server is
// reachable the repository may mark the remaining ones available for
// streaming without ever touching the persisted flag.
type Chapter struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	Duration  float64 `json:"duration"`
	Available bool    `json:"available"`
	Cached    bool    `json:"cached"`
}

// File is a physical media unit. One or more files back a chapter,
// related by time-range overlap rather than by any stored link.
type File struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Duration float64 `json:"duration"`
	MimeType string  `json:"mime_type"`
	Size     int64   `json:"size"`
}

// MediaProgress is the single progress record an item carries.
// LastUpdate is a wall-clock unix milli timestamp used for
// last-write-wins merging between local and remote copies.
type MediaProgress struct {
	CurrentTime float64 `json:"current_time"`
	IsFinished  bool    `json:"is_finished"`
	LastUpdate  int64   `json:"last_update"`
}

type Series struct {
	Name     string `json:"name"`
	Sequence string `json:"sequence,omitempty"`
}

// DetailedItem is the full representation of a book or podcast,
// including its chapter and file lists and optional progress.
type DetailedItem struct {
	ID              string         `json:"id"`
	Title           string         `json:"title"`
	Subtitle        string         `json:"subtitle,omitempty"`
	Author          string         `json:"author,omitempty"`
	Narrator        string         `json:"narrator,omitempty"`
	Publisher       string         `json:"publisher,omitempty"`
	Year            string         `json:"year,omitempty"`
	Abstract        string         `json:"abstract,omitempty"`
	Series          []Series       `json:"series,omitempty"`
	Files           []File         `json:"files"`
	Chapters        []Chapter      `json:"chapters"`
	Progress        *MediaProgress `json:"progress,omitempty"`
	LibraryID       string         `json:"library_id,omitempty"`
	LibraryType     LibraryType    `json:"library_type,omitempty"`
	DominantColours Colours        `json:"dominant_colours,omitempty"`
	CreatedAt       int64          `json:"created_at"`
	UpdatedAt       int64          `json:"updated_at"`
}

// Book is the summary view used by listings and search. It intentionally
// carries no chapters or files so that list syncs stay cheap.
type Book struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Subtitle  string  `json:"subtitle,omitempty"`
	Author    string  `json:"author,omitempty"`
	Series    string  `json:"series,omitempty"`
	Duration  float64 `json:"duration"`
	LibraryID string  `json:"library_id,omitempty"`
	CreatedAt int64   `json:"created_at"`
	UpdatedAt int64   `json:"updated_at"`
}

// RecentBook is a listing row for the "continue listening" shelf.
type RecentBook struct {
	ID                 string  `json:"id"`
	Title              string  `json:"title"`
	Author             string  `json:"author,omitempty"`
	ListenedPercentage int     `json:"listened_percentage"`
	ListenedLastUpdate int64   `json:"listened_last_update"`
	CurrentTime        float64 `json:"current_time"`
}

// PagedItems wraps one page of a listing along with enough information
// for the caller to request the next page.
type PagedItems[T any] struct {
	Items       []T `json:"items"`
	CurrentPage int `json:"current_page"`
	TotalItems  int `json:"total_items"`
}

// PlaybackSession is the ephemeral remote token correlating progress
// pushes with a playback start. The server may invalidate it at any time,
// in which case a new one has to be opened.
type PlaybackSession struct {
	SessionID string `json:"session_id"`
	ItemID    string `json:"item_id"`
}

// PlaybackProgress is a point-in-time position within an item:
// TotalTime is seconds from the very start of the item, ChapterTime is
// seconds from the start of the active chapter.
type PlaybackProgress struct {
	TotalTime   float64 `json:"total_time"`
	ChapterTime float64 `json:"chapter_time"`
}

// TotalDuration sums the chapter durations of an item.
func (d DetailedItem) TotalDuration() float64 {
	var total float64
	for _, c := range d.Chapters {
		total += c.Duration
	}
	return total
}

// AllChaptersCached reports whether every chapter of the item is on disk.
func (d DetailedItem) AllChaptersCached() bool {
	for _, c := range d.Chapters {
		if !c.Cached {
			return false
		}
	}
	return len(d.Chapters) > 0
}

// SeriesNames joins the series titles for storage and search indexing.
func (d DetailedItem) SeriesNames() string {
	names := make([]string, 0, len(d.Series))
	for _, s := range d.Series {
		names = append(names, s.Name)
	}
	return strings.Join(names, ";")
}

// ParseSeriesNames is the inverse of SeriesNames. Sequence numbers are
// not stored, so the parsed entries carry names only.
func ParseSeriesNames(names string) []Series {
	if names == "" {
		return nil
	}
	parts := strings.Split(names, ";")
	series := make([]Series, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		series = append(series, Series{Name: p})
	}
	return series
}
