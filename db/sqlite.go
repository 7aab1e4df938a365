package db

import (
	"database/sql"
	"embed"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	"github.com/pinesap/lectern/models"

	_ "modernc.org/sqlite"
)

type SqliteStore struct {
	DB *sqlx.DB
}

func NewSqliteStore(dsn string) (*SqliteStore, error) {
	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &SqliteStore{
		DB: db,
	}, nil
}

func (s *SqliteStore) ApplyMigrations(migrations embed.FS) error {
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect(string(goose.DialectSQLite3)); err != nil {
		return err
	}

	if err := goose.Up(s.DB.DB, "migrations"); err != nil {
		return err
	}

	return nil
}

type itemRow struct {
	ID              string         `db:"id"`
	Title           string         `db:"title"`
	Subtitle        string         `db:"subtitle"`
	Author          string         `db:"author"`
	Narrator        string         `db:"narrator"`
	Abstract        string         `db:"abstract"`
	Publisher       string         `db:"publisher"`
	Year            string         `db:"year"`
	Duration        float64        `db:"duration"`
	LibraryID       string         `db:"library_id"`
	LibraryType     string         `db:"library_type"`
	SeriesNames     string         `db:"series_names"`
	CreatedAt       int64          `db:"created_at"`
	UpdatedAt       int64          `db:"updated_at"`
	Host            string         `db:"host"`
	Username        string         `db:"username"`
	DominantColours models.Colours `db:"dominant_colours"`
}

type summaryRow struct {
	ID          string  `db:"id"`
	Title       string  `db:"title"`
	Subtitle    string  `db:"subtitle"`
	Author      string  `db:"author"`
	SeriesNames string  `db:"series_names"`
	Duration    float64 `db:"duration"`
	LibraryID   string  `db:"library_id"`
	CreatedAt   int64   `db:"created_at"`
	UpdatedAt   int64   `db:"updated_at"`
}

type chapterRow struct {
	ItemID    string  `db:"item_id"`
	ID        string  `db:"id"`
	Title     string  `db:"title"`
	Start     float64 `db:"start_sec"`
	End       float64 `db:"end_sec"`
	Duration  float64 `db:"duration"`
	Available bool    `db:"is_available"`
	Cached    bool    `db:"is_cached"`
}

type fileRow struct {
	ItemID   string  `db:"item_id"`
	ID       string  `db:"id"`
	Seq      int     `db:"seq"`
	Name     string  `db:"name"`
	Duration float64 `db:"duration"`
	MimeType string  `db:"mime_type"`
	Size     int64   `db:"size"`
}

type progressRow struct {
	ItemID     string  `db:"item_id"`
	CurrentSec float64 `db:"current_sec"`
	IsFinished bool    `db:"is_finished"`
	LastUpdate int64   `db:"last_update"`
	Host       string  `db:"host"`
	Username   string  `db:"username"`
}

type recentRow struct {
	ID         string  `db:"id"`
	Title      string  `db:"title"`
	Author     string  `db:"author"`
	Duration   float64 `db:"duration"`
	CurrentSec float64 `db:"current_sec"`
	LastUpdate int64   `db:"last_update"`
}

type libraryRow struct {
	ID       string `db:"id"`
	Title    string `db:"title"`
	Type     string `db:"type"`
	Host     string `db:"host"`
	Username string `db:"username"`
}

const upsertItemQuery = `INSERT INTO items
	(id, title, subtitle, author, narrator, abstract, publisher, year, duration, library_id, library_type, series_names, created_at, updated_at, host, username)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
	title = excluded.title,
	subtitle = excluded.subtitle,
	author = excluded.author,
	narrator = excluded.narrator,
	abstract = excluded.abstract,
	publisher = excluded.publisher,
	year = excluded.year,
	duration = excluded.duration,
	library_id = excluded.library_id,
	library_type = excluded.library_type,
	series_names = excluded.series_names,
	created_at = excluded.created_at,
	updated_at = excluded.updated_at,
	host = excluded.host,
	username = excluded.username`

const upsertProgressQuery = `INSERT INTO media_progress (item_id, current_sec, is_finished, last_update, host, username)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(item_id) DO UPDATE SET
	current_sec = excluded.current_sec,
	is_finished = excluded.is_finished,
	last_update = excluded.last_update,
	host = excluded.host,
	username = excluded.username`

func contains(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

func (s *SqliteStore) UpsertItem(item models.DetailedItem, account Account, fetched, dropped []string) error {
	tx, err := s.DB.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(upsertItemQuery,
		item.ID,
		item.Title,
		item.Subtitle,
		item.Author,
		item.Narrator,
		item.Abstract,
		item.Publisher,
		item.Year,
		item.TotalDuration(),
		item.LibraryID,
		string(item.LibraryType),
		item.SeriesNames(),
		item.CreatedAt,
		item.UpdatedAt,
		account.Host,
		account.Username,
	)
	if err != nil {
		return err
	}

	// Remember which chapters were cached before the rewrite so a payload
	// that says nothing about them cannot un-cache downloaded audio.
	previouslyCached := []string{}
	if err := tx.Select(&previouslyCached, "SELECT id FROM chapters WHERE item_id = ? AND is_cached = 1", item.ID); err != nil {
		return err
	}

	if _, err := tx.Exec("DELETE FROM chapters WHERE item_id = ?", item.ID); err != nil {
		return err
	}
	for _, chapter := range item.Chapters {
		cached := false
		switch {
		case contains(dropped, chapter.ID):
			cached = false
		case contains(fetched, chapter.ID):
			cached = true
		default:
			cached = contains(previouslyCached, chapter.ID)
		}
		_, err := tx.Exec(
			"INSERT INTO chapters (item_id, id, title, start_sec, end_sec, duration, is_available, is_cached) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			item.ID,
			chapter.ID,
			chapter.Title,
			chapter.Start,
			chapter.End,
			chapter.Duration,
			chapter.Available,
			cached,
		)
		if err != nil {
			return err
		}
	}

	if _, err := tx.Exec("DELETE FROM files WHERE item_id = ?", item.ID); err != nil {
		return err
	}
	for seq, file := range item.Files {
		_, err := tx.Exec(
			"INSERT INTO files (item_id, id, seq, name, duration, mime_type, size) VALUES (?, ?, ?, ?, ?, ?, ?)",
			item.ID,
			file.ID,
			seq,
			file.Name,
			file.Duration,
			file.MimeType,
			file.Size,
		)
		if err != nil {
			return err
		}
	}

	if item.Progress != nil {
		_, err := tx.Exec(upsertProgressQuery,
			item.ID,
			item.Progress.CurrentTime,
			item.Progress.IsFinished,
			item.Progress.LastUpdate,
			account.Host,
			account.Username,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *SqliteStore) UpsertSummaries(books []models.Book, account Account) error {
	tx, err := s.DB.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, book := range books {
		_, err := tx.Exec(`INSERT INTO items (id, title, subtitle, author, series_names, duration, library_id, created_at, updated_at, host, username)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			subtitle = excluded.subtitle,
			author = excluded.author,
			series_names = excluded.series_names,
			duration = excluded.duration,
			library_id = excluded.library_id,
			updated_at = excluded.updated_at,
			host = excluded.host,
			username = excluded.username`,
			book.ID,
			book.Title,
			book.Subtitle,
			book.Author,
			book.Series,
			book.Duration,
			book.LibraryID,
			book.CreatedAt,
			book.UpdatedAt,
			account.Host,
			account.Username,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *SqliteStore) Item(id string) (*models.DetailedItem, error) {
	row := itemRow{}
	err := s.DB.Get(&row, "SELECT id, title, subtitle, author, narrator, abstract, publisher, year, duration, library_id, library_type, series_names, created_at, updated_at, host, username, dominant_colours FROM items WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	chapters := []chapterRow{}
	if err := s.DB.Select(&chapters, "SELECT item_id, id, title, start_sec, end_sec, duration, is_available, is_cached FROM chapters WHERE item_id = ? ORDER BY start_sec ASC", id); err != nil {
		return nil, err
	}
	files := []fileRow{}
	if err := s.DB.Select(&files, "SELECT item_id, id, seq, name, duration, mime_type, size FROM files WHERE item_id = ? ORDER BY seq ASC", id); err != nil {
		return nil, err
	}

	item := models.DetailedItem{
		ID:              row.ID,
		Title:           row.Title,
		Subtitle:        row.Subtitle,
		Author:          row.Author,
		Narrator:        row.Narrator,
		Abstract:        row.Abstract,
		Publisher:       row.Publisher,
		Year:            row.Year,
		LibraryID:       row.LibraryID,
		LibraryType:     models.LibraryType(row.LibraryType),
		Series:          models.ParseSeriesNames(row.SeriesNames),
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
		DominantColours: row.DominantColours,
	}
	for _, c := range chapters {
		item.Chapters = append(item.Chapters, models.Chapter{
			ID:        c.ID,
			Title:     c.Title,
			Start:     c.Start,
			End:       c.End,
			Duration:  c.Duration,
			Available: c.Available,
			Cached:    c.Cached,
		})
	}
	for _, f := range files {
		item.Files = append(item.Files, models.File{
			ID:       f.ID,
			Name:     f.Name,
			Duration: f.Duration,
			MimeType: f.MimeType,
			Size:     f.Size,
		})
	}

	progress, err := s.Progress(id)
	if err != nil {
		return nil, err
	}
	item.Progress = progress

	return &item, nil
}

func (s *SqliteStore) Items(req ListRequest) ([]models.Book, error) {
	query, args := req.Build()
	rows := []summaryRow{}
	if err := s.DB.Select(&rows, query, args...); err != nil {
		return nil, err
	}
	return summariesToBooks(rows), nil
}

func (s *SqliteStore) CountItems(libraryID string, account Account) (int, error) {
	library, args := libraryClause(libraryID)
	args = append(args, account.Host, account.Username)
	count := 0
	err := s.DB.Get(&count, "SELECT COUNT(*) FROM items WHERE "+library+" AND "+isolationClause, args...)
	return count, err
}

func (s *SqliteStore) Search(req SearchRequest) ([]models.Book, error) {
	query, args := req.Build()
	rows := []summaryRow{}
	if err := s.DB.Select(&rows, query, args...); err != nil {
		return nil, err
	}
	return summariesToBooks(rows), nil
}

func (s *SqliteStore) Recent(req RecentRequest) ([]models.RecentBook, error) {
	query, args := req.Build()
	rows := []recentRow{}
	if err := s.DB.Select(&rows, query, args...); err != nil {
		return nil, err
	}
	recents := make([]models.RecentBook, 0, len(rows))
	for _, r := range rows {
		percentage := 0
		if r.Duration > 0 {
			percentage = int(r.CurrentSec / r.Duration * 100)
		}
		recents = append(recents, models.RecentBook{
			ID:                 r.ID,
			Title:              r.Title,
			Author:             r.Author,
			ListenedPercentage: percentage,
			ListenedLastUpdate: r.LastUpdate,
			CurrentTime:        r.CurrentSec,
		})
	}
	return recents, nil
}

func (s *SqliteStore) SaveProgress(itemID string, progress models.MediaProgress, account Account) error {
	_, err := s.DB.Exec(upsertProgressQuery, itemID, progress.CurrentTime, progress.IsFinished, progress.LastUpdate, account.Host, account.Username)
	return err
}

func (s *SqliteStore) Progress(itemID string) (*models.MediaProgress, error) {
	row := progressRow{}
	err := s.DB.Get(&row, "SELECT item_id, current_sec, is_finished, last_update FROM media_progress WHERE item_id = ?", itemID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &models.MediaProgress{
		CurrentTime: row.CurrentSec,
		IsFinished:  row.IsFinished,
		LastUpdate:  row.LastUpdate,
	}, nil
}

func (s *SqliteStore) LatestProgressUpdate(libraryID string) (int64, error) {
	latest := int64(0)
	err := s.DB.Get(&latest, `SELECT COALESCE(MAX(media_progress.last_update), 0)
		FROM media_progress
		JOIN items ON items.id = media_progress.item_id
		WHERE items.library_id = ?`, libraryID)
	return latest, err
}

func (s *SqliteStore) UpsertLibraries(libraries []models.Library, account Account) error {
	tx, err := s.DB.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM libraries WHERE host = ? AND username = ?", account.Host, account.Username); err != nil {
		return err
	}
	for _, library := range libraries {
		_, err := tx.Exec("INSERT INTO libraries (id, title, type, host, username) VALUES (?, ?, ?, ?, ?)",
			library.ID, library.Title, string(library.Type), account.Host, account.Username)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *SqliteStore) Libraries(account Account) ([]models.Library, error) {
	rows := []libraryRow{}
	if err := s.DB.Select(&rows, "SELECT id, title, type, host, username FROM libraries WHERE host = ? AND username = ? ORDER BY title ASC", account.Host, account.Username); err != nil {
		return nil, err
	}
	libraries := make([]models.Library, 0, len(rows))
	for _, r := range rows {
		libraries = append(libraries, models.Library{
			ID:    r.ID,
			Title: r.Title,
			Type:  models.LibraryType(r.Type),
		})
	}
	return libraries, nil
}

func (s *SqliteStore) HasCachedChapters(itemID string) (bool, error) {
	cached := false
	err := s.DB.Get(&cached, "SELECT EXISTS (SELECT 1 FROM chapters WHERE item_id = ? AND is_cached = 1)", itemID)
	return cached, err
}

func (s *SqliteStore) IsChapterCached(itemID, chapterID string) (bool, error) {
	cached := false
	err := s.DB.Get(&cached, "SELECT EXISTS (SELECT 1 FROM chapters WHERE item_id = ? AND id = ? AND is_cached = 1)", itemID, chapterID)
	return cached, err
}

func (s *SqliteStore) SetDominantColours(itemID string, colours models.Colours) error {
	_, err := s.DB.Exec("UPDATE items SET dominant_colours = ? WHERE id = ?", colours, itemID)
	return err
}

func (s *SqliteStore) DeleteItem(id string) error {
	tx, err := s.DB.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, query := range []string{
		"DELETE FROM chapters WHERE item_id = ?",
		"DELETE FROM files WHERE item_id = ?",
		"DELETE FROM media_progress WHERE item_id = ?",
		"DELETE FROM items WHERE id = ?",
	} {
		if _, err := tx.Exec(query, id); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *SqliteStore) DeleteWithoutDownloads() error {
	tx, err := s.DB.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	ids := []string{}
	if err := tx.Select(&ids, "SELECT id FROM items WHERE NOT EXISTS (SELECT 1 FROM chapters WHERE chapters.item_id = items.id AND chapters.is_cached = 1)"); err != nil {
		return err
	}
	for _, id := range ids {
		for _, query := range []string{
			"DELETE FROM chapters WHERE item_id = ?",
			"DELETE FROM files WHERE item_id = ?",
			"DELETE FROM media_progress WHERE item_id = ?",
			"DELETE FROM items WHERE id = ?",
		} {
			if _, err := tx.Exec(query, id); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

func summariesToBooks(rows []summaryRow) []models.Book {
	books := make([]models.Book, 0, len(rows))
	for _, r := range rows {
		books = append(books, models.Book{
			ID:        r.ID,
			Title:     r.Title,
			Subtitle:  r.Subtitle,
			Author:    r.Author,
			Series:    r.SeriesNames,
			Duration:  r.Duration,
			LibraryID: r.LibraryID,
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		})
	}
	return books
}
