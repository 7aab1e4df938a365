package db

import (
	"fmt"
	"strings"
)

// isolationClause keeps listings scoped to the active account while
// still surfacing items whose chapters are cached on disk, so switching
// servers never hides downloaded content.
const isolationClause = `((items.host = ? AND items.username = ?)
		OR EXISTS (SELECT 1 FROM chapters WHERE chapters.item_id = items.id AND chapters.is_cached = 1))`

const summaryColumns = `items.id, items.title, items.subtitle, items.author, items.series_names, items.duration, items.library_id, items.created_at, items.updated_at`

// orderColumns whitelists the fields a caller may sort by. Anything
// else falls back to title so request parameters can never reach the
// ORDER BY clause verbatim.
var orderColumns = map[string]string{
	"title":     "items.title",
	"author":    "items.author",
	"createdAt": "items.created_at",
	"updatedAt": "items.updated_at",
}

// ListRequest describes one page of a library listing.
type ListRequest struct {
	LibraryID string
	Account   Account
	OrderBy   string
	Ascending bool
	Limit     int
	Offset    int
}

// SearchRequest matches a query string against titles, authors and
// series names within one library.
type SearchRequest struct {
	LibraryID string
	Account   Account
	Query     string
}

// RecentRequest lists items with listening progress, newest first.
type RecentRequest struct {
	LibraryID string
	Account   Account
	Limit     int
}

// libraryClause scopes a listing to one library. The empty id means
// "ungrouped": items that never arrived with a library attached.
func libraryClause(libraryID string) (string, []any) {
	if libraryID == "" {
		return "(items.library_id IS NULL OR items.library_id = '')", nil
	}
	return "items.library_id = ?", []any{libraryID}
}

func orderClause(field string, ascending bool) string {
	column, ok := orderColumns[field]
	if !ok {
		column = orderColumns["title"]
	}
	direction := "DESC"
	if ascending {
		direction = "ASC"
	}
	// id as tie-break keeps paging stable across identical sort keys.
	return fmt.Sprintf("ORDER BY %s %s, items.id %s", column, direction, direction)
}

// Build returns the listing statement and its bound arguments.
func (r ListRequest) Build() (string, []any) {
	library, args := libraryClause(r.LibraryID)
	var sb strings.Builder
	sb.WriteString("SELECT " + summaryColumns + " FROM items WHERE " + library + " AND ")
	sb.WriteString(isolationClause)
	sb.WriteString(" " + orderClause(r.OrderBy, r.Ascending))
	sb.WriteString(" LIMIT ? OFFSET ?")
	args = append(args, r.Account.Host, r.Account.Username, r.Limit, r.Offset)
	return sb.String(), args
}

// Build returns the search statement and its bound arguments. The query
// string is matched case-insensitively as a substring.
func (r SearchRequest) Build() (string, []any) {
	library, args := libraryClause(r.LibraryID)
	var sb strings.Builder
	sb.WriteString("SELECT " + summaryColumns + " FROM items WHERE " + library + " AND ")
	sb.WriteString(isolationClause)
	sb.WriteString(` AND (items.title LIKE ? COLLATE NOCASE
		OR items.author LIKE ? COLLATE NOCASE
		OR items.series_names LIKE ? COLLATE NOCASE)`)
	sb.WriteString(" ORDER BY items.title ASC, items.id ASC")
	pattern := "%" + r.Query + "%"
	args = append(args, r.Account.Host, r.Account.Username, pattern, pattern, pattern)
	return sb.String(), args
}

// Build returns the recents statement and its bound arguments. Only
// rows with progress qualify, ordered by most recent listening.
func (r RecentRequest) Build() (string, []any) {
	library, args := libraryClause(r.LibraryID)
	var sb strings.Builder
	sb.WriteString(`SELECT items.id, items.title, items.author, items.duration,
		media_progress.current_sec, media_progress.last_update
		FROM items
		JOIN media_progress ON media_progress.item_id = items.id
		WHERE ` + library + `
		AND media_progress.current_sec > 0 AND media_progress.is_finished = 0
		AND `)
	sb.WriteString(isolationClause)
	sb.WriteString(" ORDER BY media_progress.last_update DESC, items.id DESC LIMIT ?")
	args = append(args, r.Account.Host, r.Account.Username, r.Limit)
	return sb.String(), args
}
