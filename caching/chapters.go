// Package caching decides which chapters an item needs on disk, fetches
// their files, and keeps the persisted cache flags and on-disk layout in
// agreement through downloads and eviction.
package caching

import (
	"github.com/pinesap/lectern/models"
)

// RequestedChapters resolves a download option against the current
// playback position into the concrete chapters to fetch.
func RequestedChapters(item models.DetailedItem, option models.DownloadOption, totalTime float64) []models.Chapter {
	index := models.ChapterIndex(item, totalTime)

	switch o := option.(type) {
	case models.AllItemsOption:
		return append([]models.Chapter(nil), item.Chapters...)
	case models.CurrentItemOption:
		if index < 0 || index >= len(item.Chapters) {
			return nil
		}
		return []models.Chapter{item.Chapters[index]}
	case models.RemainingItemsOption:
		if index < 0 {
			return nil
		}
		return append([]models.Chapter(nil), item.Chapters[index:]...)
	case models.NumberItemsOption:
		if index < 0 {
			return nil
		}
		end := index + o.Count
		if end > len(item.Chapters) {
			end = len(item.Chapters)
		}
		return append([]models.Chapter(nil), item.Chapters[index:end]...)
	case models.SpecificFilesOption:
		wanted := map[string]bool{}
		for _, id := range o.FileIDs {
			wanted[id] = true
		}
		chapters := []models.Chapter{}
		for _, chapter := range item.Chapters {
			for _, file := range RelatedFiles(item, chapter) {
				if wanted[file.ID] {
					chapters = append(chapters, chapter)
					break
				}
			}
		}
		return chapters
	}
	return nil
}

// RelatedFiles returns the files whose time range overlaps the chapter.
// Files and chapters are related purely by position on the item's
// timeline; nothing links them explicitly.
func RelatedFiles(item models.DetailedItem, chapter models.Chapter) []models.File {
	starts := models.FileStartTimes(item.Files)
	related := []models.File{}
	for i, file := range item.Files {
		fileStart := starts[i]
		fileEnd := fileStart + file.Duration
		if fileStart < chapter.End && fileEnd > chapter.Start {
			related = append(related, file)
		}
	}
	return related
}

// filesForChapters is the de-duplicated union of related files across a
// set of chapters, in item file order.
func filesForChapters(item models.DetailedItem, chapters []models.Chapter) []models.File {
	needed := map[string]bool{}
	for _, chapter := range chapters {
		for _, file := range RelatedFiles(item, chapter) {
			needed[file.ID] = true
		}
	}
	files := []models.File{}
	for _, file := range item.Files {
		if needed[file.ID] {
			files = append(files, file)
		}
	}
	return files
}
