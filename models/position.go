package models

// ChapterIndex locates the chapter whose [start, end) range contains the
// given total position. Positions past the end of the item resolve to the
// last chapter so a finished item still maps somewhere sensible.
// Returns -1 only for items without chapters.
func ChapterIndex(item DetailedItem, totalTime float64) int {
	if len(item.Chapters) == 0 {
		return -1
	}
	for i, c := range item.Chapters {
		if totalTime >= c.Start && totalTime < c.End {
			return i
		}
	}
	return len(item.Chapters) - 1
}

// ChapterPosition converts a total position into seconds within the
// active chapter.
func ChapterPosition(item DetailedItem, totalTime float64) float64 {
	index := ChapterIndex(item, totalTime)
	if index < 0 {
		return 0
	}
	return totalTime - item.Chapters[index].Start
}

// FileStartTimes pairs each file with its cumulative start offset within
// the item, derived from the durations of the files preceding it. This is
// the basis for relating chapters to files, so callers must pass files in
// their canonical order.
func FileStartTimes(files []File) []float64 {
	starts := make([]float64, len(files))
	var acc float64
	for i, f := range files {
		starts[i] = acc
		acc += f.Duration
	}
	return starts
}
