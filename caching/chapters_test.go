package caching

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/pinesap/lectern/models"
)

// twoFileItem spans two audio files: F1 covers 0-150 and F2 covers
// 150-400. Chapter B straddles the file boundary.
func twoFileItem() models.DetailedItem {
	return models.DetailedItem{
		ID: "item-1",
		Chapters: []models.Chapter{
			{ID: "A", Start: 0, End: 100, Duration: 100},
			{ID: "B", Start: 100, End: 250, Duration: 150},
			{ID: "C", Start: 250, End: 400, Duration: 150},
		},
		Files: []models.File{
			{ID: "F1", Name: "part1.mp3", Duration: 150},
			{ID: "F2", Name: "part2.mp3", Duration: 250},
		},
	}
}

func chapterIDs(chapters []models.Chapter) []string {
	ids := []string{}
	for _, chapter := range chapters {
		ids = append(ids, chapter.ID)
	}
	return ids
}

func TestRequestedChapters(t *testing.T) {
	t.Parallel()
	item := twoFileItem()

	tests := []struct {
		name      string
		option    models.DownloadOption
		totalTime float64
		want      []string
	}{
		{"all from anywhere", models.AllItemsOption{}, 260, []string{"A", "B", "C"}},
		{"current at position", models.CurrentItemOption{}, 260, []string{"C"}},
		{"current at chapter boundary", models.CurrentItemOption{}, 100, []string{"B"}},
		{"remaining", models.RemainingItemsOption{}, 110, []string{"B", "C"}},
		{"next two", models.NumberItemsOption{Count: 2}, 0, []string{"A", "B"}},
		{"next five clamps to end", models.NumberItemsOption{Count: 5}, 110, []string{"B", "C"}},
		{"specific file pulls straddling chapters", models.SpecificFilesOption{FileIDs: []string{"F1"}}, 0, []string{"A", "B"}},
		{"specific unknown file", models.SpecificFilesOption{FileIDs: []string{"nope"}}, 0, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := chapterIDs(RequestedChapters(item, tt.option, tt.totalTime))
			if !cmp.Equal(tt.want, got) {
				t.Error(cmp.Diff(tt.want, got))
			}
		})
	}
}

func TestRequestedChapters_NoChapters(t *testing.T) {
	t.Parallel()
	item := models.DetailedItem{ID: "empty"}
	if got := RequestedChapters(item, models.CurrentItemOption{}, 10); len(got) != 0 {
		t.Errorf("expected nothing, got %#v", got)
	}
	if got := RequestedChapters(item, models.RemainingItemsOption{}, 10); len(got) != 0 {
		t.Errorf("expected nothing, got %#v", got)
	}
}

func TestRelatedFiles(t *testing.T) {
	t.Parallel()
	item := twoFileItem()

	tests := []struct {
		chapter string
		want    []string
	}{
		{"A", []string{"F1"}},
		{"B", []string{"F1", "F2"}},
		{"C", []string{"F2"}},
	}
	for _, tt := range tests {
		t.Run(tt.chapter, func(t *testing.T) {
			t.Parallel()
			var chapter models.Chapter
			for _, c := range item.Chapters {
				if c.ID == tt.chapter {
					chapter = c
				}
			}
			got := []string{}
			for _, file := range RelatedFiles(item, chapter) {
				got = append(got, file.ID)
			}
			if !cmp.Equal(tt.want, got) {
				t.Error(cmp.Diff(tt.want, got))
			}
		})
	}
}

func TestFilesForChapters_Deduplicates(t *testing.T) {
	t.Parallel()
	item := twoFileItem()

	// A and B both need F1; the union lists it once, in file order.
	files := filesForChapters(item, item.Chapters[:2])
	got := []string{}
	for _, file := range files {
		got = append(got, file.ID)
	}
	want := []string{"F1", "F2"}
	if !cmp.Equal(want, got) {
		t.Error(cmp.Diff(want, got))
	}
}
