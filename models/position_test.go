package models

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func threeChapterItem() DetailedItem {
	return DetailedItem{
		ID: "item-1",
		Chapters: []Chapter{
			{ID: "c1", Start: 0, End: 100, Duration: 100},
			{ID: "c2", Start: 100, End: 250, Duration: 150},
			{ID: "c3", Start: 250, End: 400, Duration: 150},
		},
	}
}

func TestChapterIndex(t *testing.T) {
	t.Parallel()
	item := threeChapterItem()
	cases := []struct {
		totalTime float64
		want      int
	}{
		{0, 0},
		{99.9, 0},
		{100, 1},
		{260, 2},
		{400, 2},  // exactly the end resolves to the last chapter
		{9999, 2}, // past the end clamps to the last chapter
	}
	for _, c := range cases {
		if got := ChapterIndex(item, c.totalTime); got != c.want {
			t.Errorf("ChapterIndex(%v) = %d, want %d", c.totalTime, got, c.want)
		}
	}
}

func TestChapterIndex_NoChapters(t *testing.T) {
	t.Parallel()
	if got := ChapterIndex(DetailedItem{}, 50); got != -1 {
		t.Errorf("ChapterIndex = %d, want -1", got)
	}
}

func TestChapterPosition(t *testing.T) {
	t.Parallel()
	item := threeChapterItem()
	if got := ChapterPosition(item, 260); got != 10 {
		t.Errorf("ChapterPosition(260) = %v, want 10", got)
	}
}

func TestFileStartTimes(t *testing.T) {
	t.Parallel()
	files := []File{
		{ID: "f1", Duration: 60},
		{ID: "f2", Duration: 90},
		{ID: "f3", Duration: 30},
	}
	want := []float64{0, 60, 150}
	if got := FileStartTimes(files); !cmp.Equal(want, got) {
		t.Error(cmp.Diff(want, got))
	}
}
