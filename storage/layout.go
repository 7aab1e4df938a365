// Package storage maps item and file ids onto on-disk cache locations.
// The mapping is pure: the only side effect is directory creation on
// first use.
package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
)

const mediaCacheFolder = "media_cache"

// CoverVariant selects which rendition of an item cover a path refers to.
type CoverVariant string

const (
	CoverRaw   CoverVariant = "raw"
	CoverThumb CoverVariant = "thumb"
)

// Layout resolves cache paths under a primary directory, falling back to a
// secondary one when the primary is missing or not writable. The fallback
// mirrors keeping downloads on external storage when possible but never
// failing outright when it is absent.
type Layout struct {
	primary  string
	fallback string
}

func NewLayout(primary, fallback string) *Layout {
	return &Layout{primary: primary, fallback: fallback}
}

func (l *Layout) base() string {
	dir := filepath.Join(l.primary, mediaCacheFolder)
	if err := os.MkdirAll(dir, 0o755); err == nil && writable(dir) {
		return dir
	}
	dir = filepath.Join(l.fallback, mediaCacheFolder)
	os.MkdirAll(dir, 0o755)
	return dir
}

func writable(dir string) bool {
	probe := filepath.Join(dir, ".probe")
	f, err := os.Create(probe)
	if err != nil {
		return false
	}
	f.Close()
	os.Remove(probe)
	return true
}

// ItemRoot is the directory that holds everything cached for one item.
func (l *Layout) ItemRoot(itemID string) string {
	return filepath.Join(l.base(), itemID)
}

// MediaPath is the location for one file's binary content. File ids can
// contain characters that are hostile to filesystems, so the on-disk name
// is a hash of the id rather than the id itself.
func (l *Layout) MediaPath(itemID, fileID string) string {
	name := fmt.Sprintf("%016x", xxhash.Sum64String(fileID))
	return filepath.Join(l.ItemRoot(itemID), name)
}

// CoverPath is the location of a cover rendition for an item.
func (l *Layout) CoverPath(itemID string, variant CoverVariant) string {
	switch variant {
	case CoverThumb:
		return filepath.Join(l.ItemRoot(itemID), "cover_thumb.img")
	default:
		return filepath.Join(l.ItemRoot(itemID), "cover_raw.img")
	}
}

// ItemSize totals the bytes on disk for the given files of an item.
// Missing files count as zero.
func (l *Layout) ItemSize(itemID string, fileIDs []string) int64 {
	var size int64
	for _, id := range fileIDs {
		if info, err := os.Stat(l.MediaPath(itemID, id)); err == nil {
			size += info.Size()
		}
	}
	return size
}

// TotalSize walks the whole cache folder and totals file sizes.
func (l *Layout) TotalSize() int64 {
	var size int64
	filepath.Walk(l.base(), func(_ string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size
}
