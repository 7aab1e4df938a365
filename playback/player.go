// Package playback keeps remote listening progress approximately
// current while audio plays, without ever racing itself: at most one
// remote sync call is in flight per service instance.
package playback

import (
	"sync"

	"github.com/pinesap/lectern/models"
)

type Status string

const (
	StatusPlaying Status = "playing"
	StatusPaused  Status = "paused"
	StatusStopped Status = "stopped"
)

// Snapshot is one observation of the player engine: which item is
// loaded, which file within it is playing, and how far into that file
// playback has progressed.
type Snapshot struct {
	ItemID    string  `json:"item_id"`
	FileIndex int     `json:"file_index"`
	Elapsed   float64 `json:"elapsed"` // seconds within the current file
	Status    Status  `json:"status"`
}

// Player is the slice of the audio engine the sync service observes.
type Player interface {
	Snapshot() (Snapshot, bool)
}

// ReportedPlayer is a Player fed by an external engine pushing its state
// in, for example over the HTTP surface.
type ReportedPlayer struct {
	mu       sync.RWMutex
	snapshot *Snapshot
}

func (p *ReportedPlayer) Report(snapshot Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshot = &snapshot
}

func (p *ReportedPlayer) Snapshot() (Snapshot, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.snapshot == nil {
		return Snapshot{}, false
	}
	return *p.snapshot, true
}

// State is what the service publishes after each sync attempt, consumed
// by the event stream.
type State struct {
	ItemID   string                  `json:"item_id"`
	Status   Status                  `json:"status"`
	Progress models.PlaybackProgress `json:"progress"`
}

// TotalTime converts a snapshot position into seconds from the start of
// the whole item: the durations of every preceding file plus the elapsed
// time within the current one.
func TotalTime(item models.DetailedItem, fileIndex int, elapsed float64) float64 {
	if fileIndex < 0 || len(item.Files) == 0 {
		return elapsed
	}
	if fileIndex >= len(item.Files) {
		fileIndex = len(item.Files) - 1
	}
	starts := models.FileStartTimes(item.Files)
	return starts[fileIndex] + elapsed
}
