package models

// CacheStatus is the lifecycle of a single cache run.
type CacheStatus string

const (
	CacheIdle      CacheStatus = "idle"
	CacheQueued    CacheStatus = "queued"
	CacheCaching   CacheStatus = "caching"
	CacheCompleted CacheStatus = "completed"
	CacheError     CacheStatus = "error"
)

// CacheState is the live value surfaced per item while a run progresses.
// Progress is only meaningful while Status is CacheCaching.
type CacheState struct {
	Status   CacheStatus `json:"status"`
	Progress float64     `json:"progress"`
}
