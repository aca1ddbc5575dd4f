// Package analytics provides in-memory tracking of query and upload events.
package analytics

import (
	"sync"
	"time"
)

// maxHistory caps how many recent events are retained per kind.
const maxHistory = 1000

// QueryEvent records one retrieval request.
type QueryEvent struct {
	Query          string    `json:"query"`
	Timestamp      time.Time `json:"timestamp"`
	ResponseTimeMS float64   `json:"response_time_ms"`
	CacheHit       bool      `json:"cache_hit"`
	NumResults     int       `json:"num_results"`
	SearchMethod   string    `json:"search_method"`
	UseReranker    bool      `json:"use_reranker"`
}

// UploadEvent records one document ingestion.
type UploadEvent struct {
	Filename         string    `json:"filename"`
	Timestamp        time.Time `json:"timestamp"`
	FileSizeKB       float64   `json:"file_size_kb"`
	ProcessingTimeMS float64   `json:"processing_time_ms"`
	NumChunks        int       `json:"num_chunks"`
	IsDuplicate      bool      `json:"is_duplicate"`
}

// Tracker is an in-memory event log with bounded history. It is safe for
// concurrent use; for durable analytics send events to a real sink instead.
type Tracker struct {
	mu      sync.RWMutex
	queries []QueryEvent
	uploads []UploadEvent

	totalQueries int64
	totalUploads int64
	cacheHits    int64
	cacheMisses  int64
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// LogQuery records a retrieval request. The query text is truncated to keep
// the log small and avoid retaining full user input.
func (t *Tracker) LogQuery(e QueryEvent) {
	if len(e.Query) > 100 {
		e.Query = e.Query[:100]
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.queries = append(t.queries, e)
	if len(t.queries) > maxHistory {
		t.queries = t.queries[len(t.queries)-maxHistory:]
	}

	t.totalQueries++
	if e.CacheHit {
		t.cacheHits++
	} else {
		t.cacheMisses++
	}
}

// LogUpload records a document ingestion.
func (t *Tracker) LogUpload(e UploadEvent) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.uploads = append(t.uploads, e)
	if len(t.uploads) > maxHistory {
		t.uploads = t.uploads[len(t.uploads)-maxHistory:]
	}
	t.totalUploads++
}

// Overview aggregates event counts.
type Overview struct {
	TotalQueries  int64 `json:"total_queries"`
	TotalUploads  int64 `json:"total_uploads"`
	RecentQueries int   `json:"recent_queries"`
	RecentUploads int   `json:"recent_uploads"`
}

// QueryPerformance aggregates retrieval metrics.
type QueryPerformance struct {
	AvgResponseTimeMS   float64 `json:"avg_response_time_ms"`
	AvgResultsPerQuery  float64 `json:"avg_results_per_query"`
	CacheHitRatePercent float64 `json:"cache_hit_rate_percent"`
	CacheHits           int64   `json:"cache_hits"`
	CacheMisses         int64   `json:"cache_misses"`
}

// UploadPerformance aggregates ingestion metrics.
type UploadPerformance struct {
	AvgProcessingTimeMS  float64 `json:"avg_processing_time_ms"`
	AvgChunksPerDocument float64 `json:"avg_chunks_per_document"`
}

// Snapshot is a point-in-time view of all analytics.
type Snapshot struct {
	Overview          Overview          `json:"overview"`
	QueryPerformance  QueryPerformance  `json:"query_performance"`
	UploadPerformance UploadPerformance `json:"upload_performance"`
	SearchMethods     map[string]int    `json:"search_method_distribution"`
	RecentQueries     []QueryEvent      `json:"recent_queries"`
	RecentUploads     []UploadEvent     `json:"recent_uploads"`
}

// GetSnapshot returns aggregated analytics over the retained history.
func (t *Tracker) GetSnapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snap := Snapshot{
		Overview: Overview{
			TotalQueries:  t.totalQueries,
			TotalUploads:  t.totalUploads,
			RecentQueries: len(t.queries),
			RecentUploads: len(t.uploads),
		},
		SearchMethods: make(map[string]int),
	}

	if len(t.queries) > 0 {
		var totalMS, totalResults float64
		for _, q := range t.queries {
			totalMS += q.ResponseTimeMS
			totalResults += float64(q.NumResults)

			method := q.SearchMethod
			if q.UseReranker {
				method += "+reranker"
			}
			snap.SearchMethods[method]++
		}
		snap.QueryPerformance.AvgResponseTimeMS = totalMS / float64(len(t.queries))
		snap.QueryPerformance.AvgResultsPerQuery = totalResults / float64(len(t.queries))
	}
	snap.QueryPerformance.CacheHits = t.cacheHits
	snap.QueryPerformance.CacheMisses = t.cacheMisses
	if total := t.cacheHits + t.cacheMisses; total > 0 {
		snap.QueryPerformance.CacheHitRatePercent = float64(t.cacheHits) / float64(total) * 100
	}

	if len(t.uploads) > 0 {
		var totalMS, totalChunks float64
		for _, u := range t.uploads {
			totalMS += u.ProcessingTimeMS
			totalChunks += float64(u.NumChunks)
		}
		snap.UploadPerformance.AvgProcessingTimeMS = totalMS / float64(len(t.uploads))
		snap.UploadPerformance.AvgChunksPerDocument = totalChunks / float64(len(t.uploads))
	}

	snap.RecentQueries = tail(t.queries, 10)
	snap.RecentUploads = tail(t.uploads, 10)

	return snap
}

// Clear resets all analytics data.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.queries = nil
	t.uploads = nil
	t.totalQueries = 0
	t.totalUploads = 0
	t.cacheHits = 0
	t.cacheMisses = 0
}

func tail[T any](events []T, n int) []T {
	if len(events) <= n {
		out := make([]T, len(events))
		copy(out, events)
		return out
	}
	out := make([]T, n)
	copy(out, events[len(events)-n:])
	return out
}
