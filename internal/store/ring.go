// Package store holds the bounded, insertion-ordered collection of
// decoded packet records shared between the capture loop and the query
// layer.
package store

import (
	"sync"

	"netmon/internal/models"
)

// DefaultCapacity matches the buffer size used when none is configured.
const DefaultCapacity = 2000

// Stats are the running traffic counters for the current session. They
// are reset on every capture start, independently of the buffer content.
type Stats struct {
	PacketsTotal uint64 `json:"packets_total"`
	BytesTotal   uint64 `json:"bytes_total"`
}

// Query selects a subset of the buffer. The zero value matches
// everything.
type Query struct {
	// IP keeps only records whose source or destination matches exactly.
	IP string
	// Since keeps only records with Seq strictly greater.
	Since uint64
	// Limit caps the result to the most recent N matches; the returned
	// slice stays in ascending Seq order. Zero or negative means no cap.
	Limit int
	// Match is an optional extra predicate, evaluated last.
	Match func(*models.PacketRecord) bool
}

// Ring is a bounded FIFO of packet records. Inserts assign sequence
// numbers and evict from the front once capacity is exceeded. All
// methods are safe for concurrent use; queries never observe a
// partially inserted or partially evicted state.
type Ring struct {
	mu       sync.RWMutex
	records  []models.PacketRecord
	capacity int
	nextSeq  uint64
	stats    Stats
}

// New creates a ring with the given capacity. Non-positive capacities
// fall back to DefaultCapacity.
func New(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{
		records:  make([]models.PacketRecord, 0, capacity),
		capacity: capacity,
		nextSeq:  1,
	}
}

// Capacity returns the configured maximum number of retained records.
func (r *Ring) Capacity() int {
	return r.capacity
}

// Insert assigns the next sequence number, appends the record and
// evicts the oldest entry if the buffer is over capacity. It returns
// the assigned sequence number.
func (r *Ring) Insert(rec models.PacketRecord) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec.Seq = r.nextSeq
	r.nextSeq++

	r.records = append(r.records, rec)
	if len(r.records) > r.capacity {
		r.records = r.records[1:]
	}

	r.stats.PacketsTotal++
	r.stats.BytesTotal += uint64(rec.Length)

	return rec.Seq
}

// Query returns matching records in ascending sequence order.
func (r *Ring) Query(q Query) []models.PacketRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.PacketRecord
	for i := range r.records {
		rec := &r.records[i]
		if rec.Seq <= q.Since {
			continue
		}
		if q.IP != "" && rec.SrcIP != q.IP && rec.DstIP != q.IP {
			continue
		}
		if q.Match != nil && !q.Match(rec) {
			continue
		}
		out = append(out, *rec)
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[len(out)-q.Limit:]
	}
	return out
}

// Get looks up a single record by sequence number. Evicted or
// never-assigned sequence numbers report ok=false.
func (r *Ring) Get(seq uint64) (models.PacketRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// Records are ordered by Seq, so the offset from the oldest entry
	// indexes directly when nothing has been cleared in between.
	if len(r.records) == 0 {
		return models.PacketRecord{}, false
	}
	first := r.records[0].Seq
	if seq < first || seq >= first+uint64(len(r.records)) {
		return models.PacketRecord{}, false
	}
	return r.records[seq-first], true
}

// Clear drops all buffered records. Sequence numbering continues from
// where it was so poll cursors held by consumers stay valid.
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = r.records[:0]
}

// Len returns the current number of buffered records.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// LastSeq returns the most recently assigned sequence number, zero
// when nothing was ever inserted.
func (r *Ring) LastSeq() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.nextSeq - 1
}

// Stats returns a copy of the running counters.
func (r *Ring) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}

// ResetStats zeroes the counters. Called on capture start.
func (r *Ring) ResetStats() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats = Stats{}
}
