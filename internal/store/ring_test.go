package store

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netmon/internal/models"
)

func rec(src, dst string, length int) models.PacketRecord {
	return models.PacketRecord{
		Timestamp: time.Now(),
		SrcIP:     src,
		DstIP:     dst,
		Protocol:  models.ProtoTCP,
		Length:    length,
	}
}

func seqs(recs []models.PacketRecord) []uint64 {
	out := make([]uint64, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Seq)
	}
	return out
}

func TestInsertAssignsMonotonicSeq(t *testing.T) {
	r := New(10)
	assert.Equal(t, uint64(1), r.Insert(rec("10.0.0.1", "10.0.0.2", 60)))
	assert.Equal(t, uint64(2), r.Insert(rec("10.0.0.1", "10.0.0.2", 60)))
	assert.Equal(t, uint64(3), r.Insert(rec("10.0.0.1", "10.0.0.2", 60)))
	assert.Equal(t, uint64(3), r.LastSeq())
}

func TestEvictionDropsOldest(t *testing.T) {
	r := New(3)
	for i := 0; i < 4; i++ {
		r.Insert(rec("10.0.0.1", "10.0.0.2", 60))
	}

	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []uint64{2, 3, 4}, seqs(r.Query(Query{})))

	_, ok := r.Get(1)
	assert.False(t, ok, "evicted record must not be retrievable")
	got, ok := r.Get(2)
	require.True(t, ok)
	assert.Equal(t, uint64(2), got.Seq)
}

func TestQuerySinceIsExclusive(t *testing.T) {
	r := New(3)
	for i := 0; i < 4; i++ {
		r.Insert(rec("10.0.0.1", "10.0.0.2", 60))
	}

	assert.Equal(t, []uint64{3, 4}, seqs(r.Query(Query{Since: 2})))
	assert.Empty(t, r.Query(Query{Since: 4}))
	assert.Empty(t, r.Query(Query{Since: 99}))
}

func TestQueryIPMatchesEitherEnd(t *testing.T) {
	r := New(10)
	r.Insert(rec("10.0.0.1", "10.0.0.2", 60)) // 1
	r.Insert(rec("10.0.0.3", "10.0.0.1", 60)) // 2
	r.Insert(rec("10.0.0.3", "10.0.0.4", 60)) // 3

	assert.Equal(t, []uint64{1, 2}, seqs(r.Query(Query{IP: "10.0.0.1"})))
	assert.Equal(t, []uint64{2, 3}, seqs(r.Query(Query{IP: "10.0.0.3"})))
	assert.Empty(t, r.Query(Query{IP: "192.168.1.1"}))
}

func TestQueryLimitKeepsMostRecent(t *testing.T) {
	r := New(10)
	for i := 0; i < 5; i++ {
		r.Insert(rec("10.0.0.1", "10.0.0.2", 60))
	}

	got := r.Query(Query{Limit: 2})
	assert.Equal(t, []uint64{4, 5}, seqs(got), "limit keeps the newest matches in ascending order")
}

func TestQueryMatchPredicate(t *testing.T) {
	r := New(10)
	r.Insert(rec("10.0.0.1", "10.0.0.2", 60))
	r.Insert(rec("10.0.0.1", "10.0.0.2", 1400))

	got := r.Query(Query{Match: func(p *models.PacketRecord) bool { return p.Length > 100 }})
	assert.Equal(t, []uint64{2}, seqs(got))
}

func TestClearKeepsNumbering(t *testing.T) {
	r := New(10)
	r.Insert(rec("10.0.0.1", "10.0.0.2", 60))
	r.Insert(rec("10.0.0.1", "10.0.0.2", 60))

	r.Clear()
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, uint64(2), r.LastSeq())

	assert.Equal(t, uint64(3), r.Insert(rec("10.0.0.1", "10.0.0.2", 60)),
		"numbering continues across a clear so poll cursors stay valid")
}

func TestStatsCountAllInserts(t *testing.T) {
	r := New(2)
	for i := 0; i < 5; i++ {
		r.Insert(rec("10.0.0.1", "10.0.0.2", 100))
	}

	st := r.Stats()
	assert.Equal(t, uint64(5), st.PacketsTotal, "stats keep counting past evictions")
	assert.Equal(t, uint64(500), st.BytesTotal)

	r.ResetStats()
	assert.Equal(t, Stats{}, r.Stats())
	assert.Equal(t, 2, r.Len(), "resetting stats leaves the buffer alone")
}

func TestConcurrentInserts(t *testing.T) {
	const (
		writers = 8
		each    = 250
	)
	r := New(writers * each)

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				r.Insert(rec("10.0.0.1", "10.0.0.2", 60))
			}
		}()
	}
	wg.Wait()

	require.Equal(t, writers*each, r.Len())
	got := r.Query(Query{})
	seen := make(map[uint64]bool, len(got))
	var prev uint64
	for _, p := range got {
		assert.Greater(t, p.Seq, prev, "query results must stay in ascending order")
		assert.False(t, seen[p.Seq], "sequence numbers must be unique")
		seen[p.Seq] = true
		prev = p.Seq
	}
}

func TestZeroCapacityFallsBackToDefault(t *testing.T) {
	assert.Equal(t, DefaultCapacity, New(0).Capacity())
	assert.Equal(t, DefaultCapacity, New(-5).Capacity())
}
