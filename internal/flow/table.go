// Package flow aggregates captured records into per-conversation
// statistics. A conversation is the normalized 5-tuple of a record, so
// both directions of an exchange count against the same entry.
package flow

import (
	"sort"
	"sync"
	"time"

	"netmon/internal/models"
	"netmon/internal/session"
)

const (
	defaultMaxConversations = 10000
	idleTimeout             = 5 * time.Minute
)

// Key is a direction-normalized 5-tuple.
type Key struct {
	IP1      string
	IP2      string
	Port1    uint16
	Port2    uint16
	Protocol models.Protocol
}

// KeyFor normalizes a record's endpoints: the smaller IP (and on a
// tie, the smaller port) comes first, so A→B and B→A share a key.
func KeyFor(rec *models.PacketRecord) Key {
	if rec.SrcIP < rec.DstIP || (rec.SrcIP == rec.DstIP && rec.SrcPort < rec.DstPort) {
		return Key{IP1: rec.SrcIP, IP2: rec.DstIP, Port1: rec.SrcPort, Port2: rec.DstPort, Protocol: rec.Protocol}
	}
	return Key{IP1: rec.DstIP, IP2: rec.SrcIP, Port1: rec.DstPort, Port2: rec.SrcPort, Protocol: rec.Protocol}
}

// Conversation holds the running counters for one 5-tuple. Src/Dst
// reflect the direction of the first packet seen.
type Conversation struct {
	SrcIP      string          `json:"src"`
	DstIP      string          `json:"dst"`
	SrcPort    uint16          `json:"src_port"`
	DstPort    uint16          `json:"dst_port"`
	Protocol   models.Protocol `json:"protocol"`
	Packets    int             `json:"packets"`
	Bytes      int64           `json:"bytes"`
	FwdPackets int             `json:"fwd_packets"`
	FwdBytes   int64           `json:"fwd_bytes"`
	RevPackets int             `json:"rev_packets"`
	RevBytes   int64           `json:"rev_bytes"`
	FirstSeen  time.Time       `json:"first_seen"`
	LastSeen   time.Time       `json:"last_seen"`
}

// Table is the conversation table. It implements session.Listener, so
// registering it on the controller wires it into the capture loop; the
// table resets itself when a new capture starts.
type Table struct {
	mu        sync.Mutex
	convs     map[Key]*Conversation
	max       int
	lastState string
}

// NewTable creates an empty conversation table.
func NewTable() *Table {
	return &Table{
		convs: make(map[Key]*Conversation),
		max:   defaultMaxConversations,
	}
}

// RecordInserted folds one captured record into its conversation.
func (t *Table) RecordInserted(rec models.PacketRecord) {
	key := KeyFor(&rec)
	now := rec.Timestamp

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.convs) >= t.max {
		t.evictIdle(now)
	}

	c, ok := t.convs[key]
	if !ok {
		c = &Conversation{
			SrcIP:     rec.SrcIP,
			DstIP:     rec.DstIP,
			SrcPort:   rec.SrcPort,
			DstPort:   rec.DstPort,
			Protocol:  rec.Protocol,
			FirstSeen: now,
		}
		t.convs[key] = c
	}

	c.Packets++
	c.Bytes += int64(rec.Length)
	c.LastSeen = now

	if rec.SrcIP == c.SrcIP && rec.SrcPort == c.SrcPort {
		c.FwdPackets++
		c.FwdBytes += int64(rec.Length)
	} else {
		c.RevPackets++
		c.RevBytes += int64(rec.Length)
	}
}

// StatusChanged resets the table on the IDLE → RUNNING edge so each
// capture session starts with a clean conversation view.
func (t *Table) StatusChanged(st session.Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st.State == "RUNNING" && t.lastState != "RUNNING" {
		t.convs = make(map[Key]*Conversation)
	}
	t.lastState = st.State
}

// Snapshot returns up to limit conversations ordered by byte count,
// busiest first. A non-positive limit returns everything.
func (t *Table) Snapshot(limit int) []Conversation {
	t.mu.Lock()
	out := make([]Conversation, 0, len(t.convs))
	for _, c := range t.convs {
		out = append(out, *c)
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Bytes > out[j].Bytes })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Len returns the number of tracked conversations.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.convs)
}

// Reset clears the table.
func (t *Table) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.convs = make(map[Key]*Conversation)
}

func (t *Table) evictIdle(now time.Time) {
	cutoff := now.Add(-idleTimeout)
	for key, c := range t.convs {
		if c.LastSeen.Before(cutoff) {
			delete(t.convs, key)
		}
	}
}
