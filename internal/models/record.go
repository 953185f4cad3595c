package models

import "time"

// Protocol is the transport protocol tag assigned to a record, decided
// once per frame by the decoder.
type Protocol string

const (
	ProtoTCP   Protocol = "TCP"
	ProtoUDP   Protocol = "UDP"
	ProtoICMP  Protocol = "ICMP"
	ProtoOther Protocol = "OTHER"
)

// PacketRecord is one decoded unit of captured traffic. A record is
// immutable once inserted into the store; alternate payload views (hex,
// base64) are rendered on demand from Payload, never stored.
type PacketRecord struct {
	// Seq is assigned by the store at insert time. Strictly increasing
	// and unique for the life of the process.
	Seq       uint64
	Timestamp time.Time

	// SrcIP and DstIP are empty for non-IP frames.
	SrcIP string
	DstIP string

	// SrcPort and DstPort are only meaningful for TCP and UDP.
	SrcPort uint16
	DstPort uint16

	Protocol Protocol

	// Payload holds the raw L7 bytes, possibly empty.
	Payload []byte

	// Text is the strict UTF-8 decoding of Payload. When PlainText is
	// false the payload did not decode and Text is empty.
	Text      string
	PlainText bool

	// Length is the payload byte count, kept explicit so it survives
	// serialization even for empty payloads.
	Length int
}

// HasPorts reports whether the transport layer carried port numbers.
func (r *PacketRecord) HasPorts() bool {
	return r.Protocol == ProtoTCP || r.Protocol == ProtoUDP
}
