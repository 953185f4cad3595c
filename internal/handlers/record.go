package handlers

import (
	"time"

	"netmon/internal/models"
)

// recordJSON is the wire form of a packet record. Ports are null for
// protocols without them and payload is null when the bytes did not
// decode as UTF-8; the raw bytes stay reachable through the view
// endpoint.
type recordJSON struct {
	Seq       uint64  `json:"seq"`
	Timestamp string  `json:"ts"`
	SrcIP     string  `json:"src"`
	DstIP     string  `json:"dst"`
	SrcPort   *uint16 `json:"src_port"`
	DstPort   *uint16 `json:"dst_port"`
	Protocol  string  `json:"protocol"`
	Length    int     `json:"length"`
	Payload   *string `json:"payload"`
	PlainText bool    `json:"plain_text"`
}

func newRecordJSON(rec *models.PacketRecord) recordJSON {
	out := recordJSON{
		Seq:       rec.Seq,
		Timestamp: rec.Timestamp.Format(time.RFC3339Nano),
		SrcIP:     rec.SrcIP,
		DstIP:     rec.DstIP,
		Protocol:  string(rec.Protocol),
		Length:    rec.Length,
		PlainText: rec.PlainText,
	}
	if rec.HasPorts() {
		src, dst := rec.SrcPort, rec.DstPort
		out.SrcPort, out.DstPort = &src, &dst
	}
	if rec.PlainText {
		text := rec.Text
		out.Payload = &text
	}
	return out
}
