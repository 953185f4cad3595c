// Package filter compiles display-filter expressions for the query
// layer using expr-lang. Filters are evaluated per record at query
// time, so changing a filter never discards already-captured data.
package filter

import (
	"fmt"

	"github.com/expr-lang/expr"

	"netmon/internal/models"
)

// Env is the expression environment exposed to filters. Field names
// are what a query like `protocol == "TCP" && dst_port == 443` refers
// to.
type Env struct {
	Seq       uint64 `expr:"seq"`
	Protocol  string `expr:"protocol"`
	Length    int    `expr:"length"`
	SrcIP     string `expr:"src"`
	DstIP     string `expr:"dst"`
	SrcPort   int    `expr:"src_port"`
	DstPort   int    `expr:"dst_port"`
	PlainText bool   `expr:"plain_text"`
	Text      string `expr:"text"`

	// Shorthand protocol flags so `is_tcp || is_udp` reads naturally.
	IsTCP  bool `expr:"is_tcp"`
	IsUDP  bool `expr:"is_udp"`
	IsICMP bool `expr:"is_icmp"`
}

// Compile turns a filter expression into a predicate over records.
// Records that fail evaluation (type errors at runtime) are excluded
// rather than aborting the query.
func Compile(src string) (func(*models.PacketRecord) bool, error) {
	program, err := expr.Compile(src, expr.Env(Env{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile filter %q: %w", src, err)
	}
	return func(rec *models.PacketRecord) bool {
		result, err := expr.Run(program, envFor(rec))
		if err != nil {
			return false
		}
		b, ok := result.(bool)
		return ok && b
	}, nil
}

func envFor(rec *models.PacketRecord) Env {
	return Env{
		Seq:       rec.Seq,
		Protocol:  string(rec.Protocol),
		Length:    rec.Length,
		SrcIP:     rec.SrcIP,
		DstIP:     rec.DstIP,
		SrcPort:   int(rec.SrcPort),
		DstPort:   int(rec.DstPort),
		PlainText: rec.PlainText,
		Text:      rec.Text,
		IsTCP:     rec.Protocol == models.ProtoTCP,
		IsUDP:     rec.Protocol == models.ProtoUDP,
		IsICMP:    rec.Protocol == models.ProtoICMP,
	}
}
