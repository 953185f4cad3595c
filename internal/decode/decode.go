// Package decode turns raw captured frames into packet records. It
// parses from the outside in: network layer for addresses, transport
// layer for ports, and treats everything after the headers as opaque
// L7 payload. Decoding never fails; frames that cannot be parsed
// degrade to protocol OTHER with the raw bytes kept as payload.
package decode

import (
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"netmon/internal/models"
)

// Decode extracts addresses, ports, protocol tag and L7 payload from a
// frame. The returned record has no sequence number; the store assigns
// one at insert time.
func Decode(pkt gopacket.Packet) models.PacketRecord {
	rec := models.PacketRecord{
		Timestamp: pkt.Metadata().Timestamp,
		Protocol:  models.ProtoOther,
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	// Network layer: addresses. Non-IP frames keep empty addresses and
	// fall through with the full frame as payload.
	switch ip := pkt.NetworkLayer().(type) {
	case *layers.IPv4:
		rec.SrcIP = ip.SrcIP.String()
		rec.DstIP = ip.DstIP.String()
	case *layers.IPv6:
		rec.SrcIP = ip.SrcIP.String()
		rec.DstIP = ip.DstIP.String()
	default:
		rec.Payload = frameBytes(pkt)
		rec.Length = len(rec.Payload)
		return rec
	}

	// Transport layer: protocol tag and ports.
	switch tr := pkt.TransportLayer().(type) {
	case *layers.TCP:
		rec.Protocol = models.ProtoTCP
		rec.SrcPort = uint16(tr.SrcPort)
		rec.DstPort = uint16(tr.DstPort)
	case *layers.UDP:
		rec.Protocol = models.ProtoUDP
		rec.SrcPort = uint16(tr.SrcPort)
		rec.DstPort = uint16(tr.DstPort)
	default:
		if pkt.Layer(layers.LayerTypeICMPv4) != nil || pkt.Layer(layers.LayerTypeICMPv6) != nil {
			rec.Protocol = models.ProtoICMP
		}
	}

	rec.Payload = payloadBytes(pkt)
	rec.Length = len(rec.Payload)
	return rec
}

// payloadBytes returns the L7 bytes of an IP packet: the application
// layer when gopacket recognized one, otherwise whatever followed the
// deepest parsed header.
func payloadBytes(pkt gopacket.Packet) []byte {
	if app := pkt.ApplicationLayer(); app != nil {
		return app.Payload()
	}
	if tr := pkt.TransportLayer(); tr != nil {
		return tr.LayerPayload()
	}
	if icmp := pkt.Layer(layers.LayerTypeICMPv4); icmp != nil {
		return icmp.LayerPayload()
	}
	if icmp := pkt.Layer(layers.LayerTypeICMPv6); icmp != nil {
		return icmp.LayerPayload()
	}
	if nl := pkt.NetworkLayer(); nl != nil {
		return nl.LayerPayload()
	}
	return frameBytes(pkt)
}

// frameBytes returns the frame content past the link layer, or the
// whole frame when even the link layer failed to parse.
func frameBytes(pkt gopacket.Packet) []byte {
	if ll := pkt.LinkLayer(); ll != nil {
		return ll.LayerPayload()
	}
	return pkt.Data()
}
