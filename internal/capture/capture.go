// Package capture wraps live and offline packet sources around
// gopacket/pcap handles.
package capture

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"netmon/internal/models"
)

const (
	DefaultSnapLen = 65535
	DefaultTimeout = 100 * time.Millisecond
)

var (
	// ErrPermission reports that the process lacks capture privileges.
	// Raised at open time, never deferred to the first read.
	ErrPermission = errors.New("insufficient privileges for packet capture")

	// ErrNoSuchInterface reports that the requested interface does not
	// exist.
	ErrNoSuchInterface = errors.New("capture interface not found")

	// ErrClosed is returned by ReadPacket once the source is closed or
	// the underlying interface vanished.
	ErrClosed = errors.New("capture source closed")
)

// Source is an open packet source. ReadPacket blocks until a frame
// arrives or the source is closed; Close is idempotent and unblocks a
// pending read.
type Source struct {
	handle *pcap.Handle
	src    *gopacket.PacketSource
	iface  string
	live   bool

	closeOnce sync.Once
	closed    chan struct{}
}

// Open starts a live capture on the given interface.
func Open(iface string, snapLen int32, promisc bool) (*Source, error) {
	if snapLen <= 0 {
		snapLen = DefaultSnapLen
	}
	handle, err := pcap.OpenLive(iface, snapLen, promisc, DefaultTimeout)
	if err != nil {
		return nil, classifyOpenError(iface, err)
	}
	return newSource(handle, iface, true), nil
}

// OpenFile opens a previously saved capture file for replay.
func OpenFile(path string) (*Source, error) {
	handle, err := pcap.OpenOffline(path)
	if err != nil {
		return nil, fmt.Errorf("open capture file %q: %w", path, err)
	}
	return newSource(handle, path, false), nil
}

func newSource(handle *pcap.Handle, iface string, live bool) *Source {
	return &Source{
		handle: handle,
		src:    gopacket.NewPacketSource(handle, handle.LinkType()),
		iface:  iface,
		live:   live,
		closed: make(chan struct{}),
	}
}

// classifyOpenError maps libpcap open failures onto the error
// taxonomy. libpcap only exposes message strings, so this matches on
// the well-known fragments.
func classifyOpenError(iface string, err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission denied") ||
		strings.Contains(msg, "operation not permitted") ||
		strings.Contains(msg, "cap_net_raw"):
		return fmt.Errorf("open %s: %w: %v", iface, ErrPermission, err)
	case strings.Contains(msg, "no such device") ||
		strings.Contains(msg, "doesn't exist") ||
		strings.Contains(msg, "not found"):
		return fmt.Errorf("open %s: %w: %v", iface, ErrNoSuchInterface, err)
	default:
		return fmt.Errorf("open %s: %w", iface, err)
	}
}

// ReadPacket blocks until the next frame arrives. Poll timeouts are
// absorbed internally. ErrClosed means the source was closed or ran
// out of packets; any other error is transient and the caller may keep
// reading.
func (s *Source) ReadPacket() (gopacket.Packet, error) {
	for {
		pkt, err := s.src.NextPacket()
		if err == nil {
			return pkt, nil
		}
		if s.isClosed() {
			return nil, ErrClosed
		}
		if err == pcap.NextErrorTimeoutExpired {
			continue
		}
		if err == io.EOF || err == pcap.NextErrorNoMorePackets {
			return nil, ErrClosed
		}
		if s.live && isFatalReadError(err) {
			return nil, ErrClosed
		}
		return nil, err
	}
}

// isFatalReadError reports whether a live-handle read failure means
// the interface is gone for good rather than a transient hiccup.
// libpcap only exposes message strings here, same as at open time.
func isFatalReadError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "went down") ||
		strings.Contains(msg, "disappeared") ||
		strings.Contains(msg, "is gone") ||
		strings.Contains(msg, "no such device")
}

// Interface returns the interface name (or file path) this source
// reads from.
func (s *Source) Interface() string {
	return s.iface
}

// Live reports whether this source reads from a live interface.
func (s *Source) Live() bool {
	return s.live
}

// LinkType returns the link layer type of the source.
func (s *Source) LinkType() layers.LinkType {
	return s.handle.LinkType()
}

// Stats returns received/dropped counters for live sources.
func (s *Source) Stats() (received, dropped int, err error) {
	stats, err := s.handle.Stats()
	if err != nil {
		return 0, 0, err
	}
	return stats.PacketsReceived, stats.PacketsDropped, nil
}

// Close releases the OS capture handle and forces a pending ReadPacket
// to return promptly. Safe to call more than once.
func (s *Source) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.handle.Close()
	})
}

func (s *Source) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// ListInterfaces returns all capture-capable interfaces on the host.
func ListInterfaces() ([]models.InterfaceInfo, error) {
	devs, err := pcap.FindAllDevs()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}
	var out []models.InterfaceInfo
	for _, d := range devs {
		info := models.InterfaceInfo{
			Name:        d.Name,
			Description: d.Description,
		}
		for _, addr := range d.Addresses {
			info.Addresses = append(info.Addresses, addr.IP.String())
		}
		out = append(out, info)
	}
	return out, nil
}
