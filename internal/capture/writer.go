package capture

import (
	"fmt"
	"os"
	"sync"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Writer appends captured frames to a pcap file. Used for the optional
// capture-to-file mode of a session.
type Writer struct {
	mu     sync.Mutex
	file   *os.File
	w      *pcapgo.Writer
	path   string
	count  int
	closed bool
}

// NewWriter creates a pcap file and writes its header.
func NewWriter(path string, linkType layers.LinkType, snapLen uint32) (*Writer, error) {
	if snapLen == 0 {
		snapLen = DefaultSnapLen
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create capture file %q: %w", path, err)
	}
	w := pcapgo.NewWriter(file)
	if err := w.WriteFileHeader(snapLen, linkType); err != nil {
		file.Close()
		return nil, fmt.Errorf("write pcap header: %w", err)
	}
	return &Writer{file: file, w: w, path: path}, nil
}

// WritePacket appends one frame. Writes after Close are rejected.
func (w *Writer) WritePacket(pkt gopacket.Packet) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("writer for %q is closed", w.path)
	}
	ci := pkt.Metadata().CaptureInfo
	if ci.CaptureLength == 0 {
		ci.CaptureLength = len(pkt.Data())
		ci.Length = ci.CaptureLength
	}
	if err := w.w.WritePacket(ci, pkt.Data()); err != nil {
		return fmt.Errorf("write packet: %w", err)
	}
	w.count++
	return nil
}

// Count returns the number of frames written so far.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Path returns the output file path.
func (w *Writer) Path() string {
	return w.path
}

// Close flushes and closes the underlying file. Idempotent.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	return w.file.Close()
}
