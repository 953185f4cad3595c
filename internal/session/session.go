// Package session coordinates the lifecycle of a packet capture: one
// controller owns the background read→decode→classify→insert loop and
// the IDLE → RUNNING → STOPPING → IDLE state machine around it.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/sirupsen/logrus"

	"netmon/internal/capture"
	"netmon/internal/decode"
	"netmon/internal/models"
	"netmon/internal/store"
)

// State of the capture session.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopping
)

// maxConsecutiveReadErrors bounds how often the capture loop retries a
// failing source before it treats the interface as dead.
const maxConsecutiveReadErrors = 10

func (s State) String() string {
	switch s {
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	default:
		return "IDLE"
	}
}

var (
	// ErrAlreadyRunning is returned by Start while a capture is active.
	// Not fatal; the running capture is unaffected.
	ErrAlreadyRunning = errors.New("capture already running")

	// ErrInterrupted records that the capture ended on its own because
	// the interface closed or vanished. Surfaced through Status.
	ErrInterrupted = errors.New("capture interrupted")

	// ErrNoSource is returned by Start when neither an interface nor a
	// replay file is given.
	ErrNoSource = errors.New("no capture interface or file specified")
)

// PacketSource is the blocking frame source driven by the capture
// loop. Closing it is the cancellation mechanism: a pending ReadPacket
// returns promptly with capture.ErrClosed.
type PacketSource interface {
	ReadPacket() (gopacket.Packet, error)
	LinkType() layers.LinkType
	Interface() string
	Live() bool
	Close()
}

// OpenFunc opens the packet source for a start request. Swappable in
// tests.
type OpenFunc func(opts Options) (PacketSource, error)

// Listener receives inserted records and session state transitions.
type Listener interface {
	RecordInserted(rec models.PacketRecord)
	StatusChanged(st Status)
}

// Options for one capture run.
type Options struct {
	// Interface to capture on. Ignored when ReadFile is set.
	Interface string
	// ReadFile replays a saved pcap file instead of a live capture.
	ReadFile string
	// FilterIP is the default query-time IP filter. Changing it later
	// never discards captured records.
	FilterIP string
	// WriteFile, when set, mirrors every captured frame into a pcap
	// file for the duration of the session.
	WriteFile string
	// Duration, when positive, stops the capture automatically.
	Duration time.Duration
}

// Status is the externally visible session state. Received and
// Dropped are the OS-level handle counters of a live capture; they
// stay zero for replays and idle sessions.
type Status struct {
	State     string      `json:"state"`
	Interface string      `json:"interface"`
	FilterIP  string      `json:"filter_ip"`
	BufferLen int         `json:"buffer_len"`
	LastSeq   uint64      `json:"last_seq"`
	Stats     store.Stats `json:"stats"`
	Received  int         `json:"received"`
	Dropped   int         `json:"dropped"`
	Error     string      `json:"error,omitempty"`
}

// Config carries the capture settings shared by all sessions.
type Config struct {
	SnapLen     int32
	Promiscuous bool
}

// Controller is the process-wide capture session. Create one at
// startup and pass it to every handler; it is safe for concurrent use.
type Controller struct {
	store *store.Ring
	open  OpenFunc
	log   *logrus.Entry

	mu        sync.Mutex
	state     State
	iface     string
	filterIP  string
	src       PacketSource
	stopCh    chan struct{}
	done      chan struct{}
	lastErr   error
	listeners map[Listener]struct{}
}

// New creates an idle controller inserting into st.
func New(st *store.Ring, cfg Config) *Controller {
	return NewWithOpen(st, func(opts Options) (PacketSource, error) {
		if opts.ReadFile != "" {
			return capture.OpenFile(opts.ReadFile)
		}
		return capture.Open(opts.Interface, cfg.SnapLen, cfg.Promiscuous)
	})
}

// NewWithOpen creates a controller with a custom source opener. Lets
// tests drive the loop without a real capture handle.
func NewWithOpen(st *store.Ring, open OpenFunc) *Controller {
	return &Controller{
		store:     st,
		open:      open,
		listeners: make(map[Listener]struct{}),
		log:       logrus.WithField("component", "session"),
	}
}

// AddListener registers l for record and status notifications.
func (c *Controller) AddListener(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners[l] = struct{}{}
}

// RemoveListener unregisters l.
func (c *Controller) RemoveListener(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.listeners, l)
}

// Start opens the source and launches the capture loop. Open failures
// (permissions, unknown interface) surface synchronously and leave the
// session IDLE. Returns ErrAlreadyRunning while a capture is active.
func (c *Controller) Start(opts Options) error {
	if err := c.startLocked(opts); err != nil {
		return err
	}
	c.notifyStatus()
	return nil
}

func (c *Controller) startLocked(opts Options) error {
	if opts.Interface == "" && opts.ReadFile == "" {
		return ErrNoSource
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		return ErrAlreadyRunning
	}

	src, err := c.open(opts)
	if err != nil {
		return err
	}

	var w *capture.Writer
	if opts.WriteFile != "" {
		w, err = capture.NewWriter(opts.WriteFile, src.LinkType(), 0)
		if err != nil {
			src.Close()
			return err
		}
	}

	c.store.ResetStats()
	c.state = StateRunning
	c.src = src
	c.iface = src.Interface()
	c.filterIP = opts.FilterIP
	c.lastErr = nil
	c.stopCh = make(chan struct{})
	c.done = make(chan struct{})

	go c.loop(src, w, c.stopCh, c.done)
	if opts.Duration > 0 {
		go c.stopAfter(opts.Duration, c.done)
	}

	c.log.WithFields(logrus.Fields{
		"interface": c.iface,
		"filter_ip": c.filterIP,
		"live":      src.Live(),
	}).Info("capture started")
	return nil
}

// Stop signals cancellation and waits until the capture loop has fully
// exited, so the source handle is released before a new Start is
// permitted. Stopping an idle session is a no-op.
func (c *Controller) Stop() {
	c.mu.Lock()
	switch c.state {
	case StateIdle:
		c.mu.Unlock()
		return
	case StateStopping:
		// Another caller is already driving the transition; wait for it.
		done := c.done
		c.mu.Unlock()
		<-done
		return
	}
	c.state = StateStopping
	stopCh, src, done := c.stopCh, c.src, c.done
	c.mu.Unlock()

	close(stopCh)
	src.Close() // unblocks the pending read
	<-done

	c.mu.Lock()
	c.state = StateIdle
	c.src = nil
	c.mu.Unlock()

	c.log.Info("capture stopped")
	c.notifyStatus()
}

// SetFilterIP changes the default query-time IP filter without
// touching captured data.
func (c *Controller) SetFilterIP(ip string) {
	c.mu.Lock()
	c.filterIP = ip
	c.mu.Unlock()
	c.notifyStatus()
}

// Status reports the current session and buffer state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	st := Status{
		State:     c.state.String(),
		Interface: c.iface,
		FilterIP:  c.filterIP,
	}
	if c.lastErr != nil {
		st.Error = c.lastErr.Error()
	}
	// capture.Source exposes the pcap handle counters; other sources
	// may not. Only RUNNING guarantees the handle is still open.
	if counted, ok := c.src.(interface {
		Stats() (received, dropped int, err error)
	}); ok && c.state == StateRunning {
		if rx, drop, err := counted.Stats(); err == nil {
			st.Received = rx
			st.Dropped = drop
		}
	}
	c.mu.Unlock()

	st.BufferLen = c.store.Len()
	st.LastSeq = c.store.LastSeq()
	st.Stats = c.store.Stats()
	return st
}

// loop is the single background execution unit of a RUNNING session.
// ReadPacket is its only blocking point; cancellation is checked once
// per frame and delivered by closing the source.
func (c *Controller) loop(src PacketSource, w *capture.Writer, stopCh, done chan struct{}) {
	defer close(done)
	if w != nil {
		defer func() {
			if err := w.Close(); err != nil {
				c.log.WithError(err).Warn("close capture file")
				return
			}
			c.log.WithFields(logrus.Fields{
				"path":    w.Path(),
				"packets": w.Count(),
			}).Info("capture file written")
		}()
	}

	readErrs := 0
	for {
		pkt, err := src.ReadPacket()

		select {
		case <-stopCh:
			return
		default:
		}

		if err != nil {
			if errors.Is(err, capture.ErrClosed) {
				c.endFromLoop(src)
				return
			}
			// Transient read error: log and keep going, but give up
			// once the source fails persistently so the session does
			// not spin forever on a dead interface.
			readErrs++
			if readErrs >= maxConsecutiveReadErrors {
				c.log.WithError(err).Warn("ending capture after repeated read errors")
				c.endFromLoop(src)
				return
			}
			c.log.WithError(err).Warn("packet read error")
			continue
		}
		readErrs = 0

		rec := decode.Decode(pkt)
		rec.Text, rec.PlainText = decode.Classify(rec.Payload)
		rec.Seq = c.store.Insert(rec)

		if w != nil {
			if err := w.WritePacket(pkt); err != nil {
				c.log.WithError(err).Warn("write capture file")
			}
		}

		c.notifyRecord(rec)
	}
}

// endFromLoop transitions RUNNING → IDLE when the source dried up on
// its own: interface vanished for live captures, end of file for
// replays. A concurrent Stop owns the transition instead.
func (c *Controller) endFromLoop(src PacketSource) {
	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		return
	}
	c.state = StateIdle
	c.src = nil
	if src.Live() {
		c.lastErr = ErrInterrupted
	}
	c.mu.Unlock()

	src.Close()
	if src.Live() {
		c.log.Warn("capture interrupted: source closed unexpectedly")
	} else {
		c.log.Info("capture finished")
	}
	c.notifyStatus()
}

func (c *Controller) stopAfter(d time.Duration, done chan struct{}) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		c.Stop()
	case <-done:
	}
}

func (c *Controller) snapshotListeners() []Listener {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Listener, 0, len(c.listeners))
	for l := range c.listeners {
		out = append(out, l)
	}
	return out
}

func (c *Controller) notifyRecord(rec models.PacketRecord) {
	for _, l := range c.snapshotListeners() {
		l.RecordInserted(rec)
	}
}

func (c *Controller) notifyStatus() {
	st := c.Status()
	for _, l := range c.snapshotListeners() {
		l.StatusChanged(st)
	}
}
