// Package handlers exposes the capture session and packet store over
// HTTP: a JSON polling API for front ends plus a WebSocket live
// stream.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"netmon/internal/capture"
	"netmon/internal/decode"
	"netmon/internal/diag"
	"netmon/internal/filter"
	"netmon/internal/flow"
	"netmon/internal/models"
	"netmon/internal/session"
	"netmon/internal/store"
)

const (
	defaultPacketLimit = 200
	maxPacketLimit     = 2000
	sweepTimeout       = 15 * time.Second
	diagTimeout        = 30 * time.Second
)

// API bundles the handlers' shared dependencies.
type API struct {
	sess         *session.Controller
	store        *store.Ring
	flows        *flow.Table
	hub          *Hub
	defaultIface string
	log          *logrus.Entry
}

// New creates the API façade around a session controller and its
// store.
func New(sess *session.Controller, st *store.Ring, flows *flow.Table, hub *Hub, defaultIface string) *API {
	return &API{
		sess:         sess,
		store:        st,
		flows:        flows,
		hub:          hub,
		defaultIface: defaultIface,
		log:          logrus.WithField("component", "api"),
	}
}

// Register sets up all routes on the given mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", a.handleHealth)
	mux.HandleFunc("GET /api/interfaces", a.handleInterfaces)
	mux.HandleFunc("GET /api/status", a.handleStatus)
	mux.HandleFunc("POST /api/capture/start", a.handleStart)
	mux.HandleFunc("POST /api/capture/stop", a.handleStop)
	mux.HandleFunc("POST /api/filter", a.handleSetFilter)
	mux.HandleFunc("GET /api/packets", a.handlePackets)
	mux.HandleFunc("GET /api/packets/{seq}/view", a.handleView)
	mux.HandleFunc("POST /api/packets/clear", a.handleClear)
	mux.HandleFunc("GET /api/flows", a.handleFlows)
	mux.HandleFunc("GET /api/ping", a.handlePing)
	mux.HandleFunc("GET /api/traceroute", a.handleTraceroute)
	mux.HandleFunc("GET /api/devices/arp", a.handleARPCache)
	mux.HandleFunc("POST /api/devices/sweep", a.handleSweep)
	if a.hub != nil {
		mux.HandleFunc("/ws", a.hub.Handler())
	}
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *API) handleInterfaces(w http.ResponseWriter, r *http.Request) {
	ifaces, err := capture.ListInterfaces()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string][]models.InterfaceInfo{"interfaces": ifaces})
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.sess.Status())
}

type startRequest struct {
	Interface string `json:"interface"`
	FilterIP  string `json:"filter_ip"`
	ReadFile  string `json:"read_file"`
	WriteFile string `json:"write_file"`
	DurationS int    `json:"duration_s"`
}

func (a *API) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Interface == "" && req.ReadFile == "" {
		req.Interface = a.defaultIface
	}

	err := a.sess.Start(session.Options{
		Interface: req.Interface,
		ReadFile:  req.ReadFile,
		FilterIP:  req.FilterIP,
		WriteFile: req.WriteFile,
		Duration:  time.Duration(req.DurationS) * time.Second,
	})
	if err != nil {
		writeError(w, startErrorCode(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, a.sess.Status())
}

// startErrorCode maps the start error taxonomy onto HTTP status codes.
func startErrorCode(err error) int {
	switch {
	case errors.Is(err, session.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, capture.ErrPermission):
		return http.StatusForbidden
	case errors.Is(err, capture.ErrNoSuchInterface):
		return http.StatusNotFound
	case errors.Is(err, session.ErrNoSource):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) handleStop(w http.ResponseWriter, r *http.Request) {
	a.sess.Stop()
	writeJSON(w, http.StatusOK, a.sess.Status())
}

func (a *API) handleSetFilter(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IP string `json:"ip"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	a.sess.SetFilterIP(req.IP)
	writeJSON(w, http.StatusOK, a.sess.Status())
}

func (a *API) handlePackets(w http.ResponseWriter, r *http.Request) {
	q := store.Query{
		Since: parseUint(r.URL.Query().Get("since"), 0),
		Limit: clampInt(parseInt(r.URL.Query().Get("limit"), defaultPacketLimit), 1, maxPacketLimit),
		IP:    r.URL.Query().Get("ip"),
	}
	if q.IP == "" {
		q.IP = a.sess.Status().FilterIP
	}
	if exprStr := r.URL.Query().Get("expr"); exprStr != "" {
		match, err := filter.Compile(exprStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		q.Match = match
	}

	recs := a.store.Query(q)
	out := make([]recordJSON, 0, len(recs))
	for i := range recs {
		out = append(out, newRecordJSON(&recs[i]))
	}
	nextSince := q.Since
	if len(recs) > 0 {
		nextSince = recs[len(recs)-1].Seq
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"packets":    out,
		"next_since": nextSince,
	})
}

func (a *API) handleView(w http.ResponseWriter, r *http.Request) {
	seq, err := strconv.ParseUint(r.PathValue("seq"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid sequence id")
		return
	}
	mode, err := decode.ParseViewMode(r.URL.Query().Get("mode"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, ok := a.store.Get(seq)
	if !ok {
		writeError(w, http.StatusNotFound, "no such packet (evicted or never captured)")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"seq":      rec.Seq,
		"mode":     string(mode),
		"rendered": decode.Render(rec.Payload, mode),
	})
}

func (a *API) handleClear(w http.ResponseWriter, r *http.Request) {
	a.store.Clear()
	if a.flows != nil {
		a.flows.Reset()
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *API) handleFlows(w http.ResponseWriter, r *http.Request) {
	if a.flows == nil {
		writeJSON(w, http.StatusOK, map[string][]flow.Conversation{"flows": {}})
		return
	}
	limit := clampInt(parseInt(r.URL.Query().Get("limit"), defaultPacketLimit), 1, maxPacketLimit)
	writeJSON(w, http.StatusOK, map[string][]flow.Conversation{"flows": a.flows.Snapshot(limit)})
}

func (a *API) handlePing(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), diagTimeout)
	defer cancel()

	res, err := diag.Ping(ctx,
		r.URL.Query().Get("ip"),
		parseInt(r.URL.Query().Get("count"), 4),
		parseInt(r.URL.Query().Get("timeout_ms"), 1000))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleTraceroute(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), diagTimeout)
	defer cancel()

	res, err := diag.Traceroute(ctx, r.URL.Query().Get("ip"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleARPCache(w http.ResponseWriter, r *http.Request) {
	devices, err := diag.ARPCache()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string][]models.Device{"devices": devices})
}

func (a *API) handleSweep(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Interface string `json:"interface"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Interface == "" {
		req.Interface = a.defaultIface
	}
	if req.Interface == "" {
		writeError(w, http.StatusBadRequest, "no interface specified")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), sweepTimeout)
	defer cancel()

	devices, err := diag.Sweep(ctx, req.Interface)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string][]models.Device{"devices": devices})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func parseUint(s string, def uint64) uint64 {
	if s == "" {
		return def
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return def
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
