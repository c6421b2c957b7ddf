package arbiter

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ryandielhenn/slotchan/internal/telemetry"
)

// SnapshotSource is what the ops handlers read from; *Arbiter satisfies it.
type SnapshotSource interface {
	Snapshot() Snapshot
}

// NewOpsHandler serves health, state and metrics endpoints for an arbiter.
// Handlers only ever see published snapshots.
func NewOpsHandler(src SnapshotSource) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	h := &opsHandlers{src: src}
	r.Method(http.MethodGet, "/healthz", telemetry.Instrument("healthz", http.HandlerFunc(h.healthz)))
	r.Method(http.MethodGet, "/info", telemetry.Instrument("info", http.HandlerFunc(h.info)))
	r.Method(http.MethodGet, "/participants", telemetry.Instrument("participants", http.HandlerFunc(h.participants)))
	r.Method(http.MethodGet, "/metrics", telemetry.MetricsHandler())
	return r
}

type opsHandlers struct {
	src SnapshotSource
}

// healthz returns 200 OK to indicate the arbiter is alive.
func (h *opsHandlers) healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// info writes the process ID, uptime, slot configuration and slot tallies.
func (h *opsHandlers) info(w http.ResponseWriter, _ *http.Request) {
	s := h.src.Snapshot()
	type resp struct {
		PID          int        `json:"pid"`
		Now          time.Time  `json:"now"`
		Uptime       string     `json:"uptime"`
		Addr         string     `json:"addr"`
		SlotMillis   int64      `json:"slot_ms"`
		Capacity     int        `json:"capacity"`
		Participants int        `json:"participants"`
		Slots        SlotCounts `json:"slots"`
	}
	writeJSON(w, resp{
		PID:          os.Getpid(),
		Now:          time.Now(),
		Uptime:       telemetry.Uptime().Round(time.Second).String(),
		Addr:         s.Addr,
		SlotMillis:   s.SlotDuration.Milliseconds(),
		Capacity:     s.Capacity,
		Participants: len(s.Participants),
		Slots:        s.Slots,
	})
}

func (h *opsHandlers) participants(w http.ResponseWriter, _ *http.Request) {
	s := h.src.Snapshot()
	out := s.Participants
	if out == nil {
		out = []ParticipantStats{}
	}
	writeJSON(w, out)
}

func writeJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}
