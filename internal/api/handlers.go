package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/goodtune/focusd/internal/clock"
	"github.com/goodtune/focusd/internal/relax"
	"github.com/goodtune/focusd/internal/rotation"
	"github.com/goodtune/focusd/internal/storage"
	"github.com/rs/zerolog"
)

// RelaxService is the relax tracker surface exposed over HTTP.
type RelaxService interface {
	State(ctx context.Context, now time.Time) (relax.State, error)
	Start(ctx context.Context, now time.Time) (relax.State, error)
	Stop(ctx context.Context, now time.Time) (relax.State, error)
	Tick(ctx context.Context, now time.Time) (relax.State, error)
	Sessions(ctx context.Context, day clock.DayKey) ([]storage.RelaxSession, error)
	Day(now time.Time) clock.DayKey
	Location() *time.Location
}

// SelectionService returns the rotating header item.
type SelectionService interface {
	Selection(ctx context.Context, now time.Time) (rotation.Selection, error)
}

// Trigger asks the gate for an immediate sync.
type Trigger interface {
	Trigger()
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StateResponse is the JSON form of a relax state.
type StateResponse struct {
	Day              string     `json:"day"`
	UsedMs           int64      `json:"used_ms"`
	RemainingMs      int64      `json:"remaining_ms"`
	ChunkRemainingMs int64      `json:"chunk_remaining_ms"`
	IsRelaxing       bool       `json:"is_relaxing"`
	ActiveSince      *time.Time `json:"active_since,omitempty"`
}

// SessionsResponse lists the closed intervals of one day.
type SessionsResponse struct {
	Day      string                 `json:"day"`
	Sessions []storage.RelaxSession `json:"sessions"`
}

// ResumeResponse is returned when the app comes back to the foreground.
type ResumeResponse struct {
	Relax     StateResponse      `json:"relax"`
	Selection rotation.Selection `json:"selection"`
}

// Handler serves the relax and rotation endpoints.
type Handler struct {
	relax    RelaxService
	selector SelectionService
	gate     Trigger // nil when the gate is disabled
	clock    clock.Clock
	logger   zerolog.Logger
}

// NewHandler creates the API handler. gate may be nil.
func NewHandler(relax RelaxService, selector SelectionService, gate Trigger, clk clock.Clock, logger zerolog.Logger) *Handler {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Handler{
		relax:    relax,
		selector: selector,
		gate:     gate,
		clock:    clk,
		logger:   logger.With().Str("handler", "api").Logger(),
	}
}

// GetRelax returns today's relax state.
func (h *Handler) GetRelax(w http.ResponseWriter, r *http.Request) {
	h.relaxAction(w, r, h.relax.State)
}

// StartRelax opens a relax interval.
func (h *Handler) StartRelax(w http.ResponseWriter, r *http.Request) {
	h.relaxAction(w, r, h.relax.Start)
	h.notifyGate()
}

// StopRelax closes the open relax interval.
func (h *Handler) StopRelax(w http.ResponseWriter, r *http.Request) {
	h.relaxAction(w, r, h.relax.Stop)
	h.notifyGate()
}

// TickRelax closes the interval if its chunk or the budget ran out.
func (h *Handler) TickRelax(w http.ResponseWriter, r *http.Request) {
	h.relaxAction(w, r, h.relax.Tick)
}

func (h *Handler) relaxAction(w http.ResponseWriter, r *http.Request, action func(context.Context, time.Time) (relax.State, error)) {
	state, err := action(r.Context(), h.clock.Now())
	if err != nil {
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("Relax request failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stateResponse(state))
}

// ListSessions returns the closed intervals of ?day=YYYY-MM-DD, today by
// default.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	day := h.relax.Day(h.clock.Now())
	if raw := r.URL.Query().Get("day"); raw != "" {
		parsed, err := clock.ParseDayKey(raw, h.relax.Location())
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		day = parsed
	}

	sessions, err := h.relax.Sessions(r.Context(), day)
	if err != nil {
		h.logger.Error().Err(err).Str("day", day.String()).Msg("Failed to list sessions")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, SessionsResponse{Day: day.String(), Sessions: sessions})
}

// GetRotation returns the header item to show now.
func (h *Handler) GetRotation(w http.ResponseWriter, r *http.Request) {
	selection, err := h.selector.Selection(r.Context(), h.clock.Now())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to select rotation item")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, selection)
}

// Resume handles the app returning to the foreground: the gate re-syncs and
// the caller gets fresh state and selection.
func (h *Handler) Resume(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := h.clock.Now()

	h.notifyGate()

	state, err := h.relax.State(ctx, now)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to read relax state on resume")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	selection, err := h.selector.Selection(ctx, now)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to select rotation item on resume")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ResumeResponse{
		Relax:     stateResponse(state),
		Selection: selection,
	})
}

func (h *Handler) notifyGate() {
	if h.gate != nil {
		h.gate.Trigger()
	}
}

func stateResponse(state relax.State) StateResponse {
	return StateResponse{
		Day:              state.Day.String(),
		UsedMs:           state.Used.Milliseconds(),
		RemainingMs:      state.Remaining.Milliseconds(),
		ChunkRemainingMs: state.ChunkRemaining.Milliseconds(),
		IsRelaxing:       state.IsRelaxing,
		ActiveSince:      state.ActiveSince,
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(buf.Bytes())
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, ErrorResponse{Error: message})
}
