package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/goodtune/focusd/internal/clock"
	"github.com/goodtune/focusd/internal/relax"
	"github.com/goodtune/focusd/internal/rotation"
	"github.com/goodtune/focusd/internal/storage"
	"github.com/goodtune/focusd/internal/storage/bolt"
	"github.com/rs/zerolog"
)

type testEnv struct {
	handler http.Handler
	clock   *clock.TestClock
	trigger *countingTrigger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := bolt.Open(filepath.Join(t.TempDir(), "focusd.bolt"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	tracker, err := relax.NewTracker(store.Relax(), relax.Config{Location: time.UTC}, zerolog.Nop())
	if err != nil {
		t.Fatalf("new tracker: %v", err)
	}
	pool, err := rotation.NewPool(2, 2, rotation.DefaultKey)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	selector := rotation.NewSelector(store.Rotation(), pool, rotation.Config{}, zerolog.Nop())

	clk := clock.NewTestClock(time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC))
	trigger := &countingTrigger{}
	h := NewHandler(tracker, selector, trigger, clk, zerolog.Nop())

	return &testEnv{
		handler: NewRouter(h, zerolog.Nop()),
		clock:   clk,
		trigger: trigger,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, out interface{}) int {
	t.Helper()

	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	if out != nil && rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s %s: %v (%s)", method, path, err, rec.Body.String())
		}
	}
	return rec.Code
}

func TestRelaxEndpoints(t *testing.T) {
	env := newTestEnv(t)

	var state StateResponse
	if code := env.do(t, http.MethodGet, "/api/relax", &state); code != http.StatusOK {
		t.Fatalf("GET /api/relax = %d", code)
	}
	if state.Day != "2024-03-10" || state.RemainingMs != time.Hour.Milliseconds() || state.IsRelaxing {
		t.Fatalf("unexpected initial state: %+v", state)
	}

	if code := env.do(t, http.MethodPost, "/api/relax/start", &state); code != http.StatusOK {
		t.Fatalf("POST /api/relax/start = %d", code)
	}
	if !state.IsRelaxing || state.ActiveSince == nil {
		t.Fatalf("expected relaxing after start: %+v", state)
	}

	env.clock.Advance(5 * time.Minute)
	if code := env.do(t, http.MethodPost, "/api/relax/stop", &state); code != http.StatusOK {
		t.Fatalf("POST /api/relax/stop = %d", code)
	}
	if state.IsRelaxing || state.UsedMs != (5*time.Minute).Milliseconds() {
		t.Fatalf("unexpected state after stop: %+v", state)
	}
	if env.trigger.count != 2 {
		t.Errorf("expected gate triggered by start and stop, got %d", env.trigger.count)
	}

	var sessions SessionsResponse
	if code := env.do(t, http.MethodGet, "/api/relax/sessions", &sessions); code != http.StatusOK {
		t.Fatalf("GET /api/relax/sessions = %d", code)
	}
	if len(sessions.Sessions) != 1 || sessions.Sessions[0].Reason != storage.CloseReasonStopped {
		t.Errorf("unexpected sessions: %+v", sessions)
	}

	if code := env.do(t, http.MethodGet, "/api/relax/sessions?day=2024-03-09", &sessions); code != http.StatusOK {
		t.Fatalf("GET /api/relax/sessions?day = %d", code)
	}
	if sessions.Day != "2024-03-09" || len(sessions.Sessions) != 0 {
		t.Errorf("expected no sessions yesterday, got %+v", sessions)
	}
}

func TestTickClosesExhaustedChunk(t *testing.T) {
	env := newTestEnv(t)

	var state StateResponse
	env.do(t, http.MethodPost, "/api/relax/start", &state)
	env.clock.Advance(16 * time.Minute)

	if code := env.do(t, http.MethodPost, "/api/relax/tick", &state); code != http.StatusOK {
		t.Fatalf("POST /api/relax/tick = %d", code)
	}
	if state.IsRelaxing || state.UsedMs != (16*time.Minute).Milliseconds() {
		t.Errorf("expected forced close with true elapsed, got %+v", state)
	}
}

func TestSessionsRejectsBadDay(t *testing.T) {
	env := newTestEnv(t)

	var resp ErrorResponse
	if code := env.do(t, http.MethodGet, "/api/relax/sessions?day=yesterday", &resp); code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
	if resp.Error == "" {
		t.Error("expected error message")
	}
}

func TestRotationAndResume(t *testing.T) {
	env := newTestEnv(t)

	var selection rotation.Selection
	if code := env.do(t, http.MethodGet, "/api/rotation", &selection); code != http.StatusOK {
		t.Fatalf("GET /api/rotation = %d", code)
	}
	if selection.Key != "image:0" || !selection.Changed {
		t.Fatalf("expected first pool item selected, got %+v", selection)
	}

	var resume ResumeResponse
	if code := env.do(t, http.MethodPost, "/api/resume", &resume); code != http.StatusOK {
		t.Fatalf("POST /api/resume = %d", code)
	}
	if resume.Selection.Key != "image:0" || resume.Selection.Changed {
		t.Errorf("expected selection kept inside the window, got %+v", resume.Selection)
	}
	if resume.Relax.Day != "2024-03-10" {
		t.Errorf("unexpected relax day: %+v", resume.Relax)
	}
	if env.trigger.count != 1 {
		t.Errorf("expected resume to trigger the gate, got %d", env.trigger.count)
	}
}

func TestErrorsReturn500(t *testing.T) {
	h := NewHandler(failingRelax{}, failingSelector{}, nil, nil, zerolog.Nop())
	router := NewRouter(h, zerolog.Nop())

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/relax"},
		{http.MethodPost, "/api/relax/start"},
		{http.MethodGet, "/api/relax/sessions"},
		{http.MethodGet, "/api/rotation"},
		{http.MethodPost, "/api/resume"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != http.StatusInternalServerError {
				t.Fatalf("expected 500, got %d", rec.Code)
			}
			var resp ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp.Error != "store offline" {
				t.Errorf("unexpected error body %q", rec.Body.String())
			}
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)

	if code := env.do(t, http.MethodGet, "/api/relax/start", nil); code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", code)
	}
}

type countingTrigger struct {
	count int
}

func (c *countingTrigger) Trigger() {
	c.count++
}

var errOffline = errors.New("store offline")

type failingRelax struct{}

func (failingRelax) State(context.Context, time.Time) (relax.State, error) {
	return relax.State{}, errOffline
}

func (failingRelax) Start(context.Context, time.Time) (relax.State, error) {
	return relax.State{}, errOffline
}

func (failingRelax) Stop(context.Context, time.Time) (relax.State, error) {
	return relax.State{}, errOffline
}

func (failingRelax) Tick(context.Context, time.Time) (relax.State, error) {
	return relax.State{}, errOffline
}

func (failingRelax) Sessions(context.Context, clock.DayKey) ([]storage.RelaxSession, error) {
	return nil, errOffline
}

func (failingRelax) Day(now time.Time) clock.DayKey {
	return clock.DayOf(now, time.UTC)
}

func (failingRelax) Location() *time.Location {
	return time.UTC
}

type failingSelector struct{}

func (failingSelector) Selection(context.Context, time.Time) (rotation.Selection, error) {
	return rotation.Selection{}, errOffline
}
