package gate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goodtune/focusd/internal/clock"
	"github.com/goodtune/focusd/internal/metrics"
	"github.com/goodtune/focusd/internal/relax"
	"github.com/rs/zerolog"
)

const (
	// DefaultIdlePollInterval is the re-sync period while no interval is open
	DefaultIdlePollInterval = time.Minute

	// DefaultRecheckEpsilon is added to the chunk remainder before re-syncing
	DefaultRecheckEpsilon = time.Second
)

// StateSource is the part of the relax tracker the gate needs.
type StateSource interface {
	Tick(ctx context.Context, now time.Time) (relax.State, error)
	State(ctx context.Context, now time.Time) (relax.State, error)
}

// Config holds gate configuration
type Config struct {
	IdlePollInterval time.Duration
	RecheckEpsilon   time.Duration
}

// Result describes one sync.
type Result struct {
	State    relax.State
	StateErr error
	Decision Decision
}

// Gate keeps the blocker in line with the relax state.
type Gate struct {
	source  StateSource
	policy  *Policy
	blocker Blocker
	clock   clock.Clock
	idle    time.Duration
	epsilon time.Duration
	trigger chan struct{}
	logger  zerolog.Logger

	mu       sync.Mutex
	applied  bool // whether blocking reflects a successful blocker call
	blocking bool
}

// New creates a gate.
func New(source StateSource, policy *Policy, blocker Blocker, clk clock.Clock, config Config, logger zerolog.Logger) *Gate {
	if config.IdlePollInterval <= 0 {
		config.IdlePollInterval = DefaultIdlePollInterval
	}
	if config.RecheckEpsilon <= 0 {
		config.RecheckEpsilon = DefaultRecheckEpsilon
	}
	if clk == nil {
		clk = clock.RealClock{}
	}

	return &Gate{
		source:  source,
		policy:  policy,
		blocker: blocker,
		clock:   clk,
		idle:    config.IdlePollInterval,
		epsilon: config.RecheckEpsilon,
		trigger: make(chan struct{}, 1),
		logger:  logger.With().Str("component", "gate").Logger(),
	}
}

// Sync ticks the tracker, evaluates the policy and applies the decision when
// it differs from the last one applied. A tracker failure is treated as not
// relaxing. Only a failing blocker is returned as an error.
func (g *Gate) Sync(ctx context.Context) (Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()

	var result Result
	_, err := g.source.Tick(ctx, now)
	if err == nil {
		result.State, err = g.source.State(ctx, now)
	}

	facts := Facts{}
	if err != nil {
		result.StateErr = err
		facts.Error = true
		metrics.GateSyncErrors.Inc()
		g.logger.Warn().Err(err).Msg("Failed to read relax state, assuming blocking")
	} else {
		facts.Relax = RelaxFacts{
			IsRelaxing:       result.State.IsRelaxing,
			RemainingMs:      result.State.Remaining.Milliseconds(),
			ChunkRemainingMs: result.State.ChunkRemaining.Milliseconds(),
			UsedMs:           result.State.Used.Milliseconds(),
		}
	}

	decision, err := g.policy.Evaluate(ctx, facts)
	if err != nil {
		g.logger.Error().Err(err).Msg("Gate policy evaluation failed, blocking")
		decision = Decision{Block: true, Reason: "policy_error"}
	}
	result.Decision = decision

	if g.applied && g.blocking == decision.Block {
		return result, nil
	}

	if decision.Block {
		err = g.blocker.Enable(ctx)
	} else {
		err = g.blocker.Disable(ctx)
	}
	if err != nil {
		g.applied = false
		return result, fmt.Errorf("apply gate decision: %w", err)
	}

	g.applied = true
	g.blocking = decision.Block

	state := "unblocked"
	if decision.Block {
		state = "blocked"
		metrics.GateBlocking.Set(1)
	} else {
		metrics.GateBlocking.Set(0)
	}
	metrics.GateTransitions.WithLabelValues(state).Inc()

	g.logger.Info().
		Bool("block", decision.Block).
		Str("reason", decision.Reason).
		Msg("Gate decision applied")

	return result, nil
}

// Blocking reports the last applied decision. ok is false before the first
// successful sync.
func (g *Gate) Blocking() (blocking, ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.blocking, g.applied
}

// Trigger requests an immediate sync from Run.
func (g *Gate) Trigger() {
	select {
	case g.trigger <- struct{}{}:
	default:
	}
}

// Run syncs until ctx is cancelled. While an interval is open it re-syncs just
// after the chunk runs out; otherwise it polls at the idle interval.
func (g *Gate) Run(ctx context.Context) error {
	g.logger.Info().Dur("idle_poll_interval", g.idle).Msg("Gate loop started")

	for {
		result, err := g.Sync(ctx)
		if err != nil {
			g.logger.Error().Err(err).Msg("Gate sync failed")
		}

		timer := time.NewTimer(g.nextWait(result))
		select {
		case <-ctx.Done():
			timer.Stop()
			g.logger.Info().Msg("Gate loop stopped")
			return nil
		case <-g.trigger:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (g *Gate) nextWait(result Result) time.Duration {
	if result.StateErr == nil && result.State.Active() {
		if wait := result.State.RecheckAfter(g.epsilon); wait > 0 {
			return wait
		}
	}
	return g.idle
}
