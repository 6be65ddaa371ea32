package gate

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// Blocker switches the external enforcement loop on and off.
type Blocker interface {
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
}

// ExecBlocker runs a configured command for each transition.
type ExecBlocker struct {
	enable  []string
	disable []string
	logger  zerolog.Logger
}

// NewExecBlocker creates a blocker from argv slices. An empty slice makes that
// transition a no-op.
func NewExecBlocker(enable, disable []string, logger zerolog.Logger) *ExecBlocker {
	return &ExecBlocker{
		enable:  enable,
		disable: disable,
		logger:  logger.With().Str("component", "blocker").Logger(),
	}
}

// Enable runs the block command.
func (b *ExecBlocker) Enable(ctx context.Context) error {
	return b.run(ctx, "enable", b.enable)
}

// Disable runs the unblock command.
func (b *ExecBlocker) Disable(ctx context.Context) error {
	return b.run(ctx, "disable", b.disable)
}

func (b *ExecBlocker) run(ctx context.Context, action string, argv []string) error {
	if len(argv) == 0 {
		b.logger.Debug().Str("action", action).Msg("No command configured")
		return nil
	}

	out, err := exec.CommandContext(ctx, argv[0], argv[1:]...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("blocker %s command failed: %w: %s", action, err, strings.TrimSpace(string(out)))
	}

	b.logger.Info().Str("action", action).Str("command", argv[0]).Msg("Blocker command completed")
	return nil
}

// NopBlocker only logs transitions.
type NopBlocker struct {
	logger zerolog.Logger
}

// NewNopBlocker creates a logging-only blocker.
func NewNopBlocker(logger zerolog.Logger) *NopBlocker {
	return &NopBlocker{logger: logger.With().Str("component", "blocker").Logger()}
}

// Enable logs the transition.
func (b *NopBlocker) Enable(context.Context) error {
	b.logger.Info().Msg("Blocking enabled")
	return nil
}

// Disable logs the transition.
func (b *NopBlocker) Disable(context.Context) error {
	b.logger.Info().Msg("Blocking disabled")
	return nil
}
