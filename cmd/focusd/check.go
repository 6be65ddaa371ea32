package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/focusd/internal/config"
	"github.com/goodtune/focusd/internal/gate"
	"github.com/spf13/cobra"
)

var (
	checkRelaxing       bool
	checkRemaining      string
	checkChunkRemaining string
	checkUsed           string
	checkStateError     bool
	checkCurrent        bool
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the gate policy decision",
	Long: `Evaluate the gate policy for given relax facts, or for the stored state
with --current. Nothing is ticked and the blocker is not touched.`,
	Example: `  focusd check --current
  focusd check --relaxing --remaining 30m --chunk-remaining 5m
  focusd check --state-error`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().BoolVar(&checkCurrent, "current", false, "Use the stored relax state instead of flags")
	checkCmd.Flags().BoolVar(&checkRelaxing, "relaxing", false, "An interval is open")
	checkCmd.Flags().StringVar(&checkRemaining, "remaining", "60m", "Remaining daily allowance")
	checkCmd.Flags().StringVar(&checkChunkRemaining, "chunk-remaining", "0s", "Remaining time in the current chunk")
	checkCmd.Flags().StringVar(&checkUsed, "used", "0s", "Allowance used today")
	checkCmd.Flags().BoolVar(&checkStateError, "state-error", false, "Simulate an unreadable relax state")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := quietLogger()
	policy, err := gate.NewPolicy(cfg.Gate.PolicyDir, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize gate policy: %w", err)
	}

	facts := gate.Facts{Error: checkStateError}
	if checkCurrent {
		app, err := openComponents(cfg, logger)
		if err != nil {
			return err
		}
		defer app.store.Close()

		state, err := app.tracker.State(context.Background(), time.Now())
		if err != nil {
			facts.Error = true
		} else {
			facts.Relax = gate.RelaxFacts{
				IsRelaxing:       state.IsRelaxing,
				RemainingMs:      state.Remaining.Milliseconds(),
				ChunkRemainingMs: state.ChunkRemaining.Milliseconds(),
				UsedMs:           state.Used.Milliseconds(),
			}
		}
	} else {
		facts.Relax, err = factsFromFlags()
		if err != nil {
			return err
		}
	}

	decision, err := policy.Evaluate(context.Background(), facts)
	if err != nil {
		return err
	}

	printDecision(facts, decision)
	return nil
}

func factsFromFlags() (gate.RelaxFacts, error) {
	values := map[string]string{
		"remaining":       checkRemaining,
		"chunk-remaining": checkChunkRemaining,
		"used":            checkUsed,
	}
	parsed := make(map[string]time.Duration, len(values))
	for name, value := range values {
		d, err := time.ParseDuration(value)
		if err != nil {
			return gate.RelaxFacts{}, fmt.Errorf("invalid --%s: %w", name, err)
		}
		parsed[name] = d
	}

	return gate.RelaxFacts{
		IsRelaxing:       checkRelaxing,
		RemainingMs:      parsed["remaining"].Milliseconds(),
		ChunkRemainingMs: parsed["chunk-remaining"].Milliseconds(),
		UsedMs:           parsed["used"].Milliseconds(),
	}, nil
}

// printDecision prints the gate decision with colors
func printDecision(facts gate.Facts, decision gate.Decision) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	red := color.New(color.FgRed, color.Bold)

	fmt.Println()
	_, _ = cyan.Println("GATE POLICY CHECK")
	fmt.Println()

	ms := func(v int64) time.Duration { return time.Duration(v) * time.Millisecond }
	fmt.Printf("Relaxing:         %v\n", facts.Relax.IsRelaxing)
	fmt.Printf("Remaining:        %s\n", ms(facts.Relax.RemainingMs))
	fmt.Printf("Chunk remaining:  %s\n", ms(facts.Relax.ChunkRemainingMs))
	fmt.Printf("Used:             %s\n", ms(facts.Relax.UsedMs))
	fmt.Printf("State error:      %v\n", facts.Error)
	fmt.Println()

	_, _ = cyan.Print("Decision:         ")
	if decision.Block {
		_, _ = red.Println("BLOCK")
	} else {
		_, _ = green.Println("ALLOW")
	}
	fmt.Printf("Reason:           %s\n", decision.Reason)
}
