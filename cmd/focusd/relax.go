package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/focusd/internal/clock"
	"github.com/goodtune/focusd/internal/config"
	"github.com/goodtune/focusd/internal/relax"
	"github.com/spf13/cobra"
)

var historyDay string

var relaxCmd = &cobra.Command{
	Use:   "relax",
	Short: "Inspect and control the daily relax allowance",
}

var relaxStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show today's relax allowance",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRelaxAction((*relax.Tracker).State)
	},
}

var relaxStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a relax interval",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRelaxAction((*relax.Tracker).Start)
	},
}

var relaxStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running relax interval",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRelaxAction((*relax.Tracker).Stop)
	},
}

var relaxTickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Close the relax interval if its chunk or the budget has run out",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRelaxAction((*relax.Tracker).Tick)
	},
}

var relaxHistoryCmd = &cobra.Command{
	Use:     "history",
	Short:   "List stored days, or the sessions of one day",
	Example: "  focusd relax history\n  focusd relax history --day 2024-03-10",
	Args:    cobra.NoArgs,
	RunE:    runRelaxHistory,
}

func init() {
	relaxHistoryCmd.Flags().StringVar(&historyDay, "day", "", "Day (YYYY-MM-DD) whose sessions to list")

	relaxCmd.AddCommand(relaxStatusCmd, relaxStartCmd, relaxStopCmd, relaxTickCmd, relaxHistoryCmd)
	rootCmd.AddCommand(relaxCmd)
}

func runRelaxAction(action func(*relax.Tracker, context.Context, time.Time) (relax.State, error)) error {
	app, err := loadComponents()
	if err != nil {
		return err
	}
	defer app.store.Close()

	state, err := action(app.tracker, context.Background(), time.Now())
	if err != nil {
		return err
	}

	printState(state, app.tracker.DailyCap())
	return nil
}

func runRelaxHistory(cmd *cobra.Command, args []string) error {
	app, err := loadComponents()
	if err != nil {
		return err
	}
	defer app.store.Close()

	ctx := context.Background()
	cyan := color.New(color.FgCyan, color.Bold)

	if historyDay == "" {
		days, err := app.tracker.Days(ctx)
		if err != nil {
			return err
		}
		_, _ = cyan.Println("DAY         USED      ACTIVE")
		for _, day := range days {
			fmt.Printf("%-11s %-9s %v\n", day.Day, time.Duration(day.UsedMs)*time.Millisecond, day.Active())
		}
		return nil
	}

	day, err := clock.ParseDayKey(historyDay, app.location)
	if err != nil {
		return err
	}
	sessions, err := app.tracker.Sessions(ctx, day)
	if err != nil {
		return err
	}

	_, _ = cyan.Printf("Sessions on %s\n", day)
	if len(sessions) == 0 {
		fmt.Println("  (none)")
	}
	for _, s := range sessions {
		fmt.Printf("  %s - %s  %-9s %s\n",
			s.StartedAt.In(app.location).Format("15:04:05"),
			s.EndedAt.In(app.location).Format("15:04:05"),
			time.Duration(s.DurationMs)*time.Millisecond,
			s.Reason)
	}
	return nil
}

func loadComponents() (*components, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return openComponents(cfg, quietLogger())
}

func printState(state relax.State, dailyCap time.Duration) {
	green := color.New(color.FgGreen, color.Bold)
	red := color.New(color.FgRed, color.Bold)

	fmt.Fprintf(os.Stdout, "Day:        %s\n", state.Day)
	fmt.Fprintf(os.Stdout, "Used:       %s of %s\n", state.Used.Round(time.Second), dailyCap)
	fmt.Fprintf(os.Stdout, "Remaining:  %s\n", state.Remaining.Round(time.Second))
	if state.IsRelaxing {
		_, _ = green.Fprintf(os.Stdout, "Relaxing:   yes (%s left in this chunk)\n", state.ChunkRemaining.Round(time.Second))
	} else {
		_, _ = red.Fprintln(os.Stdout, "Relaxing:   no")
	}
}
