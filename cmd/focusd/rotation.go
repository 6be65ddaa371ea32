package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var rotationCmd = &cobra.Command{
	Use:   "rotation",
	Short: "Inspect the header rotation",
}

var rotationShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the header item for now, rotating if it is due",
	Args:  cobra.NoArgs,
	RunE:  runRotationShow,
}

var rotationListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pool items with their display counters",
	Args:  cobra.NoArgs,
	RunE:  runRotationList,
}

func init() {
	rotationCmd.AddCommand(rotationShowCmd, rotationListCmd)
	rootCmd.AddCommand(rotationCmd)
}

func runRotationShow(cmd *cobra.Command, args []string) error {
	app, err := loadComponents()
	if err != nil {
		return err
	}
	defer app.store.Close()

	selection, err := app.selector.Selection(context.Background(), time.Now())
	if err != nil {
		return err
	}

	fmt.Printf("Key:          %s\n", selection.Key)
	fmt.Printf("Last change:  %s\n", selection.LastChange.In(app.location).Format(time.RFC3339))
	if selection.Changed {
		_, _ = color.New(color.FgYellow, color.Bold).Println("Changed:      yes")
	} else {
		fmt.Println("Changed:      no")
	}
	return nil
}

func runRotationList(cmd *cobra.Command, args []string) error {
	app, err := loadComponents()
	if err != nil {
		return err
	}
	defer app.store.Close()

	ctx := context.Background()
	items, err := app.selector.Items(ctx)
	if err != nil {
		return err
	}
	current, ok, err := app.selector.Current(ctx)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)

	_, _ = cyan.Println("KEY          SHOWN  LAST SHOWN")
	for _, item := range items {
		last := "-"
		if item.LastShownMs > 0 {
			last = time.UnixMilli(item.LastShownMs).In(app.location).Format(time.RFC3339)
		}
		line := fmt.Sprintf("%-12s %-6d %s", item.Key, item.DisplayCount, last)
		if ok && item.Key == current.Key {
			_, _ = green.Println(line + "  (current)")
			continue
		}
		fmt.Println(line)
	}
	return nil
}
