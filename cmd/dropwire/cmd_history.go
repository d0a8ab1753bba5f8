package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dropwire-app/dropwire/internal/audit"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past transfers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryList()
		},
	}
	cmd.AddCommand(newHistoryShowCmd())
	cmd.AddCommand(newHistoryClearCmd())
	return cmd
}

func runHistoryList() error {
	app, err := loadContext()
	if err != nil {
		return err
	}
	log := audit.Open(app.paths.HistoryFile)
	entries, err := log.LoadHistory()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("no transfer history")
		return nil
	}
	audit.ShowHistory(os.Stdout, entries)
	return nil
}

func newHistoryShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id-prefix>",
		Short: "Show full detail for a single transfer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadContext()
			if err != nil {
				return err
			}
			log := audit.Open(app.paths.HistoryFile)
			entry, ok, err := log.GetEntry(args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no transfer found matching id %q", args[0])
			}
			audit.ShowDetail(os.Stdout, entry)
			return nil
		},
	}
}

func newHistoryClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete all transfer history",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadContext()
			if err != nil {
				return err
			}
			log := audit.Open(app.paths.HistoryFile)
			if err := log.ClearHistory(); err != nil {
				return err
			}
			app.log.Info("history cleared")
			return nil
		},
	}
}
