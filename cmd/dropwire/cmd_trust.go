package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newTrustCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trust",
		Short: "List or remove trusted devices",
	}
	cmd.AddCommand(newTrustListCmd())
	cmd.AddCommand(newTrustRemoveCmd())
	return cmd
}

func newTrustListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List devices that can reconnect without a pair code",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadContext()
			if err != nil {
				return err
			}
			peers, err := app.trust.List()
			if err != nil {
				return err
			}
			if len(peers) == 0 {
				fmt.Println("no trusted devices")
				return nil
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "DEVICE ID\tHOSTNAME\tLAST IP\tLAST SEEN")
			for _, p := range peers {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.DeviceID, p.Hostname, p.LastIP, p.LastSeen.Format("2006-01-02 15:04:05"))
			}
			return tw.Flush()
		},
	}
}

func newTrustRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <device-id>",
		Short: "Revoke a trusted device, requiring a fresh pair code to reconnect",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadContext()
			if err != nil {
				return err
			}
			if err := app.trust.Remove(args[0]); err != nil {
				return err
			}
			app.log.Info("removed %s from trusted devices", args[0])
			return nil
		},
	}
}
