// Command dropwire is the CLI front-end for the session-and-transfer
// engine: pairing, sending, receiving, trust management, and history.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dropwire-app/dropwire/internal/appconfig"
	"github.com/dropwire-app/dropwire/internal/applog"
	"github.com/dropwire-app/dropwire/internal/identity"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type appContext struct {
	paths *appconfig.Paths
	self  *identity.Device
	trust *identity.TrustStore
	log   *applog.Logger
}

func loadContext() (*appContext, error) {
	root := appconfig.DefaultRoot()
	paths, err := appconfig.Resolve(root)
	if err != nil {
		return nil, fmt.Errorf("resolve app data directory: %w", err)
	}
	self, err := identity.LoadOrCreate(paths.Root)
	if err != nil {
		return nil, fmt.Errorf("load device identity: %w", err)
	}
	return &appContext{
		paths: paths,
		self:  self,
		trust: identity.NewTrustStore(paths.Root),
		log:   applog.New(),
	}, nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "dropwire",
		Short: "Peer-to-peer LAN file sharing",
	}
	root.AddCommand(newSendCmd())
	root.AddCommand(newReceiveCmd())
	root.AddCommand(newTrustCmd())
	root.AddCommand(newHistoryCmd())
	return root
}
