package main

import (
	"github.com/spf13/cobra"

	"github.com/user/pingwatch/internal/tui"
)

var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Launch the terminal dashboard",
	Long: `Launch an interactive terminal dashboard showing:
- Daemon state and the last check cycle
- Which configured hosts have open incidents
- Open and recent incidents

The dashboard refreshes every 5 seconds. Press 'r' to refresh now, 'q' to quit.`,
	RunE: runUI,
}

func runUI(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	return tui.NewApp(store, cfg).Run()
}
