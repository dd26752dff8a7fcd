package main

import (
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/pingwatch/internal/daemon"
	"github.com/user/pingwatch/internal/util"
)

var (
	foreground   bool
	withWeb      bool
	startWebPort int
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the pingwatch daemon",
	Long: `Start the pingwatch daemon in the background. The daemon checks every
configured host on each interval and records incidents for failed checks.`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVarP(&foreground, "foreground", "f", false,
		"Run in foreground instead of daemonizing")
	startCmd.Flags().BoolVar(&withWeb, "with-web", false,
		"Also serve the HTTP API")
	startCmd.Flags().IntVar(&startWebPort, "web-port", 0,
		"Port for the HTTP API when using --with-web (default from config)")
}

func runStart(cmd *cobra.Command, args []string) error {
	running, pid := daemon.CheckRunning(cfg.DataDir)
	if running {
		fmt.Printf("Daemon is already running (PID %d)\n", pid)
		return nil
	}

	if foreground {
		return runForeground(cmd)
	}

	return runDaemon()
}

func runForeground(cmd *cobra.Command) error {
	fmt.Println("Starting pingwatch in foreground mode...")

	port := startWebPort
	if port == 0 {
		port = cfg.WebPort
	}

	d, err := daemon.New(cfg, util.Logger(), daemon.Options{
		WithWeb: withWeb,
		WebPort: port,
	})
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	if withWeb {
		fmt.Printf("HTTP API: http://localhost:%d/api/incidents\n", port)
	}

	if err := d.Start(cmd.Context()); err != nil {
		d.Stop()
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	fmt.Println("pingwatch daemon started. Press Ctrl+C to stop.")

	d.Wait()

	return nil
}

func runDaemon() error {
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	// the child sees the same flags plus --foreground
	args := append(slices.Clone(os.Args[1:]), "--foreground")

	pid, err := daemon.StartBackground(executable, args, cfg.DataDir)
	if err != nil {
		return err
	}

	// give the child a moment to claim the PID file
	for i := 0; i < 20; i++ {
		if running, _ := daemon.CheckRunning(cfg.DataDir); running {
			break
		}
		time.Sleep(250 * time.Millisecond)
	}

	fmt.Printf("pingwatch daemon started (PID %d)\n", pid)
	fmt.Printf("Logs: %s\n", cfg.LogFile)
	if withWeb {
		port := startWebPort
		if port == 0 {
			port = cfg.WebPort
		}
		fmt.Printf("HTTP API: http://localhost:%d/api/incidents\n", port)
	}

	return nil
}
