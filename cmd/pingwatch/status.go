package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/pingwatch/internal/daemon"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long:  "Show the current status of the pingwatch daemon, its last check cycle and incident counts.",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	running, pid := daemon.CheckRunning(cfg.DataDir)

	fmt.Println(titleStyle.Render("pingwatch status"))

	fmt.Print(labelStyle.Render("Daemon: "))
	if running {
		fmt.Println(okStyle.Render(fmt.Sprintf("Running (PID %d)", pid)))
	} else {
		fmt.Println(badStyle.Render("Stopped"))
	}

	// a stale status file from a previous run is still worth showing
	if sf, err := daemon.ReadStatusFile(cfg.DataDir); err == nil {
		fmt.Println()
		printField("Started", sf.StartTime.Format("2006-01-02 15:04:05"))
		if running {
			printField("Uptime", time.Since(sf.StartTime).Truncate(time.Second))
		} else {
			printField("Last update", sf.UpdatedAt.Format("2006-01-02 15:04:05"))
		}
		printField("Hosts", strings.Join(sf.Hosts, ", "))
		printField("Interval", fmt.Sprintf("%ds", sf.IntervalSeconds))
		if sf.WebPort != 0 {
			printField("HTTP API", fmt.Sprintf("http://localhost:%d", sf.WebPort))
		}

		if c := sf.LastCycle; c != nil {
			fmt.Println()
			fmt.Println(titleStyle.Render("Last cycle"))
			printField("At", c.StartedAt.Format("2006-01-02 15:04:05"))
			printField("Reachable", fmt.Sprintf("%d/%d", c.Reachable, c.HostsChecked))
			if c.MeanLatencyMs != nil {
				printField("Mean latency", fmt.Sprintf("%.1f ms", *c.MeanLatencyMs))
			}
			printField("Opened", c.IncidentsOpened)
			printField("Resolved", c.IncidentsResolved)
			printField("Duration", c.Duration.Truncate(time.Millisecond))
		}

		if t := sf.Task; t != nil {
			fmt.Printf("  %s %s (runs: %d, errors: %d, next: %s)\n",
				labelStyle.Render(fmt.Sprintf("%-14s", t.Name+":")),
				valueStyle.Render(taskState(t.Running)),
				t.Runs, t.ErrorCount, t.NextRun.Format("15:04:05"))
		}
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	stats := store.GetStatistics(cmd.Context())
	fmt.Println()
	fmt.Println(titleStyle.Render("Incidents"))
	printField("Total", stats.TotalIncidents)
	printField("Unresolved", stats.UnresolvedIncidents)
	printField("Hosts affected", stats.HostsAffected)

	if latest := store.GetLatestIncident(cmd.Context()); latest != nil {
		state := badStyle.Render("open")
		if latest.Resolved {
			state = okStyle.Render("resolved")
		}
		fmt.Printf("  %s #%d %s at %s %s\n",
			labelStyle.Render(fmt.Sprintf("%-14s", "Latest:")),
			latest.ID, latest.Host, latest.Timestamp.Format("2006-01-02 15:04:05"), state)
	}

	return nil
}

func taskState(running bool) string {
	if running {
		return "running"
	}
	return "idle"
}
