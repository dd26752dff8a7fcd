package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/pingwatch/internal/monitor"
	"github.com/user/pingwatch/internal/probes"
	"github.com/user/pingwatch/internal/util"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run a single check cycle now",
	Long: `Check every configured host once, record incidents for failures and
resolve incidents of hosts that answer. Useful from cron or to test a config.`,
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	prober := probes.NewSystemProber()
	prober.SetMaxHops(cfg.TraceMaxHops)

	m := monitor.New(cfg.Monitor(), prober, store, monitor.Options{
		Logger: util.Logger().Named("monitor"),
	})

	fmt.Printf("Checking %d hosts...\n", len(cfg.Hosts))
	summary := m.PerformCheck(cmd.Context())

	fmt.Println()
	fmt.Println(titleStyle.Render("Cycle " + summary.CycleID))
	printField("Reachable", fmt.Sprintf("%d/%d", summary.Reachable, summary.HostsChecked))
	if summary.MeanLatencyMs != nil {
		printField("Mean latency", fmt.Sprintf("%.1f ms", *summary.MeanLatencyMs))
	}
	printField("Opened", summary.IncidentsOpened)
	printField("Resolved", summary.IncidentsResolved)
	printField("Unresolved", summary.Stats.UnresolvedIncidents)
	printField("Duration", summary.Duration.Truncate(time.Millisecond))

	return nil
}
