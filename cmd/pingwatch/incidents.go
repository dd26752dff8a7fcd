package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/user/pingwatch/internal/model"
	"github.com/user/pingwatch/internal/report"
	"github.com/user/pingwatch/internal/storage"
)

var (
	listHost    string
	listLimit   int
	listJSON    bool
	showMermaid bool
	clearYes    bool
)

var incidentsCmd = &cobra.Command{
	Use:     "incidents",
	Aliases: []string{"inc"},
	Short:   "Inspect and manage incidents",
}

var incidentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent incidents",
	Long: `List recent incidents, newest first.

Examples:
  pingwatch incidents list
  pingwatch incidents list --host 8.8.8.8 --limit 5
  pingwatch incidents list --json`,
	Args: cobra.NoArgs,
	RunE: runIncidentsList,
}

var incidentsUnresolvedCmd = &cobra.Command{
	Use:   "unresolved",
	Short: "List every unresolved incident",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		return printIncidents(store.GetUnresolvedIncidents(cmd.Context()))
	},
}

var incidentsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one incident with its trace",
	Args:  cobra.ExactArgs(1),
	RunE:  runIncidentsShow,
}

var incidentsResolveCmd = &cobra.Command{
	Use:   "resolve <id>",
	Short: "Mark an incident resolved",
	Args:  cobra.ExactArgs(1),
	RunE:  runIncidentsResolve,
}

var incidentsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every incident",
	Args:  cobra.NoArgs,
	RunE:  runIncidentsClear,
}

func init() {
	incidentsListCmd.Flags().StringVar(&listHost, "host", "", "only incidents of this host")
	incidentsListCmd.Flags().IntVarP(&listLimit, "limit", "n", 0, "maximum incidents to list")
	incidentsCmd.PersistentFlags().BoolVar(&listJSON, "json", false, "print JSON instead of a table")
	incidentsShowCmd.Flags().BoolVar(&showMermaid, "mermaid", false, "also print the trace as a Mermaid diagram")
	incidentsClearCmd.Flags().BoolVar(&clearYes, "yes", false, "confirm deleting all incidents")

	incidentsCmd.AddCommand(incidentsListCmd)
	incidentsCmd.AddCommand(incidentsUnresolvedCmd)
	incidentsCmd.AddCommand(incidentsShowCmd)
	incidentsCmd.AddCommand(incidentsResolveCmd)
	incidentsCmd.AddCommand(incidentsClearCmd)
}

func runIncidentsList(cmd *cobra.Command, args []string) error {
	if listLimit < 0 {
		return fmt.Errorf("limit must not be negative")
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	var incidents []model.Incident
	if listHost != "" {
		limit := listLimit
		if limit == 0 {
			limit = storage.DefaultHostLimit
		}
		incidents = store.GetIncidentsByHost(cmd.Context(), listHost, limit)
	} else {
		limit := listLimit
		if limit == 0 {
			limit = storage.DefaultRecentLimit
		}
		incidents = store.GetRecentIncidents(cmd.Context(), limit)
	}

	return printIncidents(incidents)
}

func runIncidentsShow(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	inc := store.GetIncident(cmd.Context(), id)
	if inc == nil {
		return fmt.Errorf("incident %d: %w", id, storage.ErrNotFound)
	}

	if listJSON {
		return writeJSON(inc)
	}

	fmt.Println(titleStyle.Render(fmt.Sprintf("Incident #%d", inc.ID)))
	printField("Host", inc.Host)
	printField("At", inc.Timestamp.Format("2006-01-02 15:04:05.000"))
	printField("State", stateLabel(inc.Resolved))
	printField("Ping error", inc.PingResult.Error)

	t := inc.DiagnosticTrace
	if t == nil {
		fmt.Println()
		fmt.Println(dimStyle.Render("No trace recorded"))
		return nil
	}

	fmt.Println()
	fmt.Println(titleStyle.Render("Trace"))
	if !t.Success {
		printField("Trace error", t.Error)
	}
	if hop := t.LastReachableHop(); hop != nil {
		printField("Last hop", fmt.Sprintf("#%d %s", hop.Hop, hop.Address))
	}
	for _, hop := range t.Hops {
		if hop.TimedOut {
			fmt.Printf("  %3d  %s\n", hop.Hop, dimStyle.Render("* * *"))
			continue
		}
		line := fmt.Sprintf("  %3d  %-16s", hop.Hop, hop.Address)
		if hop.Hostname != "" {
			line += " " + hop.Hostname
		}
		if hop.RTTMs != nil {
			line += fmt.Sprintf("  %.2f ms", *hop.RTTMs)
		}
		fmt.Println(line)
	}

	if showMermaid {
		fmt.Println()
		fmt.Print(report.GenerateMermaidDiagram(*t))
	}

	return nil
}

func runIncidentsResolve(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	changed, err := store.MarkIncidentResolved(cmd.Context(), id)
	if err != nil {
		return fmt.Errorf("failed to resolve incident %d: %w", id, err)
	}
	if !changed {
		if store.GetIncident(cmd.Context(), id) == nil {
			return fmt.Errorf("incident %d: %w", id, storage.ErrNotFound)
		}
		fmt.Printf("Incident #%d was already resolved\n", id)
		return nil
	}

	fmt.Printf("Incident #%d resolved\n", id)
	return nil
}

func runIncidentsClear(cmd *cobra.Command, args []string) error {
	if !clearYes {
		return fmt.Errorf("refusing to delete all incidents without --yes")
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.ClearAllIncidents(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to clear incidents: %w", err)
	}

	fmt.Printf("Deleted %d incidents\n", n)
	return nil
}

func printIncidents(incidents []model.Incident) error {
	if listJSON {
		return writeJSON(incidents)
	}

	if len(incidents) == 0 {
		fmt.Println(dimStyle.Render("No incidents"))
		return nil
	}

	fmt.Printf("%-6s %-20s %-19s %-9s %-16s %s\n", "ID", "HOST", "TIME", "STATE", "LAST HOP", "ERROR")
	for _, inc := range incidents {
		lastHop := "-"
		if hop := inc.DiagnosticTrace.LastReachableHop(); hop != nil {
			lastHop = hop.Address
		}
		fmt.Printf("%-6d %-20s %-19s %-9s %-16s %s\n",
			inc.ID, inc.Host, inc.Timestamp.Format("2006-01-02 15:04:05"),
			stateLabel(inc.Resolved), lastHop, inc.PingResult.Error)
	}
	return nil
}

func stateLabel(resolved bool) string {
	if resolved {
		return "resolved"
	}
	return "open"
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid incident id %q", s)
	}
	return id, nil
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
