package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/pingwatch/internal/model"
	"github.com/user/pingwatch/internal/report"
)

var (
	reportLast   string
	reportFormat string
	reportOutput string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate an incident report",
	Long: `Generate a Markdown incident report with per-host summaries and
Mermaid diagrams of the failure paths.

Examples:
  pingwatch report --last 24h
  pingwatch report --last 7d --format markdown
  pingwatch report --last 1h --output ./report.md
  pingwatch report --output -`,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportLast, "last", "24h",
		"Time range (e.g., 1h, 24h, 7d, 2w)")
	reportCmd.Flags().StringVar(&reportFormat, "format", report.MarkdownFormat,
		"Output format (markdown)")
	reportCmd.Flags().StringVarP(&reportOutput, "output", "o", "",
		"Output file path, - for stdout (default: report directory)")
}

func runReport(cmd *cobra.Command, args []string) error {
	window, err := report.ParseWindow(reportLast)
	if err != nil {
		return err
	}

	until := time.Now()
	since := until.Add(-window)

	toStdout := reportOutput == "-"
	if !toStdout {
		fmt.Printf("Generating report for %s to %s...\n",
			since.Format("2006-01-02 15:04"),
			until.Format("2006-01-02 15:04"))
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	data, err := report.NewGenerator(store).Generate(cmd.Context(), model.ReportOptions{
		Since:      since,
		Until:      until,
		Format:     reportFormat,
		OutputPath: reportOutput,
	})
	if err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}

	switch reportOutput {
	case "":
		path, err := report.WriteMarkdownFile(data, cfg.ReportOutputDir)
		if err != nil {
			return err
		}
		fmt.Printf("Report saved to: %s\n", path)
	case "-":
		fmt.Print(report.FormatMarkdown(data))
		return nil
	default:
		if err := os.WriteFile(reportOutput, []byte(report.FormatMarkdown(data)), 0644); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		fmt.Printf("Report saved to: %s\n", reportOutput)
	}

	fmt.Println()
	fmt.Println("Report Summary:")
	fmt.Printf("  Incidents: %d (%d open, %d resolved)\n", len(data.Incidents), data.OpenCount, data.ResolvedCount)
	fmt.Printf("  Hosts affected: %d\n", len(data.Hosts))
	fmt.Printf("  Path changes: %d\n", len(data.PathChanges))

	return nil
}
