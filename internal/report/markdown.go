package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/user/pingwatch/internal/model"
)

const timeLayout = "2006-01-02 15:04:05"

// FormatMarkdown renders a report as Markdown.
func FormatMarkdown(data *ReportData) string {
	var sb strings.Builder

	sb.WriteString("# pingwatch Incident Report\n\n")
	fmt.Fprintf(&sb, "Generated: %s  \n", data.GeneratedAt.Local().Format(timeLayout))
	fmt.Fprintf(&sb, "Window: %s to %s\n\n", data.Since.Local().Format(timeLayout), data.Until.Local().Format(timeLayout))

	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&sb, "| Incidents in window | %d |\n", len(data.Incidents))
	fmt.Fprintf(&sb, "| Open | %d |\n", data.OpenCount)
	fmt.Fprintf(&sb, "| Resolved | %d |\n", data.ResolvedCount)
	fmt.Fprintf(&sb, "| Hosts affected | %d |\n", len(data.Hosts))
	fmt.Fprintf(&sb, "| Total incidents (all time) | %d |\n", data.Stats.TotalIncidents)
	fmt.Fprintf(&sb, "| Unresolved (all time) | %d |\n", data.Stats.UnresolvedIncidents)
	sb.WriteString("\n")

	if len(data.Incidents) == 0 {
		sb.WriteString("No incidents were recorded in this window.\n")
		return sb.String()
	}

	sb.WriteString("## Hosts\n\n")
	sb.WriteString("| Host | Incidents | Open | Resolved | First | Last | Last error |\n")
	sb.WriteString("|---|---|---|---|---|---|---|\n")
	for _, hs := range data.Hosts {
		fmt.Fprintf(&sb, "| %s | %d | %d | %d | %s | %s | %s |\n",
			hs.Host, hs.Incidents, hs.Open, hs.Resolved,
			hs.FirstSeen.Local().Format(timeLayout), hs.LastSeen.Local().Format(timeLayout),
			escapeCell(hs.LastError))
	}
	sb.WriteString("\n")

	sb.WriteString("## Failure Paths\n\n")
	var traces []model.DiagnosticTrace
	for _, hs := range data.Hosts {
		fmt.Fprintf(&sb, "### %s\n\n", hs.Host)
		tr := hs.LatestTrace
		switch {
		case tr == nil:
			sb.WriteString("No trace was captured.\n\n")
		case !tr.Success:
			fmt.Fprintf(&sb, "Trace failed: %s\n\n", escapeCell(tr.Error))
		default:
			if hop := tr.LastReachableHop(); hop != nil {
				fmt.Fprintf(&sb, "Last reachable hop: %d (%s)\n\n", hop.Hop, hop.Address)
			} else {
				sb.WriteString("No hop answered.\n\n")
			}
			sb.WriteString(GenerateMermaidDiagram(*tr))
			sb.WriteString("\n")
			traces = append(traces, *tr)
		}
	}

	if len(traces) > 1 {
		sb.WriteString("## Topology\n\n")
		sb.WriteString(GenerateNetworkTopology(traces))
		sb.WriteString("\n")
	}

	if len(data.PathChanges) > 0 {
		sb.WriteString("## Path Changes\n\n")
		for _, c := range data.PathChanges {
			fmt.Fprintf(&sb, "- **%s** at %s", c.Host, c.Timestamp.Local().Format(timeLayout))
			if len(c.Added) > 0 {
				fmt.Fprintf(&sb, ", added %s", strings.Join(c.Added, ", "))
			}
			if len(c.Removed) > 0 {
				fmt.Fprintf(&sb, ", removed %s", strings.Join(c.Removed, ", "))
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Incidents\n\n")
	sb.WriteString("| ID | Time | Host | Status | Error |\n|---|---|---|---|---|\n")
	for _, inc := range data.Incidents {
		status := "open"
		if inc.Resolved {
			status = "resolved"
		}
		fmt.Fprintf(&sb, "| %d | %s | %s | %s | %s |\n",
			inc.ID, inc.Timestamp.Local().Format(timeLayout), inc.Host, status, escapeCell(inc.PingResult.Error))
	}

	return sb.String()
}

// WriteMarkdownFile writes the report into dir and returns the file path.
func WriteMarkdownFile(data *ReportData, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	name := fmt.Sprintf("pingwatch_report_%s.md", data.GeneratedAt.Format("20060102_150405"))
	path := filepath.Join(dir, name)

	if err := os.WriteFile(path, []byte(FormatMarkdown(data)), 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}

	return path, nil
}

// ParseWindow parses a report window such as "1h", "7d" or "2w".
func ParseWindow(s string) (time.Duration, error) {
	if len(s) > 0 && s[len(s)-1] == 'd' {
		var days int
		if _, err := fmt.Sscanf(s, "%dd", &days); err == nil && days > 0 {
			return time.Duration(days) * 24 * time.Hour, nil
		}
	}

	if len(s) > 0 && s[len(s)-1] == 'w' {
		var weeks int
		if _, err := fmt.Sscanf(s, "%dw", &weeks); err == nil && weeks > 0 {
			return time.Duration(weeks) * 7 * 24 * time.Hour, nil
		}
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid time range %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid time range %q: must be positive", s)
	}
	return d, nil
}

func escapeCell(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "|", "\\|"), "\n", " ")
}
