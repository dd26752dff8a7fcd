package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/user/pingwatch/internal/daemon"
	"github.com/user/pingwatch/internal/model"
)

const maxOpenRows = 10

// DashboardData holds data for the dashboard view.
type DashboardData struct {
	Stats         model.Statistics
	Open          []model.Incident
	Recent        []model.Incident
	Hosts         []HostState
	DaemonRunning bool
	DaemonPID     int
	Status        *daemon.StatusFile
	FetchedAt     time.Time
}

// HostState is a configured host and whether it has an open incident.
type HostState struct {
	Host  string
	Down  bool
	Since time.Time
	Error string
}

// Dashboard is the main dashboard view.
type Dashboard struct {
	data   *DashboardData
	width  int
	height int
}

// NewDashboard creates a new dashboard.
func NewDashboard(data *DashboardData, width, height int) *Dashboard {
	return &Dashboard{
		data:   data,
		width:  width,
		height: height,
	}
}

// SetSize updates the dashboard size.
func (d *Dashboard) SetSize(width, height int) {
	d.width = width
	d.height = height
}

// View renders the dashboard.
func (d *Dashboard) View() string {
	var sb strings.Builder

	sb.WriteString(HeaderStyle.Width(d.width).Render("pingwatch"))
	sb.WriteString("\n\n")

	for _, section := range []string{
		d.renderDaemonSection(),
		d.renderHostsSection(),
		d.renderStatsSection(),
		d.renderOpenSection(),
		d.renderRecentSection(),
	} {
		sb.WriteString(section)
		sb.WriteString("\n")
	}

	help := fmt.Sprintf("%s to refresh • %s to quit • updated %s",
		keys.Refresh.Help().Key, keys.Quit.Help().Key, d.data.FetchedAt.Format("15:04:05"))
	sb.WriteString(HelpStyle.Render(help))

	return sb.String()
}

func (d *Dashboard) sectionWidth() int {
	w := d.width - 4
	if w < 40 {
		w = 40
	}
	return w
}

func (d *Dashboard) section(title, content string) string {
	return SectionStyle.Width(d.sectionWidth()).Render(
		SectionTitleStyle.Render(title) + "\n" + content)
}

func (d *Dashboard) renderDaemonSection() string {
	lines := []string{
		LabelStyle.Render("Daemon:") + " " + RenderStatus(d.data.DaemonRunning,
			fmt.Sprintf("running (PID %d)", d.data.DaemonPID), "stopped"),
	}

	if sf := d.data.Status; sf != nil {
		lines = append(lines,
			LabelStyle.Render("Uptime:")+" "+ValueStyle.Render(sf.Uptime().String()),
			LabelStyle.Render("Interval:")+" "+ValueStyle.Render(fmt.Sprintf("%ds", sf.IntervalSeconds)),
		)
		if c := sf.LastCycle; c != nil {
			lines = append(lines, LabelStyle.Render("Last cycle:")+" "+ValueStyle.Render(fmt.Sprintf(
				"%s  %d/%d reachable", c.StartedAt.Format("15:04:05"), c.Reachable, c.HostsChecked)))
		}
	}

	return d.section("Daemon", strings.Join(lines, "\n"))
}

func (d *Dashboard) renderHostsSection() string {
	if len(d.data.Hosts) == 0 {
		return d.section("Hosts", DimStyle.Render("No hosts configured"))
	}

	var rows []string
	for _, h := range d.data.Hosts {
		if !h.Down {
			rows = append(rows, fmt.Sprintf("%-24s %s", h.Host, RenderStatus(true, "ok", "")))
			continue
		}
		detail := "down since " + h.Since.Format("Jan 02 15:04:05")
		if h.Error != "" {
			detail += " (" + h.Error + ")"
		}
		rows = append(rows, fmt.Sprintf("%-24s %s", h.Host, RenderStatus(false, "", detail)))
	}

	return d.section("Hosts", strings.Join(rows, "\n"))
}

func (d *Dashboard) renderStatsSection() string {
	s := d.data.Stats
	content := fmt.Sprintf(
		"%s %s\n%s %s %s\n%s %s",
		LabelStyle.Render("Incidents:"),
		ValueStyle.Render(fmt.Sprintf("%d", s.TotalIncidents)),
		LabelStyle.Render("Unresolved:"),
		ValueStyle.Render(fmt.Sprintf("%d", s.UnresolvedIncidents)),
		RenderBar(s.UnresolvedIncidents, s.TotalIncidents, 20),
		LabelStyle.Render("Hosts hit:"),
		ValueStyle.Render(fmt.Sprintf("%d", s.HostsAffected)),
	)

	return d.section("Statistics", content)
}

func (d *Dashboard) renderOpenSection() string {
	if len(d.data.Open) == 0 {
		return d.section("Open Incidents", SuccessStyle.Render("No open incidents"))
	}

	rows := []string{
		fmt.Sprintf("%-6s %-20s %-10s %-16s %s", "ID", "Host", "When", "Last hop", "Error"),
		strings.Repeat("─", 70),
	}

	n := min(len(d.data.Open), maxOpenRows)
	for _, inc := range d.data.Open[:n] {
		rows = append(rows, fmt.Sprintf("%-6d %-20s %-10s %-16s %s",
			inc.ID,
			truncate(inc.Host, 20),
			inc.Timestamp.Format("15:04:05"),
			lastHop(inc),
			truncate(inc.PingResult.Error, 30),
		))
	}
	if len(d.data.Open) > n {
		rows = append(rows, DimStyle.Render(fmt.Sprintf("... and %d more", len(d.data.Open)-n)))
	}

	return d.section("Open Incidents", strings.Join(rows, "\n"))
}

func (d *Dashboard) renderRecentSection() string {
	if len(d.data.Recent) == 0 {
		return d.section("Recent", DimStyle.Render("No incidents recorded yet"))
	}

	var rows []string
	for _, inc := range d.data.Recent {
		state := WarningStyle.Render("open")
		if inc.Resolved {
			state = DimStyle.Render("resolved")
		}
		rows = append(rows, fmt.Sprintf("#%-5d %-20s %s  %s",
			inc.ID, truncate(inc.Host, 20), inc.Timestamp.Format("Jan 02 15:04"), state))
	}

	return d.section("Recent", strings.Join(rows, "\n"))
}

func lastHop(inc model.Incident) string {
	hop := inc.DiagnosticTrace.LastReachableHop()
	if hop == nil {
		return "-"
	}
	return hop.Address
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
