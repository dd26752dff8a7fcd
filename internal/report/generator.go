// Package report generates incident reports.
package report

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/user/pingwatch/internal/model"
)

// MarkdownFormat is the only supported output format.
const MarkdownFormat = "markdown"

// Source is the incident data a report is built from.
type Source interface {
	GetIncidentsBetween(ctx context.Context, since, until time.Time) []model.Incident
	GetStatistics(ctx context.Context) model.Statistics
}

// Generator creates incident reports.
type Generator struct {
	store Source
}

// NewGenerator creates a new report generator.
func NewGenerator(store Source) *Generator {
	return &Generator{store: store}
}

// ReportData holds all data for a report.
type ReportData struct {
	GeneratedAt time.Time
	Since       time.Time
	Until       time.Time

	// Incidents in the window, newest first
	Incidents     []model.Incident
	OpenCount     int
	ResolvedCount int

	// Store-wide counts, not limited to the window
	Stats model.Statistics

	Hosts       []HostSummary
	PathChanges []PathChange
}

// HostSummary aggregates one host's incidents within the window.
type HostSummary struct {
	Host        string
	Incidents   int
	Open        int
	Resolved    int
	FirstSeen   time.Time
	LastSeen    time.Time
	LastError   string
	LatestTrace *model.DiagnosticTrace
}

// PathChange records a difference between consecutive traces for a host.
type PathChange struct {
	Host      string
	OldHops   []string
	NewHops   []string
	Added     []string
	Removed   []string
	Timestamp time.Time
}

// Generate creates a report for the specified time range.
func (g *Generator) Generate(ctx context.Context, opts model.ReportOptions) (*ReportData, error) {
	if opts.Format != "" && opts.Format != MarkdownFormat {
		return nil, fmt.Errorf("unsupported report format %q", opts.Format)
	}
	until := opts.Until
	if until.IsZero() {
		until = time.Now()
	}
	if opts.Since.After(until) {
		return nil, fmt.Errorf("report window start %s is after end %s",
			opts.Since.Format(time.RFC3339), until.Format(time.RFC3339))
	}

	data := &ReportData{
		GeneratedAt: time.Now(),
		Since:       opts.Since,
		Until:       until,
		Incidents:   g.store.GetIncidentsBetween(ctx, opts.Since, until),
		Stats:       g.store.GetStatistics(ctx),
	}

	byHost := make(map[string]*HostSummary)
	for i := range data.Incidents {
		inc := &data.Incidents[i]
		if inc.Resolved {
			data.ResolvedCount++
		} else {
			data.OpenCount++
		}

		hs, ok := byHost[inc.Host]
		if !ok {
			// incidents arrive newest first, so the first one seen is the latest
			hs = &HostSummary{
				Host:        inc.Host,
				LastSeen:    inc.Timestamp,
				LastError:   inc.PingResult.Error,
				LatestTrace: inc.DiagnosticTrace,
			}
			byHost[inc.Host] = hs
		}
		hs.Incidents++
		hs.FirstSeen = inc.Timestamp
		if inc.Resolved {
			hs.Resolved++
		} else {
			hs.Open++
		}
	}

	for _, hs := range byHost {
		data.Hosts = append(data.Hosts, *hs)
	}
	sort.Slice(data.Hosts, func(i, j int) bool {
		if data.Hosts[i].Incidents != data.Hosts[j].Incidents {
			return data.Hosts[i].Incidents > data.Hosts[j].Incidents
		}
		return data.Hosts[i].Host < data.Hosts[j].Host
	})

	for _, hs := range data.Hosts {
		data.PathChanges = append(data.PathChanges, detectPathChanges(hs.Host, data.Incidents)...)
	}

	return data, nil
}

// detectPathChanges compares consecutive successful traces for host,
// oldest to newest.
func detectPathChanges(host string, incidents []model.Incident) []PathChange {
	var changes []PathChange

	var prev []string
	havePrev := false
	for i := len(incidents) - 1; i >= 0; i-- {
		inc := incidents[i]
		if inc.Host != host || inc.DiagnosticTrace == nil || !inc.DiagnosticTrace.Success {
			continue
		}
		curr := hopAddresses(inc.DiagnosticTrace.Hops)
		if havePrev && !slices.Equal(prev, curr) {
			added, removed := diffHops(prev, curr)
			changes = append(changes, PathChange{
				Host:      host,
				OldHops:   prev,
				NewHops:   curr,
				Added:     added,
				Removed:   removed,
				Timestamp: inc.Timestamp,
			})
		}
		prev = curr
		havePrev = true
	}

	return changes
}

func hopAddresses(hops []model.TraceHop) []string {
	addrs := make([]string, 0, len(hops))
	for _, hop := range hops {
		if !hop.TimedOut && hop.Address != "" {
			addrs = append(addrs, hop.Address)
		}
	}
	return addrs
}

func diffHops(prev, curr []string) (added, removed []string) {
	prevSet := make(map[string]bool)
	currSet := make(map[string]bool)

	for _, h := range prev {
		prevSet[h] = true
	}
	for _, h := range curr {
		currSet[h] = true
	}

	for _, h := range curr {
		if !prevSet[h] {
			added = append(added, h)
		}
	}
	for _, h := range prev {
		if !currSet[h] {
			removed = append(removed, h)
		}
	}

	return
}
