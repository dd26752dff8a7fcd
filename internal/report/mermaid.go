package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/user/pingwatch/internal/model"
)

// GenerateMermaidDiagram creates a Mermaid flowchart for an incident trace.
// The path ends at the unreachable host.
func GenerateMermaidDiagram(trace model.DiagnosticTrace) string {
	var sb strings.Builder

	sb.WriteString("```mermaid\n")
	sb.WriteString("flowchart LR\n")
	sb.WriteString("    style Source fill:#90EE90\n")
	sb.WriteString("    style Target fill:#FFB6C1,stroke:#FF0000,stroke-dasharray: 5 5\n")
	sb.WriteString("\n")

	sb.WriteString("    Source[Monitor]\n")

	prevNode := "Source"
	for _, hop := range trace.Hops {
		nodeID := fmt.Sprintf("H%d", hop.Hop)

		if hop.TimedOut || hop.Address == "" {
			fmt.Fprintf(&sb, "    %s[Hop %d\\n* * *]:::lost\n", nodeID, hop.Hop)
		} else {
			addr := hop.Address
			if hop.Hostname != "" && hop.Hostname != hop.Address {
				addr = fmt.Sprintf("%s\\n%s", shortenHostname(hop.Hostname), hop.Address)
			}
			label := fmt.Sprintf("Hop %d\\n%s", hop.Hop, addr)
			if hop.RTTMs != nil {
				label += fmt.Sprintf("\\n%.1fms", *hop.RTTMs)
			}
			fmt.Fprintf(&sb, "    %s[%s]\n", nodeID, label)
		}

		fmt.Fprintf(&sb, "    %s --> %s\n", prevNode, nodeID)
		prevNode = nodeID
	}

	fmt.Fprintf(&sb, "    Target[%s]\n", sanitizeLabel(trace.Host))
	fmt.Fprintf(&sb, "    %s -.-x Target\n", prevNode)

	sb.WriteString("\n")
	sb.WriteString("    classDef lost fill:#FFB6C1,stroke:#FF0000\n")
	sb.WriteString("```\n")

	return sb.String()
}

// GenerateNetworkTopology merges several traces into one Mermaid diagram
// of shared path segments.
func GenerateNetworkTopology(traces []model.DiagnosticTrace) string {
	if len(traces) == 0 {
		return ""
	}

	var sb strings.Builder

	sb.WriteString("```mermaid\n")
	sb.WriteString("flowchart TD\n")
	sb.WriteString("    You[Monitor]:::source\n\n")

	hopSet := make(map[string]bool)
	targets := make(map[string]bool)
	edges := make(map[string]bool)

	for _, trace := range traces {
		prevNode := "You"
		for _, hop := range trace.Hops {
			if hop.TimedOut || hop.Address == "" {
				continue
			}

			nodeID := addressToNodeID(hop.Address)
			hopSet[hop.Address] = true
			edges[prevNode+"->"+nodeID] = true
			prevNode = nodeID
		}

		targetID := "T_" + addressToNodeID(trace.Host)
		targets[trace.Host] = true
		edges[prevNode+"->"+targetID] = true
	}

	for _, addr := range sortedKeys(hopSet) {
		fmt.Fprintf(&sb, "    %s[%s]\n", addressToNodeID(addr), addr)
	}
	for _, host := range sortedKeys(targets) {
		fmt.Fprintf(&sb, "    T_%s[%s]:::target\n", addressToNodeID(host), sanitizeLabel(host))
	}

	sb.WriteString("\n")

	for _, edge := range sortedKeys(edges) {
		parts := strings.SplitN(edge, "->", 2)
		fmt.Fprintf(&sb, "    %s --> %s\n", parts[0], parts[1])
	}

	sb.WriteString("\n")
	sb.WriteString("    classDef source fill:#90EE90\n")
	sb.WriteString("    classDef target fill:#FFB6C1\n")
	sb.WriteString("```\n")

	return sb.String()
}

func shortenHostname(hostname string) string {
	if len(hostname) > 20 {
		parts := strings.Split(hostname, ".")
		if len(parts) > 2 {
			return parts[0] + "..."
		}
		return hostname[:17] + "..."
	}
	return hostname
}

// addressToNodeID converts an address or hostname into a valid Mermaid node ID.
func addressToNodeID(addr string) string {
	r := strings.NewReplacer(".", "_", ":", "_", "-", "_")
	return "N" + r.Replace(addr)
}

func sanitizeLabel(s string) string {
	r := strings.NewReplacer("[", "(", "]", ")", "\"", "'")
	return r.Replace(s)
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
