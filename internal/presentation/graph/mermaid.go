package graph

import (
	"fmt"
	"sort"
	"strings"

	sg "github.com/aretw0/stategraph/pkg/graph"
)

// GraphOverlay contains run data to visualize on the graph.
type GraphOverlay struct {
	VisitedNodes []string
	CurrentNode  string
}

const endID = "END"

// GenerateMermaid produces a Mermaid flowchart of a compiled graph.
// It applies semantic styling:
// - Entry point: ((Circle))
// - Node routing by Command: {{Hexagon}}
// - END: ([Stadium])
// - Default: [Rectangle]
// Static edges are solid, conditional edges carry their key, Command targets are dotted.
// It also applies overlay styles (Visited/Current) if provided.
func GenerateMermaid(g *sg.Compiled, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	entry := g.EntryPoint()
	usesEnd := false
	target := func(name string) string {
		if name == sg.END {
			usesEnd = true
			return endID
		}
		return sanitizeMermaidID(name)
	}

	for _, name := range g.Nodes() {
		safeID := sanitizeMermaidID(name)

		opener, closer := "[", "]"
		switch {
		case name == entry:
			opener, closer = "((", "))"
		case len(g.Destinations(name)) > 0:
			opener, closer = "{{", "}}"
		}
		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", safeID, opener, escapeLabel(name), closer))
	}

	for _, e := range g.Edges() {
		sb.WriteString(fmt.Sprintf("    %s --> %s\n", sanitizeMermaidID(e.From), target(e.To)))
	}

	for _, br := range g.Branches() {
		keys := make([]string, 0, len(br.Mapping))
		for k := range br.Mapping {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("    %s -- \"%s\" --> %s\n", sanitizeMermaidID(br.From), escapeLabel(k), target(br.Mapping[k])))
		}
	}

	for _, name := range g.Nodes() {
		for _, dst := range g.Destinations(name) {
			sb.WriteString(fmt.Sprintf("    %s -.-> %s\n", sanitizeMermaidID(name), target(dst)))
		}
	}

	if usesEnd {
		sb.WriteString(fmt.Sprintf("    %s([\"END\"])\n", endID))
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		visitedSet := make(map[string]bool)
		for _, id := range overlay.VisitedNodes {
			safeID := sanitizeMermaidID(id)
			if id == sg.END {
				safeID = endID
			}
			if !visitedSet[safeID] && safeID != "" {
				visitedSet[safeID] = true
				sb.WriteString(fmt.Sprintf("    class %s visited;\n", safeID))
			}
		}

		if overlay.CurrentNode != "" {
			safeCurrent := sanitizeMermaidID(overlay.CurrentNode)
			if overlay.CurrentNode == sg.END {
				safeCurrent = endID
			}
			sb.WriteString(fmt.Sprintf("    class %s current;\n", safeCurrent))
		}
	}

	return sb.String()
}

func escapeLabel(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	if s == endID {
		// Keep user nodes named "END" apart from the terminal marker.
		s = "node_END"
	}
	return s
}
