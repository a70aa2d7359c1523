package model

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-graphviz"
)

// ToDOT returns a Graphviz DOT representation of the constraint graph.
//
// Layers render as clusters holding their trait nodes. Ruler rules render
// as edges from the ruler trait to each affected target trait: allow
// edges solid green, forbid edges dashed red. Active combinations are
// listed in the graph label so capacity-relevant layer groupings stay
// visible alongside the rules.
func (m *ConstraintModel) ToDOT() string {
	var buf bytes.Buffer
	buf.WriteString("digraph Constraints {\n")
	buf.WriteString("  rankdir=LR;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [fontname=\"SF Mono, Menlo, monospace\", fontsize=12, style=filled, fillcolor=white, shape=box];\n\n")

	for i, layer := range m.Layers() {
		fmt.Fprintf(&buf, "  subgraph cluster_%d {\n", i)
		fmt.Fprintf(&buf, "    label=%q;\n", layerLabel(layer))
		buf.WriteString("    style=rounded;\n")
		for _, t := range layer.Traits {
			fmt.Fprintf(&buf, "    %q [label=%q];\n", t.ID, traitLabel(t))
		}
		buf.WriteString("  }\n")
	}
	buf.WriteString("\n")

	for _, layer := range m.Layers() {
		for _, t := range layer.Traits {
			for _, rule := range m.RulesOf(t.ID) {
				for _, id := range rule.Allowed {
					fmt.Fprintf(&buf, "  %q -> %q [color=\"#2a9d5c\"];\n", rule.Ruler, id)
				}
				for _, id := range rule.Forbidden {
					fmt.Fprintf(&buf, "  %q -> %q [color=\"#c04444\", style=dashed];\n", rule.Ruler, id)
				}
			}
		}
	}

	if combos := m.Combinations(); len(combos) > 0 {
		buf.WriteString("\n  label=\"unique: ")
		for i, c := range combos {
			if i > 0 {
				buf.WriteString(", ")
			}
			fmt.Fprintf(&buf, "%s", c.ID)
		}
		buf.WriteString("\";\n  labelloc=b;\n")
	}

	buf.WriteString("}\n")
	return buf.String()
}

// RenderSVG renders the constraint graph as an SVG image.
//
// RenderSVG generates a DOT representation via ToDOT, then uses Graphviz
// to render it. Errors are returned if Graphviz cannot initialize, the
// DOT is malformed, or rendering fails.
func (m *ConstraintModel) RenderSVG(ctx context.Context) ([]byte, error) {
	dot := m.ToDOT()

	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return buf.Bytes(), nil
}

func layerLabel(l Layer) string {
	name := l.Name
	if name == "" {
		name = string(l.ID)
	}
	if l.Optional {
		return name + " (optional)"
	}
	return name
}

func traitLabel(t Trait) string {
	name := t.Name
	if name == "" {
		name = string(t.ID)
	}
	return fmt.Sprintf("%s\\nw=%d", name, t.Weight)
}
