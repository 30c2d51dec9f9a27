package protocol

import (
	"fmt"
	"strings"
)

// GenerateGraphviz generates a Graphviz DOT representation of the protocol:
// one node per abstract state, one edge per operation outcome.
func (d *Domain) GenerateGraphviz() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("digraph %s {\n", sanitize(d.Name)))
	sb.WriteString("  rankdir=LR;\n")
	sb.WriteString("  node [shape=circle];\n")
	sb.WriteString("\n")

	sb.WriteString("  start [shape=point];\n")
	sb.WriteString(fmt.Sprintf("  start -> \"%s\";\n", d.Initial))
	sb.WriteString("\n")

	for _, v := range d.Values {
		sb.WriteString(fmt.Sprintf("  \"%s\" [label=\"%s\"];\n", v, v))
	}
	sb.WriteString("\n")

	for _, op := range d.ops {
		r := d.rules[op]
		for _, from := range r.Pre.Values(d) {
			for _, o := range r.Post {
				label := op
				if !o.Any {
					label = fmt.Sprintf("%s=%v", op, o.Result)
				}
				for _, to := range o.Next.Values(d) {
					sb.WriteString(fmt.Sprintf("  \"%s\" -> \"%s\" [label=\"%s\"];\n", from, to, label))
				}
			}
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}

// GenerateMermaid generates a Mermaid stateDiagram of the protocol.
func (d *Domain) GenerateMermaid() string {
	var sb strings.Builder

	sb.WriteString("stateDiagram-v2\n")
	sb.WriteString(fmt.Sprintf("    [*] --> %s\n", d.Initial))

	for _, op := range d.ops {
		r := d.rules[op]
		for _, from := range r.Pre.Values(d) {
			for _, o := range r.Post {
				label := op
				if !o.Any {
					label = fmt.Sprintf("%s = %v", op, o.Result)
				}
				for _, to := range o.Next.Values(d) {
					sb.WriteString(fmt.Sprintf("    %s --> %s: %s\n", from, to, label))
				}
			}
		}
	}

	return sb.String()
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
