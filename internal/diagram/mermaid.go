package diagram

import (
	"fmt"
	"strings"

	"github.com/rendis/iterview/internal/graph"
)

var mermaidIDReplacer = strings.NewReplacer(".", "_", "-", "_", " ", "_", ">", "_")

// RenderMermaid renders a DiagramModel as a left-to-right Mermaid flowchart.
// Arrow weight follows the denoise level; flowing edges get the accent color.
func RenderMermaid(model *DiagramModel) string {
	var b strings.Builder
	line := func(format string, args ...any) {
		b.WriteString("    ")
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}

	b.WriteString("graph LR\n")
	if model.Title != "" {
		line("%%%% %s", model.Title)
	}
	if model.Stage != "" {
		line("%%%% stage: %s", model.Stage)
	}

	for _, n := range model.Nodes {
		line("%s[%q]", mermaidSafeID(n.ID), n.Label)
	}
	for _, e := range model.Edges {
		line("%s %s %s", mermaidSafeID(e.From), mermaidArrow(e.Level), mermaidSafeID(e.To))
	}

	b.WriteByte('\n')
	for _, status := range nodeStatuses {
		s := statusSwatches[status]
		line("classDef %s fill:%s,stroke:%s,color:%s", status, s.Fill, s.Stroke, s.Font)
	}
	for _, n := range model.Nodes {
		if _, ok := statusSwatches[n.Status]; ok {
			line("class %s %s", mermaidSafeID(n.ID), n.Status)
		}
	}
	// linkStyle indexes follow edge declaration order.
	for i, e := range model.Edges {
		if e.Flow == graph.FlowFlowing {
			line("linkStyle %d stroke:%s", i, flowingColor)
		}
	}
	return b.String()
}

func mermaidArrow(level graph.DenoiseLevel) string {
	switch level {
	case graph.DenoiseStrong:
		return "==>"
	case graph.DenoiseWeak:
		return "-->"
	default:
		return "-.->"
	}
}

func mermaidSafeID(id string) string {
	return mermaidIDReplacer.Replace(id)
}
