package diagram

import (
	"bytes"
	"context"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"

	"github.com/rendis/iterview/internal/graph"
	"github.com/rendis/iterview/pkg/schema"
)

// RenderImage lays the model out left to right with dot and returns a PNG.
// Edges whose endpoints are missing from the model are skipped.
func RenderImage(ctx context.Context, model *DiagramModel) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, renderError("start graphviz", err)
	}
	defer gv.Close()
	gv.SetLayout(graphviz.DOT)

	g, err := gv.Graph()
	if err != nil {
		return nil, renderError("new graph", err)
	}
	defer g.Close()
	g.SetRankDir(cgraph.LRRank)
	if caption := imageCaption(model); caption != "" {
		g.SetLabel(caption)
	}

	agents := make(map[string]*cgraph.Node, len(model.Nodes))
	for _, n := range model.Nodes {
		node, err := g.CreateNodeByName(n.ID)
		if err != nil {
			return nil, renderError("node "+n.ID, err)
		}
		node.SetLabel(n.Label)
		node.SetShape(cgraph.BoxShape)
		styleNode(node, n.Status)
		agents[n.ID] = node
	}
	for _, e := range model.Edges {
		from, to := agents[e.From], agents[e.To]
		if from == nil || to == nil {
			continue
		}
		edge, err := g.CreateEdgeByName(e.ID, from, to)
		if err != nil {
			return nil, renderError("edge "+e.ID, err)
		}
		styleEdge(edge, e)
	}

	var png bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.PNG, &png); err != nil {
		return nil, renderError("render png", err)
	}
	return png.Bytes(), nil
}

func imageCaption(model *DiagramModel) string {
	switch {
	case model.Stage == "":
		return model.Title
	case model.Title == "":
		return "stage: " + model.Stage
	default:
		return model.Title + "\nstage: " + model.Stage
	}
}

func renderError(what string, err error) error {
	return schema.NewErrorf(schema.ErrCodeRender, "diagram: %s", what).WithCause(err)
}

func styleNode(n *cgraph.Node, status graph.NodeStatus) {
	sw := swatchFor(status)
	n.SetStyle(cgraph.FilledNodeStyle)
	n.SetFillColor(sw.Fill)
	n.SetColor(sw.Stroke)
	n.SetFontColor(sw.Font)
}

// styleEdge weights an edge by its denoise level.
func styleEdge(e *cgraph.Edge, edge Edge) {
	switch edge.Level {
	case graph.DenoiseStrong:
		e.SetStyle(cgraph.BoldEdgeStyle)
		e.SetPenWidth(3)
	case graph.DenoiseWeak:
		e.SetStyle(cgraph.SolidEdgeStyle)
		e.SetPenWidth(1.5)
	default:
		e.SetStyle(cgraph.DashedEdgeStyle)
		e.SetColor(idleColor)
	}
	if edge.Flow == graph.FlowFlowing {
		e.SetColor(flowingColor)
	}
}
