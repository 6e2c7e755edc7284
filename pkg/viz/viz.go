// Package viz draws the causal history of a Chronicle as a graph: one node per change,
// one edge per dependency.
package viz

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"

	"github.com/astromechza/chronicle/pkg/chronicle"
)

type Format string

const (
	FormatDOT Format = "dot"
	FormatSVG Format = "svg"
	FormatPNG Format = "png"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatDOT, FormatSVG, FormatPNG:
		return f, nil
	}
	return "", fmt.Errorf("unsupported format %q", s)
}

// Label is the node text for an entry: short hash, actor@seq and the JSON value, if any.
func Label(e chronicle.HistoryEntry) (string, error) {
	short := e.Hash
	if len(short) > 8 {
		short = short[:8]
	}
	label := fmt.Sprintf("%s %s@%d", short, e.Actor, e.Seq)
	if e.Value != nil {
		encoded, err := json.Marshal(e.Value)
		if err != nil {
			return "", fmt.Errorf("failed to marshal value at %s: %w", e.Hash, err)
		}
		label += " " + string(encoded)
	}
	return label, nil
}

// WriteDOT writes the history as DOT text. It needs no graphviz runtime.
func WriteDOT(w io.Writer, entries []chronicle.HistoryEntry) error {
	var buff bytes.Buffer
	buff.WriteString("digraph \"history\" {\n")
	for _, e := range entries {
		label, err := Label(e)
		if err != nil {
			return err
		}
		fmt.Fprintf(&buff, "    %s [label=%s]\n", strconv.Quote(e.Hash), strconv.Quote(label))
		for _, dep := range e.Deps {
			fmt.Fprintf(&buff, "    %s -> %s\n", strconv.Quote(dep), strconv.Quote(e.Hash))
		}
	}
	buff.WriteString("}\n")
	_, err := w.Write(buff.Bytes())
	return err
}

// Render lays out the history with graphviz and writes it in format.
func Render(w io.Writer, entries []chronicle.HistoryEntry, format Format) error {
	if format == FormatDOT {
		return WriteDOT(w, entries)
	}
	var out graphviz.Format
	switch format {
	case FormatSVG:
		out = graphviz.SVG
	case FormatPNG:
		out = graphviz.PNG
	default:
		return fmt.Errorf("unsupported format %q", format)
	}

	g := graphviz.New()
	defer g.Close()
	graph, err := g.Graph()
	if err != nil {
		return fmt.Errorf("failed to setup graph: %w", err)
	}
	defer graph.Close()

	nodes := make(map[string]*cgraph.Node, len(entries))
	edges := 0
	for _, e := range entries {
		label, err := Label(e)
		if err != nil {
			return err
		}
		n, err := graph.CreateNode(e.Hash)
		if err != nil {
			return fmt.Errorf("failed to create node: %w", err)
		}
		n.SetLabel(label)
		nodes[e.Hash] = n

		for _, dep := range e.Deps {
			from, ok := nodes[dep]
			if !ok {
				return fmt.Errorf("change %s depends on unknown change %s", e.Hash, dep)
			}
			edges++
			if _, err := graph.CreateEdge(strconv.Itoa(edges), from, n); err != nil {
				return fmt.Errorf("failed to create edge: %w", err)
			}
		}
	}

	if err := g.Render(graph, out, w); err != nil {
		return fmt.Errorf("failed to render: %w", err)
	}
	return nil
}

// RenderFile renders the history into a file at path.
func RenderFile(path string, entries []chronicle.HistoryEntry, format Format) error {
	var buff bytes.Buffer
	if err := Render(&buff, entries, format); err != nil {
		return err
	}
	if err := os.WriteFile(path, buff.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
