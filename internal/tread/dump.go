package tread

import (
	"fmt"
	"io"

	"github.com/kstephens/treadmill/internal/colorperm"
)

var dotFillColor = [...]string{"white", "#C2B280", "grey", "black"}
var dotFontColor = [...]string{"black", "black", "black", "white"}
var dotStyle = [...]string{"filled,dotted", "filled", "filled", "filled"}

// RenderDOT writes the treadmill's circular list as a standalone
// Graphviz digraph: one node per cell styled by its current logical
// color, forward list edges in black, backward edges in grey, and boxes
// for the free/bottom/top/scan cursors pointing at whatever cell each
// currently sits on.
func (t *Treadmill) RenderDOT(w io.Writer, label string) error {
	d := &dotWriter{w: w}
	d.printf("digraph dg {\n")
	d.printf("  label=%q\n", label)
	t.renderDOTBody(d, "")
	d.printf("}\n")
	return d.err
}

// renderDOTBody writes the node/edge/cursor statements without the
// enclosing digraph keyword, so DumpDOT can nest several treadmills as
// subgraphs of one outer digraph. cursorPrefix disambiguates the
// free/bottom/top/scan cursor node names across subgraphs sharing one
// digraph namespace.
func (t *Treadmill) renderDOTBody(d *dotWriter, cursorPrefix string) {
	if t.Empty() {
		d.printf("  \"n0\" [ label=\"0\", color=grey, shape=none ];\n")
	} else {
		start := t.free
		for n := start; ; {
			c := int(t.Color(n))
			d.printf("  %q [ fontsize=8, shape=ellipse, fillcolor=%q, fontcolor=%q, style=%q ];\n",
				dotNodeID(n), dotFillColor[c], dotFontColor[c], dotStyle[c])
			n = n.next
			if n == start {
				break
			}
		}
		for n := start; ; {
			d.printf("  %q -> %q [ color=black ];\n", dotNodeID(n), dotNodeID(n.next))
			d.printf("  %q -> %q [ color=grey ];\n", dotNodeID(n), dotNodeID(n.prev))
			n = n.next
			if n == start {
				break
			}
		}
	}

	free, bottom, top, scan := cursorPrefix+"free", cursorPrefix+"bottom", cursorPrefix+"top", cursorPrefix+"scan"
	d.printf("  %q [ shape=box, label=\"free: %d\" ];\n", free, t.counts[colorperm.White])
	d.printf("  %q [ shape=box ];\n", bottom)
	d.printf("  %q [ shape=box ];\n", top)
	d.printf("  %q [ shape=box, label=\"scan: %d\" ];\n", scan, t.counts[colorperm.Grey])
	d.printf("  %q -> %q;\n", free, dotNodeID(t.free))
	d.printf("  %q -> %q;\n", bottom, dotNodeID(t.bottom))
	d.printf("  %q -> %q;\n", top, dotNodeID(t.top))
	d.printf("  %q -> %q;\n", scan, dotNodeID(t.scan))
}

func dotNodeID(n *Cell) string {
	if n == nil {
		return "n0"
	}
	return fmt.Sprintf("n%p", n)
}

// DumpDOT renders every size class's treadmill as a labeled subgraph of
// one Graphviz digraph, for inspecting a whole arena at once rather than
// one size class at a time.
func (a *Arena) DumpDOT(w io.Writer) error {
	a.mu.Lock()
	types := make([]*Type, 0, len(a.types))
	for _, t := range a.types {
		types = append(types, t)
	}
	a.mu.Unlock()

	d := &dotWriter{w: w}
	d.printf("digraph heap {\n")
	for i, t := range types {
		d.printf("  subgraph cluster_%d {\n", i)
		d.printf("    label=%q\n", fmt.Sprintf("size class %d", t.Size))
		t.Tread.renderDOTBody(d, fmt.Sprintf("t%d_", i))
		d.printf("  }\n")
	}
	d.printf("}\n")
	return d.err
}

type dotWriter struct {
	w   io.Writer
	err error
}

func (d *dotWriter) printf(format string, args ...any) {
	if d.err != nil {
		return
	}
	_, d.err = fmt.Fprintf(d.w, format, args...)
}
