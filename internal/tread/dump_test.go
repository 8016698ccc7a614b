package tread

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderDOTEmitsACompleteDigraph(t *testing.T) {
	a := NewArena(4096, 0, 2)
	_, err := a.Alloc(16)
	assert.NoError(t, err)

	typ := a.GetType(16)
	var buf bytes.Buffer
	assert.NoError(t, typ.Tread.RenderDOT(&buf, "test"))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "digraph dg {"))
	assert.True(t, strings.HasSuffix(out, "}\n"))
	assert.Contains(t, out, "\"free\"")
	assert.Contains(t, out, "\"scan\"")
}

func TestRenderDOTOnEmptyTreadmillStillProducesValidGraph(t *testing.T) {
	a := NewArena(4096, 0, 2)
	typ := a.GetType(16)

	var buf bytes.Buffer
	assert.NoError(t, typ.Tread.RenderDOT(&buf, "empty"))
	assert.Contains(t, buf.String(), "\"n0\"")
}

func TestArenaDumpDOTNestsEverySizeClassAsASubgraph(t *testing.T) {
	a := NewArena(4096, 0, 2)
	_, err := a.Alloc(16)
	assert.NoError(t, err)
	_, err = a.Alloc(64)
	assert.NoError(t, err)

	var buf bytes.Buffer
	assert.NoError(t, a.DumpDOT(&buf))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "digraph heap {"))
	assert.Equal(t, 2, strings.Count(out, "subgraph cluster_"))
}
