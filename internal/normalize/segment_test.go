package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegmentSVGRawString(t *testing.T) {
	svg := `<svg xmlns="http://www.w3.org/2000/svg"></svg>`
	assert.Equal(t, svg, SegmentSVG(svg))
}

func TestSegmentSVGFromSVGField(t *testing.T) {
	resp := map[string]any{"svg": `<svg></svg>`}
	assert.Equal(t, "<svg></svg>", SegmentSVG(resp))
}

func TestSegmentSVGFromNestedResult(t *testing.T) {
	resp := map[string]any{
		"result": map[string]any{"svg": `<svg></svg>`},
	}
	assert.Equal(t, "<svg></svg>", SegmentSVG(resp))
}

func TestSegmentSVGFromPath(t *testing.T) {
	resp := map[string]any{"path": "M0 0 L1 1 Z"}
	got := SegmentSVG(resp)
	assert.Contains(t, got, "<svg")
	assert.Contains(t, got, "M0 0 L1 1 Z")
}

func TestSegmentSVGFromNestedResultPath(t *testing.T) {
	resp := map[string]any{
		"result": map[string]any{"path": "M0 0 L1 1 Z"},
	}
	got := SegmentSVG(resp)
	assert.Contains(t, got, "<svg")
}

func TestSegmentSVGUnrecognizedReturnsEmpty(t *testing.T) {
	assert.Empty(t, SegmentSVG(nil))
	assert.Empty(t, SegmentSVG(map[string]any{"unexpected": "shape"}))
}

func TestSegmentBBoxPresent(t *testing.T) {
	resp := map[string]any{
		"bbox": map[string]any{"x_min": 0.1, "y_min": 0.1, "x_max": 0.6, "y_max": 0.9},
	}
	b := SegmentBBox(resp)
	require.NotNil(t, b)
	assert.InDelta(t, 0.5, b.W, 1e-9)
	assert.InDelta(t, 0.8, b.H, 1e-9)
}

func TestSegmentBBoxNestedInResult(t *testing.T) {
	resp := map[string]any{
		"result": map[string]any{
			"bbox": map[string]any{"x_min": 0.0, "y_min": 0.0, "x_max": 1.0, "y_max": 1.0},
		},
	}
	assert.NotNil(t, SegmentBBox(resp))
}

func TestSegmentBBoxAbsent(t *testing.T) {
	assert.Nil(t, SegmentBBox(map[string]any{"svg": "<svg></svg>"}))
	assert.Nil(t, SegmentBBox(nil))
}
