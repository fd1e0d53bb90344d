package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoxesMinMaxShape(t *testing.T) {
	resp := map[string]any{
		"objects": []any{
			map[string]any{"x_min": 0.1, "y_min": 0.2, "x_max": 0.4, "y_max": 0.5},
		},
	}
	boxes := Boxes(resp)
	require.Len(t, boxes, 1)
	assert.InDelta(t, 0.3, boxes[0].W, 1e-9)
	assert.InDelta(t, 0.3, boxes[0].H, 1e-9)
}

func TestBoxesDropsZeroWidthTuple(t *testing.T) {
	resp := map[string]any{
		"boxes": []any{
			[]any{10.0, 20.0, 10.0, 50.0},
		},
	}
	assert.Empty(t, Boxes(resp))
}

func TestBoxesXYWHShape(t *testing.T) {
	resp := map[string]any{
		"detections": []any{
			map[string]any{"x": 0.1, "y": 0.1, "w": 0.2, "h": 0.3, "score": 0.9},
		},
	}
	boxes := Boxes(resp)
	require.Len(t, boxes, 1)
	assert.InDelta(t, 0.2, boxes[0].W, 1e-9)
	require.NotNil(t, boxes[0].Score)
	assert.InDelta(t, 0.9, *boxes[0].Score, 1e-9)
}

func TestBoxesNestedBoxField(t *testing.T) {
	resp := map[string]any{
		"objects": []any{
			map[string]any{"box": map[string]any{"x": 0.0, "y": 0.0, "w": 0.5, "h": 0.5}},
		},
	}
	boxes := Boxes(resp)
	require.Len(t, boxes, 1)
	assert.InDelta(t, 0.5, boxes[0].W, 1e-9)
}

func TestBoxesWrappedInResult(t *testing.T) {
	resp := map[string]any{
		"result": map[string]any{
			"objects": []any{
				map[string]any{"x": 0.0, "y": 0.0, "w": 0.1, "h": 0.1},
			},
		},
	}
	assert.Len(t, Boxes(resp), 1)
}

func TestBoxesMissingFieldsDropsCandidate(t *testing.T) {
	resp := map[string]any{
		"objects": []any{
			map[string]any{"x": 0.0, "y": 0.0},
			map[string]any{"x": 0.0, "y": 0.0, "w": 0.1, "h": 0.1},
		},
	}
	assert.Len(t, Boxes(resp), 1)
}

func TestBoxesNilAndUnrecognizedShapes(t *testing.T) {
	assert.Nil(t, Boxes(nil))
	assert.Nil(t, Boxes("not a map"))
	assert.Nil(t, Boxes(map[string]any{"unexpected": "shape"}))
}
