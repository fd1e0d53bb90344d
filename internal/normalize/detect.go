// Package normalize parses the VLM's heterogeneous detect/segment/query
// JSON shapes into canonical internal records. Every function here is
// tolerant: malformed or unexpected input degrades to a zero result
// rather than an error.
package normalize

// Box is a single detected object's bounding box, normalized 0..1.
type Box struct {
	X     float64  `json:"x"`
	Y     float64  `json:"y"`
	W     float64  `json:"w"`
	H     float64  `json:"h"`
	XMin  *float64 `json:"x_min,omitempty"`
	YMin  *float64 `json:"y_min,omitempty"`
	XMax  *float64 `json:"x_max,omitempty"`
	YMax  *float64 `json:"y_max,omitempty"`
	Score *float64 `json:"score,omitempty"`
}

// Boxes normalizes a detect response into a list of boxes, discarding
// any box with non-positive width or height.
func Boxes(detectResponse any) []Box {
	if detectResponse == nil {
		return nil
	}

	data := detectResponse
	if m, ok := data.(map[string]any); ok {
		if result, present := m["result"]; present {
			data = result
		}
	}
	if m, ok := data.(map[string]any); ok {
		for _, key := range []string{"objects", "detections", "boxes"} {
			if v, present := m[key]; present {
				data = v
				break
			}
		}
	}

	list, ok := data.([]any)
	if !ok {
		return nil
	}

	var boxes []Box
	for _, item := range list {
		if b, ok := boxFromItem(item); ok {
			boxes = append(boxes, b)
		}
	}
	return boxes
}

func boxFromItem(item any) (Box, bool) {
	switch v := item.(type) {
	case map[string]any:
		if b, ok := boxFromMinMax(v); ok {
			return b, true
		}
		if b, ok := boxFromXYWH(v); ok {
			return b, true
		}
		if nested, ok := v["box"].(map[string]any); ok {
			if b, ok := boxFromXYWH(nested); ok {
				return b, true
			}
		}
	case []any:
		if len(v) == 4 {
			x1, ok1 := toFloat(v[0])
			y1, ok2 := toFloat(v[1])
			x2, ok3 := toFloat(v[2])
			y2, ok4 := toFloat(v[3])
			if ok1 && ok2 && ok3 && ok4 {
				return validatedBox(Box{X: x1, Y: y1, W: x2 - x1, H: y2 - y1})
			}
		}
	}
	return Box{}, false
}

func boxFromMinMax(m map[string]any) (Box, bool) {
	xMin, ok1 := toFloat(m["x_min"])
	yMin, ok2 := toFloat(m["y_min"])
	xMax, ok3 := toFloat(m["x_max"])
	yMax, ok4 := toFloat(m["y_max"])
	if !(ok1 && ok2 && ok3 && ok4) {
		return Box{}, false
	}
	b := Box{
		X: xMin, Y: yMin, W: xMax - xMin, H: yMax - yMin,
		XMin: &xMin, YMin: &yMin, XMax: &xMax, YMax: &yMax,
	}
	if score, ok := toFloat(m["score"]); ok {
		b.Score = &score
	}
	return validatedBox(b)
}

func boxFromXYWH(m map[string]any) (Box, bool) {
	x, ok1 := toFloat(m["x"])
	y, ok2 := toFloat(m["y"])
	w, ok3 := toFloat(m["w"])
	h, ok4 := toFloat(m["h"])
	if !(ok1 && ok2 && ok3 && ok4) {
		return Box{}, false
	}
	b := Box{X: x, Y: y, W: w, H: h}
	if score, ok := toFloat(m["score"]); ok {
		b.Score = &score
	}
	return validatedBox(b)
}

func validatedBox(b Box) (Box, bool) {
	if b.W <= 0 || b.H <= 0 {
		return Box{}, false
	}
	return b, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
