package normalize

import "strings"

// Segment is the normalized result of a /segment call: an optional SVG
// string and an optional bounding box (present only when the response
// carried one alongside the mask).
type Segment struct {
	SVG  string
	BBox *Box
}

// SegmentSVG extracts an SVG string from a segment response. It accepts
// a raw string, a {svg|mask_svg|result|output} field starting with
// "<svg", a nested {result:{svg}}, or a {path} field (optionally
// nested under result) holding an SVG path "d" attribute, which gets
// wrapped into a minimal <svg> document.
func SegmentSVG(segmentResponse any) string {
	if segmentResponse == nil {
		return ""
	}
	if s, ok := segmentResponse.(string); ok {
		return strings.TrimSpace(s)
	}

	m, ok := segmentResponse.(map[string]any)
	if !ok {
		return ""
	}

	for _, key := range []string{"svg", "mask_svg", "result", "output"} {
		if s, ok := m[key].(string); ok && strings.HasPrefix(strings.TrimSpace(s), "<svg") {
			return strings.TrimSpace(s)
		}
	}

	if result, ok := m["result"].(map[string]any); ok {
		if s, ok := result["svg"].(string); ok && strings.HasPrefix(strings.TrimSpace(s), "<svg") {
			return strings.TrimSpace(s)
		}
		if p, ok := result["path"].(string); ok {
			if svg := wrapPathToSVG(p); svg != "" {
				return svg
			}
		}
	}

	if p, ok := m["path"].(string); ok {
		if svg := wrapPathToSVG(p); svg != "" {
			return svg
		}
	}

	return ""
}

func wrapPathToSVG(path string) string {
	p := strings.TrimSpace(path)
	if p == "" {
		return ""
	}
	p = strings.ReplaceAll(p, `"`, "'")
	return `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 1 1" preserveAspectRatio="none">` +
		`<path d="` + p + `" fill="white"/></svg>`
}

// SegmentBBox extracts a {x_min,y_min,x_max,y_max} bbox from a segment
// response when present, tolerant of one level of {result:{...}} nesting.
func SegmentBBox(segmentResponse any) *Box {
	if segmentResponse == nil {
		return nil
	}
	data, ok := segmentResponse.(map[string]any)
	if !ok {
		return nil
	}
	if result, ok := data["result"].(map[string]any); ok {
		data = result
	}

	bbox, ok := data["bbox"].(map[string]any)
	if !ok {
		return nil
	}
	xMin, ok1 := toFloat(bbox["x_min"])
	yMin, ok2 := toFloat(bbox["y_min"])
	xMax, ok3 := toFloat(bbox["x_max"])
	yMax, ok4 := toFloat(bbox["y_max"])
	if !(ok1 && ok2 && ok3 && ok4) {
		return nil
	}
	return &Box{
		X: xMin, Y: yMin, W: xMax - xMin, H: yMax - yMin,
		XMin: &xMin, YMin: &yMin, XMax: &xMax, YMax: &yMax,
	}
}
