package vlmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/ancill/mediapod/asset-worker/internal/imageprep"
)

// StationProvider talks to a locally-hosted Moondream Station instance
// over its /v1/{caption,detect,segment,query} HTTP surface.
type StationProvider struct {
	endpoint string
	client   *resty.Client
	image    imageprep.Options
}

// NewStationProvider accepts either a bare host (http://localhost:2020)
// or an already-versioned endpoint (http://localhost:2020/v1); both are
// normalized to the bare host before requests are issued.
func NewStationProvider(endpoint string, image imageprep.Options) *StationProvider {
	e := strings.TrimSuffix(endpoint, "/")
	e = strings.TrimSuffix(e, "/v1")
	return &StationProvider{
		endpoint: e,
		client:   resty.New().SetTimeout(180 * time.Second),
		image:    image,
	}
}

func (p *StationProvider) imageURL(imageRef string) (string, error) {
	return imageprep.ToDataURL(imageRef, p.image)
}

func (p *StationProvider) post(ctx context.Context, op, path string, body map[string]any) (map[string]any, error) {
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(body).
		Post(p.endpoint + path)
	if err != nil {
		return nil, newProviderError(op, "station %s request failed: %w", op, err)
	}
	if resp.StatusCode() >= 400 {
		return nil, newProviderError(op, "station %s failed: %d %s", op, resp.StatusCode(), string(resp.Body()))
	}

	var data map[string]any
	if err := json.Unmarshal(resp.Body(), &data); err != nil {
		return nil, newProviderError(op, "station %s: decode response: %w", op, err)
	}
	if errVal, ok := data["error"]; ok && truthy(errVal) {
		return nil, newProviderError(op, "station %s error: %v", op, data)
	}
	if status, ok := data["status"].(string); ok && (status == "rejected" || status == "timeout") {
		return nil, newProviderError(op, "station %s error: %v", op, data)
	}
	return data, nil
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	default:
		return true
	}
}

func (p *StationProvider) Caption(ctx context.Context, imageRef, length string) (string, error) {
	imgURL, err := p.imageURL(imageRef)
	if err != nil {
		return "", newProviderError("caption", "prepare image: %w", err)
	}
	data, err := p.post(ctx, "caption", "/v1/caption", map[string]any{
		"stream": false, "length": length, "image_url": imgURL,
	})
	if err != nil {
		return "", err
	}
	return firstNonEmptyString(data, "caption", "text"), nil
}

func (p *StationProvider) Detect(ctx context.Context, imageRef, object string) (any, error) {
	imgURL, err := p.imageURL(imageRef)
	if err != nil {
		return nil, newProviderError("detect", "prepare image: %w", err)
	}
	return p.post(ctx, "detect", "/v1/detect", map[string]any{
		"stream": false, "object": object, "image_url": imgURL,
	})
}

func (p *StationProvider) Segment(ctx context.Context, imageRef, object string) (any, error) {
	imgURL, err := p.imageURL(imageRef)
	if err != nil {
		return nil, newProviderError("segment", "prepare image: %w", err)
	}
	return p.post(ctx, "segment", "/v1/segment", map[string]any{
		"stream": false, "object": object, "image_url": imgURL,
	})
}

func (p *StationProvider) Query(ctx context.Context, imageRef, question string) (string, error) {
	imgURL, err := p.imageURL(imageRef)
	if err != nil {
		return "", newProviderError("query", "prepare image: %w", err)
	}
	data, err := p.post(ctx, "query", "/v1/query", map[string]any{
		"stream": false, "question": question, "image_url": imgURL,
	})
	if err != nil {
		return "", err
	}
	return firstNonEmptyString(data, "answer", "text", "caption"), nil
}

func (p *StationProvider) ModelVersion() string {
	return "moondream_station"
}

func firstNonEmptyString(data map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := data[k].(string); ok {
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				return trimmed
			}
		}
	}
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(b)
}
