package vlmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// RemoteProvider posts raw image bytes to a bearer-token-authenticated
// hosted captioning endpoint. Detect/segment/query are not part of this
// endpoint's contract and are reported via ErrNotSupported so the tag
// discovery engine can skip them cleanly.
type RemoteProvider struct {
	endpointURL string
	token       string
	client      *resty.Client
}

func NewRemoteProvider(endpointURL, token string) *RemoteProvider {
	return &RemoteProvider{
		endpointURL: endpointURL,
		token:       token,
		client:      resty.New().SetTimeout(180 * time.Second),
	}
}

func (p *RemoteProvider) Caption(ctx context.Context, imageRef, length string) (string, error) {
	imgBytes, err := os.ReadFile(imageRef)
	if err != nil {
		return "", newProviderError("caption", "read image: %w", err)
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+p.token).
		SetBody(imgBytes).
		Post(p.endpointURL)
	if err != nil {
		return "", newProviderError("caption", "remote request failed: %w", err)
	}
	if resp.StatusCode() >= 400 {
		return "", newProviderError("caption", "remote failed: %d %s", resp.StatusCode(), string(resp.Body()))
	}

	return parseRemoteCaption(resp.Body()), nil
}

func parseRemoteCaption(body []byte) string {
	var asObject map[string]any
	if err := json.Unmarshal(body, &asObject); err == nil {
		for _, key := range []string{"caption", "generated_text", "text", "answer"} {
			if s, ok := asObject[key].(string); ok {
				if trimmed := strings.TrimSpace(s); trimmed != "" {
					return trimmed
				}
			}
		}
		return string(body)
	}

	var asList []map[string]any
	if err := json.Unmarshal(body, &asList); err == nil && len(asList) > 0 {
		first := asList[0]
		for _, key := range []string{"generated_text", "text"} {
			if s, ok := first[key].(string); ok {
				if trimmed := strings.TrimSpace(s); trimmed != "" {
					return trimmed
				}
			}
		}
	}

	return strings.TrimSpace(string(body))
}

func (p *RemoteProvider) Detect(ctx context.Context, imageRef, object string) (any, error) {
	return nil, newProviderError("detect", "%w: detect is not supported by the remote provider", ErrNotSupported)
}

func (p *RemoteProvider) Segment(ctx context.Context, imageRef, object string) (any, error) {
	return nil, newProviderError("segment", "%w: segment is not supported by the remote provider", ErrNotSupported)
}

func (p *RemoteProvider) Query(ctx context.Context, imageRef, question string) (string, error) {
	return "", newProviderError("query", "%w: query is not supported by the remote provider", ErrNotSupported)
}

func (p *RemoteProvider) ModelVersion() string {
	return fmt.Sprintf("remote:%s", p.endpointURL)
}
