// Package embedding computes a text embedding for an asset's caption by
// calling an external embedding sidecar over HTTP. Embedding is treated
// as an optional enrichment: any failure (sidecar unset, unreachable,
// malformed response) degrades to "no embedding" rather than failing
// the enclosing job.
package embedding

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// Result is a successfully computed embedding ready for storage.
type Result struct {
	Model string
	Dim   int
	Blob  []byte // little-endian float32s, L2-normalized
}

type textRequest struct {
	Text  string `json:"text"`
	Model string `json:"model,omitempty"`
}

type textResponse struct {
	Vector []float32 `json:"vector"`
}

// Client is a process-wide, lazily-configured embedding sidecar client.
// A zero-value Client with an empty URL is a permanently-disabled client,
// and the first transport failure against a configured sidecar disables
// the client for the rest of the process (logged once) rather than
// hammering a missing service on every job.
type Client struct {
	url      string
	model    string
	client   *resty.Client
	disabled atomic.Bool
}

func New(url, model string) *Client {
	if url == "" {
		return &Client{}
	}
	return &Client{
		url:    url,
		model:  model,
		client: resty.New().SetTimeout(30 * time.Second),
	}
}

// Enabled reports whether this client was configured with a sidecar URL
// and has not been disabled by an earlier transport failure.
func (c *Client) Enabled() bool {
	return c.client != nil && !c.disabled.Load()
}

// Embed computes the embedding for text, or returns (nil, nil) if the
// client is disabled or the sidecar call fails — callers should treat a
// nil result as "skip this enrichment", not an error.
func (c *Client) Embed(ctx context.Context, text string) (*Result, error) {
	if !c.Enabled() {
		return nil, nil
	}

	// The body is decoded by hand rather than via SetResult so a
	// malformed response from a healthy sidecar stays a per-call soft
	// failure; only a connection-level error disables the client.
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(textRequest{Text: text, Model: c.model}).
		Post(c.url)
	if err != nil {
		if c.disabled.CompareAndSwap(false, true) {
			log.Warn().Err(err).Msg("embedding sidecar unreachable; embeddings disabled for this process")
		}
		return nil, nil
	}
	if resp.StatusCode() >= 400 {
		log.Warn().Int("status", resp.StatusCode()).Msg("embedding sidecar returned an error, continuing without vector")
		return nil, nil
	}

	var out textResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		log.Warn().Err(err).Msg("embedding sidecar returned a malformed body, continuing without vector")
		return nil, nil
	}
	if len(out.Vector) == 0 {
		return nil, nil
	}
	if err := validateVector(out.Vector); err != nil {
		log.Warn().Err(err).Msg("embedding sidecar returned an invalid vector, continuing without vector")
		return nil, nil
	}

	normalized := l2Normalize(out.Vector)
	return &Result{
		Model: c.model,
		Dim:   len(normalized),
		Blob:  floatsToLittleEndianBlob(normalized),
	}, nil
}

func validateVector(v []float32) error {
	for i, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("embedding: component %d is NaN/Inf", i)
		}
	}
	return nil
}

func l2Normalize(v []float32) []float32 {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSquares)
	if norm == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func floatsToLittleEndianBlob(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}
