package embedding

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientDisabledWhenNoURL(t *testing.T) {
	c := New("", "all-MiniLM-L6-v2")
	assert.False(t, c.Enabled())

	got, err := c.Embed(context.Background(), "a red chair")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestEmbedNormalizesAndPacksVector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"vector": []float32{3, 4}})
	}))
	defer srv.Close()

	c := New(srv.URL, "all-MiniLM-L6-v2")
	got, err := c.Embed(context.Background(), "a red chair")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2, got.Dim)
	require.Len(t, got.Blob, 8)

	x := math.Float32frombits(binary.LittleEndian.Uint32(got.Blob[0:4]))
	y := math.Float32frombits(binary.LittleEndian.Uint32(got.Blob[4:8]))
	assert.InDelta(t, 0.6, x, 1e-6)
	assert.InDelta(t, 0.8, y, 1e-6)
}

func TestEmbedDegradesOnSidecarError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, "all-MiniLM-L6-v2")
	got, err := c.Embed(context.Background(), "a red chair")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestEmbedTransportFailureDisablesClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := New(url, "all-MiniLM-L6-v2")
	require.True(t, c.Enabled())

	got, err := c.Embed(context.Background(), "a red chair")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.False(t, c.Enabled())

	got, err = c.Embed(context.Background(), "a red chair")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestEmbedMalformedBodyDoesNotDisable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"vector": [0.1, truncated`))
	}))
	defer srv.Close()

	c := New(srv.URL, "all-MiniLM-L6-v2")
	got, err := c.Embed(context.Background(), "a red chair")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.True(t, c.Enabled())
}

func TestValidateVectorRejectsNaNAndInf(t *testing.T) {
	assert.NoError(t, validateVector([]float32{0.1, -0.2}))
	assert.Error(t, validateVector([]float32{float32(math.NaN()), 1.0}))
	assert.Error(t, validateVector([]float32{float32(math.Inf(1))}))
	assert.Error(t, validateVector([]float32{float32(math.Inf(-1)), 0.5}))
}
