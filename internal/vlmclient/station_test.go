package vlmclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ancill/mediapod/asset-worker/internal/imageprep"
)

func TestStationProviderCaptionSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/caption", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{"caption": "a red chair"})
	}))
	defer srv.Close()

	p := NewStationProvider(srv.URL+"/v1", imageprep.Options{})
	got, err := p.Caption(context.Background(), "data:image/png;base64,AAAA", "normal")
	require.NoError(t, err)
	assert.Equal(t, "a red chair", got)
}

func TestStationProviderCaptionHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	p := NewStationProvider(srv.URL, imageprep.Options{})
	_, err := p.Caption(context.Background(), "data:image/png;base64,AAAA", "normal")
	require.Error(t, err)
}

func TestStationProviderRejectedStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"status": "rejected"})
	}))
	defer srv.Close()

	p := NewStationProvider(srv.URL, imageprep.Options{})
	_, err := p.Caption(context.Background(), "data:image/png;base64,AAAA", "normal")
	require.Error(t, err)
}

func TestStationProviderDetectReturnsRawMap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"objects": []any{}})
	}))
	defer srv.Close()

	p := NewStationProvider(srv.URL, imageprep.Options{})
	data, err := p.Detect(context.Background(), "data:image/png;base64,AAAA", "chair")
	require.NoError(t, err)
	assert.NotNil(t, data)
}

func TestStationProviderModelVersion(t *testing.T) {
	p := NewStationProvider("http://localhost:2020", imageprep.Options{})
	assert.Equal(t, "moondream_station", p.ModelVersion())
}
