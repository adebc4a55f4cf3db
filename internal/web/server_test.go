package web

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/face-finder/internal/bundle"
	"github.com/kozaktomas/face-finder/internal/config"
	"github.com/kozaktomas/face-finder/internal/embedding/mock"
	"github.com/kozaktomas/face-finder/internal/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServer(t *testing.T) (*Server, *mock.Provider) {
	t.Helper()
	b := bundle.New(t.TempDir())
	require.NoError(t, b.AddImage("/photos/a.jpg", [][]float32{{1, 0}}))
	require.NoError(t, b.AddImage("/photos/b.jpg", [][]float32{{0, 1}}))

	provider := mock.NewProvider()
	return NewServer(config.Defaults(), search.NewSearcher(provider), b, nil), provider
}

func TestServer_Routes(t *testing.T) {
	srv, _ := testServer(t)

	tests := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/api/v1/health", http.StatusOK},
		{http.MethodGet, "/api/v1/stats", http.StatusOK},
		{http.MethodGet, "/api/v1/search", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/v1/unknown", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			srv.Router().ServeHTTP(recorder, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.status, recorder.Code)
		})
	}
}

func TestServer_Search(t *testing.T) {
	srv, provider := testServer(t)
	provider.SetFaces("me.png", []float32{1, 0})

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("threshold", "0.9"))
	part, err := mw.CreateFormFile("image", "me.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("png"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	recorder := httptest.NewRecorder()
	srv.Router().ServeHTTP(recorder, req)

	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())
	var resp struct {
		Count   int            `json:"count"`
		Matches []search.Match `json:"matches"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "/photos/a.jpg", resp.Matches[0].SourcePath)
	assert.InDelta(t, 1.0, resp.Matches[0].Score, 1e-6)
}
