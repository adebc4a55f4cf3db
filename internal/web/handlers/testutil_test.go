package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/face-finder/internal/bundle"
	"github.com/stretchr/testify/require"
)

// testBundle holds a.jpg (1 face), b.jpg (2 faces) and c.jpg (no faces).
func testBundle(t *testing.T) *bundle.Bundle {
	t.Helper()
	b := bundle.New(t.TempDir())
	require.NoError(t, b.AddImage("/photos/a.jpg", [][]float32{{0, 1, 0}}))
	require.NoError(t, b.AddImage("/photos/b.jpg", [][]float32{{1, 0, 0}, {0, 0, 1}}))
	require.NoError(t, b.AddImage("/photos/c.jpg", nil))
	return b
}

// multipartRequest builds a search request. An empty filename omits the image part.
func multipartRequest(t *testing.T, filename string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		part, err := mw.CreateFormFile("image", filename)
		require.NoError(t, err)
		_, err = part.Write([]byte("image bytes"))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), target), "body: %s", recorder.Body.String())
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	parseJSONResponse(t, recorder, &result)
	require.Equal(t, expectedMessage, result["error"])
}
