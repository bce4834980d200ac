package tika

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragflow-bridge/internal/config"
)

func TestExtractText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/tika", r.URL.Path)
		assert.Equal(t, "application/pdf", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "%PDF-raw", string(body))
		io.WriteString(w, "extracted text")
	}))
	defer srv.Close()

	c := NewClient(config.TikaConfig{ServerURL: srv.URL + "/"})
	text, err := c.ExtractText(context.Background(), strings.NewReader("%PDF-raw"), "a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "extracted text", text)
}

func TestExtractText_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unsupported", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	_, err := NewClient(config.TikaConfig{ServerURL: srv.URL}).ExtractText(context.Background(), strings.NewReader("x"), "x.bin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
}

func TestDetectMimeType(t *testing.T) {
	assert.Equal(t, "application/octet-stream", detectMimeType("README"))
	assert.Equal(t, "application/pdf", detectMimeType("a.pdf"))
}
