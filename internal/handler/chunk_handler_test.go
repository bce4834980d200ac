package handler

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkHandler_CRUD(t *testing.T) {
	env := newAPIEnv(t, false)
	dsID := env.createDataset(t, "manuals")
	doc := env.uploadOne(t, dsID, "guide.txt", "plug in the router")
	chunks := fmt.Sprintf("/api/v1/datasets/%d/documents/%d/chunks", dsID, doc.ID)

	w, resp := env.do(t, http.MethodPost, chunks, gin.H{"content": "reset the router", "importantKeywords": []string{"router"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	added := decode[struct {
		ID      string `json:"id"`
		Content string `json:"content"`
	}](t, resp.Data)
	require.NotEmpty(t, added.ID)

	w, _ = env.do(t, http.MethodPost, chunks, gin.H{"content": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = env.do(t, http.MethodPut, chunks+"/"+added.ID, gin.H{"content": "reset the router twice"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, resp = env.do(t, http.MethodGet, chunks+"?keywords=twice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[struct {
		Total int64 `json:"total"`
		Items []struct {
			Content string `json:"content"`
		} `json:"items"`
	}](t, resp.Data)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "reset the router twice", page.Items[0].Content)

	w, _ = env.do(t, http.MethodDelete, chunks, gin.H{"chunkIds": []string{added.ID}})
	require.Equal(t, http.StatusOK, w.Code)

	w, resp = env.do(t, http.MethodGet, chunks, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, decode[struct {
		Total int64 `json:"total"`
	}](t, resp.Data).Total)
}

func TestChunkHandler_RetrievalAndSearch(t *testing.T) {
	env := newAPIEnv(t, false)
	dsID := env.createDataset(t, "manuals")

	w, _ := env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/datasets/%d/retrieval", dsID), gin.H{"question": "how to reset"})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, _ = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/datasets/%d/retrieval", dsID), gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/datasets/%d/chunks/search?q=router", dsID), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/datasets/%d/chunks/search", dsID), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
