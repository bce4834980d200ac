package handler

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type documentView struct {
	ID       uint    `json:"id"`
	Name     string  `json:"name"`
	Status   string  `json:"status"`
	RemoteID *string `json:"remoteId"`
}

func (e *apiEnv) uploadOne(t *testing.T, datasetID uint, name, content string) documentView {
	t.Helper()
	w, resp := e.serve(t, uploadRequest(t, fmt.Sprintf("/api/v1/datasets/%d/documents", datasetID), map[string]string{name: content}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode[documentView](t, resp.Data)
}

func TestDocumentHandler_UploadSingle(t *testing.T) {
	env := newAPIEnv(t, false)
	dsID := env.createDataset(t, "manuals")

	doc := env.uploadOne(t, dsID, "guide.txt", "plug in the router")
	assert.Equal(t, "guide.txt", doc.Name)
	assert.Equal(t, "uploaded", doc.Status)
	require.NotNil(t, doc.RemoteID)
	_, ok := env.fake.Document(*doc.RemoteID)
	assert.True(t, ok)

	w, _ := env.serve(t, uploadRequest(t, fmt.Sprintf("/api/v1/datasets/%d/documents", dsID), map[string]string{"virus.exe": "MZ"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = env.serve(t, uploadRequest(t, "/api/v1/datasets/999/documents", map[string]string{"guide.txt": "text"}))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = env.serve(t, uploadRequest(t, fmt.Sprintf("/api/v1/datasets/%d/documents", dsID), nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDocumentHandler_UploadBatch(t *testing.T) {
	env := newAPIEnv(t, false)
	dsID := env.createDataset(t, "manuals")

	w, resp := env.serve(t, uploadRequest(t, fmt.Sprintf("/api/v1/datasets/%d/documents", dsID), map[string]string{
		"a.txt":     "alpha",
		"b.md":      "# beta",
		"virus.exe": "MZ",
	}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[struct {
		Uploaded []documentView `json:"uploaded"`
		Errors   []struct {
			Item string `json:"item"`
		} `json:"errors"`
	}](t, resp.Data)
	assert.Len(t, res.Uploaded, 2)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "virus.exe", res.Errors[0].Item)
}

func TestDocumentHandler_Lifecycle(t *testing.T) {
	env := newAPIEnv(t, false)
	dsID := env.createDataset(t, "manuals")
	doc := env.uploadOne(t, dsID, "guide.txt", "plug in the router")
	base := fmt.Sprintf("/api/v1/datasets/%d/documents", dsID)
	docPath := fmt.Sprintf("%s/%d", base, doc.ID)

	w, resp := env.do(t, http.MethodPost, base+"/parse", gin.H{"ids": []uint{doc.ID}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, decode[struct {
		Affected int `json:"affected"`
	}](t, resp.Data).Affected)

	w, resp = env.do(t, http.MethodGet, docPath, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "processing", decode[documentView](t, resp.Data).Status)

	env.fake.SetDocumentRun(*doc.RemoteID, "DONE", 1, "")
	w, resp = env.do(t, http.MethodPost, docPath+"/status", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "completed", decode[documentView](t, resp.Data).Status)

	w, resp = env.do(t, http.MethodGet, base+"?status=completed", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode[struct {
		Total int64 `json:"total"`
	}](t, resp.Data).Total)

	w, _ = env.do(t, http.MethodPost, docPath+"/retry", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = env.do(t, http.MethodPost, base+"/parse", gin.H{"ids": []uint{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDocumentHandler_RefreshProcessing(t *testing.T) {
	env := newAPIEnv(t, false)
	dsID := env.createDataset(t, "manuals")
	doc := env.uploadOne(t, dsID, "guide.txt", "plug in the router")
	base := fmt.Sprintf("/api/v1/datasets/%d/documents", dsID)

	w, _ := env.do(t, http.MethodPost, base+"/parse", gin.H{"ids": []uint{doc.ID}})
	require.Equal(t, http.StatusOK, w.Code)
	env.fake.SetDocumentRun(*doc.RemoteID, "DONE", 1, "")

	w, resp := env.do(t, http.MethodPost, base+"/refresh", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[struct {
		Total     int `json:"total"`
		Completed int `json:"completed"`
	}](t, resp.Data)
	assert.Equal(t, 1, res.Total)
	assert.Equal(t, 1, res.Completed)
}

func TestDocumentHandler_DownloadAndPreview(t *testing.T) {
	env := newAPIEnv(t, false)
	dsID := env.createDataset(t, "manuals")
	doc := env.uploadOne(t, dsID, "guide.txt", "plug in the router")
	docPath := fmt.Sprintf("/api/v1/datasets/%d/documents/%d", dsID, doc.ID)

	w, _ := env.do(t, http.MethodGet, docPath+"/download", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "plug in the router", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, w.Header().Get("Content-Disposition"), "guide.txt")

	w, resp := env.do(t, http.MethodGet, docPath+"/download-url", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode[struct {
		URL string `json:"url"`
	}](t, resp.Data).URL, "memory://")

	w, resp = env.do(t, http.MethodGet, docPath+"/preview", nil)
	require.Equal(t, http.StatusOK, w.Code)
	preview := decode[struct {
		Content   string `json:"content"`
		Truncated bool   `json:"truncated"`
	}](t, resp.Data)
	assert.Equal(t, "plug in the router", preview.Content)
	assert.False(t, preview.Truncated)

	w, _ = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/datasets/%d/documents/999/download", dsID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDocumentHandler_BatchDelete(t *testing.T) {
	env := newAPIEnv(t, false)
	dsID := env.createDataset(t, "manuals")
	a := env.uploadOne(t, dsID, "a.txt", "alpha")
	b := env.uploadOne(t, dsID, "b.txt", "beta")
	base := fmt.Sprintf("/api/v1/datasets/%d/documents", dsID)

	w, resp := env.do(t, http.MethodDelete, base, gin.H{"ids": []uint{a.ID, b.ID, 999}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[struct {
		Affected int `json:"affected"`
		Errors   []struct {
			Item string `json:"item"`
		} `json:"errors"`
	}](t, resp.Data)
	assert.Equal(t, 2, res.Affected)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "999", res.Errors[0].Item)

	_, ok := env.fake.Document(*a.RemoteID)
	assert.False(t, ok)
	w, _ = env.do(t, http.MethodGet, fmt.Sprintf("%s/%d", base, a.ID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
