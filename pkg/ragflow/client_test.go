package ragflow_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragflow-bridge/internal/config"
	"ragflow-bridge/pkg/ragflow"
	"ragflow-bridge/pkg/ragflow/ragflowtest"
)

func TestClient_SendsBearerToken(t *testing.T) {
	srv := ragflowtest.NewServer()
	defer srv.Close()
	srv.APIKey = "secret-key"

	ctx := context.Background()
	require.NoError(t, srv.Client().Ping(ctx))

	bad := ragflow.NewClient(config.RAGFlowConfig{BaseURL: srv.URL, APIKey: "wrong"})
	err := bad.Ping(ctx)
	require.Error(t, err)

	var apiErr *ragflow.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 109, apiErr.Code)
	assert.False(t, apiErr.NotFound())
}

func TestClient_NonJSONErrorBody(t *testing.T) {
	srv := ragflowtest.NewServer()
	defer srv.Close()
	srv.SetUnavailable(true)

	err := srv.Client().Ping(context.Background())
	var apiErr *ragflow.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.HTTPStatus)
	assert.Contains(t, apiErr.Message, "service unavailable")
}

func TestClient_DatasetLifecycle(t *testing.T) {
	srv := ragflowtest.NewServer()
	defer srv.Close()
	c := srv.Client()
	ctx := context.Background()

	ds, err := c.CreateDataset(ctx, ragflow.DatasetRequest{Name: "manuals", ChunkMethod: "book"})
	require.NoError(t, err)
	assert.NotEmpty(t, ds.ID)
	assert.Equal(t, "book", ds.ChunkMethod)

	_, err = c.CreateDataset(ctx, ragflow.DatasetRequest{Name: "manuals"})
	assert.Error(t, err)

	require.NoError(t, c.UpdateDataset(ctx, ds.ID, ragflow.DatasetRequest{Description: "v2"}))
	list, err := c.ListDatasets(ctx, ragflow.ListDatasetsParams{ID: ds.ID})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "v2", list[0].Description)

	require.NoError(t, c.DeleteDatasets(ctx, []string{ds.ID}))
	_, err = c.ListDatasets(ctx, ragflow.ListDatasetsParams{ID: ds.ID})
	assert.True(t, ragflow.IsNotFound(err))
}

func TestClient_DocumentUploadParseAndDownload(t *testing.T) {
	srv := ragflowtest.NewServer()
	defer srv.Close()
	c := srv.Client()
	ctx := context.Background()
	dsID := srv.AddDataset("docs")

	docs, err := c.UploadDocuments(ctx, dsID,
		ragflow.UploadFile{Name: "a.txt", Reader: strings.NewReader("alpha")},
		ragflow.UploadFile{Name: "b.md", Reader: strings.NewReader("# beta")},
	)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a.txt", docs[0].Name)
	assert.Equal(t, int64(5), docs[0].Size)

	require.NoError(t, c.ParseDocuments(ctx, dsID, []string{docs[0].ID}))
	got, err := c.GetDocument(ctx, dsID, docs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, ragflow.FlexString("RUNNING"), got.Run)

	srv.SetDocumentRun(docs[0].ID, "3", 1, "done")
	got, err = c.GetDocument(ctx, dsID, docs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, ragflow.FlexString("3"), got.Run)

	rc, err := c.DownloadDocument(ctx, dsID, docs[1].ID)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "# beta", string(data))

	require.NoError(t, c.DeleteDocuments(ctx, dsID, []string{docs[1].ID}))
	_, err = c.GetDocument(ctx, dsID, docs[1].ID)
	assert.True(t, ragflow.IsNotFound(err))
}

func TestClient_StopParsingRequiresRunning(t *testing.T) {
	srv := ragflowtest.NewServer()
	defer srv.Close()
	c := srv.Client()
	ctx := context.Background()
	dsID := srv.AddDataset("docs")
	docID := srv.AddDocument(dsID, "a.txt", []byte("alpha"))

	assert.Error(t, c.StopParsing(ctx, dsID, []string{docID}))
	require.NoError(t, c.ParseDocuments(ctx, dsID, []string{docID}))
	require.NoError(t, c.StopParsing(ctx, dsID, []string{docID}))

	doc, _ := srv.Document(docID)
	assert.Equal(t, ragflow.FlexString("CANCEL"), doc.Run)
}

func TestClient_ChunksAndRetrieval(t *testing.T) {
	srv := ragflowtest.NewServer()
	defer srv.Close()
	c := srv.Client()
	ctx := context.Background()
	dsID := srv.AddDataset("kb")
	docID := srv.AddDocument(dsID, "go.txt", []byte("go"))

	ch, err := c.AddChunk(ctx, dsID, docID, ragflow.ChunkRequest{Content: "goroutines are cheap", ImportantKeywords: []string{"go"}})
	require.NoError(t, err)
	assert.Equal(t, docID, ch.DocumentID)

	off := false
	require.NoError(t, c.UpdateChunk(ctx, dsID, docID, ch.ID, ragflow.ChunkRequest{Available: &off}))
	list, err := c.ListChunks(ctx, dsID, docID, ragflow.ListChunksParams{})
	require.NoError(t, err)
	require.Equal(t, 1, list.Total)
	require.NotNil(t, list.Chunks[0].Available)
	assert.False(t, *list.Chunks[0].Available)

	res, err := c.Retrieve(ctx, ragflow.RetrievalRequest{Question: "goroutines", DatasetIDs: []string{dsID}})
	require.NoError(t, err)
	require.Len(t, res.Chunks, 1)
	assert.Equal(t, dsID, res.Chunks[0].DatasetID)
	assert.InDelta(t, 1.0, res.Chunks[0].Similarity, 0.001)

	require.NoError(t, c.DeleteChunks(ctx, dsID, docID, []string{ch.ID}))
	list, err = c.ListChunks(ctx, dsID, docID, ragflow.ListChunksParams{})
	require.NoError(t, err)
	assert.Zero(t, list.Total)
}

func TestClient_ChatSessionsAndCompletion(t *testing.T) {
	srv := ragflowtest.NewServer()
	defer srv.Close()
	srv.Answer = "Hello there friend"
	c := srv.Client()
	ctx := context.Background()
	dsID := srv.AddDataset("kb")

	chat, err := c.CreateChat(ctx, ragflow.ChatRequest{Name: "helper", DatasetIDs: []string{dsID}, LLM: map[string]interface{}{"temperature": 0.2}})
	require.NoError(t, err)
	assert.Equal(t, []string{dsID}, chat.RemoteDatasetIDs())

	sess, err := c.CreateSession(ctx, chat.ID, "first", "")
	require.NoError(t, err)
	require.NoError(t, c.UpdateSession(ctx, chat.ID, sess.ID, "renamed"))
	sessions, err := c.ListSessions(ctx, chat.ID, ragflow.ListParams{})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "renamed", sessions[0].Name)

	out, err := c.Converse(ctx, chat.ID, ragflow.CompletionRequest{Question: "hi", SessionID: sess.ID})
	require.NoError(t, err)
	assert.Equal(t, "Hello there friend", out.Answer)
	assert.Equal(t, 1, out.Reference.Total)

	var answers []string
	last, err := c.StreamConverse(ctx, chat.ID, ragflow.CompletionRequest{Question: "hi", SessionID: sess.ID}, func(part ragflow.Completion) error {
		answers = append(answers, part.Answer)
		return nil
	})
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, []string{"Hello", "Hello there", "Hello there friend", "Hello there friend"}, answers)
	assert.Equal(t, sess.ID, last.SessionID)
	assert.Len(t, last.Reference.Chunks, 1)

	require.NoError(t, c.DeleteSessions(ctx, chat.ID, []string{sess.ID}))
	require.NoError(t, c.DeleteChats(ctx, []string{chat.ID}))
	assert.False(t, srv.HasChat(chat.ID))
}

func TestClient_StreamConverseStopsOnCallbackError(t *testing.T) {
	srv := ragflowtest.NewServer()
	defer srv.Close()
	srv.Answer = "one two three"
	c := srv.Client()
	ctx := context.Background()
	chat, err := c.CreateChat(ctx, ragflow.ChatRequest{Name: "helper"})
	require.NoError(t, err)

	stop := io.ErrClosedPipe
	calls := 0
	_, err = c.StreamConverse(ctx, chat.ID, ragflow.CompletionRequest{Question: "q"}, func(ragflow.Completion) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestClient_StreamConverseSurfacesInStreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"code\":0,\"data\":{\"answer\":\"par\"}}\n\n")
		io.WriteString(w, "data: {\"code\":500,\"message\":\"LLM error\"}\n\n")
	}))
	defer server.Close()

	c := ragflow.NewClient(config.RAGFlowConfig{BaseURL: server.URL})
	last, err := c.StreamConverse(context.Background(), "chat", ragflow.CompletionRequest{Question: "q"}, func(ragflow.Completion) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LLM error")
	require.NotNil(t, last)
	assert.Equal(t, "par", last.Answer)
}

func TestClient_KnowledgeGraphAcceptsLinks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/datasets/ds1/knowledge_graph", r.URL.Path)
		if r.Method == http.MethodDelete {
			io.WriteString(w, `{"code":0,"data":true}`)
			return
		}
		io.WriteString(w, `{"code":0,"data":{"graph":{"nodes":[{"id":"Go","entity_type":"LANGUAGE","pagerank":0.5}],"links":[{"source":"Go","target":"Google","weight":2}]},"mind_map":{}}}`)
	}))
	defer server.Close()

	c := ragflow.NewClient(config.RAGFlowConfig{BaseURL: server.URL + "/"})
	kg, err := c.GetKnowledgeGraph(context.Background(), "ds1")
	require.NoError(t, err)
	require.Len(t, kg.Graph.Nodes, 1)
	assert.Equal(t, "Go", kg.Graph.Nodes[0].Name())
	require.Len(t, kg.Graph.Edges, 1)
	assert.Equal(t, "Google", kg.Graph.Edges[0].Target)
	require.NoError(t, c.DeleteKnowledgeGraph(context.Background(), "ds1"))
}

func TestFlexStringAndReference(t *testing.T) {
	var doc ragflow.Document
	require.NoError(t, json.Unmarshal([]byte(`{"run":3,"status":"1"}`), &doc))
	assert.Equal(t, ragflow.FlexString("3"), doc.Run)
	assert.Equal(t, ragflow.FlexString("1"), doc.Status)

	var out ragflow.Completion
	require.NoError(t, json.NewDecoder(bytes.NewReader([]byte(`{"answer":"a","reference":[]}`))).Decode(&out))
	assert.Zero(t, out.Reference.Total)
}

func TestAPIError_NotFoundHints(t *testing.T) {
	cases := map[string]bool{
		"You don't own the dataset x":    true,
		"Can't find the dataset with ID": true,
		"The chat doesn't exist":         true,
		"`name` is required.":            false,
		"Authentication error: API key…": false,
	}
	for msg, want := range cases {
		err := &ragflow.APIError{HTTPStatus: 200, Code: 102, Message: msg}
		assert.Equal(t, want, err.NotFound(), msg)
	}
	assert.True(t, (&ragflow.APIError{HTTPStatus: http.StatusNotFound}).NotFound())
}
