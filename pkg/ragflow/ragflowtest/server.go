// Package ragflowtest 提供一个基于内存的 RAGFlow API 假实现，用于单元测试。
package ragflowtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"ragflow-bridge/internal/config"
	"ragflow-bridge/pkg/ragflow"
)

const (
	codeArgumentError = 101
	codeDataError     = 102
	codeAuthError     = 109
)

type failure struct {
	method  string
	path    string
	message string
}

// Server 是一个假的 RAGFlow 服务。所有导出方法均可并发调用。
type Server struct {
	*httptest.Server

	// APIKey 非空时校验 Bearer 令牌。
	APIKey string
	// ParseRun 是触发解析后文档进入的 run 状态，默认为 RUNNING。
	ParseRun string
	// Answer 是聊天补全返回的回答。
	Answer string

	unavailable atomic.Bool

	mu       sync.Mutex
	seq      int
	datasets map[string]*ragflow.Dataset
	docs     map[string]*ragflow.Document
	content  map[string][]byte
	chunks   map[string][]ragflow.Chunk
	chats    map[string]*ragflow.Chat
	sessions map[string]*ragflow.Session
	graphs   map[string]*ragflow.KnowledgeGraph
	failures []failure
	calls    map[string]int
}

// NewServer 启动一个假 RAGFlow 服务，调用方负责 Close。
func NewServer() *Server {
	gin.SetMode(gin.TestMode)
	s := &Server{
		ParseRun: "RUNNING",
		Answer:   "This is a fake answer",
		datasets: make(map[string]*ragflow.Dataset),
		docs:     make(map[string]*ragflow.Document),
		content:  make(map[string][]byte),
		chunks:   make(map[string][]ragflow.Chunk),
		chats:    make(map[string]*ragflow.Chat),
		sessions: make(map[string]*ragflow.Session),
		graphs:   make(map[string]*ragflow.KnowledgeGraph),
		calls:    make(map[string]int),
	}
	s.Server = httptest.NewServer(s.routes())
	return s
}

// Config 返回指向该服务的客户端配置。
func (s *Server) Config() config.RAGFlowConfig {
	return config.RAGFlowConfig{BaseURL: s.URL, APIKey: s.APIKey, Timeout: 5 * time.Second}
}

// Client 返回指向该服务的客户端。
func (s *Server) Client() *ragflow.Client {
	return ragflow.NewClient(s.Config())
}

// SetUnavailable 让所有请求返回 503。
func (s *Server) SetUnavailable(down bool) {
	s.unavailable.Store(down)
}

// FailOn 让方法与路径片段匹配的请求返回业务错误。
func (s *Server) FailOn(method, pathContains, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, failure{method: method, path: pathContains, message: message})
}

// ClearFailures 清除 FailOn 注册的全部错误。
func (s *Server) ClearFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = nil
}

// Calls 返回形如 "POST /api/v1/datasets/:id/chunks" 的路由被调用的次数。
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// AddDataset 直接在远端创建一个数据集并返回其 ID。
func (s *Server) AddDataset(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addDatasetLocked(ragflow.DatasetRequest{Name: name}).ID
}

// AddDocument 直接在远端数据集中创建文档并返回其 ID。
func (s *Server) AddDocument(datasetID, name string, content []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addDocumentLocked(datasetID, name, content).ID
}

// Document 返回远端文档的副本。
func (s *Server) Document(id string) (ragflow.Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok {
		return ragflow.Document{}, false
	}
	return *d, true
}

// HasDataset 报告远端是否存在该数据集。
func (s *Server) HasDataset(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.datasets[id]
	return ok
}

// HasChat 报告远端是否存在该聊天助手。
func (s *Server) HasChat(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.chats[id]
	return ok
}

// HasSession 报告远端是否存在该会话。
func (s *Server) HasSession(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	return ok
}

// SetDocumentRun 修改远端文档的解析状态，run 可以是名称或数字编码。
func (s *Server) SetDocumentRun(id, run string, progress float64, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.docs[id]; ok {
		d.Run = ragflow.FlexString(run)
		d.Progress = progress
		d.ProgressMsg = msg
	}
}

// AddChunk 直接向远端文档写入一个分块。
func (s *Server) AddChunk(documentID, content string, keywords ...string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[documentID]
	if !ok {
		return ""
	}
	ch := s.newChunkLocked(d, ragflow.ChunkRequest{Content: content, ImportantKeywords: keywords})
	return ch.ID
}

// SetKnowledgeGraph 设置数据集的知识图谱。
func (s *Server) SetKnowledgeGraph(datasetID string, kg ragflow.KnowledgeGraph) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.graphs[datasetID] = &kg
}

func (s *Server) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s%04d", prefix, s.seq)
}

func reply(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"code": 0, "data": data})
}

func fail(c *gin.Context, code int, msg string) {
	c.JSON(http.StatusOK, gin.H{"code": code, "message": msg})
}

func (s *Server) routes() http.Handler {
	r := gin.New()
	r.Use(s.intercept)

	api := r.Group("/api/v1")
	api.POST("/datasets", s.createDataset)
	api.GET("/datasets", s.listDatasets)
	api.PUT("/datasets/:id", s.updateDataset)
	api.DELETE("/datasets", s.deleteDatasets)

	api.POST("/datasets/:id/documents", s.uploadDocuments)
	api.GET("/datasets/:id/documents", s.listDocuments)
	api.PUT("/datasets/:id/documents/:docId", s.updateDocument)
	api.GET("/datasets/:id/documents/:docId", s.downloadDocument)
	api.DELETE("/datasets/:id/documents", s.deleteDocuments)

	api.POST("/datasets/:id/chunks", s.parseDocuments)
	api.DELETE("/datasets/:id/chunks", s.stopParsing)
	api.POST("/datasets/:id/documents/:docId/chunks", s.addChunk)
	api.GET("/datasets/:id/documents/:docId/chunks", s.listChunks)
	api.PUT("/datasets/:id/documents/:docId/chunks/:chunkId", s.updateChunk)
	api.DELETE("/datasets/:id/documents/:docId/chunks", s.deleteChunks)
	api.POST("/retrieval", s.retrieve)

	api.GET("/datasets/:id/knowledge_graph", s.getKnowledgeGraph)
	api.DELETE("/datasets/:id/knowledge_graph", s.deleteKnowledgeGraph)

	api.POST("/chats", s.createChat)
	api.GET("/chats", s.listChats)
	api.PUT("/chats/:id", s.updateChat)
	api.DELETE("/chats", s.deleteChats)
	api.POST("/chats/:id/sessions", s.createSession)
	api.GET("/chats/:id/sessions", s.listSessions)
	api.PUT("/chats/:id/sessions/:sid", s.updateSession)
	api.DELETE("/chats/:id/sessions", s.deleteSessions)
	api.POST("/chats/:id/completions", s.completions)
	return r
}

func (s *Server) intercept(c *gin.Context) {
	if s.unavailable.Load() {
		c.String(http.StatusServiceUnavailable, "service unavailable")
		c.Abort()
		return
	}
	if s.APIKey != "" && c.GetHeader("Authorization") != "Bearer "+s.APIKey {
		fail(c, codeAuthError, "Authentication error: API key is invalid!")
		c.Abort()
		return
	}
	s.mu.Lock()
	s.calls[c.Request.Method+" "+c.FullPath()]++
	var injected *failure
	for i := range s.failures {
		f := s.failures[i]
		if f.method == c.Request.Method && strings.Contains(c.Request.URL.Path, f.path) {
			injected = &f
			break
		}
	}
	s.mu.Unlock()
	if injected != nil {
		fail(c, codeDataError, injected.message)
		c.Abort()
		return
	}
	c.Next()
}

func bindIDs(c *gin.Context, field string) []string {
	var body map[string][]string
	_ = c.ShouldBindJSON(&body)
	return body[field]
}

func page(c *gin.Context, n int) (int, int) {
	p, size := 1, 30
	fmt.Sscan(c.DefaultQuery("page", "1"), &p)
	fmt.Sscan(c.DefaultQuery("page_size", "30"), &size)
	if p < 1 {
		p = 1
	}
	start := (p - 1) * size
	if start > n {
		start = n
	}
	end := start + size
	if end > n {
		end = n
	}
	return start, end
}

func sortByID[T any](items []T, key func(T) string) {
	sort.Slice(items, func(i, j int) bool { return key(items[i]) < key(items[j]) })
}

// ---------- datasets ----------

func (s *Server) addDatasetLocked(req ragflow.DatasetRequest) *ragflow.Dataset {
	ds := &ragflow.Dataset{
		ID:             s.nextID("ds"),
		Name:           req.Name,
		Description:    req.Description,
		Avatar:         req.Avatar,
		EmbeddingModel: req.EmbeddingModel,
		ChunkMethod:    req.ChunkMethod,
		Permission:     req.Permission,
		Language:       "English",
		CreateTime:     time.Now().UnixMilli(),
	}
	if ds.ChunkMethod == "" {
		ds.ChunkMethod = "naive"
	}
	if ds.Permission == "" {
		ds.Permission = "me"
	}
	if ds.EmbeddingModel == "" {
		ds.EmbeddingModel = "BAAI/bge-large-zh-v1.5"
	}
	s.datasets[ds.ID] = ds
	return ds
}

func (s *Server) createDataset(c *gin.Context) {
	var req ragflow.DatasetRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		fail(c, codeArgumentError, "`name` is required.")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ds := range s.datasets {
		if strings.EqualFold(ds.Name, req.Name) {
			fail(c, codeDataError, fmt.Sprintf("Dataset name '%s' already exists", req.Name))
			return
		}
	}
	reply(c, s.addDatasetLocked(req))
}

func (s *Server) listDatasets(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, name := c.Query("id"), c.Query("name")
	out := make([]ragflow.Dataset, 0, len(s.datasets))
	for _, ds := range s.datasets {
		if (id != "" && ds.ID != id) || (name != "" && ds.Name != name) {
			continue
		}
		cp := *ds
		cp.DocumentCount, cp.ChunkCount = s.countsLocked(ds.ID)
		out = append(out, cp)
	}
	if id != "" && len(out) == 0 {
		fail(c, codeDataError, fmt.Sprintf("You don't own the dataset %s", id))
		return
	}
	sortByID(out, func(d ragflow.Dataset) string { return d.ID })
	start, end := page(c, len(out))
	reply(c, out[start:end])
}

func (s *Server) countsLocked(datasetID string) (docs, chunks int) {
	for _, d := range s.docs {
		if d.DatasetID == datasetID {
			docs++
			chunks += len(s.chunks[d.ID])
		}
	}
	return docs, chunks
}

func (s *Server) updateDataset(c *gin.Context) {
	var req ragflow.DatasetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, codeArgumentError, err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ds, found := s.datasets[c.Param("id")]
	if !found {
		fail(c, codeDataError, "You don't own the dataset.")
		return
	}
	if req.Name != "" {
		ds.Name = req.Name
	}
	if req.Description != "" {
		ds.Description = req.Description
	}
	if req.Avatar != "" {
		ds.Avatar = req.Avatar
	}
	if req.ChunkMethod != "" {
		ds.ChunkMethod = req.ChunkMethod
	}
	if req.Permission != "" {
		ds.Permission = req.Permission
	}
	if req.EmbeddingModel != "" {
		ds.EmbeddingModel = req.EmbeddingModel
	}
	reply(c, nil)
}

func (s *Server) deleteDatasets(c *gin.Context) {
	ids := bindIDs(c, "ids")
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if _, found := s.datasets[id]; !found {
			fail(c, codeDataError, fmt.Sprintf("You don't own the dataset %s", id))
			return
		}
	}
	for _, id := range ids {
		delete(s.datasets, id)
		delete(s.graphs, id)
		for docID, d := range s.docs {
			if d.DatasetID == id {
				s.removeDocumentLocked(docID)
			}
		}
	}
	reply(c, nil)
}

// ---------- documents ----------

func (s *Server) addDocumentLocked(datasetID, name string, content []byte) *ragflow.Document {
	ds := s.datasets[datasetID]
	method := "naive"
	if ds != nil {
		method = ds.ChunkMethod
	}
	d := &ragflow.Document{
		ID:          s.nextID("doc"),
		Name:        name,
		DatasetID:   datasetID,
		ChunkMethod: method,
		Size:        int64(len(content)),
		Type:        strings.TrimPrefix(filepath.Ext(name), "."),
		Run:         "UNSTART",
		Status:      "1",
		Location:    name,
		CreateTime:  time.Now().UnixMilli(),
	}
	s.docs[d.ID] = d
	s.content[d.ID] = content
	return d
}

func (s *Server) removeDocumentLocked(id string) {
	delete(s.docs, id)
	delete(s.content, id)
	delete(s.chunks, id)
}

func (s *Server) docInDataset(c *gin.Context, docID string) (*ragflow.Document, bool) {
	d, found := s.docs[docID]
	if !found || d.DatasetID != c.Param("id") {
		fail(c, codeDataError, fmt.Sprintf("You don't own the document %s.", docID))
		return nil, false
	}
	return d, true
}

func (s *Server) uploadDocuments(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil || len(form.File["file"]) == 0 {
		fail(c, codeArgumentError, "No file part!")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, found := s.datasets[c.Param("id")]; !found {
		fail(c, codeDataError, "Can't find the dataset with ID "+c.Param("id")+"!")
		return
	}
	out := make([]ragflow.Document, 0, len(form.File["file"]))
	for _, fh := range form.File["file"] {
		f, err := fh.Open()
		if err != nil {
			fail(c, codeArgumentError, err.Error())
			return
		}
		data, _ := io.ReadAll(f)
		f.Close()
		out = append(out, *s.addDocumentLocked(c.Param("id"), fh.Filename, data))
	}
	reply(c, out)
}

func (s *Server) listDocuments(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, found := s.datasets[c.Param("id")]; !found {
		fail(c, codeDataError, "You don't own the dataset "+c.Param("id")+". ")
		return
	}
	id, name, kw := c.Query("id"), c.Query("name"), strings.ToLower(c.Query("keywords"))
	out := make([]ragflow.Document, 0)
	for _, d := range s.docs {
		if d.DatasetID != c.Param("id") {
			continue
		}
		if (id != "" && d.ID != id) || (name != "" && d.Name != name) {
			continue
		}
		if kw != "" && !strings.Contains(strings.ToLower(d.Name), kw) {
			continue
		}
		cp := *d
		cp.ChunkCount = len(s.chunks[d.ID])
		out = append(out, cp)
	}
	if id != "" && len(out) == 0 {
		fail(c, codeDataError, fmt.Sprintf("You don't own the document %s.", id))
		return
	}
	sortByID(out, func(d ragflow.Document) string { return d.ID })
	total := len(out)
	start, end := page(c, total)
	reply(c, gin.H{"docs": out[start:end], "total": total})
}

func (s *Server) updateDocument(c *gin.Context) {
	var req ragflow.UpdateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, codeArgumentError, err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d, found := s.docInDataset(c, c.Param("docId"))
	if !found {
		return
	}
	if req.Name != "" {
		d.Name = req.Name
	}
	if req.ChunkMethod != "" {
		d.ChunkMethod = req.ChunkMethod
	}
	reply(c, nil)
}

func (s *Server) downloadDocument(c *gin.Context) {
	s.mu.Lock()
	d, found := s.docInDataset(c, c.Param("docId"))
	var data []byte
	if found {
		data = s.content[d.ID]
	}
	s.mu.Unlock()
	if !found {
		return
	}
	c.Data(http.StatusOK, "application/octet-stream", data)
}

func (s *Server) deleteDocuments(c *gin.Context) {
	ids := bindIDs(c, "ids")
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if _, found := s.docInDataset(c, id); !found {
			return
		}
	}
	for _, id := range ids {
		s.removeDocumentLocked(id)
	}
	reply(c, nil)
}

func (s *Server) parseDocuments(c *gin.Context) {
	ids := bindIDs(c, "document_ids")
	if len(ids) == 0 {
		fail(c, codeArgumentError, "`document_ids` is required")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if _, found := s.docInDataset(c, id); !found {
			return
		}
	}
	for _, id := range ids {
		d := s.docs[id]
		d.Run = ragflow.FlexString(s.ParseRun)
		d.Progress = 0
		d.ProgressMsg = ""
		if strings.EqualFold(s.ParseRun, "DONE") || s.ParseRun == "3" {
			d.Progress = 1
			if len(s.chunks[id]) == 0 {
				s.newChunkLocked(d, ragflow.ChunkRequest{Content: string(s.content[id])})
			}
		}
	}
	reply(c, nil)
}

func (s *Server) stopParsing(c *gin.Context) {
	ids := bindIDs(c, "document_ids")
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		d, found := s.docInDataset(c, id)
		if !found {
			return
		}
		if string(d.Run) != "RUNNING" && string(d.Run) != "1" {
			fail(c, codeDataError, "Can't stop parsing document with progress at 0 or 1")
			return
		}
	}
	for _, id := range ids {
		s.docs[id].Run = "CANCEL"
	}
	reply(c, nil)
}

// ---------- chunks ----------

func (s *Server) newChunkLocked(d *ragflow.Document, req ragflow.ChunkRequest) ragflow.Chunk {
	available := true
	if req.Available != nil {
		available = *req.Available
	}
	keywords := req.ImportantKeywords
	if keywords == nil {
		keywords = []string{}
	}
	ch := ragflow.Chunk{
		ID:                s.nextID("chunk"),
		Content:           req.Content,
		DocumentID:        d.ID,
		DatasetID:         d.DatasetID,
		DocumentName:      d.Name,
		ImportantKeywords: keywords,
		Questions:         req.Questions,
		Available:         &available,
	}
	s.chunks[d.ID] = append(s.chunks[d.ID], ch)
	return ch
}

func (s *Server) addChunk(c *gin.Context) {
	var req ragflow.ChunkRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Content) == "" {
		fail(c, codeArgumentError, "`content` is required")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d, found := s.docInDataset(c, c.Param("docId"))
	if !found {
		return
	}
	reply(c, gin.H{"chunk": s.newChunkLocked(d, req)})
}

func (s *Server) listChunks(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, found := s.docInDataset(c, c.Param("docId"))
	if !found {
		return
	}
	id, kw := c.Query("id"), strings.ToLower(c.Query("keywords"))
	out := make([]ragflow.Chunk, 0)
	for _, ch := range s.chunks[d.ID] {
		if id != "" && ch.ID != id {
			continue
		}
		if kw != "" && !strings.Contains(strings.ToLower(ch.Content), kw) {
			continue
		}
		out = append(out, ch)
	}
	total := len(out)
	start, end := page(c, total)
	doc := *d
	doc.ChunkCount = len(s.chunks[d.ID])
	reply(c, gin.H{"chunks": out[start:end], "doc": doc, "total": total})
}

func (s *Server) updateChunk(c *gin.Context) {
	var req ragflow.ChunkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, codeArgumentError, err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d, found := s.docInDataset(c, c.Param("docId"))
	if !found {
		return
	}
	list := s.chunks[d.ID]
	for i := range list {
		if list[i].ID != c.Param("chunkId") {
			continue
		}
		if req.Content != "" {
			list[i].Content = req.Content
		}
		if req.ImportantKeywords != nil {
			list[i].ImportantKeywords = req.ImportantKeywords
		}
		if req.Questions != nil {
			list[i].Questions = req.Questions
		}
		if req.Available != nil {
			v := *req.Available
			list[i].Available = &v
		}
		reply(c, nil)
		return
	}
	fail(c, codeDataError, "Can't find this chunk "+c.Param("chunkId"))
}

func (s *Server) deleteChunks(c *gin.Context) {
	ids := bindIDs(c, "chunk_ids")
	s.mu.Lock()
	defer s.mu.Unlock()
	d, found := s.docInDataset(c, c.Param("docId"))
	if !found {
		return
	}
	if len(ids) == 0 {
		delete(s.chunks, d.ID)
		reply(c, nil)
		return
	}
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := s.chunks[d.ID][:0]
	for _, ch := range s.chunks[d.ID] {
		if !drop[ch.ID] {
			kept = append(kept, ch)
		}
	}
	s.chunks[d.ID] = kept
	reply(c, nil)
}

func (s *Server) retrieve(c *gin.Context) {
	var req ragflow.RetrievalRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Question) == "" {
		fail(c, codeArgumentError, "`question` is required.")
		return
	}
	if len(req.DatasetIDs) == 0 && len(req.DocumentIDs) == 0 {
		fail(c, codeArgumentError, "`dataset_ids` or `document_ids` is required.")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	inDataset := make(map[string]bool)
	for _, id := range req.DatasetIDs {
		inDataset[id] = true
	}
	inDocs := make(map[string]bool)
	for _, id := range req.DocumentIDs {
		inDocs[id] = true
	}
	terms := strings.Fields(strings.ToLower(req.Question))
	result := ragflow.RetrievalResult{Chunks: []ragflow.RetrievedChunk{}, DocAggs: []ragflow.DocAggregate{}}
	aggs := make(map[string]*ragflow.DocAggregate)
	for _, d := range s.docs {
		if len(inDocs) > 0 && !inDocs[d.ID] {
			continue
		}
		if len(inDataset) > 0 && !inDataset[d.DatasetID] {
			continue
		}
		for _, ch := range s.chunks[d.ID] {
			content := strings.ToLower(ch.Content)
			hits := 0
			for _, t := range terms {
				if strings.Contains(content, t) {
					hits++
				}
			}
			if hits == 0 {
				continue
			}
			sim := float64(hits) / float64(len(terms))
			if req.SimilarityThreshold != nil && sim < *req.SimilarityThreshold {
				continue
			}
			result.Chunks = append(result.Chunks, ragflow.RetrievedChunk{
				ID: ch.ID, Content: ch.Content, DocumentID: d.ID, DocumentKeyword: d.Name,
				DatasetID: d.DatasetID, ImportantKeywords: ch.ImportantKeywords,
				Similarity: sim, TermSimilarity: sim, VectorSimilarity: sim,
			})
			if aggs[d.ID] == nil {
				aggs[d.ID] = &ragflow.DocAggregate{DocID: d.ID, DocName: d.Name}
			}
			aggs[d.ID].Count++
		}
	}
	sortByID(result.Chunks, func(ch ragflow.RetrievedChunk) string { return ch.ID })
	for _, a := range aggs {
		result.DocAggs = append(result.DocAggs, *a)
	}
	sortByID(result.DocAggs, func(a ragflow.DocAggregate) string { return a.DocID })
	result.Total = len(result.Chunks)
	reply(c, result)
}

// ---------- knowledge graph ----------

func (s *Server) getKnowledgeGraph(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, found := s.datasets[c.Param("id")]; !found {
		fail(c, codeDataError, "No authorization.")
		return
	}
	kg, found := s.graphs[c.Param("id")]
	if !found {
		reply(c, gin.H{"graph": gin.H{}, "mind_map": gin.H{}})
		return
	}
	reply(c, kg)
}

func (s *Server) deleteKnowledgeGraph(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, found := s.datasets[c.Param("id")]; !found {
		fail(c, codeDataError, "No authorization.")
		return
	}
	delete(s.graphs, c.Param("id"))
	reply(c, true)
}

// ---------- chats ----------

func (s *Server) createChat(c *gin.Context) {
	var req ragflow.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		fail(c, codeArgumentError, "`name` is required.")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range req.DatasetIDs {
		if _, found := s.datasets[id]; !found {
			fail(c, codeDataError, "You don't own the dataset "+id)
			return
		}
	}
	for _, ch := range s.chats {
		if ch.Name == req.Name {
			fail(c, codeDataError, "Duplicated chat name in creating chat.")
			return
		}
	}
	chat := &ragflow.Chat{
		ID:          s.nextID("chat"),
		Name:        req.Name,
		Avatar:      req.Avatar,
		Description: req.Description,
		DatasetIDs:  req.DatasetIDs,
		LLM:         toMap(req.LLM),
		Prompt:      toMap(req.Prompt),
		CreateTime:  time.Now().UnixMilli(),
	}
	s.chats[chat.ID] = chat
	reply(c, chat)
}

func toMap(v interface{}) map[string]interface{} {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]interface{}
	_ = json.Unmarshal(data, &m)
	return m
}

func (s *Server) listChats(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, name := c.Query("id"), c.Query("name")
	out := make([]ragflow.Chat, 0, len(s.chats))
	for _, ch := range s.chats {
		if (id != "" && ch.ID != id) || (name != "" && ch.Name != name) {
			continue
		}
		out = append(out, *ch)
	}
	if id != "" && len(out) == 0 {
		fail(c, codeDataError, "The chat doesn't exist")
		return
	}
	sortByID(out, func(ch ragflow.Chat) string { return ch.ID })
	start, end := page(c, len(out))
	reply(c, out[start:end])
}

func (s *Server) updateChat(c *gin.Context) {
	var req ragflow.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, codeArgumentError, err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	chat, found := s.chats[c.Param("id")]
	if !found {
		fail(c, codeDataError, "You do not own the chat")
		return
	}
	if req.Name != "" {
		chat.Name = req.Name
	}
	if req.Description != "" {
		chat.Description = req.Description
	}
	if req.Avatar != "" {
		chat.Avatar = req.Avatar
	}
	if req.DatasetIDs != nil {
		chat.DatasetIDs = req.DatasetIDs
	}
	if m := toMap(req.LLM); m != nil {
		chat.LLM = m
	}
	if m := toMap(req.Prompt); m != nil {
		chat.Prompt = m
	}
	reply(c, nil)
}

func (s *Server) deleteChats(c *gin.Context) {
	ids := bindIDs(c, "ids")
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if _, found := s.chats[id]; !found {
			fail(c, codeDataError, "Assistant("+id+") not found.")
			return
		}
	}
	for _, id := range ids {
		delete(s.chats, id)
		for sid, sess := range s.sessions {
			if sess.ChatID == id {
				delete(s.sessions, sid)
			}
		}
	}
	reply(c, nil)
}

func (s *Server) createSessionLocked(chatID, name string) *ragflow.Session {
	if name == "" {
		name = "New session"
	}
	sess := &ragflow.Session{
		ID:         s.nextID("sess"),
		ChatID:     chatID,
		Name:       name,
		Messages:   []ragflow.SessionMessage{{Role: "assistant", Content: "Hi! I am your assistant, can I help you?"}},
		CreateTime: time.Now().UnixMilli(),
	}
	s.sessions[sess.ID] = sess
	return sess
}

func (s *Server) createSession(c *gin.Context) {
	var body struct {
		Name string `json:"name"`
	}
	_ = c.ShouldBindJSON(&body)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, found := s.chats[c.Param("id")]; !found {
		fail(c, codeDataError, "You do not own the assistant.")
		return
	}
	reply(c, s.createSessionLocked(c.Param("id"), body.Name))
}

func (s *Server) listSessions(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, found := s.chats[c.Param("id")]; !found {
		fail(c, codeDataError, "You don't own the assistant "+c.Param("id")+".")
		return
	}
	id := c.Query("id")
	out := make([]ragflow.Session, 0)
	for _, sess := range s.sessions {
		if sess.ChatID != c.Param("id") || (id != "" && sess.ID != id) {
			continue
		}
		out = append(out, *sess)
	}
	sortByID(out, func(sess ragflow.Session) string { return sess.ID })
	start, end := page(c, len(out))
	reply(c, out[start:end])
}

func (s *Server) updateSession(c *gin.Context) {
	var body struct {
		Name string `json:"name"`
	}
	_ = c.ShouldBindJSON(&body)
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, found := s.sessions[c.Param("sid")]
	if !found || sess.ChatID != c.Param("id") {
		fail(c, codeDataError, "Session does not exist")
		return
	}
	if body.Name != "" {
		sess.Name = body.Name
	}
	reply(c, nil)
}

func (s *Server) deleteSessions(c *gin.Context) {
	ids := bindIDs(c, "ids")
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		sess, found := s.sessions[id]
		if !found || sess.ChatID != c.Param("id") {
			fail(c, codeDataError, "The chat doesn't own the session "+id)
			return
		}
	}
	for _, id := range ids {
		delete(s.sessions, id)
	}
	reply(c, nil)
}

func (s *Server) completions(c *gin.Context) {
	var req ragflow.CompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Question) == "" {
		fail(c, codeArgumentError, "`question` is required.")
		return
	}
	s.mu.Lock()
	if _, found := s.chats[c.Param("id")]; !found {
		s.mu.Unlock()
		fail(c, codeDataError, "You don't own the chat "+c.Param("id"))
		return
	}
	var sess *ragflow.Session
	if req.SessionID != "" {
		sess = s.sessions[req.SessionID]
		if sess == nil || sess.ChatID != c.Param("id") {
			s.mu.Unlock()
			fail(c, codeDataError, "You don't own the session "+req.SessionID)
			return
		}
	} else {
		sess = s.createSessionLocked(c.Param("id"), req.Question)
	}
	answer := s.Answer
	sess.Messages = append(sess.Messages,
		ragflow.SessionMessage{Role: "user", Content: req.Question},
		ragflow.SessionMessage{Role: "assistant", Content: answer})
	sessionID := sess.ID
	s.mu.Unlock()

	ref := gin.H{"total": 1, "chunks": []gin.H{{"id": "ref-chunk", "content": "reference", "document_id": "ref-doc", "document_name": "ref.txt", "dataset_id": "ref-ds", "similarity": 0.9}}, "doc_aggs": []gin.H{}}
	if !req.Stream {
		reply(c, gin.H{"id": "msg-1", "answer": answer, "reference": ref, "session_id": sessionID})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	words := strings.Fields(answer)
	acc := ""
	for i, w := range words {
		if i > 0 {
			acc += " "
		}
		acc += w
		payload, _ := json.Marshal(gin.H{"code": 0, "data": gin.H{"id": "msg-1", "answer": acc, "reference": []interface{}{}, "session_id": sessionID}})
		fmt.Fprintf(c.Writer, "data:%s\n\n", payload)
		c.Writer.Flush()
	}
	final, _ := json.Marshal(gin.H{"code": 0, "data": gin.H{"id": "msg-1", "answer": acc, "reference": ref, "session_id": sessionID}})
	fmt.Fprintf(c.Writer, "data:%s\n\n", final)
	fmt.Fprint(c.Writer, "data:{\"code\":0,\"message\":\"\",\"data\":true}\n\n")
	c.Writer.Flush()
}
