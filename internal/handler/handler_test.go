package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ragflow-bridge/internal/config"
	"ragflow-bridge/internal/repository"
	"ragflow-bridge/internal/service"
	"ragflow-bridge/pkg/database"
	"ragflow-bridge/pkg/ragflow/ragflowtest"
	"ragflow-bridge/pkg/storage"
	"ragflow-bridge/pkg/token"
)

const (
	testClient   = "portal"
	testAdmin    = "ops"
	testAPIKey   = "s3cret-key"
	testJWTValue = "handler-test-secret"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type apiEnv struct {
	engine *gin.Engine
	fake   *ragflowtest.Server
	mr     *miniredis.Miniredis
	jwt    *token.JWTManager
}

func newAPIEnv(t *testing.T, authEnabled bool) *apiEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	fake := ragflowtest.NewServer()
	t.Cleanup(fake.Close)
	client := fake.Client()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.Migrate(db))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	datasets := repository.NewDatasetRepository(db)
	documents := repository.NewDocumentRepository(db)
	assistants := repository.NewChatAssistantRepository(db)
	conversations := repository.NewConversationRepository(db, rdb)
	store := storage.NewMemoryStore()

	userHash, err := token.HashAPIKey(testAPIKey)
	require.NoError(t, err)
	authCfg := config.AuthConfig{
		Enabled:      authEnabled,
		APIKeys:      map[string]string{testClient: userHash, testAdmin: userHash},
		AdminClients: []string{testAdmin},
	}
	jwtManager := token.NewJWTManager(testJWTValue, 1)

	h := Handlers{
		Auth:           NewAuthHandler(jwtManager, authCfg),
		Dataset:        NewDatasetHandler(service.NewDatasetService(datasets, documents, client, store, nil)),
		Document:       NewDocumentHandler(service.NewDocumentService(documents, datasets, client, store, nil, nil, nil, config.DocumentConfig{})),
		Chunk:          NewChunkHandler(service.NewChunkService(documents, datasets, client, nil)),
		ChatAssistant:  NewChatAssistantHandler(service.NewChatAssistantService(assistants, datasets, conversations, client)),
		Conversation:   NewConversationHandler(service.NewConversationService(conversations, assistants, client)),
		KnowledgeGraph: NewKnowledgeGraphHandler(service.NewKnowledgeGraphService(datasets, repository.NewKnowledgeGraphCache(rdb, time.Minute), client)),
		System:         NewSystemHandler(service.NewSystemService(db, rdb, client, datasets, documents, assistants, conversations, "test")),
	}
	r := gin.New()
	RegisterRoutes(r, h, jwtManager, authEnabled)
	return &apiEnv{engine: r, fake: fake, mr: mr, jwt: jwtManager}
}

func (e *apiEnv) do(t *testing.T, method, path string, body interface{}, headers ...string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	return e.serve(t, req)
}

func (e *apiEnv) serve(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func (e *apiEnv) createDataset(t *testing.T, name string) uint {
	t.Helper()
	w, resp := e.do(t, http.MethodPost, "/api/v1/datasets", gin.H{"name": name})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var ds struct {
		ID uint `json:"id"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &ds))
	return ds.ID
}

func uploadRequest(t *testing.T, path string, files map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		fw, err := mw.CreateFormFile("file", name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func itoa(v uint) string {
	return strconv.FormatUint(uint64(v), 10)
}
