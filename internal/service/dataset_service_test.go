package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragflow-bridge/internal/config"
	"ragflow-bridge/internal/model"
)

func TestDatasetService_CreateMirrorsRemote(t *testing.T) {
	env := newTestEnv(t)
	svc := env.datasetService(nil)

	ds, err := svc.Create(context.Background(), CreateDatasetRequest{Name: "manuals", Description: "product manuals", ChunkMethod: "book"})
	require.NoError(t, err)

	assert.NotZero(t, ds.ID)
	assert.NotEmpty(t, ds.RemoteID)
	assert.Equal(t, model.StatusSynced, ds.SyncStatus)
	assert.Equal(t, model.ChunkMethodBook, ds.ChunkMethod)
	assert.NotNil(t, ds.LastSyncedAt)
	assert.True(t, env.fake.HasDataset(ds.RemoteID))

	stored, err := svc.Get(ds.ID)
	require.NoError(t, err)
	assert.Equal(t, "product manuals", stored.Description)
}

func TestDatasetService_CreateValidation(t *testing.T) {
	env := newTestEnv(t)
	svc := env.datasetService(nil)

	_, err := svc.Create(context.Background(), CreateDatasetRequest{})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = svc.Create(context.Background(), CreateDatasetRequest{Name: "x", ChunkMethod: "bogus"})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = svc.Create(context.Background(), CreateDatasetRequest{Name: "x", Permission: "everyone"})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	assert.Equal(t, 0, env.fake.Calls("POST /api/v1/datasets"))
}

func TestDatasetService_CreateRemoteFailureKeepsNoMirror(t *testing.T) {
	env := newTestEnv(t)
	svc := env.datasetService(nil)
	env.fake.FailOn("POST", "/datasets", "quota exceeded")

	_, err := svc.Create(context.Background(), CreateDatasetRequest{Name: "manuals"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")

	n, err := env.datasets.Count()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDatasetService_Update(t *testing.T) {
	env := newTestEnv(t)
	svc := env.datasetService(nil)
	ds := env.createDataset(t, "manuals")

	name := "handbooks"
	method := "qa"
	updated, err := svc.Update(context.Background(), ds.ID, UpdateDatasetRequest{Name: &name, ChunkMethod: &method})
	require.NoError(t, err)
	assert.Equal(t, "handbooks", updated.Name)
	assert.Equal(t, model.ChunkMethodQA, updated.ChunkMethod)

	_, err = svc.Update(context.Background(), 999, UpdateDatasetRequest{Name: &name})
	assert.ErrorIs(t, err, ErrNotFound)

	bad := "nope"
	_, err = svc.Update(context.Background(), ds.ID, UpdateDatasetRequest{Permission: &bad})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestDatasetService_DeleteRemovesDocumentsAndArchives(t *testing.T) {
	env := newTestEnv(t)
	indexer := &recordingIndexer{}
	svc := env.datasetService(indexer)
	docs := env.documentService(nil, nil, config.DocumentConfig{})
	ds := env.createDataset(t, "manuals")
	doc := env.upload(t, docs, ds.ID, "a.txt", "alpha")

	require.NoError(t, svc.Delete(context.Background(), ds.ID))

	assert.False(t, env.fake.HasDataset(ds.RemoteID))
	assert.False(t, env.store.Has(doc.ObjectKey))
	assert.Equal(t, []string{doc.RemoteIDValue()}, indexer.deletedDocs)
	_, err := svc.Get(ds.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = env.documents.FindByID(doc.ID)
	assert.Error(t, err)
}

func TestDatasetService_DeleteToleratesRemoteFailure(t *testing.T) {
	env := newTestEnv(t)
	svc := env.datasetService(nil)
	ds := env.createDataset(t, "manuals")
	env.fake.FailOn("DELETE", "/datasets", "remote down")

	require.NoError(t, svc.Delete(context.Background(), ds.ID))
	_, err := svc.Get(ds.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDatasetService_List(t *testing.T) {
	env := newTestEnv(t)
	svc := env.datasetService(nil)
	for _, name := range []string{"alpha", "beta", "gamma"} {
		env.createDataset(t, name)
	}

	res, err := svc.List(0, 0, "")
	require.NoError(t, err)
	assert.EqualValues(t, 3, res.Total)
	assert.Equal(t, 1, res.Page)
	assert.Equal(t, defaultPageSize, res.PageSize)
	assert.Equal(t, "gamma", res.Items[0].Name)

	res, err = svc.List(1, 500, "et")
	require.NoError(t, err)
	assert.Equal(t, maxPageSize, res.PageSize)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "beta", res.Items[0].Name)
}

func TestDatasetService_Sync(t *testing.T) {
	env := newTestEnv(t)
	svc := env.datasetService(nil)
	kept := env.createDataset(t, "kept")
	gone := env.createDataset(t, "gone")
	require.NoError(t, env.client.DeleteDatasets(context.Background(), []string{gone.RemoteID}))
	remoteOnly := env.fake.AddDataset("remote only")
	env.fake.AddDocument(remoteOnly, "a.txt", []byte("alpha"))

	res, err := svc.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.Updated)
	assert.EqualValues(t, 1, res.MarkedMissing)

	created, err := env.datasets.FindByRemoteID(remoteOnly)
	require.NoError(t, err)
	assert.Equal(t, "remote only", created.Name)
	assert.Equal(t, 1, created.DocumentCount)
	assert.Equal(t, model.StatusSynced, created.SyncStatus)

	missing, err := svc.Get(gone.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSyncFailed, missing.SyncStatus)

	still, err := svc.Get(kept.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSynced, still.SyncStatus)
}

func TestDatasetService_SyncRemoteFailure(t *testing.T) {
	env := newTestEnv(t)
	svc := env.datasetService(nil)
	env.fake.SetUnavailable(true)

	_, err := svc.Sync(context.Background())
	assert.Error(t, err)
}
