package rag

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainRAG "github.com/ragcore/backend/internal/domain/rag"
	"github.com/ragcore/backend/internal/infrastructure/config"
)

func TestRetriever_FiltersSortsAndTruncates(t *testing.T) {
	client := &fakeSearchClient{results: []domainRAG.ChunkMatch{
		{ChunkID: "low", SimilarityScore: 0.5},
		{ChunkID: "b", SimilarityScore: 0.80},
		{ChunkID: "a", SimilarityScore: 0.95},
		{ChunkID: "c", SimilarityScore: 0.89},
	}}
	r := NewRetriever(client, &config.PipelineConfig{RetrievalTimeout: time.Second}, nil)

	chunks, err := r.Retrieve(context.Background(), RetrieveRequest{
		TenantID:    "t1",
		Query:       "q",
		DocumentIDs: []string{"d1"},
		TopK:        2,
		Threshold:   0.7,
	})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "a", chunks[0].ChunkID)
	assert.Equal(t, "c", chunks[1].ChunkID)

	req := client.lastReq.Load()
	assert.Equal(t, "t1", req.TenantID)
	assert.Equal(t, []string{"d1"}, req.DocumentIDs)
	assert.Equal(t, 2, req.TopK)
}

func TestRetriever_EmptyResult(t *testing.T) {
	r := NewRetriever(&fakeSearchClient{}, &config.PipelineConfig{}, nil)
	chunks, err := r.Retrieve(context.Background(), RetrieveRequest{TenantID: "t1", Query: "q", TopK: 5})
	require.NoError(t, err)
	assert.NotNil(t, chunks)
	assert.Empty(t, chunks)
}

func TestRetriever_UpstreamError(t *testing.T) {
	client := &fakeSearchClient{err: errBoom}
	r := NewRetriever(client, &config.PipelineConfig{}, nil)

	_, err := r.Retrieve(context.Background(), RetrieveRequest{TenantID: "t1", Query: "q", TopK: 5})
	require.Error(t, err)
	assert.True(t, domainRAG.IsUpstream(err))
	assert.ErrorIs(t, err, errBoom)
	assert.EqualValues(t, 1, client.calls.Load(), "no retry")
}

func TestRetriever_Timeout(t *testing.T) {
	client := &fakeSearchClient{delay: time.Second}
	r := NewRetriever(client, &config.PipelineConfig{RetrievalTimeout: 20 * time.Millisecond}, nil)

	start := time.Now()
	_, err := r.Retrieve(context.Background(), RetrieveRequest{TenantID: "t1", Query: "q", TopK: 5})
	assert.True(t, domainRAG.IsUpstream(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

// tenantLeakClient 返回其他租户数据的检索协作方
type tenantLeakClient struct{}

func (tenantLeakClient) Search(context.Context, *domainRAG.SearchRequest) (*domainRAG.SearchResult, error) {
	return &domainRAG.SearchResult{
		TenantID: "other",
		Results:  []domainRAG.ChunkMatch{{ChunkID: "x", SimilarityScore: 0.99}},
	}, nil
}

func TestRetriever_DiscardsOtherTenantResults(t *testing.T) {
	r := NewRetriever(tenantLeakClient{}, &config.PipelineConfig{}, nil)
	chunks, err := r.Retrieve(context.Background(), RetrieveRequest{TenantID: "t1", Query: "q", TopK: 5})
	require.NoError(t, err)
	assert.Empty(t, chunks)
}
