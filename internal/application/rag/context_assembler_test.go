package rag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainRAG "github.com/ragcore/backend/internal/domain/rag"
	"github.com/ragcore/backend/internal/infrastructure/tokenizer"
)

func newCharAssembler() *ContextAssembler {
	return NewContextAssembler(tokenizer.NewCharEstimator(), nil)
}

func TestContextAssembler_Empty(t *testing.T) {
	got := newCharAssembler().Assemble(nil, 100, false)
	assert.Equal(t, AssembledContext{}, got)
}

func TestContextAssembler_OrdersAndFormats(t *testing.T) {
	chunks := []domainRAG.ChunkMatch{
		{DocumentID: "d1", SequenceNumber: 1, Content: "second", SimilarityScore: 0.8},
		{DocumentID: "d2", SequenceNumber: 1, Content: "first", SimilarityScore: 0.9},
	}
	got := newCharAssembler().Assemble(chunks, 0, false)

	assert.Equal(t, "[Source 1]\nfirst"+ContextSeparator+"[Source 2]\nsecond", got.Text)
	assert.Equal(t, 2, got.ChunksUsed)
}

func TestContextAssembler_Deduplicates(t *testing.T) {
	chunks := []domainRAG.ChunkMatch{
		{DocumentID: "d1", SequenceNumber: 1, Content: "a", SimilarityScore: 0.9},
		{DocumentID: "d1", SequenceNumber: 1, Content: "a again", SimilarityScore: 0.85},
		{DocumentID: "d1", SequenceNumber: 2, Content: "b", SimilarityScore: 0.8},
	}
	got := newCharAssembler().Assemble(chunks, 0, false)
	assert.Equal(t, 2, got.ChunksUsed)
	assert.NotContains(t, got.Text, "a again")
}

func TestContextAssembler_RespectsBudgetWithoutTruncating(t *testing.T) {
	body := strings.Repeat("x", 400)
	chunks := []domainRAG.ChunkMatch{
		{DocumentID: "d1", SequenceNumber: 1, Content: body, SimilarityScore: 0.9},
		{DocumentID: "d2", SequenceNumber: 1, Content: body, SimilarityScore: 0.8},
		{DocumentID: "d3", SequenceNumber: 1, Content: "tiny", SimilarityScore: 0.7},
	}

	got := newCharAssembler().Assemble(chunks, 150, false)
	assert.Equal(t, 1, got.ChunksUsed)
	assert.Contains(t, got.Text, body)
	assert.NotContains(t, got.Text, "tiny")
	assert.LessOrEqual(t, got.Tokens, 150)

	// 第一个片段即使超出预算也保留完整内容
	over := newCharAssembler().Assemble(chunks[:1], 10, false)
	assert.Equal(t, 1, over.ChunksUsed)
	assert.Contains(t, over.Text, body)
}

func TestContextAssembler_IncludeMetadata(t *testing.T) {
	chunks := []domainRAG.ChunkMatch{{
		DocumentID:      "d1",
		DocumentTitle:   "Guide",
		DocumentType:    "pdf",
		Content:         "body",
		SimilarityScore: 0.954,
		Metadata:        map[string]any{"page": 3, "author": "kim", "secret": "hidden"},
	}}

	got := newCharAssembler().Assemble(chunks, 0, true)
	require.Equal(t, 1, got.ChunksUsed)
	assert.Equal(t,
		"[Source 1]\nDocument: Guide\nType: pdf\nRelevance: 0.95\n---\nbody\n[Metadata: author=kim page=3]",
		got.Text)

	plain := newCharAssembler().Assemble(chunks, 0, false)
	assert.Equal(t, "[Source 1]\nbody", plain.Text)
}
