package rag

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainRAG "github.com/ragcore/backend/internal/domain/rag"
	"github.com/ragcore/backend/internal/infrastructure/config"
)

func newTestConversationManager(store domainRAG.ConversationStore) *ConversationManager {
	return NewConversationManager(store, &config.ConversationConfig{
		MaxHistory:    3,
		ContextWindow: 2,
		TTL:           time.Hour,
		Contextualize: true,
	})
}

func TestConversationManager_AppendAndSummary(t *testing.T) {
	ctx := context.Background()
	m := newTestConversationManager(newFakeConversationStore())

	require.NoError(t, m.AppendTurn(ctx, "t1", "c1", "first question", "first answer",
		[]domainRAG.ChunkMatch{{DocumentID: "d1"}, {DocumentID: "d2"}, {DocumentID: "d1"}}, 100*time.Millisecond))
	require.NoError(t, m.AppendTurn(ctx, "t1", "c1", "second question", "second answer",
		[]domainRAG.ChunkMatch{{DocumentID: "d3"}}, 300*time.Millisecond))

	summary, err := m.GetSummary(ctx, "t1", "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", summary.ConversationID)
	assert.Equal(t, "t1", summary.TenantID)
	assert.Equal(t, 2, summary.TurnCount)
	assert.Equal(t, "first question", summary.FirstQuery)
	assert.Equal(t, "second question", summary.LastQuery)
	assert.Equal(t, 3, summary.ReferencedDocuments)

	stats, err := m.GetStats(ctx, "t1", "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalExchanges)
	assert.Equal(t, 2, stats.TotalQueries)
	assert.Equal(t, 3, stats.UniqueDocumentsReferenced)
	assert.InDelta(t, 200.0, stats.AvgResponseTimeMs, 0.001)
}

func TestConversationManager_TrimsHistory(t *testing.T) {
	ctx := context.Background()
	m := newTestConversationManager(newFakeConversationStore())

	for i := 1; i <= 5; i++ {
		require.NoError(t, m.AppendTurn(ctx, "t1", "c1", fmt.Sprintf("q%d", i), "a", nil, 0))
	}

	summary, err := m.GetSummary(ctx, "t1", "c1")
	require.NoError(t, err)
	assert.Equal(t, 3, summary.TurnCount)
	assert.Equal(t, "q3", summary.FirstQuery)
	assert.Equal(t, "q5", summary.LastQuery)

	stats, err := m.GetStats(ctx, "t1", "c1")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalExchanges)
	assert.Equal(t, 5, stats.TotalQueries)
}

func TestConversationManager_TenantIsolation(t *testing.T) {
	ctx := context.Background()
	m := newTestConversationManager(newFakeConversationStore())
	require.NoError(t, m.AppendTurn(ctx, "t1", "c1", "q", "a", nil, 0))

	_, err := m.GetSummary(ctx, "t2", "c1")
	assert.True(t, domainRAG.IsNotFound(err))

	_, err = m.GetStats(ctx, "t2", "c1")
	assert.True(t, domainRAG.IsNotFound(err))

	deleted, err := m.DeleteConversation(ctx, "t2", "c1")
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = m.GetSummary(ctx, "t1", "c1")
	assert.NoError(t, err)
}

func TestConversationManager_Delete(t *testing.T) {
	ctx := context.Background()
	m := newTestConversationManager(newFakeConversationStore())
	require.NoError(t, m.AppendTurn(ctx, "t1", "c1", "q", "a", nil, 0))

	deleted, err := m.DeleteConversation(ctx, "t1", "c1")
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = m.GetSummary(ctx, "t1", "c1")
	assert.True(t, domainRAG.IsNotFound(err))

	deleted, err = m.DeleteConversation(ctx, "t1", "c1")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestConversationManager_ExpiredConversationRemoved(t *testing.T) {
	ctx := context.Background()
	store := newFakeConversationStore()
	m := newTestConversationManager(store)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	require.NoError(t, m.AppendTurn(ctx, "t1", "c1", "q", "a", nil, 0))

	now = now.Add(2 * time.Hour)
	_, err := m.GetSummary(ctx, "t1", "c1")
	assert.True(t, domainRAG.IsNotFound(err))

	state, err := store.Get(ctx, "t1", "c1")
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestConversationManager_AppendTurnValidation(t *testing.T) {
	m := newTestConversationManager(newFakeConversationStore())
	err := m.AppendTurn(context.Background(), "", "c1", "q", "a", nil, 0)
	assert.True(t, domainRAG.IsValidation(err))
}

func TestConversationManager_ConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	m := NewConversationManager(newFakeConversationStore(), &config.ConversationConfig{MaxHistory: 100})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, m.AppendTurn(ctx, "t1", "c1", fmt.Sprintf("q%d", i), "a", nil, 0))
		}(i)
	}
	wg.Wait()

	stats, err := m.GetStats(ctx, "t1", "c1")
	require.NoError(t, err)
	assert.Equal(t, 20, stats.TotalExchanges)
	assert.Equal(t, 0, m.locks.size())
}

func TestConversationManager_ContextualizeQuery(t *testing.T) {
	ctx := context.Background()
	m := newTestConversationManager(newFakeConversationStore())

	assert.Equal(t, "new q", m.ContextualizeQuery(ctx, "t1", "c1", "new q"))
	assert.Equal(t, "new q", m.ContextualizeQuery(ctx, "t1", "", "new q"))

	require.NoError(t, m.AppendTurn(ctx, "t1", "c1", "q1", "a1", nil, 0))
	require.NoError(t, m.AppendTurn(ctx, "t1", "c1", "q2", strings.Repeat("x", 250), nil, 0))
	require.NoError(t, m.AppendTurn(ctx, "t1", "c1", "q3", "a3", nil, 0))

	got := m.ContextualizeQuery(ctx, "t1", "c1", "new q")
	assert.True(t, strings.HasPrefix(got, "Given our recent conversation:\n"))
	assert.True(t, strings.HasSuffix(got, "New question: new q"))
	assert.NotContains(t, got, "User: q1")
	assert.Contains(t, got, "User: q2\nAssistant: "+strings.Repeat("x", 200)+"...\n\n")
	assert.Contains(t, got, "User: q3\nAssistant: a3\n\n")

	// 其他租户看不到历史
	assert.Equal(t, "new q", m.ContextualizeQuery(ctx, "t2", "c1", "new q"))
}

func TestConversationManager_ContextualizeDisabled(t *testing.T) {
	ctx := context.Background()
	m := NewConversationManager(newFakeConversationStore(), &config.ConversationConfig{MaxHistory: 10})
	require.NoError(t, m.AppendTurn(ctx, "t1", "c1", "q1", "a1", nil, 0))
	assert.Equal(t, "q", m.ContextualizeQuery(ctx, "t1", "c1", "q"))
}

func TestConversationManager_ContextualizeStoreError(t *testing.T) {
	store := newFakeConversationStore()
	store.getErr = errBoom
	m := newTestConversationManager(store)
	assert.Equal(t, "q", m.ContextualizeQuery(context.Background(), "t1", "c1", "q"))
}

func TestConversationManager_FindSimilarExchanges(t *testing.T) {
	ctx := context.Background()
	m := NewConversationManager(newFakeConversationStore(), &config.ConversationConfig{MaxHistory: 10})
	require.NoError(t, m.AppendTurn(ctx, "t1", "c1", "how to configure redis cache", "a", nil, 0))
	require.NoError(t, m.AppendTurn(ctx, "t1", "c1", "what is kubernetes", "b", nil, 0))
	require.NoError(t, m.AppendTurn(ctx, "t1", "c1", "configure redis", "c", nil, 0))

	exchanges, err := m.FindSimilarExchanges(ctx, "t1", "c1", "configure redis cache", 5)
	require.NoError(t, err)
	require.Len(t, exchanges, 2)
	assert.Equal(t, "configure redis", exchanges[0].Turn.Query)
	assert.Equal(t, "how to configure redis cache", exchanges[1].Turn.Query)
	assert.GreaterOrEqual(t, exchanges[0].Similarity, exchanges[1].Similarity)

	limited, err := m.FindSimilarExchanges(ctx, "t1", "c1", "configure redis cache", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	_, err = m.FindSimilarExchanges(ctx, "t1", "missing", "q", 5)
	assert.True(t, domainRAG.IsNotFound(err))
}

func TestJaccardSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, jaccardSimilarity("a b", "B A"), 0.0001)
	assert.InDelta(t, 0.0, jaccardSimilarity("", ""), 0.0001)
	assert.InDelta(t, 1.0/3.0, jaccardSimilarity("a b", "b c"), 0.0001)
}
