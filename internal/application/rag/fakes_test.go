package rag

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	domainRAG "github.com/ragcore/backend/internal/domain/rag"
)

// fakeConversationStore 内存对话存储
type fakeConversationStore struct {
	mu     sync.Mutex
	states map[string]*domainRAG.ConversationState
	getErr error
	saves  atomic.Int32
}

func newFakeConversationStore() *fakeConversationStore {
	return &fakeConversationStore{states: make(map[string]*domainRAG.ConversationState)}
}

func (s *fakeConversationStore) Get(_ context.Context, tenantID, conversationID string) (*domainRAG.ConversationState, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[conversationKey(tenantID, conversationID)]
	if !ok {
		return nil, nil
	}
	c := *state
	c.Turns = append([]domainRAG.Turn(nil), state.Turns...)
	c.DocumentIDs = make(map[string]bool, len(state.DocumentIDs))
	for k, v := range state.DocumentIDs {
		c.DocumentIDs[k] = v
	}
	return &c, nil
}

func (s *fakeConversationStore) Save(_ context.Context, state *domainRAG.ConversationState) error {
	s.saves.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[conversationKey(state.TenantID, state.ConversationID)] = state
	return nil
}

func (s *fakeConversationStore) Delete(_ context.Context, tenantID, conversationID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := conversationKey(tenantID, conversationID)
	_, ok := s.states[key]
	delete(s.states, key)
	return ok, nil
}

// fakeCacheStore 内存缓存存储，按调用计数
type fakeCacheStore struct {
	mu      sync.Mutex
	entries map[string]*domainRAG.CacheEntry
	gets    atomic.Int32
	puts    atomic.Int32
	// staleGets 前若干次 Get 按未命中返回，模拟读到写入前的旧状态
	staleGets atomic.Int32
}

func newFakeCacheStore() *fakeCacheStore {
	return &fakeCacheStore{entries: make(map[string]*domainRAG.CacheEntry)}
}

func (s *fakeCacheStore) Get(_ context.Context, tenantID, fingerprint string) (*domainRAG.CacheEntry, error) {
	s.gets.Add(1)
	if s.staleGets.Add(-1) >= 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[tenantID+"|"+fingerprint], nil
}

func (s *fakeCacheStore) Put(_ context.Context, entry *domainRAG.CacheEntry) error {
	s.puts.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.TenantID+"|"+entry.Fingerprint] = entry
	return nil
}

func (s *fakeCacheStore) Delete(_ context.Context, tenantID, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, tenantID+"|"+fingerprint)
	return nil
}

func (s *fakeCacheStore) InvalidateTenant(_ context.Context, tenantID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, e := range s.entries {
		if e.TenantID == tenantID {
			delete(s.entries, k)
			n++
		}
	}
	return n, nil
}

// fakeSearchClient 可编程检索协作方
type fakeSearchClient struct {
	results []domainRAG.ChunkMatch
	err     error
	delay   time.Duration
	calls   atomic.Int32
	lastReq atomic.Pointer[domainRAG.SearchRequest]
}

func (c *fakeSearchClient) Search(ctx context.Context, req *domainRAG.SearchRequest) (*domainRAG.SearchResult, error) {
	c.calls.Add(1)
	c.lastReq.Store(req)
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if c.err != nil {
		return nil, c.err
	}
	results := make([]domainRAG.ChunkMatch, len(c.results))
	copy(results, c.results)
	return &domainRAG.SearchResult{TenantID: req.TenantID, Results: results, TotalResults: len(results)}, nil
}

// fakeProvider 可编程 LLM 提供方
type fakeProvider struct {
	kind      domainRAG.ProviderKind
	text      string
	fragments []string
	err       error
	// failAfter 流式生成在输出若干片段后失败，0 表示不失败
	failAfter int
	delay     time.Duration
	pingErr   error
	calls     atomic.Int32
	lastReq   atomic.Pointer[domainRAG.GenerationRequest]
}

func (p *fakeProvider) Kind() domainRAG.ProviderKind { return p.kind }

func (p *fakeProvider) Model() string { return "fake-" + string(p.kind) }

func (p *fakeProvider) Generate(ctx context.Context, req *domainRAG.GenerationRequest) (string, error) {
	p.calls.Add(1)
	p.lastReq.Store(req)
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if p.err != nil {
		return "", p.err
	}
	return p.text, nil
}

func (p *fakeProvider) Stream(ctx context.Context, req *domainRAG.GenerationRequest, emit func(string) error) error {
	p.calls.Add(1)
	p.lastReq.Store(req)
	if p.err != nil && p.failAfter == 0 {
		return p.err
	}
	for i, f := range p.fragments {
		if p.failAfter > 0 && i == p.failAfter {
			return p.err
		}
		if p.delay > 0 {
			select {
			case <-time.After(p.delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := emit(f); err != nil {
			return err
		}
	}
	return nil
}

func (p *fakeProvider) Ping(context.Context) error {
	return p.pingErr
}

var errBoom = errors.New("boom")
