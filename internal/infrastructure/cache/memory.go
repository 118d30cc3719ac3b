// Package cache 提供响应缓存的存储后端（内存 LRU、Redis、SQLite）
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	domainRAG "github.com/ragcore/backend/internal/domain/rag"
)

// defaultCapacity 未配置容量时的默认值
const defaultCapacity = 1024

type memoryItem struct {
	key     string
	entry   *domainRAG.CacheEntry
	element *list.Element
}

// MemoryStore 进程内 LRU 缓存，容量满时淘汰最久未访问的条目
type MemoryStore struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*memoryItem
	order    *list.List
	now      func() time.Time
}

// NewMemoryStore 创建内存缓存
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &MemoryStore{
		capacity: capacity,
		items:    make(map[string]*memoryItem, capacity),
		order:    list.New(),
		now:      time.Now,
	}
}

func memoryKey(tenantID, fingerprint string) string {
	return tenantID + "\x00" + fingerprint
}

// Get 查询条目，过期条目视为未命中并移除
func (s *MemoryStore) Get(_ context.Context, tenantID, fingerprint string) (*domainRAG.CacheEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[memoryKey(tenantID, fingerprint)]
	if !ok {
		return nil, nil
	}
	if item.entry.Expired(s.now()) {
		s.removeItem(item)
		return nil, nil
	}
	s.order.MoveToFront(item.element)
	return copyEntry(item.entry), nil
}

// Put 写入条目
func (s *MemoryStore) Put(_ context.Context, entry *domainRAG.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := memoryKey(entry.TenantID, entry.Fingerprint)
	if item, ok := s.items[key]; ok {
		item.entry = copyEntry(entry)
		s.order.MoveToFront(item.element)
		return nil
	}

	if len(s.items) >= s.capacity {
		s.evictOldest()
	}

	elem := s.order.PushFront(key)
	s.items[key] = &memoryItem{
		key:     key,
		entry:   copyEntry(entry),
		element: elem,
	}
	return nil
}

// Delete 删除条目
func (s *MemoryStore) Delete(_ context.Context, tenantID, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item, ok := s.items[memoryKey(tenantID, fingerprint)]; ok {
		s.removeItem(item)
	}
	return nil
}

// InvalidateTenant 清除租户的全部条目
func (s *MemoryStore) InvalidateTenant(_ context.Context, tenantID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, item := range s.items {
		if item.entry.TenantID == tenantID {
			s.removeItem(item)
			removed++
		}
	}
	return removed, nil
}

// Len 当前条目数（含未清理的过期条目）
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *MemoryStore) evictOldest() {
	elem := s.order.Back()
	if elem == nil {
		return
	}
	if item, ok := s.items[elem.Value.(string)]; ok {
		s.removeItem(item)
	}
}

func (s *MemoryStore) removeItem(item *memoryItem) {
	if item.element != nil {
		s.order.Remove(item.element)
	}
	delete(s.items, item.key)
}

// copyEntry 复制条目，避免调用方修改缓存内容
func copyEntry(entry *domainRAG.CacheEntry) *domainRAG.CacheEntry {
	c := *entry
	c.Response = entry.Response.Clone()
	return &c
}

var _ domainRAG.CacheStore = (*MemoryStore)(nil)
