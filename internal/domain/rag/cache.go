package rag

import "time"

// CacheEntry 响应缓存条目
type CacheEntry struct {
	Fingerprint string         `json:"fingerprint"`
	TenantID    string         `json:"tenantId"`
	Response    *QueryResponse `json:"response"`
	CreatedAt   time.Time      `json:"createdAt"`
	TTL         time.Duration  `json:"ttl"`
}

// ExpiresAt 过期时间，TTL 为 0 表示不过期
func (e *CacheEntry) ExpiresAt() time.Time {
	if e.TTL <= 0 {
		return time.Time{}
	}
	return e.CreatedAt.Add(e.TTL)
}

// Expired 是否已过期
func (e *CacheEntry) Expired(now time.Time) bool {
	if e.TTL <= 0 {
		return false
	}
	return !now.Before(e.ExpiresAt())
}
