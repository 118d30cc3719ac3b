package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	domainRAG "github.com/ragcore/backend/internal/domain/rag"
)

// CacheRepository 响应缓存 SQLite 仓储接口
type CacheRepository interface {
	domainRAG.CacheStore
	// PurgeExpired 删除所有已过期的条目
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

// cacheRepository 响应缓存仓储实现
type cacheRepository struct {
	db *sql.DB
}

// NewCacheRepository 创建响应缓存仓储实例
func NewCacheRepository(db *sql.DB) (CacheRepository, error) {
	if err := initResponseCacheTable(db); err != nil {
		return nil, err
	}
	return &cacheRepository{db: db}, nil
}

// initResponseCacheTable 初始化 response_cache 表
func initResponseCacheTable(db *sql.DB) error {
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS response_cache (
		tenant_id TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		response TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (tenant_id, fingerprint)
	);
	CREATE INDEX IF NOT EXISTS idx_response_cache_expires ON response_cache(expires_at);`

	if _, err := db.Exec(createTableSQL); err != nil {
		return fmt.Errorf("failed to create response_cache table: %w", err)
	}
	return nil
}

// Get 查询缓存条目，过期条目会被顺带删除
func (r *cacheRepository) Get(ctx context.Context, tenantID, fingerprint string) (*domainRAG.CacheEntry, error) {
	query := `
		SELECT response, created_at, expires_at
		FROM response_cache
		WHERE tenant_id = ? AND fingerprint = ?`

	var responseJSON string
	var createdAt, expiresAt int64

	err := r.db.QueryRowContext(ctx, query, tenantID, fingerprint).Scan(&responseJSON, &createdAt, &expiresAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query cache entry: %w", err)
	}

	entry := &domainRAG.CacheEntry{
		Fingerprint: fingerprint,
		TenantID:    tenantID,
		CreatedAt:   time.UnixMilli(createdAt),
	}
	if expiresAt > 0 {
		entry.TTL = time.UnixMilli(expiresAt).Sub(entry.CreatedAt)
	}

	if entry.Expired(time.Now()) {
		_ = r.Delete(ctx, tenantID, fingerprint)
		return nil, nil
	}

	var resp domainRAG.QueryResponse
	if err := json.Unmarshal([]byte(responseJSON), &resp); err != nil {
		return nil, fmt.Errorf("failed to decode cached response: %w", err)
	}
	entry.Response = &resp

	return entry, nil
}

// Put 写入缓存条目
func (r *cacheRepository) Put(ctx context.Context, entry *domainRAG.CacheEntry) error {
	responseJSON, err := json.Marshal(entry.Response)
	if err != nil {
		return fmt.Errorf("failed to encode cached response: %w", err)
	}

	var expiresAt int64
	if entry.TTL > 0 {
		expiresAt = entry.ExpiresAt().UnixMilli()
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO response_cache
		(tenant_id, fingerprint, response, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)`,
		entry.TenantID,
		entry.Fingerprint,
		string(responseJSON),
		entry.CreatedAt.UnixMilli(),
		expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save cache entry: %w", err)
	}
	return nil
}

// Delete 删除单个条目
func (r *cacheRepository) Delete(ctx context.Context, tenantID, fingerprint string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM response_cache WHERE tenant_id = ? AND fingerprint = ?`,
		tenantID, fingerprint,
	)
	if err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// InvalidateTenant 清除租户的全部条目
func (r *cacheRepository) InvalidateTenant(ctx context.Context, tenantID string) (int, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM response_cache WHERE tenant_id = ?`, tenantID)
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate tenant cache: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return int(affected), nil
}

// PurgeExpired 删除所有已过期的条目
func (r *cacheRepository) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM response_cache WHERE expires_at > 0 AND expires_at <= ?`,
		now.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired cache entries: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return int(affected), nil
}

// 编译时检查接口实现
var _ CacheRepository = (*cacheRepository)(nil)
