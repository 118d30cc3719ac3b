package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	domainRAG "github.com/ragcore/backend/internal/domain/rag"
)

// ConversationRepository 对话仓储接口
type ConversationRepository interface {
	domainRAG.ConversationStore
	// CountByTenant 统计租户下的对话数量
	CountByTenant(ctx context.Context, tenantID string) (int, error)
}

// conversationRepository 对话 SQLite 仓储实现
type conversationRepository struct {
	db *sql.DB
}

// NewConversationRepository 创建对话仓储实例
func NewConversationRepository(db *sql.DB) (ConversationRepository, error) {
	if err := initConversationTables(db); err != nil {
		return nil, err
	}
	return &conversationRepository{db: db}, nil
}

// initConversationTables 初始化对话表
func initConversationTables(db *sql.DB) error {
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS conversations (
		tenant_id TEXT NOT NULL,
		conversation_id TEXT NOT NULL,
		total_turns INTEGER NOT NULL DEFAULT 0,
		document_ids TEXT NOT NULL DEFAULT '[]',
		created_at INTEGER NOT NULL,
		last_updated_at INTEGER NOT NULL,
		PRIMARY KEY (tenant_id, conversation_id)
	);
	CREATE TABLE IF NOT EXISTS conversation_turns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tenant_id TEXT NOT NULL,
		conversation_id TEXT NOT NULL,
		turn_index INTEGER NOT NULL,
		query TEXT NOT NULL,
		response TEXT NOT NULL,
		document_ids TEXT NOT NULL DEFAULT '[]',
		response_time_ms INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		UNIQUE (tenant_id, conversation_id, turn_index)
	);`

	if _, err := db.Exec(createTableSQL); err != nil {
		return fmt.Errorf("failed to create conversation tables: %w", err)
	}

	createIndexSQL := `
	CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(tenant_id, last_updated_at);
	CREATE INDEX IF NOT EXISTS idx_conversation_turns_conv ON conversation_turns(tenant_id, conversation_id);`

	if _, err := db.Exec(createIndexSQL); err != nil {
		return fmt.Errorf("failed to create conversation indexes: %w", err)
	}

	return nil
}

// Get 查询对话，不存在时返回 nil, nil
func (r *conversationRepository) Get(ctx context.Context, tenantID, conversationID string) (*domainRAG.ConversationState, error) {
	query := `
		SELECT total_turns, document_ids, created_at, last_updated_at
		FROM conversations
		WHERE tenant_id = ? AND conversation_id = ?`

	var totalTurns int
	var docsJSON string
	var createdAt, updatedAt int64

	err := r.db.QueryRowContext(ctx, query, tenantID, conversationID).Scan(
		&totalTurns,
		&docsJSON,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query conversation: %w", err)
	}

	state := &domainRAG.ConversationState{
		ConversationID: conversationID,
		TenantID:       tenantID,
		TotalTurns:     totalTurns,
		DocumentIDs:    make(map[string]bool),
		CreatedAt:      time.UnixMilli(createdAt),
		LastUpdatedAt:  time.UnixMilli(updatedAt),
	}

	var docIDs []string
	if err := json.Unmarshal([]byte(docsJSON), &docIDs); err != nil {
		return nil, fmt.Errorf("failed to decode document ids: %w", err)
	}
	for _, id := range docIDs {
		state.DocumentIDs[id] = true
	}

	turns, err := r.loadTurns(ctx, tenantID, conversationID)
	if err != nil {
		return nil, err
	}
	state.Turns = turns

	return state, nil
}

// loadTurns 按顺序加载对话轮次
func (r *conversationRepository) loadTurns(ctx context.Context, tenantID, conversationID string) ([]domainRAG.Turn, error) {
	query := `
		SELECT query, response, document_ids, response_time_ms, created_at
		FROM conversation_turns
		WHERE tenant_id = ? AND conversation_id = ?
		ORDER BY turn_index ASC`

	rows, err := r.db.QueryContext(ctx, query, tenantID, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation turns: %w", err)
	}
	defer rows.Close()

	turns := []domainRAG.Turn{}
	for rows.Next() {
		var turn domainRAG.Turn
		var docsJSON string
		var createdAt int64

		if err := rows.Scan(
			&turn.Query,
			&turn.Response,
			&docsJSON,
			&turn.ResponseTimeMs,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan conversation turn: %w", err)
		}
		if err := json.Unmarshal([]byte(docsJSON), &turn.DocumentIDs); err != nil {
			return nil, fmt.Errorf("failed to decode turn document ids: %w", err)
		}
		turn.Timestamp = time.UnixMilli(createdAt)
		turns = append(turns, turn)
	}

	return turns, rows.Err()
}

// Save 保存对话（整体替换轮次）
func (r *conversationRepository) Save(ctx context.Context, state *domainRAG.ConversationState) error {
	docIDs := make([]string, 0, len(state.DocumentIDs))
	for id := range state.DocumentIDs {
		docIDs = append(docIDs, id)
	}
	sort.Strings(docIDs)
	docsJSON, err := json.Marshal(docIDs)
	if err != nil {
		return fmt.Errorf("failed to encode document ids: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// 使用 INSERT OR REPLACE 实现 upsert
	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO conversations
		(tenant_id, conversation_id, total_turns, document_ids, created_at, last_updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		state.TenantID,
		state.ConversationID,
		state.TotalTurns,
		string(docsJSON),
		state.CreatedAt.UnixMilli(),
		state.LastUpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM conversation_turns WHERE tenant_id = ? AND conversation_id = ?`,
		state.TenantID, state.ConversationID,
	); err != nil {
		return fmt.Errorf("failed to clear conversation turns: %w", err)
	}

	for i, turn := range state.Turns {
		turnDocs, err := json.Marshal(nonNilStrings(turn.DocumentIDs))
		if err != nil {
			return fmt.Errorf("failed to encode turn document ids: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conversation_turns
			(tenant_id, conversation_id, turn_index, query, response, document_ids, response_time_ms, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			state.TenantID,
			state.ConversationID,
			i,
			turn.Query,
			turn.Response,
			string(turnDocs),
			turn.ResponseTimeMs,
			turn.Timestamp.UnixMilli(),
		); err != nil {
			return fmt.Errorf("failed to save conversation turn: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit conversation: %w", err)
	}
	return nil
}

// Delete 删除对话，返回是否存在
func (r *conversationRepository) Delete(ctx context.Context, tenantID, conversationID string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM conversation_turns WHERE tenant_id = ? AND conversation_id = ?`,
		tenantID, conversationID,
	); err != nil {
		return false, fmt.Errorf("failed to delete conversation turns: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`DELETE FROM conversations WHERE tenant_id = ? AND conversation_id = ?`,
		tenantID, conversationID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete conversation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit delete: %w", err)
	}
	return affected > 0, nil
}

// CountByTenant 统计租户下的对话数量
func (r *conversationRepository) CountByTenant(ctx context.Context, tenantID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conversations WHERE tenant_id = ?`, tenantID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count conversations: %w", err)
	}
	return count, nil
}

// nonNilStrings 保证 JSON 编码为 [] 而不是 null
func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// 编译时检查接口实现
// ProvideConversationStore 以仓储作为对话存储（Wire Provider）
func ProvideConversationStore(repo ConversationRepository) domainRAG.ConversationStore {
	return repo
}

var _ ConversationRepository = (*conversationRepository)(nil)
