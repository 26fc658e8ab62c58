package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type Turn struct {
	ID        int64  `json:"id"`
	SessionID string `json:"session_id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Handler   string `json:"handler,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

type HistoryStore struct {
	db *DB
}

func NewHistoryStore(database *DB) *HistoryStore {
	return &HistoryStore{db: database}
}

// AppendTurn records one complete exchange: the user message and the
// assistant reply, in a single transaction so history never holds a
// dangling user row.
func (s *HistoryStore) AppendTurn(ctx context.Context, sessionID string, userMessage string, assistantReply string, handler string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return fmt.Errorf("session_id is required")
	}

	now := time.Now().Unix()
	tx, err := s.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	insert := `INSERT INTO chat_history (session_id, role, content, handler, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, insert, sessionID, "user", userMessage, "", now); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, insert, sessionID, "assistant", assistantReply, handler, now); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *HistoryStore) GetHistory(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, session_id, role, content, handler, created_at FROM chat_history WHERE session_id = ? ORDER BY id DESC LIMIT ?`
	rows, err := s.db.Conn().QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Turn, 0, limit)
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Role, &t.Content, &t.Handler, &t.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// reverse to chronological order
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items, nil
}

func (s *HistoryStore) CountTurns(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := s.db.Conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM chat_history WHERE session_id = ?`, sessionID).Scan(&count)
	return count, err
}
