package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"beru/backend/internal/model"
)

type sqlRepository struct {
	db *sql.DB
}

// NewSQLRepository works with any database/sql handle using '?' placeholders
// (MySQL and SQLite). Each call acquires its own connection and releases it
// before returning.
func NewSQLRepository(db *sql.DB) ConversationRepository {
	return &sqlRepository{db: db}
}

// acquire hands out a dedicated connection; the caller must Close it.
func (r *sqlRepository) acquire(ctx context.Context) (*sql.Conn, error) {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}
	return conn, nil
}

func release(conn *sql.Conn) {
	if err := conn.Close(); err != nil {
		slog.Warn("Failed to release database connection", "error", err)
	}
}

func (r *sqlRepository) InsertConversation(ctx context.Context, title, response string) error {
	conn, err := r.acquire(ctx)
	if err != nil {
		return err
	}
	defer release(conn)

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	// Ensure transaction is rolled back on error
	defer func() { _ = tx.Rollback() }()

	query := "INSERT INTO conversation_history (title, response) VALUES (?, ?)"
	if _, err := tx.ExecContext(ctx, query, title, response); err != nil {
		return fmt.Errorf("could not insert conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit conversation: %w", err)
	}
	return nil
}

func (r *sqlRepository) ListConversations(ctx context.Context) ([]model.ConversationRecord, error) {
	conn, err := r.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release(conn)

	// id breaks ties between rows written within the same second.
	query := `
		SELECT id, title, response, timestamp
		FROM conversation_history
		ORDER BY timestamp DESC, id DESC
	`
	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("could not query conversations: %w", err)
	}
	defer rows.Close()

	records := make([]model.ConversationRecord, 0)
	for rows.Next() {
		var rec model.ConversationRecord
		if err := rows.Scan(&rec.ID, &rec.Title, &rec.Response, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("could not scan conversation: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("could not read conversations: %w", err)
	}
	return records, nil
}
