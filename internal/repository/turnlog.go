package repository

import (
	"context"

	"github.com/pkg/errors"

	"github.com/voldermortik/blue-horizon-ai-concierge/internal/model"
)

// LogTurn records a handled turn
func (s *Store) LogTurn(ctx context.Context, entry model.TurnLog) error {
	query := `
		INSERT INTO turn_logs (conversation_id, turn_seq, intent, error_kinds, reservation_id, degraded, latency_ms)
		VALUES (:conversation_id, :turn_seq, :intent, :error_kinds, :reservation_id, :degraded, :latency_ms)
	`
	if _, err := s.db.NamedExecContext(ctx, query, entry); err != nil {
		return errors.Wrap(err, "failed to log turn")
	}
	return nil
}

// TurnLogs returns the logged turns of a conversation in order
func (s *Store) TurnLogs(ctx context.Context, conversationID string) ([]model.TurnLog, error) {
	query := s.Rebind(`
		SELECT id, conversation_id, turn_seq, intent, error_kinds, reservation_id, degraded, latency_ms
		FROM turn_logs
		WHERE conversation_id = ?
		ORDER BY turn_seq, id
	`)
	var logs []model.TurnLog
	if err := s.db.SelectContext(ctx, &logs, query, conversationID); err != nil {
		return nil, errors.Wrap(err, "failed to read turn logs")
	}
	return logs, nil
}
