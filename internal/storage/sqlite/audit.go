package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/susu/internal/models"
)

// InsertAudit appends an entry to the audit log.
func (r *repo) InsertAudit(ctx context.Context, e *models.AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	details := e.Details
	if details == nil {
		details = map[string]string{}
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed to encode audit details: %w", err)
	}

	_, err = r.q.ExecContext(ctx,
		`INSERT INTO audit_log (id, actor_id, action, entity_type, entity_id, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ActorID, e.Action, e.EntityType, e.EntityID, string(raw), unix(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// ListAudit returns the entries recorded against one entity, oldest first.
func (r *repo) ListAudit(ctx context.Context, entityType, entityID string) ([]*models.AuditEntry, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, actor_id, action, entity_type, entity_id, details, created_at
		 FROM audit_log WHERE entity_type = ? AND entity_id = ?
		 ORDER BY created_at, rowid`,
		entityType, entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var out []*models.AuditEntry
	for rows.Next() {
		var (
			e         models.AuditEntry
			raw       string
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.EntityType, &e.EntityID, &raw, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &e.Details); err != nil {
			return nil, fmt.Errorf("failed to decode audit details: %w", err)
		}
		e.CreatedAt = fromUnix(createdAt)
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit entries: %w", err)
	}
	return out, nil
}
