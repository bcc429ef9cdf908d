package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/susu/internal/models"
)

const groupColumns = `id, name, description, daily_amount, group_size, days_per_turn, payout_amount,
	type, status, can_exit_after_start, current_cycle, current_cycle_started_at, pause_reason,
	created_by, created_at, updated_at, started_at, ended_at`

func scanGroup(row scanner) (*models.Group, error) {
	g := &models.Group{}
	var (
		cycleStarted, started, ended sql.NullInt64
		createdAt, updatedAt         int64
	)
	err := row.Scan(&g.ID, &g.Name, &g.Description, &g.DailyAmount, &g.GroupSize, &g.DaysPerTurn,
		&g.PayoutAmount, &g.Type, &g.Status, &g.CanExitAfterStart, &g.CurrentCycle, &cycleStarted,
		&g.PauseReason, &g.CreatedBy, &createdAt, &updatedAt, &started, &ended)
	if err != nil {
		return nil, err
	}
	g.CreatedAt = fromUnix(createdAt)
	g.UpdatedAt = fromUnix(updatedAt)
	g.CurrentCycleStartedAt = fromNullUnix(cycleStarted)
	g.StartedAt = fromNullUnix(started)
	g.EndedAt = fromNullUnix(ended)
	return g, nil
}

// CreateGroup persists a new group.
func (r *repo) CreateGroup(ctx context.Context, g *models.Group) error {
	// Generate IDs if not set
	if g.ID == "" {
		g.ID = uuid.New().String()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now()
	}
	if g.UpdatedAt.IsZero() {
		g.UpdatedAt = g.CreatedAt
	}

	_, err := r.q.ExecContext(ctx,
		`INSERT INTO groups (`+groupColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.Name, g.Description, g.DailyAmount, g.GroupSize, g.DaysPerTurn, g.PayoutAmount,
		g.Type, g.Status, g.CanExitAfterStart, g.CurrentCycle, nullUnix(g.CurrentCycleStartedAt), g.PauseReason,
		g.CreatedBy, unix(g.CreatedAt), unix(g.UpdatedAt), nullUnix(g.StartedAt), nullUnix(g.EndedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert group: %w", err)
	}
	return nil
}

// GetGroup retrieves a group by ID.
func (r *repo) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+groupColumns+` FROM groups WHERE id = ?`, groupID)
	g, err := scanGroup(row)
	if err != nil {
		return nil, notFound(err, "group", groupID)
	}
	return g, nil
}

// UpdateGroup writes every mutable column of an existing group.
func (r *repo) UpdateGroup(ctx context.Context, g *models.Group) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE groups SET name = ?, description = ?, daily_amount = ?, group_size = ?, days_per_turn = ?,
			payout_amount = ?, type = ?, status = ?, can_exit_after_start = ?, current_cycle = ?,
			current_cycle_started_at = ?, pause_reason = ?, updated_at = ?, started_at = ?, ended_at = ?
		 WHERE id = ?`,
		g.Name, g.Description, g.DailyAmount, g.GroupSize, g.DaysPerTurn,
		g.PayoutAmount, g.Type, g.Status, g.CanExitAfterStart, g.CurrentCycle,
		nullUnix(g.CurrentCycleStartedAt), g.PauseReason, unix(g.UpdatedAt), nullUnix(g.StartedAt), nullUnix(g.EndedAt),
		g.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update group: %w", err)
	}
	return expectOne(res, "group", g.ID)
}

// ListGroups returns groups in any of the given statuses, or all groups when none are given.
func (r *repo) ListGroups(ctx context.Context, statuses ...models.GroupStatus) ([]*models.Group, error) {
	query := `SELECT ` + groupColumns + ` FROM groups`
	args := make([]any, len(statuses))
	for i, s := range statuses {
		args[i] = s
	}
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + placeholders(len(statuses)) + `)`
	}
	query += ` ORDER BY created_at, id`

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	var groups []*models.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate groups: %w", err)
	}
	return groups, nil
}

func expectOne(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return models.Errorf(models.KindNotFound, "%s not found: %s", entity, id)
	}
	return nil
}
