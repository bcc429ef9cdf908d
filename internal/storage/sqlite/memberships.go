package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/susu/internal/models"
)

const membershipColumns = `id, group_id, user_id, status, turn_position, has_received_payout,
	status_reason, joined_at, updated_at, left_at`

func scanMembership(row scanner) (*models.Membership, error) {
	m := &models.Membership{}
	var (
		joinedAt, updatedAt int64
		leftAt              sql.NullInt64
	)
	if err := row.Scan(&m.ID, &m.GroupID, &m.UserID, &m.Status, &m.TurnPosition, &m.HasReceivedPayout,
		&m.StatusReason, &joinedAt, &updatedAt, &leftAt); err != nil {
		return nil, err
	}
	m.JoinedAt = fromUnix(joinedAt)
	m.UpdatedAt = fromUnix(updatedAt)
	m.LeftAt = fromNullUnix(leftAt)
	return m, nil
}

// CreateMembership persists a new membership.
func (r *repo) CreateMembership(ctx context.Context, m *models.Membership) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now()
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = m.JoinedAt
	}

	_, err := r.q.ExecContext(ctx,
		`INSERT INTO memberships (`+membershipColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.GroupID, m.UserID, m.Status, m.TurnPosition, m.HasReceivedPayout,
		m.StatusReason, unix(m.JoinedAt), unix(m.UpdatedAt), nullUnix(m.LeftAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert membership: %w", err)
	}
	return nil
}

// GetMembership retrieves a membership by ID.
func (r *repo) GetMembership(ctx context.Context, membershipID string) (*models.Membership, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+membershipColumns+` FROM memberships WHERE id = ?`, membershipID)
	m, err := scanMembership(row)
	if err != nil {
		return nil, notFound(err, "membership", membershipID)
	}
	return m, nil
}

// UpdateMembership writes status, payout flag and timestamps. Turn positions change only
// through ReassignPositions.
func (r *repo) UpdateMembership(ctx context.Context, m *models.Membership) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE memberships SET status = ?, has_received_payout = ?, status_reason = ?, updated_at = ?, left_at = ?
		 WHERE id = ?`,
		m.Status, m.HasReceivedPayout, m.StatusReason, unix(m.UpdatedAt), nullUnix(m.LeftAt), m.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update membership: %w", err)
	}
	return expectOne(res, "membership", m.ID)
}

func (r *repo) listMemberships(ctx context.Context, where string, arg any) ([]*models.Membership, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+membershipColumns+` FROM memberships WHERE `+where+` ORDER BY turn_position, joined_at, id`, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	var out []*models.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate memberships: %w", err)
	}
	return out, nil
}

// ListMemberships returns every membership of a group ordered by turn position.
func (r *repo) ListMemberships(ctx context.Context, groupID string) ([]*models.Membership, error) {
	return r.listMemberships(ctx, "group_id = ?", groupID)
}

// ListMembershipsByUser returns every membership a user holds, across groups.
func (r *repo) ListMembershipsByUser(ctx context.Context, userID string) ([]*models.Membership, error) {
	return r.listMemberships(ctx, "user_id = ?", userID)
}

// ReassignPositions moves every listed membership to its new position. Positions are
// first parked at negative values so a permutation never collides with itself.
func (r *repo) ReassignPositions(ctx context.Context, groupID string, positions map[string]int) error {
	for id := range positions {
		res, err := r.q.ExecContext(ctx,
			`UPDATE memberships SET turn_position = -turn_position - 1 WHERE id = ? AND group_id = ?`, id, groupID)
		if err != nil {
			return fmt.Errorf("failed to park turn position: %w", err)
		}
		if err := expectOne(res, "membership", id); err != nil {
			return err
		}
	}
	for id, pos := range positions {
		if _, err := r.q.ExecContext(ctx,
			`UPDATE memberships SET turn_position = ? WHERE id = ? AND group_id = ?`, pos, id, groupID); err != nil {
			return fmt.Errorf("failed to assign turn position: %w", err)
		}
	}
	return nil
}
