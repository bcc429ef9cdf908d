package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/susu/internal/models"
	"github.com/mmynk/susu/internal/storage"
)

const payoutColumns = `id, membership_id, group_id, user_id, amount, status, turn, scheduled_for,
	approved_by, approved_at, paid_at, skipped_at, skip_reason, created_at, updated_at`

func scanPayout(row scanner) (*models.PayoutSchedule, error) {
	p := &models.PayoutSchedule{}
	var (
		scheduledFor, createdAt, updatedAt int64
		approvedAt, paidAt, skippedAt      sql.NullInt64
	)
	if err := row.Scan(&p.ID, &p.MembershipID, &p.GroupID, &p.UserID, &p.Amount, &p.Status, &p.Turn,
		&scheduledFor, &p.ApprovedBy, &approvedAt, &paidAt, &skippedAt, &p.SkipReason, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	p.ScheduledFor = fromUnix(scheduledFor)
	p.CreatedAt = fromUnix(createdAt)
	p.UpdatedAt = fromUnix(updatedAt)
	p.ApprovedAt = fromNullUnix(approvedAt)
	p.PaidAt = fromNullUnix(paidAt)
	p.SkippedAt = fromNullUnix(skippedAt)
	return p, nil
}

// CreatePayout persists a new payout. A second open payout for the same membership
// is rejected by the database.
func (r *repo) CreatePayout(ctx context.Context, p *models.PayoutSchedule) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}

	_, err := r.q.ExecContext(ctx,
		`INSERT INTO payout_schedules (`+payoutColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.MembershipID, p.GroupID, p.UserID, p.Amount, p.Status, p.Turn, unix(p.ScheduledFor),
		p.ApprovedBy, nullUnix(p.ApprovedAt), nullUnix(p.PaidAt), nullUnix(p.SkippedAt), p.SkipReason,
		unix(p.CreatedAt), unix(p.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Errorf(models.KindDuplicatePayout, "membership %s already has an open payout", p.MembershipID)
		}
		return fmt.Errorf("failed to insert payout schedule: %w", err)
	}
	return nil
}

// GetPayout retrieves a payout schedule by ID.
func (r *repo) GetPayout(ctx context.Context, payoutID string) (*models.PayoutSchedule, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+payoutColumns+` FROM payout_schedules WHERE id = ?`, payoutID)
	p, err := scanPayout(row)
	if err != nil {
		return nil, notFound(err, "payout schedule", payoutID)
	}
	return p, nil
}

// UpdatePayout writes the status columns of a payout.
func (r *repo) UpdatePayout(ctx context.Context, p *models.PayoutSchedule) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE payout_schedules SET status = ?, scheduled_for = ?, approved_by = ?, approved_at = ?, paid_at = ?,
			skipped_at = ?, skip_reason = ?, updated_at = ?
		 WHERE id = ?`,
		p.Status, unix(p.ScheduledFor), p.ApprovedBy, nullUnix(p.ApprovedAt), nullUnix(p.PaidAt),
		nullUnix(p.SkippedAt), p.SkipReason, unix(p.UpdatedAt), p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update payout schedule: %w", err)
	}
	return expectOne(res, "payout schedule", p.ID)
}

// ListPayouts returns payouts matching the filter in the order they were scheduled.
func (r *repo) ListPayouts(ctx context.Context, f storage.PayoutFilter) ([]*models.PayoutSchedule, error) {
	var (
		conds []string
		args  []any
	)
	if f.GroupID != "" {
		conds = append(conds, "group_id = ?")
		args = append(args, f.GroupID)
	}
	if f.MembershipID != "" {
		conds = append(conds, "membership_id = ?")
		args = append(args, f.MembershipID)
	}
	if len(f.Statuses) > 0 {
		conds = append(conds, "status IN ("+placeholders(len(f.Statuses))+")")
		for _, s := range f.Statuses {
			args = append(args, s)
		}
	}
	if f.DueBy != nil {
		conds = append(conds, "scheduled_for <= ?")
		args = append(args, unix(*f.DueBy))
	}

	query := `SELECT ` + payoutColumns + ` FROM payout_schedules`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY turn, created_at, id`

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list payout schedules: %w", err)
	}
	defer rows.Close()

	var out []*models.PayoutSchedule
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payout schedule: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payout schedules: %w", err)
	}
	return out, nil
}
