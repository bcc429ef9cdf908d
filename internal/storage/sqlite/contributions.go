package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmynk/susu/internal/models"
	"github.com/mmynk/susu/internal/storage"
)

const contributionColumns = `id, membership_id, group_id, user_id, cycle, due_date, amount, status,
	grace_period_ends_at, late_fee, paid_amount, paid_at, payment_method, grace_reminder_sent_at, created_at`

func scanContribution(row scanner) (*models.ContributionSchedule, error) {
	cs := &models.ContributionSchedule{}
	var (
		due, graceEnd, createdAt int64
		paidAmount               decimal.NullDecimal
		paidAt, reminded         sql.NullInt64
	)
	if err := row.Scan(&cs.ID, &cs.MembershipID, &cs.GroupID, &cs.UserID, &cs.Cycle, &due, &cs.Amount,
		&cs.Status, &graceEnd, &cs.LateFee, &paidAmount, &paidAt, &cs.PaymentMethod, &reminded, &createdAt); err != nil {
		return nil, err
	}
	cs.DueDate = fromUnix(due)
	cs.GracePeriodEndsAt = fromUnix(graceEnd)
	cs.CreatedAt = fromUnix(createdAt)
	cs.PaidAmount = fromNullDecimal(paidAmount)
	cs.PaidAt = fromNullUnix(paidAt)
	cs.GraceReminderSentAt = fromNullUnix(reminded)
	return cs, nil
}

// CreateContributions inserts a batch of obligations. A duplicate (membership, due date)
// pair fails the whole batch.
func (r *repo) CreateContributions(ctx context.Context, schedules []*models.ContributionSchedule) error {
	for _, cs := range schedules {
		if cs.ID == "" {
			cs.ID = uuid.New().String()
		}
		if cs.CreatedAt.IsZero() {
			cs.CreatedAt = time.Now()
		}
		_, err := r.q.ExecContext(ctx,
			`INSERT INTO contribution_schedules (`+contributionColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			cs.ID, cs.MembershipID, cs.GroupID, cs.UserID, cs.Cycle, unix(cs.DueDate), cs.Amount, cs.Status,
			unix(cs.GracePeriodEndsAt), cs.LateFee, nullDecimal(cs.PaidAmount), nullUnix(cs.PaidAt),
			cs.PaymentMethod, nullUnix(cs.GraceReminderSentAt), unix(cs.CreatedAt),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return models.Errorf(models.KindInvalidTransition,
					"contribution already scheduled for membership %s on %s", cs.MembershipID, cs.DueDate.Format(time.DateOnly))
			}
			return fmt.Errorf("failed to insert contribution schedule: %w", err)
		}
	}
	return nil
}

// GetContribution retrieves a contribution schedule by ID.
func (r *repo) GetContribution(ctx context.Context, scheduleID string) (*models.ContributionSchedule, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+contributionColumns+` FROM contribution_schedules WHERE id = ?`, scheduleID)
	cs, err := scanContribution(row)
	if err != nil {
		return nil, notFound(err, "contribution schedule", scheduleID)
	}
	return cs, nil
}

// UpdateContribution writes the settlement and reminder columns of an obligation.
func (r *repo) UpdateContribution(ctx context.Context, cs *models.ContributionSchedule) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE contribution_schedules SET status = ?, late_fee = ?, paid_amount = ?, paid_at = ?,
			payment_method = ?, grace_reminder_sent_at = ?
		 WHERE id = ?`,
		cs.Status, cs.LateFee, nullDecimal(cs.PaidAmount), nullUnix(cs.PaidAt),
		cs.PaymentMethod, nullUnix(cs.GraceReminderSentAt), cs.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update contribution schedule: %w", err)
	}
	return expectOne(res, "contribution schedule", cs.ID)
}

// ListContributions returns obligations matching the filter ordered by due date.
func (r *repo) ListContributions(ctx context.Context, f storage.ContributionFilter) ([]*models.ContributionSchedule, error) {
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
	if f.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.Unsettled {
		conds = append(conds, "status = ?")
		args = append(args, models.ContributionPending)
	}
	if f.DueFrom != nil {
		conds = append(conds, "due_date >= ?")
		args = append(args, unix(*f.DueFrom))
	}
	if f.DueTo != nil {
		conds = append(conds, "due_date < ?")
		args = append(args, unix(*f.DueTo))
	}

	query := `SELECT ` + contributionColumns + ` FROM contribution_schedules`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY due_date, created_at, id`

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list contribution schedules: %w", err)
	}
	defer rows.Close()

	var out []*models.ContributionSchedule
	for rows.Next() {
		cs, err := scanContribution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contribution schedule: %w", err)
		}
		out = append(out, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate contribution schedules: %w", err)
	}
	return out, nil
}

// isUniqueViolation reports whether err came from a UNIQUE constraint.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
