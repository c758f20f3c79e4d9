package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/geocms/lab-reservation/internal/model"
)

const issueCols = `id, lab_id, reported_by, issue_type, priority, title, description, status,
       assigned_to, resolved_by, resolved_at, created_at, updated_at`

// IssueRepo persists issue reports.
type IssueRepo struct {
	db *sql.DB
}

func NewIssueRepo(db *sql.DB) *IssueRepo { return &IssueRepo{db: db} }

func scanIssue(row rowScanner) (*model.IssueReport, error) {
	var (
		is         model.IssueReport
		labID      sql.NullInt64
		assigned   sql.NullInt64
		resolvedBy sql.NullInt64
		resolvedAt sql.NullTime
	)
	if err := row.Scan(&is.ID, &labID, &is.ReportedBy, &is.IssueType, &is.Priority, &is.Title,
		&is.Description, &is.Status, &assigned, &resolvedBy, &resolvedAt, &is.CreatedAt, &is.UpdatedAt); err != nil {
		return nil, err
	}
	is.LabID = nullUint(labID)
	is.AssignedTo = nullUint(assigned)
	is.ResolvedBy = nullUint(resolvedBy)
	if resolvedAt.Valid {
		t := resolvedAt.Time.UTC()
		is.ResolvedAt = &t
	}
	return &is, nil
}

func nullUint(v sql.NullInt64) *uint64 {
	if !v.Valid {
		return nil
	}
	u := uint64(v.Int64)
	return &u
}

func nullInt(v *uint64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

// Get returns an issue by id or ErrNotFound.
func (r *IssueRepo) Get(ctx context.Context, id uint64) (*model.IssueReport, error) {
	is, err := scanIssue(r.db.QueryRowContext(ctx, `SELECT `+issueCols+` FROM issue_reports WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return is, err
}

// List returns issues newest first.  A non-nil reporter restricts the list
// to that user's reports; a non-empty status filters by state.
func (r *IssueRepo) List(ctx context.Context, reporter *uint64, status model.IssueStatus) ([]model.IssueReport, error) {
	q := `SELECT ` + issueCols + ` FROM issue_reports WHERE 1=1`
	var args []any
	if reporter != nil {
		q += ` AND reported_by = ?`
		args = append(args, *reporter)
	}
	if status != "" {
		q += ` AND status = ?`
		args = append(args, status)
	}
	q += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.IssueReport, 0)
	for rows.Next() {
		is, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *is)
	}
	return out, rows.Err()
}

// Create inserts a new report in the pending state.
func (r *IssueRepo) Create(ctx context.Context, is *model.IssueReport) error {
	const q = `INSERT INTO issue_reports (lab_id, reported_by, issue_type, priority, title, description, status)
               VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, nullInt(is.LabID), is.ReportedBy, is.IssueType, is.Priority,
		is.Title, is.Description, is.Status)
	if err != nil {
		return fmt.Errorf("insert issue: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	fresh, err := r.Get(ctx, uint64(id))
	if err != nil {
		return err
	}
	*is = *fresh
	return nil
}

// Assign sets the staff member responsible for an issue.
func (r *IssueRepo) Assign(ctx context.Context, id, assignee uint64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE issue_reports SET assigned_to = ? WHERE id = ?`, assignee, id)
	if err != nil {
		return fmt.Errorf("assign issue: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// UpdateStatus moves an issue from one state to another.  resolvedBy is
// recorded when the new state is resolved.  ErrConflict is returned when
// the issue is no longer in state from.
func (r *IssueRepo) UpdateStatus(ctx context.Context, id uint64, from, to model.IssueStatus, resolvedBy uint64) error {
	var (
		res sql.Result
		err error
	)
	if to == model.IssueResolved {
		res, err = r.db.ExecContext(ctx,
			`UPDATE issue_reports SET status = ?, resolved_by = ?, resolved_at = ? WHERE id = ? AND status = ?`,
			to, resolvedBy, nowUTC(), id, from)
	} else {
		res, err = r.db.ExecContext(ctx,
			`UPDATE issue_reports SET status = ? WHERE id = ? AND status = ?`, to, id, from)
	}
	if err != nil {
		return fmt.Errorf("update issue status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}
