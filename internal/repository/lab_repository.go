package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/geocms/lab-reservation/internal/model"
)

// ErrLabCodeExists is returned when a lab code is already taken.
var ErrLabCodeExists = errors.New("lab code already exists")

const labCols = `id, name, code, capacity, location, status, equipment_list, safety_guidelines, created_at, updated_at`

// LabRepo manages persistence for labs.
type LabRepo struct {
	db *sql.DB
}

// NewLabRepo constructs a LabRepo with the given DB handle.
func NewLabRepo(db *sql.DB) *LabRepo { return &LabRepo{db: db} }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLab(row rowScanner) (*model.Lab, error) {
	var l model.Lab
	if err := row.Scan(&l.ID, &l.Name, &l.Code, &l.Capacity, &l.Location, &l.Status,
		&l.EquipmentList, &l.SafetyGuidelines, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	return &l, nil
}

// Get returns the lab with the given id or ErrNotFound.
func (r *LabRepo) Get(ctx context.Context, id uint64) (*model.Lab, error) {
	l, err := scanLab(r.db.QueryRowContext(ctx, `SELECT `+labCols+` FROM labs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return l, err
}

// List returns all labs ordered by code.  When status is non-empty only
// labs in that state are returned.
func (r *LabRepo) List(ctx context.Context, status model.LabStatus) ([]model.Lab, error) {
	q := `SELECT ` + labCols + ` FROM labs`
	var args []any
	if status != "" {
		q += ` WHERE status = ?`
		args = append(args, status)
	}
	q += ` ORDER BY code`
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	labs := make([]model.Lab, 0)
	for rows.Next() {
		l, err := scanLab(rows)
		if err != nil {
			return nil, err
		}
		labs = append(labs, *l)
	}
	return labs, rows.Err()
}

// Create inserts a lab and reloads it so DB defaults are populated.
func (r *LabRepo) Create(ctx context.Context, l *model.Lab) error {
	const q = `INSERT INTO labs (name, code, capacity, location, status, equipment_list, safety_guidelines)
               VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, l.Name, l.Code, l.Capacity, l.Location, l.Status, l.EquipmentList, l.SafetyGuidelines)
	if err != nil {
		if IsDuplicate(err) {
			return ErrLabCodeExists
		}
		return fmt.Errorf("insert lab: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	fresh, err := r.Get(ctx, uint64(id))
	if err != nil {
		return err
	}
	*l = *fresh
	return nil
}

// Update overwrites the editable descriptive fields of a lab.  Status is
// changed through SetStatus only.
func (r *LabRepo) Update(ctx context.Context, l *model.Lab) error {
	const q = `UPDATE labs SET name = ?, code = ?, capacity = ?, location = ?, equipment_list = ?, safety_guidelines = ?
               WHERE id = ?`
	res, err := r.db.ExecContext(ctx, q, l.Name, l.Code, l.Capacity, l.Location, l.EquipmentList, l.SafetyGuidelines, l.ID)
	if err != nil {
		if IsDuplicate(err) {
			return ErrLabCodeExists
		}
		return fmt.Errorf("update lab: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// MySQL reports 0 affected rows for a no-op update too; tell the
		// two apart with an existence check.
		if _, err := r.Get(ctx, l.ID); err != nil {
			return err
		}
	}
	fresh, err := r.Get(ctx, l.ID)
	if err != nil {
		return err
	}
	*l = *fresh
	return nil
}

// SetStatus moves a lab to a new operational status.
func (r *LabRepo) SetStatus(ctx context.Context, id uint64, status model.LabStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE labs SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("update lab status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
