package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/geocms/lab-reservation/internal/model"
)

// TimetableRepo manages the recurring class schedule in lab_timetables.
type TimetableRepo struct {
	db *sql.DB
}

func NewTimetableRepo(db *sql.DB) *TimetableRepo { return &TimetableRepo{db: db} }

// ListByLab returns every recurring entry of a lab.
func (r *TimetableRepo) ListByLab(ctx context.Context, labID uint64) ([]model.TimetableEntry, error) {
	const q = `SELECT id, lab_id, day_of_week, start_time, end_time, subject, lecturer_id, batch, semester
               FROM lab_timetables WHERE lab_id = ? ORDER BY start_time, id`
	rows, err := r.db.QueryContext(ctx, q, labID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.TimetableEntry, 0)
	for rows.Next() {
		var (
			e        model.TimetableEntry
			lecturer sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.LabID, &e.DayOfWeek, &e.StartTime, &e.EndTime, &e.Subject,
			&lecturer, &e.Batch, &e.Semester); err != nil {
			return nil, err
		}
		if lecturer.Valid {
			id := uint64(lecturer.Int64)
			e.LecturerID = &id
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Create inserts a recurring entry and sets its ID.
func (r *TimetableRepo) Create(ctx context.Context, e *model.TimetableEntry) error {
	const q = `INSERT INTO lab_timetables (lab_id, day_of_week, start_time, end_time, subject, lecturer_id, batch, semester)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	var lecturer sql.NullInt64
	if e.LecturerID != nil {
		lecturer = sql.NullInt64{Int64: int64(*e.LecturerID), Valid: true}
	}
	res, err := r.db.ExecContext(ctx, q, e.LabID, e.DayOfWeek, e.StartTime, e.EndTime, e.Subject, lecturer, e.Batch, e.Semester)
	if err != nil {
		return fmt.Errorf("insert timetable entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = uint64(id)
	return nil
}

// Delete removes an entry and returns the lab it belonged to.
func (r *TimetableRepo) Delete(ctx context.Context, id uint64) (uint64, error) {
	var labID uint64
	err := r.db.QueryRowContext(ctx, `SELECT lab_id FROM lab_timetables WHERE id = ?`, id).Scan(&labID)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM lab_timetables WHERE id = ?`, id); err != nil {
		return 0, fmt.Errorf("delete timetable entry: %w", err)
	}
	return labID, nil
}
