package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/geocms/lab-reservation/internal/model"
)

const reservationCols = `id, lab_id, user_id, reservation_date, start_time, end_time, purpose, expected_attendees,
       special_requirements, status, request_date, approved_by, approved_date, rejection_reason, notes`

// ReservationTx is the view of the reservation table available while a
// lab row is locked.  Every read and write made through it happens in the
// same transaction, so a conflict check followed by a write cannot
// interleave with another writer for the same lab.
type ReservationTx interface {
	// Lab returns the locked lab row.
	Lab() model.Lab
	// Get loads a reservation of the locked lab and locks its row.
	Get(ctx context.Context, id uint64) (*model.Reservation, error)
	// ListOnDate returns the lab's reservations on date in the given states.
	ListOnDate(ctx context.Context, date model.Date, statuses ...model.ReservationStatus) ([]model.Reservation, error)
	// Insert stores a new reservation and sets its ID.
	Insert(ctx context.Context, r *model.Reservation) error
	// Transition applies ch to reservation id if it is still in state from.
	Transition(ctx context.Context, id uint64, from model.ReservationStatus, ch model.StatusChange) error
}

// ReservationRepo provides access to lab_reservations.  Writes that depend
// on an overlap check go through WithinLabLock.  All timestamps are stored
// in UTC.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

func scanReservation(row rowScanner) (*model.Reservation, error) {
	var (
		r          model.Reservation
		special    sql.NullString
		approvedBy sql.NullInt64
		approvedAt sql.NullTime
		reason     sql.NullString
		notes      sql.NullString
	)
	if err := row.Scan(&r.ID, &r.LabID, &r.UserID, &r.Date, &r.StartTime, &r.EndTime, &r.Purpose,
		&r.ExpectedAttendees, &special, &r.Status, &r.RequestDate, &approvedBy, &approvedAt,
		&reason, &notes); err != nil {
		return nil, err
	}
	if special.Valid {
		r.SpecialRequirements = &special.String
	}
	if approvedBy.Valid {
		id := uint64(approvedBy.Int64)
		r.ApprovedBy = &id
	}
	if approvedAt.Valid {
		t := approvedAt.Time.UTC()
		r.ApprovedDate = &t
	}
	if reason.Valid {
		r.RejectionReason = &reason.String
	}
	if notes.Valid {
		r.Notes = &notes.String
	}
	r.RequestDate = r.RequestDate.UTC()
	return &r, nil
}

func scanReservations(rows *sql.Rows) ([]model.Reservation, error) {
	defer rows.Close()
	out := make([]model.Reservation, 0)
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// Get returns a reservation by id or ErrNotFound.
func (r *ReservationRepo) Get(ctx context.Context, id uint64) (*model.Reservation, error) {
	res, err := scanReservation(r.db.QueryRowContext(ctx,
		`SELECT `+reservationCols+` FROM lab_reservations WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return res, err
}

// ListByUser returns every reservation requested by userID, newest first.
func (r *ReservationRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Reservation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+reservationCols+` FROM lab_reservations WHERE user_id = ? ORDER BY request_date DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	return scanReservations(rows)
}

// ListByStatus returns reservations in the given state ordered by the day
// and time they are for.
func (r *ReservationRepo) ListByStatus(ctx context.Context, status model.ReservationStatus) ([]model.Reservation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+reservationCols+` FROM lab_reservations WHERE status = ? ORDER BY reservation_date, start_time, id`, status)
	if err != nil {
		return nil, err
	}
	return scanReservations(rows)
}

// ListApprovedBetween returns the approved reservations of a lab whose date
// lies in [from, to], inclusive on both ends.
func (r *ReservationRepo) ListApprovedBetween(ctx context.Context, labID uint64, from, to model.Date) ([]model.Reservation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+reservationCols+` FROM lab_reservations
         WHERE lab_id = ? AND status = ? AND reservation_date BETWEEN ? AND ?
         ORDER BY reservation_date, start_time`, labID, model.StatusApproved, from, to)
	if err != nil {
		return nil, err
	}
	return scanReservations(rows)
}

// CompleteElapsed marks approved reservations that ended before the given
// day and time as completed.  It returns the number of rows changed.
func (r *ReservationRepo) CompleteElapsed(ctx context.Context, today model.Date, now model.TimeOfDay) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE lab_reservations SET status = ?
         WHERE status = ? AND (reservation_date < ? OR (reservation_date = ? AND end_time <= ?))`,
		model.StatusCompleted, model.StatusApproved, today, today, now)
	if err != nil {
		return 0, fmt.Errorf("complete elapsed reservations: %w", err)
	}
	return res.RowsAffected()
}

// WithinLabLock runs fn in a transaction that holds a row lock on the lab.
// Concurrent submissions and approvals for the same lab therefore run one
// after another.  fn's error aborts the transaction and is returned as is.
// ErrNotFound is returned when the lab does not exist.
func (r *ReservationRepo) WithinLabLock(ctx context.Context, labID uint64, fn func(ReservationTx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	lab, err := scanLab(tx.QueryRowContext(ctx, `SELECT `+labCols+` FROM labs WHERE id = ? FOR UPDATE`, labID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("lock lab: %w", err)
	}
	if err := fn(&reservationTx{tx: tx, lab: *lab}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

type reservationTx struct {
	tx  *sql.Tx
	lab model.Lab
}

func (t *reservationTx) Lab() model.Lab { return t.lab }

func (t *reservationTx) Get(ctx context.Context, id uint64) (*model.Reservation, error) {
	res, err := scanReservation(t.tx.QueryRowContext(ctx,
		`SELECT `+reservationCols+` FROM lab_reservations WHERE id = ? AND lab_id = ? FOR UPDATE`, id, t.lab.ID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return res, err
}

func (t *reservationTx) ListOnDate(ctx context.Context, date model.Date, statuses ...model.ReservationStatus) ([]model.Reservation, error) {
	q := `SELECT ` + reservationCols + ` FROM lab_reservations WHERE lab_id = ? AND reservation_date = ?`
	args := []any{t.lab.ID, date}
	if len(statuses) > 0 {
		q += ` AND status IN (?` + strings.Repeat(", ?", len(statuses)-1) + `)`
		for _, s := range statuses {
			args = append(args, s)
		}
	}
	q += ` ORDER BY start_time`
	rows, err := t.tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return scanReservations(rows)
}

func (t *reservationTx) Insert(ctx context.Context, r *model.Reservation) error {
	const q = `INSERT INTO lab_reservations
               (lab_id, user_id, reservation_date, start_time, end_time, purpose, expected_attendees,
                special_requirements, status, request_date)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := t.tx.ExecContext(ctx, q, r.LabID, r.UserID, r.Date, r.StartTime, r.EndTime, r.Purpose,
		r.ExpectedAttendees, nullString(r.SpecialRequirements), r.Status, r.RequestDate.UTC())
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	r.ID = uint64(id)
	return nil
}

func (t *reservationTx) Transition(ctx context.Context, id uint64, from model.ReservationStatus, ch model.StatusChange) error {
	var (
		res sql.Result
		err error
	)
	if ch.Review {
		res, err = t.tx.ExecContext(ctx,
			`UPDATE lab_reservations
             SET status = ?, approved_by = ?, approved_date = ?, rejection_reason = ?, notes = COALESCE(?, notes)
             WHERE id = ? AND status = ?`,
			ch.To, ch.ActorID, ch.At.UTC(), nullString(ch.RejectionReason), nullString(ch.Notes), id, from)
	} else {
		remark := nullString(ch.Remark)
		res, err = t.tx.ExecContext(ctx,
			`UPDATE lab_reservations
             SET status = ?,
                 notes = CASE WHEN ? IS NULL THEN notes
                              WHEN notes IS NULL OR notes = '' THEN ?
                              ELSE CONCAT(notes, '\n', ?) END
             WHERE id = ? AND status = ?`,
			ch.To, remark, remark, remark, id, from)
	}
	if err != nil {
		return fmt.Errorf("update reservation status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// nowUTC is swapped in tests that need deterministic timestamps.
var nowUTC = func() time.Time { return time.Now().UTC() }
