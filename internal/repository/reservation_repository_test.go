package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/geocms/lab-reservation/internal/model"
)

var labColumns = []string{"id", "name", "code", "capacity", "location", "status", "equipment_list",
	"safety_guidelines", "created_at", "updated_at"}

var reservationColumns = []string{"id", "lab_id", "user_id", "reservation_date", "start_time", "end_time",
	"purpose", "expected_attendees", "special_requirements", "status", "request_date", "approved_by",
	"approved_date", "rejection_reason", "notes"}

func newMock(t *testing.T) (*ReservationRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewReservationRepo(db), mock
}

func labRow(id uint64, status model.LabStatus) *sqlmock.Rows {
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(labColumns).AddRow(id, "GIS Lab", "GIS-1", 30, "Block B", string(status), "", "", ts, ts)
}

func TestWithinLabLockCommits(t *testing.T) {
	repo, mock := newMock(t)
	ctx := context.Background()
	req := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM labs WHERE id = \? FOR UPDATE`).WithArgs(uint64(7)).
		WillReturnRows(labRow(7, model.LabAvailable))
	mock.ExpectQuery(`FROM lab_reservations WHERE lab_id = \? AND reservation_date = \? AND status IN \(\?, \?\)`).
		WithArgs(uint64(7), "2025-06-02", "pending", "approved").
		WillReturnRows(sqlmock.NewRows(reservationColumns).AddRow(
			3, 7, 100, "2025-06-02", "09:00:00", "10:00:00", "Practical", 20, nil, "approved", req,
			200, req, nil, "ok"))
	mock.ExpectExec(`INSERT INTO lab_reservations`).
		WithArgs(uint64(7), uint64(101), "2025-06-02", "10:00:00", "11:00:00", "Thesis", 4, nil, "pending", req).
		WillReturnResult(sqlmock.NewResult(4, 1))
	mock.ExpectCommit()

	var seen []model.Reservation
	r := &model.Reservation{LabID: 7, UserID: 101, Date: "2025-06-02", StartTime: 600, EndTime: 660,
		Purpose: "Thesis", ExpectedAttendees: 4, Status: model.StatusPending, RequestDate: req}
	err := repo.WithinLabLock(ctx, 7, func(tx ReservationTx) error {
		if tx.Lab().Code != "GIS-1" {
			t.Errorf("lab = %+v", tx.Lab())
		}
		var err error
		if seen, err = tx.ListOnDate(ctx, "2025-06-02", model.StatusPending, model.StatusApproved); err != nil {
			return err
		}
		return tx.Insert(ctx, r)
	})
	if err != nil {
		t.Fatalf("WithinLabLock: %v", err)
	}
	if r.ID != 4 {
		t.Fatalf("inserted id = %d", r.ID)
	}
	if len(seen) != 1 || seen[0].StartTime != 540 || seen[0].Notes == nil || *seen[0].ApprovedBy != 200 {
		t.Fatalf("listed = %+v", seen)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestWithinLabLockUnknownLab(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM labs WHERE id = \? FOR UPDATE`).WithArgs(uint64(9)).
		WillReturnRows(sqlmock.NewRows(labColumns))
	mock.ExpectRollback()

	called := false
	err := repo.WithinLabLock(context.Background(), 9, func(ReservationTx) error { called = true; return nil })
	if !errors.Is(err, ErrNotFound) || called {
		t.Fatalf("err = %v, called = %v", err, called)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestWithinLabLockRollsBackOnCallbackError(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM labs WHERE id = \? FOR UPDATE`).WillReturnRows(labRow(7, model.LabAvailable))
	mock.ExpectRollback()

	boom := errors.New("overlap")
	if err := repo.WithinLabLock(context.Background(), 7, func(ReservationTx) error { return boom }); err != boom {
		t.Fatalf("err = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestTransitionConflict(t *testing.T) {
	repo, mock := newMock(t)
	at := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM labs WHERE id = \? FOR UPDATE`).WillReturnRows(labRow(7, model.LabAvailable))
	mock.ExpectExec(`UPDATE lab_reservations\s+SET status = \?, approved_by = \?`).
		WithArgs("approved", uint64(200), at, nil, nil, uint64(3), "pending").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.WithinLabLock(context.Background(), 7, func(tx ReservationTx) error {
		return tx.Transition(context.Background(), 3, model.StatusPending,
			model.StatusChange{To: model.StatusApproved, ActorID: 200, At: at, Review: true})
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestTransitionAppendsRemarkWithoutTouchingApprover(t *testing.T) {
	repo, mock := newMock(t)
	at := time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM labs WHERE id = \? FOR UPDATE`).WillReturnRows(labRow(7, model.LabAvailable))
	mock.ExpectExec(`UPDATE lab_reservations\s+SET status = \?,\s+notes = CASE WHEN \? IS NULL THEN notes`).
		WithArgs("cancelled", "Power outage", "Power outage", "Power outage", uint64(9), "approved").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	remark := "Power outage"
	err := repo.WithinLabLock(context.Background(), 7, func(tx ReservationTx) error {
		return tx.Transition(context.Background(), 9, model.StatusApproved,
			model.StatusChange{To: model.StatusCancelled, ActorID: 300, At: at, Remark: &remark})
	})
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestCompleteElapsed(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectExec(`UPDATE lab_reservations SET status = \?\s+WHERE status = \?`).
		WithArgs("completed", "approved", "2025-06-01", "2025-06-01", "08:00:00").
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.CompleteElapsed(context.Background(), "2025-06-01", 480)
	if err != nil || n != 2 {
		t.Fatalf("CompleteElapsed = %d, %v", n, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestGetNotFound(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery(`FROM lab_reservations WHERE id = \?`).WithArgs(uint64(5)).
		WillReturnRows(sqlmock.NewRows(reservationColumns))
	if _, err := repo.Get(context.Background(), 5); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}
