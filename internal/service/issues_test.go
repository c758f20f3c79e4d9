package service

import (
	"context"
	"errors"
	"testing"

	"github.com/geocms/lab-reservation/internal/model"
	"github.com/geocms/lab-reservation/internal/repository"
)

type issueStoreFake struct {
	rows   map[uint64]model.IssueReport
	nextID uint64
}

func (f *issueStoreFake) Get(_ context.Context, id uint64) (*model.IssueReport, error) {
	is, ok := f.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &is, nil
}

func (f *issueStoreFake) List(_ context.Context, reporter *uint64, status model.IssueStatus) ([]model.IssueReport, error) {
	var out []model.IssueReport
	for _, is := range f.rows {
		if reporter != nil && is.ReportedBy != *reporter {
			continue
		}
		if status != "" && is.Status != status {
			continue
		}
		out = append(out, is)
	}
	return out, nil
}

func (f *issueStoreFake) Create(_ context.Context, is *model.IssueReport) error {
	f.nextID++
	is.ID = f.nextID
	f.rows[is.ID] = *is
	return nil
}

func (f *issueStoreFake) Assign(_ context.Context, id, assignee uint64) error {
	is, ok := f.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	is.AssignedTo = &assignee
	f.rows[id] = is
	return nil
}

func (f *issueStoreFake) UpdateStatus(_ context.Context, id uint64, from, to model.IssueStatus, by uint64) error {
	is, ok := f.rows[id]
	if !ok || is.Status != from {
		return repository.ErrConflict
	}
	is.Status = to
	if to == model.IssueResolved {
		is.ResolvedBy = &by
	}
	f.rows[id] = is
	return nil
}

// usersFake is a UserReader over a fixed set of accounts.
type usersFake map[uint64]model.User

func (f usersFake) GetByID(_ context.Context, id uint64) (model.User, error) {
	u, ok := f[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

var deskUsers = usersFake{
	student.UserID: {ID: student.UserID, Role: model.RoleStudent, IsActive: true},
	staff.UserID:   {ID: staff.UserID, Role: model.RoleStaff, IsActive: true},
	admin.UserID:   {ID: admin.UserID, Role: model.RoleAdmin, IsActive: true},
	201:            {ID: 201, Role: model.RoleStaff, IsActive: false},
}

func TestIssueDesk(t *testing.T) {
	store := &issueStoreFake{rows: map[uint64]model.IssueReport{}}
	svc := NewIssueService(store, labsFake{labL.ID: labL}, deskUsers, nil)
	ctx := context.Background()
	lab := labL.ID
	missing := uint64(42)

	if _, err := svc.Report(ctx, student, IssueInput{Title: "Projector", Description: ""}); !errors.Is(err, ErrValidation) {
		t.Fatalf("no description err = %v", err)
	}
	if _, err := svc.Report(ctx, student, IssueInput{LabID: &missing, Title: "t", Description: "d"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown lab err = %v", err)
	}
	if _, err := svc.Report(ctx, student, IssueInput{Title: "t", Description: "d", Priority: "urgent"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("bad priority err = %v", err)
	}
	is, err := svc.Report(ctx, student, IssueInput{LabID: &lab, Title: "Projector", Description: "No signal"})
	if err != nil {
		t.Fatal(err)
	}
	if is.Priority != model.PriorityMedium || is.IssueType != "other" || is.Status != model.IssuePending {
		t.Fatalf("issue = %+v", is)
	}
	if _, err := svc.Report(ctx, lecturer, IssueInput{Title: "Wifi", Description: "Slow", Priority: "HIGH"}); err != nil {
		t.Fatal(err)
	}

	mine, _ := svc.List(ctx, student, "")
	all, _ := svc.List(ctx, staff, "")
	if len(mine) != 1 || len(all) != 2 {
		t.Fatalf("mine=%d all=%d", len(mine), len(all))
	}

	if _, err := svc.Assign(ctx, student, is.ID, staff.UserID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("student assign err = %v", err)
	}
	if _, err := svc.Assign(ctx, staff, is.ID, 9999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown assignee err = %v", err)
	}
	if _, err := svc.Assign(ctx, staff, is.ID, student.UserID); !errors.Is(err, ErrValidation) {
		t.Fatalf("student assignee err = %v", err)
	}
	if _, err := svc.Assign(ctx, staff, is.ID, 201); !errors.Is(err, ErrValidation) {
		t.Fatalf("inactive assignee err = %v", err)
	}
	if store.rows[is.ID].AssignedTo != nil {
		t.Fatalf("rejected assignee was stored: %v", *store.rows[is.ID].AssignedTo)
	}
	got, err := svc.Assign(ctx, staff, is.ID, staff.UserID)
	if err != nil || got.AssignedTo == nil || *got.AssignedTo != staff.UserID {
		t.Fatalf("assign = %+v, %v", got, err)
	}

	got, err = svc.UpdateStatus(ctx, staff, is.ID, "fixed")
	if err != nil || got.Status != model.IssueResolved || got.ResolvedBy == nil {
		t.Fatalf("resolve = %+v, %v", got, err)
	}
	if _, err := svc.UpdateStatus(ctx, staff, is.ID, "closed"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.UpdateStatus(ctx, admin, is.ID, "in_progress"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("reopen closed err = %v", err)
	}
}
