package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/geocms/lab-reservation/internal/model"
	"github.com/geocms/lab-reservation/internal/repository"
)

// IssueStore persists issue reports.  Satisfied by *repository.IssueRepo.
type IssueStore interface {
	Get(ctx context.Context, id uint64) (*model.IssueReport, error)
	List(ctx context.Context, reporter *uint64, status model.IssueStatus) ([]model.IssueReport, error)
	Create(ctx context.Context, is *model.IssueReport) error
	Assign(ctx context.Context, id, assignee uint64) error
	UpdateStatus(ctx context.Context, id uint64, from, to model.IssueStatus, resolvedBy uint64) error
}

// UserReader looks up accounts.  Satisfied by *repository.UserRepo.
type UserReader interface {
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

// IssueService is the lab issue desk.
type IssueService struct {
	store IssueStore
	labs  LabReader
	users UserReader
	log   *zap.Logger
}

func NewIssueService(store IssueStore, labs LabReader, users UserReader, log *zap.Logger) *IssueService {
	if log == nil {
		log = zap.NewNop()
	}
	return &IssueService{store: store, labs: labs, users: users, log: log}
}

type IssueInput struct {
	LabID       *uint64
	IssueType   string
	Priority    string
	Title       string
	Description string
}

// Report files a new issue.  A nil lab means a general faculty issue.
func (s *IssueService) Report(ctx context.Context, actor model.Actor, in IssueInput) (*model.IssueReport, error) {
	if !actor.Can(model.CapReportIssue) {
		return nil, forbiddenf("Your role cannot report issues")
	}
	is := &model.IssueReport{
		LabID:       in.LabID,
		ReportedBy:  actor.UserID,
		IssueType:   strings.TrimSpace(in.IssueType),
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Status:      model.IssuePending,
		Priority:    model.PriorityMedium,
	}
	if in.Priority != "" {
		p, ok := model.ParseIssuePriority(in.Priority)
		if !ok {
			return nil, validationf("Priority must be low, medium, high or critical")
		}
		is.Priority = p
	}
	switch {
	case is.Title == "":
		return nil, validationf("Title is required")
	case is.Description == "":
		return nil, validationf("Description is required")
	case is.IssueType == "":
		is.IssueType = "other"
	}
	if is.LabID != nil {
		if _, err := s.labs.Get(ctx, *is.LabID); err != nil {
			return nil, mapLookup(err, "Lab not found")
		}
	}
	if err := s.store.Create(ctx, is); err != nil {
		return nil, err
	}
	s.log.Info("issue reported", zap.Uint64("issue_id", is.ID), zap.String("priority", string(is.Priority)),
		zap.Uint64("reported_by", actor.UserID))
	return is, nil
}

// List returns every issue to staff and administrators and only their own
// reports to everyone else.
func (s *IssueService) List(ctx context.Context, actor model.Actor, status string) ([]model.IssueReport, error) {
	var st model.IssueStatus
	if status != "" {
		var ok bool
		if st, ok = model.ParseIssueStatus(status); !ok {
			return nil, validationf("Unknown issue status %q", status)
		}
	}
	var reporter *uint64
	if !actor.Can(model.CapManageIssues) {
		id := actor.UserID
		reporter = &id
	}
	return s.store.List(ctx, reporter, st)
}

// Assign hands an issue to an active staff member or administrator.
func (s *IssueService) Assign(ctx context.Context, actor model.Actor, id, assignee uint64) (*model.IssueReport, error) {
	if !actor.Can(model.CapManageIssues) {
		return nil, forbiddenf("Only staff or administrators can assign issues")
	}
	if assignee == 0 {
		return nil, validationf("Assignee is required")
	}
	u, err := s.users.GetByID(ctx, assignee)
	if err != nil {
		return nil, mapLookup(err, "Assignee not found")
	}
	if !u.IsActive || !u.Role.Can(model.CapManageIssues) {
		return nil, validationf("Issues can only be assigned to active staff or administrators")
	}
	if err := s.store.Assign(ctx, id, assignee); err != nil {
		return nil, mapLookup(err, "Issue not found")
	}
	s.log.Info("issue assigned", zap.Uint64("issue_id", id), zap.Uint64("assigned_to", assignee))
	return s.get(ctx, id)
}

// UpdateStatus moves an issue along its lifecycle.  Closed issues cannot be
// reopened.
func (s *IssueService) UpdateStatus(ctx context.Context, actor model.Actor, id uint64, status string) (*model.IssueReport, error) {
	if !actor.Can(model.CapManageIssues) {
		return nil, forbiddenf("Only staff or administrators can update issues")
	}
	to, ok := model.ParseIssueStatus(status)
	if !ok {
		return nil, validationf("Unknown issue status %q", status)
	}
	cur, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !cur.Status.CanTransition(to) {
		return nil, invalidStatef("Issue is %s and cannot move to %s", cur.Status, to)
	}
	if err := s.store.UpdateStatus(ctx, id, cur.Status, to, actor.UserID); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, invalidStatef("Issue was modified concurrently; reload and try again")
		}
		return nil, err
	}
	s.log.Info("issue status changed", zap.Uint64("issue_id", id), zap.String("from", string(cur.Status)),
		zap.String("to", string(to)), zap.Uint64("actor_id", actor.UserID))
	return s.get(ctx, id)
}

func (s *IssueService) get(ctx context.Context, id uint64) (*model.IssueReport, error) {
	is, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, mapLookup(err, "Issue not found")
	}
	return is, nil
}
