package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/geocms/lab-reservation/internal/model"
	"github.com/geocms/lab-reservation/internal/repository"
)

// LabStore persists labs.  Satisfied by *repository.LabRepo.
type LabStore interface {
	Get(ctx context.Context, id uint64) (*model.Lab, error)
	List(ctx context.Context, status model.LabStatus) ([]model.Lab, error)
	Create(ctx context.Context, l *model.Lab) error
	Update(ctx context.Context, l *model.Lab) error
	SetStatus(ctx context.Context, id uint64, status model.LabStatus) error
}

// LabService is the lab directory.
type LabService struct {
	store LabStore
	views ViewInvalidator
	log   *zap.Logger
}

func NewLabService(store LabStore, views ViewInvalidator, log *zap.Logger) *LabService {
	if views == nil {
		views = nopInvalidator{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &LabService{store: store, views: views, log: log}
}

// LabInput carries the editable fields of a lab.
type LabInput struct {
	Name             string
	Code             string
	Capacity         int
	Location         string
	EquipmentList    string
	SafetyGuidelines string
}

func (in LabInput) normalize() (model.Lab, error) {
	l := model.Lab{
		Name:             strings.TrimSpace(in.Name),
		Code:             strings.ToUpper(strings.TrimSpace(in.Code)),
		Capacity:         in.Capacity,
		Location:         strings.TrimSpace(in.Location),
		EquipmentList:    strings.TrimSpace(in.EquipmentList),
		SafetyGuidelines: strings.TrimSpace(in.SafetyGuidelines),
	}
	switch {
	case l.Name == "":
		return l, validationf("Lab name is required")
	case l.Code == "":
		return l, validationf("Lab code is required")
	case l.Capacity < 1:
		return l, validationf("Capacity must be at least 1")
	}
	return l, nil
}

func (s *LabService) List(ctx context.Context, status string) ([]model.Lab, error) {
	var st model.LabStatus
	if status != "" {
		var ok bool
		if st, ok = model.ParseLabStatus(status); !ok {
			return nil, validationf("Unknown lab status %q", status)
		}
	}
	return s.store.List(ctx, st)
}

func (s *LabService) Get(ctx context.Context, id uint64) (*model.Lab, error) {
	l, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, mapLookup(err, "Lab not found")
	}
	return l, nil
}

// Create adds a lab in the available state.
func (s *LabService) Create(ctx context.Context, actor model.Actor, in LabInput) (*model.Lab, error) {
	if !actor.Can(model.CapManageLabs) {
		return nil, forbiddenf("Only administrators can manage labs")
	}
	l, err := in.normalize()
	if err != nil {
		return nil, err
	}
	l.Status = model.LabAvailable
	if err := s.store.Create(ctx, &l); err != nil {
		if errors.Is(err, repository.ErrLabCodeExists) {
			return nil, conflictf("Lab code %s is already in use", l.Code)
		}
		return nil, err
	}
	s.views.InvalidateLab(ctx, l.ID)
	s.log.Info("lab created", zap.Uint64("lab_id", l.ID), zap.String("code", l.Code), zap.Uint64("actor_id", actor.UserID))
	return &l, nil
}

// Update replaces the descriptive fields of a lab.
func (s *LabService) Update(ctx context.Context, actor model.Actor, id uint64, in LabInput) (*model.Lab, error) {
	if !actor.Can(model.CapManageLabs) {
		return nil, forbiddenf("Only administrators can manage labs")
	}
	l, err := in.normalize()
	if err != nil {
		return nil, err
	}
	l.ID = id
	if err := s.store.Update(ctx, &l); err != nil {
		if errors.Is(err, repository.ErrLabCodeExists) {
			return nil, conflictf("Lab code %s is already in use", l.Code)
		}
		return nil, mapLookup(err, "Lab not found")
	}
	s.views.InvalidateLab(ctx, id)
	s.log.Info("lab updated", zap.Uint64("lab_id", id), zap.Uint64("actor_id", actor.UserID))
	return &l, nil
}

// SetStatus changes whether a lab accepts reservations.  Existing
// reservations are left alone.
func (s *LabService) SetStatus(ctx context.Context, actor model.Actor, id uint64, status string) (*model.Lab, error) {
	if !actor.Can(model.CapSetLabStatus) {
		return nil, forbiddenf("Only staff or administrators can change lab status")
	}
	st, ok := model.ParseLabStatus(strings.ToLower(strings.TrimSpace(status)))
	if !ok {
		return nil, validationf("Status must be available, maintenance or offline")
	}
	if err := s.store.SetStatus(ctx, id, st); err != nil {
		return nil, mapLookup(err, "Lab not found")
	}
	s.views.InvalidateLab(ctx, id)
	s.log.Info("lab status changed", zap.Uint64("lab_id", id), zap.String("status", string(st)), zap.Uint64("actor_id", actor.UserID))
	return s.Get(ctx, id)
}
