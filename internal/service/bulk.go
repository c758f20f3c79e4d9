package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/geocms/lab-reservation/internal/model"
)

// Bulk actions accepted by BulkProcess.
const (
	BulkApprove = "approve"
	BulkReject  = "reject"
)

// BulkItemResult is the outcome for one reservation in a bulk request.
type BulkItemResult struct {
	ID    uint64 `json:"id"`
	OK    bool   `json:"ok"`
	Code  Kind   `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
}

// BulkResult reports every item in request order.  Incomplete is set when
// the request context ended before every item was tried; the items left
// over carry KindNotAttempted.
type BulkResult struct {
	Results      []BulkItemResult `json:"results"`
	SuccessCount int              `json:"success_count"`
	Incomplete   bool             `json:"incomplete,omitempty"`
}

const notAttempted = "Not processed: the request ended before this reservation was reached"

// BulkProcess approves or rejects several reservations.  Items are handled
// one after another in the order given, each with the same checks as a
// single approval or rejection, so when two of them overlap the earlier
// one wins.  A failing item does not stop the rest.  Duplicate ids are
// processed once.  If ctx ends part way through, the outcomes gathered so
// far are still returned, since earlier items are already committed.
func (s *ReservationService) BulkProcess(ctx context.Context, actor model.Actor, ids []uint64, action, text string) (*BulkResult, error) {
	if !actor.Can(model.CapReviewReservation) {
		return nil, forbiddenf("Only staff or administrators can review reservations")
	}
	action = strings.ToLower(strings.TrimSpace(action))
	var apply func(uint64) error
	switch action {
	case BulkApprove:
		apply = func(id uint64) error { _, err := s.Approve(ctx, actor, id, text); return err }
	case BulkReject:
		if strings.TrimSpace(text) == "" {
			return nil, validationf("A rejection reason is required")
		}
		apply = func(id uint64) error { _, err := s.Reject(ctx, actor, id, text); return err }
	default:
		return nil, validationf("Action must be approve or reject")
	}
	if len(ids) == 0 {
		return nil, validationf("At least one reservation id is required")
	}

	out := &BulkResult{Results: make([]BulkItemResult, 0, len(ids))}
	seen := make(map[uint64]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		item := BulkItemResult{ID: id}
		if out.Incomplete || ctx.Err() != nil {
			out.Incomplete = true
			item.Code, item.Error = KindNotAttempted, notAttempted
			out.Results = append(out.Results, item)
			continue
		}
		if err := apply(id); err != nil {
			var e *Error
			switch {
			case errors.As(err, &e):
				item.Code, item.Error = e.Kind, e.Reason
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				out.Incomplete = true
				item.Code, item.Error = KindNotAttempted, notAttempted
			default:
				s.log.Error("bulk review item failed", zap.Uint64("reservation_id", id), zap.Error(err))
				item.Code, item.Error = KindInternal, "Internal error"
			}
		} else {
			item.OK = true
			out.SuccessCount++
		}
		out.Results = append(out.Results, item)
	}
	if out.Incomplete {
		s.log.Warn("bulk review stopped early", zap.String("action", action),
			zap.Int("succeeded", out.SuccessCount), zap.Error(ctx.Err()))
	}
	s.log.Info("bulk review processed", zap.String("action", action),
		zap.Int("requested", len(out.Results)), zap.Int("succeeded", out.SuccessCount))
	return out, nil
}
