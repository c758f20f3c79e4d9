// Package queue defines the reservation notification messages exchanged
// over RabbitMQ together with their publisher and consumer.
package queue

import (
    "time"

    "github.com/gofrs/uuid/v5"

    "github.com/geocms/lab-reservation/internal/model"
)

// Event types published by the reservation workflow.
const (
    EventSubmitted = "reservation.submitted"
    EventApproved  = "reservation.approved"
    EventRejected  = "reservation.rejected"
    EventCancelled = "reservation.cancelled"
    EventCompleted = "reservation.completed"
    EventRevoked   = "reservation.revoked"
)

// Audiences select who a downstream sender should contact.
const (
    AudienceStaff     = "staff"
    AudienceRequester = "requester"
)

// ReservationEvent is published whenever a reservation changes state.  It
// carries enough detail for a notification sender to build a message
// without querying the primary database.
type ReservationEvent struct {
    EventID       string `json:"event_id"`
    Type          string `json:"type"`
    Audience      string `json:"audience"`
    ReservationID uint64 `json:"reservation_id"`
    LabID         uint64 `json:"lab_id"`
    LabName       string `json:"lab_name"`
    RequesterID   uint64 `json:"requester_id"`
    ActorID       uint64 `json:"actor_id"`
    Date          string `json:"reservation_date"`
    StartTime     string `json:"start_time"`
    EndTime       string `json:"end_time"`
    Status        string `json:"status"`
    Reason        string `json:"reason,omitempty"`
    OccurredAt    string `json:"occurred_at"`
}

// NewReservationEvent builds an event for r with a fresh id.  Reason is
// taken from the rejection reason; callers set it for other edges.
func NewReservationEvent(typ, audience string, r model.Reservation, lab model.Lab, actorID uint64, at time.Time) ReservationEvent {
    ev := ReservationEvent{
        EventID:       uuid.Must(uuid.NewV4()).String(),
        Type:          typ,
        Audience:      audience,
        ReservationID: r.ID,
        LabID:         r.LabID,
        LabName:       lab.Name,
        RequesterID:   r.UserID,
        ActorID:       actorID,
        Date:          r.Date.String(),
        StartTime:     r.StartTime.String(),
        EndTime:       r.EndTime.String(),
        Status:        string(r.Status),
        OccurredAt:    at.UTC().Format(time.RFC3339),
    }
    if r.RejectionReason != nil {
        ev.Reason = *r.RejectionReason
    }
    return ev
}

// RoutingKey is the topic key the event is published under.
func (e ReservationEvent) RoutingKey() string { return e.Type + "." + e.Audience }
