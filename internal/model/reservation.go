package model

import "time"

// ReservationStatus is the lifecycle stage of a lab reservation.
type ReservationStatus string

const (
    StatusPending   ReservationStatus = "pending"
    StatusApproved  ReservationStatus = "approved"
    StatusRejected  ReservationStatus = "rejected"
    StatusCancelled ReservationStatus = "cancelled"
    StatusCompleted ReservationStatus = "completed"
)

// transitions lists the allowed next states.  States absent from the map
// are terminal.
var transitions = map[ReservationStatus][]ReservationStatus{
    StatusPending:  {StatusApproved, StatusRejected, StatusCancelled},
    StatusApproved: {StatusCompleted, StatusCancelled},
}

// CanTransition reports whether s may move to next.
func (s ReservationStatus) CanTransition(next ReservationStatus) bool {
    for _, n := range transitions[s] {
        if n == next {
            return true
        }
    }
    return false
}

// Terminal reports whether no transition leaves s.
func (s ReservationStatus) Terminal() bool { return len(transitions[s]) == 0 }

// ParseReservationStatus returns the status named by s.
func ParseReservationStatus(s string) (ReservationStatus, bool) {
    switch st := ReservationStatus(s); st {
    case StatusPending, StatusApproved, StatusRejected, StatusCancelled, StatusCompleted:
        return st, true
    }
    return "", false
}

// Reservation is an ad-hoc request to use a lab on one date for one time
// range.  It corresponds to a row in `lab_reservations`.
//
// Fields:
//  ApprovedBy / ApprovedDate – set by whoever approved or rejected it; later
//                              transitions leave them alone.
//  RejectionReason           – set only on rejection.
//  Notes                     – approval notes, with later remarks such as a
//                              revocation reason appended on their own lines.
type Reservation struct {
    ID                  uint64            `json:"id"`
    LabID               uint64            `json:"lab_id"`
    UserID              uint64            `json:"user_id"`
    Date                Date              `json:"reservation_date"`
    StartTime           TimeOfDay         `json:"start_time"`
    EndTime             TimeOfDay         `json:"end_time"`
    Purpose             string            `json:"purpose"`
    ExpectedAttendees   int               `json:"expected_attendees"`
    SpecialRequirements *string           `json:"special_requirements,omitempty"`
    Status              ReservationStatus `json:"status"`
    RequestDate         time.Time         `json:"request_date"`
    ApprovedBy          *uint64           `json:"approved_by,omitempty"`
    ApprovedDate        *time.Time        `json:"approved_date,omitempty"`
    RejectionReason     *string           `json:"rejection_reason,omitempty"`
    Notes               *string           `json:"notes,omitempty"`
}

// Slot returns the reservation's time range.
func (r Reservation) Slot() Slot { return Slot{Start: r.StartTime, End: r.EndTime} }

// StatusChange describes a single lifecycle transition to persist.
type StatusChange struct {
    To              ReservationStatus
    ActorID         uint64
    At              time.Time
    RejectionReason *string
    // Notes replaces the reviewer notes; only used with Review.
    Notes *string
    // Remark is appended to the existing notes.
    Remark *string
    // Review marks the approve and reject decisions, the only transitions
    // that record approved_by/approved_date.
    Review bool
}

// AppendNote returns notes with line added on a new line.
func AppendNote(notes *string, line string) *string {
    if notes == nil || *notes == "" {
        return &line
    }
    s := *notes + "\n" + line
    return &s
}
