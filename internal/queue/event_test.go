package queue

import (
    "bytes"
    "encoding/json"
    "strings"
    "testing"
    "time"

    "github.com/geocms/lab-reservation/internal/model"
)

func sampleReservation() model.Reservation {
    reason := "Exam week"
    return model.Reservation{ID: 12, LabID: 7, UserID: 100, Date: "2025-06-02", StartTime: 540, EndTime: 600,
        Status: model.StatusRejected, RejectionReason: &reason}
}

func TestNewReservationEvent(t *testing.T) {
    at := time.Date(2025, 6, 1, 10, 30, 0, 0, time.FixedZone("X", 3600))
    ev := NewReservationEvent(EventRejected, AudienceRequester, sampleReservation(),
        model.Lab{ID: 7, Name: "GIS Lab"}, 200, at)

    if ev.EventID == "" || ev.RoutingKey() != "reservation.rejected.requester" {
        t.Fatalf("event = %+v", ev)
    }
    if ev.StartTime != "09:00" || ev.EndTime != "10:00" || ev.Reason != "Exam week" {
        t.Fatalf("event = %+v", ev)
    }
    if ev.OccurredAt != "2025-06-01T09:30:00Z" {
        t.Fatalf("occurred_at = %s", ev.OccurredAt)
    }

    notes := "Bring keys"
    r := sampleReservation()
    r.RejectionReason, r.Notes, r.Status = nil, &notes, model.StatusCompleted
    if ev := NewReservationEvent(EventCompleted, AudienceRequester, r, model.Lab{}, 1, at); ev.Reason != "" {
        t.Fatalf("completed reason = %q", ev.Reason)
    }
}

func TestConsumerHandle(t *testing.T) {
    var sink bytes.Buffer
    c := &Consumer{Sink: &sink}
    ev := NewReservationEvent(EventRejected, AudienceRequester, sampleReservation(),
        model.Lab{ID: 7, Name: "GIS Lab"}, 200, time.Now())
    body, err := json.Marshal(ev)
    if err != nil {
        t.Fatal(err)
    }
    if err := c.Handle(body); err != nil {
        t.Fatalf("Handle: %v", err)
    }
    line := sink.String()
    for _, want := range []string{"reservation.rejected -> requester", "reservation_id=12", `lab="GIS Lab"`,
        "time=09:00-10:00", `reason="Exam week"`} {
        if !strings.Contains(line, want) {
            t.Errorf("line %q missing %q", line, want)
        }
    }
    if !strings.HasSuffix(line, "\n") || strings.Count(line, "\n") != 1 {
        t.Fatalf("line = %q", line)
    }

    for _, bad := range []string{`not json`, `{"type":""}`, `{"type":"reservation.approved"}`} {
        if err := c.Handle([]byte(bad)); err == nil {
            t.Errorf("Handle(%s) accepted", bad)
        }
    }
}
