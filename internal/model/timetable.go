package model

// TimetableEntry is a recurring weekly class slot in `lab_timetables`.  It
// is display-only and never takes part in reservation approval.
type TimetableEntry struct {
    ID         uint64    `json:"id"`
    LabID      uint64    `json:"lab_id"`
    DayOfWeek  Weekday   `json:"day_of_week"`
    StartTime  TimeOfDay `json:"start_time"`
    EndTime    TimeOfDay `json:"end_time"`
    Subject    string    `json:"subject"`
    LecturerID *uint64   `json:"lecturer_id,omitempty"`
    Batch      string    `json:"batch"`
    Semester   string    `json:"semester"`
}

func (e TimetableEntry) Slot() Slot { return Slot{Start: e.StartTime, End: e.EndTime} }
