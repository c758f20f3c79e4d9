package model

import (
    "database/sql/driver"
    "encoding/json"
    "fmt"
    "strconv"
    "strings"
    "time"
)

// DateLayout is the wire and storage format of a calendar day.
const DateLayout = "2006-01-02"

// Date is a calendar day in YYYY-MM-DD form.  Because the layout is fixed
// width, lexical order equals chronological order.
type Date string

// ParseDate validates s and returns it as a Date.
func ParseDate(s string) (Date, error) {
    s = strings.TrimSpace(s)
    t, err := time.Parse(DateLayout, s)
    if err != nil {
        return "", fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
    }
    return Date(t.Format(DateLayout)), nil
}

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) Date { return Date(t.Format(DateLayout)) }

// Time returns midnight UTC of the day.
func (d Date) Time() time.Time {
    t, _ := time.Parse(DateLayout, string(d))
    return t
}

func (d Date) Weekday() time.Weekday { return d.Time().Weekday() }

// AddDays returns the day n days after d (n may be negative).
func (d Date) AddDays(n int) Date { return DateOf(d.Time().AddDate(0, 0, n)) }

func (d Date) Before(o Date) bool { return d < o }
func (d Date) After(o Date) bool  { return d > o }
func (d Date) String() string     { return string(d) }

// Scan accepts DATE columns decoded either as time.Time (parseTime=true)
// or as raw bytes.
func (d *Date) Scan(src any) error {
    switch v := src.(type) {
    case time.Time:
        *d = DateOf(v)
        return nil
    case []byte:
        p, err := ParseDate(string(v))
        if err != nil {
            return err
        }
        *d = p
        return nil
    case string:
        p, err := ParseDate(v)
        if err != nil {
            return err
        }
        *d = p
        return nil
    }
    return fmt.Errorf("cannot scan %T into Date", src)
}

func (d Date) Value() (driver.Value, error) { return string(d), nil }

// TimeOfDay is a wall-clock time expressed in minutes after midnight.
type TimeOfDay int

const minutesPerDay = 24 * 60

// ParseTimeOfDay accepts "HH:MM" or "HH:MM:SS" (seconds are dropped).
// "24:00" is midnight at the end of the day and is only useful as the end
// of a slot.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
    s = strings.TrimSpace(s)
    parts := strings.Split(s, ":")
    if len(parts) < 2 || len(parts) > 3 {
        return 0, fmt.Errorf("invalid time %q: expected HH:MM", s)
    }
    h, err := strconv.Atoi(parts[0])
    if err != nil || h < 0 || h > 24 {
        return 0, fmt.Errorf("invalid time %q: hour out of range", s)
    }
    m, err := strconv.Atoi(parts[1])
    if err != nil || m < 0 || m > 59 {
        return 0, fmt.Errorf("invalid time %q: minute out of range", s)
    }
    sec := 0
    if len(parts) == 3 {
        if sec, err = strconv.Atoi(parts[2]); err != nil || sec < 0 || sec > 59 {
            return 0, fmt.Errorf("invalid time %q: second out of range", s)
        }
    }
    if h == 24 && (m != 0 || sec != 0) {
        return 0, fmt.Errorf("invalid time %q: nothing after 24:00", s)
    }
    return TimeOfDay(h*60 + m), nil
}

// ClockOf returns the wall-clock time of t in t's own location.
func ClockOf(t time.Time) TimeOfDay { return TimeOfDay(t.Hour()*60 + t.Minute()) }

func (t TimeOfDay) String() string {
    return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) { return json.Marshal(t.String()) }

func (t *TimeOfDay) UnmarshalJSON(b []byte) error {
    var s string
    if err := json.Unmarshal(b, &s); err != nil {
        return err
    }
    p, err := ParseTimeOfDay(s)
    if err != nil {
        return err
    }
    *t = p
    return nil
}

// Scan reads a MySQL TIME column ("HH:MM:SS").
func (t *TimeOfDay) Scan(src any) error {
    switch v := src.(type) {
    case []byte:
        return t.scanString(string(v))
    case string:
        return t.scanString(v)
    case time.Time:
        *t = ClockOf(v)
        return nil
    }
    return fmt.Errorf("cannot scan %T into TimeOfDay", src)
}

func (t *TimeOfDay) scanString(s string) error {
    p, err := ParseTimeOfDay(s)
    if err != nil {
        return err
    }
    *t = p
    return nil
}

func (t TimeOfDay) Value() (driver.Value, error) { return t.String() + ":00", nil }

// Slot is a half-open [Start, End) interval within one day.
type Slot struct {
    Start TimeOfDay `json:"start_time"`
    End   TimeOfDay `json:"end_time"`
}

// Valid reports whether the slot has positive length and fits in a day.
func (s Slot) Valid() bool {
    return s.Start >= 0 && s.End <= minutesPerDay && s.Start < s.End
}

// Overlaps reports whether two half-open slots intersect.  Slots that only
// touch (one ends exactly when the other starts) do not overlap.
func (s Slot) Overlaps(o Slot) bool { return s.Start < o.End && s.End > o.Start }

// Weekday is a day of the week stored by name ("Monday").
type Weekday time.Weekday

// ParseWeekday accepts a full English day name, case-insensitive.
func ParseWeekday(s string) (Weekday, error) {
    s = strings.TrimSpace(s)
    for d := time.Sunday; d <= time.Saturday; d++ {
        if strings.EqualFold(d.String(), s) {
            return Weekday(d), nil
        }
    }
    return 0, fmt.Errorf("invalid day_of_week %q", s)
}

func (w Weekday) String() string { return time.Weekday(w).String() }

func (w Weekday) MarshalJSON() ([]byte, error) { return json.Marshal(w.String()) }

func (w *Weekday) UnmarshalJSON(b []byte) error {
    var s string
    if err := json.Unmarshal(b, &s); err != nil {
        return err
    }
    p, err := ParseWeekday(s)
    if err != nil {
        return err
    }
    *w = p
    return nil
}

func (w *Weekday) Scan(src any) error {
    var s string
    switch v := src.(type) {
    case []byte:
        s = string(v)
    case string:
        s = v
    default:
        return fmt.Errorf("cannot scan %T into Weekday", src)
    }
    p, err := ParseWeekday(s)
    if err != nil {
        return err
    }
    *w = p
    return nil
}

func (w Weekday) Value() (driver.Value, error) { return w.String(), nil }
