package scheduling

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusNoShow     Status = "no_show"
)

// AllStatuses in lifecycle order.
var AllStatuses = []Status{
	StatusScheduled, StatusConfirmed, StatusInProgress,
	StatusCompleted, StatusCancelled, StatusNoShow,
}

// inactiveStatuses release their slot.
var inactiveStatuses = []Status{StatusCancelled, StatusNoShow}

// Occupies reports whether an appointment in this status holds its slot.
func (s Status) Occupies() bool {
	return s != StatusCancelled && s != StatusNoShow
}

func (s Status) Valid() bool {
	for _, v := range AllStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// ParseStatus accepts wire values ("no_show") and enum-style names ("NoShow",
// "noshow") in any case.
func ParseStatus(s string) (Status, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("_", "", "-", "", " ", "").Replace(key)
	for _, v := range AllStatuses {
		if strings.ReplaceAll(string(v), "_", "") == key {
			return v, nil
		}
	}
	return "", invalid("status", "unknown status %q", s)
}

// Appointment maps to the appointment table. Date is a calendar day at
// midnight UTC; Time is a catalog label.
type Appointment struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	PatientID  uuid.UUID  `db:"patient_id" json:"patient_id"`
	DoctorID   uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	Date       time.Time  `db:"appointment_date" json:"date"`
	Time       TimeLabel  `db:"appointment_time" json:"time"`
	Department string     `db:"department" json:"department"`
	Reason     string     `db:"reason" json:"reason,omitempty"`
	Notes      string     `db:"notes" json:"notes,omitempty"`
	Status     Status     `db:"status" json:"status"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// MarshalJSON writes Date as YYYY-MM-DD.
func (a Appointment) MarshalJSON() ([]byte, error) {
	type plain Appointment
	return json.Marshal(struct {
		plain
		Date string `json:"date"`
	}{plain: plain(a), Date: a.Date.Format(time.DateOnly)})
}

func (a *Appointment) UnmarshalJSON(data []byte) error {
	type plain Appointment
	aux := struct {
		*plain
		Date string `json:"date"`
	}{plain: (*plain)(a)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Date == "" {
		a.Date = time.Time{}
		return nil
	}
	d, err := time.Parse(time.DateOnly, aux.Date)
	if err != nil {
		return err
	}
	a.Date = d
	return nil
}

// Occupies reports whether a holds its doctor's slot.
func (a *Appointment) Occupies() bool {
	return a.Status.Occupies()
}

func (a *Appointment) touch(now time.Time) {
	t := now
	a.UpdatedAt = &t
}

// DateOf strips the time of day from t, keeping the calendar day t names in
// its own location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, invalid("date", "expected YYYY-MM-DD, got %q", s)
	}
	return t, nil
}

// StatusSummary is the dashboard count of appointments per status.
type StatusSummary struct {
	Total    int            `json:"total"`
	ByStatus map[Status]int `json:"by_status"`
}
