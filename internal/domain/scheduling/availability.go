package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AvailabilityOptions tunes AvailableSlots. A nil ExcludedStatuses means
// cancelled and no-show appointments leave their slot free; a non-nil empty
// slice makes every appointment count as occupying.
type AvailabilityOptions struct {
	ExcludedStatuses []Status
	// Filtered drops occupied slots instead of flagging them.
	Filtered bool
}

type SlotAvailability struct {
	Time      TimeLabel `json:"value"`
	Text      string    `json:"text"`
	Available bool      `json:"available"`
}

// AvailableSlots lists the doctor's slots on the calendar day of date in
// catalog order. The time of day on date is ignored.
func (s *Service) AvailableSlots(ctx context.Context, doctorID uuid.UUID, date time.Time, opts AvailabilityOptions) ([]SlotAvailability, error) {
	if doctorID == uuid.Nil {
		return nil, invalid("doctor_id", "is required")
	}
	if date.IsZero() {
		return nil, invalid("date", "is required")
	}

	exclude := opts.ExcludedStatuses
	if exclude == nil {
		exclude = inactiveStatuses
	}
	day := DateOf(date)
	booked, err := s.appointments.Find(ctx, AppointmentFilter{
		DoctorID:        &doctorID,
		Date:            &day,
		ExcludeStatuses: exclude,
	})
	if err != nil {
		return nil, err
	}

	occupied := make(map[TimeLabel]struct{}, len(booked))
	for _, a := range booked {
		occupied[a.Time] = struct{}{}
	}
	return annotate(s.catalog.Slots(""), occupied, opts.Filtered), nil
}

func annotate(slots []TimeLabel, occupied map[TimeLabel]struct{}, filtered bool) []SlotAvailability {
	out := make([]SlotAvailability, 0, len(slots))
	for _, l := range slots {
		_, taken := occupied[l]
		if filtered && taken {
			continue
		}
		out = append(out, SlotAvailability{Time: l, Text: l.Display(), Available: !taken})
	}
	return out
}
