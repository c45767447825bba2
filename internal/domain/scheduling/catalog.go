package scheduling

import (
	"strings"
	"time"
)

// TimeLabel is a bookable start time in 24-hour "HH:MM" form.
type TimeLabel string

// Display renders the label the way the booking form shows it ("9:00 AM").
func (l TimeLabel) Display() string {
	t, err := time.Parse("15:04", string(l))
	if err != nil {
		return string(l)
	}
	return t.Format("3:04 PM")
}

// clinicSlots are the half-hour starts of a clinic day, lunch 12:00-14:00 excluded.
var clinicSlots = []TimeLabel{
	"09:00", "09:30", "10:00", "10:30", "11:00", "11:30",
	"14:00", "14:30", "15:00", "15:30", "16:00", "16:30", "17:00", "17:30",
}

// Catalog is the fixed, ordered set of bookable labels.
type Catalog struct {
	slots []TimeLabel
	index map[TimeLabel]int
}

func NewCatalog(labels ...TimeLabel) *Catalog {
	c := &Catalog{
		slots: append([]TimeLabel(nil), labels...),
		index: make(map[TimeLabel]int, len(labels)),
	}
	for i, l := range c.slots {
		c.index[l] = i
	}
	return c
}

var defaultCatalog = NewCatalog(clinicSlots...)

// DefaultCatalog returns the clinic's schedule.
func DefaultCatalog() *Catalog {
	return defaultCatalog
}

// Slots returns the catalog in order for a department. Every department
// currently shares one schedule. The caller owns the returned slice.
func (c *Catalog) Slots(_ string) []TimeLabel {
	out := make([]TimeLabel, len(c.slots))
	copy(out, c.slots)
	return out
}

func (c *Catalog) Contains(l TimeLabel) bool {
	_, ok := c.index[l]
	return ok
}

// Position is the label's catalog index, or -1.
func (c *Catalog) Position(l TimeLabel) int {
	if i, ok := c.index[l]; ok {
		return i
	}
	return -1
}

var labelLayouts = []string{"15:04", "3:04 PM", "3:04PM", "15:04:05"}

// Parse normalizes "9:00", "09:00" or "9:00 AM" to a catalog label.
func (c *Catalog) Parse(s string) (TimeLabel, error) {
	raw := strings.ToUpper(strings.TrimSpace(s))
	if raw == "" {
		return "", invalid("time", "is required")
	}
	for _, layout := range labelLayouts {
		t, err := time.Parse(layout, raw)
		if err != nil {
			continue
		}
		l := TimeLabel(t.Format("15:04"))
		if !c.Contains(l) {
			return "", invalid("time", "%s is not a bookable slot", s)
		}
		return l, nil
	}
	return "", invalid("time", "cannot parse %q as a time of day", s)
}

// ParseTimeLabel parses s against the default catalog.
func ParseTimeLabel(s string) (TimeLabel, error) {
	return defaultCatalog.Parse(s)
}
