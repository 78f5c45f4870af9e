package scheduling

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperr"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// ParseStatus accepts the canonical statuses and the legacy "pending",
// which means scheduled.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusScheduled, "pending":
		return StatusScheduled, nil
	case StatusConfirmed:
		return StatusConfirmed, nil
	case StatusCompleted:
		return StatusCompleted, nil
	case StatusCancelled:
		return StatusCancelled, nil
	}
	return "", apperr.Validation("status must be one of scheduled, confirmed, completed, cancelled")
}

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Appointment is a booked treatment. Date and Time are wall-clock values in
// the clinic time zone. PatientName is captured at booking and not updated
// when the patient is renamed.
type Appointment struct {
	ID          uuid.UUID `json:"id"`
	OwnerID     uuid.UUID `json:"createdBy"`
	PatientID   uuid.UUID `json:"patientId"`
	PatientName string    `json:"patientName"`
	Date        string    `json:"date"`
	Time        string    `json:"time"`
	Duration    int       `json:"duration"`
	Treatment   string    `json:"treatment"`
	Notes       *string   `json:"notes,omitempty"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Instant combines Date and Time in loc.
func (a *Appointment) Instant(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout+" "+TimeLayout, a.Date+" "+a.Time, loc)
}

// Patch carries a partial update. Nil fields are left unchanged.
type Patch struct {
	PatientName *string `json:"patientName"`
	Date        *string `json:"date"`
	Time        *string `json:"time"`
	Duration    *int    `json:"duration"`
	Treatment   *string `json:"treatment"`
	Notes       *string `json:"notes"`
	Status      *string `json:"status"`
}

// Filter selects appointments of one owner. Zero fields do not constrain.
type Filter struct {
	PatientID     uuid.UUID
	Date          string
	From          string
	To            string
	Status        Status
	ExcludeStatus Status
}

func normalizeDate(s string) (string, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return "", apperr.Validation("date must be in YYYY-MM-DD format")
	}
	return d.Format(DateLayout), nil
}

// normalizeTime accepts HH:MM and HH:MM:SS and returns HH:MM.
func normalizeTime(s string) (string, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{TimeLayout, "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(TimeLayout), nil
		}
	}
	return "", apperr.Validation("time must be in HH:MM format")
}

// validate normalizes a and checks the fields every stored appointment
// must have.
func (a *Appointment) validate() error {
	if a.PatientID == uuid.Nil {
		return apperr.Validation("patientId is required")
	}
	var err error
	if a.Date, err = normalizeDate(a.Date); err != nil {
		return err
	}
	if a.Time, err = normalizeTime(a.Time); err != nil {
		return err
	}
	if a.Duration <= 0 {
		return apperr.Validation("duration must be greater than zero")
	}
	a.Treatment = strings.TrimSpace(a.Treatment)
	if a.Treatment == "" {
		return apperr.Validation("treatment is required")
	}
	a.PatientName = strings.TrimSpace(a.PatientName)
	if a.Notes != nil {
		n := strings.TrimSpace(*a.Notes)
		if n == "" {
			a.Notes = nil
		} else {
			a.Notes = &n
		}
	}
	return nil
}
