package periods

import (
	"fmt"
	"strings"
	"time"

	"github.com/saraya-erp/saraya-erp/internal/accounting/shared"
)

// YearStatus enumerates financial year states.
type YearStatus string

const (
	YearStatusOpen   YearStatus = "OPEN"
	YearStatusClosed YearStatus = "CLOSED"
)

// Year is a financial year of one hospital.
type Year struct {
	ID         int64      `json:"id"`
	HospitalID int64      `json:"hospital_id"`
	Code       string     `json:"code"`
	StartDate  time.Time  `json:"start_date"`
	EndDate    time.Time  `json:"end_date"`
	Status     YearStatus `json:"status"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
	ClosedBy   *int64     `json:"closed_by,omitempty"`
}

// Period is a contiguous sub-range of a year. Start and end dates are inclusive.
type Period struct {
	ID         int64      `json:"id"`
	YearID     int64      `json:"year_id"`
	HospitalID int64      `json:"hospital_id"`
	Seq        int        `json:"seq"`
	Name       string     `json:"name"`
	StartDate  time.Time  `json:"start_date"`
	EndDate    time.Time  `json:"end_date"`
	IsOpen     bool       `json:"is_open"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
	ClosedBy   *int64     `json:"closed_by,omitempty"`
}

// Covers reports whether date falls inside the period.
func (p Period) Covers(date time.Time) bool {
	d := DateOnly(date)
	return !d.Before(p.StartDate) && !d.After(p.EndDate)
}

// OpenPeriod is the result of resolving a posting date.
type OpenPeriod struct {
	Year   Year   `json:"year"`
	Period Period `json:"period"`
}

// CreateYearInput describes a new financial year.
type CreateYearInput struct {
	HospitalID int64     `json:"-"`
	Code       string    `json:"code" validate:"required,max=20"`
	StartDate  time.Time `json:"start_date" validate:"required"`
	EndDate    time.Time `json:"end_date" validate:"required"`
	ActorID    int64     `json:"-"`
}

// Validate checks the year boundaries.
func (in *CreateYearInput) Validate() error {
	in.Code = strings.TrimSpace(in.Code)
	if in.HospitalID <= 0 || in.Code == "" {
		return fmt.Errorf("%w: hospital and code are required", shared.ErrInvalidInput)
	}
	in.StartDate = DateOnly(in.StartDate)
	in.EndDate = DateOnly(in.EndDate)
	if !in.EndDate.After(in.StartDate) {
		return fmt.Errorf("%w: year must end after it starts", shared.ErrInvalidInput)
	}
	return nil
}

// DateOnly truncates t to its UTC calendar date.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// MonthlyPeriods splits [start, end] into calendar-month periods. The first and
// last periods are clipped to the year boundaries.
func MonthlyPeriods(start, end time.Time) []Period {
	start, end = DateOnly(start), DateOnly(end)
	var out []Period
	cursor := start
	for seq := 1; !cursor.After(end); seq++ {
		monthEnd := time.Date(cursor.Year(), cursor.Month()+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
		if monthEnd.After(end) {
			monthEnd = end
		}
		out = append(out, Period{
			Seq:       seq,
			Name:      cursor.Format("2006-01"),
			StartDate: cursor,
			EndDate:   monthEnd,
			IsOpen:    true,
		})
		cursor = monthEnd.AddDate(0, 0, 1)
	}
	return out
}

// CheckCloseOrder fails with ErrSequenceViolation when a period of the same
// year that starts before target is still open.
func CheckCloseOrder(target Period, siblings []Period) error {
	for _, p := range siblings {
		if p.ID == target.ID || p.YearID != target.YearID {
			continue
		}
		if p.IsOpen && p.StartDate.Before(target.StartDate) {
			return fmt.Errorf("%w: period %s is still open", shared.ErrSequenceViolation, p.Name)
		}
	}
	return nil
}

// CheckYearClosable fails with ErrSequenceViolation while any period is open.
func CheckYearClosable(periods []Period) error {
	var open []string
	for _, p := range periods {
		if p.IsOpen {
			open = append(open, p.Name)
		}
	}
	if len(open) > 0 {
		return fmt.Errorf("%w: open periods %s", shared.ErrSequenceViolation, strings.Join(open, ", "))
	}
	return nil
}
