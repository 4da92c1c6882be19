package service

import "time"

// DateLayout is the business-date format used in document keys.
const DateLayout = "2006-01-02"

// BusinessDay splits time into shift-days that start at BoundaryHour. With
// the default 18, a shift runs 18:00 on day D to 17:59:59 on D+1 and belongs
// to business date D.
type BusinessDay struct {
	BoundaryHour int
	Location     *time.Location // nil means time.Local
}

func (b BusinessDay) loc() *time.Location {
	if b.Location == nil {
		return time.Local
	}
	return b.Location
}

// Date returns midnight of the business date that t falls in.
func (b BusinessDay) Date(t time.Time) time.Time {
	loc := b.loc()
	t = t.In(loc)
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, loc)
	if t.Hour() < b.BoundaryHour {
		day = day.AddDate(0, 0, -1)
	}
	return day
}

// NextBoundary returns the first boundary strictly after now.
func (b BusinessDay) NextBoundary(now time.Time) time.Time {
	loc := b.loc()
	now = now.In(loc)
	y, m, d := now.Date()
	next := time.Date(y, m, d, b.BoundaryHour, 0, 0, 0, loc)
	if !next.After(now) {
		next = time.Date(y, m, d+1, b.BoundaryHour, 0, 0, 0, loc)
	}
	return next
}

// DocKey is the remote document id for one user's business date.
func DocKey(cloudID string, businessDate time.Time) string {
	return cloudID + "_" + businessDate.Format(DateLayout)
}
