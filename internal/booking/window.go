package booking

import "time"

// Window is the planned rental interval of a reservation. It is half-open:
// the departure instant is included, the return instant is not, so a rental
// returning at 10:00 and another departing at 10:00 do not conflict.
type Window struct {
	DepartureAt time.Time `json:"departure_at" db:"planned_departure_at"`
	ReturnAt    time.Time `json:"return_at" db:"planned_return_at"`
}

func NewWindow(departureAt, returnAt time.Time) (Window, error) {
	if !departureAt.Before(returnAt) {
		return Window{}, ErrInvalidWindow
	}
	return Window{DepartureAt: departureAt.UTC(), ReturnAt: returnAt.UTC()}, nil
}

func (w Window) Overlaps(other Window) bool {
	return w.DepartureAt.Before(other.ReturnAt) && other.DepartureAt.Before(w.ReturnAt)
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.DepartureAt) && t.Before(w.ReturnAt)
}

func (w Window) Duration() time.Duration {
	return w.ReturnAt.Sub(w.DepartureAt)
}
