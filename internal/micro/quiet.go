package micro

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// QuietHours is a daily window, in local hours, during which no challenge
// is delivered. Start may be greater than End, in which case the window
// wraps past midnight.
type QuietHours struct {
	Enabled bool `json:"enabled" koanf:"enabled"`
	Start   int  `json:"start" koanf:"start" validate:"gte=0,lte=23"`
	End     int  `json:"end" koanf:"end" validate:"gte=0,lte=23"`
}

// DefaultQuietHours is disabled, covering 22:00 to 08:00 once turned on.
func DefaultQuietHours() QuietHours {
	return QuietHours{Start: 22, End: 8}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks that both hours are on the clock.
func (q QuietHours) Validate() error {
	if err := validate.Struct(q); err != nil {
		return fmt.Errorf("invalid quiet hours: %w", err)
	}
	return nil
}

// Contains reports whether t falls inside the window.
func (q QuietHours) Contains(t time.Time) bool {
	if !q.Enabled || q.Start == q.End {
		return false
	}
	h := t.Hour()
	if q.Start < q.End {
		return h >= q.Start && h < q.End
	}
	return h >= q.Start || h < q.End
}

// Adjust moves t to the end of the window when it falls inside it: the same
// day's end before the start hour, the next day's end from the start hour on.
func (q QuietHours) Adjust(t time.Time) time.Time {
	if !q.Contains(t) {
		return t
	}
	end := time.Date(t.Year(), t.Month(), t.Day(), q.End, 0, 0, 0, t.Location())
	if t.Hour() >= q.Start {
		end = end.AddDate(0, 0, 1)
	}
	return end
}
