package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// Date is a calendar day without time-of-day, serialised as YYYY-MM-DD.
type Date struct {
	time.Time
}

// NewDate truncates t to its calendar day in UTC.
func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(raw string) (Date, error) {
	t, err := time.Parse(DateLayout, raw)
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

// MustDate parses raw and panics on failure. Intended for fixtures.
func MustDate(raw string) Date {
	d, err := ParseDate(raw)
	if err != nil {
		panic(err)
	}
	return d
}

// DatePtr returns a pointer to the parsed date.
func DatePtr(raw string) *Date {
	d := MustDate(raw)
	return &d
}

// IsSet reports whether d holds a real calendar day. An empty JSON string
// decodes to the zero Date, which counts as unset.
func (d *Date) IsSet() bool {
	return d != nil && !d.IsZero()
}

// OrNil returns nil for an unset date.
func (d *Date) OrNil() *Date {
	if !d.IsSet() {
		return nil
	}
	return d
}

// String renders the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.Time.Format(DateLayout)
}

// UnmarshalJSON parses dates in YYYY-MM-DD format.
func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		d.Time = time.Time{}
		return nil
	}
	parsed, err := time.Parse(DateLayout, s)
	if err != nil {
		return fmt.Errorf("date must use %s: %w", DateLayout, err)
	}
	d.Time = parsed
	return nil
}

// MarshalJSON formats dates in YYYY-MM-DD format.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf(`"%s"`, d.String())), nil
}

// Scan implements sql.Scanner.
func (d *Date) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		d.Time = time.Time{}
	case time.Time:
		*d = NewDate(v)
	case string:
		parsed, err := time.Parse(DateLayout, v[:min(len(v), len(DateLayout))])
		if err != nil {
			return err
		}
		d.Time = parsed
	case []byte:
		return d.Scan(string(v))
	default:
		return fmt.Errorf("cannot scan %T into Date", value)
	}
	return nil
}

// Value implements driver.Valuer.
func (d Date) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.Time, nil
}
