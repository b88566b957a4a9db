package validation

import (
	"fmt"
	"strings"
	"time"
)

// DateOrder selects how numeric dates are read. It is never inferred.
type DateOrder string

const (
	DayFirst   DateOrder = "day-first"
	MonthFirst DateOrder = "month-first"

	// ISO accepts only year-first layouts.
	ISO DateOrder = "iso"
)

// ParseDateOrder maps a configuration value to a DateOrder.
func ParseDateOrder(value string) (DateOrder, error) {
	switch DateOrder(strings.ToLower(strings.TrimSpace(value))) {
	case DayFirst:
		return DayFirst, nil
	case MonthFirst:
		return MonthFirst, nil
	case ISO:
		return ISO, nil
	case "":
		return "", fmt.Errorf("date order is required")
	}
	return "", fmt.Errorf("unknown date order %q", value)
}

// Year-first layouts are unambiguous and accepted in every mode; the ledger
// itself is written as RFC 3339. A fraction of a second after the seconds
// field is accepted by every layout that has one.
var isoLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	time.RFC3339,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"2006/01/02",
}

// dateLayouts are day/month layouts written day-first; month-first layouts
// are derived by swapping the two fields.
var dateLayouts = []string{
	"2/1/2006",
	"2-1-2006",
	"2.1.2006",
	"2/1/06",
}

var clockLayouts = []string{
	" 15:04:05",
	" 15:04",
	" 3:04:05 PM",
	" 3:04 PM",
	"",
}

// TimeParser parses order times with a fixed, explicit set of layouts.
type TimeParser struct {
	order   DateOrder
	loc     *time.Location
	layouts []string
}

// NewTimeParser builds a parser for the date order. Times without an offset
// are read in loc (UTC when nil).
func NewTimeParser(order DateOrder, loc *time.Location) (*TimeParser, error) {
	if _, err := ParseDateOrder(string(order)); err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}

	layouts := append([]string(nil), isoLayouts...)
	if order != ISO {
		for _, date := range dateLayouts {
			if order == MonthFirst {
				date = swapDayMonth(date)
			}
			for _, clock := range clockLayouts {
				layouts = append(layouts, date+clock)
			}
		}
	}

	return &TimeParser{order: order, loc: loc, layouts: layouts}, nil
}

// Order returns the parser's date order.
func (p *TimeParser) Order() DateOrder { return p.order }

// Parse returns the first layout match. The error carries the value and the
// date order; callers add batch and row context.
func (p *TimeParser) Parse(value string) (time.Time, error) {
	v := strings.Join(strings.Fields(value), " ")
	if v == "" {
		return time.Time{}, &TimestampParseError{Value: value, DateOrder: p.order}
	}

	for _, layout := range p.layouts {
		if t, err := time.ParseInLocation(layout, v, p.loc); err == nil {
			return t.In(p.loc), nil
		}
	}

	return time.Time{}, &TimestampParseError{Value: value, DateOrder: p.order}
}

func swapDayMonth(layout string) string {
	sep := layout[1:2]
	parts := strings.SplitN(layout, sep, 3)
	parts[0], parts[1] = parts[1], parts[0]
	return strings.Join(parts, sep)
}
