// Package ics decodes uploaded iCalendar files into busy-event triples.
package ics

import (
	"errors"
	"fmt"
	"io"
	"time"
	"unicode/utf8"

	"github.com/emersion/go-ical"
)

// Event is one decoded VEVENT, normalized to the given location. Recurring
// events are taken as their first occurrence only; expansion is out of scope.
type Event struct {
	Start       time.Time
	End         time.Time
	Description string
}

const maxDescriptionLen = 250

// Decode parses every VCALENDAR in r and returns its events with times
// converted to loc. Events without a usable start/end, or with start >= end,
// are skipped rather than failing the whole import.
func Decode(r io.Reader, loc *time.Location) ([]Event, error) {
	if loc == nil {
		loc = time.Local
	}

	dec := ical.NewDecoder(r)
	var events []Event
	decoded := false
	for {
		cal, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if !decoded {
				return nil, fmt.Errorf("decode calendar: %w", err)
			}
			break
		}
		decoded = true

		for _, ev := range cal.Events() {
			start, err := ev.DateTimeStart(loc)
			if err != nil || start.IsZero() {
				continue
			}
			end, err := ev.DateTimeEnd(loc)
			if err != nil || end.IsZero() {
				continue
			}
			start = start.In(loc)
			end = end.In(loc)
			if !start.Before(end) {
				continue
			}

			desc := textProp(ev, ical.PropSummary)
			if desc == "" {
				desc = textProp(ev, ical.PropDescription)
			}
			desc = truncate(desc, maxDescriptionLen)

			events = append(events, Event{Start: start, End: end, Description: desc})
		}
	}

	if !decoded {
		return nil, errors.New("no calendar data found")
	}
	return events, nil
}

func textProp(ev ical.Event, name string) string {
	v, err := ev.Props.Text(name)
	if err != nil {
		return ""
	}
	return v
}

// truncate caps s at n characters, never splitting a multi-byte rune:
// the result must stay valid UTF-8 for storage.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
