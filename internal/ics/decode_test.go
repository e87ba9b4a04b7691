package ics

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

const sampleCalendar = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//test//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:ev-1\r\n" +
	"DTSTAMP:20260301T000000Z\r\n" +
	"DTSTART:20260302T090000\r\n" +
	"DTEND:20260302T103000\r\n" +
	"SUMMARY:Algorithms lecture\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:ev-2\r\n" +
	"DTSTAMP:20260301T000000Z\r\n" +
	"DTSTART:20260302T140000\r\n" +
	"DTEND:20260302T140000\r\n" +
	"SUMMARY:Zero length\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:ev-3\r\n" +
	"DTSTAMP:20260301T000000Z\r\n" +
	"DTSTART:20260302T150000\r\n" +
	"DTEND:20260302T160000\r\n" +
	"DESCRIPTION:Study hall\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestDecode(t *testing.T) {
	events, err := Decode(strings.NewReader(sampleCalendar), time.UTC)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	// The zero-length event is skipped, not fatal.
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d: %v", len(events), events)
	}

	first := events[0]
	if !first.Start.Equal(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start: %s", first.Start)
	}
	if !first.End.Equal(time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC)) {
		t.Fatalf("unexpected end: %s", first.End)
	}
	if first.Description != "Algorithms lecture" {
		t.Fatalf("expected summary as description, got %q", first.Description)
	}

	// Without a SUMMARY the DESCRIPTION property is used.
	if events[1].Description != "Study hall" {
		t.Fatalf("expected description fallback, got %q", events[1].Description)
	}
}

func TestDecodeTruncatesLongDescriptions(t *testing.T) {
	long := strings.Repeat("a", 400)
	cal := "BEGIN:VCALENDAR\r\n" +
		"VERSION:2.0\r\n" +
		"PRODID:-//test//test//EN\r\n" +
		"BEGIN:VEVENT\r\n" +
		"UID:ev-1\r\n" +
		"DTSTAMP:20260301T000000Z\r\n" +
		"DTSTART:20260302T090000\r\n" +
		"DTEND:20260302T100000\r\n" +
		"SUMMARY:" + long + "\r\n" +
		"END:VEVENT\r\n" +
		"END:VCALENDAR\r\n"

	events, err := Decode(strings.NewReader(cal), time.UTC)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if len(events[0].Description) != maxDescriptionLen {
		t.Fatalf("expected description truncated to %d, got %d", maxDescriptionLen, len(events[0].Description))
	}
}

func TestDecodeTruncationKeepsValidUTF8(t *testing.T) {
	// 249 ASCII characters followed by two-byte runes puts the cap in the
	// middle of a rune if truncation counts bytes.
	summary := strings.Repeat("a", maxDescriptionLen-1) + strings.Repeat("é", 5)
	cal := "BEGIN:VCALENDAR\r\n" +
		"VERSION:2.0\r\n" +
		"PRODID:-//test//test//EN\r\n" +
		"BEGIN:VEVENT\r\n" +
		"UID:ev-1\r\n" +
		"DTSTAMP:20260301T000000Z\r\n" +
		"DTSTART:20260302T090000\r\n" +
		"DTEND:20260302T100000\r\n" +
		"SUMMARY:" + summary + "\r\n" +
		"END:VEVENT\r\n" +
		"END:VCALENDAR\r\n"

	events, err := Decode(strings.NewReader(cal), time.UTC)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	desc := events[0].Description
	if !utf8.ValidString(desc) {
		t.Fatalf("truncated description is not valid UTF-8: %q", desc)
	}
	if got := utf8.RuneCountInString(desc); got != maxDescriptionLen {
		t.Fatalf("expected %d characters, got %d", maxDescriptionLen, got)
	}
	if !strings.HasSuffix(desc, "é") {
		t.Fatalf("expected the last rune intact, got %q", desc[len(desc)-4:])
	}
}

func TestDecodeEmptyInput(t *testing.T) {
	if _, err := Decode(strings.NewReader(""), time.UTC); err == nil {
		t.Fatal("expected an error for empty input")
	}
	if _, err := Decode(strings.NewReader("not a calendar"), time.UTC); err == nil {
		t.Fatal("expected an error for garbage input")
	}
}
