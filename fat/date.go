package fat

import (
	"time"
)

// Years representable in a directory entry.
const (
	minYear = 1980
	maxYear = 2107
)

// ParseDate decodes a FAT date stamp:
//  Bits 0–4: day of month, 1–31.
//  Bits 5–8: month of year, 1–12.
//  Bits 9–15: years since 1980, 0–127.
// The result has a time of 00:00:00 in UTC.
//
// Day or month 0 is invalid and returns time.Time{}, so time.Time.IsZero() can be used.
func ParseDate(input uint16) time.Time {
	day := input & 0x1F
	month := input & 0x1E0 >> 5
	years := input & 0xFE00 >> 9

	if day == 0 || month == 0 {
		return time.Time{}
	}

	return time.Date(minYear+int(years), time.Month(month), int(day), 0, 0, 0, 0, time.UTC)
}

// ParseTime decodes a FAT time stamp with a granularity of 2 seconds:
//  Bits 0–4: 2 second count, 0–29.
//  Bits 5–10: minutes, 0–59.
//  Bits 11–15: hours, 0–23.
// The result is on January 1, year 1.
//
// Out of range values are capped at 23:59:59.
func ParseTime(input uint16) time.Time {
	seconds := int(input&0x1F) * 2
	minutes := input & 0x7E0 >> 5
	hours := input & 0xF800 >> 11

	result := time.Date(1, 1, 1, int(hours), int(minutes), seconds, 0, time.UTC)
	if result.Day() > 1 {
		return time.Date(1, 1, 1, 23, 59, 59, 0, time.UTC)
	}
	return result
}

// DecodeTimestamp combines a date, a time and the 10ms count of a creation time.
// Entries carry no time zone, the stamp is interpreted in loc.
func DecodeTimestamp(date, clock uint16, tenth byte, loc *time.Location) time.Time {
	d := ParseDate(date)
	if d.IsZero() {
		return time.Time{}
	}
	c := ParseTime(clock)
	if tenth > 199 {
		tenth = 0
	}
	ms := int(tenth) * 10

	return time.Date(d.Year(), d.Month(), d.Day(), c.Hour(), c.Minute(), c.Second()+ms/1000, (ms%1000)*int(time.Millisecond), loc)
}

// EncodeTimestamp is the inverse of DecodeTimestamp. The time is stored in its own location.
// Years outside of 1980–2107 are clamped.
func EncodeTimestamp(t time.Time) (date, clock uint16, tenth byte) {
	switch {
	case t.Year() < minYear:
		return 1<<5 | 1, 0, 0
	case t.Year() > maxYear:
		return (maxYear-minYear)<<9 | 12<<5 | 31, 23<<11 | 59<<5 | 29, 199
	}

	date = uint16(t.Year()-minYear)<<9 | uint16(t.Month())<<5 | uint16(t.Day())
	clock = uint16(t.Hour())<<11 | uint16(t.Minute())<<5 | uint16(t.Second()/2)
	tenth = byte((t.Second()%2)*100 + t.Nanosecond()/int(10*time.Millisecond))
	return date, clock, tenth
}
