package fat

import (
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		name  string
		input uint16
		want  time.Time
	}{
		{name: "epoch", input: 1<<5 | 1, want: time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)},
		{name: "some day", input: 41<<9 | 3<<5 | 4, want: time.Date(2021, 3, 4, 0, 0, 0, 0, time.UTC)},
		{name: "last day", input: 127<<9 | 12<<5 | 31, want: time.Date(2107, 12, 31, 0, 0, 0, 0, time.UTC)},
		{name: "day 0", input: 1 << 5, want: time.Time{}},
		{name: "month 0", input: 1, want: time.Time{}},
		{name: "zero", input: 0, want: time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseDate(tt.input); !got.Equal(tt.want) {
				t.Errorf("ParseDate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		name  string
		input uint16
		want  time.Time
	}{
		{name: "midnight", input: 0, want: time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC)},
		{name: "some time", input: 5<<11 | 6<<5 | 4, want: time.Date(1, 1, 1, 5, 6, 8, 0, time.UTC)},
		{name: "last second", input: 23<<11 | 59<<5 | 29, want: time.Date(1, 1, 1, 23, 59, 58, 0, time.UTC)},
		{name: "hour out of range", input: 31 << 11, want: time.Date(1, 1, 1, 23, 59, 59, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseTime(tt.input); !got.Equal(tt.want) {
				t.Errorf("ParseTime() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEncodeTimestamp_roundTrip(t *testing.T) {
	loc := time.FixedZone("test", 2*60*60)
	for year := minYear; year <= maxYear; year += 7 {
		in := time.Date(year, time.Month(year%12+1), year%28+1, year%24, year%60, year%60, 370*int(time.Millisecond), loc)

		date, clock, tenth := EncodeTimestamp(in)
		got := DecodeTimestamp(date, clock, tenth, loc)

		want := in.Truncate(10 * time.Millisecond)
		if !got.Equal(want) {
			t.Errorf("round trip of %v = %v", in, got)
		}

		// Without the 10ms count the resolution is 2 seconds.
		coarse := DecodeTimestamp(date, clock, 0, loc)
		if d := in.Sub(coarse); d < 0 || d >= 2*time.Second {
			t.Errorf("coarse round trip of %v = %v", in, coarse)
		}
	}
}

func TestEncodeTimestamp_clamps(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{
			name: "before 1980",
			in:   time.Date(1970, 1, 1, 12, 0, 0, 0, time.UTC),
			want: time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "after 2107",
			in:   time.Date(2200, 6, 1, 0, 0, 0, 0, time.UTC),
			want: time.Date(2107, 12, 31, 23, 59, 59, 990*int(time.Millisecond), time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			date, clock, tenth := EncodeTimestamp(tt.in)
			if got := DecodeTimestamp(date, clock, tenth, time.UTC); !got.Equal(tt.want) {
				t.Errorf("EncodeTimestamp() decodes to %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecodeTimestamp_invalidDate(t *testing.T) {
	if got := DecodeTimestamp(0, 0, 0, time.UTC); !got.IsZero() {
		t.Errorf("DecodeTimestamp() = %v, want zero time", got)
	}
}
