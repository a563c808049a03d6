package types

import (
	"testing"
	"time"
)

func TestDuration(t *testing.T) {
	cases := []struct {
		s string
		d time.Duration
	}{
		{"00:00:00", time.Duration(0)},
		{"00:00:10", 10 * time.Second},
		{"00:01:00", 1 * time.Minute},
		{"00:02:05", 125 * time.Second},
		{"01:00:00", 1 * time.Hour},
		{"27:03:04", 27*time.Hour + 3*time.Minute + 4*time.Second},
		{"123:59:59", 123*time.Hour + 59*time.Minute + 59*time.Second},
	}

	for _, c := range cases {
		if got := FormatDuration(c.d); c.s != got {
			t.Errorf("FormatDuration(%s): got %s; want %s", c.d, got, c.s)
		}

		if got := ParseDuration(c.s); c.d != got {
			t.Errorf("ParseDuration(%s): got %s; want %s", c.s, got, c.d)
		}

		if got := FormatDuration(ParseDuration(c.s)); c.s != got {
			t.Errorf("FormatDuration(ParseDuration(%s)): got %s", c.s, got)
		}
	}
}

func TestFormatDurationTruncates(t *testing.T) {
	cases := []struct {
		d time.Duration
		s string
	}{
		{999 * time.Millisecond, "00:00:00"},
		{125999 * time.Millisecond, "00:02:05"},
		{-5 * time.Second, "00:00:00"},
	}

	for _, c := range cases {
		if got := FormatDuration(c.d); c.s != got {
			t.Errorf("FormatDuration(%s): got %s; want %s", c.d, got, c.s)
		}
	}
}

func TestParseDurationLenient(t *testing.T) {
	cases := []struct {
		s string
		d time.Duration
	}{
		{"0:00:10", 10 * time.Second},
		{"00:00:01.500", 1500 * time.Millisecond},
		{"00:00:01.5", 1500 * time.Millisecond},
		{"00:00:01.1/4", 1250 * time.Millisecond},
		{"-00:00:05", -5 * time.Second},
		{"", 0},
		{"garbage", 0},
		{"00:10", 0},
		{"00:60:00", 0},
		{"00:00:60", 0},
		{"aa:bb:cc", 0},
		{"00:00:01.3/2", 0},
	}

	for _, c := range cases {
		if got := ParseDuration(c.s); c.d != got {
			t.Errorf("ParseDuration(%q): got %s; want %s", c.s, got, c.d)
		}
	}
}

func TestIsDuration(t *testing.T) {
	valid := []string{"00:00:00", "1:02:03", "00:02:05.250", "-00:00:01"}
	for _, s := range valid {
		if !IsDuration(s) {
			t.Errorf("IsDuration(%q): got false; want true", s)
		}
	}

	invalid := []string{"", "00:00", "1:2:3", "NOT_IMPLEMENTED", "00:00:0x"}
	for _, s := range invalid {
		if IsDuration(s) {
			t.Errorf("IsDuration(%q): got true; want false", s)
		}
	}
}

func TestParseDurationSaturates(t *testing.T) {
	cases := []struct {
		s string
		d time.Duration
	}{
		{"3000000:00:00", MaxDuration},
		{"2562047:00:00", MaxDuration},
		{"-3000000:00:00", -MaxDuration},
		{"2562046:59:59", 2562046*time.Hour + 59*time.Minute + 59*time.Second},
		{"00:00:00.9223372036854775806/9223372036854775807", 999 * time.Millisecond},
	}

	for _, c := range cases {
		if got := ParseDuration(c.s); c.d != got {
			t.Errorf("ParseDuration(%q): got %s; want %s", c.s, got, c.d)
		}
	}
}
