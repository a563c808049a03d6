package types

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrInvalidDuration is returned for strings not in the form of H+:MM:SS.
var ErrInvalidDuration = errors.New("invalid duration")

// MaxDuration is the largest representable duration. Parsed values with
// more hours than fit saturate to it.
const MaxDuration = time.Duration(math.MaxInt64)

// FormatDuration returns a string representation of the duration in the
// form of HH:MM:SS. Hours are not wrapped at 24 and the sub-second part
// is truncated. Negative durations are formatted as zero.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Truncate(time.Second)

	h := d / time.Hour
	d -= h * time.Hour

	m := d / time.Minute
	d -= m * time.Minute

	s := d / time.Second

	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// ParseDuration parses the string in the form of [-]H+:MM:SS[.F+] or
// [-]H+:MM:SS[.F0/F1]. Malformed input yields 0 and is logged.
func ParseDuration(str string) time.Duration {
	d, err := parseDuration(str)
	if err != nil {
		log.Warn().Err(err).Str("value", str).Msg("malformed duration, using 0")
		return 0
	}

	return d
}

// IsDuration reports whether str is a well-formed duration accepted by
// ParseDuration.
func IsDuration(str string) bool {
	_, err := parseDuration(str)
	return err == nil
}

func parseDuration(str string) (time.Duration, error) {
	s := strings.TrimSpace(str)

	sign := time.Duration(1)
	switch {
	case strings.HasPrefix(s, "-"):
		sign = -1
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}

	fields := strings.Split(s, ":")
	if len(fields) != 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, str)
	}

	h, err := atoi(fields[0])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, str)
	}

	m, err := atoi(fields[1])
	if err != nil || len(fields[1]) != 2 || m >= 60 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, str)
	}

	sec, frac, _ := strings.Cut(fields[2], ".")
	sc, err := atoi(sec)
	if err != nil || len(sec) != 2 || sc >= 60 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, str)
	}

	ms, err := parseFraction(frac)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, str)
	}

	if h >= int(MaxDuration/time.Hour) {
		return sign * MaxDuration, nil
	}

	d := time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(sc)*time.Second +
		time.Duration(ms)*time.Millisecond

	return sign * d, nil
}

// parseFraction returns the fractional seconds in milliseconds. Both the
// decimal form F+ and the quotient form F0/F1 are accepted.
func parseFraction(frac string) (int, error) {
	if frac == "" {
		return 0, nil
	}

	if num, den, ok := strings.Cut(frac, "/"); ok {
		f0, err := atoi(num)
		if err != nil {
			return 0, err
		}
		f1, err := atoi(den)
		if err != nil {
			return 0, err
		}
		if f1 == 0 || f0 >= f1 {
			return 0, ErrInvalidDuration
		}

		ms := new(big.Int).Mul(big.NewInt(int64(f0)), big.NewInt(1000))
		return int(ms.Quo(ms, big.NewInt(int64(f1))).Int64()), nil
	}

	if _, err := atoi(frac); err != nil {
		return 0, err
	}

	for len(frac) < 3 {
		frac += "0"
	}

	return strconv.Atoi(frac[:3])
}

// atoi is strconv.Atoi restricted to unsigned decimal digits.
func atoi(s string) (int, error) {
	if s == "" {
		return 0, strconv.ErrSyntax
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, strconv.ErrSyntax
		}
	}

	return strconv.Atoi(s)
}
