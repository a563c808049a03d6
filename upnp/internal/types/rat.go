package types

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidRat is returned for strings not in the form of "a" or "a/b".
var ErrInvalidRat = errors.New("invalid rational number")

// maxDenominator bounds the denominators produced by ParseFloat32.
const maxDenominator = 10

// A Rat represents a quotient a/b in lowest terms with b > 0.
type Rat struct {
	a, b int
}

// NewRat returns the normalized quotient a/b.
func NewRat(a, b int) (*Rat, error) {
	if b == 0 {
		return nil, ErrInvalidRat
	}
	if b < 0 {
		a, b = -a, -b
	}

	g := gcd(abs(a), b)
	return &Rat{a / g, b / g}, nil
}

// ParseRat parses the string in the form of "a" or "a/b", such as the
// TransportPlaySpeed "1" or "-1/2".
func ParseRat(s string) (*Rat, error) {
	num, den, hasDen := strings.Cut(strings.TrimSpace(s), "/")

	a, err := strconv.Atoi(num)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRat, s)
	}

	b := 1
	if hasDen {
		b, err = strconv.Atoi(den)
		if err != nil || b <= 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidRat, s)
		}
	}

	return NewRat(a, b)
}

// ParseFloat32 returns a Rat that is the closest to x.
func ParseFloat32(x float32) *Rat {
	f := float64(x)

	best := &Rat{int(math.Round(f)), 1}
	bestErr := math.Abs(f - float64(best.a))
	for b := 2; b <= maxDenominator; b++ {
		a := int(math.Round(f * float64(b)))
		if e := math.Abs(f - float64(a)/float64(b)); e < bestErr {
			best, bestErr = &Rat{a, b}, e
		}
	}

	r, _ := NewRat(best.a, best.b)
	return r
}

// Float32 returns the nearest float32 value for x.
func (x *Rat) Float32() float32 {
	return float32(x.a) / float32(x.b)
}

// IsOne reports whether x equals 1.
func (x *Rat) IsOne() bool {
	return x.a == 1 && x.b == 1
}

// String returns a string representation in the form "a/b" if b != 1,
// and in the form "a" if b == 1.
func (x *Rat) String() string {
	if x.b == 1 {
		return strconv.Itoa(x.a)
	}

	return fmt.Sprintf("%d/%d", x.a, x.b)
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	if a == 0 {
		return 1
	}

	return a
}

func abs(a int) int {
	if a < 0 {
		return -a
	}

	return a
}
