// Package odds normalizes free-form handicap and goal-line text into numbers
// and half-point buckets.
package odds

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const tolerance = 1e-6

var numberRe = regexp.MustCompile(`^[+-]?\d+(?:\.\d+)?$`)

var cleaner = strings.NewReplacer(
	"−", "-",
	",", ".",
	" ", "",
	"\t", "",
	"\n", "",
	"\r", "",
	" ", "",
)

// ParseNumber parses a signed decimal. Comma separators and the unicode minus
// are accepted. Anything else is reported as not ok.
func ParseNumber(text string) (float64, bool) {
	s := cleaner.Replace(strings.TrimSpace(text))
	if !numberRe.MatchString(s) {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseHandicap parses a single line ("-0.25", "+1") or a split line
// ("0/0.5", "0.5/1"). A split line is worth the mean of its parts and is
// rejected if any part is unparseable.
func ParseHandicap(text string) (float64, bool) {
	t := strings.TrimSpace(text)
	if !strings.Contains(t, "/") {
		return ParseNumber(strings.ReplaceAll(t, "+", ""))
	}

	var sum float64
	var n int
	for _, part := range strings.Split(t, "/") {
		if part == "" {
			continue
		}
		v, ok := ParseNumber(strings.ReplaceAll(part, "+", ""))
		if !ok {
			return 0, false
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func near(a, b float64) bool {
	return math.Abs(a-b) < tolerance
}

// HalfBucket snaps a handicap to the half-point grid. Whole values stay put,
// quarter and half remainders all collapse onto base+0.5.
//
// Remainders that are not quarter steps only come from malformed input. They
// are rounded half-to-even to the nearest 0.5 and an integer result lying
// within 0.26 of a quarter line is moved to the half line above it.
func HalfBucket(value float64) float64 {
	if value == 0 {
		return 0
	}
	sign := 1.0
	if value < 0 {
		sign = -1
	}
	av := math.Abs(value)
	base := math.Floor(av + 1e-9)
	frac := av - base

	var bucket float64
	switch {
	case near(frac, 0):
		bucket = base
	case near(frac, 0.25), near(frac, 0.5), near(frac, 0.75):
		bucket = base + 0.5
	default:
		bucket = math.RoundToEven(av*2) / 2
		floor := math.Floor(bucket)
		if near(bucket-floor, 0) &&
			(math.Abs(av-(floor+0.25)) < 0.26 || math.Abs(av-(floor+0.75)) < 0.26) {
			bucket = floor + 0.5
		}
	}
	return sign * bucket
}

// HalfBucketString parses text as a handicap and renders its bucket with one
// decimal, e.g. "0/0.5" -> "0.5". Unparseable text is reported as not ok.
func HalfBucketString(text string) (string, bool) {
	v, ok := ParseHandicap(text)
	if !ok {
		return "", false
	}
	b := HalfBucket(v)
	if b == 0 {
		b = 0 // drop the sign of -0
	}
	return fmt.Sprintf("%.1f", b), true
}

// FormatDecimal renders raw handicap text as a canonical decimal string.
// Zero renders as "0", quarter lines with two decimals, everything else with
// one. ok is false when the text could not be parsed; the returned string is
// then the trimmed input, or "-" when nothing is left.
func FormatDecimal(raw string) (string, bool) {
	v, ok := ParseHandicap(raw)
	if !ok {
		t := strings.TrimSpace(raw)
		if t == "" {
			t = "-"
		}
		return t, false
	}
	return FormatValue(v), true
}

// FormatValue renders an already parsed handicap value.
func FormatValue(v float64) string {
	if v == 0 {
		return "0"
	}
	if near(math.Abs(math.Mod(v, 0.5)), 0.25) {
		return fmt.Sprintf("%.2f", v)
	}
	return fmt.Sprintf("%.1f", v)
}

// Format is FormatDecimal without the parse flag.
func Format(raw string) string {
	s, _ := FormatDecimal(raw)
	return s
}
