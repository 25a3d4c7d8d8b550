package appstore

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DateFormatError is returned when an App Store date string is not a number
// of milliseconds since the Unix epoch.
type DateFormatError struct {
	Value string
}

func (e *DateFormatError) Error() string {
	return fmt.Sprintf("expected milliseconds since epoch, got %q", e.Value)
}

// ParseDate parses Apple's "milliseconds since epoch as a decimal string"
// format. Fractional milliseconds are kept as sub-millisecond precision.
// Only plain base-10 numbers are accepted, and the value must fit in int64
// milliseconds.
func ParseDate(value string) (time.Time, error) {
	if !isDecimal(value) {
		return time.Time{}, &DateFormatError{Value: value}
	}
	ms, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return time.Time{}, &DateFormatError{Value: value}
	}

	whole := math.Floor(ms)
	// 2^63 is exactly representable; anything at or above it overflows int64.
	if whole < math.MinInt64 || whole >= math.MaxInt64 {
		return time.Time{}, &DateFormatError{Value: value}
	}
	frac := ms - whole
	return time.UnixMilli(int64(whole)).Add(time.Duration(frac * float64(time.Millisecond))).UTC(), nil
}

// isDecimal reports whether s matches -?digits(.digits)?
func isDecimal(s string) bool {
	s = strings.TrimPrefix(s, "-")
	whole, frac, hasFrac := strings.Cut(s, ".")
	if !allDigits(whole) {
		return false
	}
	return !hasFrac || allDigits(frac)
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// ParseOptionalDate is ParseDate for optional fields: nil yields nil.
func ParseOptionalDate(value *string) (*time.Time, error) {
	if value == nil {
		return nil, nil
	}
	t, err := ParseDate(*value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// FormatDate is the inverse of ParseDate at millisecond precision.
func FormatDate(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
