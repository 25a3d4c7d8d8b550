package appstore

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{"whole milliseconds", "1591000000000", time.Unix(1591000000, 0).UTC()},
		{"millisecond remainder", "1591000000123", time.Unix(1591000000, 123*int64(time.Millisecond)).UTC()},
		{"fractional milliseconds", "1591000000000.5", time.Unix(1591000000, 500*int64(time.Microsecond)).UTC()},
		{"epoch", "0", time.Unix(0, 0).UTC()},
		{"before epoch", "-1000", time.Unix(-1, 0).UTC()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDate(tt.input)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestParseDateRejectsNonNumbers(t *testing.T) {
	for _, input := range []string{
		"not-a-number", "", "NaN", "Inf", "2020-06-01T08:26:40Z",
		"0x1p40", "1_000", "1e3", "+1000", " 1000", "1000.", ".5", "--1",
		"1e300", "9.3e18", "9300000000000000000", "-9300000000000000000",
	} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseDate(input)
			var formatErr *DateFormatError
			require.True(t, errors.As(err, &formatErr), "got %v", err)
			assert.Equal(t, input, formatErr.Value)
		})
	}
}

func TestParseOptionalDate(t *testing.T) {
	t.Run("absent is nil without error", func(t *testing.T) {
		got, err := ParseOptionalDate(nil)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("present is parsed", func(t *testing.T) {
		v := "1591000000000"
		got, err := ParseOptionalDate(&v)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, int64(1591000000), got.Unix())
	})

	t.Run("present but malformed fails", func(t *testing.T) {
		v := "soon"
		_, err := ParseOptionalDate(&v)
		var formatErr *DateFormatError
		assert.True(t, errors.As(err, &formatErr))
	})
}

func TestFormatDate(t *testing.T) {
	ts := time.Unix(1591000000, 123*int64(time.Millisecond))
	assert.Equal(t, "1591000000123", FormatDate(ts))

	parsed, err := ParseDate(FormatDate(ts))
	require.NoError(t, err)
	assert.True(t, ts.Equal(parsed))
}
