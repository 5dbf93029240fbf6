package timestamp

import (
	"testing"
	"time"
)

var (
	testTime   = time.Date(2023, 1, 15, 12, 30, 45, 123000000, time.UTC)
	testTimeMs = int64(1673785845123)
)

func TestNow(t *testing.T) {
	before := time.Now().UnixMilli()
	ts := Now()
	after := time.Now().UnixMilli()

	if ts < before || ts > after {
		t.Errorf("Now() = %d, expected between %d and %d", ts, before, after)
	}
}

func TestToUnixMs(t *testing.T) {
	tests := []struct {
		name     string
		input    time.Time
		expected int64
	}{
		{
			name:     "normal time",
			input:    testTime,
			expected: testTimeMs,
		},
		{
			name:     "zero time",
			input:    time.Time{},
			expected: 0,
		},
		{
			name:     "unix epoch",
			input:    time.Unix(0, 0),
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ToUnixMs(tt.input)
			if result != tt.expected {
				t.Errorf("ToUnixMs(%v) = %d, expected %d", tt.input, result, tt.expected)
			}
		})
	}
}

func TestFromUnixMs(t *testing.T) {
	tests := []struct {
		name     string
		input    int64
		expected time.Time
	}{
		{
			name:     "normal timestamp",
			input:    testTimeMs,
			expected: time.UnixMilli(testTimeMs),
		},
		{
			name:     "zero timestamp",
			input:    0,
			expected: time.Time{},
		},
		{
			name:     "negative timestamp",
			input:    -1000,
			expected: time.UnixMilli(-1000),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FromUnixMs(tt.input)
			if !result.Equal(tt.expected) {
				t.Errorf("FromUnixMs(%d) = %v, expected %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name     string
		input    int64
		expected string
	}{
		{
			name:     "normal timestamp",
			input:    testTimeMs,
			expected: "2023-01-15T12:30:45Z",
		},
		{
			name:     "zero timestamp",
			input:    0,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Format(tt.input)
			if result != tt.expected {
				t.Errorf("Format(%d) = %q, expected %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestIsZero(t *testing.T) {
	tests := []struct {
		name     string
		input    int64
		expected bool
	}{
		{
			name:     "zero timestamp",
			input:    0,
			expected: true,
		},
		{
			name:     "non-zero timestamp",
			input:    1673785845123,
			expected: false,
		},
		{
			name:     "negative timestamp",
			input:    -1,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsZero(tt.input)
			if result != tt.expected {
				t.Errorf("IsZero(%d) = %v, expected %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestRoundTripAccuracy(t *testing.T) {
	original := testTime
	ms := ToUnixMs(original)
	recovered := FromUnixMs(ms)

	diff := original.Sub(recovered)
	if diff < 0 {
		diff = -diff
	}
	if diff >= time.Millisecond {
		t.Errorf("round trip lost too much precision: %v", diff)
	}
}

func BenchmarkNow(b *testing.B) {
	for i := 0; i < b.N; i++ {
		Now()
	}
}

func BenchmarkToUnixMs(b *testing.B) {
	t := time.Now()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ToUnixMs(t)
	}
}

func BenchmarkFromUnixMs(b *testing.B) {
	ts := testTimeMs
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		FromUnixMs(ts)
	}
}

func BenchmarkFormat(b *testing.B) {
	ts := testTimeMs
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Format(ts)
	}
}
