package logparse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifySeverity(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		severity Severity
		message  string
	}{
		{"error tag", "2024-01-01T10:00:00.1234567Z ##[error]Process completed with exit code 1.\n", SeverityError, "Process completed with exit code 1."},
		{"mixed case error tag", "2024-01-01T10:00:00.1234567Z ##[ERROR] build failed\n", SeverityError, "build failed"},
		{"warning tag", "2024-01-01T10:00:00.1234567Z ##[warning]Node 16 is deprecated\n", SeverityWarning, "Node 16 is deprecated"},
		{"notice tag", "2024-01-01T10:00:00.1234567Z ##[notice]Cache restored\n", SeverityNotice, "Cache restored"},
		{"debug tag", "2024-01-01T10:00:00.1234567Z ##[debug]Evaluating condition\n", SeverityDebug, "Evaluating condition"},
		{"plain line", "2024-01-01T10:00:00.1234567Z Run actions/checkout@v4\n", SeverityInfo, "Run actions/checkout@v4"},
		{"group marker is info", "2024-01-01T10:00:00.1234567Z ##[group]Run make\n", SeverityInfo, "##[group]Run make"},
		{"crlf terminator", "2024-01-01T10:00:00.1234567Z done\r\n", SeverityInfo, "done"},
		{"no terminator", "2024-01-01T10:00:00.1234567Z done", SeverityInfo, "done"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line, err := Classify(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.severity, line.Severity)
			assert.Equal(t, tt.message, line.Message)
		})
	}
}

func TestClassifyShortTimestamp(t *testing.T) {
	line, err := Classify("2024-01-01T10:00:00.000Z ##[error] build failed\n")
	require.NoError(t, err)

	assert.Equal(t, SeverityError, line.Severity)
	assert.Equal(t, "build failed", line.Message)
	assert.Equal(t, "2024-01-01T10:00:00.000", line.RawTimestamp)
	assert.Equal(t, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC), line.Time)
	assert.Equal(t, line.Time.UnixMilli(), line.UnixMilli())
}

func TestClassifyRoundTrip(t *testing.T) {
	stamp := "2023-10-27T08:15:42.517"
	filler := "3301Z "
	message := "Downloading action repository 'actions/setup-go@v5'"

	line, err := Classify(stamp + filler + message + "\n")
	require.NoError(t, err)

	assert.Equal(t, stamp, line.RawTimestamp)
	assert.Equal(t, message, line.Message)
	assert.Equal(t, time.Date(2023, 10, 27, 8, 15, 42, 517000000, time.UTC), line.Time)
}

func TestClassifySkips(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		err    error
		reason string
	}{
		{"empty line", "\n", ErrBlankMessage, "blank"},
		{"timestamp only", "2024-01-01T10:00:00.1234567Z\n", ErrBlankMessage, "blank"},
		{"whitespace message", "2024-01-01T10:00:00.1234567Z      \n", ErrBlankMessage, "blank"},
		{"continuation line", "    at org.example.Build.run(Build.java:42)\n", ErrMissingSeparator, "separator"},
		{"not a date", "this is not a date, at all ## message\n", ErrInvalidTimestamp, "timestamp"},
		{"invalid calendar date", "2024-13-45T99:00:00.0000000Z bad date\n", ErrInvalidTimestamp, "timestamp"},
		{"no separator", "2024-01-01T10:00:00.1234567890123Zmessage\n", ErrMissingSeparator, "separator"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Classify(tt.line)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, tt.reason, SkipReason(err))
		})
	}
}

func TestSeverityString(t *testing.T) {
	assert.Equal(t, "ERROR", SeverityError.String())
	assert.Equal(t, "WARNING", SeverityWarning.String())
	assert.Equal(t, "NOTICE", SeverityNotice.String())
	assert.Equal(t, "DEBUG", SeverityDebug.String())
	assert.Equal(t, "INFO", SeverityInfo.String())
}
