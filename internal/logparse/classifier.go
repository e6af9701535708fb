// Package logparse classifies raw GitHub Actions step log lines into timestamped, leveled entries.
//
// The log source writes every line as a fixed-width prefix followed by the message:
//
//	2024-01-01T10:00:00.1234567Z Run actions/checkout@v4
//	[0,23) timestamp, [23,29) separator, [29,end) message
//
// Only the first TimestampWidth characters are parsed as the instant. The rest of the timestamp
// token and its trailing space form the separator, which must end before MessageOffset.
package logparse

import (
	"errors"
	"strings"
	"time"
)

const (
	// TimestampWidth is the number of leading characters holding the parsed timestamp.
	TimestampWidth = 23
	// MessageOffset is where the message starts for a standard 28-character timestamp token.
	MessageOffset = 29

	timestampLayout = "2006-01-02T15:04:05.000"
)

var (
	// ErrBlankMessage means the line has no message text after trimming.
	ErrBlankMessage = errors.New("blank log message")
	// ErrInvalidTimestamp means the line does not start with a usable date.
	ErrInvalidTimestamp = errors.New("line does not start with a date")
	// ErrMissingSeparator means the timestamp prefix is not followed by the expected separator.
	ErrMissingSeparator = errors.New("missing separator after timestamp")
)

// Severity is the level assigned to a classified line.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityDebug
	SeverityNotice
	SeverityWarning
	SeverityError
)

// String returns the upper-case severity name.
func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "ERROR"
	case SeverityWarning:
		return "WARNING"
	case SeverityNotice:
		return "NOTICE"
	case SeverityDebug:
		return "DEBUG"
	default:
		return "INFO"
	}
}

// tags are matched in order, case-insensitively, against the start of the message.
var tags = []struct {
	prefix   string
	severity Severity
}{
	{"##[error]", SeverityError},
	{"##[warning]", SeverityWarning},
	{"##[notice]", SeverityNotice},
	{"##[debug]", SeverityDebug},
}

// Line is a classified log line.
type Line struct {
	Time         time.Time
	RawTimestamp string
	Severity     Severity
	Message      string
}

// UnixMilli returns the parsed instant as milliseconds since the epoch.
func (l Line) UnixMilli() int64 {
	return l.Time.UnixMilli()
}

// Classify parses one raw log line. Unparsable or blank lines return one of the package's
// sentinel errors and should be skipped by the caller.
func Classify(raw string) (Line, error) {
	raw = strings.TrimRight(raw, "\r\n")

	start, err := messageStart(raw)
	if err != nil {
		return Line{}, err
	}

	message := strings.TrimSpace(raw[start:])
	if message == "" {
		return Line{}, ErrBlankMessage
	}

	stamp := raw[:TimestampWidth]
	ts, err := time.ParseInLocation(timestampLayout, stamp, time.UTC)
	if err != nil {
		return Line{}, ErrInvalidTimestamp
	}

	severity, message := severityOf(message)

	return Line{
		Time:         ts,
		RawTimestamp: stamp,
		Severity:     severity,
		Message:      message,
	}, nil
}

// messageStart locates the separating space that closes the timestamp token.
func messageStart(raw string) (int, error) {
	if len(raw) <= TimestampWidth {
		return 0, ErrBlankMessage
	}

	limit := MessageOffset
	if len(raw) < limit {
		limit = len(raw)
	}

	for i := TimestampWidth; i < limit; i++ {
		if raw[i] == ' ' {
			return i + 1, nil
		}
	}

	if limit < MessageOffset {
		// The line ends inside the timestamp token.
		return 0, ErrBlankMessage
	}
	return 0, ErrMissingSeparator
}

func severityOf(message string) (Severity, string) {
	for _, tag := range tags {
		n := len(tag.prefix)
		if len(message) >= n && strings.EqualFold(message[:n], tag.prefix) {
			return tag.severity, strings.TrimSpace(message[n:])
		}
	}
	return SeverityInfo, message
}

// SkipReason maps a Classify error to a short label for metrics.
func SkipReason(err error) string {
	switch {
	case errors.Is(err, ErrBlankMessage):
		return "blank"
	case errors.Is(err, ErrInvalidTimestamp):
		return "timestamp"
	case errors.Is(err, ErrMissingSeparator):
		return "separator"
	default:
		return "unknown"
	}
}
