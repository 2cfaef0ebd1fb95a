package xmlstream

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by Send before ConnectionMade.
	ErrNotConnected = errors.New("xmlstream: not connected")
	// ErrStreamEnded is returned by Send once the stream is errored or ended.
	ErrStreamEnded = errors.New("xmlstream: stream has ended")
)

// ErrUnknownConnector is returned when no connector is registered under a name.
type ErrUnknownConnector struct{ name string }

func (e ErrUnknownConnector) Error() string {
	return fmt.Sprintf("xmlstream: unknown connector: %s", e.name)
}

// ParseError reports malformed XML input. It is terminal: once an
// ElementStream has produced a ParseError, every further Feed returns the
// same error, and a Stream fires stream-error followed by stream-end.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "xmlstream: parse error: " + e.Reason
}

func parseErrorf(format string, args ...any) *ParseError {
	return &ParseError{Reason: fmt.Sprintf(format, args...)}
}
