package docparse

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEngineUnavailable signals that the advanced conversion engine could not
// be constructed. The factory degrades to the basic parser in that case; it
// is an expected mode, not a service failure.
var ErrEngineUnavailable = errors.New("conversion engine unavailable")

// ValidationError rejects input before any parser runs (oversize upload,
// disallowed type). User-visible, not retryable.
type ValidationError struct {
	Filename string
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid upload %s: %s", e.Filename, e.Reason)
}

// ParseError is a parser-specific failure carrying the parser identifier and
// the underlying cause. Recoverable at the factory level via fallback.
type ParseError struct {
	Parser  string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Parser, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Parser, e.Message)
}

func (e *ParseError) Unwrap() error { return e.Err }

// NoCompatibleParserError means no registered parser declares support for the
// file type. Immediately fatal for the request; no fallback is possible.
type NoCompatibleParserError struct {
	FileType string
	Filename string
}

func (e *NoCompatibleParserError) Error() string {
	return fmt.Sprintf("no parser available for file type %q (filename: %s)", e.FileType, e.Filename)
}

// ParseAttempt records one failed parser attempt inside a fallback chain.
type ParseAttempt struct {
	Parser string
	Err    error
}

// AllParsersExhaustedError means every compatible parser was attempted and
// failed. The message enumerates each attempted parser and its error; the
// final attempt's error is the primary cause.
type AllParsersExhaustedError struct {
	Filename string
	Attempts []ParseAttempt
}

func (e *AllParsersExhaustedError) Error() string {
	names := make([]string, len(e.Attempts))
	details := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		names[i] = a.Parser
		details[i] = fmt.Sprintf("%s: %v", a.Parser, a.Err)
	}
	return fmt.Sprintf("all parsers failed for %s. Attempted: %s. Errors: %s",
		e.Filename, strings.Join(names, ", "), strings.Join(details, "; "))
}

// Unwrap returns the final attempt's error, the primary cause.
func (e *AllParsersExhaustedError) Unwrap() error {
	if len(e.Attempts) == 0 {
		return nil
	}
	return e.Attempts[len(e.Attempts)-1].Err
}
