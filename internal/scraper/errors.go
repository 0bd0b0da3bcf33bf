package scraper

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so callers can branch on the tag rather than on concrete types.
type ErrorKind string

// Error kinds surfaced by the pipeline stages.
const (
	KindValidation        ErrorKind = "validation"
	KindNavigationTimeout ErrorKind = "navigation_timeout"
	KindExtraction        ErrorKind = "extraction"
	KindUpstream          ErrorKind = "upstream"
	KindNotFound          ErrorKind = "not_found"
)

// Error is the structured failure returned by every stage.
type Error struct {
	Kind ErrorKind
	// Field is the offending query field for validation errors.
	Field string
	// Input is the rejected value for validation errors.
	Input any
	Msg   string
	URL   string
	Stage string
	Err   error
}

func (e *Error) Error() string {
	switch {
	case e.Field != "":
		return fmt.Sprintf("%s: %s", e.Field, e.Msg)
	case e.Stage != "" && e.URL != "":
		return fmt.Sprintf("%s %s: %s", e.Stage, e.URL, e.Msg)
	case e.Stage != "":
		return fmt.Sprintf("%s: %s", e.Stage, e.Msg)
	default:
		return e.Msg
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ValidationError reports a malformed request field.
func ValidationError(field, msg string, input any) *Error {
	return &Error{Kind: KindValidation, Field: field, Msg: msg, Input: input}
}

// ExtractionError reports that the DOM-analysis step produced nothing usable.
func ExtractionError(stage, url, msg string) *Error {
	return &Error{Kind: KindExtraction, Stage: stage, URL: url, Msg: msg}
}

// UpstreamError wraps an engine or transport failure.
func UpstreamError(stage, url string, err error) *Error {
	return &Error{Kind: KindUpstream, Stage: stage, URL: url, Msg: err.Error(), Err: err}
}

// NavigationTimeoutError reports that navigation exceeded its deadline.
func NavigationTimeoutError(url string, err error) *Error {
	return &Error{Kind: KindNavigationTimeout, Stage: "navigate", URL: url, Msg: "navigation timed out", Err: err}
}

// NotFoundError reports a missing cache entry.
func NotFoundError(id string) *Error {
	return &Error{Kind: KindNotFound, Msg: "not found result with id: " + id}
}

// KindOf returns the kind of the first *Error in err's chain, or KindUpstream for untagged errors.
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUpstream
}
