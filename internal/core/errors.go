package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// MaxParseIssues caps how many line/field errors a ParseError carries.
// Parsing stops once the cap is reached.
const MaxParseIssues = 25

// ParseIssue is one structural problem found while reading a CSV stream.
type ParseIssue struct {
	Line   int // 1-based, 0 when unknown
	Column int // 1-based, 0 when unknown
	Err    error
}

func (i ParseIssue) String() string {
	switch {
	case i.Line > 0 && i.Column > 0:
		return fmt.Sprintf("line %d, column %d: %v", i.Line, i.Column, i.Err)
	case i.Line > 0:
		return fmt.Sprintf("line %d: %v", i.Line, i.Err)
	default:
		return i.Err.Error()
	}
}

// ParseError reports that an input could not be ingested. No partial data
// accompanies it.
type ParseError struct {
	Issues    []ParseIssue
	Truncated bool // more issues existed than MaxParseIssues
}

func (e *ParseError) Error() string {
	parts := make([]string, 0, len(e.Issues)+1)
	for _, issue := range e.Issues {
		parts = append(parts, issue.String())
	}
	if e.Truncated {
		parts = append(parts, fmt.Sprintf("too many errors, stopped after %d", MaxParseIssues))
	}
	return "invalid csv: " + strings.Join(parts, "; ")
}

// Unwrap exposes the underlying issue errors to errors.Is and errors.As.
func (e *ParseError) Unwrap() []error {
	errs := make([]error, 0, len(e.Issues))
	for _, issue := range e.Issues {
		errs = append(errs, issue.Err)
	}
	return errs
}

// Validation reasons reported by the session controller.
const (
	ReasonEmptyQuestion = "empty question"
	ReasonNoData        = "no data"
)

// ValidationError rejects an operation before it has any effect.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

// RequestError covers transport failures and non-2xx responses from the
// Answer Service.
type RequestError struct {
	Op         string // e.g. "POST /ask"
	StatusCode int    // 0 when no response was received
	Body       string // first bytes of a non-2xx body, for logs
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("answer request failed: %s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("answer request failed: %s: %v", e.Op, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the request failed because a deadline passed.
func (e *RequestError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// DecodeError reports a response body that does not match the expected shape.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("answer decode failed: %s: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// FailureCategory classifies an error for logs and outcome reporting.
func FailureCategory(err error) string {
	var (
		parseErr  *ParseError
		valErr    *ValidationError
		reqErr    *RequestError
		decodeErr *DecodeError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &valErr):
		return "validation"
	case errors.As(err, &parseErr):
		return "parse"
	case errors.As(err, &decodeErr):
		return "decode"
	case errors.As(err, &reqErr):
		if reqErr.Timeout() {
			return "timeout"
		}
		return "request"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "unknown"
	}
}
